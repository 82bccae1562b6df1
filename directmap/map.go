// Copyright 2024 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

// Package directmap composes the radix trie and the bucket leaf into a
// persistent, copy-on-write u64 -> entry map with system-chosen keys:
// the index layer of an embedded storage engine's table backend.
package directmap

import (
	"sync"
	"time"

	"github.com/coredao-org/directmap/bucket"
	"github.com/coredao-org/directmap/dmerrors"
	"github.com/coredao-org/directmap/dmmetrics"
	"github.com/coredao-org/directmap/internal/corelog"
	"github.com/coredao-org/directmap/internal/xoshiro"
	"github.com/coredao-org/directmap/memdb"
	"github.com/coredao-org/directmap/trie"
)

// KeySource produces system-chosen 64-bit keys for Insert. The default
// is a xoshiro256** generator; tests may supply a deterministic
// sequence to exercise specific collision patterns.
type KeySource interface {
	Next() uint64
}

// Config bundles the knobs Map needs at construction: its initial trie
// capacity and an optional deterministic key source. A nil KeySource
// gets a freshly seeded xoshiro256** generator (spec.md §9: "use a
// well-distributed 64-bit PRNG... may optionally expose the PRNG seed
// for reproducibility").
type Config struct {
	InitialCapacity uint64
	KeySource       KeySource
	Seed            *[4]uint64
}

// DefaultConfig returns a Config for a map sized for capacity entries,
// with system-seeded key allocation.
func DefaultConfig(capacity uint64) Config {
	return Config{InitialCapacity: capacity}
}

// Map is a persistent, copy-on-write u64 -> T map. The zero value is
// not usable; construct with New.
type Map[T bucket.Entry] struct {
	mu   sync.Mutex
	top  *trie.Top
	leaf bucket.Leaf[T]
	keys KeySource
}

// New constructs a Map ready to accept inserts, equivalent to the
// source's DirectMap::init(initial_size) (spec.md §4.4).
func New[T bucket.Entry](codec bucket.Codec[T], cfg Config) *Map[T] {
	ks := cfg.KeySource
	if ks == nil {
		if cfg.Seed != nil {
			ks = xoshiro.NewFromSeed(*cfg.Seed)
		} else {
			ks = xoshiro.New()
		}
	}
	return &Map[T]{
		top:  trie.Init(cfg.InitialCapacity),
		leaf: bucket.Leaf[T]{Codec: codec},
		keys: ks,
	}
}

// Count reports the number of live entries.
func (m *Map[T]) Count() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.top.Count
}

// Get returns the entry stored at key by value (spec.md §4.4 "get").
func (m *Map[T]) Get(mem memdb.Memory, key uint64) (T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer dmmetrics.LookupTimer.UpdateSince(time.Now())

	var zero T
	leafRef, err := m.top.Lookup(mem, key)
	if err != nil {
		return zero, abortOnCorruption(err)
	}
	if mem.IsNull(leafRef) {
		return zero, dmerrors.NotFound(key)
	}
	buf, err := mem.Translate(leafRef)
	if err != nil {
		return zero, abortOnCorruption(err)
	}
	idx, ok := m.leaf.Find(buf, key)
	if !ok {
		return zero, dmerrors.NotFound(key)
	}
	return m.leaf.Get(buf, idx), nil
}

// EntryHandle is a mutable view onto an entry already resident in a
// leaf, returned by GetRef. It must not be retained across a call to
// Insert or CowPath on the same Map: either may reallocate the leaf
// it points into, per the pointer-invalidation discipline in spec.md
// §5.
type EntryHandle[T bucket.Entry] struct {
	leaf bucket.Leaf[T]
	buf  []byte
	idx  int
}

// Get decodes the current payload.
func (h EntryHandle[T]) Get() T { return h.leaf.Get(h.buf, h.idx) }

// Set overwrites the payload in place.
func (h EntryHandle[T]) Set(v T) { h.leaf.Put(h.buf, h.idx, v) }

// GetRef returns a mutable handle to the entry at key (spec.md §4.4
// "get_ref").
func (m *Map[T]) GetRef(mem memdb.Memory, key uint64) (EntryHandle[T], error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	leafRef, err := m.top.Lookup(mem, key)
	if err != nil {
		return EntryHandle[T]{}, abortOnCorruption(err)
	}
	if mem.IsNull(leafRef) {
		return EntryHandle[T]{}, dmerrors.NotFound(key)
	}
	buf, err := mem.Translate(leafRef)
	if err != nil {
		return EntryHandle[T]{}, abortOnCorruption(err)
	}
	idx, ok := m.leaf.Find(buf, key)
	if !ok {
		return EntryHandle[T]{}, dmerrors.NotFound(key)
	}
	return EntryHandle[T]{leaf: m.leaf, buf: buf, idx: idx}, nil
}

// Insert generates a system-chosen key, routes it to a leaf (creating
// one if the trie slot was never written), and reserves a slot for it
// in that leaf, retrying on low-byte collision (spec.md §4.4
// "insert"). The caller must populate the new entry's payload via a
// subsequent GetRef before committing.
func (m *Map[T]) Insert(mem memdb.Memory) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for {
		key := m.keys.Next()

		leafRef, err := m.top.Lookup(mem, key)
		if err != nil {
			return 0, abortOnCorruption(err)
		}
		if mem.IsNull(leafRef) {
			newLeaf, err := m.leaf.New(mem)
			if err != nil {
				return 0, abortOnCorruption(err)
			}
			if err := m.top.CowPath(mem, key, newLeaf); err != nil {
				return 0, abortOnCorruption(err)
			}
			// Retry key against the leaf just installed, rather than
			// drawing a new candidate (spec.md §4.4 "retry against the
			// new leaf").
			leafRef, err = m.top.Lookup(mem, key)
			if err != nil {
				return 0, abortOnCorruption(err)
			}
		}

		buf, err := mem.Translate(leafRef)
		if err != nil {
			return 0, abortOnCorruption(err)
		}
		if !m.leaf.IsEmptyAt(buf, key) {
			dmmetrics.BucketCollision.Mark(1)
			dmmetrics.InsertRetryMeter.Mark(1)
			continue
		}

		grown, err := m.leaf.Grow(mem, leafRef)
		if err != nil {
			return 0, abortOnCorruption(err)
		}
		if err := m.top.CowPath(mem, key, grown); err != nil {
			return 0, abortOnCorruption(err)
		}
		// Re-translate: CowPath's own interior-node CoW allocations may
		// have invalidated the buffer returned by Grow.
		buf, err = mem.Translate(grown)
		if err != nil {
			return 0, abortOnCorruption(err)
		}
		m.leaf.InsertAt(buf, key)
		m.top.Count++
		return key, nil
	}
}

// CowPath idempotently ensures the leaf containing key is scratch,
// without mutating its contents, for callers that intend to mutate an
// existing entry in place via GetRef (spec.md §4.4 "cow_path"). It
// reuses the leaf's Grow operation to do so, faithfully preserving the
// source's behavior of over-allocating one unused trailing slot (see
// SPEC_FULL.md / spec.md §9 open questions).
func (m *Map[T]) CowPath(mem memdb.Memory, key uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	leafRef, err := m.top.Lookup(mem, key)
	if err != nil {
		return abortOnCorruption(err)
	}
	if mem.IsNull(leafRef) {
		return dmerrors.NotFound(key)
	}
	buf, err := mem.Translate(leafRef)
	if err != nil {
		return abortOnCorruption(err)
	}
	if m.leaf.IsEmptyAt(buf, key) {
		return dmerrors.NotFound(key)
	}
	if mem.IsWritable(leafRef) {
		return nil
	}
	grown, err := m.leaf.Grow(mem, leafRef)
	if err != nil {
		return abortOnCorruption(err)
	}
	return abortOnCorruption(m.top.CowPath(mem, key, grown))
}

// Commit drives the trie's leaf committer over every dirty structure,
// publishing a new file-resident root (spec.md §4.4 "commit").
func (m *Map[T]) Commit(mem memdb.Memory) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := time.Now()
	defer dmmetrics.CommitTimer.UpdateSince(start)

	return abortOnCorruption(m.top.Commit(mem, m.leaf))
}

// Free releases every leaf and every interior node owned by the map.
// Leaves are released first, depth-first, before the trie scaffolding
// itself is torn down, matching trie.Top.Free's precondition that
// leaves have already been released by their owner.
func (m *Map[T]) Free(mem memdb.Memory) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.freeLeaves(mem, m.top.TopLevel, int(m.top.Levels)); err != nil {
		return abortOnCorruption(err)
	}
	return abortOnCorruption(m.top.Free(mem))
}

func (m *Map[T]) freeLeaves(mem memdb.Memory, ref memdb.RefAny, levels int) error {
	if mem.IsNull(ref) {
		return nil
	}
	if levels == 1 {
		buf, err := mem.Translate(ref)
		if err != nil {
			return err
		}
		n := bucket.NumEntries(buf)
		return mem.Free(ref, m.leaf.Size(n))
	}
	buf, err := mem.Translate(ref)
	if err != nil {
		return err
	}
	for i := 0; i < 256; i++ {
		off := i * memdb.RefAnySize
		child := memdb.ParseRefAny(buf[off : off+memdb.RefAnySize])
		if err := m.freeLeaves(mem, child, levels-1); err != nil {
			return err
		}
	}
	return nil
}

// abortOnCorruption terminates the process if err is a CorruptState,
// the Go analogue of the source's "CorruptState aborts the process"
// contract (spec.md §7); any other error (including nil) is returned
// unchanged for the caller to handle normally.
func abortOnCorruption(err error) error {
	if dmerrors.IsCorrupt(err) {
		corelog.Root().Crit("directmap: unsound state detected", "err", err)
	}
	return err
}
