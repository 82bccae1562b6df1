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

// Package bucket implements the trie leaf: a variable-capacity,
// open-addressed record holding up to 255 key/entry pairs behind a
// 256-byte condenser that maps a key's low byte to a 1-based index
// into the entry list, giving O(1) find without a probe sequence.
package bucket

import (
	"encoding/binary"

	"github.com/coredao-org/directmap/dmerrors"
	"github.com/coredao-org/directmap/dmmetrics"
	"github.com/coredao-org/directmap/memdb"
)

const (
	condenserSize = 256
	numEntriesOff = 0
	condenserOff  = 2
	headerSize    = condenserOff + condenserSize // 258
	keySize       = 8

	// MaxEntries is the hard cap imposed by the condenser's 1-based,
	// one-byte encoding: index 256 is unrepresentable, so a leaf may
	// hold at most 255 routed entries (spec.md §4.3).
	MaxEntries = 255
)

// Entry is the payload constraint a bucket leaf's entries must
// satisfy: hooks invoked whenever the payload's bytes migrate between
// scratch and file, letting entry types with cache state or embedded
// handles bring themselves up to date across the boundary (spec.md
// "entry lifecycle hooks").
type Entry interface {
	// OnCopiedToFile is called after this entry's bytes have been
	// copied into the file region during commit.
	OnCopiedToFile(mem memdb.Memory)
	// OnCopiedFromFile is called after this entry's bytes have been
	// copied into a new scratch leaf during grow. It runs on every grow,
	// whether the source leaf was file-resident or already scratch.
	OnCopiedFromFile(mem memdb.Memory)
}

// Codec encodes and decodes a fixed-size entry payload. Implementations
// must round-trip: Decode(Encode(v)) == v.
type Codec[T Entry] interface {
	// PayloadSize is the fixed number of bytes an entry occupies,
	// excluding its 8-byte key.
	PayloadSize() int
	Encode(dst []byte, v T)
	Decode(src []byte) T
}

// Leaf is a stateless view over a bucket.Leaf[T]'s wire format,
// parameterized by the entry codec. It carries no handle itself: every
// method takes the memdb.RefAny to operate on, matching the way trie.Top
// and memdb.Memory are used elsewhere in this module.
type Leaf[T Entry] struct {
	Codec Codec[T]
}

func entrySize(payloadSize int) int { return keySize + payloadSize }

// Size returns the packed byte length of a leaf with numEntries
// entries.
func (l Leaf[T]) Size(numEntries int) int {
	return headerSize + numEntries*entrySize(l.Codec.PayloadSize())
}

func entryOffset(idx, payloadSize int) int {
	return headerSize + idx*entrySize(payloadSize)
}

// NumEntries reads the live entry count out of a translated leaf
// buffer.
func NumEntries(buf []byte) int {
	return int(binary.LittleEndian.Uint16(buf[numEntriesOff:]))
}

func setNumEntries(buf []byte, n int) {
	binary.LittleEndian.PutUint16(buf[numEntriesOff:], uint16(n))
}

func condenserAt(buf []byte, b byte) int {
	return int(buf[condenserOff+int(b)])
}

func setCondenserAt(buf []byte, b byte, slot int) {
	buf[condenserOff+int(b)] = byte(slot)
}

func keyAt(buf []byte, idx, payloadSize int) uint64 {
	off := entryOffset(idx, payloadSize)
	return binary.LittleEndian.Uint64(buf[off:])
}

func setKeyAt(buf []byte, idx int, payloadSize int, key uint64) {
	off := entryOffset(idx, payloadSize)
	binary.LittleEndian.PutUint64(buf[off:], key)
}

func payloadAt(buf []byte, idx, payloadSize int) []byte {
	off := entryOffset(idx, payloadSize) + keySize
	return buf[off : off+payloadSize]
}

// Find returns the 0-based index of key within the translated leaf
// buffer buf, or ok == false if absent (spec.md §4.3 "find").
func (l Leaf[T]) Find(buf []byte, key uint64) (idx int, ok bool) {
	payloadSize := l.Codec.PayloadSize()
	b := byte(key)
	slot := condenserAt(buf, b)
	if slot == 0 {
		return 0, false
	}
	i := slot - 1
	if i >= NumEntries(buf) {
		return 0, false
	}
	if keyAt(buf, i, payloadSize) != key {
		return 0, false
	}
	return i, true
}

// IsEmptyAt reports whether key's low-byte bucket is free for a new
// entry, tested via the condenser alone without a key compare
// (spec.md §4.3 "is_empty_at"; see §9 open question on the original's
// inverted double-negation, resolved here to the semantically coherent
// reading).
func (l Leaf[T]) IsEmptyAt(buf []byte, key uint64) bool {
	b := byte(key)
	slot := condenserAt(buf, b)
	if slot == 0 {
		return true
	}
	return slot-1 >= NumEntries(buf)
}

// Get reads the entry at idx out of buf.
func (l Leaf[T]) Get(buf []byte, idx int) T {
	return l.Codec.Decode(payloadAt(buf, idx, l.Codec.PayloadSize()))
}

// Put writes v as the payload of the entry at idx in buf.
func (l Leaf[T]) Put(buf []byte, idx int, v T) {
	l.Codec.Encode(payloadAt(buf, idx, l.Codec.PayloadSize()), v)
}

// New allocates an empty, zero-capacity scratch leaf: zero entries, an
// all-zero condenser. Used to bootstrap a trie slot that has never
// held a leaf (spec.md §4.4 insert: "if null, create an empty leaf of
// capacity zero, install it via cow_path, then retry").
func (l Leaf[T]) New(mem memdb.Memory) (memdb.RefAny, error) {
	ref, err := mem.AllocScratch(l.Size(0))
	if err != nil {
		return memdb.RefAny{}, err
	}
	return ref, nil
}

// Grow allocates a scratch leaf sized for one more entry than from
// currently holds, copies header, condenser and existing entries, and
// invokes OnCopiedFromFile on every payload (the source may have been
// file-resident), then frees the source at its old size (spec.md §4.3
// "grow").
func (l Leaf[T]) Grow(mem memdb.Memory, from memdb.RefAny) (memdb.RefAny, error) {
	payloadSize := l.Codec.PayloadSize()
	fromBuf, err := mem.Translate(from)
	if err != nil {
		return memdb.RefAny{}, err
	}
	n := NumEntries(fromBuf)
	if n >= MaxEntries {
		return memdb.RefAny{}, dmerrors.CorruptState("bucket: leaf already at max capacity %d", MaxEntries)
	}
	oldSize := l.Size(n)
	newSize := l.Size(n + 1)

	to, err := mem.AllocScratch(newSize)
	if err != nil {
		return memdb.RefAny{}, err
	}
	// Re-translate: AllocScratch may have invalidated fromBuf.
	fromBuf, err = mem.Translate(from)
	if err != nil {
		return memdb.RefAny{}, err
	}
	toBuf, err := mem.Translate(to)
	if err != nil {
		return memdb.RefAny{}, err
	}
	copy(toBuf, fromBuf[:oldSize])

	for i := 0; i < n; i++ {
		v := l.Codec.Decode(payloadAt(toBuf, i, payloadSize))
		v.OnCopiedFromFile(mem)
		l.Codec.Encode(payloadAt(toBuf, i, payloadSize), v)
	}

	if err := mem.Free(from, oldSize); err != nil {
		return memdb.RefAny{}, err
	}
	dmmetrics.LeafGrowMeter.Mark(1)
	return to, nil
}

// InsertAt appends key to a writable, just-grown leaf, leaving the
// payload slot for the caller to populate via Put. Precondition:
// IsEmptyAt(buf, key) must have been true (spec.md §4.3 "insert_at").
func (l Leaf[T]) InsertAt(buf []byte, key uint64) int {
	payloadSize := l.Codec.PayloadSize()
	idx := NumEntries(buf)
	setKeyAt(buf, idx, payloadSize, key)
	idx++
	setNumEntries(buf, idx)
	setCondenserAt(buf, byte(key), idx)
	return idx - 1
}

// Commit implements trie.LeafCommitter: if the leaf is already
// file-resident it is returned unchanged (structural sharing across
// commits); otherwise a file-region copy is allocated, every payload
// runs OnCopiedToFile, and the scratch original is freed (spec.md
// §4.3 "commit").
func (l Leaf[T]) Commit(mem memdb.Memory, from memdb.RefAny) (memdb.RefAny, error) {
	if mem.IsNull(from) {
		return from, nil
	}
	if !mem.IsWritable(from) {
		return from, nil
	}
	payloadSize := l.Codec.PayloadSize()
	fromBuf, err := mem.Translate(from)
	if err != nil {
		return memdb.RefAny{}, err
	}
	n := NumEntries(fromBuf)
	sz := l.Size(n)

	to, err := mem.AllocFile(sz)
	if err != nil {
		return memdb.RefAny{}, err
	}
	// Re-translate: AllocFile may have invalidated fromBuf.
	fromBuf, err = mem.Translate(from)
	if err != nil {
		return memdb.RefAny{}, err
	}
	toBuf, err := mem.Translate(to)
	if err != nil {
		return memdb.RefAny{}, err
	}
	copy(toBuf, fromBuf[:sz])

	for i := 0; i < n; i++ {
		v := l.Codec.Decode(payloadAt(toBuf, i, payloadSize))
		v.OnCopiedToFile(mem)
		l.Codec.Encode(payloadAt(toBuf, i, payloadSize), v)
	}

	if err := mem.Free(from, sz); err != nil {
		return memdb.RefAny{}, err
	}
	return to, nil
}
