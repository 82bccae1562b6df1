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

// Package diskmem is a second memdb.Memory implementation, layering a
// fastcache clean-byte cache and an LRU of recently translated file
// regions over a pluggable BackingFile, grounded on
// triedb/pathdb/disklayer.go's diskLayer/trienodebuffer split: scratch
// writes accumulate in memory exactly like a diffLayer, and Flush
// pushes them down to the backing store exactly like diskLayer's
// buffered write-out, with cleans re-populated on the way so a
// subsequent Translate doesn't have to re-read what it just wrote.
package diskmem

import (
	"encoding/binary"
	"sync"

	"github.com/VictoriaMetrics/fastcache"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/coredao-org/directmap/dmerrors"
	"github.com/coredao-org/directmap/dmmetrics"
	"github.com/coredao-org/directmap/memdb"
)

// Config bundles Store's cache sizing, matching the shape of
// triedb/pathdb's Config struct (CleanCacheSize et al. in
// disklayer.go) rather than a CLI flag set.
type Config struct {
	// CleanCacheSize is the fastcache budget, in bytes, for flushed
	// file-region bytes.
	CleanCacheSize int
	// HotCacheSize is the number of decoded file-region translations
	// the LRU retains.
	HotCacheSize int
}

// DefaultConfig returns a Config sized for a single embedder process:
// an 8MiB clean cache and a 4096-entry hot LRU.
func DefaultConfig() Config {
	return Config{CleanCacheSize: 8 * 1024 * 1024, HotCacheSize: 4096}
}

// Store is a memdb.Memory backed by a BackingFile. Scratch regions live
// entirely in memory, exactly like memdb.ArenaMemory. File regions are
// staged in memory until Flush, at which point they are written to the
// backing file, re-seeded into the clean cache, and dropped from the
// staging map; a subsequent Translate of a flushed region is served
// from the hot LRU or the clean cache before falling back to a real
// ReadAt, transparently to the caller (property: disk-cache
// transparency). Free on a file region only queues it in pendingFree;
// the region keeps translating correctly until Reclaim is called,
// exactly like memdb.ArenaMemory's pendingFree/Reclaim pair.
type Store struct {
	mu sync.RWMutex

	scratch     map[uint32][]byte
	nextScratch uint32

	backing     BackingFile
	fileSize    map[uint32]int // offset -> size, for every file region ever allocated
	dirty       map[uint32][]byte
	nextFile    uint32
	pendingFree []uint32

	clean *fastcache.Cache
	hot   *lru.Cache[uint32, []byte]

	refs *RefTable
}

// New returns a Store writing file regions to backing.
func New(backing BackingFile, cfg Config) *Store {
	hot, _ := lru.New[uint32, []byte](cfg.HotCacheSize)
	return &Store{
		scratch:  make(map[uint32][]byte),
		nextScratch: 1,
		backing:  backing,
		fileSize: make(map[uint32]int),
		dirty:    make(map[uint32][]byte),
		clean:    fastcache.New(cfg.CleanCacheSize),
		hot:      hot,
		refs:     NewRefTable(),
	}
}

// RefTable implements diskmem.RefTableHolder, giving recordref.Entry a
// side-channel to bump or inspect refcounts reached only through the
// Memory handle its hooks receive.
func (s *Store) RefTable() *RefTable { return s.refs }

func cacheKey(offset uint32) []byte {
	var k [4]byte
	binary.LittleEndian.PutUint32(k[:], offset)
	return k[:]
}

func (s *Store) AllocScratch(size int) (memdb.RefAny, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	off := s.nextScratch
	s.nextScratch++
	s.scratch[off] = make([]byte, size)
	dmmetrics.AllocScratchMeter.Mark(1)
	return memdb.NewScratchRef(off), nil
}

func (s *Store) AllocFile(size int) (memdb.RefAny, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	off := s.nextFile
	s.nextFile += uint32(size)
	s.fileSize[off] = size
	s.dirty[off] = make([]byte, size)
	dmmetrics.AllocFileMeter.Mark(1)
	return memdb.NewFileRef(off), nil
}

func (s *Store) IsWritable(ref memdb.RefAny) bool {
	return ref.Bytes()[0] == memdb.RegionTagScratch
}

func (s *Store) IsNull(ref memdb.RefAny) bool {
	return ref.IsNull()
}

// Translate returns the byte window named by ref. Scratch regions are
// served directly out of the in-memory map; file regions are served,
// in order of preference, from the not-yet-flushed staging map, the
// hot LRU, the fastcache clean cache, or (on a genuine cold miss) a
// real ReadAt against backing, which is then fed back into both
// caches.
func (s *Store) Translate(ref memdb.RefAny) ([]byte, error) {
	raw := ref.Bytes()
	offset := binary.LittleEndian.Uint32(raw[1:])

	switch raw[0] {
	case memdb.RegionTagNull:
		return nil, dmerrors.CorruptState("diskmem: translate null handle")

	case memdb.RegionTagScratch:
		s.mu.RLock()
		defer s.mu.RUnlock()
		buf, ok := s.scratch[offset]
		if !ok {
			return nil, dmerrors.CorruptState("diskmem: translate unknown scratch handle %d", offset)
		}
		return buf, nil

	case memdb.RegionTagFile:
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.translateFileLocked(offset)

	default:
		return nil, dmerrors.CorruptState("diskmem: unrecognized region tag %d", raw[0])
	}
}

func (s *Store) translateFileLocked(offset uint32) ([]byte, error) {
	if buf, ok := s.dirty[offset]; ok {
		return buf, nil
	}
	size, ok := s.fileSize[offset]
	if !ok {
		return nil, dmerrors.CorruptState("diskmem: translate unknown file handle %d", offset)
	}
	if buf, ok := s.hot.Get(offset); ok {
		dmmetrics.CleanCacheHitMeter.Mark(1)
		return buf, nil
	}
	if buf := s.clean.Get(nil, cacheKey(offset)); buf != nil {
		dmmetrics.CleanCacheHitMeter.Mark(1)
		s.hot.Add(offset, buf)
		return buf, nil
	}
	dmmetrics.CleanCacheMissMeter.Mark(1)
	buf := make([]byte, size)
	if _, err := s.backing.ReadAt(buf, int64(offset)); err != nil {
		return nil, dmerrors.CorruptState("diskmem: read backing file at %d: %v", offset, err)
	}
	s.clean.Set(cacheKey(offset), buf)
	s.hot.Add(offset, buf)
	return buf, nil
}

func (s *Store) Free(ref memdb.RefAny, size int) error {
	raw := ref.Bytes()
	offset := binary.LittleEndian.Uint32(raw[1:])

	s.mu.Lock()
	defer s.mu.Unlock()

	switch raw[0] {
	case memdb.RegionTagScratch:
		delete(s.scratch, offset)
		dmmetrics.FreeScratchMeter.Mark(1)
		return nil
	case memdb.RegionTagFile:
		// File-region frees only become effective at the next Reclaim, so
		// a reader still holding a prior root that names this offset keeps
		// translating it correctly until the caller decides no such reader
		// remains, matching memdb.ArenaMemory's pendingFree/Reclaim
		// contract.
		if _, ok := s.fileSize[offset]; !ok {
			return dmerrors.CorruptState("diskmem: free: file offset %d not allocated", offset)
		}
		s.pendingFree = append(s.pendingFree, offset)
		return nil
	default:
		return dmerrors.CorruptState("diskmem: free on null or unrecognized handle")
	}
}

// Flush persists every staged file region to the backing file, seeds
// the clean cache with what it just wrote so an immediately-following
// Translate doesn't force a ReadAt, and clears the staging map. It does
// not touch scratch regions: scratch is always in-memory-only.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for offset, buf := range s.dirty {
		if _, err := s.backing.WriteAt(buf, int64(offset)); err != nil {
			return dmerrors.CorruptState("diskmem: write backing file at %d: %v", offset, err)
		}
		s.clean.Set(cacheKey(offset), buf)
		s.hot.Add(offset, buf)
		delete(s.dirty, offset)
	}
	return s.backing.Sync()
}

// Reclaim actually deletes every file region queued by Free since the
// last Reclaim, dropping its bookkeeping and evicting it from both
// caches. It is expected to be called once a new root has been
// published (i.e. once no reader can possibly still traverse the old
// root); calling it before publishing would violate version isolation.
func (s *Store) Reclaim() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, offset := range s.pendingFree {
		if _, ok := s.fileSize[offset]; !ok {
			continue
		}
		delete(s.dirty, offset)
		delete(s.fileSize, offset)
		s.hot.Remove(offset)
		s.clean.Del(cacheKey(offset))
		dmmetrics.FreeFileMeter.Mark(1)
		n++
	}
	s.pendingFree = s.pendingFree[:0]
	return n
}

// PendingFrees reports how many file regions are queued for the next
// Reclaim, for tests and diagnostics.
func (s *Store) PendingFrees() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pendingFree)
}
