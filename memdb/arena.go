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

package memdb

import (
	"sync"

	"github.com/coredao-org/directmap/dmerrors"
	"github.com/coredao-org/directmap/dmmetrics"
)

// ArenaMemory is the pure in-process Memory implementation: both scratch
// and file regions live in ordinary Go byte slices. It is the default
// substrate for unit tests and for embedders with no durability
// requirement, the Go analogue of the source's "arena is the Memory,
// Ref<T> is a typed index into it" design (spec.md §9).
//
// File-region frees are deferred to a pending list and only reclaimed
// when Reclaim is called, matching the contract that a file region's
// free only becomes effective at the next commit boundary (spec.md
// §4.1).
type ArenaMemory struct {
	mu sync.RWMutex

	scratch     map[uint32][]byte
	file        map[uint32][]byte
	nextScratch uint32
	nextFile    uint32

	pendingFree []RefAny

	scratchBudget int // <=0 means unbounded
	fileBudget    int

	scratchUsed int
	fileUsed    int

	allocCount int
}

// NewArena builds an ArenaMemory. A non-positive budget means
// "unbounded"; a positive one makes the corresponding AllocScratch or
// AllocFile fail with dmerrors.OutOfSpace once exceeded, letting tests
// exercise the "allocation failure aborts the transaction" contract
// (spec.md §4.5).
func NewArena(scratchBudget, fileBudget int) *ArenaMemory {
	return &ArenaMemory{
		scratch:       make(map[uint32][]byte),
		file:          make(map[uint32][]byte),
		nextScratch:   1,
		nextFile:      1,
		scratchBudget: scratchBudget,
		fileBudget:    fileBudget,
	}
}

func (a *ArenaMemory) AllocScratch(size int) (RefAny, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.scratchBudget > 0 && a.scratchUsed+size > a.scratchBudget {
		return RefAny{}, dmerrors.OutOfSpace(size, false)
	}
	off := a.nextScratch
	a.nextScratch++
	a.scratch[off] = make([]byte, size)
	a.scratchUsed += size
	a.allocCount++
	dmmetrics.AllocScratchMeter.Mark(1)
	return newRefAny(regionScratch, off), nil
}

func (a *ArenaMemory) AllocFile(size int) (RefAny, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.fileBudget > 0 && a.fileUsed+size > a.fileBudget {
		return RefAny{}, dmerrors.OutOfSpace(size, true)
	}
	off := a.nextFile
	a.nextFile++
	a.file[off] = make([]byte, size)
	a.fileUsed += size
	a.allocCount++
	dmmetrics.AllocFileMeter.Mark(1)
	return newRefAny(regionFile, off), nil
}

func (a *ArenaMemory) Translate(ref RefAny) ([]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	switch ref.region {
	case regionScratch:
		buf, ok := a.scratch[ref.offset]
		if !ok {
			return nil, dmerrors.CorruptState("translate: scratch offset %d not allocated", ref.offset)
		}
		return buf, nil
	case regionFile:
		buf, ok := a.file[ref.offset]
		if !ok {
			return nil, dmerrors.CorruptState("translate: file offset %d not allocated", ref.offset)
		}
		return buf, nil
	default:
		return nil, dmerrors.CorruptState("translate: null handle")
	}
}

func (a *ArenaMemory) IsWritable(ref RefAny) bool {
	return ref.region == regionScratch
}

func (a *ArenaMemory) IsNull(ref RefAny) bool {
	return ref.IsNull()
}

func (a *ArenaMemory) Free(ref RefAny, size int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch ref.region {
	case regionScratch:
		if _, ok := a.scratch[ref.offset]; !ok {
			return dmerrors.CorruptState("free: scratch offset %d not allocated", ref.offset)
		}
		delete(a.scratch, ref.offset)
		a.scratchUsed -= size
		dmmetrics.FreeScratchMeter.Mark(1)
		return nil
	case regionFile:
		if _, ok := a.file[ref.offset]; !ok {
			return dmerrors.CorruptState("free: file offset %d not allocated", ref.offset)
		}
		a.pendingFree = append(a.pendingFree, ref)
		return nil
	default:
		return dmerrors.CorruptState("free: null handle")
	}
}

// Reclaim actually deletes every file region queued by Free since the
// last Reclaim, and is expected to be called once a new root has been
// published (i.e. once no reader can possibly still traverse the old
// root). Calling it before publishing would violate version isolation.
func (a *ArenaMemory) Reclaim() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := 0
	for _, ref := range a.pendingFree {
		if buf, ok := a.file[ref.offset]; ok {
			a.fileUsed -= len(buf)
			delete(a.file, ref.offset)
			dmmetrics.FreeFileMeter.Mark(1)
			n++
		}
	}
	a.pendingFree = a.pendingFree[:0]
	return n
}

// PendingFrees reports how many file regions are queued for the next
// Reclaim, for tests and diagnostics.
func (a *ArenaMemory) PendingFrees() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.pendingFree)
}

// AllocCount reports the total number of successful AllocScratch and
// AllocFile calls made against a since its creation, for tests that
// assert on the number of nodes a CoW operation touches.
func (a *ArenaMemory) AllocCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.allocCount
}
