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

package diskmem

import "sync"

// RefTable is the side-channel demo entry types reach through a Memory
// implementation's hooks to bump or inspect an out-of-band refcount,
// mirroring the back-reference bookkeeping spec.md's entry lifecycle
// hooks are documented to perform ("Both are permitted to perform
// further allocation via the substrate"). It is keyed by whatever a
// caller's Entry considers its row identity (recordref XORs RowOffset
// with TableID<<40 and Generation<<8); this package assigns no meaning
// to the key.
type RefTable struct {
	mu     sync.Mutex
	counts map[uint64]uint32
}

// NewRefTable returns an empty ref-count table.
func NewRefTable() *RefTable {
	return &RefTable{counts: make(map[uint64]uint32)}
}

// Bump increments key's refcount and returns the new value.
func (t *RefTable) Bump(key uint64) uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts[key]++
	return t.counts[key]
}

// Release decrements key's refcount, floored at zero, and returns the
// new value.
func (t *RefTable) Release(key uint64) uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.counts[key] > 0 {
		t.counts[key]--
	}
	return t.counts[key]
}

// Count returns key's current refcount.
func (t *RefTable) Count(key uint64) uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[key]
}

// RefTableHolder is implemented by any Memory that exposes a RefTable
// side-channel. recordref.Entry's hooks type-assert their mem argument
// against this interface to reach the table; a Memory that doesn't
// implement it (e.g. a bare memdb.ArenaMemory used outside the
// recordref demo) simply leaves the hooks as no-ops.
type RefTableHolder interface {
	RefTable() *RefTable
}
