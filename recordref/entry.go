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

// Package recordref is the demonstration TEntry instantiation used to
// exercise directmap.Map end to end: a fixed-size opaque handle to a row
// in some external table, the shape spec.md §1 describes as the core's
// external collaborator. It is test/demo scaffolding, not a core module
// — directmap stays generic over TEntry via Go generics.
package recordref

import (
	"encoding/binary"

	"github.com/holiman/uint256"

	"github.com/coredao-org/directmap/diskmem"
	"github.com/coredao-org/directmap/memdb"
)

// Entry is an opaque row handle: which table, which row, which
// generation of that row, and how many live references point at it.
type Entry struct {
	TableID    uint32
	RowOffset  uint64
	Generation uint32
	RefCount   uint32
}

// key folds TableID, RowOffset and Generation into the single uint64
// identity the diskmem.RefTable side-channel is keyed by.
func (e Entry) key() uint64 {
	return e.RowOffset ^ (uint64(e.TableID) << 40) ^ (uint64(e.Generation) << 8)
}

// pack merges Generation and RefCount into a single 256-bit
// accumulator, matching eth/feemarket/storage.go's use of uint256 for
// packed on-chain-style counters. The persistent wire format (Codec,
// below) does not use this encoding — it is a demonstration of the
// packing idiom, exercised by PackedCounters and its round-trip test.
func (e Entry) pack() *uint256.Int {
	v := new(uint256.Int).SetUint64(uint64(e.Generation))
	v.Lsh(v, 32)
	v.Or(v, new(uint256.Int).SetUint64(uint64(e.RefCount)))
	return v
}

// unpackCounters is pack's inverse.
func unpackCounters(v *uint256.Int) (generation, refCount uint32) {
	refCount = uint32(v.Uint64())
	generation = uint32(new(uint256.Int).Rsh(v, 32).Uint64())
	return generation, refCount
}

// PackedCounters returns e.Generation and e.RefCount folded into a
// single uint256, for embedders that want a single comparable/sortable
// value across both counters.
func (e Entry) PackedCounters() *uint256.Int {
	return e.pack()
}

// OnCopiedToFile bumps the row's refcount in the diskmem.RefTable
// reached through mem, if mem exposes one (spec.md's entry lifecycle
// hooks are documented to perform exactly this kind of back-reference
// bump on commit). A mem with no RefTable side-channel (e.g. a bare
// memdb.ArenaMemory used outside the recordref demo) leaves this a
// no-op.
func (e *Entry) OnCopiedToFile(mem memdb.Memory) {
	if rt, ok := mem.(diskmem.RefTableHolder); ok {
		e.RefCount = rt.RefTable().Bump(e.key())
	}
}

// OnCopiedFromFile releases one reference on the row, the mirror image
// of OnCopiedToFile, invoked whenever a leaf holding this entry is
// grown into a new scratch leaf (whether the old leaf was file-resident
// or scratch).
func (e *Entry) OnCopiedFromFile(mem memdb.Memory) {
	if rt, ok := mem.(diskmem.RefTableHolder); ok {
		e.RefCount = rt.RefTable().Release(e.key())
	}
}

// Codec is the bucket.Codec[*Entry] implementation for the packed,
// little-endian on-disk layout spec.md §6 mandates: TableID(4) |
// RowOffset(8) | Generation(4) | RefCount(4), 20 bytes fixed.
type Codec struct{}

// PayloadSize implements bucket.Codec.
func (Codec) PayloadSize() int { return 20 }

// Encode implements bucket.Codec.
func (Codec) Encode(dst []byte, v *Entry) {
	binary.LittleEndian.PutUint32(dst[0:], v.TableID)
	binary.LittleEndian.PutUint64(dst[4:], v.RowOffset)
	binary.LittleEndian.PutUint32(dst[12:], v.Generation)
	binary.LittleEndian.PutUint32(dst[16:], v.RefCount)
}

// Decode implements bucket.Codec.
func (Codec) Decode(src []byte) *Entry {
	return &Entry{
		TableID:    binary.LittleEndian.Uint32(src[0:]),
		RowOffset:  binary.LittleEndian.Uint64(src[4:]),
		Generation: binary.LittleEndian.Uint32(src[12:]),
		RefCount:   binary.LittleEndian.Uint32(src[16:]),
	}
}
