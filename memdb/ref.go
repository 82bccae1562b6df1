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

// Package memdb defines the handle and memory substrate that the radix
// trie, bucket leaf and direct map are built on: an arena-and-index
// abstraction over regions that are either scratch (writable, in-process)
// or file (immutable once committed).
package memdb

import "encoding/binary"

// RefAnySize is the packed, little-endian encoding width of a RefAny:
// one byte of region tag followed by a four-byte offset. Interior trie
// nodes and other structures that embed handles size their records
// against this constant.
const RefAnySize = 5

// region classifies the backing storage a RefAny was allocated from.
type region uint8

const (
	regionNone region = iota
	regionScratch
	regionFile
)

// Region tags as they appear in RefAny.Bytes()[0], exported so an
// out-of-package Memory implementation (diskmem.Store) can branch on
// which region a handle names without reaching into the unexported
// region field.
const (
	RegionTagNull    byte = byte(regionNone)
	RegionTagScratch byte = byte(regionScratch)
	RegionTagFile    byte = byte(regionFile)
)

// RefAny is an opaque, type-erased, copyable handle into a Memory. The
// zero value is the distinguished null handle.
type RefAny struct {
	region region
	offset uint32
}

// IsNull reports whether r is the distinguished null handle.
func (r RefAny) IsNull() bool {
	return r.region == regionNone
}

// newRefAny builds a handle for the given region and offset. It is
// unexported: only a Memory implementation may mint handles.
func newRefAny(reg region, offset uint32) RefAny {
	return RefAny{region: reg, offset: offset}
}

// NewScratchRef mints a RefAny naming a scratch-region allocation at
// offset. Exported for out-of-package Memory implementations (e.g.
// diskmem.Store) that mint their own handles; ArenaMemory uses
// newRefAny directly since it lives in this package.
func NewScratchRef(offset uint32) RefAny {
	return newRefAny(regionScratch, offset)
}

// NewFileRef mints a RefAny naming a file-region allocation at offset.
func NewFileRef(offset uint32) RefAny {
	return newRefAny(regionFile, offset)
}

// Ref is a typed handle identifying an allocation of static type T. It
// carries no runtime information beyond the erased RefAny; the type
// parameter exists purely to keep call sites honest about what a handle
// points at, mirroring the source's Ref<T>/RefAny duality.
type Ref[T any] struct {
	any RefAny
}

// Any erases the static type, yielding the handle the Memory and trie
// layers operate on directly.
func (r Ref[T]) Any() RefAny {
	return r.any
}

// IsNull reports whether r is the distinguished null handle.
func (r Ref[T]) IsNull() bool {
	return r.any.IsNull()
}

// RefFromAny re-types an erased handle as Ref[T] without changing its
// value, the Go equivalent of the source's Ref<T>::as<T>() cast.
func RefFromAny[T any](a RefAny) Ref[T] {
	return Ref[T]{any: a}
}

// Bytes packs r into its on-disk/in-node encoding: a one-byte region tag
// followed by a little-endian four-byte offset. Interior trie nodes
// embed 256 of these back to back as their child table.
func (r RefAny) Bytes() [RefAnySize]byte {
	var b [RefAnySize]byte
	b[0] = byte(r.region)
	binary.LittleEndian.PutUint32(b[1:], r.offset)
	return b
}

// ParseRefAny decodes a RefAny from the front of b, the inverse of
// Bytes. b must have at least RefAnySize bytes.
func ParseRefAny(b []byte) RefAny {
	return RefAny{
		region: region(b[0]),
		offset: binary.LittleEndian.Uint32(b[1:5]),
	}
}
