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

// Memory is the substrate every other component in this module allocates
// and translates handles through. A region is either scratch (mutable,
// short-lived, process-local) or file (immutable once reachable from a
// committed root).
//
// Implementations must guarantee:
//   - any Translate result is invalidated by the next AllocScratch or
//     AllocFile call that succeeds; callers must re-translate afterwards.
//   - Free on a scratch region reclaims immediately; Free on a file
//     region only becomes effective at the implementation's own commit
//     boundary (the core never observes this directly).
//   - IsWritable(null) is false.
type Memory interface {
	// AllocScratch reserves a writable region of the given size.
	AllocScratch(size int) (RefAny, error)

	// AllocFile reserves a region of the given size recorded in the
	// persistent file. Used exclusively by commit paths.
	AllocFile(size int) (RefAny, error)

	// Translate returns a byte window over the region named by ref. The
	// slice has exactly the length the region was allocated with. Scratch
	// windows may be written freely; a file region's window is written
	// only by the commit path, to fill a region it has just obtained from
	// AllocFile. The window is only valid until the next successful
	// Alloc* call.
	Translate(ref RefAny) ([]byte, error)

	// IsWritable reports whether ref names a scratch region.
	IsWritable(ref RefAny) bool

	// IsNull reports whether ref is the null handle.
	IsNull(ref RefAny) bool

	// Free releases the region named by ref, which must have been
	// allocated with the given size.
	Free(ref RefAny, size int) error
}
