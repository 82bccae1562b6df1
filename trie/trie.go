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

// Package trie implements the 256-ary copy-on-write radix trie that
// routes a uint64 index down to the bucket leaf holding its entry. It
// is type-erased: the trie never interprets leaf bytes, only the
// opaque memdb.RefAny handles to them, and delegates leaf persistence
// to a caller-supplied LeafCommitter at commit time.
package trie

import (
	"github.com/coredao-org/directmap/dmmetrics"
	"github.com/coredao-org/directmap/memdb"
)

// nodeSize is the byte footprint of one interior node: 256 packed
// RefAny child slots.
const nodeSize = 256 * memdb.RefAnySize

// Top is the root descriptor of a trie: the index mask derived from
// its capacity, the configured depth and the handle to the top-level
// node (or, when Levels == 1, directly to the sole leaf).
type Top struct {
	Mask     uint64
	Count    uint64
	Levels   uint8
	TopLevel memdb.RefAny
}

// LeafCommitter lets the trie hand a leaf handle off to whatever
// understands its payload (bucket.Leaf[T]) without the trie itself
// needing a type parameter.
type LeafCommitter interface {
	Commit(mem memdb.Memory, leaf memdb.RefAny) (memdb.RefAny, error)
}

// Init derives mask and depth from capacity: the smallest power of two
// no smaller than 16 that covers capacity, split into at most 8
// one-byte levels (spec.md §2, "Radix Trie").
func Init(capacity uint64) *Top {
	bits := 4
	for (uint64(1) << uint(bits)) < capacity {
		bits++
	}
	return &Top{
		Mask:   (uint64(1) << uint(bits)) - 1,
		Count:  0,
		Levels: uint8(1 + (bits-1)/8),
	}
}

// Lookup returns the leaf handle routed to by index, or the null
// handle if no leaf has ever been written along that path.
func (t *Top) Lookup(mem memdb.Memory, index uint64) (memdb.RefAny, error) {
	ref := t.TopLevel
	masked := index & t.Mask
	shift := int(t.Levels-1) * 8
	for levels := int(t.Levels); levels > 1; levels-- {
		if mem.IsNull(ref) {
			return memdb.RefAny{}, nil
		}
		buf, err := mem.Translate(ref)
		if err != nil {
			return memdb.RefAny{}, err
		}
		c := byte(masked >> uint(shift))
		off := int(c) * memdb.RefAnySize
		ref = memdb.ParseRefAny(buf[off : off+memdb.RefAnySize])
		shift -= 8
	}
	return ref, nil
}

// CowPath copy-on-writes every interior node on the path from the top
// to the leaf's parent, then stores leaf in the (now-writable) parent
// slot for index. The caller must already have produced leaf itself
// in scratch; CowPath never touches the leaf's own contents, only the
// pointer to it, mirroring the source's "leaf and top are CoW'd by the
// caller, only the path in between is this routine's job."
func (t *Top) CowPath(mem memdb.Memory, index uint64, leaf memdb.RefAny) error {
	if t.Levels == 1 {
		t.TopLevel = leaf
		return nil
	}

	masked := index & t.Mask
	shift := int(t.Levels-1) * 8
	ref := t.TopLevel
	// writeBack stores a (possibly CoW'd) node handle into whichever slot
	// currently points at ref: the top for the first hop, or the parent
	// node's child slot for every hop after.
	writeBack := func(r memdb.RefAny) error {
		t.TopLevel = r
		return nil
	}

	for levels := int(t.Levels); levels > 1; levels-- {
		if !mem.IsWritable(ref) {
			oldRef := ref
			newRef, err := mem.AllocScratch(nodeSize)
			if err != nil {
				return err
			}
			if !mem.IsNull(oldRef) {
				// Growing an existing path: clone the old node's children.
				oldBuf, err := mem.Translate(oldRef)
				if err != nil {
					return err
				}
				newBuf, err := mem.Translate(newRef)
				if err != nil {
					return err
				}
				copy(newBuf, oldBuf)
				if err := mem.Free(oldRef, nodeSize); err != nil {
					return err
				}
			}
			// else: first write down this path, node starts all-null children.
			if err := writeBack(newRef); err != nil {
				return err
			}
			ref = newRef
			dmmetrics.CowNodeMeter.Mark(1)
		}

		buf, err := mem.Translate(ref)
		if err != nil {
			return err
		}
		c := byte(masked >> uint(shift))
		off := int(c) * memdb.RefAnySize

		if levels == 2 {
			// ref is the leaf's parent: store leaf directly, don't descend.
			b := leaf.Bytes()
			copy(buf[off:off+memdb.RefAnySize], b[:])
			return nil
		}

		nodeRef, slotOff := ref, off
		writeBack = func(r memdb.RefAny) error {
			b, err := mem.Translate(nodeRef)
			if err != nil {
				return err
			}
			enc := r.Bytes()
			copy(b[slotOff:slotOff+memdb.RefAnySize], enc[:])
			return nil
		}

		child := memdb.ParseRefAny(buf[off : off+memdb.RefAnySize])
		ref = child
		shift -= 8
	}
	return nil
}

// Commit walks the trie, copying every scratch node (interior or leaf)
// into the file region and freeing its scratch original, the inverse
// of the CoW walk CowPath performs. Nodes already in the file region
// are left untouched and shared as-is, giving the "structural sharing
// across commits" property (spec.md §4.4, property 3).
func (t *Top) Commit(mem memdb.Memory, lc LeafCommitter) error {
	newTop, err := dispatchCommit(mem, t.TopLevel, int(t.Levels), lc)
	if err != nil {
		return err
	}
	t.TopLevel = newTop
	return nil
}

func dispatchCommit(mem memdb.Memory, ref memdb.RefAny, levels int, lc LeafCommitter) (memdb.RefAny, error) {
	if mem.IsNull(ref) {
		return ref, nil
	}
	if levels == 1 {
		return lc.Commit(mem, ref)
	}
	return commitNode(mem, ref, levels, lc)
}

func commitNode(mem memdb.Memory, ref memdb.RefAny, levels int, lc LeafCommitter) (memdb.RefAny, error) {
	if !mem.IsWritable(ref) {
		return ref, nil
	}
	buf, err := mem.Translate(ref)
	if err != nil {
		return memdb.RefAny{}, err
	}
	children := make([]memdb.RefAny, 256)
	for i := 0; i < 256; i++ {
		off := i * memdb.RefAnySize
		children[i] = memdb.ParseRefAny(buf[off : off+memdb.RefAnySize])
	}

	newChildren := make([]memdb.RefAny, 256)
	for i, child := range children {
		nc, err := dispatchCommit(mem, child, levels-1, lc)
		if err != nil {
			return memdb.RefAny{}, err
		}
		newChildren[i] = nc
	}

	newRef, err := mem.AllocFile(nodeSize)
	if err != nil {
		return memdb.RefAny{}, err
	}
	newBuf, err := mem.Translate(newRef)
	if err != nil {
		return memdb.RefAny{}, err
	}
	for i, nc := range newChildren {
		enc := nc.Bytes()
		off := i * memdb.RefAnySize
		copy(newBuf[off:off+memdb.RefAnySize], enc[:])
	}

	if err := mem.Free(ref, nodeSize); err != nil {
		return memdb.RefAny{}, err
	}
	dmmetrics.CowNodeMeter.Mark(1)
	return newRef, nil
}

// Free releases every interior node of the trie. Leaves must already
// have been released by the caller (the direct map owns leaf
// lifetime); Free only tears down the scaffolding above them.
func (t *Top) Free(mem memdb.Memory) error {
	if t.Levels > 1 {
		if err := freeInterior(mem, t.TopLevel, int(t.Levels)); err != nil {
			return err
		}
	}
	t.TopLevel = memdb.RefAny{}
	return nil
}

func freeInterior(mem memdb.Memory, ref memdb.RefAny, levels int) error {
	if mem.IsNull(ref) {
		return nil
	}
	if levels > 2 {
		buf, err := mem.Translate(ref)
		if err != nil {
			return err
		}
		children := make([]memdb.RefAny, 256)
		for i := 0; i < 256; i++ {
			off := i * memdb.RefAnySize
			children[i] = memdb.ParseRefAny(buf[off : off+memdb.RefAnySize])
		}
		for _, c := range children {
			if err := freeInterior(mem, c, levels-1); err != nil {
				return err
			}
		}
	}
	return mem.Free(ref, nodeSize)
}
