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

package bucket

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coredao-org/directmap/memdb"
)

// u64Entry is a trivial Entry used only by these tests: a uint64 value
// plus hook-call counters (16 payload bytes in all), so tests can
// assert the lifecycle hooks actually fired.
type u64Entry struct {
	val           uint64
	toFileCalls   int
	fromFileCalls int
}

func (e *u64Entry) OnCopiedToFile(memdb.Memory)   { e.toFileCalls++ }
func (e *u64Entry) OnCopiedFromFile(memdb.Memory) { e.fromFileCalls++ }

// u64Codec encodes u64Entry as val(8) + toFileCalls(4) + fromFileCalls(4),
// so the hook counters survive round trips for assertions.
type u64Codec struct{}

func (u64Codec) PayloadSize() int { return 16 }

func (u64Codec) Encode(dst []byte, v *u64Entry) {
	binary.LittleEndian.PutUint64(dst[0:], v.val)
	binary.LittleEndian.PutUint32(dst[8:], uint32(v.toFileCalls))
	binary.LittleEndian.PutUint32(dst[12:], uint32(v.fromFileCalls))
}

func (u64Codec) Decode(src []byte) *u64Entry {
	return &u64Entry{
		val:           binary.LittleEndian.Uint64(src[0:]),
		toFileCalls:   int(binary.LittleEndian.Uint32(src[8:])),
		fromFileCalls: int(binary.LittleEndian.Uint32(src[12:])),
	}
}

func newTestLeaf() Leaf[*u64Entry] {
	return Leaf[*u64Entry]{Codec: u64Codec{}}
}

// insertKeys grows and inserts each key in order into a brand-new
// leaf, returning the final leaf handle.
func insertKeys(t *testing.T, mem memdb.Memory, l Leaf[*u64Entry], keys []uint64) memdb.RefAny {
	t.Helper()
	ref, err := l.New(mem)
	require.NoError(t, err)
	for i, key := range keys {
		ref, err = l.Grow(mem, ref)
		require.NoError(t, err)
		buf, err := mem.Translate(ref)
		require.NoError(t, err)
		idx := l.InsertAt(buf, key)
		l.Put(buf, idx, &u64Entry{val: uint64(i)})
	}
	return ref
}

func TestFindAbsentOnEmptyLeaf(t *testing.T) {
	mem := memdb.NewArena(0, 0)
	l := newTestLeaf()
	ref, err := l.New(mem)
	require.NoError(t, err)
	buf, err := mem.Translate(ref)
	require.NoError(t, err)

	_, ok := l.Find(buf, 0x42)
	assert.False(t, ok)
	assert.True(t, l.IsEmptyAt(buf, 0x42))
}

// TestGrowPreservesOrdering is S5: after inserting keys whose low
// bytes are 0x11, 0x22, 0x33, entries[0..3] and the condenser must
// match exactly.
func TestGrowPreservesOrdering(t *testing.T) {
	mem := memdb.NewArena(0, 0)
	l := newTestLeaf()
	keys := []uint64{0x11, 0x22, 0x33}
	ref := insertKeys(t, mem, l, keys)

	buf, err := mem.Translate(ref)
	require.NoError(t, err)
	require.Equal(t, 3, NumEntries(buf))

	for i, key := range keys {
		assert.Equal(t, key, keyAt(buf, i, l.Codec.PayloadSize()))
		assert.Equal(t, i+1, condenserAt(buf, byte(key)))
	}
	for b := 0; b < 256; b++ {
		switch byte(b) {
		case 0x11, 0x22, 0x33:
		default:
			assert.Equal(t, 0, condenserAt(buf, byte(b)), "byte %#x", b)
		}
	}
}

// TestBucketCollisionRetry is S3: 0x100 and 0x200 share low byte 0x00.
// Once 0x100 occupies that bucket, a later candidate with the same
// low byte must observe IsEmptyAt == false and be discarded by the
// caller's retry loop.
func TestBucketCollisionRetry(t *testing.T) {
	mem := memdb.NewArena(0, 0)
	l := newTestLeaf()

	ref, err := l.New(mem)
	require.NoError(t, err)
	buf, err := mem.Translate(ref)
	require.NoError(t, err)
	assert.True(t, l.IsEmptyAt(buf, 0x100))

	ref, err = l.Grow(mem, ref)
	require.NoError(t, err)
	buf, err = mem.Translate(ref)
	require.NoError(t, err)
	idx := l.InsertAt(buf, 0x100)
	l.Put(buf, idx, &u64Entry{val: 1})

	// 0x200 shares low byte 0x00 with 0x100: bucket is occupied.
	assert.False(t, l.IsEmptyAt(buf, 0x200))
	// The exact key 0x100 is still found directly, not treated as empty.
	assert.False(t, l.IsEmptyAt(buf, 0x100))
	foundIdx, ok := l.Find(buf, 0x100)
	require.True(t, ok)
	assert.Equal(t, idx, foundIdx)
}

func TestGrowInvokesOnCopiedFromFile(t *testing.T) {
	mem := memdb.NewArena(0, 0)
	l := newTestLeaf()
	ref := insertKeys(t, mem, l, []uint64{0x01})

	// Commit to file, then grow again: every existing payload must see
	// OnCopiedFromFile exactly once.
	ref, err := l.Commit(mem, ref)
	require.NoError(t, err)
	ref, err = l.Grow(mem, ref)
	require.NoError(t, err)

	buf, err := mem.Translate(ref)
	require.NoError(t, err)
	got := l.Get(buf, 0)
	assert.Equal(t, 1, got.fromFileCalls)
}

func TestCommitIsNoopOnAlreadyFileResidentLeaf(t *testing.T) {
	mem := memdb.NewArena(0, 0)
	l := newTestLeaf()
	ref := insertKeys(t, mem, l, []uint64{0x01})

	committed, err := l.Commit(mem, ref)
	require.NoError(t, err)
	again, err := l.Commit(mem, committed)
	require.NoError(t, err)
	assert.Equal(t, committed, again)
}

// TestCondenserConsistency is property 5: for every leaf, for every
// byte b, either condenser[b] == 0 or entries[condenser[b]-1].key&0xFF
// == b.
func TestCondenserConsistency(t *testing.T) {
	mem := memdb.NewArena(0, 0)
	l := newTestLeaf()
	keys := []uint64{0x0AB1, 0x0CD2, 0x0EF3}
	ref := insertKeys(t, mem, l, keys)
	buf, err := mem.Translate(ref)
	require.NoError(t, err)

	for b := 0; b < 256; b++ {
		slot := condenserAt(buf, byte(b))
		if slot == 0 {
			continue
		}
		key := keyAt(buf, slot-1, l.Codec.PayloadSize())
		assert.Equal(t, byte(b), byte(key), "condenser byte %#x", b)
	}
}

// TestMarshalRoundTripAtSizeBoundaries is property 9: the packed
// header, condenser and entry bytes round-trip exactly through
// Grow/InsertAt/Put/Get at 0, 1, 128 and 255 entries.
func TestMarshalRoundTripAtSizeBoundaries(t *testing.T) {
	for _, n := range []int{0, 1, 128, 255} {
		mem := memdb.NewArena(0, 0)
		l := newTestLeaf()
		keys := make([]uint64, n)
		for i := 0; i < n; i++ {
			keys[i] = uint64(i) // distinct low bytes, 0..254
		}
		ref := insertKeys(t, mem, l, keys)
		buf, err := mem.Translate(ref)
		require.NoError(t, err)
		require.Equal(t, n, NumEntries(buf))
		require.Equal(t, l.Size(n), len(buf))

		for i, key := range keys {
			idx, ok := l.Find(buf, key)
			require.True(t, ok, "n=%d key=%#x", n, key)
			assert.Equal(t, i, idx)
			assert.Equal(t, uint64(i), l.Get(buf, idx).val)
		}
	}
}

func TestGrowRejectsOverCapacity(t *testing.T) {
	mem := memdb.NewArena(0, 0)
	l := newTestLeaf()
	ref, err := l.New(mem)
	require.NoError(t, err)

	// Fabricate a leaf claiming MaxEntries already, to exercise the cap
	// without actually inserting 255 real entries.
	sz := l.Size(MaxEntries)
	ref, err = mem.AllocScratch(sz)
	require.NoError(t, err)
	buf, err := mem.Translate(ref)
	require.NoError(t, err)
	setNumEntries(buf, MaxEntries)

	_, err = l.Grow(mem, ref)
	assert.Error(t, err)
}
