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

package recordref

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coredao-org/directmap/bucket"
	"github.com/coredao-org/directmap/directmap"
	"github.com/coredao-org/directmap/diskmem"
	"github.com/coredao-org/directmap/memdb"
)

func TestCodecRoundTrip(t *testing.T) {
	want := &Entry{TableID: 7, RowOffset: 0xdeadbeef, Generation: 3, RefCount: 9}
	buf := make([]byte, Codec{}.PayloadSize())
	Codec{}.Encode(buf, want)
	got := Codec{}.Decode(buf)
	assert.Equal(t, want, got)
}

func TestPackedCountersRoundTrip(t *testing.T) {
	e := Entry{Generation: 0xAABBCCDD, RefCount: 0x11223344}
	gen, ref := unpackCounters(e.PackedCounters())
	assert.Equal(t, e.Generation, gen)
	assert.Equal(t, e.RefCount, ref)
}

func TestHooksBumpAndReleaseRefTable(t *testing.T) {
	store := diskmem.New(diskmem.NewMemFile(), diskmem.DefaultConfig())
	e := &Entry{TableID: 1, RowOffset: 100, Generation: 1}

	e.OnCopiedToFile(store)
	assert.Equal(t, uint32(1), e.RefCount)
	e.OnCopiedToFile(store)
	assert.Equal(t, uint32(2), e.RefCount)

	e.OnCopiedFromFile(store)
	assert.Equal(t, uint32(1), e.RefCount)
}

func TestHooksAreNoopWithoutRefTableSideChannel(t *testing.T) {
	// A Memory with no RefTableHolder side-channel leaves the hooks inert.
	mem := noSideChannelMemory{}
	e := &Entry{TableID: 1, RowOffset: 1}
	e.OnCopiedToFile(mem)
	assert.Equal(t, uint32(0), e.RefCount)
}

// TestEndToEndThroughDiskmemStore exercises recordref.Entry as the
// TEntry of a real directmap.Map backed by diskmem.Store, tying the
// demo entry, the direct map core and the disk-backed Memory substrate
// together: insert, commit (which fires OnCopiedToFile), flush to the
// backing file, and read back.
func TestEndToEndThroughDiskmemStore(t *testing.T) {
	store := diskmem.New(diskmem.NewMemFile(), diskmem.DefaultConfig())
	m := directmap.New[*Entry](Codec{}, directmap.DefaultConfig(16))

	key, err := m.Insert(store)
	require.NoError(t, err)
	ref, err := m.GetRef(store, key)
	require.NoError(t, err)
	ref.Set(&Entry{TableID: 3, RowOffset: 0x77, Generation: 1})

	require.NoError(t, m.Commit(store))
	require.NoError(t, store.Flush())

	got, err := m.Get(store, key)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), got.TableID)
	assert.Equal(t, uint64(0x77), got.RowOffset)
	// Commit drove OnCopiedToFile, bumping the refcount once.
	assert.Equal(t, uint32(1), got.RefCount)
}

// noSideChannelMemory satisfies memdb.Memory but not
// diskmem.RefTableHolder, so Entry's hooks must treat it as a no-op.
type noSideChannelMemory struct{}

func (noSideChannelMemory) AllocScratch(int) (memdb.RefAny, error) { return memdb.RefAny{}, nil }
func (noSideChannelMemory) AllocFile(int) (memdb.RefAny, error)    { return memdb.RefAny{}, nil }
func (noSideChannelMemory) Translate(memdb.RefAny) ([]byte, error) { return nil, nil }
func (noSideChannelMemory) IsWritable(memdb.RefAny) bool           { return false }
func (noSideChannelMemory) IsNull(ref memdb.RefAny) bool           { return ref.IsNull() }
func (noSideChannelMemory) Free(memdb.RefAny, int) error           { return nil }

var _ bucket.Entry = (*Entry)(nil)
var _ memdb.Memory = noSideChannelMemory{}
