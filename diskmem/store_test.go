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

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coredao-org/directmap/memdb"
)

func newTestStore() *Store {
	return New(NewMemFile(), Config{CleanCacheSize: 4096, HotCacheSize: 8})
}

func TestScratchAllocTranslateFree(t *testing.T) {
	s := newTestStore()

	ref, err := s.AllocScratch(16)
	require.NoError(t, err)
	assert.True(t, s.IsWritable(ref))

	buf, err := s.Translate(ref)
	require.NoError(t, err)
	buf[0] = 0xAB

	buf2, err := s.Translate(ref)
	require.NoError(t, err)
	assert.Equal(t, byte(0xAB), buf2[0])

	require.NoError(t, s.Free(ref, 16))
	_, err = s.Translate(ref)
	assert.Error(t, err)
}

// TestDiskCacheTransparency is property 8: Translate returns
// bit-identical bytes for a file region whether served from the dirty
// stage, the hot LRU, the fastcache clean cache, or a cold ReadAt
// against the backing file.
func TestDiskCacheTransparency(t *testing.T) {
	s := newTestStore()

	ref, err := s.AllocFile(8)
	require.NoError(t, err)
	buf, err := s.Translate(ref)
	require.NoError(t, err)
	copy(buf, []byte{1, 2, 3, 4, 5, 6, 7, 8})

	// Served from the dirty stage, pre-flush.
	got, err := s.Translate(ref)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, got)

	require.NoError(t, s.Flush())

	// Served from the hot LRU immediately after flush.
	got, err = s.Translate(ref)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, got)

	// Evict from the hot LRU only: served from the fastcache clean cache.
	raw := ref.Bytes()
	offset := uint32(raw[1]) | uint32(raw[2])<<8 | uint32(raw[3])<<16 | uint32(raw[4])<<24
	s.hot.Remove(offset)

	got, err = s.Translate(ref)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, got)

	// Evict from both caches; force a cold ReadAt against the backing
	// file and confirm the bytes are still identical.
	s.hot.Remove(offset)
	s.clean.Del(cacheKey(offset))

	got, err = s.Translate(ref)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, got)
}

// TestFileFreeIsDeferredUntilReclaim is property 3 (version isolation)
// applied to diskmem.Store: a Free'd file region must keep translating
// its old bytes until Reclaim runs, so a reader still holding a prior
// root is unaffected by a writer's CoW.
func TestFileFreeIsDeferredUntilReclaim(t *testing.T) {
	s := newTestStore()

	ref, err := s.AllocFile(4)
	require.NoError(t, err)
	buf, err := s.Translate(ref)
	require.NoError(t, err)
	copy(buf, []byte{9, 9, 9, 9})
	require.NoError(t, s.Flush())

	require.NoError(t, s.Free(ref, 4))
	assert.Equal(t, 1, s.PendingFrees())

	got, err := s.Translate(ref)
	require.NoError(t, err)
	assert.Equal(t, []byte{9, 9, 9, 9}, got)

	assert.Equal(t, 1, s.Reclaim())
	assert.Equal(t, 0, s.PendingFrees())
	_, err = s.Translate(ref)
	assert.Error(t, err)
}

func TestRefTableBumpAndRelease(t *testing.T) {
	s := newTestStore()
	rt := s.RefTable()

	assert.Equal(t, uint32(1), rt.Bump(42))
	assert.Equal(t, uint32(2), rt.Bump(42))
	assert.Equal(t, uint32(1), rt.Release(42))
	assert.Equal(t, uint32(0), rt.Release(42))
	assert.Equal(t, uint32(0), rt.Release(42))
}

var _ memdb.Memory = (*Store)(nil)
var _ RefTableHolder = (*Store)(nil)
