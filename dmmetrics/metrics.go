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

// Package dmmetrics registers the counters the direct map core updates
// inline at every allocation, CoW and commit, in the naming and
// call-site style of triedb/pathdb's dirtyNodeHitMeter family.
package dmmetrics

import "github.com/rcrowley/go-metrics"

var (
	AllocScratchMeter = metrics.NewRegisteredMeter("dm/alloc/scratch", nil)
	AllocFileMeter    = metrics.NewRegisteredMeter("dm/alloc/file", nil)
	FreeScratchMeter  = metrics.NewRegisteredMeter("dm/free/scratch", nil)
	FreeFileMeter     = metrics.NewRegisteredMeter("dm/free/file", nil)

	CowNodeMeter      = metrics.NewRegisteredMeter("dm/cow/nodes", nil)
	LeafGrowMeter     = metrics.NewRegisteredMeter("dm/bucket/grow", nil)
	BucketCollision   = metrics.NewRegisteredMeter("dm/bucket/collision", nil)
	InsertRetryMeter  = metrics.NewRegisteredMeter("dm/insert/retry", nil)

	CommitTimer = metrics.NewRegisteredTimer("dm/commit/time", nil)
	LookupTimer = metrics.NewRegisteredTimer("dm/lookup/time", nil)

	CleanCacheHitMeter  = metrics.NewRegisteredMeter("dm/cache/clean/hit", nil)
	CleanCacheMissMeter = metrics.NewRegisteredMeter("dm/cache/clean/miss", nil)
)
