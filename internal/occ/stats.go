// Copyright 2023 The chopstm Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package occ

import "sync/atomic"

// Counters are the per-worker observability counters spec.md §6 calls for:
// total starts, total aborts, commit-time aborts, max item-set size, and
// read/write/search counts. One Counters lives per worker (mirroring
// threadinfo_t's p_ array in the original) and is aggregated by the engine
// into a read-only snapshot.
type Counters struct {
	TotalStarts      atomic.Uint64
	TotalAborts      atomic.Uint64
	CommitTimeAborts atomic.Uint64
	MaxItemSetSize   atomic.Uint64
	TotalReads       atomic.Uint64
	TotalWrites      atomic.Uint64
	TotalSearched    atomic.Uint64
	TotalItems       atomic.Uint64
}

func (c *Counters) maxItemSet(n int) {
	for {
		cur := c.MaxItemSetSize.Load()
		if uint64(n) <= cur {
			return
		}
		if c.MaxItemSetSize.CompareAndSwap(cur, uint64(n)) {
			return
		}
	}
}

// Snapshot is a point-in-time, read-only view of Counters' values.
type Snapshot struct {
	TotalStarts      uint64
	TotalAborts      uint64
	CommitTimeAborts uint64
	MaxItemSetSize   uint64
	TotalReads       uint64
	TotalWrites      uint64
	TotalSearched    uint64
	TotalItems       uint64
}

// Snapshot reads the current counter values.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		TotalStarts:      c.TotalStarts.Load(),
		TotalAborts:      c.TotalAborts.Load(),
		CommitTimeAborts: c.CommitTimeAborts.Load(),
		MaxItemSetSize:   c.MaxItemSetSize.Load(),
		TotalReads:       c.TotalReads.Load(),
		TotalWrites:      c.TotalWrites.Load(),
		TotalSearched:    c.TotalSearched.Load(),
		TotalItems:       c.TotalItems.Load(),
	}
}

// Add merges other into s, field by field.
func (s Snapshot) Add(other Snapshot) Snapshot {
	return Snapshot{
		TotalStarts:      s.TotalStarts + other.TotalStarts,
		TotalAborts:      s.TotalAborts + other.TotalAborts,
		CommitTimeAborts: s.CommitTimeAborts + other.CommitTimeAborts,
		MaxItemSetSize:   max(s.MaxItemSetSize, other.MaxItemSetSize),
		TotalReads:       s.TotalReads + other.TotalReads,
		TotalWrites:      s.TotalWrites + other.TotalWrites,
		TotalSearched:    s.TotalSearched + other.TotalSearched,
		TotalItems:       s.TotalItems + other.TotalItems,
	}
}
