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

package chopstm

import "github.com/mbrt/chopstm/internal/occ"

// Stats is a read-only, point-in-time snapshot of the engine's
// observability counters, summed across every worker.
type Stats struct {
	TotalStarts      uint64
	TotalAborts      uint64
	CommitTimeAborts uint64
	MaxItemSetSize   uint64
	TotalReads       uint64
	TotalWrites      uint64
	TotalSearched    uint64
	TotalItems       uint64
	GlobalEpoch      uint64
}

// Stats aggregates every worker's occ.Counters into a single snapshot, plus
// the reclaimer's current global epoch. Mirrors mbrt-glassdb's stats.go
// Sub/add accumulation pattern, here folded into occ.Snapshot.Add.
func (e *Engine) Stats() Stats {
	var total occ.Snapshot
	for _, c := range e.counters {
		total = total.Add(c.Snapshot())
	}
	return Stats{
		TotalStarts:      total.TotalStarts,
		TotalAborts:      total.TotalAborts,
		CommitTimeAborts: total.CommitTimeAborts,
		MaxItemSetSize:   total.MaxItemSetSize,
		TotalReads:       total.TotalReads,
		TotalWrites:      total.TotalWrites,
		TotalSearched:    total.TotalSearched,
		TotalItems:       total.TotalItems,
		GlobalEpoch:      e.reclaimer.GlobalEpoch(),
	}
}
