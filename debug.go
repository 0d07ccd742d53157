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

import (
	"net/http"

	"github.com/mbrt/chopstm/debug"
)

// RankSnapshot walks the rank table and summarizes every currently
// published piece, for the debug package's /ranks endpoint.
func (e *Engine) RankSnapshot() []debug.RankEntry {
	var out []debug.RankEntry
	for rank, threads := range e.coord.Ranks().Snapshot() {
		for thread, p := range threads {
			if p == nil {
				continue
			}
			out = append(out, debug.RankEntry{
				Rank:    uint32(rank),
				Thread:  thread,
				Aborted: p.Aborted(),
			})
		}
	}
	return out
}

// debugAdapter bridges Engine's chopstm-shaped Stats into the debug
// package's standalone Stats/RankEntry types, which don't import the root
// package to avoid an import cycle.
type debugAdapter struct{ e *Engine }

func (a debugAdapter) Stats() debug.Stats {
	s := a.e.Stats()
	return debug.Stats{
		TotalStarts:      s.TotalStarts,
		TotalAborts:      s.TotalAborts,
		CommitTimeAborts: s.CommitTimeAborts,
		MaxItemSetSize:   s.MaxItemSetSize,
		TotalReads:       s.TotalReads,
		TotalWrites:      s.TotalWrites,
		TotalSearched:    s.TotalSearched,
		TotalItems:       s.TotalItems,
		GlobalEpoch:      s.GlobalEpoch,
	}
}

func (a debugAdapter) RankSnapshot() []debug.RankEntry { return a.e.RankSnapshot() }

// DebugHandler returns an http.Handler serving GET /stats and GET /ranks
// for this engine, ready to mount on any http.ServeMux/mux.Router.
func (e *Engine) DebugHandler() http.Handler {
	return debug.NewServer(debugAdapter{e}, debugAdapter{e}).Handler()
}
