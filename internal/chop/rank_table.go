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

package chop

import "sync"

// rankSlot is one rank's row of the rank table: a lock serializing
// same-rank commit-time work across threads, and a slot per thread
// holding that thread's most recent piece at this rank.
type rankSlot struct {
	mu     sync.Mutex
	pieces []*Piece // indexed by thread/worker id
}

// RankTable is RankSlot[rank][thread] from spec.md §3/§4.5: a fixed array,
// one row per rank, each row a fixed array of per-thread piece references
// protected by that row's lock.
type RankTable struct {
	ranks []rankSlot
}

// NewRankTable allocates a table with numRanks rows, each sized for
// numThreads workers. Sized at construction, not grown lazily.
func NewRankTable(numRanks, numThreads int) *RankTable {
	rt := &RankTable{ranks: make([]rankSlot, numRanks)}
	for i := range rt.ranks {
		rt.ranks[i].pieces = make([]*Piece, numThreads)
	}
	return rt
}

// Lock acquires rank's lock. The caller must call Unlock.
func (rt *RankTable) Lock(rank uint32) {
	rt.ranks[rank].mu.Lock()
}

// Unlock releases rank's lock.
func (rt *RankTable) Unlock(rank uint32) {
	rt.ranks[rank].mu.Unlock()
}

// Get returns the piece thread last published at rank, or nil. Must be
// called with rank's lock held.
func (rt *RankTable) Get(rank uint32, thread int) *Piece {
	return rt.ranks[rank].pieces[thread]
}

// Set publishes piece as thread's most recent piece at rank. Must be
// called with rank's lock held.
func (rt *RankTable) Set(rank uint32, thread int, piece *Piece) {
	rt.ranks[rank].pieces[thread] = piece
}

// Clear removes thread's entry at rank. Must be called with rank's lock
// held.
func (rt *RankTable) Clear(rank uint32, thread int) {
	rt.ranks[rank].pieces[thread] = nil
}

// NumRanks returns the table's configured rank capacity.
func (rt *RankTable) NumRanks() int { return len(rt.ranks) }

// Snapshot returns, for every rank, the set of (thread, piece) entries
// currently published. Intended for the debug package; takes every rank
// lock in turn, never more than one at a time.
func (rt *RankTable) Snapshot() [][]*Piece {
	out := make([][]*Piece, len(rt.ranks))
	for r := range rt.ranks {
		rt.ranks[r].mu.Lock()
		out[r] = append([]*Piece(nil), rt.ranks[r].pieces...)
		rt.ranks[r].mu.Unlock()
	}
	return out
}
