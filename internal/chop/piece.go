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

// Package chop implements transaction chopping on top of the occ package:
// a rank-ordered piece scheduler, the cross-transaction dependency graph
// it maintains to preserve a serializable outcome, and the cascading-abort
// protocol that keeps a chopped transaction's pieces consistent.
package chop

import (
	"sync/atomic"

	"github.com/mbrt/chopstm/internal/occ"
)

// Piece is the execution of one chopped fragment of a transaction at a
// specific rank. Immutable after commit except for the aborted flag.
//
// Owner and Generation together let an observer holding a reference to a
// published Piece detect that its owner has moved on (committed or
// aborted and restarted into a new generation) without needing to lock
// the owner first.
type Piece struct {
	Owner      *TxnInfo
	Generation uint64
	Rank       uint32
	aborted    atomic.Bool

	// ReadKeys/WriteKeys are the piece's footprint, captured from the
	// underlying occ.Txn's item set at commit time. Overlap detection
	// compares these by handle (pointer) identity.
	ReadKeys  []*occ.Handle
	WriteKeys []*occ.Handle

	reads, writes bloomFilter
}

func newPiece(owner *TxnInfo, generation uint64, rank uint32) *Piece {
	return &Piece{Owner: owner, Generation: generation, Rank: rank}
}

func (p *Piece) setFootprint(reads, writes []*occ.Handle) {
	p.ReadKeys = reads
	p.WriteKeys = writes
	for _, k := range reads {
		p.reads.add(k)
	}
	for _, k := range writes {
		p.writes.add(k)
	}
}

// Aborted reports whether the piece's owner transaction has been aborted.
func (p *Piece) Aborted() bool { return p.aborted.Load() }

func (p *Piece) setAborted() { p.aborted.Store(true) }

// overlaps reports whether p and q share a key across the read-write,
// write-write, and write-read directions.
//
// The Bloom filter is a fast-reject accelerator only: it never produces a
// false negative, so a "maybe" always falls through to the exact scan
// (required by spec: "correctness requires no false negatives").
func overlaps(p, q *Piece) bool {
	for _, k := range q.ReadKeys { // read(q)-write(p)
		if p.writes.mayContain(k) && containsKey(p.WriteKeys, k) {
			return true
		}
	}
	for _, k := range q.WriteKeys { // write(q)-write(p)
		if p.writes.mayContain(k) && containsKey(p.WriteKeys, k) {
			return true
		}
	}
	for _, k := range q.WriteKeys { // write(q)-read(p)
		if p.reads.mayContain(k) && containsKey(p.ReadKeys, k) {
			return true
		}
	}
	return false
}

func containsKey(keys []*occ.Handle, k *occ.Handle) bool {
	for _, existing := range keys {
		if existing == k {
			return true
		}
	}
	return false
}
