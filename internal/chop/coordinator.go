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

import (
	"context"

	"github.com/mbrt/chopstm/internal/epoch"
	"github.com/mbrt/chopstm/internal/occ"
	"github.com/mbrt/chopstm/internal/trace"
)

// Coordinator is the process-wide chopping state: the fixed per-thread
// TxnInfo table and the rank table, both sized at construction per
// spec.md §9's "Global mutable arrays" design note (no lazy
// construction-at-first-use).
type Coordinator struct {
	txns      []*TxnInfo
	ranks     *RankTable
	reclaimer *epoch.Reclaimer
}

// NewCoordinator builds a Coordinator for numThreads workers and
// numRanks ranks.
func NewCoordinator(numThreads, numRanks int, reclaimer *epoch.Reclaimer) *Coordinator {
	c := &Coordinator{
		txns:      make([]*TxnInfo, numThreads),
		ranks:     NewRankTable(numRanks, numThreads),
		reclaimer: reclaimer,
	}
	for i := range c.txns {
		c.txns[i] = newTxnInfo()
	}
	return c
}

// Ranks exposes the rank table for the debug package's introspection
// endpoints.
func (c *Coordinator) Ranks() *RankTable { return c.ranks }

// Txn returns the thread's long-lived chop state.
func (c *Coordinator) Txn(thread int) *TxnInfo {
	if thread < 0 || thread >= len(c.txns) {
		violate("thread id %d out of range [0, %d)", thread, len(c.txns))
	}
	return c.txns[thread]
}

// Worker is the chopped-transaction API bound to one thread id and one
// underlying occ.Txn: StartTxn, StartPiece, TryCommitPiece, CommitPiece,
// EndTxn, AbortTxn, matching spec.md §6's "Chopped API" exactly.
type Worker struct {
	coord  *Coordinator
	thread int
	info   *TxnInfo
	occTxn *occ.Txn
}

// NewWorker binds a chopped-transaction handle to thread id and the
// underlying OCC transaction occTxn, both of which the caller owns for
// the lifetime of the worker.
func NewWorker(coord *Coordinator, thread int, occTxn *occ.Txn) *Worker {
	return &Worker{
		coord:  coord,
		thread: thread,
		info:   coord.Txn(thread),
		occTxn: occTxn,
	}
}

// Info returns the worker's long-lived TxnInfo, mainly for tests and
// debug introspection.
func (w *Worker) Info() *TxnInfo { return w.info }

// StartTxn begins a fresh OCC transaction inside the worker's chop state,
// marking the worker active in the epoch reclaimer: the idiomatic-Go
// equivalent of the original's Transaction constructor setting
// tinfo[threadid].epoch to the current global epoch. Paired with the
// Exit call at the end of EndTxn/AbortTxn, the equivalent of the
// destructor clearing it back to 0.
func (w *Worker) StartTxn() {
	w.occTxn.Reset()
	if w.coord.reclaimer != nil {
		w.coord.reclaimer.Enter(w.thread)
	}
}

// StartPiece begins a new piece at rank, enforcing that rank is strictly
// greater than the previous piece's rank. It waits for forward dependencies
// to clear the rank *before* taking the rank lock for rank, matching
// ChoppedTransaction::start_piece's actual order rather than the
// spec's "lock first, then wait" text: lock-first deadlocks whenever two
// threads target the same rank and each is the other's forward dependency
// at that rank, since the lock holder then blocks on a predicate
// (activePiece.Rank > rank) that can only become true by the very thread
// stuck waiting on the lock it holds. Waiting first and taking the rank
// lock only once every forward dependency has already moved past rank
// avoids that: nothing here is held while blocked on another thread.
//
// If a cascaded abort is observed while waiting, AbortTxn runs and this
// call panics with ErrAbort via abortAndPanic so the caller's transaction
// body unwinds to its retry point without a manual error check at every
// call site; EndTxn uses the same convention, while CommitPiece reports a
// failed commit as an ErrAbort return value. Callers using the OCC-only
// API don't go through this path at all.
func (w *Worker) StartPiece(rank uint32) {
	defer trace.StartRegion(context.Background(), "chop-start-piece").End()

	w.info.mu.Lock()
	if len(w.info.pieces) > 0 {
		last := w.info.pieces[len(w.info.pieces)-1]
		if rank <= last.Rank {
			w.info.mu.Unlock()
			violate("rank %d is not strictly greater than previous piece rank %d", rank, last.Rank)
		}
	}
	gen := w.info.generation
	piece := newPiece(w.info, gen, rank)
	w.info.activePiece = piece
	w.info.pieces = append(w.info.pieces, piece)
	w.info.mu.Unlock()

	shouldAbort := w.info.waitForward(func(other *TxnInfo) bool {
		return other.activePiece == nil || other.activePiece.Rank > rank
	})
	if shouldAbort || w.info.ShouldAbort() {
		w.AbortTxn()
		panic(ErrAbort)
	}

	w.coord.ranks.Lock(rank)
}

// TryCommitPiece runs the OCC commit pipeline over the active piece's
// portion of the item set, discovers new dependencies against every other
// thread's most recently published piece at this rank, and publishes the
// active piece to the rank table. Returns false (without panicking) on
// OCC validation failure, leaving the caller free to decide how to react;
// CommitPiece reports the same failure as an ErrAbort error.
func (w *Worker) TryCommitPiece() bool {
	defer trace.StartRegion(context.Background(), "chop-commit-piece").End()

	piece := w.info.activePiece
	if piece == nil {
		violate("TryCommitPiece with no active piece")
	}
	rank := piece.Rank

	reads, writes := footprint(w.occTxn)
	err := w.occTxn.TryCommit()
	if err != nil {
		w.coord.ranks.Unlock(rank)
		w.AbortTxn()
		return false
	}
	piece.setFootprint(reads, writes)

	for thread := range w.coord.ranks.ranks[rank].pieces {
		other := w.coord.ranks.Get(rank, thread)
		if other == nil || other.Owner == w.info {
			continue
		}
		w.checkDependency(other, piece)
	}

	w.coord.ranks.Set(rank, w.thread, piece)
	w.coord.ranks.Unlock(rank)
	return true
}

// checkDependency implements the per-slot step of try_commit_piece: lock
// the other piece's owner, re-check its generation, and on overlap record
// a forward/backward dependency pair under the other owner's lock.
func (w *Worker) checkDependency(other *Piece, mine *Piece) {
	owner := other.Owner
	owner.mu.Lock()
	defer owner.mu.Unlock()

	if owner.generation != other.Generation {
		// The other transaction moved on: either it committed (no
		// dependency needed) or it aborted while its dead piece was
		// still published (conservatively abort this transaction,
		// since we might have observed part of its footprint).
		if other.Aborted() {
			w.info.setShouldAbort()
		}
		return
	}

	// Both appends happen under owner.mu alone, mirroring
	// ChoppedTransaction::try_commit_piece: the backward dependency on
	// owner and the forward dependency on our own info are pushed while
	// holding the single lock abortDependents also takes to snapshot
	// backwardDeps, so a concurrent abort on owner cannot cascade before
	// our backward dep is visible to it. w.info.forwardDeps needs no lock
	// of its own here: it is only ever read or written by the goroutine
	// driving this Worker.
	if overlaps(other, mine) {
		owner.backwardDeps = append(owner.backwardDeps, dep{other: w.info, generation: w.info.generation})
		w.info.forwardDeps = append(w.info.forwardDeps, dep{other: owner, generation: other.Generation})
	}
}

// footprint extracts the read-key and write-key handles of occTxn's
// current item set, the bridge spec.md §4.7 calls the "piece commit
// bridge".
func footprint(t *occ.Txn) (reads, writes []*occ.Handle) {
	for _, it := range t.Items() {
		if it.HasRead() {
			reads = append(reads, it.Key())
		}
		if it.HasWrite() {
			writes = append(writes, it.Key())
		}
	}
	return reads, writes
}

// CommitPiece is TryCommitPiece with the abort surfaced as ErrAbort
// instead of a boolean, matching spec.md §6's "commit_piece() (throws/
// returns error on failure)".
func (w *Worker) CommitPiece() error {
	if !w.TryCommitPiece() {
		return ErrAbort
	}
	return nil
}

// EndTxn waits for every still-valid forward dependency to finish, then
// either runs the abort protocol (if a cascaded abort was observed) or
// commits: bumps the generation, clears dependency lists and rank-slot
// entries, schedules the transaction's pieces for epoch-deferred
// reclamation, and marks the worker inactive in the epoch reclaimer.
func (w *Worker) EndTxn() {
	shouldAbort := w.info.waitForward(func(other *TxnInfo) bool {
		return other.activePiece == nil
	})
	if shouldAbort || w.info.ShouldAbort() {
		w.AbortTxn()
		panic(ErrAbort)
	}

	w.info.mu.Lock()
	pieces := w.info.pieces
	w.info.pieces = nil
	w.info.activePiece = nil
	w.info.forwardDeps = nil
	w.info.backwardDeps = nil
	w.info.mu.Unlock()
	w.info.bumpGeneration()

	w.releasePieces(pieces)
	if w.coord.reclaimer != nil {
		w.coord.reclaimer.Exit(w.thread)
	}
}

// AbortTxn marks every piece aborted, cascades should_abort to every
// still-live backward dependency, then runs the same cleanup EndTxn does
// on success: bump generation, release rank-slot entries, defer-free
// pieces, and mark the worker inactive in the epoch reclaimer (the
// destructor side of the Enter/Exit pair StartTxn/EndTxn open and close).
func (w *Worker) AbortTxn() {
	w.occTxn.Abort()

	w.info.mu.Lock()
	pieces := w.info.pieces
	w.info.pieces = nil
	w.info.activePiece = nil
	w.info.mu.Unlock()

	for _, p := range pieces {
		p.setAborted()
	}
	w.info.abortDependents()

	w.info.mu.Lock()
	w.info.forwardDeps = nil
	w.info.backwardDeps = nil
	w.info.shouldAbort = false
	w.info.mu.Unlock()
	w.info.bumpGeneration()

	w.releasePieces(pieces)
	if w.coord.reclaimer != nil {
		w.coord.reclaimer.Exit(w.thread)
	}
}

// releasePieces clears each piece's rank-slot entry and defer-frees the
// piece itself through the epoch reclaimer.
func (w *Worker) releasePieces(pieces []*Piece) {
	for _, p := range pieces {
		w.coord.ranks.Lock(p.Rank)
		if w.coord.ranks.Get(p.Rank, w.thread) == p {
			w.coord.ranks.Clear(p.Rank, w.thread)
		}
		w.coord.ranks.Unlock(p.Rank)

		if w.coord.reclaimer != nil {
			p := p
			w.coord.reclaimer.ScheduleFree(w.thread, func() { _ = p })
		}
	}
}
