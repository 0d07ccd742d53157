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

// dep is one entry of a forward or backward dependency list: a reference
// to another transaction's long-lived TxnInfo, plus the generation that
// was current on it when the dependency was recorded. A mismatch between
// dep.generation and other.generation means the dependency has gone stale
// (the other transaction moved on) and must be discarded without waiting.
type dep struct {
	other      *TxnInfo
	generation uint64
}

// TxnInfo is the long-lived per-worker chop state: one instance exists for
// the lifetime of a worker and is reused, generation by generation, across
// every transaction that worker runs.
//
// Unlike spec.md's source of truth (cooperative sched_yield spinning),
// waiting here is implemented with a condition variable broadcast on every
// generation bump, per the "Spinning waits" redesign note: this removes
// yield latency and makes the predicate re-check prompt without changing
// any observable happens-before relationship.
type TxnInfo struct {
	mu   sync.Mutex
	cond *sync.Cond

	pieces      []*Piece
	activePiece *Piece
	generation  uint64
	shouldAbort bool

	forwardDeps  []dep
	backwardDeps []dep
}

func newTxnInfo() *TxnInfo {
	t := &TxnInfo{}
	t.cond = sync.NewCond(&t.mu)
	return t
}

// Generation returns the transaction's current generation number.
func (t *TxnInfo) Generation() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.generation
}

// ActivePieceRank returns the rank of the transaction's active piece and
// true, or (0, false) if it has none right now.
func (t *TxnInfo) ActivePieceRank() (uint32, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.activePiece == nil {
		return 0, false
	}
	return t.activePiece.Rank, true
}

// setShouldAbort raises the abort signal and broadcasts on t.cond, which
// wakes the transactions waiting on t. It does not wake t itself: if t is
// blocked in waitOneForward, it sleeps on its dependency's cond and sees
// the flag only at that dependency's next broadcast.
func (t *TxnInfo) setShouldAbort() {
	t.mu.Lock()
	t.shouldAbort = true
	t.mu.Unlock()
	t.cond.Broadcast()
}

// abortDependents cascades should_abort to every backward dependency whose
// generation still matches, per spec.md's abort_txn step 2. Must be called
// with t already past its own abort bookkeeping (its pieces already
// marked aborted), but callers must not hold t.mu since it locks each
// dependent's own mutex.
func (t *TxnInfo) abortDependents() {
	t.mu.Lock()
	deps := append([]dep(nil), t.backwardDeps...)
	t.mu.Unlock()

	for _, d := range deps {
		if d.other.txnNumMatches(d.generation) {
			d.other.setShouldAbort()
		}
	}
}

func (t *TxnInfo) txnNumMatches(generation uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.generation == generation
}

// waitForward blocks until every entry of forwardDeps is either stale
// (the referenced transaction moved to a new generation, which drops it
// from consideration) or satisfies done. It returns early with
// shouldAbort=true if this transaction observes its own should_abort flag
// set while waiting.
//
// done is evaluated under the *other* transaction's lock, so it can safely
// read other's activePiece/generation fields.
func (t *TxnInfo) waitForward(done func(other *TxnInfo) bool) (shouldAbort bool) {
	t.mu.Lock()
	deps := t.forwardDeps
	t.mu.Unlock()

	live := make([]dep, 0, len(deps))
	for _, d := range deps {
		if t.waitOneForward(d, done) {
			live = append(live, d)
		}
		if t.ShouldAbort() {
			return true
		}
	}

	t.mu.Lock()
	t.forwardDeps = live
	t.mu.Unlock()
	return false
}

// waitOneForward waits on a single dependency until it is satisfied or
// goes stale, returning whether the dependency is still live (and thus
// belongs back in forwardDeps).
func (t *TxnInfo) waitOneForward(d dep, done func(other *TxnInfo) bool) bool {
	other := d.other
	other.mu.Lock()
	defer other.mu.Unlock()
	for {
		if other.generation != d.generation {
			return false // stale: the other transaction moved on.
		}
		if done(other) {
			return true
		}
		if t.ShouldAbort() {
			return true
		}
		other.cond.Wait()
	}
}

// ShouldAbort reports whether this transaction has been signalled to
// abort, either by a failed OCC validation or a cascaded dependency abort.
func (t *TxnInfo) ShouldAbort() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.shouldAbort
}

// bumpGeneration advances the generation counter and wakes everyone
// waiting on this transaction (both StartPiece/EndTxn waiters elsewhere
// and cond.Wait callers blocked in waitOneForward above).
func (t *TxnInfo) bumpGeneration() {
	t.mu.Lock()
	t.generation++
	t.mu.Unlock()
	t.cond.Broadcast()
}
