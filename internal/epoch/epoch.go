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

// Package epoch implements deferred memory reclamation for the chopstm
// engine: a global epoch counter and, per worker, a queue of callbacks that
// run only once no concurrent reader can still hold a stale reference.
package epoch

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mbrt/chopstm/internal/concurr"
	"github.com/mbrt/chopstm/internal/trace"
)

// lag is how many epochs behind the quiescent minimum a callback must be
// before it is safe to run. Two epochs match the original acquire/release
// fence pairing: a worker that observed epoch g when entering a piece may
// still be dereferencing memory freed at g, so reclamation must wait for
// the minimum active epoch to reach at least g+2.
const lag = 2

type callback struct {
	epoch uint64
	fn    func()
}

// workerSlot is one worker's epoch-observation cell and deferred-free queue.
// Aligned to its own cache line in the original; Go gives no portable way to
// request that, so slots are simply stored by value in a slice indexed by
// worker id, which already avoids false sharing across allocations of
// unrelated objects.
type workerSlot struct {
	// epoch is the worker's last-observed global epoch, or 0 if the worker
	// is not currently inside a piece.
	epoch atomic.Uint64
	// spinLock guards callbacks. A CAS spinlock rather than sync.Mutex,
	// mirroring Transaction::acquire_spinlock/release_spinlock: the
	// critical section is a handful of instructions and always short.
	spinLock atomic.Uint32
	callbacks []callback
}

func (w *workerSlot) lock() {
	for {
		if w.spinLock.CompareAndSwap(0, 1) {
			return
		}
	}
}

func (w *workerSlot) unlock() {
	w.spinLock.Store(0)
}

// Reclaimer advances a global epoch and runs deferred-free callbacks once
// they are old enough that no worker can still be observing the epoch they
// were scheduled under.
type Reclaimer struct {
	globalEpoch atomic.Uint64
	workers     []workerSlot
	fanout      concurr.Fanout
}

// New creates a Reclaimer sized for numWorkers worker slots, numbered
// 0..numWorkers-1. Sized at construction, per the "global mutable arrays"
// design note: no lazy growth, no init-on-first-use.
func New(numWorkers int) *Reclaimer {
	r := &Reclaimer{
		workers: make([]workerSlot, numWorkers),
		fanout:  concurr.NewFanout(numWorkers),
	}
	// Start at 1: a worker's epoch cell uses 0 for "not active", so a
	// worker entering at the very first epoch must not record 0.
	r.globalEpoch.Store(1)
	return r
}

// Enter records that worker is about to start observing shared state at the
// current global epoch. Must be paired with Exit. Mirrors the original's
// Transaction constructor setting tinfo[threadid].epoch; chop.Worker calls
// this from StartTxn.
func (r *Reclaimer) Enter(worker int) {
	r.workers[worker].epoch.Store(r.globalEpoch.Load())
}

// Exit records that worker is no longer observing any shared state, making
// it ineligible to block reclamation. Mirrors the original's Transaction
// destructor clearing tinfo[threadid].epoch back to 0; chop.Worker calls
// this from EndTxn and AbortTxn.
func (r *Reclaimer) Exit(worker int) {
	r.workers[worker].epoch.Store(0)
}

// ScheduleFree enqueues fn to run once the current global epoch is
// quiescent. The caller must not dereference whatever fn closes over after
// this call returns.
func (r *Reclaimer) ScheduleFree(worker int, fn func()) {
	w := &r.workers[worker]
	e := r.globalEpoch.Load()
	w.lock()
	w.callbacks = append(w.callbacks, callback{epoch: e, fn: fn})
	w.unlock()
}

// Tick advances the global epoch to one past the minimum epoch observed by
// any active worker, then runs every callback scheduled at least lag epochs
// before the new epoch. Each worker's sweep is independent, so they fan out
// concurrently.
//
// Tick stops waiting on the sweep once ctx is done (RunBackground bounds
// every tick by the tick interval), even though the sweep goroutines
// themselves keep running to completion in the background: there is no way
// to forcibly interrupt a worker mid-sweep, only to stop blocking the
// caller on one that is taking unexpectedly long.
func (r *Reclaimer) Tick(ctx context.Context) {
	defer trace.StartRegion(ctx, "epoch-tick").End()

	g := r.globalEpoch.Load()
	for i := range r.workers {
		if e := r.workers[i].epoch.Load(); e != 0 && e < g {
			g = e
		}
	}
	g++
	r.globalEpoch.Store(g)

	// Fan-out errors are impossible here (sweepWorker never returns an
	// error); Wait() is only used to block until every worker is swept.
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.fanout.Spawn(ctx, len(r.workers), func(_ context.Context, i int) error {
			r.sweepWorker(i, g)
			return nil
		}).Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (r *Reclaimer) sweepWorker(i int, g uint64) {
	w := &r.workers[i]
	w.lock()
	defer w.unlock()

	// Callbacks are appended in ascending epoch order, so the first one
	// that is too recent means every later one is too.
	cut := 0
	for ; cut < len(w.callbacks); cut++ {
		if w.callbacks[cut].epoch > g-lag {
			break
		}
		w.callbacks[cut].fn()
	}
	if cut > 0 {
		w.callbacks = w.callbacks[:copy(w.callbacks, w.callbacks[cut:])]
	}
}

// RunBackground starts a periodic ticker that calls Tick every interval,
// stopping when bg is closed. It replaces the original's dedicated
// usleep-driven thread with a clock-driven goroutine so tests can advance
// epochs deterministically with a simulated clock instead of sleeping.
func (r *Reclaimer) RunBackground(ctx context.Context, bg *concurr.Background, clock clockwork.Clock, interval time.Duration) {
	bg.Go(ctx, func(ctx context.Context) {
		ticker := clock.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				// Bound each tick by the tick interval itself: the fan-out
				// sweep over every worker should finish well within one
				// interval, and a tick stuck past that (e.g. a spinlock held
				// unexpectedly long) must not wedge the ticker loop forever.
				tickCtx, cancel := concurr.ContextWithTimeout(ctx, clock, interval)
				r.Tick(tickCtx)
				cancel()
			}
		}
	})
}

// GlobalEpoch returns the current global epoch, mainly for tests and
// debug introspection.
func (r *Reclaimer) GlobalEpoch() uint64 {
	return r.globalEpoch.Load()
}
