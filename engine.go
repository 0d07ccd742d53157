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
	"context"
	"fmt"

	"github.com/mbrt/chopstm/internal/chop"
	"github.com/mbrt/chopstm/internal/concurr"
	"github.com/mbrt/chopstm/internal/epoch"
	"github.com/mbrt/chopstm/internal/occ"
)

// Engine is the process-wide chopstm singleton: the fixed-size worker table,
// the chopping coordinator, and the epoch reclaimer, all sized once at
// construction per spec.md §9 "Global mutable arrays" (no init-on-first-use,
// no lazy growth of MaxThreads/MaxRanks).
type Engine struct {
	opts      Options
	coord     *chop.Coordinator
	reclaimer *epoch.Reclaimer
	counters  []*occ.Counters
	bg        *concurr.Background
	log       Logger
	trace     Tracer
}

// NewEngine builds an Engine from opts, filling in any zero-valued field
// from DefaultOptions, and starts the epoch reclaimer's background ticker.
// Callers must call Close when done to stop that goroutine.
func NewEngine(opts Options) *Engine {
	opts = fillDefaults(opts)

	reclaimer := epoch.New(opts.MaxThreads)
	counters := make([]*occ.Counters, opts.MaxThreads)
	for i := range counters {
		counters[i] = &occ.Counters{}
	}

	e := &Engine{
		opts:      opts,
		coord:     chop.NewCoordinator(opts.MaxThreads, opts.MaxRanks, reclaimer),
		reclaimer: reclaimer,
		counters:  counters,
		bg:        concurr.NewBackground(),
		log:       newSlogLogger(opts.Logger),
		trace:     newSlogLogger(opts.Logger),
	}
	reclaimer.RunBackground(context.Background(), e.bg, opts.Clock, opts.EpochTick)
	e.log.Logf("chopstm: engine started, %d workers, %d ranks", opts.MaxThreads, opts.MaxRanks)
	return e
}

func fillDefaults(opts Options) Options {
	def := DefaultOptions()
	if opts.Clock == nil {
		opts.Clock = def.Clock
	}
	if opts.Logger == nil {
		opts.Logger = def.Logger
	}
	if opts.MaxThreads <= 0 {
		opts.MaxThreads = def.MaxThreads
	}
	if opts.MaxRanks <= 0 {
		opts.MaxRanks = def.MaxRanks
	}
	if opts.InitItemSetCap <= 0 {
		opts.InitItemSetCap = def.InitItemSetCap
	}
	if opts.EpochTick <= 0 {
		opts.EpochTick = def.EpochTick
	}
	if opts.ReclaimLag <= 0 {
		opts.ReclaimLag = def.ReclaimLag
	}
	return opts
}

// Close stops the epoch reclaimer's background ticker and waits for it to
// exit. The Engine must not be used afterward.
func (e *Engine) Close() {
	e.bg.Close()
	e.log.Logf("chopstm: engine stopped")
}

// Worker binds a Worker handle to the stable thread id, id, in
// [0, opts.MaxThreads). Distinct goroutines must use distinct ids; a given
// id's Worker is reused across every transaction that thread runs, the
// idiomatic-Go substitute for the C++ thread-local Transaction::threadid.
func (e *Engine) Worker(id int) *Worker {
	if id < 0 || id >= len(e.counters) {
		panic(ContractViolation{Msg: fmt.Sprintf("worker id %d out of range [0, %d)", id, len(e.counters))})
	}
	occTxn := occ.NewWithItemCap(e.counters[id], e.opts.InitItemSetCap)
	e.trace.Tracef("chopstm: worker %d bound", id)
	return &Worker{
		id:     id,
		occTxn: occTxn,
		chop:   chop.NewWorker(e.coord, id, occTxn),
	}
}
