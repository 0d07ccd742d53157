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

// demo runs a handful of concurrent chopped transactions against an
// in-memory set of bank accounts, then prints the final balances and the
// engine's observability counters.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/mbrt/chopstm"
	"github.com/mbrt/chopstm/internal/concurr"
	"github.com/mbrt/chopstm/internal/occ"
)

// account is a minimal occ.Shared: a single mutex-protected int balance.
type account struct {
	mu      sync.Mutex
	balance int
}

func (a *account) Get() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.balance
}

func (a *account) Lock(*occ.Item)   { a.mu.Lock() }
func (a *account) Unlock(*occ.Item) { a.mu.Unlock() }

func (a *account) Check(it *occ.Item, _ *occ.Txn) bool {
	return it.ReadValue() == a.balance
}

func (a *account) Install(it *occ.Item) {
	a.balance = it.WriteValue().(int)
}

func (a *account) Cleanup(*occ.Item, bool) {}

// transfer moves amount from `from` to `to` as a single OCC transaction
// through w, retrying on conflict via Engine.Retry.
func transfer(ctx context.Context, e *chopstm.Engine, w *chopstm.Worker, from, to *account, amount int) error {
	return e.Retry(ctx, func() error {
		txn := w.Transaction()
		txn.Reset()
		fromBal := from.Get()
		toBal := to.Get()
		txn.ReadItem(from, 0).AddRead(fromBal)
		txn.ReadItem(to, 0).AddRead(toBal)
		txn.Item(from, 0).AddWrite(fromBal - amount)
		txn.Item(to, 0).AddWrite(toBal + amount)
		return txn.TryCommit()
	})
}

const (
	numWorkers   = 8
	numTransfers = 50
)

// job is one transfer request; jobs are distributed over a fixed pool of
// worker goroutines, each of which owns exactly one chopstm.Worker for its
// whole lifetime (Workers are not safe for concurrent use).
type job struct {
	idx      int
	from, to *account
	amount   int
}

func run() error {
	ctx := context.Background()
	opts := chopstm.DefaultOptions()
	opts.MaxThreads = numWorkers
	e := chopstm.NewEngine(opts)
	defer e.Close()

	alice := &account{balance: 100}
	bob := &account{balance: 100}

	// The job queue is unbounded: the producer below never blocks on the
	// pool draining it, however far numTransfers is scaled up.
	jobsOut, jobsIn := concurr.MakeChanInfCap[job](numWorkers)
	for i := 0; i < numTransfers; i++ {
		from, to, amount := alice, bob, 1
		if i%2 == 0 {
			from, to = bob, alice
		}
		jobsIn <- job{idx: i, from: from, to: to, amount: amount}
	}
	close(jobsIn)

	var wg sync.WaitGroup
	for id := 0; id < numWorkers; id++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			w := e.Worker(id)
			for j := range jobsOut {
				if err := transfer(ctx, e, w, j.from, j.to, j.amount); err != nil {
					log.Printf("transfer %d failed: %v", j.idx, err)
				}
			}
		}(id)
	}
	wg.Wait()

	fmt.Printf("alice=%d bob=%d\n", alice.Get(), bob.Get())
	s := e.Stats()
	fmt.Printf("starts=%d aborts=%d commit_time_aborts=%d\n",
		s.TotalStarts, s.TotalAborts, s.CommitTimeAborts)
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}
