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
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestFuzzChoppedWorkloadMatchesSerialReplay runs many threads, each
// driving a long series of chopped transactions (rank boundary every
// opsPerPiece operations) against a shared register table, retrying on
// any abort. It then replays the exact op lists of every transaction
// that committed, single-threaded and in the order each one finished,
// against a fresh register table, and checks the two final states
// agree. A correct chopping protocol guarantees every committed
// transaction observed a state consistent with some serialization of
// the committed set, so this order (the order EndTxn returned in) is
// one such valid serialization.
func TestFuzzChoppedWorkloadMatchesSerialReplay(t *testing.T) {
	// Scaled down from 1000 transactions x 200 ops to keep this test's
	// wall-clock time reasonable; the shape (threads, chop granularity,
	// retry-on-abort, serial-replay cross-check) is what matters here.
	const (
		numThreads       = 15
		numTxnsPerThread = 20
		opsPerTxn        = 40
		opsPerPiece      = 8
		numKeys          = 10
	)

	e := newTestEngine(t, numThreads, opsPerTxn/opsPerPiece+2)
	reg := newRegister()

	var (
		commitOrderMu sync.Mutex
		commitOrder   [][]op
	)

	var wg sync.WaitGroup
	for th := 0; th < numThreads; th++ {
		wg.Add(1)
		go func(th int) {
			defer wg.Done()
			rnd := rand.New(rand.NewSource(int64(th*7919 + 1)))
			w := e.Worker(th)

			for n := 0; n < numTxnsPerThread; n++ {
				ops := genOps(rnd, numKeys, opsPerTxn)
				if runChoppedTxn(e, w, reg, ops, opsPerPiece) {
					commitOrderMu.Lock()
					commitOrder = append(commitOrder, ops)
					commitOrderMu.Unlock()
				}
			}
		}(th)
	}
	wg.Wait()

	replay := newRegister()
	for _, ops := range commitOrder {
		applyOpsSerially(replay, ops)
	}

	for key := 0; key < numKeys; key++ {
		assert.Equal(t, replay.Get(key), reg.Get(key), "key %d diverged from serial replay", key)
	}
}

type opKind int

const (
	opRead opKind = iota
	opWrite
)

type op struct {
	kind opKind
	key  int
	val  int
}

func genOps(rnd *rand.Rand, numKeys, n int) []op {
	ops := make([]op, n)
	for i := range ops {
		key := rnd.Intn(numKeys)
		if rnd.Intn(2) == 0 {
			ops[i] = op{kind: opRead, key: key}
		} else {
			ops[i] = op{kind: opWrite, key: key, val: rnd.Intn(1000)}
		}
	}
	return ops
}

// runChoppedTxn drives w through ops in opsPerPiece-sized pieces, one
// rank per piece, retrying the whole transaction from StartTxn on any
// abort (OCC validation failure or a cascaded abort observed at a
// rendezvous point). Returns true once the transaction commits.
func runChoppedTxn(e *Engine, w *Worker, reg *register, ops []op, opsPerPiece int) bool {
	err := e.Retry(context.Background(), func() (txnErr error) {
		defer func() {
			if r := recover(); r != nil {
				if abortErr, ok := r.(error); ok {
					txnErr = abortErr
					return
				}
				panic(r)
			}
		}()

		w.Chopped().StartTxn()
		var rank uint32
		for i := 0; i < len(ops); i += opsPerPiece {
			w.Chopped().StartPiece(rank)
			rank++

			end := i + opsPerPiece
			if end > len(ops) {
				end = len(ops)
			}
			for _, o := range ops[i:end] {
				applyOp(w, reg, o)
			}
			if !w.Chopped().TryCommitPiece() {
				return ErrAborted
			}
		}
		w.Chopped().EndTxn()
		return nil
	})
	return err == nil
}

func applyOp(w *Worker, reg *register, o op) {
	switch o.kind {
	case opRead:
		w.Transaction().ReadItem(reg, o.key).AddRead(reg.Get(o.key))
	case opWrite:
		w.Transaction().Item(reg, o.key).AddWrite(o.val)
	}
}

func applyOpsSerially(reg *register, ops []op) {
	for _, o := range ops {
		if o.kind == opWrite {
			reg.mu.Lock()
			reg.values[o.key] = o.val
			reg.mu.Unlock()
		}
	}
}
