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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbrt/chopstm/internal/occ"
)

// register is a tiny in-memory Shared used across this package's tests;
// same shape as occ's own test register, duplicated here since occ's is
// unexported to its package.
type register struct {
	mu     sync.Mutex
	values map[int]int
}

func newRegister() *register {
	return &register{values: make(map[int]int)}
}

func (r *register) Get(key int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.values[key]
}

func (r *register) key(it *occ.Item) int { return it.Key().Value().(int) }

func (r *register) Lock(*occ.Item)          {}
func (r *register) Unlock(*occ.Item)        {}
func (r *register) Cleanup(*occ.Item, bool) {}

func (r *register) Check(it *occ.Item, _ *occ.Txn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return it.ReadValue() == r.values[r.key(it)]
}

func (r *register) Install(it *occ.Item) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[r.key(it)] = it.WriteValue().(int)
}

func newTestCoordinator(threads, ranks int) *Coordinator {
	return NewCoordinator(threads, ranks, nil)
}

func TestSingleThreadSinglePiece(t *testing.T) {
	coord := newTestCoordinator(2, 4)
	r := newRegister()

	w := NewWorker(coord, 0, occ.New(nil))
	w.StartTxn()
	w.StartPiece(0)
	w.occTxn.Item(r, 1).AddWrite(1)
	w.occTxn.Item(r, 2).AddWrite(2)
	require.True(t, w.TryCommitPiece())
	w.EndTxn()

	assert.Equal(t, 1, r.Get(1))
}

func TestTwoThreadsDisjointKeysSameRank(t *testing.T) {
	coord := newTestCoordinator(2, 4)
	r := newRegister()

	var wg sync.WaitGroup
	run := func(thread, key, value int) {
		defer wg.Done()
		w := NewWorker(coord, thread, occ.New(nil))
		w.StartTxn()
		w.StartPiece(0)
		w.occTxn.Item(r, key).AddWrite(value)
		require.True(t, w.TryCommitPiece())
		w.EndTxn()
		assert.Empty(t, w.info.forwardDeps)
		assert.Empty(t, w.info.backwardDeps)
	}

	wg.Add(2)
	go run(0, 10, 1)
	go run(1, 20, 2)
	wg.Wait()

	assert.Equal(t, 1, r.Get(10))
	assert.Equal(t, 2, r.Get(20))
}

func TestTwoThreadsConflictingWriteWriteSameRank(t *testing.T) {
	coord := newTestCoordinator(2, 4)
	r := newRegister()

	// T1 publishes first, deterministically, by committing its piece
	// before T2 even starts. T2 must then discover the overlap and wait
	// for T1 to finish before EndTxn returns.
	w1 := NewWorker(coord, 0, occ.New(nil))
	w1.StartTxn()
	w1.StartPiece(0)
	w1.occTxn.Item(r, 1).AddWrite(100)
	require.True(t, w1.TryCommitPiece())

	w2 := NewWorker(coord, 1, occ.New(nil))
	w2.StartTxn()
	w2.StartPiece(0)
	w2.occTxn.Item(r, 1).AddWrite(200)
	require.True(t, w2.TryCommitPiece())

	require.Len(t, w2.info.forwardDeps, 1)
	require.Len(t, w1.info.backwardDeps, 1)

	done := make(chan struct{})
	go func() {
		w2.EndTxn()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("EndTxn must block on the unresolved forward dependency")
	case <-time.After(20 * time.Millisecond):
	}

	w1.EndTxn()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("EndTxn should have unblocked once the dependency's owner advanced generation")
	}

	assert.Equal(t, 200, r.Get(1))
}

func TestCascadeAbort(t *testing.T) {
	coord := newTestCoordinator(2, 4)
	r := newRegister()

	w1 := NewWorker(coord, 0, occ.New(nil))
	w1.StartTxn()
	w1.StartPiece(0)
	w1.occTxn.Item(r, 1).AddWrite(1)
	require.True(t, w1.TryCommitPiece())

	w2 := NewWorker(coord, 1, occ.New(nil))
	w2.StartTxn()
	w2.StartPiece(0)
	w2.occTxn.ReadItem(r, 1).AddRead(1)
	require.True(t, w2.TryCommitPiece())
	require.Len(t, w2.info.forwardDeps, 1)

	// T1's second piece fails OCC validation (a stale read stamp on an
	// unrelated key), which aborts T1's whole transaction and must
	// cascade to T2 via the dependency just recorded.
	w1.StartPiece(1)
	w1.occTxn.ReadItem(r, 999).AddRead(42) // register holds 0 for key 999.
	require.False(t, w1.TryCommitPiece())

	assert.True(t, w2.info.ShouldAbort(), "T2 must observe the cascaded abort")
	assert.PanicsWithValue(t, ErrAbort, func() {
		w2.EndTxn()
	})
}

func TestStaleDependencyIsDropped(t *testing.T) {
	coord := newTestCoordinator(2, 4)
	r := newRegister()

	w1 := NewWorker(coord, 0, occ.New(nil))
	w1.StartTxn()
	w1.StartPiece(0)
	w1.occTxn.Item(r, 1).AddWrite(1)
	require.True(t, w1.TryCommitPiece())

	w2 := NewWorker(coord, 1, occ.New(nil))
	w2.StartTxn()
	w2.StartPiece(0)
	w2.occTxn.ReadItem(r, 1).AddRead(1)
	require.True(t, w2.TryCommitPiece())
	require.Len(t, w2.info.forwardDeps, 1)

	// T1 commits and starts its next generation before T2 reaches EndTxn.
	w1.EndTxn()
	gen1 := w1.info.Generation()

	w2.EndTxn() // must not block: the dependency is now stale.
	assert.NotEqual(t, gen1, uint64(0))
}

func TestStartPieceNonMonotonicRankIsContractViolation(t *testing.T) {
	coord := newTestCoordinator(1, 4)
	w := NewWorker(coord, 0, occ.New(nil))
	w.StartTxn()
	w.StartPiece(1)
	require.True(t, w.TryCommitPiece())

	assert.Panics(t, func() {
		w.StartPiece(1)
	})
}
