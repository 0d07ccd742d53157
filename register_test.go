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
	"sync"

	"github.com/mbrt/chopstm/internal/occ"
)

// register is a tiny in-memory Shared implementation used across this
// package's tests: an int-keyed register backed by a plain map, with a
// real per-key lock so TryCommit's Lock/Install/Unlock window (the actual
// cross-transaction mutual exclusion the OCC pipeline relies on) is
// exercised rather than bypassed.
type register struct {
	mu     sync.Mutex
	values map[int]int
	locks  map[int]*sync.Mutex
}

func newRegister() *register {
	return &register{
		values: make(map[int]int),
		locks:  make(map[int]*sync.Mutex),
	}
}

func (r *register) Get(key int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.values[key]
}

func (r *register) key(it *occ.Item) int { return it.Key().Value().(int) }

// keyLock returns the per-key mutex for key, creating it on first use.
func (r *register) keyLock(key int) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[key]
	if !ok {
		l = &sync.Mutex{}
		r.locks[key] = l
	}
	return l
}

func (r *register) Lock(it *occ.Item)   { r.keyLock(r.key(it)).Lock() }
func (r *register) Unlock(it *occ.Item) { r.keyLock(r.key(it)).Unlock() }

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
