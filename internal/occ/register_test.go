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

package occ

import "sync"

// register is a minimal Shared implementation used across the package's
// tests: a map of int keys to int values, with per-key lock bookkeeping
// (Lock/Unlock record which keys are held under one mutex; they do not
// block) and a read-stamp equal to the value observed at add-read time.
type register struct {
	mu     sync.Mutex
	locked map[int]bool
	values map[int]int
	// failCheck, if set, makes every Check of this key fail.
	failCheck map[int]bool

	lockCalls, checkCalls, installCalls, unlockCalls, cleanupCalls int
}

func newRegister() *register {
	return &register{
		locked: make(map[int]bool),
		values: make(map[int]int),
	}
}

func (r *register) Get(key int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.values[key]
}

func (r *register) Set(key, value int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[key] = value
}

func (r *register) key(it *Item) int {
	return it.Key().Value().(int)
}

func (r *register) Lock(it *Item) {
	r.mu.Lock()
	r.lockCalls++
	k := r.key(it)
	r.locked[k] = true
	r.mu.Unlock()
}

func (r *register) Check(it *Item, _ *Txn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkCalls++
	k := r.key(it)
	if r.failCheck[k] {
		return false
	}
	return it.ReadValue() == r.values[k]
}

func (r *register) Install(it *Item) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.installCalls++
	r.values[r.key(it)] = it.WriteValue().(int)
}

func (r *register) Unlock(it *Item) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unlockCalls++
	delete(r.locked, r.key(it))
}

func (r *register) Cleanup(_ *Item, _ bool) {
	r.mu.Lock()
	r.cleanupCalls++
	r.mu.Unlock()
}
