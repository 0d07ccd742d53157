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

// Package occ implements the single-threaded optimistic concurrency
// control engine: a per-transaction read/write item set and the
// two-phase-locked commit pipeline (sort, lock, validate, install, unlock)
// that any Shared implementation plugs into.
package occ

import "sort"

// Txn is a single transaction's item set plus the commit pipeline over it.
// Not safe for concurrent use: one Txn belongs to exactly one worker at a
// time, reused across successive transactions via Reset.
type Txn struct {
	buf      Buffer
	items    []*Item
	aborted  bool
	counters *Counters
}

// New creates a Txn that reports activity into counters. counters may be
// nil to disable observability bookkeeping (mainly for tests).
func New(counters *Counters) *Txn {
	if counters == nil {
		counters = &Counters{}
	}
	t := &Txn{counters: counters}
	t.Reset()
	return t
}

// NewWithItemCap is New, but preallocates the item-set slice to cap,
// sized for the expected width of a single piece's item set to avoid
// reallocation churn on the hot path.
func NewWithItemCap(counters *Counters, cap int) *Txn {
	t := New(counters)
	t.items = make([]*Item, 0, cap)
	return t
}

// Reset discards the current item set and prepares the Txn for a new
// transaction. Must be called before reusing a Txn for work unrelated to
// the previous transaction.
func (t *Txn) Reset() {
	t.buf.Clear()
	t.items = t.items[:0]
	t.aborted = false
	t.counters.TotalStarts.Add(1)
}

// findItem returns the existing item for (shared, key), or nil.
func (t *Txn) findItem(shared Shared, key *Handle) *Item {
	for _, it := range t.items {
		t.counters.TotalSearched.Add(1)
		if it.shared == shared && it.key == key {
			return it
		}
	}
	return nil
}

// item is the shared get-or-insert behind Item/ReadItem/CheckItem: key is
// packed uniquely within this Txn's buffer so pointer equality on the
// returned handle is a valid overlap test.
func (t *Txn) item(shared Shared, key any) *Item {
	xkey := t.buf.PackUnique(key)
	if it := t.findItem(shared, xkey); it != nil {
		return it
	}
	it := &Item{shared: shared, key: xkey}
	t.items = append(t.items, it)
	t.counters.TotalItems.Add(1)
	return it
}

// Item returns a Proxy for (shared, key), inserting a fresh item if none
// exists yet.
func (t *Txn) Item(shared Shared, key any) *Proxy {
	return &Proxy{txn: t, item: t.item(shared, key)}
}

// ReadItem is Item, intended for call sites that only ever read the key.
func (t *Txn) ReadItem(shared Shared, key any) *Proxy {
	return &Proxy{txn: t, item: t.item(shared, key)}
}

// CheckItem looks up an existing item for (shared, key) without inserting
// one. ok is false if no such item exists.
func (t *Txn) CheckItem(shared Shared, key any) (p *Proxy, ok bool) {
	xkey := t.buf.PackUnique(key)
	it := t.findItem(shared, xkey)
	if it == nil {
		return nil, false
	}
	return &Proxy{txn: t, item: it}, true
}

// Items returns the transaction's current item set. The returned slice
// must not be retained past the next Reset.
func (t *Txn) Items() []*Item {
	return t.items
}

// CheckReads validates every item flagged as read, failing on the first
// one whose Shared.Check returns false. It does not mark the transaction
// aborted itself; TryCommit does that when CheckReads fails.
func (t *Txn) CheckReads() bool {
	for _, it := range t.items {
		if it.hasRead {
			t.counters.TotalReads.Add(1)
			if !it.shared.Check(it, t) {
				return false
			}
		}
	}
	return true
}

// TryCommit runs the eight-step OCC commit pipeline: fast-path an
// all-read transaction through CheckReads alone; otherwise sort the
// write-subset into canonical (Shared identity, key identity) order, lock
// it, validate every read, install every write in original insertion
// order, unlock, and run Cleanup on every item regardless of outcome.
//
// Returns nil on success, or ErrAborted on validation failure or when the
// Txn is already aborted. Either way the Txn's item set is left empty.
// After a failure the Txn stays aborted and every later TryCommit returns
// ErrAborted, so callers must call Reset before starting a new
// transaction; Reset also releases the packed buffers.
func (t *Txn) TryCommit() error {
	t.counters.maxItemSet(len(t.items))

	if t.aborted {
		return ErrAborted
	}

	var writeIdx []int
	for i, it := range t.items {
		if it.hasWrite {
			writeIdx = append(writeIdx, i)
		}
	}

	if len(writeIdx) == 0 {
		// Fast path: nothing to lock or install, just validate reads.
		success := t.CheckReads()
		t.finish(success)
		return t.outcome(success)
	}

	sort.Slice(writeIdx, func(a, b int) bool {
		return itemLess(t.items[writeIdx[a]], t.items[writeIdx[b]])
	})

	for _, idx := range writeIdx {
		t.items[idx].shared.Lock(t.items[idx])
	}

	success := t.CheckReads()
	if success {
		for _, it := range t.items {
			if it.hasWrite {
				t.counters.TotalWrites.Add(1)
				it.shared.Install(it)
			}
		}
	} else {
		t.counters.CommitTimeAborts.Add(1)
	}

	for _, idx := range writeIdx {
		t.items[idx].shared.Unlock(t.items[idx])
	}

	t.finish(success)
	return t.outcome(success)
}

func (t *Txn) finish(committed bool) {
	for _, it := range t.items {
		it.shared.Cleanup(it, committed)
	}
	if !committed {
		t.aborted = true
		t.counters.TotalAborts.Add(1)
	}
	t.items = t.items[:0]
}

func (t *Txn) outcome(success bool) error {
	if success {
		return nil
	}
	return ErrAborted
}

// Abort explicitly aborts the transaction, running Cleanup(false) on every
// item without attempting to lock or install anything.
func (t *Txn) Abort() {
	if t.aborted {
		return
	}
	for _, it := range t.items {
		it.shared.Cleanup(it, false)
	}
	t.aborted = true
	t.counters.TotalAborts.Add(1)
	t.items = t.items[:0]
}

// Aborted reports whether the transaction has been aborted, either
// explicitly via Abort or by a failed TryCommit.
func (t *Txn) Aborted() bool {
	return t.aborted
}
