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

import (
	"fmt"
	"reflect"
)

// Shared is the five-operation contract any data structure implements to
// participate in a commit. The engine never downcasts an Item's Shared
// field; it is treated purely by identity.
type Shared interface {
	// Lock takes an exclusive lock on item's logical key at commit time.
	Lock(item *Item)
	// Check validates that the read stamp recorded in item still describes
	// the current state.
	Check(item *Item, txn *Txn) bool
	// Install applies the write recorded in item. Called under the lock.
	Install(item *Item)
	// Unlock releases the lock taken by Lock.
	Unlock(item *Item)
	// Cleanup is a post-commit or post-abort hook, called for every item
	// regardless of outcome.
	Cleanup(item *Item, committed bool)
}

// Item is a single (shared-object, packed-key) slot in a transaction's item
// set, carrying an optional read stamp and/or pending write value.
type Item struct {
	shared Shared
	key    *Handle

	hasRead  bool
	readData *Handle

	hasWrite  bool
	writeData *Handle
}

// Shared returns the item's owning shared object.
func (i *Item) Shared() Shared { return i.shared }

// Key returns the item's packed key handle.
func (i *Item) Key() *Handle { return i.key }

// HasRead reports whether a read was recorded on this item.
func (i *Item) HasRead() bool { return i.hasRead }

// HasWrite reports whether a write is pending on this item.
func (i *Item) HasWrite() bool { return i.hasWrite }

// ReadValue returns the recorded read stamp, or nil if HasRead is false.
func (i *Item) ReadValue() any {
	if !i.hasRead {
		return nil
	}
	return i.readData.Value()
}

// WriteValue returns the pending write value, or nil if HasWrite is false.
func (i *Item) WriteValue() any {
	if !i.hasWrite {
		return nil
	}
	return i.writeData.Value()
}

// itemLess orders two items by (shared-object identity, key value), the
// canonical order used to sort the write permutation before locking. Keys
// are compared by value rather than by handle address, since every Txn
// packs its keys into its own Buffer. This prevents lock-ordering cycles
// between concurrently committing transactions: every transaction locks
// overlapping items in the same global order.
func itemLess(a, b *Item) bool {
	pa, pb := identity(a.shared), identity(b.shared)
	if pa != pb {
		return pa < pb
	}
	ka, kb := a.key.Value(), b.key.Value()
	switch x := ka.(type) {
	case int:
		if y, ok := kb.(int); ok {
			return x < y
		}
	case string:
		if y, ok := kb.(string); ok {
			return x < y
		}
	}
	return fmt.Sprintf("%T:%v", ka, ka) < fmt.Sprintf("%T:%v", kb, kb)
}

func identity(s Shared) uintptr {
	v := reflect.ValueOf(s)
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Chan, reflect.Func, reflect.Slice, reflect.UnsafePointer:
		return v.Pointer()
	default:
		// Shared implementations are expected to be reference types
		// (pointers to structs); a value-typed Shared has no stable
		// identity to sort on.
		panic("occ: Shared implementation has no pointer identity")
	}
}
