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
	"reflect"

	"github.com/mbrt/chopstm/internal/occ"
)

// bloomFilter is a small, fixed-size per-piece accelerator for key-overlap
// detection: "can p.writes possibly contain k" in O(1) instead of a linear
// scan, with zero false negatives (it may say "maybe" for a key that was
// never added, but never says "no" for one that was). overlaps() always
// falls back to an exact scan on a "maybe", so the filter only ever saves
// work, never correctness.
//
// 256 bits is enough to keep the false-positive rate low for the small
// per-piece footprints (tens of keys) the chopping coordinator deals with,
// without per-piece heap allocation for the common case.
type bloomFilter struct {
	bits [4]uint64
}

const bloomHashes = 3

func (f *bloomFilter) add(h *occ.Handle) {
	h1, h2 := hashHandle(h)
	for i := uint64(0); i < bloomHashes; i++ {
		f.setBit(h1 + i*h2)
	}
}

func (f *bloomFilter) mayContain(h *occ.Handle) bool {
	h1, h2 := hashHandle(h)
	for i := uint64(0); i < bloomHashes; i++ {
		if !f.getBit(h1 + i*h2) {
			return false
		}
	}
	return true
}

func (f *bloomFilter) setBit(h uint64) {
	idx := h % (4 * 64)
	f.bits[idx/64] |= 1 << (idx % 64)
}

func (f *bloomFilter) getBit(h uint64) bool {
	idx := h % (4 * 64)
	return f.bits[idx/64]&(1<<(idx%64)) != 0
}

// hashHandle derives two independent hashes from a handle's pointer
// identity, used for double hashing (h1 + i*h2) across bloomHashes probes.
func hashHandle(h *occ.Handle) (uint64, uint64) {
	x := uint64(reflect.ValueOf(h).Pointer())
	x ^= x >> 33
	x *= 0xff51afd7ed558ccd
	x ^= x >> 33
	x *= 0xc4ceb9fe1a85ec53
	x ^= x >> 33
	return x, x>>32 | 1 // force odd, so the second hash is never 0
}
