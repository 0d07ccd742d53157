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

// Package chopstm is an embeddable software transactional memory engine
// with transaction chopping: worker goroutines run composite transactions
// as a sequence of smaller pieces, each piece commit-visible as soon as
// it's safe, while the engine still preserves a serializable outcome for
// the transaction as a whole.
package chopstm

import (
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

// Options configures a new Engine.
type Options struct {
	// Clock is used for the epoch reclaimer's background ticker and for
	// Engine.Retry's backoff timing. Tests should inject a simulated
	// clock to avoid wall-clock sleeps.
	Clock clockwork.Clock
	// Logger receives structured log output. Defaults to slog.Default().
	Logger *slog.Logger

	// MaxThreads bounds the number of distinct worker ids the Engine
	// accepts; see Engine.Worker.
	MaxThreads int
	// MaxRanks bounds the rank values pieces may start at; ranks are
	// 0..MaxRanks-1.
	MaxRanks int
	// InitItemSetCap preallocates each worker's OCC item-set slice, sized
	// for the expected item-set width of a single piece.
	InitItemSetCap int
	// EpochTick is how often the epoch reclaimer advances the global
	// epoch and sweeps eligible deferred-free callbacks.
	EpochTick time.Duration
	// ReclaimLag is carried for documentation/introspection purposes: the
	// actual reclamation window is internal/epoch's fixed two-epoch lag,
	// chosen to match the acquire/release fence pairing it's grounded on
	// rather than being configurable per spec.md's "Global mutable
	// arrays" sizing-at-construction note. See DESIGN.md.
	ReclaimLag time.Duration
}

// DefaultOptions returns sensible defaults for an in-process engine: a
// real clock, the default slog logger, 64 worker slots, 128 ranks (the
// "practical maximum" spec.md §4.5 suggests), and a 10ms epoch tick.
func DefaultOptions() Options {
	return Options{
		Clock:          clockwork.NewRealClock(),
		Logger:         slog.Default(),
		MaxThreads:     64,
		MaxRanks:       128,
		InitItemSetCap: 16,
		EpochTick:      10 * time.Millisecond,
		ReclaimLag:     20 * time.Millisecond,
	}
}
