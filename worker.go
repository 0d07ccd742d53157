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
	"github.com/mbrt/chopstm/internal/chop"
	"github.com/mbrt/chopstm/internal/occ"
)

// Worker is a stable handle bound to one thread id, exposing both the
// OCC-only transaction API and the chopped-transaction API over the same
// underlying occ.Txn. Not safe for concurrent use: exactly one goroutine
// should drive a given Worker at a time, mirroring the one-thread-per-id
// contract that Engine.Worker documents.
type Worker struct {
	id     int
	occTxn *occ.Txn
	chop   *chop.Worker
}

// ID returns the worker's bound thread id.
func (w *Worker) ID() int { return w.id }

// Transaction exposes the OCC-only API: Item, ReadItem, CheckItem, TryCommit,
// Abort, Aborted, for callers that don't need chopping and want one
// all-or-nothing commit per transaction.
func (w *Worker) Transaction() *occ.Txn { return w.occTxn }

// Chopped exposes the chopped-transaction API: StartTxn, StartPiece,
// TryCommitPiece, CommitPiece, EndTxn, AbortTxn.
func (w *Worker) Chopped() *chop.Worker { return w.chop }
