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

import "errors"

// ErrAborted is returned by TryCommit (and reachable via errors.Is from any
// wrapping error) when a transaction fails OCC validation, or was aborted
// explicitly before committing. It is a control-flow outcome, not a logic
// error: callers are expected to retry by starting a fresh transaction.
var ErrAborted = errors.New("occ: transaction aborted")
