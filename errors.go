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
	"errors"

	"github.com/mbrt/chopstm/internal/chop"
	"github.com/mbrt/chopstm/internal/occ"
)

// ErrAborted is the root package's abort sentinel. The OCC and chop layers
// report aborts with their own sentinels (occ.ErrAborted, chop.ErrAbort),
// which are returned as they are and do not wrap ErrAborted; isAbort, and
// so Engine.Retry, treats all three as a retryable abort.
var ErrAborted = errors.New("chopstm: transaction aborted")

// isAbort reports whether err denotes a retryable abort from either the
// OCC or chop layer.
func isAbort(err error) bool {
	return errors.Is(err, occ.ErrAborted) || errors.Is(err, chop.ErrAbort) || errors.Is(err, ErrAborted)
}

// ContractViolation reports a broken precondition at the Engine/Worker
// boundary (an out-of-range worker id). Matches spec.md §7's "Fatal: the
// engine is not required to recover" policy for contract violations; the
// chop and occ packages raise their own variant for violations internal
// to their layer.
type ContractViolation struct {
	Msg string
}

func (c ContractViolation) Error() string { return "chopstm: contract violation: " + c.Msg }
