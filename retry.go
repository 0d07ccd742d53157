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
	"context"
	"time"

	"github.com/mbrt/chopstm/internal/concurr"
	"github.com/mbrt/chopstm/internal/errtrace"
)

const (
	retryInitialInterval = 1 * time.Millisecond
	retryMaxInterval     = 100 * time.Millisecond
)

// Retry runs f repeatedly with exponential backoff until it returns a nil
// error, a non-abort error (returned immediately, unwrapped), or ctx is
// done. f is expected to run a full StartTxn..EndTxn (or AbortTxn) cycle on
// a Worker and return the abort error panics convert to, or recover from
// those panics itself; see chop.Worker.StartPiece for the panic convention
// used by StartPiece/EndTxn.
//
// Not in spec.md's minimal API: a natural completion of "the caller may
// retry" from spec.md §7, grounded on mbrt-glassdb's RetryWithBackoff.
func (e *Engine) Retry(ctx context.Context, f func() error) error {
	retrier := concurr.RetryOptions(retryInitialInterval, retryMaxInterval, e.opts.Clock)

	var lastAbort error
	err := retrier.Retry(ctx, func() error {
		err := f()
		if err == nil {
			return nil
		}
		if isAbort(err) {
			lastAbort = err
			return err // retryable
		}
		return concurr.Permanent(err)
	})
	if err != nil && lastAbort != nil && ctx.Err() != nil {
		// Retries were cut short by context cancellation/deadline, not by
		// a permanent error: annotate with the abort that was still
		// in-flight so callers can tell the two exhaustion modes apart.
		return errtrace.WithCause(ctx.Err(), lastAbort)
	}
	return err
}
