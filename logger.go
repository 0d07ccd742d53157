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
	"fmt"
	"log/slog"
)

// Logger receives coarse, always-on messages. The Engine sends it its
// start and stop messages.
type Logger interface {
	Logf(format string, v ...any)
}

// Tracer receives fine-grained events. The Engine sends it one message
// each time a Worker is bound. Split from Logger so callers can turn
// tracing off without losing the coarser log.
type Tracer interface {
	Tracef(format string, v ...any)
}

// ConsoleLogger logs and traces to the standard logger.
type ConsoleLogger struct{}

func (ConsoleLogger) Logf(format string, v ...any)   { slog.Default().Info(sprintf(format, v...)) }
func (ConsoleLogger) Tracef(format string, v ...any) { slog.Default().Debug(sprintf(format, v...)) }

// NoLogger discards everything.
type NoLogger struct{}

func (NoLogger) Logf(string, ...any)   {}
func (NoLogger) Tracef(string, ...any) {}

// slogLogger adapts a *slog.Logger, the library-shaped logging façade
// Options.Logger exposes, into the Logger/Tracer pair the engine's
// internals use.
type slogLogger struct {
	l *slog.Logger
}

func newSlogLogger(l *slog.Logger) slogLogger { return slogLogger{l: l} }

func (s slogLogger) Logf(format string, v ...any)   { s.l.Info(sprintf(format, v...)) }
func (s slogLogger) Tracef(format string, v ...any) { s.l.Debug(sprintf(format, v...)) }

func sprintf(format string, v ...any) string {
	if len(v) == 0 {
		return format
	}
	return fmt.Sprintf(format, v...)
}
