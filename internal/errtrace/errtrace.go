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

// Package errtrace provides annotated errors that keep both a "cause" chain
// and free-form details around, without losing the ability to errors.Is/As
// into either side of the chain.
package errtrace

import (
	"fmt"
	"strings"
)

// WithCause attaches cause to err. The returned error matches errors.Is/As
// against both err and cause; its message leads with cause, since cause is
// usually the more specific, deeper context ("pretext: immediate error").
func WithCause(err, cause error) error {
	return &causeError{err: err, cause: cause}
}

type causeError struct {
	err   error
	cause error
}

func (c *causeError) Error() string {
	return c.cause.Error() + ": " + c.err.Error()
}

// Unwrap supports the multi-error form added in Go 1.20, letting errors.Is
// and errors.As walk both branches.
func (c *causeError) Unwrap() []error {
	return []error{c.err, c.cause}
}

// WithDetails attaches free-form, possibly multi-line, detail strings to err.
// Error() is unaffected; use Details to retrieve them.
func WithDetails(err error, details ...string) error {
	return &detailsError{err: err, details: details}
}

type detailsError struct {
	err     error
	details []string
}

func (d *detailsError) Error() string {
	return d.err.Error()
}

func (d *detailsError) Unwrap() error {
	return d.err
}

// Details walks the error chain outer-to-inner and renders every attached
// detail as a bullet, outermost first.
func Details(err error) string {
	var blocks []string
	for err != nil {
		if d, ok := err.(*detailsError); ok {
			for _, det := range d.details {
				blocks = append(blocks, formatDetail(det))
			}
		}
		err = unwrapOne(err)
	}
	if len(blocks) == 0 {
		return ""
	}
	return "\n" + strings.Join(blocks, "\n")
}

func formatDetail(d string) string {
	lines := strings.Split(d, "\n")
	out := make([]string, len(lines))
	out[0] = "  - " + lines[0]
	for i := 1; i < len(lines); i++ {
		out[i] = "    " + lines[i]
	}
	return strings.Join(out, "\n")
}

func unwrapOne(err error) error {
	switch u := err.(type) {
	case interface{ Unwrap() error }:
		return u.Unwrap()
	case interface{ Unwrap() []error }:
		es := u.Unwrap()
		if len(es) > 0 {
			return es[0]
		}
		return nil
	default:
		return nil
	}
}

// Combine merges non-nil errors into one, flattening any argument that is
// itself the result of a previous Combine call. Returns nil if every
// argument is nil, and the lone error unwrapped if exactly one remains.
func Combine(errs ...error) error {
	var flat []error
	for _, e := range errs {
		if e == nil {
			continue
		}
		if m, ok := e.(*multiError); ok {
			flat = append(flat, m.errs...)
			continue
		}
		flat = append(flat, e)
	}
	switch len(flat) {
	case 0:
		return nil
	case 1:
		return flat[0]
	default:
		return &multiError{errs: flat}
	}
}

// Errors extracts the flattened error list from a Combine result. For any
// other error (or nil), it returns a single-element (or empty) slice.
func Errors(err error) []error {
	if err == nil {
		return nil
	}
	if m, ok := err.(*multiError); ok {
		return m.errs
	}
	return []error{err}
}

type multiError struct {
	errs []error
}

func (m *multiError) Error() string {
	return fmt.Sprintf("multiple errors (%d); sample: %s", len(m.errs), m.errs[0].Error())
}

func (m *multiError) Format(s fmt.State, verb rune) {
	if verb == 'v' && s.Flag('+') {
		lines := make([]string, 0, len(m.errs)+1)
		lines = append(lines, fmt.Sprintf("multiple errors (%d):", len(m.errs)))
		for _, e := range m.errs {
			lines = append(lines, "- "+e.Error())
		}
		fmt.Fprint(s, strings.Join(lines, "\n"))
		return
	}
	fmt.Fprint(s, m.Error())
}
