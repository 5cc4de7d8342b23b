// Copyright 2020-2025 Buf Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package upb

import "fmt"

// Kind classifies the error space an [Error] belongs to, per the error
// kinds enumerated in the design doc.
type Kind int

const (
	// KindNone indicates no error.
	KindNone Kind = iota
	// KindAlloc is an allocation failure; no further mutation occurred.
	KindAlloc
	// KindValidation is a schema build/freeze validation failure.
	KindValidation
	// KindDepthExceeded is a freeze-time or decode-time recursion/nesting
	// depth overrun.
	KindDepthExceeded
	// KindWireFormat is a malformed-input error discovered while decoding.
	KindWireFormat
	// KindUnexpectedEOF is end of input (a zero-length Decode call) with
	// residual bytes, a pending skip, or an open delimited region, or a
	// Decode call made after the decode has completed.
	KindUnexpectedEOF
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindAlloc:
		return "alloc"
	case KindValidation:
		return "validation"
	case KindDepthExceeded:
		return "depth-exceeded"
	case KindWireFormat:
		return "wire-format"
	case KindUnexpectedEOF:
		return "unexpected-eof"
	default:
		return "unknown"
	}
}

// maxStatusMsg is the fixed capacity of a [Status] message; longer
// messages are truncated with a trailing ellipsis, matching the 128-byte
// fixed status buffer described in the design doc.
const maxStatusMsg = 128

// Status carries a build- or decode-time diagnostic: a fixed-capacity
// truncated message, an error-space [Kind], and an integer code private
// to that space.
//
// A zero Status is "ok" and reports no error.
type Status struct {
	kind Kind
	code int
	msg  string
}

// Ok reports whether s represents success.
func (s *Status) Ok() bool { return s == nil || s.kind == KindNone }

// Kind returns the error-space this status belongs to.
func (s *Status) Kind() Kind { return s.kind }

// Code returns the space-specific integer code, or 0 if Ok.
func (s *Status) Code() int { return s.code }

// SetError records an error on s, truncating msg to [maxStatusMsg] bytes
// and overwriting anything already recorded.
func (s *Status) SetError(kind Kind, code int, format string, args ...any) {
	s.kind = kind
	s.code = code
	msg := fmt.Sprintf(format, args...)
	if len(msg) > maxStatusMsg {
		msg = msg[:maxStatusMsg-len("…")] + "…"
	}
	s.msg = msg
}

// Error implements the error interface so a [*Status] can be returned
// and compared with errors.As.
func (s *Status) Error() string {
	if s.Ok() {
		return "upb: ok"
	}
	return fmt.Sprintf("upb: %s error (code %d): %s", s.kind, s.code, s.msg)
}

// Error is the concrete error type returned by all exported operations in
// this package. It wraps a [Status] plus, for decode errors, the byte
// offset at which the error was discovered.
type Error struct {
	Status
	// Offset is the absolute stream offset of the decoder's cursor when
	// [Decoder.Decode] found the error. Zero for build/freeze errors, for
	// a Decode call made after the decode completed, and for input that
	// ends while a skip is still pending.
	Offset int64
}

func (e *Error) Error() string {
	if e.Offset == 0 {
		return e.Status.Error()
	}
	return fmt.Sprintf("%s (at offset %d)", e.Status.Error(), e.Offset)
}

func newError(kind Kind, code int, format string, args ...any) *Error {
	e := &Error{}
	e.SetError(kind, code, format, args...)
	return e
}
