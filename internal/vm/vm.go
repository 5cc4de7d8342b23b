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

// Package vm holds the decoder engine's handler-agnostic mechanics: the
// buffer cursor, the residual carry-over used to make decoding resumable
// across arbitrary buffer seams, and the frame/call stacks a compiled
// program's CALL/RET and delimiter-tracking opcodes operate on.
//
// The interpreter loop itself — decoding opcode(word)s and dispatching
// to user handlers — lives in the root package. This package is generic
// over the closure type C carried by each frame (a upb.Sink in
// practice); keeping that dependency inverted here is what lets this
// package stay free of any import on the definition-graph or handlers
// types.
package vm

import (
	"math"

	"github.com/upb-go/upb/internal/arena"
)

// ResidualCap is the maximum number of unconsumed bytes a suspended
// decode may carry into the next call. Any wire primitive (a varint, a
// tag) longer than this is malformed input by construction (§4.4).
const ResidualCap = 16

// RootEnd is the sentinel end offset of the outermost, unbounded frame.
const RootEnd = math.MaxUint64

// Frame is one entry of the VM's delimiter-tracking stack: a submessage,
// a group, or the root message.
type Frame[C any] struct {
	EndOfs   uint64 // absolute end offset in the logical stream; RootEnd if unbounded.
	GroupNum int32  // nonzero: this frame was opened for that field's group or, if Skip, the unknown group being discarded.
	Skip     bool   // true for a synthetic frame discarding an unrecognized group field.
	Closure  C
	Method   int // DecoderMethod index [New] starts in; read for the root frame only (the current method is State.Method).

	// Started tracks, per field number, whether that field's STARTSEQ
	// has fired in this frame; ENDSEQ for every still-open entry fires
	// once, at ENDMSG, since repeated-field occurrences may be
	// interleaved with other fields and the bytecode has no single
	// "last occurrence" point to anchor ENDSEQ to.
	Started map[int32]bool
}

// Call is one entry of the VM's return-address stack, used by CALL/RET.
type Call struct {
	Method int
	PC     int
}

// State is the full mutable state of one in-progress, possibly-suspended
// decode. The zero State is not ready for use; construct via [New].
type State[C any] struct {
	// buf is the bytes currently available to the interpreter: the prior
	// call's residual, followed by whatever was passed to this Feed.
	buf []byte
	ptr int // cursor into buf.

	// streamPos is the absolute offset, in the overall logical stream,
	// of buf[0] — used to interpret Frame.EndOfs (an absolute offset)
	// against the current buffer.
	streamPos int64

	residual    [ResidualCap]byte
	residualLen int

	// PendingSkip is bytes still to be silently discarded before
	// resuming normal interpretation — the mechanism behind "skip may
	// consume more than the caller supplied" (§4.4).
	PendingSkip int64

	Frames []Frame[C]
	Calls  []Call

	Method int
	PC     int

	// arena backs every per-Feed merge buffer this state allocates,
	// amortizing a streaming decode's many small residual/input merges
	// into a handful of growing slabs rather than one make([]byte, ...)
	// per call (design doc's per-parse arena, §5).
	arena *arena.Arena
}

// New creates a State with root as its sole, outermost frame.
func New[C any](root Frame[C]) *State[C] {
	return &State[C]{Frames: []Frame[C]{root}, Method: root.Method, arena: arena.New(nil)}
}

// Feed prepends any residual from the previous call to buf and resets
// the cursor to its start. It does not consume [PendingSkip] bytes;
// callers must do so (and adjust their own consumed-byte accounting)
// before calling Feed, since that accounting is part of the public
// decode contract, not this package's concern.
//
// The merge buffer is carved out of this state's arena rather than
// allocated fresh, since a streaming decode may call Feed many times
// over its lifetime.
func (s *State[C]) Feed(buf []byte) {
	combined := s.arena.Alloc(s.residualLen + len(buf))
	copy(combined, s.residual[:s.residualLen])
	copy(combined[s.residualLen:], buf)
	s.buf = combined
	s.ptr = 0
	s.residualLen = 0
}

// AddCleanup registers fn to run, in LIFO order, when [State.Release] is
// called — the design doc's per-parse arena cleanup-list discipline.
func (s *State[C]) AddCleanup(fn func()) { s.arena.AddCleanup(fn) }

// Release runs every registered cleanup (LIFO) and releases this
// state's arena-backed memory. Call once a decode is done (halted or
// errored terminally) and the state will not be fed again.
func (s *State[C]) Release() { s.arena.Free() }

// Remaining returns the number of unconsumed bytes in the current
// buffer.
func (s *State[C]) Remaining() int { return len(s.buf) - s.ptr }

// Peek returns the unconsumed tail of the current buffer without
// advancing the cursor.
func (s *State[C]) Peek() []byte { return s.buf[s.ptr:] }

// Advance moves the cursor forward by n bytes.
func (s *State[C]) Advance(n int) { s.ptr += n }

// Pos returns the absolute stream offset of the cursor.
func (s *State[C]) Pos() int64 { return s.streamPos + int64(s.ptr) }

// SuspendResidual saves the unconsumed tail of the buffer as residual
// for the next Feed and advances streamPos past the consumed bytes only,
// so that [Pos] remains correct across the suspension. It reports false,
// saving nothing, if the tail is longer than [ResidualCap]. Computing
// how many of the current Feed's bytes were consumed is left to the
// caller (see [State.Remaining]).
func (s *State[C]) SuspendResidual() bool {
	tail := s.buf[s.ptr:]
	if len(tail) > ResidualCap {
		return false
	}
	s.residualLen = copy(s.residual[:], tail)
	s.streamPos += int64(s.ptr)
	s.buf = nil
	s.ptr = 0
	return true
}

// ResidualLen reports how many bytes are currently held as residual.
func (s *State[C]) ResidualLen() int { return s.residualLen }

// AtEOF reports whether the decoder is in a valid end-of-stream state:
// no residual, no pending skip, and exactly the root frame remaining.
func (s *State[C]) AtEOF() bool {
	return s.residualLen == 0 && s.PendingSkip == 0 && len(s.Frames) == 1 && s.Frames[0].EndOfs == RootEnd
}

// PushFrame enters a new delimited (or group) region.
func (s *State[C]) PushFrame(f Frame[C]) { s.Frames = append(s.Frames, f) }

// PopFrame leaves the current delimited region, returning it.
func (s *State[C]) PopFrame() Frame[C] {
	n := len(s.Frames) - 1
	f := s.Frames[n]
	s.Frames = s.Frames[:n]
	return f
}

// Top returns the current (innermost) frame.
func (s *State[C]) Top() *Frame[C] { return &s.Frames[len(s.Frames)-1] }

// PushCall records a return address and switches execution to callee at
// pc 0.
func (s *State[C]) PushCall(callee int) {
	s.Calls = append(s.Calls, Call{Method: s.Method, PC: s.PC})
	s.Method = callee
	s.PC = 0
}

// PopCall returns to the most recently pushed call site. Reports false
// if the call stack is empty (a top-level RET, which halts the method).
func (s *State[C]) PopCall() bool {
	n := len(s.Calls) - 1
	if n < 0 {
		return false
	}
	ret := s.Calls[n]
	s.Calls = s.Calls[:n]
	s.Method, s.PC = ret.Method, ret.PC
	return true
}
