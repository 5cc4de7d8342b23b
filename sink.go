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

// Sink is a (handlers node, closure) pair: the decoder VM's push-style
// entry point into user callbacks. One Sink exists per active VM frame;
// starting a nested frame (a submessage, a sequence, a string) produces
// a new Sink the VM threads through the corresponding nested frame.
//
// A selector with no handler registered is not an error: the event is
// simply dropped and, for START-style selectors, the closure passes
// through unchanged — this is what lets a caller build handlers for
// only the fields it cares about.
type Sink struct {
	H       *Handlers
	Closure any
}

// NewSink creates the root sink for a decode, bound to h with the given
// top-level closure.
func NewSink(h *Handlers, closure any) Sink {
	return Sink{H: h, Closure: closure}
}

// StartMsg dispatches SelStartMsg.
func (s Sink) StartMsg() (Sink, bool) {
	e, ok := s.H.entry(SelStartMsg)
	if !ok {
		return s, true
	}
	child, cont := e.fn.(StartHandler)(s.Closure)
	return Sink{H: s.H, Closure: child}, cont
}

// EndMsg dispatches SelEndMsg.
func (s Sink) EndMsg() bool {
	e, ok := s.H.entry(SelEndMsg)
	if !ok {
		return true
	}
	return e.fn.(EndHandler)(s.Closure)
}

// Value dispatches a scalar field's primitive-value selector.
func (s Sink) Value(sel Selector, raw uint64) bool {
	e, ok := s.H.entry(sel)
	if !ok {
		return true
	}
	return e.fn.(ValueHandler)(s.Closure, raw)
}

// StartStr dispatches a string/bytes field's STARTSTR selector,
// returning the child sink the ensuing STRING/ENDSTR calls use.
func (s Sink) StartStr(sel Selector, sizeHint int) (Sink, bool) {
	e, ok := s.H.entry(sel)
	if !ok {
		return s, true
	}
	child, cont := e.fn.(StartStrHandler)(s.Closure, sizeHint)
	return Sink{H: s.H, Closure: child}, cont
}

// String dispatches one chunk of a string/bytes field's data, returning
// how many bytes of chunk were consumed.
func (s Sink) String(sel Selector, chunk []byte) (int, bool) {
	e, ok := s.H.entry(sel)
	if !ok {
		return len(chunk), true
	}
	return e.fn.(StringHandler)(s.Closure, chunk)
}

// EndStr dispatches a string/bytes field's ENDSTR selector.
func (s Sink) EndStr(sel Selector) bool {
	e, ok := s.H.entry(sel)
	if !ok {
		return true
	}
	return e.fn.(EndHandler)(s.Closure)
}

// StartSeq dispatches a repeated field's STARTSEQ selector.
func (s Sink) StartSeq(sel Selector) (Sink, bool) {
	e, ok := s.H.entry(sel)
	if !ok {
		return s, true
	}
	child, cont := e.fn.(StartHandler)(s.Closure)
	return Sink{H: s.H, Closure: child}, cont
}

// EndSeq dispatches a repeated field's ENDSEQ selector.
func (s Sink) EndSeq(sel Selector) bool {
	e, ok := s.H.entry(sel)
	if !ok {
		return true
	}
	return e.fn.(EndHandler)(s.Closure)
}

// StartSubMsg dispatches f's STARTSUBMSG selector and switches the
// returned sink to f's wired subhandlers node (auto-installed empty by
// [Handlers.validate] if none was explicitly set).
func (s Sink) StartSubMsg(f *FieldDef) (Sink, bool) {
	sub := s.H.SubHandlers(f)
	if sub == nil {
		// No subhandlers at all (message was never frozen with this
		// field touched): treat as an unhandled field.
		return s, true
	}
	e, ok := s.H.entry(f.StartSubMsgSelector())
	if !ok {
		return Sink{H: sub, Closure: s.Closure}, true
	}
	child, cont := e.fn.(StartHandler)(s.Closure)
	return Sink{H: sub, Closure: child}, cont
}

// EndSubMsg dispatches f's ENDSUBMSG selector against the *parent*
// sink (the caller is expected to have already popped back out of the
// submessage frame).
func (s Sink) EndSubMsg(sel Selector) bool {
	e, ok := s.H.entry(sel)
	if !ok {
		return true
	}
	return e.fn.(EndHandler)(s.Closure)
}
