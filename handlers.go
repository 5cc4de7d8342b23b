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

import (
	"iter"

	"github.com/upb-go/upb/internal/refcount"
)

// ClosureType is an identity token a handlers builder uses to prove
// (at freeze time, statically) that a chain of START handlers hands
// each downstream handler the closure shape it expects. Any comparable
// value works — a string tag, a *struct{} sentinel, or a reflect.Type.
type ClosureType any

// StartHandler begins a new frame (STARTMSG, STARTSUBMSG, STARTSEQ): it
// receives the enclosing frame's closure and returns the closure the
// new frame will carry, plus whether to continue.
type StartHandler func(closure any) (child any, ok bool)

// EndHandler ends a frame (ENDMSG, ENDSUBMSG, ENDSEQ, ENDSTR).
type EndHandler func(closure any) bool

// ValueHandler delivers one scalar field value. The raw bits are the
// field's wire-decoded value reinterpreted per [FieldDef.Kind] (e.g. a
// float64's IEEE-754 bits for KindDouble, a zigzag-decoded int64 cast to
// uint64 for KindSint64).
type ValueHandler func(closure any, raw uint64) bool

// StartStrHandler begins a string/bytes field's delivery, given a size
// hint (may be inaccurate or absent: 0).
type StartStrHandler func(closure any, sizeHint int) (child any, ok bool)

// StringHandler delivers one chunk of string/bytes data (the engine may
// split a long value across more than one call) and returns how many
// bytes were consumed; returning fewer than len(chunk) suspends the
// parse exactly like a short VM-level read (§4.4).
type StringHandler func(closure any, chunk []byte) (n int, ok bool)

type handlerEntry struct {
	fn   any
	data any
}

// Handlers binds a set of callbacks, keyed by [Selector], to a frozen
// [MsgDef]. It participates in the same refcounted, cycle-tolerant graph
// as the definition graph — recursive message types naturally produce a
// handlers graph with cycles through subhandlers — and is frozen via the
// same [refcount.Freeze] machinery.
type Handlers struct {
	refcount.Base

	msg *MsgDef

	// closureType is the closure type expected by every handler
	// registered directly on this node that is not itself a START
	// handler's return type, and the type assumed for a submessage
	// field with no explicit STARTSUBMSG handler registered. Real upb
	// tracks a closure type per *selector frame*; here one type is
	// tracked per handlers node, a deliberate simplification of the
	// fully general per-frame rule (see DESIGN.md) that still detects
	// the common mismatch the design doc's property describes.
	closureType ClosureType
	typeSet     bool

	entries map[Selector]handlerEntry

	// fieldReturns records, per field number, the closure type that
	// field's START-style handler (STARTSUBMSG/STARTSEQ/STARTSTR) hands
	// to its child frame. Absent entries default to closureType (the
	// "missing START" pass-through case).
	fieldReturns map[int32]ClosureType

	subhandlers []*Handlers // dense-indexed by field.Index() for submsg-class fields.
}

// NewHandlers creates an empty, mutable handlers node bound to m, which
// must already be frozen.
func NewHandlers(m *MsgDef, closureType ClosureType, owner any) *Handlers {
	h := &Handlers{
		msg:          m,
		closureType:  closureType,
		typeSet:      true,
		entries:      map[Selector]handlerEntry{},
		fieldReturns: map[int32]ClosureType{},
		subhandlers:  make([]*Handlers, m.SubmsgFieldCount()),
	}
	refcount.Init(h, owner)
	return h
}

// Msg returns the frozen message this handlers node is bound to.
func (h *Handlers) Msg() *MsgDef { return h.msg }

// SetStartMsg registers the STARTMSG handler.
func (h *Handlers) SetStartMsg(fn StartHandler, data any) {
	h.entries[SelStartMsg] = handlerEntry{fn: fn, data: data}
}

// SetEndMsg registers the ENDMSG handler.
func (h *Handlers) SetEndMsg(fn EndHandler, data any) {
	h.entries[SelEndMsg] = handlerEntry{fn: fn, data: data}
}

// SetValue registers f's primitive value handler (scalars and enums).
// The STRING data-chunk handler of string/bytes/lazy-submessage fields
// is registered with [Handlers.SetString].
func (h *Handlers) SetValue(f *FieldDef, fn ValueHandler, data any) {
	h.entries[f.ValueSelector()] = handlerEntry{fn: fn, data: data}
}

// SetString registers f's STRING chunk-delivery handler.
func (h *Handlers) SetString(f *FieldDef, fn StringHandler, data any) {
	h.entries[f.ValueSelector()] = handlerEntry{fn: fn, data: data}
}

// SetStartStr registers f's STARTSTR handler, and the closure type it
// hands to the (single, string-scoped) inner frame.
func (h *Handlers) SetStartStr(f *FieldDef, fn StartStrHandler, returns ClosureType, data any) {
	h.entries[f.StartStrSelector()] = handlerEntry{fn: fn, data: data}
	h.fieldReturns[f.number] = returns
}

// SetEndStr registers f's ENDSTR handler.
func (h *Handlers) SetEndStr(f *FieldDef, fn EndHandler, data any) {
	h.entries[f.EndStrSelector()] = handlerEntry{fn: fn, data: data}
}

// SetStartSeq registers f's STARTSEQ handler.
func (h *Handlers) SetStartSeq(f *FieldDef, fn StartHandler, data any) {
	h.entries[f.StartSeqSelector()] = handlerEntry{fn: fn, data: data}
}

// SetEndSeq registers f's ENDSEQ handler.
func (h *Handlers) SetEndSeq(f *FieldDef, fn EndHandler, data any) {
	h.entries[f.EndSeqSelector()] = handlerEntry{fn: fn, data: data}
}

// SetStartSubMsg registers f's STARTSUBMSG handler and the closure type
// it hands to the submessage frame. f must be a non-lazy submessage
// field.
func (h *Handlers) SetStartSubMsg(f *FieldDef, fn StartHandler, returns ClosureType, data any) error {
	if !isSubmsgClass(f) {
		return newError(KindValidation, errClosureMismatch, "field %q: STARTSUBMSG handler requires a non-lazy submessage field", f.name)
	}
	h.entries[f.StartSubMsgSelector()] = handlerEntry{fn: fn, data: data}
	h.fieldReturns[f.number] = returns
	return nil
}

// SetEndSubMsg registers f's ENDSUBMSG handler.
func (h *Handlers) SetEndSubMsg(f *FieldDef, fn EndHandler, data any) {
	h.entries[f.EndSubMsgSelector()] = handlerEntry{fn: fn, data: data}
}

// SetSubHandlers wires sub as the handlers node invoked whenever f's
// submessage content is entered. f must be a non-lazy submessage field
// of h's message, sub must be bound to exactly f's subdef, and the slot
// must not already be set.
func (h *Handlers) SetSubHandlers(f *FieldDef, sub *Handlers) error {
	if !isSubmsgClass(f) {
		return newError(KindValidation, errSubhandlersMismatch, "field %q: not a non-lazy submessage field", f.name)
	}
	if f.SubMessage() != sub.msg {
		return newError(KindValidation, errSubhandlersMismatch, "field %q: subhandlers message mismatch", f.name)
	}
	idx := f.Index()
	if idx < 0 || idx >= len(h.subhandlers) {
		return newError(KindValidation, errSubhandlersMismatch, "field %q: dense index %d out of range", f.name, idx)
	}
	if h.subhandlers[idx] != nil {
		return newError(KindValidation, errSubhandlersMismatch, "field %q: subhandlers already set", f.name)
	}
	h.subhandlers[idx] = sub
	refcount.Ref2(sub, h)
	return nil
}

// SubHandlers returns the handlers node wired for f's dense index, or
// nil if none has been set yet.
func (h *Handlers) SubHandlers(f *FieldDef) *Handlers {
	idx := f.Index()
	if idx < 0 || idx >= len(h.subhandlers) {
		return nil
	}
	return h.subhandlers[idx]
}

func (h *Handlers) entry(sel Selector) (handlerEntry, bool) {
	e, ok := h.entries[sel]
	return e, ok
}

// Edges implements [refcount.Object]: a handlers node structurally
// references every subhandlers node it has wired.
func (h *Handlers) Edges() iter.Seq[refcount.Object] {
	return func(yield func(refcount.Object) bool) {
		for _, s := range h.subhandlers {
			if s == nil {
				continue
			}
			if !yield(s) {
				return
			}
		}
	}
}

// validate checks the closure-typing invariant described in the design
// doc: for every submessage field with subhandlers wired, the closure
// type that field's entry point hands the child frame (its own
// STARTSUBMSG handler's declared return type, or this node's
// closureType if no STARTSUBMSG handler is registered for that field)
// must equal the subhandlers node's own closureType. It also
// auto-installs an empty subhandlers node for any submessage field that
// has start/end handlers set but no explicit subhandlers, so the
// decoder generator can uniformly assume every submessage field has one.
func (h *Handlers) validate() *Error {
	for f := range h.msg.Fields() {
		if !isSubmsgClass(f) {
			continue
		}
		idx := f.Index()
		if h.subhandlers[idx] == nil {
			_, hasStart := h.entry(f.StartSubMsgSelector())
			_, hasEnd := h.entry(f.EndSubMsgSelector())
			if hasStart || hasEnd {
				empty := NewHandlers(f.SubMessage(), h.fieldReturnType(f), h)
				h.subhandlers[idx] = empty
				refcount.Ref2(empty, h)
			}
			continue
		}
		want := h.fieldReturnType(f)
		got := h.subhandlers[idx].closureType
		if h.subhandlers[idx].typeSet && want != got {
			return newError(KindValidation, errClosureMismatch, "field %q: subhandlers closure type %v does not match declared %v", f.name, got, want)
		}
	}
	return nil
}

func (h *Handlers) fieldReturnType(f *FieldDef) ClosureType {
	if t, ok := h.fieldReturns[f.number]; ok {
		return t
	}
	return h.closureType
}
