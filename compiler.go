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
	"github.com/upb-go/upb/internal/opcode"
	"github.com/upb-go/upb/internal/wire"
)

// dispatchEntry is one row of a compiled method's dispatch table: where
// a recognized field's code body starts, and the wire type it expects
// there. A tag whose field number is unknown, or whose wire type
// doesn't match either entry, is skipped instead of dispatched.
//
// A repeated scalar field carries a second (altOffset, altWireType)
// entry: proto3 wire compatibility requires a decoder to accept a
// repeated numeric field in *either* its packed (length-delimited run
// of back-to-back values) or non-packed (one tag per value) wire form
// regardless of which one the schema declares, so both code bodies are
// compiled and the dispatch table picks whichever the incoming tag's
// wire type matches (spec.md's "primary/secondary wire type" pair,
// §8 S4/S5).
type dispatchEntry struct {
	offset   int32
	wireType wire.Type

	hasAlt      bool
	altOffset   int32
	altWireType wire.Type
}

// DecoderMethod is one compiled message type's field-parsing loop: a
// CHECKDELIM/DISPATCH loop over a flat []opcode.Instr, with one code
// body per field appended after it and a dispatch table mapping field
// numbers to the bodies' entry points.
type DecoderMethod struct {
	h        *Handlers
	code     []opcode.Instr
	dispatch map[int32]dispatchEntry

	// checkDelimPC and endMsgPC are the two loop anchors every DISPATCH
	// and CHECKDELIM branch resolves against: looping back after an
	// unknown field is skipped, or ending the message.
	checkDelimPC int
	endMsgPC     int
}

// Program is a fully compiled, linked set of decoder methods: one per
// handlers node reachable from a root via subhandlers wiring, indexed
// by that node for CALL target resolution.
type Program struct {
	methods []*DecoderMethod
	index   map[*Handlers]int
}

// MethodFor returns the compiled method bound to h, or nil if h was not
// reachable from the root Compile was called with.
func (p *Program) MethodFor(h *Handlers) *DecoderMethod {
	if i, ok := p.index[h]; ok {
		return p.methods[i]
	}
	return nil
}

// Compile discovers every handlers node reachable from root through
// subhandlers wiring and compiles one [DecoderMethod] per node.
//
// This is a two-pass compiler in substance, not merely in name: pass
// one (discover) walks the subhandlers graph and assigns each reachable
// node a method index — the analogue of the design doc's code_base.ofs
// — before any code is emitted; pass two (compileMethod) emits each
// method's instructions using those already-known indices as CALL
// targets. Because CALL here addresses a method by index rather than a
// byte offset into one flat, shared instruction stream, a callee's
// index is known in full before its caller's body is emitted, and no
// forward-reference patching pass is required the way the original's
// single-address-space bytecode needs.
func Compile(root *Handlers) (*Program, error) {
	p := &Program{index: map[*Handlers]int{}}
	var order []*Handlers
	var discover func(h *Handlers)
	discover = func(h *Handlers) {
		if _, ok := p.index[h]; ok {
			return
		}
		p.index[h] = len(order)
		order = append(order, h)
		for f := range h.msg.Fields() {
			if !isSubmsgClass(f) {
				continue
			}
			if sub := h.SubHandlers(f); sub != nil {
				discover(sub)
			}
		}
	}
	discover(root)

	p.methods = make([]*DecoderMethod, len(order))
	for i, h := range order {
		m, err := compileMethod(h, p.index)
		if err != nil {
			return nil, err
		}
		p.methods[i] = m
	}
	return p, nil
}

// compileMethod emits h's field-parsing loop. Every method, even one
// for a message with no fields at all, emits a viable
// CHECKDELIM/DISPATCH loop: an empty dispatch table just means every
// tag it ever sees is treated as unknown and skipped.
func compileMethod(h *Handlers, index map[*Handlers]int) (*DecoderMethod, error) {
	m := &DecoderMethod{h: h, dispatch: map[int32]dispatchEntry{}}
	var branchFixups []int // positions of field-body BRANCHes needing checkDelimPC.

	emit := func(op opcode.Op, arg int32) int {
		m.code = append(m.code, opcode.Make(op, arg))
		return len(m.code) - 1
	}

	emit(opcode.OpSetDispatch, int32(index[h])) // self-reference marker; a no-op at runtime (see decoder.go).
	emit(opcode.OpStartMsg, 0)
	m.checkDelimPC = emit(opcode.OpCheckDelim, 0) // patched once endMsgPC is known.
	emit(opcode.OpDispatch, 0)

	for f := range h.msg.Fields() {
		entry := dispatchEntry{offset: int32(len(m.code))}
		switch {
		case isSubmsgClass(f):
			callee, ok := index[h.SubHandlers(f)]
			if !ok {
				return nil, newError(KindValidation, errNoCompiledMethod, "field %q: subhandlers not reachable from compile root", f.Name())
			}
			if f.IsRepeated() {
				emit(opcode.OpStartSeq, f.Number())
			}
			if f.TagDelimited() {
				emit(opcode.OpPushTagDelim, f.Number())
				entry.wireType = wire.StartGroup
			} else {
				emit(opcode.OpPushLenDelim, 0)
				entry.wireType = wire.Bytes
			}
			emit(opcode.OpStartSubMsg, f.Number())
			emit(opcode.OpCall, int32(callee))
			emit(opcode.OpPop, 0)
			emit(opcode.OpEndSubMsg, f.Number())

		case f.Kind() == KindString || f.Kind() == KindBytes || (f.Kind().IsSubMessage() && f.Lazy()):
			if f.IsRepeated() {
				emit(opcode.OpStartSeq, f.Number())
			}
			emit(opcode.OpPushLenDelim, 0)
			emit(opcode.OpStartStr, f.Number())
			emit(opcode.OpString, f.Number())
			emit(opcode.OpPop, 0)
			emit(opcode.OpEndStr, f.Number())
			entry.wireType = wire.Bytes

		default:
			if f.IsRepeated() {
				emit(opcode.OpStartSeq, f.Number())
			}
			op, wt := parseOpFor(f.Kind())
			emit(op, f.Number())
			entry.wireType = wt
			branchFixups = append(branchFixups, emit(opcode.OpBranch, 0))

			// A repeated scalar field also accepts the packed wire form:
			// one length-delimited run of back-to-back values instead of
			// one tag per value (spec.md §4.4, S4/S5). The loop reuses
			// CHECKDELIM against the pushed frame's own end offset, so it
			// falls out the same way the method's own field loop does.
			if f.IsRepeated() {
				entry.hasAlt = true
				entry.altWireType = wire.Bytes
				entry.altOffset = int32(emit(opcode.OpStartSeq, f.Number()))
				emit(opcode.OpPushLenDelim, 0)
				loopPC := emit(opcode.OpCheckDelim, 0)
				emit(op, f.Number())
				backPC := emit(opcode.OpBranch, 0)
				popPC := emit(opcode.OpPop, 0)
				exitPC := emit(opcode.OpBranch, 0)

				m.code[loopPC] = opcode.Make(opcode.OpCheckDelim, int32(popPC-loopPC))
				m.code[backPC] = opcode.Make(opcode.OpBranch, int32(loopPC-backPC))
				m.code[exitPC] = opcode.Make(opcode.OpBranch, int32(m.checkDelimPC-exitPC))
			}
			m.dispatch[f.Number()] = entry
			continue
		}
		branchFixups = append(branchFixups, emit(opcode.OpBranch, 0))
		m.dispatch[f.Number()] = entry
	}

	m.endMsgPC = len(m.code)
	emit(opcode.OpEndMsg, 0)
	emit(opcode.OpRet, 0)
	emit(opcode.OpHalt, 0) // defensive: unreachable unless PC escapes RET.

	m.code[m.checkDelimPC] = opcode.Make(opcode.OpCheckDelim, int32(m.endMsgPC-m.checkDelimPC))
	for _, pc := range branchFixups {
		m.code[pc] = opcode.Make(opcode.OpBranch, int32(m.checkDelimPC-pc))
	}
	return m, nil
}

// parseOpFor maps a scalar field's logical kind to its PARSE_* opcode
// and the wire type that opcode expects on the wire.
func parseOpFor(k Kind) (opcode.Op, wire.Type) {
	switch k {
	case KindDouble:
		return opcode.OpParseDouble, wire.Fixed64
	case KindFloat:
		return opcode.OpParseFloat, wire.Fixed32
	case KindInt64:
		return opcode.OpParseInt64, wire.Varint
	case KindUint64:
		return opcode.OpParseUint64, wire.Varint
	case KindInt32:
		return opcode.OpParseInt32, wire.Varint
	case KindFixed64:
		return opcode.OpParseFixed64, wire.Fixed64
	case KindFixed32:
		return opcode.OpParseFixed32, wire.Fixed32
	case KindBool:
		return opcode.OpParseBool, wire.Varint
	case KindUint32:
		return opcode.OpParseUint32, wire.Varint
	case KindSfixed32:
		return opcode.OpParseSfixed32, wire.Fixed32
	case KindSfixed64:
		return opcode.OpParseSfixed64, wire.Fixed64
	case KindSint32:
		return opcode.OpParseSint32, wire.Varint
	case KindSint64:
		return opcode.OpParseSint64, wire.Varint
	case KindEnum:
		return opcode.OpParseInt32, wire.Varint
	default:
		return opcode.OpParseInt32, wire.Varint
	}
}
