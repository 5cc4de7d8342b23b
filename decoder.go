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
	"errors"

	"github.com/upb-go/upb/internal/opcode"
	"github.com/upb-go/upb/internal/vm"
	"github.com/upb-go/upb/internal/wire"
)

// Error codes private to the decode/compile space.
const (
	errNoCompiledMethod = iota + 100
	errBadTag
	errBadVarint
	errUnterminatedGroup
	errUnmatchedEndGroup
	errPCOutOfRange
	errResidualOverflow
	errAlreadyDone
)

// sentinel control-flow markers the interpreter loop uses internally;
// never returned from [Decoder.Decode].
var (
	errSuspendNeedMore = errors.New("upb: suspend, need more input")
	errSuspendSkip     = errors.New("upb: suspend, mid-skip")
	errHalted          = errors.New("upb: halted")
)

// DecoderOption configures a [Decoder] built by [NewDecoder].
type DecoderOption struct{ apply func(*decoderConfig) }

type decoderConfig struct{ maxDepth int }

// WithDecodeMaxDepth bounds the depth of the VM's frame stack, guarding
// against pathological or adversarial group/submessage nesting. Default
// [DefaultMaxDepth].
func WithDecodeMaxDepth(n int) DecoderOption {
	return DecoderOption{apply: func(c *decoderConfig) { c.maxDepth = n }}
}

// Decoder drives one resumable decode of a single top-level message
// against a compiled [Program], using the rules of §4.4: a zero-length
// [Decoder.Decode] call signals end of input, and a call may consume
// fewer bytes than supplied (suspended mid-value, residual carried
// forward). A skip of an unrecognized field that spans past the end of
// a call's buffer is finished by discarding bytes from the start of the
// following calls; Decode never reports more bytes than it was given.
type Decoder struct {
	prog     *Program
	state    *vm.State[Sink]
	maxDepth int
	done     bool
}

// NewDecoder creates a decoder for one message of root's type, using
// root as the top-level closure.
func NewDecoder(prog *Program, root Sink, opts ...DecoderOption) *Decoder {
	cfg := decoderConfig{maxDepth: DefaultMaxDepth}
	for _, o := range opts {
		o.apply(&cfg)
	}
	st := vm.New(vm.Frame[Sink]{EndOfs: vm.RootEnd, Closure: root})
	// Drop the pinned reference to the caller's root closure as soon as
	// the arena is released, rather than waiting for the Decoder value
	// itself to be collected (a Decoder may be kept around briefly after
	// Done() purely to read back its final consumed-byte count).
	st.AddCleanup(func() { st.Top().Closure = Sink{} })
	return &Decoder{prog: prog, state: st, maxDepth: cfg.maxDepth}
}

// Done reports whether the decode has finished: either the top-level
// message has been fully decoded (ENDMSG has fired and the call stack is
// empty) or a handler stopped the decode by returning false. Decode
// returns no error in either case.
func (d *Decoder) Done() bool { return d.done }

// Decode feeds buf to the decoder and runs the interpreter as far as it
// will go. It returns the number of bytes of buf consumed, which may be
// less than len(buf) (suspended; the remainder is residual for the next
// call) but is never more than len(buf): when the skip of an
// unrecognized field runs past the end of buf, Decode reports len(buf)
// and discards the rest of that field from the start of the following
// calls. A zero-length call signals end of input; once the whole
// message has been decoded it returns nil, and if input ends inside an
// unfinished value, a delimited region or a pending skip it returns a
// [KindUnexpectedEOF] error.
//
// Calling Decode again after it has returned done is an error.
func (d *Decoder) Decode(buf []byte) (int, error) {
	if d.done {
		return 0, newError(KindUnexpectedEOF, errAlreadyDone, "decode: already complete")
	}

	origLen := int64(len(buf))
	if origLen == 0 && d.state.PendingSkip > 0 {
		d.state.Release()
		return 0, newError(KindUnexpectedEOF, 0, "decode: end of input with %d bytes of an unknown field left to skip", d.state.PendingSkip)
	}
	skipConsumed := int64(0)
	if d.state.PendingSkip > 0 {
		n := int64(len(buf))
		if n > d.state.PendingSkip {
			n = d.state.PendingSkip
		}
		d.state.PendingSkip -= n
		skipConsumed = n
		buf = buf[n:]
		if d.state.PendingSkip > 0 {
			return int(n), nil
		}
	}

	eof := origLen == 0
	d.state.Feed(buf)

	err := d.run(eof)
	if eof && (err == errSuspendNeedMore || err == errSuspendSkip) {
		err = newError(KindUnexpectedEOF, 0, "decode: end of input inside an unfinished value or delimited region")
	}
	if e, ok := err.(*Error); ok {
		e.Offset = d.state.Pos()
	}
	tail := int64(d.state.Remaining())
	consumed := int64(len(buf)) - tail
	if consumed < 0 {
		consumed = 0
	}
	consumed += skipConsumed

	switch {
	case err == errSuspendNeedMore:
		if !d.state.SuspendResidual() {
			e := newError(KindWireFormat, errResidualOverflow, "value spans more than %d unbuffered bytes", vm.ResidualCap)
			e.Offset = d.state.Pos()
			return int(consumed), e
		}
		return int(consumed), nil
	case err == errSuspendSkip:
		return int(origLen), nil
	case err == errHalted:
		d.done = true
		d.state.Release()
		return int(consumed), nil
	default:
		if err != nil {
			// A hard error ends this decode for good (callers don't retry
			// a malformed parse); release the arena-backed state now
			// rather than leaving it to a future GC of the Decoder.
			d.state.Release()
		}
		return int(consumed), err
	}
}

// run executes instructions until the interpreter needs more input,
// completes a skip that overruns the buffer, halts (the top-level
// message is fully decoded or a handler asked to stop), or errors.
func (d *Decoder) run(eof bool) error {
	for {
		method := d.prog.methods[d.state.Method]
		if d.state.PC < 0 || d.state.PC >= len(method.code) {
			return newError(KindWireFormat, errPCOutOfRange, "decode: pc %d out of range for method with %d instructions", d.state.PC, len(method.code))
		}
		instr := method.code[d.state.PC]

		switch instr.Op() {
		case opcode.OpHalt:
			return errHalted

		case opcode.OpSetDispatch:
			// No-op: unlike the original, State.Method already persists
			// across suspensions, so there is nothing to re-seat here.
			d.state.PC++

		case opcode.OpStartMsg:
			top := d.state.Top()
			sink, cont := top.Closure.StartMsg()
			top.Closure = sink
			if !cont {
				return errHalted
			}
			d.state.PC++

		case opcode.OpEndMsg:
			top := d.state.Top()
			for f := range method.h.msg.Fields() {
				if f.IsRepeated() && top.Started[f.Number()] {
					top.Closure.EndSeq(f.EndSeqSelector())
					delete(top.Started, f.Number())
				}
			}
			top.Closure.EndMsg()
			d.state.PC++

		case opcode.OpCheckDelim:
			if err := d.execCheckDelim(instr, eof); err != nil {
				return err
			}

		case opcode.OpDispatch:
			if err := d.execDispatch(method); err != nil {
				return err
			}

		case opcode.OpBranch:
			d.state.PC += int(instr.Arg())

		case opcode.OpCall:
			d.state.PC++ // return address is the instruction after CALL.
			d.state.PushCall(int(instr.Arg()))

		case opcode.OpRet:
			if !d.state.PopCall() {
				return errHalted
			}

		case opcode.OpPushLenDelim:
			if err := d.execPushLenDelim(); err != nil {
				return err
			}

		case opcode.OpPushTagDelim:
			if err := d.depthGuard(); err != nil {
				return err
			}
			parent := d.state.Top()
			d.state.PushFrame(vm.Frame[Sink]{EndOfs: parent.EndOfs, GroupNum: instr.Arg(), Closure: parent.Closure})
			d.state.PC++

		case opcode.OpPop:
			d.state.PopFrame()
			d.state.PC++

		case opcode.OpSetDelim, opcode.OpSetBigGroupNum, opcode.OpTag1, opcode.OpTag2, opcode.OpTagN:
			// SETDELIM is superseded by this VM's absolute-offset frames
			// (see internal/vm doc comment); big group numbers and the
			// literal tag fast-path opcodes are never emitted by
			// [compileMethod] (see DESIGN.md) but are handled here, as
			// no-ops, for forward compatibility with hand-written bytecode.
			d.state.PC++

		case opcode.OpStartSeq:
			if err := d.execStartSeq(method, instr.Arg()); err != nil {
				return err
			}

		case opcode.OpStartSubMsg:
			if err := d.execStartSubMsg(method, instr.Arg()); err != nil {
				return err
			}

		case opcode.OpEndSubMsg:
			f := method.h.msg.FieldByNumber(instr.Arg())
			d.state.Top().Closure.EndSubMsg(f.EndSubMsgSelector())
			d.state.PC++

		case opcode.OpStartStr:
			if err := d.execStartStr(method, instr.Arg()); err != nil {
				return err
			}

		case opcode.OpString:
			if err := d.execString(method, instr.Arg()); err != nil {
				return err
			}

		case opcode.OpEndStr:
			f := method.h.msg.FieldByNumber(instr.Arg())
			d.state.Top().Closure.EndStr(f.EndStrSelector())
			d.state.PC++

		case opcode.OpParseDouble, opcode.OpParseFloat, opcode.OpParseInt64, opcode.OpParseUint64,
			opcode.OpParseInt32, opcode.OpParseFixed64, opcode.OpParseFixed32, opcode.OpParseBool,
			opcode.OpParseUint32, opcode.OpParseSfixed32, opcode.OpParseSfixed64,
			opcode.OpParseSint32, opcode.OpParseSint64:
			if err := d.execValue(method, instr.Op(), instr.Arg()); err != nil {
				return err
			}

		default:
			d.state.PC++
		}
	}
}

func (d *Decoder) execCheckDelim(instr opcode.Instr, eof bool) error {
	top := d.state.Top()
	finished := false
	if top.EndOfs == vm.RootEnd {
		if d.state.Remaining() == 0 {
			if !eof {
				return errSuspendNeedMore
			}
			finished = true
		}
	} else if d.state.Pos() >= int64(top.EndOfs) {
		finished = true
	}
	if !finished {
		d.state.PC++
		return nil
	}
	if top.Skip {
		return newError(KindWireFormat, errUnterminatedGroup, "unterminated group field %d", top.GroupNum)
	}
	d.state.PC += int(instr.Arg())
	return nil
}

func (d *Decoder) execDispatch(method *DecoderMethod) error {
	fieldNum, wt, n, ok := wire.DecodeTag(d.state.Peek())
	if n == 0 {
		return errSuspendNeedMore
	}
	if !ok {
		return newError(KindWireFormat, errBadTag, "malformed field tag")
	}
	top := d.state.Top()
	if wt == wire.EndGroup && top.GroupNum != 0 && fieldNum == top.GroupNum {
		d.state.Advance(n)
		if top.Skip {
			d.state.PopFrame()
			d.state.PC = method.checkDelimPC
			return nil
		}
		d.state.PC = method.endMsgPC
		return nil
	}

	if entry, found := method.dispatch[fieldNum]; found && !top.Skip {
		if entry.wireType == wt {
			d.state.Advance(n)
			d.state.PC = int(entry.offset)
			return nil
		}
		if entry.hasAlt && entry.altWireType == wt {
			d.state.Advance(n)
			d.state.PC = int(entry.altOffset)
			return nil
		}
	}
	d.state.Advance(n)
	return d.skipValue(wt, fieldNum, method)
}

// skipValue discards one unrecognized field's value per its wire type.
// A length-delimited value whose declared length overruns the bytes
// currently available sets [vm.State.PendingSkip] and suspends — the
// "skip needs more than was supplied" half of the resumable contract.
func (d *Decoder) skipValue(wt wire.Type, fieldNum int32, method *DecoderMethod) error {
	switch wt {
	case wire.Varint:
		_, n, ok := wire.DecodeVarint(d.state.Peek())
		if n == 0 {
			return errSuspendNeedMore
		}
		if !ok {
			return newError(KindWireFormat, errBadVarint, "malformed varint while skipping unknown field %d", fieldNum)
		}
		d.state.Advance(n)
	case wire.Fixed64:
		if d.state.Remaining() < 8 {
			return errSuspendNeedMore
		}
		d.state.Advance(8)
	case wire.Fixed32:
		if d.state.Remaining() < 4 {
			return errSuspendNeedMore
		}
		d.state.Advance(4)
	case wire.Bytes:
		length, n, ok := wire.DecodeVarint(d.state.Peek())
		if n == 0 {
			return errSuspendNeedMore
		}
		if !ok {
			return newError(KindWireFormat, errBadVarint, "malformed length while skipping unknown field %d", fieldNum)
		}
		d.state.Advance(n)
		if int64(d.state.Remaining()) >= int64(length) {
			d.state.Advance(int(length))
		} else {
			need := int64(length) - int64(d.state.Remaining())
			d.state.Advance(d.state.Remaining())
			d.state.PendingSkip = need
			return errSuspendSkip
		}
	case wire.StartGroup:
		if err := d.depthGuard(); err != nil {
			return err
		}
		parent := d.state.Top()
		d.state.PushFrame(vm.Frame[Sink]{EndOfs: parent.EndOfs, GroupNum: fieldNum, Skip: true, Closure: parent.Closure})
		d.state.PC = method.checkDelimPC
		return nil
	case wire.EndGroup:
		return newError(KindWireFormat, errUnmatchedEndGroup, "unmatched end-group tag for field %d", fieldNum)
	}
	d.state.PC = method.checkDelimPC
	return nil
}

// depthGuard reports an error if pushing one more frame would exceed
// the decoder's configured maximum nesting depth.
func (d *Decoder) depthGuard() error {
	if len(d.state.Frames) >= d.maxDepth {
		return newError(KindDepthExceeded, 0, "decode: nesting exceeds max depth %d", d.maxDepth)
	}
	return nil
}

func (d *Decoder) execPushLenDelim() error {
	length, n, ok := wire.DecodeVarint(d.state.Peek())
	if n == 0 {
		return errSuspendNeedMore
	}
	if !ok {
		return newError(KindWireFormat, errBadVarint, "malformed length-delimited size")
	}
	if err := d.depthGuard(); err != nil {
		return err
	}
	d.state.Advance(n)
	parent := d.state.Top()
	d.state.PushFrame(vm.Frame[Sink]{EndOfs: uint64(d.state.Pos()) + length, Closure: parent.Closure})
	d.state.PC++
	return nil
}

func (d *Decoder) execStartSeq(method *DecoderMethod, fieldNum int32) error {
	f := method.h.msg.FieldByNumber(fieldNum)
	top := d.state.Top()
	if !top.Started[fieldNum] {
		sink, cont := top.Closure.StartSeq(f.StartSeqSelector())
		top.Closure = sink
		if top.Started == nil {
			top.Started = map[int32]bool{}
		}
		top.Started[fieldNum] = true
		if !cont {
			return errHalted
		}
	}
	d.state.PC++
	return nil
}

func (d *Decoder) execStartSubMsg(method *DecoderMethod, fieldNum int32) error {
	f := method.h.msg.FieldByNumber(fieldNum)
	parent := &d.state.Frames[len(d.state.Frames)-2]
	child := d.state.Top()
	sink, cont := parent.Closure.StartSubMsg(f)
	child.Closure = sink
	if !cont {
		return errHalted
	}
	d.state.PC++
	return nil
}

func (d *Decoder) execStartStr(method *DecoderMethod, fieldNum int32) error {
	f := method.h.msg.FieldByNumber(fieldNum)
	parent := &d.state.Frames[len(d.state.Frames)-2]
	child := d.state.Top()
	sizeHint := int(int64(child.EndOfs) - d.state.Pos())
	sink, cont := parent.Closure.StartStr(f.StartStrSelector(), sizeHint)
	child.Closure = sink
	if !cont {
		return errHalted
	}
	d.state.PC++
	return nil
}

func (d *Decoder) execString(method *DecoderMethod, fieldNum int32) error {
	f := method.h.msg.FieldByNumber(fieldNum)
	top := d.state.Top()
	remaining := int64(top.EndOfs) - d.state.Pos()
	if remaining < 0 {
		remaining = 0
	}
	avail := int64(d.state.Remaining())
	want := remaining
	if avail < want {
		want = avail
	}
	if want == 0 && remaining > 0 {
		return errSuspendNeedMore
	}
	chunk := d.state.Peek()[:want]
	n, cont := top.Closure.String(f.ValueSelector(), chunk)
	if n < 0 {
		n = 0
	}
	if int64(n) > want {
		n = int(want)
	}
	d.state.Advance(n)
	if !cont {
		return errHalted
	}
	if d.state.Pos() < int64(top.EndOfs) {
		return errSuspendNeedMore
	}
	d.state.PC++
	return nil
}

func (d *Decoder) execValue(method *DecoderMethod, op opcode.Op, fieldNum int32) error {
	f := method.h.msg.FieldByNumber(fieldNum)
	var raw uint64
	switch op {
	case opcode.OpParseDouble, opcode.OpParseFixed64, opcode.OpParseSfixed64:
		v, ok := wire.DecodeFixed64(d.state.Peek())
		if !ok {
			return errSuspendNeedMore
		}
		d.state.Advance(8)
		raw = v
	case opcode.OpParseFloat, opcode.OpParseFixed32, opcode.OpParseSfixed32:
		v, ok := wire.DecodeFixed32(d.state.Peek())
		if !ok {
			return errSuspendNeedMore
		}
		d.state.Advance(4)
		raw = uint64(v)
	case opcode.OpParseSint32:
		v, n, ok := wire.DecodeVarint(d.state.Peek())
		if n == 0 {
			return errSuspendNeedMore
		}
		if !ok {
			return newError(KindWireFormat, errBadVarint, "malformed varint for field %d", fieldNum)
		}
		d.state.Advance(n)
		raw = uint64(uint32(wire.ZigZagDecode32(uint32(v))))
	case opcode.OpParseSint64:
		v, n, ok := wire.DecodeVarint(d.state.Peek())
		if n == 0 {
			return errSuspendNeedMore
		}
		if !ok {
			return newError(KindWireFormat, errBadVarint, "malformed varint for field %d", fieldNum)
		}
		d.state.Advance(n)
		raw = uint64(wire.ZigZagDecode64(v))
	default:
		v, n, ok := wire.DecodeVarint(d.state.Peek())
		if n == 0 {
			return errSuspendNeedMore
		}
		if !ok {
			return newError(KindWireFormat, errBadVarint, "malformed varint for field %d", fieldNum)
		}
		d.state.Advance(n)
		raw = v
	}
	if !d.state.Top().Closure.Value(f.ValueSelector(), raw) {
		return errHalted
	}
	d.state.PC++
	return nil
}
