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

// This file turns the worked examples of §8 ("testable properties and
// scenarios") into literal unit tests: one test per scenario, each
// feeding the exact wire bytes named there and asserting the exact
// event trace named there.

package upb

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func traceHandlers(m *MsgDef, trace *[]string) *Handlers {
	h := NewHandlers(m, "t", nil)
	h.SetStartMsg(func(c any) (any, bool) {
		*trace = append(*trace, "STARTMSG")
		return c, true
	}, nil)
	h.SetEndMsg(func(_ any) bool {
		*trace = append(*trace, "ENDMSG")
		return true
	}, nil)
	return h
}

// S1: one int32 field, non-repeated, varint wire form.
func TestScenarioS1(t *testing.T) {
	m := NewMsg("test.S1", nil)
	aF := NewField("a", 1, LabelOptional, KindInt32, nil)
	require.NoError(t, m.AddField(aF))
	assignSelectors(m)

	var trace []string
	h := traceHandlers(m, &trace)
	h.SetValue(aF, func(_ any, raw uint64) bool {
		trace = append(trace, fmt.Sprintf("INT32(a)=%d", int32(raw)))
		return true
	}, nil)

	prog, err := Compile(h)
	require.NoError(t, err)
	dec := NewDecoder(prog, NewSink(h, nil))

	buf := []byte{0x08, 0x96, 0x01}
	n, err := dec.Decode(buf)
	require.NoError(t, err)
	require.Equal(t, len(buf), n)
	_, err = dec.Decode(nil)
	require.NoError(t, err)

	require.Equal(t, []string{"STARTMSG", "INT32(a)=150", "ENDMSG"}, trace)
}

// S2: one string field, length-delimited.
func TestScenarioS2(t *testing.T) {
	m := NewMsg("test.S2", nil)
	sF := NewField("s", 2, LabelOptional, KindString, nil)
	require.NoError(t, m.AddField(sF))
	assignSelectors(m)

	var trace []string
	h := traceHandlers(m, &trace)
	h.SetStartStr(sF, func(c any, _ int) (any, bool) {
		trace = append(trace, "STARTSTR(s)")
		return c, true
	}, "t", nil)
	h.SetString(sF, func(_ any, chunk []byte) (int, bool) {
		trace = append(trace, fmt.Sprintf("STRING(s,%q)", string(chunk)))
		return len(chunk), true
	}, nil)
	h.SetEndStr(sF, func(_ any) bool {
		trace = append(trace, "ENDSTR(s)")
		return true
	}, nil)

	prog, err := Compile(h)
	require.NoError(t, err)
	dec := NewDecoder(prog, NewSink(h, nil))

	buf := []byte{0x12, 0x03, 'a', 'b', 'c'}
	n, err := dec.Decode(buf)
	require.NoError(t, err)
	require.Equal(t, len(buf), n)
	_, err = dec.Decode(nil)
	require.NoError(t, err)

	require.Equal(t, []string{"STARTMSG", "STARTSTR(s)", `STRING(s,"abc")`, "ENDSTR(s)", "ENDMSG"}, trace)
}

// S3: a non-lazy submessage field.
func TestScenarioS3(t *testing.T) {
	inner := NewMsg("test.S3Inner", nil)
	xF := NewField("x", 1, LabelOptional, KindInt32, nil)
	require.NoError(t, inner.AddField(xF))
	assignSelectors(inner)

	outer := NewMsg("test.S3Outer", nil)
	mF := NewField("m", 3, LabelOptional, KindMessage, nil)
	mF.SetSubMessage(inner)
	require.NoError(t, outer.AddField(mF))
	assignSelectors(outer)

	var trace []string
	innerH := traceHandlers(inner, &trace)
	innerH.SetValue(xF, func(_ any, raw uint64) bool {
		trace = append(trace, fmt.Sprintf("INT32(x)=%d", int32(raw)))
		return true
	}, nil)

	outerH := traceHandlers(outer, &trace)
	outerH.SetStartSubMsg(mF, func(c any) (any, bool) {
		trace = append(trace, "STARTSUBMSG(m)")
		return c, true
	}, "t", nil)
	outerH.SetEndSubMsg(mF, func(_ any) bool {
		trace = append(trace, "ENDSUBMSG(m)")
		return true
	}, nil)
	require.NoError(t, outerH.SetSubHandlers(mF, innerH))

	prog, err := Compile(outerH)
	require.NoError(t, err)
	dec := NewDecoder(prog, NewSink(outerH, nil))

	buf := []byte{0x1A, 0x02, 0x08, 0x2A}
	n, err := dec.Decode(buf)
	require.NoError(t, err)
	require.Equal(t, len(buf), n)
	_, err = dec.Decode(nil)
	require.NoError(t, err)

	require.Equal(t, []string{
		"STARTMSG", "STARTSUBMSG(m)", "STARTMSG", "INT32(x)=42", "ENDMSG", "ENDSUBMSG(m)", "ENDMSG",
	}, trace)
}

func buildS4S5Schema(trace *[]string) (*MsgDef, *FieldDef, *Handlers) {
	m := NewMsg("test.S4S5", nil)
	rF := NewField("r", 4, LabelRepeated, KindInt32, nil)
	_ = m.AddField(rF)
	assignSelectors(m)

	h := traceHandlers(m, trace)
	h.SetStartSeq(rF, func(c any) (any, bool) {
		*trace = append(*trace, "STARTSEQ(r)")
		return c, true
	}, nil)
	h.SetValue(rF, func(_ any, raw uint64) bool {
		*trace = append(*trace, fmt.Sprintf("INT32=%d", int32(raw)))
		return true
	}, nil)
	h.SetEndSeq(rF, func(_ any) bool {
		*trace = append(*trace, "ENDSEQ(r)")
		return true
	}, nil)
	return m, rF, h
}

// S4: packed repeated int32.
func TestScenarioS4(t *testing.T) {
	var trace []string
	_, _, h := buildS4S5Schema(&trace)

	prog, err := Compile(h)
	require.NoError(t, err)
	dec := NewDecoder(prog, NewSink(h, nil))

	buf := []byte{0x22, 0x03, 0x01, 0x02, 0x03}
	n, err := dec.Decode(buf)
	require.NoError(t, err)
	require.Equal(t, len(buf), n)
	_, err = dec.Decode(nil)
	require.NoError(t, err)

	require.Equal(t, []string{
		"STARTMSG", "STARTSEQ(r)", "INT32=1", "INT32=2", "INT32=3", "ENDSEQ(r)", "ENDMSG",
	}, trace)
}

// S5: same schema, non-packed wire form — identical trace to S4.
func TestScenarioS5(t *testing.T) {
	var trace []string
	_, _, h := buildS4S5Schema(&trace)

	prog, err := Compile(h)
	require.NoError(t, err)
	dec := NewDecoder(prog, NewSink(h, nil))

	buf := []byte{0x20, 0x01, 0x20, 0x02, 0x20, 0x03}
	n, err := dec.Decode(buf)
	require.NoError(t, err)
	require.Equal(t, len(buf), n)
	_, err = dec.Decode(nil)
	require.NoError(t, err)

	require.Equal(t, []string{
		"STARTMSG", "STARTSEQ(r)", "INT32=1", "INT32=2", "INT32=3", "ENDSEQ(r)", "ENDMSG",
	}, trace)
}

// S6: unknown group, no field 4 in the schema — consumed but silent
// beyond STARTMSG/ENDMSG.
func TestScenarioS6(t *testing.T) {
	m := NewMsg("test.S6", nil)
	assignSelectors(m)

	var trace []string
	h := traceHandlers(m, &trace)

	prog, err := Compile(h)
	require.NoError(t, err)
	dec := NewDecoder(prog, NewSink(h, nil))

	buf := []byte{0x23, 0x28, 0x07, 0x24}
	n, err := dec.Decode(buf)
	require.NoError(t, err)
	require.Equal(t, len(buf), n)
	_, err = dec.Decode(nil)
	require.NoError(t, err)

	require.Equal(t, []string{"STARTMSG", "ENDMSG"}, trace)
}
