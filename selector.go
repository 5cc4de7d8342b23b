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

import "sort"

// Selector is a dense key identifying a (field, handler-kind) pair
// within a frozen message's handler table. Selectors are assigned once,
// at freeze time, by [assignSelectors].
type Selector int32

// Static selectors, shared by every message.
const (
	SelStartMsg Selector = 0
	SelEndMsg   Selector = 1

	// staticSelectorCount is UPB_STATIC_SELECTOR_COUNT: the number of
	// selectors every message reserves for itself before any per-field
	// selector is assigned.
	staticSelectorCount = 2
)

// noSel marks a selector slot that does not apply to a given field
// (e.g. EndSubMsg for a scalar field).
const noSel Selector = -1

// fieldSelectors is the full set of selectors a field may dispatch,
// indexed directly rather than computed from small offsets of a single
// base — this package's resolution of the "an implementation may freely
// split these into two arrays" note in the design doc's design notes
// section, which explicitly permits deviating from the original's
// single-base-plus-fixed-offset scheme as long as (a) STARTSUBMSG minus
// the static count equals the dense subhandlers index, and (b)
// selectors are unique within [0, selector_count) for the message.
type fieldSelectors struct {
	value       Selector // primitive value, or STRING data chunk.
	startSeq    Selector
	endSeq      Selector
	startStr    Selector
	endStr      Selector
	startSubMsg Selector // always == staticSelectorCount + dense index.
	endSubMsg   Selector
}

// isSubmsgClass reports whether f occupies the reserved low selector
// range and is indexable into the subhandlers array: true for any
// non-lazy message/group field. Lazy submessage fields are delivered as
// a string instead (see [FieldDef.Lazy]) and so rank with the other
// non-submessage fields.
func isSubmsgClass(f *FieldDef) bool {
	return f.kind.IsSubMessage() && !f.lazy
}

// assignSelectors computes selector ranks for every field of m and sets
// m.selectorCount/m.submsgFieldCount/m.orderedFields. Called once, by
// [SymbolTable.Add], immediately after m is committed by
// [refcount.Freeze].
func assignSelectors(m *MsgDef) {
	fields := make([]*FieldDef, 0, len(m.byNumber))
	for _, f := range m.byNumber {
		fields = append(fields, f)
	}
	sort.Slice(fields, func(i, j int) bool {
		si, sj := isSubmsgClass(fields[i]), isSubmsgClass(fields[j])
		if si != sj {
			return si // submessage-class fields sort first.
		}
		return fields[i].number < fields[j].number
	})

	var submsgCount int32
	for _, f := range fields {
		if isSubmsgClass(f) {
			submsgCount++
		}
	}

	cursor := Selector(staticSelectorCount + submsgCount)
	var denseIdx int32
	for i, f := range fields {
		f.index = i
		f.selectorBase = int32(cursor)
		sel := fieldSelectors{value: noSel, startSeq: noSel, endSeq: noSel, startStr: noSel, endStr: noSel, startSubMsg: noSel, endSubMsg: noSel}

		switch {
		case isSubmsgClass(f):
			sel.startSubMsg = Selector(staticSelectorCount) + Selector(denseIdx)
			denseIdx++
			if f.IsRepeated() {
				sel.startSeq, sel.endSeq = cursor, cursor+1
				cursor += 2
			}
			sel.endSubMsg = cursor
			cursor++
			// selectorBase for a submsg field is conventionally its
			// dense-index-derived start selector, not the cursor value.
			f.selectorBase = int32(sel.startSubMsg)

		case f.kind == KindString || f.kind == KindBytes || (f.kind.IsSubMessage() && f.lazy):
			if f.IsRepeated() {
				sel.startSeq, sel.endSeq = cursor, cursor+1
				cursor += 2
			}
			sel.startStr, sel.value, sel.endStr = cursor, cursor+1, cursor+2
			cursor += 3

		default: // scalar (numeric/bool/enum).
			if f.IsRepeated() {
				sel.startSeq, sel.endSeq = cursor, cursor+1
				cursor += 2
			}
			sel.value = cursor
			cursor++
		}

		f.sel = sel
	}

	m.orderedFields = fields
	m.selectorCount = int32(cursor)
	m.submsgFieldCount = submsgCount

	if debugCheckSelectors {
		checkSelectorUniqueness(m)
	}
}

// debugCheckSelectors gates the uniqueness self-check described in the
// design doc as a "debug-only pass"; left on by default since the check
// is cheap relative to the rest of freeze.
var debugCheckSelectors = true

func checkSelectorUniqueness(m *MsgDef) {
	seen := make(map[Selector]string, m.selectorCount)
	claim := func(sel Selector, tag string) {
		if sel == noSel {
			return
		}
		if sel < 0 || sel >= Selector(m.selectorCount) {
			panic(sel2msg(m, tag, sel, "out of range"))
		}
		if prior, dup := seen[sel]; dup {
			panic(sel2msg(m, tag, sel, "collides with "+prior))
		}
		seen[sel] = tag
	}
	claim(SelStartMsg, "STARTMSG")
	claim(SelEndMsg, "ENDMSG")
	for _, f := range m.orderedFields {
		claim(f.sel.value, f.name+".value")
		claim(f.sel.startSeq, f.name+".startSeq")
		claim(f.sel.endSeq, f.name+".endSeq")
		claim(f.sel.startStr, f.name+".startStr")
		claim(f.sel.endStr, f.name+".endStr")
		claim(f.sel.startSubMsg, f.name+".startSubMsg")
		claim(f.sel.endSubMsg, f.name+".endSubMsg")
	}
}

func sel2msg(m *MsgDef, tag string, sel Selector, reason string) string {
	return "upb: selector " + tag + " (" + m.fullName + ") = " + itoa(int(sel)) + ": " + reason
}

func itoa(v int) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
