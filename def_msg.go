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
	"sort"

	"github.com/upb-go/upb/internal/refcount"
)

// MsgDef describes a message type: its fields (indexed both by number
// and by name), its oneofs, and whether it is a synthesized map-entry
// message.
type MsgDef struct {
	refcount.Base

	name     string
	fullName string

	byNumber map[int32]*FieldDef
	byName   map[string]*FieldDef
	oneofs   map[string]*OneofDef

	mapEntry bool

	// Populated by freeze; see selector.go.
	selectorCount    int32
	submsgFieldCount int32
	orderedFields    []*FieldDef // sorted per the selector-assignment rule.
}

// NewMsg creates a mutable, empty message definition.
func NewMsg(fullName string, owner any) *MsgDef {
	m := &MsgDef{
		fullName: fullName,
		name:     lastComponent(fullName),
		byNumber: map[int32]*FieldDef{},
		byName:   map[string]*FieldDef{},
		oneofs:   map[string]*OneofDef{},
	}
	refcount.Init(m, owner)
	return m
}

// FullName returns the message's fully qualified, dot-separated name.
func (m *MsgDef) FullName() string { return m.fullName }

// Name returns the message's unqualified name.
func (m *MsgDef) Name() string { return m.name }

// SetMapEntry marks this message as a synthesized map-entry message
// (fields 1=key, 2=value); map-typed fields in the surrounding schema
// reference one of these and are rendered as repeated by consumers that
// don't special-case map_entry.
func (m *MsgDef) SetMapEntry(v bool) { m.mapEntry = v }

// MapEntry reports whether this message is a synthesized map entry.
func (m *MsgDef) MapEntry() bool { return m.mapEntry }

// AddField adds f to this message. Fails if f's number or name
// duplicates an existing field.
func (m *MsgDef) AddField(f *FieldDef) error {
	if _, dup := m.byNumber[f.number]; dup {
		return newError(KindValidation, errDuplicateNumber, "message %q: duplicate field number %d", m.fullName, f.number)
	}
	if _, dup := m.byName[f.name]; dup {
		return newError(KindValidation, errDuplicateName, "message %q: duplicate field name %q", m.fullName, f.name)
	}
	m.byNumber[f.number] = f
	m.byName[f.name] = f
	refcount.Ref2(f, m)
	return nil
}

// AddOneof adds an (otherwise empty) oneof container to this message.
// Fields are attached to it afterward via [OneofDef.AddField].
func (m *MsgDef) AddOneof(o *OneofDef) error {
	if _, dup := m.oneofs[o.name]; dup {
		return newError(KindValidation, errDuplicateName, "message %q: duplicate oneof name %q", m.fullName, o.name)
	}
	o.msg = m
	m.oneofs[o.name] = o
	refcount.Ref2(o, m)
	return nil
}

// FieldByNumber looks up a field by its wire number.
func (m *MsgDef) FieldByNumber(n int32) *FieldDef { return m.byNumber[n] }

// FieldByName looks up a field by its declared name.
func (m *MsgDef) FieldByName(name string) *FieldDef { return m.byName[name] }

// Fields ranges over every field of this message: in field-number order
// until selectors have been assigned, and afterwards submessage-class
// fields first, then the rest, each part in field-number order.
func (m *MsgDef) Fields() iter.Seq[*FieldDef] {
	return func(yield func(*FieldDef) bool) {
		if m.orderedFields != nil {
			for _, f := range m.orderedFields {
				if !yield(f) {
					return
				}
			}
			return
		}
		nums := make([]int32, 0, len(m.byNumber))
		for n := range m.byNumber {
			nums = append(nums, n)
		}
		sort.Slice(nums, func(i, j int) bool { return nums[i] < nums[j] })
		for _, n := range nums {
			if !yield(m.byNumber[n]) {
				return
			}
		}
	}
}

// NumFields returns the number of fields in this message.
func (m *MsgDef) NumFields() int { return len(m.byNumber) }

// SelectorCount returns the total number of selectors reserved for this
// message's handler table. Only valid once frozen.
func (m *MsgDef) SelectorCount() int32 { return m.selectorCount }

// SubmsgFieldCount returns the number of submessage-typed fields; also
// the size of the subhandlers array. Only valid once frozen.
func (m *MsgDef) SubmsgFieldCount() int32 { return m.submsgFieldCount }

// Edges implements [refcount.Object]: a message structurally owns its
// fields and oneofs.
func (m *MsgDef) Edges() iter.Seq[refcount.Object] {
	return func(yield func(refcount.Object) bool) {
		for _, f := range m.byName {
			if !yield(f) {
				return
			}
		}
		for _, o := range m.oneofs {
			if !yield(o) {
				return
			}
		}
	}
}

func (m *MsgDef) validate() *Error {
	for _, f := range m.byName {
		if err := f.validate(); err != nil {
			return err
		}
	}
	return nil
}
