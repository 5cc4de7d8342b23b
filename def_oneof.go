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

// OneofDef groups a set of a message's fields into a mutually-exclusive
// case set, with a back-pointer to its containing [MsgDef].
type OneofDef struct {
	refcount.Base

	name string
	msg  *MsgDef

	byName   map[string]*FieldDef
	byNumber map[int32]*FieldDef
}

// NewOneof creates a mutable, empty oneof definition.
func NewOneof(name string, owner any) *OneofDef {
	o := &OneofDef{
		name:     name,
		byName:   map[string]*FieldDef{},
		byNumber: map[int32]*FieldDef{},
	}
	refcount.Init(o, owner)
	return o
}

// Name returns the oneof's unqualified name.
func (o *OneofDef) Name() string { return o.name }

// Msg returns the message this oneof belongs to, or nil until added to
// one via [MsgDef.AddOneof].
func (o *OneofDef) Msg() *MsgDef { return o.msg }

// AddField adds an existing field of the containing message to this
// oneof. f must already have been added to the same message via
// [MsgDef.AddField].
func (o *OneofDef) AddField(f *FieldDef) error {
	if _, dup := o.byName[f.name]; dup {
		return newError(KindValidation, errDuplicateName, "oneof %q: duplicate field name %q", o.name, f.name)
	}
	o.byName[f.name] = f
	o.byNumber[f.number] = f
	f.oneof = o
	refcount.Ref2(f, o)
	return nil
}

// Fields ranges over this oneof's member fields.
func (o *OneofDef) Fields() iter.Seq[*FieldDef] {
	return func(yield func(*FieldDef) bool) {
		for _, f := range o.byName {
			if !yield(f) {
				return
			}
		}
	}
}

// Len returns the number of fields in this oneof.
func (o *OneofDef) Len() int { return len(o.byName) }

// Edges implements [refcount.Object].
func (o *OneofDef) Edges() iter.Seq[refcount.Object] {
	return func(yield func(refcount.Object) bool) {
		for _, f := range o.byName {
			if !yield(f) {
				return
			}
		}
	}
}

func (o *OneofDef) validate() *Error {
	for _, f := range o.byName {
		if f.IsRepeated() {
			return newError(KindValidation, errClosureMismatch, "oneof %q: member %q may not be repeated", o.name, f.name)
		}
	}
	return nil
}
