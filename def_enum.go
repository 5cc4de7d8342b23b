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

// EnumDef describes an enum type: a name<->number mapping (the name
// table is authoritative, since numbers may alias) plus a chosen
// default.
type EnumDef struct {
	refcount.Base

	name     string
	fullName string

	byName   map[string]int32
	byNumber map[int32]string // first name claiming a number wins (aliasing).

	defaultValue string
}

// NewEnum creates a mutable, empty enum definition.
func NewEnum(fullName string, owner any) *EnumDef {
	e := &EnumDef{
		fullName: fullName,
		name:     lastComponent(fullName),
		byName:   map[string]int32{},
		byNumber: map[int32]string{},
	}
	refcount.Init(e, owner)
	return e
}

// FullName returns the enum's fully qualified, dot-separated name.
func (e *EnumDef) FullName() string { return e.fullName }

// Name returns the enum's unqualified name.
func (e *EnumDef) Name() string { return e.name }

// AddValue adds a name/number pair to the enum. The first name claiming
// a given number becomes its canonical name for encoding purposes;
// subsequent names for the same number are accepted as aliases.
func (e *EnumDef) AddValue(name string, number int32) error {
	if !identRe.MatchString(name) {
		return newError(KindValidation, errBadName, "enum %q: value %q is not a valid identifier", e.fullName, name)
	}
	if _, dup := e.byName[name]; dup {
		return newError(KindValidation, errDuplicateName, "enum %q: duplicate value name %q", e.fullName, name)
	}
	e.byName[name] = number
	if _, has := e.byNumber[number]; !has {
		e.byNumber[number] = name
	}
	if len(e.byName) == 1 {
		e.defaultValue = name
	}
	return nil
}

// SetDefault selects the enum's default member by name.
func (e *EnumDef) SetDefault(name string) error {
	if _, ok := e.byName[name]; !ok {
		return newError(KindValidation, errNotFound, "enum %q: default %q is not a member", e.fullName, name)
	}
	e.defaultValue = name
	return nil
}

// Default returns the enum's default member name.
func (e *EnumDef) Default() string { return e.defaultValue }

// Number returns the number associated with name, and whether name is a
// member.
func (e *EnumDef) Number(name string) (int32, bool) {
	n, ok := e.byName[name]
	return n, ok
}

// NameOf returns the canonical (first-claimed) name for number, and
// whether any member claims it.
func (e *EnumDef) NameOf(number int32) (string, bool) {
	n, ok := e.byNumber[number]
	return n, ok
}

// Len returns the number of distinct value names (including aliases).
func (e *EnumDef) Len() int { return len(e.byName) }

// Edges implements [refcount.Object]; enums are leaves in the def graph.
func (e *EnumDef) Edges() iter.Seq[refcount.Object] {
	return func(func(refcount.Object) bool) {}
}

func (e *EnumDef) validate() *Error {
	if len(e.byName) == 0 {
		return newError(KindValidation, errEnumEmpty, "enum %q: must have at least one value", e.fullName)
	}
	return nil
}

func lastComponent(fullName string) string {
	for i := len(fullName) - 1; i >= 0; i-- {
		if fullName[i] == '.' {
			return fullName[i+1:]
		}
	}
	return fullName
}
