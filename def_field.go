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
	"regexp"

	"github.com/stoewer/go-strcase"

	"github.com/upb-go/upb/internal/refcount"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// FieldDef describes one field of a [MsgDef]. It is mutable until the
// message it belongs to is frozen (see [SymbolTable.Add]).
type FieldDef struct {
	refcount.Base

	name   string
	number int32
	label  Label
	kind   Kind
	enc    Encoding

	lazy, packed, isExtension, tagDelimited bool

	def DefaultValue

	// Exactly one of subRef (a pending ".pkg.Name" symbolic reference) or
	// subdef (a resolved pointer) is populated for message/enum/group
	// fields; both are empty for scalar fields.
	subRef string
	subMsg *MsgDef
	subEnm *EnumDef

	oneof *OneofDef // non-owning back-pointer; nil if not in a oneof.

	// Populated by freeze; see selector.go.
	index        int // dense index within the containing message.
	selectorBase int32
	sel          fieldSelectors
}

// NewField creates a mutable field named name with the given number,
// label, and kind, with one external reference attributed to owner.
func NewField(name string, number int32, label Label, kind Kind, owner any) *FieldDef {
	f := &FieldDef{name: name, number: number, label: label, kind: kind}
	refcount.Init(f, owner)
	return f
}

// Name returns the field's unqualified name.
func (f *FieldDef) Name() string { return f.name }

// JSONName derives the canonical protobuf JSON name (lowerCamelCase) for
// this field, the same derivation an external descriptor reader would
// otherwise have to perform by hand.
func (f *FieldDef) JSONName() string { return strcase.LowerCamelCase(f.name) }

// Number returns the field's 1-based field number.
func (f *FieldDef) Number() int32 { return f.number }

// Label returns the field's cardinality.
func (f *FieldDef) Label() Label { return f.label }

// IsRepeated reports whether this field has repeated cardinality.
func (f *FieldDef) IsRepeated() bool { return f.label == LabelRepeated }

// Kind returns the field's logical type.
func (f *FieldDef) Kind() Kind { return f.kind }

// SetEncoding sets the descriptor-level integer-encoding hint for a
// numeric field (ignored for non-numeric kinds).
func (f *FieldDef) SetEncoding(e Encoding) { f.enc = e }

// Encoding returns the field's integer-encoding hint.
func (f *FieldDef) Encoding() Encoding { return f.enc }

// SetLazy marks a message-typed field as lazily parsed.
func (f *FieldDef) SetLazy(v bool) { f.lazy = v }

// Lazy reports whether this field is lazily parsed.
func (f *FieldDef) Lazy() bool { return f.lazy }

// SetPacked marks a repeated numeric field as using the packed wire
// encoding.
func (f *FieldDef) SetPacked(v bool) { f.packed = v }

// Packed reports whether this field uses the packed wire encoding.
func (f *FieldDef) Packed() bool { return f.packed }

// SetExtension marks this field as an extension field.
func (f *FieldDef) SetExtension(v bool) { f.isExtension = v }

// IsExtension reports whether this is an extension field.
func (f *FieldDef) IsExtension() bool { return f.isExtension }

// SetTagDelimited marks a message-typed field as using the group
// (start/end tag) wire encoding rather than length-delimited.
func (f *FieldDef) SetTagDelimited(v bool) { f.tagDelimited = v }

// TagDelimited reports whether this field uses group wire encoding.
func (f *FieldDef) TagDelimited() bool { return f.tagDelimited }

// SetDefault sets the field's default value.
func (f *FieldDef) SetDefault(d DefaultValue) { f.def = d }

// Default returns the field's default value.
func (f *FieldDef) Default() DefaultValue { return f.def }

// SetSubMessage binds this field directly to a resolved message subdef
// (must be called for Kind message/group fields) and records the ref2
// edge required by the refcount core.
func (f *FieldDef) SetSubMessage(m *MsgDef) {
	f.subRef = ""
	f.subMsg = m
	f.subEnm = nil
	refcount.Ref2(m, f)
}

// SetSubEnum binds this field directly to a resolved enum subdef (must
// be called for Kind enum fields).
func (f *FieldDef) SetSubEnum(e *EnumDef) {
	f.subRef = ""
	f.subEnm = e
	f.subMsg = nil
	refcount.Ref2(e, f)
}

// SetSymbolicSubRef records a pending ".pkg.Name"-style reference to be
// resolved by [SymbolTable.Add] before freezing. Absolute names (a
// leading '.') are the only form accepted; see [SymbolTable.Add].
func (f *FieldDef) SetSymbolicSubRef(name string) {
	f.subRef = name
	f.subMsg = nil
	f.subEnm = nil
}

// SubMessage returns this field's resolved message subdef, or nil.
func (f *FieldDef) SubMessage() *MsgDef { return f.subMsg }

// SubEnum returns this field's resolved enum subdef, or nil.
func (f *FieldDef) SubEnum() *EnumDef { return f.subEnm }

// Unresolved reports whether this field still carries a pending symbolic
// subdef reference.
func (f *FieldDef) Unresolved() bool { return f.subRef != "" }

// Oneof returns the oneof this field belongs to, or nil.
func (f *FieldDef) Oneof() *OneofDef { return f.oneof }

// Index returns this field's dense index within its containing message.
// Only valid once frozen.
func (f *FieldDef) Index() int { return f.index }

// SelectorBase returns the field's base selector. For submessage-class
// fields this equals the field's dense subhandlers index plus the
// static selector count (see selector.go); for every other field it is
// the first selector assigned to it: STARTSEQ for a repeated field,
// otherwise its value (or start-string) handler's selector.
// Only valid once frozen.
func (f *FieldDef) SelectorBase() Selector { return Selector(f.selectorBase) }

// ValueSelector returns the selector for the field's primitive value (or
// STRING data-chunk) handler, or -1 if this field has none (non-lazy
// submessage fields with no scalar payload of their own).
func (f *FieldDef) ValueSelector() Selector { return f.sel.value }

// StartSeqSelector returns the STARTSEQ selector for a repeated field,
// or -1 if f is not repeated.
func (f *FieldDef) StartSeqSelector() Selector { return f.sel.startSeq }

// EndSeqSelector returns the ENDSEQ selector for a repeated field, or -1
// if f is not repeated.
func (f *FieldDef) EndSeqSelector() Selector { return f.sel.endSeq }

// StartStrSelector returns the STARTSTR selector for a string/bytes (or
// lazy submessage) field, or -1 otherwise.
func (f *FieldDef) StartStrSelector() Selector { return f.sel.startStr }

// EndStrSelector returns the ENDSTR selector for a string/bytes (or lazy
// submessage) field, or -1 otherwise.
func (f *FieldDef) EndStrSelector() Selector { return f.sel.endStr }

// StartSubMsgSelector returns the STARTSUBMSG selector for a non-lazy
// submessage field, or -1 otherwise. StartSubMsgSelector() minus the
// message's static selector count is always this field's dense index
// into the subhandlers array.
func (f *FieldDef) StartSubMsgSelector() Selector { return f.sel.startSubMsg }

// EndSubMsgSelector returns the ENDSUBMSG selector for a non-lazy
// submessage field, or -1 otherwise.
func (f *FieldDef) EndSubMsgSelector() Selector { return f.sel.endSubMsg }

// Edges implements [refcount.Object]: a field structurally references
// its resolved subdef, if any.
func (f *FieldDef) Edges() iter.Seq[refcount.Object] {
	return func(yield func(refcount.Object) bool) {
		if f.subMsg != nil {
			yield(f.subMsg)
			return
		}
		if f.subEnm != nil {
			yield(f.subEnm)
		}
	}
}

// validate implements the field-validation rules of the design doc,
// applied by [SymbolTable.Add] during freeze, before any def is
// committed.
func (f *FieldDef) validate() *Error {
	if !identRe.MatchString(f.name) {
		return newError(KindValidation, errBadName, "field %q: not a valid identifier", f.name)
	}
	if f.number <= 0 || f.number > (1<<29)-1 {
		return newError(KindValidation, errBadNumber, "field %q: number %d out of range", f.name, f.number)
	}
	if f.lazy && f.kind != KindMessage {
		return newError(KindValidation, errLazyNotMessage, "field %q: lazy requires a length-delimited message", f.name)
	}
	if f.kind.IsSubMessage() {
		if f.subRef != "" {
			return newError(KindValidation, errUnresolved, "field %q: unresolved subdef reference %q", f.name, f.subRef)
		}
		if f.subMsg == nil {
			return newError(KindValidation, errUnresolved, "field %q: missing subdef", f.name)
		}
		if f.subMsg.mapEntry && f.label != LabelRepeated {
			return newError(KindValidation, errMapEntryNotRepeated, "field %q: map-entry subdef must be repeated", f.name)
		}
	}
	if f.kind == KindEnum {
		if f.subRef != "" {
			return newError(KindValidation, errUnresolved, "field %q: unresolved enum reference %q", f.name, f.subRef)
		}
		if f.subEnm == nil {
			return newError(KindValidation, errUnresolved, "field %q: missing enum subdef", f.name)
		}
		if len(f.subEnm.byNumber) == 0 {
			return newError(KindValidation, errEnumEmpty, "field %q: enum %q has no values", f.name, f.subEnm.name)
		}
		if f.def.EnumName != "" {
			n, ok := f.subEnm.byName[f.def.EnumName]
			if !ok {
				return newError(KindValidation, errUnresolved, "field %q: default %q is not a member of enum %q", f.name, f.def.EnumName, f.subEnm.name)
			}
			f.def.EnumNumber = n
		}
	}
	return nil
}

// Error codes private to the validation space, surfaced via [Status.Code].
const (
	errBadName = iota + 1
	errBadNumber
	errLazyNotMessage
	errUnresolved
	errMapEntryNotRepeated
	errEnumEmpty
	errDuplicateName
	errDuplicateNumber
	errRelativeName
	errTypeMismatch
	errNotFound
	errClosureMismatch
	errSubhandlersMismatch
)
