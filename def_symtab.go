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
	"strings"
	"sync"

	"github.com/upb-go/upb/internal/refcount"
)

// DefaultMaxDepth bounds the nesting depth [SymbolTable.Add] will walk
// before failing a transaction with [KindDepthExceeded], guarding
// against runaway or maliciously self-referential schema graphs.
const DefaultMaxDepth = 64

// SymbolTable owns a growing, append-only collection of frozen message
// and enum definitions, indexed by fully-qualified name. Once added, a
// def is never removed or mutated; [SymbolTable.Add] either commits an
// entire batch of new defs or commits none of them.
//
// A SymbolTable is safe for concurrent use by multiple goroutines.
type SymbolTable struct {
	mu     sync.RWMutex
	msgs   map[string]*MsgDef
	enums  map[string]*EnumDef
}

// NewSymbolTable creates an empty symbol table.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{
		msgs:  map[string]*MsgDef{},
		enums: map[string]*EnumDef{},
	}
}

// LookupMsg returns the frozen message registered under fullName (no
// leading dot), if any.
func (st *SymbolTable) LookupMsg(fullName string) (*MsgDef, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	m, ok := st.msgs[fullName]
	return m, ok
}

// LookupEnum returns the frozen enum registered under fullName (no
// leading dot), if any.
func (st *SymbolTable) LookupEnum(fullName string) (*EnumDef, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	e, ok := st.enums[fullName]
	return e, ok
}

// Add resolves every pending symbolic subdef reference among msgs
// (against both this batch and defs already in the table), validates
// and freezes the whole batch as one unit via [refcount.Freeze], and —
// only if that succeeds — assigns selectors to every newly frozen
// message and merges the batch into the table.
//
// Because nothing is merged into the table's name maps until freeze has
// fully committed, a failed Add leaves the table exactly as it was: the
// "duplicate existing defs reachable from a failing transaction" rule
// described for symbol-table edits is satisfied for free by staging the
// whole batch outside the table until commit, rather than by memoizing
// per-component duplication — see DESIGN.md for the rationale.
func (st *SymbolTable) Add(msgs []*MsgDef, enums []*EnumDef) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	pendingMsgs := make(map[string]*MsgDef, len(msgs))
	pendingEnums := make(map[string]*EnumDef, len(enums))
	for _, m := range msgs {
		if _, dup := pendingMsgs[m.fullName]; dup {
			return newError(KindValidation, errDuplicateName, "symtab: duplicate message %q in one Add batch", m.fullName)
		}
		pendingMsgs[m.fullName] = m
	}
	for _, e := range enums {
		if _, dup := pendingEnums[e.fullName]; dup {
			return newError(KindValidation, errDuplicateName, "symtab: duplicate enum %q in one Add batch", e.fullName)
		}
		pendingEnums[e.fullName] = e
	}

	resolveOne := func(ref string) (*MsgDef, *EnumDef, *Error) {
		if !strings.HasPrefix(ref, ".") {
			return nil, nil, newError(KindValidation, errRelativeName, "symtab: subdef reference %q is not absolute", ref)
		}
		name := ref[1:]
		if m, ok := pendingMsgs[name]; ok {
			return m, nil, nil
		}
		if e, ok := pendingEnums[name]; ok {
			return nil, e, nil
		}
		if m, ok := st.msgs[name]; ok {
			return m, nil, nil
		}
		if e, ok := st.enums[name]; ok {
			return nil, e, nil
		}
		return nil, nil, newError(KindValidation, errNotFound, "symtab: subdef reference %q not found", ref)
	}

	for _, m := range msgs {
		for f := range m.Fields() {
			if !f.Unresolved() {
				continue
			}
			sm, se, err := resolveOne(f.subRef)
			if err != nil {
				return err
			}
			switch {
			case f.kind.IsSubMessage():
				if sm == nil {
					return newError(KindValidation, errTypeMismatch, "field %q: reference %q is not a message", f.name, f.subRef)
				}
				f.SetSubMessage(sm)
			case f.kind == KindEnum:
				if se == nil {
					return newError(KindValidation, errTypeMismatch, "field %q: reference %q is not an enum", f.name, f.subRef)
				}
				f.SetSubEnum(se)
			}
		}
	}

	roots := make([]refcount.Object, 0, len(msgs)+len(enums))
	for _, m := range msgs {
		roots = append(roots, m)
	}
	for _, e := range enums {
		roots = append(roots, e)
	}

	if err := refcount.Freeze(roots, DefaultMaxDepth, validateDef); err != nil {
		switch {
		case errors.Is(err, refcount.ErrDepthExceeded):
			return newError(KindDepthExceeded, 0, "symtab: %v", err)
		case errors.Is(err, refcount.ErrAlloc):
			return newError(KindAlloc, 0, "symtab: %v", err)
		}
		return err
	}

	for _, m := range msgs {
		assignSelectors(m)
		st.msgs[m.fullName] = m
	}
	for _, e := range enums {
		st.enums[e.fullName] = e
	}
	return nil
}

// validateDef dispatches a generic refcount.Object to the def-specific
// validation rules, per the design doc's per-type validation tables.
// Called once per graph member, during Freeze's pure discovery phase,
// before anything is committed.
func validateDef(o refcount.Object) error {
	switch v := o.(type) {
	case *MsgDef:
		if err := v.validate(); err != nil {
			return err
		}
	case *FieldDef:
		if err := v.validate(); err != nil {
			return err
		}
	case *EnumDef:
		if err := v.validate(); err != nil {
			return err
		}
	case *OneofDef:
		if err := v.validate(); err != nil {
			return err
		}
	}
	return nil
}
