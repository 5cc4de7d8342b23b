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

// Package refcount implements the reference-counted, cycle-tolerant
// object graph underlying the definition graph: per-object strong
// counts, group (SCC) membership, and the one-way freeze transition from
// mutable to immutable.
//
// Unlike the C original, this package never manually frees memory — the
// Go garbage collector reclaims unreachable objects on its own. What it
// does track, because the definition graph's invariants and tests depend
// on it, is *grouping*: which defs are mutually reachable (and so must be
// frozen, or collected, together) and the strong-reference accounting
// that the design's testable properties (freeze idempotence, SCC
// isolation) assert against.
package refcount

import (
	"fmt"
	"iter"
)

// Object is anything participating in the refcounted graph: every def
// type (message, field, enum, oneof) embeds a [Base] and implements
// Edges to expose its ref2 dependencies.
type Object interface {
	Base() *Base
	// Edges yields the nodes this object holds a structural reference
	// to (e.g. a field's subdef, a message's owned fields). Only edges
	// to other Objects in the same construction transaction need be
	// reported; edges into already-frozen objects are still reported,
	// freeze handles them as cross-group refs.
	Edges() iter.Seq[Object]
}

// Base is embedded in every def type to give it refcounted-node
// behavior. The zero Base is not ready for use; call [Init] first.
type Base struct {
	group      *Group
	frozen     bool
	individual int // refs held directly on this node while mutable.
	owners     map[any]int
}

// Frozen reports whether this node has completed [Freeze].
func (b *Base) Frozen() bool { return b.frozen }

// Group returns the group this node currently belongs to.
func (b *Base) Group() *Group { return b.group }

// Group is a set of objects sharing one reference counter. While
// objects are mutable, a group is every object connected to the others
// by [Ref2] edges in either direction (each Ref2 between two mutable
// objects merges their groups, so a group can be larger than one
// strongly-connected component); once frozen, a group is an immutable SCC and its counter is the number of
// distinct *other* groups that hold a reference into it, plus one for
// each direct external [Ref].
type Group struct {
	id       uint64
	refs     int
	frozen   bool
	static   bool // sentinel: ref/unref are no-ops (I3).
	members  []Object
	released bool // informational: true once refs hit zero post-freeze.
}

// Static returns the sentinel group used for compile-time-constant defs;
// ref/unref against it are no-ops and it is never collected (I3).
func Static() *Group {
	return &staticGroup
}

var staticGroup = Group{static: true, frozen: true}

var nextGroupID uint64

// Init creates obj's group as a singleton, with one external reference
// attributed to owner. It must be called exactly once per object, before
// any other operation in this package touches it.
func Init(obj Object, owner any) {
	b := obj.Base()
	nextGroupID++
	b.group = &Group{id: nextGroupID, refs: 1, members: []Object{obj}}
	b.individual = 1
	if trackOwners {
		b.owners = map[any]int{owner: 1}
	}
}

// trackOwners gates the optional owner multiset used to catch
// double-unref and leaks in tests; production builds can leave it off to
// avoid the bookkeeping cost, mirroring the teacher's
// owner-tracking-build-only convention.
var trackOwners = false

// TrackOwners enables or disables owner-multiset bookkeeping for the
// remainder of the process. Off by default.
func TrackOwners(v bool) { trackOwners = v }

// Ref adds an external reference on obj attributed to owner.
func Ref(obj Object, owner any) {
	b := obj.Base()
	if b.group.static {
		return
	}
	b.group.refs++
	if b.frozen {
		return
	}
	b.individual++
	if trackOwners {
		b.owners[owner]++
	}
}

// Unref removes an external reference on obj attributed to owner. It
// panics if owner tracking is enabled and owner never held a ref — this
// is the "double unref" detector mentioned in the design doc.
func Unref(obj Object, owner any) {
	b := obj.Base()
	if b.group.static {
		return
	}
	if trackOwners {
		if b.owners[owner] == 0 {
			panic(fmt.Sprintf("refcount: double unref by %v", owner))
		}
		b.owners[owner]--
	}
	b.group.refs--
	if !b.frozen {
		b.individual--
	}
}

// Ref2 records that from holds a structural reference to to. If both are
// mutable, their groups are merged (see [mergeGroups]) so the shared
// counter covers the whole connected subgraph while it is under
// construction.
//
// If to is already frozen, Ref2 does *not* eagerly bump its group's
// counter. Counting a crossref exactly once per distinct source group
// (I2) requires knowing from's *final* group, which is only settled once
// from itself is frozen — so the bump is deferred to that freeze's
// crossref pass (phase 3 in [Freeze]), which walks from's edges at the
// moment from's group becomes permanent. Bumping here as well would
// double-count whenever two edges from the same eventual group point at
// the same already-frozen target.
func Ref2(to, from Object) {
	tb, fb := to.Base(), from.Base()
	if fb.frozen {
		panic("refcount: ref2 from a frozen object")
	}
	if tb.group.static || tb.frozen {
		return
	}
	mergeGroups(fb.group, tb.group)
}

// Unref2 undoes a prior [Ref2] recorded while both endpoints were
// mutable. Because [Ref2] performs no eager accounting against an
// already-frozen target (see above), there is nothing to undo in that
// case; un-merging two mutable groups that were merged by a since-removed
// edge would require re-running SCC discovery, which this package does
// not attempt — callers remove the structural edge (e.g. clear a field's
// subdef pointer) and let the next [Freeze] recompute groups from
// scratch.
func Unref2(to, from Object) {}

// mergeGroups merges src into dst in place: dst's counter absorbs src's,
// every member of src is rewritten to point at dst, and dst's member
// list is extended. Cost is O(|src|), acceptable because merges only
// happen during schema construction (never during decode).
func mergeGroups(dst, src *Group) {
	if dst == src {
		return
	}
	dst.refs += src.refs
	for _, m := range src.members {
		m.Base().group = dst
	}
	dst.members = append(dst.members, src.members...)
	*src = Group{released: true} // leave a tombstone; nothing should reference it again.
}
