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

package refcount

import (
	"errors"
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// node is a trivial [Object] used only by this package's own tests; the
// definition graph package provides the real one.
type node struct {
	Base
	name string
	out  []*node
}

func newNode(name string) *node {
	n := &node{name: name}
	Init(n, "owner")
	return n
}

func (n *node) Edges() iter.Seq[Object] {
	return func(yield func(Object) bool) {
		for _, e := range n.out {
			if !yield(e) {
				return
			}
		}
	}
}

func link(from, to *node) {
	from.out = append(from.out, to)
	Ref2(to, from)
}

func TestFreezeMergesCycleIntoOneGroup(t *testing.T) {
	a, b, c := newNode("a"), newNode("b"), newNode("c")
	link(a, b)
	link(b, c)
	link(c, a) // cycle a->b->c->a

	err := Freeze([]Object{a}, 64, func(Object) error { return nil })
	require.NoError(t, err)

	assert.True(t, a.Frozen())
	assert.Same(t, a.Group(), b.Group())
	assert.Same(t, a.Group(), c.Group())
}

func TestFreezeSplitsNonCyclicChain(t *testing.T) {
	a, b, c := newNode("a"), newNode("b"), newNode("c")
	link(a, b)
	link(b, c)

	err := Freeze([]Object{a}, 64, func(Object) error { return nil })
	require.NoError(t, err)

	assert.NotSame(t, a.Group(), b.Group())
	assert.NotSame(t, b.Group(), c.Group())
	// c still carries its own construction-time external ref, plus one
	// crossref now that b (a different group) points at it.
	assert.Equal(t, 2, c.Group().Refs())
}

func TestFreezeIdempotentOnValidationFailure(t *testing.T) {
	a, b := newNode("a"), newNode("b")
	link(a, b)

	snapshotGroupA := a.Group()
	snapshotGroupB := b.Group()

	boom := errors.New("boom")
	err := Freeze([]Object{a}, 64, func(o Object) error {
		if o.(*node).name == "b" {
			return boom
		}
		return nil
	})
	require.ErrorIs(t, err, boom)

	assert.False(t, a.Frozen())
	assert.False(t, b.Frozen())
	assert.Same(t, snapshotGroupA, a.Group())
	assert.Same(t, snapshotGroupB, b.Group())
}

func TestFreezeIdempotentOnDepthExceeded(t *testing.T) {
	a, b, c := newNode("a"), newNode("b"), newNode("c")
	link(a, b)
	link(b, c)

	before := a.Group()
	err := Freeze([]Object{a}, 1, func(Object) error { return nil })
	require.ErrorIs(t, err, ErrDepthExceeded)
	assert.False(t, a.Frozen())
	assert.Same(t, before, a.Group())
}

func TestFreezeIdempotentOnAllocFailure(t *testing.T) {
	a := newNode("a")
	calls := 0
	InjectAllocFailure(func() bool { calls++; return true })
	t.Cleanup(func() { InjectAllocFailure(nil) })

	before := a.Group()
	err := Freeze([]Object{a}, 64, func(Object) error { return nil })
	require.ErrorIs(t, err, ErrAlloc)
	assert.False(t, a.Frozen())
	assert.Same(t, before, a.Group())
}

func TestStaticGroupRefUnrefAreNoOps(t *testing.T) {
	g := Static()
	assert.True(t, g.static)
	refsBefore := g.refs
	n := newNode("n")
	n.group = g
	Ref(n, "x")
	Unref(n, "x")
	assert.Equal(t, refsBefore, g.refs)
}

func TestDoubleUnrefPanicsWithOwnerTracking(t *testing.T) {
	TrackOwners(true)
	t.Cleanup(func() { TrackOwners(false) })
	n := newNode("n")
	assert.Panics(t, func() { Unref(n, "someone-else") })
}

func TestSharedSubdefCrossrefCountedOncePerSourceGroup(t *testing.T) {
	// Two independent fields (in different eventual groups) both point at
	// the same already-frozen subdef; the subdef's group should gain
	// exactly one ref per distinct referencing group.
	sub := newNode("sub")
	require.NoError(t, Freeze([]Object{sub}, 64, func(Object) error { return nil }))
	subGroupRefs := sub.Group().Refs()

	f1, f2 := newNode("f1"), newNode("f2")
	f1.out = append(f1.out, sub)
	f2.out = append(f2.out, sub)
	Ref2(sub, f1)
	Ref2(sub, f2)

	require.NoError(t, Freeze([]Object{f1, f2}, 64, func(Object) error { return nil }))
	assert.Equal(t, subGroupRefs+2, sub.Group().Refs())
}
