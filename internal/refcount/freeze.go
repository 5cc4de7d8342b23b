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

	"github.com/upb-go/upb/internal/dbg"
	"github.com/upb-go/upb/internal/scc"
)

// ErrDepthExceeded is returned by [Freeze] when the transitive closure of
// roots nests deeper than maxDepth.
var ErrDepthExceeded = errors.New("refcount: freeze exceeded max depth")

// ErrAlloc is returned by [Freeze] when the injected allocation-failure
// hook fires; see [InjectAllocFailure].
var ErrAlloc = errors.New("refcount: allocation failure")

// allocFailure is a test-only hook letting tests exercise property 1
// (freeze idempotence on failure) without needing to exhaust real
// memory, mirroring the teacher's allocation-failure injection points.
var allocFailure func() bool

// InjectAllocFailure installs a hook consulted once per discovered SCC
// during every later call to [Freeze] until it is replaced; if it
// returns true, Freeze fails with [ErrAlloc] before mutating anything.
// Pass nil to disable.
func InjectAllocFailure(hook func() bool) { allocFailure = hook }

// Freeze performs the atomic transition from mutable to immutable for
// the transitive closure of roots: it assigns each newly-discovered
// strongly-connected component its own fresh [Group], validates every
// newly-frozen object with validate, and re-establishes cross-group
// reference counts.
//
// On any failure — depth exceeded, a simulated allocation failure, or a
// validation error — the graph is left exactly as it was before the
// call; Freeze either fully commits or has no effect.
func Freeze(roots []Object, maxDepth int, validate func(Object) error) error {
	live := make([]Object, 0, len(roots))
	for _, r := range roots {
		if !r.Base().frozen {
			live = append(live, r)
		}
	}
	if len(live) == 0 {
		return nil
	}

	if err := checkDepth(live, maxDepth); err != nil {
		return err
	}

	// Phase 1: discover SCCs over the subgraph of not-yet-frozen
	// objects. This performs no mutation of the real graph.
	graph := scc.Graph[Object](func(o Object) iter.Seq[Object] {
		return func(yield func(Object) bool) {
			for e := range o.Edges() {
				if e.Base().frozen {
					continue
				}
				if !yield(e) {
					return
				}
			}
		}
	})
	dag := scc.SortAll(live, graph)

	for c := range dag.Topological() {
		if allocFailure != nil && allocFailure() {
			return ErrAlloc
		}
		for _, obj := range c.Members() {
			if err := validate(obj); err != nil {
				return err
			}
		}
	}

	// Phase 2: commit. All allocation for this phase already succeeded
	// above (or there was nothing to allocate, since Go's GC handles
	// it), so from here on Freeze cannot fail.
	oldGroups := map[*Group]bool{}
	for c := range dag.Topological() {
		newGroup := &Group{}
		nextGroupID++
		newGroup.id = nextGroupID
		newGroup.members = c.Members()

		for _, obj := range c.Members() {
			b := obj.Base()
			old := b.group
			oldGroups[old] = true
			old.refs -= b.individual
			newGroup.refs += b.individual
			b.group = newGroup
			b.frozen = true
			dbg.Log("freeze", "%p -> group %d", obj, newGroup.id)
		}
		newGroup.frozen = true
	}

	// Phase 3: crossref. For every ref2 edge whose endpoints now live in
	// different groups, increment the target's group counter exactly
	// once per distinct source group (I2).
	crossed := map[[2]uint64]bool{}
	for c := range dag.Topological() {
		for _, obj := range c.Members() {
			fromGroup := obj.Base().group
			for e := range obj.Edges() {
				toGroup := e.Base().group
				if toGroup == fromGroup || toGroup.static {
					continue
				}
				key := [2]uint64{fromGroup.id, toGroup.id}
				if crossed[key] {
					continue
				}
				crossed[key] = true
				toGroup.refs++
			}
		}
	}

	// Phase 4: sweep. Any old mutable group that dropped to zero is
	// collected; the Go GC reclaims its memory once nothing else
	// references it, so this just marks the group for observability.
	for g := range oldGroups {
		if g.refs <= 0 {
			g.released = true
		}
	}

	return nil
}

// checkDepth fails fast if the transitive closure of roots (following
// only edges to not-yet-frozen objects) nests deeper than maxDepth,
// without mutating anything.
func checkDepth(roots []Object, maxDepth int) error {
	visited := map[Object]bool{}
	var walk func(o Object, depth int) error
	walk = func(o Object, depth int) error {
		if depth > maxDepth {
			return ErrDepthExceeded
		}
		if visited[o] {
			return nil
		}
		visited[o] = true
		for e := range o.Edges() {
			if e.Base().frozen {
				continue
			}
			if err := walk(e, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	for _, r := range roots {
		if err := walk(r, 0); err != nil {
			return err
		}
	}
	return nil
}

// Released reports whether g was swept by a prior [Freeze] call (i.e.
// its last reference was dropped during that freeze) or was merged into
// another group by [Ref2].
func (g *Group) Released() bool { return g.released }

// Refs returns the current reference count attributed to g.
func (g *Group) Refs() int { return g.refs }

// ID returns a stable, process-unique identifier for g, useful for
// logging and the SCC-isolation test (comparing group identity).
func (g *Group) ID() uint64 { return g.id }
