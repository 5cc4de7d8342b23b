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

// Package scc computes the strongly-connected-component DAG of a
// directed graph using Tarjan's algorithm. The refcount core (see
// internal/refcount) uses this to discover the groups that freeze must
// assign: two nodes end up in the same group exactly when they are
// mutually reachable at the moment of freezing.
package scc

import (
	"iter"
	"slices"

	"github.com/upb-go/upb/internal/dbg"
)

// Graph exposes the outgoing edges of a node in some directed graph.
type Graph[Node any] func(Node) iter.Seq[Node]

// DAG is the strongly-connected-component DAG of a directed graph,
// discovered by a single call to [Sort].
type DAG[Node comparable] struct {
	index      map[Node]int
	components []Component[Node]
}

// Component is one strongly-connected component: a maximal set of nodes
// that are all mutually reachable from one another.
type Component[Node comparable] struct {
	ordinal int
	members []Node
	deps    []int
	dag     *DAG[Node]
}

// SortAll computes the SCC DAG reachable from any of roots via graph. It
// behaves as if all of roots were made reachable from a single synthetic
// root; roots with no incoming edges from one another each seed their own
// reachable subgraph.
func SortAll[Node comparable](roots []Node, graph Graph[Node]) *DAG[Node] {
	dag := &DAG[Node]{index: make(map[Node]int)}
	t := &tarjan[Node]{
		graph:  graph,
		dag:    dag,
		meta:   make(map[Node]*meta),
		depset: make(map[int]struct{}),
	}
	for _, root := range roots {
		if _, seen := t.meta[root]; !seen {
			t.visit(root)
		}
	}
	return dag
}

// Sort computes the SCC DAG reachable from root via graph, in a single
// recursive pass (recursive Tarjan, as in the reference algorithm:
// https://en.wikipedia.org/wiki/Tarjan%27s_strongly_connected_components_algorithm).
//
// Components are returned in reverse-topological order: a component's
// dependencies always have a strictly smaller ordinal than the component
// itself, so iterating components front-to-back visits leaves first.
func Sort[Node comparable](root Node, graph Graph[Node]) *DAG[Node] {
	dag := &DAG[Node]{index: make(map[Node]int)}
	t := &tarjan[Node]{
		graph:  graph,
		dag:    dag,
		meta:   make(map[Node]*meta),
		depset: make(map[int]struct{}),
	}
	t.visit(root)
	return dag
}

// ForNode returns the component containing node, or nil if node was
// never visited (e.g. it is unreachable from the root passed to [Sort]).
func (d *DAG[Node]) ForNode(node Node) *Component[Node] {
	i, ok := d.index[node]
	if !ok {
		return nil
	}
	return &d.components[i]
}

// Topological ranges over every component in dependency order (leaves
// first).
func (d *DAG[Node]) Topological() iter.Seq[*Component[Node]] {
	return func(yield func(*Component[Node]) bool) {
		for i := range d.components {
			if !yield(&d.components[i]) {
				return
			}
		}
	}
}

// Len returns the number of components in the DAG.
func (d *DAG[Node]) Len() int { return len(d.components) }

// Members returns the nodes belonging to this component, in the order
// Tarjan's algorithm popped them off its stack.
func (c *Component[Node]) Members() []Node { return c.members }

// Deps ranges over the components this component directly depends on.
func (c *Component[Node]) Deps() iter.Seq[*Component[Node]] {
	return func(yield func(*Component[Node]) bool) {
		for _, i := range c.deps {
			if !yield(&c.dag.components[i]) {
				return
			}
		}
	}
}

// Ordinal returns this component's position in the reverse-topological
// order produced by [Sort]; it is stable for the lifetime of the DAG.
func (c *Component[Node]) Ordinal() int { return c.ordinal }

type tarjan[Node comparable] struct {
	graph Graph[Node]
	dag   *DAG[Node]

	next   int
	stack  []Node
	meta   map[Node]*meta
	depset map[int]struct{}
}

type meta struct {
	index, low int
	onStack    bool
}

// visit is the recursive step of Tarjan's algorithm: assign node a
// discovery index, explore its edges, and — if node is the root of its
// SCC — pop and record that component.
func (t *tarjan[Node]) visit(node Node) *meta {
	m := &meta{index: t.next, low: t.next, onStack: true}
	t.meta[node] = m
	t.next++

	base := len(t.stack)
	t.stack = append(t.stack, node)
	dbg.Log("scc", "visit %v index=%d", node, m.index)

	for dep := range t.graph(node) {
		if dm := t.meta[dep]; dm != nil {
			if dm.onStack {
				m.low = min(m.low, dm.index)
			}
			continue
		}
		dm := t.visit(dep)
		m.low = min(m.low, dm.low)
	}

	if m.index != m.low {
		return m
	}

	comp := Component[Node]{
		ordinal: len(t.dag.components),
		members: slices.Clone(t.stack[base:]),
		dag:     t.dag,
	}
	t.stack = t.stack[:base]

	for _, n := range comp.members {
		t.meta[n].onStack = false
		t.dag.index[n] = comp.ordinal
		for dep := range t.graph(n) {
			if i, ok := t.dag.index[dep]; ok && i != comp.ordinal {
				t.depset[i] = struct{}{}
			}
		}
	}
	comp.deps = make([]int, 0, len(t.depset))
	for i := range t.depset {
		comp.deps = append(comp.deps, i)
	}
	slices.Sort(comp.deps)
	clear(t.depset)

	dbg.Log("scc", "component %d: %v deps=%v", comp.ordinal, comp.members, comp.deps)
	t.dag.components = append(t.dag.components, comp)
	return m
}
