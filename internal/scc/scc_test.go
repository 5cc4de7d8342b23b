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

package scc

import (
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// graph: a -> b -> c -> a (cycle), c -> d (leaf).
func fixture(edges map[string][]string) Graph[string] {
	return func(n string) iter.Seq[string] {
		return func(yield func(string) bool) {
			for _, d := range edges[n] {
				if !yield(d) {
					return
				}
			}
		}
	}
}

func TestCycleIsolated(t *testing.T) {
	g := fixture(map[string][]string{
		"a": {"b"},
		"b": {"c"},
		"c": {"a", "d"},
		"d": {},
	})
	dag := Sort("a", g)

	a, b, c, d := dag.ForNode("a"), dag.ForNode("b"), dag.ForNode("c"), dag.ForNode("d")
	require.NotNil(t, a)
	require.NotNil(t, d)

	assert.Equal(t, a.Ordinal(), b.Ordinal())
	assert.Equal(t, a.Ordinal(), c.Ordinal())
	assert.NotEqual(t, a.Ordinal(), d.Ordinal())
	assert.ElementsMatch(t, []string{"a", "b", "c"}, a.Members())

	// d has no deps; the cycle component depends on d.
	var cdeps []string
	for dep := range a.Deps() {
		cdeps = append(cdeps, dep.Members()...)
	}
	assert.Equal(t, []string{"d"}, cdeps)
}

func TestAcyclicEachOwnComponent(t *testing.T) {
	g := fixture(map[string][]string{
		"a": {"b"},
		"b": {"c"},
		"c": {},
	})
	dag := Sort("a", g)
	require.Equal(t, 3, dag.Len())
	assert.NotEqual(t, dag.ForNode("a").Ordinal(), dag.ForNode("b").Ordinal())
	assert.NotEqual(t, dag.ForNode("b").Ordinal(), dag.ForNode("c").Ordinal())
	// c is a leaf: visited/finished first, so it gets the smallest ordinal.
	assert.Less(t, dag.ForNode("c").Ordinal(), dag.ForNode("a").Ordinal())
}

func TestSelfLoop(t *testing.T) {
	g := fixture(map[string][]string{"a": {"a"}})
	dag := Sort("a", g)
	require.Equal(t, 1, dag.Len())
	assert.Equal(t, []string{"a"}, dag.ForNode("a").Members())
}
