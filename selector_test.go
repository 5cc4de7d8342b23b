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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collectSelectors gathers every non-noSel selector assigned to m,
// failing the test if any collide.
func collectSelectors(t *testing.T, m *MsgDef) map[Selector]string {
	t.Helper()
	seen := map[Selector]string{}
	claim := func(sel Selector, tag string) {
		if sel == noSel {
			return
		}
		if prior, dup := seen[sel]; dup {
			t.Fatalf("selector %d claimed by both %q and %q", sel, prior, tag)
		}
		seen[sel] = tag
	}
	claim(SelStartMsg, "STARTMSG")
	claim(SelEndMsg, "ENDMSG")
	for f := range m.Fields() {
		claim(f.ValueSelector(), f.name+".value")
		claim(f.StartSeqSelector(), f.name+".startSeq")
		claim(f.EndSeqSelector(), f.name+".endSeq")
		claim(f.StartStrSelector(), f.name+".startStr")
		claim(f.EndStrSelector(), f.name+".endStr")
		claim(f.StartSubMsgSelector(), f.name+".startSubMsg")
		claim(f.EndSubMsgSelector(), f.name+".endSubMsg")
	}
	return seen
}

func TestAssignSelectorsMixedShapes(t *testing.T) {
	m := NewMsg("test.Mixed", nil)
	require.NoError(t, m.AddField(NewField("scalar", 1, LabelOptional, KindInt32, nil)))
	require.NoError(t, m.AddField(NewField("rep_scalar", 2, LabelRepeated, KindUint64, nil)))
	require.NoError(t, m.AddField(NewField("str", 3, LabelOptional, KindString, nil)))
	require.NoError(t, m.AddField(NewField("rep_str", 4, LabelRepeated, KindBytes, nil)))

	sub := NewMsg("test.Sub", nil)
	assignSelectors(sub)

	subMsgF := NewField("sub", 5, LabelOptional, KindMessage, nil)
	subMsgF.SetSubMessage(sub)
	require.NoError(t, m.AddField(subMsgF))

	repSubMsgF := NewField("rep_sub", 6, LabelRepeated, KindMessage, nil)
	repSubMsgF.SetSubMessage(sub)
	require.NoError(t, m.AddField(repSubMsgF))

	lazyF := NewField("lazy_sub", 7, LabelOptional, KindMessage, nil)
	lazyF.SetSubMessage(sub)
	lazyF.SetLazy(true)
	require.NoError(t, m.AddField(lazyF))

	assignSelectors(m)

	seen := collectSelectors(t, m)
	for sel := Selector(0); sel < Selector(m.selectorCount); sel++ {
		_, ok := seen[sel]
		assert.True(t, ok, "selector %d in [0,%d) unclaimed", sel, m.selectorCount)
	}

	scalar := m.FieldByName("scalar")
	assert.NotEqual(t, noSel, scalar.ValueSelector())
	assert.Equal(t, noSel, scalar.StartSeqSelector())
	assert.Equal(t, noSel, scalar.StartSubMsgSelector())

	repScalar := m.FieldByName("rep_scalar")
	assert.NotEqual(t, noSel, repScalar.StartSeqSelector())
	assert.NotEqual(t, noSel, repScalar.EndSeqSelector())
	assert.NotEqual(t, repScalar.StartSeqSelector(), repScalar.EndSeqSelector())

	str := m.FieldByName("str")
	assert.NotEqual(t, noSel, str.StartStrSelector())
	assert.NotEqual(t, noSel, str.ValueSelector())
	assert.NotEqual(t, noSel, str.EndStrSelector())
	assert.Equal(t, noSel, str.StartSubMsgSelector())

	subMsg := m.FieldByName("sub")
	assert.NotEqual(t, noSel, subMsg.StartSubMsgSelector())
	assert.NotEqual(t, noSel, subMsg.EndSubMsgSelector())
	assert.Equal(t, noSel, subMsg.StartStrSelector(), "non-lazy submessage has no STARTSTR")
	assert.Equal(t, noSel, subMsg.StartSeqSelector(), "non-repeated field has no STARTSEQ")

	repSubMsg := m.FieldByName("rep_sub")
	assert.NotEqual(t, noSel, repSubMsg.StartSeqSelector())
	assert.NotEqual(t, noSel, repSubMsg.StartSubMsgSelector())

	lazy := m.FieldByName("lazy_sub")
	assert.NotEqual(t, noSel, lazy.StartStrSelector(), "lazy submessage delivers as a string")
	assert.Equal(t, noSel, lazy.StartSubMsgSelector(), "lazy submessage is not submsg-class")

	// Submessage-class fields rank before everything else regardless of
	// field number, and dense indices are contiguous from 0.
	ordered := m.orderedFields
	require.Len(t, ordered, 7)
	for i, f := range ordered {
		if isSubmsgClass(f) {
			assert.Equal(t, i, f.Index())
		}
	}
	assert.True(t, isSubmsgClass(ordered[0]))
	assert.True(t, isSubmsgClass(ordered[1]))

	// StartSubMsgSelector is exactly staticSelectorCount + dense index.
	assert.Equal(t, Selector(staticSelectorCount)+Selector(subMsg.Index()), subMsg.StartSubMsgSelector())
	assert.Equal(t, Selector(staticSelectorCount)+Selector(repSubMsg.Index()), repSubMsg.StartSubMsgSelector())
}

func TestAssignSelectorsSelfReferential(t *testing.T) {
	tree := NewMsg("test.Tree", nil)
	require.NoError(t, tree.AddField(NewField("value", 1, LabelOptional, KindInt32, nil)))
	childF := NewField("children", 2, LabelRepeated, KindMessage, nil)
	childF.SetSubMessage(tree)
	require.NoError(t, tree.AddField(childF))

	assignSelectors(tree)

	collectSelectors(t, tree)
	assert.Same(t, tree, childF.SubMessage())
	assert.NotEqual(t, noSel, childF.StartSeqSelector())
	assert.NotEqual(t, noSel, childF.StartSubMsgSelector())
}

func TestAssignSelectorsEmptyMessage(t *testing.T) {
	m := NewMsg("test.Empty", nil)
	assignSelectors(m)
	seen := collectSelectors(t, m)
	assert.Len(t, seen, 2) // just STARTMSG/ENDMSG.
	assert.Equal(t, Selector(staticSelectorCount), Selector(m.selectorCount))
}
