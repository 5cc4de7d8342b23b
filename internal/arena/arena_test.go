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

package arena

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllocGrows(t *testing.T) {
	a := New(nil)
	b1 := a.Alloc(10)
	assert.Len(t, b1, 10)
	b2 := a.Alloc(defaultSlab * 2)
	assert.Len(t, b2, defaultSlab*2)
}

func TestCleanupLIFO(t *testing.T) {
	a := New(nil)
	var order []int
	a.AddCleanup(func() { order = append(order, 1) })
	a.AddCleanup(func() { order = append(order, 2) })
	a.AddCleanup(func() { order = append(order, 3) })
	a.Free()
	assert.Equal(t, []int{3, 2, 1}, order)
}

func TestResetReusesMemory(t *testing.T) {
	a := New(nil)
	a.Alloc(8)
	ran := false
	a.AddCleanup(func() { ran = true })
	a.Reset()
	assert.True(t, ran)
	assert.Equal(t, 0, a.Len())
}
