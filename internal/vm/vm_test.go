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

package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeedAndAdvance(t *testing.T) {
	s := New(Frame[int]{EndOfs: RootEnd})
	s.Feed([]byte{1, 2, 3})
	assert.Equal(t, 3, s.Remaining())
	s.Advance(2)
	assert.Equal(t, 1, s.Remaining())
	assert.Equal(t, []byte{3}, s.Peek())
	assert.Equal(t, int64(2), s.Pos())
}

func TestSuspendResidualCarriesTail(t *testing.T) {
	s := New(Frame[int]{EndOfs: RootEnd})
	s.Feed([]byte{1, 2, 3, 4, 5})
	s.Advance(2)
	require.True(t, s.SuspendResidual())
	assert.Equal(t, 3, s.ResidualLen())
	assert.Equal(t, int64(2), s.Pos())

	s.Feed([]byte{6, 7})
	assert.Equal(t, []byte{3, 4, 5, 6, 7}, s.Peek())
}

func TestSuspendResidualTooLong(t *testing.T) {
	s := New(Frame[int]{EndOfs: RootEnd})
	buf := make([]byte, ResidualCap+1)
	s.Feed(buf)
	assert.False(t, s.SuspendResidual())
}

func TestAtEOF(t *testing.T) {
	s := New(Frame[int]{EndOfs: RootEnd})
	assert.True(t, s.AtEOF())
	s.PendingSkip = 1
	assert.False(t, s.AtEOF())
	s.PendingSkip = 0
	s.PushFrame(Frame[int]{EndOfs: 10})
	assert.False(t, s.AtEOF())
}

func TestCallStack(t *testing.T) {
	s := New(Frame[int]{Method: 0})
	s.PC = 4
	s.PushCall(2)
	assert.Equal(t, 2, s.Method)
	assert.Equal(t, 0, s.PC)

	s.PC = 9
	ok := s.PopCall()
	require.True(t, ok)
	assert.Equal(t, 0, s.Method)
	assert.Equal(t, 4, s.PC)

	assert.False(t, s.PopCall())
}

func TestFrameStack(t *testing.T) {
	s := New(Frame[string]{Closure: "root"})
	s.PushFrame(Frame[string]{Closure: "child", EndOfs: 5})
	assert.Equal(t, "child", s.Top().Closure)
	f := s.PopFrame()
	assert.Equal(t, "child", f.Closure)
	assert.Equal(t, "root", s.Top().Closure)
}
