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

package opcode

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInstrRoundTrip(t *testing.T) {
	for _, arg := range []int32{0, 1, -1, 12345, -12345, 1<<23 - 1, -(1 << 23)} {
		i := Make(OpDispatch, arg)
		assert.Equal(t, OpDispatch, i.Op())
		assert.Equal(t, arg, i.Arg())
	}
}

func TestInstrOpOccupiesTopByte(t *testing.T) {
	i := Make(OpCall, 7)
	assert.Equal(t, OpCall, i.Op())
	assert.Equal(t, int32(7), i.Arg())
}

func TestOpStringCoversEnum(t *testing.T) {
	for op := OpHalt; op <= OpSetDispatch; op++ {
		assert.NotEqual(t, "UNKNOWN", op.String(), "op %d missing from String()", op)
	}
}
