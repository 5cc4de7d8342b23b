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

// Package dbg contains a tiny structured logger used for optional tracing
// of the freeze algorithm and the SCC solver it runs. It is
// gated by an environment variable rather than a build tag so that tests
// can flip it on/off without a recompile.
package dbg

import (
	"fmt"
	"os"
	"sync/atomic"
)

var enabled atomic.Bool

func init() {
	if os.Getenv("UPB_DEBUG") != "" {
		enabled.Store(true)
	}
}

// Enable turns tracing on or off for the remainder of the process. Tests
// use this to capture traces deterministically without depending on the
// environment.
func Enable(v bool) { enabled.Store(v) }

// Enabled reports whether tracing is currently on.
func Enabled() bool { return enabled.Load() }

// Log writes a trace line tagged with subsystem, if tracing is enabled.
// It is a no-op (other than the Enabled check) when tracing is off, so
// call sites can leave Log calls in hot paths.
func Log(subsystem, format string, args ...any) {
	if !enabled.Load() {
		return
	}
	fmt.Fprintf(os.Stderr, "[upb:%s] %s\n", subsystem, fmt.Sprintf(format, args...))
}
