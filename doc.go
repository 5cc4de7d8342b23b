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

// Package upb is a compact, embeddable core for representing protobuf
// schemas in memory and for encoding/decoding wire-format messages driven
// by those schemas.
//
// It is built around three cooperating subsystems:
//
//   - A definition graph ([MsgDef], [FieldDef], [EnumDef], [OneofDef]) that
//     can be mutated freely while under construction and is then frozen,
//     atomically, into an immutable, concurrently-shareable form. See
//     [SymbolTable.Add].
//   - A handlers/sink abstraction ([Handlers], [Sink]): a push-style
//     visitor contract keyed by dense per-field "selectors", registered
//     on a [Handlers] and dispatched through a [Sink] by [Decoder.Decode].
//   - A bytecode-compiled wire-format decoder: [Compile] lowers a root
//     [Handlers] (and every subhandlers node reachable from it) into a
//     [Program] of per-message [DecoderMethod]s, compact opcode programs
//     executed by a resumable interpreter ([Decoder]) tolerant of buffer
//     seams (the input need not be presented in one call).
//
// This package does not read descriptor protos, print text format, parse
// or print JSON, or encode the wire format; it is driven by and drives
// those concerns through the interfaces described in its godoc, but does
// not implement them itself.
package upb
