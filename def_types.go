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

// Kind is a field's logical protobuf type.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindDouble
	KindFloat
	KindInt64
	KindUint64
	KindInt32
	KindFixed64
	KindFixed32
	KindBool
	KindString
	KindMessage
	KindBytes
	KindUint32
	KindEnum
	KindSfixed32
	KindSfixed64
	KindSint32
	KindSint64
	KindGroup
)

// IsScalarNumeric reports whether k is a scalar numeric type (everything
// but string/bytes/message/group/enum... enum is numeric too, but carries
// its own selector kind, so it is excluded here).
func (k Kind) IsScalarNumeric() bool {
	switch k {
	case KindDouble, KindFloat, KindInt64, KindUint64, KindInt32, KindFixed64,
		KindFixed32, KindBool, KindUint32, KindSfixed32, KindSfixed64,
		KindSint32, KindSint64:
		return true
	}
	return false
}

// IsSubMessage reports whether k refers to a nested message or group.
func (k Kind) IsSubMessage() bool { return k == KindMessage || k == KindGroup }

func (k Kind) String() string {
	switch k {
	case KindDouble:
		return "double"
	case KindFloat:
		return "float"
	case KindInt64:
		return "int64"
	case KindUint64:
		return "uint64"
	case KindInt32:
		return "int32"
	case KindFixed64:
		return "fixed64"
	case KindFixed32:
		return "fixed32"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindMessage:
		return "message"
	case KindBytes:
		return "bytes"
	case KindUint32:
		return "uint32"
	case KindEnum:
		return "enum"
	case KindSfixed32:
		return "sfixed32"
	case KindSfixed64:
		return "sfixed64"
	case KindSint32:
		return "sint32"
	case KindSint64:
		return "sint64"
	case KindGroup:
		return "group"
	default:
		return "invalid"
	}
}

// Label is a field's wire cardinality.
type Label uint8

const (
	LabelOptional Label = iota
	LabelRequired
	LabelRepeated
)

// Encoding is a descriptor-level hint about a numeric field's preferred
// varint encoding.
type Encoding uint8

const (
	EncodingVariable Encoding = iota
	EncodingFixed
	EncodingZigZag
)

// DefaultValue holds a field's default, tagged by which alternative is
// populated: a numeric default, a string/bytes default, or a symbolic
// enum default (name plus resolved number).
type DefaultValue struct {
	Numeric    uint64 // reinterpret per Kind (float64 bits, int64 bits, etc).
	Bytes      []byte
	EnumName   string
	EnumNumber int32
	IsSet      bool
}
