// Package pack implements the compact, schema-less, forward-compatible
// binary field codec used for protocol messages and some on-disk
// structures: an ordered stream of typed, numbered fields within
// nestable array/object containers, with gap (NULL) compression and
// varint tag/ID-delta encoding.
package pack

import "fmt"

// Type identifies the wire type of a pack field. The numeric values are
// part of the wire format (they occupy the tag byte's high nibble) and
// must not be reordered.
type Type uint8

const (
	TypeUnknown Type = iota
	TypeArray
	TypeBin
	TypeBool
	TypeI32
	TypeI64
	TypeObj
	TypePtr
	TypeStr
	TypeTime
	TypeU32
	TypeU64
)

func (t Type) String() string {
	if int(t) < len(typeTable) {
		return typeTable[t].name
	}
	return "invalid"
}

type typeInfo struct {
	singleBit bool // value fits as a single bit in the tag (bool, bin, str "nonempty" flag)
	multiBit  bool // value may need more than one bit (all integer-ish types)
	hasSize   bool // field carries a length-prefixed payload (bin, str)
	name      string
}

var typeTable = [...]typeInfo{
	TypeUnknown: {name: "unknown"},
	TypeArray:   {name: "array"},
	TypeBin:     {singleBit: true, hasSize: true, name: "bin"},
	TypeBool:    {singleBit: true, name: "bool"},
	TypeI32:     {multiBit: true, name: "i32"},
	TypeI64:     {multiBit: true, name: "i64"},
	TypeObj:     {name: "obj"},
	TypePtr:     {multiBit: true, name: "ptr"},
	TypeStr:     {singleBit: true, hasSize: true, name: "str"},
	TypeTime:    {multiBit: true, name: "time"},
	TypeU32:     {multiBit: true, name: "u32"},
	TypeU64:     {multiBit: true, name: "u64"},
}

// FormatError reports a malformed or unexpected pack stream: a type
// mismatch on a known field, a truncated varint, or a field re-read out
// of order. It is a fatal-local error in the taxonomy used by the rest
// of the engine.
type FormatError struct {
	msg string
}

func (e *FormatError) Error() string { return e.msg }

func formatErrorf(format string, args ...interface{}) error {
	return &FormatError{msg: fmt.Sprintf(format, args...)}
}

// containerEndID is the sentinel next-field-id value used internally to
// represent "the container has no more fields" (the wire's zero tag
// byte). It mirrors the source format's UINT_MAX sentinel.
const containerEndID = ^uint32(0)

func zigzag32(n int32) uint32 {
	return uint32((n << 1) ^ (n >> 31))
}

func unzigzag32(n uint32) int32 {
	return int32(n>>1) ^ -int32(n&1)
}

func zigzag64(n int64) uint64 {
	return uint64((n << 1) ^ (n >> 63))
}

func unzigzag64(n uint64) int64 {
	return int64(n>>1) ^ -int64(n&1)
}
