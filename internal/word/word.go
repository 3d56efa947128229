// Package word implements the tagged 32-bit value that flows through every
// register, memory line and pipeline latch in the GF-ISA simulator.
//
// A Value is always stored in a 32-bit container; the Kind only changes how
// the bits are displayed, sign-extended on load, and dispatched by arithmetic
// operators. Bit-preserving reinterpretation between integer and float kinds
// is used for cross-type register writes (see internal/registers).
package word

import (
	"fmt"
	"math"
)

// MemBlockWidth is the width, in bits, of one addressable memory block
// (spec §3: "MEM_BLOCK_WIDTH = 32"). All memory addresses are aligned to it.
const MemBlockWidth = 32

// Kind tags the interpretation of the 32 bits stored in a Value.
type Kind uint8

const (
	U8 Kind = iota
	U16
	U32
	I8
	I16
	I32
	F32
)

func (k Kind) String() string {
	switch k {
	case U8:
		return "U8"
	case U16:
		return "U16"
	case U32:
		return "U32"
	case I8:
		return "I8"
	case I16:
		return "I16"
	case I32:
		return "I32"
	case F32:
		return "F32"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Value is a 32-bit container tagged with the declared width/signedness of
// its contents.
type Value struct {
	Kind Kind
	bits uint32
}

// FromUnsigned builds a Value of the given integer kind from a raw, already
// width-appropriate unsigned quantity.
func FromUnsigned(k Kind, v uint32) Value {
	return Value{Kind: k, bits: v}
}

// FromSigned builds a signed-kind Value, sign-extending v into the 32-bit
// container so Bits() always holds the canonical two's-complement 32-bit form.
func FromSigned(k Kind, v int32) Value {
	switch k {
	case I8:
		v = int32(int8(v))
	case I16:
		v = int32(int16(v))
	}
	return Value{Kind: k, bits: uint32(v)}
}

// FromFloat32 builds an F32 Value.
func FromFloat32(v float32) Value {
	return Value{Kind: F32, bits: math.Float32bits(v)}
}

// Bits returns the raw 32-bit container, with no reinterpretation.
func (v Value) Bits() uint32 { return v.bits }

// IsFloat reports whether the value's declared kind is F32.
func (v Value) IsFloat() bool { return v.Kind == F32 }

// Unsigned returns the value narrowed (if needed) to its declared width and
// reinterpreted as unsigned. Sign bits are discarded, not extended.
func (v Value) Unsigned() uint32 {
	switch v.Kind {
	case U8:
		return uint32(uint8(v.bits))
	case U16:
		return uint32(uint16(v.bits))
	case I8:
		return uint32(uint8(v.bits))
	case I16:
		return uint32(uint16(v.bits))
	default:
		return v.bits
	}
}

// Signed returns the value narrowed to its declared width and sign-extended
// back out to 32 bits. Used for LDI8/LDI16/LDI32 loads.
func (v Value) Signed() int32 {
	switch v.Kind {
	case I8:
		return int32(int8(v.bits))
	case I16:
		return int32(int16(v.bits))
	case U8:
		return int32(uint8(v.bits))
	case U16:
		return int32(uint16(v.bits))
	default:
		return int32(v.bits)
	}
}

// Float32 reinterprets the raw bits as an IEEE-754 float32, regardless of
// the declared kind. Used when a general register's bits are read into a
// float context or vice versa.
func (v Value) Float32() float32 {
	return math.Float32frombits(v.bits)
}

// WithKind returns a copy of v re-tagged with k, without touching the bits.
// This is distinct from a conversion: it is the "reinterpret raw bits" rule
// spec.md §3/§4.2 requires for cross-type register writes.
func (v Value) WithKind(k Kind) Value {
	return Value{Kind: k, bits: v.bits}
}

func (v Value) String() string {
	switch v.Kind {
	case F32:
		return fmt.Sprintf("%g", v.Float32())
	case I8, I16, I32:
		return fmt.Sprintf("%d", v.Signed())
	default:
		return fmt.Sprintf("%d", v.Unsigned())
	}
}

// Width returns the declared width of the kind in bits (8, 16 or 32).
func (k Kind) Width() int {
	switch k {
	case U8, I8:
		return 8
	case U16, I16:
		return 16
	default:
		return 32
	}
}

// Signed reports whether the kind is a signed integer kind.
func (k Kind) Signed() bool {
	return k == I8 || k == I16 || k == I32
}
