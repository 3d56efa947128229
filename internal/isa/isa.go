// Package isa implements the GF-ISA instruction codec (C1): bit-exact
// translation between typed instruction records and 32-bit words, the
// canonical opcode tables, and the register-dependency queries the pipeline
// needs for hazard detection.
package isa

import (
	"fmt"

	"gfisa/internal/word"
)

// Type tags the 32-bit instruction layout a word uses. There are seven
// layouts, numbered 0 through 6 per spec.
type Type uint8

const (
	Type0 Type = iota // type(3) . op(1)                                  -- RET, HALT
	Type1             // type(3) . op(4) . imm(21)                        -- CALL + jumps
	Type2             // type(3) . op(4) . reg1(4) . reg2(4)              -- CMP/LDIN/STIN
	Type3             // type(3) . op(1) . freg1(4) . freg2(4)            -- CMPF
	Type4             // type(3) . op(4) . reg1(4) . imm(21)              -- LD/LDI/ST/ADDIM
	Type5             // type(3) . op(4) . reg1(4) . reg2(4) . reg3(4)    -- integer ALU
	Type6             // type(3) . op(2) . freg1(4) . freg2(4) . freg3(4) -- float ALU
)

const (
	maskBit1  = 0b1
	maskBit2  = 0b11
	maskBit3  = 0b111
	maskBit4  = 0b1111
	maskBit21 = 0b1_1111_1111_1111_1111_1111
)

// Opcode tables, indexed by opcode value (§6).
var (
	Type0Ops = []string{"RET", "HALT"}
	Type1Ops = []string{
		"CALL", "JE", "JNE", "JGT", "JLT", "JGTE", "JLTE",
		"IJE", "IJNE", "IJGT", "IJLT", "IJGTE", "IJLTE",
	}
	Type2Ops = []string{
		"CMP8", "CMP16", "CMP32",
		"LDIN8", "LDIN16", "LDIN32",
		"STIN8", "STIN16", "STIN32",
	}
	Type3Ops = []string{"CMPF"}
	Type4Ops = []string{
		"LD8", "LD16", "LD32", "LDI8", "LDI16", "LDI32",
		"ST8", "ST16", "ST32", "ADDIM",
	}
	Type5Ops = []string{
		"ADDI", "SUBI", "MULI", "DIVI", "MODI", "RBSI", "XORI", "ANDI", "ORI",
		"ADDU", "SUBU", "MULU", "DIVU", "MODU",
	}
	Type6Ops = []string{"ADDF", "SUBF", "MULF", "DIVF"}
)

func opsForType(t Type) []string {
	switch t {
	case Type0:
		return Type0Ops
	case Type1:
		return Type1Ops
	case Type2:
		return Type2Ops
	case Type3:
		return Type3Ops
	case Type4:
		return Type4Ops
	case Type5:
		return Type5Ops
	case Type6:
		return Type6Ops
	default:
		return nil
	}
}

// RegGroup identifies which register bank a (group, index) pair names.
type RegGroup uint8

const (
	General RegGroup = iota
	Float
	Flag
)

func (g RegGroup) String() string {
	switch g {
	case General:
		return "General"
	case Float:
		return "Float"
	case Flag:
		return "Flag"
	default:
		return "?"
	}
}

// RegRef names one register: its bank and index within that bank.
type RegRef struct {
	Group RegGroup
	Index int
}

// RetReg is the link register used by CALL/RET (R15).
const RetReg = 15

// Instruction is a decoded instruction record. Unused fields for a given
// Type are zero; which fields are meaningful is determined entirely by Type
// and, for Types 1/2/4/5, Op.
type Instruction struct {
	Type Type
	Op   uint32

	Reg1, Reg2, Reg3    int // general-register indices, Type2/4/5
	FReg1, FReg2, FReg3 int // float-register indices, Type3/6
	Imm                 uint32
}

// OpName returns the mnemonic for the instruction's (Type, Op) pair, or
// "INVALID INSTRUCTION" if Op is out of range for Type.
func (i Instruction) OpName() string {
	ops := opsForType(i.Type)
	if int(i.Op) < 0 || int(i.Op) >= len(ops) {
		return "INVALID INSTRUCTION"
	}
	return ops[i.Op]
}

func (i Instruction) String() string {
	switch i.Type {
	case Type0:
		return i.OpName()
	case Type1:
		return fmt.Sprintf("%s 0x%08X", i.OpName(), i.Imm)
	case Type2:
		return fmt.Sprintf("%s R%d, R%d", i.OpName(), i.Reg1, i.Reg2)
	case Type3:
		return fmt.Sprintf("%s F%d, F%d", i.OpName(), i.FReg1, i.FReg2)
	case Type4:
		return fmt.Sprintf("%s R%d, 0x%08X", i.OpName(), i.Reg1, i.Imm)
	case Type5:
		return fmt.Sprintf("%s R%d, R%d, R%d", i.OpName(), i.Reg1, i.Reg2, i.Reg3)
	case Type6:
		return fmt.Sprintf("%s F%d, F%d, F%d", i.OpName(), i.FReg1, i.FReg2, i.FReg3)
	default:
		return "INVALID INSTRUCTION"
	}
}

// Decode inverts the bit layout of a raw 32-bit instruction word. It returns
// false if the 3-bit type field names an undefined layout (types 7 and
// above never occur; spec §4.1 only defines 0..6).
func Decode(raw uint32) (Instruction, bool) {
	v := raw
	typ := v & maskBit3
	v >>= 3

	switch typ {
	case 0:
		op := v & maskBit1
		return Instruction{Type: Type0, Op: op}, true
	case 1:
		op := v & maskBit4
		v >>= 4
		imm := v & maskBit21
		return Instruction{Type: Type1, Op: op, Imm: imm}, true
	case 2:
		op := v & maskBit4
		v >>= 4
		r1 := v & maskBit4
		v >>= 4
		r2 := v & maskBit4
		return Instruction{Type: Type2, Op: op, Reg1: int(r1), Reg2: int(r2)}, true
	case 3:
		op := v & maskBit1
		v >>= 1
		f1 := v & maskBit4
		v >>= 4
		f2 := v & maskBit4
		return Instruction{Type: Type3, Op: op, FReg1: int(f1), FReg2: int(f2)}, true
	case 4:
		op := v & maskBit4
		v >>= 4
		r1 := v & maskBit4
		v >>= 4
		imm := v & maskBit21
		return Instruction{Type: Type4, Op: op, Reg1: int(r1), Imm: imm}, true
	case 5:
		op := v & maskBit4
		v >>= 4
		r1 := v & maskBit4
		v >>= 4
		r2 := v & maskBit4
		v >>= 4
		r3 := v & maskBit4
		return Instruction{Type: Type5, Op: op, Reg1: int(r1), Reg2: int(r2), Reg3: int(r3)}, true
	case 6:
		op := v & maskBit2
		v >>= 2
		f1 := v & maskBit4
		v >>= 4
		f2 := v & maskBit4
		v >>= 4
		f3 := v & maskBit4
		return Instruction{Type: Type6, Op: op, FReg1: int(f1), FReg2: int(f2), FReg3: int(f3)}, true
	default:
		return Instruction{}, false
	}
}

// Encode re-assembles the 32-bit word for an instruction record, inverse of
// Decode. Encode(Decode(w)) == w for any w whose type/op fields are defined
// and whose unused high (padding) bits are zero; Decode ignores those bits.
func Encode(i Instruction) uint32 {
	switch i.Type {
	case Type0:
		return uint32(Type0) | (i.Op&maskBit1)<<3
	case Type1:
		return uint32(Type1) | (i.Op&maskBit4)<<3 | (i.Imm&maskBit21)<<7
	case Type2:
		return uint32(Type2) | (i.Op&maskBit4)<<3 | (uint32(i.Reg1)&maskBit4)<<7 | (uint32(i.Reg2)&maskBit4)<<11
	case Type3:
		return uint32(Type3) | (i.Op&maskBit1)<<3 | (uint32(i.FReg1)&maskBit4)<<4 | (uint32(i.FReg2)&maskBit4)<<8
	case Type4:
		return uint32(Type4) | (i.Op&maskBit4)<<3 | (uint32(i.Reg1)&maskBit4)<<7 | (i.Imm&maskBit21)<<11
	case Type5:
		return uint32(Type5) | (i.Op&maskBit4)<<3 | (uint32(i.Reg1)&maskBit4)<<7 |
			(uint32(i.Reg2)&maskBit4)<<11 | (uint32(i.Reg3)&maskBit4)<<15
	case Type6:
		return uint32(Type6) | (i.Op&maskBit2)<<3 | (uint32(i.FReg1)&maskBit4)<<5 |
			(uint32(i.FReg2)&maskBit4)<<9 | (uint32(i.FReg3)&maskBit4)<<13
	default:
		return 0
	}
}

// Disassemble decodes raw and renders it as assembly text, or
// "; <invalid: 0x%08X>" if the type field is undefined. The pipeline itself
// never calls it.
func Disassemble(raw uint32) string {
	instr, ok := Decode(raw)
	if !ok {
		return fmt.Sprintf("; <invalid: 0x%08X>", raw)
	}
	return instr.String()
}

// SrcRegs returns the set of (group, index) register operands an
// instruction reads, used by Decode-stage hazard detection.
func (i Instruction) SrcRegs() []RegRef {
	switch i.Type {
	case Type0:
		if i.Op == 0 { // RET reads R15
			return []RegRef{{General, RetReg}}
		}
		return nil
	case Type1:
		if i.Op == 0 { // CALL reads nothing
			return nil
		}
		return []RegRef{{Flag, 0}} // conditional jumps test flags
	case Type2:
		switch {
		case i.Op <= 2: // CMP8/16/32
			return []RegRef{{General, i.Reg1}, {General, i.Reg2}}
		case i.Op <= 5: // LDIN8/16/32: reg2 is the address register
			return []RegRef{{General, i.Reg2}}
		default: // STIN8/16/32: reg1 is the data source, reg2 the address
			return []RegRef{{General, i.Reg1}, {General, i.Reg2}}
		}
	case Type3:
		return []RegRef{{Float, i.FReg1}, {Float, i.FReg2}}
	case Type4:
		switch {
		case i.Op <= 5: // LD/LDI: absolute address, no register operands
			return nil
		default: // ST*, ADDIM: reg1 is read
			return []RegRef{{General, i.Reg1}}
		}
	case Type5:
		return []RegRef{{General, i.Reg2}, {General, i.Reg3}}
	case Type6:
		return []RegRef{{Float, i.FReg2}, {Float, i.FReg3}}
	default:
		return nil
	}
}

// DestReg returns the register an instruction writes, if any, per the
// dest-register table in spec §4.4.2.
func (i Instruction) DestReg() (RegRef, bool) {
	switch i.Type {
	case Type1:
		if i.Op == 0 { // CALL
			return RegRef{General, RetReg}, true
		}
		return RegRef{}, false
	case Type2:
		switch {
		case i.Op <= 2: // CMP8/16/32
			return RegRef{Flag, 0}, true
		case i.Op <= 5: // LDIN8/16/32
			return RegRef{General, i.Reg1}, true
		default: // STIN*
			return RegRef{}, false
		}
	case Type3: // CMPF
		return RegRef{Flag, 0}, true
	case Type4:
		switch {
		case i.Op <= 8: // LD/LDI/ST
			if i.Op <= 5 {
				return RegRef{General, i.Reg1}, true
			}
			return RegRef{}, false // ST* writes no register
		default: // ADDIM
			return RegRef{General, i.Reg1}, true
		}
	case Type5:
		return RegRef{General, i.Reg1}, true
	case Type6:
		return RegRef{Float, i.FReg1}, true
	default:
		return RegRef{}, false
	}
}

// IsMemoryOp reports whether the instruction requires a Memory-stage
// request, and if so whether it is a load (vs. a store).
func (i Instruction) IsMemoryOp() (isMem bool, isLoad bool) {
	switch i.Type {
	case Type2:
		if i.Op >= 3 && i.Op <= 5 {
			return true, true // LDIN*
		}
		if i.Op >= 6 && i.Op <= 8 {
			return true, false // STIN*
		}
	case Type4:
		if i.Op <= 5 {
			return true, true // LD*/LDI*
		}
		if i.Op >= 6 && i.Op <= 8 {
			return true, false // ST*
		}
	}
	return false, false
}

// MemWidth returns the declared word kind a memory-referencing instruction
// loads or stores, per the opcode's name (e.g. LDI16 -> I16, STIN32 -> U32).
// Only meaningful when IsMemoryOp reports true.
func (i Instruction) MemWidth() word.Kind {
	switch i.Type {
	case Type2:
		switch i.Op % 3 {
		case 0:
			return word.U8
		case 1:
			return word.U16
		default:
			return word.U32
		}
	case Type4:
		switch i.Op {
		case 0, 6:
			return word.U8
		case 1, 7:
			return word.U16
		case 2, 8:
			return word.U32
		case 3:
			return word.I8
		case 4:
			return word.I16
		case 5:
			return word.I32
		}
	}
	return word.U32
}
