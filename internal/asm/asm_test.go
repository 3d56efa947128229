package asm

import (
	"encoding/binary"
	"testing"

	"gfisa/internal/isa"
	"gfisa/internal/word"
)

func decodeWords(t *testing.T, bytes []byte) []isa.Instruction {
	t.Helper()
	if len(bytes)%4 != 0 {
		t.Fatalf("byte stream length %d not a multiple of 4", len(bytes))
	}
	var out []isa.Instruction
	for i := 0; i < len(bytes); i += 4 {
		raw := binary.BigEndian.Uint32(bytes[i : i+4])
		instr, ok := isa.Decode(raw)
		if !ok {
			t.Fatalf("word %d: undecodable raw 0x%08X", i/4, raw)
		}
		out = append(out, instr)
	}
	return out
}

// spec §8 scenario 1: ADDIM R0, 5 encodes to type=4, op=9, reg1=0, imm=5.
func TestAssembleADDIMScenario(t *testing.T) {
	bytes, err := Assemble("ADDIM R0, 5\n")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	instrs := decodeWords(t, bytes)
	if len(instrs) != 1 {
		t.Fatalf("got %d instructions, want 1", len(instrs))
	}
	got := instrs[0]
	if got.Type != isa.Type4 || got.Op != 9 || got.Reg1 != 0 || got.Imm != 5 {
		t.Fatalf("got %+v, want Type4 op=9 reg1=0 imm=5", got)
	}
}

// spec §8 scenario 2: a label attached to the same line as an instruction,
// and a later backward reference to it, both resolve to the same
// word.MemBlockWidth-strided address.
func TestAssembleLoopScenario(t *testing.T) {
	src := "CMP32 R0, R1\nLOOP: ADDIM R0, 1\nJNE LOOP\n"
	bytes, err := Assemble(src)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	instrs := decodeWords(t, bytes)
	if len(instrs) != 3 {
		t.Fatalf("got %d instructions, want 3", len(instrs))
	}
	if instrs[0].Type != isa.Type2 || instrs[0].Op != 2 {
		t.Fatalf("instr 0 = %+v, want CMP32", instrs[0])
	}
	if instrs[1].Type != isa.Type4 || instrs[1].Op != 9 {
		t.Fatalf("instr 1 = %+v, want ADDIM", instrs[1])
	}
	wantLoopAddr := uint32(1) * word.MemBlockWidth
	if instrs[2].Type != isa.Type1 || instrs[2].Op != 2 || instrs[2].Imm != wantLoopAddr {
		t.Fatalf("instr 2 = %+v, want JNE with imm=%d", instrs[2], wantLoopAddr)
	}
}

func TestAssembleUnknownMnemonic(t *testing.T) {
	_, err := Assemble("FROB R0, R1\n")
	var perr *ParseError
	if err == nil {
		t.Fatalf("expected a ParseError, got nil")
	}
	if !errorsAs(err, &perr) {
		t.Fatalf("expected *ParseError, got %T: %v", err, err)
	}
}

func TestAssembleUndefinedLabel(t *testing.T) {
	_, err := Assemble("JE NOWHERE\n")
	var uerr *UndefinedLabel
	if !errorsAs(err, &uerr) {
		t.Fatalf("expected *UndefinedLabel, got %T: %v", err, err)
	}
}

func TestAssembleRegisterOutOfRange(t *testing.T) {
	_, err := Assemble("CMP32 R0, R16\n")
	var rerr *RangeError
	if !errorsAs(err, &rerr) {
		t.Fatalf("expected *RangeError, got %T: %v", err, err)
	}
}

func TestAssembleImmediateOutOfRange(t *testing.T) {
	_, err := Assemble("ADDIM R0, 99999999\n")
	var rerr *RangeError
	if !errorsAs(err, &rerr) {
		t.Fatalf("expected *RangeError, got %T: %v", err, err)
	}
}

func TestAssembleCaseInsensitiveRegisters(t *testing.T) {
	bytes, err := Assemble("addim r1, 3\n")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	instrs := decodeWords(t, bytes)
	if instrs[0].Reg1 != 1 || instrs[0].Imm != 3 {
		t.Fatalf("got %+v, want reg1=1 imm=3", instrs[0])
	}
}

// errorsAs is a tiny local wrapper so tests don't need to import "errors"
// just for this one call pattern.
func errorsAs[T error](err error, target *T) bool {
	if e, ok := err.(T); ok {
		*target = e
		return true
	}
	return false
}
