package isa

import "testing"

func TestDecodeEncodeRoundTrip(t *testing.T) {
	cases := []Instruction{
		{Type: Type0, Op: 0},
		{Type: Type0, Op: 1},
		{Type: Type1, Op: 0, Imm: 0x1FFFFF},
		{Type: Type1, Op: 7, Imm: 1234},
		{Type: Type2, Op: 3, Reg1: 5, Reg2: 9},
		{Type: Type3, Op: 0, FReg1: 2, FReg2: 15},
		{Type: Type4, Op: 9, Reg1: 0, Imm: 5},
		{Type: Type5, Op: 13, Reg1: 1, Reg2: 2, Reg3: 3},
		{Type: Type6, Op: 3, FReg1: 1, FReg2: 2, FReg3: 3},
	}
	for _, want := range cases {
		raw := Encode(want)
		got, ok := Decode(raw)
		if !ok {
			t.Fatalf("decode failed for %+v (raw=0x%08X)", want, raw)
		}
		if got != want {
			t.Errorf("round trip mismatch: want %+v got %+v (raw=0x%08X)", want, got, raw)
		}
	}
}

func TestDecodeUnknownType(t *testing.T) {
	// type field is bits[0:3]; 7 is the only undefined 3-bit pattern
	if _, ok := Decode(7); ok {
		t.Fatalf("expected type field 7 to be undefined")
	}
}

func TestAddimEncoding(t *testing.T) {
	// spec §8 scenario 1: ADDIM R0, 5
	instr := Instruction{Type: Type4, Op: 9, Reg1: 0, Imm: 5}
	raw := Encode(instr)
	got, ok := Decode(raw)
	if !ok || got != instr {
		t.Fatalf("ADDIM encode/decode mismatch: got %+v ok=%v", got, ok)
	}
}

func TestDestRegTable(t *testing.T) {
	tests := []struct {
		instr    Instruction
		wantReg  RegRef
		wantHave bool
	}{
		{Instruction{Type: Type1, Op: 0}, RegRef{General, RetReg}, true},   // CALL
		{Instruction{Type: Type1, Op: 1}, RegRef{}, false},                 // JE
		{Instruction{Type: Type2, Op: 0}, RegRef{Flag, 0}, true},           // CMP8
		{Instruction{Type: Type2, Op: 3, Reg1: 4}, RegRef{General, 4}, true}, // LDIN8
		{Instruction{Type: Type2, Op: 6, Reg1: 4}, RegRef{}, false},         // STIN8
		{Instruction{Type: Type3}, RegRef{Flag, 0}, true},                  // CMPF
		{Instruction{Type: Type4, Op: 9, Reg1: 2}, RegRef{General, 2}, true}, // ADDIM
		{Instruction{Type: Type5, Reg1: 7}, RegRef{General, 7}, true},
		{Instruction{Type: Type6, FReg1: 3}, RegRef{Float, 3}, true},
	}
	for _, tt := range tests {
		got, ok := tt.instr.DestReg()
		if ok != tt.wantHave || got != tt.wantReg {
			t.Errorf("DestReg(%+v) = %+v, %v; want %+v, %v", tt.instr, got, ok, tt.wantReg, tt.wantHave)
		}
	}
}
