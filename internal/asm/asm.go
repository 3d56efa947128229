// Package asm implements the GF-ISA assembler (one half of C1): a
// two-pass translation from the textual assembly syntax of spec §6 into a
// flat big-endian binary image internal/system can load directly into main
// memory.
package asm

import (
	"strconv"
	"strings"

	"gfisa/internal/isa"
	"gfisa/internal/word"
)

// ParseError reports unrecognised syntax or an unknown mnemonic.
type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return "asm: parse error at line " + strconv.Itoa(e.Line) + ": " + e.Msg
}

// RangeError reports an immediate or register index outside its legal
// range (registers: 0..15; immediates: 21-bit unsigned).
type RangeError struct {
	Line int
	Msg  string
}

func (e *RangeError) Error() string {
	return "asm: range error at line " + strconv.Itoa(e.Line) + ": " + e.Msg
}

// UndefinedLabel reports a reference to a label that was never defined.
type UndefinedLabel struct {
	Line int
	Name string
}

func (e *UndefinedLabel) Error() string {
	return "asm: undefined label at line " + strconv.Itoa(e.Line) + ": " + e.Name
}

const maxImm = 1 << 21 // 21-bit unsigned immediate field

type mnemonicInfo struct {
	typ isa.Type
	op  uint32
}

var mnemonics = buildMnemonicTable()

func buildMnemonicTable() map[string]mnemonicInfo {
	m := make(map[string]mnemonicInfo)
	add := func(t isa.Type, names []string) {
		for i, name := range names {
			m[name] = mnemonicInfo{typ: t, op: uint32(i)}
		}
	}
	add(isa.Type0, isa.Type0Ops)
	add(isa.Type1, isa.Type1Ops)
	add(isa.Type2, isa.Type2Ops)
	add(isa.Type3, isa.Type3Ops)
	add(isa.Type4, isa.Type4Ops)
	add(isa.Type5, isa.Type5Ops)
	add(isa.Type6, isa.Type6Ops)
	return m
}

// Assemble strips comments, resolves label addresses, and emits the
// big-endian instruction-word stream for source. Labels advance no
// address; instructions advance the address by word.MemBlockWidth each
// (the bit-addressed one-word stride — see DESIGN.md's bit-addressing
// resolution).
func Assemble(source string) ([]byte, error) {
	type pending struct {
		line int
		addr uint32
		text string
	}

	labels := make(map[string]uint32)
	var instrs []pending
	var addr uint32

	for lineNo, raw := range strings.Split(source, "\n") {
		line := lineNo + 1
		text := stripComment(raw)
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		if name, rest, ok := splitLabel(text); ok {
			if _, dup := labels[name]; dup {
				return nil, &ParseError{Line: line, Msg: "duplicate label: " + name}
			}
			labels[name] = addr
			text = strings.TrimSpace(rest)
			if text == "" {
				continue
			}
		}

		instrs = append(instrs, pending{line: line, addr: addr, text: text})
		addr += word.MemBlockWidth
	}

	out := make([]byte, 0, len(instrs)*4)
	for _, p := range instrs {
		instr, err := parseInstruction(p.line, p.addr, p.text, labels)
		if err != nil {
			return nil, err
		}
		raw := isa.Encode(instr)
		out = append(out, byte(raw>>24), byte(raw>>16), byte(raw>>8), byte(raw))
	}
	return out, nil
}

func stripComment(line string) string {
	if idx := strings.Index(line, "//"); idx >= 0 {
		return line[:idx]
	}
	return line
}

// splitLabel recognises a leading "Name:" label definition, per spec §6's
// `[A-Za-z][A-Za-z0-9_]*` grammar, returning the remainder of the line.
func splitLabel(text string) (name string, rest string, ok bool) {
	idx := strings.IndexByte(text, ':')
	if idx < 0 {
		return "", text, false
	}
	candidate := text[:idx]
	if !isLabelName(candidate) {
		return "", text, false
	}
	return candidate, text[idx+1:], true
}

func isLabelName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		alpha := (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z')
		digit := r >= '0' && r <= '9'
		if i == 0 {
			if !alpha {
				return false
			}
			continue
		}
		if !alpha && !digit && r != '_' {
			return false
		}
	}
	return true
}

func parseInstruction(line int, addr uint32, text string, labels map[string]uint32) (isa.Instruction, error) {
	mnemonic, operandText := splitMnemonic(text)
	info, ok := mnemonics[strings.ToUpper(mnemonic)]
	if !ok {
		return isa.Instruction{}, &ParseError{Line: line, Msg: "unknown mnemonic: " + mnemonic}
	}
	operands := splitOperands(operandText)

	switch info.typ {
	case isa.Type0:
		if len(operands) != 0 {
			return isa.Instruction{}, &ParseError{Line: line, Msg: mnemonic + " takes no operands"}
		}
		return isa.Instruction{Type: isa.Type0, Op: info.op}, nil

	case isa.Type1:
		if len(operands) != 1 {
			return isa.Instruction{}, &ParseError{Line: line, Msg: mnemonic + " takes exactly one operand"}
		}
		target, err := resolveAddr(line, operands[0], labels)
		if err != nil {
			return isa.Instruction{}, err
		}
		imm := target
		if info.op > 6 { // relative conditional jumps (IJE..IJLTE)
			imm = target - addr
		}
		if imm >= maxImm {
			return isa.Instruction{}, &RangeError{Line: line, Msg: "jump target out of 21-bit immediate range"}
		}
		return isa.Instruction{Type: isa.Type1, Op: info.op, Imm: imm}, nil

	case isa.Type2:
		if len(operands) != 2 {
			return isa.Instruction{}, &ParseError{Line: line, Msg: mnemonic + " takes exactly two register operands"}
		}
		r1, err := parseGeneralReg(line, operands[0])
		if err != nil {
			return isa.Instruction{}, err
		}
		r2, err := parseGeneralReg(line, operands[1])
		if err != nil {
			return isa.Instruction{}, err
		}
		return isa.Instruction{Type: isa.Type2, Op: info.op, Reg1: r1, Reg2: r2}, nil

	case isa.Type3:
		if len(operands) != 2 {
			return isa.Instruction{}, &ParseError{Line: line, Msg: mnemonic + " takes exactly two float register operands"}
		}
		f1, err := parseFloatReg(line, operands[0])
		if err != nil {
			return isa.Instruction{}, err
		}
		f2, err := parseFloatReg(line, operands[1])
		if err != nil {
			return isa.Instruction{}, err
		}
		return isa.Instruction{Type: isa.Type3, Op: info.op, FReg1: f1, FReg2: f2}, nil

	case isa.Type4:
		if len(operands) != 2 {
			return isa.Instruction{}, &ParseError{Line: line, Msg: mnemonic + " takes exactly one register and one immediate/address"}
		}
		r1, err := parseGeneralReg(line, operands[0])
		if err != nil {
			return isa.Instruction{}, err
		}
		imm, err := resolveAddr(line, operands[1], labels)
		if err != nil {
			return isa.Instruction{}, err
		}
		if imm >= maxImm {
			return isa.Instruction{}, &RangeError{Line: line, Msg: "immediate out of 21-bit range"}
		}
		return isa.Instruction{Type: isa.Type4, Op: info.op, Reg1: r1, Imm: imm}, nil

	case isa.Type5:
		if len(operands) != 3 {
			return isa.Instruction{}, &ParseError{Line: line, Msg: mnemonic + " takes exactly three register operands"}
		}
		r1, err := parseGeneralReg(line, operands[0])
		if err != nil {
			return isa.Instruction{}, err
		}
		r2, err := parseGeneralReg(line, operands[1])
		if err != nil {
			return isa.Instruction{}, err
		}
		r3, err := parseGeneralReg(line, operands[2])
		if err != nil {
			return isa.Instruction{}, err
		}
		return isa.Instruction{Type: isa.Type5, Op: info.op, Reg1: r1, Reg2: r2, Reg3: r3}, nil

	case isa.Type6:
		if len(operands) != 3 {
			return isa.Instruction{}, &ParseError{Line: line, Msg: mnemonic + " takes exactly three float register operands"}
		}
		f1, err := parseFloatReg(line, operands[0])
		if err != nil {
			return isa.Instruction{}, err
		}
		f2, err := parseFloatReg(line, operands[1])
		if err != nil {
			return isa.Instruction{}, err
		}
		f3, err := parseFloatReg(line, operands[2])
		if err != nil {
			return isa.Instruction{}, err
		}
		return isa.Instruction{Type: isa.Type6, Op: info.op, FReg1: f1, FReg2: f2, FReg3: f3}, nil

	default:
		return isa.Instruction{}, &ParseError{Line: line, Msg: "unknown instruction type"}
	}
}

func splitMnemonic(text string) (mnemonic, rest string) {
	idx := strings.IndexAny(text, " \t")
	if idx < 0 {
		return text, ""
	}
	return text[:idx], strings.TrimSpace(text[idx:])
}

func splitOperands(text string) []string {
	if text == "" {
		return nil
	}
	parts := strings.Split(text, ",")
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = strings.TrimSpace(p)
	}
	return out
}

func parseReg(line int, tok string, prefix byte, bankSize int) (int, error) {
	if len(tok) < 2 || (tok[0]|0x20) != (prefix|0x20) {
		return 0, &ParseError{Line: line, Msg: "expected register operand, got: " + tok}
	}
	n, err := strconv.Atoi(tok[1:])
	if err != nil {
		return 0, &ParseError{Line: line, Msg: "malformed register operand: " + tok}
	}
	if n < 0 || n >= bankSize {
		return 0, &RangeError{Line: line, Msg: "register index out of range: " + tok}
	}
	return n, nil
}

func parseGeneralReg(line int, tok string) (int, error) {
	return parseReg(line, tok, 'r', 16)
}

func parseFloatReg(line int, tok string) (int, error) {
	return parseReg(line, tok, 'f', 16)
}

// resolveAddr parses tok as a decimal immediate or, failing that, looks it
// up as a label reference.
func resolveAddr(line int, tok string, labels map[string]uint32) (uint32, error) {
	if n, err := strconv.ParseUint(tok, 10, 32); err == nil {
		return uint32(n), nil
	}
	if !isLabelName(tok) {
		return 0, &ParseError{Line: line, Msg: "expected immediate or label, got: " + tok}
	}
	addr, ok := labels[tok]
	if !ok {
		return 0, &UndefinedLabel{Line: line, Name: tok}
	}
	return addr, nil
}
