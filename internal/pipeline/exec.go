package pipeline

import (
	"gfisa/internal/gflog"
	"gfisa/internal/isa"
	"gfisa/internal/memory"
	"gfisa/internal/registers"
	"gfisa/internal/word"
)

// evalExecute computes the Result of an already-decoded instruction against
// the current register file. It is pure with respect to regs: it never
// writes, only reads — the write happens later, at Writeback (or the
// equivalent point in the no-pipeline mode), via commit. srcAddr is the
// address the instruction was fetched from, needed for CALL's return address
// and relative-jump targets.
func evalExecute(regs *registers.File, srcAddr uint32, instr isa.Instruction) Result {
	switch instr.Type {
	case isa.Type0:
		if instr.Op == 0 { // RET
			return Result{Kind: ResultBranch, NewPC: regs.General[isa.RetReg].Unsigned()}
		}
		return Result{Kind: ResultEmpty} // HALT: the halt itself is detected by the caller
	case isa.Type1:
		return evalJump(regs, srcAddr, instr)
	case isa.Type2:
		if instr.Op <= 2 { // CMP8/16/32
			flags := registers.CompareFlags(regs.General[instr.Reg1], regs.General[instr.Reg2])
			return Result{Kind: ResultFlag, Flags: flags}
		}
		return Result{Kind: ResultEmpty} // LDIN/STIN: resolved at the Memory stage
	case isa.Type3: // CMPF
		flags := registers.CompareFlags(regs.Float[instr.FReg1], regs.Float[instr.FReg2])
		return Result{Kind: ResultFlag, Flags: flags}
	case isa.Type4:
		if instr.Op == 9 { // ADDIM
			sum := regs.General[instr.Reg1].Unsigned() + instr.Imm
			return Result{Kind: ResultRegister, Group: isa.General, Index: instr.Reg1, Value: word.FromUnsigned(word.U32, sum)}
		}
		return Result{Kind: ResultEmpty} // LD/LDI/ST: resolved at the Memory stage
	case isa.Type5:
		return evalIntALU(regs, instr)
	case isa.Type6:
		return evalFloatALU(regs, instr)
	default:
		return Result{Kind: ResultEmpty}
	}
}

// evalJump handles CALL and the twelve conditional jumps of Type1. The
// predicate table maps op 1..6 (absolute) and 7..12 (relative) onto the same
// six flag tests via (op-1) % 6, per spec §4.4.2.
func evalJump(regs *registers.File, srcAddr uint32, instr isa.Instruction) Result {
	if instr.Op == 0 { // CALL
		return Result{Kind: ResultJumpSubRoutine, NewPC: instr.Imm, Ret: srcAddr + word.MemBlockWidth}
	}
	predIdx := int((instr.Op - 1) % 6)
	if !flagPredicate(predIdx, regs.Status) {
		return Result{Kind: ResultEmpty}
	}
	if instr.Op <= 6 { // absolute jumps
		return Result{Kind: ResultBranch, NewPC: instr.Imm}
	}
	return Result{Kind: ResultBranch, NewPC: srcAddr + instr.Imm} // relative jumps
}

func flagPredicate(idx int, status [registers.FlagCount]bool) bool {
	eq, lt, gt := status[registers.EQ], status[registers.LT], status[registers.GT]
	switch idx {
	case 0:
		return eq
	case 1:
		return !eq
	case 2:
		return gt
	case 3:
		return lt
	case 4:
		return eq || gt
	case 5:
		return eq || lt
	default:
		return false
	}
}

// evalIntALU computes the fourteen Type5 integer ALU operations. ADD/SUB/MUL
// and the three bitwise ops compute identically regardless of the I/U
// opcode suffix (wrapping two's-complement arithmetic is suffix-agnostic);
// the suffix only changes the result's declared Kind and, for DIV/MOD, the
// division itself (signed vs. unsigned). A zero divisor yields a zero
// result rather than a Go runtime panic, since GF-ISA has no integer trap
// (spec §7) — it is logged as a warning for visibility.
func evalIntALU(regs *registers.File, instr isa.Instruction) Result {
	a := regs.General[instr.Reg2]
	b := regs.General[instr.Reg3]
	var bits uint32

	switch instr.Op {
	case 0, 9: // ADDI, ADDU
		bits = a.Unsigned() + b.Unsigned()
	case 1, 10: // SUBI, SUBU
		bits = a.Unsigned() - b.Unsigned()
	case 2, 11: // MULI, MULU
		bits = a.Unsigned() * b.Unsigned()
	case 3: // DIVI (signed)
		if bv := b.Signed(); bv == 0 {
			gflog.For("pipeline").Warn("DIVI by zero, result forced to 0")
		} else {
			bits = uint32(a.Signed() / bv)
		}
	case 12: // DIVU (unsigned)
		if bv := b.Unsigned(); bv == 0 {
			gflog.For("pipeline").Warn("DIVU by zero, result forced to 0")
		} else {
			bits = a.Unsigned() / bv
		}
	case 4: // MODI (signed)
		if bv := b.Signed(); bv == 0 {
			gflog.For("pipeline").Warn("MODI by zero, result forced to 0")
		} else {
			bits = uint32(a.Signed() % bv)
		}
	case 13: // MODU (unsigned)
		if bv := b.Unsigned(); bv == 0 {
			gflog.For("pipeline").Warn("MODU by zero, result forced to 0")
		} else {
			bits = a.Unsigned() % bv
		}
	case 5: // RBSI: arithmetic right shift of reg2 by the low 5 bits of reg3
		shift := b.Unsigned() & 0x1F
		bits = uint32(a.Signed() >> shift)
	case 6: // XORI
		bits = a.Unsigned() ^ b.Unsigned()
	case 7: // ANDI
		bits = a.Unsigned() & b.Unsigned()
	case 8: // ORI
		bits = a.Unsigned() | b.Unsigned()
	}

	kind := word.U32
	if instr.Op <= 8 {
		kind = word.I32
	}
	return Result{Kind: ResultRegister, Group: isa.General, Index: instr.Reg1, Value: word.FromUnsigned(kind, bits)}
}

// evalFloatALU computes the four Type6 float ALU operations using Go's
// native IEEE-754 float32 arithmetic, including its divide-by-zero behaviour
// (+-Inf or NaN, never a panic) — exactly the "no trap is raised" semantics
// spec §7 calls for on floats.
func evalFloatALU(regs *registers.File, instr isa.Instruction) Result {
	a := regs.Float[instr.FReg2].Float32()
	b := regs.Float[instr.FReg3].Float32()
	var r float32
	switch instr.Op {
	case 0:
		r = a + b
	case 1:
		r = a - b
	case 2:
		r = a * b
	case 3:
		r = a / b
	}
	return Result{Kind: ResultRegister, Group: isa.Float, Index: instr.FReg1, Value: word.FromFloat32(r)}
}

// buildMemRequest constructs the Memory-stage request for a load/store
// instruction. Type4 (LD/LDI/ST) addresses directly via its immediate;
// Type2 (LDIN/STIN) addresses indirectly via reg2, with reg1 carrying the
// store data when applicable (see DESIGN.md's STIN/LDIN resolution).
func buildMemRequest(regs *registers.File, instr isa.Instruction, isLoad bool) memory.Request {
	width := instr.MemWidth()
	var addr uint32
	switch instr.Type {
	case isa.Type4:
		addr = instr.Imm
	case isa.Type2:
		addr = regs.General[instr.Reg2].Unsigned()
	}
	if isLoad {
		return memory.Request{Kind: memory.ReqLoad, Issuer: memory.IssuerMemory, Address: addr, Width: width}
	}
	data := regs.General[instr.Reg1].WithKind(width)
	return memory.Request{Kind: memory.ReqStore, Issuer: memory.IssuerMemory, Address: addr, Data: data}
}

// commit applies a Result's architectural effect to the register file. It is
// shared by the pipelined Writeback stage and the no-pipeline reference
// mode; squash and pending-set bookkeeping are the pipelined engine's own
// concern and live in pipeline.go, not here.
func commit(regs *registers.File, res Result) {
	switch res.Kind {
	case ResultRegister:
		regs.WriteNormal(res.Value, res.Group, res.Index)
	case ResultFlag:
		for i, f := range res.Flags {
			if f != nil {
				regs.WriteStatus(i, *f)
			}
		}
	case ResultBranch:
		regs.PC = res.NewPC
	case ResultJumpSubRoutine:
		regs.WriteNormal(word.FromUnsigned(word.U32, res.Ret), isa.General, isa.RetReg)
		regs.PC = res.NewPC
	case ResultEmpty:
	}
}
