package pipeline

import (
	"gfisa/internal/gflog"
	"gfisa/internal/isa"
	"gfisa/internal/memory"
	"gfisa/internal/registers"
	"gfisa/internal/word"
)

// Reference is the no-pipeline execution mode (spec §4.4.1): one
// instruction is fetched, decoded, executed, and committed to completion
// before the next is fetched. It shares evalExecute/buildMemRequest/commit
// with the pipelined Engine so the two modes compute identical results for
// identical programs — the property exercised by the mode-equivalence
// tests — while each memory access still costs the same latency it would in
// the pipelined mode, one poll per tick.
type Reference struct {
	regs *registers.File
	mem  *memory.System

	pending    bool
	raw        uint32
	srcAddr    uint32
	instr      isa.Instruction
	haveInstr  bool
}

// NewReference builds a no-pipeline engine over the given register file and
// memory hierarchy, both owned by the caller (internal/system).
func NewReference(regs *registers.File, mem *memory.System) *Reference {
	return &Reference{regs: regs, mem: mem}
}

// Reset clears in-progress fetch/decode state.
func (r *Reference) Reset() {
	r.pending = false
	r.haveInstr = false
}

// Status reports the in-progress instruction, if any has been fetched, as a
// StageStatus so the no-pipeline mode can be inspected with the same
// accessor shape as the pipelined engine (all other four stages report
// StatusNoop in this mode).
func (r *Reference) Status() StageStatus {
	if !r.pending {
		return StageStatus{Kind: StatusNoop}
	}
	return StageStatus{Kind: StatusInstruction, SrcAddr: r.srcAddr, Raw: r.raw, Decoded: r.instr, HasDecoded: r.haveInstr}
}

// Step fetches (if needed), decodes (if needed), and attempts to complete
// one instruction. It returns OutcomeNoop while a memory access is still
// resolving, mirroring the pipelined engine's per-cycle granularity.
func (r *Reference) Step() Outcome {
	if !r.pending {
		resp, err := r.mem.Request(memory.Request{Kind: memory.ReqLoad, Issuer: memory.IssuerSystem, Address: r.regs.PC, Width: word.U32})
		if err != nil {
			panic(err)
		}
		if resp.Kind != memory.RespLoad {
			return OutcomeNoop
		}
		v, _ := resp.Line.Get(r.regs.PC)
		r.raw = v.Unsigned()
		r.srcAddr = r.regs.PC
		r.pending = true
		r.haveInstr = false
	}

	if !r.haveInstr {
		instr, ok := isa.Decode(r.raw)
		if !ok {
			gflog.For("pipeline").Error("no-pipeline: unknown instruction type, skipping as noop", "raw", r.raw)
			r.regs.StepPC()
			r.pending = false
			return OutcomeCompleted
		}
		r.instr = instr
		r.haveInstr = true
	}

	instr := r.instr
	isMem, isLoad := instr.IsMemoryOp()
	var memVal word.Value
	var haveMemVal bool

	if isMem {
		req := buildMemRequest(r.regs, instr, isLoad)
		resp, err := r.mem.Request(req)
		if err != nil {
			panic(err)
		}
		switch resp.Kind {
		case memory.RespWait:
			return OutcomeNoop
		case memory.RespLoad:
			v, _ := resp.Line.Get(req.Address)
			memVal = v.WithKind(instr.MemWidth())
			haveMemVal = true
		case memory.RespStoreComplete:
		}
	}

	res := evalExecute(r.regs, r.srcAddr, instr)
	if isMem && isLoad {
		if !haveMemVal {
			return OutcomeNoop
		}
		dest, _ := instr.DestReg()
		res = Result{Kind: ResultRegister, Group: dest.Group, Index: dest.Index, Value: memVal}
	}

	halted := instr.Type == isa.Type0 && instr.Op == 1
	branched := res.Kind == ResultBranch || res.Kind == ResultJumpSubRoutine
	commit(r.regs, res)

	r.pending = false
	if !branched {
		r.regs.StepPC()
	}
	if halted {
		return OutcomeHalt
	}
	return OutcomeCompleted
}
