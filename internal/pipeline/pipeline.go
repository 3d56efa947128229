// Package pipeline implements the GF-ISA execution engine (C4): the
// five-stage in-order pipeline (Fetch/Decode/Execute/Memory/Writeback) and
// the no-pipeline reference interpreter that serves as its semantic oracle.
//
// A tick of the pipelined engine proceeds Writeback -> Memory -> Execute ->
// Decode -> Fetch: each stage synchronously calls its upstream neighbour
// with a "downstream is blocked" flag, commits its own previously-held latch
// into this cycle's output, and then adopts the upstream call's return as
// its own latch for the next cycle. This reverse traversal is what lets a
// stall at any stage backpressure every stage above it within the same
// cycle, without any stage needing to know about anything but its immediate
// neighbours.
package pipeline

import (
	"gfisa/internal/gflog"
	"gfisa/internal/isa"
	"gfisa/internal/memory"
	"gfisa/internal/registers"
	"gfisa/internal/word"
)

// LatchKind tags what a stage's latch currently holds.
type LatchKind uint8

const (
	LatchNoop LatchKind = iota
	LatchStall
	LatchInstruction
)

// Latch is the internal, full-fidelity state a stage carries between
// cycles: the in-flight instruction (once fetched), its decoded form (once
// Decode has run), and its computed result (once Execute/Memory has run).
type Latch struct {
	Kind       LatchKind
	SrcAddr    uint32
	Raw        uint32
	Decoded    isa.Instruction
	HasDecoded bool
	Result     Result
	HasResult  bool
}

func emit(lat Latch) Latch {
	if lat.Kind == LatchStall {
		return Latch{Kind: LatchNoop}
	}
	return lat
}

// ResultKind tags the effect an executed instruction has on architectural
// state, committed by Writeback.
type ResultKind uint8

const (
	ResultEmpty ResultKind = iota
	ResultBranch
	ResultJumpSubRoutine
	ResultFlag
	ResultRegister
)

// Result is the tagged union Execute (and, for memory ops, Memory) produces
// and Writeback commits.
type Result struct {
	Kind  ResultKind
	NewPC uint32 // Branch, JumpSubRoutine
	Ret   uint32 // JumpSubRoutine: value written to the link register

	Flags [registers.FlagCount]*bool // Flag: nil entries are left unchanged

	Group isa.RegGroup // Register
	Index int          // Register
	Value word.Value    // Register
}

// Stage names one of the five pipeline stages, for inspection.
type Stage int

const (
	Fetch Stage = iota
	Decode
	Execute
	Memory
	Writeback
)

func (s Stage) String() string {
	switch s {
	case Fetch:
		return "Fetch"
	case Decode:
		return "Decode"
	case Execute:
		return "Execute"
	case Memory:
		return "Memory"
	case Writeback:
		return "Writeback"
	default:
		return "?"
	}
}

// StatusKind is the public, display-oriented counterpart of LatchKind.
type StatusKind int

const (
	StatusNoop StatusKind = iota
	StatusStall
	StatusInstruction
)

// StageStatus is a read-only snapshot of one stage's latch, for the
// system-level state-inspection accessors.
type StageStatus struct {
	Kind       StatusKind
	SrcAddr    uint32
	Raw        uint32
	Decoded    isa.Instruction
	HasDecoded bool
}

func toStageStatus(lat Latch) StageStatus {
	var kind StatusKind
	switch lat.Kind {
	case LatchStall:
		kind = StatusStall
	case LatchInstruction:
		kind = StatusInstruction
	default:
		kind = StatusNoop
	}
	return StageStatus{
		Kind:       kind,
		SrcAddr:    lat.SrcAddr,
		Raw:        lat.Raw,
		Decoded:    lat.Decoded,
		HasDecoded: lat.HasDecoded,
	}
}

// Outcome is what a single Step of either engine reports.
type Outcome int

const (
	OutcomeNoop Outcome = iota
	OutcomeCompleted
	OutcomeHalt
)

// Engine is the five-stage pipelined execution mode.
type Engine struct {
	regs *registers.File
	mem  *memory.System

	pending map[isa.RegRef]struct{}

	fetch     Latch
	decode    Latch
	execute   Latch
	memory    Latch
	writeback Latch
}

// NewEngine builds a pipelined engine over the given register file and
// memory hierarchy, both owned by the caller (internal/system).
func NewEngine(regs *registers.File, mem *memory.System) *Engine {
	e := &Engine{regs: regs, mem: mem}
	e.Reset()
	return e
}

// Reset clears every stage latch and the pending-register set.
func (e *Engine) Reset() {
	e.fetch = Latch{}
	e.decode = Latch{}
	e.execute = Latch{}
	e.memory = Latch{}
	e.writeback = Latch{}
	e.pending = make(map[isa.RegRef]struct{})
}

// Status returns a read-only snapshot of the named stage's latch.
func (e *Engine) Status(s Stage) StageStatus {
	switch s {
	case Fetch:
		return toStageStatus(e.fetch)
	case Decode:
		return toStageStatus(e.decode)
	case Execute:
		return toStageStatus(e.execute)
	case Memory:
		return toStageStatus(e.memory)
	case Writeback:
		return toStageStatus(e.writeback)
	default:
		return StageStatus{}
	}
}

// Step advances the engine by one cycle, per the reverse Writeback -> Memory
// -> Execute -> Decode -> Fetch traversal. It does not touch the memory
// clock or any cycle counter — the caller (internal/system) owns those.
func (e *Engine) Step() Outcome {
	completed, halted := e.stepWriteback()
	switch {
	case halted:
		return OutcomeHalt
	case completed:
		return OutcomeCompleted
	default:
		return OutcomeNoop
	}
}

func (e *Engine) stepWriteback() (completed bool, halted bool) {
	lat := e.writeback
	if lat.Kind == LatchInstruction && lat.HasResult {
		completed = true
		commit(e.regs, lat.Result)
		switch lat.Result.Kind {
		case ResultRegister:
			delete(e.pending, isa.RegRef{Group: lat.Result.Group, Index: lat.Result.Index})
		case ResultFlag:
			delete(e.pending, isa.RegRef{Group: isa.Flag, Index: 0})
		case ResultBranch:
			e.squash()
		case ResultJumpSubRoutine:
			e.squash()
			delete(e.pending, isa.RegRef{Group: isa.General, Index: isa.RetReg})
		}
		if lat.Decoded.Type == isa.Type0 && lat.Decoded.Op == 1 {
			halted = true
		}
	}
	e.writeback = e.stepMemory(false)
	if halted {
		// Fetch has already run ahead of the HALT; leave PC one word past the
		// HALT itself, as the no-pipeline mode does.
		e.regs.PC = lat.SrcAddr + word.MemBlockWidth
	}
	return completed, halted
}

// squash clears every latch upstream of Writeback, the memory system's
// in-flight/queued requests, and the pending-register set, per spec §5: the
// act of committing a taken branch or subroutine call cancels everything
// that was speculatively in flight behind it.
func (e *Engine) squash() {
	e.memory = Latch{}
	e.execute = Latch{}
	e.decode = Latch{}
	e.fetch = Latch{}
	e.mem.ClearInFlight()
	e.pending = make(map[isa.RegRef]struct{})
}

func (e *Engine) stepMemory(blockedByWriteback bool) Latch {
	lat := e.memory
	if blockedByWriteback {
		e.stepExecute(true)
		e.memory = lat
		return Latch{Kind: LatchNoop}
	}

	if lat.Kind == LatchInstruction && lat.HasDecoded && !lat.HasResult {
		lat.Result = evalExecute(e.regs, lat.SrcAddr, lat.Decoded)
		lat.HasResult = true
	}

	if lat.Kind == LatchInstruction && lat.HasDecoded {
		if isMem, isLoad := lat.Decoded.IsMemoryOp(); isMem {
			req := buildMemRequest(e.regs, lat.Decoded, isLoad)
			resp, err := e.mem.Request(req)
			if err != nil {
				panic(err)
			}
			switch resp.Kind {
			case memory.RespWait:
				e.stepExecute(true)
				e.memory = lat
				return Latch{Kind: LatchNoop}
			case memory.RespLoad:
				v, _ := resp.Line.Get(req.Address)
				dest, _ := lat.Decoded.DestReg()
				lat.Result = Result{Kind: ResultRegister, Group: dest.Group, Index: dest.Index, Value: v.WithKind(lat.Decoded.MemWidth())}
				lat.HasResult = true
			case memory.RespStoreComplete:
				lat.Result = Result{Kind: ResultEmpty}
				lat.HasResult = true
			}
		}
	}

	toForward := emit(lat)
	e.memory = e.stepExecute(false)
	return toForward
}

func (e *Engine) stepExecute(blockedByMemory bool) Latch {
	lat := e.execute
	if blockedByMemory {
		e.stepDecode(true)
		e.execute = lat
		return Latch{Kind: LatchNoop}
	}

	if lat.Kind == LatchInstruction && lat.HasDecoded && !lat.HasResult {
		lat.Result = evalExecute(e.regs, lat.SrcAddr, lat.Decoded)
		lat.HasResult = true
	}

	toForward := emit(lat)
	e.execute = e.stepDecode(false)
	return toForward
}

func (e *Engine) stepDecode(blockedByExecute bool) Latch {
	lat := e.decode
	if lat.Kind == LatchInstruction && !lat.HasDecoded {
		instr, ok := isa.Decode(lat.Raw)
		if !ok {
			gflog.For("pipeline").Error("decode stage: unknown instruction type, treating as noop", "raw", lat.Raw)
			lat = Latch{Kind: LatchNoop}
		} else {
			lat.Decoded = instr
			lat.HasDecoded = true
		}
	}

	conflict := false
	if lat.Kind == LatchInstruction && lat.HasDecoded {
		for _, src := range lat.Decoded.SrcRegs() {
			if _, ok := e.pending[src]; ok {
				conflict = true
				break
			}
		}
	}

	if lat.Kind == LatchInstruction && lat.HasDecoded && (blockedByExecute || conflict) {
		e.stepFetch(true)
		e.decode = lat
		return Latch{Kind: LatchNoop}
	}

	var toForward Latch
	if lat.Kind == LatchInstruction && lat.HasDecoded {
		if dest, ok := lat.Decoded.DestReg(); ok {
			e.pending[dest] = struct{}{}
		}
		toForward = lat
	} else {
		toForward = emit(lat)
	}
	e.decode = e.stepFetch(false)
	return toForward
}

func (e *Engine) stepFetch(blockedByDecode bool) Latch {
	lat := e.fetch

	if lat.Kind == LatchInstruction {
		if blockedByDecode {
			e.fetch = lat
			return Latch{Kind: LatchNoop}
		}
		e.fetch = Latch{Kind: LatchNoop}
		return lat
	}

	resp, err := e.mem.Request(memory.Request{Kind: memory.ReqLoad, Issuer: memory.IssuerFetch, Address: e.regs.PC, Width: word.U32})
	if err != nil {
		panic(err)
	}
	if resp.Kind != memory.RespLoad {
		e.fetch = Latch{Kind: LatchNoop}
		return Latch{Kind: LatchStall}
	}

	v, _ := resp.Line.Get(e.regs.PC)
	out := Latch{Kind: LatchInstruction, SrcAddr: e.regs.PC, Raw: v.Unsigned()}
	e.regs.StepPC()
	if blockedByDecode {
		e.fetch = out
		return Latch{Kind: LatchNoop}
	}
	e.fetch = Latch{Kind: LatchNoop}
	return out
}
