// Package system wires the instruction codec, register file, memory
// hierarchy, and pipeline engine together behind the single top-level API
// spec §6 names: construct, load a program, step, reset, and inspect.
// Grounded on the teacher's top-level machine/host struct, which owns every
// chip's state and exposes the same shape of lifecycle methods
// (New/Reset/Step) regardless of which core is currently selected.
package system

import (
	"fmt"
	"os"

	"gfisa/internal/memory"
	"gfisa/internal/pipeline"
	"gfisa/internal/registers"
	"gfisa/internal/word"
)

// Config is the System's construction-time configuration: memory hierarchy
// shape plus initial execution mode. A plain struct, no env/flag parsing
// inside this package — cmd/* owns translating flags into a Config.
type Config struct {
	LineLen    int
	Capacities []int
	Latencies  []uint64
	Pipelined  bool // true starts in pipelined mode, false in no-pipeline mode
}

// StepResult is what Step reports for one cycle.
type StepResult int

const (
	InstructionPending StepResult = iota
	InstructionCompleted
	Halt
)

func (r StepResult) String() string {
	switch r {
	case InstructionPending:
		return "InstructionPending"
	case InstructionCompleted:
		return "InstructionCompleted"
	case Halt:
		return "Halt"
	default:
		return "?"
	}
}

// System is the whole simulator: memory hierarchy, register file, and
// either execution mode, plus the cycle counter spec §5 requires every
// Step to advance exactly once.
type System struct {
	mem   *memory.System
	regs  *registers.File
	eng   *pipeline.Engine
	ref   *pipeline.Reference
	piped bool
	cycle uint64
}

// New constructs a System per cfg. The memory hierarchy is built exactly as
// internal/memory.New requires: one level per (capacity, latency) pair, the
// last pair describing main memory and the others cache levels.
func New(cfg Config) (*System, error) {
	mem, err := memory.New(cfg.LineLen, cfg.Capacities, cfg.Latencies)
	if err != nil {
		return nil, fmt.Errorf("system: %w", err)
	}
	regs := registers.New()
	return &System{
		mem:   mem,
		regs:  regs,
		eng:   pipeline.NewEngine(regs, mem),
		ref:   pipeline.NewReference(regs, mem),
		piped: cfg.Pipelined,
	}, nil
}

// LoadProgram reads a flat binary image from path and loads it, per
// LoadBytes.
func (s *System) LoadProgram(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("system: load program: %w", err)
	}
	return s.LoadBytes(data)
}

// LoadBytes loads a flat big-endian instruction image into main memory
// starting at address 0. The image length must be a multiple of 4 bytes
// (spec §6's binary-format alignment rule); excess truncation is an error.
func (s *System) LoadBytes(program []byte) error {
	if len(program)%4 != 0 {
		return fmt.Errorf("system: program length %d is not a multiple of 4 bytes", len(program))
	}
	addr := uint32(0)
	for i := 0; i+4 <= len(program); i += 4 {
		raw := uint32(program[i])<<24 | uint32(program[i+1])<<16 | uint32(program[i+2])<<8 | uint32(program[i+3])
		s.mem.ForceStore(addr, word.FromUnsigned(word.U32, raw))
		addr += word.MemBlockWidth
	}
	return nil
}

// Reset returns registers, memory, and both execution engines to their
// construction-time state, and zeroes the cycle counter. The selected
// execution mode (pipelined vs. no-pipeline) is unaffected.
func (s *System) Reset() {
	s.regs.Reset()
	s.mem.Reset()
	s.eng.Reset()
	s.ref.Reset()
	s.cycle = 0
}

// TogglePipeline switches between pipelined and no-pipeline execution.
// Switching mode resets both engines' in-flight latch/fetch state (but not
// registers or memory) since a partially-drained pipeline makes no sense to
// resume under the other mode's scheduling.
func (s *System) TogglePipeline() {
	s.piped = !s.piped
	s.eng.Reset()
	s.ref.Reset()
}

// Step advances the simulator by exactly one cycle: the selected engine's
// Step, then the memory clock, then the cycle counter — the ordering spec
// §5 fixes ("one step = one tick... memory-clock -> cycle-counter").
func (s *System) Step() StepResult {
	var out pipeline.Outcome
	if s.piped {
		out = s.eng.Step()
	} else {
		out = s.ref.Step()
	}
	s.mem.Tick()
	s.cycle++

	switch out {
	case pipeline.OutcomeHalt:
		return Halt
	case pipeline.OutcomeCompleted:
		return InstructionCompleted
	default:
		return InstructionPending
	}
}

// Registers returns an immutable snapshot of the current register state.
func (s *System) Registers() registers.Snapshot {
	return s.regs.Snapshot()
}

// Stage returns the named pipeline stage's current latch, for inspection.
// In no-pipeline mode only Fetch reports the in-progress instruction (the
// other four stages are architecturally absent and report StatusNoop).
func (s *System) Stage(stage pipeline.Stage) pipeline.StageStatus {
	if !s.piped {
		if stage == pipeline.Fetch {
			return s.ref.Status()
		}
		return pipeline.StageStatus{Kind: pipeline.StatusNoop}
	}
	return s.eng.Status(stage)
}

// MemoryLevel returns a snapshot of memory level i (0-indexed from the
// fastest cache level through main memory).
func (s *System) MemoryLevel(i int) memory.LevelSnapshot {
	return s.mem.Level(i).Snapshot()
}

// Cycle returns the number of Step calls made since construction or Reset.
func (s *System) Cycle() uint64 {
	return s.cycle
}

// Pipelined reports whether the simulator is currently in pipelined mode.
func (s *System) Pipelined() bool {
	return s.piped
}
