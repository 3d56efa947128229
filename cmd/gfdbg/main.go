// Command gfdbg is an interactive terminal front end for the simulator: load
// a program, then single-step, free-run, or inspect architectural state one
// keypress at a time. Grounded on the teacher's terminal host, which puts
// stdin into raw mode and polls non-blocking reads in a loop rather than
// relying on line-buffered os.Stdin.
package main

import (
	"flag"
	"fmt"
	"os"
	"syscall"
	"time"

	"golang.org/x/term"

	"gfisa/internal/pipeline"
	"gfisa/internal/system"
)

func main() {
	lineLen := flag.Int("linelen", 4, "words per cache line")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: gfdbg [options] program.bin\n\nInteractive single-step debugger.\n\nKeys: space=step  r=run  p=print state  q=quit\n\nOptions:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}

	sys, err := system.New(system.Config{LineLen: *lineLen, Capacities: []int{32, 256}, Latencies: []uint64{1, 2}, Pipelined: true})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if err := sys.LoadProgram(flag.Arg(0)); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	dbg := &debugger{sys: sys}
	if err := dbg.run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// debugger owns the raw terminal session and the keypress loop. Mirrors the
// teacher's host: MakeRaw on entry, a non-blocking read loop polling for
// EAGAIN, and a guaranteed Restore on exit.
type debugger struct {
	sys      *system.System
	fd       int
	oldState *term.State
	halted   bool
}

func (d *debugger) run() error {
	d.fd = int(os.Stdin.Fd())
	var err error
	d.oldState, err = term.MakeRaw(d.fd)
	if err != nil {
		return fmt.Errorf("enter raw mode: %w", err)
	}
	defer term.Restore(d.fd, d.oldState)

	if err := syscall.SetNonblock(d.fd, true); err != nil {
		return fmt.Errorf("set nonblocking stdin: %w", err)
	}

	d.printBanner()
	buf := make([]byte, 1)
	for {
		n, err := syscall.Read(d.fd, buf)
		if err == syscall.EAGAIN || err == syscall.EWOULDBLOCK || n == 0 {
			time.Sleep(5 * time.Millisecond)
			continue
		}
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}

		switch buf[0] {
		case 'q', 'Q', 0x03: // ^C also quits
			d.writeLine("\r\nquit\r\n")
			return nil
		case ' ':
			d.step()
		case 'r', 'R':
			d.runToHalt()
		case 'p', 'P':
			d.printState()
		}
		if d.halted {
			d.writeLine("\r\nhalted; press q to quit\r\n")
		}
	}
}

func (d *debugger) step() {
	if d.halted {
		return
	}
	result := d.sys.Step()
	d.writeLine(fmt.Sprintf("\r\ncycle %d: %s\r\n", d.sys.Cycle(), result))
	if result == system.Halt {
		d.halted = true
	}
	d.printState()
}

func (d *debugger) runToHalt() {
	for !d.halted {
		result := d.sys.Step()
		if result == system.Halt {
			d.halted = true
		}
	}
	d.writeLine(fmt.Sprintf("\r\nran to halt at cycle %d\r\n", d.sys.Cycle()))
	d.printState()
}

func (d *debugger) printBanner() {
	d.writeLine("gfdbg ready: space=step  r=run  p=print  q=quit\r\n")
	d.printState()
}

func (d *debugger) printState() {
	snap := d.sys.Registers()
	d.writeLine(fmt.Sprintf("PC=0x%08X  R0=%d R1=%d R2=%d R3=%d\r\n",
		snap.PC, snap.General[0].Unsigned(), snap.General[1].Unsigned(),
		snap.General[2].Unsigned(), snap.General[3].Unsigned()))
	if d.sys.Pipelined() {
		stages := []pipeline.Stage{pipeline.Fetch, pipeline.Decode, pipeline.Execute, pipeline.Memory, pipeline.Writeback}
		for _, st := range stages {
			status := d.sys.Stage(st)
			d.writeLine(fmt.Sprintf("  %-10s %s\r\n", st, describeStatus(status)))
		}
	}
}

func describeStatus(s pipeline.StageStatus) string {
	switch s.Kind {
	case pipeline.StatusStall:
		return "stall"
	case pipeline.StatusInstruction:
		if s.HasDecoded {
			return s.Decoded.String()
		}
		return fmt.Sprintf("raw 0x%08X", s.Raw)
	default:
		return "-"
	}
}

func (d *debugger) writeLine(s string) {
	os.Stdout.WriteString(s)
}
