// Command gfsim loads one or more GF-ISA binary images and runs each to
// completion (or a cycle budget), printing final architectural state. With
// -workers > 1 it sweeps multiple programs concurrently, one goroutine per
// program, each driving its own independent *system.System.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"gfisa/internal/system"
)

func main() {
	lineLen := flag.Int("linelen", 4, "words per cache line")
	capacities := flag.String("caps", "32,256", "comma-separated cache-level line counts, main memory last")
	latencies := flag.String("lats", "1,2", "comma-separated cache-level latencies in cycles, main memory last")
	pipelined := flag.Bool("pipelined", true, "start in pipelined mode (false selects the no-pipeline reference mode)")
	cycleBudget := flag.Uint64("cycles", 1_000_000, "maximum cycles to run before giving up")
	workers := flag.Int("workers", 1, "number of programs to run concurrently")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: gfsim [options] program.bin [program2.bin ...]\n\nRuns one or more GF-ISA binary images to completion.\n\nOptions:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}

	caps, err := parseIntList(*capacities)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: -caps: %v\n", err)
		os.Exit(1)
	}
	lats, err := parseUint64List(*latencies)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: -lats: %v\n", err)
		os.Exit(1)
	}

	cfg := system.Config{LineLen: *lineLen, Capacities: caps, Latencies: lats, Pipelined: *pipelined}
	paths := flag.Args()

	if *workers <= 1 {
		exitCode := 0
		for _, p := range paths {
			if err := runOne(cfg, p, *cycleBudget); err != nil {
				fmt.Fprintf(os.Stderr, "%s: %v\n", p, err)
				exitCode = 1
			}
		}
		os.Exit(exitCode)
	}

	var g errgroup.Group
	g.SetLimit(*workers)
	for _, p := range paths {
		p := p
		g.Go(func() error {
			return runOne(cfg, p, *cycleBudget)
		})
	}
	if err := g.Wait(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func runOne(cfg system.Config, path string, cycleBudget uint64) error {
	sys, err := system.New(cfg)
	if err != nil {
		return fmt.Errorf("construct system: %w", err)
	}
	if err := sys.LoadProgram(path); err != nil {
		return fmt.Errorf("load program: %w", err)
	}

	var result system.StepResult
	for sys.Cycle() < cycleBudget {
		result = sys.Step()
		if result == system.Halt {
			break
		}
	}

	snap := sys.Registers()
	fmt.Printf("%s: %s after %d cycles; PC=0x%08X R0=%d R1=%d\n",
		path, result, sys.Cycle(), snap.PC, snap.General[0].Unsigned(), snap.General[1].Unsigned())
	if result != system.Halt {
		return fmt.Errorf("did not halt within %d cycles", cycleBudget)
	}
	return nil
}

func parseIntList(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	out := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}

func parseUint64List(s string) ([]uint64, error) {
	parts := strings.Split(s, ",")
	out := make([]uint64, len(parts))
	for i, p := range parts {
		n, err := strconv.ParseUint(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}
