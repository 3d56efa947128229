// Command gfasm assembles GF-ISA source into a flat big-endian binary
// image, per spec §6's assembler front end.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gfisa/internal/asm"
)

func main() {
	outFile := flag.String("o", "", "Output file (default: input with .bin extension)")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: gfasm [options] input.gfs\n\nAssembles GF-ISA source into a flat binary image.\n\nOptions:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}
	inputPath := flag.Arg(0)

	source, err := os.ReadFile(inputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	bytes, err := asm.Assemble(string(source))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	outputPath := *outFile
	if outputPath == "" {
		outputPath = strings.TrimSuffix(inputPath, filepath.Ext(inputPath)) + ".bin"
	}
	if err := os.WriteFile(outputPath, bytes, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "error writing %s: %v\n", outputPath, err)
		os.Exit(1)
	}
	fmt.Printf("%s: %d bytes (%d instructions)\n", outputPath, len(bytes), len(bytes)/4)
}
