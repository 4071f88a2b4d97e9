// Command ucm-opgen renders the wire package's opcode dispatch table from
// its YAML spec.
//
// The spec lists every opcode in ABI order together with its wire name and
// the declared minimum command and reply sizes. ucm-opgen turns that list
// into the opInfo table in op_info_gen.go; it is invoked through go
// generate in pkg/wire.
//
// Usage:
//
//	ucm-opgen -spec opcodes.yaml -out op_info_gen.go
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/tools/imports"
)

func main() {
	specPath := flag.String("spec", "", "Path to the opcode spec YAML")
	outPath := flag.String("out", "", "Output path for the generated Go file")
	flag.Parse()

	if *specPath == "" || *outPath == "" {
		fmt.Fprintln(os.Stderr, "Usage: ucm-opgen -spec <path> -out <path>")
		flag.PrintDefaults()
		os.Exit(1)
	}

	if err := run(*specPath, *outPath); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(specPath, outPath string) error {
	spec, err := LoadOpSpec(specPath)
	if err != nil {
		return fmt.Errorf("loading opcode spec: %w", err)
	}

	code, err := GenerateOpTable(spec, filepath.Base(specPath))
	if err != nil {
		return fmt.Errorf("generating op table: %w", err)
	}

	if err := writeFormatted(outPath, code); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(outPath), err)
	}
	fmt.Printf("  generated %s\n", outPath)
	return nil
}

// writeFormatted runs generated source through goimports before it
// lands on disk. When formatting fails the raw text is kept next to
// the target under a .broken suffix for inspection.
func writeFormatted(path string, code string) error {
	src := []byte(code)
	formatted, err := imports.Process(path, src, nil)
	if err != nil {
		_ = os.WriteFile(path+".broken", src, 0o644)
		return fmt.Errorf("goimports %s: %w", filepath.Base(path), err)
	}
	return os.WriteFile(path, formatted, 0o644)
}
