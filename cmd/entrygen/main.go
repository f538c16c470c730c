// Command entrygen turns a runtime entry manifest into Go declarations.
//
//	entrygen -manifest entries.yaml -out entries_gen.go
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/wippyai/native-bridge/manifest"
)

func main() {
	var (
		manifestFile = flag.String("manifest", "", "Path to the entry manifest (YAML)")
		outFile      = flag.String("out", "", "Output Go file (stdout if empty)")
	)
	flag.Parse()

	if *manifestFile == "" {
		fmt.Fprintln(os.Stderr, "Usage: entrygen -manifest <entries.yaml> [-out <file.go>]")
		os.Exit(1)
	}

	if err := run(*manifestFile, *outFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(manifestFile, outFile string) error {
	m, err := manifest.Load(manifestFile)
	if err != nil {
		return err
	}

	src, err := Generate(m, filepath.Base(manifestFile))
	if err != nil {
		return err
	}

	if outFile == "" {
		_, err = os.Stdout.Write(src)
		return err
	}
	if err := os.WriteFile(outFile, src, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", outFile, err)
	}
	return nil
}
