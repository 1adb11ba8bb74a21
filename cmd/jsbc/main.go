// jsbc is the command-line front end for the compiler: it lowers a
// textual program or a NetBots JSON graph to a bytecode container.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/jsbc/pkg/bytecode"
	"github.com/chazu/jsbc/pkg/jsbc"
	"github.com/chazu/jsbc/pkg/manifest"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: jsbc <command> [options] <file>\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  build <file.jsb>        Compile a textual program to a .pbo container\n")
		fmt.Fprintf(os.Stderr, "  build-graph <file.json> Compile a NetBots graph to a .nbo container\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  jsbc build main.jsb\n")
		fmt.Fprintf(os.Stderr, "  jsbc build-graph flow.json -o flow.nbo\n")
	}

	verbose := flag.Bool("v", false, "Verbose output (print container summary details)")
	output := flag.String("o", "", "Output path (defaults to the input's basename with the container extension)")
	flag.Parse()

	args := flag.Args()
	if len(args) < 2 {
		flag.Usage()
		os.Exit(2)
	}

	cmd, path := args[0], args[1]
	var err error
	switch cmd {
	case "build":
		err = runBuild(path, *output, *verbose)
	case "build-graph":
		err = runBuildGraph(path, *output, *verbose)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", cmd)
		flag.Usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// resolveOutput applies an explicit -o override, else derives a path
// from the input's basename and ext, consulting jsbc.toml's output
// directory when present.
func resolveOutput(inputPath, override, ext string) string {
	if override != "" {
		return override
	}
	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath)) + ext
	if m, err := manifest.FindAndLoad(filepath.Dir(inputPath)); err == nil && m != nil {
		return m.OutputPath(base)
	}
	return base
}

func runBuild(path, override string, verbose bool) error {
	source, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	var hosts map[string]bool
	if m, err := manifest.FindAndLoad(filepath.Dir(path)); err == nil && m != nil {
		hosts = m.HostAllowlist()
	}
	out, err := jsbc.CompileProgramWithHosts(string(source), hosts)
	if err != nil {
		return err
	}
	dest := resolveOutput(path, override, ".pbo")
	if err := os.WriteFile(dest, out, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", dest, err)
	}
	fmt.Printf("wrote %s (%d bytes)\n", dest, len(out))
	if verbose {
		printSummary(out)
	}
	return nil
}

func runBuildGraph(path, override string, verbose bool) error {
	source, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	out, err := jsbc.CompileNetBots(source)
	if err != nil {
		return err
	}
	dest := resolveOutput(path, override, ".nbo")
	if err := os.WriteFile(dest, out, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", dest, err)
	}
	fmt.Printf("wrote %s (%d bytes)\n", dest, len(out))
	if verbose {
		printSummary(out)
	}
	return nil
}

// printSummary disassembles a freshly assembled container and prints
// its constant pool and instruction stream, for -v inspection.
func printSummary(out []byte) {
	c, err := bytecode.Disassemble(out)
	if err != nil {
		fmt.Fprintf(os.Stderr, "  (could not disassemble for summary: %v)\n", err)
		return
	}
	fmt.Println(c.Disassemble())
}
