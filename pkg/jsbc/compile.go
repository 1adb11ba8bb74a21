// Package jsbc is the public library surface: it wires the textual
// front end (pkg/compiler) and the NetBots front end (pkg/graph) to
// the shared bytecode backend (pkg/bytecode) and exposes the two entry
// points spec.md section 6 names (CompileProgram, CompileNetBots), the
// CompileProgramWithHosts variant of the first, and structured logging
// of phase boundaries.
package jsbc

import (
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/chazu/jsbc/pkg/bytecode"
	"github.com/chazu/jsbc/pkg/compiler"
	"github.com/chazu/jsbc/pkg/graph"
)

var log = commonlog.GetLogger("jsbc.compile")

// CompileProgram lowers JS-like source text through lex, parse,
// semantic analysis, and bytecode emission into a PBO3 container,
// using the compiler's built-in CALL_HOST allowlist.
func CompileProgram(source string) ([]byte, error) {
	return CompileProgramWithHosts(source, nil)
}

// CompileProgramWithHosts is like CompileProgram but recognizes
// CALL_HOST callees from hosts in addition to the built-in defaults --
// pass a loaded manifest.Manifest.HostAllowlist() to honor a project's
// jsbc.toml `hosts` list.
func CompileProgramWithHosts(source string, hosts map[string]bool) ([]byte, error) {
	log.Debugf("parsing %d bytes of source", len(source))
	prog, err := compiler.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}

	log.Debug("running semantic analysis")
	if err := compiler.Analyze(prog); err != nil {
		return nil, fmt.Errorf("semantic analysis: %w", err)
	}

	log.Debug("emitting bytecode")
	code, pool, err := compiler.EmitWithHosts(prog, hosts)
	if err != nil {
		return nil, fmt.Errorf("emission: %w", err)
	}

	asm := &bytecode.Assembler{Code: code, Pool: pool}
	out, err := bytecode.Assemble(bytecode.ProgramMagic, asm)
	if err != nil {
		return nil, fmt.Errorf("assembly: %w", err)
	}
	log.Infof("compiled program: %d bytes code, %d constants, %d bytes container",
		len(code), pool.Count(), len(out))
	return out, nil
}

// CompileNetBots decodes, validates, and lays out a NetBots JSON
// control-flow graph into an NBO2 container.
func CompileNetBots(graphJSON []byte) ([]byte, error) {
	log.Debugf("decoding %d bytes of graph JSON", len(graphJSON))
	g, err := graph.Decode(graphJSON)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	log.Debug("validating graph invariants")
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("validate: %w", err)
	}

	log.Debug("laying out blocks")
	asm, err := graph.Layout(g)
	if err != nil {
		return nil, fmt.Errorf("layout: %w", err)
	}

	out, err := bytecode.Assemble(bytecode.NetBotsMagic, asm)
	if err != nil {
		return nil, fmt.Errorf("assembly: %w", err)
	}
	log.Infof("compiled graph: %d blocks, %d bytes container", len(g.Blocks), len(out))
	return out, nil
}
