// Package diag defines the diagnostic taxonomy shared by every stage of
// the compiler: lexing, parsing, semantic analysis, bytecode emission,
// and NetBots graph validation.
package diag

import "fmt"

// Position mirrors compiler.Position without importing it, so diag has
// no dependency on the AST package.
type Position struct {
	Offset int
	Line   int
	Column int
}

// Phase names a compilation stage for diagnostic classification.
type Phase string

const (
	PhaseLex       Phase = "lex"
	PhaseParse     Phase = "parse"
	PhaseSemantic  Phase = "semantic"
	PhaseEmission  Phase = "emission"
	PhaseGraph     Phase = "graph"
	PhaseAssembler Phase = "assembler"
)

// Error is a single diagnostic. All compiler errors implement error via
// this type so callers can classify failures by Phase without string
// matching.
type Error struct {
	Phase   Phase
	Pos     Position
	Message string
}

func (e *Error) Error() string {
	if e.Pos.Line > 0 {
		return fmt.Sprintf("%s error at %d:%d: %s", e.Phase, e.Pos.Line, e.Pos.Column, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Phase, e.Message)
}

func Lex(pos Position, format string, args ...interface{}) *Error {
	return &Error{Phase: PhaseLex, Pos: pos, Message: fmt.Sprintf(format, args...)}
}

func Parse(pos Position, format string, args ...interface{}) *Error {
	return &Error{Phase: PhaseParse, Pos: pos, Message: fmt.Sprintf(format, args...)}
}

func Emission(pos Position, format string, args ...interface{}) *Error {
	return &Error{Phase: PhaseEmission, Pos: pos, Message: fmt.Sprintf(format, args...)}
}

func Graph(format string, args ...interface{}) *Error {
	return &Error{Phase: PhaseGraph, Message: fmt.Sprintf(format, args...)}
}

func Assembler(format string, args ...interface{}) *Error {
	return &Error{Phase: PhaseAssembler, Message: fmt.Sprintf(format, args...)}
}

// SemanticErrors collects every diagnostic the semantic analyzer found
// across a whole tree walk; it is returned once, atomically, after the
// walk completes (spec: semantic errors are batched, unlike the
// single-shot lex/parse errors).
type SemanticErrors struct {
	Errors []*Error
}

func (e *SemanticErrors) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("%d semantic errors, first: %s", len(e.Errors), e.Errors[0].Error())
}

func (e *SemanticErrors) Add(pos Position, format string, args ...interface{}) {
	e.Errors = append(e.Errors, &Error{Phase: PhaseSemantic, Pos: pos, Message: fmt.Sprintf(format, args...)})
}

func (e *SemanticErrors) HasErrors() bool { return len(e.Errors) > 0 }
