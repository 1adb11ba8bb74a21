package compiler

import "github.com/chazu/jsbc/pkg/diag"

// ---------------------------------------------------------------------------
// Semantic Analyzer: scope resolution and binding checks on the AST
// ---------------------------------------------------------------------------

// scopeFrame is one lexical scope: function body, block, for-header,
// for-in/of head, catch clause, or switch case.
type scopeFrame struct {
	names      map[string]bool
	isFunction bool // var declarations hoist to the nearest such frame
}

// SemanticAnalyzer walks a Program and records every undefined
// identifier reference and every duplicate declaration within a
// single scope. Errors are batched: the whole tree is walked before
// any error is raised.
type SemanticAnalyzer struct {
	scopes  []*scopeFrame
	globals map[string]bool
	errs    diag.SemanticErrors
}

// NewSemanticAnalyzer creates an analyzer seeded with the built-in
// global allowlist.
func NewSemanticAnalyzer() *SemanticAnalyzer {
	return &SemanticAnalyzer{globals: defaultKnownGlobals()}
}

// defaultKnownGlobals is the fixed set of host/runtime names that
// resolve successfully without a local declaration.
func defaultKnownGlobals() map[string]bool {
	names := []string{
		"console", "Math", "JSON", "Object", "Array", "String", "Number",
		"Boolean", "Date", "RegExp", "Error", "Promise", "Map", "Set",
		"WeakMap", "WeakSet", "Symbol", "Reflect", "Proxy", "globalThis",
		"window", "document", "fetch", "setTimeout", "setInterval",
		"clearTimeout", "clearInterval", "WebSocket", "EventTarget", "Event",
		"undefined", "NaN", "Infinity",
	}
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

// AddKnownGlobal extends the allowlist, e.g. with manifest-declared
// host bindings.
func (s *SemanticAnalyzer) AddKnownGlobal(name string) {
	s.globals[name] = true
}

func (s *SemanticAnalyzer) pushScope(isFunction bool) {
	s.scopes = append(s.scopes, &scopeFrame{names: make(map[string]bool), isFunction: isFunction})
}

func (s *SemanticAnalyzer) popScope() {
	s.scopes = s.scopes[:len(s.scopes)-1]
}

func (s *SemanticAnalyzer) top() *scopeFrame { return s.scopes[len(s.scopes)-1] }

func (s *SemanticAnalyzer) nearestFunctionScope() *scopeFrame {
	for i := len(s.scopes) - 1; i >= 0; i-- {
		if s.scopes[i].isFunction {
			return s.scopes[i]
		}
	}
	return s.scopes[0]
}

// declare binds name in the current block, reporting a duplicate if
// that block already binds it. A var (hoist) is additionally bound in
// the nearest function scope, so it stays visible after its block and
// a var of the same name in another block is not a duplicate.
func (s *SemanticAnalyzer) declare(name string, hoist bool, pos Position) {
	if name == "" {
		return
	}
	frame := s.top()
	if frame.names[name] {
		s.errs.Add(toDiagPos(pos), "Duplicate declaration: %s", name)
		return
	}
	frame.names[name] = true
	if hoist {
		s.nearestFunctionScope().names[name] = true
	}
}

func (s *SemanticAnalyzer) resolve(name string, pos Position) {
	for i := len(s.scopes) - 1; i >= 0; i-- {
		if s.scopes[i].names[name] {
			return
		}
	}
	if s.globals[name] {
		return
	}
	s.errs.Add(toDiagPos(pos), "%q is not defined", name)
}

func toDiagPos(p Position) diag.Position {
	return diag.Position{Offset: p.Offset, Line: p.Line, Column: p.Column}
}

// Errors returns the batched diagnostics, or nil if the program is clean.
func (s *SemanticAnalyzer) Errors() *diag.SemanticErrors {
	if !s.errs.HasErrors() {
		return nil
	}
	return &s.errs
}

// Analyze walks the whole program, returning a batched error if any
// binding problems were found.
func Analyze(prog *Program) error {
	a := NewSemanticAnalyzer()
	a.pushScope(true) // module/top-level scope acts as a function scope for var hoisting
	a.hoistDeclarations(prog.Body)
	for _, stmt := range prog.Body {
		a.analyzeStmt(stmt)
	}
	a.popScope()
	if err := a.Errors(); err != nil {
		return err
	}
	return nil
}

// hoistDeclarations pre-declares function and class names and `var`
// targets so that forward references (mutual recursion, a function
// calling another declared later in the same block) resolve cleanly.
func (s *SemanticAnalyzer) hoistDeclarations(body []Stmt) {
	for _, stmt := range body {
		switch st := stmt.(type) {
		case *FunctionDecl:
			s.declare(st.Function.Name, false, st.SpanVal.Start)
		case *ClassDecl:
			s.declare(st.Class.Name, false, st.SpanVal.Start)
		case *VarDecl:
			if st.Kind == DeclVar {
				for _, d := range st.Declarators {
					s.declarePattern(d.Target, true)
				}
			}
		}
	}
}

// declarePattern expands a destructuring pattern into one declare
// call per terminal identifier.
func (s *SemanticAnalyzer) declarePattern(pat Pattern, hoist bool) {
	switch p := pat.(type) {
	case *IdentPattern:
		s.declare(p.Name, hoist, p.SpanVal.Start)
	case *ObjectPattern:
		for _, prop := range p.Properties {
			if prop.Computed {
				s.analyzeExpr(prop.KeyExpr)
			}
			if prop.Default != nil {
				s.analyzeExpr(prop.Default)
			}
			s.declarePattern(prop.Value, hoist)
		}
		if p.Rest != nil {
			s.declarePattern(p.Rest, hoist)
		}
	case *ArrayPattern:
		for _, el := range p.Elements {
			if el.Pattern == nil {
				continue
			}
			if el.Default != nil {
				s.analyzeExpr(el.Default)
			}
			s.declarePattern(el.Pattern, hoist)
		}
		if p.Rest != nil {
			s.declarePattern(p.Rest, hoist)
		}
	}
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (s *SemanticAnalyzer) analyzeStmt(stmt Stmt) {
	switch st := stmt.(type) {
	case *ExprStmt:
		s.analyzeExpr(st.Expr)
	case *BlockStmt:
		s.pushScope(false)
		s.hoistDeclarations(st.Body)
		for _, inner := range st.Body {
			s.analyzeStmt(inner)
		}
		s.popScope()
	case *VarDecl:
		for _, d := range st.Declarators {
			if d.Init != nil {
				s.analyzeExpr(d.Init)
			}
			if st.Kind != DeclVar {
				s.declarePattern(d.Target, false)
			} else {
				// already hoisted; still walk nested defaults/computed keys
				s.declarePatternRefsOnly(d.Target)
			}
		}
	case *FunctionDecl:
		s.analyzeFunction(st.Function)
	case *ClassDecl:
		s.analyzeClass(st.Class)
	case *IfStmt:
		s.analyzeExpr(st.Test)
		s.analyzeStmt(st.Consequent)
		if st.Alternate != nil {
			s.analyzeStmt(st.Alternate)
		}
	case *WhileStmt:
		s.analyzeExpr(st.Test)
		s.analyzeStmt(st.Body)
	case *ForStmt:
		s.pushScope(false)
		switch init := st.Init.(type) {
		case *VarDecl:
			s.hoistDeclarations([]Stmt{init})
			s.analyzeStmt(init)
		case *ExprStmt:
			s.analyzeExpr(init.Expr)
		}
		if st.Test != nil {
			s.analyzeExpr(st.Test)
		}
		if st.Update != nil {
			s.analyzeExpr(st.Update)
		}
		s.analyzeStmt(st.Body)
		s.popScope()
	case *ForInStmt:
		s.pushScope(false)
		s.analyzeExpr(st.Right)
		if st.Declared {
			s.declarePattern(st.Left, false)
		} else {
			s.declarePatternRefsOnly(st.Left)
		}
		s.analyzeStmt(st.Body)
		s.popScope()
	case *ForOfStmt:
		s.pushScope(false)
		s.analyzeExpr(st.Right)
		if st.Declared {
			s.declarePattern(st.Left, false)
		} else {
			s.declarePatternRefsOnly(st.Left)
		}
		s.analyzeStmt(st.Body)
		s.popScope()
	case *ReturnStmt:
		if st.Argument != nil {
			s.analyzeExpr(st.Argument)
		}
	case *BreakStmt, *ContinueStmt:
		// nothing to resolve
	case *ThrowStmt:
		s.analyzeExpr(st.Argument)
	case *TryStmt:
		s.analyzeStmt(st.Block)
		if st.HasCatch {
			s.pushScope(false)
			if st.Param != nil {
				s.declarePattern(st.Param, false)
			}
			s.analyzeStmt(st.Handler)
			s.popScope()
		}
		if st.Finalizer != nil {
			s.analyzeStmt(st.Finalizer)
		}
	case *SwitchStmt:
		s.analyzeExpr(st.Discriminant)
		for _, c := range st.Cases {
			s.pushScope(false)
			if c.Test != nil {
				s.analyzeExpr(c.Test)
			}
			s.hoistDeclarations(c.Body)
			for _, inner := range c.Body {
				s.analyzeStmt(inner)
			}
			s.popScope()
		}
	case *ImportDecl:
		for _, spec := range st.Specifiers {
			s.declare(spec.Local, false, st.SpanVal.Start)
		}
	case *ExportDecl:
		if st.Declaration != nil {
			s.analyzeStmt(st.Declaration)
		}
		for _, spec := range st.Specifiers {
			s.resolve(spec.Local, st.SpanVal.Start)
		}
	case *ExportDefaultDecl:
		switch decl := st.Declaration.(type) {
		case Stmt:
			s.analyzeStmt(decl)
		case Expr:
			s.analyzeExpr(decl)
		}
	}
}

// declarePatternRefsOnly walks a pattern's computed keys and defaults
// without re-declaring its identifiers (used for already-hoisted var
// targets and for assignment-style for-in/of left-hand sides).
func (s *SemanticAnalyzer) declarePatternRefsOnly(pat Pattern) {
	switch p := pat.(type) {
	case *IdentPattern:
		s.resolve(p.Name, p.SpanVal.Start)
	case *ObjectPattern:
		for _, prop := range p.Properties {
			if prop.Computed {
				s.analyzeExpr(prop.KeyExpr)
			}
			if prop.Default != nil {
				s.analyzeExpr(prop.Default)
			}
			s.declarePatternRefsOnly(prop.Value)
		}
		if p.Rest != nil {
			s.declarePatternRefsOnly(p.Rest)
		}
	case *ArrayPattern:
		for _, el := range p.Elements {
			if el.Pattern == nil {
				continue
			}
			if el.Default != nil {
				s.analyzeExpr(el.Default)
			}
			s.declarePatternRefsOnly(el.Pattern)
		}
		if p.Rest != nil {
			s.declarePatternRefsOnly(p.Rest)
		}
	}
}

func (s *SemanticAnalyzer) analyzeFunction(fn *FunctionExpr) {
	s.pushScope(true)
	for i, param := range fn.Params {
		s.declarePattern(param, false)
		if fn.Defaults[i] != nil {
			s.analyzeExpr(fn.Defaults[i])
		}
	}
	s.hoistDeclarations(fn.Body.Body)
	for _, inner := range fn.Body.Body {
		s.analyzeStmt(inner)
	}
	s.popScope()
}

func (s *SemanticAnalyzer) analyzeClass(cls *ClassExpr) {
	if cls.Superclass != nil {
		s.analyzeExpr(cls.Superclass)
	}
	for _, m := range cls.Methods {
		if m.Computed {
			s.analyzeExpr(m.KeyExpr)
		}
		s.analyzeFunction(m.Function)
	}
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

func (s *SemanticAnalyzer) analyzeExpr(expr Expr) {
	switch e := expr.(type) {
	case nil:
		return
	case *Identifier:
		s.resolve(e.Name, e.SpanVal.Start)
	case *MemberExpr:
		s.analyzeExpr(e.Object)
		if e.Computed {
			s.analyzeExpr(e.Property)
		}
	case *CallExpr:
		s.analyzeExpr(e.Callee)
		for _, a := range e.Args {
			s.analyzeExpr(a)
		}
	case *NewExpr:
		s.analyzeExpr(e.Callee)
		for _, a := range e.Args {
			s.analyzeExpr(a)
		}
	case *UnaryExpr:
		s.analyzeExpr(e.Argument)
	case *UpdateExpr:
		s.analyzeExpr(e.Argument)
	case *BinaryExpr:
		s.analyzeExpr(e.Left)
		s.analyzeExpr(e.Right)
	case *LogicalExpr:
		s.analyzeExpr(e.Left)
		s.analyzeExpr(e.Right)
	case *AssignExpr:
		s.analyzeExpr(e.Value)
		if e.Pattern != nil {
			s.declarePatternRefsOnly(e.Pattern)
		} else {
			s.analyzeExpr(e.Target)
		}
	case *ConditionalExpr:
		s.analyzeExpr(e.Test)
		s.analyzeExpr(e.Consequent)
		s.analyzeExpr(e.Alternate)
	case *ArrayExpr:
		for _, el := range e.Elements {
			if el != nil {
				s.analyzeExpr(el)
			}
		}
	case *ObjectExpr:
		for _, prop := range e.Properties {
			if prop.Computed {
				s.analyzeExpr(prop.KeyExpr)
			}
			s.analyzeExpr(prop.Value)
		}
	case *TemplateExpr:
		for _, sub := range e.Expressions {
			s.analyzeExpr(sub)
		}
	case *FunctionExpr:
		s.analyzeFunction(e)
	case *ClassExpr:
		s.analyzeClass(e)
	case *YieldExpr:
		if e.Argument != nil {
			s.analyzeExpr(e.Argument)
		}
	case *ImportExpr:
		s.analyzeExpr(e.Source)
	case *SeqExpr:
		s.analyzeExpr(e.Inner)
	case *NumberLiteral, *BigIntLiteral, *StringLiteral, *BoolLiteral,
		*NullLiteral, *UndefinedLiteral, *ThisExpr, *SuperExpr:
		// terminal, nothing to resolve
	}
}
