package compiler

import (
	"strconv"

	"github.com/chazu/jsbc/pkg/bytecode"
	"github.com/chazu/jsbc/pkg/diag"
)

// Emitter lowers a validated AST into bytecode.Assembler state: a byte
// buffer plus its constant pool. It mutates a growing byte buffer and
// a stack of loop/switch frames; AST nodes are only ever read, never
// mutated, so no reference cycles arise between emitter and tree.
type Emitter struct {
	asm            *bytecode.Assembler
	breakables     []*breakableFrame
	functionStarts map[*FunctionExpr]int
	synthCounter   int
	hostAllowlist  map[string]bool
}

// breakableFrame is a loop or switch frame: the emitter's per-construct
// record of pending break (and, for loops, continue) jump positions.
type breakableFrame struct {
	isLoop          bool
	loopStart       int
	deferContinue   bool // true for C-style for, where continue must jump forward to the update step
	breakPatches    []int
	continuePatches []int
}

type emitError struct{ err *diag.Error }

func NewEmitter() *Emitter {
	return &Emitter{
		asm:            bytecode.NewAssembler(),
		functionStarts: make(map[*FunctionExpr]int),
		hostAllowlist:  defaultHostAllowlist,
	}
}

// NewEmitterWithHosts is like NewEmitter but recognizes CALL_HOST
// callees from hosts as well as the built-in defaults -- the merged
// set a project's jsbc.toml `hosts` list configures via
// manifest.Manifest.HostAllowlist.
func NewEmitterWithHosts(hosts map[string]bool) *Emitter {
	e := NewEmitter()
	if len(hosts) == 0 {
		return e
	}
	merged := make(map[string]bool, len(defaultHostAllowlist)+len(hosts))
	for h := range defaultHostAllowlist {
		merged[h] = true
	}
	for h := range hosts {
		merged[h] = true
	}
	e.hostAllowlist = merged
	return e
}

func (e *Emitter) fail(format string, args ...interface{}) {
	panic(emitError{diag.Emission(diag.Position{}, format, args...)})
}

func (e *Emitter) synth(label string) string {
	e.synthCounter++
	return label + strconv.Itoa(e.synthCounter)
}

// patchJump wraps Assembler.PatchJump, converting an overflowed
// displacement into an emission error instead of a Go error value.
func (e *Emitter) patchJump(placeholder int) {
	if err := e.asm.PatchJump(placeholder); err != nil {
		e.fail("%v", err)
	}
}

func (e *Emitter) patchJumpTo(placeholder, target int) {
	if err := e.asm.PatchJumpTo(placeholder, target); err != nil {
		e.fail("%v", err)
	}
}

func (e *Emitter) nameIdx(name string) uint32 { return e.asm.Pool.AddString(name) }

// Emit lowers a complete program into Program-dialect bytecode, using
// the compiler's built-in CALL_HOST allowlist.
func Emit(prog *Program) (code []byte, pool *bytecode.ConstPool, err error) {
	return EmitWithHosts(prog, nil)
}

// EmitWithHosts is like Emit but recognizes CALL_HOST callees from
// hosts in addition to the built-in defaults -- the allowlist a
// project's jsbc.toml configures via manifest.Manifest.HostAllowlist.
func EmitWithHosts(prog *Program, hosts map[string]bool) (code []byte, pool *bytecode.ConstPool, err error) {
	e := NewEmitterWithHosts(hosts)
	defer func() {
		if r := recover(); r != nil {
			if ee, ok := r.(emitError); ok {
				err = ee.err
				return
			}
			panic(r)
		}
	}()
	for _, stmt := range prog.Body {
		e.emitStmt(stmt)
	}
	e.asm.EmitOp(bytecode.Halt)
	return e.asm.Code, e.asm.Pool, nil
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (e *Emitter) emitStmt(stmt Stmt) {
	switch s := stmt.(type) {
	case *ExprStmt:
		e.emitExpr(s.Expr)
		e.asm.EmitOp(bytecode.Pop)
	case *BlockStmt:
		for _, inner := range s.Body {
			e.emitStmt(inner)
		}
	case *VarDecl:
		e.emitVarDecl(s)
	case *FunctionDecl:
		bodyStart := e.emitFunctionBody(s.Function)
		idx := e.asm.Pool.AddNumber(float64(bodyStart))
		e.asm.EmitOpU32(bytecode.PushConst, idx)
		e.asm.EmitOpU32(bytecode.StoreVar, e.nameIdx(s.Function.Name))
	case *ClassDecl:
		e.emitClass(s.Class)
		e.asm.EmitOpU32(bytecode.StoreVar, e.nameIdx(s.Class.Name))
	case *IfStmt:
		e.emitIf(s)
	case *WhileStmt:
		e.emitWhile(s)
	case *ForStmt:
		e.emitFor(s)
	case *ForInStmt:
		e.emitForInOf(s.Left, s.Right, s.Body)
	case *ForOfStmt:
		e.emitForInOf(s.Left, s.Right, s.Body)
	case *ReturnStmt:
		if s.Argument != nil {
			e.emitExpr(s.Argument)
		} else {
			e.asm.EmitOpU32(bytecode.PushConst, e.asm.Pool.AddUndefined())
		}
		e.asm.EmitOp(bytecode.Return)
	case *BreakStmt:
		e.emitBreak()
	case *ContinueStmt:
		e.emitContinue()
	case *ThrowStmt:
		e.emitExpr(s.Argument)
		e.asm.EmitOp(bytecode.Throw)
	case *TryStmt:
		e.emitTry(s)
	case *SwitchStmt:
		e.emitSwitch(s)
	case *ImportDecl:
		e.emitImport(s)
	case *ExportDecl:
		e.emitExport(s)
	case *ExportDefaultDecl:
		e.emitExportDefault(s)
	default:
		e.fail("unsupported statement kind %T", stmt)
	}
}

func (e *Emitter) emitVarDecl(decl *VarDecl) {
	for _, d := range decl.Declarators {
		if d.Init != nil {
			e.emitExpr(d.Init)
		} else {
			e.asm.EmitOpU32(bytecode.PushConst, e.asm.Pool.AddUndefined())
		}
		e.bindPattern(d.Target)
	}
}

// bindParam is bindPattern plus an incoming-argument default: when def
// is non-nil and the argument is strictly undefined, def's value is
// substituted before binding.
func (e *Emitter) bindParam(pat Pattern, def Expr) {
	if def == nil {
		e.bindPattern(pat)
		return
	}
	tmp := e.synth("$param")
	e.asm.EmitOpU32(bytecode.StoreVar, e.nameIdx(tmp))
	e.applyPatternDefault(tmp, def)
	e.asm.EmitOpU32(bytecode.LoadVar, e.nameIdx(tmp))
	e.bindPattern(pat)
}

// bindPattern pops the value on top of the stack and binds it to pat,
// destructuring through a synthetic spill variable when pat isn't a
// plain identifier.
func (e *Emitter) bindPattern(pat Pattern) {
	if id, ok := pat.(*IdentPattern); ok {
		e.asm.EmitOpU32(bytecode.StoreVar, e.nameIdx(id.Name))
		return
	}
	tmp := e.synth("$destruct")
	e.asm.EmitOpU32(bytecode.StoreVar, e.nameIdx(tmp))
	e.emitDestructure(pat, tmp)
}

// emitDestructure reloads sourceVar repeatedly, extracting one
// sub-value per terminal identifier of pat.
func (e *Emitter) emitDestructure(pat Pattern, sourceVar string) {
	switch p := pat.(type) {
	case *IdentPattern:
		e.asm.EmitOpU32(bytecode.LoadVar, e.nameIdx(sourceVar))
		e.asm.EmitOpU32(bytecode.StoreVar, e.nameIdx(p.Name))

	case *ObjectPattern:
		for _, prop := range p.Properties {
			e.asm.EmitOpU32(bytecode.LoadVar, e.nameIdx(sourceVar))
			if prop.Computed {
				e.emitExpr(prop.KeyExpr)
				e.asm.EmitOp(bytecode.GetPropComputed)
			} else {
				e.asm.EmitOpU32(bytecode.GetProp, e.nameIdx(prop.Key))
			}
			subVar := e.synth("$destruct")
			e.asm.EmitOpU32(bytecode.StoreVar, e.nameIdx(subVar))
			e.applyPatternDefault(subVar, prop.Default)
			e.emitDestructure(prop.Value, subVar)
		}

	case *ArrayPattern:
		for i, elem := range p.Elements {
			if elem.Pattern == nil {
				continue // hole
			}
			e.asm.EmitOpU32(bytecode.LoadVar, e.nameIdx(sourceVar))
			idxConst := e.asm.Pool.AddNumber(float64(i))
			e.asm.EmitOpU32(bytecode.PushConst, idxConst)
			e.asm.EmitOp(bytecode.GetPropComputed)
			subVar := e.synth("$destruct")
			e.asm.EmitOpU32(bytecode.StoreVar, e.nameIdx(subVar))
			e.applyPatternDefault(subVar, elem.Default)
			e.emitDestructure(elem.Pattern, subVar)
		}

	default:
		e.fail("unsupported pattern kind %T", pat)
	}
}

// applyPatternDefault replaces the value in subVar with def's value
// when the current value is strictly undefined.
func (e *Emitter) applyPatternDefault(subVar string, def Expr) {
	if def == nil {
		return
	}
	e.asm.EmitOpU32(bytecode.LoadVar, e.nameIdx(subVar))
	e.asm.EmitOpU32(bytecode.PushConst, e.asm.Pool.AddUndefined())
	e.asm.EmitOp(bytecode.StrictEq)
	ph := e.asm.EmitJump(bytecode.Jz)
	e.emitExpr(def)
	e.asm.EmitOpU32(bytecode.StoreVar, e.nameIdx(subVar))
	e.patchJump(ph)
}

func (e *Emitter) emitIf(s *IfStmt) {
	e.emitExpr(s.Test)
	elsePh := e.asm.EmitJump(bytecode.Jz)
	e.emitStmt(s.Consequent)
	if s.Alternate != nil {
		endPh := e.asm.EmitJump(bytecode.Jmp)
		e.patchJump(elsePh)
		e.emitStmt(s.Alternate)
		e.patchJump(endPh)
	} else {
		e.patchJump(elsePh)
	}
}

func (e *Emitter) pushLoop(loopStart int, deferContinue bool) *breakableFrame {
	f := &breakableFrame{isLoop: true, loopStart: loopStart, deferContinue: deferContinue}
	e.breakables = append(e.breakables, f)
	return f
}

func (e *Emitter) pushSwitch() *breakableFrame {
	f := &breakableFrame{isLoop: false}
	e.breakables = append(e.breakables, f)
	return f
}

func (e *Emitter) popBreakable() {
	e.breakables = e.breakables[:len(e.breakables)-1]
}

func (e *Emitter) emitBreak() {
	if len(e.breakables) == 0 {
		e.fail("break outside loop or switch")
	}
	f := e.breakables[len(e.breakables)-1]
	ph := e.asm.EmitJump(bytecode.Jmp)
	f.breakPatches = append(f.breakPatches, ph)
}

func (e *Emitter) emitContinue() {
	for i := len(e.breakables) - 1; i >= 0; i-- {
		f := e.breakables[i]
		if !f.isLoop {
			continue
		}
		if f.deferContinue {
			ph := e.asm.EmitJump(bytecode.Jmp)
			f.continuePatches = append(f.continuePatches, ph)
		} else {
			ph := e.asm.EmitJump(bytecode.Jmp)
			e.patchJumpTo(ph, f.loopStart)
		}
		return
	}
	e.fail("continue outside loop")
}

func (e *Emitter) resolveLoopBreaks(f *breakableFrame) {
	end := e.asm.Offset()
	for _, ph := range f.breakPatches {
		e.patchJumpTo(ph, end)
	}
}

func (e *Emitter) emitWhile(s *WhileStmt) {
	loopStart := e.asm.Offset()
	e.emitExpr(s.Test)
	endPh := e.asm.EmitJump(bytecode.Jz)
	f := e.pushLoop(loopStart, false)
	e.emitStmt(s.Body)
	e.popBreakable()
	loopPh := e.asm.EmitJump(bytecode.Jmp)
	e.patchJumpTo(loopPh, loopStart)
	e.patchJump(endPh)
	e.resolveLoopBreaks(f)
}

func (e *Emitter) emitFor(s *ForStmt) {
	switch init := s.Init.(type) {
	case nil:
	case *VarDecl:
		e.emitVarDecl(init)
	case Expr:
		e.emitExpr(init)
		e.asm.EmitOp(bytecode.Pop)
	default:
		e.fail("unsupported for-init kind %T", s.Init)
	}

	loopStart := e.asm.Offset()
	var endPh int
	if s.Test != nil {
		e.emitExpr(s.Test)
	} else {
		e.asm.EmitOpU32(bytecode.PushConst, e.asm.Pool.AddBool(true))
	}
	endPh = e.asm.EmitJump(bytecode.Jz)

	f := e.pushLoop(loopStart, true)
	e.emitStmt(s.Body)

	continueTarget := e.asm.Offset()
	for _, ph := range f.continuePatches {
		e.patchJumpTo(ph, continueTarget)
	}
	e.popBreakable()

	if s.Update != nil {
		e.emitExpr(s.Update)
		e.asm.EmitOp(bytecode.Pop)
	}
	loopPh := e.asm.EmitJump(bytecode.Jmp)
	e.patchJumpTo(loopPh, loopStart)
	e.patchJump(endPh)
	e.resolveLoopBreaks(f)
}

// emitForInOf lowers both for-in and for-of per the shared iterator
// protocol: evaluate right, GET_ITERATOR, store in a synthetic
// $iterator, then loop: call next, check done, bind value, run body.
// for-in's key/value distinction is a property of what GET_ITERATOR
// produces for its operand, not of this lowering.
func (e *Emitter) emitForInOf(left Pattern, right Expr, body Stmt) {
	e.emitExpr(right)
	e.asm.EmitOp(bytecode.GetIterator)
	iterVar := e.synth("$iterator")
	e.asm.EmitOpU32(bytecode.StoreVar, e.nameIdx(iterVar))

	loopStart := e.asm.Offset()
	e.asm.EmitOpU32(bytecode.LoadVar, e.nameIdx(iterVar))
	e.asm.EmitOpU32(bytecode.GetProp, e.nameIdx("next"))
	e.asm.EmitOpU32(bytecode.LoadVar, e.nameIdx(iterVar))
	e.asm.EmitOpU32(bytecode.Call, 0)
	e.asm.EmitOp(bytecode.Dup)
	e.asm.EmitOpU32(bytecode.GetProp, e.nameIdx("done"))
	endPh := e.asm.EmitJump(bytecode.Jnz)

	e.asm.EmitOpU32(bytecode.GetProp, e.nameIdx("value"))
	e.bindPattern(left)

	f := e.pushLoop(loopStart, false)
	e.emitStmt(body)
	e.popBreakable()

	loopPh := e.asm.EmitJump(bytecode.Jmp)
	e.patchJumpTo(loopPh, loopStart)
	e.patchJump(endPh)
	e.asm.EmitOp(bytecode.Pop) // discard the iterator-result object left by the failed done check
	e.resolveLoopBreaks(f)
}

func (e *Emitter) emitTry(s *TryStmt) {
	for _, inner := range s.Block.Body {
		e.emitStmt(inner)
	}

	var skipPh int
	hasSkip := s.HasCatch
	if hasSkip {
		skipPh = e.asm.EmitJump(bytecode.Jmp)
	}

	if s.HasCatch {
		catchPh := e.asm.EmitJump(bytecode.Catch)
		if s.Param != nil {
			e.bindPattern(s.Param)
		} else {
			e.asm.EmitOp(bytecode.Pop)
		}
		for _, inner := range s.Handler.Body {
			e.emitStmt(inner)
		}
		e.patchJump(catchPh)
		e.asm.EmitOp(bytecode.EndCatch)
	}

	finallyStart := e.asm.Offset()
	if hasSkip {
		e.patchJumpTo(skipPh, finallyStart)
	}
	if s.Finalizer != nil {
		finPh := e.asm.EmitJump(bytecode.Finally)
		for _, inner := range s.Finalizer.Body {
			e.emitStmt(inner)
		}
		e.patchJump(finPh)
	}
}

// emitSwitch dispatches with a JNZ-to-body chain per case so every
// jump, including the default and no-match fallback, is recorded and
// patched: the per-case dispatch jumps resolve to that case's body
// start, and break/no-match jumps resolve to the end of the switch.
func (e *Emitter) emitSwitch(s *SwitchStmt) {
	e.emitExpr(s.Discriminant)
	tmp := e.synth("$switch")
	e.asm.EmitOpU32(bytecode.StoreVar, e.nameIdx(tmp))

	bodyPatches := make([]int, len(s.Cases))
	defaultIndex := -1
	for i, c := range s.Cases {
		if c.Test == nil {
			defaultIndex = i
			continue
		}
		e.asm.EmitOpU32(bytecode.LoadVar, e.nameIdx(tmp))
		e.emitExpr(c.Test)
		e.asm.EmitOp(bytecode.Eq)
		bodyPatches[i] = e.asm.EmitJump(bytecode.Jnz)
	}

	noMatchPh := -1
	if defaultIndex >= 0 {
		bodyPatches[defaultIndex] = e.asm.EmitJump(bytecode.Jmp)
	} else {
		noMatchPh = e.asm.EmitJump(bytecode.Jmp)
	}

	f := e.pushSwitch()
	for i, c := range s.Cases {
		e.patchJump(bodyPatches[i])
		for _, inner := range c.Body {
			e.emitStmt(inner)
		}
	}
	e.popBreakable()

	end := e.asm.Offset()
	if noMatchPh >= 0 {
		e.patchJumpTo(noMatchPh, end)
	}
	for _, ph := range f.breakPatches {
		e.patchJumpTo(ph, end)
	}
}

var defaultHostAllowlist = map[string]bool{
	"document": true, "window": true, "fetch": true, "setTimeout": true,
	"setInterval": true, "WebSocket": true, "console": true,
}

func (e *Emitter) emitImport(s *ImportDecl) {
	srcIdx := e.asm.Pool.AddString(s.Source)
	for _, spec := range s.Specifiers {
		switch spec.Kind {
		case "default":
			e.asm.EmitOpU32(bytecode.ImportDefault, srcIdx)
		default: // "named", "namespace"
			e.asm.EmitOpU32(bytecode.Import, srcIdx)
		}
		e.asm.EmitOpU32(bytecode.StoreVar, e.nameIdx(spec.Local))
	}
}

func (e *Emitter) emitExport(s *ExportDecl) {
	if s.Declaration != nil {
		e.emitStmt(s.Declaration)
		for _, name := range declaredNames(s.Declaration) {
			e.asm.EmitOpU32(bytecode.LoadVar, e.nameIdx(name))
			e.asm.EmitOpU32(bytecode.Export, e.nameIdx(name))
		}
		return
	}
	for _, spec := range s.Specifiers {
		e.asm.EmitOpU32(bytecode.LoadVar, e.nameIdx(spec.Local))
		e.asm.EmitOpU32(bytecode.Export, e.nameIdx(spec.Exported))
	}
}

func declaredNames(stmt Stmt) []string {
	switch d := stmt.(type) {
	case *VarDecl:
		var names []string
		for _, decl := range d.Declarators {
			names = append(names, patternNames(decl.Target)...)
		}
		return names
	case *FunctionDecl:
		return []string{d.Function.Name}
	case *ClassDecl:
		return []string{d.Class.Name}
	default:
		return nil
	}
}

func patternNames(pat Pattern) []string {
	switch p := pat.(type) {
	case *IdentPattern:
		return []string{p.Name}
	case *ObjectPattern:
		var names []string
		for _, prop := range p.Properties {
			names = append(names, patternNames(prop.Value)...)
		}
		if p.Rest != nil {
			names = append(names, patternNames(p.Rest)...)
		}
		return names
	case *ArrayPattern:
		var names []string
		for _, elem := range p.Elements {
			if elem.Pattern != nil {
				names = append(names, patternNames(elem.Pattern)...)
			}
		}
		if p.Rest != nil {
			names = append(names, patternNames(p.Rest)...)
		}
		return names
	default:
		return nil
	}
}

func (e *Emitter) emitExportDefault(s *ExportDefaultDecl) {
	switch d := s.Declaration.(type) {
	case Expr:
		e.emitExpr(d)
	case *FunctionDecl:
		bodyStart := e.emitFunctionBody(d.Function)
		e.asm.EmitOpU32(bytecode.PushConst, e.asm.Pool.AddNumber(float64(bodyStart)))
	case *ClassDecl:
		e.emitClass(d.Class)
	default:
		e.fail("unsupported export default payload %T", s.Declaration)
	}
	e.asm.EmitOp(bytecode.ExportDefault)
}

// ---------------------------------------------------------------------------
// Functions and classes
// ---------------------------------------------------------------------------

// emitFunctionBody emits a function as an inline, skipped-over region
// of code and returns the byte offset of its first instruction. A
// function value is represented, by convention, as a PUSH_CONST of a
// number constant holding that offset; the runtime that invokes CALL
// resolves the callee's numeric value back to a code address.
func (e *Emitter) emitFunctionBody(fn *FunctionExpr) int {
	skipPh := e.asm.EmitJump(bytecode.Jmp)
	bodyStart := e.asm.Offset()
	e.functionStarts[fn] = bodyStart

	constIdx := e.asm.Pool.AddNumber(float64(bodyStart))
	if fn.Generator {
		e.asm.EmitOpU32(bytecode.Generator, constIdx)
	}
	if fn.Async {
		e.asm.EmitOpU32(bytecode.AsyncFunc, constIdx)
	}
	e.asm.EmitOpU32(bytecode.EnterFunc, constIdx)

	for i, param := range fn.Params {
		var def Expr
		if i < len(fn.Defaults) {
			def = fn.Defaults[i]
		}
		e.bindParam(param, def)
	}

	for _, inner := range fn.Body.Body {
		e.emitStmt(inner)
	}
	if !stmtsEndWithReturn(fn.Body.Body) {
		e.asm.EmitOpU32(bytecode.PushConst, e.asm.Pool.AddUndefined())
		e.asm.EmitOp(bytecode.Return)
	}
	e.asm.EmitOp(bytecode.ExitFunc)

	e.patchJump(skipPh)
	return bodyStart
}

func stmtsEndWithReturn(body []Stmt) bool {
	if len(body) == 0 {
		return false
	}
	_, ok := body[len(body)-1].(*ReturnStmt)
	return ok
}

// emitClass emits NEW_CLASS followed by one DEFINE_METHOD/GETTER/SETTER
// per member; each method's metadata (name, code offset, static flag)
// is bundled into a single CBOR object constant since the opcode table
// reserves only one operand for the instruction.
func (e *Emitter) emitClass(cls *ClassExpr) {
	if cls.Superclass != nil {
		e.emitExpr(cls.Superclass)
	} else {
		e.asm.EmitOpU32(bytecode.PushConst, e.asm.Pool.AddUndefined())
	}
	e.asm.EmitOpU32(bytecode.NewClass, e.nameIdx(cls.Name))

	for _, m := range cls.Methods {
		bodyStart := e.emitFunctionBody(m.Function)
		meta := map[string]interface{}{
			"name":   m.Key,
			"offset": float64(bodyStart),
			"static": m.Static,
		}
		metaIdx := e.asm.Pool.AddObject(meta)
		switch m.Kind {
		case "get":
			e.asm.EmitOpU32(bytecode.DefineGetter, metaIdx)
		case "set":
			e.asm.EmitOpU32(bytecode.DefineSetter, metaIdx)
		default: // "method", "constructor"
			e.asm.EmitOpU32(bytecode.DefineMethod, metaIdx)
		}
	}
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

var binaryOpcodes = map[string]bytecode.Opcode{
	"+": bytecode.Add, "-": bytecode.Sub, "*": bytecode.Mul, "/": bytecode.Div, "%": bytecode.Mod,
	"==": bytecode.Eq, "!=": bytecode.Neq, "===": bytecode.StrictEq, "!==": bytecode.StrictNeq,
	"<": bytecode.Lt, "<=": bytecode.Lte, ">": bytecode.Gt, ">=": bytecode.Gte,
	"&": bytecode.BitAnd, "|": bytecode.BitOr, "^": bytecode.BitXor,
	"<<": bytecode.Shl, ">>": bytecode.Shr, ">>>": bytecode.Ushr,
	"in": bytecode.InOp, "instanceof": bytecode.Instanceof, "**": bytecode.Pow,
}

var unaryOpcodes = map[string]bytecode.Opcode{
	"!": bytecode.Not, "-": bytecode.Neg, "+": bytecode.Pos, "~": bytecode.BitNot, "typeof": bytecode.Typeof,
}

func (e *Emitter) emitExpr(expr Expr) {
	switch ex := expr.(type) {
	case *NumberLiteral:
		e.asm.EmitOpU32(bytecode.PushConst, e.asm.Pool.AddNumber(ex.Value))
	case *BigIntLiteral:
		e.asm.EmitOpU32(bytecode.PushConst, e.asm.Pool.AddBigInt(ex.Value))
	case *StringLiteral:
		e.asm.EmitOpU32(bytecode.PushConst, e.asm.Pool.AddString(ex.Value))
	case *BoolLiteral:
		e.asm.EmitOpU32(bytecode.PushConst, e.asm.Pool.AddBool(ex.Value))
	case *NullLiteral:
		e.asm.EmitOpU32(bytecode.PushConst, e.asm.Pool.AddNull())
	case *UndefinedLiteral:
		e.asm.EmitOpU32(bytecode.PushConst, e.asm.Pool.AddUndefined())
	case *ThisExpr:
		e.asm.EmitOpU32(bytecode.LoadVar, e.nameIdx("this"))
	case *SuperExpr:
		e.asm.EmitOpU32(bytecode.LoadVar, e.nameIdx("super"))
	case *Identifier:
		e.asm.EmitOpU32(bytecode.LoadVar, e.nameIdx(ex.Name))
	case *TemplateExpr:
		e.emitTemplate(ex)
	case *ArrayExpr:
		e.emitArray(ex)
	case *ObjectExpr:
		e.emitObject(ex)
	case *MemberExpr:
		e.emitMemberRead(ex)
	case *CallExpr:
		e.emitCall(ex)
	case *NewExpr:
		e.emitNew(ex)
	case *UnaryExpr:
		e.emitUnary(ex)
	case *UpdateExpr:
		e.emitUpdate(ex)
	case *BinaryExpr:
		e.emitExpr(ex.Left)
		e.emitExpr(ex.Right)
		op, ok := binaryOpcodes[ex.Operator]
		if !ok {
			e.fail("unsupported binary operator %q", ex.Operator)
		}
		e.asm.EmitOp(op)
	case *LogicalExpr:
		e.emitLogical(ex)
	case *AssignExpr:
		e.emitAssign(ex)
	case *ConditionalExpr:
		e.emitConditional(ex)
	case *FunctionExpr:
		bodyStart := e.emitFunctionBody(ex)
		e.asm.EmitOpU32(bytecode.PushConst, e.asm.Pool.AddNumber(float64(bodyStart)))
	case *ClassExpr:
		e.emitClass(ex)
	case *YieldExpr:
		if ex.Argument != nil {
			e.emitExpr(ex.Argument)
		} else {
			e.asm.EmitOpU32(bytecode.PushConst, e.asm.Pool.AddUndefined())
		}
		if ex.Delegate {
			e.asm.EmitOp(bytecode.YieldDelegate)
		} else {
			e.asm.EmitOp(bytecode.Yield)
		}
	case *ImportExpr:
		e.emitExpr(ex.Source)
		e.asm.EmitOp(bytecode.ImportDynamic)
	case *SeqExpr:
		e.emitExpr(ex.Inner)
	default:
		e.fail("unsupported expression kind %T", expr)
	}
}

func (e *Emitter) emitTemplate(ex *TemplateExpr) {
	if len(ex.Expressions) == 0 {
		e.asm.EmitOpU32(bytecode.PushConst, e.asm.Pool.AddString(ex.Quasis[0]))
		return
	}
	e.asm.EmitOpU32(bytecode.PushConst, e.asm.Pool.AddString(ex.Quasis[0]))
	for i, sub := range ex.Expressions {
		e.emitExpr(sub)
		e.asm.EmitOpU32(bytecode.PushConst, e.asm.Pool.AddString(ex.Quasis[i+1]))
		e.asm.EmitOp(bytecode.Add)
		e.asm.EmitOp(bytecode.Add)
	}
}

func (e *Emitter) emitArray(ex *ArrayExpr) {
	for _, elem := range ex.Elements {
		if elem == nil {
			e.asm.EmitOpU32(bytecode.PushConst, e.asm.Pool.AddUndefined())
			continue
		}
		e.emitExpr(elem)
	}
	e.asm.EmitOpU32(bytecode.NewArray, uint32(len(ex.Elements)))
}

func (e *Emitter) emitObject(ex *ObjectExpr) {
	e.asm.EmitOp(bytecode.NewObject)
	for _, prop := range ex.Properties {
		e.asm.EmitOp(bytecode.Dup)
		e.emitExpr(prop.Value)
		if prop.Computed {
			e.emitExpr(prop.KeyExpr)
			e.asm.EmitOp(bytecode.SetPropComputed)
		} else {
			e.asm.EmitOpU32(bytecode.SetProp, e.nameIdx(prop.Key))
		}
	}
}

func (e *Emitter) emitMemberRead(ex *MemberExpr) {
	e.emitExpr(ex.Object)
	if ex.Computed {
		e.emitExpr(ex.Property)
		e.asm.EmitOp(bytecode.GetPropComputed)
	} else {
		ident, ok := ex.Property.(*Identifier)
		if !ok {
			e.fail("non-computed member property must be an identifier, got %T", ex.Property)
		}
		e.asm.EmitOpU32(bytecode.GetProp, e.nameIdx(ident.Name))
	}
}

func (e *Emitter) emitCall(ex *CallExpr) {
	if sup, ok := ex.Callee.(*SuperExpr); ok {
		_ = sup
		e.emitArgsReversed(ex.Args)
		e.asm.EmitOpU32(bytecode.SuperCtor, uint32(len(ex.Args)))
		return
	}
	if member, ok := ex.Callee.(*MemberExpr); ok {
		if _, ok := member.Object.(*SuperExpr); ok {
			ident, ok := member.Property.(*Identifier)
			if !ok {
				e.fail("super member call property must be an identifier")
			}
			e.emitArgsReversed(ex.Args)
			e.asm.EmitOpU32Pair(bytecode.InvokeSuper, e.nameIdx(ident.Name), uint32(len(ex.Args)))
			return
		}
	}
	if ident, ok := ex.Callee.(*Identifier); ok && e.hostAllowlist[ident.Name] {
		e.emitArgsReversed(ex.Args)
		e.asm.EmitOpU32Pair(bytecode.CallHost, e.nameIdx(ident.Name), uint32(len(ex.Args)))
		return
	}
	e.emitArgsReversed(ex.Args)
	e.emitExpr(ex.Callee)
	e.asm.EmitOpU32(bytecode.Call, uint32(len(ex.Args)))
}

func (e *Emitter) emitArgsReversed(args []Expr) {
	for i := len(args) - 1; i >= 0; i-- {
		e.emitExpr(args[i])
	}
}

// emitNew lowers `new Callee(args)`: no dedicated construction opcode
// is reserved in the instruction set, so it lowers identically to a
// call, leaving the constructor/instantiation distinction to the
// runtime that interprets the callee value produced by NEW_CLASS.
func (e *Emitter) emitNew(ex *NewExpr) {
	e.emitArgsReversed(ex.Args)
	e.emitExpr(ex.Callee)
	e.asm.EmitOpU32(bytecode.Call, uint32(len(ex.Args)))
}

func (e *Emitter) emitUnary(ex *UnaryExpr) {
	switch ex.Operator {
	case "void":
		e.emitExpr(ex.Argument)
		e.asm.EmitOp(bytecode.Pop)
		e.asm.EmitOpU32(bytecode.PushConst, e.asm.Pool.AddUndefined())
	case "delete":
		member, ok := ex.Argument.(*MemberExpr)
		if !ok {
			e.fail("delete requires a member expression target")
		}
		e.emitExpr(member.Object)
		if member.Computed {
			e.emitExpr(member.Property)
		} else {
			ident, ok := member.Property.(*Identifier)
			if !ok {
				e.fail("non-computed member property must be an identifier")
			}
			e.asm.EmitOpU32(bytecode.PushConst, e.asm.Pool.AddString(ident.Name))
		}
		e.asm.EmitOp(bytecode.DeleteProp)
	case "await":
		e.emitExpr(ex.Argument)
		e.asm.EmitOp(bytecode.Await)
	default:
		op, ok := unaryOpcodes[ex.Operator]
		if !ok {
			e.fail("unsupported unary operator %q", ex.Operator)
		}
		e.emitExpr(ex.Argument)
		e.asm.EmitOp(op)
	}
}

func updateOpcode(operator string) bytecode.Opcode {
	if operator == "++" {
		return bytecode.Add
	}
	return bytecode.Sub
}

func (e *Emitter) emitUpdate(ex *UpdateExpr) {
	op := updateOpcode(ex.Operator)

	if ident, ok := ex.Argument.(*Identifier); ok {
		e.asm.EmitOpU32(bytecode.LoadVar, e.nameIdx(ident.Name))
		if ex.Prefix {
			e.asm.EmitOpU32(bytecode.PushConst, e.asm.Pool.AddNumber(1))
			e.asm.EmitOp(op)
			e.asm.EmitOp(bytecode.Dup)
			e.asm.EmitOpU32(bytecode.StoreVar, e.nameIdx(ident.Name))
		} else {
			e.asm.EmitOp(bytecode.Dup)
			e.asm.EmitOpU32(bytecode.PushConst, e.asm.Pool.AddNumber(1))
			e.asm.EmitOp(op)
			e.asm.EmitOpU32(bytecode.StoreVar, e.nameIdx(ident.Name))
		}
		return
	}

	member, ok := ex.Argument.(*MemberExpr)
	if !ok {
		e.fail("update target must be an identifier or member expression")
	}
	objVar, keyVar := e.spillMemberTarget(member)

	e.reloadMemberTarget(objVar, keyVar, member.Computed)
	if member.Computed {
		e.asm.EmitOp(bytecode.GetPropComputed)
	} else {
		e.asm.EmitOpU32(bytecode.GetProp, e.nameIdx(memberPropName(member)))
	}

	if ex.Prefix {
		e.asm.EmitOpU32(bytecode.PushConst, e.asm.Pool.AddNumber(1))
		e.asm.EmitOp(op)
		e.asm.EmitOp(bytecode.Dup)
	} else {
		e.asm.EmitOp(bytecode.Dup)
		e.asm.EmitOpU32(bytecode.PushConst, e.asm.Pool.AddNumber(1))
		e.asm.EmitOp(op)
	}
	// stack: [..., result_to_keep, new_value]
	newVar := e.synth("$update")
	e.asm.EmitOpU32(bytecode.StoreVar, e.nameIdx(newVar))
	e.reloadMemberTarget(objVar, keyVar, member.Computed)
	e.asm.EmitOpU32(bytecode.LoadVar, e.nameIdx(newVar))
	if member.Computed {
		e.asm.EmitOp(bytecode.SetPropComputed)
	} else {
		e.asm.EmitOpU32(bytecode.SetProp, e.nameIdx(memberPropName(member)))
	}
}

func memberPropName(member *MemberExpr) string {
	ident, ok := member.Property.(*Identifier)
	if !ok {
		return ""
	}
	return ident.Name
}

// spillMemberTarget evaluates a member expression's object (and, if
// computed, its key) into synthetic variables so both can be reloaded
// multiple times without re-running side effects.
func (e *Emitter) spillMemberTarget(member *MemberExpr) (objVar, keyVar string) {
	e.emitExpr(member.Object)
	objVar = e.synth("$obj")
	e.asm.EmitOpU32(bytecode.StoreVar, e.nameIdx(objVar))
	if member.Computed {
		e.emitExpr(member.Property)
		keyVar = e.synth("$key")
		e.asm.EmitOpU32(bytecode.StoreVar, e.nameIdx(keyVar))
	}
	return objVar, keyVar
}

func (e *Emitter) reloadMemberTarget(objVar, keyVar string, computed bool) {
	e.asm.EmitOpU32(bytecode.LoadVar, e.nameIdx(objVar))
	if computed {
		e.asm.EmitOpU32(bytecode.LoadVar, e.nameIdx(keyVar))
	}
}

func (e *Emitter) emitLogical(ex *LogicalExpr) {
	e.emitExpr(ex.Left)
	e.asm.EmitOp(bytecode.Dup)
	var ph int
	switch ex.Operator {
	case "&&":
		ph = e.asm.EmitJump(bytecode.Jz)
	case "||":
		ph = e.asm.EmitJump(bytecode.Jnz)
	case "??":
		// short-circuits on a non-nullish left operand; COALESCE tests
		// nullishness directly rather than truthiness (see DESIGN.md).
		e.asm.EmitOp(bytecode.Coalesce)
		ph = e.asm.EmitJump(bytecode.Jnz)
	default:
		e.fail("unsupported logical operator %q", ex.Operator)
	}
	e.asm.EmitOp(bytecode.Pop)
	e.emitExpr(ex.Right)
	e.patchJump(ph)
}

func (e *Emitter) emitConditional(ex *ConditionalExpr) {
	e.emitExpr(ex.Test)
	elsePh := e.asm.EmitJump(bytecode.Jz)
	e.emitExpr(ex.Consequent)
	endPh := e.asm.EmitJump(bytecode.Jmp)
	e.patchJump(elsePh)
	e.emitExpr(ex.Alternate)
	e.patchJump(endPh)
}

var logicalCompoundOps = map[string]bool{"&&=": true, "||=": true, "??=": true}

func (e *Emitter) emitAssign(ex *AssignExpr) {
	if ex.Operator == "=" {
		e.emitPlainAssign(ex)
		return
	}
	if logicalCompoundOps[ex.Operator] {
		e.emitLogicalCompoundAssign(ex)
		return
	}
	e.emitArithmeticCompoundAssign(ex)
}

func (e *Emitter) emitPlainAssign(ex *AssignExpr) {
	if ex.Pattern != nil {
		e.emitExpr(ex.Value)
		e.bindPattern(ex.Pattern)
		e.reloadBoundPattern(ex.Pattern)
		return
	}

	switch target := ex.Target.(type) {
	case *Identifier:
		e.emitExpr(ex.Value)
		e.asm.EmitOp(bytecode.Dup)
		e.asm.EmitOpU32(bytecode.StoreVar, e.nameIdx(target.Name))
	case *MemberExpr:
		objVar, keyVar := e.spillMemberTarget(target)
		e.emitExpr(ex.Value)
		tmp := e.synth("$assign")
		e.asm.EmitOpU32(bytecode.StoreVar, e.nameIdx(tmp))
		e.reloadMemberTarget(objVar, keyVar, target.Computed)
		e.asm.EmitOpU32(bytecode.LoadVar, e.nameIdx(tmp))
		if target.Computed {
			e.asm.EmitOp(bytecode.SetPropComputed)
		} else {
			e.asm.EmitOpU32(bytecode.SetProp, e.nameIdx(memberPropName(target)))
		}
		e.asm.EmitOpU32(bytecode.LoadVar, e.nameIdx(tmp))
	default:
		e.fail("invalid assignment target %T", ex.Target)
	}
}

// reloadBoundPattern pushes every terminal binding of pat back onto
// the stack as a single array, giving a destructuring assignment
// expression a result value without re-deriving it from the source.
func (e *Emitter) reloadBoundPattern(pat Pattern) {
	names := patternNames(pat)
	for _, n := range names {
		e.asm.EmitOpU32(bytecode.LoadVar, e.nameIdx(n))
	}
	e.asm.EmitOpU32(bytecode.NewArray, uint32(len(names)))
}

func (e *Emitter) emitArithmeticCompoundAssign(ex *AssignExpr) {
	baseOp := ex.Operator[:len(ex.Operator)-1] // strip trailing '='
	opcode, ok := binaryOpcodes[baseOp]
	if !ok {
		e.fail("unsupported compound assignment operator %q", ex.Operator)
	}

	switch target := ex.Target.(type) {
	case *Identifier:
		e.asm.EmitOpU32(bytecode.LoadVar, e.nameIdx(target.Name))
		e.emitExpr(ex.Value)
		e.asm.EmitOp(opcode)
		e.asm.EmitOp(bytecode.Dup)
		e.asm.EmitOpU32(bytecode.StoreVar, e.nameIdx(target.Name))
	case *MemberExpr:
		objVar, keyVar := e.spillMemberTarget(target)
		e.reloadMemberTarget(objVar, keyVar, target.Computed)
		if target.Computed {
			e.asm.EmitOp(bytecode.GetPropComputed)
		} else {
			e.asm.EmitOpU32(bytecode.GetProp, e.nameIdx(memberPropName(target)))
		}
		e.emitExpr(ex.Value)
		e.asm.EmitOp(opcode)
		resultVar := e.synth("$assign")
		e.asm.EmitOpU32(bytecode.StoreVar, e.nameIdx(resultVar))
		e.reloadMemberTarget(objVar, keyVar, target.Computed)
		e.asm.EmitOpU32(bytecode.LoadVar, e.nameIdx(resultVar))
		if target.Computed {
			e.asm.EmitOp(bytecode.SetPropComputed)
		} else {
			e.asm.EmitOpU32(bytecode.SetProp, e.nameIdx(memberPropName(target)))
		}
		e.asm.EmitOpU32(bytecode.LoadVar, e.nameIdx(resultVar))
	default:
		e.fail("invalid compound assignment target %T", ex.Target)
	}
}

func (e *Emitter) emitLogicalCompoundAssign(ex *AssignExpr) {
	ident, ok := ex.Target.(*Identifier)
	if !ok {
		e.fail("logical compound assignment to a non-identifier target is not supported: %T", ex.Target)
	}
	e.asm.EmitOpU32(bytecode.LoadVar, e.nameIdx(ident.Name))
	e.asm.EmitOp(bytecode.Dup)

	var ph int
	switch ex.Operator {
	case "&&=":
		ph = e.asm.EmitJump(bytecode.Jz)
	case "||=":
		ph = e.asm.EmitJump(bytecode.Jnz)
	case "??=":
		e.asm.EmitOp(bytecode.Dup)
		e.asm.EmitOp(bytecode.Coalesce)
		ph = e.asm.EmitJump(bytecode.Jnz)
		e.asm.EmitOp(bytecode.Pop)
	default:
		e.fail("unsupported logical compound operator %q", ex.Operator)
	}

	e.asm.EmitOp(bytecode.Pop)
	e.emitExpr(ex.Value)
	e.asm.EmitOp(bytecode.Dup)
	e.asm.EmitOpU32(bytecode.StoreVar, e.nameIdx(ident.Name))
	e.patchJump(ph)
}
