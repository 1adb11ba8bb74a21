package compiler

import (
	"testing"

	"github.com/chazu/jsbc/pkg/bytecode"
)

func emitOrFatal(t *testing.T, src string) ([]byte, *bytecode.ConstPool) {
	t.Helper()
	prog, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse(%q): %v", src, err)
	}
	code, pool, err := Emit(prog)
	if err != nil {
		t.Fatalf("Emit(%q): %v", src, err)
	}
	return code, pool
}

func countOp(code []byte, want bytecode.Opcode) int {
	n := 0
	for off := 0; off < len(code); {
		op := bytecode.Opcode(code[off])
		if op == want {
			n++
		}
		off += op.InstructionLen()
	}
	return n
}

func TestEmitClassWithMethodsGetterSetter(t *testing.T) {
	code, _ := emitOrFatal(t, `
		class Point {
			constructor() { this.x = 0; }
			get x() { return 1; }
			set x(v) { this.x = v; }
			static origin() { return new Point(); }
		}
	`)
	if countOp(code, bytecode.NewClass) != 1 {
		t.Fatal("expected one NEW_CLASS")
	}
	if countOp(code, bytecode.DefineMethod) != 2 { // constructor + static origin
		t.Fatalf("expected 2 DEFINE_METHOD, got %d", countOp(code, bytecode.DefineMethod))
	}
	if countOp(code, bytecode.DefineGetter) != 1 {
		t.Fatal("expected one DEFINE_GETTER")
	}
	if countOp(code, bytecode.DefineSetter) != 1 {
		t.Fatal("expected one DEFINE_SETTER")
	}
}

func TestEmitClassExtendsPushesSuperclass(t *testing.T) {
	code, _ := emitOrFatal(t, `class Dog extends Animal { bark() { return 1; } }`)
	if countOp(code, bytecode.NewClass) != 1 {
		t.Fatal("expected one NEW_CLASS")
	}
	// the superclass expression (an identifier load) precedes NEW_CLASS
	if countOp(code, bytecode.LoadVar) == 0 {
		t.Fatal("expected the superclass identifier to be loaded")
	}
}

func TestEmitTryCatchFinally(t *testing.T) {
	code, _ := emitOrFatal(t, `try { risky(); } catch (e) { handle(e); } finally { cleanup(); }`)
	if countOp(code, bytecode.Catch) != 1 {
		t.Fatal("expected one CATCH")
	}
	if countOp(code, bytecode.EndCatch) != 1 {
		t.Fatal("expected one END_CATCH")
	}
	if countOp(code, bytecode.Finally) != 1 {
		t.Fatal("expected one FINALLY")
	}
}

func TestEmitTryWithoutCatchStillRunsFinally(t *testing.T) {
	code, _ := emitOrFatal(t, `try { risky(); } finally { cleanup(); }`)
	if countOp(code, bytecode.Catch) != 0 {
		t.Fatal("expected no CATCH when there is no catch clause")
	}
	if countOp(code, bytecode.Finally) != 1 {
		t.Fatal("expected one FINALLY")
	}
}

func TestEmitSwitchWithDefaultAndFallthrough(t *testing.T) {
	code, _ := emitOrFatal(t, `
		switch (x) {
			case 1:
			case 2:
				a();
				break;
			default:
				b();
		}
	`)
	// Each non-default case emits a LOAD_VAR/EQ/JNZ dispatch triplet;
	// the bare `case 1:` falls through into case 2's body with no break.
	if countOp(code, bytecode.Eq) != 2 {
		t.Fatalf("expected 2 dispatch comparisons, got %d", countOp(code, bytecode.Eq))
	}
	if countOp(code, bytecode.Jnz) != 2 {
		t.Fatalf("expected 2 dispatch JNZ, got %d", countOp(code, bytecode.Jnz))
	}
}

func TestEmitForInUsesIteratorProtocol(t *testing.T) {
	code, _ := emitOrFatal(t, `let obj; for (let k in obj) { use(k); }`)
	if countOp(code, bytecode.GetIterator) != 1 {
		t.Fatal("expected one GET_ITERATOR")
	}
}

func TestEmitForOfUsesIteratorProtocol(t *testing.T) {
	code, _ := emitOrFatal(t, `let arr; for (let v of arr) { use(v); }`)
	if countOp(code, bytecode.GetIterator) != 1 {
		t.Fatal("expected one GET_ITERATOR")
	}
}

func TestEmitArrayDestructuringUsesComputedGet(t *testing.T) {
	code, _ := emitOrFatal(t, `let arr; let [a, b] = arr;`)
	if countOp(code, bytecode.GetPropComputed) != 2 {
		t.Fatalf("expected one GET_PROP_COMPUTED per destructured element, got %d", countOp(code, bytecode.GetPropComputed))
	}
}

func TestEmitObjectDestructuringUsesNamedGet(t *testing.T) {
	code, _ := emitOrFatal(t, `let obj; let { a, b } = obj;`)
	if countOp(code, bytecode.GetProp) < 2 {
		t.Fatalf("expected at least 2 GET_PROP for the destructured properties, got %d", countOp(code, bytecode.GetProp))
	}
}

func TestEmitCompoundAssignOnMemberTarget(t *testing.T) {
	code, _ := emitOrFatal(t, `let obj; obj.count += 1;`)
	if countOp(code, bytecode.GetProp) == 0 {
		t.Fatal("expected the current property value to be read before the add")
	}
	if countOp(code, bytecode.SetProp) == 0 {
		t.Fatal("expected the updated property value to be written back")
	}
	if countOp(code, bytecode.Add) == 0 {
		t.Fatal("expected the compound operator to lower to ADD")
	}
}

func TestEmitComputedCompoundAssign(t *testing.T) {
	code, _ := emitOrFatal(t, `let obj; let key; obj[key] -= 1;`)
	if countOp(code, bytecode.GetPropComputed) == 0 {
		t.Fatal("expected a computed read of the target property")
	}
	if countOp(code, bytecode.SetPropComputed) == 0 {
		t.Fatal("expected a computed write back to the target property")
	}
}

func TestEmitUpdateExprOnMemberTarget(t *testing.T) {
	code, _ := emitOrFatal(t, `let obj; obj.count++;`)
	if countOp(code, bytecode.GetProp) == 0 || countOp(code, bytecode.SetProp) == 0 {
		t.Fatal("expected a member update to read and write the property")
	}
}

func TestEmitImportAndExportForms(t *testing.T) {
	code, pool := emitOrFatal(t, `
		import def from "mod";
		import { a, b as c } from "mod";
		export { def };
		export default 42;
	`)
	if countOp(code, bytecode.ImportDefault) != 1 {
		t.Fatal("expected one IMPORT_DEFAULT")
	}
	if countOp(code, bytecode.Import) != 2 {
		t.Fatalf("expected 2 named IMPORTs, got %d", countOp(code, bytecode.Import))
	}
	if countOp(code, bytecode.Export) != 1 {
		t.Fatal("expected one EXPORT")
	}
	if countOp(code, bytecode.ExportDefault) != 1 {
		t.Fatal("expected one EXPORT_DEFAULT")
	}
	if pool.Count() == 0 {
		t.Fatal("expected module source strings to be interned in the constant pool")
	}
}

func TestEmitFunctionDeclarationSkipsOverItsBody(t *testing.T) {
	code, _ := emitOrFatal(t, `function f(a, b) { return a + b; } f(1, 2);`)
	// The function body is wrapped in a JMP that skips over it at the
	// declaration site, then invoked later through CALL.
	if countOp(code, bytecode.EnterFunc) != 1 {
		t.Fatal("expected one ENTER_FUNC for the function body")
	}
	if countOp(code, bytecode.ExitFunc) != 1 {
		t.Fatal("expected one EXIT_FUNC closing the function body")
	}
	if countOp(code, bytecode.Call) != 1 {
		t.Fatal("expected one CALL at the invocation site")
	}
}

func TestEmitDefaultParameterAppliesWhenUndefined(t *testing.T) {
	code, _ := emitOrFatal(t, `function greet(name = "anon") { return name; }`)
	if countOp(code, bytecode.StrictEq) == 0 {
		t.Fatal("expected a strict-equality check against undefined for the default parameter")
	}
}

func TestEmitNullishCoalescingUsesCoalesceOpcode(t *testing.T) {
	code, _ := emitOrFatal(t, `let a; let b; a ?? b;`)
	if countOp(code, bytecode.Coalesce) == 0 {
		t.Fatal("expected a COALESCE opcode for ??")
	}
}

func TestEmitBreakOutsideLoopFails(t *testing.T) {
	prog, err := Parse(`break;`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, _, err := Emit(prog); err == nil {
		t.Fatal("expected an emission error for break outside a loop or switch")
	}
}

func TestEmitContinueOutsideLoopFails(t *testing.T) {
	prog, err := Parse(`continue;`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, _, err := Emit(prog); err == nil {
		t.Fatal("expected an emission error for continue outside a loop")
	}
}

func TestEmitCallHostRecognizesBuiltinDefault(t *testing.T) {
	prog, err := Parse(`console("hi");`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	code, _, err := Emit(prog)
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if countOp(code, bytecode.CallHost) != 1 {
		t.Fatalf("expected console() to lower to CALL_HOST, got %d", countOp(code, bytecode.CallHost))
	}
	if countOp(code, bytecode.Call) != 0 {
		t.Fatal("expected no ordinary CALL for a recognized host function")
	}
}

func TestEmitCallHostIgnoresUnknownName(t *testing.T) {
	prog, err := Parse(`myFunc("hi");`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	code, _, err := Emit(prog)
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if countOp(code, bytecode.CallHost) != 0 {
		t.Fatal("expected an unrecognized callee to lower to an ordinary CALL, not CALL_HOST")
	}
	if countOp(code, bytecode.Call) != 1 {
		t.Fatal("expected one ordinary CALL")
	}
}

func TestEmitWithHostsMergesProjectHosts(t *testing.T) {
	prog, err := Parse(`notify("hi");`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	code, _, err := EmitWithHosts(prog, map[string]bool{"notify": true})
	if err != nil {
		t.Fatalf("EmitWithHosts: %v", err)
	}
	if countOp(code, bytecode.CallHost) != 1 {
		t.Fatal("expected a project-configured host to lower to CALL_HOST")
	}
}

func TestEmitWithHostsStillRecognizesBuiltinDefaults(t *testing.T) {
	prog, err := Parse(`console("hi"); notify("hi");`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	code, _, err := EmitWithHosts(prog, map[string]bool{"notify": true})
	if err != nil {
		t.Fatalf("EmitWithHosts: %v", err)
	}
	if countOp(code, bytecode.CallHost) != 2 {
		t.Fatalf("expected both the built-in default and the project host to lower to CALL_HOST, got %d", countOp(code, bytecode.CallHost))
	}
}

func TestEmitForLoopContinueJumpsToUpdateStep(t *testing.T) {
	code, _ := emitOrFatal(t, `for (let i = 0; i < 10; i = i + 1) { if (i == 5) continue; use(i); }`)
	if countOp(code, bytecode.Jmp) < 2 {
		t.Fatalf("expected at least 2 JMPs (continue forward-jump plus loop-closing backward-jump), got %d", countOp(code, bytecode.Jmp))
	}
}
