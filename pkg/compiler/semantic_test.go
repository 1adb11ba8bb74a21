package compiler

import (
	"testing"

	"github.com/chazu/jsbc/pkg/diag"
)

func analyzeSrc(t *testing.T, src string) error {
	t.Helper()
	prog, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse(%q): %v", src, err)
	}
	return Analyze(prog)
}

func TestSemanticUndefinedIdentifier(t *testing.T) {
	if err := analyzeSrc(t, "x;"); err == nil {
		t.Fatal("expected an error referencing an undeclared identifier")
	}
}

func TestSemanticKnownGlobalsResolve(t *testing.T) {
	if err := analyzeSrc(t, "console.log(Math.max(1, 2));"); err != nil {
		t.Fatalf("expected known globals to resolve cleanly, got %v", err)
	}
}

func TestSemanticDuplicateDeclarationSameScope(t *testing.T) {
	if err := analyzeSrc(t, "let a; let a;"); err == nil {
		t.Fatal("expected a duplicate-declaration error")
	}
}

func TestSemanticShadowingInNestedBlockIsFine(t *testing.T) {
	err := analyzeSrc(t, "let a; { let a; }")
	if err != nil {
		t.Fatalf("expected shadowing in a nested block to be legal, got %v", err)
	}
}

func TestSemanticVarHoistsToFunctionScope(t *testing.T) {
	src := "function f() { if (true) { var a = 1; } return a; }"
	if err := analyzeSrc(t, src); err != nil {
		t.Fatalf("expected var to hoist past the if-block, got %v", err)
	}
}

func TestSemanticLetDoesNotHoistPastBlock(t *testing.T) {
	src := "function f() { if (true) { let a = 1; } return a; }"
	if err := analyzeSrc(t, src); err == nil {
		t.Fatal("expected let to be block-scoped, not visible after the if-block")
	}
}

func TestSemanticDuplicateVarAcrossBlocksIsFine(t *testing.T) {
	// var re-declarations in nested blocks collapse to the same function
	// scope binding; redeclaring the exact same name via var is legal.
	src := "function f() { var a = 1; if (true) { var a = 2; } }"
	if err := analyzeSrc(t, src); err != nil {
		t.Fatalf("expected repeated var declarations to be legal, got %v", err)
	}
}

func TestSemanticFunctionParamsDeclared(t *testing.T) {
	if err := analyzeSrc(t, "function add(a, b) { return a + b; }"); err != nil {
		t.Fatalf("expected params to resolve inside the function body, got %v", err)
	}
}

func TestSemanticDuplicateParamNames(t *testing.T) {
	if err := analyzeSrc(t, "function f(a, a) { return a; }"); err == nil {
		t.Fatal("expected duplicate parameter names to be rejected")
	}
}

func TestSemanticMutualRecursionResolvesViaHoisting(t *testing.T) {
	src := `
		function isEven(n) { if (n == 0) return true; return isOdd(n - 1); }
		function isOdd(n) { if (n == 0) return false; return isEven(n - 1); }
	`
	if err := analyzeSrc(t, src); err != nil {
		t.Fatalf("expected forward-referenced function declarations to resolve, got %v", err)
	}
}

func TestSemanticCatchParamScopedToHandler(t *testing.T) {
	src := "let a; let b; try { a(); } catch (e) { b(e); } e;"
	if err := analyzeSrc(t, src); err == nil {
		t.Fatal("expected the catch binding to be invisible outside the handler")
	}
}

func TestSemanticForHeaderBindingVisibleInBody(t *testing.T) {
	src := "for (let i = 0; i < 10; i = i + 1) { let j = i; }"
	if err := analyzeSrc(t, src); err != nil {
		t.Fatalf("expected the for-header binding to resolve in the body, got %v", err)
	}
}

func TestSemanticForOfBindingVisibleInBody(t *testing.T) {
	src := "let arr; for (let v of arr) { v; }"
	if err := analyzeSrc(t, src); err != nil {
		t.Fatalf("expected the for-of binding to resolve in the body, got %v", err)
	}
}

func TestSemanticSwitchCaseScopesAreIndependent(t *testing.T) {
	src := "let x; switch (x) { case 1: let a = 1; break; case 2: let a = 2; break; }"
	if err := analyzeSrc(t, src); err != nil {
		t.Fatalf("expected separate switch cases to have independent scopes, got %v", err)
	}
}

func TestSemanticClassNameVisibleInOwnMethods(t *testing.T) {
	src := "class Counter { static make() { return new Counter(); } }"
	if err := analyzeSrc(t, src); err != nil {
		t.Fatalf("expected a class to resolve its own name within its methods, got %v", err)
	}
}

func TestSemanticObjectPatternDefaultsAnalyzed(t *testing.T) {
	src := "let obj; let { a = fallback } = obj;"
	if err := analyzeSrc(t, src); err == nil {
		t.Fatal("expected the undeclared `fallback` default to be reported")
	}
}

func TestSemanticBatchesMultipleErrors(t *testing.T) {
	prog, err := Parse("a; b; let c; let c;")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	err = Analyze(prog)
	if err == nil {
		t.Fatal("expected errors")
	}
	se, ok := err.(*diag.SemanticErrors)
	if !ok {
		t.Fatalf("expected *diag.SemanticErrors, got %T", err)
	}
	if len(se.Errors) < 3 {
		t.Fatalf("expected at least 3 batched errors (a, b, duplicate c), got %d", len(se.Errors))
	}
}
