package bytecode

import (
	"strings"
	"testing"
)

func TestDisassembleListsConstantsAndCode(t *testing.T) {
	a := NewAssembler()
	idx := a.Pool.AddNumber(7)
	a.EmitOpU32(PushConst, idx)
	a.EmitOp(Return)

	encoded, err := Assemble(ProgramMagic, a)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	c, err := Disassemble(encoded)
	if err != nil {
		t.Fatalf("Disassemble failed: %v", err)
	}

	out := c.Disassemble()
	if !strings.Contains(out, "PBO3") {
		t.Errorf("expected listing to mention the magic, got %q", out)
	}
	if !strings.Contains(out, "number 7") {
		t.Errorf("expected listing to describe the number constant, got %q", out)
	}
	if !strings.Contains(out, "PUSH_CONST") {
		t.Errorf("expected listing to contain PUSH_CONST, got %q", out)
	}
	if !strings.Contains(out, "RETURN") {
		t.Errorf("expected listing to contain RETURN, got %q", out)
	}
}

func TestDisassembleJumpShowsTarget(t *testing.T) {
	a := NewAssembler()
	placeholder := a.EmitJump(Jz)
	a.EmitOp(Pop)
	a.EmitOp(Halt)
	target := a.Offset()
	if err := a.PatchJumpTo(placeholder, target); err != nil {
		t.Fatalf("PatchJumpTo failed: %v", err)
	}

	line, instrLen := disassembleInstruction(a.Code, 0, false)
	if instrLen != 3 {
		t.Fatalf("expected JZ to be 3 bytes, got %d", instrLen)
	}
	if !strings.Contains(line, "JZ") || !strings.Contains(line, "->") {
		t.Errorf("expected jump disassembly to name JZ and its target, got %q", line)
	}
}

func TestDisassembleNetBotsDialectResolvesExecBlock(t *testing.T) {
	a := NewAssembler()
	idx := a.Pool.AddString("block-1")
	a.EmitOpU32(ExecBlock, idx)
	a.EmitOp(Halt)

	encoded, err := Assemble(NetBotsMagic, a)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	c, err := Disassemble(encoded)
	if err != nil {
		t.Fatalf("Disassemble failed: %v", err)
	}

	out := c.Disassemble()
	if !strings.Contains(out, "NBO2") {
		t.Errorf("expected listing to mention the NetBots magic, got %q", out)
	}
	if !strings.Contains(out, "EXEC_BLOCK") {
		t.Errorf("expected NetBots listing to show EXEC_BLOCK instead of GT, got %q", out)
	}
	if strings.Contains(out, "GT ") {
		t.Errorf("did not expect the NetBots listing to resolve 0x14 as GT, got %q", out)
	}
}

func TestDisassembleTruncatedInstruction(t *testing.T) {
	code := []byte{byte(PushConst), 0x00, 0x01} // missing 2 of 4 operand bytes
	line, instrLen := disassembleInstruction(code, 0, false)
	if instrLen != 0 {
		t.Errorf("expected truncated instruction to report length 0, got %d", instrLen)
	}
	if !strings.Contains(line, "truncated") {
		t.Errorf("expected truncated instruction message, got %q", line)
	}
}

func TestDescribeConstantAllKinds(t *testing.T) {
	tests := []struct {
		c    Constant
		want string
	}{
		{Constant{Kind: ConstNumber, Num: 1.5}, "number 1.5"},
		{Constant{Kind: ConstString, Str: "hi"}, `string "hi"`},
		{Constant{Kind: ConstBool, Bool: true}, "bool true"},
		{Constant{Kind: ConstNull}, "null"},
		{Constant{Kind: ConstUndefined}, "undefined"},
		{Constant{Kind: ConstBigInt, BigInt: 9}, "bigint 9"},
	}
	for _, tt := range tests {
		if got := describeConstant(tt.c); got != tt.want {
			t.Errorf("describeConstant(%+v) = %q, want %q", tt.c, got, tt.want)
		}
	}
}

func TestDescribeConstantTruncatesLongStrings(t *testing.T) {
	long := strings.Repeat("a", 100)
	got := describeConstant(Constant{Kind: ConstString, Str: long})
	if !strings.Contains(got, "...") {
		t.Errorf("expected long string constant description to be truncated, got %q", got)
	}
}
