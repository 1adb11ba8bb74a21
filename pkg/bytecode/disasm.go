package bytecode

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Disassemble returns a human-readable listing of the container: its
// magic, constant pool, and a per-instruction code listing. isNetBots
// selects the NetBots opcode table so opcode byte 0x14 disassembles as
// EXEC_BLOCK rather than GT.
func (c *Container) Disassemble() string {
	isNetBots := string(c.Magic) == string(NetBotsMagic)

	var sb strings.Builder
	fmt.Fprintf(&sb, "; magic %q\n", c.Magic)

	if c.Pool.Count() > 0 {
		sb.WriteString("; constants:\n")
		for i, v := range c.Pool.Values {
			fmt.Fprintf(&sb, ";   [%4d] %s\n", i, describeConstant(v))
		}
	}

	sb.WriteString("; code:\n")
	offset := 0
	for offset < len(c.Code) {
		line, instrLen := disassembleInstruction(c.Code, offset, isNetBots)
		fmt.Fprintf(&sb, "%06X  %s\n", offset, line)
		if instrLen <= 0 {
			break
		}
		offset += instrLen
	}
	return sb.String()
}

func describeConstant(v Constant) string {
	switch v.Kind {
	case ConstNumber:
		return fmt.Sprintf("number %v", v.Num)
	case ConstString:
		s := v.Str
		if len(s) > 40 {
			s = s[:37] + "..."
		}
		return fmt.Sprintf("string %q", s)
	case ConstBool:
		return fmt.Sprintf("bool %v", v.Bool)
	case ConstNull:
		return "null"
	case ConstUndefined:
		return "undefined"
	case ConstBigInt:
		return fmt.Sprintf("bigint %d", v.BigInt)
	case ConstObject:
		return fmt.Sprintf("object %v", v.Object)
	default:
		return "unknown"
	}
}

// disassembleInstruction formats one instruction at offset and
// returns its encoded length. A length of 0 means the code section
// ended mid-instruction.
func disassembleInstruction(code []byte, offset int, isNetBots bool) (string, int) {
	if offset >= len(code) {
		return "<end>", 0
	}
	op := Opcode(code[offset])
	var info OpcodeInfo
	if isNetBots {
		info = GetNetBotsOpcodeInfo(op)
	} else {
		info = GetOpcodeInfo(op)
	}
	instrLen := 1 + info.OperandLen
	if offset+instrLen > len(code) {
		return fmt.Sprintf("%s <truncated>", info.Name), 0
	}

	switch {
	case info.OperandLen == 0:
		return info.Name, instrLen
	case info.IsJumpDisp:
		delta := int16(binary.BigEndian.Uint16(code[offset+1:]))
		target := offset + 3 + int(delta)
		return fmt.Sprintf("%s %+d (-> %06X)", info.Name, delta, target), instrLen
	case info.OperandLen == 4:
		idx := binary.BigEndian.Uint32(code[offset+1:])
		return fmt.Sprintf("%s %d", info.Name, idx), instrLen
	case info.OperandLen == 8:
		a := binary.BigEndian.Uint32(code[offset+1:])
		b := binary.BigEndian.Uint32(code[offset+5:])
		return fmt.Sprintf("%s %d %d", info.Name, a, b), instrLen
	default:
		return info.Name, instrLen
	}
}
