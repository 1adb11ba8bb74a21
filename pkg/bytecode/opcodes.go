package bytecode

import "fmt"

// Opcode represents a single bytecode instruction. The textual front
// end and the NetBots graph front end both lower into this one
// instruction set; NetBots programs only ever use EXEC_BLOCK, JMP,
// JZ, and HALT.
type Opcode byte

const (
	// Stack manipulation
	PushConst Opcode = 0x01 // PUSH_CONST <const_idx:u32>
	Pop       Opcode = 0x02
	Dup       Opcode = 0x03
	Swap      Opcode = 0x04

	// Variables
	LoadVar     Opcode = 0x05 // <var_idx:u32>
	StoreVar    Opcode = 0x06 // <var_idx:u32>
	LoadGlobal  Opcode = 0x07 // <const_idx:u32> (name)
	StoreGlobal Opcode = 0x08 // <const_idx:u32> (name)

	// Arithmetic, comparison, bitwise, unary
	Add      Opcode = 0x09
	Sub      Opcode = 0x0A
	Mul      Opcode = 0x0B
	Div      Opcode = 0x0C
	Mod      Opcode = 0x0D
	Eq       Opcode = 0x0E
	Neq      Opcode = 0x0F
	StrictEq Opcode = 0x10
	StrictNeq Opcode = 0x11
	Lt       Opcode = 0x12
	Lte      Opcode = 0x13
	Gt       Opcode = 0x14
	Gte      Opcode = 0x15
	BitAnd   Opcode = 0x16
	BitOr    Opcode = 0x17
	BitXor   Opcode = 0x18
	Shl      Opcode = 0x19
	Shr      Opcode = 0x1A
	Ushr     Opcode = 0x1B
	Not      Opcode = 0x1C
	Neg      Opcode = 0x1D
	BitNot   Opcode = 0x1E
	Pos      Opcode = 0x1F

	// Control flow
	Jmp       Opcode = 0x20 // <displacement:i16>
	Jz        Opcode = 0x21 // <displacement:i16>
	Jnz       Opcode = 0x22 // <displacement:i16>
	Call      Opcode = 0x23 // <argc:u32>
	Return    Opcode = 0x24
	EnterFunc Opcode = 0x25 // <func_const_idx:u32>
	ExitFunc  Opcode = 0x26

	// Objects and arrays
	NewArray         Opcode = 0x27 // <count:u32>
	NewObject        Opcode = 0x28
	GetProp          Opcode = 0x29 // <name_const_idx:u32>
	SetProp          Opcode = 0x2A // <name_const_idx:u32>
	GetPropComputed  Opcode = 0x2B
	SetPropComputed  Opcode = 0x2C
	DeleteProp       Opcode = 0x2D
	HasProp          Opcode = 0x2E

	// Types and classes
	Typeof      Opcode = 0x2F
	NewClass    Opcode = 0x30 // <name_const_idx:u32>
	DefineMethod Opcode = 0x31 // <meta_const_idx:u32> (object: name, offset, static)
	DefineGetter Opcode = 0x32 // <meta_const_idx:u32> (object: name, offset, static)
	DefineSetter Opcode = 0x33 // <meta_const_idx:u32> (object: name, offset, static)
	InvokeSuper Opcode = 0x34 // <name_const_idx:u32> <argc:u32>
	SuperCtor   Opcode = 0x35 // <argc:u32>
	Instanceof  Opcode = 0x36

	// Misc operators
	InOp     Opcode = 0x37
	Pow      Opcode = 0x38
	Coalesce Opcode = 0x39

	// Modules
	Import        Opcode = 0x40 // <source_const_idx:u32>
	Export        Opcode = 0x41 // <name_const_idx:u32>
	ImportDefault Opcode = 0x42 // <source_const_idx:u32>
	ExportDefault Opcode = 0x43
	ImportDynamic Opcode = 0x44

	// Async / generators
	Await         Opcode = 0x50
	AsyncFunc     Opcode = 0x51 // <func_const_idx:u32>
	Yield         Opcode = 0x52
	Generator     Opcode = 0x53 // <func_const_idx:u32>
	Next          Opcode = 0x54
	ThrowGen      Opcode = 0x55
	ReturnGen     Opcode = 0x56
	YieldDelegate Opcode = 0x57

	// Iterators
	GetIterator Opcode = 0x60
	IterNext    Opcode = 0x61
	IterDone    Opcode = 0x62

	// Exceptions
	Throw    Opcode = 0x70
	Catch    Opcode = 0x71 // <displacement:i16>
	Finally  Opcode = 0x72 // <displacement:i16>
	EndCatch Opcode = 0x73

	// Host / DOM FFI
	GetElement         Opcode = 0x80
	SetElement         Opcode = 0x81
	AddEventListener   Opcode = 0x82
	RemoveEventListener Opcode = 0x83
	DomCreate          Opcode = 0x84 // <tag_const_idx:u32>
	DomAppend          Opcode = 0x85
	DomRemove          Opcode = 0x86
	DomSetAttr         Opcode = 0x87 // <name_const_idx:u32>
	DomQuery           Opcode = 0x88

	CallHost Opcode = 0x90 // <name_const_idx:u32> <argc:u32>
	GetHost  Opcode = 0x91 // <name_const_idx:u32>
	SetHost  Opcode = 0x92 // <name_const_idx:u32>

	// NetBots front end: the graph layout algorithm only ever emits
	// this opcode plus the JMP/JZ/HALT control-flow instructions
	// above. It shares a byte value with GT because each container's
	// magic fixes which dialect its bytecode belongs to; no assembled
	// program mixes both interpretations of 0x14.
	ExecBlock Opcode = 0x14 // <block_const_idx:u32>

	Debugger Opcode = 0xF0
	Halt     Opcode = 0xFF
)

// OpcodeInfo gives the operand-length metadata needed to skip or
// disassemble an instruction without a full interpreter.
type OpcodeInfo struct {
	Name       string
	OperandLen int // bytes following the opcode; jump displacements are 2, indices are 4
	IsJumpDisp bool // operand is a signed 16-bit displacement rather than a u32 index
}

var opcodeInfoTable = map[Opcode]OpcodeInfo{
	PushConst: {"PUSH_CONST", 4, false},
	Pop:       {"POP", 0, false},
	Dup:       {"DUP", 0, false},
	Swap:      {"SWAP", 0, false},

	LoadVar:     {"LOAD_VAR", 4, false},
	StoreVar:    {"STORE_VAR", 4, false},
	LoadGlobal:  {"LOAD_GLOBAL", 4, false},
	StoreGlobal: {"STORE_GLOBAL", 4, false},

	Add: {"ADD", 0, false}, Sub: {"SUB", 0, false}, Mul: {"MUL", 0, false},
	Div: {"DIV", 0, false}, Mod: {"MOD", 0, false},
	Eq: {"EQ", 0, false}, Neq: {"NEQ", 0, false},
	StrictEq: {"STRICT_EQ", 0, false}, StrictNeq: {"STRICT_NEQ", 0, false},
	Lt: {"LT", 0, false}, Lte: {"LTE", 0, false}, Gt: {"GT", 0, false}, Gte: {"GTE", 0, false},
	BitAnd: {"BIT_AND", 0, false}, BitOr: {"BIT_OR", 0, false}, BitXor: {"BIT_XOR", 0, false},
	Shl: {"SHL", 0, false}, Shr: {"SHR", 0, false}, Ushr: {"USHR", 0, false},
	Not: {"NOT", 0, false}, Neg: {"NEG", 0, false}, BitNot: {"BIT_NOT", 0, false}, Pos: {"POS", 0, false},

	Jmp: {"JMP", 2, true}, Jz: {"JZ", 2, true}, Jnz: {"JNZ", 2, true},
	Call: {"CALL", 4, false}, Return: {"RETURN", 0, false},
	EnterFunc: {"ENTER_FUNC", 4, false}, ExitFunc: {"EXIT_FUNC", 0, false},

	NewArray: {"NEW_ARRAY", 4, false}, NewObject: {"NEW_OBJECT", 0, false},
	GetProp: {"GET_PROP", 4, false}, SetProp: {"SET_PROP", 4, false},
	GetPropComputed: {"GET_PROP_COMPUTED", 0, false}, SetPropComputed: {"SET_PROP_COMPUTED", 0, false},
	DeleteProp: {"DELETE_PROP", 0, false}, HasProp: {"HAS_PROP", 0, false},

	Typeof: {"TYPEOF", 0, false},
	NewClass: {"NEW_CLASS", 4, false}, DefineMethod: {"DEFINE_METHOD", 4, false},
	DefineGetter: {"DEFINE_GETTER", 4, false}, DefineSetter: {"DEFINE_SETTER", 4, false},
	InvokeSuper: {"INVOKE_SUPER", 8, false}, SuperCtor: {"SUPER_CTOR", 4, false},
	Instanceof: {"INSTANCEOF", 0, false},

	InOp: {"IN", 0, false}, Pow: {"POW", 0, false}, Coalesce: {"COALESCE", 0, false},

	Import: {"IMPORT", 4, false}, Export: {"EXPORT", 4, false},
	ImportDefault: {"IMPORT_DEFAULT", 4, false}, ExportDefault: {"EXPORT_DEFAULT", 0, false},
	ImportDynamic: {"IMPORT_DYNAMIC", 0, false},

	Await: {"AWAIT", 0, false}, AsyncFunc: {"ASYNC_FUNC", 4, false},
	Yield: {"YIELD", 0, false}, Generator: {"GENERATOR", 4, false},
	Next: {"NEXT", 0, false}, ThrowGen: {"THROW_GEN", 0, false},
	ReturnGen: {"RETURN_GEN", 0, false}, YieldDelegate: {"YIELD_DELEGATE", 0, false},

	GetIterator: {"GET_ITERATOR", 0, false}, IterNext: {"ITER_NEXT", 0, false}, IterDone: {"ITER_DONE", 0, false},

	Throw: {"THROW", 0, false}, Catch: {"CATCH", 2, true}, Finally: {"FINALLY", 2, true}, EndCatch: {"END_CATCH", 0, false},

	GetElement: {"GET_ELEMENT", 0, false}, SetElement: {"SET_ELEMENT", 0, false},
	AddEventListener: {"ADD_EVENT_LISTENER", 0, false}, RemoveEventListener: {"REMOVE_EVENT_LISTENER", 0, false},
	DomCreate: {"DOM_CREATE", 4, false}, DomAppend: {"DOM_APPEND", 0, false},
	DomRemove: {"DOM_REMOVE", 0, false}, DomSetAttr: {"DOM_SET_ATTR", 4, false}, DomQuery: {"DOM_QUERY", 0, false},

	CallHost: {"CALL_HOST", 8, false}, GetHost: {"GET_HOST", 4, false}, SetHost: {"SET_HOST", 4, false},

	Debugger: {"DEBUGGER", 0, false}, Halt: {"HALT", 0, false},
}

// netbotsOpcodeInfoTable is consulted instead of opcodeInfoTable when
// disassembling an NBO2 container, resolving the 0x14 ambiguity to
// EXEC_BLOCK rather than GT.
var netbotsOpcodeInfoTable = map[Opcode]OpcodeInfo{
	ExecBlock: {"EXEC_BLOCK", 4, false},
	Jmp:       {"JMP", 2, true},
	Jz:        {"JZ", 2, true},
	Halt:      {"HALT", 0, false},
}

// GetOpcodeInfo returns metadata for a Program-dialect opcode.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(0x%02X)", byte(op)), OperandLen: 0}
}

// GetNetBotsOpcodeInfo returns metadata for a NetBots-dialect opcode.
func GetNetBotsOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := netbotsOpcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(0x%02X)", byte(op)), OperandLen: 0}
}

func (op Opcode) String() string { return GetOpcodeInfo(op).Name }

// OperandLen returns the number of operand bytes following this opcode.
func (op Opcode) OperandLen() int { return GetOpcodeInfo(op).OperandLen }

// InstructionLen returns the total encoded length of an instruction.
func (op Opcode) InstructionLen() int { return 1 + op.OperandLen() }

// IsJump reports whether this opcode carries a signed 16-bit branch displacement.
func (op Opcode) IsJump() bool { return GetOpcodeInfo(op).IsJumpDisp }

// AllOpcodes returns every opcode with metadata in the Program dialect.
func AllOpcodes() []Opcode {
	ops := make([]Opcode, 0, len(opcodeInfoTable))
	for op := range opcodeInfoTable {
		ops = append(ops, op)
	}
	return ops
}

// OpcodeCount returns the number of distinct Program-dialect opcodes.
func OpcodeCount() int { return len(opcodeInfoTable) }
