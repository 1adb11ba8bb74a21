package bytecode

import (
	"encoding/binary"
	"fmt"
	"math"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// Container magics. Each format carries its own magic so a single
// byte value (see ExecBlock/Gt in opcodes.go) can mean different
// things depending on which container it was read from.
var (
	ProgramMagic = []byte{'P', 'B', 'O', '3'}
	NetBotsMagic = []byte{'N', 'B', 'O', '2'}
)

// ConstKind tags the wire representation of one constant pool entry.
// The tag precedes the length-prefixed payload so the assembler never
// has to guess a constant's shape from its bytes alone -- this
// resolves the ambiguity between a flat length-prefixed encoding and
// a tagged one that a disassembler would otherwise have to infer.
type ConstKind byte

const (
	ConstNumber ConstKind = iota
	ConstString
	ConstBool
	ConstNull
	ConstUndefined
	ConstBigInt
	ConstObject // CBOR-encoded object or array, canonical mode
)

// Constant is one entry of the constant pool.
type Constant struct {
	Kind   ConstKind
	Num    float64
	Str    string
	Bool   bool
	BigInt int64
	Object interface{} // map[string]interface{} or []interface{}, CBOR-encoded
}

var (
	cborEncMode cbor.EncMode
	cborDecMode cbor.DecMode
)

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("bytecode: building canonical CBOR encoder: %v", err))
	}
	cborEncMode = em
	// Decode maps as map[string]interface{}, the shape Constant.Object holds.
	dm, err := cbor.DecOptions{DefaultMapType: reflect.TypeOf(map[string]interface{}(nil))}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("bytecode: building CBOR decoder: %v", err))
	}
	cborDecMode = dm
}

// ConstPool is the ordered, deduplicated constant pool shared by a
// compiled unit. Scalar constants dedup by value; object/array
// constants are never deduplicated since their Go representation
// (maps, slices) isn't comparable.
type ConstPool struct {
	Values []Constant
	index  map[string]uint32
}

// NewConstPool creates an empty constant pool.
func NewConstPool() *ConstPool {
	return &ConstPool{index: make(map[string]uint32)}
}

func (p *ConstPool) intern(key string, c Constant) uint32 {
	if idx, ok := p.index[key]; ok {
		return idx
	}
	idx := uint32(len(p.Values))
	p.Values = append(p.Values, c)
	p.index[key] = idx
	return idx
}

// AddNumber interns a double-precision number constant.
func (p *ConstPool) AddNumber(v float64) uint32 {
	return p.intern(fmt.Sprintf("n:%x", v), Constant{Kind: ConstNumber, Num: v})
}

// AddString interns a UTF-8 string constant.
func (p *ConstPool) AddString(v string) uint32 {
	return p.intern("s:"+v, Constant{Kind: ConstString, Str: v})
}

// AddBool interns a boolean constant.
func (p *ConstPool) AddBool(v bool) uint32 {
	return p.intern(fmt.Sprintf("b:%v", v), Constant{Kind: ConstBool, Bool: v})
}

// AddNull interns the singleton null constant.
func (p *ConstPool) AddNull() uint32 {
	return p.intern("null", Constant{Kind: ConstNull})
}

// AddUndefined interns the singleton undefined constant.
func (p *ConstPool) AddUndefined() uint32 {
	return p.intern("undefined", Constant{Kind: ConstUndefined})
}

// AddBigInt interns a signed 64-bit integer constant.
func (p *ConstPool) AddBigInt(v int64) uint32 {
	return p.intern(fmt.Sprintf("i:%d", v), Constant{Kind: ConstBigInt, BigInt: v})
}

// AddObject appends an object/array constant without deduplication.
func (p *ConstPool) AddObject(v interface{}) uint32 {
	idx := uint32(len(p.Values))
	p.Values = append(p.Values, Constant{Kind: ConstObject, Object: v})
	return idx
}

// Get returns the constant at the given index.
func (p *ConstPool) Get(idx uint32) Constant { return p.Values[idx] }

// Count returns the number of pooled constants.
func (p *ConstPool) Count() int { return len(p.Values) }

// encode serializes one constant as kind_byte || length(u32 LE) || payload.
func (c Constant) encode() ([]byte, error) {
	var payload []byte
	switch c.Kind {
	case ConstNumber:
		payload = make([]byte, 8)
		binary.LittleEndian.PutUint64(payload, math.Float64bits(c.Num))
	case ConstString:
		payload = []byte(c.Str)
	case ConstBool:
		if c.Bool {
			payload = []byte{1}
		} else {
			payload = []byte{0}
		}
	case ConstNull, ConstUndefined:
		payload = []byte{0}
	case ConstBigInt:
		payload = make([]byte, 8)
		binary.LittleEndian.PutUint64(payload, uint64(c.BigInt))
	case ConstObject:
		enc, err := cborEncMode.Marshal(c.Object)
		if err != nil {
			return nil, fmt.Errorf("encoding object constant: %w", err)
		}
		payload = enc
	default:
		return nil, fmt.Errorf("unknown constant kind %d", c.Kind)
	}
	buf := make([]byte, 0, 5+len(payload))
	buf = append(buf, byte(c.Kind))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(payload)))
	buf = append(buf, payload...)
	return buf, nil
}

func decodeConstant(data []byte) (Constant, int, error) {
	if len(data) < 5 {
		return Constant{}, 0, fmt.Errorf("truncated constant header")
	}
	kind := ConstKind(data[0])
	length := binary.LittleEndian.Uint32(data[1:5])
	if len(data) < 5+int(length) {
		return Constant{}, 0, fmt.Errorf("truncated constant payload: need %d bytes", length)
	}
	payload := data[5 : 5+int(length)]
	consumed := 5 + int(length)

	switch kind {
	case ConstNumber:
		if len(payload) != 8 {
			return Constant{}, 0, fmt.Errorf("number constant must be 8 bytes, got %d", len(payload))
		}
		return Constant{Kind: kind, Num: math.Float64frombits(binary.LittleEndian.Uint64(payload))}, consumed, nil
	case ConstString:
		return Constant{Kind: kind, Str: string(payload)}, consumed, nil
	case ConstBool:
		return Constant{Kind: kind, Bool: len(payload) > 0 && payload[0] != 0}, consumed, nil
	case ConstNull, ConstUndefined:
		return Constant{Kind: kind}, consumed, nil
	case ConstBigInt:
		if len(payload) != 8 {
			return Constant{}, 0, fmt.Errorf("bigint constant must be 8 bytes, got %d", len(payload))
		}
		return Constant{Kind: kind, BigInt: int64(binary.LittleEndian.Uint64(payload))}, consumed, nil
	case ConstObject:
		var v interface{}
		if err := cborDecMode.Unmarshal(payload, &v); err != nil {
			return Constant{}, 0, fmt.Errorf("decoding object constant: %w", err)
		}
		return Constant{Kind: kind, Object: v}, consumed, nil
	default:
		return Constant{}, 0, fmt.Errorf("unknown constant kind %d", kind)
	}
}

// ---------------------------------------------------------------------------
// Assembler: accumulates code bytes and patches jump displacements
// ---------------------------------------------------------------------------

// Assembler builds one code section plus its constant pool. The
// textual-language emitter and the NetBots layout algorithm both use
// it so jump-patching logic lives in exactly one place.
type Assembler struct {
	Code []byte
	Pool *ConstPool
}

// NewAssembler creates an empty assembler with its own constant pool.
func NewAssembler() *Assembler {
	return &Assembler{Pool: NewConstPool()}
}

// Offset returns the current length of the code section.
func (a *Assembler) Offset() int { return len(a.Code) }

// EmitOp appends a bare opcode with no operand.
func (a *Assembler) EmitOp(op Opcode) int {
	offset := len(a.Code)
	a.Code = append(a.Code, byte(op))
	return offset
}

// EmitOpU32 appends an opcode followed by a big-endian u32 operand
// (constant/var index, argument count).
func (a *Assembler) EmitOpU32(op Opcode, operand uint32) int {
	offset := len(a.Code)
	a.Code = append(a.Code, byte(op))
	a.Code = binary.BigEndian.AppendUint32(a.Code, operand)
	return offset
}

// EmitOpU32Pair appends an opcode followed by two big-endian u32
// operands, used by INVOKE_SUPER and CALL_HOST.
func (a *Assembler) EmitOpU32Pair(op Opcode, first, second uint32) int {
	offset := len(a.Code)
	a.Code = append(a.Code, byte(op))
	a.Code = binary.BigEndian.AppendUint32(a.Code, first)
	a.Code = binary.BigEndian.AppendUint32(a.Code, second)
	return offset
}

// EmitJump appends a jump-family opcode with a placeholder
// displacement and returns the offset of the two placeholder bytes
// for a later PatchJump/PatchJumpTo call.
func (a *Assembler) EmitJump(op Opcode) int {
	a.Code = append(a.Code, byte(op), 0xFF, 0xFF)
	return len(a.Code) - 2
}

// PatchJump patches a placeholder to branch to the current offset.
func (a *Assembler) PatchJump(placeholderOffset int) error {
	return a.PatchJumpTo(placeholderOffset, len(a.Code))
}

// PatchJumpTo patches a placeholder to branch to an arbitrary target
// offset, measuring the displacement from the byte after the operand.
func (a *Assembler) PatchJumpTo(placeholderOffset int, target int) error {
	from := placeholderOffset + 2
	delta := target - from
	if delta < -32768 || delta > 32767 {
		return fmt.Errorf("jump displacement %d at offset %d overflows signed 16 bits", delta, placeholderOffset)
	}
	binary.BigEndian.PutUint16(a.Code[placeholderOffset:], uint16(int16(delta)))
	return nil
}

// EmitLoop appends a backward JMP to loopStart.
func (a *Assembler) EmitLoop(loopStart int) error {
	placeholder := a.EmitJump(Jmp)
	return a.PatchJumpTo(placeholder, loopStart)
}

// ---------------------------------------------------------------------------
// Container: the on-disk PBO3/NBO2 binary format
// ---------------------------------------------------------------------------

// headerSize is magic(4) + entry_offset(4) + data_len(4) + code_len(4).
const headerSize = 16

// Assemble serializes the constant pool (data section) and code
// section into the fixed-header binary container format. entryOffset
// is always 0 for both dialects -- execution starts at the first byte
// of the code section.
func Assemble(magic []byte, a *Assembler) ([]byte, error) {
	var data []byte
	for i, c := range a.Pool.Values {
		enc, err := c.encode()
		if err != nil {
			return nil, fmt.Errorf("encoding constant %d: %w", i, err)
		}
		data = append(data, enc...)
	}

	buf := make([]byte, 0, headerSize+len(data)+len(a.Code))
	buf = append(buf, magic...)
	buf = binary.LittleEndian.AppendUint32(buf, 0) // entry offset
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(data)))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(a.Code)))
	buf = append(buf, data...)
	buf = append(buf, a.Code...)
	return buf, nil
}

// Container is a parsed binary container: its magic, the decoded
// constant pool, and the raw code section.
type Container struct {
	Magic []byte
	Pool  *ConstPool
	Code  []byte
}

// Disassemble parses a binary container produced by Assemble. It does
// not interpret the code section beyond exposing it as bytes; see
// disasm.go for a human-readable listing.
func Disassemble(data []byte) (*Container, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("container too short: need at least %d bytes, got %d", headerSize, len(data))
	}
	magic := append([]byte(nil), data[0:4]...)
	entryOffset := binary.LittleEndian.Uint32(data[4:8])
	if entryOffset != 0 {
		return nil, fmt.Errorf("unsupported entry offset %d: only 0 is defined", entryOffset)
	}
	dataLen := binary.LittleEndian.Uint32(data[8:12])
	codeLen := binary.LittleEndian.Uint32(data[12:16])

	pos := headerSize
	if pos+int(dataLen) > len(data) {
		return nil, fmt.Errorf("data section truncated: need %d bytes at offset %d", dataLen, pos)
	}
	dataSection := data[pos : pos+int(dataLen)]
	pos += int(dataLen)

	if pos+int(codeLen) > len(data) {
		return nil, fmt.Errorf("code section truncated: need %d bytes at offset %d", codeLen, pos)
	}
	code := data[pos : pos+int(codeLen)]

	pool := NewConstPool()
	dp := 0
	for dp < len(dataSection) {
		c, n, err := decodeConstant(dataSection[dp:])
		if err != nil {
			return nil, fmt.Errorf("decoding constant pool at offset %d: %w", dp, err)
		}
		pool.Values = append(pool.Values, c)
		dp += n
	}

	return &Container{Magic: magic, Pool: pool, Code: code}, nil
}
