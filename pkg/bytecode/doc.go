// Package bytecode defines the shared binary instruction set, constant
// pool, and container format emitted by both compiler front ends: the
// textual-language emitter in pkg/compiler and the NetBots graph
// layout in pkg/graph.
//
// # Architecture
//
//   - Opcode: a frozen byte-coded instruction set with operand
//     metadata (opcodes.go). The NetBots dialect only ever emits
//     EXEC_BLOCK, JMP, JZ, and HALT; Program bytecode uses the rest.
//
//   - ConstPool / Assembler: an append-only, deduplicated constant
//     pool plus jump-patching helpers (chunk.go). Assembler is the one
//     place both front ends call to emit operands and backpatch
//     forward jumps.
//
//   - Container / Assemble / Disassemble: the on-disk PBO3 (Program)
//     and NBO2 (NetBots) binary format: a fixed 16-byte little-endian
//     header followed by the data section (constant pool) and the
//     code section.
package bytecode
