package graph

import (
	"github.com/chazu/jsbc/pkg/bytecode"
	"github.com/chazu/jsbc/pkg/diag"
)

// deque is a minimal double-ended queue of block IDs for the worklist
// layout algorithm: true branches, loop bodies, and fall-through
// successors are pushed to the front so they're placed immediately
// after the block that reaches them; false/exit branches are pushed
// to the back. A successor that is already placed is reached by an
// explicit JMP instead of being pushed.
type deque struct{ items []string }

func (q *deque) pushFront(id string) { q.items = append([]string{id}, q.items...) }
func (q *deque) pushBack(id string)  { q.items = append(q.items, id) }
func (q *deque) empty() bool         { return len(q.items) == 0 }
func (q *deque) popFront() string {
	id := q.items[0]
	q.items = q.items[1:]
	return id
}

// forwardPatch records a placeholder jump operand waiting on a block
// that hadn't been placed yet when the jump was emitted.
type forwardPatch struct {
	offset int
	target string
}

// Layout runs the worklist placement algorithm from spec.md section
// 4.5 and returns the assembled EXEC_BLOCK/JMP/JZ/HALT code plus the
// constant pool holding each block's {type, config} descriptor.
func Layout(g *Graph) (*bytecode.Assembler, error) {
	asm := bytecode.NewAssembler()
	placed := make(map[string]int) // block id -> EXEC_BLOCK offset
	var patches []forwardPatch

	pending := &deque{}
	pending.pushBack(g.Entry)

	for !pending.empty() {
		id := pending.popFront()
		if _, ok := placed[id]; ok {
			continue
		}
		b := g.Blocks[id]
		placed[id] = asm.Offset()
		constIdx := asm.Pool.AddObject(map[string]interface{}{
			"type":   b.Type,
			"config": b.Config,
		})
		asm.EmitOpU32(bytecode.ExecBlock, constIdx)

		switch b.Type {
		case TypeIf:
			trueTarget, _ := b.configString("trueTarget")
			falseTarget, _ := b.configString("falseTarget")
			jz := asm.EmitJump(bytecode.Jz)
			patches = append(patches, forwardPatch{jz, falseTarget})
			pending.pushFront(trueTarget)
			pending.pushBack(falseTarget)

		case TypeLoop:
			bodyStart, _ := b.configString("bodyStart")
			exitTarget, _ := b.configString("exitTarget")
			jz := asm.EmitJump(bytecode.Jz)
			patches = append(patches, forwardPatch{jz, exitTarget})
			pending.pushFront(bodyStart)
			pending.pushBack(exitTarget)

		default:
			succ := g.Successors[id]
			if len(succ) == 0 {
				asm.EmitOp(bytecode.Halt)
				continue
			}
			target := succ[0]
			if off, ok := placed[target]; ok {
				jmp := asm.EmitJump(bytecode.Jmp)
				if err := asm.PatchJumpTo(jmp, off); err != nil {
					return nil, diag.Graph("%v", err)
				}
			} else {
				pending.pushFront(target)
			}
		}
	}

	for _, p := range patches {
		off, ok := placed[p.target]
		if !ok {
			return nil, diag.Graph("unresolved jump target %q", p.target)
		}
		if err := asm.PatchJumpTo(p.offset, off); err != nil {
			return nil, diag.Graph("%v", err)
		}
	}

	for _, id := range g.Order {
		if _, ok := placed[id]; !ok {
			return nil, diag.Graph("block %q was never placed", id)
		}
	}

	return asm, nil
}
