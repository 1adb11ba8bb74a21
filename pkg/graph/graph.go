// Package graph implements the NetBots front end: decoding a JSON
// control-flow graph, validating its structural invariants, and
// laying it out as linear bytecode. It shares pkg/bytecode's
// Assembler with the textual emitter so jump-patching logic lives in
// exactly one place.
package graph

import (
	"encoding/json"

	"github.com/chazu/jsbc/pkg/diag"
)

// BlockType names the handful of block kinds the layout algorithm
// treats specially; any other string is a generic single-successor
// block.
const (
	TypeIf   = "if"
	TypeLoop = "loop"
)

// blockJSON mirrors one entry of the NetBots "blocks" array.
type blockJSON struct {
	ID     string          `json:"id"`
	Type   string          `json:"type"`
	Config json.RawMessage `json:"config"`
}

// connectionJSON mirrors one entry of the NetBots "connections" array.
type connectionJSON struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// graphJSON is the raw decoded shape of the NetBots input.
type graphJSON struct {
	Blocks      []blockJSON      `json:"blocks"`
	Connections []connectionJSON `json:"connections"`
}

// Block is one decoded CFG node.
type Block struct {
	ID     string
	Type   string
	Config map[string]interface{}
}

// Graph is a validated control-flow graph: blocks plus their directed
// edges, successors recorded in input insertion order per spec.md's
// deterministic-layout requirement.
type Graph struct {
	Blocks      map[string]*Block
	Order       []string // block IDs in declaration order
	Successors  map[string][]string
	Predecessors map[string]map[string]bool
	Entry       string
}

// Decode parses NetBots graph JSON into a Graph, without validating
// CFG invariants -- call Validate separately.
func Decode(data []byte) (*Graph, error) {
	var raw graphJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, diag.Graph("malformed graph JSON: %v", err)
	}

	g := &Graph{
		Blocks:       make(map[string]*Block),
		Successors:   make(map[string][]string),
		Predecessors: make(map[string]map[string]bool),
	}

	for _, b := range raw.Blocks {
		if b.ID == "" {
			return nil, diag.Graph("block missing id")
		}
		if b.Type == "" {
			return nil, diag.Graph("block %q missing type", b.ID)
		}
		if _, dup := g.Blocks[b.ID]; dup {
			return nil, diag.Graph("duplicate block id %q", b.ID)
		}
		var cfg map[string]interface{}
		if len(b.Config) > 0 {
			if err := json.Unmarshal(b.Config, &cfg); err != nil {
				return nil, diag.Graph("block %q: malformed config: %v", b.ID, err)
			}
		}
		g.Blocks[b.ID] = &Block{ID: b.ID, Type: b.Type, Config: cfg}
		g.Order = append(g.Order, b.ID)
		g.Predecessors[b.ID] = make(map[string]bool)
	}

	for _, c := range raw.Connections {
		if _, ok := g.Blocks[c.From]; !ok {
			return nil, diag.Graph("connection references unknown block %q", c.From)
		}
		if _, ok := g.Blocks[c.To]; !ok {
			return nil, diag.Graph("connection references unknown block %q", c.To)
		}
		if g.Predecessors[c.To][c.From] {
			return nil, diag.Graph("duplicate edge %s -> %s", c.From, c.To)
		}
		g.Predecessors[c.To][c.From] = true
		g.Successors[c.From] = append(g.Successors[c.From], c.To)
	}

	return g, nil
}

// configString reads a required string field out of a block's config.
func (b *Block) configString(key string) (string, bool) {
	if b.Config == nil {
		return "", false
	}
	v, ok := b.Config[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Validate checks the CFG invariants from spec.md section 3:
// every edge references a declared block (checked during Decode),
// no duplicate edges (checked during Decode), exactly one entry
// block, well-formed if/loop config, and at most one successor on
// every other block type.
func (g *Graph) Validate() error {
	var entries []string
	for _, id := range g.Order {
		if len(g.Predecessors[id]) == 0 {
			entries = append(entries, id)
		}
	}
	switch len(entries) {
	case 0:
		return diag.Graph("no entry block: every block has at least one predecessor")
	case 1:
		g.Entry = entries[0]
	default:
		return diag.Graph("multiple start blocks: %v", entries)
	}

	for _, id := range g.Order {
		b := g.Blocks[id]
		succ := g.Successors[id]
		switch b.Type {
		case TypeIf:
			trueTarget, okT := b.configString("trueTarget")
			falseTarget, okF := b.configString("falseTarget")
			if !okT || !okF {
				return diag.Graph("if block %q requires config.trueTarget and config.falseTarget", id)
			}
			if _, ok := g.Blocks[trueTarget]; !ok {
				return diag.Graph("if block %q: trueTarget %q is not a declared block", id, trueTarget)
			}
			if _, ok := g.Blocks[falseTarget]; !ok {
				return diag.Graph("if block %q: falseTarget %q is not a declared block", id, falseTarget)
			}
			if len(succ) != 2 {
				return diag.Graph("if block %q must have exactly two outgoing edges, has %d", id, len(succ))
			}
		case TypeLoop:
			bodyStart, okB := b.configString("bodyStart")
			exitTarget, okE := b.configString("exitTarget")
			if !okB || !okE {
				return diag.Graph("loop block %q requires config.bodyStart and config.exitTarget", id)
			}
			if _, ok := g.Blocks[bodyStart]; !ok {
				return diag.Graph("loop block %q: bodyStart %q is not a declared block", id, bodyStart)
			}
			if _, ok := g.Blocks[exitTarget]; !ok {
				return diag.Graph("loop block %q: exitTarget %q is not a declared block", id, exitTarget)
			}
		default:
			if len(succ) > 1 {
				return diag.Graph("block %q (type %q) has %d outgoing edges, at most one allowed", id, b.Type, len(succ))
			}
		}
	}

	if err := g.checkReachability(); err != nil {
		return err
	}
	return nil
}

// checkReachability walks successors from the entry block; any block
// never reached this way can never be given a code offset by the
// layout algorithm in layout.go and so would leave its EXEC_BLOCK
// obligation unmet.
func (g *Graph) checkReachability() error {
	seen := map[string]bool{g.Entry: true}
	queue := []string{g.Entry}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		b := g.Blocks[id]
		var next []string
		switch b.Type {
		case TypeIf:
			t, _ := b.configString("trueTarget")
			f, _ := b.configString("falseTarget")
			next = []string{t, f}
		case TypeLoop:
			bs, _ := b.configString("bodyStart")
			ex, _ := b.configString("exitTarget")
			next = []string{bs, ex}
		default:
			next = g.Successors[id]
		}
		for _, n := range next {
			if !seen[n] {
				seen[n] = true
				queue = append(queue, n)
			}
		}
	}
	for _, id := range g.Order {
		if !seen[id] {
			return diag.Graph("unreachable block %q", id)
		}
	}
	return nil
}
