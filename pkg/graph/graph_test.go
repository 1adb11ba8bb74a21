package graph

import "testing"

func mustDecode(t *testing.T, src string) *Graph {
	t.Helper()
	g, err := Decode([]byte(src))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return g
}

func TestDecodeSimpleChain(t *testing.T) {
	g := mustDecode(t, `{
		"blocks": [{"id":"A","type":"start"},{"id":"B","type":"end"}],
		"connections": [{"from":"A","to":"B"}]
	}`)
	if len(g.Blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(g.Blocks))
	}
	if g.Successors["A"][0] != "B" {
		t.Fatalf("expected A -> B, got %v", g.Successors["A"])
	}
}

func TestDecodeMissingID(t *testing.T) {
	_, err := Decode([]byte(`{"blocks":[{"type":"start"}]}`))
	if err == nil {
		t.Fatal("expected error for missing id")
	}
}

func TestDecodeUnknownEndpoint(t *testing.T) {
	_, err := Decode([]byte(`{
		"blocks": [{"id":"A","type":"start"}],
		"connections": [{"from":"A","to":"Z"}]
	}`))
	if err == nil {
		t.Fatal("expected error for unknown connection endpoint")
	}
}

func TestDecodeDuplicateEdge(t *testing.T) {
	_, err := Decode([]byte(`{
		"blocks": [{"id":"A","type":"start"},{"id":"B","type":"end"}],
		"connections": [{"from":"A","to":"B"},{"from":"A","to":"B"}]
	}`))
	if err == nil {
		t.Fatal("expected error for duplicate edge")
	}
}

func TestValidateSingleEntry(t *testing.T) {
	g := mustDecode(t, `{
		"blocks": [{"id":"A","type":"start"},{"id":"B","type":"end"}],
		"connections": [{"from":"A","to":"B"}]
	}`)
	if err := g.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if g.Entry != "A" {
		t.Fatalf("expected entry A, got %q", g.Entry)
	}
}

func TestValidateMultipleEntries(t *testing.T) {
	g := mustDecode(t, `{
		"blocks": [{"id":"A","type":"start"},{"id":"B","type":"start"}],
		"connections": []
	}`)
	err := g.Validate()
	if err == nil {
		t.Fatal("expected error for multiple start blocks")
	}
}

func TestValidateNoEntry(t *testing.T) {
	g := mustDecode(t, `{
		"blocks": [{"id":"A","type":"loop","config":{"bodyStart":"A","exitTarget":"A"}}],
		"connections": [{"from":"A","to":"A"}]
	}`)
	err := g.Validate()
	if err == nil {
		t.Fatal("expected error: every block has a predecessor")
	}
}

func TestValidateIfMissingConfig(t *testing.T) {
	g := mustDecode(t, `{
		"blocks": [
			{"id":"A","type":"if"},
			{"id":"B","type":"end"},
			{"id":"C","type":"end"}
		],
		"connections": [{"from":"A","to":"B"},{"from":"A","to":"C"}]
	}`)
	if err := g.Validate(); err == nil {
		t.Fatal("expected error for if block missing trueTarget/falseTarget")
	}
}

func TestValidateIfValid(t *testing.T) {
	g := mustDecode(t, `{
		"blocks": [
			{"id":"A","type":"if","config":{"trueTarget":"B","falseTarget":"C"}},
			{"id":"B","type":"end"},
			{"id":"C","type":"end"}
		],
		"connections": [{"from":"A","to":"B"},{"from":"A","to":"C"}]
	}`)
	if err := g.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateUnreachableBlock(t *testing.T) {
	// A is the sole entry; C and D form a predecessor cycle never
	// reached by following A's successors.
	g := mustDecode(t, `{
		"blocks": [
			{"id":"A","type":"start"},
			{"id":"B","type":"end"},
			{"id":"C","type":"end"},
			{"id":"D","type":"end"}
		],
		"connections": [
			{"from":"A","to":"B"},
			{"from":"C","to":"D"},
			{"from":"D","to":"C"}
		]
	}`)
	if err := g.Validate(); err == nil {
		t.Fatal("expected error: C/D form an island never reached from the entry")
	}
}

func TestValidateTooManySuccessors(t *testing.T) {
	g := mustDecode(t, `{
		"blocks": [
			{"id":"A","type":"start"},
			{"id":"B","type":"end"},
			{"id":"C","type":"end"}
		],
		"connections": [{"from":"A","to":"B"},{"from":"A","to":"C"}]
	}`)
	if err := g.Validate(); err == nil {
		t.Fatal("expected error: generic block with two outgoing edges")
	}
}
