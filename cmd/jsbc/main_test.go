package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveOutputExplicitOverride(t *testing.T) {
	got := resolveOutput("in.jsb", "out.pbo", ".pbo")
	if got != "out.pbo" {
		t.Fatalf("resolveOutput with override = %q, want out.pbo", got)
	}
}

func TestResolveOutputDerivesFromBasename(t *testing.T) {
	got := resolveOutput("/tmp/does-not-exist-jsbc-test/main.jsb", "", ".pbo")
	if got != "main.pbo" {
		t.Fatalf("resolveOutput without a manifest = %q, want main.pbo", got)
	}
}

func TestResolveOutputHonorsManifestOutputDir(t *testing.T) {
	dir := t.TempDir()
	toml := `
[project]
name = "demo"

[source]
entry = "main.jsb"

[output]
dir = "build"
`
	if err := os.WriteFile(filepath.Join(dir, "jsbc.toml"), []byte(toml), 0644); err != nil {
		t.Fatal(err)
	}
	inputPath := filepath.Join(dir, "main.jsb")
	got := resolveOutput(inputPath, "", ".pbo")
	want := filepath.Join(dir, "build", "main.pbo")
	if got != want {
		t.Fatalf("resolveOutput = %q, want %q", got, want)
	}
}
