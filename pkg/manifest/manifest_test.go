package manifest

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	tomlContent := `
hosts = ["console", "fetch"]

[project]
name = "test-app"
version = "0.1.0"

[source]
entry = "main.jsb"

[output]
dir = "build"

[encoding]
constants = "cbor"
`
	if err := os.WriteFile(filepath.Join(dir, "jsbc.toml"), []byte(tomlContent), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Project.Name != "test-app" {
		t.Errorf("project name = %q, want test-app", m.Project.Name)
	}
	if m.Project.Version != "0.1.0" {
		t.Errorf("project version = %q, want 0.1.0", m.Project.Version)
	}
	if m.Source.Entry != "main.jsb" {
		t.Errorf("source entry = %q, want main.jsb", m.Source.Entry)
	}
	if m.Output.Dir != "build" {
		t.Errorf("output dir = %q, want build", m.Output.Dir)
	}
	if len(m.Hosts) != 2 || m.Hosts[0] != "console" || m.Hosts[1] != "fetch" {
		t.Errorf("hosts = %v, want [console fetch]", m.Hosts)
	}
	if m.Encoding.Constants != "cbor" {
		t.Errorf("encoding constants = %q, want cbor", m.Encoding.Constants)
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	tomlContent := `
[project]
name = "minimal"

[source]
entry = "main.jsb"
`
	if err := os.WriteFile(filepath.Join(dir, "jsbc.toml"), []byte(tomlContent), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Output.Dir != "." {
		t.Errorf("default output dir = %q, want .", m.Output.Dir)
	}
	if m.Encoding.Constants != "cbor" {
		t.Errorf("default encoding constants = %q, want cbor", m.Encoding.Constants)
	}
}

func TestFindAndLoad(t *testing.T) {
	dir := t.TempDir()
	subDir := filepath.Join(dir, "a", "b", "c")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatal(err)
	}

	tomlContent := `
[project]
name = "found-project"

[source]
entry = "main.jsb"
`
	if err := os.WriteFile(filepath.Join(dir, "jsbc.toml"), []byte(tomlContent), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := FindAndLoad(subDir)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil {
		t.Fatal("FindAndLoad returned nil")
	}
	if m.Project.Name != "found-project" {
		t.Errorf("project name = %q, want found-project", m.Project.Name)
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	dir := t.TempDir()
	m, err := FindAndLoad(dir)
	if err != nil {
		t.Fatalf("FindAndLoad error: %v", err)
	}
	if m != nil {
		t.Error("expected nil manifest when no jsbc.toml exists")
	}
}

func TestEntryAndOutputPaths(t *testing.T) {
	m := &Manifest{
		Dir:    "/app",
		Source: Source{Entry: "main.jsb"},
		Output: Output{Dir: "build"},
	}
	if got := m.EntryPath(); got != "/app/main.jsb" {
		t.Errorf("EntryPath() = %q, want /app/main.jsb", got)
	}
	if got := m.OutputPath("main.pbo"); got != "/app/build/main.pbo" {
		t.Errorf("OutputPath() = %q, want /app/build/main.pbo", got)
	}
}

func TestHostAllowlist(t *testing.T) {
	m := &Manifest{Hosts: []string{"console", "fetch"}}
	allow := m.HostAllowlist()
	if !allow["console"] || !allow["fetch"] {
		t.Fatalf("expected console and fetch to be allowed, got %v", allow)
	}
	if allow["WebSocket"] {
		t.Fatal("expected hosts not listed in the manifest to be absent")
	}
}
