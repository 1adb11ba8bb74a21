// Package manifest handles jsbc.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Manifest represents a jsbc.toml project configuration.
type Manifest struct {
	Project Project `toml:"project"`
	Source  Source  `toml:"source"`
	Output  Output  `toml:"output"`
	Hosts   []string `toml:"hosts"`
	Encoding Encoding `toml:"encoding"`

	// Dir is the directory containing the jsbc.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Source configures the entry point of the textual front end.
type Source struct {
	Entry string `toml:"entry"`
}

// Output configures where compiled containers are written.
type Output struct {
	Dir string `toml:"dir"`
}

// Encoding configures how composite constants are encoded in the
// constant pool. "cbor" is the only mode currently implemented; the
// field exists so a manifest can name the mode explicitly rather than
// leaving it an unstated assumption (spec.md's constant-encoding Open
// Question, resolved in DESIGN.md).
type Encoding struct {
	Constants string `toml:"constants"`
}

// Load parses a jsbc.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, "jsbc.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	if m.Output.Dir == "" {
		m.Output.Dir = "."
	}
	if m.Encoding.Constants == "" {
		m.Encoding.Constants = "cbor"
	}

	return &m, nil
}

// FindAndLoad walks up from startDir to find a jsbc.toml file, then
// loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, "jsbc.toml")
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

// EntryPath returns the absolute path of the configured entry file.
func (m *Manifest) EntryPath() string {
	return filepath.Join(m.Dir, m.Source.Entry)
}

// OutputPath returns the absolute path to write name (a .pbo or .nbo
// file basename) into the manifest's configured output directory.
func (m *Manifest) OutputPath(name string) string {
	return filepath.Join(m.Dir, m.Output.Dir, name)
}

// HostAllowlist returns the manifest's configured CALL_HOST hosts as a
// set. It does not include the compiler's built-in defaults -- the
// caller merges those in (see pkg/compiler.EmitWithHosts), so an empty
// or absent top-level `hosts` list falls back to the compiler's defaults
// rather than silently widening to an empty allowlist.
func (m *Manifest) HostAllowlist() map[string]bool {
	allowed := make(map[string]bool, len(m.Hosts))
	for _, h := range m.Hosts {
		allowed[h] = true
	}
	return allowed
}
