// Package manifest reads the YAML manifest that declares a set of runtime
// entries. The manifest is the single source of truth for entry metadata:
// cmd/entrygen turns it into Go declarations and tests check the built
// registry against it.
package manifest

import (
	"bytes"
	"go/token"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/wippyai/native-bridge/errors"
)

// Kind is the declaration form of an entry.
type Kind string

const (
	KindGeneral   Kind = "general"
	KindLeaf      Kind = "leaf"
	KindFloatLeaf Kind = "float_leaf"
)

const (
	maxLeafArgs      = 3
	minFloatLeafArgs = 1
	maxFloatLeafArgs = 2
)

// Entry is one declared runtime entry.
type Entry struct {
	LazyDeopt *bool  `yaml:"lazy_deopt,omitempty"`
	Name      string `yaml:"name"`
	Kind      Kind   `yaml:"kind"`
	Func      string `yaml:"func"`
	Doc       string `yaml:"doc,omitempty"`
	Argc      int    `yaml:"argc"`
}

// CanLazyDeopt resolves the lazy_deopt default: true for general entries,
// always false for leaf entries.
func (e Entry) CanLazyDeopt() bool {
	if e.Kind != KindGeneral {
		return false
	}
	return e.LazyDeopt == nil || *e.LazyDeopt
}

func (e Entry) IsLeaf() bool { return e.Kind == KindLeaf || e.Kind == KindFloatLeaf }

func (e Entry) IsFloat() bool { return e.Kind == KindFloatLeaf }

// Manifest is a parsed entry manifest.
type Manifest struct {
	Package string  `yaml:"package"`
	Entries []Entry `yaml:"entries"`
}

// General returns the general entries in declaration order.
func (m *Manifest) General() []Entry {
	var out []Entry
	for _, e := range m.Entries {
		if !e.IsLeaf() {
			out = append(out, e)
		}
	}
	return out
}

// Leaf returns the leaf entries, word and float, in declaration order.
func (m *Manifest) Leaf() []Entry {
	var out []Entry
	for _, e := range m.Entries {
		if e.IsLeaf() {
			out = append(out, e)
		}
	}
	return out
}

// Lookup finds an entry by name.
func (m *Manifest) Lookup(name string) (Entry, bool) {
	for _, e := range m.Entries {
		if e.Name == name {
			return e, true
		}
	}
	return Entry{}, false
}

// Parse decodes and validates a manifest. Unknown fields are rejected.
func Parse(data []byte) (*Manifest, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var m Manifest
	if err := dec.Decode(&m); err != nil {
		return nil, errors.ParseFailed(errors.PhaseManifest, "manifest", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Load reads and parses the manifest at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseManifest, errors.KindNotFound, err, "read "+path)
	}
	return Parse(data)
}

// Validate reports every problem in the manifest at once.
func (m *Manifest) Validate() error {
	v := &errors.ValidationError{Phase: errors.PhaseManifest}

	if !token.IsIdentifier(m.Package) {
		v.Add("", "package %q is not a Go identifier", m.Package)
	}
	if len(m.Entries) == 0 {
		v.Add("", "no entries declared")
	}

	names := make(map[string]bool, len(m.Entries))
	funcs := make(map[string]string, len(m.Entries))
	for _, e := range m.Entries {
		switch {
		case e.Name == "":
			v.Add("", "entry with empty name")
		case !token.IsIdentifier(e.Name):
			v.Add(e.Name, "name is not an identifier")
		case names[e.Name]:
			v.Add(e.Name, "declared more than once")
		}
		names[e.Name] = true

		if !token.IsIdentifier(e.Func) {
			v.Add(e.Name, "func %q is not a Go identifier", e.Func)
		} else if prev, dup := funcs[e.Func]; dup {
			v.Add(e.Name, "func %s already bound to %s", e.Func, prev)
		} else {
			funcs[e.Func] = e.Name
		}

		switch e.Kind {
		case KindGeneral:
			if e.Argc < 0 {
				v.Add(e.Name, "negative argument count %d", e.Argc)
			}
		case KindLeaf:
			if e.Argc < 0 || e.Argc > maxLeafArgs {
				v.Add(e.Name, "leaf entries take 0 to %d arguments, got %d", maxLeafArgs, e.Argc)
			}
		case KindFloatLeaf:
			if e.Argc < minFloatLeafArgs || e.Argc > maxFloatLeafArgs {
				v.Add(e.Name, "float leaf entries take %d to %d arguments, got %d",
					minFloatLeafArgs, maxFloatLeafArgs, e.Argc)
			}
		default:
			v.Add(e.Name, "unknown kind %q", e.Kind)
		}

		if e.IsLeaf() && e.LazyDeopt != nil && *e.LazyDeopt {
			v.Add(e.Name, "leaf entry cannot allow lazy deopt")
		}
	}

	return v.Err()
}
