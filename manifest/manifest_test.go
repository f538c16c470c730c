package manifest

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wippyai/native-bridge/errors"
)

const sample = `package: stock
entries:
  - name: StackOverflow
    kind: general
    argc: 0
    func: stackOverflow
  - name: PrintStopMessage
    kind: general
    argc: 1
    func: printStopMessage
    lazy_deopt: false
  - name: ModInt64
    kind: leaf
    argc: 2
    func: modInt64
  - name: LibcPow
    kind: float_leaf
    argc: 2
    func: libcPow
`

func TestParse(t *testing.T) {
	m, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if m.Package != "stock" {
		t.Errorf("Package = %q", m.Package)
	}
	if len(m.General()) != 2 || len(m.Leaf()) != 2 {
		t.Errorf("general=%d leaf=%d", len(m.General()), len(m.Leaf()))
	}

	tests := []struct {
		name  string
		leaf  bool
		float bool
		lazy  bool
	}{
		{"StackOverflow", false, false, true},
		{"PrintStopMessage", false, false, false},
		{"ModInt64", true, false, false},
		{"LibcPow", true, true, false},
	}
	for _, tt := range tests {
		e, ok := m.Lookup(tt.name)
		if !ok {
			t.Fatalf("Lookup(%s) missed", tt.name)
		}
		if e.IsLeaf() != tt.leaf || e.IsFloat() != tt.float || e.CanLazyDeopt() != tt.lazy {
			t.Errorf("%s: leaf=%v float=%v lazy=%v", tt.name, e.IsLeaf(), e.IsFloat(), e.CanLazyDeopt())
		}
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "duplicate name",
			yaml: "package: p\nentries:\n  - {name: A, kind: leaf, argc: 1, func: a}\n  - {name: A, kind: leaf, argc: 1, func: b}\n",
			want: "declared more than once",
		},
		{
			name: "duplicate func",
			yaml: "package: p\nentries:\n  - {name: A, kind: leaf, argc: 1, func: a}\n  - {name: B, kind: leaf, argc: 1, func: a}\n",
			want: "already bound",
		},
		{
			name: "leaf arity",
			yaml: "package: p\nentries:\n  - {name: A, kind: leaf, argc: 4, func: a}\n",
			want: "leaf entries take 0 to 3",
		},
		{
			name: "float leaf arity",
			yaml: "package: p\nentries:\n  - {name: A, kind: float_leaf, argc: 0, func: a}\n",
			want: "float leaf entries take 1 to 2",
		},
		{
			name: "leaf lazy deopt",
			yaml: "package: p\nentries:\n  - {name: A, kind: leaf, argc: 1, func: a, lazy_deopt: true}\n",
			want: "cannot allow lazy deopt",
		},
		{
			name: "unknown kind",
			yaml: "package: p\nentries:\n  - {name: A, kind: macro, argc: 1, func: a}\n",
			want: "unknown kind",
		},
		{
			name: "bad package",
			yaml: "package: 9p\nentries:\n  - {name: A, kind: leaf, argc: 1, func: a}\n",
			want: "not a Go identifier",
		},
		{
			name: "no entries",
			yaml: "package: p\n",
			want: "no entries",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if !stderrors.Is(err, &errors.ValidationError{}) {
				t.Fatalf("got %v, want validation error", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestParse_ReportsAllProblems(t *testing.T) {
	_, err := Parse([]byte("package: p\nentries:\n  - {name: A, kind: leaf, argc: 9, func: a}\n  - {name: B, kind: nope, argc: 1, func: b}\n"))
	var v *errors.ValidationError
	if !stderrors.As(err, &v) {
		t.Fatalf("got %v", err)
	}
	if len(v.Problems) != 2 {
		t.Errorf("got %d problems, want 2: %v", len(v.Problems), err)
	}
}

func TestParse_UnknownField(t *testing.T) {
	_, err := Parse([]byte("package: p\nentries:\n  - {name: A, kind: leaf, argc: 1, func: a, leaf: true}\n"))
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseManifest, Kind: errors.KindInvalidData}) {
		t.Errorf("got %v", err)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entries.yaml")
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatal(err)
	}
	m, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(m.Entries) != 4 {
		t.Errorf("got %d entries", len(m.Entries))
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load of a missing file should fail")
	}
}
