package main

import (
	"math"
	"strings"
	"testing"

	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"

	"github.com/wippyai/native-bridge/builtin"
	"github.com/wippyai/native-bridge/engine"
)

func builtinInfos(t *testing.T) []entryInfo {
	t.Helper()
	reg, err := builtin.NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return describe(reg)
}

func TestDescribe(t *testing.T) {
	infos := builtinInfos(t)

	tests := []struct {
		name  string
		sig   string
		flags string
	}{
		{"ModInt64", "ModInt64(arg0: u64, arg1: u64) -> u64", "leaf,general"},
		{"LibcPow", "LibcPow(arg0: f64, arg1: f64) -> f64", "leaf,float"},
		{"StackOverflow", "StackOverflow() -> u64", "runtime,general,lazy-deopt"},
		{"PrintStopMessage", "PrintStopMessage(arg0: u64) -> u64", "runtime,general"},
	}
	for _, tt := range tests {
		e, ok := findEntry(infos, tt.name)
		if !ok {
			t.Fatalf("%s not described", tt.name)
		}
		if got := e.signature(); got != tt.sig {
			t.Errorf("signature = %q, want %q", got, tt.sig)
		}
		if got := e.flags(); got != tt.flags {
			t.Errorf("%s flags = %q, want %q", tt.name, got, tt.flags)
		}
	}
}

func TestDescribe_ArgsRecord(t *testing.T) {
	e, ok := findEntry(builtinInfos(t), "LibcPow")
	if !ok {
		t.Fatal("LibcPow not described")
	}
	if got := witTypeStr(e.args); got != "LibcPow-args" {
		t.Errorf("args type = %q", got)
	}
	rec, ok := e.args.Kind.(*wit.Record)
	if !ok || len(rec.Fields) != 2 {
		t.Fatalf("args kind = %#v, want record of 2 fields", e.args.Kind)
	}
	for _, f := range rec.Fields {
		if _, ok := f.Type.(wit.F64); !ok {
			t.Errorf("field %s type = %T, want f64", f.Name, f.Type)
		}
	}
	if _, ok := e.result.(wit.F64); !ok {
		t.Errorf("result = %T, want f64", e.result)
	}
}

func TestConvertArg(t *testing.T) {
	tests := []struct {
		in      string
		typ     wit.Type
		want    uint64
		wantErr bool
	}{
		{"42", wit.U64{}, 42, false},
		{"0x10", wit.U64{}, 16, false},
		{"-1", wit.U64{}, math.MaxUint64, false},
		{" 7 ", wit.U64{}, 7, false},
		{"x", wit.U64{}, 0, true},
		{"2.5", wit.F64{}, api.EncodeF64(2.5), false},
		{"nope", wit.F64{}, 0, true},
	}
	for _, tt := range tests {
		got, err := convertArg(tt.in, tt.typ)
		if (err != nil) != tt.wantErr {
			t.Errorf("convertArg(%q) err = %v", tt.in, err)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("convertArg(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestConvertArgs_Arity(t *testing.T) {
	e, _ := findEntry(builtinInfos(t), "ModInt64")
	if _, err := convertArgs(e, splitArgs("1")); err == nil {
		t.Error("short argument list should fail")
	}
	args, err := convertArgs(e, splitArgs("7,3"))
	if err != nil || len(args) != 2 {
		t.Errorf("convertArgs = %v, %v", args, err)
	}
	if splitArgs("  ") != nil {
		t.Error("blank args should split to nothing")
	}
}

func TestFormatResult(t *testing.T) {
	infos := builtinInfos(t)
	mod, _ := findEntry(infos, "ModInt64")
	pow, _ := findEntry(infos, "LibcPow")

	if got := formatResult(mod, engine.Result{Value: 255}); got != "255 (0xff)" {
		t.Errorf("got %q", got)
	}
	if got := formatResult(pow, engine.Result{Value: api.EncodeF64(0.5)}); got != "0.5" {
		t.Errorf("got %q", got)
	}
	if got := formatResult(mod, engine.Result{Value: 1, Deoptimized: true}); !strings.Contains(got, "deoptimized") {
		t.Errorf("got %q", got)
	}
}

func TestLoadOptions_Overrides(t *testing.T) {
	opts, err := loadOptions(config{mode: "redirect", tier: "interpreter"})
	if err != nil {
		t.Fatalf("loadOptions: %v", err)
	}
	if opts.Mode.String() != "redirect" || opts.Tier != engine.TierInterpreter {
		t.Errorf("opts = %+v", opts)
	}
	if _, err := loadOptions(config{mode: "sideways"}); err == nil {
		t.Error("bad mode should fail")
	}
}
