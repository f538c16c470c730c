package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"

	nativebridge "github.com/wippyai/native-bridge"
	"github.com/wippyai/native-bridge/engine"
	"github.com/wippyai/native-bridge/entry"
)

type entryInfo struct {
	desc *entry.Descriptor
	name string
	// args is the native-arguments block as a WIT record, one field per
	// argument word.
	args   *wit.TypeDef
	result wit.Type
}

// describe renders the call shape of each entry in WIT. Words of the
// general register class are u64, float-class values f64.
func describe(reg *entry.Registry) []entryInfo {
	var out []entryInfo
	for _, d := range reg.Entries() {
		t := classType(d.Class())
		fields := make([]wit.Field, d.ArgumentCount())
		for i := range fields {
			fields[i] = wit.Field{Name: fmt.Sprintf("arg%d", i), Type: t}
		}
		block := d.Name() + "-args"
		out = append(out, entryInfo{
			desc:   d,
			name:   d.Name(),
			args:   &wit.TypeDef{Name: &block, Kind: &wit.Record{Fields: fields}},
			result: t,
		})
	}
	return out
}

func classType(c nativebridge.RegisterClass) wit.Type {
	if c == nativebridge.ClassFloat {
		return wit.F64{}
	}
	return wit.U64{}
}

func witTypeStr(t wit.Type) string {
	switch v := t.(type) {
	case wit.U64:
		return "u64"
	case wit.S64:
		return "s64"
	case wit.F64:
		return "f64"
	case *wit.TypeDef:
		if v.Name != nil {
			return *v.Name
		}
		return "typedef"
	default:
		return fmt.Sprintf("%T", t)
	}
}

// params returns the fields of the arguments record.
func (e entryInfo) params() []wit.Field {
	if e.args == nil {
		return nil
	}
	if r, ok := e.args.Kind.(*wit.Record); ok {
		return r.Fields
	}
	return nil
}

func (e entryInfo) signature() string {
	var params []string
	for _, p := range e.params() {
		params = append(params, p.Name+": "+witTypeStr(p.Type))
	}
	return e.name + "(" + strings.Join(params, ", ") + ") -> " + witTypeStr(e.result)
}

// flags summarises the call-sequence metadata of an entry.
func (e entryInfo) flags() string {
	d := e.desc
	var f []string
	if d.IsLeaf() {
		f = append(f, "leaf")
	} else {
		f = append(f, "runtime")
	}
	f = append(f, d.Class().String())
	if d.CanLazyDeopt() {
		f = append(f, "lazy-deopt")
	}
	return strings.Join(f, ",")
}

// convertArg parses one argument word. Word arguments accept unsigned,
// negative or 0x-prefixed values.
func convertArg(value string, t wit.Type) (uint64, error) {
	value = strings.TrimSpace(value)
	switch t.(type) {
	case wit.F64:
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, fmt.Errorf("parse f64 %q: %w", value, err)
		}
		return api.EncodeF64(v), nil
	default:
		if v, err := strconv.ParseUint(value, 0, 64); err == nil {
			return v, nil
		}
		v, err := strconv.ParseInt(value, 0, 64)
		if err != nil {
			return 0, fmt.Errorf("parse u64 %q: %w", value, err)
		}
		return uint64(v), nil
	}
}

func convertArgs(e entryInfo, values []string) ([]uint64, error) {
	params := e.params()
	if len(values) != len(params) {
		return nil, fmt.Errorf("%s takes %d argument(s), got %d", e.name, len(params), len(values))
	}
	args := make([]uint64, len(values))
	for i, v := range values {
		w, err := convertArg(v, params[i].Type)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", params[i].Name, err)
		}
		args[i] = w
	}
	return args, nil
}

func splitArgs(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func formatResult(e entryInfo, res engine.Result) string {
	var s string
	if e.desc.IsFloat() {
		s = strconv.FormatFloat(res.Float(), 'g', -1, 64)
	} else {
		s = fmt.Sprintf("%d (0x%x)", res.Value, res.Value)
	}
	if res.Deoptimized {
		s += " [caller deoptimized]"
	}
	return s
}

func findEntry(infos []entryInfo, name string) (entryInfo, bool) {
	for _, e := range infos {
		if e.name == name {
			return e, true
		}
	}
	return entryInfo{}, false
}
