package main

import (
	"bytes"
	"fmt"
	"go/format"
	"strings"
	"text/template"

	"github.com/wippyai/native-bridge/manifest"
)

const entryImport = "github.com/wippyai/native-bridge/entry"

var fileTemplate = template.Must(template.New("entries").Funcs(template.FuncMap{
	"signature": signature,
	"declare":   declare,
	"comment":   comment,
}).Parse(`// Code generated by entrygen from {{.Source}}. DO NOT EDIT.

package {{.Manifest.Package}}

import "{{.Import}}"

var (
{{- range .Manifest.Entries}}
{{comment .}}	{{.Name}}Entry = {{declare .}}
{{- end}}
)
{{- if .Leaf}}

// Leaf bodies must match the arity declared in {{.Source}}.
var (
{{- range .Leaf}}
	_ {{signature .}} = {{.Func}}
{{- end}}
)
{{- end}}

// Entries returns every declared entry, general entries first, each group
// in declaration order.
func Entries() []*entry.Descriptor {
	return []*entry.Descriptor{
{{- range .General}}
		{{.Name}}Entry,
{{- end}}
{{- range .Leaf}}
		{{.Name}}Entry,
{{- end}}
	}
}
`))

type fileData struct {
	Manifest *manifest.Manifest
	Source   string
	Import   string
	General  []manifest.Entry
	Leaf     []manifest.Entry
}

// Generate renders the Go declarations for m. source names the manifest in
// the generated header.
func Generate(m *manifest.Manifest, source string) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	err := fileTemplate.Execute(&buf, fileData{
		Manifest: m,
		Source:   source,
		Import:   entryImport,
		General:  m.General(),
		Leaf:     m.Leaf(),
	})
	if err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}

	out, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("format: %w", err)
	}
	return out, nil
}

func declare(e manifest.Entry) string {
	switch e.Kind {
	case manifest.KindLeaf:
		return fmt.Sprintf("entry.DefineLeaf(%q, %s)", e.Name, e.Func)
	case manifest.KindFloatLeaf:
		return fmt.Sprintf("entry.DefineFloatLeaf(%q, %s)", e.Name, e.Func)
	}
	if !e.CanLazyDeopt() {
		return fmt.Sprintf("entry.Define(%q, %d, %s, entry.NoLazyDeopt())", e.Name, e.Argc, e.Func)
	}
	return fmt.Sprintf("entry.Define(%q, %d, %s)", e.Name, e.Argc, e.Func)
}

func signature(e manifest.Entry) string {
	word := "uint64"
	if e.IsFloat() {
		word = "float64"
	}
	params := make([]string, e.Argc)
	for i := range params {
		params[i] = word
	}
	return "func(" + strings.Join(params, ", ") + ") " + word
}

func comment(e manifest.Entry) string {
	if e.Doc == "" {
		return ""
	}
	var b strings.Builder
	for _, line := range strings.Split(strings.TrimSpace(e.Doc), "\n") {
		b.WriteString("\t// ")
		b.WriteString(strings.TrimSpace(line))
		b.WriteByte('\n')
	}
	return b.String()
}
