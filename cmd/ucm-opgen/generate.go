package main

import (
	"fmt"
	"strings"
	"text/template"
)

// funcMap provides helper functions available to the table template.
var funcMap = template.FuncMap{
	"quote": func(s string) string { return fmt.Sprintf("%q", s) },
}

// templates holds the parsed code generation template. Output is left
// unindented; writeFormatted runs it through goimports.
var templates = template.Must(template.New("").Funcs(funcMap).Parse(opTableTmpl))

// tableData holds data for the opTable template.
type tableData struct {
	Spec string
	Ops  []RawOpDef
}

const opTableTmpl = `{{define "opTable"}}
// Code generated by ucm-opgen from {{.Spec}}. DO NOT EDIT.

package wire

// opInfo is the dispatch-table metadata, indexed by opcode.
var opInfo = [NumOps]OpInfo{
{{- range .Ops}}
{{.Op}}: {Name: {{quote .Name}}{{if .MinIn}}, MinIn: {{.MinIn}}{{end}}{{if .MinOut}}, MinOut: {{.MinOut}}{{end}}},
{{- end}}
}
{{end}}`

// GenerateOpTable renders the opInfo table for the given spec. The spec
// file's base name appears in the generated-file header.
func GenerateOpTable(spec *RawOpSpec, specName string) (string, error) {
	var b strings.Builder
	data := tableData{Spec: specName, Ops: spec.Ops}
	if err := templates.ExecuteTemplate(&b, "opTable", data); err != nil {
		return "", fmt.Errorf("rendering op table: %w", err)
	}
	return b.String(), nil
}
