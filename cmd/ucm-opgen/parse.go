package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RawOpSpec is the opcode dispatch spec loaded from YAML. Entry order is
// ABI order and must match the Op constants in opcode.go.
type RawOpSpec struct {
	Ops []RawOpDef `yaml:"ops"`
}

// RawOpDef describes one opcode table entry. Op is the Go constant name
// from opcode.go; MinIn and MinOut are Go constant expressions from
// sizes.go. Vacant marks an opcode that keeps its slot but is never
// dispatched.
type RawOpDef struct {
	Op     string `yaml:"op"`
	Name   string `yaml:"name"`
	MinIn  string `yaml:"min_in"`
	MinOut string `yaml:"min_out"`
	Vacant bool   `yaml:"vacant"`
}

// ParseOpSpec parses and validates an opcode spec from YAML bytes.
func ParseOpSpec(data []byte) (*RawOpSpec, error) {
	var spec RawOpSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parsing opcode spec: %w", err)
	}
	if len(spec.Ops) == 0 {
		return nil, fmt.Errorf("opcode spec has no ops")
	}

	seenOps := make(map[string]bool)
	seenNames := make(map[string]bool)
	for i, def := range spec.Ops {
		if def.Op == "" {
			return nil, fmt.Errorf("ops[%d]: missing op constant", i)
		}
		if def.Name == "" {
			return nil, fmt.Errorf("ops[%d] (%s): missing name", i, def.Op)
		}
		if seenOps[def.Op] {
			return nil, fmt.Errorf("duplicate op %s", def.Op)
		}
		seenOps[def.Op] = true
		if seenNames[def.Name] {
			return nil, fmt.Errorf("duplicate name %s", def.Name)
		}
		seenNames[def.Name] = true

		if def.Vacant {
			if def.MinIn != "" || def.MinOut != "" {
				return nil, fmt.Errorf("%s: vacant op must not declare sizes", def.Op)
			}
			continue
		}
		if def.MinIn == "" {
			return nil, fmt.Errorf("%s: missing min_in", def.Op)
		}
	}

	return &spec, nil
}

// LoadOpSpec loads and parses an opcode spec from a file.
func LoadOpSpec(path string) (*RawOpSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return ParseOpSpec(data)
}
