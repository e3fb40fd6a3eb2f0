package config

import (
	"gopkg.in/yaml.v3"
)

// SymbolDump and SectionDump are machine-readable shapes for a symbol and
// section listing, rendered with yaml.v3 like the on-disk config file.
// Neither cmd/asm nor cmd/lkr writes this dump; their -I and -M output is
// plain text.
type SymbolDump struct {
	Name    string `yaml:"name"`
	Kind    string `yaml:"kind"`
	Value   int64  `yaml:"value"`
	Export  bool   `yaml:"export,omitempty"`
	Section string `yaml:"section,omitempty"`
}

type SectionDump struct {
	Name   string `yaml:"name"`
	Length int    `yaml:"length"`
	Noload bool   `yaml:"noload,omitempty"`
	Placed bool   `yaml:"placed,omitempty"`
	LMA    uint32 `yaml:"lma,omitempty"`
	VMA    uint32 `yaml:"vma,omitempty"`
}

// Dump is the top-level document MarshalYAML renders.
type Dump struct {
	Symbols  []SymbolDump  `yaml:"symbols,omitempty"`
	Sections []SectionDump `yaml:"sections,omitempty"`
}

// MarshalYAML renders a Dump document, used instead of a hand-written
// writer so the dump format stays in lockstep with whatever the config
// file's own yaml.v3 encoder produces.
func MarshalYAML(d Dump) ([]byte, error) {
	return yaml.Marshal(d)
}
