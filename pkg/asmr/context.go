// Package asmr implements the two-pass assembler driver of spec.md §4.5:
// line-directed translation of source into sections, symbols, and
// relocations, dispatching directives and instruction mnemonics against
// the lexer, constant-expression evaluator, symbol table, section buffer,
// relocation list, and instruction-encoding tables.
package asmr

import (
	"fmt"
	"io"
	"os"

	"github.com/sodiumlight/stm8tc/pkg/reloc"
	"github.com/sodiumlight/stm8tc/pkg/section"
	"github.com/sodiumlight/stm8tc/pkg/symtab"
)

// Endian is the default byte order applied by the ".d*" data directives.
type Endian int

const (
	Big Endian = iota
	Little
)

// NumberFormat controls how ".print" renders an integer argument.
type NumberFormat int

const (
	Decimal NumberFormat = iota
	Hex
	Binary
	Octal
)

// Context is the one mutable object threaded through every phase of
// assembly, in place of the source tool's module-scope globals (spec.md §9
// design notes).
type Context struct {
	Pass   int // 0 = discover labels/constants, 1 = emit
	Endian Endian

	Symbols  *symtab.Table
	Sections *section.Table
	Relocs   *reloc.List
	Current  *section.Section

	NoPrint      bool
	PrintOut     io.Writer
	NumberFormat NumberFormat

	// includeDepth guards against runaway recursive .include chains.
	includeDepth int

	// condStack tracks nested ".if"/.endif bodies; see conditional.go.
	condStack []bool

	// Warn reports a non-fatal diagnostic (e.g. re-exporting a symbol).
	// NewContext sets it to print a plain stderr line; it must not be nil.
	Warn func(format string, args ...any)
}

const maxIncludeDepth = 64

// NewContext creates an assembler context ready for pass 0.
func NewContext(printOut io.Writer) *Context {
	return &Context{
		Symbols:  symtab.New(),
		Sections: section.New(),
		Relocs:   reloc.New(),
		PrintOut: printOut,
		Warn: func(format string, args ...any) {
			fmt.Fprintf(os.Stderr, "warning: "+format+"\n", args...)
		},
	}
}

// selectSection mirrors ".section" directive semantics outside of a
// directive call, used to establish the default "text" section.
func (c *Context) selectSection(name string, noload bool) error {
	sec, err := c.Sections.Select(name, noload)
	if err != nil {
		return err
	}
	c.Current = sec
	return nil
}

func (c *Context) ensureCurrentSection() error {
	if c.Current != nil {
		return nil
	}
	return c.selectSection("text", false)
}
