package asmr

import (
	"io"
	"os"

	"github.com/sodiumlight/stm8tc/pkg/lexer"
	"github.com/sodiumlight/stm8tc/pkg/reloc"
	"github.com/sodiumlight/stm8tc/pkg/section"
	"github.com/sodiumlight/stm8tc/pkg/symtab"
	"github.com/sodiumlight/stm8tc/pkg/token"
	"github.com/sodiumlight/stm8tc/pkg/xerr"
)

// Options configures one assembly run.
type Options struct {
	Defines  map[string]int64 // -D NAME=VALUE, added as w8 constants before pass 0
	NoPrint  bool
	PrintOut io.Writer
}

// Assemble runs both passes of path through a fresh Context and returns it
// with Symbols/Sections/Relocs populated for objfile encoding.
func Assemble(path string, opts Options) (*Context, error) {
	printOut := opts.PrintOut
	if printOut == nil {
		printOut = os.Stdout
	}
	c := NewContext(printOut)
	c.NoPrint = opts.NoPrint

	for name, value := range opts.Defines {
		if err := c.Symbols.Add(symtab.Symbol{Name: name, Kind: symtab.Constant, Value: value, Width: symtab.W8}); err != nil {
			return nil, err
		}
	}

	// Pass 0 walks the file once to populate the symbol table: every
	// label's Value ends up holding its section-relative offset, computed
	// by actually encoding (and discarding) section bytes as it goes, so
	// instruction lengths stay consistent with what pass 1 will emit.
	c.Pass = 0
	if err := c.runFile(path); err != nil {
		return nil, err
	}

	// Pass 1 re-runs the same file from scratch against fresh sections and
	// relocations; the symbol table survives untouched, so every label
	// reference - forward or backward - now resolves (spec.md §9: pass 1
	// never reuses pass 0's token stream or section bytes).
	c.Pass = 1
	c.Sections = section.New()
	c.Relocs = reloc.New()
	c.Current = nil
	c.condStack = nil
	if err := c.runFile(path); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *Context) runFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return c.runLexer(lexer.New(f, path))
}

// runLexer drives the per-line production loop over one open source: skip
// blank lines, stop at EOF, drop bare comments, otherwise parse one line.
func (c *Context) runLexer(l *lexer.Lexer) error {
	for {
		if _, matched, err := l.Token(token.Line, lexer.Next); err != nil {
			return err
		} else if matched {
			continue
		}
		if _, matched, err := l.Token(token.EOF, lexer.Next); err != nil {
			return err
		} else if matched {
			return nil
		}
		if _, matched, err := l.Token(token.Comment, lexer.Next); err != nil {
			return err
		} else if matched {
			continue
		}
		if err := c.runLine(l); err != nil {
			return err
		}
	}
}

// runLine parses and executes one non-blank, non-comment line.
func (c *Context) runLine(l *lexer.Lexer) error {
	if c.suppressed() {
		return c.handleSuppressedLine(l)
	}

	if tok, matched, err := l.Token(token.Ident, lexer.Next); err != nil {
		return err
	} else if matched {
		return c.afterLeadingIdent(l, tok.Lexeme)
	}

	if _, matched, err := l.Token(token.Dot, lexer.Next); err != nil {
		return err
	} else if matched {
		return c.dispatchDirective(l)
	}

	return xerr.Make(ErrUnexpectedLine, "%s:%d", l.File(), l.Line())
}

// afterLeadingIdent resolves the ambiguity between a label definition
// ("NAME[.wNN]:") and an instruction line ("NAME ...") that both start
// with a bare identifier.
func (c *Context) afterLeadingIdent(l *lexer.Lexer, name string) error {
	widthAttr := ""
	if _, matched, err := l.Token(token.Dot, lexer.Next); err != nil {
		return err
	} else if matched {
		wtok, matched, err := l.Token(token.Ident, lexer.Next)
		if err != nil {
			return err
		}
		if !matched {
			return xerr.Make(ErrBadLabel, "%s:%d: expected width attribute", l.File(), l.Line())
		}
		widthAttr = wtok.Lexeme
	}

	if _, matched, err := l.Token(token.Colon, lexer.Next); err != nil {
		return err
	} else if matched {
		return c.defineLabel(name, widthAttr)
	}

	if widthAttr != "" {
		return xerr.Make(ErrBadLabel, "%s:%d: expected ':' after width attribute", l.File(), l.Line())
	}

	return c.dispatchInstructionLine(l, name)
}

// defineLabel records a label at the current section offset. Pass 0 both
// creates the symbol and gives it its (pass-0-computed) offset, since that
// offset is what later forward references within pass 0 itself need to
// see; pass 1 recomputes the same offset against a fresh section and
// overwrites it, which is a no-op when encoding stayed deterministic
// (Property 2).
func (c *Context) defineLabel(name, widthAttr string) error {
	width := symtab.W8
	if widthAttr != "" {
		w, err := symtab.ParseWidthAttr(widthAttr)
		if err != nil {
			return err
		}
		width = w
	}
	if err := c.ensureCurrentSection(); err != nil {
		return err
	}
	if c.Pass == 0 {
		return c.Symbols.Add(symtab.Symbol{Name: name, Kind: symtab.Label, Width: width, Value: int64(c.Current.Length), Section: c.Current.Name})
	}
	return c.Symbols.SetLabelValue(name, int64(c.Current.Length), c.Current.Name)
}
