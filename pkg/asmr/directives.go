package asmr

import (
	"errors"
	"fmt"
	"os"

	"github.com/sodiumlight/stm8tc/pkg/expr"
	"github.com/sodiumlight/stm8tc/pkg/lexer"
	"github.com/sodiumlight/stm8tc/pkg/reloc"
	"github.com/sodiumlight/stm8tc/pkg/symtab"
	"github.com/sodiumlight/stm8tc/pkg/token"
	"github.com/sodiumlight/stm8tc/pkg/xerr"
)

// dispatchDirective reads the directive name following a leading '.' and
// routes to its handler. Conditional, .section, .dbendian and .include
// directives run identically in both passes, since they gate or redirect
// what the rest of the driver sees; .define/.extern/.export mutate the
// symbol table on pass 0 only but are still fully parsed on pass 1 so the
// lexer stays in sync; .fill and the ".dN" data directives encode on both
// passes, since pass 0 needs their byte lengths to size later labels
// correctly, and pass 1 simply recomputes the same bytes against fresh
// sections.
func (c *Context) dispatchDirective(l *lexer.Lexer) error {
	nameTok, matched, err := l.Token(token.Ident, lexer.Next)
	if err != nil {
		return err
	}
	if !matched {
		return xerr.Make(ErrBadDirective, "%s:%d: expected directive name after '.'", l.File(), l.Line())
	}

	switch nameTok.Lexeme {
	case "if":
		return c.doIf(l)
	case "ifdef":
		return c.doIfdefIfndef(l, false)
	case "ifndef":
		return c.doIfdefIfndef(l, true)
	case "ifeq":
		return c.doIfCompare(l, false)
	case "ifneq":
		return c.doIfCompare(l, true)
	case "endif":
		return c.popConditional()
	case "include":
		return c.doInclude(l)
	case "define":
		return c.doDefine(l)
	case "extern":
		return c.doExtern(l)
	case "export":
		return c.doExport(l)
	case "section":
		return c.doSection(l)
	case "dbendian":
		return c.doDbendian(l)
	case "print":
		return c.doPrint(l)
	case "fill":
		return c.doFill(l)
	case "d8":
		return c.doData(l, 1)
	case "d16":
		return c.doData(l, 2)
	case "d24":
		return c.doData(l, 3)
	case "d32":
		return c.doData(l, 4)
	case "d64":
		return c.doData(l, 8)
	default:
		return xerr.Make(ErrUnknownDirective, "%q", nameTok.Lexeme)
	}
}

// tryEvalValue consumes one of a bracketed expression, a bare constant
// name, or a bare integer. ok is false (with a nil error) when none of
// those productions match at all, which callers use to detect an
// argument list's end without treating it as a syntax error.
func (c *Context) tryEvalValue(l *lexer.Lexer) (value int64, ok bool, err error) {
	v, evalErr := expr.Eval(l, c.Symbols)
	if evalErr == nil {
		return v, true, nil
	}
	if !errors.Is(evalErr, expr.ErrMissingBrace) {
		return 0, false, evalErr
	}

	if tok, matched, terr := l.Token(token.Ident, lexer.Next); terr != nil {
		return 0, false, terr
	} else if matched {
		sym, found := c.Symbols.Find(tok.Lexeme)
		if !found {
			return 0, false, xerr.Make(symtab.ErrUndefined, "%q", tok.Lexeme)
		}
		if sym.Kind != symtab.Constant {
			return 0, false, xerr.Make(symtab.ErrKindMismatch, "%q is not a constant", tok.Lexeme)
		}
		return sym.Value, true, nil
	}

	if tok, matched, terr := l.Token(token.Int, lexer.Next); terr != nil {
		return 0, false, terr
	} else if matched {
		return tok.IntValue, true, nil
	}

	return 0, false, nil
}

func (c *Context) evalDefineValue(l *lexer.Lexer) (int64, error) {
	v, ok, err := c.tryEvalValue(l)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, xerr.Make(ErrBadDirective, "%s:%d: expected expression, constant, or number", l.File(), l.Line())
	}
	return v, nil
}

// parseWidthSuffix consumes an optional ".wNN" width attribute following a
// symbol name in a .define/.extern line.
func parseWidthSuffix(l *lexer.Lexer) (symtab.Width, error) {
	if _, matched, err := l.Token(token.Dot, lexer.Next); err != nil {
		return 0, err
	} else if matched {
		wtok, matched, err := l.Token(token.Ident, lexer.Next)
		if err != nil {
			return 0, err
		}
		if !matched {
			return 0, xerr.Make(ErrBadDirective, "%s:%d: expected width attribute", l.File(), l.Line())
		}
		return symtab.ParseWidthAttr(wtok.Lexeme)
	}
	return symtab.W8, nil
}

// doDefine implements ".define NAME[.wNN] = EXPR|NUMBER|CONST_SYMBOL".
func (c *Context) doDefine(l *lexer.Lexer) error {
	nameTok, matched, err := l.Token(token.Ident, lexer.Next)
	if err != nil {
		return err
	}
	if !matched {
		return xerr.Make(ErrBadDirective, "%s:%d: expected symbol name", l.File(), l.Line())
	}
	width, err := parseWidthSuffix(l)
	if err != nil {
		return err
	}
	if _, matched, err := l.Token(token.Equals, lexer.Next); err != nil {
		return err
	} else if !matched {
		return xerr.Make(ErrBadDirective, "%s:%d: expected '='", l.File(), l.Line())
	}
	value, err := c.evalDefineValue(l)
	if err != nil {
		return err
	}
	if c.Pass != 0 {
		return nil
	}
	return c.Symbols.Add(symtab.Symbol{Name: nameTok.Lexeme, Kind: symtab.Constant, Value: value, Width: width})
}

// doExtern implements ".extern NAME[.wNN]".
func (c *Context) doExtern(l *lexer.Lexer) error {
	nameTok, matched, err := l.Token(token.Ident, lexer.Next)
	if err != nil {
		return err
	}
	if !matched {
		return xerr.Make(ErrBadDirective, "%s:%d: expected symbol name", l.File(), l.Line())
	}
	width, err := parseWidthSuffix(l)
	if err != nil {
		return err
	}
	if c.Pass != 0 {
		return nil
	}
	return c.Symbols.Add(symtab.Symbol{Name: nameTok.Lexeme, Kind: symtab.Extern, Width: width})
}

// doExport implements ".export NAME".
func (c *Context) doExport(l *lexer.Lexer) error {
	nameTok, matched, err := l.Token(token.Ident, lexer.Next)
	if err != nil {
		return err
	}
	if !matched {
		return xerr.Make(ErrBadDirective, "%s:%d: expected symbol name", l.File(), l.Line())
	}
	if c.Pass != 0 {
		return nil
	}
	warning, err := c.Symbols.Export(nameTok.Lexeme)
	if err != nil {
		return err
	}
	if warning != nil {
		c.Warn("%s", warning)
	}
	return nil
}

// doSection implements ".section \"NAME\" [NOLOAD]". It runs identically
// on both passes: pass 0 pushes the same bytes into Current as pass 1, so
// both passes must track the selected section.
func (c *Context) doSection(l *lexer.Lexer) error {
	nameTok, matched, err := l.Token(token.String, lexer.Next)
	if err != nil {
		return err
	}
	if !matched {
		return xerr.Make(ErrBadDirective, "%s:%d: expected section name string", l.File(), l.Line())
	}
	noload := false
	if tok, matched, err := l.Token(token.Ident, lexer.Next); err != nil {
		return err
	} else if matched {
		if tok.Lexeme != "NOLOAD" {
			return xerr.Make(ErrBadDirective, "%s:%d: expected NOLOAD, got %q", l.File(), l.Line(), tok.Lexeme)
		}
		noload = true
	}
	return c.selectSection(nameTok.StrValue, noload)
}

// doDbendian implements ".dbendian \"big\"|\"little\"".
func (c *Context) doDbendian(l *lexer.Lexer) error {
	tok, matched, err := l.Token(token.String, lexer.Next)
	if err != nil {
		return err
	}
	if !matched {
		return xerr.Make(ErrBadDirective, "%s:%d: expected \"big\" or \"little\"", l.File(), l.Line())
	}
	switch tok.StrValue {
	case "big":
		c.Endian = Big
	case "little":
		c.Endian = Little
	default:
		return xerr.Make(ErrBadDirective, "%s:%d: unknown endianness %q", l.File(), l.Line(), tok.StrValue)
	}
	return nil
}

// doInclude implements ".include \"PATH\"", recursing into the named file
// under the same pass.
func (c *Context) doInclude(l *lexer.Lexer) error {
	tok, matched, err := l.Token(token.String, lexer.Next)
	if err != nil {
		return err
	}
	if !matched {
		return xerr.Make(ErrBadDirective, "%s:%d: expected file path string", l.File(), l.Line())
	}
	if c.includeDepth >= maxIncludeDepth {
		return xerr.Make(ErrIncludeDepth, "%q", tok.StrValue)
	}

	f, err := os.Open(tok.StrValue)
	if err != nil {
		return err
	}
	defer f.Close()

	c.includeDepth++
	defer func() { c.includeDepth-- }()

	return c.runLexer(lexer.New(f, tok.StrValue))
}

// formatNumber renders v the way ".print" would under the current
// NumberFormat (spec.md §4.5's "%", "%$", "%%", "%~" format switches).
func formatNumber(v int64, format NumberFormat) string {
	switch format {
	case Hex:
		return fmt.Sprintf("%X", v)
	case Binary:
		return fmt.Sprintf("%b", v)
	case Octal:
		return fmt.Sprintf("%o", v)
	default:
		return fmt.Sprintf("%d", v)
	}
}

// doPrint implements ".print ARG[, ARG...]". A string argument equal to
// one of "%", "%$", "%%", "%~" switches the active NumberFormat instead of
// printing; any other string prints verbatim, and a bare expression prints
// rendered in the current format. Output only happens on pass 1, after
// forward references have resolved, and is suppressed entirely by -p
// (--noprint).
func (c *Context) doPrint(l *lexer.Lexer) error {
	for {
		handled, err := c.tryPrintArg(l)
		if err != nil {
			return err
		}
		if !handled {
			return nil
		}
		if _, matched, err := l.Token(token.Comma, lexer.Next); err != nil {
			return err
		} else if !matched {
			return nil
		}
	}
}

func (c *Context) tryPrintArg(l *lexer.Lexer) (bool, error) {
	if tok, matched, err := l.Token(token.String, lexer.Next); err != nil {
		return false, err
	} else if matched {
		switch tok.StrValue {
		case "%":
			c.NumberFormat = Decimal
		case "%$":
			c.NumberFormat = Hex
		case "%%":
			c.NumberFormat = Binary
		case "%~":
			c.NumberFormat = Octal
		default:
			if c.Pass == 1 && !c.NoPrint {
				fmt.Fprint(c.PrintOut, tok.StrValue)
			}
		}
		return true, nil
	}

	v, ok, err := c.tryEvalValue(l)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if c.Pass == 1 && !c.NoPrint {
		fmt.Fprint(c.PrintOut, formatNumber(v, c.NumberFormat))
	}
	return true, nil
}

// doFill implements ".fill COUNT, VALUE", appending COUNT repetitions of
// the low byte of VALUE to the current section.
func (c *Context) doFill(l *lexer.Lexer) error {
	if err := c.ensureCurrentSection(); err != nil {
		return err
	}
	count, err := c.evalDefineValue(l)
	if err != nil {
		return err
	}
	if _, matched, err := l.Token(token.Comma, lexer.Next); err != nil {
		return err
	} else if !matched {
		return xerr.Make(ErrBadDirective, "%s:%d: expected ','", l.File(), l.Line())
	}
	value, err := c.evalDefineValue(l)
	if err != nil {
		return err
	}
	if count < 0 {
		return xerr.Make(ErrBadDirective, "%s:%d: negative fill count", l.File(), l.Line())
	}
	buf := make([]byte, count)
	for i := range buf {
		buf[i] = byte(value)
	}
	c.Current.PushData(buf)
	return nil
}

// dataValueOrSymbol mirrors isa's operand-parsing fallback chain for a
// directive data item: a bracketed expression, a bare symbol, or a bare
// number.
func dataValueOrSymbol(l *lexer.Lexer, tab *symtab.Table) (value int64, symbol string, hasSymbol bool, err error) {
	v, evalErr := expr.Eval(l, tab)
	if evalErr == nil {
		return v, "", false, nil
	}
	if !errors.Is(evalErr, expr.ErrMissingBrace) {
		return 0, "", false, evalErr
	}
	if tok, matched, terr := l.Token(token.Ident, lexer.Next); terr != nil {
		return 0, "", false, terr
	} else if matched {
		return 0, tok.Lexeme, true, nil
	}
	if tok, matched, terr := l.Token(token.Int, lexer.Next); terr != nil {
		return 0, "", false, terr
	} else if matched {
		return tok.IntValue, "", false, nil
	}
	return 0, "", false, xerr.Make(ErrBadDirective, "%s:%d: expected expression, symbol, or number", l.File(), l.Line())
}

func encodeDataValue(value int64, width int, endian Endian) []byte {
	buf := make([]byte, width)
	v := uint64(value)
	if width == 1 {
		// A single byte has no byte order; .dbendian is a no-op here.
		buf[0] = byte(v)
		return buf
	}
	if endian == Big {
		for i := width - 1; i >= 0; i-- {
			buf[i] = byte(v)
			v >>= 8
		}
		return buf
	}
	for i := 0; i < width; i++ {
		buf[i] = byte(v)
		v >>= 8
	}
	return buf
}

// doData implements ".d8"/".d16"/".d24"/".d32"/".d64": a comma-separated
// list of values, each either a resolved numeric literal or a symbol
// reference — which always becomes an absolute relocation, even when the
// symbol happens to be a constant already known at assembly time, mirroring
// how the "ld A, SZ" scenario relocates against a w16 constant rather than
// folding its value in directly (spec.md §8 scenario 4) — or, for ".d8"
// only, a string (NUL-terminated) or char literal.
func (c *Context) doData(l *lexer.Lexer, width int) error {
	if err := c.ensureCurrentSection(); err != nil {
		return err
	}

	for first := true; ; first = false {
		if !first {
			if _, matched, err := l.Token(token.Comma, lexer.Next); err != nil {
				return err
			} else if !matched {
				return nil
			}
		}

		if width == 1 {
			if tok, matched, err := l.Token(token.String, lexer.Next); err != nil {
				return err
			} else if matched {
				b := append([]byte(tok.StrValue), 0)
				c.Current.PushData(b)
				continue
			}
			if tok, matched, err := l.Token(token.Char, lexer.Next); err != nil {
				return err
			} else if matched {
				c.Current.PushData([]byte{tok.CharValue})
				continue
			}
		}

		value, symbol, hasSymbol, err := dataValueOrSymbol(l, c.Symbols)
		if err != nil {
			return err
		}
		if !hasSymbol {
			c.Current.PushData(encodeDataValue(value, width, c.Endian))
			continue
		}
		offset := c.Current.Length
		c.Current.PushData(make([]byte, width))
		c.Relocs.Add(reloc.Relocation{Kind: reloc.Absolute, Section: c.Current.Name, Symbol: symbol, Offset: offset, Length: width})
	}
}
