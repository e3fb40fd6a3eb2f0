package link

import (
	"errors"
	"fmt"
	"io"

	"github.com/sodiumlight/stm8tc/pkg/expr"
	"github.com/sodiumlight/stm8tc/pkg/lexer"
	"github.com/sodiumlight/stm8tc/pkg/symtab"
	"github.com/sodiumlight/stm8tc/pkg/token"
	"github.com/sodiumlight/stm8tc/pkg/xerr"
)

// NumberFormat controls how a script's ".print" renders an integer
// argument, mirroring asmr.NumberFormat for the same "%", "%$", "%%", "%~"
// format switches (spec.md §4.5); kept as its own small type since a
// linker script and an assembly unit are otherwise unrelated inputs.
type NumberFormat int

const (
	Decimal NumberFormat = iota
	Hex
	Binary
	Octal
)

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

// RunScript executes a linker script (spec.md §4.7): a sequence of
// "NAME = EXPR|NUMBER|sizeof(\"SECTION\")" constant definitions and
// ".print"/".export"/".fill"/".place" directives, run top to bottom with
// no passes and no conditionals. lk.Script must already exist (Link
// pre-populates it with -D defines before calling RunScript).
func (lk *Linker) RunScript(r io.Reader, name string) error {
	l := lexer.New(r, name)
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
		if err := lk.scriptLine(l); err != nil {
			return err
		}
	}
}

func (lk *Linker) scriptLine(l *lexer.Lexer) error {
	if tok, matched, err := l.Token(token.Ident, lexer.Next); err != nil {
		return err
	} else if matched {
		if _, matched, err := l.Token(token.Equals, lexer.Next); err != nil {
			return err
		} else if !matched {
			return xerr.Make(ErrBadScript, "%s:%d: expected '=' after %q", l.File(), l.Line(), tok.Lexeme)
		}
		value, err := lk.requireScriptValue(l)
		if err != nil {
			return err
		}
		return lk.Script.Add(symtab.Symbol{Name: tok.Lexeme, Kind: symtab.Constant, Value: value, Width: symtab.W8})
	}

	if _, matched, err := l.Token(token.Dot, lexer.Next); err != nil {
		return err
	} else if matched {
		return lk.dispatchScriptDirective(l)
	}

	return xerr.Make(ErrBadScript, "%s:%d: expected 'NAME =' or a '.' directive", l.File(), l.Line())
}

func (lk *Linker) dispatchScriptDirective(l *lexer.Lexer) error {
	nameTok, matched, err := l.Token(token.Ident, lexer.Next)
	if err != nil {
		return err
	}
	if !matched {
		return xerr.Make(ErrBadScript, "%s:%d: expected directive name after '.'", l.File(), l.Line())
	}

	switch nameTok.Lexeme {
	case "print":
		return lk.doScriptPrint(l)
	case "export":
		return lk.doScriptExport(l)
	case "fill":
		return lk.doScriptFill(l)
	case "place":
		return lk.doScriptPlace(l)
	default:
		return xerr.Make(ErrBadScript, "%s:%d: unknown directive %q", l.File(), l.Line(), nameTok.Lexeme)
	}
}

// scriptValue consumes one of a bracketed expression, "sizeof(\"SECTION\")",
// a bare script-constant name, or a bare integer. ok is false (with a nil
// error) when none of those productions match at all.
func (lk *Linker) scriptValue(l *lexer.Lexer) (value int64, ok bool, err error) {
	v, evalErr := expr.Eval(l, lk.Script)
	if evalErr == nil {
		return v, true, nil
	}
	if !errors.Is(evalErr, expr.ErrMissingBrace) {
		return 0, false, evalErr
	}

	if tok, matched, terr := l.Token(token.Ident, lexer.Next); terr != nil {
		return 0, false, terr
	} else if matched {
		if tok.Lexeme == "sizeof" {
			if v, matched, terr := lk.trySizeof(l); terr != nil {
				return 0, false, terr
			} else if matched {
				return v, true, nil
			}
		}
		sym, found := lk.Script.Find(tok.Lexeme)
		if !found {
			return 0, false, xerr.Make(symtab.ErrUndefined, "%q", tok.Lexeme)
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

// trySizeof consumes "(\"SECTION\")" following an already-matched "sizeof"
// identifier, returning the named section's current length in bytes.
func (lk *Linker) trySizeof(l *lexer.Lexer) (int64, bool, error) {
	if _, matched, err := l.Token(token.LParen, lexer.Next); err != nil {
		return 0, false, err
	} else if !matched {
		return 0, false, nil
	}
	nameTok, matched, err := l.Token(token.String, lexer.Next)
	if err != nil {
		return 0, false, err
	}
	if !matched {
		return 0, false, xerr.Make(ErrBadScript, "%s:%d: expected section name string after 'sizeof('", l.File(), l.Line())
	}
	if _, matched, err := l.Token(token.RParen, lexer.Next); err != nil {
		return 0, false, err
	} else if !matched {
		return 0, false, xerr.Make(ErrBadScript, "%s:%d: expected ')'", l.File(), l.Line())
	}
	sec, ok := lk.Sections.Get(nameTok.StrValue)
	if !ok {
		return 0, false, xerr.Make(ErrUnknownSection, "%q", nameTok.StrValue)
	}
	return int64(sec.Length), true, nil
}

func (lk *Linker) requireScriptValue(l *lexer.Lexer) (int64, error) {
	v, ok, err := lk.scriptValue(l)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, xerr.Make(ErrBadScript, "%s:%d: expected expression, symbol, sizeof(...), or number", l.File(), l.Line())
	}
	return v, nil
}

// doScriptPrint implements ".print ARG[, ARG...]", identical in shape to
// the assembler's own ".print" (spec.md §4.5) but evaluating against the
// linker script's own constant table.
func (lk *Linker) doScriptPrint(l *lexer.Lexer) error {
	for {
		handled, err := lk.tryScriptPrintArg(l)
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

func (lk *Linker) tryScriptPrintArg(l *lexer.Lexer) (bool, error) {
	if tok, matched, err := l.Token(token.String, lexer.Next); err != nil {
		return false, err
	} else if matched {
		switch tok.StrValue {
		case "%":
			lk.NumberFormat = Decimal
		case "%$":
			lk.NumberFormat = Hex
		case "%%":
			lk.NumberFormat = Binary
		case "%~":
			lk.NumberFormat = Octal
		default:
			if !lk.NoPrint {
				fmt.Fprint(lk.PrintOut, tok.StrValue)
			}
		}
		return true, nil
	}

	v, ok, err := lk.scriptValue(l)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if !lk.NoPrint {
		fmt.Fprint(lk.PrintOut, formatNumber(v, lk.NumberFormat))
	}
	return true, nil
}

// doScriptExport implements ".export NAME", marking an existing
// script-level constant visible the way a link map would surface it. A
// script constant carries no Kind==Label invariant the way an assembled
// symbol does, so this sets Export directly rather than going through
// symtab.Table.Export (which requires a label).
func (lk *Linker) doScriptExport(l *lexer.Lexer) error {
	nameTok, matched, err := l.Token(token.Ident, lexer.Next)
	if err != nil {
		return err
	}
	if !matched {
		return xerr.Make(ErrBadScript, "%s:%d: expected symbol name", l.File(), l.Line())
	}
	sym, found := lk.Script.Find(nameTok.Lexeme)
	if !found {
		return xerr.Make(symtab.ErrUndefined, "%q", nameTok.Lexeme)
	}
	sym.Export = true
	return nil
}

// doScriptFill implements ".fill \"SECTION\", COUNT, VALUE", appending
// COUNT repetitions of VALUE's low byte directly to the named output
// section (as opposed to the assembler's ".fill", which targets whatever
// section is currently selected).
func (lk *Linker) doScriptFill(l *lexer.Lexer) error {
	nameTok, matched, err := l.Token(token.String, lexer.Next)
	if err != nil {
		return err
	}
	if !matched {
		return xerr.Make(ErrBadScript, "%s:%d: expected section name string", l.File(), l.Line())
	}
	if _, matched, err := l.Token(token.Comma, lexer.Next); err != nil {
		return err
	} else if !matched {
		return xerr.Make(ErrBadScript, "%s:%d: expected ','", l.File(), l.Line())
	}
	count, err := lk.requireScriptValue(l)
	if err != nil {
		return err
	}
	if _, matched, err := l.Token(token.Comma, lexer.Next); err != nil {
		return err
	} else if !matched {
		return xerr.Make(ErrBadScript, "%s:%d: expected ','", l.File(), l.Line())
	}
	value, err := lk.requireScriptValue(l)
	if err != nil {
		return err
	}
	if count < 0 {
		return xerr.Make(ErrBadScript, "%s:%d: negative fill count", l.File(), l.Line())
	}

	sec, err := lk.Sections.Select(nameTok.StrValue, false)
	if err != nil {
		return err
	}
	buf := make([]byte, count)
	for i := range buf {
		buf[i] = byte(value)
	}
	sec.PushData(buf)
	return nil
}

// doScriptPlace implements
// ".place \"SECTION\" (NOLOAD|LMA_EXPR) VMA_EXPR", assigning the named
// section its final load and virtual addresses. NOLOAD marks a section as
// carrying no load image (a .bss-style VMA reservation); otherwise both an
// LMA and a VMA are recorded, which can differ for a ROM-to-RAM init copy.
// Placing the same section twice is fatal.
func (lk *Linker) doScriptPlace(l *lexer.Lexer) error {
	nameTok, matched, err := l.Token(token.String, lexer.Next)
	if err != nil {
		return err
	}
	if !matched {
		return xerr.Make(ErrBadScript, "%s:%d: expected section name string", l.File(), l.Line())
	}

	sec, ok := lk.Sections.Get(nameTok.StrValue)
	if !ok {
		sec, err = lk.Sections.Select(nameTok.StrValue, false)
		if err != nil {
			return err
		}
	}
	if sec.Placed {
		return xerr.Make(ErrDoublePlace, "%q", nameTok.StrValue)
	}

	noload := false
	var lmaValue int64
	if tok, matched, err := l.Token(token.Ident, lexer.Next); err != nil {
		return err
	} else if matched && tok.Lexeme == "NOLOAD" {
		noload = true
	} else if matched {
		sym, found := lk.Script.Find(tok.Lexeme)
		if !found {
			return xerr.Make(symtab.ErrUndefined, "%q", tok.Lexeme)
		}
		lmaValue = sym.Value
	} else {
		v, err := lk.requireScriptValue(l)
		if err != nil {
			return err
		}
		lmaValue = v
	}

	vmaValue, err := lk.requireScriptValue(l)
	if err != nil {
		return err
	}

	sec.Placed = true
	sec.VMA = uint32(vmaValue)
	if noload {
		sec.Noload = true
	} else {
		sec.LMA = uint32(lmaValue)
	}
	return nil
}
