package isa

import (
	"errors"

	"github.com/sodiumlight/stm8tc/pkg/expr"
	"github.com/sodiumlight/stm8tc/pkg/lexer"
	"github.com/sodiumlight/stm8tc/pkg/symtab"
	"github.com/sodiumlight/stm8tc/pkg/token"
	"github.com/sodiumlight/stm8tc/pkg/xerr"
)

var (
	ErrBadOperand    = errors.New("malformed operand")
	ErrUnknownSymbol = errors.New("operand references an undeclared symbol")
)

// Arg is one parsed instruction operand: a fixed register, or a
// memory/immediate/indirect form carrying either a resolved value or a
// forward symbol reference for the encoder to turn into a relocation.
type Arg struct {
	Kind      ArgKind
	Symbol    string // set for a symbolic operand; "" if Value is already final
	Value     int64
	HasSymbol bool
}

// widthOf infers the narrowest addressing width that holds value, the way
// the assembler picks SHORTMEM/LONGMEM/EXTMEM for a bare numeric address
// with no declared width attribute (spec.md §4.5).
func widthOf(value int64) symtab.Width {
	u := uint64(value)
	switch {
	case u <= 0xFF:
		return symtab.W8
	case u <= 0xFFFF:
		return symtab.W16
	default:
		return symtab.W24
	}
}

// parseValueOrSymbol consumes one of: a bracketed constant expression, a
// bare symbol name, or a bare numeric literal. It never matches register
// names — callers check LookupRegister first where a register competes.
func parseValueOrSymbol(l *lexer.Lexer, tab *symtab.Table) (value int64, symbol string, hasSymbol bool, err error) {
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

	return 0, "", false, xerr.Make(ErrBadOperand, "%s:%d: expected expression, symbol, or number", l.File(), l.Line())
}

// symbolWidth reports the declared width of a memory/immediate symbol
// reference, resolving "?"-relative label names through tab.
func symbolWidth(tab *symtab.Table, name string) symtab.Width {
	if sym, ok := tab.Find(name); ok {
		return sym.Width
	}
	return symtab.W16
}

func memKindForWidth(w symtab.Width) ArgKind {
	switch w {
	case symtab.W8:
		return ArgShortMem
	case symtab.W24:
		return ArgExtMem
	default:
		return ArgLongMem
	}
}

// ParseArg consumes one operand from l: "#" immediate, "[...]" pointer
// indirection (optionally post-indexed by ",X"/",Y"), "(...)" register
// indirection, a bare register name, or a bare memory address.
func ParseArg(l *lexer.Lexer, tab *symtab.Table) (Arg, error) {
	if _, matched, err := l.Token(token.Hash, lexer.Next); err != nil {
		return Arg{}, err
	} else if matched {
		return parseImmediate(l, tab)
	}

	if _, matched, err := l.Token(token.LBracket, lexer.Next); err != nil {
		return Arg{}, err
	} else if matched {
		return parsePointer(l, tab)
	}

	if _, matched, err := l.Token(token.LParen, lexer.Next); err != nil {
		return Arg{}, err
	} else if matched {
		return parseIndirect(l, tab)
	}

	if tok, matched, err := l.Token(token.Ident, lexer.Next); err != nil {
		return Arg{}, err
	} else if matched {
		if reg, ok := LookupRegister(tok.Lexeme); ok {
			return Arg{Kind: registerArgKinds[reg]}, nil
		}
		w := symbolWidth(tab, tok.Lexeme)
		return Arg{Kind: memKindForWidth(w), Symbol: tok.Lexeme, HasSymbol: true}, nil
	}

	if tok, matched, err := l.Token(token.Int, lexer.Next); err != nil {
		return Arg{}, err
	} else if matched {
		return Arg{Kind: memKindForWidth(widthOf(tok.IntValue)), Value: tok.IntValue}, nil
	}

	v, sym, hasSym, err := parseValueOrSymbol(l, tab)
	if err != nil {
		return Arg{}, err
	}
	if hasSym {
		w := symbolWidth(tab, sym)
		return Arg{Kind: memKindForWidth(w), Symbol: sym, HasSymbol: true}, nil
	}
	return Arg{Kind: memKindForWidth(widthOf(v)), Value: v}, nil
}

func parseImmediate(l *lexer.Lexer, tab *symtab.Table) (Arg, error) {
	v, sym, hasSym, err := parseValueOrSymbol(l, tab)
	if err != nil {
		return Arg{}, err
	}
	if hasSym {
		w := symbolWidth(tab, sym)
		kind := ArgByte
		if w != symtab.W8 {
			kind = ArgWord
		}
		return Arg{Kind: kind, Symbol: sym, HasSymbol: true}, nil
	}
	kind := ArgByte
	if widthOf(v) != symtab.W8 {
		kind = ArgWord
	}
	return Arg{Kind: kind, Value: v}, nil
}

func parsePointer(l *lexer.Lexer, tab *symtab.Table) (Arg, error) {
	v, sym, hasSym, err := parseValueOrSymbol(l, tab)
	if err != nil {
		return Arg{}, err
	}
	if _, matched, err := l.Token(token.RBracket, lexer.Next); err != nil {
		return Arg{}, err
	} else if !matched {
		return Arg{}, xerr.Make(ErrBadOperand, "%s:%d: expected ']'", l.File(), l.Line())
	}

	w := symtab.W16
	if hasSym {
		w = symbolWidth(tab, sym)
	} else {
		w = widthOf(v)
	}
	long := w != symtab.W8

	if _, matched, err := l.Token(token.Comma, lexer.Next); err != nil {
		return Arg{}, err
	} else if matched {
		idxTok, matched, err := l.Token(token.Ident, lexer.Next)
		if err != nil {
			return Arg{}, err
		}
		if !matched {
			return Arg{}, xerr.Make(ErrBadOperand, "%s:%d: expected X or Y after ','", l.File(), l.Line())
		}
		switch idxTok.Lexeme {
		case "X":
			if long {
				return Arg{Kind: ArgPtrLongX, Symbol: sym, Value: v, HasSymbol: hasSym}, nil
			}
			return Arg{Kind: ArgPtrShortX, Symbol: sym, Value: v, HasSymbol: hasSym}, nil
		case "Y":
			if long {
				return Arg{Kind: ArgPtrLongY, Symbol: sym, Value: v, HasSymbol: hasSym}, nil
			}
			return Arg{Kind: ArgPtrShortY, Symbol: sym, Value: v, HasSymbol: hasSym}, nil
		default:
			return Arg{}, xerr.Make(ErrBadOperand, "%s:%d: expected X or Y, got %q", l.File(), l.Line(), idxTok.Lexeme)
		}
	}

	if long {
		return Arg{Kind: ArgPtrLong, Symbol: sym, Value: v, HasSymbol: hasSym}, nil
	}
	return Arg{Kind: ArgPtrShort, Symbol: sym, Value: v, HasSymbol: hasSym}, nil
}

func parseIndirect(l *lexer.Lexer, tab *symtab.Table) (Arg, error) {
	if tok, matched, err := l.Token(token.Ident, lexer.Next); err != nil {
		return Arg{}, err
	} else if matched {
		if reg, ok := LookupRegister(tok.Lexeme); ok && (reg == RegX || reg == RegY) {
			if _, matched, err := l.Token(token.RParen, lexer.Next); err != nil {
				return Arg{}, err
			} else if matched {
				if reg == RegX {
					return Arg{Kind: ArgIndX}, nil
				}
				return Arg{Kind: ArgIndY}, nil
			}
			return Arg{}, xerr.Make(ErrBadOperand, "%s:%d: expected ')'", l.File(), l.Line())
		}
		return Arg{}, xerr.Make(ErrBadOperand, "%s:%d: expected offset expression or X/Y", l.File(), l.Line())
	}

	v, sym, hasSym, err := parseValueOrSymbol(l, tab)
	if err != nil {
		return Arg{}, err
	}
	if _, matched, err := l.Token(token.Comma, lexer.Next); err != nil {
		return Arg{}, err
	} else if !matched {
		return Arg{}, xerr.Make(ErrBadOperand, "%s:%d: expected ','", l.File(), l.Line())
	}
	idxTok, matched, err := l.Token(token.Ident, lexer.Next)
	if err != nil {
		return Arg{}, err
	}
	if !matched {
		return Arg{}, xerr.Make(ErrBadOperand, "%s:%d: expected X, Y, or SP", l.File(), l.Line())
	}
	if _, matched, err := l.Token(token.RParen, lexer.Next); err != nil {
		return Arg{}, err
	} else if !matched {
		return Arg{}, xerr.Make(ErrBadOperand, "%s:%d: expected ')'", l.File(), l.Line())
	}

	w := symtab.W16
	if hasSym {
		w = symbolWidth(tab, sym)
	} else {
		w = widthOf(v)
	}
	long := w != symtab.W8

	switch idxTok.Lexeme {
	case "X":
		if long {
			return Arg{Kind: ArgIndLongX, Symbol: sym, Value: v, HasSymbol: hasSym}, nil
		}
		return Arg{Kind: ArgIndShortX, Symbol: sym, Value: v, HasSymbol: hasSym}, nil
	case "Y":
		if long {
			return Arg{Kind: ArgIndLongY, Symbol: sym, Value: v, HasSymbol: hasSym}, nil
		}
		return Arg{Kind: ArgIndShortY, Symbol: sym, Value: v, HasSymbol: hasSym}, nil
	case "SP":
		return Arg{Kind: ArgIndShortSP, Symbol: sym, Value: v, HasSymbol: hasSym}, nil
	default:
		return Arg{}, xerr.Make(ErrBadOperand, "%s:%d: expected X, Y, or SP, got %q", l.File(), l.Line(), idxTok.Lexeme)
	}
}
