// Package expr implements the bracketed constant-expression grammar of
// spec.md §4.2: two's-complement 64-bit signed arithmetic over a symbol
// table, with the precedence order (lowest first) |, ^, &, shift, additive,
// multiplicative, unary ~.
package expr

import (
	"errors"

	"github.com/sodiumlight/stm8tc/pkg/lexer"
	"github.com/sodiumlight/stm8tc/pkg/symtab"
	"github.com/sodiumlight/stm8tc/pkg/token"
	"github.com/sodiumlight/stm8tc/pkg/xerr"
)

var (
	ErrMissingBrace    = errors.New("expression must be delimited by { }")
	ErrUnexpectedToken = errors.New("unexpected token in expression")
	ErrNotAConstant    = errors.New("symbol is not usable in a constant expression")
	ErrUndefined       = errors.New("undefined symbol in expression")
	ErrStackOverflow   = errors.New("expression nesting too deep")
)

// maxDepth bounds recursion the way the original's explicit evaluation
// stack was limited to 1024 entries (spec.md §4.2).
const maxDepth = 1024

// Eval parses and evaluates one `{ ... }`-delimited expression from l,
// consuming both braces. Symbol lookups go through tab; a label or extern
// referenced inside an expression is a fatal error.
func Eval(l *lexer.Lexer, tab *symtab.Table) (int64, error) {
	if _, matched, err := l.Token(token.LBrace, lexer.Next); err != nil {
		return 0, err
	} else if !matched {
		return 0, xerr.Make(ErrMissingBrace, "%s:%d: expected '{'", l.File(), l.Line())
	}

	p := &parser{l: l, tab: tab}
	value, err := p.expr(0)
	if err != nil {
		return 0, err
	}

	if _, matched, err := l.Token(token.RBrace, lexer.Next); err != nil {
		return 0, err
	} else if !matched {
		return 0, xerr.Make(ErrMissingBrace, "%s:%d: expected '}'", l.File(), l.Line())
	}

	return value, nil
}

type parser struct {
	l   *lexer.Lexer
	tab *symtab.Table
}

func (p *parser) depthCheck(depth int) error {
	if depth > maxDepth {
		return xerr.Make(ErrStackOverflow, "%s:%d", p.l.File(), p.l.Line())
	}
	return nil
}

// expr implements EXPR → OR_OPD ('|' OR_OPD)*
func (p *parser) expr(depth int) (int64, error) {
	if err := p.depthCheck(depth); err != nil {
		return 0, err
	}
	v, err := p.orOpd(depth + 1)
	if err != nil {
		return 0, err
	}
	for {
		if _, matched, err := p.l.Token(token.Pipe, lexer.Next); err != nil {
			return 0, err
		} else if !matched {
			return v, nil
		}
		rhs, err := p.orOpd(depth + 1)
		if err != nil {
			return 0, err
		}
		v |= rhs
	}
}

// orOpd → XOR_OPD ('^' XOR_OPD)*
func (p *parser) orOpd(depth int) (int64, error) {
	v, err := p.xorOpd(depth)
	if err != nil {
		return 0, err
	}
	for {
		if _, matched, err := p.l.Token(token.Caret, lexer.Next); err != nil {
			return 0, err
		} else if !matched {
			return v, nil
		}
		rhs, err := p.xorOpd(depth)
		if err != nil {
			return 0, err
		}
		v ^= rhs
	}
}

// xorOpd → AND_OPD ('&' AND_OPD)*
func (p *parser) xorOpd(depth int) (int64, error) {
	v, err := p.andOpd(depth)
	if err != nil {
		return 0, err
	}
	for {
		if _, matched, err := p.l.Token(token.Amp, lexer.Next); err != nil {
			return 0, err
		} else if !matched {
			return v, nil
		}
		rhs, err := p.andOpd(depth)
		if err != nil {
			return 0, err
		}
		v &= rhs
	}
}

// andOpd → SHIFT_OPD (('<<'|'>>') SHIFT_OPD)*
func (p *parser) andOpd(depth int) (int64, error) {
	v, err := p.shiftOpd(depth)
	if err != nil {
		return 0, err
	}
	for {
		if _, matched, err := p.l.Token(token.Shl, lexer.Next); err != nil {
			return 0, err
		} else if matched {
			rhs, err := p.shiftOpd(depth)
			if err != nil {
				return 0, err
			}
			v <<= uint(rhs)
			continue
		}
		if _, matched, err := p.l.Token(token.Shr, lexer.Next); err != nil {
			return 0, err
		} else if matched {
			rhs, err := p.shiftOpd(depth)
			if err != nil {
				return 0, err
			}
			v >>= uint(rhs)
			continue
		}
		return v, nil
	}
}

// shiftOpd → ADD_OPD (('+'|'-') ADD_OPD)*
func (p *parser) shiftOpd(depth int) (int64, error) {
	v, err := p.addOpd(depth)
	if err != nil {
		return 0, err
	}
	for {
		if _, matched, err := p.l.Token(token.Plus, lexer.Next); err != nil {
			return 0, err
		} else if matched {
			rhs, err := p.addOpd(depth)
			if err != nil {
				return 0, err
			}
			v += rhs
			continue
		}
		if _, matched, err := p.l.Token(token.Minus, lexer.Next); err != nil {
			return 0, err
		} else if matched {
			rhs, err := p.addOpd(depth)
			if err != nil {
				return 0, err
			}
			v -= rhs
			continue
		}
		return v, nil
	}
}

// addOpd → MUL_OPD (('*'|'/'|'%') MUL_OPD)*
func (p *parser) addOpd(depth int) (int64, error) {
	v, err := p.mulOpd(depth)
	if err != nil {
		return 0, err
	}
	for {
		if _, matched, err := p.l.Token(token.Star, lexer.Next); err != nil {
			return 0, err
		} else if matched {
			rhs, err := p.mulOpd(depth)
			if err != nil {
				return 0, err
			}
			v *= rhs
			continue
		}
		if _, matched, err := p.l.Token(token.Slash, lexer.Next); err != nil {
			return 0, err
		} else if matched {
			rhs, err := p.mulOpd(depth)
			if err != nil {
				return 0, err
			}
			if rhs == 0 {
				return 0, xerr.Make(ErrUnexpectedToken, "%s:%d: division by zero", p.l.File(), p.l.Line())
			}
			v /= rhs // host truncation toward zero, per spec.md §4.2
			continue
		}
		if _, matched, err := p.l.Token(token.Percent, lexer.Next); err != nil {
			return 0, err
		} else if matched {
			rhs, err := p.mulOpd(depth)
			if err != nil {
				return 0, err
			}
			if rhs == 0 {
				return 0, xerr.Make(ErrUnexpectedToken, "%s:%d: modulo by zero", p.l.File(), p.l.Line())
			}
			v %= rhs
			continue
		}
		return v, nil
	}
}

// mulOpd → '~' MUL_OPD | NOT_OPD
func (p *parser) mulOpd(depth int) (int64, error) {
	if _, matched, err := p.l.Token(token.Tilde, lexer.Next); err != nil {
		return 0, err
	} else if matched {
		v, err := p.mulOpd(depth + 1)
		if err != nil {
			return 0, err
		}
		return ^v, nil
	}
	return p.notOpd(depth)
}

// notOpd → NUMBER | SYMBOL | '(' EXPR ')'
func (p *parser) notOpd(depth int) (int64, error) {
	if tok, matched, err := p.l.Token(token.Int, lexer.Next); err != nil {
		return 0, err
	} else if matched {
		return tok.IntValue, nil
	}

	if tok, matched, err := p.l.Token(token.Ident, lexer.Next); err != nil {
		return 0, err
	} else if matched {
		return p.resolveSymbol(tok.Lexeme)
	}

	if _, matched, err := p.l.Token(token.LParen, lexer.Next); err != nil {
		return 0, err
	} else if matched {
		v, err := p.expr(depth + 1)
		if err != nil {
			return 0, err
		}
		if _, matched, err := p.l.Token(token.RParen, lexer.Next); err != nil {
			return 0, err
		} else if !matched {
			return 0, xerr.Make(ErrUnexpectedToken, "%s:%d: expected ')'", p.l.File(), p.l.Line())
		}
		return v, nil
	}

	return 0, xerr.Make(ErrUnexpectedToken, "%s:%d: expected number, symbol, or '('", p.l.File(), p.l.Line())
}

func (p *parser) resolveSymbol(name string) (int64, error) {
	sym, ok := p.tab.Find(name)
	if !ok {
		return 0, xerr.Make(ErrUndefined, "%q", name)
	}
	if sym.Kind != symtab.Constant {
		return 0, xerr.Make(ErrNotAConstant, "%q (kind %v)", name, sym.Kind)
	}
	return sym.Value, nil
}
