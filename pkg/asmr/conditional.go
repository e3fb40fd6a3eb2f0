package asmr

import (
	"github.com/sodiumlight/stm8tc/pkg/expr"
	"github.com/sodiumlight/stm8tc/pkg/lexer"
	"github.com/sodiumlight/stm8tc/pkg/token"
	"github.com/sodiumlight/stm8tc/pkg/xerr"
)

// condStack holds, per open ".if"/.endif nesting level, whether that
// level's body executes. A line is suppressed as soon as any ancestor
// level is false (spec.md §4.5, §9 — reimplemented against real tokens
// rather than the source tool's textual 3-character prefix match).
func (c *Context) suppressed() bool {
	for _, active := range c.condStack {
		if !active {
			return true
		}
	}
	return false
}

func (c *Context) pushConditional(active bool) {
	c.condStack = append(c.condStack, active)
}

func (c *Context) popConditional() error {
	if len(c.condStack) == 0 {
		return xerr.Make(ErrUnmatchedEndif, "%s", "no open .if")
	}
	c.condStack = c.condStack[:len(c.condStack)-1]
	return nil
}

// handleSuppressedLine is the only parsing done while inside a false
// conditional body: recognise .if family / .endif to keep nesting in
// sync, and discard everything else a whole line at a time.
func (c *Context) handleSuppressedLine(l *lexer.Lexer) error {
	if _, matched, err := l.Token(token.Dot, lexer.Next); err != nil {
		return err
	} else if matched {
		nameTok, matched, err := l.Token(token.Ident, lexer.Next)
		if err != nil {
			return err
		}
		if !matched {
			return l.SkipLine()
		}
		switch nameTok.Lexeme {
		case "if", "ifdef", "ifndef", "ifeq", "ifneq":
			if err := l.SkipLine(); err != nil {
				return err
			}
			c.pushConditional(false)
			return nil
		case "endif":
			return c.popConditional()
		default:
			return l.SkipLine()
		}
	}
	return l.SkipLine()
}

func (c *Context) doIf(l *lexer.Lexer) error {
	v, err := expr.Eval(l, c.Symbols)
	if err != nil {
		return err
	}
	c.pushConditional(v != 0)
	return nil
}

func (c *Context) doIfdefIfndef(l *lexer.Lexer, negate bool) error {
	tok, matched, err := l.Token(token.Ident, lexer.Next)
	if err != nil {
		return err
	}
	if !matched {
		return xerr.Make(ErrBadDirective, "%s:%d: expected symbol name", l.File(), l.Line())
	}
	_, ok := c.Symbols.Find(tok.Lexeme)
	if negate {
		ok = !ok
	}
	c.pushConditional(ok)
	return nil
}

func (c *Context) doIfCompare(l *lexer.Lexer, negate bool) error {
	lhs, err := c.evalDefineValue(l)
	if err != nil {
		return err
	}
	rhs, err := c.evalDefineValue(l)
	if err != nil {
		return err
	}
	eq := lhs == rhs
	if negate {
		eq = !eq
	}
	c.pushConditional(eq)
	return nil
}
