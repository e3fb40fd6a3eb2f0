package asmr

import (
	"github.com/sodiumlight/stm8tc/pkg/isa"
	"github.com/sodiumlight/stm8tc/pkg/lexer"
	"github.com/sodiumlight/stm8tc/pkg/reloc"
	"github.com/sodiumlight/stm8tc/pkg/symtab"
	"github.com/sodiumlight/stm8tc/pkg/token"
	"github.com/sodiumlight/stm8tc/pkg/xerr"
)

// resolveRelative folds a same-section label reference into an immediate
// displacement target on pass 1, where every label's section-relative
// offset is already final (spec.md §8 scenario 5). The folded Value is the
// label's distance from the start of the instruction being encoded, which
// is what the isa encoders subtract the instruction length from. A reference to an
// extern, a label in another section, or anything still unresolved is left
// symbolic so the encoder defers it to a relative relocation instead.
func (c *Context) resolveRelative(arg isa.Arg) isa.Arg {
	if !arg.HasSymbol || c.Pass != 1 {
		return arg
	}
	sym, ok := c.Symbols.Find(arg.Symbol)
	if !ok || sym.Kind != symtab.Label || c.Current == nil || sym.Section != c.Current.Name {
		return arg
	}
	return isa.Arg{Kind: arg.Kind, Value: sym.Value - int64(c.Current.Length)}
}

// dispatchInstructionLine handles one line's worth of "|"-separated
// instructions (spec.md §4.5 allows several mnemonics on one physical
// line, each still contributing its own bytes and relocations).
func (c *Context) dispatchInstructionLine(l *lexer.Lexer, firstMnemonic string) error {
	mnemonic := firstMnemonic
	for {
		if err := c.dispatchOneInstruction(l, mnemonic); err != nil {
			return err
		}
		if _, matched, err := l.Token(token.Pipe, lexer.Next); err != nil {
			return err
		} else if !matched {
			return nil
		}
		tok, matched, err := l.Token(token.Ident, lexer.Next)
		if err != nil {
			return err
		}
		if !matched {
			return xerr.Make(ErrBadInstruction, "%s:%d: expected mnemonic after '|'", l.File(), l.Line())
		}
		mnemonic = tok.Lexeme
	}
}

func (c *Context) dispatchOneInstruction(l *lexer.Lexer, mnemonic string) error {
	if _, ok := isa.NoOperandTable[mnemonic]; ok {
		b, err := isa.EncodeNoOperand(mnemonic)
		if err != nil {
			return err
		}
		return c.emit(b, nil)
	}
	if _, ok := isa.JumpRelativeTable[mnemonic]; ok {
		return c.dispatchJumpRelative(l, mnemonic)
	}
	if _, ok := isa.BitAddressedTable[mnemonic]; ok {
		return c.dispatchBitAddressed(l, mnemonic)
	}
	if mnemonic == "mov" {
		return c.dispatchMov(l)
	}
	if _, ok := isa.UniversalTable[mnemonic]; ok {
		return c.dispatchUniversal(l, mnemonic)
	}
	return xerr.Make(isa.ErrUnknownMnemonic, "%q", mnemonic)
}

func (c *Context) dispatchJumpRelative(l *lexer.Lexer, mnemonic string) error {
	target, err := isa.ParseArg(l, c.Symbols)
	if err != nil {
		return err
	}
	if err := c.ensureCurrentSection(); err != nil {
		return err
	}
	target = c.resolveRelative(target)
	b, fx, err := isa.EncodeJumpRelative(mnemonic, target)
	if err != nil {
		return err
	}
	return c.emitOne(b, fx)
}

func (c *Context) dispatchBitAddressed(l *lexer.Lexer, mnemonic string) error {
	mem, err := isa.ParseArg(l, c.Symbols)
	if err != nil {
		return err
	}
	if _, matched, err := l.Token(token.Comma, lexer.Next); err != nil {
		return err
	} else if !matched {
		return xerr.Make(ErrBadInstruction, "%s:%d: %q requires a bit operand", l.File(), l.Line(), mnemonic)
	}
	bit, err := c.evalDefineValue(l)
	if err != nil {
		return err
	}

	row := isa.BitAddressedTable[mnemonic]
	var jumpTarget *isa.Arg
	if row.HasJump {
		if _, matched, err := l.Token(token.Comma, lexer.Next); err != nil {
			return err
		} else if !matched {
			return xerr.Make(ErrBadInstruction, "%s:%d: %q requires a branch target", l.File(), l.Line(), mnemonic)
		}
		arg, err := isa.ParseArg(l, c.Symbols)
		if err != nil {
			return err
		}
		if err := c.ensureCurrentSection(); err != nil {
			return err
		}
		arg = c.resolveRelative(arg)
		jumpTarget = &arg
	}

	b, fxs, err := isa.EncodeBitAddressed(mnemonic, mem, bit, jumpTarget)
	if err != nil {
		return err
	}
	return c.emit(b, fxs)
}

func (c *Context) dispatchMov(l *lexer.Lexer) error {
	dst, err := isa.ParseArg(l, c.Symbols)
	if err != nil {
		return err
	}
	if _, matched, err := l.Token(token.Comma, lexer.Next); err != nil {
		return err
	} else if !matched {
		return xerr.Make(ErrBadInstruction, "%s:%d: mov requires two operands", l.File(), l.Line())
	}
	src, err := isa.ParseArg(l, c.Symbols)
	if err != nil {
		return err
	}
	b, fxs, err := isa.EncodeMov(dst, src)
	if err != nil {
		return err
	}
	return c.emit(b, fxs)
}

func (c *Context) dispatchUniversal(l *lexer.Lexer, mnemonic string) error {
	arg0, err := isa.ParseArg(l, c.Symbols)
	if err != nil {
		return err
	}
	args := []isa.Arg{arg0}
	if _, matched, err := l.Token(token.Comma, lexer.Next); err != nil {
		return err
	} else if matched {
		arg1, err := isa.ParseArg(l, c.Symbols)
		if err != nil {
			return err
		}
		args = append(args, arg1)
	}
	b, fxs, err := isa.EncodeUniversal(mnemonic, args)
	if err != nil {
		return err
	}
	return c.emit(b, fxs)
}

// emit appends an instruction's bytes to the current section and records
// any pending Fixups as relocations anchored at their absolute offsets.
func (c *Context) emit(b []byte, fxs []isa.Fixup) error {
	if err := c.ensureCurrentSection(); err != nil {
		return err
	}
	offset := c.Current.Length
	c.Current.PushData(b)
	for _, fx := range fxs {
		c.Relocs.Add(reloc.Relocation{
			Kind:    fx.Kind,
			Section: c.Current.Name,
			Symbol:  fx.Symbol,
			Offset:  offset + fx.Offset,
			Length:  fx.Length,
			Adjust:  fx.Adjust,
		})
	}
	return nil
}

func (c *Context) emitOne(b []byte, fx *isa.Fixup) error {
	if fx == nil {
		return c.emit(b, nil)
	}
	return c.emit(b, []isa.Fixup{*fx})
}
