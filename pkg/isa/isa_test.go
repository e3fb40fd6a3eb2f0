package isa_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sodiumlight/stm8tc/pkg/isa"
	"github.com/sodiumlight/stm8tc/pkg/lexer"
	"github.com/sodiumlight/stm8tc/pkg/reloc"
	"github.com/sodiumlight/stm8tc/pkg/symtab"
)

func TestEncodeNoOperand(t *testing.T) {
	b, err := isa.EncodeNoOperand("nop")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x9D}, b)

	b, err = isa.EncodeNoOperand("ret")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x81}, b)

	_, err = isa.EncodeNoOperand("bogus")
	require.Error(t, err)
}

// Declared width selects the row: a symbol declared width
// w16 forces the LONGMEM row even though a bare numeric operand of the
// same magnitude could also have matched SHORTMEM.
func TestUniversalForcesDeclaredWidth(t *testing.T) {
	args := []isa.Arg{
		{Kind: isa.ArgA},
		{Kind: isa.ArgLongMem, Symbol: "SZ", HasSymbol: true},
	}
	out, fixups, err := isa.EncodeUniversal("ld", args)
	require.NoError(t, err)
	require.Equal(t, []byte{0xC6, 0, 0}, out)
	require.Len(t, fixups, 1)
	assert.Equal(t, 1, fixups[0].Offset)
	assert.Equal(t, 2, fixups[0].Length)
	assert.Equal(t, "SZ", fixups[0].Symbol)
	assert.Equal(t, reloc.Absolute, fixups[0].Kind)
}

func TestUniversalShortMemResolved(t *testing.T) {
	out, fixups, err := isa.EncodeUniversal("ld", []isa.Arg{{Kind: isa.ArgA}, {Kind: isa.ArgShortMem, Value: 0x40}})
	require.NoError(t, err)
	assert.Equal(t, []byte{0xB6, 0x40}, out)
	assert.Empty(t, fixups)
}

func TestUniversalYVariantAddsPrebyte(t *testing.T) {
	out, _, err := isa.EncodeUniversal("add", []isa.Arg{{Kind: isa.ArgA}, {Kind: isa.ArgIndShortY, Value: 3}})
	require.NoError(t, err)
	assert.Equal(t, []byte{isa.Prebyte90, 0xEB, 3}, out)
}

func TestUniversalCheckLongWidensCallTarget(t *testing.T) {
	// CALL has no SHORTMEM row; a small numeric target must still widen
	// to the LONGMEM encoding.
	out, _, err := isa.EncodeUniversal("call", []isa.Arg{{Kind: isa.ArgShortMem, Value: 0x20}})
	require.NoError(t, err)
	assert.Equal(t, []byte{0xCD, 0x00, 0x20}, out)
}

func TestUniversalNoMatchingRowIsError(t *testing.T) {
	_, _, err := isa.EncodeUniversal("ld", []isa.Arg{{Kind: isa.ArgCC}, {Kind: isa.ArgByte, Value: 1}})
	require.Error(t, err)
}

func TestCallfLongptrKeepsPixPrebyte(t *testing.T) {
	out, _, err := isa.EncodeUniversal("callf", []isa.Arg{{Kind: isa.ArgPtrLong, Value: 0x1234}})
	require.NoError(t, err)
	assert.Equal(t, []byte{isa.Prebyte92, 0x8D, 0x12, 0x34}, out)
}

func TestJumpRelativeResolvedDisplacement(t *testing.T) {
	out, fx, err := isa.EncodeJumpRelative("jra", isa.Arg{Value: 10})
	require.NoError(t, err)
	require.Nil(t, fx)
	assert.Equal(t, []byte{0x20, 8}, out) // 10 - len(2) == 8
}

func TestJumpRelativeOutOfRangeIsError(t *testing.T) {
	_, _, err := isa.EncodeJumpRelative("jra", isa.Arg{Value: 200})
	require.Error(t, err)
}

func TestJumpRelativeForwardSymbolProducesRelativeFixup(t *testing.T) {
	out, fx, err := isa.EncodeJumpRelative("jreq", isa.Arg{Symbol: "LOOP", HasSymbol: true})
	require.NoError(t, err)
	require.NotNil(t, fx)
	assert.Equal(t, []byte{0x27, 0}, out)
	assert.Equal(t, reloc.Relative, fx.Kind)
	assert.EqualValues(t, 1, fx.Adjust)
	assert.Equal(t, "LOOP", fx.Symbol)
}

func TestBitAddressedSetAndTest(t *testing.T) {
	out, fixups, err := isa.EncodeBitAddressed("bset", isa.Arg{Kind: isa.ArgShortMem, Value: 0x10}, 3, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x10 + 3*2, 0x10}, out)
	assert.Empty(t, fixups)

	target := isa.Arg{Value: 0}
	out, _, err = isa.EncodeBitAddressed("btjt", isa.Arg{Kind: isa.ArgShortMem, Value: 0x10}, 0, &target)
	require.NoError(t, err)
	assert.Equal(t, byte(0x00), out[0])
	assert.Equal(t, byte(0x10), out[1])

	_, _, err = isa.EncodeBitAddressed("bset", isa.Arg{Kind: isa.ArgShortMem, Value: 0x10}, 9, nil)
	require.Error(t, err)
}

func TestBitAddressedBtjfInvertsSense(t *testing.T) {
	target := isa.Arg{Value: 0}
	out, _, err := isa.EncodeBitAddressed("btjf", isa.Arg{Kind: isa.ArgShortMem, Value: 0x10}, 2, &target)
	require.NoError(t, err)
	assert.Equal(t, byte(0x01+2*2), out[0])
}

func TestMovShortToShort(t *testing.T) {
	out, _, err := isa.EncodeMov(isa.Arg{Kind: isa.ArgShortMem, Value: 0x20}, isa.Arg{Kind: isa.ArgShortMem, Value: 0x10})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x45, 0x10, 0x20}, out)
}

func TestMovImmediateToLong(t *testing.T) {
	out, _, err := isa.EncodeMov(isa.Arg{Kind: isa.ArgLongMem, Value: 0x1000}, isa.Arg{Kind: isa.ArgByte, Value: 7})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x35, 7, 0x10, 0x00}, out)
}

func TestRegisterLookupCaseSensitive(t *testing.T) {
	_, ok := isa.LookupRegister("a")
	assert.False(t, ok)
	reg, ok := isa.LookupRegister("A")
	require.True(t, ok)
	assert.Equal(t, isa.RegA, reg)
}

// End-to-end scenario 4 (spec.md §8): a w16-declared symbol forces the
// LONGMEM encoding of "ld A, SZ" all the way from operand parsing through
// the encoder, with the byte-swapped relocation anchored past the opcode.
func TestParseThenEncodeForcesDeclaredWidth(t *testing.T) {
	tab := symtab.New()
	require.NoError(t, tab.Add(symtab.Symbol{Name: "SZ", Kind: symtab.Constant, Width: symtab.W16, Value: 0x1000}))

	l := lexer.New(strings.NewReader("SZ"), "t.s")
	arg, err := isa.ParseArg(l, tab)
	require.NoError(t, err)
	require.Equal(t, isa.ArgLongMem, arg.Kind)

	out, fixups, err := isa.EncodeUniversal("ld", []isa.Arg{{Kind: isa.ArgA}, arg})
	require.NoError(t, err)
	assert.Equal(t, []byte{0xC6, 0, 0}, out)
	require.Len(t, fixups, 1)
	assert.Equal(t, 1, fixups[0].Offset)
	assert.Equal(t, 2, fixups[0].Length)
}
