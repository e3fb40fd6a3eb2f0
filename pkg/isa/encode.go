package isa

import (
	"errors"

	"github.com/sodiumlight/stm8tc/pkg/reloc"
	"github.com/sodiumlight/stm8tc/pkg/utils"
	"github.com/sodiumlight/stm8tc/pkg/xerr"
)

var (
	ErrUnknownMnemonic   = errors.New("unknown mnemonic")
	ErrNoMatchingRow     = errors.New("no addressing-mode encoding for this operand combination")
	ErrWrongOperandCount = errors.New("wrong number of operands")
	ErrBitOutOfRange     = errors.New("bit number must be 0-7")
)

// Fixup describes one byte range within an encoded instruction that still
// needs a relocation once the target symbol's value is known. Offset is
// relative to the start of the returned instruction bytes.
type Fixup struct {
	Offset int
	Length int
	Symbol string
	Kind   reloc.Kind
	Adjust int32
}

func operandLen(k ArgKind) int {
	switch k {
	case ArgShortMem, ArgByte, ArgIndShortX, ArgIndShortY, ArgIndShortSP, ArgPtrShort, ArgPtrShortX, ArgPtrShortY:
		return 1
	case ArgLongMem, ArgWord, ArgIndLongX, ArgIndLongY, ArgPtrLong, ArgPtrLongX, ArgPtrLongY:
		return 2
	case ArgExtMem:
		return 3
	default:
		return 0
	}
}

func isMemKind(k ArgKind) bool {
	return operandLen(k) > 0
}

// encodeOperandBytes turns one memory/immediate argument into its wire
// bytes and, if it is still symbolic, a pending Fixup anchored at the
// given offset within the instruction.
func encodeOperandBytes(arg Arg, offset int) ([]byte, *Fixup) {
	n := operandLen(arg.Kind)
	if n == 0 {
		return nil, nil
	}
	if arg.HasSymbol {
		return make([]byte, n), &Fixup{Offset: offset, Length: n, Symbol: arg.Symbol, Kind: reloc.Absolute}
	}
	buf := make([]byte, n)
	v := uint64(arg.Value)
	for i := n - 1; i >= 0; i-- {
		buf[i] = byte(v)
		v >>= 8
	}
	return buf, nil
}

// EncodeNoOperand encodes a mnemonic from NoOperandTable.
func EncodeNoOperand(mnemonic string) ([]byte, error) {
	row, ok := NoOperandTable[mnemonic]
	if !ok {
		return nil, xerr.Make(ErrUnknownMnemonic, "%q", mnemonic)
	}
	if row.Prebyte != PrebyteNone {
		return []byte{row.Prebyte, row.Opcode}, nil
	}
	return []byte{row.Opcode}, nil
}

// EncodeUniversal encodes a two- or one-operand instruction from
// UniversalTable: [prebyte] opcode [operand bytes], the operand bytes
// belonging to whichever argument carries a non-register addressing mode.
func EncodeUniversal(mnemonic string, args []Arg) ([]byte, []Fixup, error) {
	rows, ok := UniversalTable[mnemonic]
	if !ok {
		return nil, nil, xerr.Make(ErrUnknownMnemonic, "%q", mnemonic)
	}

	var a0, a1 ArgKind
	switch len(args) {
	case 1:
		a0 = args[0].Kind
		a1 = ArgNone
	case 2:
		a0 = args[0].Kind
		a1 = args[1].Kind
	default:
		return nil, nil, xerr.Make(ErrWrongOperandCount, "%q takes 1 or 2 operands, got %d", mnemonic, len(args))
	}

	row, ok := matchRow(rows, a0, a1)
	if !ok {
		return nil, nil, xerr.Make(ErrNoMatchingRow, "%q %v, %v", mnemonic, a0, a1)
	}

	var out []byte
	if row.Prebyte != PrebyteNone {
		out = append(out, row.Prebyte)
	}
	out = append(out, row.Opcode)

	rowKinds := [2]ArgKind{row.Arg0, row.Arg1}
	var fixups []Fixup
	for i, arg := range args {
		// A CheckLong/CheckExt row may have matched a narrower actual
		// operand than it requires; the row's own kind decides how many
		// operand bytes are emitted, not the operand's own inferred width.
		effective := arg
		effective.Kind = rowKinds[i]
		if !isMemKind(effective.Kind) {
			continue
		}
		b, fx := encodeOperandBytes(effective, len(out))
		out = append(out, b...)
		if fx != nil {
			fixups = append(fixups, *fx)
		}
	}
	return out, fixups, nil
}

// EncodeJumpRelative encodes JRA/JRxx/CALLR: [prebyte] opcode displacement.
// The displacement is PC-relative to the byte after the instruction, so the
// returned Fixup carries Adjust equal to the number of bytes from the
// displacement byte to the end of the instruction (1).
func EncodeJumpRelative(mnemonic string, target Arg) ([]byte, *Fixup, error) {
	row, ok := JumpRelativeTable[mnemonic]
	if !ok {
		return nil, nil, xerr.Make(ErrUnknownMnemonic, "%q", mnemonic)
	}

	var out []byte
	if row.Prebyte != PrebyteNone {
		out = append(out, row.Prebyte)
	}
	out = append(out, row.Opcode, 0)
	length := len(out)

	offset := len(out) - 1
	if !target.HasSymbol {
		disp := target.Value - int64(length)
		if disp < -128 || disp > 127 {
			return nil, nil, xerr.Make(ErrNoMatchingRow, "%q: displacement %d out of range", mnemonic, disp)
		}
		out[offset] = byte(int8(disp))
		return out, nil, nil
	}
	return out, &Fixup{Offset: offset, Length: 1, Symbol: target.Symbol, Kind: reloc.Relative, Adjust: int32(length - offset)}, nil
}

// EncodeBitAddressed encodes BSET/BRES/BCCM/BCPL (mem, #bit) and BTJT/BTJF
// (mem, #bit, rel). The bit number occupies a 3-bit field starting at bit 1
// of the offset added to Base; BTJF additionally sets the low "sense" bit.
func EncodeBitAddressed(mnemonic string, mem Arg, bit int64, jumpTarget *Arg) ([]byte, []Fixup, error) {
	row, ok := BitAddressedTable[mnemonic]
	if !ok {
		return nil, nil, xerr.Make(ErrUnknownMnemonic, "%q", mnemonic)
	}
	if bit < 0 || bit > 7 {
		return nil, nil, xerr.Make(ErrBitOutOfRange, "%q: bit %d", mnemonic, bit)
	}
	if !isMemKind(mem.Kind) || operandLen(mem.Kind) == 0 {
		return nil, nil, xerr.Make(ErrNoMatchingRow, "%q: operand must be a memory address", mnemonic)
	}

	var offset byte
	view := utils.CreateBitView(&offset)
	view.Write(byte(bit), 1, 3)
	if row.Invert {
		view.SetBit(0)
	}
	opcode := row.Base + view.Value()

	var out []byte
	if row.Prebyte != PrebyteNone {
		out = append(out, row.Prebyte)
	}
	out = append(out, opcode)

	var fixups []Fixup
	memBytes, fx := encodeOperandBytes(mem, len(out))
	out = append(out, memBytes...)
	if fx != nil {
		fixups = append(fixups, *fx)
	}

	if !row.HasJump {
		return out, fixups, nil
	}
	if jumpTarget == nil {
		return nil, nil, xerr.Make(ErrWrongOperandCount, "%q requires a branch target", mnemonic)
	}

	out = append(out, 0)
	dispOffset := len(out) - 1
	finalLen := len(out)
	if jumpTarget.HasSymbol {
		fixups = append(fixups, Fixup{Offset: dispOffset, Length: 1, Symbol: jumpTarget.Symbol, Kind: reloc.Relative, Adjust: int32(finalLen - dispOffset)})
		return out, fixups, nil
	}
	disp := jumpTarget.Value - int64(finalLen)
	if disp < -128 || disp > 127 {
		return nil, nil, xerr.Make(ErrNoMatchingRow, "%q: displacement %d out of range", mnemonic, disp)
	}
	out[dispOffset] = byte(int8(disp))
	return out, fixups, nil
}

// MOV copies a byte directly between two memory operands, or an immediate
// into a memory operand, without ever touching A (spec.md §4.5). It has no
// register form and is encoded entirely outside the universal table.
var movRows = []Row{
	{Arg0: ArgShortMem, Arg1: ArgShortMem, Opcode: 0x45},
	{Arg0: ArgLongMem, Arg1: ArgLongMem, Opcode: 0x43, Flags: FlagCheckLong},
	{Arg0: ArgShortMem, Arg1: ArgByte, Opcode: 0x35},
	{Arg0: ArgLongMem, Arg1: ArgByte, Opcode: 0x35, Flags: FlagCheckLong},
}

// EncodeMov encodes the MOV dst, src pseudo-universal instruction. The
// immediate-source rows place the immediate byte before the destination
// address, mirroring the real encoding's operand order.
func EncodeMov(dst, src Arg) ([]byte, []Fixup, error) {
	row, ok := matchRow(movRows, dst.Kind, src.Kind)
	if !ok {
		return nil, nil, xerr.Make(ErrNoMatchingRow, "mov %v, %v", dst.Kind, src.Kind)
	}

	effDst, effSrc := dst, src
	effDst.Kind, effSrc.Kind = row.Arg0, row.Arg1

	out := []byte{row.Opcode}
	var fixups []Fixup

	if src.Kind == ArgByte {
		b, fx := encodeOperandBytes(effSrc, len(out))
		out = append(out, b...)
		if fx != nil {
			fixups = append(fixups, *fx)
		}
		d, fx := encodeOperandBytes(effDst, len(out))
		out = append(out, d...)
		if fx != nil {
			fixups = append(fixups, *fx)
		}
		return out, fixups, nil
	}

	s, fx := encodeOperandBytes(effSrc, len(out))
	out = append(out, s...)
	if fx != nil {
		fixups = append(fixups, *fx)
	}
	d, fx := encodeOperandBytes(effDst, len(out))
	out = append(out, d...)
	if fx != nil {
		fixups = append(fixups, *fx)
	}
	return out, fixups, nil
}
