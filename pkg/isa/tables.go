package isa

// Prebyte values recognised by the encoders. PrebyteNone means "no prefix
// byte is emitted"; it is not itself a valid wire value.
const (
	PrebyteNone byte = 0x00
	Prebyte90   byte = 0x90 // Y-indexed form of an X-indexed instruction
	Prebyte91   byte = 0x91 // Y-indexed form under a (already-prebyted) X,Y pairing
	Prebyte92   byte = 0x92 // PIX: pointer-indirect extension, also used by the callf LONGPTR row
	Prebyte72   byte = 0x72 // extended (24-bit) addressing
)

// RowFlags gates width upgrades: a row written for the wide form of an
// addressing mode may also accept a narrower actual operand, because the
// mnemonic has no dedicated encoding at that narrower width.
type RowFlags int

const (
	FlagNone      RowFlags = 0
	FlagCheckLong RowFlags = 1 << iota
	FlagCheckExt
)

// Row is one addressing-mode encoding of a "universal" two-operand
// instruction: a fixed (prebyte, opcode) pair selected by the shape of its
// two operands.
type Row struct {
	Arg0, Arg1 ArgKind
	Prebyte    byte
	Opcode     byte
	Flags      RowFlags
}

func argMatches(required, actual ArgKind, flags RowFlags) bool {
	if required == actual {
		return true
	}
	if flags&FlagCheckLong != 0 && required == ArgLongMem && actual == ArgShortMem {
		return true
	}
	if flags&FlagCheckExt != 0 && required == ArgExtMem && (actual == ArgShortMem || actual == ArgLongMem) {
		return true
	}
	return false
}

func matchRow(rows []Row, a0, a1 ArgKind) (Row, bool) {
	for _, r := range rows {
		if argMatches(r.Arg0, a0, r.Flags) && argMatches(r.Arg1, a1, r.Flags) {
			return r, true
		}
	}
	return Row{}, false
}

// withYVariants derives the (Y)-indexed rows of an (X)-indexed row set under
// the Prebyte90 prefix: real STM8 reuses the X form's opcode unchanged.
func withYVariants(rows []Row) []Row {
	out := make([]Row, 0, len(rows)*2)
	for _, r := range rows {
		out = append(out, r)
		switch r.Arg1 {
		case ArgIndX:
			out = append(out, Row{Arg0: r.Arg0, Arg1: ArgIndY, Prebyte: Prebyte90, Opcode: r.Opcode, Flags: r.Flags})
		case ArgIndShortX:
			out = append(out, Row{Arg0: r.Arg0, Arg1: ArgIndShortY, Prebyte: Prebyte90, Opcode: r.Opcode, Flags: r.Flags})
		case ArgIndLongX:
			out = append(out, Row{Arg0: r.Arg0, Arg1: ArgIndLongY, Prebyte: Prebyte90, Opcode: r.Opcode, Flags: r.Flags})
		}
	}
	return out
}

func aluRows(byteOp, shortOp, longOp, indXOp, indShortXOp, indLongXOp, indShortSPOp byte) []Row {
	base := []Row{
		{Arg0: ArgA, Arg1: ArgByte, Opcode: byteOp},
		{Arg0: ArgA, Arg1: ArgShortMem, Opcode: shortOp},
		{Arg0: ArgA, Arg1: ArgLongMem, Opcode: longOp, Flags: FlagCheckLong},
		{Arg0: ArgA, Arg1: ArgIndX, Opcode: indXOp},
		{Arg0: ArgA, Arg1: ArgIndShortX, Opcode: indShortXOp},
		{Arg0: ArgA, Arg1: ArgIndLongX, Opcode: indLongXOp, Flags: FlagCheckLong},
		{Arg0: ArgA, Arg1: ArgIndShortSP, Opcode: indShortSPOp},
	}
	return withYVariants(base)
}

// UniversalTable holds every "universal encoder" mnemonic: a fixed
// destination combined with one memory/immediate/indirect source, or the
// reverse for store forms (spec.md §4.5).
var UniversalTable = map[string][]Row{
	"adc": aluRows(0xA9, 0xB9, 0xC9, 0xF9, 0xE9, 0xD9, 0x19),
	"add": aluRows(0xAB, 0xBB, 0xCB, 0xFB, 0xEB, 0xDB, 0x1B),
	"sub": aluRows(0xA0, 0xB0, 0xC0, 0xF0, 0xE0, 0xD0, 0x10),
	"sbc": aluRows(0xA2, 0xB2, 0xC2, 0xF2, 0xE2, 0xD2, 0x12),
	"and": aluRows(0xA4, 0xB4, 0xC4, 0xF4, 0xE4, 0xD4, 0x14),
	"or":  aluRows(0xAA, 0xBA, 0xCA, 0xFA, 0xEA, 0xDA, 0x1A),
	"xor": aluRows(0xA8, 0xB8, 0xC8, 0xF8, 0xE8, 0xD8, 0x18),
	"cp":  aluRows(0xA1, 0xB1, 0xC1, 0xF1, 0xE1, 0xD1, 0x11),

	"ld": withYVariants([]Row{
		{Arg0: ArgA, Arg1: ArgByte, Opcode: 0xA6},
		{Arg0: ArgA, Arg1: ArgShortMem, Opcode: 0xB6},
		{Arg0: ArgA, Arg1: ArgLongMem, Opcode: 0xC6, Flags: FlagCheckLong},
		{Arg0: ArgA, Arg1: ArgExtMem, Prebyte: Prebyte72, Opcode: 0xC6, Flags: FlagCheckExt},
		{Arg0: ArgA, Arg1: ArgIndX, Opcode: 0xF6},
		{Arg0: ArgA, Arg1: ArgIndShortX, Opcode: 0xE6},
		{Arg0: ArgA, Arg1: ArgIndLongX, Opcode: 0xD6, Flags: FlagCheckLong},
		{Arg0: ArgA, Arg1: ArgIndShortSP, Opcode: 0x7B},
		{Arg0: ArgShortMem, Arg1: ArgA, Opcode: 0xB7},
		{Arg0: ArgLongMem, Arg1: ArgA, Opcode: 0xC7, Flags: FlagCheckLong},
		{Arg0: ArgIndX, Arg1: ArgA, Opcode: 0xF7},
		{Arg0: ArgIndShortX, Arg1: ArgA, Opcode: 0xE7},
		{Arg0: ArgIndLongX, Arg1: ArgA, Opcode: 0xD7, Flags: FlagCheckLong},
		{Arg0: ArgIndShortSP, Arg1: ArgA, Opcode: 0x6B},
		{Arg0: ArgX, Arg1: ArgY, Opcode: 0x93},
		{Arg0: ArgY, Arg1: ArgX, Prebyte: Prebyte90, Opcode: 0x93},
	}),

	"ldw": withYVariants([]Row{
		{Arg0: ArgX, Arg1: ArgWord, Opcode: 0xAE},
		{Arg0: ArgX, Arg1: ArgShortMem, Opcode: 0xBE},
		{Arg0: ArgX, Arg1: ArgLongMem, Opcode: 0xCE, Flags: FlagCheckLong},
		{Arg0: ArgShortMem, Arg1: ArgX, Opcode: 0xBF},
		{Arg0: ArgLongMem, Arg1: ArgX, Opcode: 0xCF, Flags: FlagCheckLong},
		{Arg0: ArgSP, Arg1: ArgX, Opcode: 0x94},
		{Arg0: ArgX, Arg1: ArgSP, Opcode: 0x96},
	}),

	"jp": {
		{Arg0: ArgLongMem, Opcode: 0xCC, Flags: FlagCheckLong},
		{Arg0: ArgIndX, Opcode: 0xFC},
		{Arg0: ArgIndLongX, Opcode: 0xDC, Flags: FlagCheckLong},
		{Arg0: ArgExtMem, Prebyte: Prebyte72, Opcode: 0xCC, Flags: FlagCheckExt},
	},
	"call": {
		{Arg0: ArgLongMem, Opcode: 0xCD, Flags: FlagCheckLong},
		{Arg0: ArgIndX, Opcode: 0xFD},
		{Arg0: ArgIndLongX, Opcode: 0xDD, Flags: FlagCheckLong},
	},
	// callf targets an extended (24-bit) code address; its pointer-indirect
	// row is flagged LONGPTR in spec.md's supplemented feature notes and,
	// unusually, keeps the PIX prebyte rather than the PDY one.
	"callf": {
		{Arg0: ArgExtMem, Opcode: 0x8D},
		{Arg0: ArgPtrLong, Prebyte: Prebyte92, Opcode: 0x8D},
	},

	"push": {
		{Arg0: ArgA, Opcode: 0x88},
		{Arg0: ArgCC, Opcode: 0x8A},
		{Arg0: ArgX, Opcode: 0x89},
		{Arg0: ArgY, Opcode: 0x89, Prebyte: Prebyte90},
		{Arg0: ArgShortMem, Opcode: 0x4B},
		{Arg0: ArgByte, Opcode: 0x4B},
	},
	"pop": {
		{Arg0: ArgA, Opcode: 0x84},
		{Arg0: ArgCC, Opcode: 0x86},
		{Arg0: ArgX, Opcode: 0x85},
		{Arg0: ArgY, Opcode: 0x85, Prebyte: Prebyte90},
	},

	"inc": {
		{Arg0: ArgA, Opcode: 0x4C},
		{Arg0: ArgX, Opcode: 0x5C},
		{Arg0: ArgY, Opcode: 0x5C, Prebyte: Prebyte90},
		{Arg0: ArgShortMem, Opcode: 0x3C},
		{Arg0: ArgIndX, Opcode: 0x7C},
	},
	"dec": {
		{Arg0: ArgA, Opcode: 0x4A},
		{Arg0: ArgX, Opcode: 0x5A},
		{Arg0: ArgY, Opcode: 0x5A, Prebyte: Prebyte90},
		{Arg0: ArgShortMem, Opcode: 0x3A},
		{Arg0: ArgIndX, Opcode: 0x7A},
	},
	"clr": {
		{Arg0: ArgA, Opcode: 0x4F},
		{Arg0: ArgShortMem, Opcode: 0x3F},
		{Arg0: ArgIndX, Opcode: 0x7F},
	},
	"tnz": {
		{Arg0: ArgA, Opcode: 0x4D},
		{Arg0: ArgX, Opcode: 0x5D},
		{Arg0: ArgY, Opcode: 0x5D, Prebyte: Prebyte90},
		{Arg0: ArgShortMem, Opcode: 0x3D},
	},
}

// JRRow is one jump-relative row: an optional prebyte plus the opcode that
// precedes the one-byte signed displacement (spec.md §4.5).
type JRRow struct {
	Prebyte byte
	Opcode  byte
}

// JumpRelativeTable covers JRA and the condition-code JRxx family, plus
// CALLR, all sharing the [prebyte] opcode displacement shape.
var JumpRelativeTable = map[string]JRRow{
	"jra":   {Opcode: 0x20},
	"jrt":   {Opcode: 0x20},
	"jrf":   {Opcode: 0x21},
	"jreq":  {Opcode: 0x27},
	"jrne":  {Opcode: 0x26},
	"jrc":   {Opcode: 0x25},
	"jrnc":  {Opcode: 0x24},
	"jrmi":  {Opcode: 0x2B},
	"jrpl":  {Opcode: 0x2A},
	"jrsge": {Opcode: 0x2E},
	"jrsgt": {Opcode: 0x2C},
	"jrsle": {Opcode: 0x2D},
	"jrslt": {Opcode: 0x2F},
	"jrugt": {Opcode: 0x22},
	"jrule": {Opcode: 0x23},
	// jrih/jril (interrupt pending high/low) live in the prebyte-0x90
	// extended condition-code block rather than the base jr opcode space.
	"jrih":  {Prebyte: Prebyte90, Opcode: 0x8F},
	"jril":  {Prebyte: Prebyte90, Opcode: 0x8E},
	"callr": {Opcode: 0xAD},
}

// NoOperandTable is every mnemonic taking no operands at all.
var NoOperandTable = map[string]JRRow{
	"nop":   {Opcode: 0x9D},
	"halt":  {Opcode: 0x8E},
	"iret":  {Opcode: 0x80},
	"ret":   {Opcode: 0x81},
	"retf":  {Opcode: 0x87},
	"rim":   {Opcode: 0x9A},
	"sim":   {Opcode: 0x9B},
	"wfi":   {Opcode: 0x8F},
	"trap":  {Opcode: 0x83},
	"break": {Opcode: 0x8B},
	"rvf":   {Opcode: 0x9C},
	"scf":   {Opcode: 0x9E},
	"rcf":   {Opcode: 0x98},
	"ccf":   {Opcode: 0x9C},
}

// BitRow is one bit-addressed mnemonic's encoding shape: a base opcode
// selecting the instruction, combined at encode time with the bit number
// (0-7) via the parity scheme spec.md §4.5 describes.
type BitRow struct {
	Prebyte byte
	Base    byte // for bset/bres/bccm/bcpl: opcode for bit 0, +2 per bit
	HasJump bool // btjt/btjf carry a trailing relative displacement
	Invert  bool // btjf tests the inverse of the stored bit
}

var BitAddressedTable = map[string]BitRow{
	"bset": {Base: 0x10},
	"bres": {Base: 0x11},
	"bccm": {Base: 0x90, Prebyte: Prebyte90},
	"bcpl": {Base: 0x12, Prebyte: Prebyte90},
	"btjt": {Base: 0x00, HasJump: true},
	"btjf": {Base: 0x00, HasJump: true, Invert: true},
}
