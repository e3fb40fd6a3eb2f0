// Package objfile implements the bit-exact relocatable object format of
// spec.md §4.6: a 32-byte file header followed by checksummed, framed
// symbol/relocation/section blocks, read and written with encoding/binary
// the way the teacher's ELF reader (pkg/hw/cpu/llvm/binaryfileparser.go)
// hand-parses a fixed binary layout rather than reaching for a generic
// serialisation library.
package objfile

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"

	"github.com/sodiumlight/stm8tc/pkg/reloc"
	"github.com/sodiumlight/stm8tc/pkg/section"
	"github.com/sodiumlight/stm8tc/pkg/symtab"
	"github.com/sodiumlight/stm8tc/pkg/xerr"
)

const (
	fileMagic   uint32 = 0x00306C2E
	fileVersion uint16 = 0x0001

	blockHeaderSize = 32 // magic(2) + totalLen(4) + checksum(2) + reserved(24)
	fileHeaderSize  = 32 // magic(4) + version(2) + reserved(26)

	symbolBlockMagic uint16 = 0xAC10
	relocBlockMagic  uint16 = 0xAC11
	sectionBlockMagic uint16 = 0xAC12
)

var (
	ErrBadMagic        = errors.New("object file: bad magic number")
	ErrVersionMismatch = errors.New("object file: unsupported version")
	ErrBadChecksum     = errors.New("object file: block checksum mismatch")
	ErrTruncated       = errors.New("object file: truncated block")
	ErrUnknownBlock    = errors.New("object file: unknown block magic")
)

const (
	symFlagExport uint16 = 1 << 0
	symFlagExtern uint16 = 1 << 1

	secFlagNoload uint16 = 1 << 0
)

// Write serialises every label/extern symbol, every relocation, and every
// non-empty section into the object format, in that block order. Constant
// symbols are private to the assembly unit and are never serialised
// (spec.md §4.6).
func Write(w io.Writer, symbols *symtab.Table, sections *section.Table, relocs *reloc.List) error {
	var header [fileHeaderSize]byte
	binary.LittleEndian.PutUint32(header[0:4], fileMagic)
	binary.LittleEndian.PutUint16(header[4:6], fileVersion)
	if _, err := w.Write(header[:]); err != nil {
		return err
	}

	for _, sym := range symbols.All() {
		if sym.Kind != symtab.Label && sym.Kind != symtab.Extern {
			continue
		}
		if err := writeBlock(w, symbolBlockMagic, encodeSymbol(sym)); err != nil {
			return err
		}
	}

	for _, r := range relocs.All() {
		if err := writeBlock(w, relocBlockMagic, encodeReloc(r)); err != nil {
			return err
		}
	}

	for _, sec := range sections.All() {
		if sec.Length == 0 {
			continue
		}
		if err := writeBlock(w, sectionBlockMagic, encodeSection(sec)); err != nil {
			return err
		}
	}

	return nil
}

// writeBlock frames payload with a block header, computing the checksum
// over the whole block (header included) with the checksum field treated
// as zero, per spec.md §4.6.
func writeBlock(w io.Writer, magic uint16, payload []byte) error {
	total := blockHeaderSize + len(payload)
	block := make([]byte, total)
	binary.LittleEndian.PutUint16(block[0:2], magic)
	binary.LittleEndian.PutUint32(block[2:6], uint32(total))
	// block[6:8] checksum left zero for the sum
	copy(block[blockHeaderSize:], payload)

	var sum uint16
	for _, b := range block {
		sum += uint16(b)
	}
	binary.LittleEndian.PutUint16(block[6:8], sum)

	_, err := w.Write(block)
	return err
}

func appendCString(buf []byte, s string) []byte {
	buf = append(buf, s...)
	return append(buf, 0)
}

func encodeSymbol(sym *symtab.Symbol) []byte {
	var flags uint16
	if sym.Export {
		flags |= symFlagExport
	}
	if sym.Kind == symtab.Extern {
		flags |= symFlagExtern
	}

	buf := make([]byte, 2+1+8)
	binary.LittleEndian.PutUint16(buf[0:2], flags)
	buf[2] = byte(sym.Width)
	binary.LittleEndian.PutUint64(buf[3:11], uint64(sym.Value))
	buf = appendCString(buf, sym.Name)
	buf = appendCString(buf, sym.Section)
	return buf
}

func encodeReloc(r reloc.Relocation) []byte {
	var typ byte
	if r.Kind == reloc.Relative {
		typ = 1
	}
	buf := make([]byte, 1+4+4+4)
	buf[0] = typ
	binary.LittleEndian.PutUint32(buf[1:5], uint32(r.Offset))
	binary.LittleEndian.PutUint32(buf[5:9], uint32(r.Length))
	binary.LittleEndian.PutUint32(buf[9:13], uint32(r.Adjust))
	buf = appendCString(buf, r.Symbol)
	buf = appendCString(buf, r.Section)
	return buf
}

func encodeSection(sec *section.Section) []byte {
	var flags uint16
	if sec.Noload {
		flags |= secFlagNoload
	}
	buf := make([]byte, 2+4)
	binary.LittleEndian.PutUint16(buf[0:2], flags)
	binary.LittleEndian.PutUint32(buf[2:6], uint32(sec.Length))
	buf = appendCString(buf, sec.Name)
	if !sec.Noload {
		buf = append(buf, sec.Data...)
	}
	return buf
}

// Read deserialises an object file written by Write, returning fresh
// symbol, section, and relocation tables.
func Read(r io.Reader) (*symtab.Table, *section.Table, *reloc.List, error) {
	var header [fileHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, nil, nil, xerr.Make(ErrTruncated, "file header: %v", err)
	}
	magic := binary.LittleEndian.Uint32(header[0:4])
	if magic != fileMagic {
		return nil, nil, nil, xerr.Make(ErrBadMagic, "got %#x", magic)
	}
	version := binary.LittleEndian.Uint16(header[4:6])
	if version != fileVersion {
		return nil, nil, nil, xerr.Make(ErrVersionMismatch, "got %#x", version)
	}

	symbols := symtab.New()
	sections := section.New()
	relocs := reloc.New()

	for {
		var bh [blockHeaderSize]byte
		n, err := io.ReadFull(r, bh[:])
		if err == io.EOF && n == 0 {
			break
		}
		if err != nil {
			return nil, nil, nil, xerr.Make(ErrTruncated, "block header: %v", err)
		}

		blockMagic := binary.LittleEndian.Uint16(bh[0:2])
		total := binary.LittleEndian.Uint32(bh[2:6])
		checksum := binary.LittleEndian.Uint16(bh[6:8])
		if total < blockHeaderSize {
			return nil, nil, nil, xerr.Make(ErrTruncated, "block length %d smaller than header", total)
		}

		payload := make([]byte, total-blockHeaderSize)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, nil, nil, xerr.Make(ErrTruncated, "block payload: %v", err)
		}

		if err := verifyChecksum(bh[:], payload, checksum); err != nil {
			return nil, nil, nil, err
		}

		switch blockMagic {
		case symbolBlockMagic:
			sym, err := decodeSymbol(payload)
			if err != nil {
				return nil, nil, nil, err
			}
			if err := symbols.Add(sym); err != nil {
				return nil, nil, nil, err
			}
		case relocBlockMagic:
			rel, err := decodeReloc(payload)
			if err != nil {
				return nil, nil, nil, err
			}
			relocs.Add(rel)
		case sectionBlockMagic:
			if err := decodeSection(sections, payload); err != nil {
				return nil, nil, nil, err
			}
		default:
			return nil, nil, nil, xerr.Make(ErrUnknownBlock, "%#x", blockMagic)
		}
	}

	return symbols, sections, relocs, nil
}

func verifyChecksum(header []byte, payload []byte, want uint16) error {
	var sum uint16
	for _, b := range header {
		sum += uint16(b)
	}
	// The stored checksum field (header[6:8]) is part of `header`, but the
	// rule treats it as zero while summing; subtract its contribution back
	// out rather than re-copying and re-zeroing the whole header.
	sum -= uint16(header[6]) + uint16(header[7])
	for _, b := range payload {
		sum += uint16(b)
	}
	if sum != want {
		return xerr.Make(ErrBadChecksum, "computed %#x, stored %#x", sum, want)
	}
	return nil
}

func readCString(buf []byte) (string, []byte, error) {
	i := bytes.IndexByte(buf, 0)
	if i < 0 {
		return "", nil, xerr.Make(ErrTruncated, "unterminated string")
	}
	return string(buf[:i]), buf[i+1:], nil
}

func decodeSymbol(buf []byte) (symtab.Symbol, error) {
	if len(buf) < 11 {
		return symtab.Symbol{}, xerr.Make(ErrTruncated, "symbol block too short")
	}
	flags := binary.LittleEndian.Uint16(buf[0:2])
	width := symtab.Width(buf[2])
	value := int64(binary.LittleEndian.Uint64(buf[3:11]))

	name, rest, err := readCString(buf[11:])
	if err != nil {
		return symtab.Symbol{}, err
	}
	sectionName, _, err := readCString(rest)
	if err != nil {
		return symtab.Symbol{}, err
	}

	kind := symtab.Label
	if flags&symFlagExtern != 0 {
		kind = symtab.Extern
	}
	return symtab.Symbol{
		Name:    name,
		Kind:    kind,
		Value:   value,
		Export:  flags&symFlagExport != 0,
		Width:   width,
		Section: sectionName,
	}, nil
}

func decodeReloc(buf []byte) (reloc.Relocation, error) {
	if len(buf) < 13 {
		return reloc.Relocation{}, xerr.Make(ErrTruncated, "relocation block too short")
	}
	kind := reloc.Absolute
	if buf[0] == 1 {
		kind = reloc.Relative
	}
	offset := int(binary.LittleEndian.Uint32(buf[1:5]))
	length := int(binary.LittleEndian.Uint32(buf[5:9]))
	adjust := int32(binary.LittleEndian.Uint32(buf[9:13]))

	symbol, rest, err := readCString(buf[13:])
	if err != nil {
		return reloc.Relocation{}, err
	}
	sectionName, _, err := readCString(rest)
	if err != nil {
		return reloc.Relocation{}, err
	}
	return reloc.Relocation{
		Kind:    kind,
		Section: sectionName,
		Symbol:  symbol,
		Offset:  offset,
		Length:  length,
		Adjust:  adjust,
	}, nil
}

func decodeSection(sections *section.Table, buf []byte) error {
	if len(buf) < 6 {
		return xerr.Make(ErrTruncated, "section block too short")
	}
	flags := binary.LittleEndian.Uint16(buf[0:2])
	length := int(binary.LittleEndian.Uint32(buf[2:6]))
	noload := flags&secFlagNoload != 0

	name, rest, err := readCString(buf[6:])
	if err != nil {
		return err
	}

	sec, err := sections.Select(name, noload)
	if err != nil {
		return err
	}
	if noload {
		sec.Length = length
		return nil
	}
	if len(rest) < length {
		return xerr.Make(ErrTruncated, "section %q: expected %d data bytes, got %d", name, length, len(rest))
	}
	sec.PushData(rest[:length])
	return nil
}
