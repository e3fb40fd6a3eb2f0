// Package link implements the linker of spec.md §4.7: load every
// relocatable object, glue same-named sections together file by file,
// rename and place symbols, run the linker-script subset, check for
// address overlaps, fix up label offsets to final addresses, apply every
// relocation, and hand the result to pkg/srec for S-record emission.
//
// The merge stage mirrors the teacher's pkg/hw/cpu/mc/memoryresolver.go:
// addresses are assigned into name-keyed maps first, then every reference
// is patched against those maps in a second pass, rather than resolving
// each reference the moment it's seen.
package link

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sodiumlight/stm8tc/pkg/objfile"
	"github.com/sodiumlight/stm8tc/pkg/reloc"
	"github.com/sodiumlight/stm8tc/pkg/section"
	"github.com/sodiumlight/stm8tc/pkg/srec"
	"github.com/sodiumlight/stm8tc/pkg/symtab"
	"github.com/sodiumlight/stm8tc/pkg/xerr"
)

var (
	ErrDuplicateExport  = errors.New("symbol exported by more than one input file")
	ErrUnresolvedExtern = errors.New("unresolved external reference")
	ErrUnknownSection   = errors.New("linker script: sizeof of unknown section")
	ErrSectionOverlap   = errors.New("linker script: section address range overlap")
	ErrDoublePlace      = errors.New("linker script: section placed more than once")
	ErrNotPlaced        = errors.New("reference into a section never placed by the script")
	ErrRelativeOverflow = errors.New("relative relocation displacement out of range")
	ErrBadScript        = errors.New("malformed linker script")
)

// Input is one loaded object file, kept under its own symbol/section/
// relocation tables until Glue/ResolveSymbols/RebaseRelocations fold it
// into the Linker's merged output.
type Input struct {
	Name     string // display name, used for "file:symbol" label renaming
	Symbols  *symtab.Table
	Sections *section.Table
	Relocs   *reloc.List
}

// LoadAll reads every object file in paths via objfile.Read.
func LoadAll(paths []string) ([]*Input, error) {
	inputs := make([]*Input, 0, len(paths))
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return nil, err
		}
		symbols, sections, relocs, err := objfile.Read(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		inputs = append(inputs, &Input{
			Name:     filepath.Base(p),
			Symbols:  symbols,
			Sections: sections,
			Relocs:   relocs,
		})
	}
	return inputs, nil
}

// Linker carries the merged state built up by the stages of spec.md §4.7:
// load-all (Inputs, via LoadAll), merge (Glue/ResolveSymbols/
// RebaseRelocations), script (RunScript), patch (CheckOverlaps/
// FixLabelOffsets/ApplyRelocations), and write (Pack, handed to pkg/srec).
type Linker struct {
	Inputs []*Input

	Sections *section.Table // merged output sections
	Symbols  *symtab.Table  // merged output symbols, labels renamed "file:name"
	Relocs   *reloc.List    // rebased relocations against merged sections
	Script   *symtab.Table  // linker-script constants, plus -D pre-populates

	NumberFormat NumberFormat
	PrintOut     io.Writer
	NoPrint      bool

	// Warn reports a non-fatal diagnostic (e.g. a VMA crossing 64KiB).
	Warn func(format string, args ...any)

	fileOffsets map[string]map[string]int // file name -> section name -> starting offset within merged section
	exportIndex map[string]string         // original exported name -> merged "file:name"
}

// New creates a linker with empty merged tables.
func New(printOut io.Writer) *Linker {
	return &Linker{
		Sections: section.New(),
		PrintOut: printOut,
		Warn: func(format string, args ...any) {
			fmt.Fprintf(os.Stderr, "warning: "+format+"\n", args...)
		},
	}
}

// Glue appends every input file's section bytes onto the merged output
// section of the same name, in input order, recording each file's starting
// offset within that merged section for the symbol/relocation rebase
// stages that follow. A NOLOAD section's reservation advances Length
// without storing bytes, same as the assembler's own PushData.
func (lk *Linker) Glue(inputs []*Input) error {
	lk.Inputs = inputs
	lk.fileOffsets = make(map[string]map[string]int, len(inputs))

	for _, in := range inputs {
		offsets := make(map[string]int, len(in.Sections.All()))
		for _, sec := range in.Sections.All() {
			merged, err := lk.Sections.Select(sec.Name, sec.Noload)
			if err != nil {
				return xerr.Make(section.ErrNoloadMismatch, "file %q, section %q: %v", in.Name, sec.Name, err)
			}
			data := sec.Data
			if sec.Noload {
				data = make([]byte, sec.Length)
			}
			offsets[sec.Name] = merged.Length
			merged.PushData(data)
		}
		lk.fileOffsets[in.Name] = offsets
	}
	return nil
}

// ResolveSymbols renames every input label "file:name", rebasing its value
// onto the merged section's offset assigned by Glue, and indexes every
// exported label by its original name for extern resolution. A name
// exported by more than one file is fatal (spec.md §4.7).
func (lk *Linker) ResolveSymbols() error {
	lk.Symbols = symtab.New()
	lk.exportIndex = make(map[string]string)

	for _, in := range lk.Inputs {
		for _, sym := range in.Symbols.All() {
			if sym.Kind != symtab.Label {
				continue
			}
			mergedName := in.Name + ":" + sym.Name
			value := sym.Value + int64(lk.fileOffsets[in.Name][sym.Section])
			if err := lk.Symbols.Add(symtab.Symbol{
				Name:    mergedName,
				Kind:    symtab.Label,
				Value:   value,
				Export:  sym.Export,
				Width:   sym.Width,
				Section: sym.Section,
			}); err != nil {
				return err
			}
			if sym.Export {
				if _, dup := lk.exportIndex[sym.Name]; dup {
					return xerr.Make(ErrDuplicateExport, "%q", sym.Name)
				}
				lk.exportIndex[sym.Name] = mergedName
			}
		}
	}
	return nil
}

// RebaseRelocations rewrites every input relocation's section-relative
// offset onto the merged section and resolves its symbol reference: a
// reference to a label local to the same file is renamed "file:name"; a
// reference to an extern is resolved through the export index when some
// other file exports a label by that name, and otherwise left as the bare
// name for the script pass (a linker-script constant) or ApplyRelocations
// (a still-missing extern) to report.
func (lk *Linker) RebaseRelocations() error {
	lk.Relocs = reloc.New()

	for _, in := range lk.Inputs {
		offsets := lk.fileOffsets[in.Name]
		for _, r := range in.Relocs.All() {
			symbol := r.Symbol
			if sym, ok := in.Symbols.Find(r.Symbol); ok && sym.Kind == symtab.Label {
				symbol = in.Name + ":" + r.Symbol
			} else if mergedName, ok := lk.exportIndex[r.Symbol]; ok {
				symbol = mergedName
			}
			lk.Relocs.Add(reloc.Relocation{
				Kind:    r.Kind,
				Section: r.Section,
				Symbol:  symbol,
				Offset:  r.Offset + offsets[r.Section],
				Length:  r.Length,
				Adjust:  r.Adjust,
			})
		}
	}
	return nil
}

// Pack collects every placed, loadable, non-empty section's final bytes at
// its LMA into the address map pkg/srec writes out.
func (lk *Linker) Pack() ([]srec.Chunk, error) {
	m := srec.NewAddressMap()
	for _, sec := range lk.Sections.All() {
		if sec.Noload || sec.Length == 0 || !sec.Placed {
			continue
		}
		m.Add(sec.LMA, sec.Data)
	}
	return m.Pack()
}

// Link runs every stage of spec.md §4.7 in order: merge the already-loaded
// inputs, run the linker script (if any) with defines pre-populated, check
// placement, fix up label addresses, patch every relocation, and pack the
// result for S-record emission.
func Link(inputs []*Input, script io.Reader, scriptName string, defines map[string]int64, printOut io.Writer, noPrint bool) (*Linker, []srec.Chunk, error) {
	lk := New(printOut)
	lk.NoPrint = noPrint

	if err := lk.Glue(inputs); err != nil {
		return nil, nil, err
	}
	if err := lk.ResolveSymbols(); err != nil {
		return nil, nil, err
	}
	if err := lk.RebaseRelocations(); err != nil {
		return nil, nil, err
	}

	lk.Script = symtab.New()
	for name, value := range defines {
		if err := lk.Script.Add(symtab.Symbol{Name: name, Kind: symtab.Constant, Value: value, Width: symtab.W8}); err != nil {
			return nil, nil, err
		}
	}
	if script != nil {
		if err := lk.RunScript(script, scriptName); err != nil {
			return nil, nil, err
		}
	}

	if err := lk.CheckOverlaps(); err != nil {
		return nil, nil, err
	}
	if err := lk.FixLabelOffsets(); err != nil {
		return nil, nil, err
	}
	if err := lk.ApplyRelocations(); err != nil {
		return nil, nil, err
	}

	chunks, err := lk.Pack()
	if err != nil {
		return nil, nil, err
	}
	return lk, chunks, nil
}
