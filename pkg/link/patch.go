package link

import (
	"github.com/sodiumlight/stm8tc/pkg/reloc"
	"github.com/sodiumlight/stm8tc/pkg/xerr"
)

const sixtyFourKiB = 0x10000

func addressRangesOverlap(startA uint32, lenA int, startB uint32, lenB int) bool {
	endA := startA + uint32(lenA)
	endB := startB + uint32(lenB)
	return startA < endB && startB < endA
}

// CheckOverlaps verifies every placed section's VMA range is disjoint from
// every other placed section's VMA range, and likewise for LMA ranges
// among sections that actually carry a load image (a NOLOAD section
// reserves VMA address space only). A VMA range crossing the 64KiB
// boundary is reported through Warn, not treated as fatal (spec.md §4.7).
func (lk *Linker) CheckOverlaps() error {
	var placed []string
	for _, sec := range lk.Sections.All() {
		if sec.Placed {
			placed = append(placed, sec.Name)
		}
	}

	for i, nameA := range placed {
		a, _ := lk.Sections.Get(nameA)
		if uint64(a.VMA)+uint64(a.Length) > sixtyFourKiB {
			lk.Warn("section %q VMA range [%#x, %#x) crosses the 64KiB boundary", a.Name, a.VMA, uint64(a.VMA)+uint64(a.Length))
		}
		for _, nameB := range placed[i+1:] {
			b, _ := lk.Sections.Get(nameB)
			if addressRangesOverlap(a.VMA, a.Length, b.VMA, b.Length) {
				return xerr.Make(ErrSectionOverlap, "VMA: %q [%#x,%#x) overlaps %q [%#x,%#x)",
					a.Name, a.VMA, uint64(a.VMA)+uint64(a.Length), b.Name, b.VMA, uint64(b.VMA)+uint64(b.Length))
			}
			if !a.Noload && !b.Noload && addressRangesOverlap(a.LMA, a.Length, b.LMA, b.Length) {
				return xerr.Make(ErrSectionOverlap, "LMA: %q [%#x,%#x) overlaps %q [%#x,%#x)",
					a.Name, a.LMA, uint64(a.LMA)+uint64(a.Length), b.Name, b.LMA, uint64(b.LMA)+uint64(b.Length))
			}
		}
	}
	return nil
}

// FixLabelOffsets turns every merged label's section-relative offset into
// its final address by adding its owning section's placed VMA (spec.md
// §4.7 step 6: "local_offset + section.vma").
func (lk *Linker) FixLabelOffsets() error {
	for _, sym := range lk.Symbols.All() {
		sec, ok := lk.Sections.Get(sym.Section)
		if !ok || !sec.Placed {
			return xerr.Make(ErrNotPlaced, "label %q in unplaced section %q", sym.Name, sym.Section)
		}
		sym.Value += int64(sec.VMA)
	}
	return nil
}

// resolveRelocationSymbol looks a relocation's target name up first among
// the merged, already-placed labels and then among the linker script's
// constants, which is how an extern left unresolved by RebaseRelocations
// gets a second chance: the script may supply it directly (e.g. a
// hardware register address defined with "NAME = NUMBER").
func (lk *Linker) resolveRelocationSymbol(name string) (int64, error) {
	if sym, ok := lk.Symbols.Find(name); ok {
		return sym.Value, nil
	}
	if lk.Script != nil {
		if sym, ok := lk.Script.Find(name); ok {
			return sym.Value, nil
		}
	}
	return 0, xerr.Make(ErrUnresolvedExtern, "%q", name)
}

// ApplyRelocations patches every merged relocation's target bytes now that
// every label carries its final address (spec.md §4.7 step 7): an absolute
// relocation gets its target's value zero-extended in, and a relative one
// gets the signed byte displacement from the end of the instruction (the
// patch site plus Adjust) to the target, which must fit a single byte.
func (lk *Linker) ApplyRelocations() error {
	for _, r := range lk.Relocs.All() {
		sec, ok := lk.Sections.Get(r.Section)
		if !ok || !sec.Placed {
			return xerr.Make(ErrNotPlaced, "relocation against unplaced section %q", r.Section)
		}

		target, err := lk.resolveRelocationSymbol(r.Symbol)
		if err != nil {
			return err
		}

		switch r.Kind {
		case reloc.Absolute:
			if err := sec.Patch(r.Offset, reloc.EncodeAbsolute(target, r.Length)); err != nil {
				return err
			}
		case reloc.Relative:
			jump := target - (int64(sec.VMA) + int64(r.Offset) + int64(r.Adjust))
			if jump < -128 || jump > 127 {
				return xerr.Make(ErrRelativeOverflow, "section %q offset %d: displacement %d", r.Section, r.Offset, jump)
			}
			if err := sec.Patch(r.Offset, []byte{byte(int8(jump))}); err != nil {
				return err
			}
		}
	}
	return nil
}
