package asmr

import (
	"github.com/sodiumlight/stm8tc/pkg/reloc"
	"github.com/sodiumlight/stm8tc/pkg/symtab"
)

// Finalize implements the assembler's "finalise" lifecycle phase (spec.md
// §3: "build -> finalise -> serialise"), run once after both passes and
// before the object-file codec. Every relocation produced by build against
// a Constant symbol is resolved right here and patched directly into the
// section bytes, since a constant's value never depends on linking and
// constants are never serialised into the object format (spec.md §4.6);
// what's left afterward is only the relocations that genuinely need a
// link-time address - against a Label or an Extern.
func (c *Context) Finalize() error {
	var kept []reloc.Relocation
	for _, r := range c.Relocs.All() {
		if r.Kind != reloc.Absolute {
			kept = append(kept, r)
			continue
		}
		sym, ok := c.Symbols.Find(r.Symbol)
		if !ok || sym.Kind != symtab.Constant {
			kept = append(kept, r)
			continue
		}
		sec, ok := c.Sections.Get(r.Section)
		if !ok {
			kept = append(kept, r)
			continue
		}
		if err := sec.Patch(r.Offset, reloc.EncodeAbsolute(sym.Value, r.Length)); err != nil {
			return err
		}
	}
	c.Relocs.Set(kept)
	return nil
}
