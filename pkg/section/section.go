// Package section implements the append-only section buffer of spec.md
// §3/§4.4: byte data that grows by append, can be patched in place, and
// may be a NOLOAD reservation that carries no image bytes.
package section

import (
	"errors"

	"github.com/sodiumlight/stm8tc/pkg/xerr"
)

var (
	ErrNoloadMismatch  = errors.New("NOLOAD attribute mismatch on section reselection")
	ErrPatchOutOfBound = errors.New("patch offset out of section bounds")
)

// Section is an append-only byte buffer with an optional NOLOAD attribute.
// When Noload is true, appends still advance Length but data is not stored.
//
// Placed/LMA/VMA are populated by the linker; they are zero for an
// assembler-owned Section. Offset is not set by pkg/link, which keeps each
// file's starting offset in a per-file map of its own.
type Section struct {
	Name   string
	Data   []byte
	Length int
	Noload bool

	Placed bool
	LMA    uint32
	VMA    uint32
	Offset int // this file's starting offset within the merged output section
}

// PushData appends bytes, respecting Noload (advances Length only).
func (s *Section) PushData(b []byte) {
	s.Length += len(b)
	if s.Noload {
		return
	}
	s.Data = append(s.Data, b...)
}

// Patch overwrites an already-appended byte range. A Noload section's
// patch is a no-op (spec.md §3 invariant); an out-of-bounds patch on a
// loadable section is fatal.
func (s *Section) Patch(offset int, b []byte) error {
	if s.Noload {
		return nil
	}
	if offset < 0 || offset+len(b) > len(s.Data) {
		return xerr.Make(ErrPatchOutOfBound, "section %q: offset %d len %d (size %d)", s.Name, offset, len(b), len(s.Data))
	}
	copy(s.Data[offset:], b)
	return nil
}

// Table is the set of sections known within one assembly unit or link.
// The zero value is not usable; use New.
type Table struct {
	byName map[string]*Section
	order  []string
}

// New creates an empty section table.
func New() *Table {
	return &Table{byName: make(map[string]*Section)}
}

// Select returns the existing section named name, creating it if absent.
// Reselecting an existing section with a different Noload attribute is an
// error.
func (t *Table) Select(name string, noload bool) (*Section, error) {
	if sec, ok := t.byName[name]; ok {
		if sec.Noload != noload {
			return nil, xerr.Make(ErrNoloadMismatch, "section %q", name)
		}
		return sec, nil
	}
	sec := &Section{Name: name, Noload: noload}
	t.byName[name] = sec
	t.order = append(t.order, name)
	return sec, nil
}

// Get returns an existing section, or false if none by that name exists.
func (t *Table) Get(name string) (*Section, bool) {
	sec, ok := t.byName[name]
	return sec, ok
}

// All returns every section in creation order.
func (t *Table) All() []*Section {
	result := make([]*Section, 0, len(t.order))
	for _, name := range t.order {
		result = append(result, t.byName[name])
	}
	return result
}
