// Package symtab implements the symbol table described in spec.md §3/§4.3:
// named constants, extern references, and labels carrying width and
// section metadata, plus the "?" current-label expansion.
package symtab

import (
	"errors"

	"github.com/sodiumlight/stm8tc/pkg/xerr"
)

// Kind is the kind of a Symbol.
type Kind int

const (
	None Kind = iota
	Constant
	Extern
	Label
)

// Width is the byte width a symbol's value or extern reference is declared
// with: w8, w16, or w24.
type Width int

const (
	W8  Width = 1
	W16 Width = 2
	W24 Width = 3
)

// ParseWidthAttr validates a width attribute string against the known set.
func ParseWidthAttr(s string) (Width, error) {
	switch s {
	case "w8":
		return W8, nil
	case "w16":
		return W16, nil
	case "w24":
		return W24, nil
	default:
		return 0, xerr.Make(ErrBadAttribute, "unknown width attribute %q", s)
	}
}

// Attribute is a (name, value) pair; last write wins per name.
type Attribute struct {
	Name  string
	Value string
}

// Symbol is a named constant, extern, or label.
type Symbol struct {
	Name    string
	Kind    Kind
	Value   int64
	Export  bool
	Width   Width
	Section string // owning section name; only meaningful for labels
	Attrs   []Attribute
}

var (
	ErrRedefined      = errors.New("symbol redefined")
	ErrUndefined      = errors.New("undefined symbol")
	ErrKindMismatch   = errors.New("symbol kind mismatch")
	ErrBadAttribute   = errors.New("invalid symbol attribute")
	ErrAlreadyHasOwn  = errors.New("symbol already has a section owner")
	ErrAlreadyExport  = errors.New("symbol already exported")
	ErrSectionMissing = errors.New("label has no owning section")
)

// Table is a symbol table keyed by name, preserving insertion order for
// printing and serialisation.
type Table struct {
	byName map[string]*Symbol
	order  []string

	// currentLabel is the distinguished entry bound to the most recently
	// defined label, used to expand "?" and "?suffix" references.
	currentLabel string
}

// New creates an empty symbol table.
func New() *Table {
	return &Table{byName: make(map[string]*Symbol)}
}

// Add inserts a new symbol. It is an error if the name already exists.
func (t *Table) Add(sym Symbol) error {
	if _, exists := t.byName[sym.Name]; exists {
		return xerr.Make(ErrRedefined, "%q", sym.Name)
	}
	if sym.Width == 0 {
		sym.Width = W8
	}
	copySym := sym
	t.byName[sym.Name] = &copySym
	t.order = append(t.order, sym.Name)
	if sym.Kind == Label {
		t.currentLabel = sym.Name
	}
	return nil
}

// Find looks up a symbol by name, expanding a leading "?" to the current
// label name first.
func (t *Table) Find(name string) (*Symbol, bool) {
	name = t.Expand(name)
	sym, ok := t.byName[name]
	return sym, ok
}

// Expand replaces "?" (alone) or any "?"-prefixed identifier with the
// current label name, per spec.md §4.3.
func (t *Table) Expand(name string) string {
	if len(name) == 0 || name[0] != '?' {
		return name
	}
	if name == "?" {
		return t.currentLabel
	}
	return t.currentLabel + name[1:]
}

// SetConstantValue sets the value of an existing constant symbol.
func (t *Table) SetConstantValue(name string, value int64) error {
	sym, ok := t.byName[name]
	if !ok {
		return xerr.Make(ErrUndefined, "%q", name)
	}
	if sym.Kind != Constant && sym.Kind != None {
		return xerr.Make(ErrKindMismatch, "%q is not a constant", name)
	}
	sym.Kind = Constant
	sym.Value = value
	return nil
}

// SetLabelValue sets a label's value exactly once (pass 1 definition).
func (t *Table) SetLabelValue(name string, value int64, section string) error {
	sym, ok := t.byName[name]
	if !ok {
		return xerr.Make(ErrUndefined, "%q", name)
	}
	if sym.Kind != Label {
		return xerr.Make(ErrKindMismatch, "%q is not a label", name)
	}
	sym.Value = value
	sym.Section = section
	t.currentLabel = name
	return nil
}

// SetSection sets a label's owning section at most once.
func (t *Table) SetSection(name, section string) error {
	sym, ok := t.byName[name]
	if !ok {
		return xerr.Make(ErrUndefined, "%q", name)
	}
	if sym.Section != "" && sym.Section != section {
		return xerr.Make(ErrAlreadyHasOwn, "%q already owned by section %q", name, sym.Section)
	}
	sym.Section = section
	return nil
}

// SetWidthAttr sets a symbol's declared width from an attribute string.
func (t *Table) SetWidthAttr(name, widthAttr string) error {
	sym, ok := t.byName[name]
	if !ok {
		return xerr.Make(ErrUndefined, "%q", name)
	}
	w, err := ParseWidthAttr(widthAttr)
	if err != nil {
		return err
	}
	sym.Width = w
	return nil
}

// SetAttribute records a named attribute, last write wins.
func (t *Table) SetAttribute(name, attrName, attrValue string) error {
	sym, ok := t.byName[name]
	if !ok {
		return xerr.Make(ErrUndefined, "%q", name)
	}
	if attrName == "width" {
		return t.SetWidthAttr(name, attrValue)
	}
	for i := range sym.Attrs {
		if sym.Attrs[i].Name == attrName {
			sym.Attrs[i].Value = attrValue
			return nil
		}
	}
	sym.Attrs = append(sym.Attrs, Attribute{Name: attrName, Value: attrValue})
	return nil
}

// Export marks an existing label as exported. Returns (warning, error):
// warning is non-nil if the symbol was already exported.
func (t *Table) Export(name string) (warning error, err error) {
	sym, ok := t.byName[name]
	if !ok {
		return nil, xerr.Make(ErrUndefined, "%q", name)
	}
	if sym.Kind != Label {
		return nil, xerr.Make(ErrKindMismatch, "%q is not a label, cannot export", name)
	}
	if sym.Export {
		return xerr.Make(ErrAlreadyExport, "%q", name), nil
	}
	sym.Export = true
	return nil, nil
}

// All returns every symbol in insertion order.
func (t *Table) All() []*Symbol {
	result := make([]*Symbol, 0, len(t.order))
	for _, name := range t.order {
		result = append(result, t.byName[name])
	}
	return result
}

// CurrentLabel returns the name of the most recently defined label.
func (t *Table) CurrentLabel() string {
	return t.currentLabel
}
