// Package reloc implements the relocation records of spec.md §3/§4: fixups
// recorded during assembly and applied later, either at link time (for
// objects) or by the assembler's Finalize step (for absolute references to
// local constants).
package reloc

// Kind distinguishes an absolute patch from a PC-relative one.
type Kind int

const (
	Absolute Kind = iota
	Relative
)

func (k Kind) String() string {
	if k == Relative {
		return "relative"
	}
	return "absolute"
}

// Relocation records a fixup to apply to a section's bytes once the target
// symbol's value is known.
//
// For Relative relocations, Adjust is the number of bytes from the patch
// site to the end of the instruction, so the encoded displacement is
// target - (patch_vma + Adjust).
type Relocation struct {
	Kind    Kind
	Section string
	Symbol  string
	Offset  int // byte offset within Section where the patch is applied
	Length  int // 1, 2, or 3
	Adjust  int32
}

// List is an ordered sequence of relocations.
type List struct {
	items []Relocation
}

// New creates an empty relocation list.
func New() *List { return &List{} }

// Add appends a relocation.
func (l *List) Add(r Relocation) { l.items = append(l.items, r) }

// All returns every relocation in the order they were recorded.
func (l *List) All() []Relocation { return l.items }

// Len reports how many relocations are recorded.
func (l *List) Len() int { return len(l.items) }

// Reset discards every recorded relocation.
func (l *List) Reset() { l.items = nil }

// Set replaces the list's contents wholesale, used after filtering
// (e.g. asmr.Context.Finalize dropping already-resolved entries).
func (l *List) Set(items []Relocation) { l.items = items }

// EncodeAbsolute renders value zero-extended to length bytes in the
// object format's and linker's shared absolute-patch byte order: a single
// byte is trivially ordered, 2 and 3 byte fields are big-endian (spec.md
// §4.7 step 7).
func EncodeAbsolute(value int64, length int) []byte {
	buf := make([]byte, length)
	v := uint64(value)
	for i := length - 1; i >= 0; i-- {
		buf[i] = byte(v)
		v >>= 8
	}
	return buf
}
