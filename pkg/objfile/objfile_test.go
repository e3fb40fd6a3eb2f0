package objfile_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sodiumlight/stm8tc/pkg/objfile"
	"github.com/sodiumlight/stm8tc/pkg/reloc"
	"github.com/sodiumlight/stm8tc/pkg/section"
	"github.com/sodiumlight/stm8tc/pkg/symtab"
)

// Property 5: encode then decode reproduces the same symbol, section, and
// relocation sets byte-for-byte.
func TestRoundTrip(t *testing.T) {
	symbols := symtab.New()
	require.NoError(t, symbols.Add(symtab.Symbol{Name: "main", Kind: symtab.Label, Value: 0, Export: true, Width: symtab.W16, Section: "text"}))
	require.NoError(t, symbols.Add(symtab.Symbol{Name: "helper", Kind: symtab.Extern, Width: symtab.W16}))
	// A constant must never be serialised.
	require.NoError(t, symbols.Add(symtab.Symbol{Name: "SZ", Kind: symtab.Constant, Value: 0x1000, Width: symtab.W16}))

	sections := section.New()
	text, err := sections.Select("text", false)
	require.NoError(t, err)
	text.PushData([]byte{0x9D, 0x81, 0xCD, 0x00, 0x00})

	bss, err := sections.Select("bss", true)
	require.NoError(t, err)
	bss.PushData(make([]byte, 4))

	relocs := reloc.New()
	relocs.Add(reloc.Relocation{Kind: reloc.Absolute, Section: "text", Symbol: "helper", Offset: 3, Length: 2})

	var buf bytes.Buffer
	require.NoError(t, objfile.Write(&buf, symbols, sections, relocs))

	gotSymbols, gotSections, gotRelocs, err := objfile.Read(&buf)
	require.NoError(t, err)

	main, ok := gotSymbols.Find("main")
	require.True(t, ok)
	assert.Equal(t, symtab.Label, main.Kind)
	assert.True(t, main.Export)
	assert.EqualValues(t, symtab.W16, main.Width)
	assert.Equal(t, "text", main.Section)

	helper, ok := gotSymbols.Find("helper")
	require.True(t, ok)
	assert.Equal(t, symtab.Extern, helper.Kind)

	_, ok = gotSymbols.Find("SZ")
	assert.False(t, ok, "constants must not round-trip through the object format")

	gotText, ok := gotSections.Get("text")
	require.True(t, ok)
	assert.Equal(t, text.Data, gotText.Data)

	gotBss, ok := gotSections.Get("bss")
	require.True(t, ok)
	assert.True(t, gotBss.Noload)
	assert.Equal(t, 4, gotBss.Length)
	assert.Empty(t, gotBss.Data)

	require.Equal(t, 1, gotRelocs.Len())
	r := gotRelocs.All()[0]
	assert.Equal(t, reloc.Absolute, r.Kind)
	assert.Equal(t, "helper", r.Symbol)
	assert.Equal(t, 3, r.Offset)
	assert.Equal(t, 2, r.Length)
}

func TestBadMagicRejected(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(make([]byte, 32))
	_, _, _, err := objfile.Read(&buf)
	assert.ErrorIs(t, err, objfile.ErrBadMagic)
}

func TestTruncatedFileHeaderRejected(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{1, 2, 3})
	_, _, _, err := objfile.Read(&buf)
	assert.ErrorIs(t, err, objfile.ErrTruncated)
}

func TestCorruptedChecksumRejected(t *testing.T) {
	symbols := symtab.New()
	require.NoError(t, symbols.Add(symtab.Symbol{Name: "F", Kind: symtab.Label, Export: true, Section: "text"}))
	sections := section.New()
	relocs := reloc.New()

	var buf bytes.Buffer
	require.NoError(t, objfile.Write(&buf, symbols, sections, relocs))

	b := buf.Bytes()
	// Flip a bit inside the one symbol block's payload, past the file and
	// block headers, without touching the stored checksum field itself.
	b[objfileHeaderSizeForTest+10] ^= 0xFF

	_, _, _, err := objfile.Read(bytes.NewReader(b))
	assert.ErrorIs(t, err, objfile.ErrBadChecksum)
}

// objfileHeaderSizeForTest mirrors the file+block header sizes (32 bytes
// each) so the corruption test can land inside the symbol payload.
const objfileHeaderSizeForTest = 32 + 32
