package link_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sodiumlight/stm8tc/pkg/link"
	"github.com/sodiumlight/stm8tc/pkg/objfile"
	"github.com/sodiumlight/stm8tc/pkg/reloc"
	"github.com/sodiumlight/stm8tc/pkg/section"
	"github.com/sodiumlight/stm8tc/pkg/symtab"
)

func writeObject(t *testing.T, dir, name string, symbols *symtab.Table, sections *section.Table, relocs *reloc.List) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, objfile.Write(f, symbols, sections, relocs))
	return path
}

// Scenario 6 (spec.md §8): A exports F, B calls F extern, script places
// "text" at LMA=VMA=0x8000.
func TestScenarioExternCallAcrossObjects(t *testing.T) {
	dir := t.TempDir()

	aSymbols := symtab.New()
	require.NoError(t, aSymbols.Add(symtab.Symbol{Name: "F", Kind: symtab.Label, Value: 2, Export: true, Section: "text"}))
	aSections := section.New()
	aText, err := aSections.Select("text", false)
	require.NoError(t, err)
	aText.PushData([]byte{0x9D, 0x9D})
	aPath := writeObject(t, dir, "a.o", aSymbols, aSections, reloc.New())

	bSymbols := symtab.New()
	require.NoError(t, bSymbols.Add(symtab.Symbol{Name: "F", Kind: symtab.Extern}))
	bSections := section.New()
	bText, err := bSections.Select("text", false)
	require.NoError(t, err)
	bText.PushData([]byte{0xCD, 0, 0})
	bRelocs := reloc.New()
	bRelocs.Add(reloc.Relocation{Kind: reloc.Absolute, Section: "text", Symbol: "F", Offset: 1, Length: 2})
	bPath := writeObject(t, dir, "b.o", bSymbols, bSections, bRelocs)

	inputs, err := link.LoadAll([]string{aPath, bPath})
	require.NoError(t, err)

	var out bytes.Buffer
	script := strings.NewReader(`.place "text" $8000 $8000` + "\n")
	lk, chunks, err := link.Link(inputs, script, "test.lkr", nil, &out, true)
	require.NoError(t, err)

	sec, ok := lk.Sections.Get("text")
	require.True(t, ok)
	assert.Equal(t, []byte{0x9D, 0x9D, 0xCD, 0x80, 0x02}, sec.Data)

	require.Len(t, chunks, 1)
	assert.Equal(t, uint32(0x8000), chunks[0].Addr)
	assert.Equal(t, sec.Data, chunks[0].Data)

	sym, ok := lk.Symbols.Find("a.o:F")
	require.True(t, ok)
	assert.EqualValues(t, 0x8002, sym.Value)
}

func TestDuplicateExportFatal(t *testing.T) {
	dir := t.TempDir()

	mk := func(name string) string {
		symbols := symtab.New()
		require.NoError(t, symbols.Add(symtab.Symbol{Name: "F", Kind: symtab.Label, Export: true, Section: "text"}))
		sections := section.New()
		sec, err := sections.Select("text", false)
		require.NoError(t, err)
		sec.PushData([]byte{0x9D})
		return writeObject(t, dir, name, symbols, sections, reloc.New())
	}

	inputs, err := link.LoadAll([]string{mk("a.o"), mk("b.o")})
	require.NoError(t, err)

	_, _, err = link.Link(inputs, nil, "", nil, &bytes.Buffer{}, true)
	assert.ErrorIs(t, err, link.ErrDuplicateExport)
}

func TestOverlapRejected(t *testing.T) {
	dir := t.TempDir()

	mk := func(name, section1 string) string {
		symbols := symtab.New()
		sections := section.New()
		sec, err := sections.Select(section1, false)
		require.NoError(t, err)
		sec.PushData([]byte{0x9D, 0x9D})
		return writeObject(t, dir, name, symbols, sections, reloc.New())
	}

	inputs, err := link.LoadAll([]string{mk("a.o", "text"), mk("b.o", "data")})
	require.NoError(t, err)

	script := strings.NewReader(`.place "text" $8000 $8000` + "\n" + `.place "data" $8001 $8001` + "\n")
	_, _, err = link.Link(inputs, script, "test.lkr", nil, &bytes.Buffer{}, true)
	assert.ErrorIs(t, err, link.ErrSectionOverlap)
}

// Property 4: a relative relocation whose displacement fits one byte
// patches to the correctly-signed value; one that doesn't is fatal.
func TestApplyRelocationsRelative(t *testing.T) {
	lk := link.New(&bytes.Buffer{})
	lk.Sections = section.New()
	sec, err := lk.Sections.Select("text", false)
	require.NoError(t, err)
	sec.PushData([]byte{0x20, 0x00}) // JRA opcode + placeholder displacement
	sec.Placed = true
	sec.VMA = 0x8000

	lk.Symbols = symtab.New()
	require.NoError(t, lk.Symbols.Add(symtab.Symbol{Name: "TARGET", Kind: symtab.Label, Value: 0x8003, Section: "text"}))
	lk.Relocs = reloc.New()
	// patch site at offset 1 (the displacement byte), Adjust=1: distance
	// from the displacement byte to the end of this 2-byte instruction.
	lk.Relocs.Add(reloc.Relocation{Kind: reloc.Relative, Section: "text", Symbol: "TARGET", Offset: 1, Length: 1, Adjust: 1})
	lk.Script = symtab.New()

	require.NoError(t, lk.ApplyRelocations())
	assert.Equal(t, []byte{0x20, 0x01}, sec.Data)
}

func TestApplyRelocationsRelativeOverflow(t *testing.T) {
	lk := link.New(&bytes.Buffer{})
	lk.Sections = section.New()
	sec, err := lk.Sections.Select("text", false)
	require.NoError(t, err)
	sec.PushData([]byte{0x20, 0x00})
	sec.Placed = true
	sec.VMA = 0x8000

	lk.Symbols = symtab.New()
	require.NoError(t, lk.Symbols.Add(symtab.Symbol{Name: "TARGET", Kind: symtab.Label, Value: 0x9000, Section: "text"}))
	lk.Relocs = reloc.New()
	lk.Relocs.Add(reloc.Relocation{Kind: reloc.Relative, Section: "text", Symbol: "TARGET", Offset: 1, Length: 1, Adjust: 1})
	lk.Script = symtab.New()

	err = lk.ApplyRelocations()
	assert.ErrorIs(t, err, link.ErrRelativeOverflow)
}

func TestUnresolvedExternFallsBackToScriptConstant(t *testing.T) {
	lk := link.New(&bytes.Buffer{})
	lk.Sections = section.New()
	sec, err := lk.Sections.Select("text", false)
	require.NoError(t, err)
	sec.PushData([]byte{0xC6, 0, 0})
	sec.Placed = true
	sec.VMA = 0x4000

	lk.Symbols = symtab.New()
	lk.Relocs = reloc.New()
	lk.Relocs.Add(reloc.Relocation{Kind: reloc.Absolute, Section: "text", Symbol: "PORT", Offset: 1, Length: 2})

	lk.Script = symtab.New()
	require.NoError(t, lk.Script.Add(symtab.Symbol{Name: "PORT", Kind: symtab.Constant, Value: 0x5000}))

	require.NoError(t, lk.ApplyRelocations())
	assert.Equal(t, []byte{0xC6, 0x50, 0x00}, sec.Data)
}

func TestScriptSizeofAndExport(t *testing.T) {
	lk := link.New(&bytes.Buffer{})
	lk.Sections = section.New()
	sec, err := lk.Sections.Select("text", false)
	require.NoError(t, err)
	sec.PushData([]byte{0x9D, 0x9D, 0x9D})

	lk.Script = symtab.New()
	script := strings.NewReader("LEN = sizeof(\"text\")\n.export LEN\n")
	require.NoError(t, lk.RunScript(script, "test.lkr"))

	sym, ok := lk.Script.Find("LEN")
	require.True(t, ok)
	assert.EqualValues(t, 3, sym.Value)
	assert.True(t, sym.Export)
}
