package asmr_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sodiumlight/stm8tc/pkg/asmr"
	"github.com/sodiumlight/stm8tc/pkg/reloc"
)

func assembleString(t *testing.T, src string) *asmr.Context {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "in.s")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	ctx, err := asmr.Assemble(path, asmr.Options{})
	require.NoError(t, err)
	return ctx
}

// Scenario 1 (spec.md §8).
func TestScenarioSectionNop(t *testing.T) {
	ctx := assembleString(t, ".section \"text\"\nnop\n")
	sec, ok := ctx.Sections.Get("text")
	require.True(t, ok)
	assert.Equal(t, []byte{0x9D}, sec.Data)
	assert.Equal(t, 0, ctx.Relocs.Len())
}

// Scenario 2.
func TestScenarioLabelAndPipedInstructions(t *testing.T) {
	ctx := assembleString(t, "L: nop | ret\n")
	sec, ok := ctx.Sections.Get("text")
	require.True(t, ok)
	assert.Equal(t, []byte{0x9D, 0x81}, sec.Data)

	sym, ok := ctx.Symbols.Find("L")
	require.True(t, ok)
	assert.EqualValues(t, 0, sym.Value)
}

// Scenario 3.
func TestScenarioD16EndiannessSwitch(t *testing.T) {
	ctx := assembleString(t, ".d16 $1234\n.dbendian \"little\"\n.d16 $1234\n")
	sec, ok := ctx.Sections.Get("text")
	require.True(t, ok)
	assert.Equal(t, []byte{0x12, 0x34, 0x34, 0x12}, sec.Data)
}

// Scenario 4.
func TestScenarioDefinedWidthForcesLongmem(t *testing.T) {
	ctx := assembleString(t, ".define SZ.w16 = $1000\nld A, SZ\n")
	sec, ok := ctx.Sections.Get("text")
	require.True(t, ok)
	assert.Equal(t, []byte{0xC6, 0, 0}, sec.Data)

	require.Equal(t, 1, ctx.Relocs.Len())
	r := ctx.Relocs.All()[0]
	assert.Equal(t, reloc.Absolute, r.Kind)
	assert.Equal(t, 1, r.Offset)
	assert.Equal(t, 2, r.Length)
	assert.Equal(t, "SZ", r.Symbol)
}

// Scenario 5.
func TestScenarioForwardJraDisplacement(t *testing.T) {
	ctx := assembleString(t, "jra TARGET\nnop\nTARGET:\n")
	sec, ok := ctx.Sections.Get("text")
	require.True(t, ok)
	assert.Equal(t, []byte{0x20, 0x01, 0x9D}, sec.Data)
	assert.Equal(t, 0, ctx.Relocs.Len())
}

func TestExportAndPrint(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "in.s")
	require.NoError(t, os.WriteFile(path, []byte("F:\n.export F\n.print \"hi\", {1 + 2}\n"), 0o644))

	var out bytes.Buffer
	ctx, err := asmr.Assemble(path, asmr.Options{PrintOut: &out})
	require.NoError(t, err)

	sym, ok := ctx.Symbols.Find("F")
	require.True(t, ok)
	assert.True(t, sym.Export)
	assert.Equal(t, "hi3", out.String())
}

func TestConditionalSkipsDeadBranch(t *testing.T) {
	ctx := assembleString(t, ".if {0}\nnop\nnop\n.endif\nret\n")
	sec, ok := ctx.Sections.Get("text")
	require.True(t, ok)
	assert.Equal(t, []byte{0x81}, sec.Data)
}

func TestExternCallProducesRelocation(t *testing.T) {
	ctx := assembleString(t, ".extern F\ncall F\n")
	require.Equal(t, 1, ctx.Relocs.Len())
	r := ctx.Relocs.All()[0]
	assert.Equal(t, "F", r.Symbol)
	assert.Equal(t, reloc.Absolute, r.Kind)
	assert.Equal(t, 2, r.Length)
}

func TestFinalizeResolvesConstantRelocation(t *testing.T) {
	ctx := assembleString(t, ".define SZ.w16 = $1000\nld A, SZ\n")
	require.Equal(t, 1, ctx.Relocs.Len())

	require.NoError(t, ctx.Finalize())

	sec, ok := ctx.Sections.Get("text")
	require.True(t, ok)
	assert.Equal(t, []byte{0xC6, 0x10, 0x00}, sec.Data)
	assert.Equal(t, 0, ctx.Relocs.Len())
}

func TestFinalizeLeavesExternRelocation(t *testing.T) {
	ctx := assembleString(t, ".extern F\ncall F\n")
	require.NoError(t, ctx.Finalize())
	assert.Equal(t, 1, ctx.Relocs.Len())
}

func TestDefineUsedAsFillCount(t *testing.T) {
	ctx := assembleString(t, ".define COUNT = 5\n.fill COUNT, $AA\n")
	sec, ok := ctx.Sections.Get("text")
	require.True(t, ok)
	assert.Equal(t, []byte{0xAA, 0xAA, 0xAA, 0xAA, 0xAA}, sec.Data)
}
