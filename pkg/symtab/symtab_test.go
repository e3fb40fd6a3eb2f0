package symtab_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sodiumlight/stm8tc/pkg/symtab"
)

func TestAddAndFind(t *testing.T) {
	tab := symtab.New()
	require.NoError(t, tab.Add(symtab.Symbol{Name: "SZ", Kind: symtab.Constant, Value: 0x1000, Width: symtab.W16}))

	sym, ok := tab.Find("SZ")
	require.True(t, ok)
	assert.Equal(t, int64(0x1000), sym.Value)
	assert.Equal(t, symtab.W16, sym.Width)
}

func TestRedefinitionIsError(t *testing.T) {
	tab := symtab.New()
	require.NoError(t, tab.Add(symtab.Symbol{Name: "X", Kind: symtab.Constant}))
	err := tab.Add(symtab.Symbol{Name: "X", Kind: symtab.Constant})
	require.Error(t, err)
	assert.True(t, errors.Is(err, symtab.ErrRedefined))
}

func TestDefaultWidthIsOneByte(t *testing.T) {
	tab := symtab.New()
	require.NoError(t, tab.Add(symtab.Symbol{Name: "A", Kind: symtab.Extern}))
	sym, _ := tab.Find("A")
	assert.Equal(t, symtab.W8, sym.Width)
}

func TestQuestionMarkExpandsToCurrentLabel(t *testing.T) {
	tab := symtab.New()
	require.NoError(t, tab.Add(symtab.Symbol{Name: "LOOP", Kind: symtab.Label}))
	require.NoError(t, tab.SetLabelValue("LOOP", 42, "text"))

	assert.Equal(t, "LOOP", tab.Expand("?"))
	assert.Equal(t, "LOOP_end", tab.Expand("?_end"))
}

func TestExportWarnsOnDoubleExport(t *testing.T) {
	tab := symtab.New()
	require.NoError(t, tab.Add(symtab.Symbol{Name: "F", Kind: symtab.Label}))

	warn, err := tab.Export("F")
	require.NoError(t, err)
	assert.Nil(t, warn)

	warn, err = tab.Export("F")
	require.NoError(t, err)
	require.Error(t, warn)
	assert.True(t, errors.Is(warn, symtab.ErrAlreadyExport))
}

func TestExportNonLabelIsError(t *testing.T) {
	tab := symtab.New()
	require.NoError(t, tab.Add(symtab.Symbol{Name: "C", Kind: symtab.Constant}))
	_, err := tab.Export("C")
	require.Error(t, err)
	assert.True(t, errors.Is(err, symtab.ErrKindMismatch))
}

func TestInsertionOrderPreserved(t *testing.T) {
	tab := symtab.New()
	require.NoError(t, tab.Add(symtab.Symbol{Name: "B", Kind: symtab.Constant}))
	require.NoError(t, tab.Add(symtab.Symbol{Name: "A", Kind: symtab.Constant}))

	names := make([]string, 0, 2)
	for _, s := range tab.All() {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"B", "A"}, names)
}
