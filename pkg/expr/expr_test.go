package expr_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sodiumlight/stm8tc/pkg/expr"
	"github.com/sodiumlight/stm8tc/pkg/lexer"
	"github.com/sodiumlight/stm8tc/pkg/symtab"
)

func eval(t *testing.T, src string, tab *symtab.Table) int64 {
	t.Helper()
	if tab == nil {
		tab = symtab.New()
	}
	l := lexer.New(strings.NewReader(src), "t.s")
	v, err := expr.Eval(l, tab)
	require.NoError(t, err)
	return v
}

// Property 3 (constant expression algebra): precedence and associativity.
func TestPrecedence(t *testing.T) {
	assert.EqualValues(t, 14, eval(t, "{2 + 3 * 4}", nil))
	assert.EqualValues(t, 20, eval(t, "{(2 + 3) * 4}", nil))
	assert.EqualValues(t, 3, eval(t, "{1 | 2 & 3}", nil)) // & binds tighter than |
	assert.EqualValues(t, 9, eval(t, "{8 | 1}", nil))
	assert.EqualValues(t, 6, eval(t, "{5 ^ 3}", nil))
	assert.EqualValues(t, 16, eval(t, "{1 << 4}", nil))
	assert.EqualValues(t, -1, eval(t, "{~0}", nil))
}

func TestLeftAssociativity(t *testing.T) {
	assert.EqualValues(t, -2, eval(t, "{10 - 5 - 7}", nil))
	assert.EqualValues(t, 1, eval(t, "{8 / 4 / 2}", nil))
}

func TestTruncatingDivision(t *testing.T) {
	assert.EqualValues(t, -2, eval(t, "{(0 - 7) / 3}", nil))
	assert.EqualValues(t, -1, eval(t, "{(0 - 7) % 3}", nil))
}

func TestSymbolLookup(t *testing.T) {
	tab := symtab.New()
	require.NoError(t, tab.Add(symtab.Symbol{Name: "SZ", Kind: symtab.Constant, Value: 16}))
	assert.EqualValues(t, 32, eval(t, "{SZ * 2}", tab))
}

func TestLabelInExpressionIsFatal(t *testing.T) {
	tab := symtab.New()
	require.NoError(t, tab.Add(symtab.Symbol{Name: "L", Kind: symtab.Label}))
	l := lexer.New(strings.NewReader("{L}"), "t.s")
	_, err := expr.Eval(l, tab)
	require.Error(t, err)
}

func TestBareNumbersByBase(t *testing.T) {
	assert.EqualValues(t, 255, eval(t, "{$FF}", nil))
	assert.EqualValues(t, 10, eval(t, "{%1010}", nil))
	assert.EqualValues(t, 15, eval(t, "{@17}", nil))
}
