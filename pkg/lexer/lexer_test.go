package lexer_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sodiumlight/stm8tc/pkg/lexer"
	"github.com/sodiumlight/stm8tc/pkg/token"
)

// Property 1 (lexer round-trip): for every token kind and valid lexeme,
// requesting that kind with whence=Next returns the lexeme and leaves the
// position immediately past it.
func TestRoundTrip(t *testing.T) {
	cases := []struct {
		name   string
		src    string
		kind   token.Kind
		lexeme string
	}{
		{"ident", "label_1", token.Ident, "label_1"},
		{"decimal", "1234", token.Int, "1234"},
		{"hex", "$FF", token.Int, "$FF"},
		{"binary", "%1010", token.Int, "%1010"},
		{"octal", "@17", token.Int, "@17"},
		{"string", `"hi\n"`, token.String, `"hi\n"`},
		{"char", `'a'`, token.Char, `'a'`},
		{"shl", "<<", token.Shl, "<<"},
		{"shr", ">>", token.Shr, ">>"},
		{"colon", ":", token.Colon, ":"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			l := lexer.New(strings.NewReader(c.src+" "), "t.s")
			tok, matched, err := l.Token(c.kind, lexer.Next)
			require.NoError(t, err)
			require.True(t, matched)
			assert.Equal(t, c.lexeme, tok.Lexeme)

			// position left immediately past the lexeme: requesting the same
			// kind again finds only end of input and must not match.
			_, matchedAgain, err := l.Token(c.kind, lexer.Next)
			require.NoError(t, err)
			assert.False(t, matchedAgain)
		})
	}
}

func TestMismatchLeavesPositionUnchanged(t *testing.T) {
	l := lexer.New(strings.NewReader("foo"), "t.s")

	_, matched, err := l.Token(token.Int, lexer.Next)
	require.NoError(t, err)
	require.False(t, matched)

	tok, matched, err := l.Token(token.Ident, lexer.Next)
	require.NoError(t, err)
	require.True(t, matched)
	assert.Equal(t, "foo", tok.Lexeme)
}

func TestUnderscoreDigitGroups(t *testing.T) {
	l := lexer.New(strings.NewReader("1_000_000"), "t.s")
	tok, matched, err := l.Token(token.Int, lexer.Next)
	require.NoError(t, err)
	require.True(t, matched)
	assert.EqualValues(t, 1000000, tok.IntValue)
}

func TestNumberBases(t *testing.T) {
	cases := []struct {
		src  string
		want int64
	}{
		{"$10", 16},
		{"%10", 2},
		{"@10", 8},
		{"10", 10},
	}
	for _, c := range cases {
		l := lexer.New(strings.NewReader(c.src), "t.s")
		tok, matched, err := l.Token(token.Int, lexer.Next)
		require.NoError(t, err)
		require.True(t, matched)
		assert.EqualValues(t, c.want, tok.IntValue)
	}
}

func TestCommentToNewline(t *testing.T) {
	l := lexer.New(strings.NewReader("; a comment\nnop"), "t.s")
	tok, matched, err := l.Token(token.Comment, lexer.Next)
	require.NoError(t, err)
	require.True(t, matched)
	assert.Equal(t, "; a comment", tok.Lexeme)

	_, matched, err = l.Token(token.Line, lexer.Next)
	require.NoError(t, err)
	require.True(t, matched)

	tok, matched, err = l.Token(token.Ident, lexer.Next)
	require.NoError(t, err)
	require.True(t, matched)
	assert.Equal(t, "nop", tok.Lexeme)
}

func TestStringEscapes(t *testing.T) {
	l := lexer.New(strings.NewReader(`"a\nb\0c\\"`), "t.s")
	tok, matched, err := l.Token(token.String, lexer.Next)
	require.NoError(t, err)
	require.True(t, matched)
	assert.Equal(t, "a\nb\x00c\\", tok.StrValue)
}

func TestEOF(t *testing.T) {
	l := lexer.New(strings.NewReader(""), "t.s")
	tok, matched, err := l.Token(token.EOF, lexer.Next)
	require.NoError(t, err)
	require.True(t, matched)
	assert.Equal(t, token.EOF, tok.Kind)
}
