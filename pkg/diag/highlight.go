package diag

import (
	"regexp"
	"strings"

	"github.com/fatih/color"
)

// STM8 assembly syntax highlighting colors, following the shape (not the
// language) of the teacher's pkg/utils/syntax_highlight.go C highlighter:
// the same layered regexp-scan-then-stitch approach, retargeted at
// spec.md §6's assembly syntax instead of C.
var (
	asmDirectiveColor = color.New(color.FgBlue)
	asmMnemonicColor  = color.New(color.FgMagenta, color.Bold)
	asmRegisterColor  = color.New(color.FgCyan)
	asmStringColor    = color.New(color.FgGreen)
	asmNumberColor    = color.New(color.FgYellow)
	asmCommentColor   = color.New(color.FgHiBlack)
	asmLabelColor     = color.New(color.FgHiYellow)
)

// Register names matched exactly, per spec.md §6.
var asmRegisters = map[string]bool{
	"A": true, "X": true, "Y": true, "XL": true, "YL": true,
	"XH": true, "YH": true, "SP": true, "CC": true,
}

// Directive names recognised by pkg/asmr, prefixed with '.' in source.
var asmDirectives = map[string]bool{
	"section": true, "define": true, "extern": true, "export": true,
	"include": true, "dbendian": true, "if": true, "ifdef": true,
	"ifndef": true, "ifeq": true, "ifneq": true, "endif": true,
	"print": true, "fill": true, "place": true,
	"d8": true, "d16": true, "d24": true, "d32": true, "d64": true,
}

var (
	asmStringPattern  = regexp.MustCompile(`"(?:[^"\\]|\\.)*"`)
	asmCharPattern    = regexp.MustCompile(`'(?:[^'\\]|\\.)*'`)
	asmCommentPattern = regexp.MustCompile(`;.*$`)
	asmNumberPattern  = regexp.MustCompile(`\$[0-9a-fA-F]+|%[01]+|@[0-7]+|\b[0-9]+\b`)
	asmDirectivePattern = regexp.MustCompile(`\.[A-Za-z][A-Za-z0-9]*`)
	asmLabelPattern   = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(?:\.w(?:8|16|24))?\s*:`)
	asmIdentPattern   = regexp.MustCompile(`\b[A-Za-z_][A-Za-z0-9_]*\b`)
)

type asmToken struct {
	color      *color.Color
	start, end int
}

func asmOverlapsAny(start, end int, tokens []asmToken) bool {
	for _, t := range tokens {
		if start < t.end && end > t.start {
			return true
		}
	}
	return false
}

// HighlightAsm applies syntax highlighting to one line of STM8 assembly
// source. Nothing in cmd/asm, cmd/lkr or diag's caret display calls it.
func HighlightAsm(line string) string {
	if line == "" {
		return ""
	}

	var tokens []asmToken

	for _, m := range asmStringPattern.FindAllStringIndex(line, -1) {
		tokens = append(tokens, asmToken{asmStringColor, m[0], m[1]})
	}
	for _, m := range asmCharPattern.FindAllStringIndex(line, -1) {
		if !asmOverlapsAny(m[0], m[1], tokens) {
			tokens = append(tokens, asmToken{asmStringColor, m[0], m[1]})
		}
	}
	if m := asmCommentPattern.FindStringIndex(line); m != nil {
		// Once the comment starts, nothing past it should be re-tokenized,
		// but anything already found further left (a string containing
		// ';') still wins.
		if !asmOverlapsAny(m[0], m[1], tokens) {
			tokens = append(tokens, asmToken{asmCommentColor, m[0], m[1]})
		}
	}
	if m := asmLabelPattern.FindStringIndex(line); m != nil {
		if !asmOverlapsAny(m[0], m[1], tokens) {
			tokens = append(tokens, asmToken{asmLabelColor, m[0], m[1]})
		}
	}
	for _, m := range asmDirectivePattern.FindAllStringIndex(line, -1) {
		if !asmOverlapsAny(m[0], m[1], tokens) {
			tokens = append(tokens, asmToken{asmDirectiveColor, m[0], m[1]})
		}
	}
	for _, m := range asmNumberPattern.FindAllStringIndex(line, -1) {
		if !asmOverlapsAny(m[0], m[1], tokens) {
			tokens = append(tokens, asmToken{asmNumberColor, m[0], m[1]})
		}
	}
	for _, m := range asmIdentPattern.FindAllStringIndex(line, -1) {
		if asmOverlapsAny(m[0], m[1], tokens) {
			continue
		}
		word := line[m[0]:m[1]]
		switch {
		case asmRegisters[word]:
			tokens = append(tokens, asmToken{asmRegisterColor, m[0], m[1]})
		case asmMnemonicLooking(word):
			tokens = append(tokens, asmToken{asmMnemonicColor, m[0], m[1]})
		}
	}

	return stitchAsmTokens(line, tokens)
}

// asmMnemonicLooking approximates "is this an instruction mnemonic" without
// importing pkg/isa's operand tables into a rendering-only package:
// mnemonics are always lowercase in the source syntax this highlighter
// targets and 2-6 letters. Directive names are not checked here; a
// ".name" directive is colored by asmDirectivePattern before this runs.
func asmMnemonicLooking(word string) bool {
	if word == strings.ToLower(word) && len(word) >= 2 && len(word) <= 6 {
		for _, r := range word {
			if r < 'a' || r > 'z' {
				return false
			}
		}
		return true
	}
	return false
}

func stitchAsmTokens(line string, tokens []asmToken) string {
	if len(tokens) == 0 {
		return line
	}
	for i := 1; i < len(tokens); i++ {
		key := tokens[i]
		j := i - 1
		for j >= 0 && tokens[j].start > key.start {
			tokens[j+1] = tokens[j]
			j--
		}
		tokens[j+1] = key
	}

	var b strings.Builder
	pos := 0
	for _, t := range tokens {
		if t.start > pos {
			b.WriteString(line[pos:t.start])
		}
		b.WriteString(t.color.Sprint(line[t.start:t.end]))
		pos = t.end
	}
	if pos < len(line) {
		b.WriteString(line[pos:])
	}
	return b.String()
}
