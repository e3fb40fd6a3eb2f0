// Package diag renders the caret-annotated diagnostics spec.md §7 requires
// (source path, line number, a replay of the offending token's trailing
// bytes, and a caret pointing at the error position) and provides the
// structured-logging fanout described in SPEC_FULL.md §9/§10. Coloring
// follows the teacher's cmd/cpu/debug.go: source text in one color, the
// caret line in another, severity in red/yellow.
package diag

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

var (
	errorColor   = color.New(color.FgRed, color.Bold)
	warnColor    = color.New(color.FgYellow, color.Bold)
	sourceColor  = color.New(color.FgHiWhite)
	caretColor   = color.New(color.FgGreen, color.Bold)
	locationColor = color.New(color.FgHiBlue)
)

// Tracer is the subset of *lexer.Lexer a diagnostic needs to replay the
// offending token: the file/line it stopped at, and the ring-buffered
// trailing bytes leading up to that point.
type Tracer interface {
	File() string
	Line() int
	Trace() string
}

// Fatal prints a fatal diagnostic to w: "path:line: error: message", then a
// caret-annotated replay of the lexer's trace buffer with the caret
// pointing at the last consumed byte, matching spec.md §7's "caret-annotated
// replay of the offending token from the lexer's trace buffer."
func Fatal(w io.Writer, t Tracer, err error) {
	report(w, t, err, errorColor, "error")
}

// Warn prints a non-fatal diagnostic the same way, without aborting the
// run (spec.md §7: "Warnings... print but do not abort").
func Warn(w io.Writer, t Tracer, err error) {
	report(w, t, err, warnColor, "warning")
}

func report(w io.Writer, t Tracer, err error, severity *color.Color, label string) {
	fmt.Fprintf(w, "%s %s: %v\n", locationColor.Sprintf("%s:%d:", t.File(), t.Line()), severity.Sprint(label), err)
	if t.Trace() == "" {
		return
	}
	printCaretLine(w, t.Trace())
}

// printCaretLine renders the trace buffer on one line and a caret
// immediately beneath its last character, replacing any interior
// newline with a middle-dot so multi-line traces (e.g. a runaway string)
// still render as a single replay line.
func printCaretLine(w io.Writer, trace string) {
	flat := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' {
			return '·'
		}
		return r
	}, trace)

	fmt.Fprintf(w, "  %s\n", sourceColor.Sprint(flat))
	fmt.Fprintf(w, "  %s%s\n", strings.Repeat(" ", len([]rune(flat))-1), caretColor.Sprint("^"))
}
