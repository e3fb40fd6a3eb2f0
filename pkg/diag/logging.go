package diag

import (
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
)

// NewLogger builds the "-I"/verbose structured-logging fanout SPEC_FULL.md
// §10 assigns to samber/slog-multi: a human-readable handler always writes
// to stderr, and when logPath is non-empty a second JSON handler also
// writes every record to that file, so a build run can be replayed from
// the log without rerunning the toolchain. verbose lowers the stderr
// handler's level to Debug; the file handler (when present) always logs at
// Debug, since its purpose is a durable full record.
func NewLogger(logPath string, verbose bool) (*slog.Logger, func() error, error) {
	stderrLevel := slog.LevelInfo
	if verbose {
		stderrLevel = slog.LevelDebug
	}
	stderrHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: stderrLevel})

	if logPath == "" {
		return slog.New(stderrHandler), func() error { return nil }, nil
	}

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	fileHandler := slog.NewJSONHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug})

	logger := slog.New(slogmulti.Fanout(stderrHandler, fileHandler))
	return logger, f.Close, nil
}

// discard is used by callers that want a logger but have no sink configured
// (e.g. a library caller that never set --log-file and isn't verbose).
var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// Discard returns a logger that drops every record.
func Discard() *slog.Logger { return discard }
