// Package xerr provides the sentinel-error wrapping convention used across
// this toolchain: every contextual error wraps a package-level sentinel so
// callers can classify it with errors.Is.
package xerr

import "fmt"

// Make wraps a sentinel error with a formatted detail message, preserving
// the sentinel for errors.Is checks.
func Make(err error, detailsBody string, args ...any) error {
	return fmt.Errorf("%w: "+detailsBody, append([]any{err}, args...)...)
}
