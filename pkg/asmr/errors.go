package asmr

import "errors"

var (
	ErrUnexpectedLine   = errors.New("unexpected content at start of line")
	ErrBadLabel         = errors.New("malformed label definition")
	ErrBadDirective     = errors.New("malformed directive")
	ErrUnknownDirective = errors.New("unknown directive")
	ErrBadInstruction   = errors.New("malformed instruction")
	ErrUnmatchedEndif   = errors.New(".endif without a matching conditional")
	ErrIncludeDepth     = errors.New("include nesting too deep")
)
