package markup

import (
	"errors"
	"fmt"
)

// ErrMalformedMarkup matches every *MalformedMarkupError via errors.Is.
var ErrMalformedMarkup = errors.New("malformed markup")

// MalformedMarkupError reports why an input could not be parsed. No partial
// result is ever returned alongside it.
type MalformedMarkupError struct {
	Offset int // byte offset into the source
	Line   int
	Column int
	Tag    string // offending tag name, if known
	Reason string
	Err    error // underlying lexer/parser error, if any
}

func (e *MalformedMarkupError) Error() string {
	loc := ""
	if e.Line > 0 {
		loc = fmt.Sprintf(" at %d:%d", e.Line, e.Column)
	}
	if e.Tag != "" {
		return fmt.Sprintf("malformed markup%s: <%s>: %s", loc, e.Tag, e.Reason)
	}
	return fmt.Sprintf("malformed markup%s: %s", loc, e.Reason)
}

// Is reports whether target is ErrMalformedMarkup.
func (e *MalformedMarkupError) Is(target error) bool { return target == ErrMalformedMarkup }

func (e *MalformedMarkupError) Unwrap() error { return e.Err }
