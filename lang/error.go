package lang

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// Predefined errors (sentinel values).
//
// Errors derived from a sentinel with [Error.Wrap], [Error.With], or
// [Error.WithPosition] still satisfy [errors.Is] against it.
var (
	ErrLex               = NewError("lex error")
	ErrParse             = NewError("parse error")
	ErrMissingBlock      = NewError("expected indented block")
	ErrInclude           = NewError("include failed")
	ErrExprCompile       = NewError("expression compilation failed")
	ErrExprEvaluate      = NewError("expression evaluation failed")
	ErrRender            = NewError("render failed")
	ErrUnknownMixin      = NewError("unknown mixin")
	ErrClientSyntax      = NewError("invalid client code")
	ErrExtensionConflict = NewError("extension point conflict")
	ErrGenerate          = NewError("code generation failed")
)

// Error represents an error with optional structured logging attributes and
// source position. It implements both error and slog.LogValuer interfaces.
type Error struct {
	root  *Error
	msg   string
	err   error       // Wrapped error (for errors.Unwrap)
	pos   *Pos        // Source position, if known
	attrs []slog.Attr // Attributes for structured logging
}

// NewError creates a new Error with a message.
func NewError(msg string) *Error {
	e := &Error{msg: msg}
	e.root = e

	return e
}

// WrapError wraps a standard error into an Error.
func WrapError(err error) *Error {
	ee := &Error{}
	if errors.As(err, &ee) {
		return ee
	}

	e := &Error{err: err}
	e.root = e

	return e
}

// Error implements the error interface.
//
// The message has the form "file:line:col: msg: cause", omitting the parts
// that are not set.
func (e *Error) Error() string {
	part := make([]string, 0, 3)

	if e.pos != nil && e.pos.Line > 0 {
		part = append(part, e.pos.String())
	}

	if e.msg != "" {
		part = append(part, e.msg)
	}

	if e.err != nil {
		part = append(part, e.err.Error())
	}

	return strings.Join(part, ": ")
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error) Unwrap() error { return e.err }

// Is reports whether target is the sentinel e was derived from.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)

	return ok && t.root != nil && t.root == e.root
}

// Position returns the source position attached to e, if any.
func (e *Error) Position() (Pos, bool) {
	if e.pos == nil {
		return Pos{}, false
	}

	return *e.pos, true
}

// Attrs returns a copy of the structured attributes attached to e.
func (e *Error) Attrs() []slog.Attr {
	return append([]slog.Attr(nil), e.attrs...)
}

// LogValue implements slog.LogValuer for rich structured logging.
func (e *Error) LogValue() slog.Value {
	attrs := make([]slog.Attr, 0, len(e.attrs)+3)

	if e.msg != "" {
		attrs = append(attrs, slog.String("error", e.msg))
	}

	if e.err != nil {
		attrs = append(attrs, slog.String("cause", e.err.Error()))
	}

	if e.pos != nil {
		attrs = append(attrs, slog.String("pos", e.pos.String()))
	}

	return slog.GroupValue(append(attrs, e.attrs...)...)
}

// Wrap creates a new Error wrapping another error.
func (e *Error) Wrap(err error) *Error {
	c := *e
	c.err = err

	return &c
}

// Wrapf creates a new Error wrapping a formatted message.
func (e *Error) Wrapf(format string, args ...any) *Error {
	return e.Wrap(fmt.Errorf(format, args...))
}

// With adds attributes to the error for structured logging.
// This creates a new Error instance to maintain immutability.
func (e *Error) With(attrs ...slog.Attr) *Error {
	c := *e
	c.attrs = make([]slog.Attr, len(e.attrs)+len(attrs))
	copy(c.attrs, e.attrs)
	copy(c.attrs[len(e.attrs):], attrs)

	return &c
}

// WithPosition attaches a source position to the error.
func (e *Error) WithPosition(pos Pos) *Error {
	c := *e
	c.pos = &pos

	return &c
}

// Snippet renders the source line at pos with a caret under its column.
//
//	  3 | p= user.
//	               ^
//
// It returns the empty string when pos lies outside src.
func Snippet(src string, pos Pos) string {
	lines := strings.Split(src, "\n")

	if pos.Line < 1 || pos.Line > len(lines) {
		return ""
	}

	num := strconv.Itoa(pos.Line)

	var sb strings.Builder

	sb.WriteString("  ")
	sb.WriteString(num)
	sb.WriteString(" | ")
	sb.WriteString(strings.TrimRight(lines[pos.Line-1], "\r"))
	sb.WriteByte('\n')

	// 2 leading spaces + " | "
	sb.WriteString(strings.Repeat(" ", len(num)+5))

	if pos.Col > 1 {
		sb.WriteString(strings.Repeat(" ", pos.Col-1))
	}

	sb.WriteString("^\n")

	return sb.String()
}
