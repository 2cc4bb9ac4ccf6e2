package lang

import "strconv"

// TokenKind identifies the lexical class of a [Token].
//
// Kinds are plain strings so that extensions can introduce their own.
type TokenKind string

// Built-in token kinds.
const (
	KindIndent     TokenKind = "indent"
	KindOutdent    TokenKind = "outdent"
	KindNewline    TokenKind = "newline"
	KindEOS        TokenKind = "eos"
	KindTag        TokenKind = "tag"
	KindID         TokenKind = "id"
	KindClass      TokenKind = "class"
	KindAttrs      TokenKind = "attrs"
	KindAttributes TokenKind = "&attributes"
	KindText       TokenKind = "text"
	KindBlockText  TokenKind = "block-text"
	KindCode       TokenKind = "code"
	KindMixin      TokenKind = "mixin"
	KindCall       TokenKind = "call"
	KindIf         TokenKind = "if"
	KindUnless     TokenKind = "unless"
	KindElse       TokenKind = "else"
	KindEach       TokenKind = "each"
	KindInclude    TokenKind = "include"
	KindComment    TokenKind = "comment"
	KindDoctype    TokenKind = "doctype"
)

// Token is a lexical unit produced by the [Lexer].
type Token struct {
	Kind TokenKind
	// Val is the primary payload: a tag or mixin name, text, expression, or
	// the remainder of a keyword line.
	Val string
	// Args is the secondary payload, such as a parenthesized argument list.
	Args string
	// Escape reports whether buffered code output is HTML-escaped.
	Escape bool
	// Buffered reports whether a comment is written to the output.
	Buffered bool

	Line int
	Col  int
}

// Pos returns the position of t within filename.
func (t Token) Pos(filename string) Pos {
	return Pos{Filename: filename, Line: t.Line, Col: t.Col}
}

func (t Token) String() string {
	s := string(t.Kind)
	if t.Val != "" {
		s += " " + strconv.Quote(t.Val)
	}

	if t.Args != "" {
		s += " (" + t.Args + ")"
	}

	return s
}
