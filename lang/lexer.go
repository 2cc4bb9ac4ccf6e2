package lang

import (
	"context"
	"strings"
)

// rawMode selects what the lexer does with the deeper-indented lines that
// follow the current one.
type rawMode int

const (
	rawNone    rawMode = iota
	rawText            // emit a block-text token ("script." blocks)
	rawComment         // append to the comment token just pushed
)

// Lexer splits template source into tokens, one line at a time.
//
// At the start of each line's content (after indentation), the lexer offers
// the line to every registered [Scanner] in order. A scanner that recognizes
// the text consumes it with [Lexer.Consume], pushes its tokens with
// [Lexer.Push], and reports true; the built-in rules then do not run for that
// line.
type Lexer struct {
	ctx      context.Context //nolint:containedctx
	filename string
	lines    []string
	scanners []Scanner

	line  int    // 1-based index of the current line
	col   int    // 1-based column of rest[0]
	off   Pos    // added to reported positions
	rest  string // unconsumed content of the current line
	raw   rawMode
	stack []int
	toks  []Token
}

func newLexer(
	ctx context.Context,
	filename, src string,
	scanners []Scanner,
) *Lexer {
	src = strings.ReplaceAll(src, "\r\n", "\n")

	return &Lexer{
		ctx:      ctx,
		filename: filename,
		lines:    strings.Split(src, "\n"),
		scanners: scanners,
		stack:    []int{0},
	}
}

// Context returns the context of the compile run.
func (l *Lexer) Context() context.Context { return l.ctx }

// Filename returns the name of the file being lexed.
func (l *Lexer) Filename() string { return l.filename }

// Line returns the 1-based number of the current line.
func (l *Lexer) Line() int { return l.line + l.off.Line }

// Col returns the 1-based column of the next unconsumed byte.
func (l *Lexer) Col() int { return l.col + l.off.Col }

// Rest returns the unconsumed remainder of the current line.
func (l *Lexer) Rest() string { return l.rest }

// Consume advances past the next n bytes of the current line.
func (l *Lexer) Consume(n int) {
	n = min(max(n, 0), len(l.rest))
	l.rest = l.rest[n:]
	l.col += n
}

// Push appends tok to the token stream. A token without a line number is
// positioned at the lexer's current line and column.
func (l *Lexer) Push(tok Token) {
	if tok.Line == 0 {
		tok.Line, tok.Col = l.Line(), l.Col()
	}

	l.toks = append(l.toks, tok)
}

// Errorf returns an [ErrLex] error positioned at the current column.
func (l *Lexer) Errorf(format string, args ...any) error {
	return ErrLex.
		WithPosition(Pos{Filename: l.filename, Line: l.Line(), Col: l.Col()}).
		Wrapf(format, args...)
}

func (l *Lexer) run() ([]Token, error) {
	for l.line = 1; l.line <= len(l.lines); l.line++ {
		text := l.lines[l.line-1]
		if strings.TrimSpace(text) == "" {
			continue
		}

		width := leadingWidth(text)
		l.rest, l.col = text[width:], width+1

		if err := l.indentTo(width); err != nil {
			return nil, err
		}

		if err := l.lexLine(); err != nil {
			return nil, err
		}

		switch mode := l.raw; mode {
		case rawText:
			line := l.Line() + 1
			if text := l.captureRaw(width); text != "" {
				l.Push(Token{Kind: KindBlockText, Val: text, Line: line, Col: width + 1 + l.off.Col})
			}

		case rawComment:
			if text := l.captureRaw(width); text != "" {
				last := &l.toks[len(l.toks)-1]
				last.Val = strings.TrimSpace(last.Val + "\n" + text)
			}
		}

		l.raw = rawNone
		l.Push(Token{Kind: KindNewline})
	}

	l.col = 1

	for len(l.stack) > 1 {
		l.stack = l.stack[:len(l.stack)-1]
		l.Push(Token{Kind: KindOutdent})
	}

	l.Push(Token{Kind: KindEOS})

	return l.toks, nil
}

func (l *Lexer) indentTo(width int) error {
	top := l.stack[len(l.stack)-1]

	switch {
	case width > top:
		l.stack = append(l.stack, width)
		l.Push(Token{Kind: KindIndent})

	case width < top:
		for width < top {
			l.stack = l.stack[:len(l.stack)-1]
			top = l.stack[len(l.stack)-1]
			l.Push(Token{Kind: KindOutdent})
		}

		if top != width {
			return l.Errorf("inconsistent indentation")
		}
	}

	return nil
}

// captureRaw consumes the lines following the current one that are indented
// deeper than width (blank lines included) and returns them dedented.
func (l *Lexer) captureRaw(width int) string {
	var block []string

	for l.line < len(l.lines) {
		next := l.lines[l.line]
		if strings.TrimSpace(next) != "" && leadingWidth(next) <= width {
			break
		}

		block = append(block, next)
		l.line++
	}

	for len(block) > 0 && strings.TrimSpace(block[len(block)-1]) == "" {
		block = block[:len(block)-1]
	}

	return strings.Join(dedent(block), "\n")
}

func (l *Lexer) lexLine() error {
	for _, s := range l.scanners {
		ok, err := s.Scan(l)
		if err != nil {
			return err
		}

		if ok {
			if rest := strings.TrimSpace(l.rest); rest != "" {
				return l.Errorf("unexpected %q after %s", rest, s.Name())
			}

			return nil
		}
	}

	return l.lexBuiltin()
}

func (l *Lexer) lexBuiltin() error {
	s := l.rest

	switch {
	case strings.HasPrefix(s, "//-"):
		l.Push(Token{Kind: KindComment, Val: strings.TrimSpace(s[3:])})
		l.raw = rawComment

	case strings.HasPrefix(s, "//"):
		l.Push(Token{Kind: KindComment, Val: strings.TrimSpace(s[2:]), Buffered: true})
		l.raw = rawComment

	case strings.HasPrefix(s, "|"):
		l.Push(Token{Kind: KindText, Val: strings.TrimPrefix(s[1:], " ")})

	case strings.HasPrefix(s, "<"):
		l.Push(Token{Kind: KindText, Val: s})

	case strings.HasPrefix(s, "!="), strings.HasPrefix(s, "="):
		return l.lexCode()

	case strings.HasPrefix(s, "+"):
		return l.lexCall()

	default:
		if n := readName(s, ""); n > 0 && (n == len(s) || s[n] == ' ') {
			if ok, err := l.lexKeyword(s[:n], strings.TrimSpace(s[n:])); ok || err != nil {
				return err
			}
		}

		return l.lexTag()
	}

	l.Consume(len(l.rest))

	return nil
}

func (l *Lexer) lexKeyword(word, arg string) (bool, error) {
	tok := Token{Val: arg}

	switch word {
	case "doctype":
		tok.Kind = KindDoctype
		if tok.Val == "" {
			tok.Val = "html"
		}

	case "if", "unless", "each", "for":
		tok.Kind = TokenKind(word)
		if word == "for" {
			tok.Kind = KindEach
		}

		if arg == "" {
			return true, l.Errorf("%s requires an expression", word)
		}

	case "else":
		tok.Kind = KindElse

	case "include":
		tok.Kind = KindInclude
		if arg == "" {
			return true, l.Errorf("include requires a path")
		}

	case "mixin":
		tok.Kind = KindMixin

		n := readName(arg, ".")
		if n == 0 {
			return true, l.Errorf("mixin requires a name")
		}

		tok.Val = arg[:n]

		if tail := strings.TrimSpace(arg[n:]); tail != "" {
			if tail[0] != '(' || matchClose(tail, 0) != len(tail)-1 {
				return true, l.Errorf("malformed mixin parameters %q", tail)
			}

			tok.Args = tail[1 : len(tail)-1]
		}

	default:
		return false, nil
	}

	l.Push(tok)
	l.Consume(len(l.rest))

	return true, nil
}

func (l *Lexer) lexCode() error {
	tok := Token{Kind: KindCode, Escape: true}

	n := 1
	if strings.HasPrefix(l.rest, "!=") {
		tok.Escape, n = false, 2
	}

	tok.Val = strings.TrimSpace(l.rest[n:])
	if tok.Val == "" {
		return l.Errorf("missing expression")
	}

	l.Push(tok)
	l.Consume(len(l.rest))

	return nil
}

func (l *Lexer) lexCall() error {
	s := l.rest[1:]

	n := readName(s, ".")
	if n == 0 {
		return l.Errorf("mixin call requires a name")
	}

	tok := Token{Kind: KindCall, Val: s[:n]}

	if tail := strings.TrimSpace(s[n:]); tail != "" {
		if tail[0] != '(' || matchClose(tail, 0) != len(tail)-1 {
			return l.Errorf("malformed mixin arguments %q", tail)
		}

		tok.Args = tail[1 : len(tail)-1]
	}

	l.Push(tok)
	l.Consume(len(l.rest))

	return nil
}

func (l *Lexer) lexTag() error {
	if n := readName(l.rest, ":"); n > 0 {
		l.Push(Token{Kind: KindTag, Val: l.rest[:n]})
		l.Consume(n)
	} else if l.rest[0] != '#' && l.rest[0] != '.' {
		return l.Errorf("unexpected %q", l.rest)
	}

	for l.rest != "" {
		switch c := l.rest[0]; {
		case (c == '#' || c == '.') && len(l.rest) > 1 && isNameChar(l.rest[1]):
			kind := KindClass
			if c == '#' {
				kind = KindID
			}

			n := 1
			for n < len(l.rest) && isNameChar(l.rest[n]) {
				n++
			}

			l.Push(Token{Kind: kind, Val: l.rest[1:n]})
			l.Consume(n)

		case c == '(':
			end := matchClose(l.rest, 0)
			if end < 0 {
				return l.Errorf("unterminated attribute list")
			}

			l.Push(Token{Kind: KindAttrs, Val: l.rest[1:end]})
			l.Consume(end + 1)

		case strings.HasPrefix(l.rest, "&attributes("):
			open := len("&attributes")

			end := matchClose(l.rest, open)
			if end < 0 {
				return l.Errorf("unterminated &attributes")
			}

			l.Push(Token{Kind: KindAttributes, Val: strings.TrimSpace(l.rest[open+1 : end])})
			l.Consume(end + 1)

		default:
			return l.lexTagTail()
		}
	}

	return nil
}

// lexTagTail lexes what follows a tag's name, id, classes, and attributes.
func (l *Lexer) lexTagTail() error {
	switch s := l.rest; {
	case s == ".":
		l.raw = rawText

	case strings.HasPrefix(s, "!="), strings.HasPrefix(s, "="):
		return l.lexCode()

	case strings.HasPrefix(s, " "):
		if text := s[1:]; strings.TrimSpace(text) != "" {
			l.Consume(1)
			l.Push(Token{Kind: KindText, Val: text})
		}

	default:
		return l.Errorf("unexpected %q", s)
	}

	l.Consume(len(l.rest))

	return nil
}
