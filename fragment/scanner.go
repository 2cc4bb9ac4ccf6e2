package fragment

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/ardnew/tmplfrag/lang"
)

// Token kinds produced by the [Plugin] scanner.
const (
	KindRuntimeEmbed lang.TokenKind = "runtime-embed"
	KindFragmentDecl lang.TokenKind = "fragment-decl"
	KindFragmentRef  lang.TokenKind = "fragment-ref"
)

const (
	keywordRuntime  = "runtime"
	keywordFragment = "fragment"
	keywordRender   = "render"
)

//nolint:gochecknoglobals
var dottedWarning sync.Once

// Scan implements [lang.Scanner]. In priority order it recognizes
//
//	runtime
//	fragment name[(params)]
//	render name[(args)]
//
// and declines everything else.
func (p *Plugin) Scan(l *lang.Lexer) (bool, error) {
	s := l.Rest()

	if rest, ok := cutKeyword(s, keywordRuntime); ok && strings.TrimSpace(rest) == "" {
		l.Push(lang.Token{Kind: KindRuntimeEmbed})
		l.Consume(len(s))

		return true, nil
	}

	for _, kw := range []struct {
		word string
		kind lang.TokenKind
	}{
		{keywordFragment, KindFragmentDecl},
		{keywordRender, KindFragmentRef},
	} {
		rest, ok := cutKeyword(s, kw.word)
		if !ok || rest == "" {
			continue
		}

		tok, err := p.scanNamed(l, kw.kind, strings.TrimLeft(rest, " \t"))
		if err != nil {
			return true, err
		}

		l.Push(tok)
		l.Consume(len(s))

		return true, nil
	}

	return false, nil
}

// scanNamed lexes the "name[(list)]" that follows a keyword.
func (p *Plugin) scanNamed(l *lang.Lexer, kind lang.TokenKind, s string) (lang.Token, error) {
	n := scanName(s)
	if n == 0 {
		return lang.Token{}, l.Errorf("%s requires a name", kind)
	}

	tok := lang.Token{Kind: kind, Val: s[:n]}

	if tail := strings.TrimSpace(s[n:]); tail != "" {
		if tail[0] != '(' || closing(tail) != len(tail)-1 {
			return lang.Token{}, l.Errorf("malformed %s list %q", kind, tail)
		}

		tok.Args = strings.TrimSpace(tail[1 : len(tail)-1])
	}

	if strings.Contains(tok.Val, ".") {
		dottedWarning.Do(func() {
			p.logger().WarnContext(l.Context(),
				"dotted fragment names are deprecated; the namespace is the text before the first dot",
				slog.String("fragment", tok.Val),
				slog.String("file", l.Filename()),
				slog.Int("line", l.Line()))
		})
	}

	return tok, nil
}

// cutKeyword returns the text after word if s starts with it at a word
// boundary.
func cutKeyword(s, word string) (string, bool) {
	rest, ok := strings.CutPrefix(s, word)
	if !ok || (rest != "" && rest[0] != ' ' && rest[0] != '\t') {
		return "", false
	}

	return rest, true
}

// scanName returns the length of the fragment name at the start of s:
// identifier characters and dots, starting with a letter, '_' or '$'.
func scanName(s string) int {
	n := 0

	for n < len(s) {
		c := s[n]
		if c == '.' && n > 0 || isIdent(string(c)) || c >= '0' && c <= '9' && n > 0 {
			n++

			continue
		}

		break
	}

	return n
}

// closing returns the index of the parenthesis closing s[0], skipping
// quoted strings and nested brackets, or -1.
func closing(s string) int {
	depth := 0

	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '"', '\'', '`':
			for i++; i < len(s) && s[i] != c; i++ {
				if s[i] == '\\' {
					i++
				}
			}

		case '(', '[', '{':
			depth++

		case ')', ']', '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}

	return -1
}
