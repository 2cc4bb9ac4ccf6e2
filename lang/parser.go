package lang

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/ardnew/tmplfrag/log"
)

// DefaultExt is appended to include paths that have no extension.
const DefaultExt = ".tpl"

// parseState is shared by the parser of a template and the parsers of every
// file it includes.
type parseState struct {
	opts       Options
	fsys       fs.FS
	logger     log.Logger
	scanners   []Scanner
	handlers   map[TokenKind]ParseFunc
	mixinDepth int
	deps       []string
	stack      []string
}

// Parser builds a tree from the tokens of one file.
//
// Parse handlers registered by a [ParseExtension] receive the Parser and use
// its exported methods to consume tokens and nested blocks.
type Parser struct {
	ctx      context.Context //nolint:containedctx
	filename string
	lines    []string
	toks     []Token
	pos      int
	off      Pos
	state    *parseState
}

func (st *parseState) newParser(
	ctx context.Context,
	filename, src string,
) (*Parser, error) {
	lx := newLexer(ctx, filename, src, st.scanners)

	if filename == st.opts.Filename {
		lx.off = Pos{Line: st.opts.LineOffset, Col: st.opts.ColOffset}
	}

	toks, err := lx.run()
	if err != nil {
		return nil, err
	}

	st.logger.TraceContext(ctx, "lex complete",
		slog.String("file", filename),
		slog.Int("tokens", len(toks)))

	return &Parser{
		ctx:      ctx,
		filename: filename,
		lines:    lx.lines,
		toks:     toks,
		off:      lx.off,
		state:    st,
	}, nil
}

// Context returns the context of the compile run.
func (p *Parser) Context() context.Context { return p.ctx }

// Filename returns the name of the file being parsed.
func (p *Parser) Filename() string { return p.filename }

// Options returns the options of the compile run.
func (p *Parser) Options() Options { return p.state.opts }

// Peek returns the next token without consuming it.
func (p *Parser) Peek() Token {
	if p.pos >= len(p.toks) {
		return Token{Kind: KindEOS, Line: len(p.lines) + 1 + p.off.Line, Col: 1 + p.off.Col}
	}

	return p.toks[p.pos]
}

// Next consumes and returns the next token.
func (p *Parser) Next() Token {
	tok := p.Peek()
	if p.pos < len(p.toks) {
		p.pos++
	}

	return tok
}

// Prev returns the most recently consumed token. After [Parser.Block]
// returns, it is the outdent closing the block, whose line is the first
// line after the block.
func (p *Parser) Prev() Token {
	if p.pos == 0 {
		return Token{Kind: KindEOS, Line: 1 + p.off.Line, Col: 1 + p.off.Col}
	}

	return p.toks[p.pos-1]
}

// Expect consumes the next token, which must be of the given kind.
func (p *Parser) Expect(kind TokenKind) (Token, error) {
	tok := p.Next()
	if tok.Kind != kind {
		return tok, p.Errorf(tok, "expected %s, found %s", kind, tok)
	}

	return tok, nil
}

// Block parses the indented block that follows the current line. It returns
// an [ErrMissingBlock] error if the next line is not indented deeper.
func (p *Parser) Block() (*Block, error) {
	p.skipNewlines()

	if tok := p.Peek(); tok.Kind != KindIndent {
		return nil, ErrMissingBlock.WithPosition(tok.Pos(p.filename))
	}

	return p.parseBlock()
}

// EnterMixin increments the mixin nesting depth.
func (p *Parser) EnterMixin() { p.state.mixinDepth++ }

// LeaveMixin decrements the mixin nesting depth.
func (p *Parser) LeaveMixin() { p.state.mixinDepth-- }

// MixinDepth returns the number of mixin bodies enclosing the current token.
func (p *Parser) MixinDepth() int { return p.state.mixinDepth }

// Source returns the raw source of lines from through to (1-based,
// inclusive, numbered as in token positions), clipped to the file.
func (p *Parser) Source(from, to int) string {
	from, to = from-p.off.Line, to-p.off.Line
	from = max(from, 1)
	to = min(to, len(p.lines))

	if from > to {
		return ""
	}

	return strings.Join(p.lines[from-1:to], "\n")
}

// Errorf returns an [ErrParse] error positioned at tok.
func (p *Parser) Errorf(tok Token, format string, args ...any) error {
	return ErrParse.WithPosition(tok.Pos(p.filename)).Wrapf(format, args...)
}

// body parses the block of the construct introduced by tok.
func (p *Parser) body(tok Token, what string) (*Block, error) {
	b, err := p.Block()
	if errors.Is(err, ErrMissingBlock) {
		return nil, p.Errorf(tok, "%s without body", what)
	}

	return b, err
}

func (p *Parser) skipNewlines() {
	for p.Peek().Kind == KindNewline {
		p.Next()
	}
}

func (p *Parser) parseRoot() (*Block, error) {
	root := &Block{Pos: Pos{Filename: p.filename, Line: 1 + p.off.Line, Col: 1 + p.off.Col}}

	for {
		p.skipNewlines()

		switch tok := p.Peek(); tok.Kind {
		case KindEOS:
			return root, nil

		case KindIndent, KindOutdent:
			return nil, p.Errorf(tok, "unexpected indentation")
		}

		n, err := p.statement()
		if err != nil {
			return nil, err
		}

		if n != nil {
			root.Nodes = append(root.Nodes, n)
		}
	}
}

func (p *Parser) parseBlock() (*Block, error) {
	open, err := p.Expect(KindIndent)
	if err != nil {
		return nil, err
	}

	b := &Block{Pos: open.Pos(p.filename)}

	for {
		p.skipNewlines()

		switch tok := p.Peek(); tok.Kind {
		case KindOutdent:
			p.Next()

			return b, nil

		case KindEOS:
			return b, nil

		case KindIndent:
			return nil, p.Errorf(tok, "unexpected indentation")
		}

		n, err := p.statement()
		if err != nil {
			return nil, err
		}

		if n != nil {
			b.Nodes = append(b.Nodes, n)
		}
	}
}

func (p *Parser) statement() (Node, error) {
	tok := p.Peek()

	if fn, ok := p.state.handlers[tok.Kind]; ok {
		return fn(p)
	}

	switch tok.Kind {
	case KindTag, KindID, KindClass:
		return p.parseTag()

	case KindText, KindBlockText:
		p.Next()

		return p.interpolate(tok)

	case KindCode:
		p.Next()

		return &Code{Pos: tok.Pos(p.filename), Expr: tok.Val, Escape: tok.Escape}, nil

	case KindComment:
		p.Next()

		return &Comment{Pos: tok.Pos(p.filename), Val: tok.Val, Buffered: tok.Buffered}, nil

	case KindDoctype:
		p.Next()

		return &Doctype{Pos: tok.Pos(p.filename), Val: tok.Val}, nil

	case KindIf, KindUnless:
		p.Next()

		test := tok.Val
		if tok.Kind == KindUnless {
			test = "!(" + test + ")"
		}

		return p.parseConditional(tok, test)

	case KindEach:
		return p.parseEach()

	case KindMixin:
		return p.parseMixin()

	case KindCall:
		p.Next()

		return &MixinCall{Pos: tok.Pos(p.filename), Name: tok.Val, Args: tok.Args}, nil

	case KindInclude:
		return p.parseInclude()

	case KindElse:
		return nil, p.Errorf(tok, "else without if")

	default:
		return nil, p.Errorf(tok, "unexpected %s", tok)
	}
}

func (p *Parser) parseTag() (*Tag, error) {
	tok := p.Peek()
	tag := &Tag{Pos: tok.Pos(p.filename), Name: "div"}

	if tok.Kind == KindTag {
		p.Next()

		tag.Name = tok.Val
	}

	for {
		switch tok := p.Peek(); tok.Kind {
		case KindID:
			p.Next()

			tag.Attrs = append(tag.Attrs,
				Attr{Name: "id", Val: strconv.Quote(tok.Val), Escape: true})

			continue

		case KindClass:
			p.Next()

			tag.Attrs = append(tag.Attrs,
				Attr{Name: "class", Val: strconv.Quote(tok.Val), Escape: true})

			continue

		case KindAttrs:
			p.Next()

			attrs, err := p.parseAttrs(tok)
			if err != nil {
				return nil, err
			}

			tag.Attrs = append(tag.Attrs, attrs...)

			continue

		case KindAttributes:
			p.Next()

			if tag.Attributes != "" {
				return nil, p.Errorf(tok, "duplicate &attributes")
			}

			tag.Attributes = tok.Val

			continue
		}

		break
	}

	var body []Node

	switch tok := p.Peek(); tok.Kind {
	case KindText, KindBlockText:
		p.Next()

		n, err := p.interpolate(tok)
		if err != nil {
			return nil, err
		}

		body = append(body, n)

	case KindCode:
		p.Next()

		body = append(body,
			&Code{Pos: tok.Pos(p.filename), Expr: tok.Val, Escape: tok.Escape})
	}

	p.skipNewlines()

	if p.Peek().Kind == KindIndent {
		b, err := p.parseBlock()
		if err != nil {
			return nil, err
		}

		body = append(body, b.Nodes...)
	}

	if len(body) > 0 {
		tag.Block = &Block{Pos: tag.Pos, Nodes: body}
	}

	return tag, nil
}

// parseAttrs parses a comma-separated list of name, name=expr, or
// name!=expr items.
func (p *Parser) parseAttrs(tok Token) ([]Attr, error) {
	var attrs []Attr

	for _, item := range SplitArgs(tok.Val) {
		if item == "" {
			continue
		}

		n := readName(item, ":@.")
		if n == 0 {
			return nil, p.Errorf(tok, "malformed attribute %q", item)
		}

		attr := Attr{Name: item[:n], Val: "true", Escape: true}

		switch rest := strings.TrimSpace(item[n:]); {
		case rest == "":

		case strings.HasPrefix(rest, "!="):
			attr.Val, attr.Escape = strings.TrimSpace(rest[2:]), false

		case strings.HasPrefix(rest, "="):
			attr.Val = strings.TrimSpace(rest[1:])

		default:
			return nil, p.Errorf(tok, "malformed attribute %q", item)
		}

		if attr.Val == "" {
			return nil, p.Errorf(tok, "attribute %q has no value", attr.Name)
		}

		attrs = append(attrs, attr)
	}

	return attrs, nil
}

// interpolate splits text into literal runs and the "#{expr}" (escaped) and
// "!{expr}" (raw) expressions embedded in it. A backslash before the sigil
// suppresses interpolation.
func (p *Parser) interpolate(tok Token) (Node, error) {
	var (
		nodes []Node
		lit   strings.Builder
	)

	s := tok.Val
	at := func(i int) Pos {
		return Pos{Filename: p.filename, Line: tok.Line, Col: tok.Col + i}
	}

	flush := func(i int) {
		if lit.Len() > 0 {
			nodes = append(nodes, &Text{Pos: at(i), Val: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(s); i++ {
		c := s[i]

		if c == '\\' && i+2 < len(s) && (s[i+1] == '#' || s[i+1] == '!') && s[i+2] == '{' {
			lit.WriteByte(s[i+1])

			i++

			continue
		}

		if (c == '#' || c == '!') && i+1 < len(s) && s[i+1] == '{' {
			end := matchClose(s, i+1)
			if end < 0 {
				return nil, p.Errorf(tok, "unterminated interpolation")
			}

			expr := strings.TrimSpace(s[i+2 : end])
			if expr == "" {
				return nil, p.Errorf(tok, "empty interpolation")
			}

			flush(i)
			nodes = append(nodes, &Code{Pos: at(i), Expr: expr, Escape: c == '#'})
			i = end

			continue
		}

		lit.WriteByte(c)
	}

	flush(len(s))

	if len(nodes) == 1 {
		return nodes[0], nil
	}

	return &Block{Pos: tok.Pos(p.filename), Nodes: nodes}, nil
}

func (p *Parser) parseConditional(tok Token, test string) (*Conditional, error) {
	then, err := p.body(tok, string(tok.Kind))
	if err != nil {
		return nil, err
	}

	cond := &Conditional{Pos: tok.Pos(p.filename), Test: test, Then: then}

	p.skipNewlines()

	if p.Peek().Kind != KindElse {
		return cond, nil
	}

	etok := p.Next()

	if rest, ok := strings.CutPrefix(etok.Val, "if "); ok {
		nested, err := p.parseConditional(etok, strings.TrimSpace(rest))
		if err != nil {
			return nil, err
		}

		cond.Else = &Block{Pos: nested.Pos, Nodes: []Node{nested}}

		return cond, nil
	}

	if etok.Val != "" {
		return nil, p.Errorf(etok, "unexpected %q after else", etok.Val)
	}

	if cond.Else, err = p.body(etok, "else"); err != nil {
		return nil, err
	}

	return cond, nil
}

func (p *Parser) parseEach() (*Each, error) {
	tok := p.Next()

	vars, expr, ok := strings.Cut(tok.Val, " in ")
	if !ok || strings.TrimSpace(expr) == "" {
		return nil, p.Errorf(tok, "expected \"each value[, key] in expr\"")
	}

	each := &Each{Pos: tok.Pos(p.filename), Expr: strings.TrimSpace(expr)}

	names := strings.Split(vars, ",")
	if len(names) > 2 {
		return nil, p.Errorf(tok, "too many loop variables")
	}

	for i, name := range names {
		name = strings.TrimSpace(name)
		if readName(name, "") != len(name) || name == "" {
			return nil, p.Errorf(tok, "invalid loop variable %q", name)
		}

		if i == 0 {
			each.Val = name
		} else {
			each.Key = name
		}
	}

	b, err := p.body(tok, "each")
	if err != nil {
		return nil, err
	}

	each.Block = b

	return each, nil
}

func (p *Parser) parseMixin() (*Mixin, error) {
	tok := p.Next()

	params := Params(tok.Args)
	for i, param := range params {
		if _, rest := RestParam(param); rest && i != len(params)-1 {
			return nil, p.Errorf(tok, "rest parameter %q must be last", param)
		}
	}

	p.EnterMixin()
	defer p.LeaveMixin()

	b, err := p.body(tok, "mixin "+strconv.Quote(tok.Val))
	if err != nil {
		return nil, err
	}

	return &Mixin{Pos: tok.Pos(p.filename), Name: tok.Val, Params: params, Block: b}, nil
}

func (p *Parser) parseInclude() (Node, error) {
	tok := p.Next()

	name, data, err := p.resolveInclude(tok.Val)
	if err != nil {
		return nil, ErrInclude.WithPosition(tok.Pos(p.filename)).Wrap(err)
	}

	if slices.Contains(p.state.stack, name) {
		return nil, ErrInclude.WithPosition(tok.Pos(p.filename)).
			Wrapf("include cycle: %s", strings.Join(append(p.state.stack, name), " -> "))
	}

	p.state.logger.TraceContext(p.ctx, "include",
		slog.String("from", p.filename),
		slog.String("file", name))

	if !slices.Contains(p.state.deps, name) {
		p.state.deps = append(p.state.deps, name)
	}

	sub, err := p.state.newParser(p.ctx, name, string(data))
	if err != nil {
		return nil, err
	}

	p.state.stack = append(p.state.stack, name)
	defer func() { p.state.stack = p.state.stack[:len(p.state.stack)-1] }()

	return sub.parseRoot()
}

// resolveInclude locates an included file relative to the including file,
// then along the search path.
func (p *Parser) resolveInclude(name string) (string, []byte, error) {
	name = filepath.ToSlash(strings.TrimSpace(name))
	if path.Ext(name) == "" {
		name += DefaultExt
	}

	var candidates []string

	if rooted, ok := strings.CutPrefix(name, "/"); ok {
		candidates = append(candidates, rooted)
	} else {
		candidates = append(candidates,
			path.Join(path.Dir(filepath.ToSlash(p.filename)), name))

		for _, dir := range p.state.opts.SearchPath {
			candidates = append(candidates,
				path.Join(strings.TrimPrefix(filepath.ToSlash(dir), "/"), name))
		}
	}

	for _, c := range candidates {
		if !fs.ValidPath(c) {
			continue
		}

		if data, err := fs.ReadFile(p.state.fsys, c); err == nil {
			return c, data, nil
		}
	}

	return "", nil, fmt.Errorf("%q not found (searched %s)",
		name, strings.Join(candidates, ", "))
}
