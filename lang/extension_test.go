package lang

import (
	"context"
	"errors"
	"strings"
	"testing"
)

const kindShout TokenKind = "shout"

// shout turns "shout text" lines into upper-cased paragraphs and counts the
// nodes offered to its visitor.
type shout struct {
	visits int
}

func (*shout) Name() string { return "shout" }

func (*shout) Scan(l *Lexer) (bool, error) {
	rest, ok := strings.CutPrefix(l.Rest(), "shout ")
	if !ok {
		return false, nil
	}

	l.Push(Token{Kind: kindShout, Val: rest})
	l.Consume(len(l.Rest()))

	return true, nil
}

func (*shout) ParseHandlers() map[TokenKind]ParseFunc {
	return map[TokenKind]ParseFunc{
		kindShout: func(p *Parser) (Node, error) {
			tok := p.Next()

			return &Tag{
				Pos:   tok.Pos(p.Filename()),
				Name:  "p",
				Block: &Block{Nodes: []Node{&Text{Val: strings.ToUpper(tok.Val)}}},
			}, nil
		},
	}
}

func (*shout) Rewrite(_ context.Context, root *Block) (*Block, error) {
	return RewriteBlock(root, func(n Node) (Node, bool) {
		if c, ok := n.(*Comment); ok && !c.Buffered {
			return &Text{Pos: c.Pos, Val: "[" + c.Val + "]"}, true
		}

		return n, false
	}), nil
}

func (s *shout) Visit(g *Generator, n Node) (bool, error) {
	s.visits++

	if t, ok := n.(*Text); ok && t.Val == "skip" {
		return true, nil
	}

	return false, nil
}

type rival struct{}

func (*rival) Name() string { return "rival" }

func (*rival) ParseHandlers() map[TokenKind]ParseFunc {
	return map[TokenKind]ParseFunc{kindShout: nil}
}

func TestExtensions_Pipeline(t *testing.T) {
	ext := &shout{}

	tmpl, err := NewEngine().Compile(context.Background(),
		"shout hello\n//- note\n| skip\n| keep",
		Options{Extensions: []Extension{ext}})
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}

	out, err := tmpl.Render(nil)
	if err != nil {
		t.Fatalf("render error: %v", err)
	}

	if want := "<p>HELLO</p>[note]keep"; out != want {
		t.Errorf("got %q, want %q", out, want)
	}

	if ext.visits == 0 {
		t.Error("visitor extension never called")
	}
}

func TestExtensions_FromContext(t *testing.T) {
	exts, err := NewExtensions(&shout{})
	if err != nil {
		t.Fatalf("NewExtensions: %v", err)
	}

	ctx := WithExtensions(context.Background(), exts)

	if ExtensionsFrom(ctx) != exts {
		t.Fatal("context does not carry the registry")
	}

	tmpl, err := NewEngine().Compile(ctx, "shout hi", Options{})
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}

	if out, _ := tmpl.Render(nil); out != "<p>HI</p>" {
		t.Errorf("got %q", out)
	}

	if ExtensionsFrom(context.Background()) != nil {
		t.Error("empty context carries a registry")
	}
}

func TestExtensions_Add(t *testing.T) {
	var exts Extensions

	s := &shout{}

	if err := exts.Add(s); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if err := exts.Add(s); err != nil {
		t.Errorf("re-adding the same extension: %v", err)
	}

	if exts.Len() != 1 {
		t.Errorf("Len = %d, want 1", exts.Len())
	}

	err := exts.Add(&rival{})
	if !errors.Is(err, ErrExtensionConflict) {
		t.Fatalf("expected ErrExtensionConflict, got %v", err)
	}

	if exts.Len() != 1 {
		t.Errorf("conflicting extension was added")
	}

	var e *Error
	if !errors.As(err, &e) || len(e.Attrs()) != 3 {
		t.Errorf("conflict error lacks attributes: %v", err)
	}

	if err := exts.Add(nil); err != nil {
		t.Errorf("Add(nil): %v", err)
	}
}

func TestExtensions_MergeConflict(t *testing.T) {
	a, _ := NewExtensions(&shout{})
	b, _ := NewExtensions(&rival{})

	if err := a.Merge(b); !errors.Is(err, ErrExtensionConflict) {
		t.Errorf("expected ErrExtensionConflict, got %v", err)
	}

	if err := a.Merge(a); err != nil {
		t.Errorf("self merge: %v", err)
	}

	if err := a.Merge(nil); err != nil {
		t.Errorf("nil merge: %v", err)
	}
}

type hookKey struct{}

// tracer records the compiles it is notified of and checks that the context
// it returns reaches the lexer.
type tracer struct {
	events []string
}

func (*tracer) Name() string { return "tracer" }

func (tr *tracer) BeginCompile(ctx context.Context, opts Options, target Target) (context.Context, func()) {
	tr.events = append(tr.events, "begin "+target.String()+" "+opts.Name)

	return context.WithValue(ctx, hookKey{}, opts.Name), func() {
		tr.events = append(tr.events, "end "+opts.Name)
	}
}

func (tr *tracer) Scan(l *Lexer) (bool, error) {
	if name, _ := l.Context().Value(hookKey{}).(string); name != "" {
		tr.events = append(tr.events, "scan "+name)
	}

	return false, nil
}

func TestExtensions_CompileHook(t *testing.T) {
	tr := &tracer{}

	exts, err := NewExtensions(tr)
	if err != nil {
		t.Fatal(err)
	}

	ctx := WithExtensions(context.Background(), exts)

	if _, err := NewEngine().Compile(ctx, "p ok", Options{Name: "a"}); err != nil {
		t.Fatalf("compile error: %v", err)
	}

	if _, err := NewEngine().CompileClient(ctx, "p(", Options{Name: "b"}); err == nil {
		t.Fatal("expected a parse error")
	}

	want := []string{
		"begin server a", "scan a", "end a",
		"begin client b", "scan b", "end b",
	}

	if strings.Join(tr.events, "|") != strings.Join(want, "|") {
		t.Errorf("events = %q, want %q", tr.events, want)
	}
}
