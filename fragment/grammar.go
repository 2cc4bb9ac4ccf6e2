package fragment

import (
	"errors"
	"log/slog"

	"github.com/ardnew/tmplfrag/lang"
)

// parseFragmentDeclaration parses a fragment declaration and its body,
// compiles the body, and declares the fragment in the run's registry.
func (p *Plugin) parseFragmentDeclaration(ps *lang.Parser) (lang.Node, error) {
	tok, err := ps.Expect(KindFragmentDecl)
	if err != nil {
		return nil, err
	}

	pos := tok.Pos(ps.Filename())
	name := slog.String("fragment", tok.Val)

	cc := CompileContextFrom(ps.Context())
	if cc == nil {
		return nil, ErrNoCompileContext.WithPosition(pos).With(name)
	}

	if ps.MixinDepth() > 0 {
		return nil, ErrNestedFragment.WithPosition(pos).With(name)
	}

	params, err := ParseParams(tok.Args)
	if err != nil {
		return nil, lang.WrapError(err).WithPosition(pos).With(name)
	}

	ns, local := SplitName(tok.Val, p.c.namespace)

	if prev, ok := cc.registry.Lookup(local); ok {
		return nil, ErrDuplicateFragment.WithPosition(pos).With(
			name, slog.String("previous", prev.Pos.String()))
	}

	ps.EnterMixin()
	body, err := ps.Block()
	ps.LeaveMixin()

	if errors.Is(err, lang.ErrMissingBlock) {
		return nil, ErrMissingBody.WithPosition(pos).With(name)
	}

	if err != nil {
		return nil, err
	}

	// The outdent closing the body sits on the first line after it.
	src := lang.Dedent(ps.Source(tok.Line+1, ps.Prev().Line-1))

	f := &Fragment{
		Declared:  tok.Val,
		Name:      local,
		Namespace: ns,
		Params:    params,
		Target:    ServerPending,
		Pos:       pos,
	}

	// Body positions are reported where the body sits in the file.
	origin := lang.Pos{Filename: ps.Filename(), Line: tok.Line, Col: body.Pos.Col - 1}

	if err := p.c.compileBody(ps.Context(), cc, f, src, origin); err != nil {
		return nil, lang.WrapError(err).With(name)
	}

	if err := cc.registry.Declare(f); err != nil {
		return nil, err
	}

	p.logger().DebugContext(ps.Context(), "declared fragment",
		slog.String("run_id", cc.ID().String()),
		slog.String("fragment", f.Signature()),
		slog.String("namespace", f.Namespace),
		slog.String("pos", pos.String()))

	if p.c.onDeclare != nil {
		p.c.onDeclare(f)
	}

	return &lang.FragmentDeclaration{
		Pos:    pos,
		Name:   tok.Val,
		Params: tok.Args,
		Block:  body,
	}, nil
}

// parseRuntimeEmbed returns a script element holding the client runtime.
func (p *Plugin) parseRuntimeEmbed(ps *lang.Parser) (lang.Node, error) {
	tok, err := ps.Expect(KindRuntimeEmbed)
	if err != nil {
		return nil, err
	}

	return &lang.Script{Pos: tok.Pos(ps.Filename()), Content: RuntimeLibrary()}, nil
}

// parseFragmentReference parses an invocation of a fragment, which must
// already be declared.
func (p *Plugin) parseFragmentReference(ps *lang.Parser) (lang.Node, error) {
	tok, err := ps.Expect(KindFragmentRef)
	if err != nil {
		return nil, err
	}

	pos := tok.Pos(ps.Filename())

	cc := CompileContextFrom(ps.Context())
	if cc == nil {
		return nil, ErrNoCompileContext.WithPosition(pos).With(slog.String("fragment", tok.Val))
	}

	if _, err := cc.registry.Resolve(tok.Val); err != nil {
		return nil, lang.WrapError(err).WithPosition(pos)
	}

	return &lang.FragmentReference{Pos: pos, Name: tok.Val, Data: tok.Args}, nil
}
