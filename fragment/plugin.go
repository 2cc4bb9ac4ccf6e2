package fragment

import (
	"context"
	"log/slog"

	"github.com/ardnew/tmplfrag/lang"
	"github.com/ardnew/tmplfrag/log"
)

// Plugin adds fragment syntax to every stage of a compile. It is a
// [lang.Scanner], [lang.ParseExtension], [lang.NodeRewriter],
// [lang.VisitorExtension], and [lang.CompileHook].
//
// Compiles started by its [Compiler] share the [CompileContext] the plugin
// keeps its state in. Any other compile the plugin takes part in, such as
// one given a request context by [Middleware], starts a run of its own.
type Plugin struct {
	c *Compiler
}

var (
	_ lang.Scanner          = (*Plugin)(nil)
	_ lang.ParseExtension   = (*Plugin)(nil)
	_ lang.NodeRewriter     = (*Plugin)(nil)
	_ lang.VisitorExtension = (*Plugin)(nil)
	_ lang.CompileHook      = (*Plugin)(nil)
)

// Name implements [lang.Extension].
func (*Plugin) Name() string { return "fragment" }

func (p *Plugin) logger() log.Logger { return p.c.logger }

// ParseHandlers implements [lang.ParseExtension].
func (p *Plugin) ParseHandlers() map[lang.TokenKind]lang.ParseFunc {
	return map[lang.TokenKind]lang.ParseFunc{
		KindFragmentDecl: p.parseFragmentDeclaration,
		KindRuntimeEmbed: p.parseRuntimeEmbed,
		KindFragmentRef:  p.parseFragmentReference,
	}
}

// BeginCompile implements [lang.CompileHook]. It starts a run unless ctx
// already carries one.
func (p *Plugin) BeginCompile(
	ctx context.Context,
	opts lang.Options,
	target lang.Target,
) (context.Context, func()) {
	if CompileContextFrom(ctx) != nil {
		return ctx, nil
	}

	cc := NewCompileContext()
	cc.enter(opts, target)

	p.logger().TraceContext(ctx, "compile start",
		slog.String("run_id", cc.ID().String()),
		slog.String("target", target.String()),
		slog.String("file", opts.Filename))

	return WithCompileContext(ctx, cc), cc.leave
}
