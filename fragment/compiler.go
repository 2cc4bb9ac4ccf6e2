package fragment

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/ardnew/tmplfrag/lang"
	"github.com/ardnew/tmplfrag/log"
)

// Compiler wraps the entry points of a [lang.Engine] so that every compile
// understands fragment syntax and nested compiles share one run.
type Compiler struct {
	engine    *lang.Engine
	logger    log.Logger
	namespace string
	onDeclare func(*Fragment)
	plugin    *Plugin
}

// Option configures a [Compiler].
type Option func(*Compiler)

// WithEngine sets the engine whose entry points are wrapped.
func WithEngine(e *lang.Engine) Option {
	return func(c *Compiler) { c.engine = e }
}

// WithLogger sets the logger of the compiler.
func WithLogger(logger log.Logger) Option {
	return func(c *Compiler) { c.logger = logger }
}

// WithNamespace sets the namespace of fragments declared without one.
func WithNamespace(ns string) Option {
	return func(c *Compiler) { c.namespace = ns }
}

// WithOnDeclare sets a function called with each fragment as it is
// declared.
func WithOnDeclare(fn func(*Fragment)) Option {
	return func(c *Compiler) { c.onDeclare = fn }
}

// New returns a compiler. Without [WithEngine], it wraps an engine created
// with the compiler's logger.
func New(opts ...Option) *Compiler {
	c := &Compiler{namespace: DefaultNamespace}

	for _, opt := range opts {
		opt(c)
	}

	if c.engine == nil {
		c.engine = lang.NewEngine(lang.WithLogger(c.logger))
	}

	c.plugin = &Plugin{c: c}

	return c
}

// Plugin returns the extension implementing fragment syntax for this
// compiler.
func (c *Compiler) Plugin() *Plugin { return c.plugin }

// Namespace returns the default namespace.
func (c *Compiler) Namespace() string { return c.namespace }

// Compile compiles src into a server template. It accepts and returns the
// same values as [lang.Engine.Compile].
func (c *Compiler) Compile(
	ctx context.Context,
	src string,
	opts lang.Options,
) (*lang.Template, error) {
	var tmpl *lang.Template

	err := c.run(ctx, opts, lang.TargetServer,
		func(ctx context.Context, opts lang.Options) (err error) {
			tmpl, err = c.engine.Compile(ctx, src, opts)

			return err
		})
	if err != nil {
		return nil, err
	}

	return tmpl, nil
}

// CompileClient compiles src into the source of a client function, along
// with the files it depends on. It accepts and returns the same values as
// [lang.Engine.CompileClient].
func (c *Compiler) CompileClient(
	ctx context.Context,
	src string,
	opts lang.Options,
) (*lang.ClientResult, error) {
	var res *lang.ClientResult

	err := c.run(ctx, opts, lang.TargetClient,
		func(ctx context.Context, opts lang.Options) (err error) {
			res, err = c.engine.CompileClient(ctx, src, opts)

			return err
		})
	if err != nil {
		return nil, err
	}

	return res, nil
}

// run calls fn within the run carried by ctx, starting one if there is
// none. The outermost call tears the run down when fn returns, whether or
// not it failed.
func (c *Compiler) run(
	ctx context.Context,
	opts lang.Options,
	target lang.Target,
	fn func(context.Context, lang.Options) error,
) error {
	cc := CompileContextFrom(ctx)
	if cc == nil {
		cc = NewCompileContext()
		ctx = WithCompileContext(ctx, cc)
	}

	cc.enter(opts, target)

	depth := cc.Depth()
	logger := c.logger.With(
		slog.String("run_id", cc.ID().String()),
		slog.Int("depth", depth),
	)

	logger.TraceContext(ctx, "compile start",
		slog.String("target", target.String()),
		slog.String("file", opts.Filename))

	start := time.Now()

	defer func() {
		cc.leave()

		if cc.Depth() == 0 {
			logger.TraceContext(ctx, "run complete", slog.Duration("elapsed", time.Since(start)))
		}
	}()

	if !slices.Contains(opts.Extensions, lang.Extension(c.plugin)) {
		opts.Extensions = append(slices.Clone(opts.Extensions), c.plugin)
	}

	err := fn(ctx, opts)
	if err != nil {
		logger.DebugContext(ctx, "compile failed", slog.Any("error", err))
	}

	return err
}

// compileBody compiles the source of a fragment body with the options of
// the outermost compile of the run. The body is positioned after origin:
// its first line follows origin.Line and its columns are shifted by
// origin.Col.
func (c *Compiler) compileBody(
	ctx context.Context,
	cc *CompileContext,
	f *Fragment,
	src string,
	origin lang.Pos,
) error {
	opts, _ := cc.Options()
	opts.Name = f.Name
	opts.Filename = origin.Filename
	opts.LineOffset = origin.Line
	opts.ColOffset = origin.Col
	opts.Debug = false
	opts.InlineRuntime = false

	res, err := c.CompileClient(ctx, src, opts)
	if err != nil {
		return err
	}

	f.Client = res.Body

	if cc.Target() == lang.TargetServer {
		if f.Server, err = c.Compile(ctx, src, opts); err != nil {
			return err
		}
	}

	return nil
}
