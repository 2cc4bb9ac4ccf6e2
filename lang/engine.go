package lang

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/ardnew/tmplfrag/log"
)

// Options configure one compile run.
type Options struct {
	// Filename names the template source in errors and resolves relative
	// includes.
	Filename string
	// LineOffset and ColOffset are added to positions within the source
	// given for Filename, for sources cut from a larger file. They do not
	// apply to included files.
	LineOffset int
	ColOffset  int
	// Name is the name of the compiled template and of the generated client
	// function.
	Name string
	// FS supplies included files. When nil the engine's file system is used.
	FS fs.FS
	// SearchPath lists directories searched for includes not found relative
	// to the including file.
	SearchPath []string
	// Debug interleaves line markers into client code and rethrows runtime
	// errors annotated with the template position.
	Debug bool
	// InlineRuntime embeds the runtime helpers used by client code into the
	// generated function instead of reading them from a global tmpl object.
	InlineRuntime bool
	// Globals lists names client code reads from the global scope rather
	// than from its locals.
	Globals []string
	// Funcs are visible to every server expression.
	Funcs map[string]any
	// Extensions participate in the run, ahead of those carried by the
	// context (see [WithExtensions]).
	Extensions []Extension
}

// Engine compiles template source.
type Engine struct {
	logger log.Logger
	fsys   fs.FS
}

// EngineOption configures an [Engine].
type EngineOption func(*Engine)

// WithLogger sets the logger of the engine.
func WithLogger(logger log.Logger) EngineOption {
	return func(e *Engine) { e.logger = logger }
}

// WithFS sets the default file system included files are read from.
func WithFS(fsys fs.FS) EngineOption {
	return func(e *Engine) { e.fsys = fsys }
}

// NewEngine returns an engine reading includes from the current directory.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{fsys: os.DirFS(".")}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Logger returns the logger of the engine.
func (e *Engine) Logger() log.Logger { return e.logger }

// ClientResult is the output of [Engine.CompileClient].
type ClientResult struct {
	// Body is the source of a JavaScript function taking a locals object and
	// returning the rendered markup.
	Body string
	// Dependencies lists the files included while compiling.
	Dependencies []string
}

// Compile compiles src into a server template.
func (e *Engine) Compile(ctx context.Context, src string, opts Options) (*Template, error) {
	start := time.Now()

	exts, err := extensionsFor(ctx, opts)
	if err != nil {
		return nil, err
	}

	ctx, end := exts.begin(ctx, opts, TargetServer)
	defer end()

	root, st, err := e.front(ctx, src, opts, exts)
	if err != nil {
		return nil, err
	}

	g := newGenerator(ctx, TargetServer, opts, exts.visitors(), e.logger)

	if err := g.Visit(root); err != nil {
		return nil, err
	}

	e.logger.DebugContext(ctx, "compiled template",
		slog.String("name", opts.Name),
		slog.String("file", opts.Filename),
		slog.Int("instructions", len(g.progs[0])),
		slog.Duration("elapsed", time.Since(start)))

	return &Template{
		name:  opts.Name,
		prog:  g.progs[0],
		funcs: opts.Funcs,
		deps:  st.deps,
	}, nil
}

// CompileClient compiles src into the source of a JavaScript function.
func (e *Engine) CompileClient(
	ctx context.Context,
	src string,
	opts Options,
) (*ClientResult, error) {
	start := time.Now()

	exts, err := extensionsFor(ctx, opts)
	if err != nil {
		return nil, err
	}

	ctx, end := exts.begin(ctx, opts, TargetClient)
	defer end()

	root, st, err := e.front(ctx, src, opts, exts)
	if err != nil {
		return nil, err
	}

	g := newGenerator(ctx, TargetClient, opts, exts.visitors(), e.logger)

	if err := g.Visit(root); err != nil {
		return nil, err
	}

	name := opts.Name
	if name == "" {
		name = "template"
	}

	body := g.function(name, g.Locals(root))

	e.logger.DebugContext(ctx, "compiled client template",
		slog.String("name", name),
		slog.String("file", opts.Filename),
		slog.Int("bytes", len(body)),
		slog.Duration("elapsed", time.Since(start)))

	return &ClientResult{Body: body, Dependencies: st.deps}, nil
}

// extensionsFor returns the extensions of a compile: those of opts, then
// those carried by ctx.
func extensionsFor(ctx context.Context, opts Options) (*Extensions, error) {
	exts, err := NewExtensions(opts.Extensions...)
	if err != nil {
		return nil, err
	}

	if err := exts.Merge(ExtensionsFrom(ctx)); err != nil {
		return nil, err
	}

	return exts, nil
}

// front lexes, parses, and rewrites src.
func (e *Engine) front(
	ctx context.Context,
	src string,
	opts Options,
	exts *Extensions,
) (*Block, *parseState, error) {
	fsys := opts.FS
	if fsys == nil {
		fsys = e.fsys
	}

	st := &parseState{
		opts:     opts,
		fsys:     fsys,
		logger:   e.logger,
		scanners: exts.scanners(),
		handlers: exts.handlers(),
	}

	if opts.Filename != "" {
		st.stack = []string{opts.Filename}
	}

	p, err := st.newParser(ctx, opts.Filename, src)
	if err != nil {
		return nil, nil, err
	}

	root, err := p.parseRoot()
	if err != nil {
		return nil, nil, err
	}

	e.logger.TraceContext(ctx, "parsed",
		slog.String("file", opts.Filename),
		slog.Int("nodes", len(root.Nodes)),
		slog.Int("extensions", exts.Len()))

	for _, rw := range exts.rewriters() {
		if root, err = rw.Rewrite(ctx, root); err != nil {
			return nil, nil, err
		}

		e.logger.TraceContext(ctx, "rewrote tree", slog.String("extension", rw.Name()))
	}

	return root, st, nil
}
