package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/ardnew/tmplfrag/lang"
	"github.com/ardnew/tmplfrag/log"
)

// Compile compiles templates into client functions.
type Compile struct {
	Out           string   `help:"Write each function to DIR/<name>.js instead of standard output." placeholder:"DIR"  short:"o" type:"path"`
	Name          string   `help:"Name of the generated function (default: file base name)."       short:"n"`
	Debug         bool     `help:"Annotate generated code with template positions."`
	InlineRuntime bool     `help:"Embed the runtime helpers each function uses."`
	Globals       []string `help:"Name read from the global scope (repeatable)."                   placeholder:"NAME" short:"g"`
	Check         bool     `help:"Validate the generated code without writing it."`
	Jobs          int      `default:"0"                                                             help:"Files compiled concurrently (0: one per CPU)." short:"j"`

	Files []string `arg:"" default:"-" help:"Template files, or '-' for standard input." name:"file"`
}

// compiled is the client function compiled from one template.
type compiled struct {
	name string
	file string
	body string
}

// Run executes the compile command.
func (c *Compile) Run(ctx context.Context) (err error) {
	ctx, cancel := context.WithCancelCause(ctx)

	defer func(err *error) { cancel(*err) }(&err)

	streams := streamsFrom(ctx)

	srcs, err := readSources(c.Files, streams.In)
	if err != nil {
		return err
	}

	if c.Name != "" && len(srcs) > 1 {
		return ErrNameFiles.With(slog.Int("files", len(srcs)))
	}

	start := time.Now()

	out, err := c.compileAll(ctx, srcs)
	if err != nil {
		return err
	}

	log.DebugContext(ctx, "compiled templates",
		slog.Int("files", len(out)),
		slog.Duration("elapsed", time.Since(start)))

	if c.Check {
		return nil
	}

	if c.Out != "" {
		if err := checkClashes(out); err != nil {
			return err
		}
	}

	var sb strings.Builder

	for _, o := range out {
		if c.Out == "" {
			sb.WriteString(o.body)
			sb.WriteByte('\n')

			continue
		}

		if err := writeOutput(nil, filepath.Join(c.Out, o.name+".js"), o.body); err != nil {
			return err
		}
	}

	return writeOutput(streams.Out, "", sb.String())
}

// compileAll compiles each source as its own run, at most c.Jobs at a
// time. Results keep the order of srcs; failures are reported together.
func (c *Compile) compileAll(ctx context.Context, srcs []source) ([]compiled, error) {
	jobs := c.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}

	compiler := newCompiler(ctx)

	out := make([]compiled, len(srcs))
	errs := make([]error, len(srcs))

	var g errgroup.Group

	g.SetLimit(jobs)

	for i, src := range srcs {
		g.Go(func() error {
			out[i], errs[i] = c.compileOne(ctx, compiler.CompileClient, src)

			return nil
		})
	}

	_ = g.Wait()

	if err := multierr.Combine(errs...); err != nil {
		return nil, err
	}

	return out, nil
}

type compileFunc func(context.Context, string, lang.Options) (*lang.ClientResult, error)

func (c *Compile) compileOne(ctx context.Context, fn compileFunc, src source) (compiled, error) {
	opts := src.options(ctx)
	opts.Debug = c.Debug
	opts.InlineRuntime = c.InlineRuntime
	opts.Globals = c.Globals

	if c.Name != "" {
		opts.Name = c.Name
	}

	attr := slog.String("file", src.name)

	res, err := fn(ctx, src.data, opts)
	if err != nil {
		return compiled{}, compileError(src, err)
	}

	if c.Check {
		if err := lang.CheckClient(res.Body); err != nil {
			return compiled{}, ErrCompile.With(attr).Wrap(err)
		}
	}

	log.TraceContext(ctx, "compiled client function",
		attr,
		slog.String("name", opts.Name),
		slog.Any("dependencies", res.Dependencies))

	return compiled{name: opts.Name, file: src.name, body: res.Body}, nil
}

// checkClashes reports templates whose functions share a name, and would
// therefore be written to the same file.
func checkClashes(out []compiled) error {
	var errs error

	first := make(map[string]string, len(out))

	for _, o := range out {
		prev, ok := first[o.name]
		if !ok {
			first[o.name] = o.file

			continue
		}

		errs = multierr.Append(errs, ErrOutputClash.With(
			slog.String("output", o.name+".js"),
			slog.String("file", o.file),
			slog.String("previous", prev),
		).Wrap(fmt.Errorf("%s and %s both write %s.js", prev, o.file, o.name)))
	}

	return errs
}
