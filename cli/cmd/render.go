package cmd

import (
	"context"
	"log/slog"
	"maps"
	"os"
	"strings"

	"github.com/go-task/slim-sprig/v3"
	"github.com/goccy/go-yaml"

	"github.com/ardnew/tmplfrag/log"
)

// Render renders a template on the server side.
type Render struct {
	Data []string          `help:"YAML or JSON file of template data (repeatable, later files win)." placeholder:"FILE"      short:"d" type:"existingfile"`
	Set  map[string]string `help:"Set a template value, overriding data files."                      placeholder:"KEY=VALUE" short:"s"`
	Out  string            `help:"Write output to FILE instead of standard output."                  placeholder:"FILE"      short:"o" type:"path"`

	File string `arg:"" default:"-" help:"Template file, or '-' for standard input." name:"file"`
}

// Run executes the render command.
func (r *Render) Run(ctx context.Context) (err error) {
	ctx, cancel := context.WithCancelCause(ctx)

	defer func(err *error) { cancel(*err) }(&err)

	streams := streamsFrom(ctx)

	srcs, err := readSources([]string{r.File}, streams.In)
	if err != nil {
		return err
	}

	if len(srcs) == 0 {
		return ErrReadSource.With(slog.String("file", r.File))
	}

	data, err := r.data()
	if err != nil {
		return err
	}

	src := srcs[0]
	attr := slog.String("file", src.name)

	opts := src.options(ctx)
	opts.Funcs = map[string]any(sprig.FuncMap())

	tmpl, err := newCompiler(ctx).Compile(ctx, src.data, opts)
	if err != nil {
		return compileError(src, err)
	}

	var sb strings.Builder

	if err := tmpl.Execute(&sb, data); err != nil {
		return ErrRender.With(attr).Wrap(err)
	}

	log.DebugContext(ctx, "rendered template",
		attr,
		slog.Int("bytes", sb.Len()),
		slog.Any("dependencies", tmpl.Dependencies()))

	return writeOutput(streams.Out, r.Out, sb.String())
}

// data merges the data files in order, then the values set on the command
// line.
func (r *Render) data() (map[string]any, error) {
	data := make(map[string]any)

	for _, path := range r.Data {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, ErrReadData.With(slog.String("file", path)).Wrap(err)
		}

		var m map[string]any
		if err := yaml.Unmarshal(b, &m); err != nil {
			return nil, ErrReadData.With(slog.String("file", path)).Wrap(err)
		}

		maps.Copy(data, m)
	}

	for k, v := range r.Set {
		data[k] = v
	}

	return data, nil
}
