package cmd

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/goccy/go-yaml"
	"github.com/maruel/natural"
	"go.uber.org/multierr"

	"github.com/ardnew/tmplfrag/fragment"
)

// Fragments lists the fragments declared by templates.
type Fragments struct {
	Format string `default:"table" enum:"table,yaml" help:"Output format (table, yaml)." short:"f"`

	Files []string `arg:"" default:"-" help:"Template files, or '-' for standard input." name:"file"`
}

// fragmentInfo describes one declared fragment.
type fragmentInfo struct {
	File      string   `yaml:"file"`
	Line      int      `yaml:"line"`
	Namespace string   `yaml:"namespace"`
	Name      string   `yaml:"name"`
	Params    []string `yaml:"params,omitempty"`
	Client    string   `yaml:"client"`
}

//nolint:gochecknoglobals
var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	nameStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	posStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// Run executes the fragments command.
func (f *Fragments) Run(ctx context.Context) (err error) {
	ctx, cancel := context.WithCancelCause(ctx)

	defer func(err *error) { cancel(*err) }(&err)

	streams := streamsFrom(ctx)

	srcs, err := readSources(f.Files, streams.In)
	if err != nil {
		return err
	}

	infos, err := f.collect(ctx, srcs)
	if err != nil {
		return err
	}

	sort.SliceStable(infos, func(i, j int) bool {
		if infos[i].Namespace != infos[j].Namespace {
			return natural.Less(infos[i].Namespace, infos[j].Namespace)
		}

		return natural.Less(infos[i].Name, infos[j].Name)
	})

	var out string

	switch f.Format {
	case "yaml":
		b, err := yaml.Marshal(infos)
		if err != nil {
			return ErrYAMLMarshal.Wrap(err)
		}

		out = string(b)

	default:
		out = fragmentTable(infos)
	}

	return writeOutput(streams.Out, "", out)
}

// collect compiles each source for the client and records every fragment
// it declares.
func (f *Fragments) collect(ctx context.Context, srcs []source) ([]fragmentInfo, error) {
	var (
		infos []fragmentInfo
		errs  error
	)

	for _, src := range srcs {
		compiler := newCompiler(ctx, fragment.WithOnDeclare(func(frag *fragment.Fragment) {
			infos = append(infos, fragmentInfo{
				File:      src.name,
				Line:      frag.Pos.Line,
				Namespace: frag.Namespace,
				Name:      frag.Name,
				Params:    frag.ParamNames(),
				Client:    frag.Namespace + "." + frag.Name,
			})
		}))

		if _, err := compiler.CompileClient(ctx, src.data, src.options(ctx)); err != nil {
			errs = multierr.Append(errs, compileError(src, err))
		}
	}

	return infos, errs
}

// fragmentTable renders infos as aligned columns: the client reference,
// the signature, and the declaring position.
func fragmentTable(infos []fragmentInfo) string {
	rows := [][]string{{
		headerStyle.Render("FRAGMENT"),
		headerStyle.Render("PARAMS"),
		headerStyle.Render("DECLARED"),
	}}

	for _, info := range infos {
		rows = append(rows, []string{
			nameStyle.Render(info.Client),
			"(" + strings.Join(info.Params, ", ") + ")",
			posStyle.Render(info.File + ":" + strconv.Itoa(info.Line)),
		})
	}

	widths := make([]int, len(rows[0]))

	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}

	var sb strings.Builder

	for _, row := range rows {
		for i, cell := range row {
			sb.WriteString(cell)

			if i < len(row)-1 {
				sb.WriteString(strings.Repeat(" ", widths[i]-lipgloss.Width(cell)+2))
			}
		}

		sb.WriteByte('\n')
	}

	return sb.String()
}
