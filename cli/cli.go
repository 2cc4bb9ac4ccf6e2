package cli

import (
	"context"
	"os"

	"github.com/alecthomas/kong"

	"github.com/ardnew/tmplfrag/cli/cmd"
	"github.com/ardnew/tmplfrag/fragment"
	"github.com/ardnew/tmplfrag/pkg"
)

// CLI is the top-level command-line interface for tmplfrag.
type CLI struct {
	Log   logConfig   `embed:"" group:"log"   prefix:"log-"`
	Pprof pprofConfig `embed:"" group:"pprof" prefix:"pprof-"`

	Version kong.VersionFlag `help:"Print version and exit." short:"V"`

	Include   []string `help:"Directory searched for included templates (repeatable)." placeholder:"DIR" short:"I" type:"path"`
	Namespace string   `default:"${namespace}"                                        help:"Client namespace of fragments declared without one."`

	Compile   cmd.Compile   `cmd:"" help:"Compile templates to client functions"`
	Render    cmd.Render    `cmd:"" help:"Render a template"                    default:"withargs"`
	Fragments cmd.Fragments `cmd:"" help:"List the fragments templates declare"`
	Runtime   cmd.Runtime   `cmd:"" help:"Print the client runtime script"`
	Init      cmd.Init      `cmd:"" help:"Initialize configuration file"`
}

// Run executes the tmplfrag CLI with the given context and arguments.
// The exit function is called with the appropriate exit code upon completion.
func Run(
	ctx context.Context,
	exit func(code int),
	args ...string,
) error {
	var cli CLI

	if err := mkdirAllRequired(); err != nil {
		return err
	}

	configFilePath := configPath(baseConfig)

	vars := kong.Vars{
		cmd.ConfigIdentifier: configFilePath,
		cmd.CacheIdentifier:  pkg.CacheDir(),
		"namespace":          fragment.DefaultNamespace,
		"version":            pkg.Version(),
	}.
		CloneWith(cli.Log.vars()).
		CloneWith(cli.Pprof.vars())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Pre-scan for logger flags so that the logger is configured before
	// kong reports anything, regardless of flag position.
	cli.Log.scan(args)

	parser, err := kong.New(&cli,
		kong.Name(pkg.Name),
		kong.Description(pkg.Description),
		kong.UsageOnError(),
		kong.Exit(exit),
		kong.ExplicitGroups(
			[]kong.Group{cli.Log.group(), cli.Pprof.group()},
		),
		kong.BindSingletonProvider(func() context.Context {
			return ctx
		}),
		kong.ConfigureHelp(
			kong.HelpOptions{
				Compact:             true,
				Summary:             true,
				Tree:                true,
				NoExpandSubcommands: true,
			}),
		kong.Configuration(resolve(formatYAML), configFilePath+extYAML),
		kong.Configuration(resolve(formatTOML), configFilePath+extTOML),
		vars,
	)
	if err != nil {
		return err
	}

	ktx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	cli.Log.start(ctx)

	// No-op unless built with tag pprof and enabled.
	defer cli.Pprof.start(ctx)()

	ctx = cmd.WithContext(ctx, ktx)
	ctx = cmd.WithSettings(ctx, cmd.Settings{
		SearchPath: pkg.SearchPath(os.Getenv(pkg.EnvSearchPath), cli.Include...),
		Namespace:  cli.Namespace,
	})

	// Commands receive the context carrying the parsed settings rather than
	// the one bound before parsing.
	ktx.BindTo(ctx, (*context.Context)(nil))

	return ktx.Run(&cli)
}
