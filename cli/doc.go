// Package cli contains the command line interface for tmplfrag.
//
// # Usage
//
// Render is the default command, so a template file alone renders it:
//
//	tmplfrag page.tpl --data site.yaml --set user=ann
//
// Compile templates into client functions, one per file:
//
//	tmplfrag compile -o static/js views/*.tpl
//
// List the fragments the templates declare, or print the client runtime:
//
//	tmplfrag fragments --format yaml views/*.tpl
//	tmplfrag runtime --script
//
// # Include Search Path
//
// Included templates are found relative to the including file, then in each
// directory given with --include (-I), then in each directory listed in the
// TMPLFRAG_PATH environment variable.
//
// # Configuration File
//
// Flags may be set in config.yaml or config.toml in the user configuration
// directory (~/.config/tmplfrag on Linux). Keys are flag names, with
// underscores allowed in place of hyphens, either at the top level or under
// a "config" table:
//
//	config:
//	  namespace: views
//	  include: [partials]
//	  log-level: debug
//
// The init command writes such a file from the current flag values.
//
// # Logging Options
//
//   - --log-level: Set minimum log level (trace, debug, info, warn, error)
//   - --log-format: Set log output format (json, text)
//   - --log-time-layout: Set timestamp format (RFC3339, RFC3339Nano, etc.)
//   - --log-caller: Include caller information in log output
//   - --log-pretty: Colorize log output
//
// # Profiling Options
//
// Profiling is only available when built with the pprof build tag:
//
//	go build -tags pprof -o tmplfrag .
//
//   - --pprof-mode: Enable profiling (allocs, block, clock, cpu, goroutine,
//     heap, mem, mutex, thread, trace)
//   - --pprof-dir: Set profile output directory (default:
//     ~/.cache/tmplfrag/pprof)
package cli
