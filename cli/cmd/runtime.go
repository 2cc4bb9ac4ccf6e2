package cmd

import (
	"context"
	"log/slog"

	"github.com/ardnew/tmplfrag/fragment"
	"github.com/ardnew/tmplfrag/log"
)

// Runtime prints the client runtime script that compiled functions call
// into, for pages that load it separately.
type Runtime struct {
	Script bool   `help:"Wrap the runtime in a script element."       short:"s"`
	Out    string `help:"Write output to FILE instead of standard output." placeholder:"FILE" short:"o" type:"path"`
}

// Run executes the runtime command.
func (r *Runtime) Run(ctx context.Context) error {
	lib := fragment.RuntimeLibrary()

	if r.Script {
		lib = "<script>" + lib + "</script>"
	}

	log.DebugContext(ctx, "client runtime",
		slog.Int("bytes", len(lib)),
		slog.Bool("script", r.Script))

	return writeOutput(streamsFrom(ctx).Out, r.Out, lib+"\n")
}
