// Package cmd implements the tmplfrag subcommands: compile, render,
// fragments, runtime, and init.
//
// Every command compiles through a [fragment.Compiler] whose engine reads
// included templates from the host file system, so include paths in
// templates and on the search path may be absolute or relative to the
// including file.
package cmd

var (
	// CacheIdentifier is the kong variable identifier containing the path to
	// the runtime cache directory.
	CacheIdentifier = "cache"

	// ConfigIdentifier is the kong variable identifier containing the path of
	// the configuration file, without its format extension.
	ConfigIdentifier = "config"
)
