// Package log provides a concurrency-safe simplified logging interface
// based on [log/slog].
//
// A [Logger] is configured once at creation time using functional options:
//
//	logger := log.Make(os.Stderr,
//		log.WithLevel(log.LevelDebug),
//		log.WithTimeLayout("Kitchen"),
//		log.WithCaller(true))
//
// Attributes added with [Logger.With] are included in every subsequent
// message. Each level has a context-aware and a context-unaware method; the
// latter use [DefaultContextProvider].
//
// The package also maintains a default logger, reconfigured with [Config] and
// used by the package-level functions such as [Info] and [Warn].
//
// Five levels are defined: [LevelTrace], [LevelDebug], [LevelInfo],
// [LevelWarn], and [LevelError]. Output is [FormatJSON] (default) or
// [FormatText], or colorized terminal output with [WithPretty].
package log
