package cmd

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"
	"go.uber.org/multierr"

	"github.com/ardnew/tmplfrag/fragment"
	"github.com/ardnew/tmplfrag/lang"
	"github.com/ardnew/tmplfrag/log"
)

// ContextKey is used to store a [kong.Context] value in [context.Context].
type contextKey struct{}

// WithContext returns a new context.Context containing the given kong.Context.
func WithContext(ctx context.Context, ktx *kong.Context) context.Context {
	return context.WithValue(ctx, contextKey{}, ktx)
}

func kongContextFrom(ctx context.Context) *kong.Context {
	ktx, ok := ctx.Value(contextKey{}).(*kong.Context)
	if !ok || ktx == nil {
		return nil
	}

	return ktx
}

// Settings are the global flags every command compiles with.
type Settings struct {
	// SearchPath lists directories searched for included templates.
	SearchPath []string
	// Namespace is the client namespace of fragments declared without one.
	Namespace string
}

type settingsKey struct{}

// WithSettings returns a new context.Context containing the given settings.
func WithSettings(ctx context.Context, s Settings) context.Context {
	return context.WithValue(ctx, settingsKey{}, s)
}

func settingsFrom(ctx context.Context) Settings {
	s, _ := ctx.Value(settingsKey{}).(Settings)

	return s
}

// Streams are the standard input and output of a command.
type Streams struct {
	In  io.Reader
	Out io.Writer
}

type streamsKey struct{}

// WithStreams returns a new context.Context whose commands read standard
// input from s.In and write standard output to s.Out.
func WithStreams(ctx context.Context, s Streams) context.Context {
	return context.WithValue(ctx, streamsKey{}, s)
}

// streamsFrom returns the streams stored in ctx, using the process's
// standard streams for any that are unset.
func streamsFrom(ctx context.Context) Streams {
	s, _ := ctx.Value(streamsKey{}).(Streams)

	if s.In == nil {
		s.In = os.Stdin
	}

	if s.Out == nil {
		s.Out = os.Stdout
	}

	return s
}

// newCompiler returns a fragment compiler configured from the settings in
// ctx. Its engine reads included templates from the root of the host file
// system.
func newCompiler(ctx context.Context, opts ...fragment.Option) *fragment.Compiler {
	logger := log.Default()

	base := []fragment.Option{
		fragment.WithEngine(lang.NewEngine(
			lang.WithFS(os.DirFS(string(filepath.Separator))),
			lang.WithLogger(logger),
		)),
		fragment.WithLogger(logger),
	}

	if ns := settingsFrom(ctx).Namespace; ns != "" {
		base = append(base, fragment.WithNamespace(ns))
	}

	return fragment.New(append(base, opts...)...)
}

// stdinSource is the special source indicator for reading from stdin.
const stdinSource = "-"

// stdinName is the file name standard input is compiled as. Relative
// includes in it resolve against the working directory.
const stdinName = "stdin"

// source is a template read from a file or standard input.
type source struct {
	// name is the path as given, or "-" for standard input.
	name string
	// filename is the absolute path of the template relative to the root
	// of the host file system.
	filename string
	data     string
}

// base returns the name of the template without directory or extension.
func (s source) base() string {
	if s.name == stdinSource {
		return "template"
	}

	base := filepath.Base(s.name)

	return strings.TrimSuffix(base, filepath.Ext(base))
}

// options returns the compile options of the template.
func (s source) options(ctx context.Context) lang.Options {
	return lang.Options{
		Filename:   s.filename,
		Name:       s.base(),
		SearchPath: absPaths(settingsFrom(ctx).SearchPath),
	}
}

// fileKey uniquely identifies a file by its device and inode numbers.
// This handles deduplication across symlinks, absolute/relative paths, and
// special device files.
type fileKey struct {
	dev uint64
	ino uint64
}

// readSources reads the templates at paths.
//
// Templates are deduplicated by resolving symlinks and comparing device/
// inode pairs. All occurrences of "-" are replaced with a single read of
// stdin, placed last so it follows all regular files. Files that cannot be
// read are reported together and do not prevent reading the others.
func readSources(paths []string, stdin io.Reader) ([]source, error) {
	var (
		srcs     []source
		errs     error
		hasStdin bool
	)

	seen := make(map[fileKey]struct{})

	for _, path := range paths {
		if path == stdinSource {
			hasStdin = true

			continue
		}

		src, ok, err := readUniqueFile(path, seen)
		if err != nil {
			errs = multierr.Append(errs,
				ErrReadSource.With(slog.String("file", path)).Wrap(err))

			continue
		}

		if ok {
			srcs = append(srcs, src)
		}
	}

	if hasStdin {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return srcs, multierr.Append(errs,
				ErrReadSource.With(slog.String("file", stdinSource)).Wrap(err))
		}

		abs, err := filepath.Abs(stdinName)
		if err != nil {
			abs = stdinName
		}

		srcs = append(srcs, source{
			name:     stdinSource,
			filename: rootRelative(abs),
			data:     string(data),
		})
	}

	return srcs, errs
}

// readUniqueFile reads the file at path if it hasn't been seen before.
// It resolves symlinks and uses device/inode to detect duplicates.
// It reports false without error if the file is a duplicate.
func readUniqueFile(path string, seen map[fileKey]struct{}) (source, bool, error) {
	// Resolve to absolute path to handle relative path duplicates.
	absPath, err := filepath.Abs(path)
	if err != nil {
		return source{}, false, err
	}

	// Resolve symlinks to their target.
	resolved, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		return source{}, false, err
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return source{}, false, err
	}

	if key, ok := makeFileKey(info); ok {
		if _, exists := seen[key]; exists {
			return source{}, false, nil
		}

		seen[key] = struct{}{}
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return source{}, false, err
	}

	return source{
		name:     path,
		filename: rootRelative(resolved),
		data:     string(data),
	}, true, nil
}

// makeFileKey creates a fileKey from os.FileInfo.
// Returns false if the underlying Sys() data is not of type *syscall.Stat_t.
func makeFileKey(info os.FileInfo) (key fileKey, ok bool) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return key, false
	}

	return fileKey{dev: uint64(stat.Dev), ino: stat.Ino}, true
}

// rootRelative returns the absolute path abs in slash form without its
// volume name or leading separator.
func rootRelative(abs string) string {
	abs = strings.TrimPrefix(abs, filepath.VolumeName(abs))

	return strings.TrimPrefix(filepath.ToSlash(abs), "/")
}

// absPaths returns each directory in dirs as an absolute path. Directories
// that cannot be resolved are kept as given.
func absPaths(dirs []string) []string {
	out := make([]string, len(dirs))

	for i, dir := range dirs {
		if abs, err := filepath.Abs(dir); err == nil {
			dir = abs
		}

		out[i] = dir
	}

	return out
}

// writeOutput writes data to the file at path, or to w if path is empty or
// "-". Missing parent directories are created.
func writeOutput(w io.Writer, path, data string) error {
	if path == "" || path == stdinSource {
		if _, err := io.WriteString(w, data); err != nil {
			return ErrWriteOutput.Wrap(err)
		}

		return nil
	}

	attr := slog.String("file", path)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return ErrWriteOutput.With(attr).Wrap(err)
	}

	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		return ErrWriteOutput.With(attr).Wrap(err)
	}

	return nil
}

// compileError wraps a compile failure of src. A failure positioned in src
// itself carries the offending source line.
func compileError(src source, err error) *Error {
	e := ErrCompile.With(slog.String("file", src.name))

	var lerr *lang.Error
	if errors.As(err, &lerr) {
		if pos, ok := lerr.Position(); ok && pos.Filename == src.filename {
			if snip := lang.Snippet(src.data, pos); snip != "" {
				e = e.With(slog.String("source", snip))
			}
		}
	}

	return e.Wrap(err)
}
