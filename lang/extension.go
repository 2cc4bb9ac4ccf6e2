package lang

import (
	"context"
	"log/slog"
	"slices"
	"sync"
)

// Extension is a named plugin to the compile pipeline. An extension
// participates in a stage by also implementing [Scanner], [ParseExtension],
// [NodeRewriter], or [VisitorExtension].
//
// Extensions are compared by identity, so implementations must be comparable
// (typically pointers).
type Extension interface {
	Name() string
}

// Scanner recognizes extension syntax at the start of a line's content.
//
// Scan reports whether it consumed the text and pushed tokens. It must not
// modify tokens already pushed.
type Scanner interface {
	Extension
	Scan(l *Lexer) (bool, error)
}

// ParseFunc parses a statement beginning with a token of a claimed kind. The
// token has not been consumed when the function is called.
type ParseFunc func(p *Parser) (Node, error)

// ParseExtension parses the token kinds it claims.
type ParseExtension interface {
	Extension
	ParseHandlers() map[TokenKind]ParseFunc
}

// NodeRewriter transforms each parsed tree before code generation. Rewrite
// must return a new tree rather than modify its argument.
type NodeRewriter interface {
	Extension
	Rewrite(ctx context.Context, root *Block) (*Block, error)
}

// VisitorExtension is offered every node visited by a [Generator] before the
// built-in visitor. Visit reports whether it handled the node; if not, the
// next extension (and finally the built-in visitor) is tried.
type VisitorExtension interface {
	Extension
	Visit(g *Generator, n Node) (bool, error)
}

// CompileHook is notified when a compile it participates in starts.
// BeginCompile returns the context the compile runs with and a function
// called when the compile ends, whether or not it failed.
type CompileHook interface {
	Extension
	BeginCompile(ctx context.Context, opts Options, target Target) (context.Context, func())
}

// Extensions is an ordered set of extensions. The zero value is empty and
// ready to use. An Extensions is safe for concurrent use.
type Extensions struct {
	mu     sync.RWMutex
	list   []Extension
	claims map[TokenKind]Extension
}

// NewExtensions returns a registry holding exts.
func NewExtensions(exts ...Extension) (*Extensions, error) {
	var e Extensions

	for _, ext := range exts {
		if err := e.Add(ext); err != nil {
			return nil, err
		}
	}

	return &e, nil
}

// Add appends ext to the registry.
//
// Adding an extension already present is a no-op. Add returns an
// [ErrExtensionConflict] error, and leaves the registry unchanged, if another
// extension already claims one of the token kinds ext parses.
func (e *Extensions) Add(ext Extension) error {
	if ext == nil {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if slices.Contains(e.list, ext) {
		return nil
	}

	var kinds []TokenKind

	if pe, ok := ext.(ParseExtension); ok {
		for kind := range pe.ParseHandlers() {
			if owner, ok := e.claims[kind]; ok && owner != ext {
				return ErrExtensionConflict.With(
					slog.String("extension", ext.Name()),
					slog.String("owner", owner.Name()),
					slog.String("kind", string(kind)),
				)
			}

			kinds = append(kinds, kind)
		}
	}

	if e.claims == nil {
		e.claims = make(map[TokenKind]Extension)
	}

	for _, kind := range kinds {
		e.claims[kind] = ext
	}

	e.list = append(e.list, ext)

	return nil
}

// Merge adds every extension of o, in order.
func (e *Extensions) Merge(o *Extensions) error {
	if o == nil || o == e {
		return nil
	}

	for _, ext := range o.All() {
		if err := e.Add(ext); err != nil {
			return err
		}
	}

	return nil
}

// All returns the registered extensions in registration order.
func (e *Extensions) All() []Extension {
	if e == nil {
		return nil
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	return slices.Clone(e.list)
}

// Len returns the number of registered extensions.
func (e *Extensions) Len() int {
	if e == nil {
		return 0
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	return len(e.list)
}

func (e *Extensions) scanners() []Scanner {
	return collect[Scanner](e.All())
}

func (e *Extensions) rewriters() []NodeRewriter {
	return collect[NodeRewriter](e.All())
}

func (e *Extensions) visitors() []VisitorExtension {
	return collect[VisitorExtension](e.All())
}

// begin starts the compile for every [CompileHook], in order. The returned
// function ends it for each in reverse order.
func (e *Extensions) begin(ctx context.Context, opts Options, target Target) (context.Context, func()) {
	var ends []func()

	for _, h := range collect[CompileHook](e.All()) {
		var end func()

		ctx, end = h.BeginCompile(ctx, opts, target)
		if end != nil {
			ends = append(ends, end)
		}
	}

	return ctx, func() {
		for _, end := range slices.Backward(ends) {
			end()
		}
	}
}

func (e *Extensions) handlers() map[TokenKind]ParseFunc {
	h := make(map[TokenKind]ParseFunc)

	for _, pe := range collect[ParseExtension](e.All()) {
		for kind, fn := range pe.ParseHandlers() {
			h[kind] = fn
		}
	}

	return h
}

func collect[T Extension](exts []Extension) []T {
	var out []T

	for _, ext := range exts {
		if t, ok := ext.(T); ok {
			out = append(out, t)
		}
	}

	return out
}

type extensionsKey struct{}

// WithExtensions returns a copy of ctx carrying exts. Compiles run with the
// returned context use exts in addition to [Options.Extensions].
func WithExtensions(ctx context.Context, exts *Extensions) context.Context {
	return context.WithValue(ctx, extensionsKey{}, exts)
}

// ExtensionsFrom returns the registry carried by ctx, or nil.
func ExtensionsFrom(ctx context.Context) *Extensions {
	exts, _ := ctx.Value(extensionsKey{}).(*Extensions)

	return exts
}
