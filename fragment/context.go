package fragment

import (
	"context"

	"github.com/google/uuid"

	"github.com/ardnew/tmplfrag/lang"
)

// CompileContext is the state shared by every compile of one run: the
// outermost call and all compiles nested inside it (fragment bodies and
// any other compile given the same context).
//
// A CompileContext is not safe for concurrent use. Independent top-level
// compiles each get their own.
type CompileContext struct {
	id       uuid.UUID
	depth    int
	opts     lang.Options
	hasOpts  bool
	target   lang.Target
	emitted  bool
	registry *Registry
	guards   map[*lang.Generator]map[string]bool
}

// NewCompileContext returns an idle context.
func NewCompileContext() *CompileContext {
	return &CompileContext{registry: NewRegistry()}
}

// ID identifies the current run. It changes each time a run starts.
func (cc *CompileContext) ID() uuid.UUID { return cc.id }

// Depth returns the number of compiles in progress.
func (cc *CompileContext) Depth() int { return cc.depth }

// Options returns the options of the outermost compile. The second result
// is false between runs.
func (cc *CompileContext) Options() (lang.Options, bool) { return cc.opts, cc.hasOpts }

// Target returns the target of the outermost compile.
func (cc *CompileContext) Target() lang.Target { return cc.target }

// Emitted reports whether the server preamble has been emitted in the
// current run.
func (cc *CompileContext) Emitted() bool { return cc.emitted }

// Registry returns the fragments declared in the current run.
func (cc *CompileContext) Registry() *Registry { return cc.registry }

// enter starts a compile, initializing the run if it is the outermost.
func (cc *CompileContext) enter(opts lang.Options, target lang.Target) {
	if cc.depth == 0 {
		cc.id = uuid.New()
		cc.opts, cc.hasOpts = opts, true
		cc.target = target
		cc.emitted = false
		cc.guards = nil
		cc.registry.Reset()
	}

	cc.depth++
}

// leave ends a compile, tearing the run down if it was the outermost.
func (cc *CompileContext) leave() {
	cc.depth--

	if cc.depth == 0 {
		cc.opts, cc.hasOpts = lang.Options{}, false
		cc.guards = nil
		cc.registry.Reset()
	}
}

// guard reports whether the namespace guard for ns still has to be emitted
// into the output of g, and records that it has been.
func (cc *CompileContext) guard(g *lang.Generator, ns string) bool {
	if cc.guards == nil {
		cc.guards = make(map[*lang.Generator]map[string]bool)
	}

	seen := cc.guards[g]
	if seen == nil {
		seen = make(map[string]bool)
		cc.guards[g] = seen
	}

	if seen[ns] {
		return false
	}

	seen[ns] = true

	return true
}

type compileContextKey struct{}

// WithCompileContext returns a copy of ctx carrying cc. Compiles run with
// the returned context share cc, which lets callers inspect it afterwards.
func WithCompileContext(ctx context.Context, cc *CompileContext) context.Context {
	return context.WithValue(ctx, compileContextKey{}, cc)
}

// CompileContextFrom returns the compile context carried by ctx, or nil.
func CompileContextFrom(ctx context.Context) *CompileContext {
	cc, _ := ctx.Value(compileContextKey{}).(*CompileContext)

	return cc
}
