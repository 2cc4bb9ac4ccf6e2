package fragment

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/sahilm/fuzzy"

	"github.com/ardnew/tmplfrag/lang"
)

// DefaultNamespace is the client namespace of fragments declared without
// one.
const DefaultNamespace = "templates"

// Target tracks where the body of a fragment has been emitted during a run.
type Target int

const (
	// ServerPending fragments have not been folded into a server preamble.
	ServerPending Target = iota
	// ServerEmitted fragments are defined by the server preamble.
	ServerEmitted
	// ClientEmitted fragments have been emitted as client script.
	ClientEmitted
)

func (t Target) String() string {
	switch t {
	case ServerPending:
		return "server-pending"
	case ServerEmitted:
		return "server-emitted"
	case ClientEmitted:
		return "client-emitted"
	default:
		return fmt.Sprintf("Target(%d)", int(t))
	}
}

// Param is a fragment parameter. A rest parameter collects every argument
// after the positional ones.
type Param struct {
	Name string
	Rest bool
}

func (p Param) String() string {
	if p.Rest {
		return "..." + p.Name
	}

	return p.Name
}

// ParseParams parses a comma-separated parameter list. Only the last
// parameter may be a rest parameter, and names must be distinct
// identifiers.
func ParseParams(raw string) ([]Param, error) {
	var params []Param

	seen := make(map[string]bool)
	items := lang.Params(raw)

	for i, item := range items {
		name, rest := lang.RestParam(item)

		switch {
		case !isIdent(name):
			return nil, ErrInvalidParams.Wrapf("invalid parameter name %q", item)
		case rest && i != len(items)-1:
			return nil, ErrInvalidParams.Wrapf("rest parameter %q must be last", item)
		case seen[name]:
			return nil, ErrInvalidParams.Wrapf("duplicate parameter %q", name)
		}

		seen[name] = true
		params = append(params, Param{Name: name, Rest: rest})
	}

	return params, nil
}

// Fragment is a named, compiled unit of template logic.
type Fragment struct {
	// Declared is the name as written in the declaration.
	Declared string
	// Name is the local name, unique within a run.
	Name string
	// Namespace is the client global object the fragment is exported on.
	Namespace string
	Params    []Param
	// Client is the source of the compiled client function.
	Client string
	// Server is the compiled server template. It is nil in client runs.
	Server *lang.Template
	Target Target
	Pos    lang.Pos
}

// ParamNames returns the parameters in declaration form, with a "..."
// prefix on a rest parameter.
func (f *Fragment) ParamNames() []string {
	names := make([]string, len(f.Params))
	for i, p := range f.Params {
		names[i] = p.String()
	}

	return names
}

// Signature returns the fragment name with its parameter list.
func (f *Fragment) Signature() string {
	return f.Declared + "(" + strings.Join(f.ParamNames(), ", ") + ")"
}

// SplitName splits a fragment name into namespace and local name on the
// first dot. A name without a dot belongs to defaultNS.
func SplitName(name, defaultNS string) (namespace, local string) {
	if ns, rest, ok := strings.Cut(name, "."); ok {
		return ns, rest
	}

	return defaultNS, name
}

// Registry maps local fragment names to fragments for one compile run.
type Registry struct {
	mu    sync.Mutex
	byKey map[string]*Fragment
	order []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byKey: make(map[string]*Fragment)}
}

// Declare adds f. It returns an [ErrDuplicateFragment] error if a fragment
// with the same local name is already declared, whatever its namespace.
func (r *Registry) Declare(f *Fragment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.byKey[f.Name]; ok {
		return ErrDuplicateFragment.WithPosition(f.Pos).With(
			slog.String("fragment", f.Declared),
			slog.String("previous", prev.Pos.String()),
		)
	}

	if r.byKey == nil {
		r.byKey = make(map[string]*Fragment)
	}

	r.byKey[f.Name] = f
	r.order = append(r.order, f.Name)

	return nil
}

// Resolve returns the fragment named name, which may carry a namespace
// prefix. It returns an [ErrUnknownFragment] error suggesting similar names
// if there is none, or if the prefix is not the fragment's namespace.
func (r *Registry) Resolve(name string) (*Fragment, error) {
	ns, local := SplitName(name, "")

	r.mu.Lock()
	defer r.mu.Unlock()

	if f, ok := r.byKey[local]; ok {
		if ns != "" && ns != f.Namespace {
			return nil, ErrUnknownFragment.With(
				slog.String("fragment", name),
				slog.String("namespace", f.Namespace),
			).Wrapf("%q (%s is declared in namespace %q)", name, local, f.Namespace)
		}

		return f, nil
	}

	err := ErrUnknownFragment.With(slog.String("fragment", name))

	if matches := fuzzy.Find(local, r.order); len(matches) > 0 {
		suggest := make([]string, 0, min(len(matches), 3))
		for _, m := range matches[:min(len(matches), 3)] {
			suggest = append(suggest, m.Str)
		}

		return nil, err.
			With(slog.Any("suggestions", suggest)).
			Wrapf("%q (did you mean %s?)", name, strings.Join(suggest, ", "))
	}

	return nil, err.Wrapf("%q", name)
}

// Lookup returns the fragment with the given local name.
func (r *Registry) Lookup(local string) (*Fragment, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, ok := r.byKey[local]

	return f, ok
}

// MarkEmitted records that the body of the fragment named name has been
// emitted for target. Marking an unknown name does nothing.
func (r *Registry) MarkEmitted(name string, target Target) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if f, ok := r.byKey[name]; ok {
		f.Target = target
	}
}

// Reset removes every fragment.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	clear(r.byKey)
	r.order = r.order[:0]
}

// Len returns the number of fragments.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.order)
}

// All returns the fragments in declaration order.
func (r *Registry) All() []*Fragment {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Fragment, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byKey[name])
	}

	return out
}

// Names returns the local names in declaration order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return slices.Clone(r.order)
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}

	for i := range len(s) {
		c := s[i]

		switch {
		case c == '_' || c == '$', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}

	return true
}
