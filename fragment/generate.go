package fragment

import (
	"log/slog"
	"maps"
	"strings"

	"github.com/ardnew/tmplfrag/lang"
)

// Visit implements [lang.VisitorExtension].
func (p *Plugin) Visit(g *lang.Generator, n lang.Node) (bool, error) {
	cc := CompileContextFrom(g.Context())
	if cc == nil {
		return false, nil
	}

	if g.Target() == lang.TargetServer {
		return p.visitServer(g, cc, n)
	}

	return p.visitClient(g, cc, n)
}

func (p *Plugin) visitServer(g *lang.Generator, cc *CompileContext, n lang.Node) (bool, error) {
	if _, ok := n.(*lang.Block); !ok && cc.Depth() == 1 && !cc.emitted {
		cc.emitted = true
		p.emitPreamble(g, cc)
	}

	switch n := n.(type) {
	case *lang.Mixin:
		// Declarations render nothing in place; the preamble defines them.
		return n.Fragment, nil

	case *lang.FragmentReference:
		f, err := cc.registry.Resolve(n.Name)
		if err != nil {
			return true, lang.WrapError(err).WithPosition(n.Pos)
		}

		var args []lang.Evaluator

		for _, a := range lang.SplitArgs(n.Data) {
			ev, err := lang.CompileExpr(a, n.Pos)
			if err != nil {
				return true, err
			}

			args = append(args, ev)
		}

		g.BufferExpression(&fragmentCall{name: f.Name, pos: n.Pos, args: args}, false)

		return true, nil
	}

	return false, nil
}

// emitPreamble defines every fragment of the run at the start of the
// server program.
func (p *Plugin) emitPreamble(g *lang.Generator, cc *CompileContext) {
	frags := cc.registry.All()
	if len(frags) == 0 {
		return
	}

	def := make(defineFragments, len(frags))

	for _, f := range frags {
		def[f.Name] = f
		cc.registry.MarkEmitted(f.Name, ServerEmitted)
	}

	g.Prepend(def)

	p.logger().TraceContext(g.Context(), "emitted fragment preamble",
		slog.String("run_id", cc.ID().String()),
		slog.Int("fragments", len(frags)))
}

type fragmentsKey struct{}

// defineFragments makes its fragments available to every [fragmentCall]
// of the rendering.
type defineFragments map[string]*Fragment

func (d defineFragments) Exec(f *lang.Frame) error {
	if prev, ok := f.Load(fragmentsKey{}).(defineFragments); ok {
		merged := maps.Clone(prev)
		maps.Copy(merged, d)
		f.Store(fragmentsKey{}, merged)

		return nil
	}

	f.Store(fragmentsKey{}, d)

	return nil
}

// fragmentCall renders a fragment defined by the preamble.
type fragmentCall struct {
	name string
	pos  lang.Pos
	args []lang.Evaluator
}

func (c *fragmentCall) Eval(f *lang.Frame) (any, error) {
	defs, _ := f.Load(fragmentsKey{}).(defineFragments)

	frag, ok := defs[c.name]
	if !ok || frag.Server == nil {
		return nil, lang.ErrRender.WithPosition(c.pos).
			Wrap(ErrUnknownFragment.With(slog.String("fragment", c.name)))
	}

	vals := make([]any, 0, len(c.args))

	for _, ev := range c.args {
		v, err := ev.Eval(f)
		if err != nil {
			return nil, err
		}

		vals = append(vals, v)
	}

	return f.RenderTemplate(frag.Server, bindArgs(frag.Params, vals))
}

// bindArgs returns the variables of a fragment invocation. Parameters bind
// positionally; a fragment without parameters called with a single map
// uses it as its variables.
func bindArgs(params []Param, vals []any) map[string]any {
	if len(params) == 0 {
		if len(vals) == 1 {
			if m, ok := vals[0].(map[string]any); ok {
				return m
			}
		}

		return nil
	}

	names := make([]string, len(params))
	for i, p := range params {
		names[i] = p.String()
	}

	return lang.BindParams(names, vals)
}

func (p *Plugin) visitClient(g *lang.Generator, cc *CompileContext, n lang.Node) (bool, error) {
	switch n := n.(type) {
	case *lang.Mixin:
		if !n.Fragment {
			return false, nil
		}

		return true, p.emitClientFragment(g, cc, n)

	case *lang.FragmentReference:
		f, err := cc.registry.Resolve(n.Name)
		if err != nil {
			return true, lang.WrapError(err).WithPosition(n.Pos)
		}

		g.BufferExpressionJS(clientRef(f)+"("+n.Data+")", false)

		return true, nil
	}

	return false, nil
}

// emitClientFragment writes a script element that attaches the fragment
// declared by m to its namespace. The function body is the code the
// built-in generator produces for m as a mixin.
func (p *Plugin) emitClientFragment(g *lang.Generator, cc *CompileContext, m *lang.Mixin) error {
	ns, local := SplitName(m.FragmentName, p.c.namespace)

	params, err := ParseParams(strings.Join(m.Params, ","))
	if err != nil {
		return lang.WrapError(err).WithPosition(m.Pos)
	}

	positional, rest := splitParams(params)

	plain := *m
	plain.Name = strings.ReplaceAll(m.Name, ".", "_")
	plain.Params = positional
	plain.Fragment = false

	start := len(g.Statements())

	if err := g.VisitDefault(&plain); err != nil {
		return err
	}

	var body []string

	for _, s := range g.Statements()[start:] {
		if !lang.IsDebugStatement(s) {
			body = append(body, s)
		}
	}

	g.Truncate(start)

	if len(body) < 2 {
		return g.Errorf(m, "fragment %q generated no function", m.FragmentName)
	}

	// Drop the mixin's own header and closing brace.
	body = body[1 : len(body)-1]

	var locals []string
	if len(params) == 0 {
		locals = g.Locals(m.Block)
	}

	fn := clientFunction(positional, rest, locals, body)

	// The markup below only defines the fragment once the page is inserted
	// into a document, so calls made by this page use a local copy.
	g.EmitStatement("var " + localVar(local) + " = " + fn + ";")
	g.BufferText("<script>" + clientScript(ns, local, fn, cc.guard(g, ns)) + "</script>")

	cc.registry.MarkEmitted(local, ClientEmitted)

	p.logger().TraceContext(g.Context(), "emitted client fragment",
		slog.String("run_id", cc.ID().String()),
		slog.String("fragment", m.FragmentName),
		slog.Int("statements", len(body)))

	return nil
}

// clientScript returns a self-invoking script that assigns the function
// expression fn to the local property of the namespace ns.
func clientScript(ns, local, fn string, guard bool) string {
	var sb strings.Builder

	sb.WriteString("(function(){")

	if guard {
		sb.WriteString(namespaceGuard(ns))
	}

	sb.WriteString(namespaceRef(ns, local) + " = " + fn + ";})();")

	return sb.String()
}

// clientFunction returns a function expression rendering body. Its
// parameters are the positional ones, or a locals object if there are none.
func clientFunction(positional []string, rest string, locals, body []string) string {
	var sb strings.Builder

	args := strings.Join(positional, ", ")
	if len(positional) == 0 && rest == "" {
		args = "locals"
	}

	sb.WriteString("function (" + args + ") {")

	if rest != "" {
		sb.WriteString(lang.RestLoop(rest, len(positional)))
	}

	sb.WriteString(`var tmpl_html = "", tmpl_mixins = {}, tmpl_interp;`)

	if args == "locals" {
		sb.WriteString("locals = locals || {};")

		for _, v := range locals {
			sb.WriteString("var " + v + " = locals." + v + ";")
		}
	}

	for _, s := range body {
		sb.WriteString(s)
		sb.WriteByte('\n')
	}

	sb.WriteString("return tmpl_html;}")

	return sb.String()
}

// localVar names the variable holding the local copy of a fragment in the
// client function that declares it.
func localVar(local string) string {
	return "tmpl_frag_" + strings.ReplaceAll(local, ".", "$")
}

// clientRef returns the expression a client function calls f through: the
// local copy where the calling function declared f, the namespace export
// everywhere else.
func clientRef(f *Fragment) string {
	v := localVar(f.Name)

	return "(typeof " + v + ` === "function" ? ` + v + " : " + namespaceRef(f.Namespace, f.Name) + ")"
}
