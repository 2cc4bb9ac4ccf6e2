package lang

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"strings"

	"github.com/ardnew/tmplfrag/log"
)

// Target selects the output of a [Generator].
type Target int

const (
	// TargetServer generates a [Program] rendered in Go.
	TargetServer Target = iota
	// TargetClient generates the source of a JavaScript function.
	TargetClient
)

func (t Target) String() string {
	switch t {
	case TargetServer:
		return "server"
	case TargetClient:
		return "client"
	default:
		return fmt.Sprintf("Target(%d)", int(t))
	}
}

//nolint:gochecknoglobals
var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"source": true, "track": true, "wbr": true,
}

// Generator walks a tree and produces code for its [Target].
//
// [VisitorExtension] implementations receive the Generator and use the
// methods for their target: [Generator.Emit], [Generator.Prepend], and
// [Generator.BufferExpression] for the server; [Generator.Statements],
// [Generator.Truncate], [Generator.EmitStatement], and
// [Generator.BufferExpressionJS] for the client. [Generator.BufferText] and
// [Generator.VisitDefault] serve both.
type Generator struct {
	ctx      context.Context //nolint:containedctx
	target   Target
	opts     Options
	visitors []VisitorExtension
	logger   log.Logger

	progs []Program

	stmts   []string
	pending strings.Builder
	helpers map[string]bool
}

func newGenerator(
	ctx context.Context,
	target Target,
	opts Options,
	visitors []VisitorExtension,
	logger log.Logger,
) *Generator {
	return &Generator{
		ctx:      ctx,
		target:   target,
		opts:     opts,
		visitors: visitors,
		logger:   logger,
		progs:    []Program{nil},
		helpers:  make(map[string]bool),
	}
}

// Context returns the context of the compile run.
func (g *Generator) Context() context.Context { return g.ctx }

// Target returns the generation target.
func (g *Generator) Target() Target { return g.target }

// Options returns the options of the compile run.
func (g *Generator) Options() Options { return g.opts }

// Visit generates code for n, offering it to each [VisitorExtension] before
// the built-in visitor.
func (g *Generator) Visit(n Node) error {
	for _, v := range g.visitors {
		ok, err := v.Visit(g, n)
		if err != nil {
			return err
		}

		if ok {
			return nil
		}
	}

	return g.VisitDefault(n)
}

// VisitDefault generates code for n with the built-in visitor, bypassing
// extensions for n itself (but not for its children).
func (g *Generator) VisitDefault(n Node) error {
	if g.target == TargetClient {
		return g.visitClient(n)
	}

	return g.visitServer(n)
}

func (g *Generator) visitBlock(b *Block) error {
	if b == nil {
		return nil
	}

	for _, n := range b.Nodes {
		if err := g.Visit(n); err != nil {
			return err
		}
	}

	return nil
}

// Errorf returns an error positioned at n.
func (g *Generator) Errorf(n Node, format string, args ...any) error {
	return ErrGenerate.WithPosition(n.Position()).Wrapf(format, args...)
}

// BufferText appends literal markup to the output.
func (g *Generator) BufferText(s string) {
	if s == "" {
		return
	}

	if g.target == TargetClient {
		g.pending.WriteString(s)

		return
	}

	top := &g.progs[len(g.progs)-1]
	if n := len(*top); n > 0 {
		if t, ok := (*top)[n-1].(textInstr); ok {
			(*top)[n-1] = t + textInstr(s)

			return
		}
	}

	*top = append(*top, textInstr(s))
}

// Emit appends in to the program under construction.
func (g *Generator) Emit(in Instr) {
	top := len(g.progs) - 1
	g.progs[top] = append(g.progs[top], in)
}

// Prepend inserts in at the start of the outermost program.
func (g *Generator) Prepend(in Instr) {
	g.progs[0] = append(Program{in}, g.progs[0]...)
}

// BufferExpression appends the value of ev to the output, HTML-escaped if
// escape is set.
func (g *Generator) BufferExpression(ev Evaluator, escape bool) {
	g.Emit(outputInstr{ev: ev, escape: escape})
}

// nested returns the program generated by fn.
func (g *Generator) nested(fn func() error) (Program, error) {
	g.progs = append(g.progs, nil)

	err := fn()

	prog := g.progs[len(g.progs)-1]
	g.progs = g.progs[:len(g.progs)-1]

	return prog, err
}

func (g *Generator) nestedBlock(b *Block) (Program, error) {
	return g.nested(func() error { return g.visitBlock(b) })
}

func (g *Generator) visitServer(n Node) error {
	switch n := n.(type) {
	case *Block:
		return g.visitBlock(n)

	case *Doctype:
		g.BufferText(doctype(n.Val))

	case *Tag:
		return g.serverTag(n)

	case *Text:
		g.BufferText(n.Val)

	case *Code:
		ev, err := CompileExpr(n.Expr, n.Pos)
		if err != nil {
			return err
		}

		g.BufferExpression(ev, n.Escape)

	case *Comment:
		if n.Buffered {
			g.BufferText("<!--" + n.Val + "-->")
		}

	case *Conditional:
		test, err := CompileExpr(n.Test, n.Pos)
		if err != nil {
			return err
		}

		then, err := g.nestedBlock(n.Then)
		if err != nil {
			return err
		}

		els, err := g.nestedBlock(n.Else)
		if err != nil {
			return err
		}

		g.Emit(condInstr{test: test, then: then, els: els})

	case *Each:
		ev, err := CompileExpr(n.Expr, n.Pos)
		if err != nil {
			return err
		}

		body, err := g.nestedBlock(n.Block)
		if err != nil {
			return err
		}

		g.Emit(eachInstr{val: n.Val, key: n.Key, ev: ev, body: body, pos: n.Pos})

	case *Mixin:
		body, err := g.nestedBlock(n.Block)
		if err != nil {
			return err
		}

		g.Emit(mixinDefInstr{name: n.Name, params: n.Params, body: body})

	case *MixinCall:
		args, err := compileArgs(n.Args, n.Pos)
		if err != nil {
			return err
		}

		g.Emit(mixinCallInstr{name: n.Name, args: args, pos: n.Pos})

	case *Script:
		g.BufferText("<script>" + n.Content + "</script>")

	case *FragmentDeclaration, *FragmentReference:
		return g.Errorf(n, "no extension handles %T", n)

	default:
		return g.Errorf(n, "unknown node %T", n)
	}

	return nil
}

func doctype(val string) string {
	if strings.EqualFold(val, "html") {
		return "<!DOCTYPE html>"
	}

	return "<!DOCTYPE " + val + ">"
}

// compileArgs compiles each expression of a comma-separated argument list.
func compileArgs(args string, pos Pos) ([]Evaluator, error) {
	var evs []Evaluator

	for _, a := range SplitArgs(args) {
		ev, err := CompileExpr(a, pos)
		if err != nil {
			return nil, err
		}

		evs = append(evs, ev)
	}

	return evs, nil
}

func (g *Generator) serverTag(t *Tag) error {
	g.BufferText("<" + t.Name)

	var classes []Evaluator

	static := true

	for _, a := range t.Attrs {
		if a.Name == "class" {
			ev, err := CompileExpr(a.Val, t.Pos)
			if err != nil {
				return err
			}

			if _, ok := constValue(a.Val); !ok {
				static = false
			}

			classes = append(classes, ev)
		}
	}

	if len(classes) > 0 {
		if static {
			var names []any

			for _, a := range t.Attrs {
				if a.Name == "class" {
					v, _ := constValue(a.Val)
					names = append(names, v)
				}
			}

			g.BufferText(renderAttr("class", renderClasses(names), true))
		} else {
			g.Emit(classInstr(classes))
		}
	}

	for _, a := range t.Attrs {
		if a.Name == "class" {
			continue
		}

		if v, ok := constValue(a.Val); ok {
			g.BufferText(renderAttr(a.Name, v, a.Escape))

			continue
		}

		ev, err := CompileExpr(a.Val, t.Pos)
		if err != nil {
			return err
		}

		g.Emit(attrInstr{name: a.Name, ev: ev, escape: a.Escape})
	}

	if t.Attributes != "" {
		ev, err := CompileExpr(t.Attributes, t.Pos)
		if err != nil {
			return err
		}

		g.Emit(attributesInstr{ev: ev})
	}

	g.BufferText(">")

	if t.Block == nil && voidElements[t.Name] {
		return nil
	}

	if err := g.visitBlock(t.Block); err != nil {
		return err
	}

	g.BufferText("</" + t.Name + ">")

	return nil
}

type textInstr string

func (t textInstr) Exec(f *Frame) error {
	f.WriteString(string(t))

	return nil
}

type outputInstr struct {
	ev     Evaluator
	escape bool
}

func (o outputInstr) Exec(f *Frame) error {
	v, err := o.ev.Eval(f)
	if err != nil {
		return err
	}

	if o.escape {
		f.WriteString(Escape(v))
	} else {
		f.WriteString(Stringify(v))
	}

	return nil
}

type attrInstr struct {
	name   string
	ev     Evaluator
	escape bool
}

func (a attrInstr) Exec(f *Frame) error {
	v, err := a.ev.Eval(f)
	if err != nil {
		return err
	}

	if a.name == "style" {
		v = renderStyle(v)
	}

	f.WriteString(renderAttr(a.name, v, a.escape))

	return nil
}

type classInstr []Evaluator

func (c classInstr) Exec(f *Frame) error {
	vals := make([]any, 0, len(c))

	for _, ev := range c {
		v, err := ev.Eval(f)
		if err != nil {
			return err
		}

		vals = append(vals, v)
	}

	f.WriteString(renderAttr("class", renderClasses(vals), true))

	return nil
}

type attributesInstr struct {
	ev Evaluator
}

func (a attributesInstr) Exec(f *Frame) error {
	v, err := a.ev.Eval(f)
	if err != nil {
		return err
	}

	f.WriteString(renderAttrs(v))

	return nil
}

type condInstr struct {
	test      Evaluator
	then, els Program
}

func (c condInstr) Exec(f *Frame) error {
	v, err := c.test.Eval(f)
	if err != nil {
		return err
	}

	if Truthy(v) {
		return c.then.Exec(f)
	}

	return c.els.Exec(f)
}

type eachInstr struct {
	val, key string
	ev       Evaluator
	body     Program
	pos      Pos
}

func (e eachInstr) Exec(f *Frame) error {
	v, err := e.ev.Eval(f)
	if err != nil {
		return err
	}

	iter := func(key, val any) error {
		f.push()
		defer f.pop()

		f.Set(e.val, val)

		if e.key != "" {
			f.Set(e.key, key)
		}

		return e.body.Exec(f)
	}

	if v == nil {
		return nil
	}

	switch rv := reflect.ValueOf(v); rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := range rv.Len() {
			if err := iter(i, rv.Index(i).Interface()); err != nil {
				return err
			}
		}

	case reflect.Map:
		for _, k := range sortedKeys(rv) {
			if err := iter(k.Interface(), rv.MapIndex(k).Interface()); err != nil {
				return err
			}
		}

	default:
		return ErrRender.WithPosition(e.pos).Wrapf("cannot iterate over %T", v)
	}

	return nil
}

type mixinDef struct {
	params  []string
	body    Program
	closure *scope
}

type mixinDefInstr struct {
	name   string
	params []string
	body   Program
}

func (m mixinDefInstr) Exec(f *Frame) error {
	if f.scope.mixins == nil {
		f.scope.mixins = make(map[string]*mixinDef)
	}

	f.scope.mixins[m.name] = &mixinDef{params: m.params, body: m.body, closure: f.scope}

	return nil
}

type mixinCallInstr struct {
	name string
	args []Evaluator
	pos  Pos
}

func (m mixinCallInstr) Exec(f *Frame) error {
	var def *mixinDef

	for s := f.scope; s != nil && def == nil; s = s.parent {
		def = s.mixins[m.name]
	}

	if def == nil {
		return ErrUnknownMixin.WithPosition(m.pos).With(slog.String("mixin", m.name))
	}

	args := make([]any, 0, len(m.args))

	for _, ev := range m.args {
		v, err := ev.Eval(f)
		if err != nil {
			return err
		}

		args = append(args, v)
	}

	saved := f.scope
	f.scope = &scope{vars: BindParams(def.params, args), parent: def.closure}

	defer func() { f.scope = saved }()

	return def.body.Exec(f)
}

// BindParams binds args to params positionally. Missing arguments bind nil;
// a trailing "..." rest parameter collects the remaining arguments.
func BindParams(params []string, args []any) map[string]any {
	vars := make(map[string]any, len(params))

	for i, p := range params {
		if name, rest := RestParam(p); rest {
			extra := []any{}
			if i < len(args) {
				extra = slices.Clone(args[i:])
			}

			vars[name] = extra

			break
		}

		if i < len(args) {
			vars[p] = args[i]
		} else {
			vars[p] = nil
		}
	}

	return vars
}
