package lang

import (
	"io"
	"log/slog"
	"maps"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
	"github.com/expr-lang/expr/vm"
)

// Instr is one step of a server [Program].
type Instr interface {
	Exec(f *Frame) error
}

// Program is a sequence of instructions. A Program is itself an [Instr].
type Program []Instr

// Exec runs each instruction in order, stopping at the first error.
func (p Program) Exec(f *Frame) error {
	for _, in := range p {
		if err := in.Exec(f); err != nil {
			return err
		}
	}

	return nil
}

// Evaluator produces a value in the scope of a [Frame].
type Evaluator interface {
	Eval(f *Frame) (any, error)
}

// Frame holds the state of one rendering: the output buffer, the variable
// scopes, and storage shared with nested template renderings.
type Frame struct {
	out   *strings.Builder
	scope *scope
	funcs map[string]any
	store map[any]any
}

type scope struct {
	vars   map[string]any
	mixins map[string]*mixinDef
	parent *scope
}

func newFrame(out *strings.Builder, funcs, data map[string]any, store map[any]any) *Frame {
	vars := maps.Clone(data)
	if vars == nil {
		vars = make(map[string]any)
	}

	return &Frame{
		out:   out,
		scope: &scope{vars: vars},
		funcs: funcs,
		store: store,
	}
}

// WriteString appends s to the output.
func (f *Frame) WriteString(s string) { f.out.WriteString(s) }

// Lookup returns the value of the innermost variable named name.
func (f *Frame) Lookup(name string) (any, bool) {
	for s := f.scope; s != nil; s = s.parent {
		if v, ok := s.vars[name]; ok {
			return v, true
		}
	}

	return nil, false
}

// Set binds name in the innermost scope.
func (f *Frame) Set(name string, v any) {
	if f.scope.vars == nil {
		f.scope.vars = make(map[string]any)
	}

	f.scope.vars[name] = v
}

// Env returns the variables visible in the current scope, merged with the
// template functions, for expression evaluation.
func (f *Frame) Env() map[string]any {
	env := make(map[string]any, len(f.funcs))
	maps.Copy(env, f.funcs)

	var chain []*scope
	for s := f.scope; s != nil; s = s.parent {
		chain = append(chain, s)
	}

	for i := len(chain) - 1; i >= 0; i-- {
		maps.Copy(env, chain[i].vars)
	}

	return env
}

// Load returns the value stored under key by [Frame.Store], or nil. Stored
// values are shared with every template rendered through
// [Frame.RenderTemplate].
func (f *Frame) Load(key any) any { return f.store[key] }

// Store saves v under key for the rest of the rendering.
func (f *Frame) Store(key, v any) { f.store[key] = v }

// RenderTemplate renders t with data as its variables and returns the
// output. The nested rendering shares this frame's storage.
func (f *Frame) RenderTemplate(t *Template, data map[string]any) (string, error) {
	var sb strings.Builder

	if err := t.prog.Exec(newFrame(&sb, t.funcs, data, f.store)); err != nil {
		return "", err
	}

	return sb.String(), nil
}

func (f *Frame) push() { f.scope = &scope{vars: make(map[string]any), parent: f.scope} }

func (f *Frame) pop() { f.scope = f.scope.parent }

// Template is a compiled server template.
type Template struct {
	name  string
	prog  Program
	funcs map[string]any
	deps  []string
}

// Name returns the name given in [Options.Name].
func (t *Template) Name() string { return t.name }

// Program returns the compiled instructions.
func (t *Template) Program() Program { return t.prog }

// Dependencies returns the files included while compiling t.
func (t *Template) Dependencies() []string { return t.deps }

// Render renders t with data as its variables.
func (t *Template) Render(data map[string]any) (string, error) {
	var sb strings.Builder

	if err := t.prog.Exec(newFrame(&sb, t.funcs, data, make(map[any]any))); err != nil {
		return "", err
	}

	return sb.String(), nil
}

// Execute renders t with data and writes the output to w.
func (t *Template) Execute(w io.Writer, data map[string]any) error {
	s, err := t.Render(data)
	if err != nil {
		return err
	}

	_, err = io.WriteString(w, s)

	return err
}

// exprEval evaluates a compiled expr-lang program.
type exprEval struct {
	src  string
	pos  Pos
	prog *vm.Program
}

// CompileExpr compiles an expression for evaluation against a [Frame].
func CompileExpr(src string, pos Pos) (Evaluator, error) {
	prog, err := expr.Compile(src, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, ErrExprCompile.WithPosition(pos).
			With(slog.String("expr", src)).
			Wrap(err)
	}

	return &exprEval{src: src, pos: pos, prog: prog}, nil
}

func (e *exprEval) Eval(f *Frame) (any, error) {
	v, err := expr.Run(e.prog, f.Env())
	if err != nil {
		return nil, ErrExprEvaluate.WithPosition(e.pos).
			With(slog.String("expr", e.src)).
			Wrap(err)
	}

	return v, nil
}

// constValue returns the value of src if it is a string, boolean, or number
// literal.
func constValue(src string) (any, bool) {
	tree, err := parser.Parse(src)
	if err != nil {
		return nil, false
	}

	switch n := tree.Node.(type) {
	case *ast.StringNode:
		return n.Value, true
	case *ast.BoolNode:
		return n.Value, true
	case *ast.IntegerNode:
		return n.Value, true
	case *ast.FloatNode:
		return n.Value, true
	}

	return nil, false
}
