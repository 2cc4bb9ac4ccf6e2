package lang

import (
	"slices"

	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
)

// Clone returns a deep copy of n. The copy shares no mutable structure with
// n.
func Clone(n Node) Node {
	return Rewrite(n, func(n Node) (Node, bool) { return n, false })
}

// Rewrite returns a new tree built from root. For every node, fn is called
// with a copy of the node whose children have already been rewritten; the
// returned node replaces it. If fn reports false, the copy is kept. fn may
// return nil to drop the node from its block. Node types defined outside
// this package are passed to fn uncopied, and their children are not
// visited.
func Rewrite(root Node, fn func(Node) (Node, bool)) Node {
	return rewrite(root, fn)
}

// RewriteBlock is [Rewrite] for a tree rooted at a block.
func RewriteBlock(root *Block, fn func(Node) (Node, bool)) *Block {
	if root == nil {
		return nil
	}

	b, _ := rewrite(root, fn).(*Block)

	return b
}

func rewriteBlock(b *Block, fn func(Node) (Node, bool)) *Block {
	if b == nil {
		return nil
	}

	c := &Block{Pos: b.Pos, Nodes: make([]Node, 0, len(b.Nodes))}

	for _, n := range b.Nodes {
		if r := rewrite(n, fn); r != nil {
			c.Nodes = append(c.Nodes, r)
		}
	}

	return c
}

func rewrite(n Node, fn func(Node) (Node, bool)) Node {
	var c Node

	switch n := n.(type) {
	case *Block:
		c = rewriteBlock(n, fn)

	case *Doctype:
		v := *n
		c = &v

	case *Tag:
		v := *n
		v.Attrs = slices.Clone(n.Attrs)
		v.Block = rewriteBlock(n.Block, fn)
		c = &v

	case *Text:
		v := *n
		c = &v

	case *Code:
		v := *n
		c = &v

	case *Comment:
		v := *n
		c = &v

	case *Conditional:
		v := *n
		v.Then = rewriteBlock(n.Then, fn)
		v.Else = rewriteBlock(n.Else, fn)
		c = &v

	case *Each:
		v := *n
		v.Block = rewriteBlock(n.Block, fn)
		c = &v

	case *Mixin:
		v := *n
		v.Params = slices.Clone(n.Params)
		v.Block = rewriteBlock(n.Block, fn)
		c = &v

	case *MixinCall:
		v := *n
		c = &v

	case *FragmentDeclaration:
		v := *n
		v.Block = rewriteBlock(n.Block, fn)
		c = &v

	case *FragmentReference:
		v := *n
		c = &v

	case *Script:
		v := *n
		c = &v

	default:
		// Nodes of other types cannot be copied; fn sees them as they are.
		c = n
	}

	if r, ok := fn(c); ok {
		return r
	}

	return c
}

// Walk calls fn for n and each of its descendants in depth-first order. If fn
// returns false, the children of that node are skipped.
func Walk(n Node, fn func(Node) bool) {
	if n == nil || !fn(n) {
		return
	}

	if b, ok := n.(*Block); ok {
		for _, k := range b.Nodes {
			Walk(k, fn)
		}

		return
	}

	for _, b := range children(n) {
		if b != nil {
			Walk(b, fn)
		}
	}
}

func children(n Node) []*Block {
	switch n := n.(type) {
	case *Tag:
		return []*Block{n.Block}

	case *Conditional:
		return []*Block{n.Then, n.Else}

	case *Each:
		return []*Block{n.Block}

	case *Mixin:
		return []*Block{n.Block}

	case *FragmentDeclaration:
		return []*Block{n.Block}
	}

	return nil
}

// FreeVariables returns, in first-use order, the identifiers read by the
// expressions under n that are not bound by an enclosing each loop, mixin
// parameter list, or by bound. Expressions that fail to parse are skipped.
func FreeVariables(n Node, bound ...string) []string {
	fv := freeVars{seen: make(map[string]bool)}

	scope := make(map[string]bool, len(bound))
	for _, b := range bound {
		scope[b] = true
	}

	fv.node(n, scope)

	return fv.names
}

type freeVars struct {
	names []string
	seen  map[string]bool
}

func (fv *freeVars) node(n Node, scope map[string]bool) {
	switch n := n.(type) {
	case nil:

	case *Block:
		if n == nil {
			return
		}

		for _, k := range n.Nodes {
			fv.node(k, scope)
		}

	case *Tag:
		for _, a := range n.Attrs {
			fv.expr(a.Val, scope)
		}

		fv.expr(n.Attributes, scope)
		fv.block(n.Block, scope)

	case *Code:
		fv.expr(n.Expr, scope)

	case *Conditional:
		fv.expr(n.Test, scope)
		fv.block(n.Then, scope)
		fv.block(n.Else, scope)

	case *Each:
		fv.expr(n.Expr, scope)
		fv.block(n.Block, extend(scope, n.Val, n.Key))

	case *Mixin:
		names := make([]string, len(n.Params))
		for i, p := range n.Params {
			names[i], _ = RestParam(p)
		}

		fv.block(n.Block, extend(scope, names...))

	case *MixinCall:
		for _, a := range SplitArgs(n.Args) {
			fv.expr(a, scope)
		}

	case *FragmentDeclaration:
		names := make([]string, 0)
		for _, p := range Params(n.Params) {
			name, _ := RestParam(p)
			names = append(names, name)
		}

		fv.block(n.Block, extend(scope, names...))

	case *FragmentReference:
		for _, a := range SplitArgs(n.Data) {
			fv.expr(a, scope)
		}
	}
}

func (fv *freeVars) block(b *Block, scope map[string]bool) {
	if b != nil {
		fv.node(b, scope)
	}
}

func (fv *freeVars) expr(src string, scope map[string]bool) {
	if src == "" {
		return
	}

	tree, err := parser.Parse(src)
	if err != nil {
		return
	}

	v := &identVisitor{}
	ast.Walk(&tree.Node, v)

	for _, name := range v.names {
		if !scope[name] && !fv.seen[name] {
			fv.seen[name] = true
			fv.names = append(fv.names, name)
		}
	}
}

func extend(scope map[string]bool, names ...string) map[string]bool {
	c := make(map[string]bool, len(scope)+len(names))

	for k, v := range scope {
		c[k] = v
	}

	for _, name := range names {
		if name != "" {
			c[name] = true
		}
	}

	return c
}

// identVisitor collects the identifiers of an expr-lang syntax tree.
type identVisitor struct {
	names []string
}

func (v *identVisitor) Visit(node *ast.Node) {
	if id, ok := (*node).(*ast.IdentifierNode); ok {
		v.names = append(v.names, id.Value)
	}
}
