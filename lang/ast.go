package lang

import (
	"strconv"
	"strings"
)

// Pos identifies a location in template source.
type Pos struct {
	Filename string
	Line     int
	Col      int
}

// String returns "file:line:col", or "line:col" without a filename.
func (p Pos) String() string {
	s := strconv.Itoa(p.Line) + ":" + strconv.Itoa(p.Col)
	if p.Filename != "" {
		s = p.Filename + ":" + s
	}

	return s
}

// Position returns p. It lets every node embedding Pos satisfy [Node].
func (p Pos) Position() Pos { return p }

// Node is an element of a parsed template tree.
//
// The set of node types is closed: the concrete types are the pointer types
// declared in this file.
type Node interface {
	Position() Pos
	node()
}

// Block is an ordered list of nodes.
type Block struct {
	Pos
	Nodes []Node
}

// Doctype emits a document type declaration.
type Doctype struct {
	Pos
	Val string
}

// Attr is a single tag attribute. Val is an expression; an attribute written
// without a value has Val "true".
type Attr struct {
	Name   string
	Val    string
	Escape bool
}

// Tag is an element with attributes and children.
type Tag struct {
	Pos
	Name  string
	Attrs []Attr
	// Attributes is an expression evaluating to a map of extra attributes
	// (the "&attributes(...)" form), or empty.
	Attributes string
	Block      *Block
}

// Text is literal markup copied to the output unchanged.
type Text struct {
	Pos
	Val string
}

// Code writes the value of an expression to the output.
type Code struct {
	Pos
	Expr   string
	Escape bool
}

// Comment is a template comment. Buffered comments are written to the
// output as markup comments.
type Comment struct {
	Pos
	Val      string
	Buffered bool
}

// Conditional renders Then when Test is truthy and Else otherwise.
// Else is nil when there is no else branch.
type Conditional struct {
	Pos
	Test string
	Then *Block
	Else *Block
}

// Each renders Block once per element of the value of Expr, binding the
// element to Val and, if Key is not empty, its index or key to Key.
type Each struct {
	Pos
	Val   string
	Key   string
	Expr  string
	Block *Block
}

// Mixin declares a reusable block that may be invoked by a [MixinCall].
//
// Params are parameter names in declaration order; the last may carry a
// "..." prefix to collect the remaining arguments.
//
// Fragment is set when the declaration originated as a
// [FragmentDeclaration], in which case FragmentName holds the name exactly as
// declared.
type Mixin struct {
	Pos
	Name         string
	Params       []string
	Block        *Block
	Fragment     bool
	FragmentName string
}

// MixinCall invokes a [Mixin] with a comma-separated argument list.
type MixinCall struct {
	Pos
	Name string
	Args string
}

// FragmentDeclaration declares a named fragment. Params is the raw text of
// the parenthesized parameter list, without the parentheses.
type FragmentDeclaration struct {
	Pos
	Name   string
	Params string
	Block  *Block
}

// FragmentReference invokes a fragment with a comma-separated argument list.
type FragmentReference struct {
	Pos
	Name string
	Data string
}

// Script is a script element with literal content.
type Script struct {
	Pos
	Content string
}

func (*Block) node()               {}
func (*Doctype) node()             {}
func (*Tag) node()                 {}
func (*Text) node()                {}
func (*Code) node()                {}
func (*Comment) node()             {}
func (*Conditional) node()         {}
func (*Each) node()                {}
func (*Mixin) node()               {}
func (*MixinCall) node()           {}
func (*FragmentDeclaration) node() {}
func (*FragmentReference) node()   {}
func (*Script) node()              {}

// Params splits a raw parameter list into names, marking a trailing "..."
// rest parameter with its prefix intact.
func Params(raw string) []string {
	args := SplitArgs(raw)

	params := make([]string, 0, len(args))

	for _, a := range args {
		if a = strings.TrimSpace(a); a != "" {
			params = append(params, a)
		}
	}

	return params
}

// RestParam reports whether param is a rest parameter and returns its name.
func RestParam(param string) (string, bool) {
	name, ok := strings.CutPrefix(param, "...")

	return strings.TrimSpace(name), ok
}
