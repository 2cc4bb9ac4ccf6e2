package lang

import (
	"context"
	"slices"
	"testing"
)

func parseTree(t *testing.T, src string) *Block {
	t.Helper()

	root, _, err := NewEngine().front(context.Background(), src, Options{}, &Extensions{})
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}

	return root
}

func TestRewrite_NoSharing(t *testing.T) {
	root := parseTree(t, "div\n  p(a=1) x\n  mixin m(v)\n    b= v")

	rewritten := RewriteBlock(root, func(n Node) (Node, bool) {
		if tag, ok := n.(*Tag); ok && tag.Name == "p" {
			tag.Name = "section"
			tag.Attrs[0].Name = "z"

			return tag, true
		}

		return n, false
	})

	orig := root.Nodes[0].(*Tag).Block.Nodes[0].(*Tag)
	if orig.Name != "p" || orig.Attrs[0].Name != "a" {
		t.Errorf("input tree modified: %s %v", orig.Name, orig.Attrs)
	}

	got := rewritten.Nodes[0].(*Tag).Block.Nodes[0].(*Tag)
	if got.Name != "section" || got.Attrs[0].Name != "z" {
		t.Errorf("rewrite not applied: %s %v", got.Name, got.Attrs)
	}

	if rewritten == root || rewritten.Nodes[0] == root.Nodes[0] {
		t.Error("rewritten tree shares nodes with its input")
	}
}

func TestRewrite_Drop(t *testing.T) {
	root := parseTree(t, "// a\np\n//- b\nspan")

	out := RewriteBlock(root, func(n Node) (Node, bool) {
		if _, ok := n.(*Comment); ok {
			return nil, true
		}

		return n, false
	})

	if len(out.Nodes) != 2 {
		t.Fatalf("got %d nodes, want 2", len(out.Nodes))
	}

	if len(root.Nodes) != 4 {
		t.Errorf("input tree lost nodes: %d", len(root.Nodes))
	}
}

func TestClone(t *testing.T) {
	root := parseTree(t, "if a\n  p= b\nelse\n  each x in xs\n    i= x")

	c, ok := Clone(root).(*Block)
	if !ok {
		t.Fatalf("Clone returned %T", c)
	}

	cond := c.Nodes[0].(*Conditional)
	cond.Test = "changed"

	if root.Nodes[0].(*Conditional).Test != "a" {
		t.Error("clone shares structure with original")
	}
}

func TestWalk(t *testing.T) {
	root := parseTree(t, "div\n  if a\n    p x\n  else\n    span y")

	var names []string

	Walk(root, func(n Node) bool {
		if tag, ok := n.(*Tag); ok {
			names = append(names, tag.Name)
		}

		return true
	})

	if want := []string{"div", "p", "span"}; !slices.Equal(names, want) {
		t.Errorf("walked %v, want %v", names, want)
	}

	var visited int

	Walk(root, func(n Node) bool {
		visited++

		_, isTag := n.(*Tag)

		return !isTag
	})

	if visited != 2 {
		t.Errorf("visited %d nodes with pruning, want 2", visited)
	}
}

func TestFreeVariables(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		bound []string
		want  []string
	}{
		{
			name: "expressions and attributes",
			src:  "a(href=url)= title + suffix",
			want: []string{"url", "title", "suffix"},
		},
		{
			name: "each binds",
			src:  "each v, k in items\n  p= v + k + other",
			want: []string{"items", "other"},
		},
		{
			name: "mixin params bind",
			src:  "mixin m(a, ...rest)\n  p= a + len(rest) + b",
			want: []string{"b"},
		},
		{
			name:  "explicit bound",
			src:   "p= a + b",
			bound: []string{"a"},
			want:  []string{"b"},
		},
		{
			name: "deduplicated",
			src:  "p= a\np= a\nif a\n  p",
			want: []string{"a"},
		},
		{
			name: "mixin call arguments",
			src:  "+m(x, \"y\")",
			want: []string{"x"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FreeVariables(parseTree(t, tt.src), tt.bound...)
			if !slices.Equal(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDedent(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  a\n    b\n  c", "a\n  b\nc"},
		{"a\n  b", "a\n  b"},
		{"    a\n\n    b", "a\n\nb"},
	}

	for _, tt := range tests {
		if got := Dedent(tt.in); got != tt.want {
			t.Errorf("Dedent(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSplitArgs(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"a", []string{"a"}},
		{" a , b ", []string{"a", "b"}},
		{`f(a, b), "x,y", [1, 2], {k: 1, j: 2}`, []string{`f(a, b)`, `"x,y"`, `[1, 2]`, `{k: 1, j: 2}`}},
	}

	for _, tt := range tests {
		if got := SplitArgs(tt.in); !slices.Equal(got, tt.want) {
			t.Errorf("SplitArgs(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// note is a node type defined outside the built-in set.
type note struct {
	*Text
}

func TestRewrite_ForeignNode(t *testing.T) {
	n := &note{Text: &Text{Val: "kept"}}
	root := &Block{Nodes: []Node{&Text{Val: "a"}, n}}

	var seen bool

	out := RewriteBlock(root, func(x Node) (Node, bool) {
		if x == Node(n) {
			seen = true
		}

		return x, false
	})

	if !seen {
		t.Error("rewrite function not called for foreign node")
	}

	if len(out.Nodes) != 2 || out.Nodes[1] != Node(n) {
		t.Errorf("foreign node dropped: %v", out.Nodes)
	}
}
