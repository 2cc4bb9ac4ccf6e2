package lang

import (
	"context"
	"errors"
	"strings"
	"testing"
	"testing/fstest"
)

func render(t *testing.T, src string, data map[string]any) string {
	t.Helper()

	tmpl, err := NewEngine().Compile(context.Background(), src, Options{Filename: "test.tpl"})
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}

	out, err := tmpl.Render(data)
	if err != nil {
		t.Fatalf("render error: %v", err)
	}

	return out
}

func TestRender(t *testing.T) {
	tests := []struct {
		name string
		src  string
		data map[string]any
		want string
	}{
		{
			name: "doctype",
			src:  "doctype html",
			want: "<!DOCTYPE html>",
		},
		{
			name: "nested tags",
			src:  "ul\n  li one\n  li two",
			want: "<ul><li>one</li><li>two</li></ul>",
		},
		{
			name: "shorthand and attributes",
			src:  `div#main.page(data-num=num, hidden)`,
			data: map[string]any{"num": 5},
			want: `<div class="page" id="main" data-num="5" hidden></div>`,
		},
		{
			name: "false attribute omitted",
			src:  `input(type="checkbox", checked=on)`,
			data: map[string]any{"on": false},
			want: `<input type="checkbox">`,
		},
		{
			name: "dynamic classes",
			src:  `p.a(class=extra)`,
			data: map[string]any{"extra": []any{"b", "c"}},
			want: `<p class="a b c"></p>`,
		},
		{
			name: "interpolation",
			src:  "h1 Hello #{user.name}, !{tag}",
			data: map[string]any{
				"user": map[string]any{"name": "<Bob>"},
				"tag":  "<i>x</i>",
			},
			want: "<h1>Hello &lt;Bob&gt;, <i>x</i></h1>",
		},
		{
			name: "escaped interpolation sigil",
			src:  `p \#{not} code`,
			want: "<p>#{not} code</p>",
		},
		{
			name: "buffered code",
			src:  "p= a + b\np!= raw",
			data: map[string]any{"a": 1, "b": 2, "raw": "<br>"},
			want: "<p>3</p><p><br></p>",
		},
		{
			name: "piped and literal text",
			src:  "p\n  | one\n  <b>two</b>",
			want: "<p>one<b>two</b></p>",
		},
		{
			name: "comments",
			src:  "// shown\n//- hidden\np",
			want: "<!--shown--><p></p>",
		},
		{
			name: "conditional",
			src:  "if num > 1\n  | many\nelse if num == 1\n  | one\nelse\n  | none",
			data: map[string]any{"num": 1},
			want: "one",
		},
		{
			name: "unless",
			src:  "unless done\n  | pending",
			data: map[string]any{"done": false},
			want: "pending",
		},
		{
			name: "each over slice with index",
			src:  "each v, i in items\n  | #{i}=#{v};",
			data: map[string]any{"items": []string{"a", "b"}},
			want: "0=a;1=b;",
		},
		{
			name: "each over map sorted",
			src:  "each v, k in {b: 2, a: 1}\n  | #{k}#{v}",
			want: "a1b2",
		},
		{
			name: "each over nil",
			src:  "each v in missing\n  | x",
			want: "",
		},
		{
			name: "void element",
			src:  "br\nimg(src=\"a.png\")",
			want: `<br><img src="a.png">`,
		},
		{
			name: "script block",
			src:  "script.\n  var a = \"<b>\";",
			want: `<script>var a = "<b>";</script>`,
		},
		{
			name: "attributes map",
			src:  `a(href="/")&attributes(extra)`,
			data: map[string]any{"extra": map[string]any{"title": "t", "class": []any{"x"}}},
			want: `<a href="/" class="x" title="t"></a>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := render(t, tt.src, tt.data); got != tt.want {
				t.Errorf("got  %q\nwant %q", got, tt.want)
			}
		})
	}
}

func TestRender_Mixins(t *testing.T) {
	src := strings.Join([]string{
		"mixin badge(label)",
		"  span.badge= label",
		"mixin list(head, ...tail)",
		"  b= head",
		"  each t in tail",
		"    i= t",
		"+badge(\"new\")",
		"+list(1, 2, 3)",
		"+list(1)",
	}, "\n")

	want := `<span class="badge">new</span><b>1</b><i>2</i><i>3</i><b>1</b>`

	if got := render(t, src, nil); got != want {
		t.Errorf("got  %q\nwant %q", got, want)
	}
}

func TestRender_MixinScope(t *testing.T) {
	src := strings.Join([]string{
		"mixin show()",
		"  | #{label}",
		"each label in [\"a\", \"b\"]",
		"  +show()",
	}, "\n")

	// Mixins close over their declaration scope, not the caller's.
	if got := render(t, src, map[string]any{"label": "x"}); got != "xx" {
		t.Errorf("got %q, want %q", got, "xx")
	}
}

func TestRender_UnknownMixin(t *testing.T) {
	tmpl, err := NewEngine().Compile(context.Background(), "+nope()", Options{})
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}

	if _, err := tmpl.Render(nil); !errors.Is(err, ErrUnknownMixin) {
		t.Errorf("expected ErrUnknownMixin, got %v", err)
	}
}

func TestRender_IterateScalar(t *testing.T) {
	tmpl, err := NewEngine().Compile(context.Background(), "each v in 3\n  | x", Options{})
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}

	if _, err := tmpl.Render(nil); !errors.Is(err, ErrRender) {
		t.Errorf("expected ErrRender, got %v", err)
	}
}

func TestRender_Funcs(t *testing.T) {
	tmpl, err := NewEngine().Compile(context.Background(), "p= shout(word)", Options{
		Funcs: map[string]any{"shout": func(s string) string { return strings.ToUpper(s) + "!" }},
	})
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}

	out, err := tmpl.Render(map[string]any{"word": "hey"})
	if err != nil {
		t.Fatalf("render error: %v", err)
	}

	if out != "<p>HEY!</p>" {
		t.Errorf("got %q", out)
	}
}

func TestRender_Execute(t *testing.T) {
	tmpl, err := NewEngine().Compile(context.Background(), "p ok", Options{Name: "page"})
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}

	var sb strings.Builder

	if err := tmpl.Execute(&sb, nil); err != nil {
		t.Fatalf("execute error: %v", err)
	}

	if sb.String() != "<p>ok</p>" || tmpl.Name() != "page" {
		t.Errorf("got %q named %q", sb.String(), tmpl.Name())
	}
}

func TestCompile_Include(t *testing.T) {
	fsys := fstest.MapFS{
		"views/index.tpl":          {Data: []byte("main\n  include partials/nav\n  include /shared/foot")},
		"views/partials/nav.tpl":   {Data: []byte("nav= title")},
		"shared/foot.tpl":          {Data: []byte("footer end")},
		"lib/widgets/unused.tpl":   {Data: []byte("p unused")},
		"lib/widgets/sidebar.tpl":  {Data: []byte("aside side")},
		"views/partials/extra.tpl": {Data: []byte("include sidebar")},
	}

	src := string(fsys["views/index.tpl"].Data)

	tmpl, err := NewEngine(WithFS(fsys)).Compile(context.Background(), src, Options{
		Filename: "views/index.tpl",
	})
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}

	out, err := tmpl.Render(map[string]any{"title": "T"})
	if err != nil {
		t.Fatalf("render error: %v", err)
	}

	if want := "<main><nav>T</nav><footer>end</footer></main>"; out != want {
		t.Errorf("got %q, want %q", out, want)
	}

	deps := tmpl.Dependencies()
	if len(deps) != 2 || deps[0] != "views/partials/nav.tpl" || deps[1] != "shared/foot.tpl" {
		t.Errorf("dependencies = %v", deps)
	}

	t.Run("search path", func(t *testing.T) {
		src := string(fsys["views/partials/extra.tpl"].Data)

		tmpl, err := NewEngine().Compile(context.Background(), src, Options{
			Filename:   "views/partials/extra.tpl",
			FS:         fsys,
			SearchPath: []string{"/lib/widgets"},
		})
		if err != nil {
			t.Fatalf("compile error: %v", err)
		}

		out, err := tmpl.Render(nil)
		if err != nil {
			t.Fatalf("render error: %v", err)
		}

		if out != "<aside>side</aside>" {
			t.Errorf("got %q", out)
		}
	})
}

func TestCompile_IncludeErrors(t *testing.T) {
	fsys := fstest.MapFS{
		"a.tpl": {Data: []byte("include b")},
		"b.tpl": {Data: []byte("include a")},
	}

	tests := []struct {
		name string
		src  string
	}{
		{"missing", "include nowhere"},
		{"cycle", "include b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEngine(WithFS(fsys)).Compile(context.Background(), tt.src,
				Options{Filename: "a.tpl"})
			if !errors.Is(err, ErrInclude) {
				t.Errorf("expected ErrInclude, got %v", err)
			}
		})
	}
}

func TestCompile_ParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want error
	}{
		{"else without if", "else\n  p", ErrParse},
		{"if without body", "if a\np", ErrParse},
		{"rest not last", "mixin m(...a, b)\n  p", ErrParse},
		{"bad expression", "p= 1 +", ErrExprCompile},
		{"unterminated interpolation", "p #{a", ErrParse},
		{"bad each", "each in xs\n  p", ErrParse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEngine().Compile(context.Background(), tt.src, Options{})
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestCompile_UnhandledFragmentNode(t *testing.T) {
	g := newGenerator(context.Background(), TargetServer, Options{}, nil, NewEngine().Logger())

	err := g.Visit(&FragmentReference{Name: "card"})
	if !errors.Is(err, ErrGenerate) {
		t.Errorf("expected ErrGenerate, got %v", err)
	}
}
