package fragment

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"testing"

	"golang.org/x/net/html"

	"github.com/ardnew/tmplfrag/lang"
)

var staticText = regexp.MustCompile(`tmpl_html = tmpl_html \+ ("(?:[^"\\]|\\.)*");`)

// staticHTML returns the concatenated literal markup appended by the
// statements of a client function body.
func staticHTML(t *testing.T, body string) string {
	t.Helper()

	var sb strings.Builder

	for _, m := range staticText.FindAllStringSubmatch(body, -1) {
		var s string
		if err := json.Unmarshal([]byte(m[1]), &s); err != nil {
			t.Fatalf("decode %s: %v", m[1], err)
		}

		sb.WriteString(s)
	}

	return sb.String()
}

// scripts returns the content of every script element in markup.
func scripts(t *testing.T, markup string) []string {
	t.Helper()

	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		t.Fatalf("parse markup: %v", err)
	}

	var out []string

	var walk func(*html.Node)

	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "script" && n.FirstChild != nil {
			out = append(out, n.FirstChild.Data)
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(doc)

	return out
}

func compileClient(t *testing.T, c *Compiler, src string) string {
	t.Helper()

	res, err := c.CompileClient(context.Background(), src, lang.Options{Name: "page", Filename: "page.tpl"})
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}

	if err := lang.CheckClient(res.Body); err != nil {
		t.Fatalf("generated invalid JavaScript: %v\n%s", err, res.Body)
	}

	return res.Body
}

func TestCompileClient_Fragments(t *testing.T) {
	var declared []*Fragment

	c := New(WithOnDeclare(func(f *Fragment) { declared = append(declared, f) }))

	src := strings.Join([]string{
		"fragment ui.card(title, sub, ...tags)",
		"  h2= title",
		"  each tag in tags",
		"    span.tag= tag",
		"fragment ui.badge",
		"  span.badge= label",
		"fragment ui.chip(x)",
		"  b= x",
		"div",
		`  render card("t", "s", "a", "b")`,
		`  render badge({label: "new"})`,
	}, "\n")

	body := compileClient(t, c, src)

	for _, want := range []string{
		`(tmpl_interp = ((typeof tmpl_frag_card === "function" ? tmpl_frag_card : window["ui"]["card"])("t", "s", "a", "b")))`,
		`(tmpl_interp = ((typeof tmpl_frag_badge === "function" ? tmpl_frag_badge : window["ui"]["badge"])({label: "new"})))`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("body lacks %s\n%s", want, body)
		}
	}

	markup := staticHTML(t, body)

	if n := strings.Count(markup, `window["ui"]=window["ui"]||{};`); n != 1 {
		t.Errorf("namespace guard emitted %d times, want 1\n%s", n, markup)
	}

	found := scripts(t, markup)
	if len(found) != 3 {
		t.Fatalf("got %d scripts, want 3\n%s", len(found), markup)
	}

	for _, s := range found {
		if err := lang.CheckClient(s); err != nil {
			t.Errorf("invalid fragment script: %v\n%s", err, s)
		}
	}

	for _, want := range []string{
		`window["ui"]["card"] = function (title, sub) {`,
		"var tags = []; for (var tmpl_i = 2; tmpl_i < arguments.length; tmpl_i++) tags.push(arguments[tmpl_i]);",
	} {
		if !strings.Contains(found[0], want) {
			t.Errorf("card script lacks %s\n%s", want, found[0])
		}
	}

	for _, want := range []string{
		`window["ui"]["badge"] = function (locals) {`,
		"locals = locals || {};var label = locals.label;",
	} {
		if !strings.Contains(found[1], want) {
			t.Errorf("badge script lacks %s\n%s", want, found[1])
		}
	}

	if strings.Contains(body, "tmpl_mixins[") {
		t.Errorf("fragment leaked into the mixin table\n%s", body)
	}

	for _, f := range declared {
		if f.Target != ClientEmitted {
			t.Errorf("%s: target = %v, want %v", f.Name, f.Target, ClientEmitted)
		}

		if f.Server != nil {
			t.Errorf("%s: server template compiled in a client run", f.Name)
		}
	}
}

func TestCompileClient_GuardPerNamespace(t *testing.T) {
	src := strings.Join([]string{
		"fragment a.one",
		"  i 1",
		"fragment b.two",
		"  i 2",
		"fragment a.three",
		"  i 3",
		"fragment four",
		"  i 4",
	}, "\n")

	markup := staticHTML(t, compileClient(t, New(), src))

	for _, ns := range []string{"a", "b", DefaultNamespace} {
		guard := namespaceGuard(ns)
		if n := strings.Count(markup, guard); n != 1 {
			t.Errorf("guard %s emitted %d times, want 1", guard, n)
		}
	}
}

func TestCompileClient_Debug(t *testing.T) {
	src := "fragment a(v)\n  p= v\nrender a(1)"

	res, err := New().CompileClient(context.Background(), src, lang.Options{Debug: true, Filename: "page.tpl"})
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}

	if err := lang.CheckClient(res.Body); err != nil {
		t.Fatalf("generated invalid JavaScript: %v\n%s", err, res.Body)
	}

	for _, s := range scripts(t, staticHTML(t, res.Body)) {
		if strings.Contains(s, "tmpl_debug_line") {
			t.Errorf("fragment script carries debug statements\n%s", s)
		}
	}
}

func TestCompileClient_FragmentBody(t *testing.T) {
	var declared []*Fragment

	c := New(WithOnDeclare(func(f *Fragment) { declared = append(declared, f) }))

	compileClient(t, c, "fragment item\n  li= label\nfragment list(xs)\n  each x in xs\n    render item({label: x})")

	if len(declared) != 2 {
		t.Fatalf("declared %d fragments, want 2", len(declared))
	}

	item, list := declared[0], declared[1]

	for _, want := range []string{"function item(locals) {", "var label = locals.label;"} {
		if !strings.Contains(item.Client, want) {
			t.Errorf("item client lacks %s\n%s", want, item.Client)
		}
	}

	if want := `tmpl_frag_item : window["templates"]["item"])({label: x})`; !strings.Contains(list.Client, want) {
		t.Errorf("list client lacks %s\n%s", want, list.Client)
	}

	for _, f := range declared {
		if err := lang.CheckClient(f.Client); err != nil {
			t.Errorf("%s: invalid client function: %v\n%s", f.Name, err, f.Client)
		}
	}
}

// TestCompileClient_RenderDeclared tests that a page calling a fragment it
// declares binds the fragment locally before the call, since the script
// exporting it has not run when the page function does.
func TestCompileClient_RenderDeclared(t *testing.T) {
	src := strings.Join([]string{
		"fragment card(a, b, ...rest)",
		"  p= a",
		"  each r in rest",
		"    i= r",
		"render card(1, 2, 3, 4)",
	}, "\n")

	body := compileClient(t, New(), src)

	decl := strings.Index(body, "var tmpl_frag_card = function (a, b) {")
	call := strings.Index(body, `(typeof tmpl_frag_card === "function" ? tmpl_frag_card : window["templates"]["card"])(1, 2, 3, 4)`)

	switch {
	case decl < 0:
		t.Fatalf("page does not bind the fragment locally\n%s", body)
	case call < 0:
		t.Fatalf("page does not call the local binding\n%s", body)
	case decl > call:
		t.Fatalf("fragment bound after its call\n%s", body)
	}

	// The local binding is page code, not markup.
	if strings.Contains(staticHTML(t, body), "var tmpl_frag_card") {
		t.Errorf("local binding emitted as markup\n%s", body)
	}

	// Both copies collect the rest parameter.
	rest := "var rest = []; for (var tmpl_i = 2; tmpl_i < arguments.length; tmpl_i++) rest.push(arguments[tmpl_i]);"
	if n := strings.Count(body, rest); n != 1 {
		t.Errorf("page binds rest %d times, want 1\n%s", n, body)
	}

	found := scripts(t, staticHTML(t, body))
	if len(found) != 1 || !strings.Contains(found[0], rest) {
		t.Errorf("exported script lacks rest binding: %q", found)
	}
}
