package lang

import (
	"maps"
	"slices"
	"strconv"
	"strings"
)

const debugMarker = "tmpl_debug_line = "

// IsDebugStatement reports whether s is a debug line marker statement.
func IsDebugStatement(s string) bool { return strings.HasPrefix(s, debugMarker) }

// jsReserved holds names that are never bound from locals: keywords, the
// client globals templates commonly read, and the generated function's own
// variables.
//
//nolint:gochecknoglobals
var jsReserved = map[string]bool{
	"arguments": true, "break": true, "case": true, "catch": true,
	"class": true, "const": true, "continue": true, "debugger": true,
	"default": true, "delete": true, "do": true, "else": true, "export": true,
	"extends": true, "false": true, "finally": true, "for": true,
	"function": true, "if": true, "import": true, "in": true,
	"instanceof": true, "let": true, "new": true, "null": true,
	"return": true, "super": true, "switch": true, "this": true,
	"throw": true, "true": true, "try": true, "typeof": true,
	"undefined": true, "var": true, "void": true, "while": true,
	"with": true, "yield": true,

	"Array": true, "Boolean": true, "Date": true, "Infinity": true,
	"JSON": true, "Math": true, "NaN": true, "Number": true, "Object": true,
	"RegExp": true, "String": true, "console": true, "document": true,
	"encodeURIComponent": true, "decodeURIComponent": true, "isNaN": true,
	"parseFloat": true, "parseInt": true, "window": true,

	"locals": true, "tmpl": true,
}

// Locals returns the free variables of n that the generated client code
// binds from its locals object: those not bound by bound, not reserved in
// JavaScript, and not listed in [Options.Globals].
func (g *Generator) Locals(n Node, bound ...string) []string {
	var out []string

	for _, name := range FreeVariables(n, bound...) {
		if jsReserved[name] || strings.HasPrefix(name, RuntimePrefix) ||
			slices.Contains(g.opts.Globals, name) {
			continue
		}

		out = append(out, name)
	}

	return out
}

func (g *Generator) flush() {
	if g.pending.Len() == 0 {
		return
	}

	g.stmts = append(g.stmts, "tmpl_html = tmpl_html + "+Quote(g.pending.String())+";")
	g.pending.Reset()
}

// Statements returns a copy of the client statements generated so far,
// including pending text.
func (g *Generator) Statements() []string {
	g.flush()

	return slices.Clone(g.stmts)
}

// Truncate discards every client statement after the first n.
func (g *Generator) Truncate(n int) {
	g.flush()

	if n >= 0 && n < len(g.stmts) {
		g.stmts = g.stmts[:n]
	}
}

// EmitStatement appends the JavaScript statement s.
func (g *Generator) EmitStatement(s string) {
	g.flush()
	g.stmts = append(g.stmts, s)
}

// BufferExpressionJS appends the value of the JavaScript expression js to
// the output, HTML-escaped if escape is set.
func (g *Generator) BufferExpressionJS(js string, escape bool) {
	if escape {
		g.EmitStatement("tmpl_html = tmpl_html + " + g.Helper("escape") + "(" + js + ");")

		return
	}

	g.EmitStatement(`tmpl_html = tmpl_html + (null == (tmpl_interp = (` + js + `)) ? "" : tmpl_interp);`)
}

// Helper returns the expression naming the runtime helper name and records
// it for [Options.InlineRuntime].
func (g *Generator) Helper(name string) string {
	g.helpers[name] = true

	return "tmpl." + name
}

func (g *Generator) visitClient(n Node) error {
	if _, ok := n.(*Block); !ok && g.opts.Debug {
		g.EmitStatement(debugMarker + strconv.Itoa(n.Position().Line) + ";")
	}

	switch n := n.(type) {
	case *Block:
		return g.visitBlock(n)

	case *Doctype:
		g.BufferText(doctype(n.Val))

	case *Tag:
		return g.clientTag(n)

	case *Text:
		g.BufferText(n.Val)

	case *Code:
		g.BufferExpressionJS(n.Expr, n.Escape)

	case *Comment:
		if n.Buffered {
			g.BufferText("<!--" + n.Val + "-->")
		}

	case *Conditional:
		g.EmitStatement("if (" + n.Test + ") {")

		if err := g.visitBlock(n.Then); err != nil {
			return err
		}

		if n.Else != nil {
			g.EmitStatement("} else {")

			if err := g.visitBlock(n.Else); err != nil {
				return err
			}
		}

		g.EmitStatement("}")

	case *Each:
		g.EmitStatement("(function () {")
		g.EmitStatement("var tmpl_obj = (" + n.Expr + ");")
		g.EmitStatement("if (tmpl_obj == null) return;")
		g.EmitStatement("var tmpl_keys = Array.isArray(tmpl_obj) ? " +
			"tmpl_obj.map(function (v, i) { return i; }) : Object.keys(tmpl_obj).sort();")
		g.EmitStatement("for (var tmpl_n = 0; tmpl_n < tmpl_keys.length; tmpl_n++) {")

		if n.Key != "" {
			g.EmitStatement("var " + n.Key + " = tmpl_keys[tmpl_n];")
		}

		g.EmitStatement("var " + n.Val + " = tmpl_obj[tmpl_keys[tmpl_n]];")

		if err := g.visitBlock(n.Block); err != nil {
			return err
		}

		g.EmitStatement("}")
		g.EmitStatement("}).call(this);")

	case *Mixin:
		var (
			names []string
			rest  string
		)

		for _, p := range n.Params {
			if name, ok := RestParam(p); ok {
				rest = name

				break
			}

			names = append(names, p)
		}

		g.EmitStatement("tmpl_mixins[" + Quote(n.Name) + "] = function (" +
			strings.Join(names, ", ") + ") {")

		if rest != "" {
			g.EmitStatement(RestLoop(rest, len(names)))
		}

		if err := g.visitBlock(n.Block); err != nil {
			return err
		}

		g.EmitStatement("};")

	case *MixinCall:
		g.EmitStatement("tmpl_mixins[" + Quote(n.Name) + "](" + n.Args + ");")

	case *Script:
		g.BufferText("<script>" + n.Content + "</script>")

	case *FragmentDeclaration, *FragmentReference:
		return g.Errorf(n, "no extension handles %T", n)

	default:
		return g.Errorf(n, "unknown node %T", n)
	}

	return nil
}

// RestLoop returns the statements that collect the arguments after the
// first skip into the array variable name.
func RestLoop(name string, skip int) string {
	return "var " + name + " = []; for (var tmpl_i = " + strconv.Itoa(skip) +
		"; tmpl_i < arguments.length; tmpl_i++) " + name + ".push(arguments[tmpl_i]);"
}

func (g *Generator) clientTag(t *Tag) error {
	g.BufferText("<" + t.Name)

	var (
		classes []string
		static  = true
	)

	for _, a := range t.Attrs {
		if a.Name != "class" {
			continue
		}

		if _, ok := constValue(a.Val); !ok {
			static = false
		}

		classes = append(classes, a.Val)
	}

	if len(classes) > 0 {
		if static {
			var names []any

			for _, c := range classes {
				v, _ := constValue(c)
				names = append(names, v)
			}

			g.BufferText(renderAttr("class", renderClasses(names), true))
		} else {
			g.EmitStatement("tmpl_html = tmpl_html + " + g.Helper("attr") + `("class", ` +
				g.Helper("classes") + "([" + strings.Join(classes, ", ") + "]), true, true);")
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

		val := "(" + a.Val + ")"
		if a.Name == "style" {
			val = g.Helper("style") + val
		}

		g.EmitStatement("tmpl_html = tmpl_html + " + g.Helper("attr") + "(" +
			Quote(a.Name) + ", " + val + ", " + strconv.FormatBool(a.Escape) + ", true);")
	}

	if t.Attributes != "" {
		g.EmitStatement("tmpl_html = tmpl_html + " + g.Helper("attrs") +
			"(" + t.Attributes + ", true);")
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

// function assembles the generated statements into the source of a
// JavaScript function named name that binds locals from its argument.
func (g *Generator) function(name string, locals []string) string {
	body := g.Statements()

	var sb strings.Builder

	line := func(depth int, s string) {
		sb.WriteString(strings.Repeat("  ", depth))
		sb.WriteString(s)
		sb.WriteByte('\n')
	}

	line(0, "function "+jsIdent(name)+"(locals) {")

	if g.opts.InlineRuntime {
		line(1, "var tmpl = {};")

		for _, h := range runtimeClosure(slices.Sorted(maps.Keys(g.helpers))) {
			line(1, RuntimeSources[h])
			line(1, "tmpl."+h+" = "+RuntimePrefix+h+";")
		}
	}

	line(1, `var tmpl_html = "", tmpl_mixins = {}, tmpl_interp;`)
	line(1, "locals = locals || {};")

	for _, v := range locals {
		line(1, "var "+v+" = locals."+v+";")
	}

	depth := 1

	if g.opts.Debug {
		line(1, RuntimeSources["rethrow"])
		line(1, "var tmpl_debug_filename = "+Quote(g.opts.Filename)+", tmpl_debug_line;")
		line(1, "try {")

		depth = 2
	}

	for _, s := range body {
		line(depth, s)
	}

	if g.opts.Debug {
		line(1, "} catch (err) {")
		line(2, "tmpl_rethrow(err, tmpl_debug_filename, tmpl_debug_line);")
		line(1, "}")
	}

	line(1, "return tmpl_html;")
	sb.WriteString("}")

	return sb.String()
}

// jsIdent returns name with every character that cannot appear in a
// JavaScript identifier replaced by an underscore.
func jsIdent(name string) string {
	if name == "" {
		return "template"
	}

	b := []byte(name)
	for i, c := range b {
		if !isNameChar(c) || c == '-' {
			b[i] = '_'
		}
	}

	if b[0] >= '0' && b[0] <= '9' {
		return "_" + string(b)
	}

	return string(b)
}
