package lang

import (
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"reflect"
	"slices"
	"sort"
	"strings"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/js"
)

// RuntimePrefix prefixes the name of every runtime helper function.
const RuntimePrefix = "tmpl_"

// RuntimeSources holds the JavaScript source of each client runtime helper,
// keyed by helper name. Each source declares a function named RuntimePrefix
// plus its key.
//
//nolint:gochecknoglobals
var RuntimeSources = map[string]string{
	"attr": `function tmpl_attr(k, v, escaped, terse) {` +
		`if (v === false || v == null || (!v && (k === "class" || k === "style"))) return "";` +
		`if (v === true) return terse ? " " + k : " " + k + "=\"" + k + "\"";` +
		`if (typeof v === "object") v = JSON.stringify(v);` +
		`return " " + k + "=\"" + (escaped ? tmpl_escape(v) : v) + "\"";}`,
	"attrs": `function tmpl_attrs(o, terse) {` +
		`var out = "";` +
		`for (var k in o) {` +
		`var v = o[k];` +
		`if (k === "class") v = tmpl_classes(v);` +
		`else if (k === "style") v = tmpl_style(v);` +
		`out = out + tmpl_attr(k, v, true, terse);}` +
		`return out;}`,
	"classes": `function tmpl_classes(v) {` +
		`if (Array.isArray(v)) {var out = [];` +
		`for (var i = 0; i < v.length; i++) {var c = tmpl_classes(v[i]); if (c) out.push(c);}` +
		`return out.join(" ");}` +
		`if (v && typeof v === "object") {var keys = [];` +
		`for (var k in v) if (v[k]) keys.push(k);` +
		`return keys.join(" ");}` +
		`return v == null || v === false ? "" : "" + v;}`,
	"escape": `function tmpl_escape(v) {` +
		`var s = "" + (v == null ? "" : v);` +
		`return s.replace(/[&<>"]/g, function (c) {` +
		`return c === "&" ? "&amp;" : c === "<" ? "&lt;" : c === ">" ? "&gt;" : "&quot;";});}`,
	"merge": `function tmpl_merge(a, b) {` +
		`var out = {}, k;` +
		`for (k in a) out[k] = a[k];` +
		`for (k in b) out[k] = b[k];` +
		`return out;}`,
	"rethrow": `function tmpl_rethrow(err, filename, line) {` +
		`err.message = (filename || "template") + ":" + line + "\n" + err.message;` +
		`throw err;}`,
	"style": `function tmpl_style(v) {` +
		`if (!v) return "";` +
		`if (typeof v === "object") {var out = "";` +
		`for (var k in v) out = out + k + ":" + v[k] + ";";` +
		`return out;}` +
		`return "" + v;}`,
}

// runtimeDeps lists the helpers each helper calls.
//
//nolint:gochecknoglobals
var runtimeDeps = map[string][]string{
	"attr":  {"escape"},
	"attrs": {"attr", "classes", "style"},
}

// RuntimeNames returns the names of all runtime helpers in sorted order.
func RuntimeNames() []string {
	return slices.Sorted(maps.Keys(RuntimeSources))
}

// runtimeClosure returns names and every helper they depend on, sorted.
func runtimeClosure(names []string) []string {
	seen := make(map[string]bool)

	var visit func(string)

	visit = func(name string) {
		if seen[name] {
			return
		}

		seen[name] = true

		for _, dep := range runtimeDeps[name] {
			visit(dep)
		}
	}

	for _, name := range names {
		visit(name)
	}

	return slices.Sorted(maps.Keys(seen))
}

// CheckClient reports whether src is syntactically valid JavaScript.
func CheckClient(src string) error {
	if _, err := js.Parse(parse.NewInputString(src), js.Options{}); err != nil {
		return ErrClientSyntax.Wrap(err)
	}

	return nil
}

// Quote returns s as a JavaScript string literal that is also safe to embed
// in HTML script content.
func Quote(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		return `""`
	}

	return string(b)
}

//nolint:gochecknoglobals
var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
)

// Escape returns the text form of v with HTML special characters escaped.
// It matches the client runtime's escape helper.
func Escape(v any) string {
	return htmlEscaper.Replace(Stringify(v))
}

// Stringify returns the text form of v as written to template output. Nil
// renders as the empty string.
func Stringify(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1e21 {
			return fmt.Sprintf("%.0f", v)
		}
	}

	return fmt.Sprint(v)
}

// Truthy reports whether v counts as true in a condition: everything except
// nil, false, zero numbers, and the empty string.
func Truthy(v any) bool {
	switch v := v.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	case int:
		return v != 0
	case float64:
		return v != 0 && !math.IsNaN(v)
	}

	rv := reflect.ValueOf(v)

	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	}

	return true
}

// renderAttr is the server form of the attr helper.
func renderAttr(name string, v any, escape bool) string {
	switch v := v.(type) {
	case nil:
		return ""
	case bool:
		if v {
			return " " + name
		}

		return ""
	}

	if (name == "class" || name == "style") && !Truthy(v) {
		return ""
	}

	var s string

	switch rv := reflect.ValueOf(v); rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		b, err := json.Marshal(v)
		if err != nil {
			s = Stringify(v)
		} else {
			s = string(b)
		}

	default:
		s = Stringify(v)
	}

	if escape {
		s = htmlEscaper.Replace(s)
	}

	return " " + name + `="` + s + `"`
}

// renderClasses is the server form of the classes helper.
func renderClasses(v any) string {
	if v == nil {
		return ""
	}

	switch rv := reflect.ValueOf(v); rv.Kind() {
	case reflect.Slice, reflect.Array:
		var out []string

		for i := range rv.Len() {
			if c := renderClasses(rv.Index(i).Interface()); c != "" {
				out = append(out, c)
			}
		}

		return strings.Join(out, " ")

	case reflect.Map:
		var out []string

		for _, k := range sortedKeys(rv) {
			if Truthy(rv.MapIndex(k).Interface()) {
				out = append(out, Stringify(k.Interface()))
			}
		}

		return strings.Join(out, " ")
	}

	if b, ok := v.(bool); ok && !b {
		return ""
	}

	return Stringify(v)
}

// renderStyle is the server form of the style helper.
func renderStyle(v any) string {
	if !Truthy(v) {
		return ""
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map {
		return Stringify(v)
	}

	var sb strings.Builder

	for _, k := range sortedKeys(rv) {
		sb.WriteString(Stringify(k.Interface()))
		sb.WriteByte(':')
		sb.WriteString(Stringify(rv.MapIndex(k).Interface()))
		sb.WriteByte(';')
	}

	return sb.String()
}

// renderAttrs is the server form of the attrs helper.
func renderAttrs(v any) string {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || rv.Kind() != reflect.Map {
		return ""
	}

	var sb strings.Builder

	for _, k := range sortedKeys(rv) {
		name := Stringify(k.Interface())
		val := rv.MapIndex(k).Interface()

		switch name {
		case "class":
			val = renderClasses(val)
		case "style":
			val = renderStyle(val)
		}

		sb.WriteString(renderAttr(name, val, true))
	}

	return sb.String()
}

func sortedKeys(m reflect.Value) []reflect.Value {
	keys := m.MapKeys()

	sort.Slice(keys, func(i, j int) bool {
		return Stringify(keys[i].Interface()) < Stringify(keys[j].Interface())
	})

	return keys
}
