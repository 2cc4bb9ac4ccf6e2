package fragment

import (
	"strings"
	"sync"

	"github.com/ardnew/tmplfrag/lang"
)

const runtimePrologue = "(function(){window.tmpl={};"

//nolint:gochecknoglobals
var runtimeHelpers = sync.OnceValue(func() string {
	var sb strings.Builder

	for _, name := range lang.RuntimeNames() {
		// Errors in client fragments are never rethrown with positions.
		if name == "rethrow" {
			continue
		}

		sb.WriteString(lang.RuntimeSources[name])
		sb.WriteString("window.tmpl." + name + "=" + lang.RuntimePrefix + name + ";")
	}

	return sb.String()
})

// RuntimeLibrary returns the client runtime: a script that defines the
// global tmpl object with every runtime helper except rethrow.
func RuntimeLibrary() string {
	return runtimeScript("")
}

func runtimeScript(exports string) string {
	return runtimePrologue + runtimeHelpers() + exports + "})();"
}

// exportFragments returns the script that attaches the client function of
// each fragment to its namespace, creating each namespace object once.
func exportFragments(frags []*Fragment) string {
	var sb strings.Builder

	seen := make(map[string]bool)

	for _, f := range frags {
		if !seen[f.Namespace] {
			seen[f.Namespace] = true

			sb.WriteString(namespaceGuard(f.Namespace))
		}

		sb.WriteString(namespaceRef(f.Namespace, f.Name) + "=" + clientExport(f) + ";")
	}

	return sb.String()
}

// clientExport returns a function expression invoking the compiled client
// function of f. The compiled function takes a locals object, so fragments
// with parameters are wrapped in a function taking them positionally.
func clientExport(f *Fragment) string {
	if len(f.Params) == 0 {
		return f.Client
	}

	positional, rest := splitParams(f.Params)

	fields := make([]string, 0, len(f.Params))
	for _, p := range f.Params {
		fields = append(fields, p.Name+":"+p.Name)
	}

	var sb strings.Builder

	sb.WriteString("(function(){var tmpl_fn=" + f.Client + ";")
	sb.WriteString("return function(" + strings.Join(positional, ",") + "){")

	if rest != "" {
		sb.WriteString(lang.RestLoop(rest, len(positional)))
	}

	sb.WriteString("return tmpl_fn.call(this,{" + strings.Join(fields, ",") + "});};})()")

	return sb.String()
}

func splitParams(params []Param) (positional []string, rest string) {
	for _, p := range params {
		if p.Rest {
			return positional, p.Name
		}

		positional = append(positional, p.Name)
	}

	return positional, ""
}

func namespaceGuard(ns string) string {
	ref := "window[" + lang.Quote(ns) + "]"

	return ref + "=" + ref + "||{};"
}

func namespaceRef(ns, local string) string {
	return "window[" + lang.Quote(ns) + "][" + lang.Quote(local) + "]"
}
