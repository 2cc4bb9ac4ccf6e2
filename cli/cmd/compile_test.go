package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ardnew/tmplfrag/lang"
)

func runContext(out *bytes.Buffer, in string, settings Settings) context.Context {
	ctx := WithStreams(context.Background(), Streams{In: strings.NewReader(in), Out: out})

	return WithSettings(ctx, settings)
}

func TestCompile_Run(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"card.tpl": "fragment card(title)\n  .card= title\nrender card(heading)",
		"list.tpl": "ul\n  each x in items\n    li= x",
	})

	var out bytes.Buffer

	c := &Compile{
		Files: []string{filepath.Join(dir, "card.tpl"), filepath.Join(dir, "list.tpl")},
		Jobs:  2,
	}

	if err := c.Run(runContext(&out, "", Settings{Namespace: "ui"})); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := out.String()

	card := strings.Index(got, "function card(locals) {")
	list := strings.Index(got, "function list(locals) {")

	if card < 0 || list < 0 || card > list {
		t.Fatalf("functions missing or out of order:\n%s", got)
	}

	// Fragment scripts are emitted as quoted static text.
	if !strings.Contains(got, `window[\"ui\"][\"card\"] = function (title) {`) {
		t.Errorf("fragment not exported on namespace ui:\n%s", got)
	}

	for _, body := range strings.SplitAfter(got, "\n}\n") {
		if body = strings.TrimSpace(body); body == "" {
			continue
		}

		if err := lang.CheckClient(body); err != nil {
			t.Errorf("invalid client code: %v\n%s", err, body)
		}
	}
}

func TestCompile_RunOutDir(t *testing.T) {
	dir := writeFiles(t, map[string]string{"page.tpl": "p hi"})
	outDir := filepath.Join(t.TempDir(), "js")

	var out bytes.Buffer

	c := &Compile{Files: []string{filepath.Join(dir, "page.tpl")}, Out: outDir, Name: "home"}

	if err := c.Run(runContext(&out, "", Settings{})); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if out.Len() != 0 {
		t.Errorf("stdout = %q, want nothing", out.String())
	}

	b, err := os.ReadFile(filepath.Join(outDir, "home.js"))
	if err != nil {
		t.Fatal(err)
	}

	if !strings.HasPrefix(string(b), "function home(locals) {") {
		t.Errorf("home.js = %q", b)
	}
}

func TestCompile_RunStdinInclude(t *testing.T) {
	dir := writeFiles(t, map[string]string{"partials/nav.tpl": "nav menu"})

	var out bytes.Buffer

	c := &Compile{Files: []string{"-"}, Check: true}
	ctx := runContext(&out, "include partials/nav", Settings{SearchPath: []string{dir}})

	if err := c.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if out.Len() != 0 {
		t.Errorf("check wrote %q, want nothing", out.String())
	}
}

func TestCompile_RunErrors(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"ok.tpl":   "p ok",
		"bad1.tpl": "render missing()",
		"bad2.tpl": "fragment a()\n  p a\nfragment a()\n  p b",
	})

	t.Run("aggregated", func(t *testing.T) {
		var out bytes.Buffer

		c := &Compile{Files: []string{
			filepath.Join(dir, "bad1.tpl"),
			filepath.Join(dir, "ok.tpl"),
			filepath.Join(dir, "bad2.tpl"),
		}}

		err := c.Run(runContext(&out, "", Settings{}))
		if !errors.Is(err, ErrCompile) {
			t.Fatalf("error = %v, want ErrCompile", err)
		}

		msg := err.Error()
		if !strings.Contains(msg, "unknown fragment") || !strings.Contains(msg, "duplicate") {
			t.Errorf("error does not report both files: %v", err)
		}

		if out.Len() != 0 {
			t.Errorf("stdout = %q, want nothing on failure", out.String())
		}
	})

	t.Run("same output file", func(t *testing.T) {
		other := writeFiles(t, map[string]string{"ok.tpl": "p other"})
		outDir := t.TempDir()

		c := &Compile{
			Files: []string{filepath.Join(dir, "ok.tpl"), filepath.Join(other, "ok.tpl")},
			Out:   outDir,
		}

		err := c.Run(runContext(&bytes.Buffer{}, "", Settings{}))
		if !errors.Is(err, ErrOutputClash) {
			t.Fatalf("error = %v, want ErrOutputClash", err)
		}

		if _, err := os.Stat(filepath.Join(outDir, "ok.js")); !os.IsNotExist(err) {
			t.Errorf("ok.js written despite the clash: %v", err)
		}
	})

	t.Run("name with many files", func(t *testing.T) {
		c := &Compile{
			Files: []string{filepath.Join(dir, "ok.tpl"), "-"},
			Name:  "x",
		}

		err := c.Run(runContext(&bytes.Buffer{}, "p stdin", Settings{}))
		if !errors.Is(err, ErrNameFiles) {
			t.Errorf("error = %v, want ErrNameFiles", err)
		}
	})
}
