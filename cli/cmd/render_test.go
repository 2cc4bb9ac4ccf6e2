package cmd

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestRender_Run(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"page.tpl": "include partials/cards\nrender card(title)\np= upper(who)",
		"lib/partials/cards.tpl": "fragment card(t)\n  h2= t",
		"data.yaml":              "title: first\nwho: ann\n",
		"more.json":              `{"title": "<second>"}`,
	})

	tests := []struct {
		name string
		r    Render
		want string
	}{
		{
			name: "data files merge in order",
			r: Render{
				File: filepath.Join(dir, "page.tpl"),
				Data: []string{filepath.Join(dir, "data.yaml"), filepath.Join(dir, "more.json")},
			},
			want: "<h2>&lt;second&gt;</h2><p>ANN</p>",
		},
		{
			name: "set overrides data",
			r: Render{
				File: filepath.Join(dir, "page.tpl"),
				Data: []string{filepath.Join(dir, "data.yaml")},
				Set:  map[string]string{"who": "bob"},
			},
			want: "<h2>first</h2><p>BOB</p>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer

			ctx := runContext(&out, "", Settings{SearchPath: []string{filepath.Join(dir, "lib")}})

			if err := tt.r.Run(ctx); err != nil {
				t.Fatalf("Run: %v", err)
			}

			if got := out.String(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRender_RunOut(t *testing.T) {
	path := filepath.Join(t.TempDir(), "page.html")

	var out bytes.Buffer

	r := &Render{File: "-", Out: path, Set: map[string]string{"n": "x"}}

	if err := r.Run(runContext(&out, "p= n", Settings{})); err != nil {
		t.Fatalf("Run: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	if string(b) != "<p>x</p>" || out.Len() != 0 {
		t.Errorf("file = %q, stdout = %q", b, out.String())
	}
}

func TestRender_RunErrors(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"bad.yaml": "a: [unterminated",
		"page.tpl": "p ok",
	})

	tests := []struct {
		name string
		r    Render
		in   string
		want error
	}{
		{
			name: "missing template",
			r:    Render{File: filepath.Join(dir, "none.tpl")},
			want: ErrReadSource,
		},
		{
			name: "invalid data",
			r:    Render{File: filepath.Join(dir, "page.tpl"), Data: []string{filepath.Join(dir, "bad.yaml")}},
			want: ErrReadData,
		},
		{
			name: "compile",
			r:    Render{File: "-"},
			in:   "render nothing()",
			want: ErrCompile,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.r.Run(runContext(&bytes.Buffer{}, tt.in, Settings{}))
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}
