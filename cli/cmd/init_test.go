package cmd

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/alecthomas/kong"
	"github.com/goccy/go-yaml"
)

// TestInitRun tests the Init.Run command.
func TestInitRun(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		format  string
		force   bool
		setup   func(t *testing.T, path string) // setup function to prepare test
		wantErr error
	}{
		{
			name:   "create_new_yaml",
			format: "yaml",
		},
		{
			name:   "create_new_toml",
			format: "toml",
		},
		{
			name:   "overwrite_existing_with_force",
			format: "yaml",
			force:  true,
			setup: func(t *testing.T, path string) {
				if err := os.WriteFile(path, []byte("existing content"), 0o644); err != nil {
					t.Fatal(err)
				}
			},
		},
		{
			name:   "fail_without_force",
			format: "toml",
			setup: func(t *testing.T, path string) {
				if err := os.WriteFile(path, []byte("existing content"), 0o644); err != nil {
					t.Fatal(err)
				}
			},
			wantErr: ErrFileExists,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			confBase := filepath.Join(t.TempDir(), "config")
			confPath := confBase + "." + tt.format

			if tt.setup != nil {
				tt.setup(t, confPath)
			}

			// Create a Kong context with vars
			var cli struct {
				Namespace string   `default:"templates"`
				Include   []string `short:"I"`
				LogLevel  string   `default:"info"`
				PprofMode string
				Debug     bool
			}

			parser, err := kong.New(&cli, kong.Vars{
				ConfigIdentifier: confBase,
			})
			if err != nil {
				t.Fatal(err)
			}

			kctx, err := parser.Parse([]string{"--namespace=ui", "-I", "a", "-I", "b", "--pprof-mode=cpu"})
			if err != nil {
				t.Fatal(err)
			}

			ctx := WithContext(context.Background(), kctx)

			err = (&Init{Force: tt.force, Format: tt.format}).Run(ctx)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Init.Run() error = %v, want %v", err, tt.wantErr)
				}

				return
			}

			if err != nil {
				t.Fatalf("Init.Run() error = %v", err)
			}

			content, err := os.ReadFile(confPath)
			if err != nil {
				t.Fatal(err)
			}

			var doc struct {
				Config struct {
					Namespace string   `toml:"namespace" yaml:"namespace"`
					Include   []string `toml:"include"   yaml:"include"`
					LogLevel  string   `toml:"log-level" yaml:"log-level"`
					PprofMode string   `toml:"pprof-mode" yaml:"pprof-mode"`
					Debug     *bool    `toml:"debug"     yaml:"debug"`
				} `toml:"config" yaml:"config"`
			}

			if tt.format == "toml" {
				_, err = toml.Decode(string(content), &doc)
			} else {
				err = yaml.Unmarshal(content, &doc)
			}

			if err != nil {
				t.Fatalf("generated config does not parse: %v\n%s", err, content)
			}

			c := doc.Config
			if c.Namespace != "ui" || c.LogLevel != "info" || !slices.Equal(c.Include, []string{"a", "b"}) {
				t.Errorf("config = %+v\n%s", c, content)
			}

			if c.PprofMode != "" {
				t.Errorf("pprof flags written: %q", c.PprofMode)
			}

			if c.Debug == nil || *c.Debug {
				t.Errorf("debug = %v, want false", c.Debug)
			}
		})
	}
}

func TestConfigValue(t *testing.T) {
	type level string

	tests := []struct {
		in   any
		want any
	}{
		{nil, nil},
		{"", nil},
		{level("debug"), "debug"},
		{true, true},
		{3, int64(3)},
		{uint8(2), uint64(2)},
		{1.5, 1.5},
		{[]string{}, nil},
		{map[string]string{"a": "b"}, nil},
	}

	for _, tt := range tests {
		if got := configValue(tt.in); got != tt.want {
			t.Errorf("configValue(%#v) = %#v, want %#v", tt.in, got, tt.want)
		}
	}

	list, ok := configValue([]level{"a", ""}).([]any)
	if !ok || len(list) != 1 || list[0] != "a" {
		t.Errorf("list = %#v", list)
	}
}
