package log

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

func decode(t *testing.T, line string) map[string]any {
	t.Helper()

	var m map[string]any

	if err := json.Unmarshal([]byte(line), &m); err != nil {
		t.Fatalf("invalid JSON log line %q: %v", line, err)
	}

	return m
}

func TestMakeDefaults(t *testing.T) {
	var buf bytes.Buffer

	logger := Make(&buf)

	if logger.Level() != DefaultLevel {
		t.Errorf("Level() = %v, want %v", logger.Level(), DefaultLevel)
	}

	if logger.Format() != DefaultFormat {
		t.Errorf("Format() = %v, want %v", logger.Format(), DefaultFormat)
	}

	logger.Info("compiled", slog.String("name", "page"))

	m := decode(t, strings.TrimSpace(buf.String()))
	if m[slog.MessageKey] != "compiled" || m["name"] != "page" {
		t.Errorf("unexpected record: %v", m)
	}

	if m[slog.LevelKey] != "INFO" {
		t.Errorf("level = %v, want INFO", m[slog.LevelKey])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer

	logger := Make(&buf, WithLevel(LevelWarn))
	logger.Debug("hidden")
	logger.Info("hidden")

	if buf.Len() != 0 {
		t.Fatalf("records below level were written: %q", buf.String())
	}

	logger.Warn("shown")

	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("warn record missing: %q", buf.String())
	}
}

func TestTraceLevelName(t *testing.T) {
	var buf bytes.Buffer

	logger := Make(&buf, WithLevel(LevelTrace), WithTimeLayout("none"))
	logger.Trace("scanning")

	m := decode(t, strings.TrimSpace(buf.String()))
	if m[slog.LevelKey] != "TRACE" {
		t.Errorf("level = %v, want TRACE", m[slog.LevelKey])
	}

	if _, ok := m[slog.TimeKey]; ok {
		t.Error("time attribute present with layout none")
	}
}

func TestCallerReportsCallSite(t *testing.T) {
	var buf bytes.Buffer

	logger := Make(&buf, WithCaller(true))
	logger.InfoContext(context.Background(), "here")

	m := decode(t, strings.TrimSpace(buf.String()))

	src, ok := m[slog.SourceKey].(map[string]any)
	if !ok {
		t.Fatalf("source missing: %v", m)
	}

	if file, _ := src["file"].(string); !strings.HasSuffix(file, "log_test.go") {
		t.Errorf("source file = %q, want log_test.go", file)
	}
}

func TestWrapAndWith(t *testing.T) {
	var buf bytes.Buffer

	base := Make(&buf)
	text := base.Wrap(WithFormat(FormatText))

	if base.Format() != FormatJSON || text.Format() != FormatText {
		t.Fatalf("Wrap modified the receiver")
	}

	text.With(slog.String("run", "abc")).Info("msg")

	if !strings.Contains(buf.String(), "run=abc") {
		t.Errorf("With attribute missing: %q", buf.String())
	}
}

func TestZeroLoggerIsNoop(t *testing.T) {
	var logger Logger

	logger.Info("nothing")
	logger.With(slog.Int("n", 1)).Error("nothing")

	if logger.Level() != DefaultLevel {
		t.Errorf("zero Level() = %v", logger.Level())
	}
}

func TestPrettyOutput(t *testing.T) {
	var buf bytes.Buffer

	logger := Make(&buf, WithPretty(true), WithTimeLayout("none"))
	logger.With(slog.String("ns", "templates")).
		WithGroup("frag").
		Info("declared", slog.String("name", "row item"))

	out := buf.String()

	for _, want := range []string{"INFO", "declared", "ns=", "templates", `frag.name=`, `"row item"`} {
		if !strings.Contains(out, want) {
			t.Errorf("pretty output %q missing %q", out, want)
		}
	}
}

func TestConcurrentLogging(t *testing.T) {
	var (
		buf syncBuffer
		wg  sync.WaitGroup
	)

	logger := Make(&buf)

	for i := range 16 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			logger.Info("worker", slog.Int("id", i))
		}()
	}

	wg.Wait()

	if n := strings.Count(buf.String(), "\n"); n != 16 {
		t.Errorf("got %d lines, want 16", n)
	}
}

func TestPackageLogger(t *testing.T) {
	var buf bytes.Buffer

	saved := Default()

	t.Cleanup(func() {
		defaultMu.Lock()
		defaultLog = saved
		defaultMu.Unlock()
	})

	Config(WithOutput(&buf), WithLevel(LevelDebug))
	Debug("package debug")
	With(slog.Bool("ok", true)).Info("package info")

	out := buf.String()
	if !strings.Contains(out, "package debug") || !strings.Contains(out, `"ok":true`) {
		t.Errorf("unexpected output %q", out)
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.String()
}
