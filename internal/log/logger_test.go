package log

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"loud":    slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("%q expected %v, got %v", in, want, got)
		}
	}
}

func TestLoggerAddsComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Output: &buf, Level: slog.LevelDebug}).WithComponent(ComponentEngine)
	logger.Info("hello", FieldOriginalID, "tx-1")

	out := buf.String()
	if !strings.Contains(out, "component=engine") || !strings.Contains(out, "original_id=tx-1") {
		t.Fatalf("unexpected log output: %s", out)
	}
	if logger.Component() != ComponentEngine {
		t.Fatalf("expected component %s, got %s", ComponentEngine, logger.Component())
	}
}

func TestLogFieldsSkipsEmptyIDs(t *testing.T) {
	f := NewFields().WithCorrelation("a", "", "c").WithAmount(5000).WithError(nil)
	if _, ok := f[FieldDerivedID]; ok {
		t.Fatal("empty derived id should be left out")
	}
	if _, ok := f[FieldError]; ok {
		t.Fatal("nil error should be left out")
	}
	if len(f.ToSlice()) != 6 {
		t.Fatalf("expected 3 pairs, got %v", f.ToSlice())
	}
}

func TestMiddlewareLogsFailures(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Output: &buf, Level: slog.LevelWarn}).WithComponent(ComponentHTTP)

	h := Middleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if FromContext(r.Context()) != logger {
			t.Error("expected logger in request context")
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/status", nil))

	if !strings.Contains(buf.String(), "status_code=500") {
		t.Fatalf("expected failure to be logged, got %q", buf.String())
	}
}
