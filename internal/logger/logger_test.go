package logger

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, WARN)

	l.Debug("APP", "debug line")
	l.Info("APP", "info line")
	l.Warn("APP", "warn line")
	l.Error("APP", "error line")

	out := buf.String()
	assert.NotContains(t, out, "debug line")
	assert.NotContains(t, out, "info line")
	assert.Contains(t, out, "WARN  [APP       ] warn line")
	assert.Contains(t, out, "ERROR [APP       ] error line")
}

func TestCallerIsReported(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, DEBUG)

	l.LogTicket("ISSUE", "abc", "issued")

	assert.Contains(t, buf.String(), "[ISSUE] abc - issued")
	assert.Contains(t, buf.String(), "(logger_test.go:")
}

func TestFatalExits(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, DEBUG)
	code := -1
	l.exit = func(c int) { code = c }

	l.Fatal("APP", "cannot continue")

	assert.Equal(t, 1, code)
	assert.Contains(t, buf.String(), "FATAL")
}

func TestFileOutputIsJSON(t *testing.T) {
	dir := t.TempDir()
	l, err := New(Options{Dir: dir, Service: "ticket-test", Level: DEBUG})
	require.NoError(t, err)

	l.LogDatabase("INSERT", "tickets", "row written")
	l.Close()

	files, err := filepath.Glob(filepath.Join(dir, "ticket-test-*.log"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	data, err := os.ReadFile(files[0])
	require.NoError(t, err)

	var found bool
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		var entry LogEntry
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		if entry.Category == "DATABASE" {
			found = true
			assert.Equal(t, "INFO", entry.Level)
			assert.Equal(t, "[INSERT] tickets - row written", entry.Message)
		}
	}
	assert.True(t, found, "database entry missing from log file")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   DEBUG,
		"":        INFO,
		"Info":    INFO,
		"warning": WARN,
		"ERROR":   ERROR,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, DEBUG)

	h := RequestLogger(l)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Millisecond)
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ticket/abc", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Contains(t, buf.String(), "GET /ticket/abc - 418")
}

func TestRequestLoggerServerErrorsLogAsError(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, DEBUG)

	h := RequestLogger(l)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/generate-ticket", nil))

	assert.Contains(t, buf.String(), "ERROR [API")
}
