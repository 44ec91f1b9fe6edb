package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zerolog.Level
	}{
		{"DEBUG", zerolog.DebugLevel},
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{" warn ", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"invalid", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLevel(tt.input))
		})
	}
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	dec := json.NewDecoder(buf)
	for dec.More() {
		var m map[string]any
		require.NoError(t, dec.Decode(&m))
		out = append(out, m)
	}
	return out
}

func TestNew_LevelFilteringAndFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "warn", Output: &buf, Service: "test"})

	l.Info().Msg("hidden")
	cl := Component(l, "parser")
	cl.Warn().Str("source", "a").Msg("shown")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "shown", lines[0]["message"])
	assert.Equal(t, "test", lines[0]["service"])
	assert.Equal(t, "parser", lines[0]["component"])
	assert.Equal(t, "a", lines[0]["source"])
	assert.Contains(t, lines[0], "time")
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Output: &buf})

	pl := FromContext(context.Background(), l)
	pl.Info().Msg("plain")
	ctx := WithRequestID(context.Background(), "req-1")
	tl := FromContext(ctx, l)
	tl.Info().Msg("tagged")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.NotContains(t, lines[0], "request_id")
	assert.Equal(t, "req-1", lines[1]["request_id"])
	assert.Equal(t, "req-1", RequestID(ctx))
	assert.Empty(t, RequestID(context.Background()))
}

func TestResilienceHelpers(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Output: &buf})

	LogCircuitBreakerChange(l, "CLOSED", "OPEN", "example.com")
	LogHealthCheckFailed(l, "database", errors.New("closed"))
	LogCacheFallback(l, "http://example.com/a.m3u", 2*time.Minute, errors.New("timeout"))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 3)
	assert.Equal(t, string(EventCircuitBreakerChange), lines[0]["event"])
	assert.Equal(t, "OPEN", lines[0]["new_state"])
	assert.Equal(t, "example.com", lines[0]["target"])
	assert.Equal(t, "closed", lines[1]["error"])
	assert.Equal(t, string(EventCacheFallback), lines[2]["event"])
}

func TestWriteJSONError(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Output: &buf})
	rec := httptest.NewRecorder()

	WriteJSONError(rec, l, "boom", http.StatusBadGateway)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"boom"}`, rec.Body.String())
	assert.Contains(t, buf.String(), `"level":"error"`)
}

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, zerolog.Nop(), http.StatusCreated, map[string]int{"n": 1})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"n":1}`, rec.Body.String())
}
