package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jsonLogger(buf *bytes.Buffer, level slog.Level) *Logger {
	return New(Config{Level: level, Component: ComponentDonation, Format: FormatJSON, Output: buf})
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	dec := json.NewDecoder(buf)
	for dec.More() {
		var rec map[string]any
		require.NoError(t, dec.Decode(&rec))
		out = append(out, rec)
	}
	return out
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestLoggerAddsComponentOnce(t *testing.T) {
	var buf bytes.Buffer
	logger := jsonLogger(&buf, slog.LevelInfo)

	logger.WithComponent(ComponentCatalog).Info("listed", FieldCampaignID, "c1")
	logger.Debug("hidden")

	recs := decodeLines(t, &buf)
	require.Len(t, recs, 1)
	assert.Equal(t, "catalog", recs[0][FieldComponent])
	assert.Equal(t, "c1", recs[0][FieldCampaignID])
}

func TestFieldsBuilder(t *testing.T) {
	f := NewFields().
		WithDonation("d1", "c1", "u1", 50).
		WithError(nil).
		WithOperation(OpRecord)

	assert.NotContains(t, f, FieldError)
	assert.Equal(t, "d1", f[FieldDonationID])
	assert.Len(t, f.ToSlice(), len(f)*2)

	f.WithError(errors.New("boom"))
	assert.Equal(t, "boom", f[FieldError])
}

func TestTextFormatWritesPlainOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelInfo, Format: FormatText, Output: &buf})
	logger.Info("hello", FieldError, errors.New("bad"))
	assert.Contains(t, buf.String(), "hello")
	assert.NotContains(t, buf.String(), "\x1b[")
}

func TestMiddlewareAndAccessLog(t *testing.T) {
	var buf bytes.Buffer
	logger := jsonLogger(&buf, slog.LevelInfo)

	var seen *Logger
	handler := Middleware(logger, func(*http.Request) string { return "req-1" })(
		AccessLog(func(*http.Request) string { return "10.0.0.1" })(
			http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = FromContext(r.Context())
				w.WriteHeader(http.StatusUnprocessableEntity)
			})))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/donations?x=1", nil))

	require.NotNil(t, seen)
	assert.Equal(t, ComponentHTTP, seen.Component())

	recs := decodeLines(t, &buf)
	require.Len(t, recs, 1)
	assert.Equal(t, "WARN", recs[0]["level"])
	assert.Equal(t, "req-1", recs[0][FieldRequestID])
	assert.Equal(t, float64(http.StatusUnprocessableEntity), recs[0][FieldStatusCode])
	assert.Equal(t, "10.0.0.1", recs[0][FieldClientIP])
}

func TestFromContextFallsBack(t *testing.T) {
	l := FromContext(context.Background())
	require.NotNil(t, l)
	assert.Equal(t, "unknown", l.Component())
}
