package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestLoggerWritesStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: InfoLevel, Output: &buf, ServiceName: "merchantpay", Environment: "test"})

	logger.WithField("tx_hash", "ab").WithError(errors.New("boom")).Info("submitted", "witnesses", 3)

	entry := decodeLine(t, &buf)
	assert.Equal(t, "submitted", entry["msg"])
	assert.Equal(t, "merchantpay", entry["service"])
	assert.Equal(t, "test", entry["environment"])
	assert.Equal(t, "ab", entry["tx_hash"])
	assert.Equal(t, "boom", entry["error"])
	assert.Equal(t, float64(3), entry["witnesses"])
}

func TestLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: WarnLevel, Output: &buf})
	logger.Info("hidden")
	assert.Zero(t, buf.Len())
	logger.Warn("shown", "dangling")
	entry := decodeLine(t, &buf)
	assert.Equal(t, "", entry["dangling"])
}

func TestWithContextAddsRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: DebugLevel, Output: &buf})
	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-1")

	logger.WithContext(ctx).Debug("hello")

	entry := decodeLine(t, &buf)
	assert.Equal(t, "req-1", entry["request_id"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelError, ParseLevel(ErrorLevel))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}
