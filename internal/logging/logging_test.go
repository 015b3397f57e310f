package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Levels(t *testing.T) {
	cases := map[string]logrus.Level{
		"debug":   logrus.DebugLevel,
		"INFO":    logrus.InfoLevel,
		"warn":    logrus.WarnLevel,
		"error":   logrus.ErrorLevel,
		"bogus":   logrus.InfoLevel,
		"":        logrus.InfoLevel,
		" debug ": logrus.DebugLevel,
	}
	for in, want := range cases {
		l := New("test", in, "json")
		assert.Equal(t, want, l.GetLevel(), "level %q", in)
	}
}

func TestNew_TextFormat(t *testing.T) {
	l := New("test", "info", "text")
	_, ok := l.Formatter.(*logrus.TextFormatter)
	assert.True(t, ok)
}

func TestWithContext_AddsTraceAndService(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("tracker", "info", "json", &buf)

	ctx := WithTraceID(context.Background(), "trace-123")
	ctx = WithClientIP(ctx, "10.0.0.1")
	l.WithContext(ctx).Info("hello")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "tracker", line["service"])
	assert.Equal(t, "trace-123", line["trace_id"])
	assert.Equal(t, "10.0.0.1", line["client_ip"])
	assert.Equal(t, "hello", line["msg"])
}

func TestLogRequest_LevelByStatus(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("tracker", "debug", "json", &buf)

	l.LogRequest(context.Background(), http.MethodGet, "/rastrear/1", http.StatusInternalServerError, 5*time.Millisecond)

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "error", line["level"])
	assert.Equal(t, float64(500), line["status"])
	assert.Equal(t, float64(5), line["duration_ms"])
}

func TestTraceID(t *testing.T) {
	id := NewTraceID()
	assert.Len(t, id, 36)
	assert.NotEqual(t, id, NewTraceID())
	assert.Equal(t, "", GetTraceID(context.Background()))
}
