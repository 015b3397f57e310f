package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/R3E-Network/jamef_tracker/internal/config"
	"github.com/R3E-Network/jamef_tracker/internal/logging"
)

func loadConfig(t *testing.T, port string, set bool) *config.Config {
	t.Helper()
	t.Setenv("PORT", "")
	if set {
		t.Setenv("PORT", port)
	} else {
		os.Unsetenv("PORT")
	}
	t.Setenv("REDIS_URL", "")
	t.Setenv("DATABASE_URL", "")
	cfg, err := config.FromEnv()
	require.NoError(t, err)
	return cfg
}

func TestNewServer_DefaultPort(t *testing.T) {
	cfg := loadConfig(t, "", false)
	srv := newServer(cfg, http.NotFoundHandler())
	assert.Equal(t, "0.0.0.0:8000", srv.Addr)
}

func TestNewServer_PortFromEnv(t *testing.T) {
	cfg := loadConfig(t, "9090", true)
	srv := newServer(cfg, http.NotFoundHandler())
	assert.Equal(t, "0.0.0.0:9090", srv.Addr)
	assert.Greater(t, srv.WriteTimeout, cfg.ScrapeTimeout)
}

func TestBuild_InMemoryBackends(t *testing.T) {
	cfg := loadConfig(t, "", false)
	logger := logging.NewWithWriter("test", "error", "json", &bytes.Buffer{})

	comps, err := build(context.Background(), cfg, logger)
	require.NoError(t, err)
	defer comps.Close()

	require.NotNil(t, comps.memory)
	assert.Empty(t, comps.closers)

	rec := httptest.NewRecorder()
	comps.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Jamef Rastreamento API rodando", gjson.Get(rec.Body.String(), "message").String())

	rec = httptest.NewRecorder()
	comps.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, "healthy", gjson.Get(rec.Body.String(), "dependencies.lookups").String())
}

func TestBuild_InvalidRedisURL(t *testing.T) {
	cfg := loadConfig(t, "", false)
	cfg.RedisURL = "://not-a-url"
	logger := logging.NewWithWriter("test", "error", "json", &bytes.Buffer{})

	_, err := build(context.Background(), cfg, logger)
	assert.Error(t, err)
}

func TestBuild_InvalidTrustedProxy(t *testing.T) {
	cfg := loadConfig(t, "", false)
	cfg.TrustedProxiesCSV = "10.0.0.0/99"
	logger := logging.NewWithWriter("test", "error", "json", &bytes.Buffer{})

	_, err := build(context.Background(), cfg, logger)
	assert.ErrorContains(t, err, "invalid trusted proxy")
}
