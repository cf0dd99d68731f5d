package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mission-control/board/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		Server:    config.ServerConfig{AllowedOrigins: []string{"http://localhost:3000"}},
		Storage:   config.StorageConfig{Driver: config.StorageMemory, Table: "test", OpTimeout: time.Second},
		Trash:     config.TrashConfig{PurgeAfterDays: 7, PurgeInterval: time.Hour},
		RateLimit: config.RateLimitConfig{Enabled: true, RequestsPerMin: 600, BurstSize: 50},
		Breaker:   config.BreakerConfig{MaxFailures: 5, Timeout: time.Second, HalfOpenMaxCalls: 1},
	}
}

func TestRouterWiresEndpoints(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg = testConfig()

	a, err := openApp(cfg)
	require.NoError(t, err)
	defer a.Close()

	stop := make(chan struct{})
	defer close(stop)
	router := newRouter(a, stop)

	req, _ := http.NewRequest(http.MethodPost, "/api/tasks", strings.NewReader(`{"title":"wired"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	for _, path := range []string{"/health", "/ready", "/live", "/metrics", "/api/tasks", "/api/epics", "/api/trash"} {
		req, _ := http.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestRouterRequiresTokenWhenAuthEnabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg = testConfig()
	cfg.Auth = config.AuthConfig{Enabled: true, JWTSecret: "secret", Issuer: "mission-control"}

	a, err := openApp(cfg)
	require.NoError(t, err)
	defer a.Close()

	stop := make(chan struct{})
	defer close(stop)
	router := newRouter(a, stop)

	req, _ := http.NewRequest(http.MethodGet, "/api/tasks", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req, _ = http.NewRequest(http.MethodGet, "/live", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code, "health endpoints stay open")
}

func TestOpenAppSQLite(t *testing.T) {
	cfg = testConfig()
	cfg.Storage.Driver = config.StorageSQLite
	cfg.Database = config.DatabaseConfig{SQLitePath: "file::memory:", MaxOpenConns: 1, MaxIdleConns: 1}

	a, err := openApp(cfg)
	require.NoError(t, err)
	defer a.Close()

	require.NotNil(t, a.pool)
	assert.NoError(t, a.store.Ping(context.Background()))
}
