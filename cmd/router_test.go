package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"userdash/pkg/config"
	"userdash/pkg/logging"
	"userdash/pkg/metrics"
	"userdash/pkg/response"
)

type fakePinger struct{ err error }

func (p fakePinger) Ping(ctx context.Context) error { return p.err }

type stubRoutes struct{ path string }

func (s stubRoutes) RegisterRoutes(router gin.IRouter) {
	router.GET(s.path, func(c *gin.Context) {
		response.SendAPIResponse(c, http.StatusOK, true, "stub", nil)
	})
}

func testConfig() *config.Server {
	return &config.Server{
		AppEnv:             "development",
		CORSAllowedOrigins: []string{"*"},
		RateLimitRequests:  0,
		RateLimitWindow:    time.Minute,
	}
}

func testRouter(cfg *config.Server, db pinger) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return newRouter(cfg, logging.Discard(), routerDeps{
		db:      db,
		metrics: metrics.New(),
		users:   stubRoutes{path: "/users"},
		events:  stubRoutes{path: "/ws/users/status"},
	})
}

func TestRouter_Health(t *testing.T) {
	router := testRouter(testConfig(), fakePinger{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body response.APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRouter_HealthDatabaseDown(t *testing.T) {
	router := testRouter(testConfig(), fakePinger{err: errors.New("connection refused")})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRouter_InfoAndMounts(t *testing.T) {
	router := testRouter(testConfig(), fakePinger{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"users":"/api/users"`)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/users", nil))
	assert.Equal(t, http.StatusOK, w.Code, "user routes live under /api")

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws/users/status", nil))
	assert.Equal(t, http.StatusOK, w.Code, "feed routes live at the root")

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "userdash_http_requests_total"))
}

func TestRouter_RateLimitAppliesToAPI(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitRequests = 2
	router := testRouter(cfg, fakePinger{})

	codes := make([]int, 0, 3)
	for range 3 {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/users", nil))
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code, "health is not rate limited")
}

func TestRouter_CORSPreflight(t *testing.T) {
	cfg := testConfig()
	cfg.CORSAllowedOrigins = []string{"http://localhost:5173"}
	router := testRouter(cfg, fakePinger{})

	req := httptest.NewRequest(http.MethodOptions, "/api/users", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
}
