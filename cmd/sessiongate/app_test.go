package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/sessiongate/internal/serverconfig"
	"github.com/MrEthical07/sessiongate/permission"
	"github.com/MrEthical07/sessiongate/store"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *serverconfig.Config {
	cfg := serverconfig.Default()
	cfg.JWT.Secret = "0123456789abcdef0123456789abcdef"
	return &cfg
}

func startApp(t *testing.T, cfg *serverconfig.Config) (*app, *httptest.Server) {
	t.Helper()
	require.NoError(t, cfg.Validate())

	a, err := newApp(context.Background(), cfg, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	srv := httptest.NewServer(a.handler)
	t.Cleanup(func() {
		srv.Close()
		assert.NoError(t, a.close())
	})
	return a, srv
}

func get(t *testing.T, url, token string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestAppMemoryBackend(t *testing.T) {
	a, srv := startApp(t, testConfig())

	resp, body := get(t, srv.URL+"/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, body)

	resp, _ = get(t, srv.URL+"/v1/users/profile/me", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	user, err := a.directory.Create(context.Background(), store.User{Name: "Ann", Email: "ann@example.com", Role: permission.RoleStudent})
	require.NoError(t, err)
	token, err := a.engine.IssueAccessToken(user.ID)
	require.NoError(t, err)

	resp, body = get(t, srv.URL+"/v1/users/profile/me", token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got store.User
	require.NoError(t, json.Unmarshal([]byte(body), &got))
	assert.Equal(t, user.ID, got.ID)

	resp, body = get(t, srv.URL+"/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "sessiongate_rooms 1")
	assert.Contains(t, body, "sessiongate_authorize_success_total 1")
	assert.Contains(t, body, "sessiongate_authorize_unauthenticated_total 1")

	resp, body = get(t, srv.URL+"/nowhere", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.JSONEq(t, `{"code":404,"message":"Not found"}`, body)
}

func TestAppSocketRouteMounted(t *testing.T) {
	_, srv := startApp(t, testConfig())

	resp, err := http.Post(srv.URL+"/socket/?transport=polling", "application/json", strings.NewReader(`{"auth":{"token":""}}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAppRedisBackendHealth(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := testConfig()
	cfg.Store.Backend = serverconfig.BackendRedis
	cfg.Store.RedisAddr = mr.Addr()
	cfg.Store.CacheSize = 100
	cfg.Store.CacheTTL = time.Minute
	cfg.Throttle.Enabled = true

	a, srv := startApp(t, cfg)
	_, ok := a.directory.(*store.Cached)
	assert.True(t, ok, "cache wraps the directory when cache_size is set")

	resp, _ := get(t, srv.URL+"/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	mr.Close()
	resp, body := get(t, srv.URL+"/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, body, `"status":"unavailable"`)
}

func TestAppRedisUnreachable(t *testing.T) {
	cfg := testConfig()
	cfg.Store.Backend = serverconfig.BackendRedis
	cfg.Store.RedisAddr = "127.0.0.1:1"

	_, err := newApp(context.Background(), cfg, slog.New(slog.DiscardHandler))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ping redis")
}
