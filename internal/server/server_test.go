package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hnrobert/gridlogin/internal/auth"
	"github.com/hnrobert/gridlogin/internal/config"
	"github.com/hnrobert/gridlogin/internal/daemon"
	"github.com/hnrobert/gridlogin/internal/metrics"
)

const secret = "test-admin-secret-value"

type triggerCount int

func (t *triggerCount) Trigger() { *t++ }

func newTestApp(t *testing.T, sw Trigger) (*App, *daemon.Daemon) {
	t.Helper()
	cfg := config.Default()
	cfg.RootDir = t.TempDir()
	cfg.LinkHome = t.TempDir()
	pw := filepath.Join(cfg.RootDir, "+CN=Jane", ".ssh", "authorized_passwords")
	require.NoError(t, os.MkdirAll(filepath.Dir(pw), 0700))
	require.NoError(t, os.WriteFile(pw, []byte("T3stp4ss\n"), 0600))

	reg := prometheus.NewRegistry()
	d, err := daemon.New(cfg, daemon.WithMetrics(metrics.New(reg)))
	require.NoError(t, err)
	a, err := NewApp(d, secret, sw, reg)
	require.NoError(t, err)
	return a, d
}

func do(t *testing.T, h http.Handler, method, path string, admin *bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if admin != nil {
		key, err := auth.DecodeSecret(secret)
		require.NoError(t, err)
		tok, err := auth.SignHS256(key, "operator", *admin, time.Minute)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthzAndMetrics(t *testing.T) {
	a, _ := newTestApp(t, nil)
	h := a.Routes()

	rec := do(t, h, http.MethodGet, "/api/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminEndpointsRequireToken(t *testing.T) {
	a, _ := newTestApp(t, nil)
	h := a.Routes()
	no := false

	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, "/api/ratelimit", nil).Code)
	assert.Equal(t, http.StatusForbidden, do(t, h, http.MethodGet, "/api/ratelimit", &no).Code)

	req := httptest.NewRequest(http.MethodGet, "/api/ratelimit", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginsHidesSecrets(t *testing.T) {
	a, _ := newTestApp(t, nil)
	h := a.Routes()
	yes := true

	rec := do(t, h, http.MethodPost, "/api/refresh", &yes)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "+CN=Jane")

	rec = do(t, h, http.MethodGet, "/api/logins/+CN=Jane", &yes)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "T3stp4ss")
	var views []LoginView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	require.Len(t, views, 1)
	assert.Equal(t, "password", views[0].Method)
	assert.True(t, views[0].Chroot)

	rec = do(t, h, http.MethodGet, "/api/logins/nobody", &yes)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
}

func TestRateLimitSnapshot(t *testing.T) {
	a, d := newTestApp(t, nil)
	d.Limiter().Update("192.0.2.1", "sftp", "jane", false, "tok")
	yes := true
	rec := do(t, a.Routes(), http.MethodGet, "/api/ratelimit", &yes)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"address":"192.0.2.1"`)
	assert.NotContains(t, rec.Body.String(), "tok")
}

func TestRefreshUsesSweeper(t *testing.T) {
	var n triggerCount
	a, _ := newTestApp(t, &n)
	yes := true
	rec := do(t, a.Routes(), http.MethodPost, "/api/refresh", &yes)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, triggerCount(1), n)
}

func TestNewAppRejectsWeakSecret(t *testing.T) {
	_, d := newTestApp(t, nil)
	_, err := NewApp(d, "tiny", nil, prometheus.NewRegistry())
	assert.ErrorIs(t, err, auth.ErrWeakSecret)
}
