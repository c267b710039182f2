package engine

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solvenet/recaptcha-api/internal/config"
	"github.com/solvenet/recaptcha-api/internal/domain"
	"github.com/solvenet/recaptcha-api/internal/solver"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewClient_RequiresURL(t *testing.T) {
	t.Parallel()

	_, err := NewClient(config.EngineConfig{}, testLogger())
	assert.Error(t, err)
}

func TestClient_Solve(t *testing.T) {
	t.Parallel()

	var captured solveRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/solve", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		_ = json.NewEncoder(w).Encode(solver.Outcome{
			Success:   true,
			Token:     "tok-engine",
			SolveTime: 7.25,
		})
	}))
	defer server.Close()

	client, err := NewClient(config.EngineConfig{URL: server.URL}, testLogger())
	require.NoError(t, err)

	proxy := &domain.Proxy{Protocol: "http", Host: "proxy.com", Port: "8080", Username: "u", Password: "p"}
	outcome, err := client.Solve(context.Background(), "site-key", "https://example.com", proxy)
	require.NoError(t, err)

	assert.True(t, outcome.Success)
	assert.Equal(t, "tok-engine", outcome.Token)
	assert.Equal(t, 7.25, outcome.SolveTime)

	assert.Equal(t, "site-key", captured.SiteKey)
	assert.Equal(t, "https://example.com", captured.PageURL)
	assert.Equal(t, "http://u:p@proxy.com:8080", captured.ProxyURL)
}

func TestClient_Solve_NoProxyOmitsProxyURL(t *testing.T) {
	t.Parallel()

	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_ = json.NewEncoder(w).Encode(solver.Outcome{Success: true, Token: "tok", SolveTime: 1})
	}))
	defer server.Close()

	client, err := NewClient(config.EngineConfig{URL: server.URL}, testLogger())
	require.NoError(t, err)

	_, err = client.Solve(context.Background(), "site-key", "https://example.com", nil)
	require.NoError(t, err)
	assert.NotContains(t, captured, "proxy_url")
}

func TestClient_Solve_EngineFailure(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "browser pool exhausted", http.StatusInternalServerError)
	}))
	defer server.Close()

	client, err := NewClient(config.EngineConfig{URL: server.URL}, testLogger())
	require.NoError(t, err)

	_, err = client.Solve(context.Background(), "site-key", "https://example.com", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEngineUnavailable)
}

func TestClient_Solve_Unreachable(t *testing.T) {
	t.Parallel()

	client, err := NewClient(config.EngineConfig{URL: "http://127.0.0.1:1"}, testLogger())
	require.NoError(t, err)

	_, err = client.Solve(context.Background(), "site-key", "https://example.com", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEngineUnavailable)
}

func TestClient_Solve_HonorsContextDeadline(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	client, err := NewClient(config.EngineConfig{URL: server.URL}, testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = client.Solve(ctx, "site-key", "https://example.com", nil)
	require.Error(t, err)
}

func TestClient_Solve_SuccessWithoutTokenRejected(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(solver.Outcome{Success: true})
	}))
	defer server.Close()

	client, err := NewClient(config.EngineConfig{URL: server.URL}, testLogger())
	require.NoError(t, err)

	_, err = client.Solve(context.Background(), "site-key", "https://example.com", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "without a token")
}

func TestUnconfigured(t *testing.T) {
	t.Parallel()

	s := Unconfigured()
	outcome, err := s.Solve(context.Background(), "site-key", "https://example.com", nil)
	require.NoError(t, err)
	assert.False(t, outcome.Success)
	assert.Equal(t, "solving engine not configured", outcome.Error)
}
