// Package engine provides the HTTP client for the external solving
// engine, the collaborator that actually drives a browser against the
// target page. The core treats it as an opaque black box behind the
// solver.Solver interface.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/solvenet/recaptcha-api/internal/config"
	"github.com/solvenet/recaptcha-api/internal/domain"
	"github.com/solvenet/recaptcha-api/internal/solver"
)

// ErrEngineUnavailable is returned when the engine endpoint cannot be
// reached or answers with a server-side failure.
var ErrEngineUnavailable = errors.New("solving engine unavailable")

// solveRequest is the wire format sent to the engine's solve endpoint.
type solveRequest struct {
	SiteKey  string `json:"site_key"`
	PageURL  string `json:"page_url"`
	ProxyURL string `json:"proxy_url,omitempty"`
}

// Client calls the external solving engine over HTTP. The per-solve
// deadline arrives through the context; the embedded http.Client carries
// no timeout of its own so the context stays authoritative.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates an engine client for the configured endpoint.
// Returns an error when no engine URL is configured.
func NewClient(cfg config.EngineConfig, logger *slog.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("engine URL is not configured")
	}

	return &Client{
		baseURL:    cfg.URL,
		httpClient: &http.Client{},
		logger:     logger,
	}, nil
}

// Solve submits one solve attempt to the engine and decodes the outcome.
// Implements solver.Solver.
func (c *Client) Solve(ctx context.Context, siteKey, pageURL string, proxy *domain.Proxy) (solver.Outcome, error) {
	req := solveRequest{
		SiteKey: siteKey,
		PageURL: pageURL,
	}
	if proxy != nil {
		req.ProxyURL = proxy.URL()
	}

	body, err := json.Marshal(req)
	if err != nil {
		return solver.Outcome{}, fmt.Errorf("failed to marshal solve request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/solve", bytes.NewReader(body))
	if err != nil {
		return solver.Outcome{}, fmt.Errorf("failed to build solve request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return solver.Outcome{}, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		// Drain a little of the body for the log; the engine's error
		// details never reach clients directly.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Error("engine returned non-OK status",
			"status", resp.StatusCode,
			"body", string(snippet))
		return solver.Outcome{}, fmt.Errorf("%w: status %d", ErrEngineUnavailable, resp.StatusCode)
	}

	var outcome solver.Outcome
	if err := json.NewDecoder(resp.Body).Decode(&outcome); err != nil {
		return solver.Outcome{}, fmt.Errorf("failed to decode engine response: %w", err)
	}

	if outcome.Success && outcome.Token == "" {
		return solver.Outcome{}, errors.New("engine reported success without a token")
	}

	return outcome, nil
}

// Unconfigured returns a Solver that fails every attempt with a
// descriptive message. It stands in when no engine URL is configured so
// the API surface stays exercisable.
func Unconfigured() solver.Solver {
	return solver.Func(func(ctx context.Context, siteKey, pageURL string, proxy *domain.Proxy) (solver.Outcome, error) {
		return solver.Outcome{
			Success: false,
			Error:   "solving engine not configured",
		}, nil
	})
}
