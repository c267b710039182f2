// Package solver defines the contract with the external solving engine.
// The engine is an opaque collaborator: potentially slow, potentially
// failing, with no assumptions about its latency distribution.
package solver

import (
	"context"

	"github.com/solvenet/recaptcha-api/internal/domain"
)

// Outcome is the result structure returned by the solving engine.
// SolveTime is the elapsed solve duration in seconds.
type Outcome struct {
	Success   bool    `json:"success"`
	Token     string  `json:"token,omitempty"`
	SolveTime float64 `json:"solve_time"`
	Error     string  `json:"error,omitempty"`
}

// Solver performs one solve attempt for a site key and page URL,
// optionally through a proxy. Implementations must honor the context
// deadline; the dispatcher treats deadline expiry as a failure outcome.
// A returned error means the attempt could not produce an outcome at
// all (transport failure, malformed engine response) and resolves the
// task to the error status just like an unsuccessful Outcome.
type Solver interface {
	Solve(ctx context.Context, siteKey, pageURL string, proxy *domain.Proxy) (Outcome, error)
}

// Func adapts a plain function to the Solver interface. Tests use it to
// stub the engine with blocking or failing behavior.
type Func func(ctx context.Context, siteKey, pageURL string, proxy *domain.Proxy) (Outcome, error)

// Solve implements Solver.
func (f Func) Solve(ctx context.Context, siteKey, pageURL string, proxy *domain.Proxy) (Outcome, error) {
	return f(ctx, siteKey, pageURL, proxy)
}
