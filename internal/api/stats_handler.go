package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/solvenet/recaptcha-api/internal/api/shared"
	"github.com/solvenet/recaptcha-api/internal/stats"
)

// StatsHandler serves the statistics report and the service-info
// endpoints.
type StatsHandler struct {
	aggregator *stats.Aggregator
	logger     *slog.Logger
}

// NewStatsHandler creates a new StatsHandler.
func NewStatsHandler(aggregator *stats.Aggregator, logger *slog.Logger) *StatsHandler {
	return &StatsHandler{
		aggregator: aggregator,
		logger:     logger,
	}
}

// GetStats handles GET /stats requests.
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	report, err := h.aggregator.Report(r.Context())
	if err != nil {
		shared.RespondWithErrorAndLog(w, r,
			http.StatusInternalServerError, "Failed to generate statistics", err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, report)
}

// Health handles GET /health requests.
func (h *StatsHandler) Health(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
	})
}

// APIInfo handles GET / requests.
func (h *StatsHandler) APIInfo(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, APIInfoResponse{
		Name:    "reCAPTCHA Solving API",
		Version: "1.0.0",
		Endpoints: map[string]string{
			"submit_task": "POST /recaptcha/in",
			"get_result":  "GET /recaptcha/res",
			"delete_task": "DELETE /tasks/{id}",
			"list_tasks":  "GET /tasks",
			"stats":       "GET /stats",
			"health":      "GET /health",
		},
	})
}
