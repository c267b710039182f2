package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/solvenet/recaptcha-api/internal/api"
	apiMiddleware "github.com/solvenet/recaptcha-api/internal/api/middleware"
)

// setupRouter creates and configures the application router with all
// routes and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.Trace)

	taskHandler := api.NewTaskHandler(app.taskService, app.taskStore, app.logger)
	statsHandler := api.NewStatsHandler(app.aggregator, app.logger)

	r.Get("/", statsHandler.APIInfo)
	r.Get("/health", statsHandler.Health)
	r.Get("/stats", statsHandler.GetStats)

	r.Post("/recaptcha/in", taskHandler.SubmitTask)
	r.Get("/recaptcha/res", taskHandler.GetTaskResult)

	r.Route("/tasks", func(r chi.Router) {
		r.Get("/", taskHandler.ListTasks)
		r.Delete("/{id}", taskHandler.DeleteTask)
	})

	return r
}
