package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Get("/healthz", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Projects
		r.Get("/projects", h.ListProjects)
		r.Post("/projects", h.CreateProject)
		r.Get("/projects/{id}", h.GetProject)
		r.Delete("/projects/{id}", h.DeleteProject)

		// Tasks (nested under projects)
		r.Get("/projects/{id}/tasks", h.ListTasks)
		r.Post("/projects/{id}/tasks", h.CreateTask)

		// Tasks (direct access)
		r.Get("/tasks/{id}", h.GetTask)
		r.Put("/tasks/{id}/status", h.UpdateTaskStatus)
		r.Get("/tasks/{id}/progress", h.ListTaskProgress)

		// Sessions
		r.Get("/sessions", h.ListSessions)
		r.Get("/sessions/{id}", h.GetSession)
		r.Delete("/sessions/{id}", h.DestroySession)

		// Concurrency limits
		r.Get("/config/concurrency", h.GetConcurrency)
		r.Put("/config/concurrency", h.SetConcurrency)
	})
}
