package http

import (
	"net/http"

	"github.com/helmsman-dev/helmsman/internal/domain/project"
	"github.com/helmsman-dev/helmsman/internal/domain/session"
	"github.com/helmsman-dev/helmsman/internal/domain/task"
	"github.com/helmsman-dev/helmsman/internal/port/database"
	"github.com/helmsman-dev/helmsman/internal/port/messagequeue"
	"github.com/helmsman-dev/helmsman/internal/service"
)

// Handlers holds the dependencies for all HTTP handlers.
type Handlers struct {
	store    database.Store
	registry *service.Registry
	prompts  *service.PromptBuilder
	queue    messagequeue.Queue
}

// NewHandlers creates the handler set. prompts and queue may be nil.
func NewHandlers(store database.Store, registry *service.Registry, prompts *service.PromptBuilder, queue messagequeue.Queue) *Handlers {
	return &Handlers{
		store:    store,
		registry: registry,
		prompts:  prompts,
		queue:    queue,
	}
}

// --- Health ---

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"status":        "ok",
		"sessions":      len(h.registry.Sessions()),
		"queued":        len(h.registry.Queue()),
		"natsConnected": h.queue != nil && h.queue.IsConnected(),
	}
	writeJSON(w, http.StatusOK, status)
}

// --- Projects ---

func (h *Handlers) ListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.store.ListProjects(r.Context())
	if err != nil {
		writeDomainError(w, err, "projects not found")
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

func (h *Handlers) GetProject(w http.ResponseWriter, r *http.Request) {
	p, err := h.store.GetProject(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "project not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handlers) CreateProject(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[project.CreateRequest](w, r)
	if !ok {
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	p, err := h.store.CreateProject(r.Context(), req)
	if err != nil {
		writeDomainError(w, err, "project not found")
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handlers) DeleteProject(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	if err := h.store.DeleteProject(r.Context(), id); err != nil {
		writeDomainError(w, err, "project not found")
		return
	}
	if h.prompts != nil {
		h.prompts.Invalidate(r.Context(), id)
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Tasks ---

func (h *Handlers) ListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.store.ListTasks(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "tasks not found")
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (h *Handlers) CreateTask(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[task.CreateRequest](w, r)
	if !ok {
		return
	}
	req.ProjectID = urlParam(r, "id")
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	t, err := h.store.CreateTask(r.Context(), req)
	if err != nil {
		writeDomainError(w, err, "project not found")
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *Handlers) GetTask(w http.ResponseWriter, r *http.Request) {
	t, err := h.store.GetTask(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

type taskStatusRequest struct {
	Status task.Status `json:"status"`
}

func (h *Handlers) UpdateTaskStatus(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[taskStatusRequest](w, r)
	if !ok {
		return
	}
	switch req.Status {
	case task.StatusOpen, task.StatusActive, task.StatusBlocked, task.StatusCompleted:
	default:
		writeError(w, http.StatusBadRequest, "invalid task status")
		return
	}
	if err := h.store.UpdateTaskStatus(r.Context(), urlParam(r, "id"), req.Status); err != nil {
		writeDomainError(w, err, "task not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) ListTaskProgress(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.ListTaskProgress(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "task not found")
		return
	}
	if records == nil {
		records = []task.ProgressRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// --- Sessions ---

func (h *Handlers) ListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": h.registry.Sessions(),
		"queue":    h.registry.Queue(),
	})
}

// GetSession returns a snapshot of one live session.
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	info, err := h.registry.SessionInfo(urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// DestroySession tears down a live session or cancels a queued one.
func (h *Handlers) DestroySession(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	if h.registry.CancelQueuedSession(r.Context(), id) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h.registry.DestroySession(r.Context(), id)
	w.WriteHeader(http.StatusNoContent)
}

// --- Concurrency config ---

func (h *Handlers) GetConcurrency(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.registry.Limits())
}

func (h *Handlers) SetConcurrency(w http.ResponseWriter, r *http.Request) {
	limits, ok := readJSON[session.Limits](w, r)
	if !ok {
		return
	}
	if err := h.registry.SetLimits(r.Context(), limits); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.registry.Limits())
}
