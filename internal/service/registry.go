package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/helmsman-dev/helmsman/internal/adapter/otel"
	"github.com/helmsman-dev/helmsman/internal/adapter/ws"
	"github.com/helmsman-dev/helmsman/internal/domain"
	"github.com/helmsman-dev/helmsman/internal/domain/session"
	"github.com/helmsman-dev/helmsman/internal/port/broadcast"
	"github.com/helmsman-dev/helmsman/internal/port/engine"
)

// Registry tracks all live agent sessions and the FIFO wait queue, and makes
// every admission decision. All mutation goes through a single mutex; the
// registry is the only component shared by more than one logical caller.
type Registry struct {
	engine  engine.Engine
	hub     broadcast.Broadcaster
	metrics *otel.Metrics

	mu       sync.Mutex
	limits   session.Limits
	sessions map[string]*AgentSession
	queue    []*session.QueueEntry
	watchers map[string]func(*AgentSession) // promotion callbacks by session id
}

// NewRegistry creates a Registry with the given admission limits. hub and
// metrics may be nil.
func NewRegistry(eng engine.Engine, limits session.Limits, hub broadcast.Broadcaster, metrics *otel.Metrics) *Registry {
	return &Registry{
		engine:   eng,
		hub:      hub,
		metrics:  metrics,
		limits:   limits,
		sessions: make(map[string]*AgentSession),
		watchers: make(map[string]func(*AgentSession)),
	}
}

// Limits returns the current admission limits.
func (r *Registry) Limits() session.Limits {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.limits
}

// SetLimits replaces the admission limits at runtime. Raising limits
// immediately promotes eligible queued sessions.
func (r *Registry) SetLimits(ctx context.Context, l session.Limits) error {
	if l.GlobalMax < 1 || l.PerOwner < 1 || l.QueueDepth < 0 {
		return fmt.Errorf("invalid limits: global=%d per_owner=%d queue=%d", l.GlobalMax, l.PerOwner, l.QueueDepth)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limits = l
	r.startNextQueuedLocked(ctx)
	return nil
}

// CanStart reports whether a new session for the given owner could start
// immediately under the current limits.
func (r *Registry) CanStart(projectID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.canStartLocked(projectID)
}

func (r *Registry) canStartLocked(projectID string) bool {
	if len(r.sessions) >= r.limits.GlobalMax {
		return false
	}
	if projectID == "" {
		return true
	}
	return r.ownerCountLocked(projectID) < r.limits.PerOwner
}

func (r *Registry) ownerCountLocked(projectID string) int {
	n := 0
	for _, s := range r.sessions {
		if s.ProjectID() == projectID {
			n++
		}
	}
	return n
}

// CreateSession admits a new session: it either starts immediately, is
// appended to the wait queue, or is rejected with domain.ErrQueueFull.
func (r *Registry) CreateSession(ctx context.Context, workingDir string, opts session.Options) (*session.CreateResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := uuid.NewString()

	if r.canStartLocked(opts.ProjectID) {
		s, err := NewAgentSession(ctx, r.engine, id, workingDir, opts)
		if err != nil {
			return nil, fmt.Errorf("start session: %w", err)
		}
		r.sessions[id] = s
		r.broadcast(ctx, ws.EventSessionStarted, ws.SessionLifecycleEvent{
			SessionID: id,
			ProjectID: opts.ProjectID,
			TaskID:    opts.TaskID,
		})
		if r.metrics != nil {
			r.metrics.SessionsStarted.Add(ctx, 1)
		}
		slog.Info("session started", "session_id", id, "project_id", opts.ProjectID, "dir", workingDir)
		return &session.CreateResult{SessionID: id}, nil
	}

	if len(r.queue) >= r.limits.QueueDepth {
		if r.metrics != nil {
			r.metrics.QueueRejections.Add(ctx, 1)
		}
		return nil, fmt.Errorf("create session: %w", domain.ErrQueueFull)
	}

	entry := &session.QueueEntry{
		SessionID:  id,
		WorkingDir: workingDir,
		Options:    opts,
		EnqueuedAt: time.Now(),
		Position:   len(r.queue) + 1,
	}
	r.queue = append(r.queue, entry)
	r.broadcast(ctx, ws.EventSessionQueued, ws.SessionQueuedEvent{
		SessionID: id,
		ProjectID: opts.ProjectID,
		Position:  entry.Position,
	})
	if r.metrics != nil {
		r.metrics.SessionsQueued.Add(ctx, 1)
	}
	slog.Info("session queued", "session_id", id, "project_id", opts.ProjectID, "position", entry.Position)
	return &session.CreateResult{SessionID: id, Queued: true, QueuePosition: entry.Position}, nil
}

// Get returns the live session for id, or nil if it is not running.
func (r *Registry) Get(id string) *AgentSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[id]
}

// WatchStart registers fn to be invoked (on its own goroutine) when the
// queued session with the given id is promoted to running. If the session
// is already live the callback fires immediately, so registration cannot
// miss a promotion that happened between queueing and the call. At most
// one watcher per session id; later registrations replace earlier ones.
func (r *Registry) WatchStart(id string, fn func(*AgentSession)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		go fn(s)
		return
	}
	r.watchers[id] = fn
}

// DestroySession closes the session and releases its slot, then promotes
// queued entries that now fit. Destroying an unknown id is a no-op.
func (r *Registry) DestroySession(ctx context.Context, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return
	}
	delete(r.sessions, id)
	delete(r.watchers, id)
	s.Close()

	r.broadcast(ctx, ws.EventSessionClosed, ws.SessionLifecycleEvent{
		SessionID: id,
		ProjectID: s.ProjectID(),
		TaskID:    s.TaskID(),
	})
	slog.Info("session destroyed", "session_id", id)

	r.startNextQueuedLocked(ctx)
}

// startNextQueuedLocked promotes queued entries while capacity allows.
// When the front entry's owner is still at its per-owner limit, it is put
// back at the front and promotion stops: queue position is never skipped
// past a blocked owner.
func (r *Registry) startNextQueuedLocked(ctx context.Context) {
	for len(r.queue) > 0 && len(r.sessions) < r.limits.GlobalMax {
		entry := r.queue[0]
		r.queue = r.queue[1:]

		owner := entry.Options.ProjectID
		if owner != "" && r.ownerCountLocked(owner) >= r.limits.PerOwner {
			r.queue = append([]*session.QueueEntry{entry}, r.queue...)
			break
		}

		s, err := NewAgentSession(ctx, r.engine, entry.SessionID, entry.WorkingDir, entry.Options)
		if err != nil {
			slog.Error("promote queued session", "session_id", entry.SessionID, "error", err)
			delete(r.watchers, entry.SessionID)
			continue
		}
		r.sessions[entry.SessionID] = s

		if fn, ok := r.watchers[entry.SessionID]; ok {
			delete(r.watchers, entry.SessionID)
			go fn(s)
		}
		r.broadcast(ctx, ws.EventSessionStarted, ws.SessionLifecycleEvent{
			SessionID: entry.SessionID,
			ProjectID: owner,
			TaskID:    entry.Options.TaskID,
		})
		if r.metrics != nil {
			r.metrics.SessionsPromoted.Add(ctx, 1)
		}
		slog.Info("queued session promoted", "session_id", entry.SessionID, "project_id", owner)
	}

	r.recomputePositionsLocked(ctx)
}

// recomputePositionsLocked reassigns 1-based positions and reports them to
// waiters via the broadcaster.
func (r *Registry) recomputePositionsLocked(ctx context.Context) {
	for i, entry := range r.queue {
		pos := i + 1
		if entry.Position == pos {
			continue
		}
		entry.Position = pos
		r.broadcast(ctx, ws.EventQueuePosition, ws.QueuePositionEvent{
			SessionID: entry.SessionID,
			Position:  pos,
		})
	}
}

// CancelQueuedSession removes a still-queued entry. Returns false if the
// session already started or is unknown.
func (r *Registry) CancelQueuedSession(ctx context.Context, id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, entry := range r.queue {
		if entry.SessionID != id {
			continue
		}
		r.queue = append(r.queue[:i], r.queue[i+1:]...)
		delete(r.watchers, id)
		r.recomputePositionsLocked(ctx)
		slog.Info("queued session cancelled", "session_id", id)
		return true
	}
	return false
}

// Sessions returns snapshots of all live sessions.
func (r *Registry) Sessions() []session.Info {
	r.mu.Lock()
	defer r.mu.Unlock()

	infos := make([]session.Info, 0, len(r.sessions))
	for _, s := range r.sessions {
		infos = append(infos, s.Info())
	}
	return infos
}

// SessionInfo returns a snapshot of the live session with the given id, or
// domain.ErrSessionNotFound when no such session is running.
func (r *Registry) SessionInfo(id string) (session.Info, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return session.Info{}, fmt.Errorf("session %s: %w", id, domain.ErrSessionNotFound)
	}
	return s.Info(), nil
}

// Queue returns a snapshot of the wait queue in FIFO order.
func (r *Registry) Queue() []session.QueueEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := make([]session.QueueEntry, 0, len(r.queue))
	for _, e := range r.queue {
		entries = append(entries, *e)
	}
	return entries
}

// Shutdown destroys every live session and clears the queue.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, s := range r.sessions {
		s.Close()
		delete(r.sessions, id)
	}
	r.queue = nil
	r.watchers = make(map[string]func(*AgentSession))
	slog.Info("session registry shut down")
}

func (r *Registry) broadcast(ctx context.Context, eventType string, payload any) {
	if r.hub != nil {
		r.hub.BroadcastEvent(ctx, eventType, payload)
	}
}
