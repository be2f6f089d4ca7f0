package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/helmsman-dev/helmsman/internal/domain/session"
	"github.com/helmsman-dev/helmsman/internal/domain/task"
	"github.com/helmsman-dev/helmsman/internal/port/database"
	"github.com/helmsman-dev/helmsman/internal/resilience"
)

// ProgressRecorder persists one progress record per completed agent turn.
// Writes go through a circuit breaker; a persistence failure is logged
// and swallowed so the conversation keeps streaming.
type ProgressRecorder struct {
	store   database.Store
	breaker *resilience.Breaker
}

// NewProgressRecorder creates a ProgressRecorder. breaker may be nil, in
// which case writes go straight to the store.
func NewProgressRecorder(store database.Store, breaker *resilience.Breaker) *ProgressRecorder {
	return &ProgressRecorder{store: store, breaker: breaker}
}

// Record writes the accumulated assistant text of a finished turn as a
// progress record on the task. A failed turn is recorded as a blocker.
func (r *ProgressRecorder) Record(ctx context.Context, taskID, sessionID, text string, result session.OutputEvent) {
	if r.store == nil || taskID == "" || text == "" {
		return
	}

	kind := task.ProgressUpdate
	if result.Type == session.EventTurnResult && !result.Success {
		kind = task.ProgressBlocker
	}

	meta, err := json.Marshal(task.ProgressMetadata{
		CostUSD:    result.CostUSD,
		DurationMs: result.DurationMs,
		SessionID:  sessionID,
	})
	if err != nil {
		meta = nil
	}

	write := func() error {
		_, err := r.store.AppendTaskProgress(ctx, taskID, text, kind, meta)
		return err
	}

	if r.breaker != nil {
		err = r.breaker.Do(write)
	} else {
		err = write()
	}
	if err != nil {
		slog.Error("persist turn progress", "task_id", taskID, "session_id", sessionID, "error", err)
	}
}
