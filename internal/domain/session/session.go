// Package session defines the agent session domain: options, admission
// limits, queue entries and the output event union produced by a running
// session.
package session

import "time"

// Options configures a new agent session.
type Options struct {
	ProjectID      string   `json:"project_id,omitempty"`
	TaskID         string   `json:"task_id,omitempty"`
	SystemPrompt   string   `json:"system_prompt,omitempty"`
	AdditionalDirs []string `json:"additional_dirs,omitempty"`
	MaxTurns       int      `json:"max_turns,omitempty"`
}

// Limits are the admission-control knobs, read on every admission decision.
// They are process-wide and mutable at runtime.
type Limits struct {
	GlobalMax  int `json:"global_max"`
	PerOwner   int `json:"per_owner_max"`
	QueueDepth int `json:"queue_depth"`
}

// DefaultLimits returns the default admission limits.
func DefaultLimits() Limits {
	return Limits{GlobalMax: 3, PerOwner: 2, QueueDepth: 10}
}

// QueueEntry is a session request waiting for a free slot. Position is
// 1-based and recomputed after every removal from the queue.
type QueueEntry struct {
	SessionID  string    `json:"session_id"`
	WorkingDir string    `json:"working_dir"`
	Options    Options   `json:"options"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	Position   int       `json:"position"`
}

// CreateResult reports the outcome of an admission decision: either the
// session started immediately, or it was queued at the given position.
type CreateResult struct {
	SessionID     string `json:"session_id"`
	Queued        bool   `json:"queued"`
	QueuePosition int    `json:"queue_position,omitempty"`
}

// Info is a read-only snapshot of a live session, exposed over the API.
type Info struct {
	ID         string    `json:"id"`
	ProjectID  string    `json:"project_id,omitempty"`
	TaskID     string    `json:"task_id,omitempty"`
	WorkingDir string    `json:"working_dir"`
	StartedAt  time.Time `json:"started_at"`
}
