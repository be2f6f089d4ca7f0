// Package task defines the Task domain entity and its progress records.
package task

import (
	"encoding/json"
	"errors"
	"time"
)

// Status represents the current state of a task.
type Status string

const (
	StatusOpen      Status = "open"
	StatusActive    Status = "active"
	StatusBlocked   Status = "blocked"
	StatusCompleted Status = "completed"
)

// Task represents a unit of project work an agent conversation can be bound to.
type Task struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Title     string    `json:"title"`
	Details   string    `json:"details,omitempty"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateRequest holds the fields needed to create a new task.
type CreateRequest struct {
	ProjectID string `json:"project_id"`
	Title     string `json:"title"`
	Details   string `json:"details,omitempty"`
}

// Validate checks the request for required fields.
func (r *CreateRequest) Validate() error {
	if r.ProjectID == "" {
		return errors.New("project_id is required")
	}
	if r.Title == "" {
		return errors.New("title is required")
	}
	return nil
}

// ProgressKind distinguishes forward progress from a blocker.
type ProgressKind string

const (
	ProgressUpdate  ProgressKind = "progress"
	ProgressBlocker ProgressKind = "blocker"
)

// ProgressRecord is one summarized agent turn attached to a task. Exactly one
// record is written per completed turn that produced assistant text.
type ProgressRecord struct {
	ID        string          `json:"id"`
	TaskID    string          `json:"task_id"`
	Kind      ProgressKind    `json:"kind"`
	Text      string          `json:"text"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// ProgressMetadata is the metadata payload stored with a progress record.
type ProgressMetadata struct {
	CostUSD    float64 `json:"cost_usd,omitempty"`
	DurationMs int64   `json:"duration_ms,omitempty"`
	SessionID  string  `json:"session_id,omitempty"`
}
