package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/helmsman-dev/helmsman/internal/domain"
	"github.com/helmsman-dev/helmsman/internal/domain/task"
)

func scanTask(row scannable) (task.Task, error) {
	var t task.Task
	err := row.Scan(&t.ID, &t.ProjectID, &t.Title, &t.Details, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func (s *Store) ListTasks(ctx context.Context, projectID string) ([]task.Task, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, project_id, title, details, status, created_at, updated_at
		 FROM tasks WHERE project_id = $1 ORDER BY created_at DESC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (s *Store) GetTask(ctx context.Context, id string) (*task.Task, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, project_id, title, details, status, created_at, updated_at
		 FROM tasks WHERE id = $1`, id)

	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get task %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	return &t, nil
}

func (s *Store) CreateTask(ctx context.Context, req task.CreateRequest) (*task.Task, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO tasks (project_id, title, details, status)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, project_id, title, details, status, created_at, updated_at`,
		req.ProjectID, req.Title, req.Details, task.StatusOpen)

	t, err := scanTask(row)
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return &t, nil
}

func (s *Store) UpdateTaskStatus(ctx context.Context, id string, status task.Status) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tasks SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("update task %s status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update task %s status: %w", id, domain.ErrNotFound)
	}
	return nil
}

func scanProgress(row scannable) (task.ProgressRecord, error) {
	var r task.ProgressRecord
	err := row.Scan(&r.ID, &r.TaskID, &r.Kind, &r.Text, &r.Metadata, &r.CreatedAt)
	return r, err
}

func (s *Store) AppendTaskProgress(ctx context.Context, taskID, text string, kind task.ProgressKind, metadata json.RawMessage) (*task.ProgressRecord, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO task_progress (task_id, kind, text, metadata)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, task_id, kind, text, metadata, created_at`,
		taskID, kind, text, metadata)

	r, err := scanProgress(row)
	if err != nil {
		return nil, fmt.Errorf("append task progress: %w", err)
	}
	return &r, nil
}

func (s *Store) ListTaskProgress(ctx context.Context, taskID string) ([]task.ProgressRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, task_id, kind, text, metadata, created_at
		 FROM task_progress WHERE task_id = $1 ORDER BY created_at ASC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list task progress: %w", err)
	}
	defer rows.Close()

	var records []task.ProgressRecord
	for rows.Next() {
		r, err := scanProgress(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
