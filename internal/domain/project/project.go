// Package project defines the Project domain entity.
package project

import (
	"errors"
	"time"
)

// Project represents a managed codebase with an optional local workspace.
type Project struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Description        string    `json:"description,omitempty"`
	WorkspacePath      string    `json:"workspace_path,omitempty"`
	CustomInstructions string    `json:"custom_instructions,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// CreateRequest holds the fields needed to create a new project.
type CreateRequest struct {
	Name               string `json:"name"`
	Description        string `json:"description,omitempty"`
	WorkspacePath      string `json:"workspace_path,omitempty"`
	CustomInstructions string `json:"custom_instructions,omitempty"`
}

// Validate checks the request for required fields.
func (r *CreateRequest) Validate() error {
	if r.Name == "" {
		return errors.New("name is required")
	}
	if len(r.Name) > 128 {
		return errors.New("name too long (max 128 chars)")
	}
	return nil
}
