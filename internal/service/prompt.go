package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/helmsman-dev/helmsman/internal/port/cache"
	"github.com/helmsman-dev/helmsman/internal/port/database"
)

// PromptBuilder resolves a project's description and custom instructions
// into the system prompt handed to a new session's engine connection.
// Resolved prompts are cached; a store failure degrades to an empty prompt.
type PromptBuilder struct {
	store database.Store
	cache cache.Cache
	ttl   time.Duration
	group singleflight.Group
}

// NewPromptBuilder creates a PromptBuilder. cache may be nil.
func NewPromptBuilder(store database.Store, c cache.Cache, ttl time.Duration) *PromptBuilder {
	return &PromptBuilder{store: store, cache: c, ttl: ttl}
}

// SystemPrompt returns the system prompt for the given project, or an empty
// string when projectID is empty or the project cannot be resolved.
// Concurrent resolutions for the same project share a single store lookup.
func (b *PromptBuilder) SystemPrompt(ctx context.Context, projectID string) string {
	if projectID == "" || b.store == nil {
		return ""
	}

	key := "prompt:" + projectID
	if b.cache != nil {
		if data, ok, err := b.cache.Get(ctx, key); err == nil && ok {
			return string(data)
		}
	}

	v, _, _ := b.group.Do(key, func() (any, error) {
		return b.resolve(ctx, projectID, key), nil
	})
	prompt, _ := v.(string)
	return prompt
}

func (b *PromptBuilder) resolve(ctx context.Context, projectID, key string) string {
	proj, err := b.store.GetProject(ctx, projectID)
	if err != nil {
		slog.Warn("resolve project for system prompt", "project_id", projectID, "error", err)
		return ""
	}

	var sb strings.Builder
	sb.WriteString("You are a coding agent working on the project ")
	sb.WriteString(proj.Name)
	sb.WriteString(".")
	if proj.Description != "" {
		sb.WriteString("\n\nProject description: ")
		sb.WriteString(proj.Description)
	}
	if proj.CustomInstructions != "" {
		sb.WriteString("\n\n")
		sb.WriteString(proj.CustomInstructions)
	}
	prompt := sb.String()

	if b.cache != nil {
		if err := b.cache.Set(ctx, key, []byte(prompt), b.ttl); err != nil {
			slog.Debug("cache system prompt", "project_id", projectID, "error", err)
		}
	}
	return prompt
}

// Invalidate drops the cached prompt for a project, e.g. after an update.
func (b *PromptBuilder) Invalidate(ctx context.Context, projectID string) {
	if b.cache == nil || projectID == "" {
		return
	}
	if err := b.cache.Delete(ctx, "prompt:"+projectID); err != nil {
		slog.Debug("invalidate prompt cache", "project_id", projectID, "error", err)
	}
}
