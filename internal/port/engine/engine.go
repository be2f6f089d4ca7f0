// Package engine defines the port to the underlying coding-agent engine.
// The engine is a black box: given a working directory, a system prompt and a
// pull-based prompt source, it produces an ordered stream of raw structured
// events that the session layer reassembles into output events.
package engine

import (
	"context"
	"encoding/json"
)

// Raw event type discriminators, mirroring the engine's streaming protocol.
const (
	RawContentBlockStart = "content_block_start"
	RawContentBlockDelta = "content_block_delta"
	RawContentBlockStop  = "content_block_stop"
	RawResult            = "result"
	RawError             = "error"
)

// Content block and delta subtypes.
const (
	BlockText       = "text"
	BlockToolUse    = "tool_use"
	BlockToolResult = "tool_result"

	DeltaText      = "text_delta"
	DeltaInputJSON = "input_json_delta"
)

// ResultSuccess is the result subtype marking a successful turn.
const ResultSuccess = "success"

// RawEvent is one low-level event from the engine stream. Tool-call inputs
// arrive fragmented across many input_json_delta events keyed by Index; the
// session layer is responsible for reassembly.
type RawEvent struct {
	Type       string        `json:"type"`
	Index      int           `json:"index,omitempty"`
	Block      *ContentBlock `json:"content_block,omitempty"`
	Delta      *Delta        `json:"delta,omitempty"`
	Subtype    string        `json:"subtype,omitempty"`
	CostUSD    float64       `json:"cost_usd,omitempty"`
	DurationMs int64         `json:"duration_ms,omitempty"`
	Message    string        `json:"message,omitempty"`
}

// ContentBlock describes the block opened by a content_block_start event.
type ContentBlock struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

// Delta carries an incremental fragment within an open content block.
type Delta struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
}

// PromptSource supplies inbound user messages to the engine one at a time,
// blocking until a message is available. ok is false once the source is
// closed and drained.
type PromptSource interface {
	Next(ctx context.Context) (prompt string, ok bool)
}

// Config describes one engine connection.
type Config struct {
	WorkingDir     string
	SystemPrompt   string
	MaxTurns       int
	AllowedTools   []string
	AdditionalDirs []string
	Prompts        PromptSource
}

// Stream is the engine's ordered event sequence for one session.
// Next returns io.EOF when the stream ends normally.
type Stream interface {
	Next(ctx context.Context) (RawEvent, error)
	Close() error
}

// Engine opens engine connections. Implementations must deliver events in
// the order the engine produced them.
type Engine interface {
	Start(ctx context.Context, sessionID string, cfg Config) (Stream, error)
}

// DefaultAllowedTools is the fixed tool capability allow-list granted to
// every session's engine connection.
var DefaultAllowedTools = []string{
	"Read", "Write", "Edit", "Bash",
	"Grep", "Glob", "Task",
	"WebSearch", "WebFetch",
}
