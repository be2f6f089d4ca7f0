package session

import "encoding/json"

// EventType discriminates the OutputEvent union.
type EventType string

const (
	EventConnected     EventType = "connected"
	EventAssistantText EventType = "assistant_text"
	EventToolUse       EventType = "tool_use"
	EventToolResult    EventType = "tool_result"
	EventTurnResult    EventType = "turn_result"
	EventError         EventType = "error"
	EventHeartbeat     EventType = "heartbeat"
)

// OutputEvent is the tagged variant a session emits after reassembling the
// engine's raw stream. Which fields are meaningful depends on Type:
//
//   - EventConnected: SessionID.
//   - EventAssistantText: Content, Partial.
//   - EventToolUse: ToolID, ToolName (first emission), ToolInput (later
//     emissions as the input JSON streams in; each replaces the previous).
//   - EventToolResult: ToolUseID, ToolResult, ToolIsError.
//   - EventTurnResult: Success, CostUSD, DurationMs. Terminates the turn.
//   - EventError: Err.
//
// A tool_use for one ToolID may be emitted more than once; at most one
// terminal tool_result follows it.
type OutputEvent struct {
	Type EventType `json:"type"`

	SessionID string `json:"session_id,omitempty"`

	Content string `json:"content,omitempty"`
	Partial bool   `json:"partial,omitempty"`

	ToolID    string          `json:"tool_id,omitempty"`
	ToolName  string          `json:"tool_name,omitempty"`
	ToolInput json.RawMessage `json:"tool_input,omitempty"`

	ToolUseID   string          `json:"tool_use_id,omitempty"`
	ToolResult  json.RawMessage `json:"tool_result,omitempty"`
	ToolIsError bool            `json:"tool_is_error,omitempty"`

	Success    bool    `json:"success,omitempty"`
	CostUSD    float64 `json:"cost_usd,omitempty"`
	DurationMs int64   `json:"duration_ms,omitempty"`

	Err string `json:"error,omitempty"`
}
