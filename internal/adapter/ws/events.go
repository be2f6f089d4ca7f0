package ws

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Conversation wire protocol, server → client message types.
const (
	TypeConnected        = "connected"
	TypeAssistantMessage = "assistant_message"
	TypeToolUse          = "tool_use"
	TypeToolResult       = "tool_result"
	TypeResult           = "result"
	TypeError            = "error"
	TypePong             = "pong"
)

// Conversation wire protocol, client → server message types.
const (
	TypeChat = "chat"
	TypePing = "ping"
)

// ClientMessage is an inbound message on a conversation connection.
type ClientMessage struct {
	Type    string         `json:"type"`
	Content string         `json:"content,omitempty"`
	History []HistoryEntry `json:"history,omitempty"`
}

// HistoryEntry is one prior conversation turn supplied by the client.
type HistoryEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ServerMessage is an outbound message on a conversation connection. Which
// fields are set depends on Type.
type ServerMessage struct {
	Type string `json:"type"`

	SessionID     string `json:"sessionId,omitempty"`
	Queued        bool   `json:"queued,omitempty"`
	QueuePosition int    `json:"queuePosition,omitempty"`

	Content string `json:"content,omitempty"`

	ToolID    string          `json:"toolId,omitempty"`
	ToolName  string          `json:"toolName,omitempty"`
	ToolInput json.RawMessage `json:"toolInput,omitempty"`

	ToolUseID         string          `json:"toolUseId,omitempty"`
	ToolResult        json.RawMessage `json:"toolResult,omitempty"`
	ToolResultIsError bool            `json:"toolResultIsError,omitempty"`

	Success  bool    `json:"success,omitempty"`
	Cost     float64 `json:"cost,omitempty"`
	Duration int64   `json:"duration,omitempty"`

	Error string `json:"error,omitempty"`
}

// Hub broadcast event types for observer connections.
const (
	EventSessionStarted = "session.started"
	EventSessionQueued  = "session.queued"
	EventSessionClosed  = "session.closed"
	EventQueuePosition  = "queue.position"
)

// SessionLifecycleEvent is broadcast when a session starts or closes.
type SessionLifecycleEvent struct {
	SessionID string `json:"session_id"`
	ProjectID string `json:"project_id,omitempty"`
	TaskID    string `json:"task_id,omitempty"`
}

// SessionQueuedEvent is broadcast when a session request enters the wait queue.
type SessionQueuedEvent struct {
	SessionID string `json:"session_id"`
	ProjectID string `json:"project_id,omitempty"`
	Position  int    `json:"position"`
}

// QueuePositionEvent is broadcast when a waiting session's position changes.
type QueuePositionEvent struct {
	SessionID string `json:"session_id"`
	Position  int    `json:"position"`
}

// BroadcastEvent is a convenience method that marshals a typed event and broadcasts it.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	h.Broadcast(ctx, Message{
		Type:    eventType,
		Payload: json.RawMessage(data),
	})
}
