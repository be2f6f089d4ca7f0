// Package client implements the conversation client: a thin WebSocket
// wrapper plus the reconstruction layer that folds the server's event
// stream into display-ready conversation state.
package client

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/helmsman-dev/helmsman/internal/adapter/ws"
)

// ToolStatus tracks a tool call through its lifecycle.
type ToolStatus string

const (
	ToolRunning   ToolStatus = "running"
	ToolCompleted ToolStatus = "completed"
	ToolError     ToolStatus = "error"
)

// ToolCall is one reconstructed tool invocation within an assistant message.
type ToolCall struct {
	ID      string
	Name    string
	Input   json.RawMessage
	Result  json.RawMessage
	IsError bool
	Status  ToolStatus
}

// Message is one reconstructed conversation message.
type Message struct {
	ID         string
	Role       string
	Content    string
	ToolCalls  []ToolCall
	Timestamp  time.Time
	CostUSD    float64
	DurationMs int64
}

// Transcript folds server messages into an ordered conversation. Text
// deltas and tool events accumulate into the currently open assistant
// message; a result event closes it so the next turn starts fresh.
type Transcript struct {
	SessionID string
	Ready     bool
	LastError string
	Messages  []Message

	currentID string
}

// NewTranscript creates an empty transcript.
func NewTranscript() *Transcript {
	return &Transcript{}
}

// AddUserMessage appends a user message, e.g. when the local user sends a
// prompt.
func (t *Transcript) AddUserMessage(content string) {
	t.Messages = append(t.Messages, Message{
		ID:        t.nextID(),
		Role:      "user",
		Content:   content,
		Timestamp: time.Now(),
	})
}

// Apply folds one server message into the transcript. The fold is
// deterministic: replaying the same ordered sequence on a fresh transcript
// yields the same final state.
func (t *Transcript) Apply(msg ws.ServerMessage) {
	switch msg.Type {
	case ws.TypeConnected:
		t.SessionID = msg.SessionID
		t.Ready = true

	case ws.TypeAssistantMessage:
		cur := t.openAssistant()
		cur.Content += msg.Content

	case ws.TypeToolUse:
		cur := t.openAssistant()
		for i := range cur.ToolCalls {
			if cur.ToolCalls[i].ID == msg.ToolID {
				// Later events carry the growing input; merge fields.
				if msg.ToolName != "" {
					cur.ToolCalls[i].Name = msg.ToolName
				}
				if msg.ToolInput != nil {
					cur.ToolCalls[i].Input = msg.ToolInput
				}
				return
			}
		}
		cur.ToolCalls = append(cur.ToolCalls, ToolCall{
			ID:     msg.ToolID,
			Name:   msg.ToolName,
			Input:  msg.ToolInput,
			Status: ToolRunning,
		})

	case ws.TypeToolResult:
		cur := t.current()
		if cur == nil {
			return
		}
		for i := range cur.ToolCalls {
			if cur.ToolCalls[i].ID == msg.ToolUseID {
				cur.ToolCalls[i].Result = msg.ToolResult
				cur.ToolCalls[i].IsError = msg.ToolResultIsError
				if msg.ToolResultIsError {
					cur.ToolCalls[i].Status = ToolError
				} else {
					cur.ToolCalls[i].Status = ToolCompleted
				}
				return
			}
		}

	case ws.TypeResult:
		if cur := t.current(); cur != nil {
			// The turn ending is authoritative: anything still running
			// finished without an explicit result event.
			for i := range cur.ToolCalls {
				if cur.ToolCalls[i].Status == ToolRunning {
					cur.ToolCalls[i].Status = ToolCompleted
				}
			}
			cur.CostUSD = msg.Cost
			cur.DurationMs = msg.Duration
		}
		t.currentID = ""

	case ws.TypeError:
		t.LastError = msg.Error
	}
}

// current returns the open assistant message, or nil.
func (t *Transcript) current() *Message {
	if t.currentID == "" {
		return nil
	}
	for i := range t.Messages {
		if t.Messages[i].ID == t.currentID {
			return &t.Messages[i]
		}
	}
	return nil
}

// openAssistant returns the open assistant message, starting a new one if
// the previous turn is closed.
func (t *Transcript) openAssistant() *Message {
	if cur := t.current(); cur != nil {
		return cur
	}
	t.Messages = append(t.Messages, Message{
		ID:        t.nextID(),
		Role:      "assistant",
		Timestamp: time.Now(),
	})
	m := &t.Messages[len(t.Messages)-1]
	t.currentID = m.ID
	return m
}

// nextID returns a deterministic per-transcript message id.
func (t *Transcript) nextID() string {
	return fmt.Sprintf("msg-%d", len(t.Messages)+1)
}

// History renders the last window messages as wire history entries for the
// next chat message.
func (t *Transcript) History(window int) []ws.HistoryEntry {
	msgs := t.Messages
	if window > 0 && len(msgs) > window {
		msgs = msgs[len(msgs)-window:]
	}
	entries := make([]ws.HistoryEntry, 0, len(msgs))
	for _, m := range msgs {
		if m.Content == "" {
			continue
		}
		entries = append(entries, ws.HistoryEntry{Role: m.Role, Content: m.Content})
	}
	return entries
}
