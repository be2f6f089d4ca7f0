package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/helmsman-dev/helmsman/internal/domain/session"
	"github.com/helmsman-dev/helmsman/internal/port/engine"
)

// toolBuffer accumulates the fragmented input JSON of one in-progress tool
// call, keyed by the engine's content block index.
type toolBuffer struct {
	id      string
	name    string
	partial strings.Builder
}

// AgentSession binds one MessageQueue to one live engine connection and
// reassembles the engine's raw event stream into session.OutputEvent values.
// The output side is consumed exactly once, by the transport relay that owns
// the session's connection.
type AgentSession struct {
	id         string
	workingDir string
	opts       session.Options
	startedAt  time.Time

	queue  *MessageQueue
	stream engine.Stream

	mu     sync.Mutex
	closed bool

	// Reassembly state, owned by the single consumer of NextEvent.
	toolBufs map[int]*toolBuffer
	pending  []session.OutputEvent
	done     bool
}

// NewAgentSession starts an engine connection for the given working directory
// and returns the session wrapping it. Blank additional directories are
// filtered out before being passed to the engine.
func NewAgentSession(ctx context.Context, eng engine.Engine, id, workingDir string, opts session.Options) (*AgentSession, error) {
	queue := NewMessageQueue()

	dirs := make([]string, 0, len(opts.AdditionalDirs))
	for _, d := range opts.AdditionalDirs {
		if strings.TrimSpace(d) != "" {
			dirs = append(dirs, d)
		}
	}

	stream, err := eng.Start(ctx, id, engine.Config{
		WorkingDir:     workingDir,
		SystemPrompt:   opts.SystemPrompt,
		MaxTurns:       opts.MaxTurns,
		AllowedTools:   engine.DefaultAllowedTools,
		AdditionalDirs: dirs,
		Prompts:        queue,
	})
	if err != nil {
		queue.Close()
		return nil, err
	}

	return &AgentSession{
		id:         id,
		workingDir: workingDir,
		opts:       opts,
		startedAt:  time.Now(),
		queue:      queue,
		stream:     stream,
		toolBufs:   make(map[int]*toolBuffer),
	}, nil
}

// ID returns the session's unique id.
func (s *AgentSession) ID() string { return s.id }

// Info returns a read-only snapshot for the API.
func (s *AgentSession) Info() session.Info {
	return session.Info{
		ID:         s.id,
		ProjectID:  s.opts.ProjectID,
		TaskID:     s.opts.TaskID,
		WorkingDir: s.workingDir,
		StartedAt:  s.startedAt,
	}
}

// ProjectID returns the owning project id, if any.
func (s *AgentSession) ProjectID() string { return s.opts.ProjectID }

// TaskID returns the bound task id, if any.
func (s *AgentSession) TaskID() string { return s.opts.TaskID }

// SendMessage pushes a user message into the session's queue. Messages sent
// after Close are dropped silently.
func (s *AgentSession) SendMessage(text string) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}
	s.queue.Push(text)
}

// Close marks the session closed and closes its message queue, unblocking
// the engine connection's input side, then releases the engine stream.
// Safe to call more than once.
func (s *AgentSession) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.queue.Close()
	if err := s.stream.Close(); err != nil {
		slog.Debug("engine stream close", "session_id", s.id, "error", err)
	}
}

// NextEvent returns the next output event, blocking on the engine stream as
// needed. ok is false once the stream has ended; after a stream failure a
// single error event is emitted and then the sequence ends.
func (s *AgentSession) NextEvent(ctx context.Context) (session.OutputEvent, bool) {
	for {
		if len(s.pending) > 0 {
			ev := s.pending[0]
			s.pending = s.pending[1:]
			return ev, true
		}
		if s.done {
			return session.OutputEvent{}, false
		}

		raw, err := s.stream.Next(ctx)
		if err != nil {
			s.done = true
			if errors.Is(err, io.EOF) {
				return session.OutputEvent{}, false
			}
			return session.OutputEvent{Type: session.EventError, Err: err.Error()}, true
		}

		s.fold(raw)
	}
}

// fold appends the output events produced by one raw engine event.
func (s *AgentSession) fold(raw engine.RawEvent) {
	switch raw.Type {
	case engine.RawContentBlockStart:
		s.foldBlockStart(raw)

	case engine.RawContentBlockDelta:
		s.foldDelta(raw)

	case engine.RawContentBlockStop:
		s.foldBlockStop(raw)

	case engine.RawResult:
		s.pending = append(s.pending, session.OutputEvent{
			Type:       session.EventTurnResult,
			Success:    raw.Subtype == engine.ResultSuccess,
			CostUSD:    raw.CostUSD,
			DurationMs: raw.DurationMs,
		})

	case engine.RawError:
		s.done = true
		s.pending = append(s.pending, session.OutputEvent{
			Type: session.EventError,
			Err:  raw.Message,
		})

	default:
		slog.Debug("unknown raw engine event", "session_id", s.id, "type", raw.Type)
	}
}

func (s *AgentSession) foldBlockStart(raw engine.RawEvent) {
	if raw.Block == nil {
		return
	}
	switch raw.Block.Type {
	case engine.BlockToolResult:
		// Tool results carry their full payload in one event.
		s.pending = append(s.pending, session.OutputEvent{
			Type:        session.EventToolResult,
			ToolUseID:   raw.Block.ToolUseID,
			ToolResult:  raw.Block.Content,
			ToolIsError: raw.Block.IsError,
		})

	case engine.BlockToolUse:
		id := raw.Block.ID
		if id == "" {
			id = uuid.NewString()
		}
		s.toolBufs[raw.Index] = &toolBuffer{id: id, name: raw.Block.Name}
		s.pending = append(s.pending, session.OutputEvent{
			Type:     session.EventToolUse,
			ToolID:   id,
			ToolName: raw.Block.Name,
		})
	}
}

func (s *AgentSession) foldDelta(raw engine.RawEvent) {
	if raw.Delta == nil {
		return
	}
	switch raw.Delta.Type {
	case engine.DeltaText:
		s.pending = append(s.pending, session.OutputEvent{
			Type:    session.EventAssistantText,
			Content: raw.Delta.Text,
			Partial: true,
		})

	case engine.DeltaInputJSON:
		buf, ok := s.toolBufs[raw.Index]
		if !ok {
			return
		}
		buf.partial.WriteString(raw.Delta.PartialJSON)
		// Best-effort incremental disclosure: emit only when the
		// accumulated prefix happens to parse. An unparsable prefix is
		// not an error, just not yet complete.
		if acc := buf.partial.String(); json.Valid([]byte(acc)) {
			s.pending = append(s.pending, session.OutputEvent{
				Type:      session.EventToolUse,
				ToolID:    buf.id,
				ToolInput: json.RawMessage(acc),
			})
		}
	}
}

func (s *AgentSession) foldBlockStop(raw engine.RawEvent) {
	buf, ok := s.toolBufs[raw.Index]
	if !ok {
		return
	}
	delete(s.toolBufs, raw.Index)
	// Authoritative final input for this tool call.
	if acc := buf.partial.String(); json.Valid([]byte(acc)) {
		s.pending = append(s.pending, session.OutputEvent{
			Type:      session.EventToolUse,
			ToolID:    buf.id,
			ToolInput: json.RawMessage(acc),
		})
	}
}
