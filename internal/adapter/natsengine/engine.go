// Package natsengine implements the engine port on top of the message
// queue: session configs, prompts and raw events travel over per-session
// subjects, with the actual engine processes running in external workers.
package natsengine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/helmsman-dev/helmsman/internal/port/engine"
	"github.com/helmsman-dev/helmsman/internal/port/messagequeue"
)

const eventBufferSize = 256

// startPayload announces a new engine connection to the worker pool.
type startPayload struct {
	SessionID      string   `json:"session_id"`
	WorkingDir     string   `json:"working_dir"`
	SystemPrompt   string   `json:"system_prompt,omitempty"`
	MaxTurns       int      `json:"max_turns,omitempty"`
	AllowedTools   []string `json:"allowed_tools,omitempty"`
	AdditionalDirs []string `json:"additional_dirs,omitempty"`
}

// Engine implements engine.Engine over a messagequeue.Queue.
type Engine struct {
	queue messagequeue.Queue
}

// New creates an Engine backed by the given queue.
func New(queue messagequeue.Queue) *Engine {
	return &Engine{queue: queue}
}

// Start subscribes to the session's event subject, announces the session to
// the workers and begins pumping prompts. The returned stream's lifetime is
// independent of ctx: sessions outlive the request that created them.
func (e *Engine) Start(ctx context.Context, sessionID string, cfg engine.Config) (engine.Stream, error) {
	runCtx, cancel := context.WithCancel(context.Background())

	s := &stream{
		queue:     e.queue,
		sessionID: sessionID,
		events:    make(chan engine.RawEvent, eventBufferSize),
		closed:    make(chan struct{}),
		cancelRun: cancel,
	}

	// Subscribe before announcing so no event is missed.
	cancelSub, err := e.queue.Subscribe(runCtx, messagequeue.SubjectSessionEventsPrefix+sessionID, s.handle)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe session events: %w", err)
	}
	s.cancelSub = cancelSub

	payload, err := json.Marshal(startPayload{
		SessionID:      sessionID,
		WorkingDir:     cfg.WorkingDir,
		SystemPrompt:   cfg.SystemPrompt,
		MaxTurns:       cfg.MaxTurns,
		AllowedTools:   cfg.AllowedTools,
		AdditionalDirs: cfg.AdditionalDirs,
	})
	if err != nil {
		s.teardown()
		return nil, fmt.Errorf("marshal session start: %w", err)
	}
	if err := e.queue.Publish(ctx, messagequeue.SubjectSessionStart, payload); err != nil {
		s.teardown()
		return nil, fmt.Errorf("announce session: %w", err)
	}

	go s.pumpPrompts(runCtx, cfg.Prompts)

	return s, nil
}

// stream is one session's raw event sequence, fed by the event subject.
type stream struct {
	queue     messagequeue.Queue
	sessionID string
	events    chan engine.RawEvent

	cancelRun context.CancelFunc
	cancelSub func()

	once   sync.Once
	closed chan struct{}
}

func (s *stream) handle(_ context.Context, subject string, data []byte) error {
	var ev engine.RawEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return fmt.Errorf("decode engine event on %s: %w", subject, err)
	}
	select {
	case s.events <- ev:
		return nil
	case <-s.closed:
		return nil
	}
}

// pumpPrompts forwards user messages to the session's prompt subject until
// the source is drained or the stream is torn down.
func (s *stream) pumpPrompts(ctx context.Context, prompts engine.PromptSource) {
	if prompts == nil {
		return
	}
	subject := messagequeue.SubjectSessionPromptPrefix + s.sessionID
	for {
		prompt, ok := prompts.Next(ctx)
		if !ok {
			return
		}
		if err := s.queue.Publish(ctx, subject, []byte(prompt)); err != nil {
			slog.Error("publish session prompt", "session_id", s.sessionID, "error", err)
		}
	}
}

func (s *stream) Next(ctx context.Context) (engine.RawEvent, error) {
	// Deliver buffered events before reporting the end of the stream.
	select {
	case ev := <-s.events:
		return ev, nil
	default:
	}
	select {
	case ev := <-s.events:
		return ev, nil
	case <-s.closed:
		return engine.RawEvent{}, io.EOF
	case <-ctx.Done():
		return engine.RawEvent{}, ctx.Err()
	}
}

func (s *stream) Close() error {
	s.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.queue.Publish(ctx, messagequeue.SubjectSessionClosePrefix+s.sessionID, nil); err != nil {
			slog.Debug("publish session close", "session_id", s.sessionID, "error", err)
		}
		s.teardown()
	})
	return nil
}

func (s *stream) teardown() {
	if s.cancelSub != nil {
		s.cancelSub()
	}
	s.cancelRun()
	close(s.closed)
}
