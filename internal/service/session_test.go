package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/helmsman-dev/helmsman/internal/domain/session"
	"github.com/helmsman-dev/helmsman/internal/port/engine"
)

// scriptedStream replays a fixed sequence of raw events, then ends the
// stream with endErr (io.EOF by default).
type scriptedStream struct {
	events []engine.RawEvent
	endErr error
	closed bool
}

func (s *scriptedStream) Next(_ context.Context) (engine.RawEvent, error) {
	if len(s.events) == 0 {
		if s.endErr != nil {
			return engine.RawEvent{}, s.endErr
		}
		return engine.RawEvent{}, io.EOF
	}
	ev := s.events[0]
	s.events = s.events[1:]
	return ev, nil
}

func (s *scriptedStream) Close() error {
	s.closed = true
	return nil
}

type fakeEngine struct {
	mu       sync.Mutex
	script   []engine.RawEvent
	endErr   error
	startErr error
	started  []engine.Config
}

func (e *fakeEngine) Start(_ context.Context, _ string, cfg engine.Config) (engine.Stream, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.startErr != nil {
		return nil, e.startErr
	}
	e.started = append(e.started, cfg)
	return &scriptedStream{
		events: append([]engine.RawEvent(nil), e.script...),
		endErr: e.endErr,
	}, nil
}

func collectEvents(t *testing.T, s *AgentSession) []session.OutputEvent {
	t.Helper()
	var out []session.OutputEvent
	for {
		ev, ok := s.NextEvent(context.Background())
		if !ok {
			return out
		}
		out = append(out, ev)
		if len(out) > 100 {
			t.Fatal("event stream did not terminate")
		}
	}
}

func TestSessionTextDeltas(t *testing.T) {
	eng := &fakeEngine{script: []engine.RawEvent{
		{Type: engine.RawContentBlockStart, Index: 0, Block: &engine.ContentBlock{Type: engine.BlockText}},
		{Type: engine.RawContentBlockDelta, Index: 0, Delta: &engine.Delta{Type: engine.DeltaText, Text: "Hel"}},
		{Type: engine.RawContentBlockDelta, Index: 0, Delta: &engine.Delta{Type: engine.DeltaText, Text: "lo"}},
		{Type: engine.RawContentBlockStop, Index: 0},
		{Type: engine.RawResult, Subtype: engine.ResultSuccess, CostUSD: 0.02, DurationMs: 1500},
	}}
	s, err := NewAgentSession(context.Background(), eng, "s1", "/work", session.Options{})
	if err != nil {
		t.Fatalf("NewAgentSession: %v", err)
	}

	events := collectEvents(t, s)
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d: %+v", len(events), events)
	}
	if events[0].Type != session.EventAssistantText || events[0].Content != "Hel" || !events[0].Partial {
		t.Errorf("unexpected first event: %+v", events[0])
	}
	if events[1].Content != "lo" {
		t.Errorf("unexpected second event: %+v", events[1])
	}
	res := events[2]
	if res.Type != session.EventTurnResult || !res.Success || res.CostUSD != 0.02 || res.DurationMs != 1500 {
		t.Errorf("unexpected turn result: %+v", res)
	}
}

func TestSessionToolUseReassembly(t *testing.T) {
	eng := &fakeEngine{script: []engine.RawEvent{
		{Type: engine.RawContentBlockStart, Index: 0, Block: &engine.ContentBlock{
			Type: engine.BlockToolUse, ID: "tool-1", Name: "Bash",
		}},
		// Invalid prefix, must not be disclosed yet.
		{Type: engine.RawContentBlockDelta, Index: 0, Delta: &engine.Delta{
			Type: engine.DeltaInputJSON, PartialJSON: `{"command":`,
		}},
		{Type: engine.RawContentBlockDelta, Index: 0, Delta: &engine.Delta{
			Type: engine.DeltaInputJSON, PartialJSON: `"ls"}`,
		}},
		{Type: engine.RawContentBlockStop, Index: 0},
		{Type: engine.RawResult, Subtype: engine.ResultSuccess},
	}}
	s, err := NewAgentSession(context.Background(), eng, "s1", "/work", session.Options{})
	if err != nil {
		t.Fatalf("NewAgentSession: %v", err)
	}

	events := collectEvents(t, s)
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d: %+v", len(events), events)
	}

	first := events[0]
	if first.Type != session.EventToolUse || first.ToolID != "tool-1" || first.ToolName != "Bash" || first.ToolInput != nil {
		t.Errorf("unexpected tool announcement: %+v", first)
	}
	want := `{"command":"ls"}`
	if string(events[1].ToolInput) != want {
		t.Errorf("incremental disclosure = %s, want %s", events[1].ToolInput, want)
	}
	if string(events[2].ToolInput) != want {
		t.Errorf("final input = %s, want %s", events[2].ToolInput, want)
	}
	if events[3].Type != session.EventTurnResult {
		t.Errorf("expected turn result last, got %+v", events[3])
	}
}

func TestSessionToolUseGeneratesMissingID(t *testing.T) {
	eng := &fakeEngine{script: []engine.RawEvent{
		{Type: engine.RawContentBlockStart, Index: 2, Block: &engine.ContentBlock{
			Type: engine.BlockToolUse, Name: "Read",
		}},
	}}
	s, err := NewAgentSession(context.Background(), eng, "s1", "/work", session.Options{})
	if err != nil {
		t.Fatalf("NewAgentSession: %v", err)
	}

	events := collectEvents(t, s)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].ToolID == "" {
		t.Error("expected a generated tool id")
	}
}

func TestSessionToolResultImmediate(t *testing.T) {
	eng := &fakeEngine{script: []engine.RawEvent{
		{Type: engine.RawContentBlockStart, Index: 1, Block: &engine.ContentBlock{
			Type:      engine.BlockToolResult,
			ToolUseID: "tool-1",
			Content:   json.RawMessage(`"total 4"`),
			IsError:   false,
		}},
	}}
	s, err := NewAgentSession(context.Background(), eng, "s1", "/work", session.Options{})
	if err != nil {
		t.Fatalf("NewAgentSession: %v", err)
	}

	events := collectEvents(t, s)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	ev := events[0]
	if ev.Type != session.EventToolResult || ev.ToolUseID != "tool-1" || string(ev.ToolResult) != `"total 4"` || ev.ToolIsError {
		t.Errorf("unexpected tool result: %+v", ev)
	}
}

func TestSessionFailedTurnResult(t *testing.T) {
	eng := &fakeEngine{script: []engine.RawEvent{
		{Type: engine.RawResult, Subtype: "error_max_turns", DurationMs: 900},
	}}
	s, err := NewAgentSession(context.Background(), eng, "s1", "/work", session.Options{})
	if err != nil {
		t.Fatalf("NewAgentSession: %v", err)
	}

	events := collectEvents(t, s)
	if len(events) != 1 || events[0].Type != session.EventTurnResult {
		t.Fatalf("expected single turn result, got %+v", events)
	}
	if events[0].Success {
		t.Error("expected failed turn result")
	}
}

func TestSessionStreamFailureEmitsSingleError(t *testing.T) {
	eng := &fakeEngine{endErr: errors.New("engine connection lost")}
	s, err := NewAgentSession(context.Background(), eng, "s1", "/work", session.Options{})
	if err != nil {
		t.Fatalf("NewAgentSession: %v", err)
	}

	ev, ok := s.NextEvent(context.Background())
	if !ok || ev.Type != session.EventError {
		t.Fatalf("expected error event, got %+v ok=%v", ev, ok)
	}
	if ev.Err != "engine connection lost" {
		t.Errorf("unexpected error text: %q", ev.Err)
	}
	if _, ok := s.NextEvent(context.Background()); ok {
		t.Error("expected stream to end after the error event")
	}
}

func TestSessionEngineErrorEventEndsStream(t *testing.T) {
	eng := &fakeEngine{script: []engine.RawEvent{
		{Type: engine.RawError, Message: "overloaded"},
		{Type: engine.RawResult, Subtype: engine.ResultSuccess},
	}}
	s, err := NewAgentSession(context.Background(), eng, "s1", "/work", session.Options{})
	if err != nil {
		t.Fatalf("NewAgentSession: %v", err)
	}

	ev, ok := s.NextEvent(context.Background())
	if !ok || ev.Type != session.EventError || ev.Err != "overloaded" {
		t.Fatalf("expected error event, got %+v ok=%v", ev, ok)
	}
	if _, ok := s.NextEvent(context.Background()); ok {
		t.Error("expected no events after an engine error event")
	}
}

func TestSessionSendAfterCloseDropped(t *testing.T) {
	eng := &fakeEngine{}
	s, err := NewAgentSession(context.Background(), eng, "s1", "/work", session.Options{})
	if err != nil {
		t.Fatalf("NewAgentSession: %v", err)
	}

	s.Close()
	s.Close() // idempotent
	s.SendMessage("dropped")

	if got := s.queue.Len(); got != 0 {
		t.Errorf("expected empty queue after close, got %d", got)
	}
}

func TestSessionFiltersBlankAdditionalDirs(t *testing.T) {
	eng := &fakeEngine{}
	_, err := NewAgentSession(context.Background(), eng, "s1", "/work", session.Options{
		AdditionalDirs: []string{"", "  ", "/extra"},
	})
	if err != nil {
		t.Fatalf("NewAgentSession: %v", err)
	}

	cfg := eng.started[0]
	if len(cfg.AdditionalDirs) != 1 || cfg.AdditionalDirs[0] != "/extra" {
		t.Errorf("unexpected additional dirs: %v", cfg.AdditionalDirs)
	}
	if len(cfg.AllowedTools) == 0 {
		t.Error("expected default allowed tools to be set")
	}
}
