// Package relay implements the per-conversation WebSocket transport: it
// binds one client connection to one agent session and forwards messages
// in both directions.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/coder/websocket"
	"go.opentelemetry.io/otel/trace"

	"github.com/helmsman-dev/helmsman/internal/adapter/otel"
	"github.com/helmsman-dev/helmsman/internal/adapter/ws"
	"github.com/helmsman-dev/helmsman/internal/domain"
	"github.com/helmsman-dev/helmsman/internal/domain/session"
	"github.com/helmsman-dev/helmsman/internal/service"
)

// Relay upgrades conversation requests to WebSocket connections and drives
// the session lifecycle for each: admission, prompt forwarding, event
// draining, per-turn progress persistence and teardown on disconnect.
type Relay struct {
	registry      *service.Registry
	prompts       *service.PromptBuilder
	progress      *service.ProgressRecorder
	metrics       *otel.Metrics
	historyWindow int
	maxTurns      int
}

// Options tunes per-conversation behavior.
type Options struct {
	// HistoryWindow caps how many client-supplied history entries are
	// prefixed to each prompt.
	HistoryWindow int
	// MaxTurns is the turn budget handed to each new session.
	MaxTurns int
}

// New creates a Relay. prompts, progress and metrics may be nil.
func New(registry *service.Registry, prompts *service.PromptBuilder, progress *service.ProgressRecorder, metrics *otel.Metrics, opts Options) *Relay {
	return &Relay{
		registry:      registry,
		prompts:       prompts,
		progress:      progress,
		metrics:       metrics,
		historyWindow: opts.HistoryWindow,
		maxTurns:      opts.MaxTurns,
	}
}

// HandleConversation serves one conversation connection. The working
// directory comes from the "dir" query parameter; "project_id" and
// "task_id" are optional bindings.
func (rl *Relay) HandleConversation(w http.ResponseWriter, r *http.Request) {
	dir := r.URL.Query().Get("dir")
	if dir == "" {
		http.Error(w, "missing dir query parameter", http.StatusBadRequest)
		return
	}
	projectID := r.URL.Query().Get("project_id")
	taskID := r.URL.Query().Get("task_id")

	sock, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // CORS handled by middleware
	})
	if err != nil {
		slog.Error("conversation accept failed", "error", err)
		return
	}

	ctx := r.Context()

	opts := session.Options{
		ProjectID: projectID,
		TaskID:    taskID,
		MaxTurns:  rl.maxTurns,
	}
	if rl.prompts != nil {
		opts.SystemPrompt = rl.prompts.SystemPrompt(ctx, projectID)
	}

	res, err := rl.registry.CreateSession(ctx, dir, opts)
	if err != nil {
		reason := "session start failed"
		if errors.Is(err, domain.ErrQueueFull) {
			reason = "session queue full"
		}
		slog.Warn("conversation rejected", "dir", dir, "project_id", projectID, "error", err)
		writeMessage(ctx, sock, ws.ServerMessage{Type: ws.TypeError, Error: reason})
		_ = sock.Close(websocket.StatusTryAgainLater, reason)
		return
	}

	ctx, span := otel.StartSessionSpan(ctx, res.SessionID, projectID, taskID)
	defer span.End()

	c := &conversation{
		sock:          sock,
		sessionID:     res.SessionID,
		taskID:        taskID,
		historyWindow: rl.historyWindow,
		progress:      rl.progress,
		metrics:       rl.metrics,
	}
	if res.Queued {
		rl.registry.WatchStart(res.SessionID, func(s *service.AgentSession) {
			c.bind(ctx, s)
		})
	} else {
		c.setSession(rl.registry.Get(res.SessionID))
	}

	c.send(ctx, ws.ServerMessage{
		Type:          ws.TypeConnected,
		SessionID:     res.SessionID,
		Queued:        res.Queued,
		QueuePosition: res.QueuePosition,
	})
	slog.Info("conversation opened",
		"session_id", res.SessionID, "dir", dir, "queued", res.Queued)

	c.readLoop(ctx)

	// The client owns the session lifetime: disconnect tears it down
	// whether it is still queued or already running.
	if !rl.registry.CancelQueuedSession(ctx, res.SessionID) {
		rl.registry.DestroySession(ctx, res.SessionID)
	}
	_ = sock.Close(websocket.StatusNormalClosure, "")
	slog.Info("conversation closed", "session_id", res.SessionID)
}

// conversation is the per-connection state of one relay.
type conversation struct {
	sock          *websocket.Conn
	sessionID     string
	taskID        string
	historyWindow int
	progress      *service.ProgressRecorder
	metrics       *otel.Metrics

	mu        sync.Mutex
	sess      *service.AgentSession
	listening bool
}

func (c *conversation) setSession(s *service.AgentSession) {
	c.mu.Lock()
	c.sess = s
	c.mu.Unlock()
}

// bind attaches a promoted session and tells the client its wait is over.
func (c *conversation) bind(ctx context.Context, s *service.AgentSession) {
	c.setSession(s)
	c.send(ctx, ws.ServerMessage{
		Type:      ws.TypeConnected,
		SessionID: c.sessionID,
	})
}

func (c *conversation) readLoop(ctx context.Context) {
	for {
		_, data, err := c.sock.Read(ctx)
		if err != nil {
			return
		}

		var msg ws.ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.send(ctx, ws.ServerMessage{Type: ws.TypeError, Error: "invalid message: " + err.Error()})
			continue
		}

		switch msg.Type {
		case ws.TypePing:
			c.send(ctx, ws.ServerMessage{Type: ws.TypePong})
		case ws.TypeChat:
			c.handleChat(ctx, msg)
		default:
			c.send(ctx, ws.ServerMessage{Type: ws.TypeError, Error: "unknown message type: " + msg.Type})
		}
	}
}

func (c *conversation) handleChat(ctx context.Context, msg ws.ClientMessage) {
	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()

	if sess == nil {
		c.send(ctx, ws.ServerMessage{Type: ws.TypeError, Error: "session is queued, waiting for a free slot"})
		return
	}
	if msg.Content == "" {
		c.send(ctx, ws.ServerMessage{Type: ws.TypeError, Error: "empty chat content"})
		return
	}

	sess.SendMessage(renderPrompt(msg, c.historyWindow))

	// One drain loop per connection, started lazily on the first chat.
	c.mu.Lock()
	start := !c.listening
	c.listening = true
	c.mu.Unlock()
	if start {
		go c.drain(ctx, sess)
	}
}

// drain forwards session output to the client until the session ends.
// Assistant text is accumulated per turn and written as a progress record
// when the turn's result arrives.
func (c *conversation) drain(ctx context.Context, sess *service.AgentSession) {
	var turnText strings.Builder
	var turnSpan trace.Span
	defer func() {
		if turnSpan != nil {
			turnSpan.End()
		}
	}()
	for {
		ev, ok := sess.NextEvent(ctx)
		if !ok {
			return
		}
		if turnSpan == nil {
			_, turnSpan = otel.StartTurnSpan(ctx, c.sessionID)
		}
		c.send(ctx, translate(ev))

		switch ev.Type {
		case session.EventAssistantText:
			turnText.WriteString(ev.Content)
		case session.EventTurnResult:
			if c.progress != nil && c.taskID != "" && turnText.Len() > 0 {
				c.progress.Record(ctx, c.taskID, c.sessionID, turnText.String(), ev)
			}
			turnText.Reset()
			if c.metrics != nil {
				c.metrics.TurnsCompleted.Add(ctx, 1)
				c.metrics.TurnCost.Record(ctx, ev.CostUSD)
				c.metrics.TurnDuration.Record(ctx, float64(ev.DurationMs)/1000)
			}
			turnSpan.End()
			turnSpan = nil
		case session.EventError:
			turnSpan.End()
			turnSpan = nil
		}
	}
}

func (c *conversation) send(ctx context.Context, msg ws.ServerMessage) {
	writeMessage(ctx, c.sock, msg)
}

func writeMessage(ctx context.Context, sock *websocket.Conn, msg ws.ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("marshal conversation message", "type", msg.Type, "error", err)
		return
	}
	if err := sock.Write(ctx, websocket.MessageText, data); err != nil {
		slog.Debug("conversation write failed", "type", msg.Type, "error", err)
	}
}

// renderPrompt flattens the client-supplied history window and the new
// message into a single prompt string for the engine.
func renderPrompt(msg ws.ClientMessage, window int) string {
	history := msg.History
	if window > 0 && len(history) > window {
		history = history[len(history)-window:]
	}
	if len(history) == 0 {
		return msg.Content
	}

	var sb strings.Builder
	sb.WriteString("Previous conversation:\n")
	for _, h := range history {
		switch h.Role {
		case "assistant":
			sb.WriteString("Assistant: ")
		default:
			sb.WriteString("User: ")
		}
		sb.WriteString(h.Content)
		sb.WriteString("\n")
	}
	sb.WriteString("\nUser: ")
	sb.WriteString(msg.Content)
	return sb.String()
}

// translate maps a session output event onto the wire protocol.
func translate(ev session.OutputEvent) ws.ServerMessage {
	switch ev.Type {
	case session.EventAssistantText:
		return ws.ServerMessage{Type: ws.TypeAssistantMessage, Content: ev.Content}
	case session.EventToolUse:
		return ws.ServerMessage{
			Type:      ws.TypeToolUse,
			ToolID:    ev.ToolID,
			ToolName:  ev.ToolName,
			ToolInput: ev.ToolInput,
		}
	case session.EventToolResult:
		return ws.ServerMessage{
			Type:              ws.TypeToolResult,
			ToolUseID:         ev.ToolUseID,
			ToolResult:        ev.ToolResult,
			ToolResultIsError: ev.ToolIsError,
		}
	case session.EventTurnResult:
		return ws.ServerMessage{
			Type:     ws.TypeResult,
			Success:  ev.Success,
			Cost:     ev.CostUSD,
			Duration: ev.DurationMs,
		}
	case session.EventError:
		return ws.ServerMessage{Type: ws.TypeError, Error: ev.Err}
	default:
		return ws.ServerMessage{Type: string(ev.Type)}
	}
}
