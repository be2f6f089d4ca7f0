package client

import (
	"context"
	"fmt"
	"sort"

	"github.com/helmsman-dev/helmsman/internal/adapter/ws"
)

// Progress is the telemetry of an autonomous run.
type Progress struct {
	Turns     int
	ToolNames map[string]struct{}
	Done      bool
	Success   bool
	LastError string
}

// SortedTools returns the distinct tool names used, sorted.
func (p *Progress) SortedTools() []string {
	names := make([]string, 0, len(p.ToolNames))
	for n := range p.ToolNames {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Runner is the single-prompt autonomous mode: it sends one prompt, folds
// the event stream with the same reconstruction as interactive chat, and
// tracks progress telemetry until the turn completes.
type Runner struct {
	client     *Client
	transcript *Transcript
	progress   Progress

	// OnEvent, if set, is invoked for every server message after folding.
	OnEvent func(ws.ServerMessage)
}

// NewRunner creates an autonomous runner over an open connection.
func NewRunner(c *Client) *Runner {
	return &Runner{
		client:     c,
		transcript: NewTranscript(),
		progress:   Progress{ToolNames: make(map[string]struct{})},
	}
}

// Transcript returns the reconstructed conversation so far.
func (r *Runner) Transcript() *Transcript { return r.transcript }

// Progress returns the current run telemetry.
func (r *Runner) Progress() Progress { return r.progress }

// Run sends the prompt and processes events until the turn completes or the
// stream fails. The final assistant text is returned.
func (r *Runner) Run(ctx context.Context, prompt string) (string, error) {
	// Wait for the session to be live before sending.
	for {
		msg, err := r.client.Next(ctx)
		if err != nil {
			return "", err
		}
		r.apply(msg)
		if msg.Type == ws.TypeConnected && !msg.Queued {
			break
		}
		if msg.Type == ws.TypeError {
			return "", fmt.Errorf("session setup: %s", msg.Error)
		}
	}

	r.transcript.AddUserMessage(prompt)
	if err := r.client.Send(ctx, prompt, nil); err != nil {
		return "", err
	}

	for !r.progress.Done {
		msg, err := r.client.Next(ctx)
		if err != nil {
			return "", err
		}
		r.apply(msg)
	}

	if r.progress.LastError != "" && !r.progress.Success {
		return r.finalText(), fmt.Errorf("run failed: %s", r.progress.LastError)
	}
	return r.finalText(), nil
}

func (r *Runner) apply(msg ws.ServerMessage) {
	r.transcript.Apply(msg)

	switch msg.Type {
	case ws.TypeToolUse:
		if msg.ToolName != "" {
			r.progress.ToolNames[msg.ToolName] = struct{}{}
		}
	case ws.TypeResult:
		r.progress.Turns++
		r.progress.Done = true
		r.progress.Success = msg.Success
	case ws.TypeError:
		r.progress.LastError = msg.Error
		r.progress.Done = true
	}

	if r.OnEvent != nil {
		r.OnEvent(msg)
	}
}

func (r *Runner) finalText() string {
	for i := len(r.transcript.Messages) - 1; i >= 0; i-- {
		if r.transcript.Messages[i].Role == "assistant" {
			return r.transcript.Messages[i].Content
		}
	}
	return ""
}
