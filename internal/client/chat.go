package client

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/helmsman-dev/helmsman/internal/adapter/ws"
)

// Chat is the interactive multi-turn mode: prompts are read line by line,
// and each turn's events are rendered as they stream in.
type Chat struct {
	client        *Client
	transcript    *Transcript
	in            io.Reader
	out           io.Writer
	historyWindow int
}

// NewChat creates an interactive chat over an open connection.
func NewChat(c *Client, in io.Reader, out io.Writer, historyWindow int) *Chat {
	return &Chat{
		client:        c,
		transcript:    NewTranscript(),
		in:            in,
		out:           out,
		historyWindow: historyWindow,
	}
}

// Run reads prompts until EOF, running one turn per prompt. It returns on
// input EOF, connection loss or context cancellation.
func (ch *Chat) Run(ctx context.Context) error {
	// The server greets with a connected event before the first prompt.
	msg, err := ch.client.Next(ctx)
	if err != nil {
		return err
	}
	ch.transcript.Apply(msg)
	if msg.Queued {
		fmt.Fprintf(ch.out, "session %s queued at position %d, waiting...\n", msg.SessionID, msg.QueuePosition)
	} else {
		fmt.Fprintf(ch.out, "session %s ready\n", msg.SessionID)
	}

	scanner := bufio.NewScanner(ch.in)
	for {
		fmt.Fprint(ch.out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		prompt := strings.TrimSpace(scanner.Text())
		if prompt == "" {
			continue
		}
		if prompt == "/quit" {
			return nil
		}

		history := ch.transcript.History(ch.historyWindow)
		ch.transcript.AddUserMessage(prompt)
		if err := ch.client.Send(ctx, prompt, history); err != nil {
			return err
		}
		if err := ch.runTurn(ctx); err != nil {
			return err
		}
	}
}

// runTurn renders events until the turn ends.
func (ch *Chat) runTurn(ctx context.Context) error {
	for {
		msg, err := ch.client.Next(ctx)
		if err != nil {
			return err
		}
		ch.transcript.Apply(msg)

		switch msg.Type {
		case ws.TypeAssistantMessage:
			fmt.Fprint(ch.out, msg.Content)
		case ws.TypeToolUse:
			if msg.ToolName != "" {
				fmt.Fprintf(ch.out, "\n[tool: %s]\n", msg.ToolName)
			}
		case ws.TypeToolResult:
			if msg.ToolResultIsError {
				fmt.Fprintf(ch.out, "[tool failed]\n")
			}
		case ws.TypeResult:
			fmt.Fprintf(ch.out, "\n(turn done, cost $%.4f, %dms)\n", msg.Cost, msg.Duration)
			return nil
		case ws.TypeError:
			fmt.Fprintf(ch.out, "error: %s\n", msg.Error)
			return nil
		case ws.TypeConnected:
			// Promotion from the wait queue.
			fmt.Fprintf(ch.out, "session %s ready\n", msg.SessionID)
		}
	}
}
