// Command helmsman-cli connects to a Helmsman server and drives one agent
// conversation: interactive multi-turn chat by default, or a single
// autonomous run when -prompt is given.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/helmsman-dev/helmsman/internal/client"
)

func main() {
	server := flag.String("server", "ws://localhost:8080", "server base URL")
	dir := flag.String("dir", ".", "working directory for the session")
	projectID := flag.String("project", "", "project id to bind the session to")
	taskID := flag.String("task", "", "task id to record turn progress against")
	prompt := flag.String("prompt", "", "run a single autonomous prompt instead of interactive chat")
	history := flag.Int("history", 20, "history window for interactive chat")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *server, *dir, *projectID, *taskID, *prompt, *history); err != nil {
		slog.Error("cli failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, server, dir, projectID, taskID, prompt string, history int) error {
	c, err := client.Dial(ctx, server, dir, projectID, taskID)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	if prompt != "" {
		return runAutonomous(ctx, c, prompt)
	}

	chat := client.NewChat(c, os.Stdin, os.Stdout, history)
	return chat.Run(ctx)
}

func runAutonomous(ctx context.Context, c *client.Client, prompt string) error {
	runner := client.NewRunner(c)

	text, err := runner.Run(ctx, prompt)
	progress := runner.Progress()

	fmt.Println(text)
	fmt.Fprintf(os.Stderr, "turns=%d tools=%s success=%v\n",
		progress.Turns, strings.Join(progress.SortedTools(), ","), progress.Success)

	return err
}
