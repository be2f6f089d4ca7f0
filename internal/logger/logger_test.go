package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/helmsman-dev/helmsman/internal/config"
)

func TestNew(t *testing.T) {
	cfg := config.Logging{Level: "debug", Service: "test-svc"}
	l, closer := New(cfg)
	defer closer.Close()
	if l == nil {
		t.Fatal("expected non-nil logger")
	}
}

func TestNewAsync(t *testing.T) {
	cfg := config.Logging{Level: "debug", Service: "test-svc", Async: true}
	l, closer := New(cfg)
	if l == nil {
		t.Fatal("expected non-nil logger")
	}
	closer.Close()
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"debug", "DEBUG"},
		{"info", "INFO"},
		{"warn", "WARN"},
		{"warning", "WARN"},
		{"error", "ERROR"},
		{"unknown", "INFO"},
		{"", "INFO"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := parseLevel(tt.input).String()
			if got != tt.want {
				t.Errorf("parseLevel(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestAsyncHandlerDelivers(t *testing.T) {
	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, nil)
	h := NewAsyncHandler(inner, 16, 1)

	l := slog.New(h)
	l.Info("hello", "k", "v")
	h.Close()

	if !strings.Contains(buf.String(), "hello") {
		t.Errorf("expected record to be flushed, got %q", buf.String())
	}
}

func TestAsyncHandlerDropsWhenFull(t *testing.T) {
	// Zero workers: nothing drains the channel, so overflow must be counted.
	inner := slog.NewJSONHandler(&bytes.Buffer{}, nil)
	h := &AsyncHandler{
		inner:   inner,
		ch:      make(chan slog.Record, 1),
		wg:      &sync.WaitGroup{},
		dropped: &atomic.Int64{},
	}

	rec := slog.Record{}
	_ = h.Handle(context.Background(), rec)
	_ = h.Handle(context.Background(), rec)

	if h.DroppedCount() != 1 {
		t.Errorf("expected 1 dropped record, got %d", h.DroppedCount())
	}
}
