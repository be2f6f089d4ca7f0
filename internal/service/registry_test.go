package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/helmsman-dev/helmsman/internal/domain"
	"github.com/helmsman-dev/helmsman/internal/domain/session"
)

func newTestRegistry(limits session.Limits) (*Registry, *fakeEngine) {
	eng := &fakeEngine{}
	return NewRegistry(eng, limits, nil, nil), eng
}

func mustCreate(t *testing.T, r *Registry, dir, projectID string) *session.CreateResult {
	t.Helper()
	res, err := r.CreateSession(context.Background(), dir, session.Options{ProjectID: projectID})
	if err != nil {
		t.Fatalf("CreateSession(%s, %s): %v", dir, projectID, err)
	}
	return res
}

func TestRegistryGlobalLimit(t *testing.T) {
	r, _ := newTestRegistry(session.Limits{GlobalMax: 2, PerOwner: 2, QueueDepth: 10})

	a := mustCreate(t, r, "/a", "p1")
	b := mustCreate(t, r, "/b", "p2")
	if a.Queued || b.Queued {
		t.Fatal("expected first two sessions to start immediately")
	}

	c := mustCreate(t, r, "/c", "p3")
	if !c.Queued || c.QueuePosition != 1 {
		t.Fatalf("expected third session queued at position 1, got %+v", c)
	}
	if len(r.Sessions()) != 2 {
		t.Fatalf("expected 2 live sessions, got %d", len(r.Sessions()))
	}
}

func TestRegistryPerOwnerLimit(t *testing.T) {
	r, _ := newTestRegistry(session.Limits{GlobalMax: 5, PerOwner: 1, QueueDepth: 10})

	first := mustCreate(t, r, "/a", "p1")
	if first.Queued {
		t.Fatal("expected first session to start")
	}

	second := mustCreate(t, r, "/b", "p1")
	if !second.Queued {
		t.Fatal("expected second session for the same project to queue despite free global slots")
	}
}

func TestRegistryUnownedSessionsSkipOwnerLimit(t *testing.T) {
	r, _ := newTestRegistry(session.Limits{GlobalMax: 3, PerOwner: 1, QueueDepth: 10})

	for i := 0; i < 3; i++ {
		res := mustCreate(t, r, "/a", "")
		if res.Queued {
			t.Fatalf("expected unowned session %d to start", i)
		}
	}
}

func TestRegistryQueueFull(t *testing.T) {
	r, _ := newTestRegistry(session.Limits{GlobalMax: 1, PerOwner: 1, QueueDepth: 0})

	mustCreate(t, r, "/a", "p1")
	_, err := r.CreateSession(context.Background(), "/b", session.Options{ProjectID: "p2"})
	if !errors.Is(err, domain.ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
}

func TestRegistrySingleSlotScenario(t *testing.T) {
	r, _ := newTestRegistry(session.Limits{GlobalMax: 1, PerOwner: 1, QueueDepth: 1})

	first := mustCreate(t, r, "/a", "p1")
	if first.Queued || first.SessionID == "" {
		t.Fatalf("expected immediate start, got %+v", first)
	}

	second := mustCreate(t, r, "/b", "p2")
	if !second.Queued || second.QueuePosition != 1 {
		t.Fatalf("expected queued at position 1, got %+v", second)
	}

	if _, err := r.CreateSession(context.Background(), "/c", session.Options{ProjectID: "p3"}); !errors.Is(err, domain.ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}

	r.DestroySession(context.Background(), first.SessionID)

	if r.Get(second.SessionID) == nil {
		t.Fatal("expected second session to be promoted after destroy")
	}
	if len(r.Queue()) != 0 {
		t.Fatalf("expected empty queue, got %d entries", len(r.Queue()))
	}
}

func TestRegistryPromotionBlockedOwnerHaltsQueue(t *testing.T) {
	r, _ := newTestRegistry(session.Limits{GlobalMax: 2, PerOwner: 1, QueueDepth: 10})

	a1 := mustCreate(t, r, "/a1", "pA")
	c1 := mustCreate(t, r, "/c1", "pC")

	a2 := mustCreate(t, r, "/a2", "pA")
	b1 := mustCreate(t, r, "/b1", "pB")
	if !a2.Queued || !b1.Queued {
		t.Fatal("expected both later sessions to queue")
	}

	// pA is still saturated, so the front entry blocks the whole queue.
	r.DestroySession(context.Background(), c1.SessionID)
	if r.Get(a2.SessionID) != nil || r.Get(b1.SessionID) != nil {
		t.Fatal("expected no promotion while the front entry's owner is saturated")
	}
	queue := r.Queue()
	if len(queue) != 2 || queue[0].SessionID != a2.SessionID {
		t.Fatalf("expected front entry preserved, got %+v", queue)
	}

	// Freeing pA promotes the front entry and then the one behind it.
	r.DestroySession(context.Background(), a1.SessionID)
	if r.Get(a2.SessionID) == nil || r.Get(b1.SessionID) == nil {
		t.Fatal("expected both queued sessions promoted once the owner freed up")
	}
}

func TestRegistryPromotionOrderPreservedAcrossOwners(t *testing.T) {
	r, _ := newTestRegistry(session.Limits{GlobalMax: 1, PerOwner: 1, QueueDepth: 10})

	live := mustCreate(t, r, "/a0", "pA")
	a2 := mustCreate(t, r, "/a2", "pA")
	b := mustCreate(t, r, "/b", "pB")
	a3 := mustCreate(t, r, "/a3", "pA")

	if a2.QueuePosition != 1 || b.QueuePosition != 2 || a3.QueuePosition != 3 {
		t.Fatalf("unexpected queue positions: %d %d %d", a2.QueuePosition, b.QueuePosition, a3.QueuePosition)
	}

	r.DestroySession(context.Background(), live.SessionID)
	if r.Get(a2.SessionID) == nil {
		t.Fatal("expected first queued entry promoted")
	}
	queue := r.Queue()
	if len(queue) != 2 || queue[0].Position != 1 || queue[1].Position != 2 {
		t.Fatalf("expected positions recomputed to 1,2, got %+v", queue)
	}

	r.DestroySession(context.Background(), a2.SessionID)
	if r.Get(b.SessionID) == nil {
		t.Fatal("expected cross-owner entry promoted before the later same-owner entry")
	}
	if r.Get(a3.SessionID) != nil {
		t.Fatal("expected last entry to stay queued")
	}

	r.DestroySession(context.Background(), b.SessionID)
	if r.Get(a3.SessionID) == nil {
		t.Fatal("expected final entry promoted")
	}
}

func TestRegistryWatchStartFiresOnPromotion(t *testing.T) {
	r, _ := newTestRegistry(session.Limits{GlobalMax: 1, PerOwner: 1, QueueDepth: 10})

	first := mustCreate(t, r, "/a", "p1")
	second := mustCreate(t, r, "/b", "p2")

	promoted := make(chan *AgentSession, 1)
	r.WatchStart(second.SessionID, func(s *AgentSession) {
		promoted <- s
	})

	r.DestroySession(context.Background(), first.SessionID)

	select {
	case s := <-promoted:
		if s.ID() != second.SessionID {
			t.Errorf("watcher got session %s, want %s", s.ID(), second.SessionID)
		}
	case <-time.After(time.Second):
		t.Fatal("watcher was not invoked")
	}
}

func TestRegistryWatchStartFiresWhenAlreadyPromoted(t *testing.T) {
	r, _ := newTestRegistry(session.Limits{GlobalMax: 1, PerOwner: 1, QueueDepth: 10})

	first := mustCreate(t, r, "/a", "p1")
	second := mustCreate(t, r, "/b", "p2")

	// Promote before the watcher registers, as happens when another
	// connection's destroy lands between CreateSession and WatchStart.
	r.DestroySession(context.Background(), first.SessionID)
	if r.Get(second.SessionID) == nil {
		t.Fatal("expected second session to be live after promotion")
	}

	promoted := make(chan *AgentSession, 1)
	r.WatchStart(second.SessionID, func(s *AgentSession) {
		promoted <- s
	})

	select {
	case s := <-promoted:
		if s.ID() != second.SessionID {
			t.Errorf("watcher got session %s, want %s", s.ID(), second.SessionID)
		}
	case <-time.After(time.Second):
		t.Fatal("watcher was not invoked for an already-live session")
	}
}

func TestRegistrySessionInfo(t *testing.T) {
	r, _ := newTestRegistry(session.Limits{GlobalMax: 1, PerOwner: 1, QueueDepth: 10})

	live := mustCreate(t, r, "/a", "p1")
	queued := mustCreate(t, r, "/b", "p2")

	info, err := r.SessionInfo(live.SessionID)
	if err != nil {
		t.Fatalf("SessionInfo(live): %v", err)
	}
	if info.ID != live.SessionID || info.WorkingDir != "/a" || info.ProjectID != "p1" {
		t.Errorf("unexpected info %+v", info)
	}

	// A queued session is not live yet; an unknown id never was.
	if _, err := r.SessionInfo(queued.SessionID); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("SessionInfo(queued) = %v, want ErrSessionNotFound", err)
	}
	if _, err := r.SessionInfo("unknown"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("SessionInfo(unknown) = %v, want ErrSessionNotFound", err)
	}
}

func TestRegistryCancelQueued(t *testing.T) {
	r, _ := newTestRegistry(session.Limits{GlobalMax: 1, PerOwner: 1, QueueDepth: 10})

	first := mustCreate(t, r, "/a", "p1")
	second := mustCreate(t, r, "/b", "p2")
	third := mustCreate(t, r, "/c", "p3")

	if !r.CancelQueuedSession(context.Background(), second.SessionID) {
		t.Fatal("expected cancel of queued entry to succeed")
	}
	if r.CancelQueuedSession(context.Background(), first.SessionID) {
		t.Fatal("expected cancel of a running session to fail")
	}
	if r.CancelQueuedSession(context.Background(), "unknown") {
		t.Fatal("expected cancel of an unknown id to fail")
	}

	queue := r.Queue()
	if len(queue) != 1 || queue[0].SessionID != third.SessionID || queue[0].Position != 1 {
		t.Fatalf("expected remaining entry at position 1, got %+v", queue)
	}
}

func TestRegistryDestroyIdempotent(t *testing.T) {
	r, _ := newTestRegistry(session.Limits{GlobalMax: 1, PerOwner: 1, QueueDepth: 10})

	first := mustCreate(t, r, "/a", "p1")
	r.DestroySession(context.Background(), first.SessionID)
	r.DestroySession(context.Background(), first.SessionID)
	r.DestroySession(context.Background(), "unknown")
}

func TestRegistrySetLimitsPromotes(t *testing.T) {
	r, _ := newTestRegistry(session.Limits{GlobalMax: 1, PerOwner: 1, QueueDepth: 10})

	mustCreate(t, r, "/a", "p1")
	second := mustCreate(t, r, "/b", "p2")
	if !second.Queued {
		t.Fatal("expected second session to queue")
	}

	if err := r.SetLimits(context.Background(), session.Limits{GlobalMax: 2, PerOwner: 1, QueueDepth: 10}); err != nil {
		t.Fatalf("SetLimits: %v", err)
	}
	if r.Get(second.SessionID) == nil {
		t.Fatal("expected raised limit to promote the queued session")
	}

	if err := r.SetLimits(context.Background(), session.Limits{GlobalMax: 0, PerOwner: 1, QueueDepth: 1}); err == nil {
		t.Fatal("expected invalid limits to be rejected")
	}
}

func TestRegistryStartFailurePropagates(t *testing.T) {
	eng := &fakeEngine{startErr: errors.New("engine binary not found")}
	r := NewRegistry(eng, session.DefaultLimits(), nil, nil)

	if _, err := r.CreateSession(context.Background(), "/a", session.Options{}); err == nil {
		t.Fatal("expected engine start failure to propagate")
	}
	if len(r.Sessions()) != 0 {
		t.Fatal("expected no registered sessions after a failed start")
	}
}
