package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"clarus_vitae/internal/adapters/memory"
	"clarus_vitae/internal/domain"
)

func recv(t *testing.T, ch <-chan domain.StorageEvent) domain.StorageEvent {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if !ok {
			t.Fatal("channel closed")
		}
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event")
	}
	return domain.StorageEvent{}
}

func TestSession_GetSetIsolated(t *testing.T) {
	s := memory.NewSessionStore()
	ctx := context.Background()
	a := s.Open("s1", "tab-a")
	b := s.Open("s1", "tab-b")
	other := s.Open("s2", "tab-a")

	if _, ok, _ := a.Get(ctx, "k"); ok {
		t.Fatal("unexpected value")
	}
	if err := a.Set(ctx, "k", "v1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if v, ok, _ := b.Get(ctx, "k"); !ok || v != "v1" {
		t.Fatalf("same session: %q %v", v, ok)
	}
	if _, ok, _ := other.Get(ctx, "k"); ok {
		t.Fatal("leaked across sessions")
	}
}

func TestSession_WatchSkipsOwnContext(t *testing.T) {
	s := memory.NewSessionStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := s.Open("s1", "tab-a")
	b := s.Open("s1", "tab-b")
	ch, err := a.Watch(ctx, "k")
	if err != nil {
		t.Fatalf("watch: %v", err)
	}

	if err := a.Set(ctx, "k", "mine"); err != nil {
		t.Fatal(err)
	}
	if err := b.Set(ctx, "k", "theirs"); err != nil {
		t.Fatal(err)
	}
	ev := recv(t, ch)
	if ev.Value == nil || *ev.Value != "theirs" || ev.Origin != "tab-b" {
		t.Fatalf("event: %+v", ev)
	}
	select {
	case ev := <-ch:
		t.Fatalf("extra event: %+v", ev)
	default:
	}
}

func TestSession_DropNotifiesWithNilValue(t *testing.T) {
	s := memory.NewSessionStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, _ := s.Open("s1", "tab-a").Watch(ctx, "k")
	s.Put("s1", "k", "v", "tab-b")
	if ev := recv(t, ch); ev.Value == nil {
		t.Fatal("put should carry a value")
	}
	s.Drop("s1", "k")
	if ev := recv(t, ch); ev.Value != nil {
		t.Fatalf("drop: %+v", ev)
	}
}

func TestSession_WatchClosesOnCancel(t *testing.T) {
	s := memory.NewSessionStore()
	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := s.Open("s1", "tab-a").Watch(ctx, "k")
	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected close")
		}
	case <-time.After(time.Second):
		t.Fatal("watch did not close")
	}
	// writes after close must not panic
	s.Put("s1", "k", "v", "tab-b")
}

func TestSession_FailWrites(t *testing.T) {
	s := memory.NewSessionStore()
	ctx := context.Background()
	h := s.Open("s1", "tab-a")
	boom := errors.New("quota")

	s.FailWrites(boom)
	if err := h.Set(ctx, "k", "v"); !errors.Is(err, boom) {
		t.Fatalf("err: %v", err)
	}
	s.FailWrites(nil)
	if err := h.Set(ctx, "k", "v"); err != nil {
		t.Fatalf("err: %v", err)
	}
}

func TestTTLStore_ExpiryAndSweep(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := memory.NewTTLStore().WithClock(func() time.Time { return now })
	ctx := context.Background()

	if err := s.Set(ctx, "short", map[string]int{"n": 1}, time.Minute); err != nil {
		t.Fatal(err)
	}
	if err := s.Set(ctx, "long", "x", time.Hour); err != nil {
		t.Fatal(err)
	}

	var got map[string]int
	if ok, err := s.Get(ctx, "short", &got); !ok || err != nil || got["n"] != 1 {
		t.Fatalf("get: %v %v %v", ok, err, got)
	}

	now = now.Add(time.Minute)
	if ok, _ := s.Get(ctx, "short", &got); ok {
		t.Fatal("expired entry visible")
	}
	if s.Len() != 2 {
		t.Fatalf("len before sweep: %d", s.Len())
	}
	n, err := s.SweepExpired(ctx)
	if err != nil || n != 1 || s.Len() != 1 {
		t.Fatalf("sweep: n=%d err=%v len=%d", n, err, s.Len())
	}

	_ = s.Delete(ctx, "long")
	if s.Len() != 0 {
		t.Fatalf("len after delete: %d", s.Len())
	}
}
