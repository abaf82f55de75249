package reminder

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/maya-florenko/imusic/internal/session"
	"github.com/maya-florenko/imusic/internal/telegram"
)

type fakeSender struct {
	mu      sync.Mutex
	blocked map[int64]bool
	typing  []int64
	sent    []int64
	nextID  int
}

func (s *fakeSender) Typing(_ context.Context, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.typing = append(s.typing, chatID)
	return nil
}

func (s *fakeSender) SendText(_ context.Context, chatID int64, _ telegram.Text) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.blocked[chatID] {
		return 0, errors.New("Forbidden: bot was blocked by the user")
	}
	s.nextID++
	s.sent = append(s.sent, chatID)
	return s.nextID, nil
}

func TestTickDeactivatesBlockedChat(t *testing.T) {
	sessions := session.NewManager()
	sessions.MarkActive(1)
	sessions.MarkActive(2)
	sender := &fakeSender{blocked: map[int64]bool{2: true}}

	l := New(Config{Interval: time.Hour, Text: "hi"}, sender, sessions)

	l.Tick(context.Background())

	if sessions.IsActive(2) {
		t.Fatal("blocked chat still active")
	}
	if !sessions.IsActive(1) {
		t.Fatal("reachable chat deactivated")
	}
	if got := sessions.Tracked(1); !reflect.DeepEqual(got, []int{1}) {
		t.Fatalf("tracked = %v, want [1]", got)
	}

	// The next tick only reaches chat 1.
	sender.typing = nil
	l.Tick(context.Background())
	if !reflect.DeepEqual(sender.typing, []int64{1}) {
		t.Fatalf("typing on second tick = %v, want [1]", sender.typing)
	}
	if !reflect.DeepEqual(sender.sent, []int64{1, 1}) {
		t.Fatalf("sent = %v, want [1 1]", sender.sent)
	}
}

func TestTickWaitsTypingDelay(t *testing.T) {
	sessions := session.NewManager()
	sessions.MarkActive(1)
	sender := &fakeSender{}

	l := New(Config{TypingDelay: 20 * time.Millisecond, Text: "hi"}, sender, sessions)

	start := time.Now()
	l.Tick(context.Background())
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Fatalf("tick took %v, want at least the typing delay", elapsed)
	}
}

func TestTickWaitsTypingDelaysConcurrently(t *testing.T) {
	sessions := session.NewManager()
	for id := int64(1); id <= 5; id++ {
		sessions.MarkActive(id)
	}
	sender := &fakeSender{}

	l := New(Config{TypingDelay: 100 * time.Millisecond, Text: "hi"}, sender, sessions)

	start := time.Now()
	l.Tick(context.Background())
	if elapsed := time.Since(start); elapsed >= 400*time.Millisecond {
		t.Fatalf("tick took %v, typing delays ran one after another", elapsed)
	}
	if len(sender.sent) != 5 {
		t.Fatalf("sent = %v, want 5 reminders", sender.sent)
	}
}

func TestTickCanceledKeepsChatsActive(t *testing.T) {
	sessions := session.NewManager()
	sessions.MarkActive(1)
	sender := &fakeSender{}

	l := New(Config{TypingDelay: time.Hour, Text: "hi"}, sender, sessions)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	l.Tick(ctx)

	if !sessions.IsActive(1) {
		t.Fatal("cancellation must not deactivate chats")
	}
	if len(sender.sent) != 0 {
		t.Fatalf("sent = %v, want none", sender.sent)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	l := New(Config{Interval: time.Millisecond, Text: "hi"}, &fakeSender{}, session.NewManager())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()

	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
