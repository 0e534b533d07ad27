package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestNotifier(t *testing.T) {
	t.Run("delivers queued messages before close returns", func(t *testing.T) {
		sender := &recordingSender{}
		notifier := NewNotifier(sender, 10, time.Second)

		notifier.Enqueue(Message{To: "a@x.com"})
		notifier.Enqueue(Message{To: "b@x.com"})

		if err := notifier.Close(context.Background()); err != nil {
			t.Fatalf("close failed: %v", err)
		}
		if got := len(sender.messages()); got != 2 {
			t.Fatalf("expected 2 delivered messages, got %d", got)
		}
	})

	t.Run("failures do not stop the worker", func(t *testing.T) {
		sender := &recordingSender{err: errors.New("smtp down")}
		notifier := NewNotifier(sender, 10, time.Second)

		notifier.Enqueue(Message{To: "a@x.com"})
		notifier.Enqueue(Message{To: "b@x.com"})

		if err := notifier.Close(context.Background()); err != nil {
			t.Fatalf("close failed: %v", err)
		}
		if sender.calls != 2 {
			t.Fatalf("expected both sends attempted, got %d", sender.calls)
		}
	})

	t.Run("drops messages when the queue is full", func(t *testing.T) {
		sender := &recordingSender{block: make(chan struct{})}
		notifier := NewNotifier(sender, 1, time.Second)

		accepted := 0
		for i := 0; i < 5; i++ {
			if notifier.Enqueue(Message{To: "a@x.com"}) {
				accepted++
			}
		}
		close(sender.block)

		if accepted > 2 || accepted == 0 {
			t.Fatalf("expected at most worker plus queue capacity accepted, got %d", accepted)
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := notifier.Close(ctx); err != nil {
			t.Fatalf("close failed: %v", err)
		}
	})

	t.Run("enqueue after close is refused", func(t *testing.T) {
		sender := &recordingSender{}
		notifier := NewNotifier(sender, 10, time.Second)

		if err := notifier.Close(context.Background()); err != nil {
			t.Fatalf("close failed: %v", err)
		}

		defer func() {
			if r := recover(); r != nil {
				t.Fatalf("enqueue after close panicked: %v", r)
			}
		}()
		if notifier.Enqueue(Message{To: "late@x.com"}) {
			t.Fatal("expected message to be refused after close")
		}
		if err := notifier.Close(context.Background()); err != nil {
			t.Fatalf("second close failed: %v", err)
		}
		if got := len(sender.messages()); got != 0 {
			t.Fatalf("expected nothing delivered, got %d", got)
		}
	})
}

func TestMessageTemplates(t *testing.T) {
	joined := DiscussionJoinedMessage("ann@x.com", "<1984>", time.Date(2025, 1, 2, 18, 0, 0, 0, time.UTC), "https://meet.test/1")
	if joined.To != "ann@x.com" || !strings.Contains(joined.Subject, "<1984>") {
		t.Fatalf("unexpected joined message %+v", joined)
	}
	if strings.Contains(joined.HTML, "<1984>") {
		t.Fatal("expected title to be escaped in html body")
	}

	reset := PasswordResetMessage("ann@x.com", "https://app.test/reset?token=abc", time.Hour)
	if !strings.Contains(reset.Text, "token=abc") {
		t.Fatalf("expected link in reset message, got %q", reset.Text)
	}
}
