// ABOUTME: Tests for the in-memory chat source and recording client

package chat

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestChanSource_DeliversThenCloses(t *testing.T) {
	ctx := context.Background()
	src := NewChanSource(2)

	if err := src.Push(ctx, Event{ID: "e1", Kind: KindMessage}); err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	src.Close()

	ev, err := src.Next(ctx)
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if ev.ID != "e1" {
		t.Errorf("expected e1, got %q", ev.ID)
	}

	if _, err := src.Next(ctx); !errors.Is(err, ErrSourceClosed) {
		t.Errorf("expected ErrSourceClosed, got %v", err)
	}
}

func TestChanSource_NextHonorsContext(t *testing.T) {
	src := NewChanSource(0)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := src.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestRecordingClient(t *testing.T) {
	ctx := context.Background()
	c := &RecordingClient{}
	conv := Conversation{ID: "!room"}

	_ = c.SendMessage(ctx, conv, "hi")
	_ = c.AddReaction(ctx, conv, "$ev", "🔧")
	_ = c.Invite(ctx, "#general", "@bob:example.org")

	if got := c.Messages(); len(got) != 1 || got[0].Text != "hi" {
		t.Errorf("unexpected messages: %+v", got)
	}
	if got := c.Reactions(); len(got) != 1 || got[0].Emoji != "🔧" {
		t.Errorf("unexpected reactions: %+v", got)
	}
	if got := c.Invitations(); len(got) != 1 || got[0].UserID != "@bob:example.org" {
		t.Errorf("unexpected invitations: %+v", got)
	}
}
