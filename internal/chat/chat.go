// ABOUTME: Transport-neutral chat boundary types for the bot
// ABOUTME: Defines Event, Sender, Conversation and the EventSource/Client interfaces

package chat

import (
	"context"
	"errors"
	"time"
)

// ErrSourceClosed is returned by EventSource.Next once the stream has ended.
var ErrSourceClosed = errors.New("event source closed")

// EventKind classifies an incoming event.
type EventKind string

// Event kinds delivered by an EventSource.
const (
	KindMessage    EventKind = "message"
	KindReaction   EventKind = "reaction"
	KindMembership EventKind = "membership"
)

// Sender identifies who produced an event.
type Sender struct {
	ID    string
	Name  string
	Admin bool
}

// Conversation identifies where an event happened.
type Conversation struct {
	ID      string
	Topic   string
	Private bool
}

// Event is one item of the incoming chat stream.
type Event struct {
	ID           string
	Kind         EventKind
	Sender       Sender
	Conversation Conversation
	Text         string
	Timestamp    time.Time
}

// EventSource is a blocking pull of chat events.
type EventSource interface {
	// Next blocks until an event arrives, ctx is done, or the source closes.
	Next(ctx context.Context) (Event, error)
}

// Client performs chat side effects.
type Client interface {
	SendMessage(ctx context.Context, conv Conversation, text string) error
	AddReaction(ctx context.Context, conv Conversation, messageID, emoji string) error
}

// Inviter is implemented by clients that can invite users into rooms.
type Inviter interface {
	Invite(ctx context.Context, room, userID string) error
}
