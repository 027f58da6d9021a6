// ABOUTME: In-memory EventSource and recording Client
// ABOUTME: Used by tests and by local dry runs without a chat server

package chat

import (
	"context"
	"sync"
)

// ChanSource is an EventSource fed through a channel.
type ChanSource struct {
	events chan Event
	once   sync.Once
}

// NewChanSource creates a ChanSource with the given buffer size.
func NewChanSource(buffer int) *ChanSource {
	return &ChanSource{events: make(chan Event, buffer)}
}

// Push enqueues an event, blocking while the buffer is full.
func (s *ChanSource) Push(ctx context.Context, ev Event) error {
	select {
	case s.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close ends the stream; Next returns ErrSourceClosed once drained.
func (s *ChanSource) Close() {
	s.once.Do(func() { close(s.events) })
}

// Next implements EventSource.
func (s *ChanSource) Next(ctx context.Context) (Event, error) {
	select {
	case ev, ok := <-s.events:
		if !ok {
			return Event{}, ErrSourceClosed
		}
		return ev, nil
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

// SentMessage records one SendMessage call.
type SentMessage struct {
	Conversation Conversation
	Text         string
}

// SentReaction records one AddReaction call.
type SentReaction struct {
	Conversation Conversation
	MessageID    string
	Emoji        string
}

// Invitation records one Invite call.
type Invitation struct {
	Room   string
	UserID string
}

// RecordingClient is a Client and Inviter that records every call.
type RecordingClient struct {
	mu          sync.Mutex
	messages    []SentMessage
	reactions   []SentReaction
	invitations []Invitation

	// Err, when set, is returned from every call after recording it.
	Err error
}

// SendMessage implements Client.
func (c *RecordingClient) SendMessage(ctx context.Context, conv Conversation, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, SentMessage{Conversation: conv, Text: text})
	return c.Err
}

// AddReaction implements Client.
func (c *RecordingClient) AddReaction(ctx context.Context, conv Conversation, messageID, emoji string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reactions = append(c.reactions, SentReaction{Conversation: conv, MessageID: messageID, Emoji: emoji})
	return c.Err
}

// Invite implements Inviter.
func (c *RecordingClient) Invite(ctx context.Context, room, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invitations = append(c.invitations, Invitation{Room: room, UserID: userID})
	return c.Err
}

// Messages returns a copy of the recorded messages.
func (c *RecordingClient) Messages() []SentMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]SentMessage(nil), c.messages...)
}

// Reactions returns a copy of the recorded reactions.
func (c *RecordingClient) Reactions() []SentReaction {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]SentReaction(nil), c.reactions...)
}

// Invitations returns a copy of the recorded invitations.
func (c *RecordingClient) Invitations() []Invitation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Invitation(nil), c.invitations...)
}

var (
	_ EventSource = (*ChanSource)(nil)
	_ Client      = (*RecordingClient)(nil)
	_ Inviter     = (*RecordingClient)(nil)
)
