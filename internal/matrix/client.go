// ABOUTME: Matrix adapter implementing the chat EventSource, Client and Inviter
// ABOUTME: Sync runs in the background and feeds a bounded event channel

package matrix

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/2389/warden/internal/chat"
)

// defaultBuffer is the event channel capacity when Options.Buffer is zero.
const defaultBuffer = 64

// Options configures a Client.
type Options struct {
	Homeserver  string
	UserID      string
	AccessToken string
	DisplayName string
	Admins      []string
	AutoJoin    bool
	// Buffer is the event channel capacity. A full channel blocks sync.
	Buffer int
	Logger *slog.Logger
}

// Client connects the bot to a Matrix homeserver.
type Client struct {
	mx          *mautrix.Client
	self        id.UserID
	displayName string
	admins      map[id.UserID]bool
	autoJoin    bool
	logger      *slog.Logger

	events    chan chat.Event
	closeOnce sync.Once
	// started filters out history replayed by the initial sync.
	started time.Time

	membersMu sync.Mutex
	members   map[id.RoomID]int // joined member count per room
}

// New creates a Client. Nothing is contacted until Run.
func New(opts Options) (*Client, error) {
	mx, err := mautrix.NewClient(opts.Homeserver, id.UserID(opts.UserID), opts.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("creating matrix client: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = defaultBuffer
	}

	admins := make(map[id.UserID]bool, len(opts.Admins))
	for _, a := range opts.Admins {
		admins[id.UserID(a)] = true
	}

	return &Client{
		mx:          mx,
		self:        id.UserID(opts.UserID),
		displayName: opts.DisplayName,
		admins:      admins,
		autoJoin:    opts.AutoJoin,
		logger:      logger.With("component", "matrix"),
		events:      make(chan chat.Event, buffer),
		members:     make(map[id.RoomID]int),
	}, nil
}

// Mautrix returns the underlying client, used to attach encryption.
func (c *Client) Mautrix() *mautrix.Client {
	return c.mx
}

// Run syncs with the homeserver until ctx is cancelled. When it returns
// the event stream is closed.
func (c *Client) Run(ctx context.Context) error {
	defer c.closeOnce.Do(func() { close(c.events) })

	syncer, ok := c.mx.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return fmt.Errorf("unexpected syncer type: %T", c.mx.Syncer)
	}
	syncer.OnEventType(event.EventMessage, c.handleEvent)
	syncer.OnEventType(event.EventReaction, c.handleEvent)
	syncer.OnEventType(event.StateMember, c.handleMember)

	c.started = time.Now()

	if c.displayName != "" {
		if err := c.mx.SetDisplayName(ctx, c.displayName); err != nil {
			c.logger.Warn("failed to set display name", "error", err)
		}
	}

	c.logger.Info("connecting to matrix homeserver", "homeserver", c.mx.HomeserverURL.String(), "user_id", c.self)

	err := c.mx.SyncWithContext(ctx)
	if err == nil || ctx.Err() != nil {
		c.logger.Info("matrix sync stopped")
		return nil
	}
	return fmt.Errorf("matrix sync failed: %w", err)
}

// Next implements chat.EventSource.
func (c *Client) Next(ctx context.Context) (chat.Event, error) {
	select {
	case ev, ok := <-c.events:
		if !ok {
			return chat.Event{}, chat.ErrSourceClosed
		}
		return ev, nil
	case <-ctx.Done():
		return chat.Event{}, ctx.Err()
	}
}

func (c *Client) handleEvent(ctx context.Context, evt *event.Event) {
	if evt.Sender == c.self {
		return
	}
	if time.UnixMilli(evt.Timestamp).Before(c.started.Add(-time.Second)) {
		c.logger.Debug("skipping event from before startup", "event_id", evt.ID)
		return
	}

	ev, ok := convertEvent(evt, c.admins)
	if !ok {
		return
	}
	if ev.Kind == chat.KindMessage {
		ev.Conversation.Private = c.isPrivate(ctx, evt.RoomID)
	}
	c.push(ctx, ev)
}

func (c *Client) handleMember(ctx context.Context, evt *event.Event) {
	c.forgetMembers(evt.RoomID)

	member := evt.Content.AsMember()
	if evt.GetStateKey() == c.self.String() && member.Membership == event.MembershipInvite && c.autoJoin {
		c.logger.Info("joining room on invite", "room", evt.RoomID, "inviter", evt.Sender)
		if _, err := c.mx.JoinRoomByID(ctx, evt.RoomID); err != nil {
			c.logger.Error("failed to join room", "room", evt.RoomID, "error", err)
		}
	}

	if ev, ok := convertEvent(evt, c.admins); ok {
		c.push(ctx, ev)
	}
}

// push blocks while the channel is full. Events are never dropped.
func (c *Client) push(ctx context.Context, ev chat.Event) {
	select {
	case c.events <- ev:
	case <-ctx.Done():
	}
}

// isPrivate reports whether a room has exactly two joined members.
func (c *Client) isPrivate(ctx context.Context, roomID id.RoomID) bool {
	c.membersMu.Lock()
	n, ok := c.members[roomID]
	c.membersMu.Unlock()
	if ok {
		return n == 2
	}

	resp, err := c.mx.JoinedMembers(ctx, roomID)
	if err != nil {
		c.logger.Warn("failed to fetch joined members", "room", roomID, "error", err)
		return false
	}

	c.membersMu.Lock()
	c.members[roomID] = len(resp.Joined)
	c.membersMu.Unlock()
	return len(resp.Joined) == 2
}

func (c *Client) forgetMembers(roomID id.RoomID) {
	c.membersMu.Lock()
	delete(c.members, roomID)
	c.membersMu.Unlock()
}

// SendMessage implements chat.Client. The text is sent as Markdown with an
// HTML rendering attached.
func (c *Client) SendMessage(ctx context.Context, conv chat.Conversation, text string) error {
	content := &event.MessageEventContent{
		MsgType: event.MsgText,
		Body:    text,
	}
	if html, err := renderMarkdown(text); err != nil {
		c.logger.Warn("failed to render markdown", "error", err)
	} else if html != "" {
		content.Format = event.FormatHTML
		content.FormattedBody = html
	}

	if _, err := c.mx.SendMessageEvent(ctx, id.RoomID(conv.ID), event.EventMessage, content); err != nil {
		return fmt.Errorf("sending message to %s: %w", conv.ID, err)
	}
	return nil
}

// AddReaction implements chat.Client.
func (c *Client) AddReaction(ctx context.Context, conv chat.Conversation, messageID, emoji string) error {
	if _, err := c.mx.SendReaction(ctx, id.RoomID(conv.ID), id.EventID(messageID), emoji); err != nil {
		return fmt.Errorf("reacting to %s: %w", messageID, err)
	}
	return nil
}

// Invite implements chat.Inviter. room is a room ID or a #alias.
func (c *Client) Invite(ctx context.Context, room, userID string) error {
	roomID, err := c.resolveRoom(ctx, room)
	if err != nil {
		return err
	}

	_, err = c.mx.InviteUser(ctx, roomID, &mautrix.ReqInviteUser{UserID: id.UserID(userID)})
	if err != nil {
		return fmt.Errorf("inviting %s to %s: %w", userID, room, err)
	}
	c.logger.Info("invited user", "room", roomID, "user_id", userID)
	return nil
}

func (c *Client) resolveRoom(ctx context.Context, room string) (id.RoomID, error) {
	switch {
	case strings.HasPrefix(room, "!"):
		return id.RoomID(room), nil
	case strings.HasPrefix(room, "#"):
		resp, err := c.mx.ResolveAlias(ctx, id.RoomAlias(room))
		if err != nil {
			return "", fmt.Errorf("resolving %s: %w", room, err)
		}
		return resp.RoomID, nil
	default:
		return "", fmt.Errorf("%q is neither a room ID nor an alias", room)
	}
}

// convertEvent maps a Matrix event onto the chat boundary. Edits, notices
// and non-text messages are dropped.
func convertEvent(evt *event.Event, admins map[id.UserID]bool) (chat.Event, bool) {
	ev := chat.Event{
		ID: evt.ID.String(),
		Sender: chat.Sender{
			ID:    evt.Sender.String(),
			Name:  localpart(evt.Sender),
			Admin: admins[evt.Sender],
		},
		Conversation: chat.Conversation{ID: evt.RoomID.String()},
		Timestamp:    time.UnixMilli(evt.Timestamp),
	}

	switch evt.Type.Type {
	case event.EventMessage.Type:
		msg := evt.Content.AsMessage()
		if msg.MsgType != event.MsgText && msg.MsgType != event.MsgEmote {
			return chat.Event{}, false
		}
		if msg.RelatesTo != nil && msg.RelatesTo.Type == event.RelReplace {
			return chat.Event{}, false
		}
		ev.Kind = chat.KindMessage
		ev.Text = msg.Body

	case event.EventReaction.Type:
		reaction := evt.Content.AsReaction()
		ev.Kind = chat.KindReaction
		ev.Text = reaction.RelatesTo.Key

	case event.StateMember.Type:
		ev.Kind = chat.KindMembership
		ev.Text = string(evt.Content.AsMember().Membership)

	default:
		return chat.Event{}, false
	}

	return ev, true
}

// localpart returns "alice" for "@alice:example.org".
func localpart(userID id.UserID) string {
	local, _, err := userID.Parse()
	if err != nil || local == "" {
		return userID.String()
	}
	return local
}

var (
	_ chat.EventSource = (*Client)(nil)
	_ chat.Client      = (*Client)(nil)
	_ chat.Inviter     = (*Client)(nil)
)
