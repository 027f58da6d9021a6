// ABOUTME: Listener loop that classifies chat events and dispatches work to the pool
// ABOUTME: Alert phrases become reaction tasks; addressed text becomes command tasks

package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/2389/warden/internal/alerts"
	"github.com/2389/warden/internal/chat"
	"github.com/2389/warden/internal/dedupe"
	"github.com/2389/warden/internal/plugins"
	"github.com/2389/warden/internal/worker"
)

// DefaultShutdownGrace is used when Options.ShutdownGrace is zero.
const DefaultShutdownGrace = 10 * time.Second

const (
	taskKindReaction = "reaction"
	taskKindCommand  = "command"

	errorReplyMsg = "Sorry, %s, an error occurred while executing your request."
)

// ErrDelivery marks a failure to deliver a result to the chat service.
var ErrDelivery = errors.New("delivering result")

// ExecutionError is a plugin that failed or panicked while executing.
type ExecutionError struct {
	Plugin       string
	InvocationID string
	Err          error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("plugin %s failed: %v", e.Plugin, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Options wires a Bot to its collaborators.
type Options struct {
	// Self is the bot's own user ID; its events are ignored.
	Self string
	// MentionPrefixes address a message to the bot in group conversations.
	MentionPrefixes []string
	ShutdownGrace   time.Duration

	Source  chat.EventSource
	Client  chat.Client
	Router  *plugins.Router
	Matcher *alerts.Matcher
	Pool    *worker.Pool
	// Dedupe is optional; without it every event is processed.
	Dedupe *dedupe.Filter
	Logger *slog.Logger
}

// Bot is the event-dispatch engine.
type Bot struct {
	self     string
	prefixes []string
	grace    time.Duration

	source  chat.EventSource
	client  chat.Client
	router  *plugins.Router
	matcher *alerts.Matcher
	pool    *worker.Pool
	dedupe  *dedupe.Filter
	logger  *slog.Logger
}

// New creates a Bot.
func New(opts Options) (*Bot, error) {
	switch {
	case opts.Source == nil:
		return nil, errors.New("bot: event source required")
	case opts.Client == nil:
		return nil, errors.New("bot: chat client required")
	case opts.Router == nil:
		return nil, errors.New("bot: router required")
	case opts.Matcher == nil:
		return nil, errors.New("bot: alert matcher required")
	case opts.Pool == nil:
		return nil, errors.New("bot: worker pool required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	grace := opts.ShutdownGrace
	if grace <= 0 {
		grace = DefaultShutdownGrace
	}

	var prefixes []string
	for _, p := range opts.MentionPrefixes {
		if p = strings.TrimSpace(p); p != "" {
			prefixes = append(prefixes, strings.ToLower(p))
		}
	}

	return &Bot{
		self:     opts.Self,
		prefixes: prefixes,
		grace:    grace,
		source:   opts.Source,
		client:   opts.Client,
		router:   opts.Router,
		matcher:  opts.Matcher,
		pool:     opts.Pool,
		dedupe:   opts.Dedupe,
		logger:   logger.With("component", "bot"),
	}, nil
}

// Run pulls events until ctx is cancelled or the source closes, then
// drains the pool for the shutdown grace period. Tasks still running after
// that are abandoned.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info("bot listening", "workers", b.pool.Size())

	runErr := b.loop(ctx)

	abandoned := b.pool.Shutdown(b.grace)
	if abandoned > 0 {
		b.logger.Warn("tasks abandoned at shutdown", "count", abandoned)
	}
	b.logger.Info("bot stopped")
	return runErr
}

func (b *Bot) loop(ctx context.Context) error {
	for {
		ev, err := b.source.Next(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, chat.ErrSourceClosed) {
				return nil
			}
			return fmt.Errorf("reading events: %w", err)
		}

		if err := b.Handle(ctx, ev); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// Handle classifies one event and submits the resulting tasks. It blocks
// while the pool is saturated. Only a failed Submit is returned.
func (b *Bot) Handle(ctx context.Context, ev chat.Event) error {
	if ev.Kind != chat.KindMessage {
		b.logger.Debug("ignoring event", "event_id", ev.ID, "kind", ev.Kind)
		return nil
	}
	if b.self != "" && ev.Sender.ID == b.self {
		return nil
	}
	if b.dedupe != nil && b.dedupe.Seen(ev.ID) {
		b.logger.Debug("dropping duplicate event", "event_id", ev.ID)
		return nil
	}

	seen := make(map[string]bool)
	for _, m := range b.matcher.Match(ev.Text) {
		if seen[m.Emoji] {
			continue
		}
		seen[m.Emoji] = true
		if err := b.pool.Submit(ctx, b.reactionTask(ev, m)); err != nil {
			return fmt.Errorf("submitting reaction: %w", err)
		}
	}

	text, ok := b.addressed(ev)
	if !ok {
		return nil
	}

	route := b.router.Route(text, plugins.Context{
		Sender:       ev.Sender,
		Conversation: ev.Conversation,
		MessageID:    ev.ID,
		Timestamp:    ev.Timestamp,
	})
	if err := b.pool.Submit(ctx, b.commandTask(ev, route)); err != nil {
		return fmt.Errorf("submitting command: %w", err)
	}
	return nil
}

// addressed returns the command text if ev is directed at the bot: every
// message in a private conversation, or a group message that starts with
// a mention prefix. The mention is stripped.
func (b *Bot) addressed(ev chat.Event) (string, bool) {
	text := strings.TrimSpace(ev.Text)
	if ev.Conversation.Private {
		return text, true
	}

	lower := strings.ToLower(text)
	for _, p := range b.prefixes {
		if !strings.HasPrefix(lower, p) {
			continue
		}
		rest := text[len(p):]
		if rest != "" {
			r := []rune(rest)[0]
			if !unicode.IsSpace(r) && r != ':' && r != ',' {
				continue
			}
		}
		return strings.TrimLeftFunc(rest, func(r rune) bool {
			return unicode.IsSpace(r) || r == ':' || r == ','
		}), true
	}
	return "", false
}

func (b *Bot) reactionTask(ev chat.Event, m alerts.Match) worker.Task {
	return worker.Task{
		ID:   ev.ID + ":" + m.Emoji,
		Kind: taskKindReaction,
		Run: func(ctx context.Context) error {
			b.logger.Debug("alert phrase matched",
				"event_id", ev.ID,
				"phrase", m.Phrase,
				"emoji", m.Emoji,
			)
			if err := b.client.AddReaction(ctx, ev.Conversation, ev.ID, m.Emoji); err != nil {
				return fmt.Errorf("%w: reacting %s to %s: %w", ErrDelivery, m.Emoji, ev.ID, err)
			}
			return nil
		},
	}
}

func (b *Bot) commandTask(ev chat.Event, route *plugins.Route) worker.Task {
	inv := route.Invocation
	return worker.Task{
		ID:   inv.ID,
		Kind: taskKindCommand,
		Run: func(ctx context.Context) error {
			res, err := b.router.Execute(ctx, route)
			if err != nil {
				return &ExecutionError{Plugin: route.Name(), InvocationID: inv.ID, Err: err}
			}
			return b.deliver(ctx, ev, route, res)
		},
		OnFailure: func(err error) {
			b.commandFailed(ev, route, err)
		},
	}
}

// deliver turns a plugin result into its chat side effect.
func (b *Bot) deliver(ctx context.Context, ev chat.Event, route *plugins.Route, res plugins.Result) error {
	var err error
	switch res.Kind {
	case plugins.KindReply:
		err = b.client.SendMessage(ctx, ev.Conversation, res.Text)
	case plugins.KindReact:
		err = b.client.AddReaction(ctx, ev.Conversation, ev.ID, res.Emoji)
	case plugins.KindFailure:
		b.logger.Warn("command failed",
			"command", route.Name(),
			"invocation_id", route.Invocation.ID,
			"sender", ev.Sender.ID,
			"error", res.Err,
		)
		if res.Text != "" {
			err = b.client.SendMessage(ctx, ev.Conversation, res.Text)
		}
	case plugins.KindNoAction:
	}

	if err != nil {
		return fmt.Errorf("%w: %s result of %s: %w", ErrDelivery, res.Kind, route.Name(), err)
	}
	return nil
}

// commandFailed tells the sender a command broke. Delivery failures are
// only logged by the pool; replying would likely fail the same way.
func (b *Bot) commandFailed(ev chat.Event, route *plugins.Route, err error) {
	if errors.Is(err, ErrDelivery) {
		return
	}

	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		execErr = &ExecutionError{Plugin: route.Name(), InvocationID: route.Invocation.ID, Err: err}
	}
	b.logger.Error("plugin execution failed",
		"plugin", execErr.Plugin,
		"invocation_id", execErr.InvocationID,
		"error", execErr.Err,
	)

	name := ev.Sender.Name
	if name == "" {
		name = ev.Sender.ID
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := b.client.SendMessage(ctx, ev.Conversation, fmt.Sprintf(errorReplyMsg, name)); err != nil {
		b.logger.Warn("failed to send error reply", "invocation_id", execErr.InvocationID, "error", err)
	}
}
