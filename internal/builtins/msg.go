// ABOUTME: msg plugin storing canned messages for later posting
// ABOUTME: Identifiers are lower-cased; bodies are kept verbatim

package builtins

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/2389/warden/internal/plugins"
	"github.com/2389/warden/internal/store"
)

// Msg manages cached messages.
type Msg struct {
	store store.MessageStore
}

// NewMsg creates the msg plugin.
func NewMsg(s store.MessageStore) *Msg {
	return &Msg{store: s}
}

// Descriptor implements plugins.Plugin.
func (m *Msg) Descriptor() plugins.Descriptor {
	return plugins.Descriptor{
		Name: "msg",
		Syntax: "msg add <identifier> <text>\n" +
			"  or msg send|remove <identifier>\n" +
			"  or msg list",
		Description: "Store a message for later use, send or delete a stored message " +
			"or list all stored messages. The text must be quoted but may contain line breaks. " +
			"The identifiers are handled case insensitively.",
		Privilege: plugins.PrivilegeAdmin,
	}
}

// Execute implements plugins.Plugin.
func (m *Msg) Execute(ctx context.Context, inv *plugins.Invocation) (plugins.Result, error) {
	if m.store == nil {
		return plugins.Result{}, errors.New("msg: no message store configured")
	}
	if len(inv.Args) == 0 {
		return usage(m.Descriptor()), nil
	}

	sub, args := strings.ToLower(inv.Args[0]), inv.Args[1:]
	if sub == "list" && len(args) == 0 {
		return m.list(ctx)
	}
	if len(args) == 0 {
		return usage(m.Descriptor()), nil
	}
	id := strings.ToLower(args[0])

	switch {
	case sub == "add" && len(args) >= 2:
		text := strings.Join(args[1:], " ")
		if err := m.store.PutCachedMessage(ctx, &store.CachedMessage{ID: id, Text: text}); err != nil {
			return plugins.Result{}, err
		}
		return plugins.React(OKEmoji), nil

	case sub == "send" && len(args) == 1:
		msg, err := m.store.GetCachedMessage(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return plugins.Failure(fmt.Sprintf("No message is stored under %q.", id), err), nil
		}
		if err != nil {
			return plugins.Result{}, err
		}
		return plugins.Reply(msg.Text), nil

	case sub == "remove" && len(args) == 1:
		err := m.store.DeleteCachedMessage(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return plugins.Failure(fmt.Sprintf("No message is stored under %q.", id), err), nil
		}
		if err != nil {
			return plugins.Result{}, err
		}
		return plugins.React(OKEmoji), nil
	}

	return usage(m.Descriptor()), nil
}

func (m *Msg) list(ctx context.Context) (plugins.Result, error) {
	msgs, err := m.store.ListCachedMessages(ctx)
	if err != nil {
		return plugins.Result{}, err
	}
	if len(msgs) == 0 {
		return plugins.Reply("No messages are stored."), nil
	}

	var b strings.Builder
	b.WriteString("***List of Identifiers and Messages***\n")
	for _, msg := range msgs {
		fmt.Fprintf(&b, "\n--------\nTitle: **%s**\n%s", msg.ID, msg.Text)
	}
	return plugins.Reply(b.String()), nil
}
