// ABOUTME: subscribe plugin inviting the sender into rooms

package builtins

import (
	"context"
	"errors"
	"fmt"

	"github.com/2389/warden/internal/chat"
	"github.com/2389/warden/internal/plugins"
)

// Subscribe invites the sender into the named rooms.
type Subscribe struct {
	inviter chat.Inviter
}

// NewSubscribe creates the subscribe plugin. A nil inviter makes every
// invocation fail.
func NewSubscribe(inviter chat.Inviter) *Subscribe {
	return &Subscribe{inviter: inviter}
}

// Descriptor implements plugins.Plugin.
func (s *Subscribe) Descriptor() plugins.Descriptor {
	return plugins.Descriptor{
		Name:    "subscribe",
		Aliases: []string{"sub"},
		Syntax:  "subscribe <room> [<room> ...]",
		Description: "Invite yourself into every listed room. Rooms may be given by ID " +
			"(`!abc:server`) or alias (`#general:server`). The bot must be allowed to invite there.",
		Privilege: plugins.PrivilegeAdmin,
	}
}

// Execute implements plugins.Plugin.
func (s *Subscribe) Execute(ctx context.Context, inv *plugins.Invocation) (plugins.Result, error) {
	if s.inviter == nil {
		return plugins.Result{}, errors.New("subscribe: chat client cannot invite")
	}
	if len(inv.Args) == 0 {
		return usage(s.Descriptor()), nil
	}

	var errs []error
	for _, room := range inv.Args {
		if err := s.inviter.Invite(ctx, room, inv.Sender.ID); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", room, err))
		}
	}
	if len(errs) > 0 {
		err := errors.Join(errs...)
		return plugins.Failure(fmt.Sprintf("Some invitations failed:\n%v", err), err), nil
	}
	return plugins.React(OKEmoji), nil
}
