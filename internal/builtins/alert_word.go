// ABOUTME: alert_word plugin managing alert phrase to emoji bindings
// ABOUTME: Writes go through the matcher so new phrases apply without a restart

package builtins

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/2389/warden/internal/alerts"
	"github.com/2389/warden/internal/plugins"
	"github.com/2389/warden/internal/store"
)

// AlertWord manages alert phrases.
type AlertWord struct {
	matcher *alerts.Matcher
}

// NewAlertWord creates the alert_word plugin.
func NewAlertWord(matcher *alerts.Matcher) *AlertWord {
	return &AlertWord{matcher: matcher}
}

// Descriptor implements plugins.Plugin.
func (a *AlertWord) Descriptor() plugins.Descriptor {
	return plugins.Descriptor{
		Name: "alert_word",
		Syntax: "alert_word add '<alert phrase>' <emoji>\n" +
			"  or alert_word remove '<alert phrase>'\n" +
			"  or alert_word list",
		Description: "Add an alert phrase together with the emoji the bot should use to react " +
			"on messages containing it. Phrases match case-insensitively anywhere in a message " +
			"and take effect immediately.",
		Privilege: plugins.PrivilegeAdmin,
	}
}

// Execute implements plugins.Plugin.
func (a *AlertWord) Execute(ctx context.Context, inv *plugins.Invocation) (plugins.Result, error) {
	if a.matcher == nil {
		return plugins.Result{}, errors.New("alert_word: no matcher configured")
	}
	if len(inv.Args) == 0 {
		return usage(a.Descriptor()), nil
	}

	switch sub, args := strings.ToLower(inv.Args[0]), inv.Args[1:]; {
	case sub == "list" && len(args) == 0:
		return plugins.Reply(a.list()), nil

	case sub == "add" && len(args) == 2:
		if err := a.matcher.Upsert(ctx, args[0], args[1]); err != nil {
			return plugins.Result{}, fmt.Errorf("binding alert phrase: %w", err)
		}
		return plugins.React(OKEmoji), nil

	case sub == "remove" && len(args) == 1:
		err := a.matcher.Remove(ctx, args[0])
		if errors.Is(err, store.ErrNotFound) {
			return plugins.Failure(fmt.Sprintf("The alert phrase %q is not bound.", args[0]), err), nil
		}
		if err != nil {
			return plugins.Result{}, fmt.Errorf("removing alert phrase: %w", err)
		}
		return plugins.React(OKEmoji), nil
	}

	return usage(a.Descriptor()), nil
}

func (a *AlertWord) list() string {
	matches := a.matcher.List()
	if len(matches) == 0 {
		return "No alert phrases are bound."
	}

	var b strings.Builder
	b.WriteString("Alert word or phrase | Emoji\n---- | ----")
	for _, m := range matches {
		fmt.Fprintf(&b, "\n`%s` | %s", m.Phrase, m.Emoji)
	}
	return b.String()
}
