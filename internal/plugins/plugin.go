// ABOUTME: Plugin contract for bot commands
// ABOUTME: Defines Descriptor, Privilege, Invocation and the tagged Result type

package plugins

import (
	"context"
	"regexp"
	"time"

	"github.com/2389/warden/internal/chat"
)

// Privilege is the minimum sender privilege a plugin requires.
type Privilege int

// Privilege levels.
const (
	PrivilegeNone Privilege = iota
	PrivilegeAdmin
)

func (p Privilege) String() string {
	if p == PrivilegeAdmin {
		return "admin"
	}
	return "none"
}

// Descriptor is the static metadata of a plugin.
type Descriptor struct {
	// Name is the primary command word. Matched case-insensitively.
	Name string
	// Aliases are alternate command words.
	Aliases []string
	// Pattern, when set, selects the plugin for any addressed text it
	// matches in full, after name lookup fails.
	Pattern *regexp.Regexp
	// Syntax is a one-line usage string shown by help.
	Syntax string
	// Description is a short human description shown by help.
	Description string
	Privilege   Privilege
}

// Plugin is a command handler.
type Plugin interface {
	Descriptor() Descriptor
	Execute(ctx context.Context, inv *Invocation) (Result, error)
}

// Invocation is one parsed command occurrence. It is never persisted.
type Invocation struct {
	ID           string
	Raw          string
	Command      string
	ArgText      string
	Args         []string
	Sender       chat.Sender
	Conversation chat.Conversation
	MessageID    string
	Timestamp    time.Time
}

// ResultKind tags a Result.
type ResultKind int

// Result kinds.
const (
	KindNoAction ResultKind = iota
	KindReply
	KindReact
	KindFailure
)

func (k ResultKind) String() string {
	switch k {
	case KindReply:
		return "reply"
	case KindReact:
		return "react"
	case KindFailure:
		return "failure"
	default:
		return "no_action"
	}
}

// Result is the outcome of a plugin execution.
type Result struct {
	Kind ResultKind
	// Text is the reply body for KindReply and the user-facing reason for KindFailure.
	Text string
	// Emoji is the reaction for KindReact.
	Emoji string
	// Err is the underlying cause for KindFailure.
	Err error
}

// Reply answers in the conversation the command came from.
func Reply(text string) Result {
	return Result{Kind: KindReply, Text: text}
}

// React adds an emoji reaction to the command message.
func React(emoji string) Result {
	return Result{Kind: KindReact, Emoji: emoji}
}

// NoAction produces no visible effect.
func NoAction() Result {
	return Result{Kind: KindNoAction}
}

// Failure reports a failed command with a user-facing reason.
func Failure(reason string, err error) Result {
	return Result{Kind: KindFailure, Text: reason, Err: err}
}
