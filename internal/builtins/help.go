// ABOUTME: help plugin listing commands and showing per-command usage

package builtins

import (
	"context"
	"fmt"
	"strings"

	"github.com/2389/warden/internal/plugins"
)

const helpOverview = `Hi %s!

Use ` + "`help <command name>`" + ` to get more information about a certain command.
Arguments are split like a POSIX shell does, so quote arguments containing whitespace.

Currently, I understand the following commands:

%s

Have a nice day! :-)`

// Help lists the registered commands.
type Help struct {
	registry *plugins.Registry
}

// NewHelp creates the help plugin over registry.
func NewHelp(registry *plugins.Registry) *Help {
	return &Help{registry: registry}
}

// Descriptor implements plugins.Plugin.
func (h *Help) Descriptor() plugins.Descriptor {
	return plugins.Descriptor{
		Name:        "help",
		Syntax:      "help [<command name>]",
		Description: "Post a help message to the requesting user.",
	}
}

// Execute implements plugins.Plugin.
func (h *Help) Execute(ctx context.Context, inv *plugins.Invocation) (plugins.Result, error) {
	if len(inv.Args) == 0 {
		return plugins.Reply(h.overview(inv.Sender.Name)), nil
	}

	p, ok := h.registry.Lookup(inv.Args[0])
	if !ok {
		return plugins.Failure(fmt.Sprintf("I don't know the command %q.", inv.Args[0]), plugins.ErrUnknownCommand), nil
	}
	return plugins.Reply(detail(p.Descriptor())), nil
}

func (h *Help) overview(name string) string {
	if name == "" {
		name = "there"
	}

	var b strings.Builder
	for i, d := range h.registry.Descriptors() {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "- `%s`", d.Name)
		if d.Privilege == plugins.PrivilegeAdmin {
			b.WriteString(" (admin)")
		}
	}
	return fmt.Sprintf(helpOverview, name, b.String())
}

func detail(d plugins.Descriptor) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s**\n```text\n%s\n```\n%s", d.Name, d.Syntax, d.Description)
	if len(d.Aliases) > 0 {
		fmt.Fprintf(&b, "\nAliases: %s", strings.Join(d.Aliases, ", "))
	}
	if d.Privilege == plugins.PrivilegeAdmin {
		b.WriteString("\n[administrator rights needed]")
	}
	return b.String()
}
