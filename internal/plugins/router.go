// ABOUTME: Routes addressed chat text to a plugin invocation
// ABOUTME: Parses the command word, resolves it through the registry and checks privilege

package plugins

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/kballard/go-shellquote"

	"github.com/2389/warden/internal/chat"
)

// ErrUnknownCommand indicates no plugin accepts the command.
var ErrUnknownCommand = errors.New("unknown command")

// ErrInsufficientPrivilege indicates the sender may not run the plugin.
var ErrInsufficientPrivilege = errors.New("insufficient privilege")

// GreetingEmoji is the reaction to a bare mention with no command.
const GreetingEmoji = "👋"

const (
	privilegeMsg = "Hi %s!\nYou don't have sufficient privileges to execute this command."
	unknownMsg   = "Hi %s!\nUnfortunately, I currently cannot understand what you wrote to me.\n" +
		"Try \"help\" to get a glimpse of what I am capable of. :-)"
)

// Context carries the message metadata an invocation is built from.
type Context struct {
	Sender       chat.Sender
	Conversation chat.Conversation
	MessageID    string
	Timestamp    time.Time
}

// Route is the outcome of routing one addressed message. When Result is
// set the router already decided the outcome and Plugin is not executed.
type Route struct {
	Plugin     Plugin
	Invocation *Invocation
	Result     *Result
}

// Name returns the selected plugin's name, or the parsed command word.
func (r *Route) Name() string {
	if r.Plugin != nil {
		return r.Plugin.Descriptor().Name
	}
	return r.Invocation.Command
}

// Router resolves addressed text to plugins. Routing is pure; it never
// performs side effects.
type Router struct {
	registry *Registry
	logger   *slog.Logger
}

// NewRouter creates a Router over registry. A nil logger uses slog.Default().
func NewRouter(registry *Registry, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		registry: registry,
		logger:   logger.With("component", "router"),
	}
}

// Route parses text (already stripped of any bot mention) and selects a
// plugin. Name and alias matches win over patterns; patterns are tried in
// registration order against the whole text.
func (r *Router) Route(text string, rc Context) *Route {
	inv := Parse(text)
	inv.Sender = rc.Sender
	inv.Conversation = rc.Conversation
	inv.MessageID = rc.MessageID
	inv.Timestamp = rc.Timestamp

	route := &Route{Invocation: inv}

	if inv.Command == "" {
		res := React(GreetingEmoji)
		route.Result = &res
		return route
	}

	p, ok := r.registry.Lookup(inv.Command)
	if !ok {
		p = r.matchPattern(inv.Raw)
	}
	if p == nil {
		res := Failure(fmt.Sprintf(unknownMsg, displayName(rc.Sender)), ErrUnknownCommand)
		route.Result = &res
		return route
	}
	route.Plugin = p

	if p.Descriptor().Privilege == PrivilegeAdmin && !rc.Sender.Admin {
		r.logger.Warn("privilege check failed",
			"plugin", p.Descriptor().Name,
			"sender", rc.Sender.ID,
		)
		res := Failure(fmt.Sprintf(privilegeMsg, displayName(rc.Sender)), ErrInsufficientPrivilege)
		route.Result = &res
	}

	return route
}

func (r *Router) matchPattern(text string) Plugin {
	for _, p := range r.registry.Patterned() {
		if re := p.Descriptor().Pattern; re.MatchString(text) {
			return p
		}
	}
	return nil
}

// Execute runs the routed plugin, or returns the router's own decision.
func (r *Router) Execute(ctx context.Context, route *Route) (Result, error) {
	if route.Result != nil {
		return *route.Result, nil
	}

	inv := route.Invocation
	name := route.Plugin.Descriptor().Name
	start := time.Now()

	r.logger.Info("→ dispatching to plugin",
		"plugin", name,
		"invocation_id", inv.ID,
		"sender", inv.Sender.ID,
		"conversation", inv.Conversation.ID,
	)

	res, err := route.Plugin.Execute(ctx, inv)
	if err != nil {
		r.logger.Error("← plugin failed",
			"plugin", name,
			"invocation_id", inv.ID,
			"duration", time.Since(start),
			"error", err,
		)
		return Result{}, err
	}

	r.logger.Info("← plugin responded",
		"plugin", name,
		"invocation_id", inv.ID,
		"result", res.Kind.String(),
		"duration", time.Since(start),
	)
	return res, nil
}

// Parse splits addressed text into an Invocation. The first whitespace
// token is the command word (lower-cased); the rest is ArgText, and Args
// is its shell-like split. Unbalanced quotes fall back to plain fields.
func Parse(text string) *Invocation {
	raw := strings.TrimSpace(text)
	inv := &Invocation{
		ID:  uuid.NewString(),
		Raw: raw,
	}
	if raw == "" {
		return inv
	}

	cmd, rest := raw, ""
	if i := strings.IndexFunc(raw, unicode.IsSpace); i >= 0 {
		cmd, rest = raw[:i], raw[i:]
	}
	inv.Command = strings.ToLower(cmd)
	inv.ArgText = strings.TrimSpace(rest)

	if inv.ArgText != "" {
		args, err := shellquote.Split(inv.ArgText)
		if err != nil {
			args = strings.Fields(inv.ArgText)
		}
		inv.Args = args
	}
	return inv
}

func displayName(s chat.Sender) string {
	if s.Name != "" {
		return s.Name
	}
	return s.ID
}
