// ABOUTME: Registration of the built-in command plugins
// ABOUTME: Shared dependencies, usage errors and the OK reaction live here

package builtins

import (
	"errors"
	"fmt"

	"github.com/2389/warden/internal/alerts"
	"github.com/2389/warden/internal/chat"
	"github.com/2389/warden/internal/plugins"
	"github.com/2389/warden/internal/store"
)

// OKEmoji acknowledges a successful admin command.
const OKEmoji = "🆗"

// ErrUsage indicates a command was called with the wrong arguments.
var ErrUsage = errors.New("invalid usage")

// Deps are the collaborators the built-in plugins need.
type Deps struct {
	Registry *plugins.Registry
	Matcher  *alerts.Matcher
	Messages store.MessageStore
	SQL      store.SQLStore
	// Inviter is optional; subscribe fails without it.
	Inviter chat.Inviter
}

// RegisterAll registers every built-in plugin with deps.Registry.
func RegisterAll(deps Deps) error {
	if deps.Registry == nil {
		return errors.New("builtins: registry required")
	}

	all := []plugins.Plugin{
		NewHelp(deps.Registry),
		NewAlertWord(deps.Matcher),
		NewMsg(deps.Messages),
		NewSubscribe(deps.Inviter),
		NewSQL(deps.SQL),
	}
	for _, p := range all {
		if err := deps.Registry.Register(p); err != nil {
			return fmt.Errorf("registering builtins: %w", err)
		}
	}
	return nil
}

// usage builds the Failure returned for malformed arguments.
func usage(d plugins.Descriptor) plugins.Result {
	return plugins.Failure(fmt.Sprintf("Usage:\n```text\n%s\n```", d.Syntax), ErrUsage)
}
