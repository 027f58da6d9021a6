// ABOUTME: Registry of command plugins, immutable once sealed
// ABOUTME: Enforces case-insensitive uniqueness of plugin names and aliases

package plugins

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// ErrDuplicatePlugin indicates a name or alias is already registered.
var ErrDuplicatePlugin = errors.New("duplicate plugin name")

// ErrRegistrySealed indicates Register was called after Seal.
var ErrRegistrySealed = errors.New("plugin registry sealed")

// Registry maps command words to plugins.
type Registry struct {
	mu      sync.RWMutex
	byName  map[string]Plugin // lower-cased name or alias -> plugin
	ordered []Plugin          // registration order
	sealed  bool
	logger  *slog.Logger
}

// NewRegistry creates an empty registry. A nil logger uses slog.Default().
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		byName: make(map[string]Plugin),
		logger: logger.With("component", "plugins"),
	}
}

// Register adds a plugin. The name and every alias must be unused.
func (r *Registry) Register(p Plugin) error {
	d := p.Descriptor()
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("registering plugin: empty name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return fmt.Errorf("registering %q: %w", d.Name, ErrRegistrySealed)
	}

	words := append([]string{d.Name}, d.Aliases...)
	seen := make(map[string]bool, len(words))
	for _, w := range words {
		key := strings.ToLower(w)
		if _, exists := r.byName[key]; exists || seen[key] {
			return fmt.Errorf("registering %q: %w: %q", d.Name, ErrDuplicatePlugin, w)
		}
		seen[key] = true
	}

	for key := range seen {
		r.byName[key] = p
	}
	r.ordered = append(r.ordered, p)

	r.logger.Debug("registered plugin",
		"name", d.Name,
		"aliases", d.Aliases,
		"privilege", d.Privilege.String(),
	)
	return nil
}

// Seal freezes the registry. Later Register calls fail.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
	r.logger.Info("plugin registry sealed", "count", len(r.ordered))
}

// Lookup finds a plugin by name or alias, case-insensitively.
func (r *Registry) Lookup(word string) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byName[strings.ToLower(word)]
	return p, ok
}

// Patterned returns plugins that declare a Pattern, in registration order.
func (r *Registry) Patterned() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Plugin
	for _, p := range r.ordered {
		if p.Descriptor().Pattern != nil {
			out = append(out, p)
		}
	}
	return out
}

// Descriptors returns every plugin's descriptor sorted by name.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0, len(r.ordered))
	for _, p := range r.ordered {
		out = append(out, p.Descriptor())
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out
}

// Len returns the number of registered plugins.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ordered)
}
