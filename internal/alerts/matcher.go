// ABOUTME: In-memory alert phrase matcher backed by the persistent AlertStore
// ABOUTME: Mutations write through to the store and reload the cache under one lock

package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/2389/warden/internal/store"
)

// markdownLink captures the label of [label](url).
var markdownLink = regexp.MustCompile(`\[([^\]]*)\]\([^)]+\)`)

// Match is one phrase found in a message.
type Match struct {
	Phrase string
	Emoji  string
}

// Matcher finds alert phrases in message text. Readers see either the
// table before a mutation or after it, never a mix.
type Matcher struct {
	store  store.AlertStore
	logger *slog.Logger

	// writeMu serializes store write + cache reload.
	writeMu sync.Mutex

	mu      sync.RWMutex
	phrases []store.Alert
}

// New creates a Matcher and loads the current alert table.
func New(ctx context.Context, s store.AlertStore, logger *slog.Logger) (*Matcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Matcher{
		store:  s,
		logger: logger.With("component", "alerts"),
	}
	if err := m.Refresh(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

// Match returns every bound phrase occurring in text, case-insensitively.
// Markdown links count only by their label.
func (m *Matcher) Match(text string) []Match {
	haystack := strings.ToLower(markdownLink.ReplaceAllString(text, "$1"))

	m.mu.RLock()
	defer m.mu.RUnlock()

	var matches []Match
	for _, a := range m.phrases {
		if strings.Contains(haystack, a.Phrase) {
			matches = append(matches, Match{Phrase: a.Phrase, Emoji: a.Emoji})
		}
	}
	return matches
}

// Upsert binds phrase to emoji and refreshes the cache.
func (m *Matcher) Upsert(ctx context.Context, phrase, emoji string) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if err := m.store.UpsertAlert(ctx, phrase, emoji); err != nil {
		return err
	}
	m.logger.Info("alert phrase bound", "phrase", phrase, "emoji", emoji)
	return m.reload(ctx)
}

// Remove unbinds phrase and refreshes the cache.
// Returns store.ErrNotFound if the phrase was not bound.
func (m *Matcher) Remove(ctx context.Context, phrase string) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if err := m.store.DeleteAlert(ctx, phrase); err != nil {
		return err
	}
	m.logger.Info("alert phrase removed", "phrase", phrase)
	return m.reload(ctx)
}

// Refresh reloads the cache from the store.
func (m *Matcher) Refresh(ctx context.Context) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return m.reload(ctx)
}

// List returns the cached bindings ordered by phrase.
func (m *Matcher) List() []Match {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Match, len(m.phrases))
	for i, a := range m.phrases {
		out[i] = Match{Phrase: a.Phrase, Emoji: a.Emoji}
	}
	return out
}

func (m *Matcher) reload(ctx context.Context) error {
	alerts, err := m.store.ListAlerts(ctx)
	if err != nil {
		return fmt.Errorf("loading alert phrases: %w", err)
	}

	phrases := make([]store.Alert, 0, len(alerts))
	for _, a := range alerts {
		phrases = append(phrases, store.Alert{Phrase: strings.ToLower(a.Phrase), Emoji: a.Emoji})
	}
	sort.Slice(phrases, func(i, j int) bool { return phrases[i].Phrase < phrases[j].Phrase })

	m.mu.Lock()
	m.phrases = phrases
	m.mu.Unlock()

	m.logger.Debug("alert phrases loaded", "count", len(phrases))
	return nil
}
