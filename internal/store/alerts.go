// ABOUTME: SQLite implementation of AlertStore for alert phrase bindings
// ABOUTME: Phrases are lower-cased on write and matched case-insensitively on read

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Ensure SQLiteStore implements AlertStore.
var _ AlertStore = (*SQLiteStore)(nil)

// GetAlert retrieves the binding for a phrase.
// Returns ErrNotFound if the phrase is not bound.
func (s *SQLiteStore) GetAlert(ctx context.Context, phrase string) (*Alert, error) {
	var a Alert
	err := s.retryBusy(ctx, func() error {
		return s.db.QueryRowContext(ctx, `
			SELECT Phrase, Emoji FROM Alerts WHERE Phrase = ? COLLATE NOCASE
		`, normalizePhrase(phrase)).Scan(&a.Phrase, &a.Emoji)
	})
	if err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

// UpsertAlert binds phrase to emoji, overwriting any previous emoji.
func (s *SQLiteStore) UpsertAlert(ctx context.Context, phrase, emoji string) error {
	phrase = normalizePhrase(phrase)
	if phrase == "" {
		return fmt.Errorf("upserting alert: empty phrase")
	}
	if emoji == "" {
		return fmt.Errorf("upserting alert %q: empty emoji", phrase)
	}

	err := s.write(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO Alerts (Phrase, Emoji) VALUES (?, ?)
			ON CONFLICT(Phrase) DO UPDATE SET Emoji = excluded.Emoji
		`, phrase, emoji)
		return err
	})
	if err != nil {
		return fmt.Errorf("upserting alert %q: %w", phrase, err)
	}
	return nil
}

// DeleteAlert removes the binding for a phrase.
// Returns ErrNotFound if the phrase was not bound.
func (s *SQLiteStore) DeleteAlert(ctx context.Context, phrase string) error {
	phrase = normalizePhrase(phrase)

	var affected int64
	err := s.write(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `DELETE FROM Alerts WHERE Phrase = ? COLLATE NOCASE`, phrase)
		if err != nil {
			return err
		}
		affected, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("deleting alert %q: %w", phrase, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListAlerts returns every binding ordered by phrase.
func (s *SQLiteStore) ListAlerts(ctx context.Context) ([]*Alert, error) {
	var alerts []*Alert
	err := s.retryBusy(ctx, func() error {
		alerts = nil
		rows, err := s.db.QueryContext(ctx, `SELECT Phrase, Emoji FROM Alerts ORDER BY Phrase`)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var a Alert
			if err := rows.Scan(&a.Phrase, &a.Emoji); err != nil {
				return err
			}
			alerts = append(alerts, &a)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("listing alerts: %w", err)
	}
	return alerts, nil
}

func normalizePhrase(phrase string) string {
	return strings.ToLower(strings.TrimSpace(phrase))
}
