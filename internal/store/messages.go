// ABOUTME: SQLite implementation of MessageStore for cached message bodies
// ABOUTME: Bodies are replaced by delete-then-insert inside one transaction

package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Ensure SQLiteStore implements MessageStore.
var _ MessageStore = (*SQLiteStore)(nil)

// GetCachedMessage retrieves a cached message by ID.
// Returns ErrNotFound if no message is stored under id.
func (s *SQLiteStore) GetCachedMessage(ctx context.Context, id string) (*CachedMessage, error) {
	var m CachedMessage
	err := s.retryBusy(ctx, func() error {
		return s.db.QueryRowContext(ctx, `
			SELECT MsgId, MsgText FROM Messages WHERE MsgId = ?
		`, id).Scan(&m.ID, &m.Text)
	})
	if err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

// PutCachedMessage stores msg, replacing any existing body with the same ID.
func (s *SQLiteStore) PutCachedMessage(ctx context.Context, msg *CachedMessage) error {
	if msg.ID == "" {
		return fmt.Errorf("storing message: empty id")
	}

	err := s.write(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM Messages WHERE MsgId = ?`, msg.ID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO Messages (MsgId, MsgText) VALUES (?, ?)`, msg.ID, msg.Text)
		return err
	})
	if err != nil {
		return fmt.Errorf("storing message %q: %w", msg.ID, err)
	}
	return nil
}

// DeleteCachedMessage removes a cached message.
// Returns ErrNotFound if no message is stored under id.
func (s *SQLiteStore) DeleteCachedMessage(ctx context.Context, id string) error {
	var affected int64
	err := s.write(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `DELETE FROM Messages WHERE MsgId = ?`, id)
		if err != nil {
			return err
		}
		affected, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("deleting message %q: %w", id, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListCachedMessages returns every cached message ordered by ID.
func (s *SQLiteStore) ListCachedMessages(ctx context.Context) ([]*CachedMessage, error) {
	var msgs []*CachedMessage
	err := s.retryBusy(ctx, func() error {
		msgs = nil
		rows, err := s.db.QueryContext(ctx, `SELECT MsgId, MsgText FROM Messages ORDER BY MsgId`)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var m CachedMessage
			if err := rows.Scan(&m.ID, &m.Text); err != nil {
				return fmt.Errorf("scanning message: %w", err)
			}
			msgs = append(msgs, &m)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	return msgs, nil
}
