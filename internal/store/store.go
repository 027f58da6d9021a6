// ABOUTME: Store interfaces and data types for warden persistence
// ABOUTME: Defines Alert, CachedMessage and the interfaces the bot and plugins depend on

package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrNotSingleStatement is returned by QueryReadOnly for input that is not exactly one statement.
var ErrNotSingleStatement = errors.New("read-only query must be a single statement")

// ErrTransactionStatement is returned by QueryReadOnly for BEGIN, COMMIT and friends.
var ErrTransactionStatement = errors.New("read-only query may not control transactions")

// Alert binds an alert phrase to the emoji the bot reacts with.
// Phrases are stored lower-case and compared case-insensitively.
type Alert struct {
	Phrase string
	Emoji  string
}

// CachedMessage is a message body kept verbatim under an identifier.
// Rows are never updated in place; a new body replaces the old row.
type CachedMessage struct {
	ID   string
	Text string
}

// Row is one materialized result row of an escape-hatch query.
type Row []any

// Rows is a materialized query result.
type Rows struct {
	Columns []string
	Rows    []Row
}

// AlertStore persists alert phrase bindings
type AlertStore interface {
	GetAlert(ctx context.Context, phrase string) (*Alert, error)
	UpsertAlert(ctx context.Context, phrase, emoji string) error
	DeleteAlert(ctx context.Context, phrase string) error
	ListAlerts(ctx context.Context) ([]*Alert, error)
}

// MessageStore persists cached message bodies
type MessageStore interface {
	GetCachedMessage(ctx context.Context, id string) (*CachedMessage, error)
	PutCachedMessage(ctx context.Context, msg *CachedMessage) error
	DeleteCachedMessage(ctx context.Context, id string) error
	ListCachedMessages(ctx context.Context) ([]*CachedMessage, error)
}

// SQLStore is the escape hatch for plugin-owned tables.
type SQLStore interface {
	// Exec runs a write statement in its own transaction and returns the affected row count.
	Exec(ctx context.Context, query string, args ...any) (int64, error)
	// Query runs a read statement and materializes the result.
	Query(ctx context.Context, query string, args ...any) (*Rows, error)
	// QueryReadOnly runs exactly one statement on a read-only connection,
	// inside a transaction that is always rolled back.
	QueryReadOnly(ctx context.Context, query string, args ...any) (*Rows, error)
}

// Store combines everything the bot persists
type Store interface {
	AlertStore
	MessageStore
	SQLStore

	// Close releases any resources held by the store
	Close() error
}
