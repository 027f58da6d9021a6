// Package store provides persistent storage for the bot using SQLite.
//
// # Architecture
//
// The store package splits persistence into small interfaces:
//
//   - AlertStore: alert phrase to emoji bindings (table Alerts)
//   - MessageStore: cached message bodies (table Messages)
//   - SQLStore: raw SQL escape hatch for plugin-owned tables
//
// SQLiteStore implements all of them in a single struct.
//
// # SQLite Configuration
//
// Every pooled connection is opened with:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//	PRAGMA busy_timeout=5000;
//
// Two drivers are supported: "sqlite" (modernc.org/sqlite, pure Go, the
// default) and "sqlite3" (github.com/mattn/go-sqlite3, requires cgo).
//
// Writes are serialized behind one mutex and run in short transactions.
// A statement that still fails with "database is locked" is retried once.
//
// # Schema
//
// Open creates the baseline Alerts and Messages tables when they are
// missing. Every later change goes through the migrate package.
//
// # Testing
//
// Use NewMockStore() for unit tests that never touch raw SQL.
// Use NewSQLiteStore with a t.TempDir() path for integration tests.
package store
