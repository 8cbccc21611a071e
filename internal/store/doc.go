// Package store provides durable client-side key-value storage for the sync engine.
//
// # Architecture
//
// Two interfaces describe storage capability:
//
//   - Storage: Get, Set and Delete on string keys
//   - KV: Storage plus prefix listing and Close
//
// SQLiteStore is the durable KV backed by modernc.org/sqlite. MockStore is an
// in-memory KV for tests.
//
// Shared turns one KV into a multi-tab medium. Each engine instance opens a Tab
// and receives Change events for writes made by every other tab, never its own.
// This is what carries the payment_success_<taskId> sentinel between tabs.
//
// Prefs stores per-user client state on top of any Storage:
//
//   - removed_conversations_<userId>: JSON array of hidden conversation ids
//   - active_service_chat_<userId>: the resumable service chat handle
//
// Nothing in this package is a source of truth for message content.
//
// # SQLite Configuration
//
// The store uses a single table in WAL mode:
//
//	CREATE TABLE kv (key TEXT PRIMARY KEY, value TEXT NOT NULL, updated_at TEXT NOT NULL);
//
// Use NewSQLiteStore(":memory:") for integration tests with real SQLite.
package store
