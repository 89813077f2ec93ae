// Package store provides persistent message storage for murmur using SQLite.
//
// # Architecture
//
// The store is an append-only log of chat messages keyed by session. The
// MessageStore interface is the only contract the conversation layer relies
// on:
//
//   - Append: persist a message, generating its ID and timestamp
//   - Query: ordered read of one session (or all messages)
//   - DeleteMany: bulk clear of one session (or everything)
//   - AggregateSessions: count and first/last timestamps per session
//
// Sessions are not stored separately. They exist only as the set of
// messages that share a session ID.
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA busy_timeout=5000;
//
// Timestamps are stored as fixed-width UTC text so that string ordering
// equals time ordering. Equal timestamps fall back to insertion order.
//
// Database file locations:
//
//   - Development: ~/.local/share/murmur/murmur.db
//   - Testing: :memory: (in-memory database)
//
// # Error Handling
//
//   - ErrNotFound: Requested message does not exist
//
// All methods accept context.Context for cancellation support.
//
// # Testing
//
// Use NewMockStore() for unit tests. Its AppendErr, QueryErr, DeleteErr and
// AggregateErr fields inject failures.
//
// Use NewSQLiteStore(":memory:") for integration tests with real SQLite.
package store
