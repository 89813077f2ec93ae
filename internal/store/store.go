// ABOUTME: Message store interface and data types for murmur persistence
// ABOUTME: Defines Message, Role, SessionAggregate and the MessageStore contract

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// Role identifies who authored a message
type Role string

const (
	RoleUser Role = "user"
	RoleAI   Role = "ai"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAI
}

// Message is a single entry in a session's append-only log.
// Messages are immutable once appended.
type Message struct {
	ID        string
	SessionID string
	Role      Role
	Content   string
	CreatedAt time.Time
}

// SessionAggregate is the per-session rollup computed by the store
type SessionAggregate struct {
	SessionID      string
	Count          int
	FirstCreatedAt time.Time
	LastCreatedAt  time.Time
}

// MessageStore is the append-only message log the orchestrator runs on.
// An empty sessionID means "every session" for Query and DeleteMany.
type MessageStore interface {
	// Append persists msg, filling in ID and CreatedAt when unset, and
	// returns the stored copy.
	Append(ctx context.Context, msg *Message) (*Message, error)

	// Query returns messages ordered by creation time ascending.
	Query(ctx context.Context, sessionID string) ([]*Message, error)

	// DeleteMany removes messages and reports how many were deleted.
	DeleteMany(ctx context.Context, sessionID string) (int64, error)

	// DeleteMessage removes a single message by ID.
	// Returns ErrNotFound if it does not exist.
	DeleteMessage(ctx context.Context, id string) error

	// AggregateSessions returns one row per session that has messages.
	// Messages without a session are not aggregated.
	AggregateSessions(ctx context.Context) ([]SessionAggregate, error)

	// Close releases any resources held by the store
	Close() error
}
