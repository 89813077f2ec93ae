// ABOUTME: In-memory MessageStore implementation for testing
// ABOUTME: Allows tests to run without SQLite and to inject store failures

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockStore is an in-memory MessageStore implementation for testing.
// Setting one of the *Err fields makes the matching method fail.
type MockStore struct {
	mu       sync.RWMutex
	messages []*Message // in append order

	AppendErr    error
	QueryErr     error
	DeleteErr    error
	AggregateErr error

	// FailAppendAfter, when > 0, lets that many appends succeed before
	// AppendErr starts being returned.
	FailAppendAfter int
	appends         int

	now func() time.Time
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{now: time.Now}
}

// Append stores a copy of msg.
func (m *MockStore) Append(ctx context.Context, msg *Message) (*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.appends++
	if m.AppendErr != nil && (m.FailAppendAfter == 0 || m.appends > m.FailAppendAfter) {
		return nil, m.AppendErr
	}

	stored := *msg
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = m.now()
	}
	stored.CreatedAt = stored.CreatedAt.UTC()
	m.messages = append(m.messages, &stored)

	result := stored
	return &result, nil
}

// Query returns copies of the matching messages in chronological order.
func (m *MockStore) Query(ctx context.Context, sessionID string) ([]*Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.QueryErr != nil {
		return nil, m.QueryErr
	}

	var result []*Message
	for _, msg := range m.messages {
		if sessionID != "" && msg.SessionID != sessionID {
			continue
		}
		c := *msg
		result = append(result, &c)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// DeleteMany removes matching messages.
func (m *MockStore) DeleteMany(ctx context.Context, sessionID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.DeleteErr != nil {
		return 0, m.DeleteErr
	}

	kept := m.messages[:0]
	var deleted int64
	for _, msg := range m.messages {
		if sessionID == "" || msg.SessionID == sessionID {
			deleted++
			continue
		}
		kept = append(kept, msg)
	}
	m.messages = kept
	return deleted, nil
}

// DeleteMessage removes one message by ID.
func (m *MockStore) DeleteMessage(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.DeleteErr != nil {
		return m.DeleteErr
	}

	for i, msg := range m.messages {
		if msg.ID == id {
			m.messages = append(m.messages[:i], m.messages[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

// AggregateSessions groups messages by session, most recently active first.
func (m *MockStore) AggregateSessions(ctx context.Context) ([]SessionAggregate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.AggregateErr != nil {
		return nil, m.AggregateErr
	}

	bySession := make(map[string]*SessionAggregate)
	for _, msg := range m.messages {
		if msg.SessionID == "" {
			continue
		}
		agg, ok := bySession[msg.SessionID]
		if !ok {
			agg = &SessionAggregate{
				SessionID:      msg.SessionID,
				FirstCreatedAt: msg.CreatedAt,
				LastCreatedAt:  msg.CreatedAt,
			}
			bySession[msg.SessionID] = agg
		}
		agg.Count++
		if msg.CreatedAt.Before(agg.FirstCreatedAt) {
			agg.FirstCreatedAt = msg.CreatedAt
		}
		if msg.CreatedAt.After(agg.LastCreatedAt) {
			agg.LastCreatedAt = msg.CreatedAt
		}
	}

	result := make([]SessionAggregate, 0, len(bySession))
	for _, agg := range bySession {
		result = append(result, *agg)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].LastCreatedAt.Equal(result[j].LastCreatedAt) {
			return result[i].LastCreatedAt.After(result[j].LastCreatedAt)
		}
		return result[i].SessionID < result[j].SessionID
	})
	return result, nil
}

// Len returns the number of stored messages.
func (m *MockStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.messages)
}

// Close is a no-op.
func (m *MockStore) Close() error {
	return nil
}

// Compile-time interface checks
var (
	_ MessageStore = (*MockStore)(nil)
	_ MessageStore = (*SQLiteStore)(nil)
)
