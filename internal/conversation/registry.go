// ABOUTME: Session registry deriving session summaries from stored messages
// ABOUTME: Sessions are never persisted; titles and previews are recomputed on demand

package conversation

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/2389/murmur/internal/store"
)

const (
	// TitleMaxChars bounds the title taken from the first user message
	TitleMaxChars = 50
	// PreviewMaxChars bounds the last-message preview
	PreviewMaxChars = 100
	// DefaultTitle is used when a session has no user message
	DefaultTitle = "New Chat"

	defaultSummaryWorkers = 8
)

// Session is a derived, read-only view of one conversation.
type Session struct {
	ID             string
	Title          string
	MessageCount   int
	LastMessage    string
	CreatedAt      time.Time
	LastActivityAt time.Time
}

// Registry derives Session values from a MessageStore.
type Registry struct {
	store   store.MessageStore
	workers int
	logger  *slog.Logger
}

// NewRegistry creates a registry. workers bounds concurrent per-session
// queries in ListSessions; <= 0 uses a default.
func NewRegistry(s store.MessageStore, workers int, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if workers <= 0 {
		workers = defaultSummaryWorkers
	}
	return &Registry{
		store:   s,
		workers: workers,
		logger:  logger.With("component", "registry"),
	}
}

// Summarize returns the summary of one session, or ErrSessionNotFound if it
// has no messages.
func (r *Registry) Summarize(ctx context.Context, sessionID string) (*Session, error) {
	msgs, err := r.store.Query(ctx, sessionID)
	if err != nil {
		return nil, storeErr("querying session", err)
	}
	session := Summarize(sessionID, msgs)
	if session == nil {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// ListSessions returns every non-empty session, most recently active first.
func (r *Registry) ListSessions(ctx context.Context) ([]*Session, error) {
	aggs, err := r.store.AggregateSessions(ctx)
	if err != nil {
		return nil, storeErr("aggregating sessions", err)
	}

	results := make([]*Session, len(aggs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, agg := range aggs {
		g.Go(func() error {
			msgs, err := r.store.Query(gctx, agg.SessionID)
			if err != nil {
				return storeErr("querying session", err)
			}
			// nil when the session was cleared after aggregation
			results[i] = Summarize(agg.SessionID, msgs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sessions := make([]*Session, 0, len(results))
	for _, s := range results {
		if s != nil {
			sessions = append(sessions, s)
		}
	}
	SortByRecency(sessions)

	r.logger.Debug("listed sessions", "count", len(sessions))
	return sessions, nil
}

// SortByRecency orders sessions by LastActivityAt descending, ties by ID.
func SortByRecency(sessions []*Session) {
	sort.SliceStable(sessions, func(i, j int) bool {
		a, b := sessions[i], sessions[j]
		if !a.LastActivityAt.Equal(b.LastActivityAt) {
			return a.LastActivityAt.After(b.LastActivityAt)
		}
		return a.ID < b.ID
	})
}

// Summarize computes a Session from a chronologically ordered history.
// It returns nil for an empty history.
func Summarize(sessionID string, history []*store.Message) *Session {
	if len(history) == 0 {
		return nil
	}

	session := &Session{
		ID:             sessionID,
		Title:          DefaultTitle,
		MessageCount:   len(history),
		CreatedAt:      history[0].CreatedAt,
		LastActivityAt: history[0].CreatedAt,
	}

	titled := false
	for _, msg := range history {
		if !titled && msg.Role == store.RoleUser {
			if title := truncate(msg.Content, TitleMaxChars); title != "" {
				session.Title = title
			}
			titled = true
		}
		if msg.CreatedAt.Before(session.CreatedAt) {
			session.CreatedAt = msg.CreatedAt
		}
		if !msg.CreatedAt.Before(session.LastActivityAt) {
			session.LastActivityAt = msg.CreatedAt
		}
	}
	session.LastMessage = truncate(history[len(history)-1].Content, PreviewMaxChars)

	return session
}

// truncate keeps the first n characters of s. It is not word aware.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
