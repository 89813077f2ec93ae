// ABOUTME: Per-session admission registry for in-flight model calls
// ABOUTME: Guarantees at most one dispatch per session and supports abandoning late results

package dispatch

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Entry records that a model call is in flight for a session.
type Entry struct {
	SessionID string
	StartedAt time.Time

	// mu serializes Commit against Abandon for this entry only
	mu        sync.Mutex
	abandoned bool
}

// Abandoned reports whether the entry's result should be discarded.
func (e *Entry) Abandoned() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.abandoned
}

// Tracker is a keyed registry of dispatch entries. Operations on different
// sessions never contend on a shared lock.
type Tracker struct {
	entries sync.Map // sessionID -> *Entry
	logger  *slog.Logger
	now     func() time.Time
}

// NewTracker creates an empty tracker. Pass nil logger for default.
func NewTracker(logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		logger: logger.With("component", "dispatch"),
		now:    time.Now,
	}
}

// TryAcquire creates the entry for sessionID. It returns false, leaving the
// existing entry untouched, if one is already present.
func (t *Tracker) TryAcquire(sessionID string) bool {
	entry := &Entry{SessionID: sessionID, StartedAt: t.now()}
	if _, loaded := t.entries.LoadOrStore(sessionID, entry); loaded {
		t.logger.Debug("dispatch denied, session busy", "session_id", sessionID)
		return false
	}
	t.logger.Debug("dispatch acquired", "session_id", sessionID)
	return true
}

// Release removes the entry for sessionID. Safe to call when none exists.
func (t *Tracker) Release(sessionID string) {
	if v, ok := t.entries.LoadAndDelete(sessionID); ok {
		entry := v.(*Entry)
		t.logger.Debug("dispatch released",
			"session_id", sessionID,
			"abandoned", entry.Abandoned(),
			"duration", time.Since(entry.StartedAt))
	}
}

// IsBusy reports whether a call is in flight for sessionID.
func (t *Tracker) IsBusy(sessionID string) bool {
	_, ok := t.entries.Load(sessionID)
	return ok
}

// Abandon marks the in-flight entry so its eventual result is dropped.
// It blocks until any Commit running for that entry has finished, so once
// Abandon returns no further writes will be applied for the call.
// Returns false if no call was in flight.
func (t *Tracker) Abandon(sessionID string) bool {
	v, ok := t.entries.Load(sessionID)
	if !ok {
		return false
	}
	entry := v.(*Entry)

	entry.mu.Lock()
	entry.abandoned = true
	entry.mu.Unlock()

	t.logger.Info("dispatch abandoned", "session_id", sessionID)
	return true
}

// IsAbandoned reports whether the in-flight entry for sessionID has been
// abandoned. False when nothing is in flight.
func (t *Tracker) IsAbandoned(sessionID string) bool {
	v, ok := t.entries.Load(sessionID)
	if !ok {
		return false
	}
	return v.(*Entry).Abandoned()
}

// AbandonAll abandons every in-flight entry and returns the session IDs.
func (t *Tracker) AbandonAll() []string {
	var ids []string
	t.entries.Range(func(key, _ any) bool {
		id := key.(string)
		if t.Abandon(id) {
			ids = append(ids, id)
		}
		return true
	})
	return ids
}

// Commit runs fn only if the session's entry exists and has not been
// abandoned. applied reports whether fn ran; err is fn's error.
func (t *Tracker) Commit(sessionID string, fn func() error) (applied bool, err error) {
	v, ok := t.entries.Load(sessionID)
	if !ok {
		return false, nil
	}
	entry := v.(*Entry)

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.abandoned {
		return false, nil
	}
	return true, fn()
}

// Snapshot is a read-only copy of an entry.
type Snapshot struct {
	SessionID string    `json:"session_id"`
	StartedAt time.Time `json:"started_at"`
	Abandoned bool      `json:"abandoned"`
}

// InFlight returns the current entries ordered by start time.
func (t *Tracker) InFlight() []Snapshot {
	var out []Snapshot
	t.entries.Range(func(_, v any) bool {
		entry := v.(*Entry)
		out = append(out, Snapshot{
			SessionID: entry.SessionID,
			StartedAt: entry.StartedAt,
			Abandoned: entry.Abandoned(),
		})
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}
