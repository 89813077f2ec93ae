// ABOUTME: In-memory fan-out of session events to live subscribers
// ABOUTME: Lets a client that switched sessions reconcile results that land later

package conversation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/murmur/internal/store"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber.
	subscriberBufferSize = 64

	// AllSessions subscribes to events of every session.
	AllSessions = "*"
)

// EventType names what happened to a session
type EventType string

const (
	EventMessage   EventType = "message"   // a message was persisted
	EventCleared   EventType = "cleared"   // messages were bulk deleted
	EventBusy      EventType = "busy"      // a model call started
	EventIdle      EventType = "idle"      // the model call finished
	EventAbandoned EventType = "abandoned" // a late result was discarded
	EventFailed    EventType = "failed"    // the model call failed
)

// Event is published after the state it describes is durable.
type Event struct {
	Type      EventType
	SessionID string
	Message   *store.Message // set for EventMessage
	Deleted   int64          // set for EventCleared
	Error     string         // set for EventFailed
	At        time.Time
}

// EventBroadcaster provides in-memory pub/sub keyed by session ID.
type EventBroadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan *Event // sessionID -> subID -> ch
	logger      *slog.Logger
}

// NewEventBroadcaster creates a broadcaster. Pass nil logger for default.
func NewEventBroadcaster(logger *slog.Logger) *EventBroadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventBroadcaster{
		subscribers: make(map[string]map[string]chan *Event),
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe registers for events on sessionID (or AllSessions). The
// subscription is removed and the channel closed when ctx is cancelled.
func (b *EventBroadcaster) Subscribe(ctx context.Context, sessionID string) (<-chan *Event, string) {
	subID := uuid.New().String()
	ch := make(chan *Event, subscriberBufferSize)

	b.mu.Lock()
	if _, ok := b.subscribers[sessionID]; !ok {
		b.subscribers[sessionID] = make(map[string]chan *Event)
	}
	b.subscribers[sessionID][subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "session_id", sessionID, "sub_id", subID)

	go func() {
		<-ctx.Done()
		b.Unsubscribe(sessionID, subID)
	}()

	return ch, subID
}

// Publish delivers event to subscribers of its session and of AllSessions.
// An event with an empty SessionID goes to every subscriber.
// Non-blocking: events are dropped for subscribers whose channels are full.
func (b *EventBroadcaster) Publish(event *Event) {
	if event.At.IsZero() {
		event.At = time.Now()
	}

	// Sends happen under the read lock so Unsubscribe cannot close a
	// channel mid-send.
	b.mu.RLock()
	defer b.mu.RUnlock()

	var targets []chan *Event
	if event.SessionID == "" {
		for _, subs := range b.subscribers {
			for _, ch := range subs {
				targets = append(targets, ch)
			}
		}
	} else {
		for _, key := range []string{event.SessionID, AllSessions} {
			for _, ch := range b.subscribers[key] {
				targets = append(targets, ch)
			}
		}
	}

	for _, ch := range targets {
		select {
		case ch <- event:
		default:
			b.logger.Debug("dropped event for slow subscriber",
				"session_id", event.SessionID,
				"type", event.Type)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *EventBroadcaster) Unsubscribe(sessionID, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[sessionID]
	if !ok {
		return
	}
	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)

	if len(subs) == 0 {
		delete(b.subscribers, sessionID)
	}

	b.logger.Debug("subscriber removed", "session_id", sessionID, "sub_id", subID)
}

// SubscriberCount returns the number of live subscriptions for sessionID.
func (b *EventBroadcaster) SubscriberCount(sessionID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[sessionID])
}

// Close closes all subscriber channels.
func (b *EventBroadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for key, subs := range b.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(b.subscribers, key)
	}

	b.logger.Debug("broadcaster closed")
}
