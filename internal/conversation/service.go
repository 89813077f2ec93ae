// ABOUTME: Conversation service: the single entry point for sending and clearing chats
// ABOUTME: Records the user message first, calls the model, and drops results for abandoned sessions

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/2389/murmur/internal/dispatch"
	"github.com/2389/murmur/internal/model"
	"github.com/2389/murmur/internal/store"
)

const (
	// DefaultMaxMessageLength is the inclusive character limit for user content
	DefaultMaxMessageLength = 500
	// DefaultModelTimeout bounds a single model call
	DefaultModelTimeout = 35 * time.Second
)

// Config holds the orchestration knobs.
type Config struct {
	Model              string
	MaxMessageLength   int
	MaxContextMessages int
	ModelTimeout       time.Duration
	SummaryWorkers     int

	// StrictRollback deletes the user message when the model call fails,
	// making the exchange all-or-nothing.
	StrictRollback bool
}

// DefaultConfig returns the stock limits.
func DefaultConfig() Config {
	return Config{
		Model:              model.DefaultModel,
		MaxMessageLength:   DefaultMaxMessageLength,
		MaxContextMessages: DefaultContextMessages,
		ModelTimeout:       DefaultModelTimeout,
	}
}

// Service composes the store, model client, dispatch tracker and registry.
type Service struct {
	store    store.MessageStore
	model    model.Client
	tracker  *dispatch.Tracker
	registry *Registry
	events   *EventBroadcaster
	cfg      Config
	logger   *slog.Logger
	newID    func() string
}

// New creates a conversation service. Zero-valued Config fields fall back
// to DefaultConfig.
func New(s store.MessageStore, client model.Client, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	defaults := DefaultConfig()
	if cfg.Model == "" {
		cfg.Model = defaults.Model
	}
	if cfg.MaxMessageLength <= 0 {
		cfg.MaxMessageLength = defaults.MaxMessageLength
	}
	if cfg.MaxContextMessages <= 0 {
		cfg.MaxContextMessages = defaults.MaxContextMessages
	}
	if cfg.ModelTimeout <= 0 {
		cfg.ModelTimeout = defaults.ModelTimeout
	}

	return &Service{
		store:    s,
		model:    client,
		tracker:  dispatch.NewTracker(logger),
		registry: NewRegistry(s, cfg.SummaryWorkers, logger),
		events:   NewEventBroadcaster(logger),
		cfg:      cfg,
		logger:   logger.With("component", "conversation"),
		newID:    func() string { return uuid.New().String() },
	}
}

// SendRequest is a user message addressed to a session. An empty SessionID
// starts a new session.
type SendRequest struct {
	SessionID string
	Content   string
}

// SendResult is the completed exchange.
type SendResult struct {
	SessionID   string
	UserMessage *store.Message
	AIMessage   *store.Message
	Session     *Session
}

// SendMessage records the user message, asks the model for a reply and
// records the reply.
//
// The user message is saved BEFORE the model is called and stays when the
// model fails (unless StrictRollback is set). Once admitted, the exchange is
// detached from ctx cancellation so a disconnected caller cannot strand a
// half-written session. If the session is cleared mid-flight, the reply is
// dropped and ErrAbandoned is returned.
func (s *Service) SendMessage(ctx context.Context, req *SendRequest) (*SendResult, error) {
	content, err := s.validateContent(req.Content)
	if err != nil {
		return nil, err
	}
	if req.SessionID != "" {
		if err := ValidateSessionID(req.SessionID); err != nil {
			return nil, err
		}
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = s.newID()
	}

	if !s.tracker.TryAcquire(sessionID) {
		return nil, fmt.Errorf("%w: a reply is already being generated for session %s", ErrBusy, sessionID)
	}
	s.publish(&Event{Type: EventBusy, SessionID: sessionID})
	defer func() {
		s.tracker.Release(sessionID)
		s.publish(&Event{Type: EventIdle, SessionID: sessionID})
	}()

	log := s.logger.With("session_id", sessionID)
	persistCtx := context.WithoutCancel(ctx)

	// 1. Record user message FIRST
	var userMsg *store.Message
	applied, err := s.tracker.Commit(sessionID, func() error {
		var appendErr error
		userMsg, appendErr = s.store.Append(persistCtx, &store.Message{
			SessionID: sessionID,
			Role:      store.RoleUser,
			Content:   content,
		})
		return appendErr
	})
	if err != nil {
		log.Error("failed to record user message", "error", err)
		return nil, storeErr("recording user message", err)
	}
	if !applied {
		log.Info("session abandoned before user message was recorded")
		return nil, fmt.Errorf("%w: session %s was cleared", ErrAbandoned, sessionID)
	}
	s.publish(&Event{Type: EventMessage, SessionID: sessionID, Message: userMsg})
	log.Debug("user message recorded", "message_id", userMsg.ID)

	// 2. Build the context window from the full history
	history, err := s.store.Query(persistCtx, sessionID)
	if err != nil {
		log.Error("failed to load history", "error", err)
		return nil, storeErr("loading history", err)
	}
	window := BuildWindow(history, s.cfg.MaxContextMessages)

	// 3. Ask the model
	callCtx, cancel := context.WithTimeout(persistCtx, s.cfg.ModelTimeout)
	defer cancel()

	start := time.Now()
	reply, err := s.model.Chat(callCtx, s.cfg.Model, window)
	if err != nil {
		if s.tracker.IsAbandoned(sessionID) {
			log.Info("discarding model failure for abandoned session", "error", err)
			return nil, fmt.Errorf("%w: session %s was cleared", ErrAbandoned, sessionID)
		}

		classified := s.classifyModelError(err)
		log.Warn("model call failed",
			"model", s.cfg.Model,
			"duration", time.Since(start),
			"error", err)

		if s.cfg.StrictRollback {
			s.rollback(persistCtx, log, userMsg)
		}
		s.publish(&Event{Type: EventFailed, SessionID: sessionID, Error: classified.Error()})
		return nil, classified
	}

	// 4. Record the reply unless the session was abandoned meanwhile
	var aiMsg *store.Message
	applied, err = s.tracker.Commit(sessionID, func() error {
		var appendErr error
		aiMsg, appendErr = s.store.Append(persistCtx, &store.Message{
			SessionID: sessionID,
			Role:      store.RoleAI,
			Content:   reply,
		})
		return appendErr
	})
	if err != nil {
		log.Error("failed to record reply", "error", err)
		return nil, storeErr("recording reply", err)
	}
	if !applied {
		log.Info("discarding late reply for abandoned session", "duration", time.Since(start))
		s.publish(&Event{Type: EventAbandoned, SessionID: sessionID})
		return nil, fmt.Errorf("%w: session %s was cleared", ErrAbandoned, sessionID)
	}
	s.publish(&Event{Type: EventMessage, SessionID: sessionID, Message: aiMsg})

	log.Info("exchange completed",
		"user_message_id", userMsg.ID,
		"ai_message_id", aiMsg.ID,
		"context_messages", len(window),
		"duration", time.Since(start))

	return &SendResult{
		SessionID:   sessionID,
		UserMessage: userMsg,
		AIMessage:   aiMsg,
		Session:     Summarize(sessionID, append(history, aiMsg)),
	}, nil
}

// rollback removes the user message after a failed call in strict mode.
// Skipped when the session was abandoned, since the clear removes it anyway.
func (s *Service) rollback(ctx context.Context, log *slog.Logger, userMsg *store.Message) {
	applied, err := s.tracker.Commit(userMsg.SessionID, func() error {
		return s.store.DeleteMessage(ctx, userMsg.ID)
	})
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		log.Error("failed to roll back user message", "message_id", userMsg.ID, "error", err)
		return
	}
	if applied {
		s.publish(&Event{Type: EventCleared, SessionID: userMsg.SessionID, Deleted: 1})
		log.Debug("rolled back user message", "message_id", userMsg.ID)
	}
}

// classifyModelError maps a model failure onto the service taxonomy.
func (s *Service) classifyModelError(err error) error {
	kind := model.KindOf(err)
	if kind == model.KindOther && errors.Is(err, context.DeadlineExceeded) {
		kind = model.KindTimeout
	}

	switch kind {
	case model.KindUnavailable:
		return fmt.Errorf("%w: cannot connect to the model service, make sure it is running: %w",
			ErrUpstreamUnavailable, err)
	case model.KindTimeout:
		return fmt.Errorf("%w: model %q did not answer within %s, try a smaller model such as %q or \"phi3:mini\": %w",
			ErrUpstreamTimeout, s.cfg.Model, s.cfg.ModelTimeout, model.DefaultModel, err)
	case model.KindModelNotFound:
		return fmt.Errorf("%w: model %q is not available, pull it first with: ollama pull %s: %w",
			ErrModelNotFound, s.cfg.Model, s.cfg.Model, err)
	default:
		return fmt.Errorf("%w: %w", ErrUpstream, err)
	}
}

// ClearSession deletes every message of sessionID and returns how many
// were removed. An in-flight call for the session is abandoned first so its
// late reply cannot resurrect the session. An empty sessionID clears
// everything.
func (s *Service) ClearSession(ctx context.Context, sessionID string) (int64, error) {
	if sessionID != "" {
		if err := ValidateSessionID(sessionID); err != nil {
			return 0, err
		}
		if s.tracker.Abandon(sessionID) {
			s.logger.Info("abandoned in-flight call before clearing", "session_id", sessionID)
		}
	} else if ids := s.tracker.AbandonAll(); len(ids) > 0 {
		s.logger.Info("abandoned in-flight calls before clearing all", "sessions", ids)
	}

	n, err := s.store.DeleteMany(ctx, sessionID)
	if err != nil {
		s.logger.Error("failed to clear messages", "session_id", sessionID, "error", err)
		return 0, storeErr("clearing messages", err)
	}

	s.publish(&Event{Type: EventCleared, SessionID: sessionID, Deleted: n})
	s.logger.Info("messages cleared", "session_id", sessionID, "count", n)
	return n, nil
}

// ListMessages returns the messages of sessionID, or all messages when
// empty, in chronological order.
func (s *Service) ListMessages(ctx context.Context, sessionID string) ([]*store.Message, error) {
	if sessionID != "" {
		if err := ValidateSessionID(sessionID); err != nil {
			return nil, err
		}
	}
	msgs, err := s.store.Query(ctx, sessionID)
	if err != nil {
		return nil, storeErr("listing messages", err)
	}
	return msgs, nil
}

// ListSessions returns non-empty sessions, most recently active first.
func (s *Service) ListSessions(ctx context.Context) ([]*Session, error) {
	return s.registry.ListSessions(ctx)
}

// GetSession returns the summary of one session.
func (s *Service) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return nil, err
	}
	return s.registry.Summarize(ctx, sessionID)
}

// IsBusy reports whether a model call is in flight for sessionID.
func (s *Service) IsBusy(sessionID string) bool {
	return s.tracker.IsBusy(sessionID)
}

// InFlight lists the sessions with a model call in flight.
func (s *Service) InFlight() []dispatch.Snapshot {
	return s.tracker.InFlight()
}

// Events returns the broadcaster carrying session events.
func (s *Service) Events() *EventBroadcaster {
	return s.events
}

// AbandonInFlight abandons every in-flight model call so no further
// messages are written for them. Returns the affected session IDs.
func (s *Service) AbandonInFlight() []string {
	return s.tracker.AbandonAll()
}

// Close shuts down the event broadcaster.
func (s *Service) Close() {
	s.events.Close()
}

func (s *Service) publish(event *Event) {
	if s.events != nil {
		s.events.Publish(event)
	}
}

// validateContent returns the trimmed content or a ValidationError.
// The length limit applies to the content as submitted.
func (s *Service) validateContent(content string) (string, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "", &ValidationError{Field: "content", Reason: "message content is required"}
	}
	if utf8.RuneCountInString(content) > s.cfg.MaxMessageLength {
		return "", &ValidationError{
			Field:  "content",
			Reason: fmt.Sprintf("message content must be %d characters or less", s.cfg.MaxMessageLength),
		}
	}
	return trimmed, nil
}

// ValidateSessionID accepts only canonical 36-character version 4 UUIDs.
func ValidateSessionID(id string) error {
	invalid := &ValidationError{Field: "sessionId", Reason: "invalid sessionId format"}
	if len(id) != 36 {
		return invalid
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return invalid
	}
	if parsed.Version() != 4 || parsed.Variant() != uuid.RFC4122 {
		return invalid
	}
	return nil
}
