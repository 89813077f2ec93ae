// ABOUTME: HTTP API handlers for the chat service
// ABOUTME: Messages, sessions and health endpoints with JSON bodies and a stable error shape

package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/2389/murmur/internal/conversation"
	"github.com/2389/murmur/internal/dispatch"
	"github.com/2389/murmur/internal/store"
)

// idempotencyHeader carries an optional client-chosen key for POST /api/messages.
const idempotencyHeader = "Idempotency-Key"

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// SendMessageRequest is the JSON request body for POST /api/messages.
type SendMessageRequest struct {
	Content   string `json:"content"`
	SessionID string `json:"sessionId,omitempty"`
}

// MessageResponse is the JSON shape of a stored message.
type MessageResponse struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionId"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	HTML      string `json:"html,omitempty"`
	CreatedAt string `json:"createdAt"`
}

// SessionResponse is the JSON shape of a session summary.
type SessionResponse struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	MessageCount  int    `json:"messageCount"`
	LastMessage   string `json:"lastMessage"`
	CreatedAt     string `json:"createdAt"`
	LastMessageAt string `json:"lastMessageAt"`
	Busy          *bool  `json:"busy,omitempty"`
}

// SendMessageResponse is the JSON response for POST /api/messages.
type SendMessageResponse struct {
	SessionID   string           `json:"sessionId"`
	UserMessage MessageResponse  `json:"userMessage"`
	AIMessage   MessageResponse  `json:"aiMessage"`
	Session     *SessionResponse `json:"session,omitempty"`
}

// ListMessagesResponse is the JSON response for GET /api/messages.
type ListMessagesResponse struct {
	Messages []MessageResponse `json:"messages"`
}

// ClearMessagesResponse is the JSON response for DELETE /api/messages.
type ClearMessagesResponse struct {
	Message      string `json:"message"`
	DeletedCount int64  `json:"deletedCount"`
}

// ListSessionsResponse is the JSON response for GET /api/sessions.
type ListSessionsResponse struct {
	Sessions []SessionResponse `json:"sessions"`
}

// ErrorResponse is the JSON body of every error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is the JSON response for /health and /health/ready.
type HealthResponse struct {
	Status   string              `json:"status"`
	Message  string              `json:"message,omitempty"`
	Model    string              `json:"model,omitempty"`
	InFlight []dispatch.Snapshot `json:"inFlight,omitempty"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func toMessageResponse(m *store.Message) MessageResponse {
	return MessageResponse{
		ID:        m.ID,
		SessionID: m.SessionID,
		Role:      string(m.Role),
		Content:   m.Content,
		CreatedAt: formatTime(m.CreatedAt),
	}
}

func toSessionResponse(s *conversation.Session) SessionResponse {
	return SessionResponse{
		ID:            s.ID,
		Title:         s.Title,
		MessageCount:  s.MessageCount,
		LastMessage:   s.LastMessage,
		CreatedAt:     formatTime(s.CreatedAt),
		LastMessageAt: formatTime(s.LastActivityAt),
	}
}

// handleMessages dispatches /api/messages by method.
func (g *Gateway) handleMessages(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		g.handleListMessages(w, r)
	case http.MethodPost:
		g.handleSendMessage(w, r)
	case http.MethodDelete:
		g.handleClearMessages(w, r)
	default:
		w.Header().Set("Allow", "GET, POST, DELETE")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleListMessages handles GET /api/messages[?sessionId=X][&format=html].
func (g *Gateway) handleListMessages(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	withHTML := r.URL.Query().Get("format") == "html"

	msgs, err := g.conversation.ListMessages(r.Context(), sessionID)
	if err != nil {
		g.sendServiceError(w, err, "Failed to fetch messages")
		return
	}

	resp := ListMessagesResponse{Messages: make([]MessageResponse, 0, len(msgs))}
	for _, m := range msgs {
		mr := toMessageResponse(m)
		if withHTML {
			html, err := g.renderer.HTML(m.Content)
			if err != nil {
				g.logger.Warn("failed to render message", "message_id", m.ID, "error", err)
			}
			mr.HTML = html
		}
		resp.Messages = append(resp.Messages, mr)
	}

	g.sendJSON(w, http.StatusOK, resp)
}

// handleSendMessage handles POST /api/messages. The exchange runs to
// completion before the response is written.
func (g *Gateway) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "Invalid JSON body", err.Error())
		return
	}

	key := strings.TrimSpace(r.Header.Get(idempotencyHeader))
	if key != "" {
		if !g.dedupe.Claim(key) {
			g.sendJSONError(w, http.StatusConflict, "Duplicate request",
				"a request with this Idempotency-Key was already accepted")
			return
		}
	}

	result, err := g.conversation.SendMessage(r.Context(), &conversation.SendRequest{
		SessionID: req.SessionID,
		Content:   req.Content,
	})
	if err != nil {
		// Nothing was recorded, so the client may retry with the same key
		if key != "" && (errors.Is(err, conversation.ErrValidation) || errors.Is(err, conversation.ErrBusy)) {
			g.dedupe.Forget(key)
		}
		g.sendServiceError(w, err, "Failed to send message")
		return
	}

	resp := SendMessageResponse{
		SessionID:   result.SessionID,
		UserMessage: toMessageResponse(result.UserMessage),
		AIMessage:   toMessageResponse(result.AIMessage),
	}
	if result.Session != nil {
		s := toSessionResponse(result.Session)
		resp.Session = &s
	}
	g.sendJSON(w, http.StatusOK, resp)
}

// handleClearMessages handles DELETE /api/messages[?sessionId=X].
func (g *Gateway) handleClearMessages(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")

	n, err := g.conversation.ClearSession(r.Context(), sessionID)
	if err != nil {
		g.sendServiceError(w, err, "Failed to clear messages")
		return
	}

	msg := "All messages cleared"
	if sessionID != "" {
		msg = "Session messages cleared"
	}
	g.sendJSON(w, http.StatusOK, ClearMessagesResponse{Message: msg, DeletedCount: n})
}

// handleListSessions handles GET /api/sessions.
func (g *Gateway) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	sessions, err := g.conversation.ListSessions(r.Context())
	if err != nil {
		g.sendServiceError(w, err, "Failed to fetch sessions")
		return
	}

	resp := ListSessionsResponse{Sessions: make([]SessionResponse, 0, len(sessions))}
	for _, s := range sessions {
		resp.Sessions = append(resp.Sessions, toSessionResponse(s))
	}
	g.sendJSON(w, http.StatusOK, resp)
}

// handleGetSession handles GET /api/sessions/{id}.
func (g *Gateway) handleGetSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	session, err := g.conversation.GetSession(r.Context(), sessionID)
	if err != nil {
		g.sendServiceError(w, err, "Failed to fetch session")
		return
	}

	resp := toSessionResponse(session)
	busy := g.conversation.IsBusy(sessionID)
	resp.Busy = &busy
	g.sendJSON(w, http.StatusOK, resp)
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	g.sendJSON(w, http.StatusOK, HealthResponse{Status: "ok", Message: "Server is running"})
}

// handleReady reports readiness along with the sessions that have a model
// call in flight.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	g.sendJSON(w, http.StatusOK, HealthResponse{
		Status:   "ready",
		Model:    g.config.Model.Name,
		InFlight: g.conversation.InFlight(),
	})
}

// sendServiceError maps a conversation error onto a status code and body.
// fallback titles errors that are not part of the taxonomy.
func (g *Gateway) sendServiceError(w http.ResponseWriter, err error, fallback string) {
	var ve *conversation.ValidationError
	switch {
	case errors.As(err, &ve):
		g.sendJSONError(w, http.StatusBadRequest, upperFirst(ve.Reason), err.Error())
	case errors.Is(err, conversation.ErrBusy):
		g.sendJSONError(w, http.StatusConflict, "Session busy",
			"A reply is still being generated for this session. Please wait for it to finish.")
	case errors.Is(err, conversation.ErrUpstreamUnavailable):
		g.sendJSONError(w, http.StatusServiceUnavailable, "Ollama service unavailable",
			"Cannot connect to Ollama. Please make sure Ollama is running.")
	case errors.Is(err, conversation.ErrUpstreamTimeout):
		g.sendJSONError(w, http.StatusGatewayTimeout, "Ollama request timeout", err.Error())
	case errors.Is(err, conversation.ErrModelNotFound):
		g.sendJSONError(w, http.StatusNotFound, "Model not found", err.Error())
	case errors.Is(err, conversation.ErrUpstream):
		g.sendJSONError(w, http.StatusBadGateway, "Ollama service error", err.Error())
	case errors.Is(err, conversation.ErrAbandoned):
		g.sendJSONError(w, http.StatusGone, "Session cleared",
			"The session was cleared while the reply was being generated.")
	case errors.Is(err, conversation.ErrSessionNotFound):
		g.sendJSONError(w, http.StatusNotFound, "Session not found", err.Error())
	default:
		g.logger.Error("request failed", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, fallback, err.Error())
	}
}

// sendJSON writes v as a JSON response.
func (g *Gateway) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Error("failed to encode response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, title, message string) {
	g.sendJSON(w, status, ErrorResponse{Error: title, Message: message})
}

func upperFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
