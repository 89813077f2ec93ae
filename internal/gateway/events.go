// ABOUTME: Server-Sent Events stream of session events
// ABOUTME: Lets a client follow replies, clears and busy/idle changes for a session it is not waiting on

package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/2389/murmur/internal/conversation"
)

// sseKeepAlive is how often a comment line is sent on an idle stream.
const sseKeepAlive = 25 * time.Second

// SessionEvent is the data payload of one SSE event.
type SessionEvent struct {
	SessionID string           `json:"sessionId"`
	Message   *MessageResponse `json:"message,omitempty"`
	Deleted   int64            `json:"deletedCount,omitempty"`
	Error     string           `json:"error,omitempty"`
	At        string           `json:"at"`
}

func toSessionEvent(ev *conversation.Event) SessionEvent {
	out := SessionEvent{
		SessionID: ev.SessionID,
		Deleted:   ev.Deleted,
		Error:     ev.Error,
		At:        formatTime(ev.At),
	}
	if ev.Message != nil {
		m := toMessageResponse(ev.Message)
		out.Message = &m
	}
	return out
}

// handleSessionEvents handles GET /api/sessions/{id}/events. The stream
// starts with a "ready" event carrying the current busy state and ends when
// the client disconnects or the server shuts down.
func (g *Gateway) handleSessionEvents(w http.ResponseWriter, r *http.Request, sessionID string) {
	if sessionID != conversation.AllSessions {
		if err := conversation.ValidateSessionID(sessionID); err != nil {
			g.sendServiceError(w, err, "Failed to subscribe")
			return
		}
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		g.logger.Error("streaming not supported")
		g.sendJSONError(w, http.StatusInternalServerError, "Streaming not supported", "")
		return
	}

	ctx := r.Context()
	events, _ := g.conversation.Events().Subscribe(ctx, sessionID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	g.writeSSEEvent(w, "ready", map[string]any{
		"sessionId": sessionID,
		"busy":      g.conversation.IsBusy(sessionID),
	})
	flusher.Flush()

	ticker := time.NewTicker(sseKeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case ev, ok := <-events:
			if !ok {
				return
			}
			g.writeSSEEvent(w, string(ev.Type), toSessionEvent(ev))
			flusher.Flush()
		}
	}
}

// writeSSEEvent writes a single SSE event to the response writer.
func (g *Gateway) writeSSEEvent(w http.ResponseWriter, event string, data any) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		g.logger.Error("failed to marshal SSE data", "error", err)
		return
	}

	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", dataJSON)
}
