// ABOUTME: Tests for the session event SSE stream
// ABOUTME: Verifies the ready event, delivery of persisted messages and isolation between sessions

package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/murmur/internal/model"
)

type sseFrame struct {
	event string
	data  string
}

// readFrames parses SSE frames from the stream onto a channel.
func readFrames(body *bufio.Reader) <-chan sseFrame {
	out := make(chan sseFrame, 32)
	go func() {
		defer close(out)
		var cur sseFrame
		for {
			line, err := body.ReadString('\n')
			if err != nil {
				return
			}
			line = strings.TrimRight(line, "\n")
			switch {
			case strings.HasPrefix(line, "event: "):
				cur.event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				cur.data = strings.TrimPrefix(line, "data: ")
			case line == "" && cur.event != "":
				out <- cur
				cur = sseFrame{}
			}
		}
	}()
	return out
}

func nextFrame(t *testing.T, frames <-chan sseFrame) sseFrame {
	t.Helper()
	select {
	case f, ok := <-frames:
		require.True(t, ok, "stream closed early")
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for SSE frame")
		return sseFrame{}
	}
}

func openStream(t *testing.T, srv *httptest.Server, sessionID string) (<-chan sseFrame, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/sessions/"+sessionID+"/events", nil)
	require.NoError(t, err)

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	t.Cleanup(func() { resp.Body.Close() })
	return readFrames(bufio.NewReader(resp.Body)), cancel
}

func TestHandleSessionEvents_StreamsExchange(t *testing.T) {
	gw, _ := newTestGateway(t, model.EchoClient{})
	srv := httptest.NewServer(gw.Handler())
	t.Cleanup(srv.Close)

	frames, cancel := openStream(t, srv, testSession)
	defer cancel()

	ready := nextFrame(t, frames)
	assert.Equal(t, "ready", ready.event)
	assert.JSONEq(t, `{"sessionId":"`+testSession+`","busy":false}`, ready.data)

	rec := doRequest(t, gw, http.MethodPost, "/api/messages",
		SendMessageRequest{Content: "ping", SessionID: testSession}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var events []string
	var aiContent string
	for {
		f := nextFrame(t, frames)
		events = append(events, f.event)
		if f.event == "message" {
			var ev SessionEvent
			require.NoError(t, json.Unmarshal([]byte(f.data), &ev))
			require.NotNil(t, ev.Message)
			if ev.Message.Role == "ai" {
				aiContent = ev.Message.Content
			}
		}
		if f.event == "idle" {
			break
		}
	}
	assert.Equal(t, []string{"busy", "message", "message", "idle"}, events)
	assert.Equal(t, "You said: ping", aiContent)

	rec = doRequest(t, gw, http.MethodDelete, "/api/messages?sessionId="+testSession, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	cleared := nextFrame(t, frames)
	assert.Equal(t, "cleared", cleared.event)
	var ev SessionEvent
	require.NoError(t, json.Unmarshal([]byte(cleared.data), &ev))
	assert.Equal(t, int64(2), ev.Deleted)
}

func TestHandleSessionEvents_OtherSessionsNotDelivered(t *testing.T) {
	gw, _ := newTestGateway(t, model.EchoClient{})
	srv := httptest.NewServer(gw.Handler())
	t.Cleanup(srv.Close)

	frames, cancel := openStream(t, srv, testSession)
	defer cancel()
	require.Equal(t, "ready", nextFrame(t, frames).event)

	// a different session
	rec := doRequest(t, gw, http.MethodPost, "/api/messages", SendMessageRequest{Content: "elsewhere"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// then ours; the first frame we see must be for our session
	rec = doRequest(t, gw, http.MethodPost, "/api/messages",
		SendMessageRequest{Content: "mine", SessionID: testSession}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	f := nextFrame(t, frames)
	var ev SessionEvent
	require.NoError(t, json.Unmarshal([]byte(f.data), &ev))
	assert.Equal(t, testSession, ev.SessionID)
}

func TestHandleSessionEvents_InvalidSession(t *testing.T) {
	gw, _ := newTestGateway(t, model.EchoClient{})

	rec := doRequest(t, gw, http.MethodGet, "/api/sessions/garbage/events", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
