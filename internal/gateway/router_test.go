// ABOUTME: Tests for the HTTP route table and CORS handling
// ABOUTME: Covers session subpath dispatch, unknown paths and preflight requests

package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/2389/murmur/internal/model"
)

func TestSessionRoutes_UnknownSubpath(t *testing.T) {
	gw, _ := newTestGateway(t, model.EchoClient{})

	rec := doRequest(t, gw, http.MethodGet, "/api/sessions/"+testSession+"/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionRoutes_MissingID(t *testing.T) {
	gw, _ := newTestGateway(t, model.EchoClient{})

	rec := doRequest(t, gw, http.MethodGet, "/api/sessions/", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionRoutes_MethodNotAllowed(t *testing.T) {
	gw, _ := newTestGateway(t, model.EchoClient{})

	rec := doRequest(t, gw, http.MethodDelete, "/api/sessions/"+testSession, nil, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCORS_Preflight(t *testing.T) {
	t.Setenv("FRONTEND_URL", "")
	gw, _ := newTestGateway(t, model.EchoClient{})

	req := httptest.NewRequest(http.MethodOptions, "/api/messages", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), idempotencyHeader)
}

func TestCORS_RestrictedOrigin(t *testing.T) {
	t.Setenv("FRONTEND_URL", "https://chat.example.com")
	gw, _ := newTestGateway(t, model.EchoClient{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec := httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://chat.example.com")
	rec = httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "https://chat.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}
