// ABOUTME: Ollama /api/chat client built on resty
// ABOUTME: Sends a non-streaming chat request and classifies transport failures

package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	// DefaultBaseURL is where a local Ollama listens
	DefaultBaseURL = "http://localhost:11434"
	// DefaultModel is small enough to answer within the default timeout on a laptop
	DefaultModel = "llama3.2:1b"
)

type ollamaChatRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type ollamaChatResponse struct {
	Message *ChatMessage `json:"message"`
	Done    bool         `json:"done"`
}

type ollamaErrorResponse struct {
	Error string `json:"error"`
}

// OllamaClient talks to an Ollama server.
type OllamaClient struct {
	client  *resty.Client
	baseURL string
	logger  *slog.Logger
}

// NewOllamaClient creates a client for baseURL. timeout bounds every call;
// zero leaves only the caller's context as the bound.
func NewOllamaClient(baseURL string, timeout time.Duration, logger *slog.Logger) *OllamaClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}

	client := resty.New()
	client.SetBaseURL(strings.TrimRight(baseURL, "/"))
	client.SetHeader("Content-Type", "application/json")
	if timeout > 0 {
		client.SetTimeout(timeout)
	}

	return &OllamaClient{
		client:  client,
		baseURL: baseURL,
		logger:  logger.With("component", "ollama"),
	}
}

// Chat sends messages to modelName and returns the reply text.
func (c *OllamaClient) Chat(ctx context.Context, modelName string, messages []ChatMessage) (string, error) {
	if modelName == "" {
		modelName = DefaultModel
	}

	var result ollamaChatResponse
	var apiErr ollamaErrorResponse

	start := time.Now()
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(ollamaChatRequest{
			Model:    modelName,
			Messages: messages,
			Stream:   false,
		}).
		SetResult(&result).
		SetError(&apiErr).
		Post("/api/chat")
	if err != nil {
		kind := classifyTransportError(ctx, err)
		c.logger.Warn("chat request failed",
			"model", modelName,
			"kind", kind,
			"duration", time.Since(start),
			"error", err)
		return "", &Error{Kind: kind, Model: modelName, Err: err}
	}

	if resp.IsError() {
		kind := KindOther
		if resp.StatusCode() == http.StatusNotFound {
			kind = KindModelNotFound
		}
		detail := apiErr.Error
		if detail == "" {
			detail = resp.Status()
		}
		c.logger.Warn("chat request rejected",
			"model", modelName,
			"status", resp.StatusCode(),
			"error", detail)
		return "", &Error{
			Kind:       kind,
			Model:      modelName,
			StatusCode: resp.StatusCode(),
			Err:        errors.New(detail),
		}
	}

	if result.Message == nil {
		return "", &Error{
			Kind:       KindOther,
			Model:      modelName,
			StatusCode: resp.StatusCode(),
			Err:        errors.New("invalid response: missing message"),
		}
	}

	c.logger.Debug("chat request completed",
		"model", modelName,
		"messages", len(messages),
		"duration", time.Since(start))
	return result.Message.Content, nil
}

// classifyTransportError maps a failed round trip to a Kind. Typed checks
// come first; the substring fallback catches errors that lost their chain.
func classifyTransportError(ctx context.Context, err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return KindUnavailable
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return KindUnavailable
	}

	normalized := strings.ToLower(err.Error())
	switch {
	case strings.Contains(normalized, "deadline exceeded"),
		strings.Contains(normalized, "timeout"),
		strings.Contains(normalized, "timed out"):
		return KindTimeout
	case strings.Contains(normalized, "connection refused"),
		strings.Contains(normalized, "no such host"),
		strings.Contains(normalized, "dial tcp"):
		return KindUnavailable
	default:
		return KindOther
	}
}

// String identifies the client in logs.
func (c *OllamaClient) String() string {
	return fmt.Sprintf("ollama(%s)", c.baseURL)
}
