// ABOUTME: Model client contract and classified errors for inference calls
// ABOUTME: Callers inspect Kind via errors.Is against the exported sentinels

package model

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Model-facing roles
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one entry of the context window sent to the model.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client is a single-shot request/response inference call.
type Client interface {
	Chat(ctx context.Context, modelName string, messages []ChatMessage) (string, error)
}

// Kind classifies a failed model call.
type Kind int

const (
	KindOther Kind = iota
	KindUnavailable
	KindTimeout
	KindModelNotFound
)

func (k Kind) String() string {
	switch k {
	case KindUnavailable:
		return "unavailable"
	case KindTimeout:
		return "timeout"
	case KindModelNotFound:
		return "model_not_found"
	default:
		return "other"
	}
}

// Sentinels for errors.Is matching against *Error.
var (
	ErrUnavailable   = errors.New("model endpoint unavailable")
	ErrTimeout       = errors.New("model call timed out")
	ErrModelNotFound = errors.New("model not found")
)

// Error is returned by Client implementations for every failed call.
type Error struct {
	Kind       Kind
	Model      string
	StatusCode int // HTTP status, 0 if no response was received
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "model %q: %s", e.Model, e.Kind)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the Kind sentinels.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrUnavailable:
		return e.Kind == KindUnavailable
	case ErrTimeout:
		return e.Kind == KindTimeout
	case ErrModelNotFound:
		return e.Kind == KindModelNotFound
	}
	return false
}

// KindOf returns the classification of err, or KindOther if err is not a
// model error.
func KindOf(err error) Kind {
	var me *Error
	if errors.As(err, &me) {
		return me.Kind
	}
	return KindOther
}
