// ABOUTME: Offline model client that echoes the last user message
// ABOUTME: Used for local development and demos without an inference server

package model

import (
	"context"
	"fmt"
)

// EchoClient replies with the most recent user message.
type EchoClient struct{}

// Chat returns an echo of the last user message in messages.
func (EchoClient) Chat(ctx context.Context, modelName string, messages []ChatMessage) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &Error{Kind: KindTimeout, Model: modelName, Err: err}
	}
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			return fmt.Sprintf("You said: %s", messages[i].Content), nil
		}
	}
	return "Nothing to echo yet.", nil
}
