// ABOUTME: Context window construction for model calls
// ABOUTME: Takes the most recent stored messages and maps them to model roles

package conversation

import (
	"github.com/2389/murmur/internal/model"
	"github.com/2389/murmur/internal/store"
)

// DefaultContextMessages is how many trailing messages are sent to the model.
const DefaultContextMessages = 15

// BuildWindow returns the most recent limit messages of history, oldest
// first, mapped to model roles. A limit <= 0 keeps the whole history.
func BuildWindow(history []*store.Message, limit int) []model.ChatMessage {
	start := 0
	if limit > 0 && len(history) > limit {
		start = len(history) - limit
	}

	window := make([]model.ChatMessage, 0, len(history)-start)
	for _, msg := range history[start:] {
		window = append(window, model.ChatMessage{
			Role:    modelRole(msg.Role),
			Content: msg.Content,
		})
	}
	return window
}

func modelRole(r store.Role) string {
	if r == store.RoleAI {
		return model.RoleAssistant
	}
	return model.RoleUser
}
