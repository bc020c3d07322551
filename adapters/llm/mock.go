package llm

import (
	"context"
	"fmt"

	"github.com/halcyonvoice/server/domain/entities"
	"github.com/halcyonvoice/server/domain/repositories"
)

// MockLLM is a placeholder implementation for local development without
// credentials.
type MockLLM struct{}

// NewMockLLM creates a new mock language model.
func NewMockLLM() repositories.LargeLanguageModel {
	return &MockLLM{}
}

// GenerateReply implements repositories.LargeLanguageModel. It echoes the
// last user turn so conversation flow is visible end to end.
func (m *MockLLM) GenerateReply(ctx context.Context, history []entities.ConversationTurn) (string, error) {
	if len(history) == 0 {
		return "", fmt.Errorf("conversation history is empty")
	}

	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == entities.RoleUser {
			return fmt.Sprintf("Okay, I hear you. You said: %q. How are you feeling on a scale of one to ten?", history[i].Content), nil
		}
	}
	return "Hi there. How are you feeling right now?", nil
}
