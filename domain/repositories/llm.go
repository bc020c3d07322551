package repositories

import (
	"context"

	"github.com/halcyonvoice/server/domain/entities"
)

// LargeLanguageModel abstracts any chat/LLM provider.
type LargeLanguageModel interface {
	// GenerateReply produces the assistant's next utterance given the full
	// ordered conversation history (system turn first).
	GenerateReply(ctx context.Context, history []entities.ConversationTurn) (string, error)
}
