package llm

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/halcyonvoice/server/domain/entities"
	"github.com/halcyonvoice/server/domain/repositories"
)

const (
	defaultGeminiModel   = "gemini-2.0-flash"
	defaultGeminiRetries = 3
)

// GeminiLLM implements LargeLanguageModel using Google's Gemini API.
type GeminiLLM struct {
	client *genai.Client
	model  string
	logger *zap.Logger
}

// Ensure GeminiLLM implements the LargeLanguageModel interface
var _ repositories.LargeLanguageModel = (*GeminiLLM)(nil)

// NewGeminiLLM creates a new Gemini instance. The API key comes from the
// GEMINI_API_KEY environment variable.
func NewGeminiLLM(logger *zap.Logger) (*GeminiLLM, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable is required")
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := os.Getenv("GEMINI_MODEL")
	if model == "" {
		model = defaultGeminiModel
	}

	return &GeminiLLM{
		client: client,
		model:  model,
		logger: logger,
	}, nil
}

// GenerateReply sends the conversation history and returns the model's next
// turn. Transient API failures are retried with linear backoff.
func (g *GeminiLLM) GenerateReply(ctx context.Context, history []entities.ConversationTurn) (string, error) {
	if len(history) == 0 {
		return "", fmt.Errorf("conversation history is empty")
	}

	contents, config := g.buildRequest(history)

	var response *genai.GenerateContentResponse
	var err error
	for attempt := 0; attempt < defaultGeminiRetries; attempt++ {
		response, err = g.client.Models.GenerateContent(ctx, g.model, contents, config)
		if err == nil {
			break
		}

		g.logger.Warn("Failed to generate content, retrying",
			zap.Int("attempt", attempt+1),
			zap.Error(err))

		if attempt < defaultGeminiRetries-1 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Duration(attempt+1) * time.Second):
			}
		}
	}
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	if len(response.Candidates) == 0 || response.Candidates[0].Content == nil {
		return "", fmt.Errorf("no content generated")
	}

	var reply string
	for _, part := range response.Candidates[0].Content.Parts {
		if part.Text != "" {
			reply += part.Text
		}
	}
	if reply == "" {
		return "", fmt.Errorf("empty response from model")
	}

	g.logger.Info("Chat reply generated",
		zap.String("model", g.model),
		zap.Int("replyLength", len(reply)))
	return reply, nil
}

// buildRequest converts conversation turns to the Gemini request shape. The
// system turn becomes a system instruction; Gemini has no system role in the
// content stream itself.
func (g *GeminiLLM) buildRequest(history []entities.ConversationTurn) ([]*genai.Content, *genai.GenerateContentConfig) {
	config := &genai.GenerateContentConfig{}

	var contents []*genai.Content
	for _, turn := range history {
		switch turn.Role {
		case entities.RoleSystem:
			config.SystemInstruction = genai.NewContentFromText(turn.Content, genai.RoleUser)
		case entities.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(turn.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(turn.Content, genai.RoleUser))
		}
	}
	return contents, config
}
