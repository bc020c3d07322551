package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/halcyonvoice/server/domain/entities"
	"github.com/halcyonvoice/server/domain/repositories"
)

const (
	defaultAPIBaseURL  = "https://api.openai.com/v1"
	defaultOpenAIModel = "gpt-4o-mini"
	defaultTimeout     = 60 * time.Second
	defaultMaxTokens   = 1024
)

// OpenAIConfig holds configuration for the OpenAILLM adapter.
// Required fields:
// - APIKey: Your OpenAI API key
// Optional fields with defaults:
// - APIBaseURL: The base URL for the OpenAI API (default: "https://api.openai.com/v1")
// - Model: The chat model to use (default: "gpt-4o-mini")
// - MaxTokens: Response token cap (default: 1024)
// - Temperature: Sampling temperature between 0 and 2 (default: API default)
type OpenAIConfig struct {
	APIKey      string
	APIBaseURL  string
	Model       string
	MaxTokens   int
	Temperature float64
}

// OpenAILLM implements LargeLanguageModel using the OpenAI chat API.
type OpenAILLM struct {
	apiKey      string
	apiBaseURL  string
	model       string
	maxTokens   int
	temperature float64
	client      *http.Client
	logger      *zap.Logger
}

// Ensure OpenAILLM implements the LargeLanguageModel interface
var _ repositories.LargeLanguageModel = (*OpenAILLM)(nil)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// ValidateOpenAIConfig validates the OpenAIConfig.
func ValidateOpenAIConfig(config OpenAIConfig) error {
	if config.APIKey == "" {
		return fmt.Errorf("OpenAI API key is required")
	}
	if config.Temperature != 0 && (config.Temperature < 0 || config.Temperature > 2) {
		return fmt.Errorf("temperature must be between 0 and 2, got %f", config.Temperature)
	}
	if config.MaxTokens < 0 {
		return fmt.Errorf("max tokens must be positive, got %d", config.MaxTokens)
	}
	return nil
}

// NewOpenAILLM creates a new OpenAI chat instance.
func NewOpenAILLM(config OpenAIConfig, logger *zap.Logger) (*OpenAILLM, error) {
	if err := ValidateOpenAIConfig(config); err != nil {
		return nil, err
	}

	apiBaseURL := config.APIBaseURL
	if apiBaseURL == "" {
		apiBaseURL = defaultAPIBaseURL
	}

	model := config.Model
	if model == "" {
		model = defaultOpenAIModel
		logger.Info("Using default chat model", zap.String("model", model))
	}

	maxTokens := config.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	return &OpenAILLM{
		apiKey:      config.APIKey,
		apiBaseURL:  apiBaseURL,
		model:       model,
		maxTokens:   maxTokens,
		temperature: config.Temperature,
		client:      &http.Client{Timeout: defaultTimeout},
		logger:      logger,
	}, nil
}

// GenerateReply sends the conversation history and returns the assistant's
// next turn.
func (o *OpenAILLM) GenerateReply(ctx context.Context, history []entities.ConversationTurn) (string, error) {
	if len(history) == 0 {
		return "", fmt.Errorf("conversation history is empty")
	}

	messages := make([]chatMessage, 0, len(history))
	for _, turn := range history {
		messages = append(messages, chatMessage{
			Role:    string(turn.Role),
			Content: turn.Content,
		})
	}

	requestBody, err := json.Marshal(chatRequest{
		Model:       o.model,
		Messages:    messages,
		MaxTokens:   o.maxTokens,
		Temperature: o.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/chat/completions", o.apiBaseURL)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(requestBody))
	if err != nil {
		return "", fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

	o.logger.Debug("Sending chat request",
		zap.String("model", o.model),
		zap.Int("historyLength", len(messages)))

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to execute HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errorBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("chat API returned error %d: %s", resp.StatusCode, string(errorBody))
	}

	var result chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(result.Choices) == 0 || result.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("no content generated")
	}

	reply := result.Choices[0].Message.Content
	o.logger.Info("Chat reply generated", zap.Int("replyLength", len(reply)))
	return reply, nil
}

// NewOpenAIConfigFromEnv creates an OpenAIConfig from environment variables.
func NewOpenAIConfigFromEnv() OpenAIConfig {
	config := OpenAIConfig{
		APIKey:     os.Getenv("OPENAI_API_KEY"),
		APIBaseURL: os.Getenv("OPENAI_API_BASE_URL"),
		Model:      os.Getenv("OPENAI_CHAT_MODEL"),
	}
	return config
}
