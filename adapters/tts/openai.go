package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/halcyonvoice/server/domain/repositories"
)

const (
	defaultAPIBaseURL     = "https://api.openai.com/v1"
	defaultModel          = "tts-1"
	defaultVoice          = "alloy"
	defaultResponseFormat = "mp3"
	defaultTimeout        = 60 * time.Second
)

// OpenAIConfig holds configuration for the OpenAITTS adapter.
// Required fields:
// - APIKey: Your OpenAI API key
// Optional fields with defaults:
// - APIBaseURL: The base URL for the OpenAI API (default: "https://api.openai.com/v1")
// - Model: The speech model to use (default: "tts-1")
// - Voice: The voice to use when a request does not name one (default: "alloy")
// - ResponseFormat: The audio container to request (default: "mp3")
type OpenAIConfig struct {
	APIKey         string
	APIBaseURL     string
	Model          string
	Voice          string
	ResponseFormat string
}

// OpenAITTS implements TextToSpeech using the OpenAI speech API.
type OpenAITTS struct {
	apiKey         string
	apiBaseURL     string
	model          string
	voice          string
	responseFormat string
	client         *http.Client
	logger         *zap.Logger
}

// Ensure OpenAITTS implements the TextToSpeech interface
var _ repositories.TextToSpeech = (*OpenAITTS)(nil)

// speechRequest is the request payload for the OpenAI speech endpoint.
type speechRequest struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format,omitempty"`
}

// ValidateOpenAIConfig validates the OpenAIConfig.
func ValidateOpenAIConfig(config OpenAIConfig) error {
	if config.APIKey == "" {
		return fmt.Errorf("OpenAI API key is required")
	}
	return nil
}

// NewOpenAITTS creates a new OpenAI TTS instance.
func NewOpenAITTS(config OpenAIConfig, logger *zap.Logger) (*OpenAITTS, error) {
	if err := ValidateOpenAIConfig(config); err != nil {
		return nil, err
	}

	apiBaseURL := config.APIBaseURL
	if apiBaseURL == "" {
		apiBaseURL = defaultAPIBaseURL
	}

	model := config.Model
	if model == "" {
		model = defaultModel
		logger.Info("Using default speech model", zap.String("model", model))
	}

	voice := config.Voice
	if voice == "" {
		voice = defaultVoice
		logger.Info("Using default voice", zap.String("voice", voice))
	}

	responseFormat := config.ResponseFormat
	if responseFormat == "" {
		responseFormat = defaultResponseFormat
	}

	return &OpenAITTS{
		apiKey:         config.APIKey,
		apiBaseURL:     apiBaseURL,
		model:          model,
		voice:          voice,
		responseFormat: responseFormat,
		client:         &http.Client{Timeout: defaultTimeout},
		logger:         logger,
	}, nil
}

// SynthesizeSpeech converts text to audio using the OpenAI speech API. An
// empty voice falls back to the adapter's configured default.
func (o *OpenAITTS) SynthesizeSpeech(ctx context.Context, text, voice string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}
	if voice == "" {
		voice = o.voice
	}

	o.logger.Info("Converting text to speech",
		zap.Int("textLength", len(text)),
		zap.String("voice", voice),
		zap.String("model", o.model))

	requestBody, err := json.Marshal(speechRequest{
		Model:          o.model,
		Input:          text,
		Voice:          voice,
		ResponseFormat: o.responseFormat,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/audio/speech", o.apiBaseURL)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to execute HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errorBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("speech API returned error %d: %s", resp.StatusCode, string(errorBody))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio response: %w", err)
	}

	o.logger.Info("Speech synthesis complete",
		zap.Int("audioBytes", len(audio)),
		zap.String("format", o.responseFormat))
	return audio, nil
}

// NewOpenAIConfigFromEnv creates an OpenAIConfig from environment variables.
func NewOpenAIConfigFromEnv() OpenAIConfig {
	return OpenAIConfig{
		APIKey:         os.Getenv("OPENAI_API_KEY"),
		APIBaseURL:     os.Getenv("OPENAI_API_BASE_URL"),
		Model:          os.Getenv("OPENAI_TTS_MODEL"),
		Voice:          os.Getenv("OPENAI_TTS_VOICE"),
		ResponseFormat: os.Getenv("OPENAI_TTS_FORMAT"),
	}
}
