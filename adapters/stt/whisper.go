package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/halcyonvoice/server/domain/repositories"
)

const (
	defaultAPIBaseURL = "https://api.openai.com/v1"
	defaultModel      = "whisper-1"
	defaultTimeout    = 60 * time.Second
)

// WhisperConfig holds configuration for the WhisperSTT adapter.
// Required fields:
// - APIKey: Your OpenAI API key
// Optional fields with defaults:
// - APIBaseURL: The base URL for the OpenAI API (default: "https://api.openai.com/v1")
// - Model: The transcription model to use (default: "whisper-1")
// - Language: Hint passed to the API; empty lets the model detect it
type WhisperConfig struct {
	APIKey     string
	APIBaseURL string
	Model      string
	Language   string
}

// WhisperSTT implements SpeechToText using the OpenAI transcription API.
type WhisperSTT struct {
	apiKey     string
	apiBaseURL string
	model      string
	language   string
	client     *http.Client
	logger     *zap.Logger
}

// Ensure WhisperSTT implements the SpeechToText interface
var _ repositories.SpeechToText = (*WhisperSTT)(nil)

// ValidateWhisperConfig validates the WhisperConfig.
func ValidateWhisperConfig(config WhisperConfig) error {
	if config.APIKey == "" {
		return fmt.Errorf("OpenAI API key is required")
	}
	return nil
}

// NewWhisperSTT creates a new Whisper transcription instance.
func NewWhisperSTT(config WhisperConfig, logger *zap.Logger) (*WhisperSTT, error) {
	if err := ValidateWhisperConfig(config); err != nil {
		return nil, err
	}

	apiBaseURL := config.APIBaseURL
	if apiBaseURL == "" {
		apiBaseURL = defaultAPIBaseURL
	}

	model := config.Model
	if model == "" {
		model = defaultModel
		logger.Info("Using default transcription model", zap.String("model", model))
	}

	return &WhisperSTT{
		apiKey:     config.APIKey,
		apiBaseURL: apiBaseURL,
		model:      model,
		language:   config.Language,
		client:     &http.Client{Timeout: defaultTimeout},
		logger:     logger,
	}, nil
}

// TranscribeAudio converts audio data to text. The audio is uploaded as a
// multipart file named after its container format so the API can sniff it.
func (w *WhisperSTT) TranscribeAudio(ctx context.Context, audioData []byte, config repositories.AudioConfig) (string, error) {
	if len(audioData) == 0 {
		return "", fmt.Errorf("no audio data received")
	}

	format := config.Format
	if format == "" {
		format = "webm"
	}

	w.logger.Info("Transcribing audio",
		zap.Int("audioSize", len(audioData)),
		zap.String("format", format))

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", fmt.Sprintf("audio.%s", format))
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(audioData); err != nil {
		return "", fmt.Errorf("failed to write audio data: %w", err)
	}
	if err := writer.WriteField("model", w.model); err != nil {
		return "", fmt.Errorf("failed to write model field: %w", err)
	}
	language := config.Language
	if language == "" {
		language = w.language
	}
	if language != "" {
		if err := writer.WriteField("language", language); err != nil {
			return "", fmt.Errorf("failed to write language field: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	url := fmt.Sprintf("%s/audio/transcriptions", w.apiBaseURL)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, &body)
	if err != nil {
		return "", fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	httpReq.Header.Set("Authorization", "Bearer "+w.apiKey)

	resp, err := w.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to execute HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errorBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("transcription API returned error %d: %s", resp.StatusCode, string(errorBody))
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if result.Text == "" {
		return "", fmt.Errorf("no speech detected in audio")
	}

	w.logger.Info("Transcription complete", zap.Int("textLength", len(result.Text)))
	return result.Text, nil
}

// NewWhisperConfigFromEnv creates a WhisperConfig from environment variables.
func NewWhisperConfigFromEnv() WhisperConfig {
	return WhisperConfig{
		APIKey:     os.Getenv("OPENAI_API_KEY"),
		APIBaseURL: os.Getenv("OPENAI_API_BASE_URL"),
		Model:      os.Getenv("OPENAI_STT_MODEL"),
		Language:   os.Getenv("OPENAI_STT_LANGUAGE"),
	}
}
