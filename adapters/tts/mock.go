package tts

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/halcyonvoice/server/domain/repositories"
)

// MockTTS is a placeholder implementation for local development without
// credentials. It returns a small deterministic payload so the response
// path still carries audio.
type MockTTS struct {
	logger *zap.Logger
}

// NewMockTTS creates a new mock text-to-speech service.
func NewMockTTS(logger *zap.Logger) repositories.TextToSpeech {
	return &MockTTS{logger: logger}
}

// SynthesizeSpeech implements repositories.TextToSpeech.
func (m *MockTTS) SynthesizeSpeech(ctx context.Context, text, voice string) ([]byte, error) {
	if text == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}
	m.logger.Info("Mock speech synthesis",
		zap.Int("textLength", len(text)),
		zap.String("voice", voice))
	return []byte(fmt.Sprintf("mock-audio:%s", text)), nil
}
