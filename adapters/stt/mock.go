package stt

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/halcyonvoice/server/domain/repositories"
)

// MockSTT is a placeholder implementation for local development without
// credentials. The returned transcript varies with payload size so pipeline
// behavior stays observable.
type MockSTT struct {
	logger *zap.Logger
}

// NewMockSTT creates a new mock speech-to-text service.
func NewMockSTT(logger *zap.Logger) repositories.SpeechToText {
	return &MockSTT{logger: logger}
}

// TranscribeAudio implements repositories.SpeechToText.
func (m *MockSTT) TranscribeAudio(ctx context.Context, audioData []byte, config repositories.AudioConfig) (string, error) {
	m.logger.Info("Mock transcription",
		zap.Int("audioSize", len(audioData)),
		zap.String("format", config.Format))

	if len(audioData) == 0 {
		return "", fmt.Errorf("no audio data received")
	}

	switch {
	case len(audioData) > 10000:
		return "I've been feeling pretty anxious today and I'm not sure why.", nil
	case len(audioData) > 1000:
		return "Hi, can you hear me?", nil
	default:
		return "Hello", nil
	}
}
