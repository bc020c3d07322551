package repositories

import "context"

// TextToSpeech abstracts speech synthesis services.
type TextToSpeech interface {
	// SynthesizeSpeech renders text as audio using the given voice. An empty
	// voice selects the provider's platform default.
	SynthesizeSpeech(ctx context.Context, text string, voice string) ([]byte, error)
}
