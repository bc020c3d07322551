package repositories

import "context"

// SpeechToText abstracts speech recognition services.
type SpeechToText interface {
	// TranscribeAudio converts a complete audio payload to text. The config
	// carries a container format hint rather than raw codec parameters; the
	// provider decides what to do with it.
	TranscribeAudio(ctx context.Context, audioData []byte, config AudioConfig) (string, error)
}

// AudioConfig describes the audio handed to speech recognition.
type AudioConfig struct {
	Format     string `json:"format"`      // container/format hint: webm, wav, mp3, m4a
	SampleRate int    `json:"sample_rate"` // optional, 0 means provider default
	Language   string `json:"language"`    // optional BCP-47 tag
}
