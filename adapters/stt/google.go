package stt

import (
	"context"
	"fmt"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"go.uber.org/zap"

	"github.com/halcyonvoice/server/domain/repositories"
)

// GoogleSTT implements SpeechToText using Google Cloud Speech-to-Text.
// Credentials come from the ambient GOOGLE_APPLICATION_CREDENTIALS setup.
type GoogleSTT struct {
	logger *zap.Logger
}

// Ensure GoogleSTT implements the SpeechToText interface
var _ repositories.SpeechToText = (*GoogleSTT)(nil)

// NewGoogleSTT creates a new Google Cloud transcription instance.
func NewGoogleSTT(logger *zap.Logger) *GoogleSTT {
	return &GoogleSTT{logger: logger}
}

// TranscribeAudio converts audio data to text with a single synchronous
// recognize call. Utterances here are short voice turns, well under the
// API's one minute limit for synchronous recognition.
func (g *GoogleSTT) TranscribeAudio(ctx context.Context, audioData []byte, config repositories.AudioConfig) (string, error) {
	if len(audioData) == 0 {
		return "", fmt.Errorf("no audio data received")
	}

	encoding, sampleRate, err := recognitionEncoding(config.Format)
	if err != nil {
		return "", err
	}
	if config.SampleRate > 0 {
		sampleRate = config.SampleRate
	}
	language := config.Language
	if language == "" {
		language = "en-US"
	}

	client, err := speech.NewClient(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to create speech client: %w", err)
	}
	defer client.Close()

	g.logger.Info("Transcribing audio",
		zap.Int("audioSize", len(audioData)),
		zap.String("format", config.Format),
		zap.String("language", language))

	resp, err := client.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:        encoding,
			SampleRateHertz: int32(sampleRate),
			LanguageCode:    language,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audioData},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to recognize audio: %w", err)
	}

	var transcript strings.Builder
	for _, result := range resp.Results {
		if len(result.Alternatives) > 0 {
			transcript.WriteString(result.Alternatives[0].Transcript)
		}
	}

	text := transcript.String()
	if text == "" {
		return "", fmt.Errorf("no speech detected in audio")
	}
	return text, nil
}

// recognitionEncoding maps a container format to the Speech API encoding and
// its expected sample rate.
func recognitionEncoding(format string) (speechpb.RecognitionConfig_AudioEncoding, int, error) {
	switch strings.ToLower(format) {
	case "", "webm":
		return speechpb.RecognitionConfig_WEBM_OPUS, 48000, nil
	case "ogg", "opus":
		return speechpb.RecognitionConfig_OGG_OPUS, 48000, nil
	case "wav", "linear16":
		return speechpb.RecognitionConfig_LINEAR16, 16000, nil
	case "flac":
		return speechpb.RecognitionConfig_FLAC, 16000, nil
	case "mulaw":
		return speechpb.RecognitionConfig_MULAW, 8000, nil
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED, 0, fmt.Errorf("unsupported audio format: %s", format)
	}
}
