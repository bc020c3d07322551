package pipeline

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/halcyonvoice/server/domain/entities"
	"github.com/halcyonvoice/server/domain/repositories"
)

// Sender delivers a typed event to a client's outbound channel. Delivery to
// a client that is no longer connected is a no-op, not an error.
type Sender interface {
	Send(clientID string, event string, payload map[string]interface{})
}

// Config tunes coordinator behavior.
type Config struct {
	// HistoryCap bounds the conversation history, counting the system turn.
	HistoryCap int
	// DefaultVoice is used for synthesis when the client does not pick one.
	DefaultVoice string
}

// Coordinator drives a session's buffered audio through the ordered stage
// sequence: transcribe, generate, synthesize, send. One run at a time per
// session; the session's processing guard enforces that.
type Coordinator struct {
	stt          repositories.SpeechToText
	llm          repositories.LargeLanguageModel
	tts          repositories.TextToSpeech
	sender       Sender
	historyCap   int
	defaultVoice string
	logger       *zap.Logger
}

// NewCoordinator creates a pipeline coordinator over the three collaborators.
func NewCoordinator(
	stt repositories.SpeechToText,
	llm repositories.LargeLanguageModel,
	tts repositories.TextToSpeech,
	sender Sender,
	config Config,
	logger *zap.Logger,
) *Coordinator {
	if config.HistoryCap == 0 {
		config.HistoryCap = 12
	}
	if config.DefaultVoice == "" {
		config.DefaultVoice = "alloy"
	}
	return &Coordinator{
		stt:          stt,
		llm:          llm,
		tts:          tts,
		sender:       sender,
		historyCap:   config.HistoryCap,
		defaultVoice: config.DefaultVoice,
		logger:       logger,
	}
}

// Run executes one full pipeline run against the session's buffered audio.
// Progress, results, and failures are all reported to the client through the
// sender; the returned error mirrors what was reported, for callers that
// want to inspect it.
func (c *Coordinator) Run(ctx context.Context, sess *entities.Session) (runErr error) {
	if sess.BufferedFragments() == 0 {
		err := entities.NewValidationError("no audio data to process")
		c.fail(sess, err)
		return err
	}

	if err := sess.BeginProcessing(); err != nil {
		c.logger.Warn("Pipeline run rejected, already processing",
			zap.String("clientID", sess.ID))
		c.fail(sess, entities.AsError(err))
		return err
	}
	defer c.release(sess, &runErr)

	c.status(sess, "processing", "Processing audio", "started")

	payload, format := sess.DrainAudio()
	c.logger.Info("Processing audio",
		zap.String("clientID", sess.ID),
		zap.Int("audioSize", len(payload)),
		zap.String("format", format))

	sess.SetStage(entities.StageTranscribing)
	c.status(sess, "processing", "Transcribing audio", string(entities.StageTranscribing))

	transcript, err := c.stt.TranscribeAudio(ctx, payload, repositories.AudioConfig{Format: format})
	if err != nil {
		c.logger.Error("Transcription failed",
			zap.String("clientID", sess.ID),
			zap.Error(err))
		apiErr := entities.NewAPIError(entities.StageTranscribing, "Failed to transcribe audio", err)
		c.fail(sess, apiErr)
		return apiErr
	}

	c.sender.Send(sess.ID, "transcription", map[string]interface{}{
		"text":      transcript,
		"timestamp": time.Now().Unix(),
	})

	sess.AppendTurn(entities.RoleUser, transcript)

	return c.respond(ctx, sess, c.defaultVoice, true)
}

// ProcessText runs the generation tail of the pipeline for a caller-supplied
// utterance, skipping audio buffering and transcription.
func (c *Coordinator) ProcessText(ctx context.Context, sess *entities.Session, text, voice string, generateSpeech bool) (runErr error) {
	if err := sess.BeginProcessing(); err != nil {
		c.logger.Warn("Text request rejected, already processing",
			zap.String("clientID", sess.ID))
		c.fail(sess, entities.AsError(err))
		return err
	}
	defer c.release(sess, &runErr)

	if voice == "" {
		voice = c.defaultVoice
	}

	sess.AppendTurn(entities.RoleUser, text)

	return c.respond(ctx, sess, voice, generateSpeech)
}

// respond runs the generate -> synthesize -> send stages. Generation failure
// aborts; synthesis failure degrades to a text-only response.
func (c *Coordinator) respond(ctx context.Context, sess *entities.Session, voice string, generateSpeech bool) error {
	sess.SetStage(entities.StageGenerating)
	c.status(sess, "processing", "Generating response", string(entities.StageGenerating))

	reply, err := c.llm.GenerateReply(ctx, sess.History())
	if err != nil {
		c.logger.Error("Response generation failed",
			zap.String("clientID", sess.ID),
			zap.Error(err))
		apiErr := entities.NewAPIError(entities.StageGenerating, "Failed to generate response", err)
		c.fail(sess, apiErr)
		return apiErr
	}

	sess.AppendTurn(entities.RoleAssistant, reply)

	var audio []byte
	if generateSpeech {
		sess.SetStage(entities.StageSynthesizing)
		c.status(sess, "processing", "Converting to speech", string(entities.StageSynthesizing))

		audio, err = c.tts.SynthesizeSpeech(ctx, reply, voice)
		if err != nil {
			// Non-fatal: the text response still goes out.
			c.logger.Error("Speech synthesis failed, sending text only",
				zap.String("clientID", sess.ID),
				zap.Error(err))
			c.fail(sess, entities.NewAPIError(entities.StageSynthesizing, "Failed to convert text to speech", err))
			audio = nil
		}
	}

	sess.SetStage(entities.StageSending)

	response := map[string]interface{}{
		"text":      reply,
		"audio":     nil,
		"type":      "text",
		"is_final":  true,
		"timestamp": time.Now().Unix(),
	}
	if len(audio) > 0 {
		response["audio"] = base64.StdEncoding.EncodeToString(audio)
		response["type"] = "voice"
	}
	c.sender.Send(sess.ID, "response", response)

	c.status(sess, "completed", "Processing completed successfully", "completed")

	c.logger.Info("Pipeline run completed",
		zap.String("clientID", sess.ID),
		zap.Bool("withAudio", len(audio) > 0),
		zap.Int("historyLength", sess.HistoryLen()))
	return nil
}

// release is the single exit path for a run: it converts panics into
// recoverable processing errors, returns the session to idle, and applies
// history truncation.
func (c *Coordinator) release(sess *entities.Session, runErr *error) {
	if r := recover(); r != nil {
		c.logger.Error("Pipeline run panicked",
			zap.String("clientID", sess.ID),
			zap.Any("panic", r))
		err := entities.AsError(fmt.Errorf("pipeline panic: %v", r))
		c.fail(sess, err)
		*runErr = err
	}
	sess.EndProcessing()
	sess.TruncateHistory(c.historyCap)
}

func (c *Coordinator) status(sess *entities.Session, status, message, stage string) {
	c.sender.Send(sess.ID, "processing_status", map[string]interface{}{
		"status":    status,
		"message":   message,
		"stage":     stage,
		"timestamp": time.Now().Unix(),
	})
}

func (c *Coordinator) fail(sess *entities.Session, err *entities.Error) {
	c.sender.Send(sess.ID, "error", err.Payload())
}
