package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/halcyonvoice/server/domain/entities"
	"github.com/halcyonvoice/server/domain/repositories"
)

type stubSTT struct {
	transcript string
	err        error
	called     bool
}

func (s *stubSTT) TranscribeAudio(ctx context.Context, audioData []byte, config repositories.AudioConfig) (string, error) {
	s.called = true
	return s.transcript, s.err
}

type stubLLM struct {
	reply string
	err   error
}

func (s *stubLLM) GenerateReply(ctx context.Context, history []entities.ConversationTurn) (string, error) {
	return s.reply, s.err
}

type stubTTS struct {
	audio  []byte
	err    error
	called bool
	voice  string
}

func (s *stubTTS) SynthesizeSpeech(ctx context.Context, text, voice string) ([]byte, error) {
	s.called = true
	s.voice = voice
	return s.audio, s.err
}

type sentEvent struct {
	event   string
	payload map[string]interface{}
}

type recordingSender struct {
	mu     sync.Mutex
	events []sentEvent
}

func (r *recordingSender) Send(clientID string, event string, payload map[string]interface{}) {
	r.mu.Lock()
	r.events = append(r.events, sentEvent{event: event, payload: payload})
	r.mu.Unlock()
}

func (r *recordingSender) byEvent(event string) []sentEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []sentEvent
	for _, e := range r.events {
		if e.event == event {
			out = append(out, e)
		}
	}
	return out
}

func newTestCoordinator(stt *stubSTT, llm *stubLLM, tts *stubTTS) (*Coordinator, *recordingSender) {
	sender := &recordingSender{}
	c := NewCoordinator(stt, llm, tts, sender, Config{}, zap.NewNop())
	return c, sender
}

func newBufferedSession(t *testing.T) *entities.Session {
	t.Helper()
	sess := entities.NewSession("client-1", "prompt")
	if _, err := sess.AppendAudio([]byte("audio-bytes"), "webm"); err != nil {
		t.Fatalf("Failed to buffer audio: %v", err)
	}
	return sess
}

func TestRunSuccess(t *testing.T) {
	stt := &stubSTT{transcript: "hello there"}
	llm := &stubLLM{reply: "hi, how are you feeling?"}
	tts := &stubTTS{audio: []byte("synth-audio")}
	c, sender := newTestCoordinator(stt, llm, tts)
	sess := newBufferedSession(t)

	if err := c.Run(context.Background(), sess); err != nil {
		t.Fatalf("Expected run to succeed, got %v", err)
	}

	transcriptions := sender.byEvent("transcription")
	if len(transcriptions) != 1 || transcriptions[0].payload["text"] != "hello there" {
		t.Errorf("Expected one transcription event with the text, got %v", transcriptions)
	}

	responses := sender.byEvent("response")
	if len(responses) != 1 {
		t.Fatalf("Expected one response event, got %d", len(responses))
	}
	resp := responses[0].payload
	if resp["text"] != "hi, how are you feeling?" {
		t.Errorf("Unexpected response text: %v", resp["text"])
	}
	if resp["type"] != "voice" {
		t.Errorf("Expected voice response, got %v", resp["type"])
	}
	if resp["audio"] == nil {
		t.Error("Expected audio in response")
	}
	if resp["is_final"] != true {
		t.Error("Expected is_final true")
	}

	history := sess.History()
	if len(history) != 3 {
		t.Fatalf("Expected system, user, assistant turns, got %d", len(history))
	}
	if history[1].Role != entities.RoleUser || history[1].Content != "hello there" {
		t.Errorf("Expected user turn from transcript, got %+v", history[1])
	}
	if history[2].Role != entities.RoleAssistant {
		t.Errorf("Expected assistant turn, got %+v", history[2])
	}

	if sess.IsProcessing() {
		t.Error("Expected guard released after run")
	}
	if sess.Stage() != entities.StageIdle {
		t.Errorf("Expected idle stage after run, got %s", sess.Stage())
	}
	if sess.BufferedFragments() != 0 {
		t.Error("Expected audio buffer drained")
	}
	if tts.voice != "alloy" {
		t.Errorf("Expected default voice alloy, got %s", tts.voice)
	}
}

func TestRunWithoutAudio(t *testing.T) {
	stt := &stubSTT{}
	c, sender := newTestCoordinator(stt, &stubLLM{}, &stubTTS{})
	sess := entities.NewSession("client-1", "prompt")

	err := c.Run(context.Background(), sess)
	if err == nil {
		t.Fatal("Expected run without audio to fail")
	}

	errorEvents := sender.byEvent("error")
	if len(errorEvents) != 1 || errorEvents[0].payload["error_type"] != "validation_error" {
		t.Errorf("Expected one validation error event, got %v", errorEvents)
	}
	if stt.called {
		t.Error("Transcription must not run without audio")
	}
	if sess.IsProcessing() {
		t.Error("Guard must not be held after rejection")
	}
}

func TestRunWhileBusy(t *testing.T) {
	c, sender := newTestCoordinator(&stubSTT{}, &stubLLM{}, &stubTTS{})
	sess := newBufferedSession(t)

	if err := sess.BeginProcessing(); err != nil {
		t.Fatalf("Failed to hold the guard: %v", err)
	}

	err := c.Run(context.Background(), sess)
	if err == nil {
		t.Fatal("Expected concurrent run to be rejected")
	}

	errorEvents := sender.byEvent("error")
	if len(errorEvents) != 1 || errorEvents[0].payload["error_type"] != "processing_error" {
		t.Errorf("Expected processing error event, got %v", errorEvents)
	}

	// The rejected run must leave the active run's state alone.
	if !sess.IsProcessing() {
		t.Error("Active run's guard must survive a rejected run")
	}
	if sess.BufferedFragments() != 1 {
		t.Error("Active run's buffered audio must survive a rejected run")
	}
}

func TestTranscriptionFailureIsFatal(t *testing.T) {
	stt := &stubSTT{err: errors.New("upstream 500")}
	c, sender := newTestCoordinator(stt, &stubLLM{reply: "unused"}, &stubTTS{})
	sess := newBufferedSession(t)

	err := c.Run(context.Background(), sess)
	if err == nil {
		t.Fatal("Expected transcription failure to abort the run")
	}

	errorEvents := sender.byEvent("error")
	if len(errorEvents) != 1 {
		t.Fatalf("Expected one error event, got %d", len(errorEvents))
	}
	if errorEvents[0].payload["error_type"] != "api_error" {
		t.Errorf("Expected api_error, got %v", errorEvents[0].payload["error_type"])
	}
	if errorEvents[0].payload["stage"] != "transcription" {
		t.Errorf("Expected transcription stage tag, got %v", errorEvents[0].payload["stage"])
	}

	if len(sender.byEvent("response")) != 0 {
		t.Error("No response may follow a fatal failure")
	}
	if sess.HistoryLen() != 1 {
		t.Errorf("Failed run must not grow history, got %d turns", sess.HistoryLen())
	}
	if sess.IsProcessing() {
		t.Error("Guard must be released after a failed run")
	}
}

func TestGenerationFailureIsFatal(t *testing.T) {
	llm := &stubLLM{err: errors.New("quota exceeded")}
	tts := &stubTTS{}
	c, sender := newTestCoordinator(&stubSTT{}, llm, tts)
	sess := entities.NewSession("client-1", "prompt")

	err := c.ProcessText(context.Background(), sess, "hello", "", true)
	if err == nil {
		t.Fatal("Expected generation failure to abort the run")
	}

	errorEvents := sender.byEvent("error")
	if len(errorEvents) != 1 || errorEvents[0].payload["stage"] != "llm" {
		t.Errorf("Expected llm-stage api error, got %v", errorEvents)
	}
	if tts.called {
		t.Error("Synthesis must not run after generation failure")
	}
	if len(sender.byEvent("response")) != 0 {
		t.Error("No response may follow a fatal failure")
	}
	if sess.IsProcessing() {
		t.Error("Guard must be released after a failed run")
	}
}

func TestSynthesisFailureDegradesToText(t *testing.T) {
	tts := &stubTTS{err: errors.New("voice unavailable")}
	c, sender := newTestCoordinator(&stubSTT{}, &stubLLM{reply: "take a slow breath"}, tts)
	sess := entities.NewSession("client-1", "prompt")

	if err := c.ProcessText(context.Background(), sess, "I feel anxious", "", true); err != nil {
		t.Fatalf("Synthesis failure must not abort the run, got %v", err)
	}

	errorEvents := sender.byEvent("error")
	if len(errorEvents) != 1 || errorEvents[0].payload["stage"] != "tts" {
		t.Errorf("Expected tts-stage api error reported, got %v", errorEvents)
	}

	responses := sender.byEvent("response")
	if len(responses) != 1 {
		t.Fatalf("Expected the text response to still go out, got %d", len(responses))
	}
	if responses[0].payload["type"] != "text" {
		t.Errorf("Expected degraded text response, got %v", responses[0].payload["type"])
	}
	if responses[0].payload["audio"] != nil {
		t.Error("Degraded response must carry no audio")
	}
	if responses[0].payload["text"] != "take a slow breath" {
		t.Errorf("Unexpected response text: %v", responses[0].payload["text"])
	}
}

func TestProcessTextWithoutSpeech(t *testing.T) {
	tts := &stubTTS{audio: []byte("unused")}
	c, sender := newTestCoordinator(&stubSTT{}, &stubLLM{reply: "okay"}, tts)
	sess := entities.NewSession("client-1", "prompt")

	if err := c.ProcessText(context.Background(), sess, "just text please", "", false); err != nil {
		t.Fatalf("Expected text-only run to succeed, got %v", err)
	}

	if tts.called {
		t.Error("Synthesis must be skipped when speech is not requested")
	}
	responses := sender.byEvent("response")
	if len(responses) != 1 || responses[0].payload["type"] != "text" {
		t.Errorf("Expected text response, got %v", responses)
	}
}

func TestProcessTextVoiceSelection(t *testing.T) {
	tts := &stubTTS{audio: []byte("a")}
	c, _ := newTestCoordinator(&stubSTT{}, &stubLLM{reply: "okay"}, tts)
	sess := entities.NewSession("client-1", "prompt")

	if err := c.ProcessText(context.Background(), sess, "hi", "nova", true); err != nil {
		t.Fatalf("Expected run to succeed, got %v", err)
	}
	if tts.voice != "nova" {
		t.Errorf("Expected requested voice nova, got %s", tts.voice)
	}
}

func TestHistoryTruncatedAfterRun(t *testing.T) {
	c, _ := newTestCoordinator(&stubSTT{}, &stubLLM{reply: "reply"}, &stubTTS{audio: []byte("a")})
	sess := entities.NewSession("client-1", "prompt")
	for i := 0; i < 20; i++ {
		sess.AppendTurn(entities.RoleUser, fmt.Sprintf("old turn %d", i))
	}

	if err := c.ProcessText(context.Background(), sess, "latest", "", true); err != nil {
		t.Fatalf("Expected run to succeed, got %v", err)
	}

	if sess.HistoryLen() > 12 {
		t.Errorf("Expected history bounded to 12 turns, got %d", sess.HistoryLen())
	}
	history := sess.History()
	if history[0].Role != entities.RoleSystem {
		t.Error("System turn must survive truncation")
	}
	if history[len(history)-1].Content != "reply" {
		t.Errorf("Newest turn must survive truncation, got %q", history[len(history)-1].Content)
	}
}

func TestStatusEventsCarryStages(t *testing.T) {
	c, sender := newTestCoordinator(&stubSTT{transcript: "hi"}, &stubLLM{reply: "hello"}, &stubTTS{audio: []byte("a")})
	sess := newBufferedSession(t)

	if err := c.Run(context.Background(), sess); err != nil {
		t.Fatalf("Expected run to succeed, got %v", err)
	}

	var stages []string
	for _, e := range sender.byEvent("processing_status") {
		if stage, ok := e.payload["stage"].(string); ok {
			stages = append(stages, stage)
		}
	}

	want := []string{"started", "transcription", "llm", "tts", "completed"}
	if len(stages) != len(want) {
		t.Fatalf("Expected stages %v, got %v", want, stages)
	}
	for i := range want {
		if stages[i] != want[i] {
			t.Errorf("Stage %d: expected %s, got %s", i, want[i], stages[i])
		}
	}
}
