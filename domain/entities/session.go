package entities

import (
	"sync"
	"time"
)

// PipelineStage identifies the phase a session's pipeline run is in. The
// values double as the stage tags sent to clients in processing_status and
// error messages.
type PipelineStage string

const (
	StageIdle         PipelineStage = "idle"
	StageReceiving    PipelineStage = "receiving"
	StageTranscribing PipelineStage = "transcription"
	StageGenerating   PipelineStage = "llm"
	StageSynthesizing PipelineStage = "tts"
	StageSending      PipelineStage = "sending"
)

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ConversationTurn is a single message in a session's prompt history.
// Turns are immutable once appended; their order is the prompt sent to the
// language model.
type ConversationTurn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// MaxSinglePayloadBytes caps the decoded size of one single-shot audio
// payload.
const MaxSinglePayloadBytes = 10 * 1024 * 1024

// Session is the per-connection mutable state tracked by the registry.
// All mutable fields are guarded by mu; events for one connection arrive
// sequentially, but a pipeline run mutates the session from its own
// goroutine.
type Session struct {
	ID                string
	ConnectedAt       time.Time
	ReconnectionCount int

	mu            sync.Mutex
	lastActivity  time.Time
	processing    bool
	stage         PipelineStage
	usingRealtime bool
	audioFormat   string
	audioBuffer   [][]byte
	transfer      *ChunkTransfer
	history       []ConversationTurn
}

// NewSession creates a fresh session seeded with the system prompt as the
// permanent first turn.
func NewSession(id, systemPrompt string) *Session {
	now := time.Now()
	return &Session{
		ID:           id,
		ConnectedAt:  now,
		lastActivity: now,
		stage:        StageIdle,
		history:      []ConversationTurn{{Role: RoleSystem, Content: systemPrompt}},
	}
}

// Touch updates the last-activity timestamp.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// LastActivity returns the time of the most recent inbound event.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// BeginProcessing acquires the session's single-pipeline guard. It fails
// with a processing error if a run is already active. Callers must release
// the guard with EndProcessing on every exit path.
func (s *Session) BeginProcessing() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.processing {
		return NewProcessingError("already processing audio")
	}
	s.processing = true
	return nil
}

// EndProcessing releases the pipeline guard and returns the session to idle.
// It is safe to call when the guard is not held.
func (s *Session) EndProcessing() {
	s.mu.Lock()
	s.processing = false
	s.stage = StageIdle
	s.mu.Unlock()
}

// IsProcessing reports whether a pipeline run is active.
func (s *Session) IsProcessing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processing
}

// ForceIdle clears a stuck processing flag, used when the client reports a
// processing error on its side.
func (s *Session) ForceIdle() {
	s.EndProcessing()
}

// SetStage records the current pipeline stage.
func (s *Session) SetStage(stage PipelineStage) {
	s.mu.Lock()
	s.stage = stage
	s.mu.Unlock()
}

// Stage returns the current pipeline stage.
func (s *Session) Stage() PipelineStage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stage
}

// MarkRealtime flags the session as using the realtime (WebRTC) transport.
func (s *Session) MarkRealtime() {
	s.mu.Lock()
	s.usingRealtime = true
	s.mu.Unlock()
}

// UsingRealtime reports whether the session negotiated a realtime transport.
func (s *Session) UsingRealtime() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usingRealtime
}

// AppendAudio buffers one decoded single-shot payload. Oversized payloads
// are rejected before touching the buffer.
func (s *Session) AppendAudio(payload []byte, format string) (buffered int, err error) {
	if len(payload) > MaxSinglePayloadBytes {
		return 0, NewValidationError("audio data exceeds size limit")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if format != "" {
		s.audioFormat = format
	}
	s.stage = StageReceiving
	s.audioBuffer = append(s.audioBuffer, payload)
	return len(s.audioBuffer), nil
}

// DrainAudio combines the buffered fragments into one payload and clears the
// buffer. It returns nil when nothing is buffered.
func (s *Session) DrainAudio() ([]byte, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.audioBuffer) == 0 {
		return nil, s.audioFormat
	}
	var total int
	for _, fragment := range s.audioBuffer {
		total += len(fragment)
	}
	combined := make([]byte, 0, total)
	for _, fragment := range s.audioBuffer {
		combined = append(combined, fragment...)
	}
	s.audioBuffer = nil
	return combined, s.audioFormat
}

// BufferedFragments returns how many payloads await processing.
func (s *Session) BufferedFragments() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.audioBuffer)
}

// AudioFormat returns the declared format of the buffered audio.
func (s *Session) AudioFormat() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.audioFormat
}

// BeginTransfer starts a chunked upload, discarding any prior incomplete
// transfer and any previously buffered audio.
func (s *Session) BeginTransfer(totalChunks int, format string, declaredSize int64) error {
	transfer, err := NewChunkTransfer(totalChunks, format, declaredSize)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.transfer = transfer
	s.audioBuffer = nil
	s.stage = StageReceiving
	s.mu.Unlock()
	return nil
}

// AddChunk records one indexed chunk of the pending transfer. When the
// transfer completes (last-chunk flag or all slots filled), the reassembled
// payload replaces the audio buffer, the transfer state is discarded, and
// non-nil stats are returned.
func (s *Session) AddChunk(index int, payload []byte, isLast bool) (ChunkProgress, *TransferStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.transfer == nil {
		return ChunkProgress{}, nil, NewValidationError("no chunk info received before chunk data")
	}
	progress, err := s.transfer.Put(index, payload)
	if err != nil {
		return ChunkProgress{}, nil, err
	}
	if !isLast && !s.transfer.Full() {
		return progress, nil, nil
	}
	assembled := s.transfer.Assemble()
	stats := s.transfer.Stats()
	s.audioBuffer = [][]byte{assembled}
	s.audioFormat = s.transfer.Format
	s.transfer = nil
	return progress, &stats, nil
}

// HasPendingTransfer reports whether a chunked upload is in flight.
func (s *Session) HasPendingTransfer() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transfer != nil
}

// AppendTurn pushes a turn onto the conversation history.
func (s *Session) AppendTurn(role Role, content string) {
	s.mu.Lock()
	s.history = append(s.history, ConversationTurn{Role: role, Content: content})
	s.mu.Unlock()
}

// History returns a copy of the conversation history in order.
func (s *Session) History() []ConversationTurn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ConversationTurn, len(s.history))
	copy(out, s.history)
	return out
}

// HistoryLen returns the number of turns, including the system turn.
func (s *Session) HistoryLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}

// TruncateHistory bounds the prompt history to maxTurns total turns. When the
// cap is exceeded the system turn is kept along with the most recent
// maxTurns-2 turns, so the result always fits strictly under the cap.
func (s *Session) TruncateHistory(maxTurns int) {
	if maxTurns < 3 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.history) <= maxTurns {
		return
	}
	keep := maxTurns - 2
	truncated := make([]ConversationTurn, 0, keep+1)
	truncated = append(truncated, s.history[0])
	truncated = append(truncated, s.history[len(s.history)-keep:]...)
	s.history = truncated
}

// ResetHistory replaces the history with a single system turn.
func (s *Session) ResetHistory(systemPrompt string) {
	s.mu.Lock()
	s.history = []ConversationTurn{{Role: RoleSystem, Content: systemPrompt}}
	s.mu.Unlock()
}

// Transplant builds the successor session for a reconnecting client. The
// conversation history carries over and the reconnection count increments;
// all transient state (buffers, transfers, the processing guard) starts
// fresh.
func (s *Session) Transplant(newID string) *Session {
	s.mu.Lock()
	history := make([]ConversationTurn, len(s.history))
	copy(history, s.history)
	count := s.ReconnectionCount
	s.mu.Unlock()

	now := time.Now()
	return &Session{
		ID:                newID,
		ConnectedAt:       now,
		lastActivity:      now,
		ReconnectionCount: count + 1,
		stage:             StageIdle,
		history:           history,
	}
}
