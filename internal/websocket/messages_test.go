package websocket

import (
	"encoding/json"
	"testing"

	"github.com/halcyonvoice/server/domain/entities"
)

func TestValidateMessageRejectsGarbage(t *testing.T) {
	validator := NewMessageValidator()

	tests := []struct {
		name    string
		message string
	}{
		{name: "not json", message: `this is not json`},
		{name: "unknown type", message: `{"type": "make_coffee"}`},
		{name: "empty object", message: `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := validator.ValidateMessage([]byte(tt.message))
			if err == nil {
				t.Fatal("Expected rejection")
			}
			coordErr, ok := err.(*entities.Error)
			if !ok || coordErr.Kind != entities.ErrorKindValidation {
				t.Errorf("Expected validation error, got %v", err)
			}
		})
	}
}

func TestValidateAudioMessage(t *testing.T) {
	validator := NewMessageValidator()

	tests := []struct {
		name    string
		message string
		wantErr bool
	}{
		{
			name:    "valid audio",
			message: `{"type": "audio", "audio_data": "SGVsbG8=", "file_format": "webm"}`,
			wantErr: false,
		},
		{
			name:    "missing audio_data",
			message: `{"type": "audio", "file_format": "webm"}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := validator.ValidateMessage([]byte(tt.message))
			if (err != nil) != tt.wantErr {
				t.Fatalf("wantErr=%v, got %v", tt.wantErr, err)
			}
			if err == nil {
				msg, ok := parsed.(*AudioMessage)
				if !ok {
					t.Fatalf("Expected *AudioMessage, got %T", parsed)
				}
				if msg.AudioData != "SGVsbG8=" {
					t.Errorf("Unexpected audio data: %s", msg.AudioData)
				}
			}
		})
	}
}

func TestValidateChunkMessage(t *testing.T) {
	validator := NewMessageValidator()

	tests := []struct {
		name    string
		message string
		wantErr bool
	}{
		{
			name:    "valid chunk",
			message: `{"type": "audio_chunk", "chunk_data": "QQ==", "chunk_index": 0, "is_last": false}`,
			wantErr: false,
		},
		{
			name:    "index zero must be accepted",
			message: `{"type": "audio_chunk", "chunk_data": "QQ==", "chunk_index": 0, "is_last": true}`,
			wantErr: false,
		},
		{
			name:    "missing chunk_index",
			message: `{"type": "audio_chunk", "chunk_data": "QQ==", "is_last": false}`,
			wantErr: true,
		},
		{
			name:    "missing is_last",
			message: `{"type": "audio_chunk", "chunk_data": "QQ==", "chunk_index": 1}`,
			wantErr: true,
		},
		{
			name:    "missing chunk_data",
			message: `{"type": "audio_chunk", "chunk_index": 1, "is_last": false}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := validator.ValidateMessage([]byte(tt.message))
			if (err != nil) != tt.wantErr {
				t.Errorf("wantErr=%v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidateChunkInfoMessage(t *testing.T) {
	validator := NewMessageValidator()

	tests := []struct {
		name    string
		message string
		wantErr bool
	}{
		{
			name:    "valid chunk info",
			message: `{"type": "audio_chunk_info", "total_chunks": 4, "file_format": "wav", "total_size": 4096}`,
			wantErr: false,
		},
		{
			name:    "missing total_chunks",
			message: `{"type": "audio_chunk_info", "file_format": "wav", "total_size": 4096}`,
			wantErr: true,
		},
		{
			name:    "missing file_format",
			message: `{"type": "audio_chunk_info", "total_chunks": 4, "total_size": 4096}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := validator.ValidateMessage([]byte(tt.message))
			if (err != nil) != tt.wantErr {
				t.Errorf("wantErr=%v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidateSignalingMessages(t *testing.T) {
	validator := NewMessageValidator()

	tests := []struct {
		name    string
		message string
		wantErr bool
	}{
		{
			name:    "valid offer",
			message: `{"type": "webrtc_offer", "target": "peer-1", "sdp": {"type": "offer"}}`,
			wantErr: false,
		},
		{
			name:    "offer without target",
			message: `{"type": "webrtc_offer", "sdp": {"type": "offer"}}`,
			wantErr: true,
		},
		{
			name:    "offer without sdp",
			message: `{"type": "webrtc_offer", "target": "peer-1"}`,
			wantErr: true,
		},
		{
			name:    "valid ice candidate",
			message: `{"type": "webrtc_ice_candidate", "target": "peer-1", "candidate": {"candidate": "..."}}`,
			wantErr: false,
		},
		{
			name:    "ice candidate without candidate",
			message: `{"type": "webrtc_ice_candidate", "target": "peer-1"}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := validator.ValidateMessage([]byte(tt.message))
			if (err != nil) != tt.wantErr {
				t.Errorf("wantErr=%v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidateBareMessages(t *testing.T) {
	validator := NewMessageValidator()

	for _, msgType := range []string{"ping", "process_audio", "webrtc_stream_ready", "health_check"} {
		parsed, err := validator.ValidateMessage([]byte(`{"type": "` + msgType + `"}`))
		if err != nil {
			t.Errorf("Type %s should validate bare, got %v", msgType, err)
			continue
		}
		base, ok := parsed.(*BaseMessage)
		if !ok || string(base.Type) != msgType {
			t.Errorf("Type %s: unexpected parse result %T", msgType, parsed)
		}
	}
}

func TestValidateTextMessages(t *testing.T) {
	validator := NewMessageValidator()

	if _, err := validator.ValidateMessage([]byte(`{"type": "text_message", "text": ""}`)); err == nil {
		t.Error("Empty text must be rejected")
	}
	if _, err := validator.ValidateMessage([]byte(`{"type": "process_transcription", "text": ""}`)); err == nil {
		t.Error("Empty transcription text must be rejected")
	}

	parsed, err := validator.ValidateMessage([]byte(`{"type": "process_transcription", "text": "hello", "voice": "nova", "generate_speech": false}`))
	if err != nil {
		t.Fatalf("Valid transcription rejected: %v", err)
	}
	msg := parsed.(*ProcessTranscriptionMessage)
	if msg.Voice != "nova" {
		t.Errorf("Expected voice nova, got %s", msg.Voice)
	}
	if msg.GenerateSpeech == nil || *msg.GenerateSpeech {
		t.Error("Expected generate_speech false")
	}
}

func TestEnvelope(t *testing.T) {
	data := Envelope("pong", map[string]interface{}{"server_time": 1234})

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Envelope produced invalid JSON: %v", err)
	}
	if decoded["type"] != "pong" {
		t.Errorf("Expected type pong, got %v", decoded["type"])
	}
	if decoded["server_time"] != float64(1234) {
		t.Errorf("Expected payload fields merged, got %v", decoded["server_time"])
	}
}

func TestEnvelopeErrorPayload(t *testing.T) {
	err := entities.NewAPIError(entities.StageSynthesizing, "Failed to convert text to speech", nil)
	data := Envelope("error", err.Payload())

	var decoded map[string]interface{}
	if unmarshalErr := json.Unmarshal(data, &decoded); unmarshalErr != nil {
		t.Fatalf("Envelope produced invalid JSON: %v", unmarshalErr)
	}
	if decoded["type"] != "error" {
		t.Errorf("Envelope discriminator must stay error, got %v", decoded["type"])
	}
	if decoded["error_type"] != "api_error" {
		t.Errorf("Expected error_type api_error, got %v", decoded["error_type"])
	}
	if decoded["stage"] != "tts" {
		t.Errorf("Expected stage tts, got %v", decoded["stage"])
	}
}
