package websocket

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/halcyonvoice/server/domain/entities"
)

// MessageType defines the type of an inbound WebSocket message.
type MessageType string

// Supported client-to-server message types.
const (
	MessageTypeReconnect            MessageType = "reconnect"
	MessageTypePing                 MessageType = "ping"
	MessageTypeAudio                MessageType = "audio"
	MessageTypeChunkInfo            MessageType = "audio_chunk_info"
	MessageTypeChunk                MessageType = "audio_chunk"
	MessageTypeProcessAudio         MessageType = "process_audio"
	MessageTypeProcessTranscription MessageType = "process_transcription"
	MessageTypeTextMessage          MessageType = "text_message"
	MessageTypeWebRTCOffer          MessageType = "webrtc_offer"
	MessageTypeWebRTCAnswer         MessageType = "webrtc_answer"
	MessageTypeWebRTCICECandidate   MessageType = "webrtc_ice_candidate"
	MessageTypeWebRTCStreamReady    MessageType = "webrtc_stream_ready"
	MessageTypeHealthCheck          MessageType = "health_check"
	MessageTypeClientError          MessageType = "client_error"
)

// BaseMessage carries the type discriminator common to every message.
type BaseMessage struct {
	Type MessageType `json:"type"`
}

// ReconnectMessage asks the server to restore a previous session's
// conversation onto this connection.
type ReconnectMessage struct {
	BaseMessage
	PreviousClientID string `json:"previous_client_id"`
}

// AudioMessage carries one single-shot base64 audio payload.
type AudioMessage struct {
	BaseMessage
	AudioData  string `json:"audio_data"`
	FileFormat string `json:"file_format,omitempty"`
}

// ChunkInfoMessage announces a chunked audio transfer.
type ChunkInfoMessage struct {
	BaseMessage
	TotalChunks int    `json:"total_chunks"`
	FileFormat  string `json:"file_format"`
	TotalSize   int64  `json:"total_size"`
}

// ChunkMessage carries one indexed chunk of an announced transfer. Index and
// last-flag use pointers so a missing field is distinguishable from zero.
type ChunkMessage struct {
	BaseMessage
	ChunkData  string `json:"chunk_data"`
	ChunkIndex *int   `json:"chunk_index"`
	IsLast     *bool  `json:"is_last"`
}

// ProcessTranscriptionMessage runs the generation tail of the pipeline on
// caller-supplied text.
type ProcessTranscriptionMessage struct {
	BaseMessage
	Text           string `json:"text"`
	Voice          string `json:"voice,omitempty"`
	GenerateSpeech *bool  `json:"generate_speech,omitempty"`
}

// TextMessage is a plain text utterance, mostly for testing without audio.
type TextMessage struct {
	BaseMessage
	Text string `json:"text"`
}

// SignalMessage is a WebRTC negotiation message to be relayed to another
// session. SDP and candidate payloads are opaque to the server.
type SignalMessage struct {
	BaseMessage
	Target    string          `json:"target"`
	SDP       json.RawMessage `json:"sdp,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

// ClientErrorMessage reports a client-side failure for logging and state
// repair.
type ClientErrorMessage struct {
	BaseMessage
	ErrorType string          `json:"error_type"`
	Message   string          `json:"message"`
	Details   json.RawMessage `json:"details,omitempty"`
}

// MessageValidator parses and validates incoming messages into their typed
// forms. Field-level failures come back as validation errors ready to be
// reported to the client.
type MessageValidator struct{}

// NewMessageValidator creates a new message validator.
func NewMessageValidator() *MessageValidator {
	return &MessageValidator{}
}

// ValidateMessage validates an incoming message and returns the typed form.
func (v *MessageValidator) ValidateMessage(messageBytes []byte) (interface{}, error) {
	var base BaseMessage
	if err := json.Unmarshal(messageBytes, &base); err != nil {
		return nil, entities.NewValidationError("invalid JSON format")
	}

	switch base.Type {
	case MessageTypeReconnect:
		var msg ReconnectMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, entities.NewValidationError("invalid reconnect message")
		}
		return &msg, nil

	case MessageTypePing, MessageTypeProcessAudio, MessageTypeWebRTCStreamReady, MessageTypeHealthCheck:
		return &base, nil

	case MessageTypeAudio:
		var msg AudioMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, entities.NewValidationError("invalid audio message")
		}
		if msg.AudioData == "" {
			return nil, entities.NewValidationError("Missing audio_data in request")
		}
		return &msg, nil

	case MessageTypeChunkInfo:
		var msg ChunkInfoMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, entities.NewValidationError("invalid chunk info message")
		}
		if msg.TotalChunks == 0 || msg.FileFormat == "" || msg.TotalSize == 0 {
			return nil, entities.NewValidationError("Missing required chunk info data")
		}
		return &msg, nil

	case MessageTypeChunk:
		var msg ChunkMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, entities.NewValidationError("invalid chunk message")
		}
		if msg.ChunkData == "" || msg.ChunkIndex == nil || msg.IsLast == nil {
			return nil, entities.NewValidationError("Missing required chunk data fields")
		}
		return &msg, nil

	case MessageTypeProcessTranscription:
		var msg ProcessTranscriptionMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, entities.NewValidationError("invalid process_transcription message")
		}
		if msg.Text == "" {
			return nil, entities.NewValidationError("Missing transcription text in request")
		}
		return &msg, nil

	case MessageTypeTextMessage:
		var msg TextMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, entities.NewValidationError("invalid text message")
		}
		if msg.Text == "" {
			return nil, entities.NewValidationError("Missing text in request")
		}
		return &msg, nil

	case MessageTypeWebRTCOffer, MessageTypeWebRTCAnswer:
		var msg SignalMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, entities.NewValidationError("invalid signaling message")
		}
		if msg.Target == "" || len(msg.SDP) == 0 {
			return nil, entities.NewValidationError("Missing target or SDP in signaling request")
		}
		return &msg, nil

	case MessageTypeWebRTCICECandidate:
		var msg SignalMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, entities.NewValidationError("invalid signaling message")
		}
		if msg.Target == "" || len(msg.Candidate) == 0 {
			return nil, entities.NewValidationError("Missing target or candidate in ICE request")
		}
		return &msg, nil

	case MessageTypeClientError:
		var msg ClientErrorMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, entities.NewValidationError("invalid client error message")
		}
		return &msg, nil

	default:
		return nil, entities.NewValidationError(fmt.Sprintf("unsupported message type: %s", base.Type))
	}
}

// Envelope builds an outbound message: the event type plus its payload
// fields flattened into one JSON object.
func Envelope(event string, payload map[string]interface{}) []byte {
	merged := make(map[string]interface{}, len(payload)+1)
	for k, v := range payload {
		merged[k] = v
	}
	merged["type"] = event
	data, err := json.Marshal(merged)
	if err != nil {
		// Payloads are server-built maps of plain values; this should not
		// happen, but never send a broken frame.
		data, _ = json.Marshal(map[string]interface{}{
			"type":      "error",
			"message":   "failed to encode server message",
			"timestamp": time.Now().Unix(),
		})
	}
	return data
}

