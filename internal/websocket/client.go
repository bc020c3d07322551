package websocket

import (
	"context"
	"encoding/base64"
	"math"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/halcyonvoice/server/domain/entities"
)

// Client is a middleman between one websocket connection and the hub.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan []byte

	// Connection id, assigned at upgrade; doubles as the session id.
	clientID string

	logger *zap.Logger
}

// readPump pumps messages from the websocket connection to the handlers.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}
		c.processMessage(message)
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// processMessage dispatches one inbound message. It is the outermost handler
// boundary: no input may crash the coordinator, so unexpected failures are
// caught here and reported as recoverable processing errors.
func (c *Client) processMessage(message []byte) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Handler panicked",
				zap.String("clientID", c.clientID),
				zap.Any("panic", r))
			c.sendError(&entities.Error{
				Kind:        entities.ErrorKindProcessing,
				Message:     "internal error handling message",
				Recoverable: true,
			})
			if sess, ok := c.hub.registry.Get(c.clientID); ok {
				sess.ForceIdle()
			}
		}
	}()

	parsed, err := c.hub.validator.ValidateMessage(message)
	if err != nil {
		c.logger.Warn("Rejected invalid message",
			zap.String("clientID", c.clientID),
			zap.Error(err))
		c.sendError(entities.AsError(err))
		return
	}

	switch msg := parsed.(type) {
	case *ReconnectMessage:
		c.handleReconnect(msg)
	case *AudioMessage:
		c.handleAudio(msg)
	case *ChunkInfoMessage:
		c.handleChunkInfo(msg)
	case *ChunkMessage:
		c.handleChunk(msg)
	case *ProcessTranscriptionMessage:
		c.handleProcessTranscription(msg)
	case *TextMessage:
		c.handleTextMessage(msg)
	case *SignalMessage:
		c.handleSignal(msg)
	case *ClientErrorMessage:
		c.handleClientError(msg)
	case *BaseMessage:
		switch msg.Type {
		case MessageTypePing:
			c.handlePing()
		case MessageTypeProcessAudio:
			c.handleProcessAudio()
		case MessageTypeWebRTCStreamReady:
			c.handleStreamReady()
		case MessageTypeHealthCheck:
			c.handleHealthCheck()
		}
	}
}

// session resolves this connection's session, reporting an auth error to the
// client when it is gone (e.g. a late event after cleanup).
func (c *Client) session() (*entities.Session, bool) {
	sess, ok := c.hub.registry.Get(c.clientID)
	if !ok {
		c.logger.Warn("Session not found", zap.String("clientID", c.clientID))
		c.sendError(entities.NewAuthError("Client session not found"))
		return nil, false
	}
	sess.Touch()
	return sess, true
}

func (c *Client) handleReconnect(msg *ReconnectMessage) {
	sess, restored := c.hub.registry.Transplant(msg.PreviousClientID, c.clientID)

	message := "Reconnected without previous session data"
	if restored {
		message = "Successfully reconnected with session restoration"
	}
	c.sendEvent("server_status", map[string]interface{}{
		"status":    "reconnected",
		"message":   message,
		"client_id": c.clientID,
		"session_data": map[string]interface{}{
			"reconnection_count":     sess.ReconnectionCount,
			"conversation_preserved": restored,
		},
	})
}

func (c *Client) handlePing() {
	sess, ok := c.session()
	if !ok {
		return
	}
	c.sendEvent("pong", map[string]interface{}{
		"server_time":      time.Now().Unix(),
		"session_duration": time.Since(sess.ConnectedAt).Seconds(),
		"client_id":        c.clientID,
	})
}

func (c *Client) handleAudio(msg *AudioMessage) {
	sess, ok := c.session()
	if !ok {
		return
	}

	payload, err := base64.StdEncoding.DecodeString(msg.AudioData)
	if err != nil {
		c.sendError(entities.NewValidationError("audio_data is not valid base64"))
		return
	}

	format := msg.FileFormat
	if format == "" {
		format = "webm"
	}

	buffered, appendErr := sess.AppendAudio(payload, format)
	if appendErr != nil {
		c.logger.Error("Rejected oversized audio payload",
			zap.String("clientID", c.clientID),
			zap.Int("size", len(payload)))
		c.sendError(entities.AsError(appendErr))
		return
	}

	c.logger.Info("Audio received",
		zap.String("clientID", c.clientID),
		zap.Float64("sizeKB", roundKB(len(payload))),
		zap.String("format", format))

	c.sendEvent("audio_received", map[string]interface{}{
		"status":      "success",
		"message":     "Audio data received",
		"chunk_size":  roundKB(len(payload)),
		"buffer_size": buffered,
	})

	// Audio processes automatically; the run owns its own goroutine so other
	// sessions keep making progress.
	go c.hub.coordinator.Run(context.Background(), sess)
}

func (c *Client) handleChunkInfo(msg *ChunkInfoMessage) {
	sess, ok := c.session()
	if !ok {
		return
	}

	if err := sess.BeginTransfer(msg.TotalChunks, msg.FileFormat, msg.TotalSize); err != nil {
		c.sendError(entities.AsError(err))
		return
	}

	c.logger.Info("Prepared to receive audio chunks",
		zap.String("clientID", c.clientID),
		zap.Int("totalChunks", msg.TotalChunks),
		zap.String("format", msg.FileFormat))

	c.sendEvent("chunk_info_received", map[string]interface{}{
		"status":      "ready",
		"message":     "Ready to receive chunks",
		"chunk_count": msg.TotalChunks,
	})
}

func (c *Client) handleChunk(msg *ChunkMessage) {
	sess, ok := c.session()
	if !ok {
		return
	}

	payload, err := base64.StdEncoding.DecodeString(msg.ChunkData)
	if err != nil {
		c.sendError(entities.NewValidationError("chunk_data is not valid base64"))
		return
	}

	progress, stats, addErr := sess.AddChunk(*msg.ChunkIndex, payload, *msg.IsLast)
	if addErr != nil {
		c.sendError(entities.AsError(addErr))
		return
	}

	c.sendEvent("chunk_received", map[string]interface{}{
		"status":          "success",
		"chunk_index":     progress.Index,
		"received_chunks": progress.Received,
		"total_chunks":    progress.Total,
		"progress":        progress.Percent,
	})

	if stats == nil {
		return
	}

	c.logger.Info("Audio transfer complete",
		zap.String("clientID", c.clientID),
		zap.Int("chunks", stats.TotalChunks),
		zap.Float64("seconds", stats.ElapsedSec),
		zap.Float64("rateKBps", stats.RateKBps))

	c.sendEvent("chunks_complete", map[string]interface{}{
		"status":  "complete",
		"message": "All chunks received successfully",
		"stats":   stats,
	})

	go c.hub.coordinator.Run(context.Background(), sess)
}

func (c *Client) handleProcessAudio() {
	sess, ok := c.session()
	if !ok {
		return
	}
	go c.hub.coordinator.Run(context.Background(), sess)
}

func (c *Client) handleProcessTranscription(msg *ProcessTranscriptionMessage) {
	sess, ok := c.session()
	if !ok {
		return
	}
	generateSpeech := true
	if msg.GenerateSpeech != nil {
		generateSpeech = *msg.GenerateSpeech
	}
	go c.hub.coordinator.ProcessText(context.Background(), sess, msg.Text, msg.Voice, generateSpeech)
}

func (c *Client) handleTextMessage(msg *TextMessage) {
	sess, ok := c.session()
	if !ok {
		return
	}
	go c.hub.coordinator.ProcessText(context.Background(), sess, msg.Text, "", true)
}

func (c *Client) handleSignal(msg *SignalMessage) {
	sess, ok := c.session()
	if !ok {
		return
	}
	if err := c.hub.RelaySignal(sess, msg); err != nil {
		c.sendError(err)
	}
}

func (c *Client) handleStreamReady() {
	sess, ok := c.session()
	if !ok {
		return
	}
	sess.MarkRealtime()
	c.sendEvent("webrtc_stream_ready_ack", map[string]interface{}{
		"status":  "success",
		"message": "WebRTC stream ready acknowledged",
	})
}

func (c *Client) handleHealthCheck() {
	sess, ok := c.hub.registry.Get(c.clientID)
	if !ok {
		c.sendEvent("health_response", map[string]interface{}{
			"status":  "error",
			"message": "Client session not found",
		})
		return
	}
	sess.Touch()

	c.sendEvent("health_response", map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
		"services": map[string]interface{}{
			"websocket":     true,
			"transcription": c.hub.coordinator != nil,
			"generation":    c.hub.coordinator != nil,
			"synthesis":     c.hub.coordinator != nil,
		},
		"client_info": map[string]interface{}{
			"session_duration":   time.Since(sess.ConnectedAt).Seconds(),
			"conversation_turns": sess.HistoryLen() - 1,
		},
	})
}

func (c *Client) handleClientError(msg *ClientErrorMessage) {
	c.logger.Error("Client reported error",
		zap.String("clientID", c.clientID),
		zap.String("errorType", msg.ErrorType),
		zap.String("message", msg.Message))

	sess, ok := c.hub.registry.Get(c.clientID)
	if !ok {
		return
	}
	sess.Touch()

	// A client-side processing failure means its request will never finish;
	// release the guard so the session is not stuck.
	if msg.ErrorType == string(entities.ErrorKindProcessing) && sess.IsProcessing() {
		sess.ForceIdle()
		c.logger.Warn("Reset processing flag after client error",
			zap.String("clientID", c.clientID))
	}
}

func (c *Client) sendEvent(event string, payload map[string]interface{}) {
	c.enqueue(Envelope(event, payload))
}

func (c *Client) sendError(err *entities.Error) {
	c.enqueue(Envelope("error", err.Payload()))
}

func (c *Client) enqueue(data []byte) {
	select {
	case c.send <- data:
	default:
		c.logger.Warn("Send buffer full, dropping message",
			zap.String("clientID", c.clientID))
	}
}

func roundKB(bytes int) float64 {
	return math.Round(float64(bytes)/1024*100) / 100
}
