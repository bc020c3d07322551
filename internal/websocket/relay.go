package websocket

import (
	"go.uber.org/zap"

	"github.com/halcyonvoice/server/domain/entities"
)

// SignalTargetServer is the reserved target meaning the coordinator itself:
// such signals are acknowledged locally and never forwarded.
const SignalTargetServer = "server"

// RelaySignal forwards a peer-negotiation message to the target session's
// outbound channel. The relay is stateless pass-through: the only session
// mutation is marking the sender as using the realtime transport on its
// first offer.
func (h *Hub) RelaySignal(sess *entities.Session, msg *SignalMessage) *entities.Error {
	switch msg.Type {
	case MessageTypeWebRTCOffer:
		if msg.Target == SignalTargetServer {
			sess.MarkRealtime()
			h.Send(sess.ID, "webrtc_stream_ready_ack", map[string]interface{}{
				"status":  "success",
				"message": "WebRTC offer acknowledged",
			})
			h.logger.Info("WebRTC offer acknowledged by server",
				zap.String("clientID", sess.ID))
			return nil
		}

	case MessageTypeWebRTCICECandidate:
		if msg.Target == SignalTargetServer {
			h.logger.Debug("ICE candidate for server acknowledged",
				zap.String("clientID", sess.ID))
			return nil
		}
	}

	if !h.HasClient(msg.Target) {
		return entities.NewValidationError("Target client not found or not connected")
	}

	payload := map[string]interface{}{
		"from": sess.ID,
	}
	if len(msg.SDP) > 0 {
		payload["sdp"] = msg.SDP
	}
	if len(msg.Candidate) > 0 {
		payload["candidate"] = msg.Candidate
	}

	// Forward to the target session only, never broadcast.
	h.Send(msg.Target, string(msg.Type), payload)

	h.logger.Info("Signal forwarded",
		zap.String("kind", string(msg.Type)),
		zap.String("from", sess.ID),
		zap.String("target", msg.Target))
	return nil
}
