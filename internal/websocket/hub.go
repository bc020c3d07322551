package websocket

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/halcyonvoice/server/internal/pipeline"
	"github.com/halcyonvoice/server/internal/session"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Single-shot audio payloads may
	// decode to 10MiB, so allow for base64 overhead.
	maxMessageSize = 16 * 1024 * 1024
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Cross-origin policy is handled by the HTTP layer's CORS middleware.
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Hub maintains the set of active clients and routes outbound messages to
// them. Session state itself lives in the registry; the hub owns only the
// connection plumbing.
type Hub struct {
	// Registered clients by connection id.
	clients map[string]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Mutex for thread-safe access to clients map.
	mu sync.RWMutex

	registry    *session.Registry
	coordinator *pipeline.Coordinator
	validator   *MessageValidator

	logger *zap.Logger
}

// NewHub creates a new WebSocket hub over the session registry.
func NewHub(registry *session.Registry, logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		registry:   registry,
		validator:  NewMessageValidator(),
		logger:     logger,
	}
}

// UseCoordinator attaches the pipeline coordinator. Set after construction
// because the coordinator delivers its events through the hub.
func (h *Hub) UseCoordinator(c *pipeline.Coordinator) {
	h.coordinator = c
}

// Run starts the hub's main loop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.clientID] = client
			h.mu.Unlock()
			h.logger.Info("Client registered", zap.String("clientID", client.clientID))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.clientID]; ok {
				delete(h.clients, client.clientID)
				close(client.send)
			}
			h.mu.Unlock()
			h.registry.Remove(client.clientID)
			h.logger.Info("Client unregistered", zap.String("clientID", client.clientID))
		}
	}
}

// Send implements pipeline.Sender: it delivers a typed event to one client.
// Sends to absent clients are dropped silently; sends to a client whose
// outbound buffer is full are dropped with a warning rather than blocking
// the pipeline.
func (h *Hub) Send(clientID string, event string, payload map[string]interface{}) {
	h.mu.RLock()
	client, ok := h.clients[clientID]
	h.mu.RUnlock()
	if !ok {
		h.logger.Debug("Dropping message for absent client",
			zap.String("clientID", clientID),
			zap.String("event", event))
		return
	}

	select {
	case client.send <- Envelope(event, payload):
	default:
		h.logger.Warn("Client send buffer full, dropping message",
			zap.String("clientID", clientID),
			zap.String("event", event))
	}
}

// HasClient reports whether a connection id has a live outbound channel.
func (h *Hub) HasClient(clientID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[clientID]
	return ok
}

// ActiveClients returns the ids of currently connected clients.
func (h *Hub) ActiveClients() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	return ids
}

// HandleWebSocket upgrades the request and starts a new client session.
func HandleWebSocket(hub *Hub, c echo.Context, logger *zap.Logger) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	clientID := uuid.NewString()
	client := &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, 256),
		clientID: clientID,
		logger:   logger,
	}

	sess := hub.registry.Create(clientID)
	client.hub.register <- client

	go client.writePump()
	go client.readPump()

	client.sendEvent("server_status", map[string]interface{}{
		"status":    "connected",
		"message":   "Successfully connected to voice assistant server",
		"client_id": clientID,
		"session_data": map[string]interface{}{
			"connection_time": sess.ConnectedAt.Format(time.RFC3339),
			"server_info":     "Halcyon Voice WebSocket Server",
			"webrtc_supported": true,
		},
	})

	logger.Info("Client connected", zap.String("clientID", clientID))
	return nil
}
