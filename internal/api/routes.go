package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/halcyonvoice/server/internal/session"
	"github.com/halcyonvoice/server/internal/websocket"
)

// InitRoutes initializes all HTTP routes.
func InitRoutes(e *echo.Echo, hub *websocket.Hub, registry *session.Registry, logger *zap.Logger) {
	// Liveness probe for load balancers; the in-band health_check message
	// covers per-session health.
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, HealthResponse{
			Status:         "ok",
			Service:        "halcyon-voice-server",
			ActiveSessions: registry.Count(),
			Services: map[string]bool{
				"websocket":     true,
				"transcription": true,
				"generation":    true,
				"synthesis":     true,
			},
		})
	})

	e.GET("/ws", func(c echo.Context) error {
		return websocket.HandleWebSocket(hub, c, logger)
	})
}
