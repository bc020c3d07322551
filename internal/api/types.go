package api

// HealthResponse is the payload for the HTTP health endpoint.
type HealthResponse struct {
	Status         string          `json:"status"`
	Service        string          `json:"service"`
	ActiveSessions int             `json:"active_sessions"`
	Services       map[string]bool `json:"services"`
}
