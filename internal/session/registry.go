package session

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/halcyonvoice/server/domain/entities"
)

// Registry is the single authority for session lifecycle. It owns the
// connection-id -> session mapping and serializes create/transplant/remove
// against concurrent lookups.
type Registry struct {
	mu           sync.RWMutex
	sessions     map[string]*entities.Session
	systemPrompt string
	logger       *zap.Logger
}

// NewRegistry creates an empty registry. New sessions are seeded with the
// given system prompt.
func NewRegistry(systemPrompt string, logger *zap.Logger) *Registry {
	return &Registry{
		sessions:     make(map[string]*entities.Session),
		systemPrompt: systemPrompt,
		logger:       logger,
	}
}

// Create registers a fresh session for a connection id. An existing entry is
// overwritten with a warning; state is never silently merged.
func (r *Registry) Create(id string) *entities.Session {
	sess := entities.NewSession(id, r.systemPrompt)
	r.mu.Lock()
	if _, exists := r.sessions[id]; exists {
		r.logger.Warn("Overwriting existing session", zap.String("clientID", id))
	}
	r.sessions[id] = sess
	r.mu.Unlock()
	return sess
}

// Get looks up a session. Absence is a normal outcome, e.g. a late event
// after disconnect.
func (r *Registry) Get(id string) (*entities.Session, bool) {
	r.mu.RLock()
	sess, ok := r.sessions[id]
	r.mu.RUnlock()
	return sess, ok
}

// Transplant moves a previous session's conversation onto a new connection
// id and deletes the old entry. When the old id is unknown the result is a
// fresh session with a reconnection count of one. The second return reports
// whether the conversation was preserved.
func (r *Registry) Transplant(oldID, newID string) (*entities.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, ok := r.sessions[oldID]
	if !ok {
		sess := entities.NewSession(newID, r.systemPrompt)
		sess.ReconnectionCount = 1
		r.sessions[newID] = sess
		return sess, false
	}

	sess := prev.Transplant(newID)
	delete(r.sessions, oldID)
	r.sessions[newID] = sess
	r.logger.Info("Session restored after reconnect",
		zap.String("previousClientID", oldID),
		zap.String("clientID", newID),
		zap.Int("reconnectionCount", sess.ReconnectionCount))
	return sess, true
}

// Remove deletes a session. Removing an absent id is a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// ExpireIdle removes sessions with no activity for longer than maxIdle and
// returns how many were dropped. Sessions mid-pipeline are left alone.
func (r *Registry) ExpireIdle(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed int
	for id, sess := range r.sessions {
		if sess.IsProcessing() {
			continue
		}
		if sess.LastActivity().Before(cutoff) {
			delete(r.sessions, id)
			removed++
			r.logger.Info("Expired idle session", zap.String("clientID", id))
		}
	}
	return removed
}
