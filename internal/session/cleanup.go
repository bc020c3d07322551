package session

import (
	"time"

	"go.uber.org/zap"
)

// CleanupService periodically expires sessions that stopped producing
// events without a clean disconnect.
type CleanupService struct {
	registry *Registry
	maxIdle  time.Duration
	interval time.Duration
	logger   *zap.Logger
	stopChan chan struct{}
}

// NewCleanupService creates a cleanup service for the registry.
func NewCleanupService(registry *Registry, maxIdle, interval time.Duration, logger *zap.Logger) *CleanupService {
	return &CleanupService{
		registry: registry,
		maxIdle:  maxIdle,
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start begins the background cleanup process.
func (s *CleanupService) Start() {
	go s.cleanupLoop()
	s.logger.Info("Session cleanup service started",
		zap.Duration("maxIdle", s.maxIdle),
		zap.Duration("interval", s.interval))
}

// Stop gracefully stops the cleanup service.
func (s *CleanupService) Stop() {
	close(s.stopChan)
	s.logger.Info("Session cleanup service stopped")
}

func (s *CleanupService) cleanupLoop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			if removed := s.registry.ExpireIdle(s.maxIdle); removed > 0 {
				s.logger.Info("Session cleanup completed",
					zap.Int("removed", removed),
					zap.Int("remaining", s.registry.Count()))
			}
		}
	}
}
