// Package scheduler drives background sync passes: periodic passes
// while online, and an immediate pass when connectivity returns.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/agrihub/fieldsync/internal/engine"
	apperrors "github.com/agrihub/fieldsync/internal/errors"
	"github.com/agrihub/fieldsync/internal/logging"
	"github.com/agrihub/fieldsync/internal/network"
)

// Config holds scheduler configuration.
type Config struct {
	SyncInterval time.Duration // how often to sync when online (default: 15 minutes)
	SyncTimeout  time.Duration // per-pass deadline (default: 5 minutes)
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() *Config {
	return &Config{
		SyncInterval: 15 * time.Minute,
		SyncTimeout:  5 * time.Minute,
	}
}

// Scheduler owns the background sync cadence. The engine decides
// whether a pass may run; the scheduler only decides when to ask.
type Scheduler struct {
	engine       *engine.Engine
	monitor      *network.Monitor
	syncInterval time.Duration
	syncTimeout  time.Duration
	logger       *logging.Logger

	stopCh      chan struct{}
	unsubscribe func()
	wg          sync.WaitGroup

	mu           sync.RWMutex
	isRunning    bool
	lastSyncTime time.Time
	lastResult   *engine.SyncResult
}

// New creates a Scheduler. A nil config uses defaults.
func New(eng *engine.Engine, monitor *network.Monitor, config *Config) *Scheduler {
	if config == nil {
		config = DefaultConfig()
	}
	return &Scheduler{
		engine:       eng,
		monitor:      monitor,
		syncInterval: config.SyncInterval,
		syncTimeout:  config.SyncTimeout,
		logger:       logging.Get().WithComponent("scheduler"),
		stopCh:       make(chan struct{}),
	}
}

// Start begins the periodic loop and subscribes to connectivity
// transitions so a returning network triggers an immediate pass.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.mu.Unlock()

	s.unsubscribe = s.monitor.Subscribe(func(online bool) {
		if !online {
			return
		}
		s.logger.Info("Connectivity restored, scheduling sync", nil)
		go s.runSync(ctx)
	})

	s.wg.Add(1)
	go s.loop(ctx)

	s.logger.Info("Sync scheduler started", map[string]interface{}{
		"interval": s.syncInterval.String(),
	})
}

// Stop halts the loop gracefully and waits for it to exit. A pass in
// flight finishes on its own.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	close(s.stopCh)
	s.wg.Wait()

	s.logger.Info("Sync scheduler stopped", nil)
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if !s.monitor.IsOnline() {
				s.logger.Debug("Skipping periodic sync while offline", nil)
				continue
			}
			s.runSync(ctx)
		}
	}
}

// runSync executes one pass. An already-running pass is skipped, not
// queued; the next tick will try again.
func (s *Scheduler) runSync(ctx context.Context) {
	syncCtx, cancel := context.WithTimeout(ctx, s.syncTimeout)
	defer cancel()

	result, err := s.engine.Sync(syncCtx)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrSyncInProgress) {
			s.logger.Debug("Sync already in progress, skipping", nil)
			return
		}
		s.logger.Error("Scheduled sync failed", err, nil)
		return
	}

	s.mu.Lock()
	s.lastSyncTime = time.Now()
	s.lastResult = result
	s.mu.Unlock()
}

// SyncNow triggers an immediate pass and waits for it. It returns the
// engine's result; a pass already in progress surfaces as
// ErrSyncInProgress.
func (s *Scheduler) SyncNow(ctx context.Context) (*engine.SyncResult, error) {
	syncCtx, cancel := context.WithTimeout(ctx, s.syncTimeout)
	defer cancel()

	result, err := s.engine.Sync(syncCtx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.lastSyncTime = time.Now()
	s.lastResult = result
	s.mu.Unlock()
	return result, nil
}

// Status is a point-in-time view of the scheduler and engine.
type Status struct {
	IsRunning    bool               `json:"is_running"`
	IsOnline     bool               `json:"is_online"`
	EngineState  engine.State       `json:"engine_state"`
	LastSyncTime *time.Time         `json:"last_sync_time,omitempty"`
	LastResult   *engine.SyncResult `json:"last_result,omitempty"`
	PendingCount int                `json:"pending_count"`
}

// GetStatus returns the current status.
func (s *Scheduler) GetStatus() Status {
	s.mu.RLock()
	status := Status{
		IsRunning:  s.isRunning,
		LastResult: s.lastResult,
	}
	if !s.lastSyncTime.IsZero() {
		t := s.lastSyncTime
		status.LastSyncTime = &t
	}
	s.mu.RUnlock()

	status.IsOnline = s.monitor.IsOnline()
	status.EngineState = s.engine.Status()
	if count, err := s.engine.PendingCount(); err == nil {
		status.PendingCount = count
	}
	return status
}

// IsRunning reports whether the background loop is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}
