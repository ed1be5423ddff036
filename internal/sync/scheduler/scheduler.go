// Package scheduler triggers queue drains automatically: after an online
// transition settles, and periodically while the device stays online.
package scheduler

import (
	"context"
	gosync "sync"
	"time"

	"github.com/thantzin/stockcount/backend/internal/connectivity"
	"github.com/thantzin/stockcount/backend/internal/logging"
	"github.com/thantzin/stockcount/backend/internal/sync"
)

// Drainer is the slice of the sync engine the scheduler drives.
type Drainer interface {
	SyncOfflineQueue(ctx context.Context, opts *sync.Options) sync.Result
}

// Config holds scheduler configuration.
type Config struct {
	// SettleDelay is how long to wait after an online transition before
	// draining, so a flapping radio does not trigger a burst of attempts.
	SettleDelay time.Duration
	// SyncInterval is the periodic drain cadence while online.
	// Zero disables periodic drains.
	SyncInterval time.Duration
	// OnResult, if set, receives every non-empty drain result. The shell
	// uses it for its optional success toast.
	OnResult func(sync.Result)
}

// DefaultConfig returns default scheduler configuration.
func DefaultConfig() *Config {
	return &Config{
		SettleDelay:  2 * time.Second,
		SyncInterval: 15 * time.Minute,
	}
}

// Scheduler watches the connectivity monitor and drives the engine.
type Scheduler struct {
	engine  Drainer
	monitor *connectivity.Monitor
	cfg     *Config

	mu          gosync.Mutex
	isRunning   bool
	wasOnline   bool
	settleTimer *time.Timer
	unsubscribe func()
	stopCh      chan struct{}
	wg          gosync.WaitGroup
}

// New creates a Scheduler.
func New(engine Drainer, monitor *connectivity.Monitor, cfg *Config) *Scheduler {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Scheduler{
		engine:  engine,
		monitor: monitor,
		cfg:     cfg,
	}
}

// Start begins watching connectivity. Safe to call once per Scheduler.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.stopCh = make(chan struct{})
	s.wasOnline = s.monitor.EffectiveOnline()
	s.mu.Unlock()

	s.unsubscribe = s.monitor.Subscribe(func(state connectivity.State) {
		s.onTransition(ctx)
	})

	if s.cfg.SyncInterval > 0 {
		s.wg.Add(1)
		go s.periodicLoop(ctx)
	}

	logging.Info("scheduler: started",
		map[string]interface{}{
			"settle_delay":  s.cfg.SettleDelay.String(),
			"sync_interval": s.cfg.SyncInterval.String(),
		})
}

// Stop halts the scheduler and waits for in-flight work it spawned.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	if s.settleTimer != nil {
		s.settleTimer.Stop()
		s.settleTimer = nil
	}
	close(s.stopCh)
	s.mu.Unlock()

	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.wg.Wait()

	logging.Info("scheduler: stopped")
}

// onTransition reacts to a connectivity change. Only the offline-to-online
// edge schedules a drain; going offline just cancels a pending one.
func (s *Scheduler) onTransition(ctx context.Context) {
	online := s.monitor.EffectiveOnline()

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}

	if !online {
		s.wasOnline = false
		if s.settleTimer != nil {
			s.settleTimer.Stop()
			s.settleTimer = nil
		}
		return
	}

	if s.wasOnline {
		return
	}
	s.wasOnline = true

	logging.Info("scheduler: back online, drain scheduled",
		map[string]interface{}{"settle_delay": s.cfg.SettleDelay.String()})

	if s.settleTimer != nil {
		s.settleTimer.Stop()
	}
	s.settleTimer = time.AfterFunc(s.cfg.SettleDelay, func() {
		s.drain(ctx)
	})
}

// periodicLoop drains on a fixed cadence while online.
func (s *Scheduler) periodicLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if s.monitor.EffectiveOnline() {
				s.drain(ctx)
			}
		}
	}
}

// drain runs one engine cycle and reports any non-empty result.
func (s *Scheduler) drain(ctx context.Context) {
	result := s.engine.SyncOfflineQueue(ctx, nil)

	if result.Total == 0 {
		return
	}
	if s.cfg.OnResult != nil {
		s.cfg.OnResult(result)
	}
}
