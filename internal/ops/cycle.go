package ops

import (
	"context"
	"sync"
	"time"

	"github.com/B-A-M-N/NERVA/internal/logging"
)

// CycleManager runs a callback on a fixed interval, typically the morning
// briefing. One cycle at a time; a slow cycle delays the next tick rather
// than overlapping it.
type CycleManager struct {
	interval time.Duration
	run      func(ctx context.Context)
	logger   logging.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewCycleManager creates a stopped manager.
func NewCycleManager(interval time.Duration, run func(ctx context.Context), logger logging.Logger) *CycleManager {
	return &CycleManager{
		interval: interval,
		run:      run,
		logger:   logging.OrNop(logger),
	}
}

// Start begins the cycle loop. Calling Start on a running manager is a no-op.
func (m *CycleManager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}
	cycleCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		m.logger.Info("cycle started, interval %s", m.interval)
		for {
			select {
			case <-cycleCtx.Done():
				m.logger.Info("cycle stopped")
				return
			case <-ticker.C:
				m.run(cycleCtx)
			}
		}
	}()
}

// Stop halts the loop and waits for the current cycle to finish.
func (m *CycleManager) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel = nil
	m.done = nil
	m.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}
