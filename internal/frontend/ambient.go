package frontend

import (
	"context"
	"time"

	"github.com/B-A-M-N/NERVA/internal/dispatch"
	"github.com/B-A-M-N/NERVA/internal/logging"
	"github.com/B-A-M-N/NERVA/internal/ops"
)

// AmbientMonitor periodically runs the daily briefing on the ambient channel.
// Ambient tasks can never ask for clarification or confirmation; the
// dispatcher resolves both against the absent channel and the results land in
// memory for the next interactive session.
type AmbientMonitor struct {
	dispatcher *dispatch.Dispatcher
	cycle      *ops.CycleManager
	task       string
	logger     logging.Logger
}

// NewAmbientMonitor creates a monitor firing every interval.
func NewAmbientMonitor(dp *dispatch.Dispatcher, interval time.Duration, logger logging.Logger) *AmbientMonitor {
	m := &AmbientMonitor{
		dispatcher: dp,
		task:       "daily briefing",
		logger:     logging.OrNop(logger),
	}
	m.cycle = ops.NewCycleManager(interval, m.tick, logger)
	return m
}

// SetTask replaces the utterance each cycle dispatches. Call before Start.
func (m *AmbientMonitor) SetTask(utterance string) {
	if utterance != "" {
		m.task = utterance
	}
}

// Start begins the ambient loop.
func (m *AmbientMonitor) Start(ctx context.Context) {
	m.cycle.Start(ctx)
}

// Stop halts the loop, waiting for an in-flight tick.
func (m *AmbientMonitor) Stop() {
	m.cycle.Stop()
}

func (m *AmbientMonitor) tick(ctx context.Context) {
	result := m.dispatcher.Dispatch(ctx, dispatch.TaskContext{
		Utterance: m.task,
		Source:    dispatch.SourceAmbient,
	})
	m.logger.Info("ambient cycle finished: %s", result.Status)
}
