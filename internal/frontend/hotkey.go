package frontend

import (
	"context"
	"strings"
	"sync"

	"github.com/B-A-M-N/NERVA/internal/dispatch"
	"github.com/B-A-M-N/NERVA/internal/logging"
	"github.com/B-A-M-N/NERVA/internal/nerrors"
)

// HotkeyManager maps key chords to canned utterances. The actual OS key hook
// lives outside; callers invoke Trigger with the chord name.
type HotkeyManager struct {
	mu         sync.RWMutex
	bindings   map[string]string
	dispatcher *dispatch.Dispatcher
	logger     logging.Logger
}

// NewHotkeyManager creates a manager with the default bindings.
func NewHotkeyManager(dp *dispatch.Dispatcher, logger logging.Logger) *HotkeyManager {
	m := &HotkeyManager{
		bindings:   make(map[string]string),
		dispatcher: dp,
		logger:     logging.OrNop(logger),
	}
	m.Register("ctrl+alt+d", "daily briefing")
	m.Register("ctrl+alt+m", "check my unread email")
	return m
}

// Register binds a chord to an utterance.
func (m *HotkeyManager) Register(chord, utterance string) {
	m.mu.Lock()
	m.bindings[strings.ToLower(chord)] = utterance
	m.mu.Unlock()
}

// Bindings returns a copy of the chord map.
func (m *HotkeyManager) Bindings() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.bindings))
	for k, v := range m.bindings {
		out[k] = v
	}
	return out
}

// Trigger dispatches the utterance bound to a chord. The "*" chord is the
// overview macro: calendar, unread mail, and recent Drive files in one pass,
// their summaries concatenated.
func (m *HotkeyManager) Trigger(ctx context.Context, chord string) (*dispatch.TaskResult, error) {
	if chord == "*" {
		return m.overview(ctx), nil
	}
	m.mu.RLock()
	utterance, ok := m.bindings[strings.ToLower(chord)]
	m.mu.RUnlock()
	if !ok {
		return nil, nerrors.NotFound("hotkey.trigger", "no binding for "+chord)
	}
	m.logger.Debug("hotkey %s -> %q", chord, utterance)
	return m.dispatcher.Dispatch(ctx, dispatch.TaskContext{
		Utterance: utterance,
		Source:    dispatch.SourceHotkey,
	}), nil
}

func (m *HotkeyManager) overview(ctx context.Context) *dispatch.TaskResult {
	parts := []string{
		"what is on my calendar today",
		"check my unread email",
		"show my recently modified drive files",
	}
	var summaries []string
	worst := dispatch.StatusOK
	for _, utterance := range parts {
		r := m.dispatcher.Dispatch(ctx, dispatch.TaskContext{
			Utterance: utterance,
			Source:    dispatch.SourceHotkey,
		})
		if r.Summary != "" {
			summaries = append(summaries, r.Summary)
		}
		if r.Status != dispatch.StatusOK {
			worst = r.Status
		}
	}
	return &dispatch.TaskResult{
		Status:  worst,
		Summary: strings.Join(summaries, "\n\n"),
		Route:   "overview",
	}
}
