// Package workflow implements the DAG execution engine and the shared
// RunContext every skill runs on.
package workflow

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/B-A-M-N/NERVA/internal/jsonx"
)

// NodeStatus is the lifecycle state of one DAG node.
type NodeStatus string

const (
	StatusPending NodeStatus = "pending"
	StatusRunning NodeStatus = "running"
	StatusOK      NodeStatus = "ok"
	StatusFailed  NodeStatus = "failed"
	StatusSkipped NodeStatus = "skipped"
)

// Terminal reports whether the status is final.
func (s NodeStatus) Terminal() bool {
	switch s {
	case StatusOK, StatusFailed, StatusSkipped:
		return true
	default:
		return false
	}
}

// NodeEvent records one status transition of a node. Events are appended in
// real-time order; the last event for a node carries its outcome.
type NodeEvent struct {
	Node       string     `json:"node"`
	Status     NodeStatus `json:"status"`
	StartedAt  time.Time  `json:"started_at,omitempty"`
	FinishedAt time.Time  `json:"finished_at,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// RunContext is the shared mutable state carried through one DAG execution.
//
// Concurrency contract: sibling nodes must write disjoint keys. All map and
// event access goes through the context mutex, so writes published by a
// dependency are visible to every dependent.
type RunContext struct {
	mu sync.Mutex

	RunID      string
	Mode       string
	StartedAt  time.Time
	FinishedAt time.Time

	inputs    map[string]any
	artifacts map[string]any
	outputs   map[string]any
	extra     map[string]any
	events    []NodeEvent
}

// NewRunContext creates a context for one workflow execution. Mode names the
// trigger (text, voice, hotkey, ambient).
func NewRunContext(mode string) *RunContext {
	return &RunContext{
		RunID:     uuid.NewString(),
		Mode:      mode,
		StartedAt: time.Now().UTC(),
		inputs:    make(map[string]any),
		artifacts: make(map[string]any),
		outputs:   make(map[string]any),
		extra:     make(map[string]any),
	}
}

// SetInput stores a pre-execution input value.
func (rc *RunContext) SetInput(key string, value any) {
	rc.mu.Lock()
	rc.inputs[key] = value
	rc.mu.Unlock()
}

// Input returns an input value.
func (rc *RunContext) Input(key string) (any, bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	v, ok := rc.inputs[key]
	return v, ok
}

// InputString returns an input coerced to string, or "".
func (rc *RunContext) InputString(key string) string {
	v, _ := rc.Input(key)
	s, _ := v.(string)
	return s
}

// SetArtifact stores an intermediate artifact produced during execution.
func (rc *RunContext) SetArtifact(key string, value any) {
	rc.mu.Lock()
	rc.artifacts[key] = value
	rc.mu.Unlock()
}

// Artifact returns an artifact value.
func (rc *RunContext) Artifact(key string) (any, bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	v, ok := rc.artifacts[key]
	return v, ok
}

// Artifacts returns a copy of all artifacts.
func (rc *RunContext) Artifacts() map[string]any {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	out := make(map[string]any, len(rc.artifacts))
	for k, v := range rc.artifacts {
		out[k] = v
	}
	return out
}

// SetOutput stores a final result value.
func (rc *RunContext) SetOutput(key string, value any) {
	rc.mu.Lock()
	rc.outputs[key] = value
	rc.mu.Unlock()
}

// Output returns a final result value.
func (rc *RunContext) Output(key string) (any, bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	v, ok := rc.outputs[key]
	return v, ok
}

// OutputString returns an output coerced to string, or "".
func (rc *RunContext) OutputString(key string) string {
	v, _ := rc.Output(key)
	s, _ := v.(string)
	return s
}

// SetExtra stores a loose scratch value.
func (rc *RunContext) SetExtra(key string, value any) {
	rc.mu.Lock()
	rc.extra[key] = value
	rc.mu.Unlock()
}

// Extra returns a scratch value.
func (rc *RunContext) Extra(key string) (any, bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	v, ok := rc.extra[key]
	return v, ok
}

func (rc *RunContext) recordEvent(ev NodeEvent) {
	rc.mu.Lock()
	rc.events = append(rc.events, ev)
	rc.mu.Unlock()
}

// Events returns a copy of all status transitions in real-time order.
func (rc *RunContext) Events() []NodeEvent {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	out := make([]NodeEvent, len(rc.events))
	copy(out, rc.events)
	return out
}

// Outcome returns the last recorded event for a node.
func (rc *RunContext) Outcome(node string) (NodeEvent, bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	for i := len(rc.events) - 1; i >= 0; i-- {
		if rc.events[i].Node == node {
			return rc.events[i], true
		}
	}
	return NodeEvent{}, false
}

// Failed reports whether any node finished with status failed.
func (rc *RunContext) Failed() bool {
	seen := make(map[string]NodeStatus)
	for _, ev := range rc.Events() {
		seen[ev.Node] = ev.Status
	}
	for _, st := range seen {
		if st == StatusFailed {
			return true
		}
	}
	return false
}

type contextSnapshot struct {
	RunID      string         `json:"run_id"`
	Mode       string         `json:"mode"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Inputs     map[string]any `json:"inputs"`
	Artifacts  map[string]any `json:"artifacts"`
	Outputs    map[string]any `json:"outputs"`
	Extra      map[string]any `json:"extra"`
	Events     []NodeEvent    `json:"events"`
}

// MarshalJSON serializes the context for logging and replay.
func (rc *RunContext) MarshalJSON() ([]byte, error) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return jsonx.Marshal(contextSnapshot{
		RunID:      rc.RunID,
		Mode:       rc.Mode,
		StartedAt:  rc.StartedAt,
		FinishedAt: rc.FinishedAt,
		Inputs:     rc.inputs,
		Artifacts:  rc.artifacts,
		Outputs:    rc.outputs,
		Extra:      rc.extra,
		Events:     rc.events,
	})
}

// UnmarshalJSON restores a serialized context.
func (rc *RunContext) UnmarshalJSON(data []byte) error {
	var snap contextSnapshot
	if err := jsonx.Unmarshal(data, &snap); err != nil {
		return err
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.RunID = snap.RunID
	rc.Mode = snap.Mode
	rc.StartedAt = snap.StartedAt
	rc.FinishedAt = snap.FinishedAt
	rc.inputs = orEmpty(snap.Inputs)
	rc.artifacts = orEmpty(snap.Artifacts)
	rc.outputs = orEmpty(snap.Outputs)
	rc.extra = orEmpty(snap.Extra)
	rc.events = snap.Events
	return nil
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return make(map[string]any)
	}
	return m
}
