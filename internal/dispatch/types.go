// Package dispatch implements the task pipeline: ambiguity check, safety
// gate, routing, DAG execution, and the unconditional write-back.
package dispatch

import (
	"context"

	"github.com/B-A-M-N/NERVA/internal/workflow"
)

// Source names the channel a task arrived on.
type Source string

const (
	SourceText    Source = "text"
	SourceVoice   Source = "voice"
	SourceHotkey  Source = "hotkey"
	SourceAmbient Source = "ambient"
)

// TaskContext is one inbound request.
type TaskContext struct {
	Utterance string            `json:"utterance"`
	Source    Source            `json:"source"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Status is the final disposition of a dispatch.
type Status string

const (
	StatusOK                  Status = "ok"
	StatusClarificationNeeded Status = "clarification_needed"
	StatusRefused             Status = "refused"
	StatusFailed              Status = "failed"
)

// TaskResult is the dispatcher's answer.
type TaskResult struct {
	Status    Status               `json:"status"`
	Summary   string               `json:"summary"`
	Answer    string               `json:"answer,omitempty"`
	Artifacts map[string]any       `json:"artifacts,omitempty"`
	Steps     []workflow.NodeEvent `json:"steps,omitempty"`
	ThreadID  string               `json:"thread_id,omitempty"`
	Route     string               `json:"route,omitempty"`
}

// Clarifier asks the user one question on the same channel the task arrived
// on and returns the reply. An error means the channel cannot ask (ambient,
// disconnected voice), which ends the round.
type Clarifier interface {
	Clarify(ctx context.Context, question string) (string, error)
}

// Confirmer asks the user to approve a risky action on the same channel.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// ClarifierFunc adapts a function to Clarifier.
type ClarifierFunc func(ctx context.Context, question string) (string, error)

func (f ClarifierFunc) Clarify(ctx context.Context, question string) (string, error) {
	return f(ctx, question)
}

// ConfirmerFunc adapts a function to Confirmer.
type ConfirmerFunc func(ctx context.Context, prompt string) (bool, error)

func (f ConfirmerFunc) Confirm(ctx context.Context, prompt string) (bool, error) {
	return f(ctx, prompt)
}
