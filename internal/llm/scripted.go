package llm

import (
	"context"
	"sync"

	"github.com/B-A-M-N/NERVA/internal/nerrors"
)

type scriptedTurn struct {
	response string
	err      error
}

// ScriptedText is a TextClient for tests: it pops queued turns in order and
// records every prompt it saw.
type ScriptedText struct {
	mu      sync.Mutex
	turns   []scriptedTurn
	Prompts []string
}

// NewScriptedText queues successful responses.
func NewScriptedText(responses ...string) *ScriptedText {
	s := &ScriptedText{}
	for _, r := range responses {
		s.turns = append(s.turns, scriptedTurn{response: r})
	}
	return s
}

// QueueResponse appends a successful turn.
func (s *ScriptedText) QueueResponse(response string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, scriptedTurn{response: response})
}

// QueueError appends a failing turn.
func (s *ScriptedText) QueueError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, scriptedTurn{err: err})
}

func (s *ScriptedText) Chat(ctx context.Context, messages []Message, opts *Options) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", nerrors.FromContext("llm.chat", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(messages) > 0 {
		s.Prompts = append(s.Prompts, messages[len(messages)-1].Content)
	}
	if len(s.turns) == 0 {
		return "", errExhausted
	}
	turn := s.turns[0]
	s.turns = s.turns[1:]
	return turn.response, turn.err
}

func (s *ScriptedText) Model() string { return "scripted" }

// Calls returns how many prompts were answered or attempted.
func (s *ScriptedText) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Prompts)
}

// ScriptedVision is a VisionClient for tests.
type ScriptedVision struct {
	mu      sync.Mutex
	turns   []scriptedTurn
	Prompts []string
	Images  int
}

func NewScriptedVision(responses ...string) *ScriptedVision {
	s := &ScriptedVision{}
	for _, r := range responses {
		s.turns = append(s.turns, scriptedTurn{response: r})
	}
	return s
}

// QueueError appends a failing turn.
func (s *ScriptedVision) QueueError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, scriptedTurn{err: err})
}

func (s *ScriptedVision) Analyze(ctx context.Context, image []byte, prompt string, opts *Options) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", nerrors.FromContext("llm.analyze", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Prompts = append(s.Prompts, prompt)
	s.Images++
	if len(s.turns) == 0 {
		return "", errExhausted
	}
	turn := s.turns[0]
	s.turns = s.turns[1:]
	return turn.response, turn.err
}

func (s *ScriptedVision) Model() string { return "scripted-vision" }

// Calls returns how many analyses were requested.
func (s *ScriptedVision) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Prompts)
}

var errExhausted = nerrors.Internal("llm.scripted", "no scripted responses left")
