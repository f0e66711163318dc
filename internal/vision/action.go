// Package vision implements the screenshot-driven browser agent: capture,
// ask the vision model for the next action, execute, repeat.
package vision

import (
	"fmt"
	"strings"

	"github.com/B-A-M-N/NERVA/internal/jsonx"
	"github.com/B-A-M-N/NERVA/internal/nerrors"
)

// ActionKind names what the model asked the agent to do next.
type ActionKind string

const (
	ActionClick    ActionKind = "click"
	ActionType     ActionKind = "type"
	ActionScroll   ActionKind = "scroll"
	ActionNavigate ActionKind = "navigate"
	ActionWait     ActionKind = "wait"
	ActionComplete ActionKind = "complete"
)

// Action is the model's JSON-decoded next step.
type Action struct {
	Kind              ActionKind `json:"action"`
	TargetDescription string     `json:"target,omitempty"`
	Text              string     `json:"text,omitempty"`
	URL               string     `json:"url,omitempty"`
	DurationMs        int        `json:"duration_ms,omitempty"`
	Rationale         string     `json:"rationale,omitempty"`
}

// ParseAction decodes a model reply into an Action. The reply may bury the
// JSON object in prose; extraction and repair are attempted before giving up.
func ParseAction(reply string) (*Action, error) {
	var a Action
	if err := jsonx.ExtractObject(reply, &a); err != nil {
		return nil, err
	}
	a.Kind = ActionKind(strings.ToLower(strings.TrimSpace(string(a.Kind))))
	switch a.Kind {
	case ActionClick, ActionType, ActionScroll, ActionNavigate, ActionWait, ActionComplete:
		return &a, nil
	default:
		return nil, nerrors.BadResponse("vision.parse_action", fmt.Sprintf("unknown action %q", a.Kind))
	}
}

func (a *Action) String() string {
	switch a.Kind {
	case ActionClick:
		return fmt.Sprintf("click %q", a.TargetDescription)
	case ActionType:
		return fmt.Sprintf("type %q", a.Text)
	case ActionNavigate:
		return fmt.Sprintf("navigate %s", a.URL)
	case ActionScroll:
		return fmt.Sprintf("scroll %s", a.TargetDescription)
	case ActionWait:
		return fmt.Sprintf("wait %dms", a.DurationMs)
	default:
		return string(a.Kind)
	}
}
