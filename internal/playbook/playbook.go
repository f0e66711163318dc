// Package playbook defines declarative browser scripts and the runner that
// executes them against a browser driver.
package playbook

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/B-A-M-N/NERVA/internal/nerrors"
)

// Action names a browser operation a step can perform.
type Action string

const (
	ActionNavigate   Action = "navigate"
	ActionClick      Action = "click"
	ActionFill       Action = "fill"
	ActionWait       Action = "wait"
	ActionEvaluate   Action = "evaluate"
	ActionScreenshot Action = "screenshot"
	ActionPressKey   Action = "press_key"
	ActionSelect     Action = "select"
)

// FailurePolicy names what the runner does when a step exhausts its attempts.
type FailurePolicy string

const (
	FailAbort    FailurePolicy = "abort"
	FailContinue FailurePolicy = "continue"
	FailRetry    FailurePolicy = "retry"
)

// Condition is a declarative predicate evaluated against the live page:
// either a selector that must resolve or a script that must return truthy.
type Condition struct {
	Selector string `yaml:"selector,omitempty" json:"selector,omitempty"`
	Script   string `yaml:"script,omitempty" json:"script,omitempty"`
}

// Step is one playbook operation.
type Step struct {
	Name      string         `yaml:"name" json:"name"`
	Action    Action         `yaml:"action" json:"action"`
	Params    map[string]any `yaml:"params,omitempty" json:"params,omitempty"`
	WaitFor   string         `yaml:"wait_for,omitempty" json:"wait_for,omitempty"`
	Guard     *Condition     `yaml:"guard,omitempty" json:"guard,omitempty"`
	OnFailure FailurePolicy  `yaml:"on_failure,omitempty" json:"on_failure,omitempty"`
	Retries   int            `yaml:"retries,omitempty" json:"retries,omitempty"`
}

// Playbook is an ordered browser script with optional pre and postconditions.
type Playbook struct {
	Name           string      `yaml:"name" json:"name"`
	Description    string      `yaml:"description,omitempty" json:"description,omitempty"`
	Preconditions  []Step      `yaml:"preconditions,omitempty" json:"preconditions,omitempty"`
	Steps          []Step      `yaml:"steps" json:"steps"`
	Postconditions []Condition `yaml:"postconditions,omitempty" json:"postconditions,omitempty"`
}

// ParseYAML decodes a playbook from YAML.
func ParseYAML(data []byte) (*Playbook, error) {
	var pb Playbook
	if err := yaml.Unmarshal(data, &pb); err != nil {
		return nil, nerrors.Wrap(nerrors.KindBadResponse, "playbook.parse", err)
	}
	if err := pb.Validate(); err != nil {
		return nil, err
	}
	return &pb, nil
}

// ToYAML encodes the playbook. ParseYAML(ToYAML(p)) is lossless.
func (p *Playbook) ToYAML() ([]byte, error) {
	data, err := yaml.Marshal(p)
	if err != nil {
		return nil, nerrors.Wrap(nerrors.KindInternal, "playbook.encode", err)
	}
	return data, nil
}

// Validate checks structural consistency.
func (p *Playbook) Validate() error {
	if p.Name == "" {
		return nerrors.Internal("playbook.validate", "playbook has no name")
	}
	for i, step := range append(append([]Step(nil), p.Preconditions...), p.Steps...) {
		if step.Name == "" {
			return nerrors.Internal("playbook.validate", fmt.Sprintf("step %d has no name", i))
		}
		switch step.Action {
		case ActionNavigate, ActionClick, ActionFill, ActionWait,
			ActionEvaluate, ActionScreenshot, ActionPressKey, ActionSelect:
		default:
			return nerrors.Internal("playbook.validate", fmt.Sprintf("step %q has unknown action %q", step.Name, step.Action))
		}
		switch step.OnFailure {
		case "", FailAbort, FailContinue, FailRetry:
		default:
			return nerrors.Internal("playbook.validate", fmt.Sprintf("step %q has unknown on_failure %q", step.Name, step.OnFailure))
		}
	}
	return nil
}

// stringParam reads a required string parameter from a step.
func (s *Step) stringParam(key string) (string, error) {
	raw, ok := s.Params[key]
	if !ok {
		return "", nerrors.Internal("playbook.step", fmt.Sprintf("step %q missing param %q", s.Name, key))
	}
	val, ok := raw.(string)
	if !ok {
		return "", nerrors.Internal("playbook.step", fmt.Sprintf("step %q param %q is not a string", s.Name, key))
	}
	return val, nil
}

// optionalString reads an optional string parameter.
func (s *Step) optionalString(key string) string {
	if raw, ok := s.Params[key]; ok {
		if val, ok := raw.(string); ok {
			return val
		}
	}
	return ""
}
