package playbook

import (
	"context"
	"fmt"
	"time"

	"github.com/B-A-M-N/NERVA/internal/browser"
	"github.com/B-A-M-N/NERVA/internal/logging"
	"github.com/B-A-M-N/NERVA/internal/nerrors"
	"github.com/B-A-M-N/NERVA/internal/workflow"
)

// StepStatus names the outcome of one step.
type StepStatus string

const (
	StepOK      StepStatus = "ok"
	StepFailed  StepStatus = "failed"
	StepSkipped StepStatus = "skipped"
)

// StepResult records one executed (or skipped) step.
type StepResult struct {
	Name     string        `json:"name"`
	Action   Action        `json:"action"`
	Status   StepStatus    `json:"status"`
	Attempts int           `json:"attempts"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Report is the full run outcome.
type Report struct {
	Playbook string       `json:"playbook"`
	Steps    []StepResult `json:"steps"`
	Failed   bool         `json:"failed"`
	Reason   string       `json:"reason,omitempty"`
}

const (
	defaultStepWait  = 30 * time.Second
	retryBackoff     = 500 * time.Millisecond
	conditionTimeout = 5 * time.Second
)

// Runner executes playbooks against a browser driver.
type Runner struct {
	driver browser.Driver
	logger logging.Logger
}

// NewRunner creates a playbook runner.
func NewRunner(driver browser.Driver, logger logging.Logger) *Runner {
	return &Runner{driver: driver, logger: logging.OrNop(logger)}
}

// Run executes the playbook in order: preconditions, steps, postconditions.
// Step artifacts (evaluate results, text, screenshots) land in rc under the
// step name. The returned error is non-nil only for cancellation or an
// aborting step failure; a postcondition miss marks the report failed.
func (r *Runner) Run(ctx context.Context, pb *Playbook, rc *workflow.RunContext) (*Report, error) {
	report := &Report{Playbook: pb.Name}

	if err := r.runSteps(ctx, pb.Preconditions, rc, report); err != nil {
		return report, err
	}
	if report.Failed {
		report.Reason = "precondition failed"
		return report, nerrors.New(nerrors.KindUnavailable, "playbook.run", report.Reason)
	}

	if err := r.runSteps(ctx, pb.Steps, rc, report); err != nil {
		return report, err
	}

	for _, cond := range pb.Postconditions {
		ok, err := r.checkCondition(ctx, cond)
		if err != nil {
			if nerrors.Is(err, nerrors.KindCancelled) {
				return report, err
			}
			ok = false
		}
		if !ok {
			report.Failed = true
			report.Reason = fmt.Sprintf("postcondition not met: %s", describeCondition(cond))
			r.logger.Warn("playbook %s: %s", pb.Name, report.Reason)
			return report, nil
		}
	}
	return report, nil
}

func (r *Runner) runSteps(ctx context.Context, steps []Step, rc *workflow.RunContext, report *Report) error {
	for i := range steps {
		step := &steps[i]
		if err := ctx.Err(); err != nil {
			report.Failed = true
			report.Reason = "cancelled"
			return nerrors.FromContext("playbook.run", err)
		}

		if step.Guard != nil {
			ok, err := r.checkCondition(ctx, *step.Guard)
			if err != nil && nerrors.Is(err, nerrors.KindCancelled) {
				report.Failed = true
				return err
			}
			if !ok {
				report.Steps = append(report.Steps, StepResult{Name: step.Name, Action: step.Action, Status: StepSkipped})
				r.logger.Debug("step %s skipped: guard not met", step.Name)
				continue
			}
		}

		result := r.runStep(ctx, step, rc)
		report.Steps = append(report.Steps, result)
		if result.Status != StepFailed {
			continue
		}

		switch step.OnFailure {
		case FailContinue:
			r.logger.Warn("step %s failed, continuing: %s", step.Name, result.Error)
		default: // abort, and retry once its attempts are spent
			report.Failed = true
			report.Reason = fmt.Sprintf("step %s failed: %s", step.Name, result.Error)
			return nerrors.New(nerrors.KindUnavailable, "playbook.run", report.Reason)
		}
	}
	return nil
}

func (r *Runner) runStep(ctx context.Context, step *Step, rc *workflow.RunContext) StepResult {
	attempts := 1
	if step.OnFailure == FailRetry && step.Retries > 0 {
		attempts = step.Retries + 1
	}
	result := StepResult{Name: step.Name, Action: step.Action}
	started := time.Now()

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		result.Attempts = attempt
		lastErr = r.execute(ctx, step, rc)
		if lastErr == nil {
			break
		}
		if nerrors.Is(lastErr, nerrors.KindCancelled) || attempt == attempts {
			break
		}
		r.logger.Debug("step %s attempt %d failed, retrying: %v", step.Name, attempt, lastErr)
		select {
		case <-ctx.Done():
			lastErr = nerrors.FromContext("playbook.step", ctx.Err())
			attempt = attempts
		case <-time.After(retryBackoff):
		}
	}
	result.Duration = time.Since(started)

	if lastErr != nil {
		result.Status = StepFailed
		result.Error = lastErr.Error()
	} else {
		result.Status = StepOK
	}
	return result
}

func (r *Runner) execute(ctx context.Context, step *Step, rc *workflow.RunContext) error {
	switch step.Action {
	case ActionNavigate:
		url, err := step.stringParam("url")
		if err != nil {
			return err
		}
		waitUntil := browser.WaitUntil(step.optionalString("wait_until"))
		if waitUntil == "" {
			waitUntil = browser.WaitDOMContentLoaded
		}
		if err := r.driver.Navigate(ctx, url, waitUntil); err != nil {
			return err
		}

	case ActionClick:
		selector, err := step.stringParam("selector")
		if err != nil {
			return err
		}
		if err := r.driver.Click(ctx, selector, defaultStepWait); err != nil {
			return err
		}

	case ActionFill:
		selector, err := step.stringParam("selector")
		if err != nil {
			return err
		}
		text, err := step.stringParam("text")
		if err != nil {
			return err
		}
		if err := r.driver.Fill(ctx, selector, text, defaultStepWait); err != nil {
			return err
		}

	case ActionWait:
		if selector := step.optionalString("selector"); selector != "" {
			if err := r.driver.WaitForSelector(ctx, selector, defaultStepWait, browser.StateVisible); err != nil {
				return err
			}
			break
		}
		ms := 1000
		if raw, ok := step.Params["duration_ms"]; ok {
			if n, ok := raw.(int); ok {
				ms = n
			}
		}
		select {
		case <-ctx.Done():
			return nerrors.FromContext("playbook.wait", ctx.Err())
		case <-time.After(time.Duration(ms) * time.Millisecond):
		}

	case ActionEvaluate:
		script, err := step.stringParam("script")
		if err != nil {
			return err
		}
		result, err := r.driver.Evaluate(ctx, script)
		if err != nil {
			return err
		}
		rc.SetArtifact(step.Name, result)

	case ActionScreenshot:
		fullPage := false
		if raw, ok := step.Params["full_page"]; ok {
			if b, ok := raw.(bool); ok {
				fullPage = b
			}
		}
		img, err := r.driver.Screenshot(ctx, fullPage)
		if err != nil {
			return err
		}
		rc.SetArtifact(step.Name, img)

	case ActionPressKey:
		key, err := step.stringParam("key")
		if err != nil {
			return err
		}
		if err := r.driver.PressKey(ctx, key); err != nil {
			return err
		}

	case ActionSelect:
		selector, err := step.stringParam("selector")
		if err != nil {
			return err
		}
		value, err := step.stringParam("value")
		if err != nil {
			return err
		}
		if err := r.driver.Select(ctx, selector, value); err != nil {
			return err
		}

	default:
		return nerrors.Internal("playbook.step", fmt.Sprintf("unknown action %q", step.Action))
	}

	if step.WaitFor != "" {
		if err := r.driver.WaitForSelector(ctx, step.WaitFor, defaultStepWait, browser.StateVisible); err != nil {
			return err
		}
	}
	return nil
}

// checkCondition evaluates a guard or postcondition against the live page.
// Selector conditions are satisfied when the selector resolves; script
// conditions when the script returns a truthy value.
func (r *Runner) checkCondition(ctx context.Context, cond Condition) (bool, error) {
	if cond.Selector != "" {
		err := r.driver.WaitForSelector(ctx, cond.Selector, conditionTimeout, browser.StateAttached)
		if err != nil {
			if nerrors.Is(err, nerrors.KindCancelled) {
				return false, err
			}
			return false, nil
		}
		return true, nil
	}
	if cond.Script != "" {
		result, err := r.driver.Evaluate(ctx, cond.Script)
		if err != nil {
			return false, err
		}
		return truthy(result), nil
	}
	return true, nil
}

func describeCondition(cond Condition) string {
	if cond.Selector != "" {
		return "selector " + cond.Selector
	}
	return "script " + cond.Script
}

func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != "" && val != "false"
	case float64:
		return val != 0
	case int:
		return val != 0
	default:
		return true
	}
}
