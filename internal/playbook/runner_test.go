package playbook

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/B-A-M-N/NERVA/internal/browser"
	"github.com/B-A-M-N/NERVA/internal/nerrors"
	"github.com/B-A-M-N/NERVA/internal/workflow"
)

func runOn(t *testing.T, driver *browser.ScriptedDriver, pb *Playbook) (*Report, *workflow.RunContext, error) {
	t.Helper()
	rc := workflow.NewRunContext("text")
	runner := NewRunner(driver, nil)
	report, err := runner.Run(context.Background(), pb, rc)
	return report, rc, err
}

func TestRunnerExecutesStepsInOrder(t *testing.T) {
	driver := browser.NewScriptedDriver()
	pb := &Playbook{
		Name: "ordered",
		Steps: []Step{
			{Name: "go", Action: ActionNavigate, Params: map[string]any{"url": "https://example.com"}},
			{Name: "type", Action: ActionFill, Params: map[string]any{"selector": "#q", "text": "hi"}},
			{Name: "submit", Action: ActionPressKey, Params: map[string]any{"key": "Enter"}},
		},
	}

	report, _, err := runOn(t, driver, pb)
	require.NoError(t, err)
	assert.False(t, report.Failed)

	calls := driver.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, "navigate", calls[0].Method)
	assert.Equal(t, "fill", calls[1].Method)
	assert.Equal(t, "hi", calls[1].Value)
	assert.Equal(t, "press_key", calls[2].Method)
}

func TestRunnerNavigateDefaultsToDOMContentLoaded(t *testing.T) {
	driver := browser.NewScriptedDriver()
	pb := &Playbook{
		Name: "nav",
		Steps: []Step{
			{Name: "open", Action: ActionNavigate, Params: map[string]any{"url": "https://example.com"}},
			{Name: "open_idle", Action: ActionNavigate, Params: map[string]any{
				"url": "https://example.com/next", "wait_until": "networkidle",
			}},
		},
	}

	report, _, err := runOn(t, driver, pb)
	require.NoError(t, err)
	assert.False(t, report.Failed)

	calls := driver.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, string(browser.WaitDOMContentLoaded), calls[0].Value)
	assert.Equal(t, string(browser.WaitNetworkIdle), calls[1].Value)
}

func TestRunnerGuardSkipsStep(t *testing.T) {
	driver := browser.NewScriptedDriver()
	driver.FailOn("wait_for_selector", "#missing", nerrors.Timeout("browser.wait", "not found"))
	pb := &Playbook{
		Name: "guarded",
		Steps: []Step{
			{
				Name:   "conditional",
				Action: ActionClick,
				Params: map[string]any{"selector": "#btn"},
				Guard:  &Condition{Selector: "#missing"},
			},
			{Name: "always", Action: ActionPressKey, Params: map[string]any{"key": "Enter"}},
		},
	}

	report, _, err := runOn(t, driver, pb)
	require.NoError(t, err)
	assert.False(t, report.Failed)
	require.Len(t, report.Steps, 2)
	assert.Equal(t, StepSkipped, report.Steps[0].Status)
	assert.Equal(t, StepOK, report.Steps[1].Status)

	for _, call := range driver.Calls() {
		assert.NotEqual(t, "click", call.Method)
	}
}

func TestRunnerAbortStopsOnFailure(t *testing.T) {
	driver := browser.NewScriptedDriver()
	driver.FailOn("click", "#broken", nerrors.NotFound("browser.click", "no element"))
	pb := &Playbook{
		Name: "aborting",
		Steps: []Step{
			{Name: "bad", Action: ActionClick, Params: map[string]any{"selector": "#broken"}},
			{Name: "never", Action: ActionPressKey, Params: map[string]any{"key": "Enter"}},
		},
	}

	report, _, err := runOn(t, driver, pb)
	require.Error(t, err)
	assert.True(t, report.Failed)
	require.Len(t, report.Steps, 1)
	assert.Equal(t, StepFailed, report.Steps[0].Status)
}

func TestRunnerContinuePolicyKeepsGoing(t *testing.T) {
	driver := browser.NewScriptedDriver()
	driver.FailOn("click", "#flaky", nerrors.NotFound("browser.click", "no element"))
	pb := &Playbook{
		Name: "tolerant",
		Steps: []Step{
			{Name: "optional", Action: ActionClick, Params: map[string]any{"selector": "#flaky"}, OnFailure: FailContinue},
			{Name: "after", Action: ActionPressKey, Params: map[string]any{"key": "Enter"}},
		},
	}

	report, _, err := runOn(t, driver, pb)
	require.NoError(t, err)
	assert.False(t, report.Failed)
	require.Len(t, report.Steps, 2)
	assert.Equal(t, StepFailed, report.Steps[0].Status)
	assert.Equal(t, StepOK, report.Steps[1].Status)
}

func TestRunnerRetryPolicyRetries(t *testing.T) {
	driver := browser.NewScriptedDriver()
	driver.FailOn("click", "#flaky", nerrors.Unavailable("browser.click", assert.AnError))
	pb := &Playbook{
		Name: "retrying",
		Steps: []Step{
			{Name: "flaky", Action: ActionClick, Params: map[string]any{"selector": "#flaky"}, OnFailure: FailRetry, Retries: 2},
		},
	}

	report, _, err := runOn(t, driver, pb)
	require.Error(t, err)
	assert.True(t, report.Failed)
	require.Len(t, report.Steps, 1)
	assert.Equal(t, 3, report.Steps[0].Attempts)
}

func TestRunnerEvaluateStoresArtifact(t *testing.T) {
	driver := browser.NewScriptedDriver()
	driver.StubEvaluate("document.title", "Example Domain")
	pb := &Playbook{
		Name: "artifacts",
		Steps: []Step{
			{Name: "title", Action: ActionEvaluate, Params: map[string]any{"script": "document.title"}},
		},
	}

	report, rc, err := runOn(t, driver, pb)
	require.NoError(t, err)
	assert.False(t, report.Failed)
	title, ok := rc.Artifact("title")
	require.True(t, ok)
	assert.Equal(t, "Example Domain", title)
}

func TestRunnerPostconditionFailureMarksFailed(t *testing.T) {
	driver := browser.NewScriptedDriver()
	driver.StubEvaluate("window.saved === true", false)
	pb := &Playbook{
		Name: "postcondition",
		Steps: []Step{
			{Name: "noop", Action: ActionPressKey, Params: map[string]any{"key": "Enter"}},
		},
		Postconditions: []Condition{{Script: "window.saved === true"}},
	}

	report, _, err := runOn(t, driver, pb)
	require.NoError(t, err)
	assert.True(t, report.Failed)
	assert.Contains(t, report.Reason, "postcondition")
}

func TestRunnerCancellationStopsBetweenSteps(t *testing.T) {
	driver := browser.NewScriptedDriver()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pb := &Playbook{
		Name: "cancelled",
		Steps: []Step{
			{Name: "never", Action: ActionPressKey, Params: map[string]any{"key": "Enter"}},
		},
	}
	rc := workflow.NewRunContext("text")
	report, err := NewRunner(driver, nil).Run(ctx, pb, rc)
	require.Error(t, err)
	assert.True(t, nerrors.Is(err, nerrors.KindCancelled))
	assert.True(t, report.Failed)
	assert.Empty(t, driver.Calls())
}

func TestRunnerPreconditionFailureShortCircuits(t *testing.T) {
	driver := browser.NewScriptedDriver()
	driver.FailOn("navigate", "https://example.com", nerrors.Unavailable("browser.navigate", assert.AnError))
	pb := &Playbook{
		Name: "walled",
		Preconditions: []Step{
			{Name: "open", Action: ActionNavigate, Params: map[string]any{"url": "https://example.com"}},
		},
		Steps: []Step{
			{Name: "never", Action: ActionPressKey, Params: map[string]any{"key": "Enter"}},
		},
	}

	report, _, err := runOn(t, driver, pb)
	require.Error(t, err)
	assert.True(t, report.Failed)
	for _, call := range driver.Calls() {
		assert.NotEqual(t, "press_key", call.Method)
	}
}
