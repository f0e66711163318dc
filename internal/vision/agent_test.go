package vision

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/B-A-M-N/NERVA/internal/browser"
	"github.com/B-A-M-N/NERVA/internal/llm"
	"github.com/B-A-M-N/NERVA/internal/nerrors"
)

func TestParseActionStrictJSON(t *testing.T) {
	action, err := ParseAction(`{"action": "click", "target": "Search button"}`)
	require.NoError(t, err)
	assert.Equal(t, ActionClick, action.Kind)
	assert.Equal(t, "Search button", action.TargetDescription)
}

func TestParseActionBuriedInProse(t *testing.T) {
	reply := "Sure! Here is the next step:\n```json\n{\"action\": \"navigate\", \"url\": \"https://example.com\"}\n```\nLet me know."
	action, err := ParseAction(reply)
	require.NoError(t, err)
	assert.Equal(t, ActionNavigate, action.Kind)
	assert.Equal(t, "https://example.com", action.URL)
}

func TestParseActionRepairsSloppyJSON(t *testing.T) {
	action, err := ParseAction(`{action: "wait", duration_ms: 500,}`)
	require.NoError(t, err)
	assert.Equal(t, ActionWait, action.Kind)
	assert.Equal(t, 500, action.DurationMs)
}

func TestParseActionRejectsUnknownKind(t *testing.T) {
	_, err := ParseAction(`{"action": "levitate"}`)
	require.Error(t, err)
	assert.True(t, nerrors.Is(err, nerrors.KindBadResponse))
}

func TestZeroMaxStepsMakesNoModelCalls(t *testing.T) {
	vc := llm.NewScriptedVision()
	driver := browser.NewScriptedDriver()
	agent := NewAgent(vc, driver, WithMaxSteps(0))

	result, err := agent.ExecuteTask(context.Background(), "do something", "")
	require.NoError(t, err)
	assert.Equal(t, StatusIncomplete, result.Status)
	assert.Zero(t, result.Steps)
	assert.Zero(t, vc.Calls())
}

func TestRejectsNonHTTPStartingURL(t *testing.T) {
	vc := llm.NewScriptedVision()
	driver := browser.NewScriptedDriver()
	agent := NewAgent(vc, driver)

	_, err := agent.ExecuteTask(context.Background(), "read a local file", "file:///etc/passwd")
	require.Error(t, err)
	assert.True(t, nerrors.Is(err, nerrors.KindRefused))
}

func TestRejectsNonHTTPNavigationAction(t *testing.T) {
	vc := llm.NewScriptedVision(`{"action": "navigate", "url": "ftp://example.com"}`)
	driver := browser.NewScriptedDriver()
	agent := NewAgent(vc, driver)

	result, err := agent.ExecuteTask(context.Background(), "task", "")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, result.Status)
	assert.Contains(t, result.Reason, "ftp")
}

func TestLookupFlowExtractsAnswer(t *testing.T) {
	vc := llm.NewScriptedVision(
		`{"action": "navigate", "url": "https://example.com/directory"}`,
		`{"action": "click", "target": "Joe's Pizza listing"}`,
		`{"action": "complete"}`,
		"The phone number is (555) 555-1212.",
	)
	driver := browser.NewScriptedDriver()
	driver.StubEvaluate(clickScriptFor("Joe's Pizza listing"), true)

	agent := NewAgent(vc, driver)
	result, err := agent.ExecuteTask(context.Background(), "find the phone number for Joe's Pizza", "https://example.com")
	require.NoError(t, err)

	assert.Equal(t, StatusOK, result.Status)
	assert.Equal(t, 3, result.Steps)
	assert.Contains(t, result.Answer, "555-1212")
}

func TestNoAnswerCollapsesToEmpty(t *testing.T) {
	vc := llm.NewScriptedVision(
		`{"action": "complete"}`,
		"NO_ANSWER",
	)
	driver := browser.NewScriptedDriver()
	agent := NewAgent(vc, driver)

	result, err := agent.ExecuteTask(context.Background(), "task", "")
	require.NoError(t, err)
	assert.Equal(t, StatusOK, result.Status)
	assert.Empty(t, result.Answer)
}

func TestUnparseableReplyRetriesWithStrictReminder(t *testing.T) {
	vc := llm.NewScriptedVision(
		"I think you should probably click something",
		`{"action": "complete"}`,
		"NO_ANSWER",
	)
	driver := browser.NewScriptedDriver()
	agent := NewAgent(vc, driver)

	result, err := agent.ExecuteTask(context.Background(), "task", "")
	require.NoError(t, err)
	assert.Equal(t, StatusOK, result.Status)
	require.GreaterOrEqual(t, len(vc.Prompts), 2)
	assert.Contains(t, vc.Prompts[1], "ONLY the JSON object")
}

func TestUnparseableTwiceIsOneStepFailureNotTheTask(t *testing.T) {
	vc := llm.NewScriptedVision(
		"nonsense",
		"more nonsense",
		`{"action": "complete"}`,
		"All done.",
	)
	driver := browser.NewScriptedDriver()
	agent := NewAgent(vc, driver)

	result, err := agent.ExecuteTask(context.Background(), "task", "")
	require.NoError(t, err)
	assert.Equal(t, StatusOK, result.Status)
	assert.Equal(t, "All done.", result.Answer)
	require.NotEmpty(t, result.History)
	assert.Contains(t, result.History[0], "unparseable")
}

func TestFailedClickIsRecordedAndLoopContinues(t *testing.T) {
	vc := llm.NewScriptedVision(
		`{"action": "click", "target": "phone link"}`,
		`{"action": "complete"}`,
		"555-1212",
	)
	// No element matches, so the click comes back empty-handed.
	driver := browser.NewScriptedDriver()
	agent := NewAgent(vc, driver)

	result, err := agent.ExecuteTask(context.Background(), "find the phone number", "")
	require.NoError(t, err)
	assert.Equal(t, StatusOK, result.Status)
	assert.Equal(t, "555-1212", result.Answer)
	require.NotEmpty(t, result.History)
	assert.Contains(t, result.History[0], "no clickable element")
}

func TestRationaleFlowsIntoHistoryAndNextPrompt(t *testing.T) {
	vc := llm.NewScriptedVision(
		`{"action": "scroll", "target": "down", "rationale": "the listing is below the fold"}`,
		`{"action": "complete"}`,
		"NO_ANSWER",
	)
	driver := browser.NewScriptedDriver()
	agent := NewAgent(vc, driver)

	result, err := agent.ExecuteTask(context.Background(), "task", "")
	require.NoError(t, err)
	require.Len(t, result.History, 2)
	assert.Contains(t, result.History[0], "below the fold")
	require.GreaterOrEqual(t, len(vc.Prompts), 2)
	assert.Contains(t, vc.Prompts[1], "below the fold")
}

func TestStepBudgetExhaustionIsIncomplete(t *testing.T) {
	vc := llm.NewScriptedVision(
		`{"action": "scroll", "target": "down"}`,
		`{"action": "scroll", "target": "down"}`,
	)
	driver := browser.NewScriptedDriver()
	agent := NewAgent(vc, driver, WithMaxSteps(2))

	result, err := agent.ExecuteTask(context.Background(), "task", "")
	require.NoError(t, err)
	assert.Equal(t, StatusIncomplete, result.Status)
	assert.Equal(t, 2, result.Steps)
	assert.Contains(t, result.Reason, "budget")
}

// clickScriptFor mirrors the script the agent evaluates, so the scripted
// driver can stub its result.
func clickScriptFor(description string) string {
	driver := browser.NewScriptedDriver()
	agent := NewAgent(llm.NewScriptedVision(), driver)
	_ = agent.clickByDescription(context.Background(), description)
	calls := driver.Calls()
	return calls[len(calls)-1].Selector
}
