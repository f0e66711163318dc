package vision

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/B-A-M-N/NERVA/internal/browser"
	"github.com/B-A-M-N/NERVA/internal/llm"
	"github.com/B-A-M-N/NERVA/internal/logging"
	"github.com/B-A-M-N/NERVA/internal/nerrors"
)

// Status names the overall outcome of a vision task.
type Status string

const (
	StatusOK         Status = "ok"
	StatusIncomplete Status = "incomplete"
	StatusFailed     Status = "failed"
)

// Result is the outcome of ExecuteTask.
type Result struct {
	Status  Status   `json:"status"`
	Reason  string   `json:"reason,omitempty"`
	Steps   int      `json:"steps"`
	Answer  string   `json:"answer,omitempty"`
	History []string `json:"history,omitempty"`
}

// DefaultMaxSteps bounds the perception-action loop.
const DefaultMaxSteps = 20

// Agent runs the screenshot loop: capture, ask the vision model for one
// action, execute it, until the model declares the task complete or the step
// budget runs out.
type Agent struct {
	vision        llm.VisionClient
	driver        browser.Driver
	maxSteps      int
	verify        bool
	screenshotDir string
	logger        logging.Logger
}

// AgentOption configures an Agent.
type AgentOption func(*Agent)

// WithMaxSteps caps the loop. Zero is honored: the agent returns incomplete
// without a single model call.
func WithMaxSteps(n int) AgentOption {
	return func(a *Agent) { a.maxSteps = n }
}

// WithVerify enables a post-action verification round per step.
func WithVerify(verify bool) AgentOption {
	return func(a *Agent) { a.verify = verify }
}

// WithScreenshotDir saves each step's screenshot for debugging.
func WithScreenshotDir(dir string) AgentOption {
	return func(a *Agent) { a.screenshotDir = dir }
}

// WithLogger sets the agent logger.
func WithLogger(l logging.Logger) AgentOption {
	return func(a *Agent) { a.logger = l }
}

// NewAgent creates a vision agent over an open browser driver.
func NewAgent(vision llm.VisionClient, driver browser.Driver, opts ...AgentOption) *Agent {
	a := &Agent{
		vision:   vision,
		driver:   driver,
		maxSteps: DefaultMaxSteps,
		logger:   logging.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = logging.OrNop(a.logger)
	return a
}

// ExecuteTask drives the browser toward the task goal. startingURL may be
// empty to continue on the current page. Only http and https URLs are
// accepted, for navigation actions included.
//
// A failed action or unparseable reply is recorded into the history and the
// loop keeps going; only blocked navigation, a lost screenshot, or a dead
// model ends the task as failed.
func (a *Agent) ExecuteTask(ctx context.Context, task, startingURL string) (*Result, error) {
	result := &Result{Status: StatusIncomplete}

	if startingURL != "" {
		if err := checkScheme(startingURL); err != nil {
			return nil, err
		}
		if err := a.driver.Navigate(ctx, startingURL, browser.WaitLoad); err != nil {
			result.Status = StatusFailed
			result.Reason = fmt.Sprintf("initial navigation failed: %v", err)
			return result, nil
		}
	}

	var lastShot []byte
	for step := 0; step < a.maxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return result, nerrors.FromContext("vision.execute", err)
		}

		shot, err := a.driver.Screenshot(ctx, false)
		if err != nil {
			result.Status = StatusFailed
			result.Reason = fmt.Sprintf("screenshot failed: %v", err)
			return result, nil
		}
		lastShot = shot
		a.saveShot(shot, step)

		action, err := a.nextAction(ctx, task, shot, result.History)
		if err != nil {
			if nerrors.Is(err, nerrors.KindCancelled) || nerrors.Is(err, nerrors.KindTimeout) {
				return result, err
			}
			// An unparseable reply is one failed step, not a dead task;
			// the next round sees the note and can recover.
			if nerrors.Is(err, nerrors.KindBadResponse) {
				result.Steps++
				note := fmt.Sprintf("step %d: %v", step+1, err)
				result.History = append(result.History, note)
				a.logger.Warn("%s", note)
				continue
			}
			result.Status = StatusFailed
			result.Reason = err.Error()
			return result, nil
		}
		result.Steps++

		if action.Kind == ActionComplete {
			result.Status = StatusOK
			result.History = append(result.History, historyEntry(action))
			answer, err := a.extractAnswer(ctx, task, lastShot)
			if err != nil {
				a.logger.Warn("answer extraction failed: %v", err)
			} else {
				result.Answer = answer
			}
			return result, nil
		}

		if err := a.executeAction(ctx, action); err != nil {
			if nerrors.Is(err, nerrors.KindRefused) || nerrors.Is(err, nerrors.KindCancelled) {
				result.Status = StatusFailed
				result.Reason = fmt.Sprintf("step %d (%s) failed: %v", step+1, action, err)
				result.History = append(result.History, result.Reason)
				return result, nil
			}
			note := fmt.Sprintf("step %d (%s) failed: %v", step+1, action, err)
			result.History = append(result.History, note)
			a.logger.Warn("%s", note)
			continue
		}
		result.History = append(result.History, historyEntry(action))
		a.logger.Debug("step %d: %s", step+1, action)

		if a.verify {
			a.verifyStep(ctx, task, action, result)
		}
	}

	result.Reason = fmt.Sprintf("step budget of %d exhausted", a.maxSteps)
	return result, nil
}

// nextAction asks the vision model for one action, retrying once with a
// strict-JSON reminder when the first reply does not parse.
func (a *Agent) nextAction(ctx context.Context, task string, shot []byte, history []string) (*Action, error) {
	prompt := actionPrompt(task, history)
	reply, err := a.vision.Analyze(ctx, shot, prompt, nil)
	if err != nil {
		return nil, err
	}
	action, perr := ParseAction(reply)
	if perr == nil {
		return action, nil
	}
	a.logger.Warn("action reply unparseable, retrying strict: %v", perr)

	reply, err = a.vision.Analyze(ctx, shot, prompt+strictJSONReminder, nil)
	if err != nil {
		return nil, err
	}
	action, perr = ParseAction(reply)
	if perr != nil {
		return nil, nerrors.BadResponse("vision.next_action", "model reply unparseable after retry")
	}
	return action, nil
}

func (a *Agent) executeAction(ctx context.Context, action *Action) error {
	switch action.Kind {
	case ActionClick:
		return a.clickByDescription(ctx, action.TargetDescription)
	case ActionType:
		return a.driver.Fill(ctx, ":focus", action.Text, 10*time.Second)
	case ActionScroll:
		key := "PageDown"
		if strings.Contains(strings.ToLower(action.TargetDescription), "up") {
			key = "PageUp"
		}
		return a.driver.PressKey(ctx, key)
	case ActionNavigate:
		if err := checkScheme(action.URL); err != nil {
			return err
		}
		return a.driver.Navigate(ctx, action.URL, browser.WaitLoad)
	case ActionWait:
		ms := action.DurationMs
		if ms <= 0 {
			ms = 1000
		}
		select {
		case <-ctx.Done():
			return nerrors.FromContext("vision.wait", ctx.Err())
		case <-time.After(time.Duration(ms) * time.Millisecond):
			return nil
		}
	default:
		return nerrors.Internal("vision.execute", fmt.Sprintf("unhandled action %q", action.Kind))
	}
}

// clickByDescription finds the clickable element whose visible text best
// matches the description and clicks it in-page.
func (a *Agent) clickByDescription(ctx context.Context, description string) error {
	script := fmt.Sprintf(`(() => {
	const tokens = %q.toLowerCase().split(/\s+/).filter(Boolean);
	const nodes = Array.from(document.querySelectorAll('a, button, input[type="submit"], input[type="button"], [role="button"], [onclick]'));
	let best = null, bestScore = 0;
	for (const n of nodes) {
		const text = ((n.innerText || n.value || n.getAttribute('aria-label') || '') + '').toLowerCase();
		if (!text) continue;
		let score = 0;
		for (const t of tokens) if (text.includes(t)) score++;
		if (score > bestScore) { best = n; bestScore = score; }
	}
	if (!best) return false;
	best.scrollIntoView({block: 'center'});
	best.click();
	return true;
})()`, description)

	result, err := a.driver.Evaluate(ctx, script)
	if err != nil {
		return err
	}
	if ok, _ := result.(bool); !ok {
		return nerrors.NotFound("vision.click", fmt.Sprintf("no clickable element matching %q", description))
	}
	return nil
}

// verifyStep asks the model whether the action had its intended effect. A
// negative verdict is recorded but does not abort the loop; the next action
// round sees the same page and can recover.
func (a *Agent) verifyStep(ctx context.Context, task string, action *Action, result *Result) {
	shot, err := a.driver.Screenshot(ctx, false)
	if err != nil {
		return
	}
	prompt := fmt.Sprintf("Task: %s\nThe action just taken was: %s\nDid the page change as intended? Answer YES or NO.", task, action)
	reply, err := a.vision.Analyze(ctx, shot, prompt, nil)
	if err != nil {
		return
	}
	if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(reply)), "NO") {
		note := fmt.Sprintf("verification negative after %s", action)
		result.History = append(result.History, note)
		a.logger.Warn("%s", note)
	}
}

// extractAnswer runs the final question-answering round on the last
// screenshot. NO_ANSWER collapses to the empty string.
func (a *Agent) extractAnswer(ctx context.Context, task string, shot []byte) (string, error) {
	if len(shot) == 0 {
		return "", nil
	}
	prompt := fmt.Sprintf("Task: %s\nBased on this page, answer the task in one sentence. If the page does not contain the answer, reply exactly NO_ANSWER.", task)
	reply, err := a.vision.Analyze(ctx, shot, prompt, nil)
	if err != nil {
		return "", err
	}
	answer := strings.TrimSpace(reply)
	if answer == "NO_ANSWER" {
		return "", nil
	}
	return answer, nil
}

func (a *Agent) saveShot(shot []byte, step int) {
	if a.screenshotDir == "" {
		return
	}
	path := filepath.Join(a.screenshotDir, fmt.Sprintf("step-%03d.png", step))
	if err := os.WriteFile(path, shot, 0o644); err != nil {
		a.logger.Warn("screenshot save failed: %v", err)
	}
}

// historyEntry keeps the rationale with the action so later prompt rounds
// see why each step was taken.
func historyEntry(a *Action) string {
	if a.Rationale == "" {
		return a.String()
	}
	return a.String() + " (" + a.Rationale + ")"
}

func actionPrompt(task string, history []string) string {
	var b strings.Builder
	b.WriteString("You are operating a web browser to accomplish this task:\n")
	b.WriteString(task)
	b.WriteString("\n\nLook at the screenshot and decide the single next action.\n")
	if len(history) > 0 {
		b.WriteString("Actions taken so far:\n")
		for _, h := range history {
			b.WriteString("- " + h + "\n")
		}
	}
	b.WriteString(`Reply with one JSON object:
{"action": "click|type|scroll|navigate|wait|complete", "target": "visible text of the element", "text": "text to type", "url": "https://...", "duration_ms": 1000, "rationale": "why"}
Use "complete" when the task is done or the answer is visible.`)
	return b.String()
}

const strictJSONReminder = "\n\nYour previous reply was not valid JSON. Reply with ONLY the JSON object, no prose, no code fences."

func checkScheme(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return nerrors.Refused("vision.navigate", fmt.Sprintf("unparseable URL %q", raw))
	}
	switch u.Scheme {
	case "http", "https":
		return nil
	default:
		return nerrors.Refused("vision.navigate", fmt.Sprintf("scheme %q is not allowed", u.Scheme))
	}
}
