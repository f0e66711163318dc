package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/B-A-M-N/NERVA/internal/nerrors"
)

// Call records one driver invocation for assertion in tests.
type Call struct {
	Method   string
	Selector string
	Value    string
}

// ScriptedDriver is an in-memory Driver for tests. Responses are keyed by
// selector (GetText, Evaluate by script) and failures can be injected per
// method+selector. All calls are recorded in order.
type ScriptedDriver struct {
	mu          sync.Mutex
	calls       []Call
	texts       map[string]string
	evaluations map[string]any
	screenshots [][]byte
	shotIdx     int
	failures    map[string]error
	closed      bool
}

// NewScriptedDriver creates an empty scripted driver.
func NewScriptedDriver() *ScriptedDriver {
	return &ScriptedDriver{
		texts:       make(map[string]string),
		evaluations: make(map[string]any),
		failures:    make(map[string]error),
	}
}

// StubText sets the GetText response for a selector.
func (d *ScriptedDriver) StubText(selector, text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.texts[selector] = text
}

// StubEvaluate sets the Evaluate response for a script.
func (d *ScriptedDriver) StubEvaluate(script string, result any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.evaluations[script] = result
}

// StubScreenshots queues screenshot payloads, returned in order.
func (d *ScriptedDriver) StubScreenshots(images ...[]byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.screenshots = append(d.screenshots, images...)
}

// FailOn injects an error for a method ("click", "navigate", ...) and
// selector. An empty selector fails every call of that method.
func (d *ScriptedDriver) FailOn(method, selector string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures[method+"|"+selector] = err
}

// Calls returns the recorded invocations.
func (d *ScriptedDriver) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Call(nil), d.calls...)
}

// Closed reports whether Close was called.
func (d *ScriptedDriver) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *ScriptedDriver) record(ctx context.Context, method, selector, value string) error {
	if err := ctx.Err(); err != nil {
		return nerrors.FromContext("browser."+method, err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, Call{Method: method, Selector: selector, Value: value})
	if err, ok := d.failures[method+"|"+selector]; ok {
		return err
	}
	if err, ok := d.failures[method+"|"]; ok {
		return err
	}
	return nil
}

func (d *ScriptedDriver) Navigate(ctx context.Context, url string, waitUntil WaitUntil) error {
	return d.record(ctx, "navigate", url, string(waitUntil))
}

func (d *ScriptedDriver) Click(ctx context.Context, selector string, timeout time.Duration) error {
	return d.record(ctx, "click", selector, "")
}

func (d *ScriptedDriver) Fill(ctx context.Context, selector, text string, timeout time.Duration) error {
	return d.record(ctx, "fill", selector, text)
}

func (d *ScriptedDriver) GetText(ctx context.Context, selector string, timeout time.Duration) (string, error) {
	if err := d.record(ctx, "get_text", selector, ""); err != nil {
		return "", err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	text, ok := d.texts[selector]
	if !ok {
		return "", nerrors.NotFound("browser.get_text", fmt.Sprintf("no stub for selector %q", selector))
	}
	return text, nil
}

func (d *ScriptedDriver) WaitForSelector(ctx context.Context, selector string, timeout time.Duration, state SelectorState) error {
	return d.record(ctx, "wait_for_selector", selector, string(state))
}

func (d *ScriptedDriver) Evaluate(ctx context.Context, script string) (any, error) {
	if err := d.record(ctx, "evaluate", script, ""); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if result, ok := d.evaluations[script]; ok {
		return result, nil
	}
	return nil, nil
}

func (d *ScriptedDriver) Screenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	if err := d.record(ctx, "screenshot", "", ""); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.shotIdx < len(d.screenshots) {
		img := d.screenshots[d.shotIdx]
		d.shotIdx++
		return img, nil
	}
	return []byte("screenshot"), nil
}

func (d *ScriptedDriver) PressKey(ctx context.Context, key string) error {
	return d.record(ctx, "press_key", key, "")
}

func (d *ScriptedDriver) Select(ctx context.Context, selector, value string) error {
	return d.record(ctx, "select", selector, value)
}

func (d *ScriptedDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}
