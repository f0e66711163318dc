package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/B-A-M-N/NERVA/internal/logging"
	"github.com/B-A-M-N/NERVA/internal/nerrors"
)

// rodDriver drives a Chromium instance through the DevTools protocol.
type rodDriver struct {
	browser *rod.Browser
	page    *rod.Page
	cfg     Config
	logger  logging.Logger
}

// NewRodDriver launches a browser and opens a blank page.
func NewRodDriver(cfg Config, logger logging.Logger) (Driver, error) {
	l := launcher.New().
		Headless(cfg.Headless).
		Set("disable-blink-features", "AutomationControlled").
		Set("no-first-run").
		Set("no-default-browser-check")
	if cfg.UserDataDir != "" {
		l = l.UserDataDir(cfg.UserDataDir)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return nil, nerrors.Wrap(nerrors.KindUnavailable, "browser.launch", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		return nil, nerrors.Wrap(nerrors.KindUnavailable, "browser.connect", err)
	}
	page, err := b.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		b.Close()
		return nil, nerrors.Wrap(nerrors.KindUnavailable, "browser.page", err)
	}
	width, height := cfg.ViewportWidth, cfg.ViewportHeight
	if width <= 0 {
		width = 1920
	}
	if height <= 0 {
		height = 1080
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:  width,
		Height: height,
	}); err != nil {
		b.Close()
		return nil, nerrors.Wrap(nerrors.KindUnavailable, "browser.viewport", err)
	}
	return &rodDriver{
		browser: b,
		page:    page,
		cfg:     cfg,
		logger:  logging.OrNop(logger),
	}, nil
}

func (d *rodDriver) Navigate(ctx context.Context, url string, waitUntil WaitUntil) error {
	navCtx, cancel := context.WithTimeout(ctx, d.cfg.navigationTimeout())
	defer cancel()

	page := d.page.Context(navCtx)
	if err := page.Navigate(url); err != nil {
		return d.opError("browser.navigate", err)
	}
	switch waitUntil {
	case WaitDOMContentLoaded:
		if err := page.WaitDOMStable(300*time.Millisecond, 0); err != nil {
			return d.opError("browser.navigate", err)
		}
	case WaitNetworkIdle:
		if err := page.WaitIdle(d.cfg.navigationTimeout()); err != nil {
			return d.opError("browser.navigate", err)
		}
	default:
		if err := page.WaitLoad(); err != nil {
			return d.opError("browser.navigate", err)
		}
	}
	d.logger.Debug("navigated to %s", url)
	return nil
}

func (d *rodDriver) Click(ctx context.Context, selector string, timeout time.Duration) error {
	el, err := d.element(ctx, selector, timeout)
	if err != nil {
		return err
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return d.opError("browser.click", err)
	}
	return nil
}

func (d *rodDriver) Fill(ctx context.Context, selector, text string, timeout time.Duration) error {
	el, err := d.element(ctx, selector, timeout)
	if err != nil {
		return err
	}
	if err := el.SelectAllText(); err == nil {
		_ = el.Input("")
	}
	if err := el.Input(text); err != nil {
		return d.opError("browser.fill", err)
	}
	return nil
}

func (d *rodDriver) GetText(ctx context.Context, selector string, timeout time.Duration) (string, error) {
	el, err := d.element(ctx, selector, timeout)
	if err != nil {
		return "", err
	}
	text, err := el.Text()
	if err != nil {
		return "", d.opError("browser.get_text", err)
	}
	return text, nil
}

func (d *rodDriver) WaitForSelector(ctx context.Context, selector string, timeout time.Duration, state SelectorState) error {
	el, err := d.element(ctx, selector, timeout)
	if err != nil {
		return err
	}
	if state == StateVisible {
		if err := el.WaitVisible(); err != nil {
			return d.opError("browser.wait_for_selector", err)
		}
	}
	return nil
}

func (d *rodDriver) Evaluate(ctx context.Context, script string) (any, error) {
	res, err := d.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:      script,
		ByValue: true,
	})
	if err != nil {
		return nil, d.opError("browser.evaluate", err)
	}
	if res == nil || res.Value.Nil() {
		return nil, nil
	}
	return res.Value.Val(), nil
}

func (d *rodDriver) Screenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	page := d.page.Context(ctx)
	var data []byte
	var err error
	if fullPage {
		data, err = page.Screenshot(true, nil)
	} else {
		data, err = page.Screenshot(false, &proto.PageCaptureScreenshot{
			Format: proto.PageCaptureScreenshotFormatPng,
		})
	}
	if err != nil {
		return nil, d.opError("browser.screenshot", err)
	}
	return data, nil
}

// keyMap translates the wire-level key names used by playbooks and the
// vision agent into DevTools input keys.
var keyMap = map[string]input.Key{
	"Enter":      input.Enter,
	"Tab":        input.Tab,
	"Escape":     input.Escape,
	"Backspace":  input.Backspace,
	"ArrowDown":  input.ArrowDown,
	"ArrowUp":    input.ArrowUp,
	"ArrowLeft":  input.ArrowLeft,
	"ArrowRight": input.ArrowRight,
	"PageDown":   input.PageDown,
	"PageUp":     input.PageUp,
	"Home":       input.Home,
	"End":        input.End,
}

func (d *rodDriver) PressKey(ctx context.Context, key string) error {
	k, ok := keyMap[key]
	if !ok {
		if len(key) == 1 {
			k = input.Key(key[0])
		} else {
			return nerrors.BadResponse("browser.press_key", fmt.Sprintf("unknown key %q", key))
		}
	}
	if err := d.page.Context(ctx).Keyboard.Press(k); err != nil {
		return d.opError("browser.press_key", err)
	}
	return nil
}

func (d *rodDriver) Select(ctx context.Context, selector, value string) error {
	el, err := d.element(ctx, selector, DefaultTimeout)
	if err != nil {
		return err
	}
	if err := el.Select([]string{value}, true, rod.SelectorTypeText); err != nil {
		return d.opError("browser.select", err)
	}
	return nil
}

func (d *rodDriver) Close() error {
	if d.browser == nil {
		return nil
	}
	err := d.browser.Close()
	d.browser = nil
	d.page = nil
	if err != nil {
		return nerrors.Wrap(nerrors.KindInternal, "browser.close", err)
	}
	return nil
}

// element resolves a selector within the timeout, mapping the deadline to a
// Timeout error so callers can distinguish "slow page" from "broken page".
func (d *rodDriver) element(ctx context.Context, selector string, timeout time.Duration) (*rod.Element, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	elCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	el, err := d.page.Context(elCtx).Element(selector)
	if err != nil {
		if elCtx.Err() != nil && ctx.Err() == nil {
			return nil, nerrors.Timeout("browser.element", fmt.Sprintf("selector %q not found within %s", selector, timeout))
		}
		return nil, d.opError("browser.element", err)
	}
	return el, nil
}

func (d *rodDriver) opError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return nerrors.FromContext(op, err)
	}
	return nerrors.Wrap(nerrors.KindUnavailable, op, err)
}
