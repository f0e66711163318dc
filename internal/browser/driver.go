// Package browser defines the browser driver contract the playbook runner
// and vision agent execute against, plus the go-rod implementation.
package browser

import (
	"context"
	"time"
)

// WaitUntil names the navigation settle point.
type WaitUntil string

const (
	WaitLoad             WaitUntil = "load"
	WaitDOMContentLoaded WaitUntil = "domcontentloaded"
	WaitNetworkIdle      WaitUntil = "networkidle"
)

// SelectorState names the wait target for WaitForSelector.
type SelectorState string

const (
	StateVisible  SelectorState = "visible"
	StateAttached SelectorState = "attached"
)

// DefaultTimeout bounds element operations when callers pass zero.
const DefaultTimeout = 30 * time.Second

// Driver is the asynchronous browser contract. One skill call owns one
// driver instance at a time; concurrent skills instantiate their own.
type Driver interface {
	Navigate(ctx context.Context, url string, waitUntil WaitUntil) error
	Click(ctx context.Context, selector string, timeout time.Duration) error
	Fill(ctx context.Context, selector, text string, timeout time.Duration) error
	GetText(ctx context.Context, selector string, timeout time.Duration) (string, error)
	WaitForSelector(ctx context.Context, selector string, timeout time.Duration, state SelectorState) error
	Evaluate(ctx context.Context, script string) (any, error)
	Screenshot(ctx context.Context, fullPage bool) ([]byte, error)
	PressKey(ctx context.Context, key string) error
	Select(ctx context.Context, selector, value string) error
	Close() error
}

// Config holds driver construction settings.
type Config struct {
	Headless          bool
	UserDataDir       string // persistent profile for authenticated sessions
	ViewportWidth     int
	ViewportHeight    int
	NavigationTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Headless:          false,
		ViewportWidth:     1920,
		ViewportHeight:    1080,
		NavigationTimeout: 30 * time.Second,
	}
}

func (c Config) navigationTimeout() time.Duration {
	if c.NavigationTimeout <= 0 {
		return 30 * time.Second
	}
	return c.NavigationTimeout
}
