// Package browser provides the browser automation layer using go-rod.
// A Session wraps one page and exposes selector-driven actions with
// fallback selectors and retrying navigation, which is what flaky
// storefront markup needs.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"

	"github.com/cartflowhq/cartflow-go/screenshot"
)

// Viewport defines browser viewport dimensions.
type Viewport struct {
	Width  int
	Height int
}

// Config holds per-session browser configuration.
type Config struct {
	Viewport *Viewport

	// ActionTimeout bounds each element lookup. Defaults to 10s.
	ActionTimeout time.Duration

	// NavRetries is how many navigation attempts are made before
	// giving up. Defaults to 3.
	NavRetries int

	// NavRetryDelay is the initial delay between navigation attempts.
	// It doubles after each failure. Defaults to 1s.
	NavRetryDelay time.Duration

	// Highlight shows visual markers on elements before acting on
	// them. Only useful in headful runs.
	Highlight bool

	ScreenshotConfig *screenshot.Config
}

func (c *Config) applyDefaults() {
	if c.ActionTimeout <= 0 {
		c.ActionTimeout = 10 * time.Second
	}
	if c.NavRetries <= 0 {
		c.NavRetries = 3
	}
	if c.NavRetryDelay <= 0 {
		c.NavRetryDelay = time.Second
	}
}

// Session wraps a rod page for one checkout run.
type Session struct {
	page     *rod.Page
	config   Config
	screener *screenshot.Manager

	highlighter *Highlighter

	mu sync.RWMutex
}

// NewSession wraps an already-created page. The viewport is applied
// immediately.
func NewSession(page *rod.Page, cfg Config) (*Session, error) {
	cfg.applyDefaults()

	s := &Session{
		page:   page,
		config: cfg,
	}

	if cfg.ScreenshotConfig != nil {
		s.screener = screenshot.NewManager(cfg.ScreenshotConfig)
	}
	if cfg.Highlight {
		s.highlighter = NewHighlighter(page, true)
	}

	if cfg.Viewport != nil {
		err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             cfg.Viewport.Width,
			Height:            cfg.Viewport.Height,
			DeviceScaleFactor: 1.0,
			Mobile:            false,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to set viewport: %w", err)
		}
	}

	return s, nil
}

// waitForStableWithTimeout waits for the page to stabilize with an overall timeout.
// This prevents indefinite blocking on pages with continuous animations or
// carousels.
// stabilityDuration: how long the page must be stable (no DOM changes) to be considered "ready"
// maxWait: maximum total time to wait for stability before giving up
func waitForStableWithTimeout(page *rod.Page, stabilityDuration, maxWait time.Duration) {
	if page == nil {
		return
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		// WaitStable waits until page hasn't changed for stabilityDuration
		_ = page.WaitStable(stabilityDuration)
	}()

	select {
	case <-done:
		// Page became stable within timeout
	case <-time.After(maxWait):
		// Timeout reached - page may still be loading/animating but we continue anyway
	}
}

// isRetryable reports whether a navigation error is worth another
// attempt (timeouts and transient network failures).
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "net::ERR_CONNECTION") ||
		strings.Contains(msg, "net::ERR_NETWORK")
}

// Navigate loads a URL, retrying with doubling backoff on timeout-class
// failures, then waits for the page to load and settle.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	page := s.page.Context(ctx)
	delay := s.config.NavRetryDelay

	var lastErr error
	for attempt := 1; attempt <= s.config.NavRetries; attempt++ {
		err := page.Navigate(url)
		if err == nil {
			err = page.Timeout(s.config.ActionTimeout).WaitLoad()
		}
		if err == nil {
			// Use 300ms stability requirement, max 5 seconds total wait
			waitForStableWithTimeout(page, 300*time.Millisecond, 5*time.Second)
			return nil
		}

		lastErr = err
		if !isRetryable(err) || attempt == s.config.NavRetries {
			break
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
	}

	return fmt.Errorf("failed to navigate to %s: %w", url, lastErr)
}

// element resolves the first selector that matches, trying each in
// order within the action timeout.
func (s *Session) element(ctx context.Context, selectors ...string) (*rod.Element, error) {
	if len(selectors) == 0 {
		return nil, fmt.Errorf("no selector given")
	}

	page := s.page.Context(ctx)
	timeout := s.config.ActionTimeout / time.Duration(len(selectors))
	if timeout < time.Second {
		timeout = time.Second
	}

	var lastErr error
	for _, sel := range selectors {
		el, err := page.Timeout(timeout).Element(sel)
		if err == nil {
			return el, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("no element matched %s: %w", strings.Join(selectors, ", "), lastErr)
}

// Click clicks the first element matching any of the selectors.
// Additional selectors act as fallbacks for markup variants.
func (s *Session) Click(ctx context.Context, selectors ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, err := s.element(ctx, selectors...)
	if err != nil {
		return err
	}

	if s.highlighter != nil {
		_ = s.highlighter.Highlight(selectors[0], "click")
		defer s.highlighter.Remove()
	}

	if err := el.ScrollIntoView(); err != nil {
		return fmt.Errorf("failed to scroll to element: %w", err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("failed to click %s: %w", selectors[0], err)
	}
	return nil
}

// Fill replaces the content of the first matching input with value.
func (s *Session) Fill(ctx context.Context, value string, selectors ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, err := s.element(ctx, selectors...)
	if err != nil {
		return err
	}

	if s.highlighter != nil {
		_ = s.highlighter.Highlight(selectors[0], "fill")
		defer s.highlighter.Remove()
	}

	if err := el.SelectAllText(); err != nil {
		return fmt.Errorf("failed to select text in %s: %w", selectors[0], err)
	}
	if err := el.Input(value); err != nil {
		return fmt.Errorf("failed to fill %s: %w", selectors[0], err)
	}
	return nil
}

// Submit presses Enter in the first matching element.
func (s *Session) Submit(ctx context.Context, selectors ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, err := s.element(ctx, selectors...)
	if err != nil {
		return err
	}

	if s.highlighter != nil {
		_ = s.highlighter.Highlight(selectors[0], "submit")
		defer s.highlighter.Remove()
	}

	if err := el.Type(input.Enter); err != nil {
		return fmt.Errorf("failed to submit %s: %w", selectors[0], err)
	}
	return nil
}

// WaitVisible waits until an element matching the selector is visible.
// Comma-joined selectors work the way querySelector treats them, so
// callers can wait on alternatives in one call.
func (s *Session) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if timeout <= 0 {
		timeout = s.config.ActionTimeout
	}

	el, err := s.page.Context(ctx).Timeout(timeout).Element(selector)
	if err != nil {
		return fmt.Errorf("timed out waiting for %s: %w", selector, err)
	}
	if err := el.WaitVisible(); err != nil {
		return fmt.Errorf("element %s never became visible: %w", selector, err)
	}
	return nil
}

// Visible reports whether an element matching the selector exists and
// is currently visible. It does not wait.
func (s *Session) Visible(ctx context.Context, selector string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	has, el, err := s.page.Context(ctx).Has(selector)
	if err != nil || !has {
		return false
	}
	visible, err := el.Visible()
	return err == nil && visible
}

// Count returns how many elements match the selector right now.
func (s *Session) Count(ctx context.Context, selector string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	els, err := s.page.Context(ctx).Elements(selector)
	if err != nil {
		return 0
	}
	return len(els)
}

// ClickNth clicks the n-th (zero-based) element matching the selector.
func (s *Session) ClickNth(ctx context.Context, selector string, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	els, err := s.page.Context(ctx).Elements(selector)
	if err != nil {
		return fmt.Errorf("failed to query %s: %w", selector, err)
	}
	if n < 0 || n >= len(els) {
		return fmt.Errorf("element %d of %s not found (%d matches)", n, selector, len(els))
	}

	el := els[n]
	if err := el.ScrollIntoView(); err != nil {
		return fmt.Errorf("failed to scroll to element: %w", err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("failed to click %s[%d]: %w", selector, n, err)
	}
	return nil
}

// Text returns the inner text of the first matching element.
func (s *Session) Text(ctx context.Context, selector string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	el, err := s.page.Context(ctx).Timeout(s.config.ActionTimeout).Element(selector)
	if err != nil {
		return "", fmt.Errorf("no element matched %s: %w", selector, err)
	}
	text, err := el.Text()
	if err != nil {
		return "", fmt.Errorf("failed to read text of %s: %w", selector, err)
	}
	return text, nil
}

// Eval runs a JavaScript expression on the page and returns the result
// rendered as a string.
func (s *Session) Eval(ctx context.Context, js string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res, err := s.page.Context(ctx).Eval(js)
	if err != nil {
		return "", fmt.Errorf("failed to evaluate script: %w", err)
	}
	return res.Value.String(), nil
}

// Capture takes a viewport screenshot of the current page.
func (s *Session) Capture(ctx context.Context) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Viewport screenshot (false) instead of full-page (true) to avoid
	// fixed overlay elements being captured multiple times during page stitching
	data, err := s.page.Context(ctx).Screenshot(false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to take screenshot: %w", err)
	}
	return data, nil
}

// CaptureAndSave takes a screenshot and stores it under the given
// name. A nil or disabled screenshot manager makes this a no-op.
func (s *Session) CaptureAndSave(ctx context.Context, name string) (string, error) {
	if s.screener == nil || !s.screener.Config().Enabled {
		return "", nil
	}

	data, err := s.Capture(ctx)
	if err != nil {
		return "", err
	}
	return s.screener.Save(data, name)
}

// URL returns the current page URL.
func (s *Session) URL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, err := s.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

// Title returns the current page title.
func (s *Session) Title() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, err := s.page.Info()
	if err != nil {
		return ""
	}
	return info.Title
}

// Page returns the underlying rod.Page for advanced operations such as
// request hijacking.
func (s *Session) Page() *rod.Page {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.page
}

// Close closes the session's page.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.page == nil {
		return nil
	}
	err := s.page.Close()
	s.page = nil
	return err
}
