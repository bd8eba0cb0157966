// Package cartflow runs end-to-end checkout journeys against a
// storefront: it launches a browser, fans out N parallel user sessions
// that log in, search, add to cart and pay against mocked payment
// APIs, and collects per-session results for reporting.
package cartflow

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/cartflowhq/cartflow-go/browser"
	"github.com/cartflowhq/cartflow-go/dataset"
	"github.com/cartflowhq/cartflow-go/flow"
	"github.com/cartflowhq/cartflow-go/intercept"
	"github.com/cartflowhq/cartflow-go/logging"
	"github.com/cartflowhq/cartflow-go/screenshot"
)

// Viewport defines browser viewport dimensions.
type Viewport struct {
	Width  int
	Height int
}

// Common viewport presets.
var (
	// DesktopViewport is a safe default that fits most laptop screens
	DesktopViewport = &Viewport{Width: 1280, Height: 800}
	// LargeDesktopViewport for full HD displays
	LargeDesktopViewport = &Viewport{Width: 1920, Height: 1080}
	// TabletViewport for tablet simulation
	TabletViewport = &Viewport{Width: 768, Height: 1024}
	// MobileViewport for mobile simulation
	MobileViewport = &Viewport{Width: 375, Height: 812}
)

// Config holds the configuration for a checkout harness.
type Config struct {
	// BaseURL is the storefront to test. Defaults to the public demo
	// shop.
	BaseURL string

	// Users is the number of parallel checkout sessions. Defaults to 3.
	Users int

	// Headless determines whether the browser runs without a window.
	Headless bool

	// SlowMotion inserts a delay before every browser action. Useful
	// with Headless=false for watching a run.
	SlowMotion time.Duration

	// Viewport sets the browser viewport size.
	// Defaults to DesktopViewport if nil.
	Viewport *Viewport

	// SessionTimeout bounds one full checkout journey. Defaults to 3m.
	SessionTimeout time.Duration

	// ActionTimeout bounds individual element lookups. Defaults to 10s.
	ActionTimeout time.Duration

	// DataDir is where fixture files (users.yaml, products.yaml, ...)
	// are read from. Missing files fall back to env vars and built-in
	// defaults.
	DataDir string

	// UserKind selects which fixture account to log in with.
	// Defaults to "standard".
	UserKind string

	// Highlight draws markers on elements before acting on them.
	// Only visible in headful runs.
	Highlight bool

	// ScreenshotConfig configures screenshot capture and storage.
	ScreenshotConfig *screenshot.Config

	// Logger receives structured run logs. Defaults to the package
	// default logger.
	Logger *log.Logger
}

// Harness owns the browser and runs checkout sessions against it.
type Harness struct {
	config   Config
	launcher *launcher.Launcher
	browser  *rod.Browser
	data     *dataset.Store

	mu     sync.Mutex
	closed bool
}

// New creates a harness with the given configuration.
func New(cfg Config) (*Harness, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://demo.saleor.io"
	}
	if cfg.Users <= 0 {
		cfg.Users = 3
	}
	if cfg.Viewport == nil {
		cfg.Viewport = DesktopViewport
	}
	if cfg.SessionTimeout <= 0 {
		cfg.SessionTimeout = 3 * time.Minute
	}
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = 10 * time.Second
	}
	if cfg.UserKind == "" {
		cfg.UserKind = "standard"
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}

	return &Harness{
		config: cfg,
		data:   dataset.NewStore(cfg.DataDir),
	}, nil
}

// Config returns a copy of the effective configuration.
func (h *Harness) Config() Config {
	return h.config
}

// Start launches the browser and connects to it.
func (h *Harness) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return fmt.Errorf("harness is closed")
	}

	h.launcher = launcher.New().
		// Anti-detection flags
		Set("disable-blink-features", "AutomationControlled").
		Set("disable-infobars").
		Set("disable-dev-shm-usage").
		Set("no-first-run").
		Set("no-default-browser-check").
		Set("enable-features", "NetworkService,NetworkServiceInProcess").
		Set("disable-background-networking").
		Set("disable-client-side-phishing-detection").
		Set("disable-default-apps").
		Set("disable-extensions").
		Set("disable-hang-monitor").
		Set("disable-popup-blocking").
		Set("disable-prompt-on-repost").
		Set("disable-sync").
		Set("disable-translate").
		Set("metrics-recording-only").
		Set("safebrowsing-disable-auto-update").
		Set("window-size", fmt.Sprintf("%d,%d", h.config.Viewport.Width, h.config.Viewport.Height)).
		Headless(h.config.Headless)

	controlURL, err := h.launcher.Launch()
	if err != nil {
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	rodBrowser := rod.New().ControlURL(controlURL)
	if h.config.SlowMotion > 0 {
		rodBrowser = rodBrowser.SlowMotion(h.config.SlowMotion)
	}
	if err := rodBrowser.Connect(); err != nil {
		return fmt.Errorf("failed to connect to browser: %w", err)
	}

	h.browser = rodBrowser
	h.config.Logger.Info("browser started",
		"headless", h.config.Headless,
		"viewport", fmt.Sprintf("%dx%d", h.config.Viewport.Width, h.config.Viewport.Height))
	return nil
}

// RunSessions runs all user sessions in parallel and returns their
// results ordered by user ID. The browser must be started.
func (h *Harness) RunSessions(ctx context.Context) ([]flow.Result, error) {
	h.mu.Lock()
	if h.browser == nil {
		h.mu.Unlock()
		return nil, fmt.Errorf("harness not started")
	}
	rodBrowser := h.browser
	h.mu.Unlock()

	user, err := h.data.User(h.config.UserKind)
	if err != nil {
		return nil, fmt.Errorf("failed to load user fixture: %w", err)
	}
	products, err := h.data.Products("")
	if err != nil {
		return nil, fmt.Errorf("failed to load product fixtures: %w", err)
	}
	address, err := h.data.Address("US")
	if err != nil {
		return nil, fmt.Errorf("failed to load address fixture: %w", err)
	}
	card, err := h.data.Payment("credit_card")
	if err != nil {
		return nil, fmt.Errorf("failed to load payment fixture: %w", err)
	}

	h.config.Logger.Info("starting sessions", "users", h.config.Users)
	started := time.Now()

	var wg sync.WaitGroup
	resultCh := make(chan flow.Result, h.config.Users)

	for i := 0; i < h.config.Users; i++ {
		userID := i + 1
		product := products[i%len(products)]

		wg.Add(1)
		go func() {
			defer wg.Done()

			sctx, cancel := context.WithTimeout(ctx, h.config.SessionTimeout)
			defer cancel()

			resultCh <- h.runSession(sctx, rodBrowser, userID, user, product, address, card)
		}()
	}

	wg.Wait()
	close(resultCh)

	results := make([]flow.Result, 0, h.config.Users)
	for r := range resultCh {
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].UserID < results[j].UserID
	})

	h.config.Logger.Info("sessions complete", "elapsed", logging.Elapsed(time.Since(started)))
	return results, nil
}

// runSession sets up an isolated incognito context with payment mocks
// installed and runs one checkout journey in it.
func (h *Harness) runSession(ctx context.Context, rodBrowser *rod.Browser, userID int,
	user dataset.User, product dataset.Product, address dataset.Address, card dataset.Card) flow.Result {

	logger := logging.ForSession(h.config.Logger, userID)

	errResult := func(stage string, err error) flow.Result {
		logger.Error("session setup failed", "stage", stage, "err", err)
		return flow.Result{
			UserID: userID,
			Status: flow.StatusError,
			Error:  fmt.Sprintf("unexpected error: %s: %v", stage, err),
		}
	}

	// Each user gets its own incognito context so cookies and cart
	// state never leak between sessions.
	incognito, err := rodBrowser.Incognito()
	if err != nil {
		return errResult("incognito context", err)
	}

	page, err := incognito.Page(proto.TargetCreateTarget{})
	if err != nil {
		return errResult("create page", err)
	}

	session, err := browser.NewSession(page, browser.Config{
		Viewport: &browser.Viewport{
			Width:  h.config.Viewport.Width,
			Height: h.config.Viewport.Height,
		},
		ActionTimeout:    h.config.ActionTimeout,
		Highlight:        h.config.Highlight && !h.config.Headless,
		ScreenshotConfig: h.config.ScreenshotConfig,
	})
	if err != nil {
		page.Close()
		return errResult("create session", err)
	}
	defer session.Close()

	// Payment and analytics mocking is page-wide and must be in place
	// before the first navigation.
	stop, err := intercept.Install(session.Page(), logger)
	if err != nil {
		return errResult("install mocks", err)
	}
	defer stop()

	checkout := flow.New(session, flow.Config{
		BaseURL:     h.config.BaseURL,
		User:        user,
		Product:     product,
		Address:     address,
		Card:        card,
		StepTimeout: h.config.ActionTimeout,
		Logger:      h.config.Logger,
	})

	return checkout.Run(ctx, userID)
}

// Run starts the browser, runs all sessions, and shuts the browser
// down again. It is the one-call entry point for CLI use.
func (h *Harness) Run(ctx context.Context) ([]flow.Result, error) {
	if err := h.Start(ctx); err != nil {
		return nil, err
	}
	defer h.Close()

	return h.RunSessions(ctx)
}

// Close shuts the browser down and cleans up the launcher's temp
// profile.
func (h *Harness) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true

	var errs []error

	if h.browser != nil {
		if err := h.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
		h.browser = nil
	}

	if h.launcher != nil {
		h.launcher.Cleanup()
		h.launcher = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
