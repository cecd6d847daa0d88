// Package browser drives a headless Chromium page through playwright.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
)

// ErrSessionLost reports that the page, its context or the browser process
// is gone and the session has to be recreated.
var ErrSessionLost = errors.New("browser session lost")

const (
	userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/135.0.0.0 Safari/537.36"

	defaultTimeout     = 30 * time.Second
	defaultSettleDelay = 3 * time.Second
	clickTimeout       = 5 * time.Second
)

type Options struct {
	Headless       bool
	ExecutablePath string
	Timeout        time.Duration
	// SettleDelay is waited before reading page content so client-side
	// rendering can finish.
	SettleDelay time.Duration
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.SettleDelay <= 0 {
		o.SettleDelay = defaultSettleDelay
	}
	return o
}

// Launcher owns the playwright driver process and opens browser sessions.
type Launcher struct {
	pw     *playwright.Playwright
	opts   Options
	logger *slog.Logger
}

func NewLauncher(opts Options, logger *slog.Logger) (*Launcher, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}
	return &Launcher{pw: pw, opts: opts.withDefaults(), logger: logger}, nil
}

// Open launches a fresh Chromium instance with a single page.
func (l *Launcher) Open(ctx context.Context) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(l.opts.Headless),
		Args: []string{
			"--no-sandbox",
			"--disable-dev-shm-usage",
			"--disable-gpu",
			"--disable-blink-features=AutomationControlled",
		},
		Timeout: playwright.Float(ms(l.opts.Timeout)),
	}
	if l.opts.ExecutablePath != "" {
		launchOpts.ExecutablePath = playwright.String(l.opts.ExecutablePath)
	}

	browser, err := l.pw.Chromium.Launch(launchOpts)
	if err != nil {
		return nil, fmt.Errorf("launch chromium: %w", err)
	}

	browserCtx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent: playwright.String(userAgent),
		Viewport:  &playwright.Size{Width: 1280, Height: 800},
	})
	if err != nil {
		browser.Close()
		return nil, fmt.Errorf("create browser context: %w", err)
	}

	page, err := browserCtx.NewPage()
	if err != nil {
		browserCtx.Close()
		browser.Close()
		return nil, fmt.Errorf("create page: %w", err)
	}
	page.SetDefaultTimeout(ms(l.opts.Timeout))
	page.SetDefaultNavigationTimeout(ms(l.opts.Timeout))

	l.logger.Info("browser session opened", "headless", l.opts.Headless)
	return &Session{
		browser: browser,
		context: browserCtx,
		page:    page,
		opts:    l.opts,
		logger:  l.logger,
	}, nil
}

// Stop shuts down the playwright driver. Sessions must be closed first.
func (l *Launcher) Stop() error {
	return l.pw.Stop()
}

// Session is one browser with one page. It is not safe for concurrent use.
type Session struct {
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page
	opts    Options
	logger  *slog.Logger
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.logger.Debug("navigating", "url", url)
	if _, err := s.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(ms(s.opts.Timeout)),
	}); err != nil {
		return s.classify(fmt.Errorf("navigate to %s: %w", url, err))
	}
	return nil
}

func (s *Session) Reload(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.page.Reload(playwright.PageReloadOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(ms(s.opts.Timeout)),
	}); err != nil {
		return s.classify(fmt.Errorf("reload: %w", err))
	}
	return nil
}

// Content waits for the page to settle and returns the rendered HTML.
func (s *Session) Content(ctx context.Context) (string, error) {
	if err := sleep(ctx, s.opts.SettleDelay); err != nil {
		return "", err
	}
	html, err := s.page.Content()
	if err != nil {
		return "", s.classify(fmt.Errorf("read content: %w", err))
	}
	return html, nil
}

func (s *Session) URL() string {
	return s.page.URL()
}

// SelectDate clicks the date strip entry for key (e.g. "20260109") or, failing
// that, the entry showing label. A page without a matching entry is left as is.
func (s *Session) SelectDate(ctx context.Context, key, label string) error {
	var selectors []string
	if key != "" {
		selectors = append(selectors,
			fmt.Sprintf("[id='%s']", key),
			fmt.Sprintf("[data-date='%s']", key),
			fmt.Sprintf("a[href*='%s']", key),
		)
	}
	if label != "" {
		selectors = append(selectors, fmt.Sprintf("[class*='date'] :text('%s')", label))
	}
	clicked, err := s.clickFirst(ctx, selectors)
	if err != nil {
		return err
	}
	if !clicked {
		s.logger.Debug("date selector not found", "key", key, "label", label)
	}
	return nil
}

// OpenBooking follows a "Book tickets" control on a movie detail page if
// there is one.
func (s *Session) OpenBooking(ctx context.Context) error {
	_, err := s.clickFirst(ctx, []string{
		"button:has-text('Book tickets')",
		"a:has-text('Book tickets')",
		"[data-testid*='book']",
	})
	return err
}

func (s *Session) clickFirst(ctx context.Context, selectors []string) (bool, error) {
	for _, selector := range selectors {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		loc := s.page.Locator(selector)
		count, err := loc.Count()
		if err != nil {
			if classified := s.classify(err); errors.Is(classified, ErrSessionLost) {
				return false, classified
			}
			continue
		}
		if count == 0 {
			continue
		}
		if err := loc.First().Click(playwright.LocatorClickOptions{
			Timeout: playwright.Float(ms(clickTimeout)),
		}); err != nil {
			if classified := s.classify(err); errors.Is(classified, ErrSessionLost) {
				return false, classified
			}
			s.logger.Debug("click failed", "selector", selector, "err", err)
			continue
		}
		if err := s.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
			State:   playwright.LoadStateDomcontentloaded,
			Timeout: playwright.Float(ms(s.opts.Timeout)),
		}); err != nil {
			if classified := s.classify(err); errors.Is(classified, ErrSessionLost) {
				return false, classified
			}
			s.logger.Debug("waiting after click failed", "selector", selector, "err", err)
		}
		s.logger.Debug("clicked", "selector", selector)
		return true, nil
	}
	return false, nil
}

func (s *Session) Close() error {
	var errs []error
	if s.page != nil && !s.page.IsClosed() {
		errs = append(errs, s.page.Close())
	}
	if s.context != nil {
		errs = append(errs, s.context.Close())
	}
	if s.browser != nil {
		errs = append(errs, s.browser.Close())
	}
	return errors.Join(errs...)
}

func (s *Session) classify(err error) error {
	if s.page.IsClosed() || !s.browser.IsConnected() || IsSessionLost(err) {
		return fmt.Errorf("%w: %w", ErrSessionLost, err)
	}
	return err
}

var sessionLostMarkers = []string{
	"has been closed",
	"target closed",
	"browser has disconnected",
	"connection closed",
	"session closed",
}

// IsSessionLost reports whether err looks like the browser went away.
func IsSessionLost(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrSessionLost) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range sessionLostMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func ms(d time.Duration) float64 {
	return float64(d / time.Millisecond)
}
