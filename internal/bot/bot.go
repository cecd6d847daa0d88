package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"showtime-notifier/internal/browser"
	"showtime-notifier/internal/config"
	"showtime-notifier/internal/model"
	"showtime-notifier/internal/registry"
	"showtime-notifier/internal/scanner"
)

const defaultPausedSleep = 2 * time.Second

var errNoPage = errors.New("no page loaded")

type Phase int

const (
	PhaseInitializing Phase = iota
	PhaseRunning
	PhasePaused
	PhaseTerminated
)

func (p Phase) String() string {
	switch p {
	case PhaseInitializing:
		return "initializing"
	case PhaseRunning:
		return "running"
	case PhasePaused:
		return "paused"
	case PhaseTerminated:
		return "terminated"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

type Status struct {
	Phase        Phase
	CheckCount   int
	StartTime    time.Time
	LastScan     time.Time
	TheatreCount int
}

// Monitor owns the browser page and the theatre registry and runs the
// scan, diff and notify loop.
type Monitor struct {
	appConfig  *config.AppConfig
	openPage   PageOpener
	scanner    *scanner.Scanner
	registry   *registry.Registry
	dispatcher *Dispatcher
	logger     *slog.Logger
	now        func() time.Time

	pausedSleep time.Duration

	// cycleMu serializes all page access; the page is not safe for
	// concurrent use and at most one scan may be in flight.
	cycleMu    sync.Mutex
	page       Page
	pageURL    string
	lastReload time.Time

	lastSummary time.Time

	mu         sync.Mutex
	phase      Phase
	checkCount int
	startTime  time.Time
	lastScan   time.Time
}

func NewMonitor(appConfig *config.AppConfig, openPage PageOpener, sc *scanner.Scanner, dispatcher *Dispatcher, logger *slog.Logger) *Monitor {
	return &Monitor{
		appConfig:   appConfig,
		openPage:    openPage,
		scanner:     sc,
		registry:    registry.New(),
		dispatcher:  dispatcher,
		logger:      logger,
		now:         time.Now,
		pausedSleep: defaultPausedSleep,
		phase:       PhaseInitializing,
		startTime:   time.Now(),
	}
}

// Initialize opens the browser, finds the movie page and applies the date
// selection. Any failure terminates the monitor; it is not retried.
func (m *Monitor) Initialize(ctx context.Context) error {
	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()

	if phase := m.Phase(); phase != PhaseInitializing {
		return fmt.Errorf("initialize: monitor is %s", phase)
	}

	page, err := m.openPage(ctx)
	if err != nil {
		return m.terminate("Could not start the browser.", fmt.Errorf("open browser: %w", err))
	}

	url, err := m.locate(ctx, page)
	if err == nil {
		err = m.preparePage(ctx, page)
	}
	if err != nil {
		if cerr := page.Close(); cerr != nil {
			m.logger.Debug("closing page after failed start", "err", cerr)
		}
		return m.terminate("Could not open the booking page.", fmt.Errorf("locate movie page: %w", err))
	}

	now := m.now()
	m.page = page
	m.pageURL = url
	m.lastReload = now
	m.lastSummary = now

	m.mu.Lock()
	m.phase = PhaseRunning
	m.startTime = now
	m.mu.Unlock()

	m.logger.Info("✅ monitor initialized", "url", url)
	return nil
}

// preparePage follows the booking link and selects the monitored date.
// Neither control being present is fine; only a lost session is an error.
func (m *Monitor) preparePage(ctx context.Context, page Page) error {
	if err := page.OpenBooking(ctx); err != nil {
		if errors.Is(err, browser.ErrSessionLost) || ctx.Err() != nil {
			return err
		}
		m.logger.Warn("could not open booking view", "err", err)
	}
	if err := page.SelectDate(ctx, m.appConfig.MonitorDate, m.appConfig.FullDate); err != nil {
		if errors.Is(err, browser.ErrSessionLost) || ctx.Err() != nil {
			return err
		}
		m.logger.Warn("could not select date", "date", m.appConfig.FullDate, "err", err)
	}
	return nil
}

// Run loops until ctx is cancelled or the monitor terminates. Cancellation
// returns nil; termination returns the fatal error.
func (m *Monitor) Run(ctx context.Context) error {
	if phase := m.Phase(); phase != PhaseRunning && phase != PhasePaused {
		return fmt.Errorf("run: monitor is %s", phase)
	}

	m.dispatcher.Broadcast(startupMessage(m.appConfig), menuButtons)
	m.logger.Info("🎯 monitoring started", "poll_interval", m.appConfig.PollInterval)

	for {
		if ctx.Err() != nil {
			m.logger.Info("monitor stopping", "reason", ctx.Err())
			return nil
		}

		switch m.Phase() {
		case PhaseTerminated:
			return errors.New("monitor terminated")
		case PhasePaused:
			_ = sleepCtx(ctx, m.pausedSleep)
			continue
		}

		started := m.now()
		if err := m.tick(ctx); err != nil {
			return err
		}

		wait := m.appConfig.PollInterval - m.now().Sub(started)
		if wait > 0 {
			_ = sleepCtx(ctx, wait)
		}
	}
}

// tick runs one iteration: reload when due, scan, summary when due. Only a
// failed session recovery is returned.
func (m *Monitor) tick(ctx context.Context) error {
	err := m.reloadIfDue(ctx)
	if err != nil && !errors.Is(err, browser.ErrSessionLost) && ctx.Err() == nil {
		m.logger.Warn("page reload failed, scanning the current page", "err", err)
		err = nil
	}
	if err == nil {
		_, err = m.ScanAndNotify(ctx)
	}

	switch {
	case err == nil:
	case ctx.Err() != nil:
		return nil
	case errors.Is(err, browser.ErrSessionLost):
		if rerr := m.recoverSession(ctx); rerr != nil {
			return rerr
		}
	default:
		m.logger.Warn("scan cycle failed", "err", err)
	}

	m.summaryIfDue()
	return nil
}

func (m *Monitor) reloadIfDue(ctx context.Context) error {
	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()

	if m.page == nil || m.now().Sub(m.lastReload) < m.appConfig.ReloadInterval {
		return nil
	}

	// A failed reload waits a full interval before the next attempt.
	m.lastReload = m.now()
	m.logger.Debug("reloading page")
	if err := m.page.Reload(ctx); err != nil {
		return fmt.Errorf("reload page: %w", err)
	}
	if err := m.preparePage(ctx, m.page); err != nil {
		return fmt.Errorf("reapply date selection: %w", err)
	}
	return nil
}

func (m *Monitor) summaryIfDue() {
	if m.now().Sub(m.lastSummary) < m.appConfig.SummaryInterval {
		return
	}
	m.BroadcastSummary()
	m.lastSummary = m.now()
}

// BroadcastSummary sends every known theatre to all recipients.
func (m *Monitor) BroadcastSummary() int {
	return m.BroadcastTheatres(m.registry.Snapshot())
}

// BroadcastTheatres sends a summary of theatres to all recipients, split
// into as many messages as needed. It returns how many recipients got the
// last part.
func (m *Monitor) BroadcastTheatres(theatres []model.Theatre) int {
	parts := summaryMessages(m.appConfig, theatres, m.Status())
	delivered := 0
	for i, part := range parts {
		var rows [][]Button
		if i == len(parts)-1 {
			rows = menuButtons
		}
		delivered = m.dispatcher.Broadcast(part, rows)
	}
	return delivered
}

// Scan reads the current page without touching the registry. It counts as
// a check.
func (m *Monitor) Scan(ctx context.Context) ([]model.Theatre, error) {
	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()
	return m.scanLocked(ctx)
}

func (m *Monitor) scanLocked(ctx context.Context) ([]model.Theatre, error) {
	m.mu.Lock()
	m.checkCount++
	m.mu.Unlock()

	if m.page == nil {
		return nil, errNoPage
	}
	html, err := m.page.Content(ctx)
	if err != nil {
		return nil, fmt.Errorf("read page: %w", err)
	}
	theatres, err := m.scanner.Scan(html)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.lastScan = m.now()
	m.mu.Unlock()
	return theatres, nil
}

// ScanAndNotify runs one scan cycle and alerts every recipient about each
// theatre seen for the first time. It returns the new theatres.
func (m *Monitor) ScanAndNotify(ctx context.Context) ([]model.Theatre, error) {
	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()

	theatres, err := m.scanLocked(ctx)
	if err != nil {
		return nil, err
	}

	fresh := m.registry.DiffAndAbsorb(theatres)

	for _, theatre := range fresh {
		m.logger.Info("🎉 new theatre opened", "theatre", theatre.Name, "showtimes", len(theatre.Showtimes))
		delivered := m.dispatcher.Broadcast(newTheatreMessage(m.appConfig, theatre), menuButtons)
		m.logger.Info("📤 alert sent", "theatre", theatre.Name, "delivered", delivered)
	}
	m.logger.Debug("scan complete", "on_page", len(theatres), "new", len(fresh), "known", m.registry.Len())
	return fresh, nil
}

// recoverSession replaces a lost browser session once. If that fails the
// monitor terminates.
func (m *Monitor) recoverSession(ctx context.Context) error {
	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()

	m.logger.Warn("browser session lost, recreating")
	if m.page != nil {
		if err := m.page.Close(); err != nil {
			m.logger.Debug("closing lost page", "err", err)
		}
		m.page = nil
	}

	page, err := m.openPage(ctx)
	if err != nil {
		return m.terminate("The browser crashed and could not be restarted.", fmt.Errorf("recreate browser: %w", err))
	}
	err = page.Navigate(ctx, m.pageURL)
	if err == nil {
		err = m.preparePage(ctx, page)
	}
	if err != nil {
		if cerr := page.Close(); cerr != nil {
			m.logger.Debug("closing page after failed recovery", "err", cerr)
		}
		return m.terminate("The browser crashed and the booking page could not be reopened.", fmt.Errorf("reopen %s: %w", m.pageURL, err))
	}

	m.page = page
	m.lastReload = m.now()
	m.logger.Info("♻️ browser session recreated", "url", m.pageURL)
	return nil
}

func (m *Monitor) terminate(reason string, err error) error {
	m.mu.Lock()
	m.phase = PhaseTerminated
	m.mu.Unlock()

	m.logger.Error("monitor terminated", "reason", reason, "err", err)
	m.dispatcher.Broadcast(fatalMessage(reason, err), nil)
	return err
}

// Pause stops scanning until Resume. It reports whether the phase changed.
func (m *Monitor) Pause() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != PhaseRunning {
		return false
	}
	m.phase = PhasePaused
	m.logger.Info("⏸️ monitoring paused")
	return true
}

// Resume restarts scanning after Pause. It reports whether the phase changed.
func (m *Monitor) Resume() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != PhasePaused {
		return false
	}
	m.phase = PhaseRunning
	m.logger.Info("▶️ monitoring resumed")
	return true
}

func (m *Monitor) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		Phase:        m.phase,
		CheckCount:   m.checkCount,
		StartTime:    m.startTime,
		LastScan:     m.lastScan,
		TheatreCount: m.registry.Len(),
	}
}

func (m *Monitor) Theatres() []model.Theatre {
	return m.registry.Snapshot()
}

// Close releases the browser page.
func (m *Monitor) Close() error {
	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()
	if m.page == nil {
		return nil
	}
	err := m.page.Close()
	m.page = nil
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
