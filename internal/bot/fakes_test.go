package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"showtime-notifier/internal/config"
	"showtime-notifier/internal/scanner"
)

type sentMessage struct {
	ChatID   int64
	Text     string
	Keyboard *tgbotapi.InlineKeyboardMarkup
}

type fakeAPI struct {
	mu        sync.Mutex
	sent      []sentMessage
	callbacks []string
	failFor   map[int64]bool
	updates   chan tgbotapi.Update
	stopped   bool
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{failFor: map[int64]bool{}, updates: make(chan tgbotapi.Update, 8)}
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	msg, ok := c.(tgbotapi.MessageConfig)
	if !ok {
		return tgbotapi.Message{}, fmt.Errorf("unexpected chattable %T", c)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[msg.ChatID] {
		return tgbotapi.Message{}, errors.New("Forbidden: bot was blocked by the user")
	}
	keyboard, _ := msg.ReplyMarkup.(*tgbotapi.InlineKeyboardMarkup)
	f.sent = append(f.sent, sentMessage{ChatID: msg.ChatID, Text: msg.Text, Keyboard: keyboard})
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	if cb, ok := c.(tgbotapi.CallbackConfig); ok {
		f.mu.Lock()
		f.callbacks = append(f.callbacks, cb.CallbackQueryID)
		f.mu.Unlock()
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeAPI) StopReceivingUpdates() {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
}

func (f *fakeAPI) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

func (f *fakeAPI) messagesContaining(substr string) []sentMessage {
	var out []sentMessage
	for _, m := range f.messages() {
		if strings.Contains(m.Text, substr) {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeAPI) lastTo(chatID int64) string {
	msgs := f.messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].ChatID == chatID {
			return msgs[i].Text
		}
	}
	return ""
}

type fakePage struct {
	mu           sync.Mutex
	pages        []string
	contentErr   error
	navigateErr  error
	reloadErr    error
	navigated    []string
	contentCalls int
	reloads      int
	dateSelects  int
	closed       bool
}

// Content serves pages in order and repeats the last one.
func (p *fakePage) Content(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.contentCalls++
	if p.contentErr != nil {
		return "", p.contentErr
	}
	if len(p.pages) == 0 {
		return "", nil
	}
	html := p.pages[0]
	if len(p.pages) > 1 {
		p.pages = p.pages[1:]
	}
	return html, nil
}

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navigated = append(p.navigated, url)
	return p.navigateErr
}

func (p *fakePage) Reload(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reloads++
	return p.reloadErr
}

func (p *fakePage) SelectDate(ctx context.Context, key, label string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dateSelects++
	return nil
}

func (p *fakePage) OpenBooking(ctx context.Context) error { return nil }

func (p *fakePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePage) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.contentCalls
}

func (p *fakePage) setContentErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.contentErr = err
}

// openers returns a PageOpener handing out pages in order, then failing.
func openers(pages ...*fakePage) (PageOpener, *int) {
	var mu sync.Mutex
	opened := 0
	return func(ctx context.Context) (Page, error) {
		mu.Lock()
		defer mu.Unlock()
		if opened >= len(pages) {
			return nil, errors.New("chromium failed to start")
		}
		p := pages[opened]
		opened++
		return p, nil
	}, &opened
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

const (
	adminChat    int64 = 111
	memberChat   int64 = 222
	observerChat int64 = 333
)

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		TelegramBotToken: "token",
		Recipients:       []int64{adminChat, memberChat, observerChat},
		Admins:           map[int64]bool{adminChat: true},
		MovieName:        "Jana Nayagan",
		City:             "Chennai",
		FullDate:         "09 January",
		MonitorDate:      "20260109",
		BaseURL:          "https://example.test",
		PollInterval:     time.Millisecond,
		SummaryInterval:  time.Hour,
		ReloadInterval:   time.Hour,
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func venuePage(theatres map[string][]string, order ...string) string {
	var b strings.Builder
	b.WriteString("<html><body><h1>Jana Nayagan</h1><ul>")
	for _, name := range order {
		fmt.Fprintf(&b, `<li class="venue" data-name="%s">`, name)
		for _, s := range theatres[name] {
			fmt.Fprintf(&b, "<a>%s</a>", s)
		}
		b.WriteString("</li>")
	}
	b.WriteString("</ul></body></html>")
	return b.String()
}

const moviePage = "<html><body><h1>Jana Nayagan</h1><p>Bookings not open yet</p></body></html>"

type harness struct {
	api     *fakeAPI
	cfg     *config.AppConfig
	monitor *Monitor
	bot     *InteractiveBot
	clock   *fakeClock
	opened  *int
}

func newHarness(pages ...*fakePage) *harness {
	api := newFakeAPI()
	cfg := testConfig()
	logger := testLogger()
	dispatcher := NewDispatcher(api, cfg.Recipients, logger)
	opener, opened := openers(pages...)

	clock := &fakeClock{now: time.Date(2026, 1, 8, 9, 0, 0, 0, time.UTC)}
	monitor := NewMonitor(cfg, opener, scanner.New(logger), dispatcher, logger)
	monitor.now = clock.Now
	monitor.pausedSleep = time.Millisecond

	ib := NewInteractiveBot(api, cfg, monitor, dispatcher, logger)
	ib.now = clock.Now
	return &harness{api: api, cfg: cfg, monitor: monitor, bot: ib, clock: clock, opened: opened}
}
