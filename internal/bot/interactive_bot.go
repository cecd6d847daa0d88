package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"showtime-notifier/internal/config"
)

// Forced scans share the page with the poll loop, so they are throttled.
const refreshCooldown = 15 * time.Second

// Event is an inbound request from a chat: either a typed command or a
// pressed inline button.
type Event interface {
	Action() string
	Chat() int64
}

type Command struct {
	Name   string
	ChatID int64
	User   string
}

func (c Command) Action() string { return c.Name }
func (c Command) Chat() int64    { return c.ChatID }

type ButtonAction struct {
	ActionID   string
	ChatID     int64
	CallbackID string
	User       string
}

func (b ButtonAction) Action() string { return b.ActionID }
func (b ButtonAction) Chat() int64    { return b.ChatID }

type handlerFunc func(ctx context.Context, ev Event)

// InteractiveBot answers chat commands and button presses against the
// running monitor.
type InteractiveBot struct {
	api            TelegramAPI
	appConfig      *config.AppConfig
	monitor        *Monitor
	dispatcher     *Dispatcher
	logger         *slog.Logger
	refreshLimiter *rate.Limiter
	now            func() time.Time
	handlers       map[string]handlerFunc
}

func NewInteractiveBot(api TelegramAPI, appConfig *config.AppConfig, monitor *Monitor, dispatcher *Dispatcher, logger *slog.Logger) *InteractiveBot {
	ib := &InteractiveBot{
		api:            api,
		appConfig:      appConfig,
		monitor:        monitor,
		dispatcher:     dispatcher,
		logger:         logger,
		refreshLimiter: rate.NewLimiter(rate.Every(refreshCooldown), 1),
		now:            time.Now,
	}
	ib.handlers = map[string]handlerFunc{
		actionStart:    ib.handleStart,
		actionHelp:     ib.handleHelp,
		actionStatus:   ib.handleStatus,
		actionTheatres: ib.handleTheatres,
		actionList:     ib.handleTheatres,
		actionRefresh:  ib.handleRefresh,
		actionStop:     ib.handlePause,
		actionPause:    ib.handlePause,
		actionResume:   ib.handleResume,
	}
	return ib
}

// Start receives updates until ctx is cancelled.
func (ib *InteractiveBot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := ib.api.GetUpdatesChan(u)
	ib.logger.Info("🚀 interactive bot started, ready to receive commands")

	for {
		select {
		case <-ctx.Done():
			ib.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			ib.HandleUpdate(ctx, update)
		}
	}
}

func (ib *InteractiveBot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	ev, ok := eventFromUpdate(update)
	if !ok {
		return
	}

	if button, isButton := ev.(ButtonAction); isButton {
		// Stops the loading animation on the pressed button.
		if _, err := ib.api.Request(tgbotapi.NewCallback(button.CallbackID, "")); err != nil {
			ib.logger.Debug("answering callback failed", "err", err)
		}
	}
	ib.Dispatch(ctx, ev)
}

func eventFromUpdate(update tgbotapi.Update) (Event, bool) {
	switch {
	case update.Message != nil:
		msg := update.Message
		if !msg.IsCommand() {
			return nil, false
		}
		return Command{Name: strings.ToLower(msg.Command()), ChatID: msg.Chat.ID, User: displayName(msg.From)}, true
	case update.CallbackQuery != nil:
		cb := update.CallbackQuery
		if cb.Message == nil {
			return nil, false
		}
		return ButtonAction{ActionID: cb.Data, ChatID: cb.Message.Chat.ID, CallbackID: cb.ID, User: displayName(cb.From)}, true
	}
	return nil, false
}

func displayName(user *tgbotapi.User) string {
	if user == nil {
		return ""
	}
	if user.UserName != "" {
		return user.UserName
	}
	return strings.TrimSpace(fmt.Sprintf("%s %s", user.FirstName, user.LastName))
}

// Dispatch runs the handler registered for the event's action. Unknown
// actions are ignored.
func (ib *InteractiveBot) Dispatch(ctx context.Context, ev Event) {
	handler, ok := ib.handlers[ev.Action()]
	if !ok {
		ib.logger.Debug("ignoring unknown action", "action", ev.Action(), "chat_id", ev.Chat())
		return
	}
	ib.logger.Info("📝 command received", "action", ev.Action(), "chat_id", ev.Chat())
	handler(ctx, ev)
}

func (ib *InteractiveBot) reply(chatID int64, text string, rows [][]Button) {
	if err := ib.dispatcher.SendTo(chatID, text, rows); err != nil {
		ib.logger.Warn("❌ reply failed", "chat_id", chatID, "err", err)
	}
}

func (ib *InteractiveBot) handleStart(_ context.Context, ev Event) {
	ib.reply(ev.Chat(), welcomeMessage(ib.appConfig), menuButtons)
}

func (ib *InteractiveBot) handleHelp(_ context.Context, ev Event) {
	ib.reply(ev.Chat(), helpMessage(), menuButtons)
}

func (ib *InteractiveBot) handleStatus(_ context.Context, ev Event) {
	ib.reply(ev.Chat(), statusMessage(ib.monitor.Status(), ib.now()), menuButtons)
}

func (ib *InteractiveBot) handleTheatres(_ context.Context, ev Event) {
	ib.reply(ev.Chat(), theatreListMessage(ib.monitor.Theatres()), menuButtons)
}

func (ib *InteractiveBot) handleRefresh(ctx context.Context, ev Event) {
	if phase := ib.monitor.Phase(); phase == PhaseInitializing || phase == PhaseTerminated {
		ib.reply(ev.Chat(), fmt.Sprintf("⚠️ Monitor is %s, nothing to refresh.", phase), menuButtons)
		return
	}
	if !ib.refreshLimiter.Allow() {
		ib.reply(ev.Chat(), "⏰ A scan just ran. Please wait a few seconds before refreshing again.", menuButtons)
		return
	}

	ib.reply(ev.Chat(), "🔄 Refreshing…", nil)
	fresh, err := ib.monitor.ScanAndNotify(ctx)
	if err != nil {
		ib.logger.Warn("forced scan failed", "err", err)
		ib.reply(ev.Chat(), "⚠️ Refresh failed, the next scheduled scan will try again.", menuButtons)
		return
	}
	ib.reply(ev.Chat(), refreshResultMessage(fresh, ib.monitor.Status().TheatreCount), menuButtons)
}

func (ib *InteractiveBot) handlePause(_ context.Context, ev Event) {
	if !ib.appConfig.IsAdmin(ev.Chat()) {
		ib.logger.Warn("🚫 unauthorized pause", "chat_id", ev.Chat())
		ib.reply(ev.Chat(), deniedMessage("pause"), nil)
		return
	}
	if !ib.monitor.Pause() {
		ib.reply(ev.Chat(), fmt.Sprintf("ℹ️ Monitoring is %s.", ib.monitor.Phase()), menuButtons)
		return
	}
	ib.reply(ev.Chat(), "⏸️ Monitoring paused. Send /resume to continue.", [][]Button{{{Label: "▶️ Resume", Action: actionResume}}})
}

func (ib *InteractiveBot) handleResume(_ context.Context, ev Event) {
	if !ib.appConfig.IsAdmin(ev.Chat()) {
		ib.logger.Warn("🚫 unauthorized resume", "chat_id", ev.Chat())
		ib.reply(ev.Chat(), deniedMessage("resume"), nil)
		return
	}
	if !ib.monitor.Resume() {
		ib.reply(ev.Chat(), fmt.Sprintf("ℹ️ Monitoring is %s.", ib.monitor.Phase()), menuButtons)
		return
	}
	ib.reply(ev.Chat(), "▶️ Monitoring resumed.", menuButtons)
}
