package bot

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Long polling holds requests for up to 60s, so the client timeout has to
// sit above that.
const telegramHTTPTimeout = 90 * time.Second

// TelegramAPI is the part of *tgbotapi.BotAPI the bot relies on.
type TelegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

func NewTelegramAPI(token string, logger *slog.Logger) (*tgbotapi.BotAPI, error) {
	if err := tgbotapi.SetLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug)); err != nil {
		logger.Warn("could not redirect telegram client logs", "err", err)
	}

	api, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, &http.Client{Timeout: telegramHTTPTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}
	api.Debug = false
	logger.Info("🤖 authorized on telegram", "account", api.Self.UserName)
	return api, nil
}

// Button is an inline action offered under a message.
type Button struct {
	Label  string
	Action string
}

const (
	actionStart    = "start"
	actionHelp     = "help"
	actionStatus   = "status"
	actionTheatres = "theatres"
	actionList     = "list"
	actionRefresh  = "refresh"
	actionStop     = "stop"
	actionPause    = "pause"
	actionResume   = "resume"
)

var menuButtons = [][]Button{
	{{Label: "🔄 Refresh", Action: actionRefresh}, {Label: "📊 Status", Action: actionStatus}},
	{{Label: "🎭 Theatres", Action: actionTheatres}, {Label: "ℹ️ Help", Action: actionHelp}},
}

func inlineKeyboard(rows [][]Button) *tgbotapi.InlineKeyboardMarkup {
	if len(rows) == 0 {
		return nil
	}
	keyboardRows := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Action))
		}
		keyboardRows = append(keyboardRows, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	keyboard := tgbotapi.NewInlineKeyboardMarkup(keyboardRows...)
	return &keyboard
}

// Dispatcher delivers HTML messages to a fixed recipient list.
type Dispatcher struct {
	api        TelegramAPI
	recipients []int64
	logger     *slog.Logger
}

func NewDispatcher(api TelegramAPI, recipients []int64, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		api:        api,
		recipients: append([]int64(nil), recipients...),
		logger:     logger,
	}
}

func (d *Dispatcher) SendTo(chatID int64, text string, rows [][]Button) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if keyboard := inlineKeyboard(rows); keyboard != nil {
		msg.ReplyMarkup = keyboard
	}

	if _, err := d.api.Send(msg); err != nil {
		return fmt.Errorf("send to chat %d: %w", chatID, err)
	}
	return nil
}

// Broadcast attempts one delivery per recipient and returns how many
// succeeded. Failed deliveries are logged and not retried.
func (d *Dispatcher) Broadcast(text string, rows [][]Button) int {
	delivered := 0
	for _, chatID := range d.recipients {
		if err := d.SendTo(chatID, text, rows); err != nil {
			d.logger.Warn("❌ delivery failed", "chat_id", chatID, "err", err)
			continue
		}
		delivered++
	}
	if delivered < len(d.recipients) {
		d.logger.Warn("broadcast partially delivered", "delivered", delivered, "recipients", len(d.recipients))
	} else {
		d.logger.Debug("broadcast delivered", "recipients", delivered)
	}
	return delivered
}
