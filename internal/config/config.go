package config

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultMovieName       = "Jana Nayagan"
	defaultCity            = "Chennai"
	defaultFullDate        = "09 January"
	defaultBaseURL         = "https://in.bookmyshow.com"
	defaultPollInterval    = 10 * time.Second
	defaultSummaryInterval = 1800 * time.Second
	defaultReloadInterval  = 300 * time.Second
)

type AppConfig struct {
	TelegramBotToken string
	// Recipients receive every broadcast, in configuration order.
	Recipients []int64
	Admins     map[int64]bool

	MovieName   string
	City        string
	FullDate    string
	MonitorDate string
	BaseURL     string
	// MovieURL is tried before the URLs derived from city and movie name.
	MovieURL string

	PollInterval    time.Duration
	SummaryInterval time.Duration
	ReloadInterval  time.Duration

	Headless     bool
	ChromiumPath string
	LogFile      string
	LogLevel     string
}

func (c *AppConfig) IsAdmin(chatID int64) bool {
	return c.Admins[chatID]
}

func parseChatIDs(raw string) ([]int64, error) {
	var ids []int64
	seen := make(map[int64]bool)
	for part := range strings.SplitSeq(raw, ",") {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		id, err := strconv.ParseInt(trimmed, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid chat id %q: %w", trimmed, err)
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids, nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envSeconds(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds <= 0 {
		return 0, fmt.Errorf("%s must be a positive number of seconds, got %q", key, raw)
	}
	return time.Duration(seconds) * time.Second, nil
}

func envBool(key string, fallback bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean, got %q", key, raw)
	}
	return v, nil
}

func loadEnvFile() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded, using process environment", "err", err)
		return
	}
	slog.Debug(".env file loaded")
}

// ParseConfiguration loads .env, reads the environment and applies the
// command-line flags on top.
func ParseConfiguration() (*AppConfig, error) {
	loadEnvFile()
	return parse(flag.CommandLine, os.Args[1:])
}

func parse(fs *flag.FlagSet, args []string) (*AppConfig, error) {
	cfg, err := fromEnv()
	if err != nil {
		return nil, err
	}

	fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "interval between page scans")
	fs.DurationVar(&cfg.SummaryInterval, "summary-interval", cfg.SummaryInterval, "interval between summary broadcasts")
	fs.DurationVar(&cfg.ReloadInterval, "reload-interval", cfg.ReloadInterval, "interval between page reloads")
	fs.BoolVar(&cfg.Headless, "headless", cfg.Headless, "run the browser without a window")
	fs.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "also write logs to this rotated file")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromEnv() (*AppConfig, error) {
	recipients, err := parseChatIDs(os.Getenv("TELEGRAM_CHAT_IDS"))
	if err != nil {
		return nil, fmt.Errorf("TELEGRAM_CHAT_IDS: %w", err)
	}
	adminIDs, err := parseChatIDs(os.Getenv("ADMIN_CHAT_IDS"))
	if err != nil {
		return nil, fmt.Errorf("ADMIN_CHAT_IDS: %w", err)
	}

	cfg := &AppConfig{
		TelegramBotToken: strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN")),
		Recipients:       recipients,
		Admins:           make(map[int64]bool),
		MovieName:        envOr("MOVIE_NAME", defaultMovieName),
		City:             envOr("CITY", defaultCity),
		FullDate:         envOr("FULL_DATE", defaultFullDate),
		MonitorDate:      envOr("MONITOR_DATE", ""),
		BaseURL:          strings.TrimRight(envOr("BOOKMYSHOW_BASE_URL", defaultBaseURL), "/"),
		MovieURL:         envOr("MOVIE_URL", ""),
		ChromiumPath:     envOr("CHROMIUM_PATH", ""),
		LogFile:          envOr("LOG_FILE", ""),
		LogLevel:         envOr("LOG_LEVEL", "info"),
	}

	if cfg.PollInterval, err = envSeconds("POLL_INTERVAL", defaultPollInterval); err != nil {
		return nil, err
	}
	if cfg.SummaryInterval, err = envSeconds("SUMMARY_INTERVAL", defaultSummaryInterval); err != nil {
		return nil, err
	}
	if cfg.ReloadInterval, err = envSeconds("RELOAD_INTERVAL", defaultReloadInterval); err != nil {
		return nil, err
	}
	if cfg.Headless, err = envBool("HEADLESS", true); err != nil {
		return nil, err
	}

	// Every recipient is an admin unless the list is narrowed explicitly.
	if len(adminIDs) == 0 {
		adminIDs = recipients
	}
	for _, id := range adminIDs {
		cfg.Admins[id] = true
	}
	return cfg, nil
}

func (c *AppConfig) validate() error {
	if c.TelegramBotToken == "" {
		return errors.New("TELEGRAM_BOT_TOKEN is empty. Please set it in your environment or .env file")
	}
	if len(c.Recipients) == 0 {
		return errors.New("TELEGRAM_CHAT_IDS is empty. Provide at least one chat id")
	}
	isRecipient := make(map[int64]bool, len(c.Recipients))
	for _, id := range c.Recipients {
		isRecipient[id] = true
	}
	for id := range c.Admins {
		if !isRecipient[id] {
			return fmt.Errorf("ADMIN_CHAT_IDS: %d is not listed in TELEGRAM_CHAT_IDS", id)
		}
	}
	if c.PollInterval <= 0 || c.SummaryInterval <= 0 || c.ReloadInterval <= 0 {
		return errors.New("poll, summary and reload intervals must be positive")
	}
	if strings.TrimSpace(c.MovieName) == "" || strings.TrimSpace(c.City) == "" {
		return errors.New("MOVIE_NAME and CITY must not be empty")
	}
	return nil
}

// LogValue keeps the bot token out of the logs.
func (c *AppConfig) LogValue() slog.Value {
	tokenHint := ""
	if len(c.TelegramBotToken) > 10 {
		tokenHint = c.TelegramBotToken[:5] + "..." + c.TelegramBotToken[len(c.TelegramBotToken)-5:]
	}
	return slog.GroupValue(
		slog.String("movie", c.MovieName),
		slog.String("city", c.City),
		slog.String("date", c.FullDate),
		slog.Int("recipients", len(c.Recipients)),
		slog.Int("admins", len(c.Admins)),
		slog.Duration("poll_interval", c.PollInterval),
		slog.Duration("summary_interval", c.SummaryInterval),
		slog.Duration("reload_interval", c.ReloadInterval),
		slog.String("token_hint", tokenHint),
	)
}
