package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"showtime-notifier/internal/bot"
	"showtime-notifier/internal/browser"
	"showtime-notifier/internal/config"
	"showtime-notifier/internal/logging"
	"showtime-notifier/internal/scanner"
)

func main() {
	appConfig, err := config.ParseConfiguration()
	if err != nil {
		log.Fatalf("Failed to parse configuration with error[%s]", err.Error())
	}

	logger, closer, err := logging.SetupLogger(appConfig.LogFile, appConfig.LogLevel)
	if err != nil {
		log.Fatalf("Failed to set up logging with error[%s]", err.Error())
	}
	slog.SetDefault(logger)

	err = run(appConfig, logger)
	_ = closer.Close()
	if err != nil {
		os.Exit(1)
	}
}

func run(appConfig *config.AppConfig, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("🚀 starting showtime monitor", "config", appConfig)

	api, err := bot.NewTelegramAPI(appConfig.TelegramBotToken, logger)
	if err != nil {
		logger.Error("failed to initialize telegram", "err", err)
		return err
	}
	dispatcher := bot.NewDispatcher(api, appConfig.Recipients, logger)

	openPage, stopBrowser := bot.BrowserOpener(browser.Options{
		Headless:       appConfig.Headless,
		ExecutablePath: appConfig.ChromiumPath,
	}, logger)
	defer func() {
		if err := stopBrowser(); err != nil {
			logger.Warn("stopping browser failed", "err", err)
		}
	}()

	monitor := bot.NewMonitor(appConfig, openPage, scanner.New(logger), dispatcher, logger)
	defer monitor.Close()

	interactiveBot := bot.NewInteractiveBot(api, appConfig, monitor, dispatcher, logger)
	go interactiveBot.Start(ctx)

	if err := monitor.Initialize(ctx); err != nil {
		return err
	}

	logger.Info("📱 interactive bot is ready", "recipients", len(appConfig.Recipients))
	if err := monitor.Run(ctx); err != nil {
		logger.Error("monitoring stopped", "err", err)
		return err
	}
	logger.Info("👋 shut down cleanly")
	return nil
}
