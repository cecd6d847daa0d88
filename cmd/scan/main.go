package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"showtime-notifier/internal/bot"
	"showtime-notifier/internal/browser"
	"showtime-notifier/internal/config"
	"showtime-notifier/internal/logging"
	"showtime-notifier/internal/scanner"
)

// Runs a single scan, prints the theatres found and sends them to every
// recipient as a summary.
func main() {
	appConfig, err := config.ParseConfiguration()
	if err != nil {
		log.Fatalf("Failed to parse configuration with error[%s]", err.Error())
	}

	logger, closer, err := logging.SetupLogger(appConfig.LogFile, appConfig.LogLevel)
	if err != nil {
		log.Fatalf("Failed to set up logging with error[%s]", err.Error())
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api, err := bot.NewTelegramAPI(appConfig.TelegramBotToken, logger)
	if err != nil {
		log.Fatalf("Failed to initialize telegram with error[%s]", err.Error())
	}
	dispatcher := bot.NewDispatcher(api, appConfig.Recipients, logger)

	openPage, stopBrowser := bot.BrowserOpener(browser.Options{
		Headless:       appConfig.Headless,
		ExecutablePath: appConfig.ChromiumPath,
	}, logger)
	defer stopBrowser()

	monitor := bot.NewMonitor(appConfig, openPage, scanner.New(logger), dispatcher, logger)
	defer monitor.Close()

	if err := monitor.Initialize(ctx); err != nil {
		logger.Error("initialization failed", "err", err)
		return
	}

	theatres, err := monitor.Scan(ctx)
	if err != nil {
		logger.Error("scan failed", "err", err)
		return
	}

	for _, theatre := range theatres {
		fmt.Printf("%s\t%v\n", theatre.Name, theatre.Showtimes)
	}
	delivered := monitor.BroadcastTheatres(theatres)
	logger.Info("✅ scan complete", "theatres", len(theatres), "delivered", delivered)
}
