package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"unicode"

	"showtime-notifier/internal/browser"
)

// ErrPageNotFound is returned when no candidate URL renders the movie page.
var ErrPageNotFound = errors.New("movie page not found")

// Page is a rendered browser tab.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error
	Content(ctx context.Context) (string, error)
	SelectDate(ctx context.Context, key, label string) error
	OpenBooking(ctx context.Context) error
	Close() error
}

// PageOpener creates a fresh browser session.
type PageOpener func(ctx context.Context) (Page, error)

// BrowserOpener returns a PageOpener backed by playwright. The driver is
// started on first use so a launch failure surfaces through Initialize. The
// returned stop func shuts the driver down.
func BrowserOpener(opts browser.Options, logger *slog.Logger) (PageOpener, func() error) {
	var (
		mu       sync.Mutex
		launcher *browser.Launcher
	)

	open := func(ctx context.Context) (Page, error) {
		mu.Lock()
		defer mu.Unlock()
		if launcher == nil {
			l, err := browser.NewLauncher(opts, logger)
			if err != nil {
				return nil, err
			}
			launcher = l
		}
		session, err := launcher.Open(ctx)
		if err != nil {
			return nil, err
		}
		return session, nil
	}

	stop := func() error {
		mu.Lock()
		defer mu.Unlock()
		if launcher == nil {
			return nil
		}
		err := launcher.Stop()
		launcher = nil
		return err
	}
	return open, stop
}

var errorPageMarkers = []string{"page not found", "404 error", "something went wrong"}

func slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// candidateURLs lists the movie page URLs to try, most likely first. An
// explicit URL always comes first.
func candidateURLs(explicit, baseURL, city, movie string) []string {
	var urls []string
	if explicit != "" {
		urls = append(urls, explicit)
	}
	citySlug, movieSlug := slug(city), slug(movie)
	return append(urls,
		fmt.Sprintf("%s/%s/movies/%s", baseURL, citySlug, movieSlug),
		fmt.Sprintf("%s/movies/%s/%s", baseURL, citySlug, movieSlug),
	)
}

// confirmMoviePage reports whether the rendered page is about movie.
func confirmMoviePage(html, movie string) bool {
	content := strings.ToLower(html)
	for _, marker := range errorPageMarkers {
		if strings.Contains(content, marker) {
			return false
		}
	}
	return strings.Contains(content, strings.ToLower(movie))
}

// locate navigates page through the candidate URLs and returns the first one
// that renders the movie. A lost session aborts the search.
func (m *Monitor) locate(ctx context.Context, page Page) (string, error) {
	for _, url := range candidateURLs(m.appConfig.MovieURL, m.appConfig.BaseURL, m.appConfig.City, m.appConfig.MovieName) {
		if err := page.Navigate(ctx, url); err != nil {
			if errors.Is(err, browser.ErrSessionLost) || ctx.Err() != nil {
				return "", err
			}
			m.logger.Warn("candidate page failed to load", "url", url, "err", err)
			continue
		}

		html, err := page.Content(ctx)
		if err != nil {
			if errors.Is(err, browser.ErrSessionLost) || ctx.Err() != nil {
				return "", err
			}
			m.logger.Warn("candidate page unreadable", "url", url, "err", err)
			continue
		}

		if confirmMoviePage(html, m.appConfig.MovieName) {
			m.logger.Info("🔍 movie page located", "url", url)
			return url, nil
		}
		m.logger.Debug("candidate page does not mention the movie", "url", url)
	}
	return "", ErrPageNotFound
}
