// Package scanner extracts theatres and showtimes from a rendered venue
// listing page using ordered fallback strategies.
package scanner

import (
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"

	"showtime-notifier/internal/model"
)

type Scanner struct {
	containers   []ContainerStrategy
	names        []NameStrategy
	showtimes    []ShowtimeStrategy
	placeholders map[string]bool
	logger       *slog.Logger
}

type Option func(*Scanner)

func WithContainerStrategies(strategies ...ContainerStrategy) Option {
	return func(s *Scanner) { s.containers = strategies }
}

func WithNameStrategies(strategies ...NameStrategy) Option {
	return func(s *Scanner) { s.names = strategies }
}

func WithShowtimeStrategies(strategies ...ShowtimeStrategy) Option {
	return func(s *Scanner) { s.showtimes = strategies }
}

// WithPlaceholders replaces the labels that never count as a showtime.
// Matching is case-insensitive on the trimmed label.
func WithPlaceholders(labels ...string) Option {
	return func(s *Scanner) { s.placeholders = placeholderSet(labels) }
}

func New(logger *slog.Logger, opts ...Option) *Scanner {
	s := &Scanner{
		containers:   defaultContainerStrategies,
		names:        defaultNameStrategies,
		showtimes:    defaultShowtimeStrategies,
		placeholders: placeholderSet(defaultPlaceholders),
		logger:       logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan returns the theatres on the page that have at least one qualifying
// showtime, in page order. A page without venue containers yields an empty
// result; an error is returned only when the HTML cannot be parsed.
func (s *Scanner) Scan(html string) ([]model.Theatre, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}

	venues := s.findContainers(doc)
	if venues == nil {
		s.logger.Debug("no venue containers on page")
		return nil, nil
	}

	var theatres []model.Theatre
	index := make(map[string]int)
	venues.Each(func(i int, venue *goquery.Selection) {
		theatre, ok := s.extract(i, venue)
		if !ok {
			return
		}
		if at, seen := index[theatre.Name]; seen {
			merged := append(theatres[at].Showtimes, theatre.Showtimes...)
			theatres[at].Showtimes = model.NormalizeShowtimes(merged)
			return
		}
		index[theatre.Name] = len(theatres)
		theatres = append(theatres, theatre)
	})

	s.logger.Debug("page scanned", "containers", venues.Length(), "theatres", len(theatres))
	return theatres, nil
}

// QualifyingShowtimes drops empty labels, placeholders and labels without
// a digit, preserving the order of the rest.
func (s *Scanner) QualifyingShowtimes(raw []string) []string {
	var out []string
	for _, label := range raw {
		label = strings.TrimSpace(label)
		if label == "" || s.placeholders[strings.ToUpper(label)] || !hasDigit(label) {
			continue
		}
		out = append(out, label)
	}
	return out
}

func (s *Scanner) findContainers(doc *goquery.Document) *goquery.Selection {
	for _, strategy := range s.containers {
		if found := strategy(doc); found != nil && found.Length() > 0 {
			return found
		}
	}
	return nil
}

func (s *Scanner) extract(i int, venue *goquery.Selection) (theatre model.Theatre, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("venue extraction failed, skipping", "index", i, "panic", r)
			ok = false
		}
	}()

	name := s.name(venue)
	if name == "" {
		s.logger.Debug("venue without a name, skipping", "index", i)
		return model.Theatre{}, false
	}

	var showtimes []string
	for _, strategy := range s.showtimes {
		if showtimes = s.QualifyingShowtimes(strategy(venue)); len(showtimes) > 0 {
			break
		}
	}
	if len(showtimes) == 0 {
		return model.Theatre{}, false
	}

	return model.Theatre{Name: name, Showtimes: model.NormalizeShowtimes(showtimes)}, true
}

func (s *Scanner) name(venue *goquery.Selection) string {
	for _, strategy := range s.names {
		if name := strategy(venue); name != "" {
			return name
		}
	}
	return ""
}

func hasDigit(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

func placeholderSet(labels []string) map[string]bool {
	set := make(map[string]bool, len(labels))
	for _, label := range labels {
		set[strings.ToUpper(strings.TrimSpace(label))] = true
	}
	return set
}
