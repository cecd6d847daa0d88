package scanner

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ContainerStrategy selects the venue containers on a page.
type ContainerStrategy func(doc *goquery.Document) *goquery.Selection

// NameStrategy reads a theatre display name from a venue container.
type NameStrategy func(venue *goquery.Selection) string

// ShowtimeStrategy collects raw showtime candidates from a venue container.
type ShowtimeStrategy func(venue *goquery.Selection) []string

// ContainersBySelector matches venue containers with a CSS selector.
func ContainersBySelector(selector string) ContainerStrategy {
	return func(doc *goquery.Document) *goquery.Selection {
		return doc.Find(selector)
	}
}

// NameByAttr reads the name from an attribute on the container itself.
func NameByAttr(attr string) NameStrategy {
	return func(venue *goquery.Selection) string {
		value, _ := venue.Attr(attr)
		return cleanText(value)
	}
}

// NameBySelector reads the text of the first descendant matching selector.
func NameBySelector(selector string) NameStrategy {
	return func(venue *goquery.Selection) string {
		return cleanText(venue.Find(selector).First().Text())
	}
}

// NameFirstTextLine uses the first non-empty text node of the container.
func NameFirstTextLine(venue *goquery.Selection) string {
	return cleanText(firstTextLine(venue))
}

// ShowtimesBySelector returns the text of every innermost descendant
// matching selector. A match that wraps other matches is a group, not a
// showtime.
func ShowtimesBySelector(selector string) ShowtimeStrategy {
	return func(venue *goquery.Selection) []string {
		var labels []string
		venue.Find(selector).Each(func(_ int, s *goquery.Selection) {
			if s.Find(selector).Length() > 0 {
				return
			}
			labels = append(labels, cleanText(s.Text()))
		})
		return labels
	}
}

// ShowtimesByAttr returns the value of attr on every descendant carrying it.
func ShowtimesByAttr(attr string) ShowtimeStrategy {
	return func(venue *goquery.Selection) []string {
		var labels []string
		venue.Find("[" + attr + "]").Each(func(_ int, s *goquery.Selection) {
			value, _ := s.Attr(attr)
			labels = append(labels, cleanText(value))
		})
		return labels
	}
}

// Ordered from the most specific markup to the most permissive.
var defaultContainerStrategies = []ContainerStrategy{
	ContainersBySelector("[data-venue-code]"),
	ContainersBySelector("li[class*='venue']"),
	ContainersBySelector("div[class*='venue-card'], div[class*='venueCard']"),
	ContainersBySelector("div[class*='cinema-card'], li[class*='cinema']"),
}

var defaultNameStrategies = []NameStrategy{
	NameByAttr("data-name"),
	NameByAttr("data-venue-name"),
	NameBySelector("[class*='venue-name'], [class*='venueName']"),
	NameBySelector("[class*='__name'], [class*='title']"),
	NameFirstTextLine,
}

var defaultShowtimeStrategies = []ShowtimeStrategy{
	ShowtimesByAttr("data-showtime"),
	ShowtimesBySelector("[class*='showtime'], [class*='showTime'], [class*='session']"),
	ShowtimesBySelector("a"),
	ShowtimesBySelector("button"),
}

var defaultPlaceholders = []string{
	"SOLD OUT",
	"FILLING FAST",
	"ALMOST FULL",
	"BOOK",
	"BOOK NOW",
	"BOOK TICKETS",
	"AVAILABLE",
}

func firstTextLine(s *goquery.Selection) string {
	var line string
	s.Contents().EachWithBreak(func(_ int, c *goquery.Selection) bool {
		switch goquery.NodeName(c) {
		case "#text":
			line = strings.TrimSpace(c.Text())
		case "script", "style", "#comment":
		default:
			line = firstTextLine(c)
		}
		return line == ""
	})
	return line
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
