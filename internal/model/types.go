package model

import (
	"sort"
	"strings"
	"time"
)

// Theatre is a venue listed on the booking page together with the
// showtimes it was offering when it was observed.
type Theatre struct {
	Name      string
	Showtimes []string
}

var clockLayouts = []string{"3:04 PM", "03:04 PM", "3:04PM", "03:04PM", "15:04"}

// NormalizeShowtimes deduplicates labels by exact match and orders them.
// Labels are sorted by clock time when every one of them parses as a time
// of day, lexicographically otherwise.
func NormalizeShowtimes(labels []string) []string {
	seen := make(map[string]bool, len(labels))
	unique := make([]string, 0, len(labels))
	for _, label := range labels {
		if seen[label] {
			continue
		}
		seen[label] = true
		unique = append(unique, label)
	}

	minutes := make(map[string]int, len(unique))
	chronological := true
	for _, label := range unique {
		m, ok := clockMinutes(label)
		if !ok {
			chronological = false
			break
		}
		minutes[label] = m
	}

	sort.SliceStable(unique, func(i, j int) bool {
		if chronological && minutes[unique[i]] != minutes[unique[j]] {
			return minutes[unique[i]] < minutes[unique[j]]
		}
		return unique[i] < unique[j]
	})
	return unique
}

func clockMinutes(label string) (int, bool) {
	label = strings.ToUpper(strings.TrimSpace(label))
	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, label); err == nil {
			return t.Hour()*60 + t.Minute(), true
		}
	}
	return 0, false
}
