package bot

import (
	"fmt"
	"html"
	"strings"
	"time"
	"unicode/utf8"

	"showtime-notifier/internal/config"
	"showtime-notifier/internal/model"
)

const (
	listTheatreLimit  = 5
	listShowtimeLimit = 4

	// Telegram rejects texts over 4096 characters after entity parsing.
	// Counting raw HTML runes leaves room for emoji counted as two units.
	summaryPartLimit = 3500
)

func esc(s string) string {
	return html.EscapeString(s)
}

func bulletShowtimes(showtimes []string) string {
	lines := make([]string, 0, len(showtimes))
	for _, s := range showtimes {
		lines = append(lines, "• "+esc(s))
	}
	return strings.Join(lines, "\n")
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Format("02 Jan 15:04:05")
}

func startupMessage(cfg *config.AppConfig) string {
	return fmt.Sprintf(`✅ <b>Monitoring started!</b>

📽️ Movie: <b>%s</b>
📍 City: %s
📅 Date: %s
🔁 Checking every %s

I'll message you as soon as a new theatre opens bookings.`,
		esc(cfg.MovieName), esc(cfg.City), esc(cfg.FullDate), cfg.PollInterval)
}

func welcomeMessage(cfg *config.AppConfig) string {
	return fmt.Sprintf(`🎬 <b>Showtime Monitor</b>

📽️ Movie: %s
📍 City: %s
📅 Date: %s

Use the buttons below or /help to see what I can do.`,
		esc(cfg.MovieName), esc(cfg.City), esc(cfg.FullDate))
}

func helpMessage() string {
	return `ℹ️ <b>Help</b>

🔄 /refresh - Scan the booking page now
📊 /status - Bot status
🎭 /theatres - Theatres opened so far
⏸️ /pause - Pause monitoring (admins)
▶️ /resume - Resume monitoring (admins)`
}

func newTheatreMessage(cfg *config.AppConfig, theatre model.Theatre) string {
	return fmt.Sprintf(`🎉 <b>NEW THEATRE OPENED!</b>

🎭 <b>%s</b>
📽️ %s
📅 %s
📍 %s

🕐 Shows:
%s`,
		esc(theatre.Name), esc(cfg.MovieName), esc(cfg.FullDate), esc(cfg.City), bulletShowtimes(theatre.Showtimes))
}

func statusMessage(status Status, now time.Time) string {
	state := "🟢 Running"
	switch status.Phase {
	case PhasePaused:
		state = "⏸️ Paused"
	case PhaseInitializing:
		state = "🟡 Starting"
	case PhaseTerminated:
		state = "🔴 Stopped"
	}

	return fmt.Sprintf(`📊 <b>Bot Status</b>

%s
⏱ Uptime: %s
🔍 Checks: %d
🎭 Theatres: %d
🕒 Last scan: %s`,
		state, now.Sub(status.StartTime).Truncate(time.Second), status.CheckCount, status.TheatreCount, formatTime(status.LastScan))
}

func theatreListMessage(theatres []model.Theatre) string {
	if len(theatres) == 0 {
		return "⏳ No theatres opened yet"
	}

	var b strings.Builder
	b.WriteString("🎭 <b>Opened Theatres</b>\n\n")
	for i, theatre := range theatres {
		if i == listTheatreLimit {
			fmt.Fprintf(&b, "…and %d more", len(theatres)-listTheatreLimit)
			break
		}
		showtimes := theatre.Showtimes
		if len(showtimes) > listShowtimeLimit {
			showtimes = showtimes[:listShowtimeLimit]
		}
		fmt.Fprintf(&b, "🎬 %s\n⏰ %s\n\n", esc(theatre.Name), esc(strings.Join(showtimes, ", ")))
	}
	return strings.TrimRight(b.String(), "\n")
}

// summaryMessages renders the summary in parts that each fit in one
// Telegram message, breaking only between theatres. The counters close the
// last part.
func summaryMessages(cfg *config.AppConfig, theatres []model.Theatre, status Status) []string {
	var (
		parts []string
		b     strings.Builder
		size  int
	)
	write := func(s string) {
		b.WriteString(s)
		size += utf8.RuneCountInString(s)
	}
	flush := func() {
		parts = append(parts, strings.TrimRight(b.String(), "\n"))
		b.Reset()
		size = 0
	}

	write(fmt.Sprintf("📋 <b>Summary</b> for %s (%s, %s)\n\n", esc(cfg.MovieName), esc(cfg.City), esc(cfg.FullDate)))
	if len(theatres) == 0 {
		write("⏳ No theatres opened yet\n")
	}
	for _, theatre := range theatres {
		entry := fmt.Sprintf("🎬 <b>%s</b>\n⏰ %s\n\n", esc(theatre.Name), esc(strings.Join(theatre.Showtimes, ", ")))
		if size+utf8.RuneCountInString(entry) > summaryPartLimit {
			flush()
			write("📋 <b>Summary</b> (continued)\n\n")
		}
		write(entry)
	}

	footer := fmt.Sprintf("\n🔍 Checks: %d | 🎭 Theatres: %d", status.CheckCount, len(theatres))
	if size+utf8.RuneCountInString(footer) > summaryPartLimit {
		flush()
	}
	write(footer)
	parts = append(parts, strings.TrimLeft(b.String(), "\n"))
	return parts
}

func refreshResultMessage(fresh []model.Theatre, total int) string {
	if len(fresh) == 0 {
		return fmt.Sprintf("✅ Scan complete. No new theatres (%d known).", total)
	}
	names := make([]string, 0, len(fresh))
	for _, theatre := range fresh {
		names = append(names, esc(theatre.Name))
	}
	return fmt.Sprintf("🎉 Scan complete. %d new: %s", len(fresh), strings.Join(names, ", "))
}

func deniedMessage(action string) string {
	return fmt.Sprintf("🚫 You are not allowed to %s monitoring.", action)
}

func fatalMessage(reason string, err error) string {
	return fmt.Sprintf("❌ <b>Monitoring stopped</b>\n\n%s\n<code>%s</code>", esc(reason), esc(err.Error()))
}
