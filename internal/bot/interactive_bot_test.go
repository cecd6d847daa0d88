package bot

import (
	"context"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runningHarness(t *testing.T, pages ...string) (*harness, *fakePage) {
	t.Helper()
	page := &fakePage{pages: append([]string{moviePage}, pages...)}
	h := newHarness(page)
	require.NoError(t, h.monitor.Initialize(context.Background()))
	return h, page
}

func TestPauseAuthorization(t *testing.T) {
	ctx := context.Background()
	h, page := runningHarness(t)

	h.bot.Dispatch(ctx, Command{Name: actionPause, ChatID: memberChat})
	assert.Equal(t, PhaseRunning, h.monitor.Phase())
	assert.Contains(t, h.api.lastTo(memberChat), "not allowed to pause")

	h.bot.Dispatch(ctx, Command{Name: actionPause, ChatID: adminChat})
	assert.Equal(t, PhasePaused, h.monitor.Phase())
	assert.Contains(t, h.api.lastTo(adminChat), "Monitoring paused")

	before := page.calls()
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	require.NoError(t, h.monitor.Run(runCtx))
	assert.Equal(t, before, page.calls(), "no scans while paused")

	h.bot.Dispatch(ctx, ButtonAction{ActionID: actionResume, ChatID: observerChat, CallbackID: "cb"})
	assert.Equal(t, PhasePaused, h.monitor.Phase())
	assert.Contains(t, h.api.lastTo(observerChat), "not allowed to resume")

	h.bot.Dispatch(ctx, Command{Name: actionResume, ChatID: adminChat})
	assert.Equal(t, PhaseRunning, h.monitor.Phase())
	assert.Contains(t, h.api.lastTo(adminChat), "Monitoring resumed")

	h.bot.Dispatch(ctx, Command{Name: actionResume, ChatID: adminChat})
	assert.Contains(t, h.api.lastTo(adminChat), "Monitoring is running")
}

func TestStopIsPause(t *testing.T) {
	h, _ := runningHarness(t)
	h.bot.Dispatch(context.Background(), Command{Name: actionStop, ChatID: adminChat})
	assert.Equal(t, PhasePaused, h.monitor.Phase())
}

func TestUnknownActionIgnored(t *testing.T) {
	h, _ := runningHarness(t)
	h.bot.Dispatch(context.Background(), Command{Name: "dance", ChatID: memberChat})
	assert.Empty(t, h.api.messages())
	assert.Equal(t, PhaseRunning, h.monitor.Phase())
}

func TestInformationalCommands(t *testing.T) {
	ctx := context.Background()
	h, _ := runningHarness(t, venuePage(map[string][]string{"Theatre A": {"7:00 PM", "10:30 AM"}}, "Theatre A"))

	h.bot.Dispatch(ctx, Command{Name: actionStart, ChatID: memberChat})
	assert.Contains(t, h.api.lastTo(memberChat), "Jana Nayagan")

	h.bot.Dispatch(ctx, Command{Name: actionHelp, ChatID: memberChat})
	assert.Contains(t, h.api.lastTo(memberChat), "/refresh")

	h.bot.Dispatch(ctx, Command{Name: actionTheatres, ChatID: memberChat})
	assert.Equal(t, "⏳ No theatres opened yet", h.api.lastTo(memberChat))

	_, err := h.monitor.ScanAndNotify(ctx)
	require.NoError(t, err)

	h.bot.Dispatch(ctx, Command{Name: actionList, ChatID: memberChat})
	reply := h.api.lastTo(memberChat)
	assert.Contains(t, reply, "Theatre A")
	assert.Contains(t, reply, "10:30 AM, 7:00 PM")

	h.clock.Advance(90 * time.Second)
	h.bot.Dispatch(ctx, Command{Name: actionStatus, ChatID: memberChat})
	status := h.api.lastTo(memberChat)
	assert.Contains(t, status, "Running")
	assert.Contains(t, status, "Checks: 1")
	assert.Contains(t, status, "Theatres: 1")
	assert.Contains(t, status, "Uptime: 1m30s")

	msgs := h.api.messages()
	require.NotEmpty(t, msgs)
	assert.NotNil(t, msgs[len(msgs)-1].Keyboard)
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()

	t.Run("scans and reports new theatres", func(t *testing.T) {
		h, _ := runningHarness(t, venuePage(map[string][]string{"Theatre A": {"10:00"}}, "Theatre A"))

		h.bot.Dispatch(ctx, ButtonAction{ActionID: actionRefresh, ChatID: memberChat})
		assert.Len(t, h.api.messagesContaining("Refreshing"), 1)
		assert.Len(t, h.api.messagesContaining("NEW THEATRE OPENED"), 3)
		assert.Contains(t, h.api.lastTo(memberChat), "1 new: Theatre A")
	})

	t.Run("is rate limited", func(t *testing.T) {
		h, page := runningHarness(t)

		h.bot.Dispatch(ctx, Command{Name: actionRefresh, ChatID: memberChat})
		assert.Contains(t, h.api.lastTo(memberChat), "No new theatres")
		calls := page.calls()

		h.bot.Dispatch(ctx, Command{Name: actionRefresh, ChatID: adminChat})
		assert.Contains(t, h.api.lastTo(adminChat), "Please wait")
		assert.Equal(t, calls, page.calls())
	})

	t.Run("rejected before the monitor starts", func(t *testing.T) {
		h := newHarness()
		h.bot.Dispatch(ctx, Command{Name: actionRefresh, ChatID: memberChat})
		assert.Contains(t, h.api.lastTo(memberChat), "Monitor is initializing")
	})

	t.Run("reports scan failures", func(t *testing.T) {
		h, page := runningHarness(t)
		page.setContentErr(assert.AnError)

		h.bot.Dispatch(ctx, Command{Name: actionRefresh, ChatID: memberChat})
		assert.Contains(t, h.api.lastTo(memberChat), "Refresh failed")
		assert.Equal(t, PhaseRunning, h.monitor.Phase())
	})
}

func TestEventFromUpdate(t *testing.T) {
	command := tgbotapi.Update{Message: &tgbotapi.Message{
		Text:     "/Status@showtime_bot",
		Chat:     &tgbotapi.Chat{ID: memberChat},
		From:     &tgbotapi.User{FirstName: "Asha", LastName: "R"},
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 20}},
	}}
	ev, ok := eventFromUpdate(command)
	require.True(t, ok)
	assert.Equal(t, Command{Name: actionStatus, ChatID: memberChat, User: "Asha R"}, ev)

	button := tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb-1",
		Data:    actionTheatres,
		From:    &tgbotapi.User{UserName: "asha"},
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: adminChat}},
	}}
	ev, ok = eventFromUpdate(button)
	require.True(t, ok)
	assert.Equal(t, ButtonAction{ActionID: actionTheatres, ChatID: adminChat, CallbackID: "cb-1", User: "asha"}, ev)

	_, ok = eventFromUpdate(tgbotapi.Update{Message: &tgbotapi.Message{Text: "hello", Chat: &tgbotapi.Chat{ID: memberChat}}})
	assert.False(t, ok)

	_, ok = eventFromUpdate(tgbotapi.Update{})
	assert.False(t, ok)
}

func TestHandleUpdateAnswersCallbacks(t *testing.T) {
	h, _ := runningHarness(t)

	h.bot.HandleUpdate(context.Background(), tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb-7",
		Data:    actionHelp,
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: memberChat}},
	}})

	assert.Equal(t, []string{"cb-7"}, h.api.callbacks)
	assert.Contains(t, h.api.lastTo(memberChat), "Help")
}

func TestStartStopsOnCancel(t *testing.T) {
	h, _ := runningHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.bot.Start(ctx)
		close(done)
	}()

	h.api.updates <- tgbotapi.Update{Message: &tgbotapi.Message{
		Text:     "/help",
		Chat:     &tgbotapi.Chat{ID: observerChat},
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 5}},
	}}
	assert.Eventually(t, func() bool {
		return h.api.lastTo(observerChat) != ""
	}, time.Second, time.Millisecond)

	cancel()
	<-done
	h.api.mu.Lock()
	defer h.api.mu.Unlock()
	assert.True(t, h.api.stopped)
}
