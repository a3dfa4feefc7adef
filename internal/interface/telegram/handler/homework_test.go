package handler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/application/query"
	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/domain/homework"
	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/domain/shared"
	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/interface/telegram/middleware"
	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/interface/telegram/presenter"
	"github.com/dnevnik-hub/dnevnik-homework-bot/pkg/timeutil"
)

func newHomeworkFixture(fetcher *fakeFetcher) (*HomeworkHandler, *middleware.SessionStore) {
	sessions := middleware.NewSessionStore()
	getHomework := query.NewGetHomeworkHandler(fetcher, nil, timeutil.MoscowTZ, testLogger())
	h := NewHomeworkHandler(getHomework, sessions, presenter.NewHomeworkPresenter(), presenter.NewKeyboardBuilder())
	return h, sessions
}

func TestHandlePeriod_Today(t *testing.T) {
	fetcher := &fakeFetcher{}
	h, _ := newHomeworkFixture(fetcher)

	view := h.HandlePeriod(context.Background(), HomeworkRequest{TelegramID: invitedID}, query.PeriodToday)

	require.NotNil(t, view)
	assert.Equal(t, "HTML", view.ParseMode)
	require.NotNil(t, view.Keyboard)
	assert.Equal(t, "hw_today", view.Keyboard.Rows[0][0].CallbackData)

	period := fetcher.lastPeriod()
	assert.True(t, period.IsSingleDay())
}

func TestHandlePeriod_WeekSpansSevenDays(t *testing.T) {
	fetcher := &fakeFetcher{}
	h, _ := newHomeworkFixture(fetcher)

	h.HandlePeriod(context.Background(), HomeworkRequest{TelegramID: invitedID}, query.PeriodWeek)

	period := fetcher.lastPeriod()
	assert.False(t, period.IsSingleDay())
	assert.Equal(t, period.From.AddDays(7), period.To)
}

func TestHandlePeriod_FetchErrorBecomesPlainView(t *testing.T) {
	fetcher := &fakeFetcher{err: shared.ErrDiaryUnreachable}
	h, _ := newHomeworkFixture(fetcher)

	view := h.HandlePeriod(context.Background(), HomeworkRequest{TelegramID: invitedID}, query.PeriodToday)

	require.NotNil(t, view)
	assert.Contains(t, view.Text, "Не удалось подключиться к API")
	assert.Empty(t, view.ParseMode)
	require.NotNil(t, view.Keyboard)
}

func TestDatePrompt_ArmsDateState(t *testing.T) {
	h, sessions := newHomeworkFixture(&fakeFetcher{})

	view := h.DatePrompt(invitedID)

	assert.Contains(t, view.Text, "📅 <b>Введи дату</b>")
	assert.Contains(t, view.Text, "<code>25.12.2025</code>")
	require.NotNil(t, view.Keyboard)
	assert.Equal(t, "back_to_menu", view.Keyboard.Rows[0][0].CallbackData)
	assert.Equal(t, middleware.PendingDate, sessions.Pending(shared.TelegramID(invitedID)))
}

func TestHandleDateInput_FetchesRequestedDay(t *testing.T) {
	fetcher := &fakeFetcher{records: []homework.Record{
		mustRecord("Алгебра", "2025-12-25", "Номера 120-125", false),
	}}
	h, sessions := newHomeworkFixture(fetcher)
	sessions.Set(shared.TelegramID(invitedID), middleware.PendingDate)

	view := h.HandleDateInput(context.Background(), HomeworkRequest{TelegramID: invitedID}, "25.12.2025")

	require.NotNil(t, view)
	assert.Contains(t, view.Text, "ДЗ на 25.12.2025")
	assert.Contains(t, view.Text, "Алгебра")

	assert.Equal(t, homework.SingleDay(homework.MustParseDate("2025-12-25")), fetcher.lastPeriod())
	assert.Equal(t, middleware.PendingNone, sessions.Pending(shared.TelegramID(invitedID)))
}

func TestHandleDateInput_BadInputKeepsDialog(t *testing.T) {
	fetcher := &fakeFetcher{}
	h, sessions := newHomeworkFixture(fetcher)
	sessions.Set(shared.TelegramID(invitedID), middleware.PendingDate)

	view := h.HandleDateInput(context.Background(), HomeworkRequest{TelegramID: invitedID}, "тридцатое февраля")

	require.NotNil(t, view)
	assert.Contains(t, view.Text, "Не удалось распознать дату")
	assert.Equal(t, 0, fetcher.calls())
	assert.Equal(t, middleware.PendingDate, sessions.Pending(shared.TelegramID(invitedID)))
}

func TestHandleFreeText_DateInsideSentence(t *testing.T) {
	fetcher := &fakeFetcher{}
	h, _ := newHomeworkFixture(fetcher)

	view := h.HandleFreeText(context.Background(), HomeworkRequest{TelegramID: invitedID}, "дз на 15.12.2025 плз")

	require.NotNil(t, view)
	assert.Equal(t, homework.SingleDay(homework.MustParseDate("2025-12-15")), fetcher.lastPeriod())
}

func TestHandleFreeText_SilentOnNonDate(t *testing.T) {
	fetcher := &fakeFetcher{}
	h, _ := newHomeworkFixture(fetcher)

	view := h.HandleFreeText(context.Background(), HomeworkRequest{TelegramID: invitedID}, "привет, как дела?")

	assert.Nil(t, view)
	assert.Equal(t, 0, fetcher.calls())
}
