package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUserDate_Layouts(t *testing.T) {
	want := Date(2025, 12, 15)

	inputs := []string{
		"15.12.2025",
		"2025-12-15",
		"15/12/2025",
		"15-12-2025",
		"  15.12.2025  ",
	}
	for _, in := range inputs {
		got, ok := ParseUserDate(in)
		require.True(t, ok, in)
		assert.True(t, got.Equal(want), in)
	}
}

func TestParseUserDate_EmbeddedInText(t *testing.T) {
	got, ok := ParseUserDate("покажи дз на 15.12.2025 пожалуйста")
	require.True(t, ok)
	assert.True(t, got.Equal(Date(2025, 12, 15)))

	got, ok = ParseUserDate("дз 2025-01-09?")
	require.True(t, ok)
	assert.True(t, got.Equal(Date(2025, 1, 9)))
}

func TestParseUserDate_Rejects(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"привет",
		"15.12",      // no year
		"31.02.2025", // impossible date
		"2025-02-31", // impossible date
		"99.99.2025", // impossible date
		"15,12,2025", // unsupported separator
	}
	for _, in := range inputs {
		_, ok := ParseUserDate(in)
		assert.False(t, ok, in)
	}
}

func TestMoscowDayBoundaries(t *testing.T) {
	// 21:30 UTC is already the next day in Moscow (UTC+3).
	utc := time.Date(2025, 12, 1, 21, 30, 0, 0, time.UTC)
	msk := ToMoscow(utc)

	assert.Equal(t, 2, msk.Day())
	assert.Equal(t, "2025-12-02", FormatDateStr(utc))

	start := StartOfDay(utc)
	assert.Equal(t, "2025-12-02 00:00:00", start.Format(FormatDateTimeSeconds))

	end := EndOfDay(utc)
	assert.Equal(t, 23, end.Hour())
	assert.True(t, IsSameDay(start, end))
}

func TestFormatRussian(t *testing.T) {
	d := Date(2025, 9, 1)
	assert.Equal(t, "01.09.2025", FormatRussian(d))
	assert.Equal(t, "пн", WeekdayShortRu(d))
	assert.Equal(t, "Понедельник", WeekdayNameRu(d))
}
