// Package timeutil provides timezone utilities for Moscow time (UTC+3).
// The diary API operates on school-local calendar dates, so every "what is
// today" decision in the bot goes through this package instead of time.Now.
// Russia abolished seasonal clock changes in 2014, so the offset is constant.
// No external dependencies - uses only standard library.
package timeutil

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// MoscowTZ is the Moscow timezone (UTC+3, no DST).
var MoscowTZ = time.FixedZone("Europe/Moscow", 3*60*60)

// Now returns the current time in Moscow timezone.
func Now() time.Time {
	return time.Now().In(MoscowTZ)
}

// ToMoscow converts a time to Moscow timezone.
func ToMoscow(t time.Time) time.Time {
	return t.In(MoscowTZ)
}

// Date creates a time in Moscow timezone with the given date.
func Date(year, month, day int) time.Time {
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, MoscowTZ)
}

// StartOfDay returns the start of the day (00:00:00) in Moscow timezone.
func StartOfDay(t time.Time) time.Time {
	msk := ToMoscow(t)
	return time.Date(msk.Year(), msk.Month(), msk.Day(), 0, 0, 0, 0, MoscowTZ)
}

// EndOfDay returns the end of the day (23:59:59.999999999) in Moscow timezone.
func EndOfDay(t time.Time) time.Time {
	msk := ToMoscow(t)
	return time.Date(msk.Year(), msk.Month(), msk.Day(), 23, 59, 59, 999999999, MoscowTZ)
}

// Today returns the start of the current Moscow day.
func Today() time.Time {
	return StartOfDay(Now())
}

// Tomorrow returns the start of the next Moscow day.
func Tomorrow() time.Time {
	return Today().AddDate(0, 0, 1)
}

// IsToday checks if the given time is today in Moscow timezone.
func IsToday(t time.Time) bool {
	now := Now()
	msk := ToMoscow(t)
	return msk.Year() == now.Year() &&
		msk.Month() == now.Month() &&
		msk.Day() == now.Day()
}

// IsSameDay checks if two times are on the same day in Moscow timezone.
func IsSameDay(t1, t2 time.Time) bool {
	m1, m2 := ToMoscow(t1), ToMoscow(t2)
	return m1.Year() == m2.Year() && m1.YearDay() == m2.YearDay()
}

// Common date/time formats.
const (
	// FormatDate is the standard date format (YYYY-MM-DD) used by the diary API.
	FormatDate = "2006-01-02"
	// FormatTime is the standard time format (HH:MM).
	FormatTime = "15:04"
	// FormatDateTimeSeconds includes seconds.
	FormatDateTimeSeconds = "2006-01-02 15:04:05"
	// FormatRussianDate is the Russian date format (DD.MM.YYYY).
	FormatRussianDate = "02.01.2006"
	// FormatRussianDateTime is the Russian datetime format.
	FormatRussianDateTime = "02.01.2006 15:04"
)

// FormatMoscow formats a time in Moscow timezone with the given layout.
func FormatMoscow(t time.Time, layout string) string {
	return ToMoscow(t).Format(layout)
}

// FormatDateStr formats a time as a date string (YYYY-MM-DD) in Moscow timezone.
func FormatDateStr(t time.Time) string {
	return FormatMoscow(t, FormatDate)
}

// FormatRussian formats a time in Russian format (DD.MM.YYYY).
func FormatRussian(t time.Time) string {
	return FormatMoscow(t, FormatRussianDate)
}

// FormatRussianTime formats a time in Russian format with time (DD.MM.YYYY HH:MM).
func FormatRussianTime(t time.Time) string {
	return FormatMoscow(t, FormatRussianDateTime)
}

// ParseDateMoscow parses a date string (YYYY-MM-DD) as midnight Moscow time.
func ParseDateMoscow(value string) (time.Time, error) {
	return time.ParseInLocation(FormatDate, value, MoscowTZ)
}

// ══════════════════════════════════════════════════════════════════════════════
// USER DATE INPUT
// Users type dates in chat in whatever format they are used to. We accept the
// common Russian and ISO layouts, then fall back to scanning free text for
// something date-shaped ("дз на 15.12.2025 плз").
// ══════════════════════════════════════════════════════════════════════════════

// userDateLayouts are tried in order against the full trimmed input.
var userDateLayouts = []string{
	"02.01.2006",
	"2006-01-02",
	"02/01/2006",
	"02-01-2006",
}

var (
	dottedDatePattern = regexp.MustCompile(`(\d{1,2})\.(\d{1,2})\.(\d{4})`)
	isoDatePattern    = regexp.MustCompile(`(\d{4})-(\d{1,2})-(\d{1,2})`)
)

// ParseUserDate parses a human-entered date in any of the supported layouts
// (DD.MM.YYYY, YYYY-MM-DD, DD/MM/YYYY, DD-MM-YYYY). If the whole input is not
// a date, it scans the text for an embedded one. Returns midnight Moscow time
// and false when nothing date-like was found.
func ParseUserDate(text string) (time.Time, bool) {
	trimmed := trimSpace(text)
	if trimmed == "" {
		return time.Time{}, false
	}

	for _, layout := range userDateLayouts {
		if t, err := time.ParseInLocation(layout, trimmed, MoscowTZ); err == nil {
			return t, true
		}
	}

	if m := dottedDatePattern.FindStringSubmatch(trimmed); m != nil {
		if t, ok := dateFromParts(m[3], m[2], m[1]); ok {
			return t, true
		}
	}
	if m := isoDatePattern.FindStringSubmatch(trimmed); m != nil {
		if t, ok := dateFromParts(m[1], m[2], m[3]); ok {
			return t, true
		}
	}

	return time.Time{}, false
}

// dateFromParts builds a Moscow date from string components, rejecting
// impossible dates like 31.02.2025.
func dateFromParts(year, month, day string) (time.Time, bool) {
	y, err := strconv.Atoi(year)
	if err != nil {
		return time.Time{}, false
	}
	m, err := strconv.Atoi(month)
	if err != nil {
		return time.Time{}, false
	}
	d, err := strconv.Atoi(day)
	if err != nil {
		return time.Time{}, false
	}

	t := Date(y, m, d)
	if t.Year() != y || int(t.Month()) != m || t.Day() != d {
		return time.Time{}, false
	}
	return t, true
}

func trimSpace(s string) string {
	start, end := 0, len(s)
	for start < end && isSpace(s[start]) {
		start++
	}
	for end > start && isSpace(s[end-1]) {
		end--
	}
	return s[start:end]
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// ══════════════════════════════════════════════════════════════════════════════
// RUSSIAN NAMES
// ══════════════════════════════════════════════════════════════════════════════

// WeekdayShortRu returns the short Russian name for a weekday ("пн".."вс").
func WeekdayShortRu(t time.Time) string {
	switch ToMoscow(t).Weekday() {
	case time.Monday:
		return "пн"
	case time.Tuesday:
		return "вт"
	case time.Wednesday:
		return "ср"
	case time.Thursday:
		return "чт"
	case time.Friday:
		return "пт"
	case time.Saturday:
		return "сб"
	case time.Sunday:
		return "вс"
	default:
		return ""
	}
}

// WeekdayNameRu returns the full Russian name for a weekday.
func WeekdayNameRu(t time.Time) string {
	switch ToMoscow(t).Weekday() {
	case time.Monday:
		return "Понедельник"
	case time.Tuesday:
		return "Вторник"
	case time.Wednesday:
		return "Среда"
	case time.Thursday:
		return "Четверг"
	case time.Friday:
		return "Пятница"
	case time.Saturday:
		return "Суббота"
	case time.Sunday:
		return "Воскресенье"
	default:
		return ""
	}
}

// MonthNameRu returns the Russian name for a month.
func MonthNameRu(m time.Month) string {
	names := []string{
		"", "Январь", "Февраль", "Март", "Апрель", "Май", "Июнь",
		"Июль", "Август", "Сентябрь", "Октябрь", "Ноябрь", "Декабрь",
	}
	if int(m) >= 1 && int(m) <= 12 {
		return names[m]
	}
	return ""
}

// FormatRelative returns a human-readable relative time string in Russian.
// Used by the admin panel to show key ages.
func FormatRelative(t time.Time) string {
	now := Now()
	msk := ToMoscow(t)
	d := now.Sub(msk)

	if d < 0 {
		return "только что"
	}

	switch {
	case d < time.Minute:
		return "только что"
	case d < time.Hour:
		return fmt.Sprintf("%d мин назад", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%d ч назад", int(d.Hours()))
	case d < 7*24*time.Hour:
		days := int(d.Hours() / 24)
		if days == 1 {
			return "вчера"
		}
		return fmt.Sprintf("%d дн назад", days)
	default:
		return FormatRussian(msk)
	}
}
