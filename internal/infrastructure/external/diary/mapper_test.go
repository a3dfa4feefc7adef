package diary

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/domain/homework"
)

func newTestMapper() *Mapper {
	return NewMapper(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func rawItems(items ...string) []json.RawMessage {
	raw := make([]json.RawMessage, len(items))
	for i, item := range items {
		raw[i] = json.RawMessage(item)
	}
	return raw
}

func TestMapper_SkipsNonObjectItems(t *testing.T) {
	mapper := newTestMapper()

	records := mapper.RecordsFromItems(rawItems(
		`"просто строка"`,
		`42`,
		`{"homework": "Упр. 1", "date": "2025-09-01", "subject_name": "Алгебра"}`,
	))

	require.Len(t, records, 1)
	assert.Equal(t, "Упр. 1", records[0].Text)
}

func TestMapper_TextFallbackToDescription(t *testing.T) {
	mapper := newTestMapper()

	records := mapper.RecordsFromItems(rawItems(
		`{"description": "Старый формат", "date": "2025-09-01", "subject_name": "История"}`,
	))

	require.Len(t, records, 1)
	assert.Equal(t, "Старый формат", records[0].Text)
}

func TestMapper_SkipsItemsWithoutText(t *testing.T) {
	mapper := newTestMapper()

	records := mapper.RecordsFromItems(rawItems(
		`{"date": "2025-09-01", "subject_name": "Музыка"}`,
		`{"homework": "", "description": "", "date": "2025-09-01", "subject_name": "ИЗО"}`,
		`{"homework": "   ", "date": "2025-09-01", "subject_name": "Труд"}`,
	))

	assert.Empty(t, records)
}

func TestMapper_SkipsItemsWithBadDate(t *testing.T) {
	mapper := newTestMapper()

	records := mapper.RecordsFromItems(rawItems(
		`{"homework": "Упр. 2", "date": "2025-13-45", "subject_name": "Алгебра"}`,
		`{"homework": "Упр. 3", "date": "01.09.2025", "subject_name": "Алгебра"}`,
		`{"homework": "Упр. 4", "subject_name": "Алгебра"}`,
		`{"homework": "Упр. 5", "date": "2025-09-05", "subject_name": "Алгебра"}`,
	))

	require.Len(t, records, 1)
	assert.Equal(t, "Упр. 5", records[0].Text)
}

func TestMapper_DefaultSubjectAndStatus(t *testing.T) {
	mapper := newTestMapper()

	records := mapper.RecordsFromItems(rawItems(
		`{"homework": "Задание без предмета", "date": "2025-09-01"}`,
	))

	require.Len(t, records, 1)
	assert.Equal(t, homework.DefaultSubject, records[0].Subject)
	assert.False(t, records[0].IsDone)
}

func TestMapper_TrimsText(t *testing.T) {
	mapper := newTestMapper()

	records := mapper.RecordsFromItems(rawItems(
		`{"homework": "  Упр. 7, стр. 44  ", "date": "2025-09-01", "subject_name": "Физика"}`,
	))

	require.Len(t, records, 1)
	assert.Equal(t, "Упр. 7, стр. 44", records[0].Text)
}

func TestMapper_Materials(t *testing.T) {
	mapper := newTestMapper()

	records := mapper.RecordsFromItems(rawItems(`{
		"homework": "Подготовить доклад",
		"date": "2025-09-01",
		"subject_name": "География",
		"materials": [
			{"title": "Карта", "urls": [{"url": ""}, {"url": "https://example.com/map.png"}]},
			{"urls": [{"url": "https://example.com/plan.docx"}]},
			{"title": "Без ссылок", "urls": [{"url": ""}]},
			{"title": "Пустая группа"}
		]
	}`))

	require.Len(t, records, 1)
	materials := records[0].Materials
	require.Len(t, materials, 2)

	// First non-empty URL of the group wins.
	assert.Equal(t, "Карта", materials[0].Title)
	assert.Equal(t, "https://example.com/map.png", materials[0].URL)

	// Missing title falls back to the default label.
	assert.Equal(t, defaultMaterialTitle, materials[1].Title)
	assert.Equal(t, "https://example.com/plan.docx", materials[1].URL)
}

func TestMapper_SortsByDateThenSubject(t *testing.T) {
	mapper := newTestMapper()

	records := mapper.RecordsFromItems(rawItems(
		`{"homework": "а", "date": "2025-09-02", "subject_name": "Химия"}`,
		`{"homework": "б", "date": "2025-09-01", "subject_name": "Физика"}`,
		`{"homework": "в", "date": "2025-09-01", "subject_name": "Алгебра"}`,
	))

	require.Len(t, records, 3)
	assert.Equal(t, "Алгебра", records[0].Subject)
	assert.Equal(t, "Физика", records[1].Subject)
	assert.Equal(t, "Химия", records[2].Subject)
}

func TestDecodeItems_InvalidJSON(t *testing.T) {
	_, _, err := decodeItems([]byte("<html>login page</html>"))
	require.Error(t, err)
}

func TestDecodeItems_PrefersPayloadOverOthers(t *testing.T) {
	body := `{
		"payload": [{"homework": "из payload", "date": "2025-09-01"}],
		"data": [{"homework": "из data", "date": "2025-09-01"}]
	}`

	items, recognized, err := decodeItems([]byte(body))
	require.NoError(t, err)
	assert.True(t, recognized)
	require.Len(t, items, 1)
	assert.Contains(t, string(items[0]), "из payload")
}
