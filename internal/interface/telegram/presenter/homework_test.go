package presenter

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/application/query"
	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/domain/homework"
	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/domain/shared"
	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/infrastructure/external/diary"
)

// 2025-12-15 is a Monday, 2025-12-16 a Tuesday.
var (
	monday  = homework.MustParseDate("2025-12-15")
	tuesday = homework.MustParseDate("2025-12-16")
)

func singleDayDigest(records ...homework.Record) *query.HomeworkDigest {
	return &query.HomeworkDigest{
		Period:  homework.SingleDay(monday),
		IsRange: false,
		Records: records,
	}
}

func TestFormatDigest_SingleDay(t *testing.T) {
	p := NewHomeworkPresenter()

	view := p.FormatDigest(singleDayDigest(homework.Record{
		Subject: "Алгебра",
		Date:    monday,
		Text:    "Номера 120-125",
		IsDone:  true,
	}))

	want := "📚 <b>ДЗ на 15.12.2025 (пн):</b>\n\n" +
		"✅ <b>Алгебра</b>\n" +
		"   Номера 120-125"
	assert.Equal(t, want, view.Text)
	assert.Equal(t, "HTML", view.ParseMode)

	// Результат несёт главное меню.
	require.NotNil(t, view.Keyboard)
	assert.Len(t, view.Keyboard.Rows, 3)
}

func TestFormatDigest_RangeGroupsByDay(t *testing.T) {
	p := NewHomeworkPresenter()

	first := homework.Record{Subject: "Физика", Date: monday, Text: "§12"}
	second := homework.Record{Subject: "Химия", Date: tuesday, Text: "Конспект", IsDone: true}

	digest := &query.HomeworkDigest{
		Period:  homework.Period{From: monday, To: tuesday},
		IsRange: true,
		Records: []homework.Record{first, second},
		Days: []query.DigestDay{
			{Date: monday, Records: []homework.Record{first}},
			{Date: tuesday, Records: []homework.Record{second}},
		},
	}

	want := "📚 <b>Домашние задания:</b>\n\n" +
		"━━━ <b>15.12.2025 (пн)</b> ━━━\n" +
		"📖 <b>Физика</b>\n" +
		"   §12\n\n" +
		"━━━ <b>16.12.2025 (вт)</b> ━━━\n" +
		"✅ <b>Химия</b>\n" +
		"   Конспект\n"
	assert.Equal(t, want, p.FormatDigest(digest).Text)
}

func TestFormatDigest_Empty(t *testing.T) {
	p := NewHomeworkPresenter()

	single := p.FormatDigest(&query.HomeworkDigest{
		Period:  homework.SingleDay(monday),
		IsRange: false,
	})
	assert.Equal(t, "📭 На 15.12.2025 ДЗ не найдено.", single.Text)

	ranged := p.FormatDigest(&query.HomeworkDigest{
		Period:  homework.Period{From: monday, To: tuesday},
		IsRange: true,
	})
	assert.Equal(t, "📭 На этот период ДЗ не найдено.", ranged.Text)
}

func TestFormatDigest_EscapesDiaryText(t *testing.T) {
	p := NewHomeworkPresenter()

	view := p.FormatDigest(singleDayDigest(homework.Record{
		Subject: "Информатика <и> ИКТ",
		Date:    monday,
		Text:    `Прочитать главу "Циклы & ветвления"`,
	}))

	assert.Contains(t, view.Text, "<b>Информатика &lt;и&gt; ИКТ</b>")
	assert.Contains(t, view.Text, "Прочитать главу &quot;Циклы &amp; ветвления&quot;")
	assert.NotContains(t, view.Text, "<и>")
}

func TestFormatDigest_TruncatesByRunes(t *testing.T) {
	p := NewHomeworkPresenter()

	// Кириллица: 805 рун занимают больше 805 байт, обрезка идёт по рунам.
	long := strings.Repeat("я", 805)
	view := p.FormatDigest(singleDayDigest(homework.Record{
		Subject: "Литература",
		Date:    monday,
		Text:    long,
	}))

	assert.Contains(t, view.Text, strings.Repeat("я", 800)+"...")
	assert.NotContains(t, view.Text, strings.Repeat("я", 801))
}

func TestFormatDigest_TruncatesBeforeEscaping(t *testing.T) {
	p := NewHomeworkPresenter()

	// Угловая скобка на границе обрезки должна уцелеть как полная сущность.
	text := strings.Repeat("x", 799) + "<" + strings.Repeat("y", 50)
	view := p.FormatDigest(singleDayDigest(homework.Record{
		Subject: "Геометрия",
		Date:    monday,
		Text:    text,
	}))

	assert.Contains(t, view.Text, "&lt;...")
}

func TestFormatDigest_CapsMaterials(t *testing.T) {
	p := NewHomeworkPresenter()

	materials := make([]homework.Material, 0, 7)
	for i := 0; i < 7; i++ {
		materials = append(materials, homework.Material{
			Title: "Лист",
			URL:   "https://school.test/files/doc",
		})
	}

	view := p.FormatDigest(singleDayDigest(homework.Record{
		Subject:   "Биология",
		Date:      monday,
		Text:      "Параграф 8",
		Materials: materials,
	}))

	assert.Contains(t, view.Text, "📎 <a href=\"https://school.test/files/doc\">Файл 1</a>")
	assert.Contains(t, view.Text, "Файл 5")
	assert.NotContains(t, view.Text, "Файл 6")
}

func TestFormatDigest_WithoutMaterials(t *testing.T) {
	p := NewHomeworkPresenter().WithoutMaterials()

	view := p.FormatDigest(singleDayDigest(homework.Record{
		Subject: "Биология",
		Date:    monday,
		Text:    "Параграф 8",
		Materials: []homework.Material{
			{Title: "Лист", URL: "https://school.test/files/doc"},
		},
	}))

	assert.Contains(t, view.Text, "Параграф 8")
	assert.NotContains(t, view.Text, "📎")
}

func TestFormatFetchError_KnownKinds(t *testing.T) {
	p := NewHomeworkPresenter()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "expired token",
			err:  shared.ErrDiaryCredentials,
			want: "❌ Токен авторизации истёк или неверен (401).\nОбнови AUTHEDU_BEARER в .env",
		},
		{
			name: "forbidden",
			err:  shared.ErrDiaryForbidden,
			want: "❌ Доступ запрещён (403). Проверь Profile-Id и STUDENT_ID.",
		},
		{
			name: "http error",
			err:  &diary.APIError{StatusCode: 500},
			want: "❌ Ошибка API: HTTP 500",
		},
		{
			name: "portal backoff",
			err:  &diary.APIError{StatusCode: 429},
			want: "⏳ Дневник просит подождать. Попробуй через минуту.",
		},
		{
			name: "unreachable",
			err:  shared.ErrDiaryUnreachable,
			want: "❌ Не удалось подключиться к API.\nПопробуй ещё раз через несколько минут.",
		},
		{
			name: "unknown",
			err:  errors.New("weird"),
			want: "❌ Не удалось получить домашние задания. Попробуй позже.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			view := p.FormatFetchError(tt.err)

			assert.Equal(t, tt.want, view.Text)
			// Ошибки уходят простым текстом, без HTML.
			assert.Empty(t, view.ParseMode)
			require.NotNil(t, view.Keyboard)
		})
	}
}

func TestFormatFetchError_SeesThroughWrapping(t *testing.T) {
	p := NewHomeworkPresenter()

	// Запрос оборачивает ошибку клиента, вид ошибки должен распознаваться.
	wrapped := shared.WrapError("diary", "Fetch", shared.ErrDiaryCredentials, "bearer rejected", nil)
	view := p.FormatFetchError(wrapped)

	assert.Contains(t, view.Text, "401")
}
