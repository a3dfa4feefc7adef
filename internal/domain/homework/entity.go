// Package homework содержит доменную модель домашних заданий из электронного
// дневника. Это ядро бизнес-логики - здесь нет внешних зависимостей.
package homework

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// DefaultSubject подставляется, когда дневник не вернул название предмета.
const DefaultSubject = "Без предмета"

// DateLayout - канонический формат даты дневника (ISO 8601, только дата).
const DateLayout = "2006-01-02"

// Date представляет календарную дату задания без времени и часового пояса.
// Хранится покомпонентно, поэтому значения сравнимы и пригодны как ключ map.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// ParseDate разбирает строку формата YYYY-MM-DD в Date.
// Принимает только строгий ISO-формат: "2025-9-01" и "01.09.2025" отклоняются.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// MustParseDate - версия ParseDate для тестов и констант, паникует при ошибке.
func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// DateOf извлекает календарную дату из time.Time (в его часовом поясе).
func DateOf(t time.Time) Date {
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

// IsZero возвращает true для нулевой (незаполненной) даты.
func (d Date) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

// IsValid проверяет, что дата существует в календаре.
func (d Date) IsValid() bool {
	if d.IsZero() {
		return false
	}
	t := d.Time(time.UTC)
	return DateOf(t) == d
}

// Time возвращает полночь этой даты в указанном часовом поясе.
func (d Date) Time(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// AddDays возвращает дату, сдвинутую на n дней (n может быть отрицательным).
func (d Date) AddDays(n int) Date {
	return DateOf(d.Time(time.UTC).AddDate(0, 0, n))
}

// Before сообщает, что d раньше other.
func (d Date) Before(other Date) bool {
	if d.Year != other.Year {
		return d.Year < other.Year
	}
	if d.Month != other.Month {
		return d.Month < other.Month
	}
	return d.Day < other.Day
}

// After сообщает, что d позже other.
func (d Date) After(other Date) bool {
	return other.Before(d)
}

// Weekday возвращает день недели этой даты.
func (d Date) Weekday() time.Weekday {
	return d.Time(time.UTC).Weekday()
}

// String возвращает дату в каноническом формате YYYY-MM-DD.
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// FormatRussian возвращает дату в привычном формате ДД.ММ.ГГГГ.
func (d Date) FormatRussian() string {
	return fmt.Sprintf("%02d.%02d.%04d", d.Day, int(d.Month), d.Year)
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrEmptyText - задание без текста (такие записи дневника отбрасываются).
	ErrEmptyText = errors.New("homework text is empty")

	// ErrInvalidDate - дата не существует в календаре или не заполнена.
	ErrInvalidDate = errors.New("invalid homework date")

	// ErrInvalidPeriod - начало периода позже конца.
	ErrInvalidPeriod = errors.New("invalid period: from is after to")
)

// ══════════════════════════════════════════════════════════════════════════════
// ENTITIES
// ══════════════════════════════════════════════════════════════════════════════

// Material - прикреплённый к заданию файл или ссылка.
type Material struct {
	// Title - название материала (например, "Рабочий лист").
	Title string

	// URL - прямая ссылка на файл.
	URL string
}

// Record - одно домашнее задание на конкретную дату.
// Record неизменяем после получения из дневника: бот только читает.
type Record struct {
	// Subject - название предмета ("Алгебра", "Физика"...).
	Subject string

	// Date - дата, на которую задано.
	Date Date

	// Text - текст задания, уже очищенный от краевых пробелов.
	Text string

	// IsDone - отметка выполнения из дневника.
	IsDone bool

	// Materials - прикреплённые файлы (может быть пустым).
	Materials []Material
}

// NewRecord создаёт запись, нормализуя предмет и текст.
// Возвращает ошибку, если после нормализации текст пуст или дата некорректна.
func NewRecord(subject string, date Date, text string, isDone bool, materials []Material) (Record, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Record{}, ErrEmptyText
	}
	if !date.IsValid() {
		return Record{}, fmt.Errorf("%w: %s", ErrInvalidDate, date)
	}

	subject = strings.TrimSpace(subject)
	if subject == "" {
		subject = DefaultSubject
	}

	return Record{
		Subject:   subject,
		Date:      date,
		Text:      text,
		IsDone:    isDone,
		Materials: materials,
	}, nil
}

// HasMaterials возвращает true, если к заданию прикреплены файлы.
func (r Record) HasMaterials() bool {
	return len(r.Materials) > 0
}

// ══════════════════════════════════════════════════════════════════════════════
// COLLECTION OPERATIONS
// Правила упорядочивания и группировки общие для всех потребителей:
// и Telegram-презентер, и CLI показывают задания в одном и том же порядке.
// ══════════════════════════════════════════════════════════════════════════════

// SortRecords упорядочивает задания по (дата, предмет) по возрастанию.
// Сортировка стабильна: задания одного предмета на один день сохраняют
// порядок, в котором их вернул дневник.
func SortRecords(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Date != records[j].Date {
			return records[i].Date.Before(records[j].Date)
		}
		return records[i].Subject < records[j].Subject
	})
}

// FilterByDate оставляет только задания на указанную дату.
// Исходный срез не модифицируется.
func FilterByDate(records []Record, date Date) []Record {
	filtered := make([]Record, 0, len(records))
	for _, r := range records {
		if r.Date == date {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

// GroupByDate раскладывает задания по датам.
// Порядок внутри каждой группы повторяет порядок входного среза.
func GroupByDate(records []Record) map[Date][]Record {
	groups := make(map[Date][]Record)
	for _, r := range records {
		groups[r.Date] = append(groups[r.Date], r)
	}
	return groups
}

// SortedDates возвращает ключи группировки по возрастанию.
func SortedDates(groups map[Date][]Record) []Date {
	dates := make([]Date, 0, len(groups))
	for d := range groups {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool {
		return dates[i].Before(dates[j])
	})
	return dates
}

// CountSubjects возвращает количество уникальных предметов среди заданий.
func CountSubjects(records []Record) int {
	subjects := make(map[string]struct{}, len(records))
	for _, r := range records {
		subjects[r.Subject] = struct{}{}
	}
	return len(subjects)
}
