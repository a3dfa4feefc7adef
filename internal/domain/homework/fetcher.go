package homework

import (
	"context"
	"fmt"
)

// ══════════════════════════════════════════════════════════════════════════════
// PERIOD
// ══════════════════════════════════════════════════════════════════════════════

// Period - закрытый диапазон дат [From, To], за который запрашиваются задания.
type Period struct {
	From Date
	To   Date
}

// NewPeriod создаёт период с проверкой границ.
func NewPeriod(from, to Date) (Period, error) {
	if !from.IsValid() || !to.IsValid() {
		return Period{}, ErrInvalidDate
	}
	if from.After(to) {
		return Period{}, fmt.Errorf("%w: %s > %s", ErrInvalidPeriod, from, to)
	}
	return Period{From: from, To: to}, nil
}

// SingleDay возвращает период из одного дня.
func SingleDay(d Date) Period {
	return Period{From: d, To: d}
}

// IsSingleDay возвращает true, если период покрывает ровно один день.
func (p Period) IsSingleDay() bool {
	return p.From == p.To
}

// Days возвращает длину периода в днях (минимум 1).
func (p Period) Days() int {
	days := 1
	for d := p.From; d.Before(p.To); d = d.AddDays(1) {
		days++
	}
	return days
}

// Contains сообщает, попадает ли дата в период.
func (p Period) Contains(d Date) bool {
	return !d.Before(p.From) && !d.After(p.To)
}

// String возвращает период в виде "2025-12-01..2025-12-07".
func (p Period) String() string {
	return p.From.String() + ".." + p.To.String()
}

// ══════════════════════════════════════════════════════════════════════════════
// PORTS
// ══════════════════════════════════════════════════════════════════════════════

// Fetcher - порт к внешнему дневнику. Реализация живёт в инфраструктурном
// слое (infrastructure/external/diary) и сама отвечает за повторные попытки.
//
// Контракт: возвращаемые записи нормализованы (NewRecord) и отсортированы
// по (дата, предмет); записи без текста или с нечитаемой датой отброшены.
type Fetcher interface {
	// FetchHomework получает задания за период.
	FetchHomework(ctx context.Context, period Period) ([]Record, error)
}
