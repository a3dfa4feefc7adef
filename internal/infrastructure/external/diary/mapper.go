package diary

import (
	"encoding/json"
	"log/slog"

	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/domain/homework"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAPPER - API items to domain record transformations
// ══════════════════════════════════════════════════════════════════════════════

// defaultMaterialTitle labels attachments that arrive without a title.
const defaultMaterialTitle = "Файл"

// Mapper transforms diary API items into domain homework records.
// This is the Anti-Corruption Layer: the API has no published contract,
// so every field is treated as optional and individually malformed items
// are dropped instead of failing the whole response.
type Mapper struct {
	logger *slog.Logger
}

// NewMapper creates a new Mapper instance.
func NewMapper(logger *slog.Logger) *Mapper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mapper{logger: logger}
}

// RecordsFromItems converts raw schedule items into domain records,
// sorted by date and subject. Items without assignment text, with an
// unparseable date, or that are not JSON objects are skipped.
func (m *Mapper) RecordsFromItems(items []json.RawMessage) []homework.Record {
	records := make([]homework.Record, 0, len(items))

	for _, raw := range items {
		record, ok := m.recordFromItem(raw)
		if !ok {
			continue
		}
		records = append(records, record)
	}

	homework.SortRecords(records)
	return records
}

// recordFromItem maps a single raw item. The bool result reports whether
// the item produced a usable record.
func (m *Mapper) recordFromItem(raw json.RawMessage) (homework.Record, bool) {
	var item HomeworkItemDTO
	if err := json.Unmarshal(raw, &item); err != nil {
		m.logger.Warn("skipping malformed homework item", "error", err)
		return homework.Record{}, false
	}

	// Current API versions put the text in "homework", older ones in
	// "description". An entry with neither is a lesson without homework.
	text := item.Homework
	if text == "" {
		text = item.Description
	}

	date, err := homework.ParseDate(item.Date)
	if err != nil {
		m.logger.Warn("skipping homework item with bad date",
			"date", item.Date,
			"subject", item.SubjectName)
		return homework.Record{}, false
	}

	record, err := homework.NewRecord(item.SubjectName, date, text, item.IsDone, m.materialsFromDTOs(item.Materials))
	if err != nil {
		// Lessons without assignment text are normal, drop quietly.
		return homework.Record{}, false
	}

	return record, true
}

// materialsFromDTOs flattens material groups into domain materials.
// Each group contributes at most one link: the first URL that is not empty.
// Groups without any usable URL are dropped.
func (m *Mapper) materialsFromDTOs(dtos []MaterialDTO) []homework.Material {
	if len(dtos) == 0 {
		return nil
	}

	materials := make([]homework.Material, 0, len(dtos))
	for _, dto := range dtos {
		title := dto.Title
		if title == "" {
			title = defaultMaterialTitle
		}

		for _, u := range dto.URLs {
			if u.URL != "" {
				materials = append(materials, homework.Material{
					Title: title,
					URL:   u.URL,
				})
				break
			}
		}
	}

	if len(materials) == 0 {
		return nil
	}
	return materials
}
