// Package validation содержит функции валидации входных данных.
package validation

import (
	"fmt"
	"time"
)

const slotLabelLayout = "03:04 PM"

// IsValidSlotLabel проверяет, что метка слота записана в формате "10:00 AM".
func IsValidSlotLabel(label string) bool {
	_, err := time.Parse(slotLabelLayout, label)
	return err == nil
}

// SlotTimeOn возвращает момент времени, соответствующий метке слота в день day.
// Для SlotLedger метки остаются непрозрачными строками; разбор нужен только
// политике отмены, считающей отсечку до начала слота.
func SlotTimeOn(day time.Time, label string) (time.Time, error) {
	t, err := time.Parse(slotLabelLayout, label)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse slot label %q: %w", label, err)
	}

	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, day.Location()), nil
}
