// Package ledger содержит агрегаты заведения: реестр слотов и кошелёк.
// Каждый агрегат принадлежит ровно одному заведению и сериализует свои
// операции собственной блокировкой, поэтому операции над разными
// заведениями не конкурируют между собой.
package ledger

import (
	"errors"
	"sort"
	"sync"
)

// ErrSlotConflict возвращается при попытке занять уже занятый слот.
var ErrSlotConflict = errors.New("slot already booked")

// SlotLedger хранит занятые слоты одного заведения.
type SlotLedger struct {
	mu    sync.Mutex
	taken map[string]string // метка слота -> id бронирования
}

// NewSlotLedger создаёт пустой реестр слотов.
func NewSlotLedger() *SlotLedger {
	return &SlotLedger{taken: make(map[string]string)}
}

// IsFree сообщает, свободен ли слот.
func (l *SlotLedger) IsFree(label string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, ok := l.taken[label]
	return !ok
}

// Reserve атомарно занимает слот для бронирования. Проверка и запись
// выполняются под одной блокировкой: из двух конкурентных подтверждений
// одного слота выигрывает ровно одно, второе получает ErrSlotConflict.
func (l *SlotLedger) Reserve(label, bookingID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.taken[label]; ok {
		return ErrSlotConflict
	}
	l.taken[label] = bookingID

	return nil
}

// Release освобождает слот. Освобождение свободного слота — no-op,
// отмена бронирования идемпотентна.
func (l *SlotLedger) Release(label string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.taken, label)
}

// Booked возвращает отсортированный снимок занятых слотов.
func (l *SlotLedger) Booked() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	res := make([]string, 0, len(l.taken))
	for label := range l.taken {
		res = append(res, label)
	}
	sort.Strings(res)

	return res
}
