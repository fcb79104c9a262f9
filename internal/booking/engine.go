// Package booking реализует машину состояний жизненного цикла бронирования:
// Draft -> AwaitingPayment -> Confirmed -> {Completed, Cancelled}.
package booking

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mmeshcher/slotbook-system/internal/fee"
	"github.com/mmeshcher/slotbook-system/internal/idgen"
	"github.com/mmeshcher/slotbook-system/internal/ledger"
	"github.com/mmeshcher/slotbook-system/internal/model"
	"github.com/mmeshcher/slotbook-system/internal/validation"
)

// ErrProviderClosed возвращается при бронировании в закрытое заведение.
var (
	ErrProviderClosed = errors.New("provider is closed")
	// ErrEmptySelection возвращается при пустом наборе услуг или дубликатах в нём.
	ErrEmptySelection = errors.New("empty or duplicate service selection")
	// ErrInvalidSlot возвращается, если метка слота не входит в каталог заведения.
	ErrInvalidSlot = errors.New("slot is not in provider catalog")
	// ErrCancellationWindowClosed возвращается при отмене позже отсечки перед слотом.
	ErrCancellationWindowClosed = errors.New("cancellation window closed")
	// ErrAlreadyTerminal возвращается при переходе из конечного состояния.
	ErrAlreadyTerminal = errors.New("booking already in terminal state")
	// ErrNotConfirmed возвращается при завершении неподтверждённого бронирования.
	ErrNotConfirmed = errors.New("booking is not confirmed")
	// ErrNotFound возвращается, если бронирование не найдено.
	ErrNotFound = errors.New("booking not found")
)

// Quote содержит расчёт стоимости бронирования до его создания.
type Quote struct {
	Subtotal         int64
	PlatformFee      int64
	ProviderEarnings int64
}

type record struct {
	mu sync.Mutex
	b  *model.Booking
}

// Engine владеет бронированиями и продвигает их по состояниям.
// Переходы одного бронирования сериализуются его собственной блокировкой;
// блокировка движка покрывает только реестр бронирований.
type Engine struct {
	mu       sync.RWMutex
	bookings map[string]*record

	ledgers *ledger.Registry
	rate    float64
	cutoff  time.Duration
	newID   idgen.Source
	now     func() time.Time
}

// NewEngine создаёт движок бронирований с указанной ставкой комиссии и
// отсечкой отмены перед началом слота.
func NewEngine(ledgers *ledger.Registry, rate float64, cutoff time.Duration, newID idgen.Source, now func() time.Time) *Engine {
	return &Engine{
		bookings: make(map[string]*record),
		ledgers:  ledgers,
		rate:     rate,
		cutoff:   cutoff,
		newID:    newID,
		now:      now,
	}
}

func validateSelection(provider *model.Provider, items []model.ServiceItem, slot string) error {
	if !provider.Open {
		return ErrProviderClosed
	}
	if len(items) == 0 {
		return ErrEmptySelection
	}

	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		if _, ok := seen[it.ID]; ok {
			return fmt.Errorf("%w: duplicate service %s", ErrEmptySelection, it.ID)
		}
		seen[it.ID] = struct{}{}
	}

	if !provider.HasSlot(slot) {
		return fmt.Errorf("%w: %q", ErrInvalidSlot, slot)
	}

	return nil
}

// Quote проверяет выбор услуг и считает стоимость без создания бронирования.
func (e *Engine) Quote(provider *model.Provider, items []model.ServiceItem, slot string) (*Quote, error) {
	if err := validateSelection(provider, items, slot); err != nil {
		return nil, err
	}

	var subtotal int64
	for _, it := range items {
		subtotal += it.Price
	}

	platformFee, earnings, err := fee.Quote(subtotal, e.rate)
	if err != nil {
		return nil, err
	}

	return &Quote{
		Subtotal:         subtotal,
		PlatformFee:      platformFee,
		ProviderEarnings: earnings,
	}, nil
}

// CreateDraft создаёт черновик бронирования. Черновик не занимает слот
// и не попадает в кошелёк до подтверждения.
func (e *Engine) CreateDraft(provider *model.Provider, items []model.ServiceItem, slot string) (model.Booking, error) {
	q, err := e.Quote(provider, items, slot)
	if err != nil {
		return model.Booking{}, err
	}

	b := &model.Booking{
		ID:               e.newID(),
		ProviderID:       provider.ID,
		Items:            append([]model.ServiceItem(nil), items...),
		Slot:             slot,
		Subtotal:         q.Subtotal,
		PlatformFee:      q.PlatformFee,
		ProviderEarnings: q.ProviderEarnings,
		Status:           model.BookingStatusDraft,
		CreatedAt:        e.now(),
	}

	e.mu.Lock()
	e.bookings[b.ID] = &record{b: b}
	e.mu.Unlock()

	return *b, nil
}

func (e *Engine) record(bookingID string) (*record, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rec, ok := e.bookings[bookingID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, bookingID)
	}
	return rec, nil
}

// Confirm занимает слот и зачисляет заработок заведения в ожидающий баланс.
// Резервирование и зачисление — компенсирующая пара: если зачисление не
// удалось, слот освобождается и бронирование возвращается в Draft, частичное
// состояние снаружи не наблюдается. Проигрыш гонки за слот никогда не
// маскируется: вызывающая сторона получает ledger.ErrSlotConflict.
func (e *Engine) Confirm(bookingID string) (model.Booking, *model.TransactionEntry, error) {
	rec, err := e.record(bookingID)
	if err != nil {
		return model.Booking{}, nil, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	b := rec.b
	if b.Status.Terminal() || b.Status == model.BookingStatusConfirmed {
		return model.Booking{}, nil, fmt.Errorf("%w: %s", ErrAlreadyTerminal, b.ID)
	}

	b.Status = model.BookingStatusAwaitingPayment

	slots := e.ledgers.Slots(b.ProviderID)
	if err := slots.Reserve(b.Slot, b.ID); err != nil {
		b.Status = model.BookingStatusDraft
		return model.Booking{}, nil, err
	}

	var entry *model.TransactionEntry
	if b.ProviderEarnings > 0 {
		created, err := e.ledgers.Wallet(b.ProviderID).CreditPending(b.ProviderEarnings, creditDescription(b))
		if err != nil {
			slots.Release(b.Slot)
			b.Status = model.BookingStatusDraft
			return model.Booking{}, nil, fmt.Errorf("credit pending: %w", err)
		}
		entry = &created
		b.EntryID = created.ID
	}

	b.Status = model.BookingStatusConfirmed

	return *b, entry, nil
}

func creditDescription(b *model.Booking) string {
	names := make([]string, 0, len(b.Items))
	for _, it := range b.Items {
		names = append(names, it.Name)
	}
	return "Booking: " + strings.Join(names, ", ")
}

// Cancel отменяет подтверждённое бронирование строго раньше отсечки перед
// началом слота и освобождает слот для повторной брони. Ожидающее зачисление
// в кошельке не реверсируется.
func (e *Engine) Cancel(bookingID string) (model.Booking, error) {
	rec, err := e.record(bookingID)
	if err != nil {
		return model.Booking{}, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	b := rec.b
	if b.Status.Terminal() {
		return model.Booking{}, fmt.Errorf("%w: %s", ErrAlreadyTerminal, b.ID)
	}
	if b.Status != model.BookingStatusConfirmed {
		return model.Booking{}, fmt.Errorf("%w: %s", ErrCancellationWindowClosed, b.ID)
	}

	now := e.now()
	slotAt, err := validation.SlotTimeOn(now, b.Slot)
	if err != nil {
		// Метка вне известного формата не даёт вычислить отсечку — отказываем.
		return model.Booking{}, fmt.Errorf("%w: %s", ErrCancellationWindowClosed, b.ID)
	}
	if !now.Before(slotAt.Add(-e.cutoff)) {
		return model.Booking{}, fmt.Errorf("%w: %s", ErrCancellationWindowClosed, b.ID)
	}

	e.ledgers.Slots(b.ProviderID).Release(b.Slot)
	b.Status = model.BookingStatusCancelled

	return *b, nil
}

// Complete завершает подтверждённое бронирование и переводит его ожидающее
// зачисление в доступный баланс. Слот остаётся занятым: обслуженный слот не
// возвращается в продажу.
func (e *Engine) Complete(bookingID string) (model.Booking, error) {
	rec, err := e.record(bookingID)
	if err != nil {
		return model.Booking{}, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	b := rec.b
	if b.Status.Terminal() {
		return model.Booking{}, fmt.Errorf("%w: %s", ErrAlreadyTerminal, b.ID)
	}
	if b.Status != model.BookingStatusConfirmed {
		return model.Booking{}, fmt.Errorf("%w: %s", ErrNotConfirmed, b.ID)
	}

	if b.EntryID != "" {
		if _, err := e.ledgers.Wallet(b.ProviderID).ReleasePending(b.EntryID); err != nil {
			// Запись могла быть переведена ранее общим проходом расчёта.
			if !errors.Is(err, ledger.ErrNotPending) {
				return model.Booking{}, fmt.Errorf("release pending: %w", err)
			}
		}
	}

	b.Status = model.BookingStatusCompleted

	return *b, nil
}

// Get возвращает снимок бронирования.
func (e *Engine) Get(bookingID string) (model.Booking, error) {
	rec, err := e.record(bookingID)
	if err != nil {
		return model.Booking{}, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	return *rec.b, nil
}

// Restore регистрирует сохранённое бронирование при старте сервиса.
// Для бронирований, занимающих слот (Confirmed и Completed), слот
// резервируется повторно.
func (e *Engine) Restore(b model.Booking) error {
	stored := b

	e.mu.Lock()
	e.bookings[stored.ID] = &record{b: &stored}
	e.mu.Unlock()

	if stored.Status == model.BookingStatusConfirmed || stored.Status == model.BookingStatusCompleted {
		if err := e.ledgers.Slots(stored.ProviderID).Reserve(stored.Slot, stored.ID); err != nil {
			return fmt.Errorf("restore booking %s: %w", stored.ID, err)
		}
	}

	return nil
}
