package ledger

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mmeshcher/slotbook-system/internal/idgen"
	"github.com/mmeshcher/slotbook-system/internal/model"
)

// ErrInvalidAmount возвращается при попытке зачислить неположительную сумму.
var (
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrEntryNotFound возвращается, если запись журнала не найдена.
	ErrEntryNotFound = errors.New("ledger entry not found")
	// ErrNotPending возвращается, если запись уже переведена из статуса pending.
	ErrNotPending = errors.New("ledger entry is not pending")
	// ErrNoFunds возвращается при выводе средств с нулевым доступным балансом.
	ErrNoFunds = errors.New("no available balance")
)

// WalletLedger хранит балансы заведения и append-only журнал транзакций.
// Инвариант: pending == Σ pending-кредитов, available == Σ available-кредитов
// минус Σ завершённых дебетов; оба баланса неотрицательны.
type WalletLedger struct {
	mu         sync.Mutex
	providerID int64
	newID      idgen.Source
	now        func() time.Time

	pending   int64
	available int64
	entries   []*model.TransactionEntry // в порядке вставки, порядок аудита
	byID      map[string]*model.TransactionEntry
}

// NewWalletLedger создаёт пустой кошелёк заведения.
func NewWalletLedger(providerID int64, newID idgen.Source, now func() time.Time) *WalletLedger {
	return &WalletLedger{
		providerID: providerID,
		newID:      newID,
		now:        now,
		byID:       make(map[string]*model.TransactionEntry),
	}
}

// CreditPending зачисляет заработок заведения в ожидающий баланс и
// добавляет кредитовую запись в журнал.
func (w *WalletLedger) CreditPending(amount int64, description string) (model.TransactionEntry, error) {
	if amount <= 0 {
		return model.TransactionEntry{}, fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	e := &model.TransactionEntry{
		ID:          w.newID(),
		ProviderID:  w.providerID,
		Direction:   model.TxCredit,
		Amount:      amount,
		Status:      model.TxStatusPending,
		Description: description,
		CreatedAt:   w.now(),
	}
	w.entries = append(w.entries, e)
	w.byID[e.ID] = e
	w.pending += amount

	return *e, nil
}

// ReleasePending переводит одну запись из pending в available и
// перемещает её сумму между балансами.
func (w *WalletLedger) ReleasePending(entryID string) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	e, ok := w.byID[entryID]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrEntryNotFound, entryID)
	}
	if e.Status != model.TxStatusPending {
		return 0, fmt.Errorf("%w: %s", ErrNotPending, entryID)
	}

	e.Status = model.TxStatusAvailable
	w.pending -= e.Amount
	w.available += e.Amount

	return e.Amount, nil
}

// ReleaseAllPending переводит все ожидающие записи в available одним
// атомарным шагом и возвращает сумму и идентификаторы переведённых записей.
// Запись, добавленная конкурентным CreditPending после начала операции,
// в этот проход не попадает.
func (w *WalletLedger) ReleaseAllPending() (int64, []string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var total int64
	var ids []string
	for _, e := range w.entries {
		if e.Status != model.TxStatusPending {
			continue
		}
		e.Status = model.TxStatusAvailable
		total += e.Amount
		ids = append(ids, e.ID)
	}
	w.pending -= total
	w.available += total

	return total, ids
}

// Withdraw выводит весь доступный баланс одной дебетовой записью и
// обнуляет available. Частичный вывод не поддерживается.
func (w *WalletLedger) Withdraw(description string) (model.TransactionEntry, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.available <= 0 {
		return model.TransactionEntry{}, ErrNoFunds
	}

	e := &model.TransactionEntry{
		ID:          w.newID(),
		ProviderID:  w.providerID,
		Direction:   model.TxDebit,
		Amount:      w.available,
		Status:      model.TxStatusCompleted,
		Description: description,
		CreatedAt:   w.now(),
	}
	w.entries = append(w.entries, e)
	w.byID[e.ID] = e
	w.available = 0

	return *e, nil
}

// Snapshot возвращает согласованную копию балансов и журнала в порядке вставки.
func (w *WalletLedger) Snapshot() (model.Wallet, []model.TransactionEntry) {
	w.mu.Lock()
	defer w.mu.Unlock()

	entries := make([]model.TransactionEntry, 0, len(w.entries))
	for _, e := range w.entries {
		entries = append(entries, *e)
	}

	return model.Wallet{Pending: w.pending, Available: w.available}, entries
}

// Replay восстанавливает состояние кошелька из сохранённого журнала.
// Записи применяются в порядке следования; журнал, приводящий к
// отрицательному балансу, считается повреждённым.
func (w *WalletLedger) Replay(entries []model.TransactionEntry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for i := range entries {
		e := entries[i]

		switch {
		case e.Direction == model.TxCredit && e.Status == model.TxStatusPending:
			w.pending += e.Amount
		case e.Direction == model.TxCredit && e.Status == model.TxStatusAvailable:
			w.available += e.Amount
		case e.Direction == model.TxDebit && e.Status == model.TxStatusCompleted:
			w.available -= e.Amount
		default:
			return fmt.Errorf("replay entry %s: unexpected %s/%s", e.ID, e.Direction, e.Status)
		}

		if w.available < 0 || w.pending < 0 {
			return fmt.Errorf("replay entry %s: negative balance", e.ID)
		}

		stored := e
		w.entries = append(w.entries, &stored)
		w.byID[stored.ID] = &stored
	}

	return nil
}
