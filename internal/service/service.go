// Package service реализует бизнес-логику сервиса бронирования.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/mmeshcher/slotbook-system/internal/booking"
	"github.com/mmeshcher/slotbook-system/internal/ledger"
	"github.com/mmeshcher/slotbook-system/internal/model"
	"github.com/mmeshcher/slotbook-system/internal/payment"
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateUser(ctx context.Context, login string, passwordHash []byte, role model.Role) (int64, error)
	GetUserByLogin(ctx context.Context, login string) (*model.User, error)
	ProviderIDByOwner(ctx context.Context, ownerID int64) (int64, error)
	GetProvider(ctx context.Context, id int64) (*model.Provider, error)
	ListProviders(ctx context.Context) ([]model.Provider, error)
	SetProviderOpen(ctx context.Context, id int64, open bool) error
	GetServiceItems(ctx context.Context, providerID int64, ids []string) ([]model.ServiceItem, error)
	SaveBooking(ctx context.Context, b *model.Booking) error
	UpdateBookingStatus(ctx context.Context, id string, status model.BookingStatus) error
	ListBookings(ctx context.Context) ([]model.Booking, error)
	AppendTransaction(ctx context.Context, e *model.TransactionEntry) error
	UpdateTransactionStatus(ctx context.Context, entryID string, status model.TxStatus) error
	UpdateTransactionStatuses(ctx context.Context, entryIDs []string, status model.TxStatus) error
	ListTransactions(ctx context.Context) ([]model.TransactionEntry, error)
}

// ErrInvalidCredentials возвращается при неверном логине или пароле.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Quote содержит расчёт стоимости бронирования для вызывающей стороны.
type Quote struct {
	ProviderID       int64
	Items            []model.ServiceItem
	Slot             string
	Subtotal         int64
	PlatformFee      int64
	ProviderEarnings int64
}

// Availability описывает каталог слотов заведения и занятые из них.
type Availability struct {
	Slots  []string
	Booked []string
}

// Service — фасад ядра бронирования: композиция движка бронирований,
// агрегатов заведений и платёжного клиента за операциями API.
type Service struct {
	repo     Repository
	engine   *booking.Engine
	ledgers  *ledger.Registry
	payments *payment.Client
}

// NewService создаёт сервис с указанным хранилищем, движком бронирований
// и необязательным платёжным клиентом.
func NewService(repo Repository, engine *booking.Engine, ledgers *ledger.Registry, payments *payment.Client) *Service {
	return &Service{
		repo:     repo,
		engine:   engine,
		ledgers:  ledgers,
		payments: payments,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// Restore восстанавливает агрегаты в памяти из хранилища: журнал транзакций
// воспроизводит балансы кошельков, сохранённые бронирования повторно
// занимают свои слоты.
func (s *Service) Restore(ctx context.Context) error {
	entries, err := s.repo.ListTransactions(ctx)
	if err != nil {
		return fmt.Errorf("list transactions: %w", err)
	}

	byProvider := make(map[int64][]model.TransactionEntry)
	var order []int64
	for _, e := range entries {
		if _, ok := byProvider[e.ProviderID]; !ok {
			order = append(order, e.ProviderID)
		}
		byProvider[e.ProviderID] = append(byProvider[e.ProviderID], e)
	}
	for _, providerID := range order {
		if err := s.ledgers.Wallet(providerID).Replay(byProvider[providerID]); err != nil {
			return fmt.Errorf("replay wallet %d: %w", providerID, err)
		}
	}

	bookings, err := s.repo.ListBookings(ctx)
	if err != nil {
		return fmt.Errorf("list bookings: %w", err)
	}
	for _, b := range bookings {
		if err := s.engine.Restore(b); err != nil {
			return err
		}
	}

	return nil
}

// RegisterUser регистрирует нового пользователя с указанной ролью.
func (s *Service) RegisterUser(ctx context.Context, login, password string, role model.Role) (int64, error) {
	hashed := hashPassword(login, password)
	return s.repo.CreateUser(ctx, login, hashed, role)
}

// AuthenticateUser проверяет логин и пароль и возвращает пользователя.
func (s *Service) AuthenticateUser(ctx context.Context, login, password string) (*model.User, error) {
	u, err := s.repo.GetUserByLogin(ctx, login)
	if err != nil {
		return nil, err
	}

	hashed := hashPassword(login, password)
	if hex.EncodeToString(hashed) != hex.EncodeToString(u.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	return u, nil
}

func hashPassword(login, password string) []byte {
	sum := sha256.Sum256([]byte(login + ":" + password))
	return sum[:]
}

// ProviderForOwner возвращает заведение, закреплённое за владельцем.
// Связь владелец-заведение хранится явно и разрешается только здесь.
func (s *Service) ProviderForOwner(ctx context.Context, ownerID int64) (int64, error) {
	return s.repo.ProviderIDByOwner(ctx, ownerID)
}

// ListProviders возвращает все заведения каталога.
func (s *Service) ListProviders(ctx context.Context) ([]model.Provider, error) {
	return s.repo.ListProviders(ctx)
}

// GetAvailability возвращает каталог слотов заведения и текущие занятые слоты.
func (s *Service) GetAvailability(ctx context.Context, providerID int64) (*Availability, error) {
	p, err := s.repo.GetProvider(ctx, providerID)
	if err != nil {
		return nil, err
	}

	return &Availability{
		Slots:  p.Slots,
		Booked: s.ledgers.Slots(providerID).Booked(),
	}, nil
}

// SetProviderOpen переключает флаг открытости заведения.
func (s *Service) SetProviderOpen(ctx context.Context, providerID int64, open bool) error {
	return s.repo.SetProviderOpen(ctx, providerID, open)
}

func (s *Service) resolveSelection(ctx context.Context, providerID int64, itemIDs []string) (*model.Provider, []model.ServiceItem, error) {
	p, err := s.repo.GetProvider(ctx, providerID)
	if err != nil {
		return nil, nil, err
	}

	if len(itemIDs) == 0 {
		return nil, nil, booking.ErrEmptySelection
	}

	items, err := s.repo.GetServiceItems(ctx, providerID, itemIDs)
	if err != nil {
		return nil, nil, err
	}

	return p, items, nil
}

// QuoteBooking считает стоимость бронирования без побочных эффектов.
func (s *Service) QuoteBooking(ctx context.Context, providerID int64, itemIDs []string, slot string) (*Quote, error) {
	p, items, err := s.resolveSelection(ctx, providerID, itemIDs)
	if err != nil {
		return nil, err
	}

	q, err := s.engine.Quote(p, items, slot)
	if err != nil {
		return nil, err
	}

	return &Quote{
		ProviderID:       providerID,
		Items:            items,
		Slot:             slot,
		Subtotal:         q.Subtotal,
		PlatformFee:      q.PlatformFee,
		ProviderEarnings: q.ProviderEarnings,
	}, nil
}

// ConfirmBooking создаёт бронирование, захватывает оплату во внешней
// платёжной системе и подтверждает бронь: слот резервируется, заработок
// заведения зачисляется в ожидающий баланс. Проигрыш гонки за слот
// возвращается как ledger.ErrSlotConflict, вызывающая сторона выбирает
// другой слот.
func (s *Service) ConfirmBooking(ctx context.Context, providerID int64, itemIDs []string, slot string) (*model.Booking, error) {
	p, items, err := s.resolveSelection(ctx, providerID, itemIDs)
	if err != nil {
		return nil, err
	}

	draft, err := s.engine.CreateDraft(p, items, slot)
	if err != nil {
		return nil, err
	}

	if s.payments != nil {
		if err := s.payments.Capture(ctx, draft.ID, draft.Subtotal); err != nil {
			return nil, fmt.Errorf("capture payment: %w", err)
		}
	}

	confirmed, entry, err := s.engine.Confirm(draft.ID)
	if err != nil {
		return nil, err
	}

	if err := s.repo.SaveBooking(ctx, &confirmed); err != nil {
		return nil, fmt.Errorf("save booking: %w", err)
	}
	if entry != nil {
		if err := s.repo.AppendTransaction(ctx, entry); err != nil {
			return nil, fmt.Errorf("append transaction: %w", err)
		}
	}

	return &confirmed, nil
}

// GetBooking возвращает снимок бронирования.
func (s *Service) GetBooking(_ context.Context, bookingID string) (*model.Booking, error) {
	b, err := s.engine.Get(bookingID)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// CancelBooking отменяет бронирование и освобождает слот.
func (s *Service) CancelBooking(ctx context.Context, bookingID string) error {
	b, err := s.engine.Cancel(bookingID)
	if err != nil {
		return err
	}

	if err := s.repo.UpdateBookingStatus(ctx, b.ID, b.Status); err != nil {
		return fmt.Errorf("update booking status: %w", err)
	}

	return nil
}

// CompleteBooking завершает бронирование и переводит его зачисление
// в доступный баланс.
func (s *Service) CompleteBooking(ctx context.Context, bookingID string) error {
	b, err := s.engine.Complete(bookingID)
	if err != nil {
		return err
	}

	if err := s.repo.UpdateBookingStatus(ctx, b.ID, b.Status); err != nil {
		return fmt.Errorf("update booking status: %w", err)
	}
	if b.EntryID != "" {
		if err := s.repo.UpdateTransactionStatus(ctx, b.EntryID, model.TxStatusAvailable); err != nil {
			return fmt.Errorf("update transaction status: %w", err)
		}
	}

	return nil
}

// SweepPending переводит все ожидающие зачисления заведения в доступный
// баланс одним атомарным шагом и возвращает переведённую сумму.
func (s *Service) SweepPending(ctx context.Context, providerID int64) (int64, error) {
	total, ids := s.ledgers.Wallet(providerID).ReleaseAllPending()
	if len(ids) == 0 {
		return 0, nil
	}

	if err := s.repo.UpdateTransactionStatuses(ctx, ids, model.TxStatusAvailable); err != nil {
		return total, fmt.Errorf("update transaction statuses: %w", err)
	}

	return total, nil
}

// Withdraw выводит весь доступный баланс заведения и возвращает сумму вывода.
func (s *Service) Withdraw(ctx context.Context, providerID int64) (int64, error) {
	entry, err := s.ledgers.Wallet(providerID).Withdraw("Withdrawal to bank account")
	if err != nil {
		return 0, err
	}

	if err := s.repo.AppendTransaction(ctx, &entry); err != nil {
		return entry.Amount, fmt.Errorf("append transaction: %w", err)
	}

	return entry.Amount, nil
}

// GetWallet возвращает балансы заведения и журнал транзакций в порядке аудита.
func (s *Service) GetWallet(_ context.Context, providerID int64) (model.Wallet, []model.TransactionEntry, error) {
	wallet, entries := s.ledgers.Wallet(providerID).Snapshot()
	return wallet, entries, nil
}
