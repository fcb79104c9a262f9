// Package model содержит доменные сущности сервиса бронирования.
package model

import "time"

// Role определяет роль пользователя в системе.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleOwner    Role = "owner"
)

// User представляет зарегистрированного пользователя: клиента или владельца заведения.
type User struct {
	ID           int64
	Login        string
	PasswordHash []byte
	Role         Role
	CreatedAt    time.Time
}

// Provider описывает заведение, принимающее бронирования.
// Slots — полный каталог меток слотов, которые заведение выставляет на бронь.
type Provider struct {
	ID      int64
	Name    string
	Address string
	Open    bool
	Slots   []string
}

// HasSlot сообщает, входит ли метка слота в каталог заведения.
func (p *Provider) HasSlot(label string) bool {
	for _, s := range p.Slots {
		if s == label {
			return true
		}
	}
	return false
}

// ServiceItem описывает услугу из каталога заведения.
// Цена хранится в минорных единицах валюты.
type ServiceItem struct {
	ID          string
	ProviderID  int64
	Name        string
	Price       int64
	DurationMin int
}

// BookingStatus описывает состояние бронирования.
type BookingStatus string

const (
	BookingStatusDraft           BookingStatus = "DRAFT"
	BookingStatusAwaitingPayment BookingStatus = "AWAITING_PAYMENT"
	BookingStatusConfirmed       BookingStatus = "CONFIRMED"
	BookingStatusCompleted       BookingStatus = "COMPLETED"
	BookingStatusCancelled       BookingStatus = "CANCELLED"
)

// Terminal сообщает, является ли состояние конечным.
func (s BookingStatus) Terminal() bool {
	return s == BookingStatusCompleted || s == BookingStatusCancelled
}

// Booking описывает бронирование слота с набором услуг.
// После подтверждения меняется только поле Status.
// Инвариант: Subtotal равен сумме цен услуг, PlatformFee + ProviderEarnings == Subtotal.
type Booking struct {
	ID               string
	ProviderID       int64
	Items            []ServiceItem
	Slot             string
	Subtotal         int64
	PlatformFee      int64
	ProviderEarnings int64
	Status           BookingStatus
	EntryID          string
	CreatedAt        time.Time
}

// TxDirection описывает направление движения средств.
type TxDirection string

const (
	TxCredit TxDirection = "credit"
	TxDebit  TxDirection = "debit"
)

// TxStatus описывает статус записи журнала транзакций.
type TxStatus string

const (
	TxStatusPending   TxStatus = "pending"
	TxStatusAvailable TxStatus = "available"
	TxStatusCompleted TxStatus = "completed"
)

// TransactionEntry — запись журнала транзакций заведения.
// Журнал append-only: сумма, направление и заведение после записи не меняются,
// статус переходит только вперёд.
type TransactionEntry struct {
	ID          string
	ProviderID  int64
	Direction   TxDirection
	Amount      int64
	Status      TxStatus
	Description string
	CreatedAt   time.Time
}

// Wallet содержит балансы заведения в минорных единицах валюты.
type Wallet struct {
	Pending   int64 `json:"pending"`
	Available int64 `json:"available"`
}
