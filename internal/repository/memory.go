package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mmeshcher/slotbook-system/internal/model"
)

// MemoryRepository — хранилище в памяти. Используется в тестах и при запуске
// без DATABASE_URI; схема повторяет постоянное хранилище, журнал транзакций
// хранится в порядке вставки.
type MemoryRepository struct {
	mu sync.Mutex

	nextUserID int64
	users      map[string]*model.User

	providers     map[int64]*model.Provider
	ownerProvider map[int64]int64 // владелец -> заведение
	items         map[int64]map[string]model.ServiceItem

	bookingByID  map[string]*model.Booking
	bookingOrder []string

	transactions []*model.TransactionEntry
	txByID       map[string]*model.TransactionEntry
}

// NewMemoryRepository создаёт пустое хранилище в памяти.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:         make(map[string]*model.User),
		providers:     make(map[int64]*model.Provider),
		ownerProvider: make(map[int64]int64),
		items:         make(map[int64]map[string]model.ServiceItem),
		bookingByID:   make(map[string]*model.Booking),
		txByID:        make(map[string]*model.TransactionEntry),
	}
}

// demoSlotGrid — сетка слотов демонстрационного каталога.
var demoSlotGrid = []string{
	"10:00 AM", "10:30 AM", "11:00 AM", "11:30 AM",
	"12:00 PM", "01:00 PM", "01:30 PM", "02:00 PM",
	"02:30 PM", "03:00 PM", "04:00 PM", "04:30 PM",
}

// SeedDemoCatalog наполняет хранилище демонстрационным каталогом:
// четыре заведения с общей сеткой слотов и пятью услугами у каждого.
func (r *MemoryRepository) SeedDemoCatalog() {
	r.mu.Lock()
	defer r.mu.Unlock()

	providers := []model.Provider{
		{ID: 1, Name: "Gentleman's Grooming", Address: "12 Main St, Downtown", Open: true},
		{ID: 2, Name: "Urban Fadez Barbershop", Address: "45 West Avenue", Open: true},
		{ID: 3, Name: "The Classic Cut", Address: "88 Market Square", Open: false},
		{ID: 4, Name: "Razor's Edge", Address: "101 Park Lane", Open: true},
	}

	services := []model.ServiceItem{
		{ID: "s1", Name: "Hair Cut", Price: 250, DurationMin: 30},
		{ID: "s2", Name: "Beard Shave", Price: 150, DurationMin: 20},
		{ID: "s3", Name: "Facewash & Cleanup", Price: 450, DurationMin: 45},
		{ID: "s4", Name: "Hair Color", Price: 800, DurationMin: 60},
		{ID: "s5", Name: "Head Massage", Price: 300, DurationMin: 30},
	}

	for _, p := range providers {
		stored := p
		stored.Slots = append([]string(nil), demoSlotGrid...)
		r.providers[stored.ID] = &stored

		catalog := make(map[string]model.ServiceItem, len(services))
		for _, s := range services {
			s.ProviderID = stored.ID
			catalog[s.ID] = s
		}
		r.items[stored.ID] = catalog
	}
}

// AssignOwner закрепляет заведение за владельцем.
func (r *MemoryRepository) AssignOwner(ownerID, providerID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ownerProvider[ownerID] = providerID
}

// Close освобождает ресурсы хранилища.
func (r *MemoryRepository) Close() error {
	return nil
}

// CreateUser создаёт нового пользователя.
func (r *MemoryRepository) CreateUser(_ context.Context, login string, passwordHash []byte, role model.Role) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[login]; ok {
		return 0, fmt.Errorf("%w: %s", ErrUserExists, login)
	}

	r.nextUserID++
	u := &model.User{
		ID:           r.nextUserID,
		Login:        login,
		PasswordHash: append([]byte(nil), passwordHash...),
		Role:         role,
		CreatedAt:    time.Now(),
	}
	r.users[login] = u

	return u.ID, nil
}

// GetUserByLogin возвращает пользователя по логину.
func (r *MemoryRepository) GetUserByLogin(_ context.Context, login string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[login]
	if !ok {
		return nil, ErrUserNotFound
	}

	copied := *u
	return &copied, nil
}

// ProviderIDByOwner возвращает заведение, закреплённое за владельцем.
func (r *MemoryRepository) ProviderIDByOwner(_ context.Context, ownerID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.ownerProvider[ownerID]
	if !ok {
		return 0, fmt.Errorf("%w: owner %d", ErrProviderNotFound, ownerID)
	}
	return id, nil
}

// GetProvider возвращает заведение вместе с каталогом слотов.
func (r *MemoryRepository) GetProvider(_ context.Context, id int64) (*model.Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.providers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrProviderNotFound, id)
	}

	copied := *p
	copied.Slots = append([]string(nil), p.Slots...)
	return &copied, nil
}

// ListProviders возвращает все заведения, отсортированные по идентификатору.
func (r *MemoryRepository) ListProviders(_ context.Context) ([]model.Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res := make([]model.Provider, 0, len(r.providers))
	for _, p := range r.providers {
		copied := *p
		copied.Slots = append([]string(nil), p.Slots...)
		res = append(res, copied)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })

	return res, nil
}

// SetProviderOpen переключает флаг открытости заведения.
func (r *MemoryRepository) SetProviderOpen(_ context.Context, id int64, open bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.providers[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrProviderNotFound, id)
	}
	p.Open = open

	return nil
}

// GetServiceItems возвращает услуги каталога заведения по идентификаторам,
// сохраняя порядок запроса.
func (r *MemoryRepository) GetServiceItems(_ context.Context, providerID int64, ids []string) ([]model.ServiceItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	catalog, ok := r.items[providerID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrProviderNotFound, providerID)
	}

	items := make([]model.ServiceItem, 0, len(ids))
	for _, id := range ids {
		it, ok := catalog[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrServiceItemNotFound, id)
		}
		items = append(items, it)
	}

	return items, nil
}

// SaveBooking сохраняет бронирование.
func (r *MemoryRepository) SaveBooking(_ context.Context, b *model.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *b
	copied.Items = append([]model.ServiceItem(nil), b.Items...)
	r.bookingByID[copied.ID] = &copied
	r.bookingOrder = append(r.bookingOrder, copied.ID)

	return nil
}

// UpdateBookingStatus обновляет состояние бронирования.
func (r *MemoryRepository) UpdateBookingStatus(_ context.Context, id string, status model.BookingStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bookingByID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrBookingNotFound, id)
	}
	b.Status = status

	return nil
}

// ListBookings возвращает все сохранённые бронирования в порядке сохранения.
func (r *MemoryRepository) ListBookings(_ context.Context) ([]model.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res := make([]model.Booking, 0, len(r.bookingOrder))
	for _, id := range r.bookingOrder {
		b := r.bookingByID[id]
		copied := *b
		copied.Items = append([]model.ServiceItem(nil), b.Items...)
		res = append(res, copied)
	}

	return res, nil
}

// AppendTransaction добавляет запись в журнал транзакций.
func (r *MemoryRepository) AppendTransaction(_ context.Context, e *model.TransactionEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *e
	r.transactions = append(r.transactions, &copied)
	r.txByID[copied.ID] = &copied

	return nil
}

// UpdateTransactionStatus переводит статус одной записи журнала.
func (r *MemoryRepository) UpdateTransactionStatus(_ context.Context, entryID string, status model.TxStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.txByID[entryID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, entryID)
	}
	e.Status = status

	return nil
}

// UpdateTransactionStatuses переводит статус набора записей.
func (r *MemoryRepository) UpdateTransactionStatuses(_ context.Context, entryIDs []string, status model.TxStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range entryIDs {
		e, ok := r.txByID[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrEntryNotFound, id)
		}
		e.Status = status
	}

	return nil
}

// ListTransactions возвращает весь журнал транзакций в порядке вставки.
func (r *MemoryRepository) ListTransactions(_ context.Context) ([]model.TransactionEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res := make([]model.TransactionEntry, 0, len(r.transactions))
	for _, e := range r.transactions {
		res = append(res, *e)
	}

	return res, nil
}
