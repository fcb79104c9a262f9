package ledger

import (
	"sync"
	"time"

	"github.com/mmeshcher/slotbook-system/internal/idgen"
)

// Registry выдаёт агрегаты заведения по его идентификатору, создавая их
// лениво. Сами агрегаты сериализуют операции собственными блокировками,
// блокировка реестра покрывает только поиск и создание.
type Registry struct {
	mu      sync.RWMutex
	slots   map[int64]*SlotLedger
	wallets map[int64]*WalletLedger
	newID   idgen.Source
	now     func() time.Time
}

// NewRegistry создаёт реестр агрегатов с указанным источником
// идентификаторов и часами для записей журнала.
func NewRegistry(newID idgen.Source, now func() time.Time) *Registry {
	return &Registry{
		slots:   make(map[int64]*SlotLedger),
		wallets: make(map[int64]*WalletLedger),
		newID:   newID,
		now:     now,
	}
}

// Slots возвращает реестр слотов заведения.
func (r *Registry) Slots(providerID int64) *SlotLedger {
	r.mu.RLock()
	l, ok := r.slots[providerID]
	r.mu.RUnlock()
	if ok {
		return l
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.slots[providerID]; ok {
		return l
	}
	l = NewSlotLedger()
	r.slots[providerID] = l

	return l
}

// Wallet возвращает кошелёк заведения.
func (r *Registry) Wallet(providerID int64) *WalletLedger {
	r.mu.RLock()
	w, ok := r.wallets[providerID]
	r.mu.RUnlock()
	if ok {
		return w
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if w, ok := r.wallets[providerID]; ok {
		return w
	}
	w = NewWalletLedger(providerID, r.newID, r.now)
	r.wallets[providerID] = w

	return w
}
