// Package handler содержит HTTP-обработчики API сервиса бронирования.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/slotbook-system/internal/booking"
	"github.com/mmeshcher/slotbook-system/internal/ledger"
	"github.com/mmeshcher/slotbook-system/internal/middleware"
	"github.com/mmeshcher/slotbook-system/internal/model"
	"github.com/mmeshcher/slotbook-system/internal/payment"
	"github.com/mmeshcher/slotbook-system/internal/repository"
	"github.com/mmeshcher/slotbook-system/internal/service"
	"github.com/mmeshcher/slotbook-system/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, login, password string, role model.Role) (int64, error)
	AuthenticateUser(ctx context.Context, login, password string) (*model.User, error)
	ProviderForOwner(ctx context.Context, ownerID int64) (int64, error)
	ListProviders(ctx context.Context) ([]model.Provider, error)
	GetAvailability(ctx context.Context, providerID int64) (*service.Availability, error)
	SetProviderOpen(ctx context.Context, providerID int64, open bool) error
	QuoteBooking(ctx context.Context, providerID int64, itemIDs []string, slot string) (*service.Quote, error)
	ConfirmBooking(ctx context.Context, providerID int64, itemIDs []string, slot string) (*model.Booking, error)
	GetBooking(ctx context.Context, bookingID string) (*model.Booking, error)
	CancelBooking(ctx context.Context, bookingID string) error
	CompleteBooking(ctx context.Context, bookingID string) error
	SweepPending(ctx context.Context, providerID int64) (int64, error)
	Withdraw(ctx context.Context, providerID int64) (int64, error)
	GetWallet(ctx context.Context, providerID int64) (model.Wallet, []model.TransactionEntry, error)
}

// Handler реализует HTTP-обработчики API сервиса бронирования.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

type credentialsRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

// Register обрабатывает регистрацию нового пользователя.
// Роль по умолчанию — клиент.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Login == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	role := model.RoleCustomer
	switch req.Role {
	case "", string(model.RoleCustomer):
	case string(model.RoleOwner):
		role = model.RoleOwner
	default:
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	userID, err := h.service.RegisterUser(r.Context(), req.Login, req.Password, role)
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
			return
		}
		h.logger.Error("register user error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, userID, role)
	w.WriteHeader(http.StatusOK)
}

// Login выполняет аутентификацию пользователя и установку cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Login == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	user, err := h.service.AuthenticateUser(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) || errors.Is(err, service.ErrInvalidCredentials) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		h.logger.Error("login user error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, user.ID, user.Role)
	w.WriteHeader(http.StatusOK)
}

type providerResponse struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
	Open    bool   `json:"open"`
}

// ListProviders возвращает каталог заведений.
func (h *Handler) ListProviders(w http.ResponseWriter, r *http.Request) {
	providers, err := h.service.ListProviders(r.Context())
	if err != nil {
		h.logger.Error("list providers error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := make([]providerResponse, 0, len(providers))
	for _, p := range providers {
		resp = append(resp, providerResponse{
			ID:      p.ID,
			Name:    p.Name,
			Address: p.Address,
			Open:    p.Open,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

type availabilityResponse struct {
	Slots  []string `json:"slots"`
	Booked []string `json:"booked"`
}

// GetProviderSlots возвращает каталог слотов заведения и занятые из них.
func (h *Handler) GetProviderSlots(w http.ResponseWriter, r *http.Request) {
	providerID, ok := providerIDFromURL(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	availability, err := h.service.GetAvailability(r.Context(), providerID)
	if err != nil {
		if errors.Is(err, repository.ErrProviderNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("get availability error", zap.Error(err), zap.Int64("providerID", providerID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := availabilityResponse{
		Slots:  availability.Slots,
		Booked: availability.Booked,
	}
	if resp.Slots == nil {
		resp.Slots = []string{}
	}
	if resp.Booked == nil {
		resp.Booked = []string{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

type bookingRequest struct {
	ProviderID int64    `json:"provider_id"`
	ServiceIDs []string `json:"service_ids"`
	Slot       string   `json:"slot"`
}

type quoteResponse struct {
	ProviderID       int64  `json:"provider_id"`
	Slot             string `json:"slot"`
	Subtotal         int64  `json:"subtotal"`
	PlatformFee      int64  `json:"platform_fee"`
	ProviderEarnings int64  `json:"provider_earnings"`
}

// QuoteBooking считает стоимость бронирования без побочных эффектов.
func (h *Handler) QuoteBooking(w http.ResponseWriter, r *http.Request) {
	var req bookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if !validation.IsValidSlotLabel(req.Slot) {
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return
	}

	quote, err := h.service.QuoteBooking(r.Context(), req.ProviderID, req.ServiceIDs, req.Slot)
	if err != nil {
		h.writeBookingError(w, err, req)
		return
	}

	resp := quoteResponse{
		ProviderID:       quote.ProviderID,
		Slot:             quote.Slot,
		Subtotal:         quote.Subtotal,
		PlatformFee:      quote.PlatformFee,
		ProviderEarnings: quote.ProviderEarnings,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

type bookingItemResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Price int64  `json:"price"`
}

type bookingResponse struct {
	ID               string                `json:"id"`
	ProviderID       int64                 `json:"provider_id"`
	Items            []bookingItemResponse `json:"items"`
	Slot             string                `json:"slot"`
	Subtotal         int64                 `json:"subtotal"`
	PlatformFee      int64                 `json:"platform_fee"`
	ProviderEarnings int64                 `json:"provider_earnings"`
	Status           string                `json:"status"`
	CreatedAt        string                `json:"created_at"`
}

func newBookingResponse(b *model.Booking) bookingResponse {
	items := make([]bookingItemResponse, 0, len(b.Items))
	for _, it := range b.Items {
		items = append(items, bookingItemResponse{
			ID:    it.ID,
			Name:  it.Name,
			Price: it.Price,
		})
	}

	return bookingResponse{
		ID:               b.ID,
		ProviderID:       b.ProviderID,
		Items:            items,
		Slot:             b.Slot,
		Subtotal:         b.Subtotal,
		PlatformFee:      b.PlatformFee,
		ProviderEarnings: b.ProviderEarnings,
		Status:           string(b.Status),
		CreatedAt:        b.CreatedAt.Format(time.RFC3339),
	}
}

// CreateBooking создаёт и подтверждает бронирование выбранного слота.
func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req bookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if !validation.IsValidSlotLabel(req.Slot) {
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return
	}

	b, err := h.service.ConfirmBooking(r.Context(), req.ProviderID, req.ServiceIDs, req.Slot)
	if err != nil {
		h.writeBookingError(w, err, req)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(newBookingResponse(b)); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

func (h *Handler) writeBookingError(w http.ResponseWriter, err error, req bookingRequest) {
	switch {
	case errors.Is(err, repository.ErrProviderNotFound):
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	case errors.Is(err, repository.ErrServiceItemNotFound),
		errors.Is(err, booking.ErrEmptySelection),
		errors.Is(err, booking.ErrInvalidSlot):
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
	case errors.Is(err, booking.ErrProviderClosed), errors.Is(err, ledger.ErrSlotConflict):
		http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
	case errors.Is(err, payment.ErrCaptureDeclined):
		http.Error(w, http.StatusText(http.StatusPaymentRequired), http.StatusPaymentRequired)
	default:
		h.logger.Error("booking error", zap.Error(err),
			zap.Int64("providerID", req.ProviderID), zap.String("slot", req.Slot))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// GetBooking возвращает снимок бронирования.
func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	bookingID := bookingIDFromURL(r)

	b, err := h.service.GetBooking(r.Context(), bookingID)
	if err != nil {
		if errors.Is(err, booking.ErrNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("get booking error", zap.Error(err), zap.String("bookingID", bookingID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(newBookingResponse(b)); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

// CancelBooking отменяет подтверждённое бронирование до закрытия окна отмены.
func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	bookingID := bookingIDFromURL(r)

	err := h.service.CancelBooking(r.Context(), bookingID)
	if err != nil {
		switch {
		case errors.Is(err, booking.ErrNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, booking.ErrNotConfirmed),
			errors.Is(err, booking.ErrAlreadyTerminal),
			errors.Is(err, booking.ErrCancellationWindowClosed):
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
		default:
			h.logger.Error("cancel booking error", zap.Error(err), zap.String("bookingID", bookingID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusOK)
}

// CompleteBooking завершает бронирование. Доступно только владельцу
// заведения, которому принадлежит бронь.
func (h *Handler) CompleteBooking(w http.ResponseWriter, r *http.Request) {
	providerID, ok := h.ownerProviderID(w, r)
	if !ok {
		return
	}

	bookingID := bookingIDFromURL(r)

	b, err := h.service.GetBooking(r.Context(), bookingID)
	if err != nil {
		if errors.Is(err, booking.ErrNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("get booking error", zap.Error(err), zap.String("bookingID", bookingID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if b.ProviderID != providerID {
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	}

	if err := h.service.CompleteBooking(r.Context(), bookingID); err != nil {
		switch {
		case errors.Is(err, booking.ErrNotConfirmed), errors.Is(err, booking.ErrAlreadyTerminal):
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
		default:
			h.logger.Error("complete booking error", zap.Error(err), zap.String("bookingID", bookingID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusOK)
}

type transactionResponse struct {
	ID          string `json:"id"`
	Direction   string `json:"direction"`
	Amount      int64  `json:"amount"`
	Status      string `json:"status"`
	Description string `json:"description"`
	CreatedAt   string `json:"created_at"`
}

type walletResponse struct {
	Pending      int64                 `json:"pending"`
	Available    int64                 `json:"available"`
	Transactions []transactionResponse `json:"transactions"`
}

// GetWallet возвращает балансы заведения владельца и журнал транзакций.
func (h *Handler) GetWallet(w http.ResponseWriter, r *http.Request) {
	providerID, ok := h.ownerProviderID(w, r)
	if !ok {
		return
	}

	wallet, entries, err := h.service.GetWallet(r.Context(), providerID)
	if err != nil {
		h.logger.Error("get wallet error", zap.Error(err), zap.Int64("providerID", providerID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := walletResponse{
		Pending:      wallet.Pending,
		Available:    wallet.Available,
		Transactions: make([]transactionResponse, 0, len(entries)),
	}
	for _, e := range entries {
		resp.Transactions = append(resp.Transactions, transactionResponse{
			ID:          e.ID,
			Direction:   string(e.Direction),
			Amount:      e.Amount,
			Status:      string(e.Status),
			Description: e.Description,
			CreatedAt:   e.CreatedAt.Format(time.RFC3339),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

type amountResponse struct {
	Amount int64 `json:"amount"`
}

// SweepPending переводит все ожидающие зачисления заведения владельца
// в доступный баланс.
func (h *Handler) SweepPending(w http.ResponseWriter, r *http.Request) {
	providerID, ok := h.ownerProviderID(w, r)
	if !ok {
		return
	}

	total, err := h.service.SweepPending(r.Context(), providerID)
	if err != nil {
		h.logger.Error("sweep pending error", zap.Error(err), zap.Int64("providerID", providerID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(amountResponse{Amount: total}); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

// Withdraw выводит весь доступный баланс заведения владельца.
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	providerID, ok := h.ownerProviderID(w, r)
	if !ok {
		return
	}

	amount, err := h.service.Withdraw(r.Context(), providerID)
	if err != nil {
		if errors.Is(err, ledger.ErrNoFunds) {
			http.Error(w, http.StatusText(http.StatusPaymentRequired), http.StatusPaymentRequired)
			return
		}
		h.logger.Error("withdraw error", zap.Error(err), zap.Int64("providerID", providerID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(amountResponse{Amount: amount}); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

type providerStatusRequest struct {
	Open bool `json:"open"`
}

// SetProviderStatus переключает флаг открытости заведения владельца.
func (h *Handler) SetProviderStatus(w http.ResponseWriter, r *http.Request) {
	providerID, ok := h.ownerProviderID(w, r)
	if !ok {
		return
	}

	var req providerStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.SetProviderOpen(r.Context(), providerID, req.Open); err != nil {
		if errors.Is(err, repository.ErrProviderNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("set provider status error", zap.Error(err), zap.Int64("providerID", providerID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// ownerProviderID определяет заведение текущего владельца. При отсутствии
// закреплённого заведения пишет ответ с ошибкой и возвращает false.
func (h *Handler) ownerProviderID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return 0, false
	}

	providerID, err := h.service.ProviderForOwner(r.Context(), userID)
	if err != nil {
		if errors.Is(err, repository.ErrProviderNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return 0, false
		}
		h.logger.Error("resolve owner provider error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return 0, false
	}

	return providerID, true
}
