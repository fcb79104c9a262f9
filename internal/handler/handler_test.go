package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/slotbook-system/internal/booking"
	"github.com/mmeshcher/slotbook-system/internal/ledger"
	"github.com/mmeshcher/slotbook-system/internal/middleware"
	"github.com/mmeshcher/slotbook-system/internal/model"
	"github.com/mmeshcher/slotbook-system/internal/service"
)

type stubService struct {
	registerUserID int64
	registerErr    error

	authUser *model.User
	authErr  error

	ownerProviderID int64
	ownerErr        error

	providersResp []model.Provider
	providersErr  error

	availabilityResp *service.Availability
	availabilityErr  error

	setOpenErr error

	quoteResp *service.Quote
	quoteErr  error

	confirmResp *model.Booking
	confirmErr  error

	getBookingResp *model.Booking
	getBookingErr  error

	cancelErr   error
	completeErr error

	sweepTotal int64
	sweepErr   error

	withdrawAmount int64
	withdrawErr    error

	walletResp    model.Wallet
	walletEntries []model.TransactionEntry
	walletErr     error
}

func (s *stubService) RegisterUser(ctx context.Context, login, password string, role model.Role) (int64, error) {
	return s.registerUserID, s.registerErr
}

func (s *stubService) AuthenticateUser(ctx context.Context, login, password string) (*model.User, error) {
	return s.authUser, s.authErr
}

func (s *stubService) ProviderForOwner(ctx context.Context, ownerID int64) (int64, error) {
	return s.ownerProviderID, s.ownerErr
}

func (s *stubService) ListProviders(ctx context.Context) ([]model.Provider, error) {
	return s.providersResp, s.providersErr
}

func (s *stubService) GetAvailability(ctx context.Context, providerID int64) (*service.Availability, error) {
	return s.availabilityResp, s.availabilityErr
}

func (s *stubService) SetProviderOpen(ctx context.Context, providerID int64, open bool) error {
	return s.setOpenErr
}

func (s *stubService) QuoteBooking(ctx context.Context, providerID int64, itemIDs []string, slot string) (*service.Quote, error) {
	return s.quoteResp, s.quoteErr
}

func (s *stubService) ConfirmBooking(ctx context.Context, providerID int64, itemIDs []string, slot string) (*model.Booking, error) {
	return s.confirmResp, s.confirmErr
}

func (s *stubService) GetBooking(ctx context.Context, bookingID string) (*model.Booking, error) {
	return s.getBookingResp, s.getBookingErr
}

func (s *stubService) CancelBooking(ctx context.Context, bookingID string) error {
	return s.cancelErr
}

func (s *stubService) CompleteBooking(ctx context.Context, bookingID string) error {
	return s.completeErr
}

func (s *stubService) SweepPending(ctx context.Context, providerID int64) (int64, error) {
	return s.sweepTotal, s.sweepErr
}

func (s *stubService) Withdraw(ctx context.Context, providerID int64) (int64, error) {
	return s.withdrawAmount, s.withdrawErr
}

func (s *stubService) GetWallet(ctx context.Context, providerID int64) (model.Wallet, []model.TransactionEntry, error) {
	return s.walletResp, s.walletEntries, s.walletErr
}

func newTestHandler(t *testing.T, svc Service) *Handler {
	t.Helper()

	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	auth := middleware.NewAuthMiddleware("test-secret")

	return NewHandler(svc, logger, auth)
}

func authCookie(t *testing.T, h *Handler, userID int64, role model.Role) *http.Cookie {
	t.Helper()

	rec := httptest.NewRecorder()
	h.authMiddleware.SetAuthCookie(rec, userID, role)
	cookies := rec.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatalf("no auth cookie set")
	}
	return cookies[0]
}

func TestRegister_Success(t *testing.T) {
	svc := &stubService{
		registerUserID: 42,
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(credentialsRequest{
		Login:    "user",
		Password: "pass",
	})

	req := httptest.NewRequest(http.MethodPost, "/api/user/register", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Register(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if len(res.Cookies()) == 0 {
		t.Fatalf("no auth cookie set on register")
	}
}

func TestRegister_UnknownRole(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	body, _ := json.Marshal(credentialsRequest{
		Login:    "user",
		Password: "pass",
		Role:     "admin",
	})

	req := httptest.NewRequest(http.MethodPost, "/api/user/register", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Register(rec, req)

	if rec.Result().StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusBadRequest)
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	svc := &stubService{
		authErr: service.ErrInvalidCredentials,
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(credentialsRequest{
		Login:    "user",
		Password: "wrong",
	})

	req := httptest.NewRequest(http.MethodPost, "/api/user/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Login(rec, req)

	if rec.Result().StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusUnauthorized)
	}
}

func TestGetProviderSlots_JSONResponse(t *testing.T) {
	svc := &stubService{
		availabilityResp: &service.Availability{
			Slots:  []string{"10:00 AM", "10:30 AM"},
			Booked: []string{"10:00 AM"},
		},
	}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/providers/1/slots", nil)
	req.AddCookie(authCookie(t, h, 1, model.RoleCustomer))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if ct := res.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type = %q, want application/json", ct)
	}

	var resp availabilityResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Slots) != 2 || len(resp.Booked) != 1 {
		t.Fatalf("availability = %+v, want 2 slots and 1 booked", resp)
	}
}

func TestCreateBooking_StatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		svc        *stubService
		wantStatus int
	}{
		{
			name: "created",
			svc: &stubService{
				confirmResp: &model.Booking{
					ID:         "b-1",
					ProviderID: 1,
					Slot:       "10:00 AM",
					Subtotal:   400,
					Status:     model.BookingStatusConfirmed,
					CreatedAt:  time.Now(),
				},
			},
			wantStatus: http.StatusCreated,
		},
		{
			name:       "slot conflict",
			svc:        &stubService{confirmErr: ledger.ErrSlotConflict},
			wantStatus: http.StatusConflict,
		},
		{
			name:       "provider closed",
			svc:        &stubService{confirmErr: booking.ErrProviderClosed},
			wantStatus: http.StatusConflict,
		},
		{
			name:       "empty selection",
			svc:        &stubService{confirmErr: booking.ErrEmptySelection},
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "unknown slot",
			svc:        &stubService{confirmErr: booking.ErrInvalidSlot},
			wantStatus: http.StatusUnprocessableEntity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t, tt.svc)

			body, _ := json.Marshal(bookingRequest{
				ProviderID: 1,
				ServiceIDs: []string{"s1"},
				Slot:       "10:00 AM",
			})

			req := httptest.NewRequest(http.MethodPost, "/api/bookings", bytes.NewReader(body))
			rec := httptest.NewRecorder()

			h.CreateBooking(rec, req)

			if rec.Result().StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Result().StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestCreateBooking_MalformedSlotLabel(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	body, _ := json.Marshal(bookingRequest{
		ProviderID: 1,
		ServiceIDs: []string{"s1"},
		Slot:       "25:99",
	})

	req := httptest.NewRequest(http.MethodPost, "/api/bookings", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.CreateBooking(rec, req)

	if rec.Result().StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusUnprocessableEntity)
	}
}

func TestCancelBooking_WindowClosed(t *testing.T) {
	svc := &stubService{
		cancelErr: booking.ErrCancellationWindowClosed,
	}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/bookings/b-1/cancel", nil)
	req.AddCookie(authCookie(t, h, 1, model.RoleCustomer))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusConflict)
	}
}

func TestCompleteBooking_ForeignProviderForbidden(t *testing.T) {
	svc := &stubService{
		ownerProviderID: 2,
		getBookingResp: &model.Booking{
			ID:         "b-1",
			ProviderID: 1,
			Status:     model.BookingStatusConfirmed,
		},
	}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/bookings/b-1/complete", nil)
	req.AddCookie(authCookie(t, h, 7, model.RoleOwner))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusForbidden)
	}
}

func TestCompleteBooking_CustomerForbidden(t *testing.T) {
	h := newTestHandler(t, &stubService{})
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/bookings/b-1/complete", nil)
	req.AddCookie(authCookie(t, h, 1, model.RoleCustomer))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusForbidden)
	}
}

func TestGetWallet_JSONResponse(t *testing.T) {
	now := time.Now().UTC()
	svc := &stubService{
		ownerProviderID: 1,
		walletResp:      model.Wallet{Pending: 360, Available: 0},
		walletEntries: []model.TransactionEntry{
			{
				ID:          "tx-1",
				ProviderID:  1,
				Direction:   model.TxCredit,
				Amount:      360,
				Status:      model.TxStatusPending,
				Description: "Booking: Hair Cut",
				CreatedAt:   now,
			},
		},
	}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/owner/wallet", nil)
	req.AddCookie(authCookie(t, h, 7, model.RoleOwner))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var resp walletResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Pending != 360 || resp.Available != 0 {
		t.Fatalf("wallet = %+v, want pending 360 available 0", resp)
	}
	if len(resp.Transactions) != 1 || resp.Transactions[0].ID != "tx-1" {
		t.Fatalf("transactions = %+v, want single entry tx-1", resp.Transactions)
	}
}

func TestWithdraw_NoFunds(t *testing.T) {
	svc := &stubService{
		ownerProviderID: 1,
		withdrawErr:     ledger.ErrNoFunds,
	}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/owner/wallet/withdraw", nil)
	req.AddCookie(authCookie(t, h, 7, model.RoleOwner))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusPaymentRequired)
	}
}

func TestRouter_UnauthorizedWithoutCookie(t *testing.T) {
	h := newTestHandler(t, &stubService{})
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/providers", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusUnauthorized)
	}
}
