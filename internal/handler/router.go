package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	custommiddleware "github.com/mmeshcher/slotbook-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса бронирования.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Post("/user/register", h.Register)
		r.Post("/user/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Get("/providers", h.ListProviders)
			r.Get("/providers/{providerID}/slots", h.GetProviderSlots)

			r.Post("/bookings/quote", h.QuoteBooking)
			r.Post("/bookings", h.CreateBooking)
			r.Get("/bookings/{bookingID}", h.GetBooking)
			r.Post("/bookings/{bookingID}/cancel", h.CancelBooking)

			r.Group(func(r chi.Router) {
				r.Use(h.authMiddleware.RequireOwner)

				r.Post("/bookings/{bookingID}/complete", h.CompleteBooking)

				r.Get("/owner/wallet", h.GetWallet)
				r.Post("/owner/wallet/sweep", h.SweepPending)
				r.Post("/owner/wallet/withdraw", h.Withdraw)
				r.Post("/owner/provider/status", h.SetProviderStatus)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}

func providerIDFromURL(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "providerID"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func bookingIDFromURL(r *http.Request) string {
	return chi.URLParam(r, "bookingID")
}
