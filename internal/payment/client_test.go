package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCapture_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/api/payments/capture" {
			t.Fatalf("path = %s, want /api/payments/capture", r.URL.Path)
		}

		var req captureRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if req.BookingID != "b1" || req.Amount != 400 {
			t.Fatalf("unexpected request: %+v", req)
		}

		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	client := NewClient(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := client.Capture(ctx, "b1", 400); err != nil {
		t.Fatalf("Capture error: %v", err)
	}
}

func TestCapture_Declined(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
	}))
	defer ts.Close()

	client := NewClient(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := client.Capture(ctx, "b1", 400)
	if !errors.Is(err, ErrCaptureDeclined) {
		t.Fatalf("err = %v, want ErrCaptureDeclined", err)
	}
}

func TestCapture_RetriesServerErrors(t *testing.T) {
	attempts := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	client := NewClient(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.Capture(ctx, "b1", 400); err != nil {
		t.Fatalf("Capture error: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
}

func TestCapture_NotConfigured(t *testing.T) {
	client := &Client{}

	if err := client.Capture(context.Background(), "b1", 400); err == nil {
		t.Fatalf("expected error for unconfigured client")
	}
}
