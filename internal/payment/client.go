// Package payment предоставляет клиент внешней платёжной системы.
// Ядро бронирования не выполняет повторов само; повторы сетевых сбоев
// инкапсулированы в HTTP-клиенте.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// ErrCaptureDeclined возвращается, если платёжная система отклонила списание.
var ErrCaptureDeclined = errors.New("payment capture declined")

// Client инкапсулирует HTTP-взаимодействие с платёжной системой.
type Client struct {
	baseURL    string
	httpClient *retryablehttp.Client
}

type captureRequest struct {
	BookingID string `json:"booking_id"`
	Amount    int64  `json:"amount"`
}

// NewClient создаёт клиент захвата платежей по указанному адресу.
func NewClient(baseURL string) *Client {
	c := retryablehttp.NewClient()
	c.RetryMax = 3
	c.RetryWaitMin = 100 * time.Millisecond
	c.RetryWaitMax = 2 * time.Second
	c.HTTPClient.Timeout = 5 * time.Second
	c.Logger = nil

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: c,
	}
}

// Capture выполняет захват оплаты бронирования на указанную сумму.
// Возвращает ErrCaptureDeclined, если платёжная система отказала.
func (c *Client) Capture(ctx context.Context, bookingID string, amount int64) error {
	if c == nil || c.baseURL == "" {
		return fmt.Errorf("payment client not configured")
	}

	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	body, err := json.Marshal(captureRequest{
		BookingID: bookingID,
		Amount:    amount,
	})
	if err != nil {
		return fmt.Errorf("marshal capture request: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, base+"/api/payments/capture", body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return fmt.Errorf("%w: status %d", ErrCaptureDeclined, resp.StatusCode)
	default:
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
}
