package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"service-hub/internal/domain/booking"
	"service-hub/internal/general/contracts"
)

// ErrBookingTaken is the losing side of the single-acceptance race: another
// worker's accept was confirmed first. It is a defined outcome, not a
// transport failure; callers roll back their optimistic state and tell the
// user the job is gone.
var ErrBookingTaken = errors.New("booking already taken")

// APIError carries a non-2xx response that is not the acceptance conflict.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s", e.StatusCode, e.Message)
}

// Client is the request/response side of the backend contract. Every
// lifecycle transition goes through here; an error response means the
// transition did not happen and any optimistic mutation must be reverted.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New constructs a REST client for one authenticated actor.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// FetchBookings returns the authoritative snapshot for this actor.
func (c *Client) FetchBookings(ctx context.Context) ([]contracts.BookingRecord, error) {
	var out struct {
		Bookings []contracts.BookingRecord `json:"bookings"`
	}
	if err := c.do(ctx, http.MethodGet, "/bookings", nil, &out); err != nil {
		return nil, err
	}
	return out.Bookings, nil
}

// CreateBooking posts a new service request (customer sessions).
func (c *Client) CreateBooking(ctx context.Context, rec contracts.BookingRecord) (*booking.Booking, error) {
	var out contracts.BookingRecord
	if err := c.do(ctx, http.MethodPost, "/bookings", rec, &out); err != nil {
		return nil, err
	}
	return out.ToDomain()
}

// Accept claims a pending booking for workerID. A conflict response means
// another worker won; the caller receives ErrBookingTaken.
func (c *Client) Accept(ctx context.Context, bookingID, workerID string) (*booking.Booking, error) {
	body := map[string]string{"worker_id": workerID}
	var out contracts.BookingRecord
	if err := c.do(ctx, http.MethodPost, "/bookings/"+bookingID+"/accept", body, &out); err != nil {
		return nil, err
	}
	return out.ToDomain()
}

// Reject declines a pending booking for workerID. The backend re-broadcasts
// the request to the remaining eligible workers.
func (c *Client) Reject(ctx context.Context, bookingID, workerID string) error {
	body := map[string]string{"worker_id": workerID}
	return c.do(ctx, http.MethodPost, "/bookings/"+bookingID+"/reject", body, nil)
}

// UpdateStatus performs an authoritative lifecycle transition and returns
// the updated booking.
func (c *Client) UpdateStatus(ctx context.Context, bookingID string, status booking.Status) (*booking.Booking, error) {
	body := map[string]string{"status": status.String()}
	var out contracts.BookingRecord
	if err := c.do(ctx, http.MethodPatch, "/bookings/"+bookingID+"/status", body, &out); err != nil {
		return nil, err
	}
	return out.ToDomain()
}

// Cancel withdraws a booking (customer sessions).
func (c *Client) Cancel(ctx context.Context, bookingID, reason string) (*booking.Booking, error) {
	body := map[string]string{"reason": reason}
	var out contracts.BookingRecord
	if err := c.do(ctx, http.MethodPost, "/bookings/"+bookingID+"/cancel", body, &out); err != nil {
		return nil, err
	}
	return out.ToDomain()
}

// do executes one JSON request/response round trip.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var reqBody io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("api: marshal request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("api: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("api: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		return ErrBookingTaken
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := readErrorMessage(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("api: decode response: %w", err)
	}
	return nil
}

// readErrorMessage pulls the error field from a JSON error body, falling
// back to the raw text.
func readErrorMessage(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(raw) == 0 {
		return "request failed"
	}
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		if body.Error != "" {
			return body.Error
		}
		if body.Message != "" {
			return body.Message
		}
	}
	return string(raw)
}
