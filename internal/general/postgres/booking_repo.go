package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"service-hub/internal/domain/booking"
	"service-hub/internal/ports"

	"github.com/jackc/pgx/v5"
)

// ErrAcceptConflict is the losing side of the single-acceptance race at the
// persistence layer: the conditional assignment matched no row because the
// booking is no longer pending and unassigned.
var ErrAcceptConflict = errors.New("booking already accepted or no longer pending")

// BookingRepo persists bookings using pgx and plain SQL.
type BookingRepo struct{}

// NewBookingRepo constructs a new BookingRepo.
func NewBookingRepo() ports.BookingRepository {
	return &BookingRepo{}
}

const bookingColumns = `
	id, created_at, updated_at, customer_id, assigned_worker_id,
	category, service_name, address, lat, lng, price, scheduled_at,
	status, accepted_at, arrived_at, started_at, completed_at,
	cancelled_at, cancellation_reason, work_duration_sec`

// CreateBooking inserts a new booking row and writes an initial
// BOOKING_REQUESTED event.
func (repo *BookingRepo) CreateBooking(ctx context.Context, b *booking.Booking) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	var lat, lng *float64
	if b.Coordinate != nil {
		lat, lng = &b.Coordinate.Lat, &b.Coordinate.Lng
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO bookings (
			customer_id, category, service_name, address, lat, lng,
			price, scheduled_at, status
		)
		VALUES ($1, lower($2), $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`,
		b.CustomerID,
		b.Category,
		b.ServiceName,
		b.Address,
		lat,
		lng,
		b.Price,
		b.ScheduledAt,
		b.Status.String(), // "PENDING" at creation
	).Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return err
	}

	eventData := map[string]any{
		"new_status": b.Status.String(),
		"category":   b.Category,
		"price":      b.Price,
	}
	return insertBookingEvent(ctx, tx, b.ID, "BOOKING_REQUESTED", eventData)
}

// GetByID fetches a booking by primary key (uuid).
func (repo *BookingRepo) GetByID(ctx context.Context, id string) (*booking.Booking, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
	return scanBooking(row)
}

// ListForCustomer returns the customer's recent bookings, newest first.
func (repo *BookingRepo) ListForCustomer(ctx context.Context, customerID string, limit int) ([]*booking.Booking, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := tx.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE customer_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, customerID, limit)
	if err != nil {
		return nil, fmt.Errorf("query bookings by customer: %w", err)
	}
	defer rows.Close()

	return collectBookings(rows)
}

// ListForWorker returns the worker's snapshot: bookings assigned to them plus
// pending, unassigned bookings in their verified categories, excluding any
// they already rejected.
func (repo *BookingRepo) ListForWorker(ctx context.Context, workerID string, categories []string, limit int) ([]*booking.Booking, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := tx.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings b
		WHERE (b.assigned_worker_id = $1)
		   OR (b.status = 'PENDING'
		       AND b.assigned_worker_id IS NULL
		       AND b.category = ANY($2)
		       AND NOT EXISTS (
		           SELECT 1 FROM booking_rejections r
		           WHERE r.booking_id = b.id AND r.worker_id = $1
		       ))
		ORDER BY b.created_at DESC
		LIMIT $3
	`, workerID, categories, limit)
	if err != nil {
		return nil, fmt.Errorf("query bookings for worker: %w", err)
	}
	defer rows.Close()

	return collectBookings(rows)
}

// Accept is the acceptance arbiter: a conditional assignment that matches
// only a still-pending, unassigned row. Exactly one concurrent caller sees
// the row; everyone else gets ErrAcceptConflict.
func (repo *BookingRepo) Accept(ctx context.Context, bookingID, workerID string, acceptedAt time.Time) (*booking.Booking, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, `
		UPDATE bookings
		SET assigned_worker_id = $1,
		    status = 'ACCEPTED',
		    accepted_at = $2,
		    updated_at = now()
		WHERE id = $3
		  AND status = 'PENDING'
		  AND assigned_worker_id IS NULL
		RETURNING `+bookingColumns+`
	`, workerID, acceptedAt, bookingID)

	b, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// idempotent success if this same worker already holds it
			existing := tx.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, bookingID)
			if cur, gerr := scanBooking(existing); gerr == nil && cur.AssignedTo(workerID) {
				return cur, nil
			}
			return nil, ErrAcceptConflict
		}
		return nil, err
	}

	eventData := map[string]any{
		"old_status":  "PENDING",
		"new_status":  "ACCEPTED",
		"worker_id":   workerID,
		"accepted_at": acceptedAt.UTC().Format(time.RFC3339),
	}
	if err := insertBookingEvent(ctx, tx, bookingID, "BOOKING_ACCEPTED", eventData); err != nil {
		return nil, err
	}
	return b, nil
}

// RecordRejection remembers that a worker declined a booking so the request
// is not re-offered to them.
func (repo *BookingRepo) RecordRejection(ctx context.Context, bookingID, workerID string) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO booking_rejections (booking_id, worker_id)
		VALUES ($1, $2)
		ON CONFLICT (booking_id, worker_id) DO NOTHING
	`, bookingID, workerID)
	if err != nil {
		return err
	}

	return insertBookingEvent(ctx, tx, bookingID, "BOOKING_REJECTED",
		map[string]any{"worker_id": workerID})
}

// UpdateStatus sets the booking status and stamps the corresponding timeline
// column, enforcing the lifecycle transitions under a row lock.
func (repo *BookingRepo) UpdateStatus(ctx context.Context, id string, status booking.Status, ts time.Time) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	var current string
	err = tx.QueryRow(ctx, `
		SELECT status
		FROM bookings
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&current)
	if err != nil {
		return err
	}

	// idempotent success
	if current == status.String() {
		return nil
	}

	if !status.Valid() {
		return errors.New("invalid booking status")
	}
	cur, err := booking.ParseStatus(current)
	if err != nil {
		return err
	}
	if !cur.CanTransitionTo(status) {
		return booking.ErrInvalidStatusTransition
	}

	query := `
	UPDATE bookings
	SET status = $1,
	    updated_at = now()
	`
	args := []any{status.String()}
	if col := timelineColumnFor(status); col != "" {
		query += `, ` + col + ` = $2
		WHERE id = $3`
		args = append(args, ts, id)
	} else {
		query += `
		WHERE id = $2`
		args = append(args, id)
	}

	if _, err = tx.Exec(ctx, query, args...); err != nil {
		return err
	}

	// completion derives the work duration from the started_at stamp
	if status == booking.StatusCompleted {
		_, err = tx.Exec(ctx, `
			UPDATE bookings
			SET work_duration_sec = EXTRACT(EPOCH FROM ($1::timestamptz - started_at))::bigint
			WHERE id = $2 AND started_at IS NOT NULL
		`, ts, id)
		if err != nil {
			return err
		}
	}

	eventData := map[string]any{
		"old_status": current,
		"new_status": status.String(),
		"timestamp":  ts.UTC().Format(time.RFC3339),
	}
	return insertBookingEvent(ctx, tx, id, specificEventTypeFor(status), eventData)
}

// Cancel sets cancellation_reason, stamps cancelled_at, and moves to CANCELLED.
func (repo *BookingRepo) Cancel(ctx context.Context, id, reason string, cancelledAt time.Time) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	var current string
	err = tx.QueryRow(ctx, `
		SELECT status
		FROM bookings
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&current)
	if err != nil {
		return err
	}

	// idempotent success
	if current == "CANCELLED" {
		return nil
	}
	if current == "COMPLETED" {
		return errors.New("cannot cancel a completed booking")
	}

	_, err = tx.Exec(ctx, `
		UPDATE bookings
		SET status = 'CANCELLED',
		    cancellation_reason = $1,
		    cancelled_at = $2,
		    updated_at = now()
		WHERE id = $3
	`, reason, cancelledAt, id)
	if err != nil {
		return err
	}

	eventData := map[string]any{
		"old_status":   current,
		"new_status":   "CANCELLED",
		"reason":       reason,
		"cancelled_at": cancelledAt.UTC().Format(time.RFC3339),
	}
	return insertBookingEvent(ctx, tx, id, "BOOKING_CANCELLED", eventData)
}

// --- helpers ---

// rowScanner covers pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*booking.Booking, error) {
	var b booking.Booking
	var status string
	var lat, lng *float64

	err := row.Scan(
		&b.ID, &b.CreatedAt, &b.UpdatedAt, &b.CustomerID, &b.AssignedWorkerID,
		&b.Category, &b.ServiceName, &b.Address, &lat, &lng, &b.Price, &b.ScheduledAt,
		&status, &b.AcceptedAt, &b.ArrivedAt, &b.StartedAt, &b.CompletedAt,
		&b.CancelledAt, &b.CancellationReason, &b.WorkDurationSec,
	)
	if err != nil {
		return nil, err
	}

	b.Status = booking.Status(status)
	if lat != nil && lng != nil {
		b.Coordinate = &booking.GeoPoint{Lat: *lat, Lng: *lng}
	}
	return &b, nil
}

func collectBookings(rows pgx.Rows) ([]*booking.Booking, error) {
	var out []*booking.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

// insertBookingEvent writes a row into booking_events with encoded event_data.
func insertBookingEvent(ctx context.Context, tx pgx.Tx, bookingID, eventType string, eventData any) error {
	body, err := json.Marshal(eventData)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO booking_events (booking_id, event_type, event_data)
		VALUES ($1, $2, $3::jsonb)
	`, bookingID, eventType, string(body))
	return err
}

// timelineColumnFor maps a status to the timeline column that must be
// stamped, or "" when the status has none.
func timelineColumnFor(status booking.Status) string {
	switch status {
	case booking.StatusAccepted:
		return "accepted_at"
	case booking.StatusArrived:
		return "arrived_at"
	case booking.StatusWorking:
		return "started_at"
	case booking.StatusCompleted:
		return "completed_at"
	case booking.StatusCancelled:
		return "cancelled_at"
	default:
		// no dedicated timeline column (e.g. REJECTED)
		return ""
	}
}

// specificEventTypeFor returns a more precise event name when appropriate.
func specificEventTypeFor(status booking.Status) string {
	switch status {
	case booking.StatusAccepted:
		return "BOOKING_ACCEPTED"
	case booking.StatusArrived:
		return "WORKER_ARRIVED"
	case booking.StatusWorking:
		return "WORK_STARTED"
	case booking.StatusCompleted:
		return "WORK_COMPLETED"
	case booking.StatusCancelled:
		return "BOOKING_CANCELLED"
	default:
		return "STATUS_CHANGED"
	}
}
