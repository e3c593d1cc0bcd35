package booking

import (
	"errors"
	"strings"
	"time"
)

// GeoPoint is an optional geographic coordinate attached to a booking address.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Booking is the domain entity corresponding to the `bookings` table and to
// the record carried by booking:* channel events.
type Booking struct {
	// Identity & audit
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time

	// Actors
	CustomerID       string
	AssignedWorkerID *string // nil until accepted

	// Request contents
	Category    string
	ServiceName string
	Address     string
	Coordinate  *GeoPoint
	Price       float64
	ScheduledAt *time.Time

	// Core state
	Status Status

	// Lifecycle timestamps
	AcceptedAt  *time.Time
	ArrivedAt   *time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	CancelledAt *time.Time

	// Additional info
	CancellationReason *string
	WorkDurationSec    *int64
}

var (
	ErrCustomerRequired        = errors.New("customer id is required")
	ErrCategoryRequired        = errors.New("service category is required")
	ErrNegativePrice           = errors.New("price cannot be negative")
	ErrInvalidStatusTransition = errors.New("invalid booking status transition")
	ErrAlreadyAssigned         = errors.New("worker already assigned")
	ErrNoWorkerAssigned        = errors.New("no worker assigned")
	ErrWorkerRequired          = errors.New("worker id is required")
	ErrInvalidLatitude         = errors.New("latitude must be between -90 and 90")
	ErrInvalidLongitude        = errors.New("longitude must be between -180 and 180")
)

// NewBooking creates a new booking in PENDING state.
func NewBooking(customerID, category, serviceName, address string, price float64, coord *GeoPoint, scheduledAt *time.Time) (*Booking, error) {
	if customerID = strings.TrimSpace(customerID); customerID == "" {
		return nil, ErrCustomerRequired
	}
	if category = strings.TrimSpace(category); category == "" {
		return nil, ErrCategoryRequired
	}
	if price < 0 {
		return nil, ErrNegativePrice
	}
	if coord != nil {
		if coord.Lat < -90 || coord.Lat > 90 {
			return nil, ErrInvalidLatitude
		}
		if coord.Lng < -180 || coord.Lng > 180 {
			return nil, ErrInvalidLongitude
		}
	}

	now := time.Now().UTC()
	b := &Booking{
		CreatedAt:   now,
		UpdatedAt:   now,
		CustomerID:  customerID,
		Category:    category,
		ServiceName: strings.TrimSpace(serviceName),
		Address:     strings.TrimSpace(address),
		Coordinate:  coord,
		Price:       price,
		ScheduledAt: scheduledAt,
		Status:      StatusPending,
	}

	return b, nil
}

// Accept assigns the worker and moves PENDING -> ACCEPTED. The single-
// acceptance guarantee itself is arbitrated by the backend; this method only
// enforces the local invariant that a confirmed assignment is never replaced.
func (b *Booking) Accept(workerID string) error {
	if workerID == "" {
		return ErrWorkerRequired
	}
	if b.AssignedWorkerID != nil && *b.AssignedWorkerID != "" {
		return ErrAlreadyAssigned
	}
	if b.Status != StatusPending {
		return ErrInvalidStatusTransition
	}

	b.AssignedWorkerID = &workerID
	now := time.Now().UTC()
	b.AcceptedAt = &now
	b.setStatus(StatusAccepted)
	return nil
}

// MarkArrived transitions ACCEPTED -> ARRIVED.
func (b *Booking) MarkArrived() error {
	if b.AssignedWorkerID == nil || *b.AssignedWorkerID == "" {
		return ErrNoWorkerAssigned
	}
	if b.Status != StatusAccepted {
		return ErrInvalidStatusTransition
	}
	now := time.Now().UTC()
	b.ArrivedAt = &now
	b.setStatus(StatusArrived)
	return nil
}

// StartWork transitions ARRIVED -> WORKING and records the work-start
// timestamp used to derive elapsed duration.
func (b *Booking) StartWork() error {
	if b.AssignedWorkerID == nil || *b.AssignedWorkerID == "" {
		return ErrNoWorkerAssigned
	}
	if b.Status != StatusArrived {
		return ErrInvalidStatusTransition
	}
	now := time.Now().UTC()
	b.StartedAt = &now
	b.setStatus(StatusWorking)
	return nil
}

// Complete transitions WORKING -> COMPLETED and records the final duration.
func (b *Booking) Complete() error {
	if b.Status != StatusWorking {
		return ErrInvalidStatusTransition
	}
	now := time.Now().UTC()
	b.CompletedAt = &now
	if b.StartedAt != nil {
		sec := int64(now.Sub(*b.StartedAt).Seconds())
		b.WorkDurationSec = &sec
	}
	b.setStatus(StatusCompleted)
	return nil
}

// Cancel transitions to CANCELLED from any non-terminal state.
func (b *Booking) Cancel(reason string) error {
	if b.Status.Terminal() {
		return ErrInvalidStatusTransition
	}
	now := time.Now().UTC()
	b.CancelledAt = &now
	if rs := strings.TrimSpace(reason); rs != "" {
		b.CancellationReason = &rs
	}
	b.setStatus(StatusCancelled)
	return nil
}

// Reject marks a pending booking rejected for the local session. The backend
// re-broadcasts the request to remaining workers; other sessions never see
// this transition.
func (b *Booking) Reject() error {
	if b.Status != StatusPending {
		return ErrInvalidStatusTransition
	}
	b.setStatus(StatusRejected)
	return nil
}

// AssignedTo reports whether the booking is confirmed-assigned to workerID.
func (b *Booking) AssignedTo(workerID string) bool {
	return b.AssignedWorkerID != nil && *b.AssignedWorkerID == workerID
}

// Clone returns a deep copy so optimistic overlays never alias the
// confirmed baseline.
func (b *Booking) Clone() *Booking {
	if b == nil {
		return nil
	}
	c := *b
	c.AssignedWorkerID = clonePtr(b.AssignedWorkerID)
	c.ScheduledAt = clonePtr(b.ScheduledAt)
	c.AcceptedAt = clonePtr(b.AcceptedAt)
	c.ArrivedAt = clonePtr(b.ArrivedAt)
	c.StartedAt = clonePtr(b.StartedAt)
	c.CompletedAt = clonePtr(b.CompletedAt)
	c.CancelledAt = clonePtr(b.CancelledAt)
	c.CancellationReason = clonePtr(b.CancellationReason)
	c.WorkDurationSec = clonePtr(b.WorkDurationSec)
	if b.Coordinate != nil {
		pt := *b.Coordinate
		c.Coordinate = &pt
	}
	return &c
}

// Validate checks the assignment/status invariant: a worker is assigned iff
// the booking has progressed past PENDING on the forward path.
func (b *Booking) Validate() error {
	assigned := b.AssignedWorkerID != nil && *b.AssignedWorkerID != ""
	switch b.Status {
	case StatusPending, StatusRejected:
		if assigned {
			return ErrAlreadyAssigned
		}
	case StatusAccepted, StatusArrived, StatusWorking, StatusCompleted:
		if !assigned {
			return ErrNoWorkerAssigned
		}
	}
	if b.Price < 0 {
		return ErrNegativePrice
	}
	return nil
}

// ----- internal helpers -----

func (b *Booking) setStatus(status Status) {
	b.Status = status
	b.touch()
}

func (b *Booking) touch() {
	b.UpdatedAt = time.Now().UTC()
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
