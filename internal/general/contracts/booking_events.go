package contracts

import "time"

// BookingRecord is the wire form of a booking as carried by booking:request
// and booking:updated events and returned by the REST surface. Partial
// updates leave omitted pointer fields nil.
type BookingRecord struct {
	ID               string     `json:"id"`
	CustomerID       string     `json:"customer_id,omitempty"`
	Category         string     `json:"category,omitempty"`
	ServiceName      string     `json:"service_name,omitempty"`
	Address          string     `json:"address,omitempty"`
	Coordinate       *GeoPoint  `json:"coordinate,omitempty"`
	Price            float64    `json:"price,omitempty"`
	Status           string     `json:"status,omitempty"`
	AssignedWorkerID *string    `json:"assigned_worker_id,omitempty"`
	CreatedAt        time.Time  `json:"created_at,omitempty"`
	ScheduledAt      *time.Time `json:"scheduled_at,omitempty"`
	AcceptedAt       *time.Time `json:"accepted_at,omitempty"`
	ArrivedAt        *time.Time `json:"arrived_at,omitempty"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	CancelledAt      *time.Time `json:"cancelled_at,omitempty"`
	WorkDurationSec  *int64     `json:"work_duration_sec,omitempty"`
}

// BookingRequestEvent announces a new pending booking to eligible workers.
// Event type: EventBookingRequest. Relay routing key:
// "booking.request.{category}" on ExchangeBookingTopic.
type BookingRequestEvent struct {
	Booking BookingRecord `json:"booking"`
	Envelope
}

// BookingAcceptedEvent is broadcast to all interested sessions once the hub
// has arbitrated the acceptance race. Event type: EventBookingAccepted.
type BookingAcceptedEvent struct {
	BookingID string       `json:"booking_id"`
	WorkerID  string       `json:"worker_id"`
	Worker    *WorkerBrief `json:"worker_info,omitempty"`
	Envelope
}

// BookingUpdatedEvent carries a partial or full booking record.
// Event type: EventBookingUpdated. Relay routing key:
// "booking.status.{status}" on ExchangeBookingTopic.
type BookingUpdatedEvent struct {
	Booking BookingRecord `json:"booking"`
	Envelope
}

// BookingCancelledEvent is pushed when the requester cancels.
// Event type: EventBookingCancelled.
type BookingCancelledEvent struct {
	BookingID string `json:"booking_id"`
	Reason    string `json:"reason,omitempty"`
	Envelope
}
