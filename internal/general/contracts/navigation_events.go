package contracts

import "time"

// NavigationEvent is an advisory broadcast for the navigation sub-flow:
// navigation:started / navigation:arrived / navigation:ended, work:started /
// work:completed. Authoritative booking state comes from the REST
// status-update response, never from these.
type NavigationEvent struct {
	BookingID string    `json:"booking_id"`
	WorkerID  string    `json:"worker_id"`
	Timestamp time.Time `json:"timestamp"`
	Envelope
}
