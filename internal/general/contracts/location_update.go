package contracts

import "time"

// LocationUpdateMessage is one-way telemetry tagged with a booking id,
// published by the navigating worker session and forwarded to the customer
// session. Event types: EventWorkerLocation / EventUserLocation.
// Relay exchange: ExchangeLocationFanout (fanout, no routing key).
type LocationUpdateMessage struct {
	BookingID string    `json:"booking_id"`
	ActorID   string    `json:"actor_id"`
	Location  GeoPoint  `json:"location"`
	Timestamp time.Time `json:"timestamp"`
	Envelope
}
