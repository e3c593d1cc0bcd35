package contracts

// Channel event types. These are the names carried in the WS envelope's
// "type" field, shared verbatim between hub and client sessions.
const (
	EventBookingRequest   = "booking:request"
	EventBookingAccepted  = "booking:accepted"
	EventBookingUpdated   = "booking:updated"
	EventBookingCancelled = "booking:cancelled"

	EventWorkerLocation = "worker:location"
	EventUserLocation   = "user:location"

	EventNavigationStarted = "navigation:started"
	EventNavigationArrived = "navigation:arrived"
	EventNavigationEnded   = "navigation:ended"
	EventWorkStarted       = "work:started"
	EventWorkCompleted     = "work:completed"
)

// Exchanges (hub-to-hub relay)
const (
	ExchangeBookingTopic   = "booking_topic"
	ExchangeLocationFanout = "location_fanout"
)

// Queues
const (
	QueueBookingRequests = "booking_requests"
	QueueBookingStatus   = "booking_status"
	QueueLocationUpdates = "location_updates"
)

// Routing patterns
const (
	RouteBookingRequestPrefix = "booking.request." // {category}
	RouteBookingStatusPrefix  = "booking.status."  // {status}
)
