package contracts

import "time"

// Envelope adds cross-cutting headers all messages may carry.
type Envelope struct {
	CorrelationID string    `json:"correlation_id,omitempty"` // Correlation for tracing across services
	Producer      string    `json:"producer,omitempty"`       // Producer name, e.g. "dispatch-service"
	SentAt        time.Time `json:"sent_at,omitempty"`        // ISO-8601 send time (UTC)
}

type GeoPoint struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address,omitempty"`
}

// WorkerBrief is the public slice of a worker profile shown to customers.
type WorkerBrief struct {
	WorkerID string  `json:"worker_id"`
	Name     string  `json:"name,omitempty"`
	Rating   float64 `json:"rating,omitempty"`
}
