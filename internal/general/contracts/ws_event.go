package contracts

import "encoding/json"

// WSEnvelope is the minimal framing for every message on the event channel,
// in both directions: {"type": "...", "data": {...}}.
type WSEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// WSError is sent to a client when a frame cannot be handled.
type WSError struct {
	Type  string `json:"type"` // always "error"
	Error string `json:"error"`
}
