package websocket

import (
	"context"
	"encoding/json"

	"service-hub/internal/general/contracts"
)

// relayWorkerLocation routes a worker's location ping to the booking's
// customer, locally when connected and via the fanout exchange for sessions
// attached to other hub instances.
func (gw *Gateway) relayWorkerLocation(ctx context.Context, workerID string, env contracts.WSEnvelope) {
	var msg contracts.LocationUpdateMessage
	if err := json.Unmarshal(env.Data, &msg); err != nil {
		gw.log.Error(ctx, "worker_location_malformed", "Dropped malformed worker:location", err,
			map[string]any{"worker_id": workerID})
		return
	}
	msg.ActorID = workerID // never trust the frame's actor id over the session's

	customerID, assignedWorker, err := gw.resolver.ActorsFor(ctx, msg.BookingID)
	if err != nil {
		gw.log.Error(ctx, "worker_location_unroutable", "Failed to resolve booking actors", err,
			map[string]any{"booking_id": msg.BookingID, "worker_id": workerID})
		return
	}
	if assignedWorker != workerID {
		gw.log.Info(ctx, "worker_location_rejected", "Location ping from a worker not assigned to the booking",
			map[string]any{"booking_id": msg.BookingID, "worker_id": workerID})
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	out := contracts.WSEnvelope{Type: contracts.EventWorkerLocation, Data: data}

	if err := gw.SendToCustomer(customerID, out); err != nil {
		gw.log.Debug(ctx, "worker_location_not_delivered", "Customer not connected locally",
			map[string]any{"booking_id": msg.BookingID, "customer_id": customerID})
	}
	gw.relayToBroker(ctx, contracts.ExchangeLocationFanout, "", out)
}

// relayWorkerAdvisory forwards a navigation/work advisory to the booking's
// customer. Advisories are best-effort; the authoritative transition travels
// separately as booking:updated.
func (gw *Gateway) relayWorkerAdvisory(ctx context.Context, workerID string, env contracts.WSEnvelope) {
	var ev contracts.NavigationEvent
	if err := json.Unmarshal(env.Data, &ev); err != nil {
		gw.log.Error(ctx, "advisory_malformed", "Dropped malformed advisory event", err,
			map[string]any{"worker_id": workerID, "event": env.Type})
		return
	}
	ev.WorkerID = workerID

	customerID, assignedWorker, err := gw.resolver.ActorsFor(ctx, ev.BookingID)
	if err != nil || assignedWorker != workerID {
		return
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	out := contracts.WSEnvelope{Type: env.Type, Data: data}

	if err := gw.SendToCustomer(customerID, out); err != nil {
		gw.log.Debug(ctx, "advisory_not_delivered", "Customer not connected locally",
			map[string]any{"booking_id": ev.BookingID, "customer_id": customerID, "event": env.Type})
	}
	gw.relayToBroker(ctx, contracts.ExchangeLocationFanout, "", out)
}

// relayCustomerLocation routes a customer's location ping to the assigned
// worker, so the approach display tracks a moving meeting point.
func (gw *Gateway) relayCustomerLocation(ctx context.Context, customerID string, env contracts.WSEnvelope) {
	var msg contracts.LocationUpdateMessage
	if err := json.Unmarshal(env.Data, &msg); err != nil {
		gw.log.Error(ctx, "user_location_malformed", "Dropped malformed user:location", err,
			map[string]any{"customer_id": customerID})
		return
	}
	msg.ActorID = customerID

	owner, workerID, err := gw.resolver.ActorsFor(ctx, msg.BookingID)
	if err != nil || owner != customerID || workerID == "" {
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	out := contracts.WSEnvelope{Type: contracts.EventUserLocation, Data: data}

	if err := gw.SendToWorker(workerID, out); err != nil {
		gw.log.Debug(ctx, "user_location_not_delivered", "Worker not connected locally",
			map[string]any{"booking_id": msg.BookingID, "worker_id": workerID})
	}
	gw.relayToBroker(ctx, contracts.ExchangeLocationFanout, "", out)
}

// relayToBroker publishes an envelope for other hub instances. A broker
// outage only degrades cross-instance delivery.
func (gw *Gateway) relayToBroker(ctx context.Context, exchange, routingKey string, env contracts.WSEnvelope) {
	if gw.relay == nil {
		return
	}
	body, err := json.Marshal(env)
	if err != nil {
		return
	}
	if err := gw.relay.Publish(exchange, routingKey, body); err != nil {
		gw.log.Debug(ctx, "relay_publish_failed", "Failed to relay envelope to broker",
			map[string]any{"exchange": exchange, "event": env.Type, "error": err.Error()})
	}
}
