package service

import (
	"context"
	"encoding/json"
	"time"

	"service-hub/internal/domain/booking"
	"service-hub/internal/domain/worker"
	"service-hub/internal/general/contracts"
)

// CreateBookingInput is the request side of booking creation.
type CreateBookingInput struct {
	CustomerID  string
	Category    string
	ServiceName string
	Address     string
	Coordinate  *booking.GeoPoint
	Price       float64
	ScheduledAt *time.Time
}

// CreateBooking persists a new PENDING booking and dispatches the request to
// every verified worker in the category who is currently connected. The
// cross-instance relay carries the same event to workers attached elsewhere.
func (svc *DispatchService) CreateBooking(ctx context.Context, in CreateBookingInput) (*booking.Booking, error) {
	correlationID := generateCorrelationID()

	b, err := booking.NewBooking(in.CustomerID, in.Category, in.ServiceName, in.Address, in.Price, in.Coordinate, in.ScheduledAt)
	if err != nil {
		return nil, err
	}

	var candidates []string
	err = svc.uow.WithinTx(ctx, func(txCtx context.Context) error {
		if err := svc.bookings.CreateBooking(txCtx, b); err != nil {
			return err
		}
		ids, err := svc.workers.ListVerifiedForCategory(txCtx, b.Category)
		if err != nil {
			return err
		}
		candidates = ids
		return nil
	})
	if err != nil {
		svc.log.Error(ctx, "booking_create_failed", "Failed to create booking", err, map[string]any{
			"customer_id": in.CustomerID,
			"category":    in.Category,
			"request_id":  correlationID,
		})
		return nil, err
	}

	ev := contracts.BookingRequestEvent{
		Booking: contracts.ToBookingRecord(b),
		Envelope: contracts.Envelope{
			CorrelationID: correlationID,
			Producer:      svc.instanceID,
			SentAt:        time.Now().UTC(),
		},
	}

	delivered := svc.broadcastToWorkers(ctx, candidates, contracts.EventBookingRequest, ev)
	svc.relayBookingEvent(ctx, contracts.RouteBookingRequestPrefix+worker.NormalizeCategory(b.Category),
		contracts.EventBookingRequest, ev)

	svc.log.Info(svc.log.WithBookingID(svc.log.WithRequestID(ctx, correlationID), b.ID),
		"booking_created", "Booking created and dispatched",
		map[string]any{
			"customer_id":       b.CustomerID,
			"category":          b.Category,
			"eligible_workers":  len(candidates),
			"delivered_locally": delivered,
		})

	return b, nil
}

// broadcastToWorkers sends one envelope to every listed worker with a local
// connection and reports how many deliveries succeeded.
func (svc *DispatchService) broadcastToWorkers(ctx context.Context, workerIDs []string, event string, payload any) int {
	env, err := wrapEnvelope(event, payload)
	if err != nil {
		svc.log.Error(ctx, "broadcast_marshal_failed", "Failed to marshal broadcast payload", err,
			map[string]any{"event": event})
		return 0
	}

	delivered := 0
	for _, id := range workerIDs {
		if !svc.notifier.IsWorkerConnected(id) {
			continue
		}
		if err := svc.notifier.SendToWorker(id, env); err != nil {
			svc.log.Debug(ctx, "broadcast_send_failed", "Failed to deliver event to worker",
				map[string]any{"worker_id": id, "event": event, "error": err.Error()})
			continue
		}
		delivered++
	}
	return delivered
}

// notifyCustomer sends one envelope to a customer session if locally attached.
func (svc *DispatchService) notifyCustomer(ctx context.Context, customerID, event string, payload any) {
	env, err := wrapEnvelope(event, payload)
	if err != nil {
		return
	}
	if err := svc.notifier.SendToCustomer(customerID, env); err != nil {
		svc.log.Debug(ctx, "customer_notify_skipped", "Customer not connected locally",
			map[string]any{"customer_id": customerID, "event": event})
	}
}

// notifyWorker sends one envelope to a worker session if locally attached.
func (svc *DispatchService) notifyWorker(ctx context.Context, workerID, event string, payload any) {
	env, err := wrapEnvelope(event, payload)
	if err != nil {
		return
	}
	if err := svc.notifier.SendToWorker(workerID, env); err != nil {
		svc.log.Debug(ctx, "worker_notify_skipped", "Worker not connected locally",
			map[string]any{"worker_id": workerID, "event": event})
	}
}

// relayBookingEvent publishes a booking event on the topic exchange for other
// hub instances. Best-effort; a broker outage only degrades multi-instance
// delivery.
func (svc *DispatchService) relayBookingEvent(ctx context.Context, routingKey, event string, payload any) {
	if svc.mq == nil {
		return
	}
	env, err := wrapEnvelope(event, payload)
	if err != nil {
		return
	}
	body, err := json.Marshal(env)
	if err != nil {
		return
	}
	if err := svc.mq.Publish(contracts.ExchangeBookingTopic, routingKey, body); err != nil {
		svc.log.Error(ctx, "relay_publish_failed", "Failed to relay booking event to broker", err,
			map[string]any{"routing_key": routingKey, "event": event})
	}
}

// wrapEnvelope builds the WS wire envelope for one event payload.
func wrapEnvelope(event string, payload any) (contracts.WSEnvelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return contracts.WSEnvelope{}, err
	}
	return contracts.WSEnvelope{Type: event, Data: data}, nil
}
