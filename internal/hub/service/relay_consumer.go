package service

import (
	"context"
	"encoding/json"
	"time"

	"service-hub/internal/domain/worker"
	"service-hub/internal/general/contracts"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RunRelayConsumers drains the relay queues until ctx ends, delivering
// events produced by other hub instances to sessions attached here. Each
// consumer restarts with a delay when its channel dies; the resilient client
// reconnects underneath.
func (svc *DispatchService) RunRelayConsumers(ctx context.Context) {
	if svc.mq == nil {
		return
	}

	go svc.consumeLoop(ctx, contracts.QueueBookingRequests, svc.handleRelayedEnvelope)
	go svc.consumeLoop(ctx, contracts.QueueBookingStatus, svc.handleRelayedEnvelope)
	go svc.consumeLoop(ctx, contracts.QueueLocationUpdates, svc.handleRelayedLocation)
}

func (svc *DispatchService) consumeLoop(ctx context.Context, queue string, handler func(context.Context, contracts.WSEnvelope) error) {
	tag := svc.instanceID + "-" + queue
	for {
		err := svc.mq.Consume(ctx, queue, tag, 16, func(hCtx context.Context, d amqp.Delivery) error {
			var env contracts.WSEnvelope
			if err := json.Unmarshal(d.Body, &env); err != nil {
				svc.log.Error(hCtx, "relay_frame_malformed", "Dropped malformed relay frame", err,
					map[string]any{"queue": queue, "size": len(d.Body)})
				return nil // poison: ack and move on
			}
			return handler(hCtx, env)
		})

		select {
		case <-ctx.Done():
			return
		default:
		}

		if err != nil {
			svc.log.Error(ctx, "relay_consume_failed", "Relay consumer stopped; restarting", err,
				map[string]any{"queue": queue})
		}
		time.Sleep(2 * time.Second)
	}
}

// handleRelayedEnvelope fans a booking event from another instance out to the
// local sessions it concerns. Events this instance produced are skipped; the
// local broadcast already happened.
func (svc *DispatchService) handleRelayedEnvelope(ctx context.Context, env contracts.WSEnvelope) error {
	switch env.Type {
	case contracts.EventBookingRequest:
		var ev contracts.BookingRequestEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return nil
		}
		if ev.Producer == svc.instanceID {
			return nil
		}
		candidates, err := svc.verifiedWorkers(ctx, ev.Booking.Category)
		if err != nil {
			return err
		}
		svc.broadcastToWorkers(ctx, candidates, env.Type, ev)

	case contracts.EventBookingAccepted:
		var ev contracts.BookingAcceptedEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return nil
		}
		if ev.Producer == svc.instanceID {
			return nil
		}
		customerID, _, err := svc.ActorsFor(ctx, ev.BookingID)
		if err != nil {
			return err
		}
		svc.notifyCustomer(ctx, customerID, env.Type, ev)
		svc.broadcastAcceptedForBooking(ctx, ev)

	case contracts.EventBookingUpdated:
		var ev contracts.BookingUpdatedEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return nil
		}
		if ev.Producer == svc.instanceID {
			return nil
		}
		svc.notifyCustomer(ctx, ev.Booking.CustomerID, env.Type, ev)
		if ev.Booking.AssignedWorkerID != nil && *ev.Booking.AssignedWorkerID != "" {
			svc.notifyWorker(ctx, *ev.Booking.AssignedWorkerID, env.Type, ev)
		}

	case contracts.EventBookingCancelled:
		var ev contracts.BookingCancelledEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return nil
		}
		if ev.Producer == svc.instanceID {
			return nil
		}
		customerID, workerID, err := svc.ActorsFor(ctx, ev.BookingID)
		if err != nil {
			return err
		}
		svc.notifyCustomer(ctx, customerID, env.Type, ev)
		if workerID != "" {
			svc.notifyWorker(ctx, workerID, env.Type, ev)
		}

	default:
		svc.log.Debug(ctx, "relay_event_unhandled", "No relay handling for event",
			map[string]any{"event": env.Type})
	}
	return nil
}

// handleRelayedLocation routes a fanned-out location or advisory frame to the
// local side of the booking. Duplicate delivery on the producing instance is
// tolerated: location frames are idempotent display updates.
func (svc *DispatchService) handleRelayedLocation(ctx context.Context, env contracts.WSEnvelope) error {
	var probe struct {
		BookingID string `json:"booking_id"`
	}
	if err := json.Unmarshal(env.Data, &probe); err != nil || probe.BookingID == "" {
		return nil
	}

	customerID, workerID, err := svc.ActorsFor(ctx, probe.BookingID)
	if err != nil {
		return err
	}

	switch env.Type {
	case contracts.EventUserLocation:
		if workerID != "" {
			svc.notifyWorkerRaw(ctx, workerID, env)
		}
	default:
		// worker:location and every advisory flow toward the customer
		svc.notifyCustomerRaw(ctx, customerID, env)
	}
	return nil
}

func (svc *DispatchService) notifyCustomerRaw(ctx context.Context, customerID string, env contracts.WSEnvelope) {
	if err := svc.notifier.SendToCustomer(customerID, env); err != nil {
		svc.log.Debug(ctx, "customer_notify_skipped", "Customer not connected locally",
			map[string]any{"customer_id": customerID, "event": env.Type})
	}
}

func (svc *DispatchService) notifyWorkerRaw(ctx context.Context, workerID string, env contracts.WSEnvelope) {
	if err := svc.notifier.SendToWorker(workerID, env); err != nil {
		svc.log.Debug(ctx, "worker_notify_skipped", "Worker not connected locally",
			map[string]any{"worker_id": workerID, "event": env.Type})
	}
}

// verifiedWorkers lists verified worker ids for a category in its own tx.
func (svc *DispatchService) verifiedWorkers(ctx context.Context, category string) ([]string, error) {
	var ids []string
	err := svc.uow.WithinTx(ctx, func(txCtx context.Context) error {
		out, err := svc.workers.ListVerifiedForCategory(txCtx, worker.NormalizeCategory(category))
		if err != nil {
			return err
		}
		ids = out
		return nil
	})
	return ids, err
}

// broadcastAcceptedForBooking tells locally connected category workers the
// race is settled, resolving the category from storage.
func (svc *DispatchService) broadcastAcceptedForBooking(ctx context.Context, ev contracts.BookingAcceptedEvent) {
	var category string
	err := svc.uow.WithinTx(ctx, func(txCtx context.Context) error {
		b, err := svc.bookings.GetByID(txCtx, ev.BookingID)
		if err != nil {
			return err
		}
		category = b.Category
		return nil
	})
	if err != nil {
		return
	}
	candidates, err := svc.verifiedWorkers(ctx, category)
	if err != nil {
		return
	}
	svc.broadcastToWorkers(ctx, candidates, contracts.EventBookingAccepted, ev)
}
