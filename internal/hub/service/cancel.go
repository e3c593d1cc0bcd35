package service

import (
	"context"
	"time"

	"service-hub/internal/domain/booking"
	"service-hub/internal/domain/worker"
	"service-hub/internal/general/contracts"
)

// Cancel withdraws a booking on behalf of its customer. Pending bookings stop
// alerting on every offered worker; active bookings tear down the assigned
// worker's flow.
func (svc *DispatchService) Cancel(ctx context.Context, bookingID, customerID, reason string) (*booking.Booking, error) {
	var (
		cancelled  *booking.Booking
		candidates []string
		wasPending bool
	)

	err := svc.uow.WithinTx(ctx, func(txCtx context.Context) error {
		b, err := svc.bookings.GetByID(txCtx, bookingID)
		if err != nil {
			return err
		}
		if b.CustomerID != customerID {
			return ErrNotAuthorized
		}
		wasPending = b.Status == booking.StatusPending

		if err := svc.bookings.Cancel(txCtx, bookingID, reason, time.Now().UTC()); err != nil {
			return err
		}
		cancelled, err = svc.bookings.GetByID(txCtx, bookingID)
		if err != nil {
			return err
		}

		// a pending cancel must reach every worker still seeing the offer
		if wasPending {
			ids, err := svc.workers.ListVerifiedForCategory(txCtx, worker.NormalizeCategory(b.Category))
			if err != nil {
				return err
			}
			candidates = ids
		}
		return nil
	})
	if err != nil {
		svc.log.Error(ctx, "cancel_failed", "Failed to cancel booking", err,
			map[string]any{"booking_id": bookingID, "customer_id": customerID})
		return nil, err
	}

	ev := contracts.BookingCancelledEvent{
		BookingID: cancelled.ID,
		Reason:    reason,
		Envelope: contracts.Envelope{
			CorrelationID: generateCorrelationID(),
			Producer:      svc.instanceID,
			SentAt:        time.Now().UTC(),
		},
	}

	if wasPending {
		svc.broadcastToWorkers(ctx, candidates, contracts.EventBookingCancelled, ev)
	} else if cancelled.AssignedWorkerID != nil && *cancelled.AssignedWorkerID != "" {
		svc.notifyWorker(ctx, *cancelled.AssignedWorkerID, contracts.EventBookingCancelled, ev)
	}
	svc.notifyCustomer(ctx, cancelled.CustomerID, contracts.EventBookingCancelled, ev)
	svc.relayBookingEvent(ctx, contracts.RouteBookingStatusPrefix+"cancelled", contracts.EventBookingCancelled, ev)

	svc.log.Info(svc.log.WithBookingID(ctx, bookingID), "booking_cancelled", "Booking cancelled",
		map[string]any{"customer_id": customerID, "reason": reason})

	return cancelled, nil
}
