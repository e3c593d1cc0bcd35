package service

import (
	"context"
	"strings"
	"time"

	"service-hub/internal/domain/booking"
	"service-hub/internal/general/contracts"
)

// UpdateStatus performs an authoritative lifecycle transition on behalf of
// the assigned worker and broadcasts the result to both sides.
func (svc *DispatchService) UpdateStatus(ctx context.Context, bookingID, workerID string, status booking.Status) (*booking.Booking, error) {
	var updated *booking.Booking

	err := svc.uow.WithinTx(ctx, func(txCtx context.Context) error {
		b, err := svc.bookings.GetByID(txCtx, bookingID)
		if err != nil {
			return err
		}
		if !b.AssignedTo(workerID) {
			return ErrNotAuthorized
		}
		if err := svc.bookings.UpdateStatus(txCtx, bookingID, status, time.Now().UTC()); err != nil {
			return err
		}
		updated, err = svc.bookings.GetByID(txCtx, bookingID)
		return err
	})
	if err != nil {
		svc.log.Error(ctx, "status_update_failed", "Failed to update booking status", err,
			map[string]any{"booking_id": bookingID, "worker_id": workerID, "status": status.String()})
		return nil, err
	}

	svc.broadcastUpdated(ctx, updated)

	svc.log.Info(svc.log.WithBookingID(ctx, bookingID), "booking_status_updated", "Booking status updated",
		map[string]any{"worker_id": workerID, "status": status.String()})
	return updated, nil
}

// broadcastUpdated pushes a booking:updated delta to the customer and the
// assigned worker, plus the cross-instance relay.
func (svc *DispatchService) broadcastUpdated(ctx context.Context, b *booking.Booking) {
	ev := contracts.BookingUpdatedEvent{
		Booking: contracts.ToBookingRecord(b),
		Envelope: contracts.Envelope{
			CorrelationID: generateCorrelationID(),
			Producer:      svc.instanceID,
			SentAt:        time.Now().UTC(),
		},
	}

	svc.notifyCustomer(ctx, b.CustomerID, contracts.EventBookingUpdated, ev)
	if b.AssignedWorkerID != nil && *b.AssignedWorkerID != "" {
		svc.notifyWorker(ctx, *b.AssignedWorkerID, contracts.EventBookingUpdated, ev)
	}
	svc.relayBookingEvent(ctx, contracts.RouteBookingStatusPrefix+strings.ToLower(b.Status.String()),
		contracts.EventBookingUpdated, ev)
}
