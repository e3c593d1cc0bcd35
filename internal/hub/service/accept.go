package service

import (
	"context"
	"errors"
	"time"

	"service-hub/internal/domain/booking"
	"service-hub/internal/domain/worker"
	"service-hub/internal/general/contracts"
	"service-hub/internal/general/postgres"
)

// Accept arbitrates the single-acceptance race. The first worker whose
// conditional assignment lands wins; everyone else receives ErrBookingTaken.
// Eligibility is re-checked server-side so a stale client can never claim a
// category it is not verified for.
func (svc *DispatchService) Accept(ctx context.Context, bookingID, workerID string) (*booking.Booking, error) {
	var accepted *booking.Booking

	err := svc.uow.WithinTx(ctx, func(txCtx context.Context) error {
		b, err := svc.bookings.GetByID(txCtx, bookingID)
		if err != nil {
			return err
		}

		profile, err := svc.workers.GetProfile(txCtx, workerID)
		if err != nil {
			return err
		}
		if !profile.VerifiedFor(b.Category) {
			return ErrNotEligible
		}

		accepted, err = svc.bookings.Accept(txCtx, bookingID, workerID, time.Now().UTC())
		return err
	})
	if err != nil {
		if errors.Is(err, postgres.ErrAcceptConflict) {
			svc.log.Info(ctx, "accept_conflict", "Acceptance race lost",
				map[string]any{"booking_id": bookingID, "worker_id": workerID})
			return nil, ErrBookingTaken
		}
		svc.log.Error(ctx, "accept_failed", "Failed to accept booking", err,
			map[string]any{"booking_id": bookingID, "worker_id": workerID})
		return nil, err
	}

	ev := contracts.BookingAcceptedEvent{
		BookingID: accepted.ID,
		WorkerID:  workerID,
		Worker:    &contracts.WorkerBrief{WorkerID: workerID},
		Envelope: contracts.Envelope{
			CorrelationID: generateCorrelationID(),
			Producer:      svc.instanceID,
			SentAt:        time.Now().UTC(),
		},
	}

	// the customer learns who is coming; other offered workers learn the job
	// is gone so their alerts stop
	svc.notifyCustomer(ctx, accepted.CustomerID, contracts.EventBookingAccepted, ev)
	svc.broadcastAcceptedToCategory(ctx, accepted, ev)
	svc.relayBookingEvent(ctx, contracts.RouteBookingStatusPrefix+"accepted", contracts.EventBookingAccepted, ev)

	svc.log.Info(svc.log.WithBookingID(ctx, accepted.ID), "booking_accepted", "Booking accepted",
		map[string]any{"worker_id": workerID})

	return accepted, nil
}

// Reject records a worker's decline. The booking stays PENDING for everyone
// else; the rejecting worker is excluded from future snapshots of it.
func (svc *DispatchService) Reject(ctx context.Context, bookingID, workerID string) error {
	err := svc.uow.WithinTx(ctx, func(txCtx context.Context) error {
		b, err := svc.bookings.GetByID(txCtx, bookingID)
		if err != nil {
			return err
		}
		if b.Status != booking.StatusPending {
			return booking.ErrInvalidStatusTransition
		}
		return svc.bookings.RecordRejection(txCtx, bookingID, workerID)
	})
	if err != nil {
		svc.log.Error(ctx, "reject_failed", "Failed to record rejection", err,
			map[string]any{"booking_id": bookingID, "worker_id": workerID})
		return err
	}

	svc.log.Info(svc.log.WithBookingID(ctx, bookingID), "booking_rejected", "Worker declined booking",
		map[string]any{"worker_id": workerID})
	return nil
}

// broadcastAcceptedToCategory tells every verified worker in the booking's
// category that the race is settled.
func (svc *DispatchService) broadcastAcceptedToCategory(ctx context.Context, b *booking.Booking, ev contracts.BookingAcceptedEvent) {
	var candidates []string
	err := svc.uow.WithinTx(ctx, func(txCtx context.Context) error {
		ids, err := svc.workers.ListVerifiedForCategory(txCtx, worker.NormalizeCategory(b.Category))
		if err != nil {
			return err
		}
		candidates = ids
		return nil
	})
	if err != nil {
		svc.log.Error(ctx, "accepted_broadcast_failed", "Failed to list workers for accepted broadcast", err,
			map[string]any{"booking_id": b.ID})
		return
	}
	svc.broadcastToWorkers(ctx, candidates, contracts.EventBookingAccepted, ev)
}
