package service

import (
	"context"

	"service-hub/internal/domain/booking"
	"service-hub/internal/domain/user"
	"service-hub/internal/domain/worker"
)

const defaultSnapshotLimit = 50

// ListBookings returns the authoritative snapshot for one actor: a customer
// sees their own bookings; a worker sees assigned jobs plus pending offers in
// their verified categories.
func (svc *DispatchService) ListBookings(ctx context.Context, role user.Role, actorID string) ([]*booking.Booking, error) {
	var out []*booking.Booking

	err := svc.uow.WithinTx(ctx, func(txCtx context.Context) error {
		switch role {
		case user.RoleWorker:
			profile, err := svc.workers.GetProfile(txCtx, actorID)
			if err != nil {
				return err
			}
			categories := make([]string, 0, len(profile.Categories))
			for name, vs := range profile.Categories {
				if vs == worker.VerificationVerified {
					categories = append(categories, name)
				}
			}
			bs, err := svc.bookings.ListForWorker(txCtx, actorID, categories, defaultSnapshotLimit)
			if err != nil {
				return err
			}
			out = bs
			return nil

		default:
			bs, err := svc.bookings.ListForCustomer(txCtx, actorID, defaultSnapshotLimit)
			if err != nil {
				return err
			}
			out = bs
			return nil
		}
	})
	return out, err
}
