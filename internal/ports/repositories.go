package ports

import (
	"context"
	"time"

	"service-hub/internal/domain/booking"
	"service-hub/internal/domain/worker"
)

// UnitOfWork manages transactions across multiple repository operations.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// BookingRepository defines the methods for managing booking data.
type BookingRepository interface {
	CreateBooking(ctx context.Context, b *booking.Booking) error
	GetByID(ctx context.Context, id string) (*booking.Booking, error)
	ListForCustomer(ctx context.Context, customerID string, limit int) ([]*booking.Booking, error)
	ListForWorker(ctx context.Context, workerID string, categories []string, limit int) ([]*booking.Booking, error)
	Accept(ctx context.Context, bookingID, workerID string, acceptedAt time.Time) (*booking.Booking, error)
	RecordRejection(ctx context.Context, bookingID, workerID string) error
	UpdateStatus(ctx context.Context, id string, status booking.Status, ts time.Time) error
	Cancel(ctx context.Context, id, reason string, cancelledAt time.Time) error
}

// WorkerRepository defines the methods for managing worker profile data.
type WorkerRepository interface {
	GetProfile(ctx context.Context, workerID string) (*worker.Profile, error)
	SetCategoryStatus(ctx context.Context, workerID, category string, status worker.VerificationStatus) error
	ListVerifiedForCategory(ctx context.Context, category string) ([]string, error)
}
