package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"os"

	"service-hub/internal/general/logger"
	"service-hub/internal/general/rabbitmq"
	"service-hub/internal/ports"
)

// Notifier is the local delivery surface: the WebSocket gateway for sessions
// attached to this instance.
type Notifier interface {
	SendToWorker(workerID string, msg any) error
	SendToCustomer(customerID string, msg any) error
	IsWorkerConnected(workerID string) bool
}

var (
	// ErrBookingTaken is the losing side of the single-acceptance race.
	// Handlers map it to 409.
	ErrBookingTaken = errors.New("booking already taken")
	// ErrNotEligible rejects an accept from a worker without a verified
	// category for the booking.
	ErrNotEligible = errors.New("worker is not eligible for this booking")
	// ErrNotAuthorized rejects a transition from an actor who does not own it.
	ErrNotAuthorized = errors.New("actor is not a participant of this booking")
)

// DispatchService owns booking creation, the acceptance race, lifecycle
// transitions, and the event broadcasts that keep sessions synchronized.
type DispatchService struct {
	log        *logger.Logger
	uow        ports.UnitOfWork
	bookings   ports.BookingRepository
	workers    ports.WorkerRepository
	notifier   Notifier
	mq         *rabbitmq.Client // nil disables cross-instance relay
	instanceID string
}

// NewDispatchService wires the service. mq may be nil in single-instance
// deployments and tests.
func NewDispatchService(
	log *logger.Logger,
	uow ports.UnitOfWork,
	bookings ports.BookingRepository,
	workers ports.WorkerRepository,
	notifier Notifier,
	mq *rabbitmq.Client,
) *DispatchService {
	hn, err := os.Hostname()
	if err != nil || hn == "" {
		hn = "dispatch-" + randomHex(4)
	}
	return &DispatchService{
		log:        log,
		uow:        uow,
		bookings:   bookings,
		workers:    workers,
		notifier:   notifier,
		mq:         mq,
		instanceID: hn,
	}
}

// ActorsFor resolves the customer and assigned worker of a booking. Satisfies
// the gateway's routing needs.
func (svc *DispatchService) ActorsFor(ctx context.Context, bookingID string) (string, string, error) {
	var customerID, workerID string
	err := svc.uow.WithinTx(ctx, func(txCtx context.Context) error {
		b, err := svc.bookings.GetByID(txCtx, bookingID)
		if err != nil {
			return err
		}
		customerID = b.CustomerID
		if b.AssignedWorkerID != nil {
			workerID = *b.AssignedWorkerID
		}
		return nil
	})
	return customerID, workerID, err
}

func randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "00000000"[:n*2]
	}
	return hex.EncodeToString(buf)
}

func generateCorrelationID() string {
	return randomHex(16)
}
