package booking

import (
	"errors"
	"testing"
	"time"
)

func newPending(t *testing.T) *Booking {
	t.Helper()
	b, err := NewBooking("cust-1", "Cleaning", "Deep clean", "12 Main St", 50,
		&GeoPoint{Lat: 41.31, Lng: 69.28}, nil)
	if err != nil {
		t.Fatalf("NewBooking: %v", err)
	}
	b.ID = "bk-1"
	return b
}

func TestNewBookingValidation(t *testing.T) {
	if _, err := NewBooking("", "Cleaning", "", "", 10, nil, nil); !errors.Is(err, ErrCustomerRequired) {
		t.Errorf("Expected ErrCustomerRequired, got %v", err)
	}
	if _, err := NewBooking("cust-1", "  ", "", "", 10, nil, nil); !errors.Is(err, ErrCategoryRequired) {
		t.Errorf("Expected ErrCategoryRequired, got %v", err)
	}
	if _, err := NewBooking("cust-1", "Cleaning", "", "", -1, nil, nil); !errors.Is(err, ErrNegativePrice) {
		t.Errorf("Expected ErrNegativePrice, got %v", err)
	}
	if _, err := NewBooking("cust-1", "Cleaning", "", "", 10, &GeoPoint{Lat: 91}, nil); !errors.Is(err, ErrInvalidLatitude) {
		t.Errorf("Expected ErrInvalidLatitude, got %v", err)
	}
	if _, err := NewBooking("cust-1", "Cleaning", "", "", 10, &GeoPoint{Lng: -200}, nil); !errors.Is(err, ErrInvalidLongitude) {
		t.Errorf("Expected ErrInvalidLongitude, got %v", err)
	}

	b, err := NewBooking("cust-1", "Cleaning", "Deep clean", "12 Main St", 50, nil, nil)
	if err != nil {
		t.Fatalf("NewBooking: %v", err)
	}
	if b.Status != StatusPending {
		t.Errorf("Expected PENDING, got %s", b.Status)
	}
}

func TestAcceptNeverReplacesAssignment(t *testing.T) {
	b := newPending(t)
	if err := b.Accept("worker-1"); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if !b.AssignedTo("worker-1") {
		t.Error("booking should be assigned to worker-1")
	}
	if b.AcceptedAt == nil {
		t.Error("AcceptedAt should be stamped")
	}

	if err := b.Accept("worker-2"); !errors.Is(err, ErrAlreadyAssigned) {
		t.Errorf("Expected ErrAlreadyAssigned, got %v", err)
	}
	if !b.AssignedTo("worker-1") {
		t.Error("assignment must not be replaced")
	}
}

func TestAcceptRequiresPending(t *testing.T) {
	b := newPending(t)
	if err := b.Cancel("changed my mind"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if err := b.Accept("worker-1"); !errors.Is(err, ErrInvalidStatusTransition) {
		t.Errorf("Expected ErrInvalidStatusTransition, got %v", err)
	}
}

func TestFullLifecycle(t *testing.T) {
	b := newPending(t)
	if err := b.Accept("worker-1"); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if err := b.MarkArrived(); err != nil {
		t.Fatalf("MarkArrived: %v", err)
	}
	if err := b.StartWork(); err != nil {
		t.Fatalf("StartWork: %v", err)
	}

	// backdate the start so the derived duration is visible
	start := time.Now().UTC().Add(-90 * time.Second)
	b.StartedAt = &start

	if err := b.Complete(); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if b.Status != StatusCompleted {
		t.Errorf("Expected COMPLETED, got %s", b.Status)
	}
	if b.WorkDurationSec == nil || *b.WorkDurationSec < 89 || *b.WorkDurationSec > 92 {
		t.Errorf("WorkDurationSec should be ~90, got %v", b.WorkDurationSec)
	}
	if err := b.Validate(); err != nil {
		t.Errorf("completed booking should validate: %v", err)
	}
}

func TestCancelFromTerminalFails(t *testing.T) {
	b := newPending(t)
	_ = b.Accept("worker-1")
	_ = b.MarkArrived()
	_ = b.StartWork()
	_ = b.Complete()

	if err := b.Cancel("too late"); !errors.Is(err, ErrInvalidStatusTransition) {
		t.Errorf("Expected ErrInvalidStatusTransition, got %v", err)
	}
}

func TestCancelRecordsReason(t *testing.T) {
	b := newPending(t)
	if err := b.Cancel("  found someone else  "); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if b.CancellationReason == nil || *b.CancellationReason != "found someone else" {
		t.Errorf("Expected trimmed reason, got %v", b.CancellationReason)
	}
	if b.CancelledAt == nil {
		t.Error("CancelledAt should be stamped")
	}
}

func TestValidateAssignmentInvariant(t *testing.T) {
	b := newPending(t)
	w := "worker-1"
	b.AssignedWorkerID = &w
	if err := b.Validate(); !errors.Is(err, ErrAlreadyAssigned) {
		t.Errorf("PENDING with assignment should fail validation, got %v", err)
	}

	b2 := newPending(t)
	b2.Status = StatusWorking
	if err := b2.Validate(); !errors.Is(err, ErrNoWorkerAssigned) {
		t.Errorf("WORKING without assignment should fail validation, got %v", err)
	}
}

func TestCloneDoesNotAlias(t *testing.T) {
	b := newPending(t)
	_ = b.Accept("worker-1")

	c := b.Clone()
	*c.AssignedWorkerID = "worker-2"
	c.Coordinate.Lat = 0

	if !b.AssignedTo("worker-1") {
		t.Error("mutating the clone changed the original assignment")
	}
	if b.Coordinate.Lat != 41.31 {
		t.Error("mutating the clone changed the original coordinate")
	}
}
