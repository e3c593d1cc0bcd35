package store

import (
	"context"
	"errors"
	"testing"

	"service-hub/internal/domain/booking"
	"service-hub/internal/general/contracts"
	"service-hub/internal/general/logger"
)

func newStore(t *testing.T, selfID string) *Store {
	t.Helper()
	return New(logger.New("store-test"), selfID)
}

func pendingRecord(id string) contracts.BookingRecord {
	return contracts.BookingRecord{
		ID:          id,
		CustomerID:  "cust-1",
		Category:    "cleaning",
		ServiceName: "deep clean",
		Price:       50,
		Status:      booking.StatusPending.String(),
	}
}

func TestApplyDeltaInsertsUnknownBooking(t *testing.T) {
	s := newStore(t, "worker-1")
	ctx := context.Background()

	res, err := s.ApplyDelta(ctx, pendingRecord("bk-1"))
	if err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}
	if res.Outcome != OutcomeInserted {
		t.Errorf("Expected inserted, got %s", res.Outcome)
	}
	if s.Len() != 1 {
		t.Errorf("Expected 1 entry, got %d", s.Len())
	}
}

func TestApplyDeltaDuplicateIsNoOp(t *testing.T) {
	s := newStore(t, "worker-1")
	ctx := context.Background()

	if _, err := s.ApplyDelta(ctx, pendingRecord("bk-1")); err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}
	res, err := s.ApplyDelta(ctx, pendingRecord("bk-1"))
	if err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}
	if res.Outcome != OutcomeDuplicate {
		t.Errorf("Expected duplicate, got %s", res.Outcome)
	}
	if s.Len() != 1 {
		t.Errorf("re-delivery must not add entries, got %d", s.Len())
	}
}

func TestApplyDeltaStaleDiscarded(t *testing.T) {
	s := newStore(t, "worker-1")
	ctx := context.Background()

	rec := pendingRecord("bk-1")
	rec.Status = booking.StatusWorking.String()
	w := "worker-1"
	rec.AssignedWorkerID = &w
	if _, err := s.ApplyDelta(ctx, rec); err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}

	// an out-of-order ACCEPTED arrives after WORKING
	late := pendingRecord("bk-1")
	late.Status = booking.StatusAccepted.String()
	res, err := s.ApplyDelta(ctx, late)
	if err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}
	if res.Outcome != OutcomeStale {
		t.Errorf("Expected stale, got %s", res.Outcome)
	}

	got, _ := s.Get("bk-1")
	if got.Status != booking.StatusWorking {
		t.Errorf("stale delta must not regress status, got %s", got.Status)
	}
}

func TestApplyDeltaTerminalIsAbsorbing(t *testing.T) {
	s := newStore(t, "worker-1")
	ctx := context.Background()

	rec := pendingRecord("bk-1")
	if _, err := s.ApplyDelta(ctx, rec); err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}

	cancelled := pendingRecord("bk-1")
	cancelled.Status = booking.StatusCancelled.String()
	if _, err := s.ApplyDelta(ctx, cancelled); err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}

	// anything after a terminal state is discarded
	accepted := pendingRecord("bk-1")
	accepted.Status = booking.StatusAccepted.String()
	res, err := s.ApplyDelta(ctx, accepted)
	if err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}
	if res.Outcome != OutcomeTerminalConflict {
		t.Errorf("Expected terminal_conflict, got %s", res.Outcome)
	}

	got, _ := s.Get("bk-1")
	if got.Status != booking.StatusCancelled {
		t.Errorf("terminal state must be kept, got %s", got.Status)
	}
}

func TestOptimisticOverlayAndRevert(t *testing.T) {
	s := newStore(t, "worker-1")
	ctx := context.Background()

	if _, err := s.ApplyDelta(ctx, pendingRecord("bk-1")); err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}

	err := s.ApplyOptimistic("bk-1", func(b *booking.Booking) {
		_ = b.Accept("worker-1")
	})
	if err != nil {
		t.Fatalf("ApplyOptimistic: %v", err)
	}

	got, _ := s.Get("bk-1")
	if got.Status != booking.StatusAccepted || !got.AssignedTo("worker-1") {
		t.Errorf("read should see the overlay, got %s", got.Status)
	}

	if err := s.Revert("bk-1"); err != nil {
		t.Fatalf("Revert: %v", err)
	}
	got, _ = s.Get("bk-1")
	if got.Status != booking.StatusPending {
		t.Errorf("revert should restore the baseline, got %s", got.Status)
	}

	if err := s.Revert("bk-1"); !errors.Is(err, ErrNoOptimistic) {
		t.Errorf("Expected ErrNoOptimistic, got %v", err)
	}
	if err := s.ApplyOptimistic("missing", func(*booking.Booking) {}); !errors.Is(err, ErrUnknownBooking) {
		t.Errorf("Expected ErrUnknownBooking, got %v", err)
	}
}

func TestRaceLostOutcome(t *testing.T) {
	s := newStore(t, "worker-1")
	ctx := context.Background()

	if _, err := s.ApplyDelta(ctx, pendingRecord("bk-1")); err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}
	// this session claims optimistically...
	if err := s.ApplyOptimistic("bk-1", func(b *booking.Booking) {
		_ = b.Accept("worker-1")
	}); err != nil {
		t.Fatalf("ApplyOptimistic: %v", err)
	}

	// ...but the server assigned someone else
	other := "worker-2"
	rec := pendingRecord("bk-1")
	rec.Status = booking.StatusAccepted.String()
	rec.AssignedWorkerID = &other

	res, err := s.ApplyDelta(ctx, rec)
	if err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}
	if res.Outcome != OutcomeRaceLost {
		t.Errorf("Expected race_lost, got %s", res.Outcome)
	}
	got, _ := s.Get("bk-1")
	if !got.AssignedTo("worker-2") {
		t.Error("confirmed assignment should be the server's winner")
	}
}

func TestConfirmReplacesBaselineAndClearsOverlay(t *testing.T) {
	s := newStore(t, "worker-1")
	ctx := context.Background()

	if _, err := s.ApplyDelta(ctx, pendingRecord("bk-1")); err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}
	_ = s.ApplyOptimistic("bk-1", func(b *booking.Booking) {
		_ = b.Accept("worker-1")
	})

	confirmed, _ := booking.NewBooking("cust-1", "cleaning", "deep clean", "", 50, nil, nil)
	confirmed.ID = "bk-1"
	_ = confirmed.Accept("worker-1")
	s.Confirm(confirmed)

	got, _ := s.Get("bk-1")
	if got.Status != booking.StatusAccepted || !got.AssignedTo("worker-1") {
		t.Errorf("confirm should install the server record, got %s", got.Status)
	}
	if err := s.Revert("bk-1"); !errors.Is(err, ErrNoOptimistic) {
		t.Error("confirm should clear the overlay")
	}
}

func TestSnapshotKeepsTerminalState(t *testing.T) {
	s := newStore(t, "")
	ctx := context.Background()

	rec := pendingRecord("bk-1")
	rec.Status = booking.StatusCancelled.String()
	if _, err := s.ApplyDelta(ctx, rec); err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}

	// a stale snapshot still lists the booking as pending
	s.ApplySnapshot(ctx, []contracts.BookingRecord{pendingRecord("bk-1")})

	got, _ := s.Get("bk-1")
	if got.Status != booking.StatusCancelled {
		t.Errorf("snapshot must not resurrect a terminal booking, got %s", got.Status)
	}
}

func TestSnapshotInsertsAndOrders(t *testing.T) {
	s := newStore(t, "")
	ctx := context.Background()

	s.ApplySnapshot(ctx, []contracts.BookingRecord{
		pendingRecord("bk-1"),
		pendingRecord("bk-2"),
	})

	list := s.List()
	if len(list) != 2 {
		t.Fatalf("Expected 2 bookings, got %d", len(list))
	}
	if list[0].ID != "bk-1" || list[1].ID != "bk-2" {
		t.Error("List should preserve insertion order")
	}
	if len(s.Pending()) != 2 {
		t.Errorf("both bookings are pending, got %d", len(s.Pending()))
	}
}

func TestApplyDeltaRejectsMissingID(t *testing.T) {
	s := newStore(t, "")
	if _, err := s.ApplyDelta(context.Background(), contracts.BookingRecord{}); !errors.Is(err, ErrMissingBookingID) {
		t.Errorf("Expected ErrMissingBookingID, got %v", err)
	}
}
