package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"service-hub/internal/domain/booking"
	"service-hub/internal/domain/worker"
	"service-hub/internal/general/contracts"
	"service-hub/internal/general/logger"
	"service-hub/internal/session/alert"
	"service-hub/internal/session/channel"
	"service-hub/internal/session/rest"
)

// fakeChannel records handlers so tests can inject server events, and
// captures everything the session publishes.
type fakeChannel struct {
	mu       sync.Mutex
	handlers map[string]channel.Handler
	events   []string
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{handlers: make(map[string]channel.Handler)}
}

func (c *fakeChannel) Handle(event string, h channel.Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = h
}

func (c *fakeChannel) Publish(event string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

// deliver injects one server event the way the read loop would.
func (c *fakeChannel) deliver(t *testing.T, event string, payload any) {
	t.Helper()
	c.mu.Lock()
	h, ok := c.handlers[event]
	c.mu.Unlock()
	if !ok {
		t.Fatalf("no handler registered for %s", event)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal %s: %v", event, err)
	}
	h(context.Background(), data)
}

// fakeAPI scripts the hub's responses.
type fakeAPI struct {
	mu          sync.Mutex
	snapshot    []contracts.BookingRecord
	acceptErr   error
	accepted    *booking.Booking
	acceptCalls int
	rejectCalls int
}

func (a *fakeAPI) FetchBookings(ctx context.Context) ([]contracts.BookingRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshot, nil
}

func (a *fakeAPI) Accept(ctx context.Context, bookingID, workerID string) (*booking.Booking, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acceptCalls++
	if a.acceptErr != nil {
		return nil, a.acceptErr
	}
	return a.accepted.Clone(), nil
}

func (a *fakeAPI) Reject(ctx context.Context, bookingID, workerID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rejectCalls++
	return nil
}

func (a *fakeAPI) UpdateStatus(ctx context.Context, bookingID string, status booking.Status) (*booking.Booking, error) {
	return nil, errors.New("not scripted")
}

// silentAlerts keeps the alerter quiet and observable.
type silentAlerts struct {
	mu     sync.Mutex
	shown  []string
	hidden int
}

func (n *silentAlerts) Alert(b *booking.Booking) {}

func (n *silentAlerts) ShowBanner(b *booking.Booking) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.shown = append(n.shown, b.ID)
}

func (n *silentAlerts) HideBanner() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.hidden++
}

type sessionFixture struct {
	api     *fakeAPI
	ch      *fakeChannel
	alerts  *silentAlerts
	alerter *alert.Alerter
	sess    *WorkerSession

	mu       sync.Mutex
	raceLost []string
	newReqs  []string
}

func newFixture(t *testing.T) *sessionFixture {
	t.Helper()
	log := logger.New("worker-session-test")
	fx := &sessionFixture{
		api:    &fakeAPI{},
		ch:     newFakeChannel(),
		alerts: &silentAlerts{},
	}
	fx.alerter = alert.New(log, fx.alerts, time.Hour, time.Hour)

	profile, err := worker.NewProfile("worker-1", map[string]worker.VerificationStatus{
		"cleaning": worker.VerificationVerified,
		"plumbing": worker.VerificationPending,
	})
	if err != nil {
		t.Fatalf("NewProfile: %v", err)
	}

	fx.sess = NewWorkerSession(log, WorkerConfig{
		Profile: profile,
		API:     fx.api,
		Channel: fx.ch,
		Alerter: fx.alerter,
		Events: WorkerEvents{
			OnNewRequest: func(b *booking.Booking) {
				fx.mu.Lock()
				fx.newReqs = append(fx.newReqs, b.ID)
				fx.mu.Unlock()
			},
			OnRaceLost: func(b *booking.Booking) {
				fx.mu.Lock()
				fx.raceLost = append(fx.raceLost, b.ID)
				fx.mu.Unlock()
			},
		},
	})
	t.Cleanup(fx.sess.Close)
	return fx
}

func requestEvent(id, category string) contracts.BookingRequestEvent {
	return contracts.BookingRequestEvent{
		Booking: contracts.BookingRecord{
			ID:          id,
			CustomerID:  "cust-1",
			Category:    category,
			ServiceName: "svc",
			Price:       40,
			Status:      booking.StatusPending.String(),
		},
	}
}

func TestEligibleRequestAlertsOnce(t *testing.T) {
	fx := newFixture(t)

	fx.ch.deliver(t, contracts.EventBookingRequest, requestEvent("bk-1", "Cleaning"))

	if got, _ := fx.sess.Store().Get("bk-1"); got == nil {
		t.Fatal("eligible request should land in the store")
	}
	if id, ok := fx.alerter.ActiveBookingID(); !ok || id != "bk-1" {
		t.Errorf("alert should be running for bk-1, got %q %v", id, ok)
	}

	// the at-least-once channel re-delivers: no second alert, no event
	fx.ch.deliver(t, contracts.EventBookingRequest, requestEvent("bk-1", "Cleaning"))

	fx.mu.Lock()
	defer fx.mu.Unlock()
	if len(fx.newReqs) != 1 {
		t.Errorf("redelivery must not re-announce, got %v", fx.newReqs)
	}
}

func TestUnverifiedCategoryNeverSurfaces(t *testing.T) {
	fx := newFixture(t)

	// claimed but unverified: the server should not have sent this, and the
	// session drops it anyway
	fx.ch.deliver(t, contracts.EventBookingRequest, requestEvent("bk-1", "plumbing"))
	// completely unknown category
	fx.ch.deliver(t, contracts.EventBookingRequest, requestEvent("bk-2", "roofing"))

	if fx.sess.Store().Len() != 0 {
		t.Error("ineligible requests must not enter the store")
	}
	if _, ok := fx.alerter.ActiveBookingID(); ok {
		t.Error("ineligible requests must not alert")
	}
}

func TestRefreshFiltersIneligiblePendingOffers(t *testing.T) {
	fx := newFixture(t)

	assigned := "worker-1"
	active := contracts.BookingRecord{
		ID:               "bk-active",
		CustomerID:       "cust-1",
		Category:         "roofing",
		ServiceName:      "svc",
		Price:            80,
		Status:           booking.StatusAccepted.String(),
		AssignedWorkerID: &assigned,
	}
	fx.api.snapshot = []contracts.BookingRecord{
		requestEvent("bk-ok", "Cleaning").Booking,      // verified
		requestEvent("bk-rogue", "roofing").Booking,    // never claimed
		requestEvent("bk-pending", "plumbing").Booking, // claimed, unverified
		active,
	}

	fx.sess.Refresh(context.Background())

	pending := fx.sess.Store().Pending()
	if len(pending) != 1 || pending[0].ID != "bk-ok" {
		ids := make([]string, 0, len(pending))
		for _, b := range pending {
			ids = append(ids, b.ID)
		}
		t.Errorf("only the eligible offer may surface, got %v", ids)
	}
	if got, _ := fx.sess.Store().Get("bk-rogue"); got != nil {
		t.Error("unclaimed-category offer must not enter the store")
	}
	if got, _ := fx.sess.Store().Get("bk-pending"); got != nil {
		t.Error("unverified-category offer must not enter the store")
	}

	// the worker's own active job is not an offer; it passes through
	if got, _ := fx.sess.Store().Get("bk-active"); got == nil || !got.AssignedTo("worker-1") {
		t.Error("non-pending snapshot records must pass through")
	}
}

func TestAcceptStopsAlertAndConfirms(t *testing.T) {
	fx := newFixture(t)
	fx.ch.deliver(t, contracts.EventBookingRequest, requestEvent("bk-1", "cleaning"))

	won, _ := booking.NewBooking("cust-1", "cleaning", "svc", "", 40, nil, nil)
	won.ID = "bk-1"
	_ = won.Accept("worker-1")
	fx.api.accepted = won

	got, err := fx.sess.Accept(context.Background(), "bk-1")
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if !got.AssignedTo("worker-1") {
		t.Error("accepted booking should be assigned to this worker")
	}
	if _, active := fx.alerter.ActiveBookingID(); active {
		t.Error("alert must stop before the network call")
	}
	if stored, _ := fx.sess.Store().Get("bk-1"); stored.Status != booking.StatusAccepted {
		t.Errorf("store should hold the confirmed record, got %s", stored.Status)
	}
}

func TestAcceptConflictRevertsOptimisticState(t *testing.T) {
	fx := newFixture(t)
	fx.ch.deliver(t, contracts.EventBookingRequest, requestEvent("bk-1", "cleaning"))

	fx.api.acceptErr = rest.ErrBookingTaken

	_, err := fx.sess.Accept(context.Background(), "bk-1")
	if !errors.Is(err, rest.ErrBookingTaken) {
		t.Fatalf("Expected ErrBookingTaken, got %v", err)
	}

	// the optimistic claim is rolled back; the card shows PENDING again
	// until the booking:accepted broadcast names the winner
	stored, _ := fx.sess.Store().Get("bk-1")
	if stored.Status != booking.StatusPending {
		t.Errorf("conflict should roll back to PENDING, got %s", stored.Status)
	}
	if stored.AssignedWorkerID != nil {
		t.Error("conflict must not leave a local assignment behind")
	}
}

func TestAcceptedBroadcastForOtherWorkerDismisses(t *testing.T) {
	fx := newFixture(t)
	fx.ch.deliver(t, contracts.EventBookingRequest, requestEvent("bk-1", "cleaning"))

	// this session optimistically claimed it, then the winner broadcast lands
	fx.api.acceptErr = rest.ErrBookingTaken
	_, _ = fx.sess.Accept(context.Background(), "bk-1")

	// restore the optimistic claim to simulate the in-flight window where
	// the broadcast beats the REST error
	_ = fx.sess.Store().ApplyOptimistic("bk-1", func(b *booking.Booking) {
		_ = b.Accept("worker-1")
	})

	fx.ch.deliver(t, contracts.EventBookingAccepted, contracts.BookingAcceptedEvent{
		BookingID: "bk-1",
		WorkerID:  "worker-2",
	})

	stored, _ := fx.sess.Store().Get("bk-1")
	if !stored.AssignedTo("worker-2") {
		t.Error("server's winner should be installed")
	}

	fx.mu.Lock()
	defer fx.mu.Unlock()
	if len(fx.raceLost) != 1 || fx.raceLost[0] != "bk-1" {
		t.Errorf("race loss should be surfaced exactly once, got %v", fx.raceLost)
	}
}

func TestCancelledEventSilencesAndRemovesOffer(t *testing.T) {
	fx := newFixture(t)
	fx.ch.deliver(t, contracts.EventBookingRequest, requestEvent("bk-1", "cleaning"))

	fx.ch.deliver(t, contracts.EventBookingCancelled, contracts.BookingCancelledEvent{
		BookingID: "bk-1",
		Reason:    "changed plans",
	})

	if _, active := fx.alerter.ActiveBookingID(); active {
		t.Error("cancellation must silence the alert")
	}
	stored, _ := fx.sess.Store().Get("bk-1")
	if stored.Status != booking.StatusCancelled {
		t.Errorf("store should hold CANCELLED, got %s", stored.Status)
	}
}

func TestRejectRemovesCardOptimistically(t *testing.T) {
	fx := newFixture(t)
	fx.ch.deliver(t, contracts.EventBookingRequest, requestEvent("bk-1", "cleaning"))

	if err := fx.sess.Reject(context.Background(), "bk-1"); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if fx.api.rejectCalls != 1 {
		t.Errorf("expected one reject call, got %d", fx.api.rejectCalls)
	}
	stored, _ := fx.sess.Store().Get("bk-1")
	if stored.Status != booking.StatusRejected {
		t.Errorf("rejected card should show REJECTED locally, got %s", stored.Status)
	}
}
