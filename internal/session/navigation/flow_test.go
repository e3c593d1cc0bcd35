package navigation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"service-hub/internal/domain/booking"
	"service-hub/internal/general/contracts"
	"service-hub/internal/general/logger"
)

// fixedSource returns a settable coordinate.
type fixedSource struct {
	mu  sync.Mutex
	pt  booking.GeoPoint
	err error
}

func (s *fixedSource) Current(ctx context.Context) (booking.GeoPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pt, s.err
}

func (s *fixedSource) set(pt booking.GeoPoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pt = pt
}

// capturingPublisher records every published event.
type capturingPublisher struct {
	mu     sync.Mutex
	events []string
	pings  []contracts.LocationUpdateMessage
}

func (p *capturingPublisher) Publish(event string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	if msg, ok := payload.(contracts.LocationUpdateMessage); ok {
		p.pings = append(p.pings, msg)
	}
	return nil
}

func (p *capturingPublisher) pingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pings)
}

func (p *capturingPublisher) sawEvent(event string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.events {
		if e == event {
			return true
		}
	}
	return false
}

// scriptedAPI confirms transitions by applying them to a held booking.
type scriptedAPI struct {
	mu  sync.Mutex
	b   *booking.Booking
	err error
}

func (a *scriptedAPI) UpdateStatus(ctx context.Context, bookingID string, status booking.Status) (*booking.Booking, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return nil, a.err
	}
	switch status {
	case booking.StatusArrived:
		if err := a.b.MarkArrived(); err != nil {
			return nil, err
		}
	case booking.StatusWorking:
		if err := a.b.StartWork(); err != nil {
			return nil, err
		}
	case booking.StatusCompleted:
		if err := a.b.Complete(); err != nil {
			return nil, err
		}
	}
	return a.b.Clone(), nil
}

func acceptedBooking(t *testing.T) *booking.Booking {
	t.Helper()
	b, err := booking.NewBooking("cust-1", "cleaning", "svc", "addr", 10,
		&booking.GeoPoint{Lat: 41.31, Lng: 69.28}, nil)
	if err != nil {
		t.Fatalf("NewBooking: %v", err)
	}
	b.ID = "bk-1"
	if err := b.Accept("worker-1"); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	return b
}

func newTestFlow(t *testing.T, src LocationSource, pub TelemetryPublisher, api StatusAPI, opts Options) *Flow {
	t.Helper()
	return NewFlow(logger.New("nav-test"), acceptedBooking(t), "worker-1", src, pub, api, opts)
}

func TestPhaseGating(t *testing.T) {
	api := &scriptedAPI{b: acceptedBooking(t)}
	f := newTestFlow(t, &fixedSource{}, &capturingPublisher{}, api, Options{SampleInterval: time.Hour})
	defer f.Discard()
	ctx := context.Background()

	// cannot arrive before navigating
	if _, err := f.Arrive(ctx); !errors.Is(err, ErrInvalidPhaseTransition) {
		t.Errorf("Arrive from IDLE should fail, got %v", err)
	}

	if err := f.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if f.Phase() != PhaseNavigating {
		t.Errorf("Expected NAVIGATING, got %s", f.Phase())
	}

	// cannot start work before arriving
	if _, err := f.StartWork(ctx); !errors.Is(err, ErrInvalidPhaseTransition) {
		t.Errorf("StartWork from NAVIGATING should fail, got %v", err)
	}

	if _, err := f.Arrive(ctx); err != nil {
		t.Fatalf("Arrive: %v", err)
	}
	if _, err := f.StartWork(ctx); err != nil {
		t.Fatalf("StartWork: %v", err)
	}
	updated, err := f.Complete(ctx)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if updated.Status != booking.StatusCompleted {
		t.Errorf("Expected COMPLETED, got %s", updated.Status)
	}
	if f.Phase() != PhaseCompleted {
		t.Errorf("Expected phase COMPLETED, got %s", f.Phase())
	}
}

func TestServerRejectionKeepsPhase(t *testing.T) {
	api := &scriptedAPI{b: acceptedBooking(t), err: errors.New("backend down")}
	f := newTestFlow(t, &fixedSource{}, &capturingPublisher{}, api, Options{SampleInterval: time.Hour})
	defer f.Discard()
	ctx := context.Background()

	if err := f.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := f.Arrive(ctx); err == nil {
		t.Fatal("Arrive should surface the backend error")
	}
	// the advisory phase never advances ahead of the server
	if f.Phase() != PhaseNavigating {
		t.Errorf("phase must stay NAVIGATING after a rejected transition, got %s", f.Phase())
	}
}

func TestSamplerPublishesAndThresholds(t *testing.T) {
	src := &fixedSource{pt: booking.GeoPoint{Lat: 41.0, Lng: 69.0}}
	pub := &capturingPublisher{}
	api := &scriptedAPI{b: acceptedBooking(t)}
	f := newTestFlow(t, src, pub, api, Options{SampleInterval: 10 * time.Millisecond, MinMoveMeters: 15})
	defer f.Discard()

	if err := f.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// first fix always publishes
	waitFor(t, time.Second, func() bool { return pub.pingCount() >= 1 })
	base := pub.pingCount()

	// stationary worker: below the minimum-move threshold, no further pings
	time.Sleep(60 * time.Millisecond)
	if pub.pingCount() != base {
		t.Errorf("stationary samples should be suppressed, got %d extra", pub.pingCount()-base)
	}

	// a real move publishes again
	src.set(booking.GeoPoint{Lat: 41.01, Lng: 69.0}) // ~1.1 km
	waitFor(t, time.Second, func() bool { return pub.pingCount() > base })
}

func TestDiscardStopsSampler(t *testing.T) {
	src := &fixedSource{pt: booking.GeoPoint{Lat: 41.0, Lng: 69.0}}
	pub := &capturingPublisher{}
	f := newTestFlow(t, src, pub, &scriptedAPI{b: acceptedBooking(t)},
		Options{SampleInterval: 10 * time.Millisecond})

	if err := f.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, time.Second, func() bool { return pub.pingCount() >= 1 })

	f.Discard()
	if !f.Discarded() {
		t.Error("flow should report discarded")
	}

	count := pub.pingCount()
	time.Sleep(50 * time.Millisecond)
	if pub.pingCount() != count {
		t.Error("sampler kept publishing after Discard")
	}

	// a discarded flow refuses everything
	if err := f.Start(context.Background()); !errors.Is(err, ErrFlowStopped) {
		t.Errorf("Start after Discard should fail, got %v", err)
	}
	if _, err := f.Arrive(context.Background()); !errors.Is(err, ErrFlowStopped) {
		t.Errorf("Arrive after Discard should fail, got %v", err)
	}

	// Discard is idempotent
	f.Discard()
}

func TestSnapshotDerivesDistanceAndETA(t *testing.T) {
	src := &fixedSource{pt: booking.GeoPoint{Lat: 41.0, Lng: 69.0}}
	pub := &capturingPublisher{}
	f := newTestFlow(t, src, pub, &scriptedAPI{b: acceptedBooking(t)},
		Options{SampleInterval: 10 * time.Millisecond})
	defer f.Discard()

	// customer coordinate seeds from the booking; worker appears after a sample
	if err := f.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, time.Second, func() bool { return f.Snapshot().WorkerCoord != nil })

	snap := f.Snapshot()
	if snap.CustomerCoord == nil {
		t.Fatal("customer coordinate should seed from the booking")
	}
	if snap.DistanceKM <= 0 {
		t.Errorf("distance should be positive, got %f", snap.DistanceKM)
	}
	if snap.ETAMinutes < 1 {
		t.Errorf("eta should be at least a minute, got %d", snap.ETAMinutes)
	}

	// the customer moved; the estimate follows
	f.SetCustomerCoordinate(booking.GeoPoint{Lat: 41.0, Lng: 69.0})
	if d := f.Snapshot().DistanceKM; d != 0 {
		t.Errorf("coincident coordinates should give 0 distance, got %f", d)
	}
}

func TestAdvisoriesPublished(t *testing.T) {
	pub := &capturingPublisher{}
	api := &scriptedAPI{b: acceptedBooking(t)}
	f := newTestFlow(t, &fixedSource{}, pub, api, Options{SampleInterval: time.Hour})
	ctx := context.Background()

	if err := f.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := f.Arrive(ctx); err != nil {
		t.Fatalf("Arrive: %v", err)
	}
	if _, err := f.StartWork(ctx); err != nil {
		t.Fatalf("StartWork: %v", err)
	}
	if _, err := f.Complete(ctx); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	for _, event := range []string{
		contracts.EventNavigationStarted,
		contracts.EventNavigationArrived,
		contracts.EventWorkStarted,
		contracts.EventWorkCompleted,
		contracts.EventNavigationEnded,
	} {
		if !pub.sawEvent(event) {
			t.Errorf("advisory %s was not published", event)
		}
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}
