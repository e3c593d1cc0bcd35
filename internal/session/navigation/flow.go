package navigation

import (
	"context"
	"errors"
	"sync"
	"time"

	"service-hub/internal/domain/booking"
	"service-hub/internal/general/contracts"
	"service-hub/internal/general/logger"
)

// LocationSource yields the worker's current coordinate. Platform location
// services sit behind this; tests supply a scripted source.
type LocationSource interface {
	Current(ctx context.Context) (booking.GeoPoint, error)
}

// TelemetryPublisher pushes one-way events onto the channel (location pings,
// advisory navigation broadcasts). No acknowledgement is expected.
type TelemetryPublisher interface {
	Publish(event string, payload any) error
}

// StatusAPI is the authoritative transition call. Advisory broadcasts never
// substitute for its response.
type StatusAPI interface {
	UpdateStatus(ctx context.Context, bookingID string, status booking.Status) (*booking.Booking, error)
}

var (
	ErrFlowStopped   = errors.New("navigation flow already discarded")
	ErrNotNavigating = errors.New("navigation not started")
)

// Snapshot is the derived display state of a flow at one point in time.
type Snapshot struct {
	Phase          Phase
	WorkerCoord    *booking.GeoPoint
	CustomerCoord  *booking.GeoPoint
	DistanceKM     float64
	ETAMinutes     int
	WorkStartedAt  *time.Time
	ElapsedWorking time.Duration
}

// Flow tracks one accepted booking through approach, arrival, active work,
// and completion. It owns the periodic location sampler; the sampler is the
// flow's only background resource and Discard stops it idempotently on
// every exit path.
type Flow struct {
	mu  sync.Mutex
	log *logger.Logger

	bookingID string
	workerID  string
	phase     Phase

	source    LocationSource
	publisher TelemetryPublisher
	api       StatusAPI

	sampleInterval time.Duration
	minMoveKM      float64

	workerCoord   *booking.GeoPoint
	customerCoord *booking.GeoPoint
	workStartedAt *time.Time

	stop      chan struct{}
	stopOnce  sync.Once
	discarded bool
}

// Options tunes the sampler. Zero values fall back to conservative defaults.
type Options struct {
	SampleInterval time.Duration
	MinMoveMeters  float64
}

// NewFlow creates the sub-flow for a booking this worker just accepted.
// The customer coordinate seeds from the booking when it carries one.
func NewFlow(log *logger.Logger, b *booking.Booking, workerID string, source LocationSource, publisher TelemetryPublisher, api StatusAPI, opts Options) *Flow {
	if opts.SampleInterval <= 0 {
		opts.SampleInterval = 5 * time.Second
	}
	if opts.MinMoveMeters <= 0 {
		opts.MinMoveMeters = 15
	}

	f := &Flow{
		log:            log,
		bookingID:      b.ID,
		workerID:       workerID,
		phase:          PhaseIdle,
		source:         source,
		publisher:      publisher,
		api:            api,
		sampleInterval: opts.SampleInterval,
		minMoveKM:      opts.MinMoveMeters / 1000.0,
		stop:           make(chan struct{}),
	}
	if b.Coordinate != nil {
		pt := *b.Coordinate
		f.customerCoord = &pt
	}
	return f
}

// BookingID returns the booking this flow tracks.
func (f *Flow) BookingID() string { return f.bookingID }

// Phase returns the current sub-state.
func (f *Flow) Phase() Phase {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.phase
}

// Start moves IDLE -> NAVIGATING and begins the location sampler. Local
// only; no REST transition backs it.
func (f *Flow) Start(ctx context.Context) error {
	f.mu.Lock()
	if f.discarded {
		f.mu.Unlock()
		return ErrFlowStopped
	}
	if !f.phase.CanTransitionTo(PhaseNavigating) {
		f.mu.Unlock()
		return ErrInvalidPhaseTransition
	}
	f.phase = PhaseNavigating
	f.mu.Unlock()

	f.advisory(contracts.EventNavigationStarted)
	go f.sampleLoop(ctx)

	f.log.Info(ctx, "navigation_started", "Worker started navigating to the job",
		map[string]any{"booking_id": f.bookingID, "worker_id": f.workerID})
	return nil
}

// Arrive moves NAVIGATING -> ARRIVED, server-confirmed. The phase only
// advances once the backend accepted the transition.
func (f *Flow) Arrive(ctx context.Context) (*booking.Booking, error) {
	if err := f.checkPhase(PhaseArrived); err != nil {
		return nil, err
	}

	updated, err := f.api.UpdateStatus(ctx, f.bookingID, booking.StatusArrived)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.phase = PhaseArrived
	f.mu.Unlock()

	f.advisory(contracts.EventNavigationArrived)
	return updated, nil
}

// StartWork moves ARRIVED -> WORKING, server-confirmed, and records the
// work-start timestamp used to derive elapsed duration.
func (f *Flow) StartWork(ctx context.Context) (*booking.Booking, error) {
	if err := f.checkPhase(PhaseWorking); err != nil {
		return nil, err
	}

	updated, err := f.api.UpdateStatus(ctx, f.bookingID, booking.StatusWorking)
	if err != nil {
		return nil, err
	}

	started := time.Now().UTC()
	if updated.StartedAt != nil {
		started = *updated.StartedAt
	}

	f.mu.Lock()
	f.phase = PhaseWorking
	f.workStartedAt = &started
	f.mu.Unlock()

	f.advisory(contracts.EventWorkStarted)
	return updated, nil
}

// Complete moves WORKING -> COMPLETED, server-confirmed. This is the only
// transition that also drives the booking's top-level status terminal; the
// caller installs the returned record into its store. The sampler stops.
func (f *Flow) Complete(ctx context.Context) (*booking.Booking, error) {
	if err := f.checkPhase(PhaseCompleted); err != nil {
		return nil, err
	}

	updated, err := f.api.UpdateStatus(ctx, f.bookingID, booking.StatusCompleted)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.phase = PhaseCompleted
	f.mu.Unlock()

	f.advisory(contracts.EventWorkCompleted)
	f.advisory(contracts.EventNavigationEnded)
	f.stopSampler()

	f.log.Info(ctx, "work_completed", "Worker completed the job",
		map[string]any{"booking_id": f.bookingID, "worker_id": f.workerID})
	return updated, nil
}

// Discard tears the flow down without completing: requester cancellation,
// screen unmount, app background. Sampling stops immediately; the
// NavigationState is dead after this. Safe to call multiple times.
func (f *Flow) Discard() {
	f.mu.Lock()
	f.discarded = true
	f.mu.Unlock()
	f.stopSampler()
}

// Discarded reports whether the flow was torn down.
func (f *Flow) Discarded() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.discarded
}

// SetCustomerCoordinate feeds the customer's last known position (from
// user:location events) into the distance/ETA estimate.
func (f *Flow) SetCustomerCoordinate(pt booking.GeoPoint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.customerCoord = &pt
}

// Snapshot derives the current display state. Distance is great-circle over
// the two coordinates; ETA is a coarse linear estimate, a display aid only.
func (f *Flow) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()

	snap := Snapshot{
		Phase:         f.phase,
		WorkerCoord:   f.workerCoord,
		CustomerCoord: f.customerCoord,
		WorkStartedAt: f.workStartedAt,
	}
	if f.workerCoord != nil && f.customerCoord != nil {
		snap.DistanceKM = booking.HaversineKM(
			f.workerCoord.Lat, f.workerCoord.Lng,
			f.customerCoord.Lat, f.customerCoord.Lng,
		)
		snap.ETAMinutes = booking.EstimateETAMinutes(snap.DistanceKM)
	}
	if f.workStartedAt != nil && f.phase == PhaseWorking {
		snap.ElapsedWorking = time.Since(*f.workStartedAt)
	}
	return snap
}

// ----- sampler -----

// sampleLoop reads the location source on a fixed interval and forwards the
// coordinate, thresholded by minimum movement so a stationary worker does
// not spam the channel.
func (f *Flow) sampleLoop(ctx context.Context) {
	ticker := time.NewTicker(f.sampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-f.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.sampleOnce(ctx)
		}
	}
}

func (f *Flow) sampleOnce(ctx context.Context) {
	pt, err := f.source.Current(ctx)
	if err != nil {
		// keep the last known coordinate; the display freezes rather than fails
		f.log.Debug(ctx, "location_sample_failed", "Location source returned no fix",
			map[string]any{"booking_id": f.bookingID, "error": err.Error()})
		return
	}

	f.mu.Lock()
	prev := f.workerCoord
	if prev != nil && booking.HaversineKM(prev.Lat, prev.Lng, pt.Lat, pt.Lng) < f.minMoveKM {
		f.mu.Unlock()
		return
	}
	f.workerCoord = &pt
	f.mu.Unlock()

	msg := contracts.LocationUpdateMessage{
		BookingID: f.bookingID,
		ActorID:   f.workerID,
		Location:  contracts.GeoPoint{Lat: pt.Lat, Lng: pt.Lng},
		Timestamp: time.Now().UTC(),
		Envelope:  contracts.Envelope{Producer: "worker-session", SentAt: time.Now().UTC()},
	}
	if err := f.publisher.Publish(contracts.EventWorkerLocation, msg); err != nil {
		f.log.Debug(ctx, "location_publish_failed", "Failed to publish location update",
			map[string]any{"booking_id": f.bookingID, "error": err.Error()})
	}
}

// stopSampler closes the stop channel exactly once.
func (f *Flow) stopSampler() {
	f.stopOnce.Do(func() { close(f.stop) })
}

// checkPhase validates the transition without racing the sampler.
func (f *Flow) checkPhase(next Phase) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.discarded {
		return ErrFlowStopped
	}
	if !f.phase.CanTransitionTo(next) {
		return ErrInvalidPhaseTransition
	}
	return nil
}

// advisory publishes a best-effort navigation broadcast.
func (f *Flow) advisory(event string) {
	msg := contracts.NavigationEvent{
		BookingID: f.bookingID,
		WorkerID:  f.workerID,
		Timestamp: time.Now().UTC(),
		Envelope:  contracts.Envelope{Producer: "worker-session", SentAt: time.Now().UTC()},
	}
	if err := f.publisher.Publish(event, msg); err != nil {
		f.log.Debug(context.Background(), "advisory_publish_failed", "Failed to publish advisory event",
			map[string]any{"booking_id": f.bookingID, "event": event, "error": err.Error()})
	}
}
