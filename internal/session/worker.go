package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"service-hub/internal/domain/booking"
	"service-hub/internal/domain/worker"
	"service-hub/internal/general/contracts"
	"service-hub/internal/general/logger"
	"service-hub/internal/session/alert"
	"service-hub/internal/session/channel"
	"service-hub/internal/session/navigation"
	"service-hub/internal/session/rest"
	"service-hub/internal/session/store"
)

// WorkerAPI is the slice of the REST surface a worker session uses.
type WorkerAPI interface {
	FetchBookings(ctx context.Context) ([]contracts.BookingRecord, error)
	Accept(ctx context.Context, bookingID, workerID string) (*booking.Booking, error)
	Reject(ctx context.Context, bookingID, workerID string) error
	UpdateStatus(ctx context.Context, bookingID string, status booking.Status) (*booking.Booking, error)
}

// EventChannel is the slice of the channel client a session binds handlers
// to and publishes telemetry through.
type EventChannel interface {
	Handle(event string, h channel.Handler)
	Publish(event string, payload any) error
}

// WorkerEvents are optional presentation hooks. All run on the channel read
// loop; keep them fast.
type WorkerEvents struct {
	OnNewRequest func(b *booking.Booking)          // an eligible request reached this session
	OnRaceLost   func(b *booking.Booking)          // someone else accepted first
	OnCancelled  func(bookingID, reason string)    // requester cancelled an offered/active job
	OnUpdated    func(b *booking.Booking)          // any other reconciled change
	OnNavUpdate  func(snap navigation.Snapshot)    // distance/ETA recomputed
}

// WorkerSession wires the client core together for one worker: eligibility
// re-check, reconciliation store, alert timer, navigation flows, and the
// optimistic-call-then-confirm discipline around every REST transition.
type WorkerSession struct {
	log     *logger.Logger
	profile *worker.Profile
	store   *store.Store
	alerter *alert.Alerter
	api     WorkerAPI
	channel EventChannel
	events  WorkerEvents

	locSource navigation.LocationSource
	navOpts   navigation.Options

	refetch *store.Coalescer

	mu    sync.Mutex
	flows map[string]*navigation.Flow
}

// WorkerConfig collects the session's collaborators.
type WorkerConfig struct {
	Profile        *worker.Profile
	API            WorkerAPI
	Channel        EventChannel
	Alerter        *alert.Alerter
	LocationSource navigation.LocationSource
	Navigation     navigation.Options
	RefetchWindow  time.Duration // delta->snapshot coalesce window
	Events         WorkerEvents
}

// NewWorkerSession builds the session and registers its channel handlers.
func NewWorkerSession(log *logger.Logger, cfg WorkerConfig) *WorkerSession {
	if cfg.RefetchWindow <= 0 {
		cfg.RefetchWindow = 500 * time.Millisecond
	}

	ws := &WorkerSession{
		log:       log,
		profile:   cfg.Profile,
		store:     store.New(log, cfg.Profile.ID),
		alerter:   cfg.Alerter,
		api:       cfg.API,
		channel:   cfg.Channel,
		events:    cfg.Events,
		locSource: cfg.LocationSource,
		navOpts:   cfg.Navigation,
		flows:     make(map[string]*navigation.Flow),
	}

	ws.refetch = store.NewCoalescer(cfg.RefetchWindow, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		ws.Refresh(ctx)
	})

	ws.channel.Handle(contracts.EventBookingRequest, ws.handleBookingRequest)
	ws.channel.Handle(contracts.EventBookingAccepted, ws.handleBookingAccepted)
	ws.channel.Handle(contracts.EventBookingUpdated, ws.handleBookingUpdated)
	ws.channel.Handle(contracts.EventBookingCancelled, ws.handleBookingCancelled)
	ws.channel.Handle(contracts.EventUserLocation, ws.handleUserLocation)

	return ws
}

// Store exposes the reconciliation store for presentation reads.
func (ws *WorkerSession) Store() *store.Store { return ws.store }

// Refresh pulls the authoritative snapshot and merges it. Pending offers
// are re-checked against the profile first; the snapshot path upholds the
// same trust boundary as booking:request deltas, whatever the server sent.
func (ws *WorkerSession) Refresh(ctx context.Context) {
	records, err := ws.api.FetchBookings(ctx)
	if err != nil {
		ws.log.Error(ctx, "snapshot_fetch_failed", "Failed to fetch booking snapshot", err, nil)
		return
	}
	ws.store.ApplySnapshot(ctx, ws.eligibleRecords(ctx, records))
}

// eligibleRecords drops pending offers this session is not eligible for.
// Non-pending records pass through untouched: accepted and active jobs
// belong to this worker already, and terminal history is not an offer.
func (ws *WorkerSession) eligibleRecords(ctx context.Context, records []contracts.BookingRecord) []contracts.BookingRecord {
	kept := make([]contracts.BookingRecord, 0, len(records))
	for _, rec := range records {
		b, err := rec.ToDomain()
		if err != nil {
			ws.log.Error(ctx, "snapshot_record_malformed", "Dropped snapshot record with bad fields", err,
				map[string]any{"booking_id": rec.ID})
			continue
		}
		if b.Status == booking.StatusPending && !worker.IsEligible(b, ws.profile) {
			ws.log.Info(ctx, "snapshot_record_ineligible", "Dropped pending snapshot booking this session is not eligible for",
				map[string]any{"booking_id": b.ID, "category": b.Category})
			continue
		}
		kept = append(kept, rec)
	}
	return kept
}

// Accept claims a pending booking. The alert stops synchronously before the
// network call so the user hears silence immediately; the pending card is
// removed optimistically and restored if the call fails. A conflict is the
// race-loss outcome, reported via rest.ErrBookingTaken.
func (ws *WorkerSession) Accept(ctx context.Context, bookingID string) (*booking.Booking, error) {
	ws.alerter.Stop()

	optimistic := ws.store.ApplyOptimistic(bookingID, func(b *booking.Booking) {
		_ = b.Accept(ws.profile.ID)
	}) == nil

	updated, err := ws.api.Accept(ctx, bookingID, ws.profile.ID)
	if err != nil {
		if optimistic {
			_ = ws.store.Revert(bookingID)
		}
		if errors.Is(err, rest.ErrBookingTaken) {
			ws.log.Info(ctx, "accept_race_lost", "Booking was accepted by another worker",
				map[string]any{"booking_id": bookingID, "worker_id": ws.profile.ID})
			return nil, err
		}
		ws.log.Error(ctx, "accept_failed", "Accept call failed; optimistic state rolled back", err,
			map[string]any{"booking_id": bookingID})
		return nil, err
	}

	// defensive: never adopt a confirmation that assigns someone else
	if !updated.AssignedTo(ws.profile.ID) {
		if optimistic {
			_ = ws.store.Revert(bookingID)
		}
		ws.log.Error(ctx, "accept_conflict", "Accept response assigned a different worker", rest.ErrBookingTaken,
			map[string]any{"booking_id": bookingID})
		return nil, rest.ErrBookingTaken
	}

	ws.store.Confirm(updated)
	ws.openFlow(updated)

	ws.log.Info(ws.log.WithBookingID(ctx, bookingID), "booking_accepted", "Booking accepted and confirmed",
		map[string]any{"worker_id": ws.profile.ID})
	return updated, nil
}

// Reject declines a pending booking. Locally the card disappears at once;
// the backend re-broadcasts the request to other workers.
func (ws *WorkerSession) Reject(ctx context.Context, bookingID string) error {
	ws.alerter.Stop()

	optimistic := ws.store.ApplyOptimistic(bookingID, func(b *booking.Booking) {
		_ = b.Reject()
	}) == nil

	if err := ws.api.Reject(ctx, bookingID, ws.profile.ID); err != nil {
		if optimistic {
			_ = ws.store.Revert(bookingID)
		}
		ws.log.Error(ctx, "reject_failed", "Reject call failed; optimistic state rolled back", err,
			map[string]any{"booking_id": bookingID})
		return err
	}
	return nil
}

// StartNavigation begins the approach flow for an accepted booking.
func (ws *WorkerSession) StartNavigation(ctx context.Context, bookingID string) error {
	f, ok := ws.flow(bookingID)
	if !ok {
		return store.ErrUnknownBooking
	}
	return f.Start(ctx)
}

// Arrive marks the worker on site, server-confirmed.
func (ws *WorkerSession) Arrive(ctx context.Context, bookingID string) error {
	return ws.advanceFlow(ctx, bookingID, (*navigation.Flow).Arrive)
}

// StartWork begins the active work phase, server-confirmed.
func (ws *WorkerSession) StartWork(ctx context.Context, bookingID string) error {
	return ws.advanceFlow(ctx, bookingID, (*navigation.Flow).StartWork)
}

// CompleteWork finishes the job. The confirmed terminal record lands in the
// store and the navigation state is discarded.
func (ws *WorkerSession) CompleteWork(ctx context.Context, bookingID string) error {
	f, ok := ws.flow(bookingID)
	if !ok {
		return store.ErrUnknownBooking
	}
	updated, err := f.Complete(ctx)
	if err != nil {
		return err
	}
	ws.store.Confirm(updated)
	ws.closeFlow(bookingID)
	return nil
}

// NavigationSnapshot returns the derived display state for an active flow.
func (ws *WorkerSession) NavigationSnapshot(bookingID string) (navigation.Snapshot, bool) {
	f, ok := ws.flow(bookingID)
	if !ok {
		return navigation.Snapshot{}, false
	}
	return f.Snapshot(), true
}

// Close releases the session's continuously running resources: the alert
// timer, every sampler, and the refetch coalescer. Idempotent.
func (ws *WorkerSession) Close() {
	ws.alerter.Stop()
	ws.refetch.Stop()

	ws.mu.Lock()
	flows := make([]*navigation.Flow, 0, len(ws.flows))
	for _, f := range ws.flows {
		flows = append(flows, f)
	}
	ws.flows = make(map[string]*navigation.Flow)
	ws.mu.Unlock()

	for _, f := range flows {
		f.Discard()
	}
}

// ----- channel handlers -----

func (ws *WorkerSession) handleBookingRequest(ctx context.Context, data json.RawMessage) {
	var ev contracts.BookingRequestEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		ws.log.Error(ctx, "booking_request_malformed", "Dropped malformed booking:request", err, nil)
		return
	}

	b, err := ev.Booking.ToDomain()
	if err != nil {
		ws.log.Error(ctx, "booking_request_malformed", "Dropped booking:request with bad record", err,
			map[string]any{"booking_id": ev.Booking.ID})
		return
	}
	if err := b.Validate(); err != nil {
		ws.log.Error(ctx, "booking_request_invalid", "Dropped booking:request violating invariants", err,
			map[string]any{"booking_id": b.ID})
		return
	}

	// the hub filters first; the session re-checks anyway. An unverified
	// category must never alert or display, whatever the server sent.
	if !worker.IsEligible(b, ws.profile) {
		ws.log.Info(ctx, "booking_request_ineligible", "Dropped booking:request this session is not eligible for",
			map[string]any{"booking_id": b.ID, "category": b.Category})
		return
	}

	res, err := ws.store.ApplyDelta(ctx, ev.Booking)
	if err != nil {
		ws.log.Error(ctx, "booking_request_discarded", "Failed to apply booking:request", err,
			map[string]any{"booking_id": b.ID})
		return
	}

	// the at-least-once channel re-delivers; only a first sighting alerts
	if res.Outcome != store.OutcomeInserted {
		return
	}

	ws.alerter.Enqueue(res.Booking)
	if ws.events.OnNewRequest != nil {
		ws.events.OnNewRequest(res.Booking)
	}
}

func (ws *WorkerSession) handleBookingAccepted(ctx context.Context, data json.RawMessage) {
	var ev contracts.BookingAcceptedEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		ws.log.Error(ctx, "booking_accepted_malformed", "Dropped malformed booking:accepted", err, nil)
		return
	}

	rec := contracts.BookingRecord{
		ID:               ev.BookingID,
		Status:           booking.StatusAccepted.String(),
		AssignedWorkerID: &ev.WorkerID,
	}
	res, err := ws.store.ApplyDelta(ctx, rec)
	if err != nil {
		ws.log.Error(ctx, "booking_accepted_discarded", "Failed to apply booking:accepted", err,
			map[string]any{"booking_id": ev.BookingID})
		return
	}

	if ev.WorkerID != ws.profile.ID {
		// the job went to someone else: stop presenting it
		ws.alerter.Dismiss(ev.BookingID)
		if res.Outcome == store.OutcomeRaceLost && ws.events.OnRaceLost != nil {
			ws.events.OnRaceLost(res.Booking)
		}
	}
}

func (ws *WorkerSession) handleBookingUpdated(ctx context.Context, data json.RawMessage) {
	var ev contracts.BookingUpdatedEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		ws.log.Error(ctx, "booking_updated_malformed", "Dropped malformed booking:updated", err, nil)
		return
	}

	res, err := ws.store.ApplyDelta(ctx, ev.Booking)
	if err != nil {
		ws.log.Error(ctx, "booking_updated_discarded", "Failed to apply booking:updated", err,
			map[string]any{"booking_id": ev.Booking.ID})
		return
	}

	switch res.Outcome {
	case store.OutcomeDuplicate, store.OutcomeStale, store.OutcomeTerminalConflict:
		return
	}

	// a delta means the server moved; fold in a snapshot once the burst ends
	ws.refetch.Trigger()

	if res.Booking != nil && res.Booking.Status.Terminal() {
		ws.alerter.Dismiss(ev.Booking.ID)
		ws.closeFlow(ev.Booking.ID)
	}
	if res.Outcome == store.OutcomeRaceLost && ws.events.OnRaceLost != nil {
		ws.events.OnRaceLost(res.Booking)
		return
	}
	if ws.events.OnUpdated != nil && res.Booking != nil {
		ws.events.OnUpdated(res.Booking)
	}
}

func (ws *WorkerSession) handleBookingCancelled(ctx context.Context, data json.RawMessage) {
	var ev contracts.BookingCancelledEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		ws.log.Error(ctx, "booking_cancelled_malformed", "Dropped malformed booking:cancelled", err, nil)
		return
	}

	rec := contracts.BookingRecord{ID: ev.BookingID, Status: booking.StatusCancelled.String()}
	if _, err := ws.store.ApplyDelta(ctx, rec); err != nil {
		ws.log.Error(ctx, "booking_cancelled_discarded", "Failed to apply booking:cancelled", err,
			map[string]any{"booking_id": ev.BookingID})
		return
	}

	// the requester pulled the job: silence the alert and kill any sampler
	ws.alerter.Dismiss(ev.BookingID)
	ws.closeFlow(ev.BookingID)

	if ws.events.OnCancelled != nil {
		ws.events.OnCancelled(ev.BookingID, ev.Reason)
	}
}

func (ws *WorkerSession) handleUserLocation(ctx context.Context, data json.RawMessage) {
	var msg contracts.LocationUpdateMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		ws.log.Error(ctx, "user_location_malformed", "Dropped malformed user:location", err, nil)
		return
	}

	f, ok := ws.flow(msg.BookingID)
	if !ok {
		return
	}
	f.SetCustomerCoordinate(booking.GeoPoint{Lat: msg.Location.Lat, Lng: msg.Location.Lng})
	if ws.events.OnNavUpdate != nil {
		ws.events.OnNavUpdate(f.Snapshot())
	}
}

// ----- flow bookkeeping -----

func (ws *WorkerSession) openFlow(b *booking.Booking) {
	f := navigation.NewFlow(ws.log, b, ws.profile.ID, ws.locSource, ws.channel, ws.statusAPI(), ws.navOpts)

	ws.mu.Lock()
	if old, ok := ws.flows[b.ID]; ok {
		old.Discard()
	}
	ws.flows[b.ID] = f
	ws.mu.Unlock()
}

func (ws *WorkerSession) closeFlow(bookingID string) {
	ws.mu.Lock()
	f, ok := ws.flows[bookingID]
	delete(ws.flows, bookingID)
	ws.mu.Unlock()

	if ok {
		f.Discard()
	}
}

func (ws *WorkerSession) flow(bookingID string) (*navigation.Flow, bool) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	f, ok := ws.flows[bookingID]
	return f, ok
}

// advanceFlow runs one server-confirmed flow transition and installs the
// confirmed record.
func (ws *WorkerSession) advanceFlow(ctx context.Context, bookingID string, step func(*navigation.Flow, context.Context) (*booking.Booking, error)) error {
	f, ok := ws.flow(bookingID)
	if !ok {
		return store.ErrUnknownBooking
	}
	updated, err := step(f, ctx)
	if err != nil {
		return err
	}
	ws.store.Confirm(updated)
	return nil
}

// statusAPI adapts the session's API to the flow's narrower interface.
func (ws *WorkerSession) statusAPI() navigation.StatusAPI {
	return statusAPIFunc(ws.api.UpdateStatus)
}

type statusAPIFunc func(ctx context.Context, bookingID string, status booking.Status) (*booking.Booking, error)

func (fn statusAPIFunc) UpdateStatus(ctx context.Context, bookingID string, status booking.Status) (*booking.Booking, error) {
	return fn(ctx, bookingID, status)
}
