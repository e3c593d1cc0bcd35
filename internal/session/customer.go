package session

import (
	"context"
	"encoding/json"
	"time"

	"service-hub/internal/domain/booking"
	"service-hub/internal/general/contracts"
	"service-hub/internal/general/logger"
	"service-hub/internal/session/store"
)

// CustomerAPI is the slice of the REST surface a customer session uses.
type CustomerAPI interface {
	FetchBookings(ctx context.Context) ([]contracts.BookingRecord, error)
	CreateBooking(ctx context.Context, rec contracts.BookingRecord) (*booking.Booking, error)
	Cancel(ctx context.Context, bookingID, reason string) (*booking.Booking, error)
}

// CustomerEvents are optional presentation hooks, run on the channel read loop.
type CustomerEvents struct {
	OnAccepted       func(bookingID, workerID string, w *contracts.WorkerBrief)
	OnUpdated        func(b *booking.Booking)
	OnWorkerLocation func(bookingID string, pt booking.GeoPoint, at time.Time)
	OnWorkerArrived  func(bookingID string)
	OnWorkStarted    func(bookingID string)
	OnWorkCompleted  func(bookingID string)
}

// CustomerSession is the requester side: it creates and cancels bookings and
// observes the assigned worker's progress. It reuses the same reconciliation
// store as the worker session, with no self worker id (customers never race
// for acceptance).
type CustomerSession struct {
	log        *logger.Logger
	customerID string
	store      *store.Store
	api        CustomerAPI
	channel    EventChannel
	events     CustomerEvents
	refetch    *store.Coalescer
}

// CustomerConfig collects the session's collaborators.
type CustomerConfig struct {
	CustomerID    string
	API           CustomerAPI
	Channel       EventChannel
	RefetchWindow time.Duration
	Events        CustomerEvents
}

// NewCustomerSession builds the session and registers its channel handlers.
func NewCustomerSession(log *logger.Logger, cfg CustomerConfig) *CustomerSession {
	if cfg.RefetchWindow <= 0 {
		cfg.RefetchWindow = 500 * time.Millisecond
	}

	cs := &CustomerSession{
		log:        log,
		customerID: cfg.CustomerID,
		store:      store.New(log, ""),
		api:        cfg.API,
		channel:    cfg.Channel,
		events:     cfg.Events,
	}

	cs.refetch = store.NewCoalescer(cfg.RefetchWindow, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		cs.Refresh(ctx)
	})

	cs.channel.Handle(contracts.EventBookingAccepted, cs.handleBookingAccepted)
	cs.channel.Handle(contracts.EventBookingUpdated, cs.handleBookingUpdated)
	cs.channel.Handle(contracts.EventBookingCancelled, cs.handleBookingCancelled)
	cs.channel.Handle(contracts.EventWorkerLocation, cs.handleWorkerLocation)
	cs.channel.Handle(contracts.EventNavigationArrived, cs.navSignal(cs.events.OnWorkerArrived))
	cs.channel.Handle(contracts.EventWorkStarted, cs.navSignal(cs.events.OnWorkStarted))
	cs.channel.Handle(contracts.EventWorkCompleted, cs.navSignal(cs.events.OnWorkCompleted))

	return cs
}

// Store exposes the reconciliation store for presentation reads.
func (cs *CustomerSession) Store() *store.Store { return cs.store }

// Refresh pulls the authoritative snapshot and merges it.
func (cs *CustomerSession) Refresh(ctx context.Context) {
	records, err := cs.api.FetchBookings(ctx)
	if err != nil {
		cs.log.Error(ctx, "snapshot_fetch_failed", "Failed to fetch booking snapshot", err, nil)
		return
	}
	cs.store.ApplySnapshot(ctx, records)
}

// Request creates a new booking. The confirmed record lands in the store; the
// caller watches for booking:accepted from there.
func (cs *CustomerSession) Request(ctx context.Context, rec contracts.BookingRecord) (*booking.Booking, error) {
	rec.CustomerID = cs.customerID
	created, err := cs.api.CreateBooking(ctx, rec)
	if err != nil {
		cs.log.Error(ctx, "booking_create_failed", "Failed to create booking", err,
			map[string]any{"category": rec.Category})
		return nil, err
	}
	cs.store.Confirm(created)

	cs.log.Info(cs.log.WithBookingID(ctx, created.ID), "booking_created", "Booking created",
		map[string]any{"customer_id": cs.customerID, "category": created.Category})
	return created, nil
}

// Cancel withdraws a booking. The UI strikes the card out optimistically and
// restores it if the call fails; a success installs the confirmed terminal
// record, which absorbs any in-flight events for the same booking.
func (cs *CustomerSession) Cancel(ctx context.Context, bookingID, reason string) error {
	optimistic := cs.store.ApplyOptimistic(bookingID, func(b *booking.Booking) {
		_ = b.Cancel(reason)
	}) == nil

	updated, err := cs.api.Cancel(ctx, bookingID, reason)
	if err != nil {
		if optimistic {
			_ = cs.store.Revert(bookingID)
		}
		cs.log.Error(ctx, "booking_cancel_failed", "Cancel call failed; optimistic state rolled back", err,
			map[string]any{"booking_id": bookingID})
		return err
	}
	cs.store.Confirm(updated)
	return nil
}

// PublishLocation shares the customer's position with the assigned worker.
// Fire-and-forget; a broken channel just drops the ping.
func (cs *CustomerSession) PublishLocation(bookingID string, pt booking.GeoPoint) {
	msg := contracts.LocationUpdateMessage{
		BookingID: bookingID,
		ActorID:   cs.customerID,
		Location:  contracts.GeoPoint{Lat: pt.Lat, Lng: pt.Lng},
		Timestamp: time.Now().UTC(),
		Envelope:  contracts.Envelope{Producer: "customer-session", SentAt: time.Now().UTC()},
	}
	if err := cs.channel.Publish(contracts.EventUserLocation, msg); err != nil {
		cs.log.Debug(context.Background(), "location_publish_failed", "Failed to publish location update",
			map[string]any{"booking_id": bookingID, "error": err.Error()})
	}
}

// Close stops the session's background work. Idempotent.
func (cs *CustomerSession) Close() {
	cs.refetch.Stop()
}

// ----- channel handlers -----

func (cs *CustomerSession) handleBookingAccepted(ctx context.Context, data json.RawMessage) {
	var ev contracts.BookingAcceptedEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		cs.log.Error(ctx, "booking_accepted_malformed", "Dropped malformed booking:accepted", err, nil)
		return
	}

	rec := contracts.BookingRecord{
		ID:               ev.BookingID,
		Status:           booking.StatusAccepted.String(),
		AssignedWorkerID: &ev.WorkerID,
	}
	if _, err := cs.store.ApplyDelta(ctx, rec); err != nil {
		cs.log.Error(ctx, "booking_accepted_discarded", "Failed to apply booking:accepted", err,
			map[string]any{"booking_id": ev.BookingID})
		return
	}

	if cs.events.OnAccepted != nil {
		cs.events.OnAccepted(ev.BookingID, ev.WorkerID, ev.Worker)
	}
}

func (cs *CustomerSession) handleBookingUpdated(ctx context.Context, data json.RawMessage) {
	var ev contracts.BookingUpdatedEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		cs.log.Error(ctx, "booking_updated_malformed", "Dropped malformed booking:updated", err, nil)
		return
	}

	res, err := cs.store.ApplyDelta(ctx, ev.Booking)
	if err != nil {
		cs.log.Error(ctx, "booking_updated_discarded", "Failed to apply booking:updated", err,
			map[string]any{"booking_id": ev.Booking.ID})
		return
	}

	switch res.Outcome {
	case store.OutcomeDuplicate, store.OutcomeStale, store.OutcomeTerminalConflict:
		return
	}

	cs.refetch.Trigger()
	if cs.events.OnUpdated != nil && res.Booking != nil {
		cs.events.OnUpdated(res.Booking)
	}
}

func (cs *CustomerSession) handleBookingCancelled(ctx context.Context, data json.RawMessage) {
	var ev contracts.BookingCancelledEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		cs.log.Error(ctx, "booking_cancelled_malformed", "Dropped malformed booking:cancelled", err, nil)
		return
	}

	// echo of this session's own cancel, or a hub-initiated withdrawal;
	// the store's dedupe makes both paths converge
	rec := contracts.BookingRecord{ID: ev.BookingID, Status: booking.StatusCancelled.String()}
	res, err := cs.store.ApplyDelta(ctx, rec)
	if err != nil {
		cs.log.Error(ctx, "booking_cancelled_discarded", "Failed to apply booking:cancelled", err,
			map[string]any{"booking_id": ev.BookingID})
		return
	}

	if res.Outcome == store.OutcomeMerged && cs.events.OnUpdated != nil && res.Booking != nil {
		cs.events.OnUpdated(res.Booking)
	}
}

func (cs *CustomerSession) handleWorkerLocation(ctx context.Context, data json.RawMessage) {
	var msg contracts.LocationUpdateMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		cs.log.Error(ctx, "worker_location_malformed", "Dropped malformed worker:location", err, nil)
		return
	}
	if cs.events.OnWorkerLocation != nil {
		cs.events.OnWorkerLocation(msg.BookingID,
			booking.GeoPoint{Lat: msg.Location.Lat, Lng: msg.Location.Lng}, msg.Timestamp)
	}
}

// navSignal adapts an advisory navigation event to a simple callback. These
// never mutate the store; the authoritative transition arrives separately as
// booking:updated.
func (cs *CustomerSession) navSignal(fn func(bookingID string)) func(ctx context.Context, data json.RawMessage) {
	return func(ctx context.Context, data json.RawMessage) {
		if fn == nil {
			return
		}
		var ev contracts.NavigationEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return
		}
		fn(ev.BookingID)
	}
}
