package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"service-hub/internal/domain/booking"
	"service-hub/internal/general/contracts"
	"service-hub/internal/general/logger"
)

// Outcome classifies what a delta did to the store, so the session glue can
// react (alert, re-fetch, surface a race loss) without re-deriving it.
type Outcome string

const (
	OutcomeInserted         Outcome = "inserted"          // unknown id, treated as new
	OutcomeMerged           Outcome = "merged"            // fields merged, status advanced
	OutcomeDuplicate        Outcome = "duplicate"         // same (id, status) seen before; no-op
	OutcomeStale            Outcome = "stale"             // status older than confirmed; discarded
	OutcomeTerminalConflict Outcome = "terminal_conflict" // booking already terminal; discarded
	OutcomeRaceLost         Outcome = "race_lost"         // another worker won the acceptance race
)

// Result reports the effect of applying one delta.
type Result struct {
	Outcome Outcome
	Booking *booking.Booking // merged view after application (nil when discarded)
}

var (
	ErrMissingBookingID = errors.New("delta has no booking id")
	ErrUnknownBooking   = errors.New("unknown booking id")
	ErrNoOptimistic     = errors.New("no optimistic overlay to revert")
)

// entry keeps the server-confirmed baseline and, when an action is awaiting
// confirmation, an optimistic overlay. Reads return overlay-over-baseline; a
// confirmation replaces the baseline and clears the overlay.
type entry struct {
	confirmed *booking.Booking
	overlay   *booking.Booking
}

// Store is the per-session reconciliation store: a mapping from booking id
// to booking, ordered by insertion for presentation only. All methods are
// safe for concurrent use; the channel read loop, timers, and UI actions all
// funnel through the same mutex.
type Store struct {
	mu      sync.Mutex
	log     *logger.Logger
	selfID  string // session's own worker id; empty for customer sessions
	entries map[string]*entry
	order   []string
}

// New creates an empty store. selfID is the session's own worker id, used to
// detect the losing side of the single-acceptance race; customer sessions
// pass "".
func New(log *logger.Logger, selfID string) *Store {
	return &Store{
		log:     log,
		selfID:  selfID,
		entries: make(map[string]*entry),
	}
}

// ApplySnapshot merges a full REST fetch. Snapshots are authoritative: every
// listed booking replaces the confirmed baseline (and clears any overlay the
// snapshot supersedes). Bookings absent from the snapshot are kept; whether
// an omission means removal is the caller's call, not the store's.
func (s *Store) ApplySnapshot(ctx context.Context, records []contracts.BookingRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range records {
		if rec.ID == "" {
			s.log.Error(ctx, "snapshot_record_discarded", "Snapshot record has no booking id", ErrMissingBookingID, nil)
			continue
		}
		b, err := rec.ToDomain()
		if err != nil {
			s.log.Error(ctx, "snapshot_record_discarded", "Snapshot record is malformed", err,
				map[string]any{"booking_id": rec.ID})
			continue
		}

		e, known := s.entries[rec.ID]
		if !known {
			s.insertLocked(rec.ID, b)
			continue
		}

		// terminal is irreversible even against a (stale) snapshot
		if e.confirmed.Status.Terminal() && !b.Status.Terminal() {
			s.log.Info(ctx, "snapshot_terminal_kept", "Snapshot tried to resurrect a terminal booking; kept terminal state",
				map[string]any{"booking_id": rec.ID, "snapshot_status": b.Status.String()})
			continue
		}
		e.confirmed = b
		e.overlay = nil
	}
}

// ApplyDelta merges a single streamed booking update. The channel delivers
// at-least-once with no cross-reconnect ordering, so application is
// idempotent by (id, status) and treats the status rank as monotonic.
// The whole delta is applied or discarded; a malformed record never leaves
// the store partially updated.
func (s *Store) ApplyDelta(ctx context.Context, rec contracts.BookingRecord) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		return Result{}, ErrMissingBookingID
	}

	var status booking.Status
	if rec.Status != "" {
		parsed, err := booking.ParseStatus(rec.Status)
		if err != nil {
			return Result{}, err
		}
		status = parsed
	}

	e, known := s.entries[rec.ID]
	if !known {
		// an update for a booking this session never saw: treat as new
		b, err := rec.ToDomain()
		if err != nil {
			return Result{}, err
		}
		s.insertLocked(rec.ID, b)
		return Result{Outcome: OutcomeInserted, Booking: b.Clone()}, nil
	}

	confirmed := e.confirmed

	// terminal states are absorbing: anything after them is discarded
	if confirmed.Status.Terminal() {
		if status == confirmed.Status {
			return Result{Outcome: OutcomeDuplicate, Booking: s.viewLocked(e)}, nil
		}
		s.log.Info(ctx, "delta_terminal_discarded", "Delta for terminal booking discarded",
			map[string]any{"booking_id": rec.ID, "current": confirmed.Status.String(), "incoming": rec.Status})
		return Result{Outcome: OutcomeTerminalConflict}, nil
	}

	// no status in the delta: plain field merge onto the baseline
	if status == "" {
		rec.MergeInto(confirmed)
		confirmed.UpdatedAt = nowUTC()
		return Result{Outcome: OutcomeMerged, Booking: s.viewLocked(e)}, nil
	}

	// duplicate (id, status): the at-least-once channel re-delivered
	if status == confirmed.Status {
		return Result{Outcome: OutcomeDuplicate, Booking: s.viewLocked(e)}, nil
	}

	// a transition into a terminal state always wins over anything pending
	if status.Terminal() {
		rec.MergeInto(confirmed)
		confirmed.Status = status
		confirmed.UpdatedAt = nowUTC()
		e.overlay = nil
		return Result{Outcome: OutcomeMerged, Booking: s.viewLocked(e)}, nil
	}

	// stale: an out-of-order delivery asserting an earlier lifecycle phase
	if status.Rank() < confirmed.Status.Rank() {
		s.log.Info(ctx, "delta_stale_discarded", "Out-of-order delta discarded",
			map[string]any{"booking_id": rec.ID, "current": confirmed.Status.String(), "incoming": status.String()})
		return Result{Outcome: OutcomeStale}, nil
	}

	// losing side of the acceptance race: the server assigned someone else
	// while this session holds an optimistic claim of its own
	raceLost := s.selfID != "" &&
		rec.AssignedWorkerID != nil && *rec.AssignedWorkerID != "" && *rec.AssignedWorkerID != s.selfID &&
		e.overlay != nil && e.overlay.AssignedTo(s.selfID)

	rec.MergeInto(confirmed)
	confirmed.Status = status
	confirmed.UpdatedAt = nowUTC()
	e.overlay = nil

	if raceLost {
		return Result{Outcome: OutcomeRaceLost, Booking: s.viewLocked(e)}, nil
	}
	return Result{Outcome: OutcomeMerged, Booking: s.viewLocked(e)}, nil
}

// ApplyOptimistic records a provisional local mutation ahead of server
// confirmation. The overlay is a clone of the current view, so the confirmed
// baseline stays intact for rollback.
func (s *Store) ApplyOptimistic(id string, patch func(*booking.Booking)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return ErrUnknownBooking
	}

	base := e.overlay
	if base == nil {
		base = e.confirmed
	}
	next := base.Clone()
	patch(next)
	e.overlay = next
	return nil
}

// Revert drops the optimistic overlay, restoring the last confirmed state.
// Called when the REST call backing the optimistic mutation fails.
func (s *Store) Revert(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return ErrUnknownBooking
	}
	if e.overlay == nil {
		return ErrNoOptimistic
	}
	e.overlay = nil
	return nil
}

// Confirm installs a server-returned booking as the new baseline and clears
// the overlay. Used with the body of a successful accept/status-update call.
func (s *Store) Confirm(b *booking.Booking) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[b.ID]
	if !ok {
		s.insertLocked(b.ID, b.Clone())
		return
	}
	// defensive: a confirmed terminal state is never rolled forward-to-back
	if e.confirmed.Status.Terminal() && !b.Status.Terminal() {
		return
	}
	e.confirmed = b.Clone()
	e.overlay = nil
}

// Get returns the merged view (overlay over baseline) for one booking.
func (s *Store) Get(id string) (*booking.Booking, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	return s.viewLocked(e), true
}

// List returns merged views in insertion order.
func (s *Store) List() []*booking.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*booking.Booking, 0, len(s.order))
	for _, id := range s.order {
		if e, ok := s.entries[id]; ok {
			out = append(out, s.viewLocked(e))
		}
	}
	return out
}

// Pending returns merged views still in PENDING state, insertion-ordered.
func (s *Store) Pending() []*booking.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*booking.Booking
	for _, id := range s.order {
		if e, ok := s.entries[id]; ok {
			if v := s.viewLocked(e); v.Status == booking.StatusPending {
				out = append(out, v)
			}
		}
	}
	return out
}

// Len reports how many bookings the store holds.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// ----- internal helpers -----

func (s *Store) insertLocked(id string, b *booking.Booking) {
	s.entries[id] = &entry{confirmed: b}
	s.order = append(s.order, id)
}

// viewLocked returns a detached merged view; callers never see internal state.
func (s *Store) viewLocked(e *entry) *booking.Booking {
	if e.overlay != nil {
		return e.overlay.Clone()
	}
	return e.confirmed.Clone()
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
