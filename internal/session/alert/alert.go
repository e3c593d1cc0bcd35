package alert

import (
	"context"
	"sync"
	"time"

	"service-hub/internal/domain/booking"
	"service-hub/internal/general/logger"
)

// Notifier is the presentation side of an alert: sound, vibration, and the
// dismissible banner. Implementations must be cheap and non-blocking; the
// alerter calls them from its tick loop.
type Notifier interface {
	Alert(b *booking.Booking) // one sound+vibration pulse
	ShowBanner(b *booking.Booking)
	HideBanner()
}

// Alerter owns the repeating alert for newly eligible bookings. It is an
// explicit resource handle: Start fully cancels any alert already running,
// Stop is idempotent and safe on every exit path. Only one alert runs at a
// time; bookings arriving while one is active queue FIFO and surface when
// the current alert ends.
type Alerter struct {
	mu       sync.Mutex
	log      *logger.Logger
	notifier Notifier
	interval time.Duration
	timeout  time.Duration

	active *handle
	queue  []*booking.Booking
}

// handle is one running alert loop. The stop channel is closed exactly once.
type handle struct {
	bookingID string
	stop      chan struct{}
	stopOnce  sync.Once
}

// New constructs an Alerter. interval is the repeat cadence of the audible
// pulse; timeout is the automatic give-up window.
func New(log *logger.Logger, notifier Notifier, interval, timeout time.Duration) *Alerter {
	return &Alerter{
		log:      log,
		notifier: notifier,
		interval: interval,
		timeout:  timeout,
	}
}

// Start begins alerting for a booking. Any alert already in progress is
// fully cancelled first; two alert loops never overlap.
func (a *Alerter) Start(b *booking.Booking) {
	a.mu.Lock()
	prev := a.active
	h := &handle{bookingID: b.ID, stop: make(chan struct{})}
	a.active = h
	a.mu.Unlock()

	if prev != nil {
		prev.cancel()
	}

	a.notifier.ShowBanner(b)
	go a.loop(h, b)
}

// Enqueue offers a booking for presentation. If no alert is running it
// starts immediately; otherwise it queues behind the current one. The store
// has already recorded the booking either way.
func (a *Alerter) Enqueue(b *booking.Booking) {
	a.mu.Lock()
	if a.active != nil {
		a.queue = append(a.queue, b)
		a.mu.Unlock()
		return
	}
	a.mu.Unlock()
	a.Start(b)
}

// Stop cancels the current alert, if any. It is synchronous with respect to
// presentation: the banner is hidden and the loop's stop channel closed
// before Stop returns, so callers can issue the accept/reject network call
// knowing the alert has already ceased. Safe to call multiple times.
// Returns the id of the booking whose alert was stopped, if one was running.
func (a *Alerter) Stop() (string, bool) {
	a.mu.Lock()
	h := a.active
	a.active = nil
	a.mu.Unlock()

	if h == nil {
		return "", false
	}
	h.cancel()
	a.notifier.HideBanner()
	a.promoteNext()
	return h.bookingID, true
}

// Dismiss drops a queued booking (or the active alert when id matches it).
// Used when a booking stops being offerable before its turn, e.g. it was
// accepted by someone else or cancelled.
func (a *Alerter) Dismiss(bookingID string) {
	a.mu.Lock()
	if a.active != nil && a.active.bookingID == bookingID {
		a.mu.Unlock()
		a.Stop()
		return
	}
	filtered := a.queue[:0]
	for _, q := range a.queue {
		if q.ID != bookingID {
			filtered = append(filtered, q)
		}
	}
	a.queue = filtered
	a.mu.Unlock()
}

// ActiveBookingID reports which booking the current alert presents.
func (a *Alerter) ActiveBookingID() (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.active == nil {
		return "", false
	}
	return a.active.bookingID, true
}

// loop pulses the notifier until stop or timeout.
func (a *Alerter) loop(h *handle, b *booking.Booking) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	deadline := time.NewTimer(a.timeout)
	defer deadline.Stop()

	// first pulse fires immediately, not one interval late
	a.notifier.Alert(b)

	for {
		select {
		case <-ticker.C:
			a.notifier.Alert(b)

		case <-deadline.C:
			a.log.Info(context.Background(), "alert_timed_out", "Alert reached its timeout without user action",
				map[string]any{"booking_id": h.bookingID})
			a.finish(h)
			return

		case <-h.stop:
			return
		}
	}
}

// finish clears a timed-out handle and surfaces the next queued booking.
// A Start or Stop may have raced the timeout and taken the slot already;
// only the loop that still owns it may touch the banner.
func (a *Alerter) finish(h *handle) {
	h.cancel()

	a.mu.Lock()
	owned := a.active == h
	if owned {
		a.active = nil
	}
	a.mu.Unlock()

	if !owned {
		return
	}
	a.notifier.HideBanner()
	a.promoteNext()
}

// promoteNext starts the next queued booking, if no alert became active in
// the meantime.
func (a *Alerter) promoteNext() {
	a.mu.Lock()
	if a.active != nil || len(a.queue) == 0 {
		a.mu.Unlock()
		return
	}
	next := a.queue[0]
	a.queue = a.queue[1:]
	a.mu.Unlock()

	a.Start(next)
}

func (h *handle) cancel() {
	h.stopOnce.Do(func() { close(h.stop) })
}
