package alert

import (
	"sync"
	"testing"
	"time"

	"service-hub/internal/domain/booking"
	"service-hub/internal/general/logger"
)

// recordingNotifier counts pulses and banner changes, and remembers which
// booking each went to.
type recordingNotifier struct {
	mu      sync.Mutex
	alerts  []string
	banners []string
	hides   int
}

func (n *recordingNotifier) Alert(b *booking.Booking) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, b.ID)
}

func (n *recordingNotifier) ShowBanner(b *booking.Booking) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.banners = append(n.banners, b.ID)
}

func (n *recordingNotifier) HideBanner() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.hides++
}

func (n *recordingNotifier) alertCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.alerts)
}

func (n *recordingNotifier) bannerSeq() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.banners))
	copy(out, n.banners)
	return out
}

func testBooking(t *testing.T, id string) *booking.Booking {
	t.Helper()
	b, err := booking.NewBooking("cust-1", "cleaning", "svc", "addr", 10, nil, nil)
	if err != nil {
		t.Fatalf("NewBooking: %v", err)
	}
	b.ID = id
	return b
}

func TestStopIsSynchronousAndIdempotent(t *testing.T) {
	n := &recordingNotifier{}
	a := New(logger.New("alert-test"), n, 10*time.Millisecond, time.Minute)

	a.Start(testBooking(t, "bk-1"))

	id, stopped := a.Stop()
	if !stopped || id != "bk-1" {
		t.Fatalf("Stop should report bk-1, got %q %v", id, stopped)
	}
	if _, active := a.ActiveBookingID(); active {
		t.Error("no alert should be active after Stop")
	}

	// pulses must cease once Stop has returned
	time.Sleep(15 * time.Millisecond)
	count := n.alertCount()
	time.Sleep(30 * time.Millisecond)
	if n.alertCount() != count {
		t.Error("alert pulses continued after Stop returned")
	}

	if _, stopped := a.Stop(); stopped {
		t.Error("second Stop should be a no-op")
	}
}

func TestStartCancelsPreviousLoop(t *testing.T) {
	n := &recordingNotifier{}
	a := New(logger.New("alert-test"), n, 5*time.Millisecond, time.Minute)

	a.Start(testBooking(t, "bk-1"))
	a.Start(testBooking(t, "bk-2"))

	id, _ := a.ActiveBookingID()
	if id != "bk-2" {
		t.Fatalf("active alert should be bk-2, got %s", id)
	}

	// let both hypothetical loops tick a few times; only bk-2 may pulse now
	time.Sleep(25 * time.Millisecond)
	a.Stop()

	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.alerts) - 1; i >= 0; i-- {
		if n.alerts[i] == "bk-1" {
			// bk-1 pulses are only legal before bk-2's first pulse
			for j := i + 1; j < len(n.alerts); j++ {
				if n.alerts[j] == "bk-2" {
					continue
				}
				t.Fatalf("bk-1 pulsed after bk-2 took over: %v", n.alerts)
			}
			break
		}
	}
}

func TestEnqueueQueuesBehindActive(t *testing.T) {
	n := &recordingNotifier{}
	a := New(logger.New("alert-test"), n, 10*time.Millisecond, time.Minute)

	a.Enqueue(testBooking(t, "bk-1"))
	a.Enqueue(testBooking(t, "bk-2"))

	if id, _ := a.ActiveBookingID(); id != "bk-1" {
		t.Fatalf("first enqueue should start immediately, active=%s", id)
	}

	// stopping the first promotes the second
	a.Stop()
	if id, _ := a.ActiveBookingID(); id != "bk-2" {
		t.Fatalf("queued booking should be promoted, active=%s", id)
	}
	a.Stop()

	seq := n.bannerSeq()
	if len(seq) != 2 || seq[0] != "bk-1" || seq[1] != "bk-2" {
		t.Errorf("banner order should be FIFO, got %v", seq)
	}
}

func TestDismissRemovesQueuedBooking(t *testing.T) {
	n := &recordingNotifier{}
	a := New(logger.New("alert-test"), n, 10*time.Millisecond, time.Minute)

	a.Enqueue(testBooking(t, "bk-1"))
	a.Enqueue(testBooking(t, "bk-2"))
	a.Enqueue(testBooking(t, "bk-3"))

	// bk-2 was taken by someone else before its turn
	a.Dismiss("bk-2")

	a.Stop()
	if id, _ := a.ActiveBookingID(); id != "bk-3" {
		t.Fatalf("dismissed booking must be skipped, active=%s", id)
	}
	a.Stop()
}

func TestDismissActiveStopsAlert(t *testing.T) {
	n := &recordingNotifier{}
	a := New(logger.New("alert-test"), n, 10*time.Millisecond, time.Minute)

	a.Enqueue(testBooking(t, "bk-1"))
	a.Dismiss("bk-1")

	if _, active := a.ActiveBookingID(); active {
		t.Error("dismissing the active booking should stop the alert")
	}
}

func TestStaleTimeoutDoesNotHideReplacementBanner(t *testing.T) {
	n := &recordingNotifier{}
	a := New(logger.New("alert-test"), n, 10*time.Millisecond, time.Minute)

	a.Start(testBooking(t, "bk-1"))
	a.mu.Lock()
	stale := a.active
	a.mu.Unlock()

	// a user action replaces the alert while bk-1's timeout is in flight
	a.Start(testBooking(t, "bk-2"))

	n.mu.Lock()
	hides := n.hides
	n.mu.Unlock()

	// the late finish of the superseded loop must not touch bk-2's banner
	a.finish(stale)

	n.mu.Lock()
	afterHides := n.hides
	n.mu.Unlock()
	if afterHides != hides {
		t.Error("a stale timeout must not hide the replacement banner")
	}
	if id, ok := a.ActiveBookingID(); !ok || id != "bk-2" {
		t.Errorf("active alert should remain bk-2, got %q %v", id, ok)
	}
	a.Stop()
}

func TestTimeoutPromotesNext(t *testing.T) {
	n := &recordingNotifier{}
	a := New(logger.New("alert-test"), n, 5*time.Millisecond, 30*time.Millisecond)

	a.Enqueue(testBooking(t, "bk-1"))
	a.Enqueue(testBooking(t, "bk-2"))

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if id, ok := a.ActiveBookingID(); ok && id == "bk-2" {
			a.Stop()
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timed-out alert did not promote the next queued booking")
}
