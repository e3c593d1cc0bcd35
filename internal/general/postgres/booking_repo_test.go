package postgres

import (
	"testing"

	"service-hub/internal/domain/booking"
)

func TestTimelineColumnFor(t *testing.T) {
	want := map[booking.Status]string{
		booking.StatusAccepted:  "accepted_at",
		booking.StatusArrived:   "arrived_at",
		booking.StatusWorking:   "started_at",
		booking.StatusCompleted: "completed_at",
		booking.StatusCancelled: "cancelled_at",
		// no dedicated column: UpdateStatus must fall back to the
		// two-placeholder query for these
		booking.StatusPending:  "",
		booking.StatusRejected: "",
	}
	for status, col := range want {
		if got := timelineColumnFor(status); got != col {
			t.Errorf("timelineColumnFor(%s) = %q, want %q", status, got, col)
		}
	}
}
