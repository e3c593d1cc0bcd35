package booking

import "testing"

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("  working ")
	if err != nil {
		t.Fatalf("ParseStatus: %v", err)
	}
	if s != StatusWorking {
		t.Errorf("Expected WORKING, got %s", s)
	}

	if _, err := ParseStatus("TELEPORTING"); err == nil {
		t.Error("Expected error for unknown status")
	}
}

func TestStatusTransitions(t *testing.T) {
	allowed := []struct {
		from, to Status
	}{
		{StatusPending, StatusAccepted},
		{StatusPending, StatusCancelled},
		{StatusPending, StatusRejected},
		{StatusAccepted, StatusArrived},
		{StatusAccepted, StatusCancelled},
		{StatusArrived, StatusWorking},
		{StatusArrived, StatusCancelled},
		{StatusWorking, StatusCompleted},
		{StatusWorking, StatusCancelled},
	}
	for _, tc := range allowed {
		if !tc.from.CanTransitionTo(tc.to) {
			t.Errorf("%s -> %s should be allowed", tc.from, tc.to)
		}
	}

	forbidden := []struct {
		from, to Status
	}{
		{StatusPending, StatusArrived},
		{StatusPending, StatusWorking},
		{StatusAccepted, StatusCompleted},
		{StatusWorking, StatusArrived},
		{StatusCompleted, StatusCancelled},
		{StatusCancelled, StatusPending},
		{StatusRejected, StatusAccepted},
	}
	for _, tc := range forbidden {
		if tc.from.CanTransitionTo(tc.to) {
			t.Errorf("%s -> %s should be forbidden", tc.from, tc.to)
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	for _, s := range []Status{StatusCompleted, StatusCancelled, StatusRejected} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
		for _, next := range []Status{StatusPending, StatusAccepted, StatusArrived, StatusWorking, StatusCompleted, StatusCancelled} {
			if s.CanTransitionTo(next) {
				t.Errorf("terminal %s should not transition to %s", s, next)
			}
		}
	}
	for _, s := range []Status{StatusPending, StatusAccepted, StatusArrived, StatusWorking} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestRankIsMonotonicAlongForwardPath(t *testing.T) {
	path := []Status{StatusPending, StatusAccepted, StatusArrived, StatusWorking, StatusCompleted}
	for i := 1; i < len(path); i++ {
		if path[i].Rank() <= path[i-1].Rank() {
			t.Errorf("Rank(%s)=%d should exceed Rank(%s)=%d",
				path[i], path[i].Rank(), path[i-1], path[i-1].Rank())
		}
	}

	// terminal states absorb everything
	if StatusCancelled.Rank() <= StatusWorking.Rank() {
		t.Error("CANCELLED should rank above WORKING")
	}
	if Status("BOGUS").Rank() >= StatusPending.Rank() {
		t.Error("unknown status should rank below PENDING")
	}
}
