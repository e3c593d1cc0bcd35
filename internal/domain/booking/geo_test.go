package booking

import "testing"

func TestHaversineKM(t *testing.T) {
	// identical points
	if d := HaversineKM(41.31, 69.28, 41.31, 69.28); d != 0 {
		t.Errorf("distance to self should be 0, got %f", d)
	}

	// one degree of latitude is roughly 111 km
	d := HaversineKM(41.0, 69.0, 42.0, 69.0)
	if d < 110 || d > 112 {
		t.Errorf("1 degree latitude should be ~111 km, got %f", d)
	}
}

func TestEstimateETAMinutes(t *testing.T) {
	if m := EstimateETAMinutes(0); m != 1 {
		t.Errorf("zero distance should floor to 1 minute, got %d", m)
	}
	if m := EstimateETAMinutes(-5); m != 1 {
		t.Errorf("negative distance should floor to 1 minute, got %d", m)
	}
	// 21 km at 21 km/h is exactly one hour
	if m := EstimateETAMinutes(21); m != 60 {
		t.Errorf("21 km should be 60 minutes, got %d", m)
	}
}
