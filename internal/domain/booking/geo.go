package booking

import "math"

// HaversineKM returns the great-circle distance between two coordinates in
// kilometers.
func HaversineKM(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371.0 // Earth radius in km
	a1 := lat1 * math.Pi / 180
	a2 := lat2 * math.Pi / 180
	da := (lat2 - lat1) * math.Pi / 180
	db := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(da/2)*math.Sin(da/2) +
		math.Cos(a1)*math.Cos(a2)*math.Sin(db/2)*math.Sin(db/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}

// EstimateETAMinutes converts a distance into a coarse linear arrival
// estimate. It is a display aid, not a routed prediction.
func EstimateETAMinutes(distanceKM float64) int {
	const avgSpeedKMH = 21.0 // average city approach speed
	if distanceKM < 0 {
		distanceKM = 0
	}
	minutes := (distanceKM / avgSpeedKMH) * 60.0

	// ceil to whole minutes
	m := int(math.Ceil(minutes))
	if m < 1 {
		return 1
	}

	return m
}
