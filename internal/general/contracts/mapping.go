package contracts

import (
	"service-hub/internal/domain/booking"
)

// ToBookingRecord converts a domain booking into its full wire form.
func ToBookingRecord(b *booking.Booking) BookingRecord {
	rec := BookingRecord{
		ID:               b.ID,
		CustomerID:       b.CustomerID,
		Category:         b.Category,
		ServiceName:      b.ServiceName,
		Address:          b.Address,
		Price:            b.Price,
		Status:           b.Status.String(),
		AssignedWorkerID: b.AssignedWorkerID,
		CreatedAt:        b.CreatedAt,
		ScheduledAt:      b.ScheduledAt,
		AcceptedAt:       b.AcceptedAt,
		ArrivedAt:        b.ArrivedAt,
		StartedAt:        b.StartedAt,
		CompletedAt:      b.CompletedAt,
		CancelledAt:      b.CancelledAt,
		WorkDurationSec:  b.WorkDurationSec,
	}
	if b.Coordinate != nil {
		rec.Coordinate = &GeoPoint{Lat: b.Coordinate.Lat, Lng: b.Coordinate.Lng, Address: b.Address}
	}
	return rec
}

// ToDomain builds a domain booking from the record. Used when a delta
// references an id the session does not know yet. A record without a status
// is treated as PENDING.
func (rec BookingRecord) ToDomain() (*booking.Booking, error) {
	status := booking.StatusPending
	if rec.Status != "" {
		parsed, err := booking.ParseStatus(rec.Status)
		if err != nil {
			return nil, err
		}
		status = parsed
	}

	b := &booking.Booking{
		ID:               rec.ID,
		CustomerID:       rec.CustomerID,
		Category:         rec.Category,
		ServiceName:      rec.ServiceName,
		Address:          rec.Address,
		Price:            rec.Price,
		Status:           status,
		AssignedWorkerID: rec.AssignedWorkerID,
		CreatedAt:        rec.CreatedAt,
		ScheduledAt:      rec.ScheduledAt,
		AcceptedAt:       rec.AcceptedAt,
		ArrivedAt:        rec.ArrivedAt,
		StartedAt:        rec.StartedAt,
		CompletedAt:      rec.CompletedAt,
		CancelledAt:      rec.CancelledAt,
		WorkDurationSec:  rec.WorkDurationSec,
	}
	if rec.Coordinate != nil {
		b.Coordinate = &booking.GeoPoint{Lat: rec.Coordinate.Lat, Lng: rec.Coordinate.Lng}
	}
	return b, nil
}

// MergeInto applies the record's set fields onto an existing booking,
// field-by-field. Zero-valued scalar fields and nil pointers are treated as
// "not included in this delta" and leave the target untouched. The status
// itself is merged by the caller, which owns the monotonic ordering rules.
func (rec BookingRecord) MergeInto(b *booking.Booking) {
	if rec.CustomerID != "" {
		b.CustomerID = rec.CustomerID
	}
	if rec.Category != "" {
		b.Category = rec.Category
	}
	if rec.ServiceName != "" {
		b.ServiceName = rec.ServiceName
	}
	if rec.Address != "" {
		b.Address = rec.Address
	}
	// price is set at creation and no operation changes it afterwards, so
	// a zero here always means "absent", never an explicit update to zero
	if rec.Price != 0 {
		b.Price = rec.Price
	}
	if rec.Coordinate != nil {
		b.Coordinate = &booking.GeoPoint{Lat: rec.Coordinate.Lat, Lng: rec.Coordinate.Lng}
	}
	if rec.AssignedWorkerID != nil {
		id := *rec.AssignedWorkerID
		b.AssignedWorkerID = &id
	}
	if rec.ScheduledAt != nil {
		b.ScheduledAt = rec.ScheduledAt
	}
	if rec.AcceptedAt != nil {
		b.AcceptedAt = rec.AcceptedAt
	}
	if rec.ArrivedAt != nil {
		b.ArrivedAt = rec.ArrivedAt
	}
	if rec.StartedAt != nil {
		b.StartedAt = rec.StartedAt
	}
	if rec.CompletedAt != nil {
		b.CompletedAt = rec.CompletedAt
	}
	if rec.CancelledAt != nil {
		b.CancelledAt = rec.CancelledAt
	}
	if rec.WorkDurationSec != nil {
		b.WorkDurationSec = rec.WorkDurationSec
	}
}
