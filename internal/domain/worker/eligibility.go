package worker

import "service-hub/internal/domain/booking"

// IsEligible reports whether a pending booking should be visible to this
// worker session. It is a pure predicate: the backend filters first, and
// every session re-checks so a stale profile or an over-broad broadcast
// never surfaces a request the worker must not see.
//
// Rules, in order:
//  1. only PENDING bookings are offerable
//  2. a booking already assigned to someone else is never offerable
//  3. the category must match one of the worker's categories
//     (case-insensitive, trimmed)
//  4. the matched category must be exactly VERIFIED; PENDING and REJECTED
//     verification both exclude the booking. This is a trust boundary, not
//     a presentation preference.
func IsEligible(b *booking.Booking, p *Profile) bool {
	if b == nil || p == nil {
		return false
	}
	if b.Status != booking.StatusPending {
		return false
	}
	if b.AssignedWorkerID != nil && *b.AssignedWorkerID != "" && *b.AssignedWorkerID != p.ID {
		return false
	}

	vs, ok := p.Verification(b.Category)
	if !ok {
		return false
	}

	return vs == VerificationVerified
}
