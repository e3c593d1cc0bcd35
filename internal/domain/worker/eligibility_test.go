package worker

import (
	"testing"

	"service-hub/internal/domain/booking"
)

func pendingBooking(t *testing.T, category string) *booking.Booking {
	t.Helper()
	b, err := booking.NewBooking("cust-1", category, "svc", "addr", 10, nil, nil)
	if err != nil {
		t.Fatalf("NewBooking: %v", err)
	}
	b.ID = "bk-1"
	return b
}

func profileWith(t *testing.T, categories map[string]VerificationStatus) *Profile {
	t.Helper()
	p, err := NewProfile("worker-1", categories)
	if err != nil {
		t.Fatalf("NewProfile: %v", err)
	}
	return p
}

func TestIsEligibleVerifiedCategory(t *testing.T) {
	p := profileWith(t, map[string]VerificationStatus{"Cleaning": VerificationVerified})
	b := pendingBooking(t, "cleaning")

	if !IsEligible(b, p) {
		t.Error("verified category should be eligible")
	}
}

func TestIsEligibleCaseInsensitive(t *testing.T) {
	p := profileWith(t, map[string]VerificationStatus{"  PLUMBING ": VerificationVerified})
	b := pendingBooking(t, "Plumbing")

	if !IsEligible(b, p) {
		t.Error("category match must ignore case and whitespace")
	}
}

func TestIsEligibleUnverifiedExcluded(t *testing.T) {
	// claimed but still pending verification is a trust boundary, not a
	// display preference
	p := profileWith(t, map[string]VerificationStatus{"plumbing": VerificationPending})
	b := pendingBooking(t, "Plumber")
	if IsEligible(b, p) {
		t.Error("unclaimed category must not be eligible")
	}

	b2 := pendingBooking(t, "Plumbing")
	if IsEligible(b2, p) {
		t.Error("PENDING verification must not be eligible")
	}

	p.SetCategory("plumbing", VerificationRejected)
	if IsEligible(b2, p) {
		t.Error("REJECTED verification must not be eligible")
	}

	p.SetCategory("plumbing", VerificationVerified)
	if !IsEligible(b2, p) {
		t.Error("VERIFIED verification should be eligible")
	}
}

func TestIsEligibleOnlyPending(t *testing.T) {
	p := profileWith(t, map[string]VerificationStatus{"cleaning": VerificationVerified})
	b := pendingBooking(t, "cleaning")

	if err := b.Accept("worker-2"); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if IsEligible(b, p) {
		t.Error("a booking assigned to someone else must not be eligible")
	}
}

func TestIsEligibleNilInputs(t *testing.T) {
	p := profileWith(t, map[string]VerificationStatus{"cleaning": VerificationVerified})
	if IsEligible(nil, p) {
		t.Error("nil booking must not be eligible")
	}
	if IsEligible(pendingBooking(t, "cleaning"), nil) {
		t.Error("nil profile must not be eligible")
	}
}

func TestVerifiedFor(t *testing.T) {
	p := profileWith(t, map[string]VerificationStatus{"Electrical": VerificationVerified})
	if !p.VerifiedFor("electrical") {
		t.Error("VerifiedFor should normalize the category name")
	}
	if p.VerifiedFor("cleaning") {
		t.Error("unclaimed category is not verified")
	}
}
