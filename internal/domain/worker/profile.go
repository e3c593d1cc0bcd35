package worker

import (
	"errors"
	"strings"
)

// VerificationStatus is the per-category trust state of a worker.
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "PENDING"
	VerificationVerified VerificationStatus = "VERIFIED"
	VerificationRejected VerificationStatus = "REJECTED"
)

var ErrInvalidVerification = errors.New("invalid verification status")

// ParseVerification normalizes (uppercases+trims) and validates a
// verification status string.
func ParseVerification(in string) (VerificationStatus, error) {
	vs := VerificationStatus(strings.ToUpper(strings.TrimSpace(in)))
	if vs.Valid() {
		return vs, nil
	}
	return "", ErrInvalidVerification
}

// Valid reports whether the value is one of the allowed constants.
func (vs VerificationStatus) Valid() bool {
	switch vs {
	case VerificationPending, VerificationVerified, VerificationRejected:
		return true
	default:
		return false
	}
}

// String returns the string representation of the VerificationStatus.
func (vs VerificationStatus) String() string {
	return string(vs)
}

// Profile is the local session's view of its own dispatch eligibility.
// Categories are keyed by normalized (lowercased, trimmed) name.
type Profile struct {
	ID         string
	Categories map[string]VerificationStatus
}

var ErrWorkerIDRequired = errors.New("worker id is required")

// NewProfile constructs a Profile, normalizing all category keys.
func NewProfile(id string, categories map[string]VerificationStatus) (*Profile, error) {
	if id = strings.TrimSpace(id); id == "" {
		return nil, ErrWorkerIDRequired
	}
	p := &Profile{
		ID:         id,
		Categories: make(map[string]VerificationStatus, len(categories)),
	}
	for name, vs := range categories {
		if key := NormalizeCategory(name); key != "" {
			p.Categories[key] = vs
		}
	}
	return p, nil
}

// SetCategory adds or updates one claimed category.
func (p *Profile) SetCategory(name string, vs VerificationStatus) {
	if key := NormalizeCategory(name); key != "" {
		p.Categories[key] = vs
	}
}

// Verification returns the verification status for a category name, if the
// worker claims it at all.
func (p *Profile) Verification(name string) (VerificationStatus, bool) {
	vs, ok := p.Categories[NormalizeCategory(name)]
	return vs, ok
}

// VerifiedFor reports whether the worker holds a VERIFIED status for the
// category.
func (p *Profile) VerifiedFor(name string) bool {
	vs, ok := p.Verification(name)
	return ok && vs == VerificationVerified
}

// NormalizeCategory folds case and surrounding whitespace so category
// comparison is insensitive to how the backend spells the name.
func NormalizeCategory(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
