package booking

import (
	"errors"
	"strings"
)

// Status is a booking lifecycle status as observed by every session.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusAccepted  Status = "ACCEPTED"
	StatusArrived   Status = "ARRIVED"
	StatusWorking   Status = "WORKING"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
	StatusRejected  Status = "REJECTED"
)

var ErrInvalidStatus = errors.New("invalid booking status")

// ParseStatus normalizes (uppercases+trims) and validates a status string.
func ParseStatus(in string) (Status, error) {
	status := Status(strings.ToUpper(strings.TrimSpace(in)))
	if status.Valid() {
		return status, nil
	}
	return "", ErrInvalidStatus
}

// Valid reports whether status is one of the allowed booking status constants.
func (status Status) Valid() bool {
	switch status {
	case StatusPending, StatusAccepted, StatusArrived, StatusWorking,
		StatusCompleted, StatusCancelled, StatusRejected:
		return true
	default:
		return false
	}
}

// String returns the string representation of the Status.
func (status Status) String() string {
	return string(status)
}

// CanTransitionTo specifies if the status can transition to the next status.
func (status Status) CanTransitionTo(next Status) bool {
	switch status {
	case StatusPending:
		return next == StatusAccepted || next == StatusCancelled || next == StatusRejected

	case StatusAccepted:
		return next == StatusArrived || next == StatusCancelled

	case StatusArrived:
		return next == StatusWorking || next == StatusCancelled

	case StatusWorking:
		return next == StatusCompleted || next == StatusCancelled

	case StatusCompleted, StatusCancelled, StatusRejected:
		return false

	default:
		return false
	}
}

// Terminal indicates if the status admits no further transitions.
func (status Status) Terminal() bool {
	return status == StatusCompleted || status == StatusCancelled || status == StatusRejected
}

// Rank orders the forward lifecycle so handlers can treat progression as
// monotonic regardless of event arrival order. Terminal absorbing states
// rank above everything; an unknown status ranks below PENDING.
func (status Status) Rank() int {
	switch status {
	case StatusPending:
		return 0
	case StatusAccepted:
		return 1
	case StatusArrived:
		return 2
	case StatusWorking:
		return 3
	case StatusCompleted:
		return 4
	case StatusCancelled, StatusRejected:
		return 5
	default:
		return -1
	}
}
