package navigation

import "errors"

// Phase is the worker-side navigation sub-state for one accepted booking.
type Phase string

const (
	PhaseIdle       Phase = "IDLE"
	PhaseNavigating Phase = "NAVIGATING"
	PhaseArrived    Phase = "ARRIVED"
	PhaseWorking    Phase = "WORKING"
	PhaseCompleted  Phase = "COMPLETED"
)

var ErrInvalidPhaseTransition = errors.New("invalid navigation phase transition")

// CanTransitionTo specifies if the phase can transition to the next phase.
func (phase Phase) CanTransitionTo(next Phase) bool {
	switch phase {
	case PhaseIdle:
		return next == PhaseNavigating
	case PhaseNavigating:
		return next == PhaseArrived
	case PhaseArrived:
		return next == PhaseWorking
	case PhaseWorking:
		return next == PhaseCompleted
	default:
		return false
	}
}

// Terminal indicates the sub-flow is finished.
func (phase Phase) Terminal() bool {
	return phase == PhaseCompleted
}

// String returns the string representation of the Phase.
func (phase Phase) String() string {
	return string(phase)
}
