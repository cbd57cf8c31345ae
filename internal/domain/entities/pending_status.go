package entities

import "fmt"

// PendingStatus represents the status of a pending inbound transaction
type PendingStatus string

const (
	PendingStatusPending    PendingStatus = "pending"
	PendingStatusConfirming PendingStatus = "confirming"
	PendingStatusConfirmed  PendingStatus = "confirmed"
	PendingStatusFailed     PendingStatus = "failed"
	PendingStatusExpired    PendingStatus = "expired"
)

// ValidPendingStatuses contains all valid pending transaction statuses
var ValidPendingStatuses = map[PendingStatus]bool{
	PendingStatusPending:    true,
	PendingStatusConfirming: true,
	PendingStatusConfirmed:  true,
	PendingStatusFailed:     true,
	PendingStatusExpired:    true,
}

// ValidPendingTransitions defines allowed status transitions
var ValidPendingTransitions = map[PendingStatus][]PendingStatus{
	PendingStatusPending:    {PendingStatusConfirming, PendingStatusConfirmed, PendingStatusFailed, PendingStatusExpired},
	PendingStatusConfirming: {PendingStatusConfirmed, PendingStatusFailed, PendingStatusExpired},
	PendingStatusConfirmed:  {}, // Terminal state
	PendingStatusFailed:     {}, // Terminal state
	PendingStatusExpired:    {}, // Terminal state
}

// IsValid checks if the status is a valid pending transaction status
func (s PendingStatus) IsValid() bool {
	return ValidPendingStatuses[s]
}

// CanTransitionTo checks if transition to new status is allowed
func (s PendingStatus) CanTransitionTo(newStatus PendingStatus) bool {
	allowed, exists := ValidPendingTransitions[s]
	if !exists {
		return false
	}
	for _, status := range allowed {
		if status == newStatus {
			return true
		}
	}
	return false
}

// IsTerminal returns true if this is a terminal state
func (s PendingStatus) IsTerminal() bool {
	return s == PendingStatusConfirmed || s == PendingStatusFailed || s == PendingStatusExpired
}

// ValidateTransition validates and returns error if transition is invalid
func (s PendingStatus) ValidateTransition(newStatus PendingStatus) error {
	if !newStatus.IsValid() {
		return fmt.Errorf("invalid pending transaction status: %s", newStatus)
	}
	if !s.CanTransitionTo(newStatus) {
		return fmt.Errorf("invalid status transition from %s to %s", s, newStatus)
	}
	return nil
}
