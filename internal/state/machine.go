package state

import (
	"errors"
	"fmt"

	"scenarioflow/pkg/models"
)

var (
	// ErrInvalidTransition is returned when an illegal status transition
	// is attempted. Illegal moves are rejected, never silently ignored.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrNotCancellable is returned when cancel is requested for an entry
	// whose status does not allow it.
	ErrNotCancellable = errors.New("entry cannot be cancelled in its current status")

	// ErrNotRetryable is returned when retry is requested for an entry
	// whose status is not FAILURE.
	ErrNotRetryable = errors.New("entry can only be retried after a failure")
)

// Machine encodes the task lifecycle: PENDING -> STARTED -> SUCCESS or
// FAILURE, CANCELLED reachable while the entry is still live, and
// FAILURE -> RETRY -> PENDING re-entering the queue. The table is
// exhaustive: anything not listed, including a transition to the current
// status, is rejected. Duplicate delivery of the same event is absorbed by
// the cache merger, not here.
type Machine struct {
	transitions map[models.TaskStatus][]models.TaskStatus
}

// NewMachine creates a task lifecycle state machine
func NewMachine() *Machine {
	return &Machine{
		transitions: map[models.TaskStatus][]models.TaskStatus{
			models.StatusPending: {
				models.StatusStarted,
				models.StatusCancelled,
			},
			models.StatusStarted: {
				models.StatusSuccess,
				models.StatusFailure,
				models.StatusCancelled,
			},
			models.StatusFailure: {
				models.StatusRetry,
			},
			models.StatusRetry: {
				models.StatusPending,
			},
			// Terminal statuses
			models.StatusSuccess:   {},
			models.StatusCancelled: {},
		},
	}
}

// CanTransition checks whether the move is in the transition table
func (m *Machine) CanTransition(from, to models.TaskStatus) bool {
	for _, s := range m.transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns ErrInvalidTransition (wrapped with the pair)
// when the move is not allowed.
func (m *Machine) ValidateTransition(from, to models.TaskStatus) error {
	if !m.CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// NextStatuses returns the statuses reachable from the given one
func (m *Machine) NextStatuses(from models.TaskStatus) []models.TaskStatus {
	return m.transitions[from]
}

// CanCancel reports whether an operator may cancel an entry in this
// status. Cancel is a request to the executor; local state changes only
// when the confirming push event arrives.
func (m *Machine) CanCancel(status models.TaskStatus) bool {
	return status == models.StatusPending || status == models.StatusStarted || status == models.StatusRetry
}

// CanRetry reports whether an operator may retry an entry in this status
func (m *Machine) CanRetry(status models.TaskStatus) bool {
	return status == models.StatusFailure
}

// ValidateCancel guards an operator cancel request
func (m *Machine) ValidateCancel(status models.TaskStatus) error {
	if !m.CanCancel(status) {
		return fmt.Errorf("%w: status is %s", ErrNotCancellable, status)
	}
	return nil
}

// ValidateRetry guards an operator retry request
func (m *Machine) ValidateRetry(status models.TaskStatus) error {
	if !m.CanRetry(status) {
		return fmt.Errorf("%w: status is %s", ErrNotRetryable, status)
	}
	return nil
}
