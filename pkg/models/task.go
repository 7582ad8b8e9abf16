package models

import "time"

// TaskStatus is the lifecycle status of a task history entry
type TaskStatus string

const (
	StatusPending   TaskStatus = "PENDING"
	StatusStarted   TaskStatus = "STARTED"
	StatusRetry     TaskStatus = "RETRY"
	StatusSuccess   TaskStatus = "SUCCESS"
	StatusFailure   TaskStatus = "FAILURE"
	StatusCancelled TaskStatus = "CANCELLED"
)

// IsTerminal returns true if the status permits no further transitions.
// FAILURE is not terminal: a failed entry may still be retried.
func (s TaskStatus) IsTerminal() bool {
	return s == StatusSuccess || s == StatusCancelled
}

// IsValid reports whether the value is a known status
func (s TaskStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusStarted, StatusRetry, StatusSuccess, StatusFailure, StatusCancelled:
		return true
	}
	return false
}

// TaskHistoryEntry is one queued or executed unit of work: a scenario plan
// step or a manually launched action. It is created when the unit is
// enqueued and afterwards mutated only by status-transition events.
type TaskHistoryEntry struct {
	ID         string                 `json:"id"`
	OwnerID    string                 `json:"owner_id"`
	TaskName   string                 `json:"task_name"`
	Status     TaskStatus             `json:"status"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
	Result     string                 `json:"result,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}
