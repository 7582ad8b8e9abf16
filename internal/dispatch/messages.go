// Package dispatch enqueues compiled plan steps for execution, folds
// worker results through the task lifecycle machine, and emits the push
// events clients observe.
package dispatch

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"scenarioflow/pkg/models"
)

const (
	// StepsSubject carries steps waiting for a worker
	StepsSubject = "scenario.steps.pending"

	// ResultsSubject carries worker status reports
	ResultsSubject = "scenario.steps.results"

	// WorkersQueue is the queue group workers subscribe with, so each
	// step is delivered to exactly one worker.
	WorkersQueue = "scenario-workers"
)

// StepMessage is one unit of work handed to a worker
type StepMessage struct {
	EntryID    string                 `json:"entry_id"`
	OwnerID    string                 `json:"owner_id"`
	ActionType models.ActionType      `json:"action_type"`
	Settings   map[string]interface{} `json:"settings,omitempty"`
	Filters    map[string]interface{} `json:"filters,omitempty"`
	BatchParts int                    `json:"batch_parts,omitempty"`
}

// ResultMessage is a worker's status report for an entry. Workers report
// STARTED when they pick a step up and SUCCESS or FAILURE when done.
type ResultMessage struct {
	EntryID  string            `json:"entry_id"`
	WorkerID string            `json:"worker_id"`
	Status   models.TaskStatus `json:"status"`
	Result   string            `json:"result,omitempty"`
}

// StepQueue abstracts the transport that carries steps to workers
type StepQueue interface {
	PublishStep(msg StepMessage) error
}

// NATSStepQueue publishes steps over NATS
type NATSStepQueue struct {
	nc *nats.Conn
}

// NewNATSStepQueue creates a NATS-backed step queue
func NewNATSStepQueue(nc *nats.Conn) *NATSStepQueue {
	return &NATSStepQueue{nc: nc}
}

// PublishStep publishes one step to the pending subject
func (q *NATSStepQueue) PublishStep(msg StepMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal step: %w", err)
	}
	if err := q.nc.Publish(StepsSubject, data); err != nil {
		return fmt.Errorf("failed to publish step: %w", err)
	}
	return nil
}
