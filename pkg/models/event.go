package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// PushEventType tags the payload of a push-channel frame
type PushEventType string

const (
	EventLog               PushEventType = "log"
	EventStatsUpdate       PushEventType = "stats_update"
	EventTaskHistoryUpdate PushEventType = "task_history_update"
	EventNewNotification   PushEventType = "new_notification"
)

// PushEvent is a server-to-client message delivered over the persistent
// channel. ID is the event identity, unique per emission: the same logical
// change delivered twice carries the same ID, a later legitimate repeat of
// an equal-looking change carries a new one.
type PushEvent struct {
	ID      string          `json:"id"`
	Type    PushEventType   `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// TaskHistoryUpdatePayload carries a status transition for one entry
type TaskHistoryUpdatePayload struct {
	EntryID string     `json:"entry_id"`
	Status  TaskStatus `json:"status"`
	Result  string     `json:"result,omitempty"`
}

// StatsUpdatePayload carries replacement values for named live counters
type StatsUpdatePayload struct {
	Counters map[string]int64 `json:"counters"`
}

// LogPayload carries one live log line
type LogPayload struct {
	Level   string    `json:"level"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// NotificationPayload announces that the server-side notification list
// changed; the list itself must be refetched.
type NotificationPayload struct {
	Kind string `json:"kind,omitempty"`
}

// NewPushEvent builds an event of the given type around a payload value
func NewPushEvent(id string, typ PushEventType, payload interface{}) (PushEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return PushEvent{}, fmt.Errorf("failed to marshal %s payload: %w", typ, err)
	}
	return PushEvent{ID: id, Type: typ, Payload: data}, nil
}

// TaskHistoryUpdate decodes the payload of a task_history_update event
func (e PushEvent) TaskHistoryUpdate() (TaskHistoryUpdatePayload, error) {
	var p TaskHistoryUpdatePayload
	if e.Type != EventTaskHistoryUpdate {
		return p, fmt.Errorf("event type is %s, not %s", e.Type, EventTaskHistoryUpdate)
	}
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return p, fmt.Errorf("failed to decode payload: %w", err)
	}
	return p, nil
}

// StatsUpdate decodes the payload of a stats_update event
func (e PushEvent) StatsUpdate() (StatsUpdatePayload, error) {
	var p StatsUpdatePayload
	if e.Type != EventStatsUpdate {
		return p, fmt.Errorf("event type is %s, not %s", e.Type, EventStatsUpdate)
	}
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return p, fmt.Errorf("failed to decode payload: %w", err)
	}
	return p, nil
}

// Log decodes the payload of a log event
func (e PushEvent) Log() (LogPayload, error) {
	var p LogPayload
	if e.Type != EventLog {
		return p, fmt.Errorf("event type is %s, not %s", e.Type, EventLog)
	}
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return p, fmt.Errorf("failed to decode payload: %w", err)
	}
	return p, nil
}
