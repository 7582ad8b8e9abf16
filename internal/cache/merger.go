// Package cache holds the client-side read model and the merge discipline
// that folds server push events into it. Apply never mutates its input, so
// the merge is unit-testable and replaying an event is harmless.
package cache

import (
	"scenarioflow/pkg/models"
)

// DefaultLogCap bounds the live log ring buffer
const DefaultLogCap = 500

// seenEventCap bounds the set of event ids remembered for deduplication
const seenEventCap = 1024

// Snapshot is the local read model: live counters, the currently
// materialized task-history page, the notification staleness flag, and the
// bounded live log.
type Snapshot struct {
	Counters map[string]int64
	// Tasks holds the task-history entries of the materialized page(s),
	// keyed by entry id. Events for entries outside this set are ignored.
	Tasks map[string]models.TaskHistoryEntry
	// NotificationsStale is set when the server-side notification list
	// changed; the list must be refetched, never locally appended.
	NotificationsStale bool
	Logs               []models.LogPayload

	// seen remembers applied event ids in arrival order for dedup
	seen      map[string]bool
	seenOrder []string
}

// NewSnapshot creates an empty read model
func NewSnapshot() Snapshot {
	return Snapshot{
		Counters: make(map[string]int64),
		Tasks:    make(map[string]models.TaskHistoryEntry),
	}
}

// MaterializeTasks replaces the cached task page after a fetch
func (s Snapshot) MaterializeTasks(entries []models.TaskHistoryEntry) Snapshot {
	next := s.clone()
	next.Tasks = make(map[string]models.TaskHistoryEntry, len(entries))
	for _, e := range entries {
		next.Tasks[e.ID] = e
	}
	return next
}

// Notice is a user-facing notification surfaced by a merge, emitted at
// most once per event identity.
type Notice struct {
	EntryID string
	Status  models.TaskStatus
	Result  string
}

// Merger applies push events to a Snapshot
type Merger struct {
	// LogCap overrides DefaultLogCap when positive
	LogCap int
}

// NewMerger creates a merger with the default log capacity
func NewMerger() *Merger {
	return &Merger{}
}

func (m *Merger) logCap() int {
	if m.LogCap > 0 {
		return m.LogCap
	}
	return DefaultLogCap
}

// Apply folds one push event into the snapshot and returns the new
// snapshot plus any notices to surface. Applying the same event (by id)
// twice returns the state unchanged with no notices. Events the snapshot
// cannot place, such as updates for entries on pages that are not
// materialized, are dropped without fabricating rows.
func (m *Merger) Apply(s Snapshot, event models.PushEvent) (Snapshot, []Notice) {
	if event.ID != "" && s.seen[event.ID] {
		return s, nil
	}

	next := s.clone()
	next.remember(event.ID)

	var notices []Notice
	switch event.Type {
	case models.EventStatsUpdate:
		payload, err := event.StatsUpdate()
		if err != nil {
			return next, nil
		}
		// Last write wins, counter by counter
		for name, value := range payload.Counters {
			next.Counters[name] = value
		}

	case models.EventTaskHistoryUpdate:
		payload, err := event.TaskHistoryUpdate()
		if err != nil {
			return next, nil
		}
		entry, ok := next.Tasks[payload.EntryID]
		if !ok {
			return next, nil
		}
		entry.Status = payload.Status
		entry.Result = payload.Result
		next.Tasks[payload.EntryID] = entry

		if payload.Status == models.StatusSuccess || payload.Status == models.StatusFailure || payload.Status == models.StatusCancelled {
			notices = append(notices, Notice{
				EntryID: payload.EntryID,
				Status:  payload.Status,
				Result:  payload.Result,
			})
		}

	case models.EventNewNotification:
		next.NotificationsStale = true

	case models.EventLog:
		payload, err := event.Log()
		if err != nil {
			return next, nil
		}
		next.Logs = append(next.Logs, payload)
		if limit := m.logCap(); len(next.Logs) > limit {
			next.Logs = next.Logs[len(next.Logs)-limit:]
		}
	}

	return next, notices
}

// clone makes a shallow-data deep-structure copy of the snapshot
func (s Snapshot) clone() Snapshot {
	next := Snapshot{
		Counters:           make(map[string]int64, len(s.Counters)),
		Tasks:              make(map[string]models.TaskHistoryEntry, len(s.Tasks)),
		NotificationsStale: s.NotificationsStale,
		Logs:               append([]models.LogPayload(nil), s.Logs...),
		seen:               make(map[string]bool, len(s.seen)),
		seenOrder:          append([]string(nil), s.seenOrder...),
	}
	for k, v := range s.Counters {
		next.Counters[k] = v
	}
	for k, v := range s.Tasks {
		next.Tasks[k] = v
	}
	for k := range s.seen {
		next.seen[k] = true
	}
	return next
}

// remember records an event id for dedup, evicting the oldest once the
// cap is reached.
func (s *Snapshot) remember(id string) {
	if id == "" {
		return
	}
	s.seen[id] = true
	s.seenOrder = append(s.seenOrder, id)
	if len(s.seenOrder) > seenEventCap {
		evict := s.seenOrder[0]
		s.seenOrder = s.seenOrder[1:]
		delete(s.seen, evict)
	}
}
