// Package schedule registers active scenarios with a cron runner and fires
// their runs at the times described by their ScheduleSpec.
package schedule

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"scenarioflow/pkg/models"
)

// TriggerFunc is invoked when a scenario's schedule fires
type TriggerFunc func(scenarioID string, firedAt time.Time)

// Scheduler manages the recurring triggers of active scenarios. One entry
// exists per scenario; replacing a scenario's schedule means unregistering
// and registering again, which mirrors the replace-on-save document model.
type Scheduler struct {
	cron     *cron.Cron
	location *time.Location
	trigger  TriggerFunc
	log      *logrus.Logger

	mu      sync.RWMutex
	entries map[string]cron.EntryID
}

// NewScheduler creates a scenario scheduler firing in the given location
func NewScheduler(location *time.Location, trigger TriggerFunc, log *logrus.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithLocation(location)),
		location: location,
		trigger:  trigger,
		log:      log,
		entries:  make(map[string]cron.EntryID),
	}
}

// Start starts the underlying cron runner
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops the runner and waits for in-flight triggers to return
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// Register adds a scenario's recurring trigger. Inactive scenarios and
// scenarios without a schedule are skipped without error, so callers can
// feed every saved scenario through unconditionally.
func (s *Scheduler) Register(scenario *models.Scenario) error {
	if !scenario.IsActive || scenario.Schedule.IsZero() {
		return nil
	}

	expr, err := scenario.Schedule.Cron()
	if err != nil {
		return fmt.Errorf("scenario %s has an invalid schedule: %w", scenario.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[scenario.ID]; exists {
		return fmt.Errorf("scenario %s is already registered", scenario.ID)
	}

	id := scenario.ID
	entryID, err := s.cron.AddFunc(expr, func() {
		s.trigger(id, time.Now().In(s.location))
	})
	if err != nil {
		return fmt.Errorf("failed to add cron entry: %w", err)
	}

	s.entries[id] = entryID
	s.log.WithFields(logrus.Fields{"scenario_id": id, "cron": expr}).Info("Scenario schedule registered")
	return nil
}

// Unregister removes a scenario's trigger if present
func (s *Scheduler) Unregister(scenarioID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, exists := s.entries[scenarioID]; exists {
		s.cron.Remove(entryID)
		delete(s.entries, scenarioID)
	}
}

// Replace swaps a scenario's registration for its saved state. Used after
// every save and after activation toggles.
func (s *Scheduler) Replace(scenario *models.Scenario) error {
	s.Unregister(scenario.ID)
	return s.Register(scenario)
}

// Registered returns the ids of all currently scheduled scenarios
func (s *Scheduler) Registered() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	return ids
}

// NextFire returns the next trigger time for a registered scenario
func (s *Scheduler) NextFire(scenarioID string) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entryID, exists := s.entries[scenarioID]
	if !exists {
		return time.Time{}, fmt.Errorf("scenario %s is not registered", scenarioID)
	}
	return s.cron.Entry(entryID).Next, nil
}
