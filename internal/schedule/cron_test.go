package schedule

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"scenarioflow/pkg/models"
)

func testScenario(id string, active bool) *models.Scenario {
	return &models.Scenario{
		ID:       id,
		Name:     "test",
		IsActive: active,
		Schedule: models.ScheduleSpec{Minute: 0, Hour: 9, Days: []int{1, 2, 3, 4, 5}},
	}
}

func newTestScheduler() *Scheduler {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return NewScheduler(time.UTC, func(string, time.Time) {}, log)
}

func TestScheduler_RegisterActive(t *testing.T) {
	s := newTestScheduler()

	if err := s.Register(testScenario("scn-1", true)); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	ids := s.Registered()
	if len(ids) != 1 || ids[0] != "scn-1" {
		t.Errorf("Expected [scn-1] registered, got %v", ids)
	}
}

func TestScheduler_InactiveSkipped(t *testing.T) {
	s := newTestScheduler()

	if err := s.Register(testScenario("scn-1", false)); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if len(s.Registered()) != 0 {
		t.Error("Expected inactive scenario to be skipped")
	}
}

func TestScheduler_ZeroScheduleSkipped(t *testing.T) {
	s := newTestScheduler()
	scenario := testScenario("scn-1", true)
	scenario.Schedule = models.ScheduleSpec{}

	if err := s.Register(scenario); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if len(s.Registered()) != 0 {
		t.Error("Expected scenario without a schedule to be skipped")
	}
}

func TestScheduler_DuplicateRegisterRejected(t *testing.T) {
	s := newTestScheduler()

	if err := s.Register(testScenario("scn-1", true)); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if err := s.Register(testScenario("scn-1", true)); err == nil {
		t.Error("Expected error for duplicate registration, got nil")
	}
}

func TestScheduler_Replace(t *testing.T) {
	s := newTestScheduler()

	if err := s.Register(testScenario("scn-1", true)); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	// Toggling inactive through Replace drops the trigger
	if err := s.Replace(testScenario("scn-1", false)); err != nil {
		t.Fatalf("Replace returned error: %v", err)
	}
	if len(s.Registered()) != 0 {
		t.Error("Expected trigger to be dropped after deactivation")
	}

	if err := s.Replace(testScenario("scn-1", true)); err != nil {
		t.Fatalf("Replace returned error: %v", err)
	}
	if len(s.Registered()) != 1 {
		t.Error("Expected trigger to be restored after reactivation")
	}
}

func TestScheduler_NextFire(t *testing.T) {
	s := newTestScheduler()
	s.Start()
	defer s.Stop()

	if err := s.Register(testScenario("scn-1", true)); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	next, err := s.NextFire("scn-1")
	if err != nil {
		t.Fatalf("NextFire returned error: %v", err)
	}
	if next.IsZero() || !next.After(time.Now().Add(-time.Minute)) {
		t.Errorf("Expected a future fire time, got %v", next)
	}
	if next.Hour() != 9 || next.Minute() != 0 {
		t.Errorf("Expected fire at 09:00, got %v", next)
	}

	if _, err := s.NextFire("missing"); err == nil {
		t.Error("Expected error for unregistered scenario, got nil")
	}
}
