package storage

import (
	"testing"

	"github.com/google/uuid"

	"scenarioflow/pkg/models"
)

func TestScenarioModelRoundTrip(t *testing.T) {
	s := models.NewScenario(uuid.New().String(), "user-1", "warmup")
	s.Schedule = models.ScheduleSpec{Minute: 30, Hour: 8, Days: []int{1, 3, 5}}
	s.IsActive = true
	s.Nodes = append(s.Nodes, models.Node{
		ID:     "n1",
		Kind:   models.NodeKindAction,
		Action: &models.ActionData{Type: models.ActionLikeFeed, Settings: map[string]interface{}{"max": float64(40)}},
	})
	s.Edges = append(s.Edges, models.Edge{ID: "e1", Source: "start", Target: "n1"})

	m, err := FromScenario(s)
	if err != nil {
		t.Fatalf("FromScenario: %v", err)
	}
	if m.Schedule != "30 8 * * 1,3,5" {
		t.Fatalf("stored schedule = %q", m.Schedule)
	}

	got, err := m.ToScenario()
	if err != nil {
		t.Fatalf("ToScenario: %v", err)
	}
	if got.ID != s.ID || got.OwnerID != "user-1" || got.Name != "warmup" {
		t.Fatalf("identity lost: %+v", got)
	}
	if !got.IsActive {
		t.Fatal("is_active lost")
	}
	if got.Schedule.Minute != 30 || got.Schedule.Hour != 8 || len(got.Schedule.Days) != 3 {
		t.Fatalf("schedule = %+v", got.Schedule)
	}
	if len(got.Nodes) != 2 || len(got.Edges) != 1 {
		t.Fatalf("graph lost: %d nodes, %d edges", len(got.Nodes), len(got.Edges))
	}
	if got.Nodes[1].Action == nil || got.Nodes[1].Action.Type != models.ActionLikeFeed {
		t.Fatalf("action payload lost: %+v", got.Nodes[1])
	}
}

func TestScenarioModelRoundTrip_NoSchedule(t *testing.T) {
	s := models.NewScenario(uuid.New().String(), "user-1", "manual only")

	m, err := FromScenario(s)
	if err != nil {
		t.Fatalf("FromScenario: %v", err)
	}
	if m.Schedule != "" {
		t.Fatalf("unscheduled scenario stored %q", m.Schedule)
	}

	got, err := m.ToScenario()
	if err != nil {
		t.Fatalf("ToScenario: %v", err)
	}
	if !got.Schedule.IsZero() {
		t.Fatalf("schedule = %+v, want zero", got.Schedule)
	}
}

func TestTaskHistoryModelToEntry(t *testing.T) {
	scenarioID := uuid.New().String()
	m := &TaskHistoryModel{
		ID:         uuid.New(),
		OwnerID:    "user-1",
		ScenarioID: &scenarioID,
		TaskName:   "like_feed",
		Status:     string(models.StatusSuccess),
		Parameters: JSONB{"max": float64(40)},
		Result:     "40 posts liked",
	}

	e := m.ToEntry()
	if e.Status != models.StatusSuccess {
		t.Fatalf("status = %s", e.Status)
	}
	if e.TaskName != "like_feed" || e.Result != "40 posts liked" {
		t.Fatalf("entry = %+v", e)
	}
	if e.Parameters["max"] != float64(40) {
		t.Fatalf("parameters = %v", e.Parameters)
	}
}
