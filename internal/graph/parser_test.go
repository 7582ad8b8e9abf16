package graph

import "testing"

const scenarioYAML = `
id: scn-yaml
name: morning-warmup
schedule: "0 9 * * 1,2,3,4,5"
is_active: true
nodes:
  - id: start
    kind: start
  - id: like
    kind: action
    action:
      action_type: like_feed
      settings:
        count: 50
  - id: check
    kind: condition
    condition:
      predicate: last_action_success
  - id: add
    kind: action
    action:
      action_type: add_recommended
  - id: stories
    kind: action
    action:
      action_type: view_stories
edges:
  - id: e1
    source_node_id: start
    target_node_id: like
  - id: e2
    source_node_id: like
    target_node_id: check
  - id: e3
    source_node_id: check
    source_handle: "true"
    target_node_id: add
  - id: e4
    source_node_id: check
    source_handle: "false"
    target_node_id: stories
`

func TestParseYAML(t *testing.T) {
	s, err := NewParser().ParseYAML([]byte(scenarioYAML))
	if err != nil {
		t.Fatalf("ParseYAML returned error: %v", err)
	}

	if s.Name != "morning-warmup" {
		t.Errorf("Expected name 'morning-warmup', got %q", s.Name)
	}
	if !s.IsActive {
		t.Error("Expected scenario to be active")
	}
	if len(s.Nodes) != 5 || len(s.Edges) != 4 {
		t.Errorf("Expected 5 nodes and 4 edges, got %d and %d", len(s.Nodes), len(s.Edges))
	}

	expr, err := s.Schedule.Cron()
	if err != nil {
		t.Fatalf("Schedule.Cron returned error: %v", err)
	}
	if expr != "0 9 * * 1,2,3,4,5" {
		t.Errorf("Expected schedule to round-trip, got %q", expr)
	}

	// Parsed definitions must compile without further massaging
	plan, err := NewCompiler().Compile(s)
	if err != nil {
		t.Fatalf("Compile returned error: %v", err)
	}
	if plan.StepCount() != 3 {
		t.Errorf("Expected 3 steps in the compiled plan, got %d", plan.StepCount())
	}
}

func TestParseJSON(t *testing.T) {
	data := []byte(`{
		"name": "simple",
		"nodes": [
			{"id": "start", "kind": "start"},
			{"id": "a1", "kind": "action", "action": {"action_type": "view_stories"}}
		],
		"edges": [
			{"id": "e1", "source_node_id": "start", "target_node_id": "a1"}
		]
	}`)

	s, err := NewParser().ParseJSON(data)
	if err != nil {
		t.Fatalf("ParseJSON returned error: %v", err)
	}
	if len(s.Nodes) != 2 {
		t.Errorf("Expected 2 nodes, got %d", len(s.Nodes))
	}
}

func TestParse_InvalidGraphRejected(t *testing.T) {
	data := []byte(`{
		"name": "broken",
		"nodes": [
			{"id": "a1", "kind": "action", "action": {"action_type": "view_stories"}}
		],
		"edges": []
	}`)

	if _, err := NewParser().ParseJSON(data); err == nil {
		t.Error("Expected error for definition without a start node, got nil")
	}
}

func TestParse_InvalidScheduleRejected(t *testing.T) {
	data := []byte(`{
		"name": "bad-schedule",
		"schedule": "0 9 * * *",
		"nodes": [{"id": "start", "kind": "start"}],
		"edges": []
	}`)

	if _, err := NewParser().ParseJSON(data); err == nil {
		t.Error("Expected error for wildcard day-of-week, got nil")
	}
}

func TestParse_MissingName(t *testing.T) {
	if _, err := NewParser().ParseJSON([]byte(`{"nodes": [], "edges": []}`)); err == nil {
		t.Error("Expected error for missing name, got nil")
	}
}
