package graph

import (
	"testing"

	"scenarioflow/pkg/models"
)

func action(id string, typ models.ActionType) models.Node {
	return models.Node{
		ID:     id,
		Kind:   models.NodeKindAction,
		Action: &models.ActionData{Type: typ},
	}
}

func condition(id string, pred models.Predicate) models.Node {
	return models.Node{
		ID:        id,
		Kind:      models.NodeKindCondition,
		Condition: &models.ConditionData{Predicate: pred},
	}
}

func edge(id, source, handle, target string) models.Edge {
	return models.Edge{ID: id, Source: source, SourceHandle: handle, Target: target}
}

func hasError(errs []GraphError, code string) bool {
	for _, e := range errs {
		if e.Code == code {
			return true
		}
	}
	return false
}

func TestValidate_ValidLinearScenario(t *testing.T) {
	s := &models.Scenario{
		Name: "linear",
		Nodes: []models.Node{
			{ID: "start", Kind: models.NodeKindStart},
			action("a1", models.ActionLikeFeed),
			action("a2", models.ActionViewStories),
		},
		Edges: []models.Edge{
			edge("e1", "start", "", "a1"),
			edge("e2", "a1", "", "a2"),
		},
	}

	if errs := NewValidator().Validate(s); len(errs) != 0 {
		t.Errorf("Expected no errors, got %v", errs)
	}
}

func TestValidate_NoStart(t *testing.T) {
	s := &models.Scenario{
		Nodes: []models.Node{action("a1", models.ActionLikeFeed)},
	}

	errs := NewValidator().Validate(s)
	if !hasError(errs, ErrCodeNoStart) {
		t.Errorf("Expected %s error, got %v", ErrCodeNoStart, errs)
	}
}

func TestValidate_MultipleStart(t *testing.T) {
	s := &models.Scenario{
		Nodes: []models.Node{
			{ID: "s1", Kind: models.NodeKindStart},
			{ID: "s2", Kind: models.NodeKindStart},
		},
	}

	errs := NewValidator().Validate(s)
	if !hasError(errs, ErrCodeMultipleStart) {
		t.Errorf("Expected %s error, got %v", ErrCodeMultipleStart, errs)
	}
}

func TestValidate_StartHasIncomingEdge(t *testing.T) {
	s := &models.Scenario{
		Nodes: []models.Node{
			{ID: "start", Kind: models.NodeKindStart},
			action("a1", models.ActionLikeFeed),
		},
		Edges: []models.Edge{
			edge("e1", "start", "", "a1"),
			edge("e2", "a1", "", "start"),
		},
	}

	errs := NewValidator().Validate(s)
	if !hasError(errs, ErrCodeStartHasInputs) {
		t.Errorf("Expected %s error, got %v", ErrCodeStartHasInputs, errs)
	}
}

func TestValidate_OrphanReported(t *testing.T) {
	s := &models.Scenario{
		Nodes: []models.Node{
			{ID: "start", Kind: models.NodeKindStart},
			action("a1", models.ActionLikeFeed),
			action("lonely", models.ActionViewStories),
		},
		Edges: []models.Edge{
			edge("e1", "start", "", "a1"),
		},
	}

	errs := NewValidator().Validate(s)
	if !hasError(errs, ErrCodeOrphanNode) {
		t.Errorf("Expected %s error, got %v", ErrCodeOrphanNode, errs)
	}
	for _, e := range errs {
		if e.Code == ErrCodeOrphanNode && e.NodeID != "lonely" {
			t.Errorf("Expected orphan report to point at 'lonely', got %q", e.NodeID)
		}
	}
}

func TestValidate_EdgeToMissingNode(t *testing.T) {
	s := &models.Scenario{
		Nodes: []models.Node{
			{ID: "start", Kind: models.NodeKindStart},
		},
		Edges: []models.Edge{
			edge("e1", "start", "", "ghost"),
		},
	}

	errs := NewValidator().Validate(s)
	if !hasError(errs, ErrCodeUnknownNodeRef) {
		t.Errorf("Expected %s error, got %v", ErrCodeUnknownNodeRef, errs)
	}
}

func TestValidate_ConditionHandleRules(t *testing.T) {
	base := func() *models.Scenario {
		return &models.Scenario{
			Nodes: []models.Node{
				{ID: "start", Kind: models.NodeKindStart},
				condition("c1", models.PredicateLastActionSuccess),
				action("a1", models.ActionLikeFeed),
				action("a2", models.ActionViewStories),
			},
		}
	}

	t.Run("missing false branch", func(t *testing.T) {
		s := base()
		s.Edges = []models.Edge{
			edge("e1", "start", "", "c1"),
			edge("e2", "c1", models.HandleTrue, "a1"),
			edge("e3", "a1", "", "a2"),
		}
		errs := NewValidator().Validate(s)
		if !hasError(errs, ErrCodeMissingBranch) {
			t.Errorf("Expected %s error, got %v", ErrCodeMissingBranch, errs)
		}
	})

	t.Run("duplicate true branch", func(t *testing.T) {
		s := base()
		s.Edges = []models.Edge{
			edge("e1", "start", "", "c1"),
			edge("e2", "c1", models.HandleTrue, "a1"),
			edge("e3", "c1", models.HandleTrue, "a2"),
			edge("e4", "c1", models.HandleFalse, "a2"),
		}
		errs := NewValidator().Validate(s)
		if !hasError(errs, ErrCodeDuplicateBranch) {
			t.Errorf("Expected %s error, got %v", ErrCodeDuplicateBranch, errs)
		}
	})

	t.Run("unlabeled condition output", func(t *testing.T) {
		s := base()
		s.Edges = []models.Edge{
			edge("e1", "start", "", "c1"),
			edge("e2", "c1", "", "a1"),
			edge("e3", "c1", models.HandleFalse, "a2"),
		}
		errs := NewValidator().Validate(s)
		if !hasError(errs, ErrCodeInvalidHandle) {
			t.Errorf("Expected %s error, got %v", ErrCodeInvalidHandle, errs)
		}
	})
}

func TestValidate_UnknownActionType(t *testing.T) {
	s := &models.Scenario{
		Nodes: []models.Node{
			{ID: "start", Kind: models.NodeKindStart},
			action("a1", models.ActionType("teleport")),
		},
		Edges: []models.Edge{
			edge("e1", "start", "", "a1"),
		},
	}

	errs := NewValidator().Validate(s)
	if !hasError(errs, ErrCodeUnknownAction) {
		t.Errorf("Expected %s error, got %v", ErrCodeUnknownAction, errs)
	}
}

func TestValidate_CycleRejected(t *testing.T) {
	s := &models.Scenario{
		Nodes: []models.Node{
			{ID: "start", Kind: models.NodeKindStart},
			action("a1", models.ActionLikeFeed),
			action("a2", models.ActionViewStories),
		},
		Edges: []models.Edge{
			edge("e1", "start", "", "a1"),
			edge("e2", "a1", "", "a2"),
			edge("e3", "a2", "", "a1"),
		},
	}

	errs := NewValidator().Validate(s)
	if !hasError(errs, ErrCodeCycle) {
		t.Errorf("Expected %s error, got %v", ErrCodeCycle, errs)
	}
}

func TestValidate_DetachedCycleReported(t *testing.T) {
	// c1 and c2 feed each other, so neither is an orphan by incoming-edge
	// count, yet Start never reaches them. Both the cycle and the
	// unreachable nodes must be surfaced.
	s := &models.Scenario{
		Nodes: []models.Node{
			{ID: "start", Kind: models.NodeKindStart},
			action("a1", models.ActionLikeFeed),
			action("c1", models.ActionViewStories),
			action("c2", models.ActionAddRecommended),
		},
		Edges: []models.Edge{
			edge("e1", "start", "", "a1"),
			edge("e2", "c1", "", "c2"),
			edge("e3", "c2", "", "c1"),
		},
	}

	errs := NewValidator().Validate(s)
	if !hasError(errs, ErrCodeCycle) {
		t.Errorf("Expected %s error for the detached cycle, got %v", ErrCodeCycle, errs)
	}

	orphans := make(map[string]bool)
	for _, e := range errs {
		if e.Code == ErrCodeOrphanNode {
			orphans[e.NodeID] = true
		}
	}
	if !orphans["c1"] || !orphans["c2"] {
		t.Errorf("Expected c1 and c2 reported unreachable, got %v", errs)
	}
	if orphans["a1"] {
		t.Errorf("a1 is reachable from start and must not be reported, got %v", errs)
	}
}

func TestValidate_ReportsAllErrorsAtOnce(t *testing.T) {
	// One scenario with an orphan, an unknown action type, and a dangling
	// edge: the validator must surface all three, not stop at the first.
	s := &models.Scenario{
		Nodes: []models.Node{
			{ID: "start", Kind: models.NodeKindStart},
			action("a1", models.ActionType("bogus")),
			action("lonely", models.ActionViewStories),
		},
		Edges: []models.Edge{
			edge("e1", "start", "", "a1"),
			edge("e2", "a1", "", "ghost"),
		},
	}

	errs := NewValidator().Validate(s)
	for _, code := range []string{ErrCodeOrphanNode, ErrCodeUnknownAction, ErrCodeUnknownNodeRef} {
		if !hasError(errs, code) {
			t.Errorf("Expected %s among errors, got %v", code, errs)
		}
	}
	if len(errs) < 3 {
		t.Errorf("Expected at least 3 errors, got %d", len(errs))
	}
}

func TestValidate_InvalidBatch(t *testing.T) {
	n := action("a1", models.ActionLikeFeed)
	n.Action.Batch = &models.BatchSettings{Parts: 0}
	s := &models.Scenario{
		Nodes: []models.Node{
			{ID: "start", Kind: models.NodeKindStart},
			n,
		},
		Edges: []models.Edge{edge("e1", "start", "", "a1")},
	}

	errs := NewValidator().Validate(s)
	if !hasError(errs, ErrCodeInvalidBatch) {
		t.Errorf("Expected %s error, got %v", ErrCodeInvalidBatch, errs)
	}
}
