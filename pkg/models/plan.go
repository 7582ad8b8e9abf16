package models

// CompiledPlan is the ordered, branch-aware execution form derived from a
// validated scenario graph. It is recomputed from the graph whenever needed
// and never persisted directly.
type CompiledPlan struct {
	ScenarioID string     `json:"scenario_id"`
	Items      []PlanItem `json:"items"`
}

// PlanItem is either a Step or a Branch; exactly one field is set.
type PlanItem struct {
	Step   *Step   `json:"step,omitempty"`
	Branch *Branch `json:"branch,omitempty"`
}

// Step wraps one Action node's configuration as a unit of work
type Step struct {
	NodeID string     `json:"node_id"`
	Action ActionData `json:"action"`
}

// Branch wraps a Condition node's predicate plus the sub-plans executed
// when the predicate evaluates true or false.
type Branch struct {
	NodeID    string                 `json:"node_id"`
	Predicate Predicate              `json:"predicate"`
	Params    map[string]interface{} `json:"params,omitempty"`
	True      []PlanItem             `json:"true"`
	False     []PlanItem             `json:"false"`
}

// StepCount returns the number of steps in the plan, counting both sides
// of every branch.
func (p *CompiledPlan) StepCount() int {
	return countSteps(p.Items)
}

func countSteps(items []PlanItem) int {
	n := 0
	for _, it := range items {
		if it.Step != nil {
			n++
		}
		if it.Branch != nil {
			n += countSteps(it.Branch.True) + countSteps(it.Branch.False)
		}
	}
	return n
}
