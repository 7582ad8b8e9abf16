package graph

import (
	"fmt"

	"scenarioflow/pkg/models"
)

// GraphError describes one structural problem in a scenario graph. NodeID
// or EdgeID point at the offending element so an editor can highlight it.
type GraphError struct {
	Code    string `json:"code"`
	NodeID  string `json:"node_id,omitempty"`
	EdgeID  string `json:"edge_id,omitempty"`
	Message string `json:"message"`
}

// Error codes reported by the validator
const (
	ErrCodeNoStart         = "no_start"
	ErrCodeMultipleStart   = "multiple_start"
	ErrCodeStartHasInputs  = "start_has_inputs"
	ErrCodeOrphanNode      = "orphan_node"
	ErrCodeUnknownNodeRef  = "unknown_node_ref"
	ErrCodeInvalidHandle   = "invalid_handle"
	ErrCodeMissingBranch   = "missing_branch"
	ErrCodeDuplicateBranch = "duplicate_branch"
	ErrCodeMultipleOutputs = "multiple_outputs"
	ErrCodeUnknownAction   = "unknown_action"
	ErrCodeMissingPayload  = "missing_payload"
	ErrCodeInvalidBatch    = "invalid_batch"
	ErrCodeCycle           = "cycle"
)

func (e GraphError) Error() string {
	switch {
	case e.NodeID != "":
		return fmt.Sprintf("%s: node %s: %s", e.Code, e.NodeID, e.Message)
	case e.EdgeID != "":
		return fmt.Sprintf("%s: edge %s: %s", e.Code, e.EdgeID, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Validator checks the structural invariants a scenario must satisfy
// before it can be compiled or saved.
type Validator struct{}

// NewValidator creates a new scenario graph validator
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks all structural rules and returns every violation found,
// not just the first, so the editor can highlight all offending elements at
// once. A nil result means the scenario is valid.
func (v *Validator) Validate(s *models.Scenario) []GraphError {
	var errs []GraphError
	g := NewGraph(s)

	errs = append(errs, v.checkStart(s, g)...)
	errs = append(errs, v.checkEdgeRefs(s, g)...)
	errs = append(errs, v.checkNodes(s, g)...)
	errs = append(errs, v.checkReachability(s, g)...)
	errs = append(errs, v.checkCycles(s, g)...)

	return errs
}

// checkStart enforces exactly one Start node with no incoming edges
func (v *Validator) checkStart(s *models.Scenario, g *Graph) []GraphError {
	var errs []GraphError
	var starts []string
	for _, n := range s.Nodes {
		if n.Kind == models.NodeKindStart {
			starts = append(starts, n.ID)
		}
	}

	switch {
	case len(starts) == 0:
		errs = append(errs, GraphError{
			Code:    ErrCodeNoStart,
			Message: "scenario must have a start node",
		})
	case len(starts) > 1:
		for _, id := range starts[1:] {
			errs = append(errs, GraphError{
				Code:    ErrCodeMultipleStart,
				NodeID:  id,
				Message: "scenario must have exactly one start node",
			})
		}
	}

	for _, id := range starts {
		if len(g.Incoming(id)) > 0 {
			errs = append(errs, GraphError{
				Code:    ErrCodeStartHasInputs,
				NodeID:  id,
				Message: "start node cannot have incoming edges",
			})
		}
	}
	return errs
}

// checkEdgeRefs enforces that edges reference existing nodes and that
// condition sources use a valid branch handle.
func (v *Validator) checkEdgeRefs(s *models.Scenario, g *Graph) []GraphError {
	var errs []GraphError
	for _, e := range s.Edges {
		if g.Node(e.Source) == nil {
			errs = append(errs, GraphError{
				Code:    ErrCodeUnknownNodeRef,
				EdgeID:  e.ID,
				Message: fmt.Sprintf("source node %s does not exist", e.Source),
			})
		}
		if g.Node(e.Target) == nil {
			errs = append(errs, GraphError{
				Code:    ErrCodeUnknownNodeRef,
				EdgeID:  e.ID,
				Message: fmt.Sprintf("target node %s does not exist", e.Target),
			})
		}

		if src := g.Node(e.Source); src != nil && src.Kind == models.NodeKindCondition {
			if e.SourceHandle != models.HandleTrue && e.SourceHandle != models.HandleFalse {
				errs = append(errs, GraphError{
					Code:    ErrCodeInvalidHandle,
					EdgeID:  e.ID,
					Message: fmt.Sprintf("condition output handle must be %q or %q, got %q", models.HandleTrue, models.HandleFalse, e.SourceHandle),
				})
			}
		}
	}
	return errs
}

// checkNodes enforces per-kind payload rules and output arity
func (v *Validator) checkNodes(s *models.Scenario, g *Graph) []GraphError {
	var errs []GraphError
	for _, n := range s.Nodes {
		switch n.Kind {
		case models.NodeKindStart:
			if len(g.Outgoing(n.ID)) > 1 {
				errs = append(errs, GraphError{
					Code:    ErrCodeMultipleOutputs,
					NodeID:  n.ID,
					Message: "start node can have at most one outgoing edge",
				})
			}

		case models.NodeKindAction:
			if n.Action == nil {
				errs = append(errs, GraphError{
					Code:    ErrCodeMissingPayload,
					NodeID:  n.ID,
					Message: "action node has no action data",
				})
			} else {
				if !n.Action.Type.IsValid() {
					errs = append(errs, GraphError{
						Code:    ErrCodeUnknownAction,
						NodeID:  n.ID,
						Message: fmt.Sprintf("unknown action type %q", n.Action.Type),
					})
				}
				if n.Action.Batch != nil && n.Action.Batch.Parts < 1 {
					errs = append(errs, GraphError{
						Code:    ErrCodeInvalidBatch,
						NodeID:  n.ID,
						Message: fmt.Sprintf("batch parts must be at least 1, got %d", n.Action.Batch.Parts),
					})
				}
			}
			if len(g.Outgoing(n.ID)) > 1 {
				errs = append(errs, GraphError{
					Code:    ErrCodeMultipleOutputs,
					NodeID:  n.ID,
					Message: "action node can have at most one outgoing edge",
				})
			}

		case models.NodeKindCondition:
			if n.Condition == nil {
				errs = append(errs, GraphError{
					Code:    ErrCodeMissingPayload,
					NodeID:  n.ID,
					Message: "condition node has no condition data",
				})
			} else if !n.Condition.Predicate.IsValid() {
				errs = append(errs, GraphError{
					Code:    ErrCodeUnknownAction,
					NodeID:  n.ID,
					Message: fmt.Sprintf("unknown predicate %q", n.Condition.Predicate),
				})
			}
			errs = append(errs, v.checkBranchArity(n.ID, g)...)
		}
	}
	return errs
}

// checkBranchArity enforces exactly one outgoing edge per condition handle
func (v *Validator) checkBranchArity(nodeID string, g *Graph) []GraphError {
	var errs []GraphError
	for _, handle := range []string{models.HandleTrue, models.HandleFalse} {
		edges := g.OutgoingByHandle(nodeID, handle)
		switch {
		case len(edges) == 0:
			errs = append(errs, GraphError{
				Code:    ErrCodeMissingBranch,
				NodeID:  nodeID,
				Message: fmt.Sprintf("condition is missing its %q branch", handle),
			})
		case len(edges) > 1:
			errs = append(errs, GraphError{
				Code:    ErrCodeDuplicateBranch,
				NodeID:  nodeID,
				Message: fmt.Sprintf("condition has %d edges on its %q branch", len(edges), handle),
			})
		}
	}
	return errs
}

// checkReachability reports every node the compiler would never reach from
// Start. Unreachable nodes are reported, never silently dropped; an incoming
// edge from another detached node does not make a node reachable.
func (v *Validator) checkReachability(s *models.Scenario, g *Graph) []GraphError {
	var errs []GraphError
	start := s.StartNode()

	var reached map[string]bool
	if start != nil {
		reached = g.ReachableFrom(start.ID)
	}

	for _, n := range s.Nodes {
		if n.Kind == models.NodeKindStart {
			continue
		}
		unreachable := len(g.Incoming(n.ID)) == 0
		if reached != nil {
			unreachable = !reached[n.ID]
		}
		if unreachable {
			errs = append(errs, GraphError{
				Code:    ErrCodeOrphanNode,
				NodeID:  n.ID,
				Message: "node is not reachable from start and would never execute",
			})
		}
	}
	return errs
}

// checkCycles rejects cycles anywhere in the graph, not only along paths
// from Start. A cyclic automation would never terminate, so it is rejected
// rather than broken; a cycle in a detached component is still a defect the
// editor must surface.
func (v *Validator) checkCycles(s *models.Scenario, g *Graph) []GraphError {
	// DFS colors: 0 = unvisited, 1 = on stack, 2 = done
	colors := make(map[string]int)
	var errs []GraphError

	var dfs func(id string)
	dfs = func(id string) {
		colors[id] = 1
		for _, e := range g.Outgoing(id) {
			if g.Node(e.Target) == nil {
				continue
			}
			switch colors[e.Target] {
			case 0:
				dfs(e.Target)
			case 1:
				errs = append(errs, GraphError{
					Code:    ErrCodeCycle,
					EdgeID:  e.ID,
					Message: fmt.Sprintf("edge to %s closes a cycle", e.Target),
				})
			}
		}
		colors[id] = 2
	}

	// Root the sweep at Start first so error order follows execution order,
	// then cover the components Start does not reach.
	if start := s.StartNode(); start != nil {
		dfs(start.ID)
	}
	for _, n := range s.Nodes {
		if colors[n.ID] == 0 {
			dfs(n.ID)
		}
	}
	return errs
}
