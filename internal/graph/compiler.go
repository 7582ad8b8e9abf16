package graph

import (
	"errors"
	"fmt"

	"scenarioflow/pkg/models"
)

var (
	// ErrNoStart is returned when compiling a scenario without a start node
	ErrNoStart = errors.New("scenario has no start node")

	// ErrCyclicGraph is returned when traversal revisits a node on the
	// current path. Validated graphs never trigger this; it guards
	// compilation of definitions loaded from files.
	ErrCyclicGraph = errors.New("scenario graph contains a cycle")
)

// Compiler turns a validated scenario graph into an ordered, branch-aware
// execution plan. It assumes the input already passed the Validator and
// does not re-run structural validation; it only refuses inputs it cannot
// traverse at all.
type Compiler struct{}

// NewCompiler creates a new plan compiler
func NewCompiler() *Compiler {
	return &Compiler{}
}

// Compile walks the graph depth-first from the Start node, following the
// single outgoing edge of Start and Action nodes and both labeled edges of
// Condition nodes. Outgoing edges are visited in their insertion order in
// the scenario's edge list, so the same graph always compiles to the same
// plan.
func (c *Compiler) Compile(s *models.Scenario) (*models.CompiledPlan, error) {
	start := s.StartNode()
	if start == nil {
		return nil, ErrNoStart
	}

	g := NewGraph(s)
	onPath := make(map[string]bool)
	onPath[start.ID] = true

	items, err := c.compileFrom(g, firstTarget(g, start.ID, ""), onPath)
	if err != nil {
		return nil, err
	}

	return &models.CompiledPlan{ScenarioID: s.ID, Items: items}, nil
}

// firstTarget returns the target of the first outgoing edge of a node,
// filtered by handle when one is given. Empty string means no successor.
func firstTarget(g *Graph, nodeID, handle string) string {
	var edges []*models.Edge
	if handle == "" {
		edges = g.Outgoing(nodeID)
	} else {
		edges = g.OutgoingByHandle(nodeID, handle)
	}
	for _, e := range edges {
		if g.Node(e.Target) != nil {
			return e.Target
		}
	}
	return ""
}

// compileFrom builds the plan items starting at the given node id; an empty
// id yields an empty item list (the path simply ends). onPath holds every
// ancestor of the current position; branches get their own copy so a
// diamond (both branches converging on one node) is not mistaken for a
// cycle.
func (c *Compiler) compileFrom(g *Graph, nodeID string, onPath map[string]bool) ([]models.PlanItem, error) {
	var items []models.PlanItem

	for nodeID != "" {
		if onPath[nodeID] {
			return nil, fmt.Errorf("%w: node %s revisited", ErrCyclicGraph, nodeID)
		}
		onPath[nodeID] = true

		node := g.Node(nodeID)
		switch node.Kind {
		case models.NodeKindAction:
			if node.Action == nil {
				return nil, fmt.Errorf("action node %s has no action data", nodeID)
			}
			items = append(items, models.PlanItem{Step: &models.Step{
				NodeID: node.ID,
				Action: *node.Action,
			}})
			nodeID = firstTarget(g, nodeID, "")

		case models.NodeKindCondition:
			if node.Condition == nil {
				return nil, fmt.Errorf("condition node %s has no condition data", nodeID)
			}

			trueItems, err := c.compileFrom(g, firstTarget(g, nodeID, models.HandleTrue), copyPath(onPath))
			if err != nil {
				return nil, err
			}
			falseItems, err := c.compileFrom(g, firstTarget(g, nodeID, models.HandleFalse), copyPath(onPath))
			if err != nil {
				return nil, err
			}

			items = append(items, models.PlanItem{Branch: &models.Branch{
				NodeID:    node.ID,
				Predicate: node.Condition.Predicate,
				Params:    node.Condition.Params,
				True:      trueItems,
				False:     falseItems,
			}})

			// A branch consumes the rest of this path; both
			// continuations live in its sub-plans.
			return items, nil

		case models.NodeKindStart:
			return nil, fmt.Errorf("start node %s reached mid-traversal", nodeID)

		default:
			return nil, fmt.Errorf("unknown node kind %q on node %s", node.Kind, nodeID)
		}
	}

	return items, nil
}

func copyPath(onPath map[string]bool) map[string]bool {
	cp := make(map[string]bool, len(onPath))
	for id := range onPath {
		cp[id] = true
	}
	return cp
}
