package graph

import (
	"scenarioflow/pkg/models"
)

// Graph is an adjacency view over a scenario's nodes and edges, indexed by
// id so that reachability and cycle checks are plain traversals. Edge order
// within an adjacency list preserves insertion order in the scenario's edge
// list, which is what makes compilation deterministic.
type Graph struct {
	nodes    map[string]*models.Node
	outgoing map[string][]*models.Edge
	incoming map[string][]*models.Edge
}

// NewGraph builds the adjacency view. Edges referencing unknown nodes are
// kept in the lists so the validator can report them; traversal helpers
// skip them.
func NewGraph(s *models.Scenario) *Graph {
	g := &Graph{
		nodes:    make(map[string]*models.Node, len(s.Nodes)),
		outgoing: make(map[string][]*models.Edge, len(s.Nodes)),
		incoming: make(map[string][]*models.Edge, len(s.Nodes)),
	}

	for i := range s.Nodes {
		node := &s.Nodes[i]
		g.nodes[node.ID] = node
	}

	for i := range s.Edges {
		edge := &s.Edges[i]
		g.outgoing[edge.Source] = append(g.outgoing[edge.Source], edge)
		g.incoming[edge.Target] = append(g.incoming[edge.Target], edge)
	}

	return g
}

// Node returns the node with the given id, or nil
func (g *Graph) Node(id string) *models.Node {
	return g.nodes[id]
}

// Outgoing returns the outgoing edges of a node in insertion order
func (g *Graph) Outgoing(id string) []*models.Edge {
	return g.outgoing[id]
}

// Incoming returns the incoming edges of a node in insertion order
func (g *Graph) Incoming(id string) []*models.Edge {
	return g.incoming[id]
}

// OutgoingByHandle returns the outgoing edges of a node whose source handle
// matches the given label.
func (g *Graph) OutgoingByHandle(id, handle string) []*models.Edge {
	var edges []*models.Edge
	for _, e := range g.outgoing[id] {
		if e.SourceHandle == handle {
			edges = append(edges, e)
		}
	}
	return edges
}

// ReachableFrom returns the set of node ids reachable from the given node,
// including the node itself. Edges to unknown nodes are ignored.
func (g *Graph) ReachableFrom(id string) map[string]bool {
	reached := make(map[string]bool)
	if g.nodes[id] == nil {
		return reached
	}

	stack := []string{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if reached[cur] {
			continue
		}
		reached[cur] = true
		for _, e := range g.outgoing[cur] {
			if g.nodes[e.Target] != nil {
				stack = append(stack, e.Target)
			}
		}
	}
	return reached
}
