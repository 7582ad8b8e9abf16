package models

import "time"

// NodeKind identifies the type of a scenario graph node
type NodeKind string

const (
	NodeKindStart     NodeKind = "start"
	NodeKindAction    NodeKind = "action"
	NodeKindCondition NodeKind = "condition"
)

// ActionType identifies which social-account action a node performs
type ActionType string

const (
	ActionLikeFeed        ActionType = "like_feed"
	ActionLikeFollowers   ActionType = "like_followers"
	ActionAddRecommended  ActionType = "add_recommended"
	ActionAcceptFriends   ActionType = "accept_friends"
	ActionViewStories     ActionType = "view_stories"
	ActionFollowGroups    ActionType = "follow_groups"
	ActionRepostWall      ActionType = "repost_wall"
)

// actionTypes is the fixed registry of known action types
var actionTypes = map[ActionType]bool{
	ActionLikeFeed:       true,
	ActionLikeFollowers:  true,
	ActionAddRecommended: true,
	ActionAcceptFriends:  true,
	ActionViewStories:    true,
	ActionFollowGroups:   true,
	ActionRepostWall:     true,
}

// IsValid reports whether the action type is in the registry
func (a ActionType) IsValid() bool {
	return actionTypes[a]
}

// Predicate identifies the condition evaluated at a Condition node
type Predicate string

const (
	PredicateLastActionSuccess Predicate = "last_action_success"
	PredicateCounterAtLeast    Predicate = "counter_at_least"
	PredicateTimeBetween       Predicate = "time_between"
)

// predicates is the fixed registry of known condition predicates
var predicates = map[Predicate]bool{
	PredicateLastActionSuccess: true,
	PredicateCounterAtLeast:    true,
	PredicateTimeBetween:       true,
}

// IsValid reports whether the predicate is in the registry
func (p Predicate) IsValid() bool {
	return predicates[p]
}

// Branch handle labels for Condition node outputs
const (
	HandleTrue  = "true"
	HandleFalse = "false"
)

// Position is the editor placement of a node. It has no effect on execution.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// BatchSettings splits an action into several smaller parts
type BatchSettings struct {
	Parts int `json:"parts"`
}

// ActionData is the configuration payload of an Action node
type ActionData struct {
	Type     ActionType             `json:"action_type"`
	Settings map[string]interface{} `json:"settings,omitempty"`
	Filters  map[string]interface{} `json:"filters,omitempty"`
	Batch    *BatchSettings         `json:"batch,omitempty"`
}

// ConditionData is the configuration payload of a Condition node
type ConditionData struct {
	Predicate Predicate              `json:"predicate"`
	Params    map[string]interface{} `json:"params,omitempty"`
}

// Node is a typed vertex in a scenario graph. Exactly one of Action or
// Condition is set, matching Kind; Start nodes carry no payload.
type Node struct {
	ID        string         `json:"id"`
	Kind      NodeKind       `json:"kind"`
	Position  Position       `json:"position"`
	Action    *ActionData    `json:"action,omitempty"`
	Condition *ConditionData `json:"condition,omitempty"`
}

// Edge is a directed connection between two nodes. Handles disambiguate
// multiple outputs from one node (condition branches use "true"/"false").
type Edge struct {
	ID           string `json:"id"`
	Source       string `json:"source_node_id"`
	SourceHandle string `json:"source_handle,omitempty"`
	Target       string `json:"target_node_id"`
	TargetHandle string `json:"target_handle,omitempty"`
}

// Scenario is a user-authored automation graph plus a recurring schedule.
// It is mutated only through full-document replace on save.
type Scenario struct {
	ID        string       `json:"id"`
	OwnerID   string       `json:"owner_id"`
	Name      string       `json:"name"`
	Schedule  ScheduleSpec `json:"schedule"`
	IsActive  bool         `json:"is_active"`
	Nodes     []Node       `json:"nodes"`
	Edges     []Edge       `json:"edges"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// StartNode returns the scenario's Start node, or nil if absent
func (s *Scenario) StartNode() *Node {
	for i := range s.Nodes {
		if s.Nodes[i].Kind == NodeKindStart {
			return &s.Nodes[i]
		}
	}
	return nil
}

// NewScenario creates an empty scenario with a single Start node, the
// shape a scenario has before the user adds any steps.
func NewScenario(id, ownerID, name string) *Scenario {
	now := time.Now().UTC()
	return &Scenario{
		ID:      id,
		OwnerID: ownerID,
		Name:    name,
		Nodes: []Node{
			{ID: "start", Kind: NodeKindStart},
		},
		Edges:     []Edge{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}
