package dto

import (
	"time"

	"scenarioflow/internal/graph"
	"scenarioflow/pkg/models"
)

// SaveScenarioRequest represents the request to create or replace a
// scenario. Nodes and edges carry the full graph; saves are whole-document.
type SaveScenarioRequest struct {
	Name     string         `json:"name" validate:"required,min=1,max=255"`
	Schedule string         `json:"schedule" validate:"omitempty,schedule"`
	IsActive bool           `json:"is_active"`
	Nodes    []models.Node  `json:"nodes" validate:"required,min=1"`
	Edges    []models.Edge  `json:"edges"`
}

// SetActiveRequest toggles scenario automation
type SetActiveRequest struct {
	IsActive bool `json:"is_active"`
}

// GraphErrorDTO is one validation finding, addressed to a node or edge
type GraphErrorDTO struct {
	Code    string `json:"code"`
	NodeID  string `json:"node_id,omitempty"`
	EdgeID  string `json:"edge_id,omitempty"`
	Message string `json:"message"`
}

// ValidationErrorResponse carries the complete list of graph findings
// so the editor can annotate every offending element at once.
type ValidationErrorResponse struct {
	Error  string          `json:"error"`
	Errors []GraphErrorDTO `json:"errors"`
}

// ScenarioResponse represents the response for a scenario
type ScenarioResponse struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Schedule  string        `json:"schedule"`
	IsActive  bool          `json:"is_active"`
	Nodes     []models.Node `json:"nodes"`
	Edges     []models.Edge `json:"edges"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// ScenarioListResponse represents a list of scenarios
type ScenarioListResponse struct {
	Scenarios []ScenarioResponse `json:"scenarios"`
}

// ToGraphErrorDTOs converts validator findings to their wire form
func ToGraphErrorDTOs(errs []graph.GraphError) []GraphErrorDTO {
	out := make([]GraphErrorDTO, len(errs))
	for i, e := range errs {
		out[i] = GraphErrorDTO{
			Code:    string(e.Code),
			NodeID:  e.NodeID,
			EdgeID:  e.EdgeID,
			Message: e.Message,
		}
	}
	return out
}

// ToScenarioResponse converts a models.Scenario to a ScenarioResponse
func ToScenarioResponse(s *models.Scenario) ScenarioResponse {
	schedule := ""
	if !s.Schedule.IsZero() {
		schedule, _ = s.Schedule.Cron()
	}
	return ScenarioResponse{
		ID:        s.ID,
		Name:      s.Name,
		Schedule:  schedule,
		IsActive:  s.IsActive,
		Nodes:     s.Nodes,
		Edges:     s.Edges,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

// ToScenario converts a SaveScenarioRequest to a models.Scenario. The
// owner and, for replacements, the ID are set by the handler.
func (r SaveScenarioRequest) ToScenario() (*models.Scenario, error) {
	var schedule models.ScheduleSpec
	if r.Schedule != "" {
		var err error
		schedule, err = models.ParseCron(r.Schedule)
		if err != nil {
			return nil, err
		}
	}
	return &models.Scenario{
		Name:     r.Name,
		Schedule: schedule,
		IsActive: r.IsActive,
		Nodes:    r.Nodes,
		Edges:    r.Edges,
	}, nil
}
