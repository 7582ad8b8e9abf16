package dto

import (
	"time"

	"scenarioflow/pkg/models"
)

// LaunchActionRequest runs a single action outside any scenario
type LaunchActionRequest struct {
	Type     string                 `json:"type" validate:"required"`
	Settings map[string]interface{} `json:"settings,omitempty"`
	Filters  map[string]interface{} `json:"filters,omitempty"`
	Parts    int                    `json:"parts,omitempty" validate:"min=0,max=20"`
}

// TaskHistoryEntryResponse represents one task history entry
type TaskHistoryEntryResponse struct {
	ID         string                 `json:"id"`
	TaskName   string                 `json:"task_name"`
	Status     models.TaskStatus      `json:"status"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
	Result     string                 `json:"result,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}

// TaskHistoryListResponse represents a paginated page of task history
type TaskHistoryListResponse struct {
	Entries    []TaskHistoryEntryResponse `json:"entries"`
	Pagination PaginationMeta             `json:"pagination"`
}

// NotificationResponse represents one notification row
type NotificationResponse struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

// NotificationListResponse carries notifications plus the unread count
type NotificationListResponse struct {
	Notifications []NotificationResponse `json:"notifications"`
	UnreadCount   int64                  `json:"unread_count"`
}

// ToActionData converts a LaunchActionRequest to a models.ActionData
func (r LaunchActionRequest) ToActionData() models.ActionData {
	action := models.ActionData{
		Type:     models.ActionType(r.Type),
		Settings: r.Settings,
		Filters:  r.Filters,
	}
	if r.Parts > 0 {
		action.Batch = &models.BatchSettings{Parts: r.Parts}
	}
	return action
}

// ToTaskHistoryEntryResponse converts a models.TaskHistoryEntry
func ToTaskHistoryEntryResponse(e *models.TaskHistoryEntry) TaskHistoryEntryResponse {
	return TaskHistoryEntryResponse{
		ID:         e.ID,
		TaskName:   e.TaskName,
		Status:     e.Status,
		Parameters: e.Parameters,
		Result:     e.Result,
		CreatedAt:  e.CreatedAt,
	}
}
