package storage

import (
	"context"

	"scenarioflow/pkg/models"
)

// ScenarioRepository defines persistence for scenario documents
type ScenarioRepository interface {
	Create(ctx context.Context, scenario *models.Scenario) error
	Get(ctx context.Context, id string) (*models.Scenario, error)
	List(ctx context.Context, filters ScenarioFilters) ([]*models.Scenario, error)
	// Replace overwrites the full document; there is no partial patch
	Replace(ctx context.Context, scenario *models.Scenario) error
	Delete(ctx context.Context, id string) error
	SetActive(ctx context.Context, id string, active bool) error
}

// ScenarioFilters defines filters for listing scenarios
type ScenarioFilters struct {
	OwnerID  string
	IsActive *bool
	Limit    int
	Offset   int
}

// TaskHistoryRepository defines persistence for task history entries
type TaskHistoryRepository interface {
	Create(ctx context.Context, entry *models.TaskHistoryEntry, scenarioID string) error
	Get(ctx context.Context, id string) (*models.TaskHistoryEntry, error)
	List(ctx context.Context, filters TaskHistoryFilters) ([]*models.TaskHistoryEntry, int64, error)
	// UpdateStatus applies a transition with an optimistic guard on the
	// previous status; ErrStaleStatus signals a lost race.
	UpdateStatus(ctx context.Context, id string, from, to models.TaskStatus, result string) error
}

// TaskHistoryFilters defines filters for listing task history
type TaskHistoryFilters struct {
	OwnerID  string
	Status   *models.TaskStatus
	Page     int
	PageSize int
}

// NotificationRepository defines persistence for user notifications
type NotificationRepository interface {
	Create(ctx context.Context, ownerID, kind, message string) error
	List(ctx context.Context, ownerID string, limit int) ([]*NotificationModel, error)
	CountUnread(ctx context.Context, ownerID string) (int64, error)
	MarkAllRead(ctx context.Context, ownerID string) error
}
