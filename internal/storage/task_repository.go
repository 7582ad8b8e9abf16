package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"scenarioflow/pkg/models"
)

type taskHistoryRepository struct {
	db *gorm.DB
}

// NewTaskHistoryRepository creates a gorm-backed task history repository
func NewTaskHistoryRepository(db *gorm.DB) TaskHistoryRepository {
	return &taskHistoryRepository{db: db}
}

func (r *taskHistoryRepository) Create(ctx context.Context, entry *models.TaskHistoryEntry, scenarioID string) error {
	model := &TaskHistoryModel{
		OwnerID:    entry.OwnerID,
		TaskName:   entry.TaskName,
		Status:     string(entry.Status),
		Parameters: JSONB(entry.Parameters),
		Result:     entry.Result,
	}
	if entry.ID != "" {
		id, err := uuid.Parse(entry.ID)
		if err != nil {
			return fmt.Errorf("invalid entry ID: %w", err)
		}
		model.ID = id
	}
	if scenarioID != "" {
		model.ScenarioID = &scenarioID
	}

	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return fmt.Errorf("failed to create task history entry: %w", err)
	}

	entry.ID = model.ID.String()
	entry.CreatedAt = model.CreatedAt
	return nil
}

func (r *taskHistoryRepository) Get(ctx context.Context, id string) (*models.TaskHistoryEntry, error) {
	entryID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid entry ID: %w", err)
	}

	var model TaskHistoryModel
	if err := r.db.WithContext(ctx).Where("id = ?", entryID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: task history entry %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get task history entry: %w", err)
	}

	return model.ToEntry(), nil
}

func (r *taskHistoryRepository) List(ctx context.Context, filters TaskHistoryFilters) ([]*models.TaskHistoryEntry, int64, error) {
	query := r.db.WithContext(ctx).Model(&TaskHistoryModel{})

	if filters.OwnerID != "" {
		query = query.Where("owner_id = ?", filters.OwnerID)
	}
	if filters.Status != nil {
		query = query.Where("status = ?", string(*filters.Status))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count task history: %w", err)
	}

	page := filters.Page
	if page < 1 {
		page = 1
	}
	pageSize := filters.PageSize
	if pageSize < 1 {
		pageSize = 20
	}

	var rows []TaskHistoryModel
	if err := query.Order("created_at DESC").
		Limit(pageSize).
		Offset((page - 1) * pageSize).
		Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list task history: %w", err)
	}

	entries := make([]*models.TaskHistoryEntry, 0, len(rows))
	for i := range rows {
		entries = append(entries, rows[i].ToEntry())
	}
	return entries, total, nil
}

// UpdateStatus writes the new status and result, guarded by the expected
// previous status so concurrent transitions cannot clobber each other.
// Fields other than status and result are never touched.
func (r *taskHistoryRepository) UpdateStatus(ctx context.Context, id string, from, to models.TaskStatus, result string) error {
	entryID, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("invalid entry ID: %w", err)
	}

	res := r.db.WithContext(ctx).Model(&TaskHistoryModel{}).
		Where("id = ? AND status = ?", entryID, string(from)).
		Updates(map[string]interface{}{
			"status": string(to),
			"result": result,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update task status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: entry %s is no longer %s", ErrStaleStatus, id, from)
	}
	return nil
}
