package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"scenarioflow/pkg/models"
)

type scenarioRepository struct {
	db *gorm.DB
}

// NewScenarioRepository creates a gorm-backed scenario repository
func NewScenarioRepository(db *gorm.DB) ScenarioRepository {
	return &scenarioRepository{db: db}
}

func (r *scenarioRepository) Create(ctx context.Context, scenario *models.Scenario) error {
	model, err := FromScenario(scenario)
	if err != nil {
		return fmt.Errorf("failed to convert scenario: %w", err)
	}

	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return fmt.Errorf("failed to create scenario: %w", err)
	}

	scenario.ID = model.ID.String()
	scenario.CreatedAt = model.CreatedAt
	scenario.UpdatedAt = model.UpdatedAt
	return nil
}

func (r *scenarioRepository) Get(ctx context.Context, id string) (*models.Scenario, error) {
	scenarioID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid scenario ID: %w", err)
	}

	var model ScenarioModel
	if err := r.db.WithContext(ctx).Where("id = ?", scenarioID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: scenario %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get scenario: %w", err)
	}

	return model.ToScenario()
}

func (r *scenarioRepository) List(ctx context.Context, filters ScenarioFilters) ([]*models.Scenario, error) {
	query := r.db.WithContext(ctx).Model(&ScenarioModel{})

	if filters.OwnerID != "" {
		query = query.Where("owner_id = ?", filters.OwnerID)
	}
	if filters.IsActive != nil {
		query = query.Where("is_active = ?", *filters.IsActive)
	}
	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	}
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	var rows []ScenarioModel
	if err := query.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list scenarios: %w", err)
	}

	scenarios := make([]*models.Scenario, 0, len(rows))
	for i := range rows {
		s, err := rows[i].ToScenario()
		if err != nil {
			return nil, err
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// Replace persists the full document over the stored one. Nodes and edges
// are always written wholesale, matching the editor's save semantics.
func (r *scenarioRepository) Replace(ctx context.Context, scenario *models.Scenario) error {
	model, err := FromScenario(scenario)
	if err != nil {
		return fmt.Errorf("failed to convert scenario: %w", err)
	}
	if model.ID == uuid.Nil {
		return fmt.Errorf("scenario ID is required for replace")
	}

	result := r.db.WithContext(ctx).Model(&ScenarioModel{}).
		Where("id = ?", model.ID).
		Updates(map[string]interface{}{
			"name":      model.Name,
			"schedule":  model.Schedule,
			"is_active": model.IsActive,
			"nodes":     model.Nodes,
			"edges":     model.Edges,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to replace scenario: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: scenario %s", ErrNotFound, scenario.ID)
	}
	return nil
}

func (r *scenarioRepository) Delete(ctx context.Context, id string) error {
	scenarioID, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("invalid scenario ID: %w", err)
	}

	result := r.db.WithContext(ctx).Where("id = ?", scenarioID).Delete(&ScenarioModel{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete scenario: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: scenario %s", ErrNotFound, id)
	}
	return nil
}

func (r *scenarioRepository) SetActive(ctx context.Context, id string, active bool) error {
	scenarioID, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("invalid scenario ID: %w", err)
	}

	result := r.db.WithContext(ctx).Model(&ScenarioModel{}).
		Where("id = ?", scenarioID).
		Update("is_active", active)
	if result.Error != nil {
		return fmt.Errorf("failed to update scenario activation: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: scenario %s", ErrNotFound, id)
	}
	return nil
}
