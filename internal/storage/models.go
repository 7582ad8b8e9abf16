package storage

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"scenarioflow/pkg/models"
)

// JSONB is a custom type for JSONB columns
type JSONB map[string]interface{}

// Value implements the driver.Valuer interface
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements the sql.Scanner interface
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}

	return json.Unmarshal(bytes, j)
}

// RawDocument stores an arbitrary JSON document column
type RawDocument json.RawMessage

// Value implements the driver.Valuer interface
func (d RawDocument) Value() (driver.Value, error) {
	if len(d) == 0 {
		return nil, nil
	}
	return []byte(d), nil
}

// Scan implements the sql.Scanner interface
func (d *RawDocument) Scan(value interface{}) error {
	if value == nil {
		*d = nil
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}

	*d = append((*d)[0:0], bytes...)
	return nil
}

// ScenarioModel is the database row for a scenario. The graph is stored as
// two JSONB documents and replaced wholesale on every save; there are no
// per-node rows to patch.
type ScenarioModel struct {
	ID        uuid.UUID   `gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	OwnerID   string      `gorm:"type:varchar(64);not null;index:idx_scenarios_owner"`
	Name      string      `gorm:"type:varchar(255);not null"`
	Schedule  string      `gorm:"type:varchar(100)"`
	IsActive  bool        `gorm:"default:false;index:idx_scenarios_is_active"`
	Nodes     RawDocument `gorm:"type:jsonb;not null;default:'[]'"`
	Edges     RawDocument `gorm:"type:jsonb;not null;default:'[]'"`
	CreatedAt time.Time   `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time   `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName specifies the table name for ScenarioModel
func (ScenarioModel) TableName() string {
	return "scenarios"
}

// BeforeCreate generates a UUID if not set
func (m *ScenarioModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// FromScenario converts a domain scenario to its database row
func FromScenario(s *models.Scenario) (*ScenarioModel, error) {
	m := &ScenarioModel{
		OwnerID:  s.OwnerID,
		Name:     s.Name,
		IsActive: s.IsActive,
	}

	if s.ID != "" {
		id, err := uuid.Parse(s.ID)
		if err != nil {
			return nil, fmt.Errorf("invalid scenario ID: %w", err)
		}
		m.ID = id
	}

	if !s.Schedule.IsZero() {
		expr, err := s.Schedule.Cron()
		if err != nil {
			return nil, fmt.Errorf("invalid schedule: %w", err)
		}
		m.Schedule = expr
	}

	nodes, err := json.Marshal(s.Nodes)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal nodes: %w", err)
	}
	edges, err := json.Marshal(s.Edges)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal edges: %w", err)
	}
	m.Nodes = RawDocument(nodes)
	m.Edges = RawDocument(edges)

	return m, nil
}

// ToScenario converts the database row back to the domain scenario
func (m *ScenarioModel) ToScenario() (*models.Scenario, error) {
	s := &models.Scenario{
		ID:        m.ID.String(),
		OwnerID:   m.OwnerID,
		Name:      m.Name,
		IsActive:  m.IsActive,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}

	if m.Schedule != "" {
		spec, err := models.ParseCron(m.Schedule)
		if err != nil {
			return nil, fmt.Errorf("stored schedule is invalid: %w", err)
		}
		s.Schedule = spec
	}

	if len(m.Nodes) > 0 {
		if err := json.Unmarshal(m.Nodes, &s.Nodes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal nodes: %w", err)
		}
	}
	if len(m.Edges) > 0 {
		if err := json.Unmarshal(m.Edges, &s.Edges); err != nil {
			return nil, fmt.Errorf("failed to unmarshal edges: %w", err)
		}
	}

	return s, nil
}

// TaskHistoryModel is the database row for a task history entry
type TaskHistoryModel struct {
	ID         uuid.UUID `gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	OwnerID    string    `gorm:"type:varchar(64);not null;index:idx_task_history_owner"`
	ScenarioID *string   `gorm:"type:uuid;index:idx_task_history_scenario"`
	TaskName   string    `gorm:"type:varchar(100);not null"`
	Status     string    `gorm:"type:varchar(20);not null;index:idx_task_history_status"`
	Parameters JSONB     `gorm:"type:jsonb;default:'{}'"`
	Result     string    `gorm:"type:text"`
	CreatedAt  time.Time `gorm:"not null;default:CURRENT_TIMESTAMP;index:idx_task_history_created_at"`
	UpdatedAt  time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName specifies the table name for TaskHistoryModel
func (TaskHistoryModel) TableName() string {
	return "task_history"
}

// BeforeCreate generates a UUID if not set
func (m *TaskHistoryModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// ToEntry converts the row to the domain entry
func (m *TaskHistoryModel) ToEntry() *models.TaskHistoryEntry {
	return &models.TaskHistoryEntry{
		ID:         m.ID.String(),
		OwnerID:    m.OwnerID,
		TaskName:   m.TaskName,
		Status:     models.TaskStatus(m.Status),
		Parameters: map[string]interface{}(m.Parameters),
		Result:     m.Result,
		CreatedAt:  m.CreatedAt,
	}
}

// NotificationModel is the database row for a user notification. The
// server is the source of truth for unread counts and ordering; clients
// refetch rather than append.
type NotificationModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	OwnerID   string    `gorm:"type:varchar(64);not null;index:idx_notifications_owner"`
	Kind      string    `gorm:"type:varchar(50);not null"`
	Message   string    `gorm:"type:text;not null"`
	IsRead    bool      `gorm:"default:false;index:idx_notifications_is_read"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName specifies the table name for NotificationModel
func (NotificationModel) TableName() string {
	return "notifications"
}

// BeforeCreate generates a UUID if not set
func (m *NotificationModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
