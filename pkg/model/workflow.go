package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// WorkflowConfig is a user's stored reference to one workflow definition in the
// automation engine, plus the scheduling metadata the reconciler works from.
type WorkflowConfig struct {
	ID                 uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	UserID             uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_user_engine_workflow"`
	User               *User     `gorm:"foreignKey:UserID"`
	Name               string    `gorm:"not null"`
	EngineWorkflowID   string    `gorm:"not null;uniqueIndex:idx_user_engine_workflow"`
	WebhookPath        string
	Definition         JSONB `gorm:"type:jsonb"`
	DefinitionVersion  string
	IsActive           bool `gorm:"default:true;not null"`
	RunIntervalMinutes int  `gorm:"default:15;not null"`
	LastRunAt          *time.Time
	Description        string `gorm:"type:text"`
	SourceFile         string `gorm:"index"`
	CreatedAt          time.Time
	UpdatedAt          time.Time

	Executions []WorkflowExecution `gorm:"foreignKey:WorkflowConfigID;constraint:OnDelete:CASCADE"`
	Presets    []SavedPreset       `gorm:"foreignKey:WorkflowConfigID;constraint:OnDelete:CASCADE"`
}

// IsDue reports whether the config's interval has elapsed since its last
// recorded run. A config that has never run is always due.
func (c *WorkflowConfig) IsDue(now time.Time) bool {
	if c.LastRunAt == nil {
		return true
	}
	next := c.LastRunAt.Add(time.Duration(c.RunIntervalMinutes) * time.Minute)
	return !next.After(now)
}

// SavedPreset is a reusable (keywords, location) pair tied to a workflow config.
type SavedPreset struct {
	ID               uuid.UUID       `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	UserID           uuid.UUID       `gorm:"type:uuid;not null;index"`
	User             *User           `gorm:"foreignKey:UserID"`
	WorkflowConfigID uuid.UUID       `gorm:"type:uuid;not null;index"`
	WorkflowConfig   *WorkflowConfig `gorm:"foreignKey:WorkflowConfigID"`
	Name             string          `gorm:"not null"`
	Keywords         string          `gorm:"not null"`
	Location         string          `gorm:"not null"`
	CreatedAt        time.Time
}

type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("failed to scan JSONB: %v", value)
	}
	return json.Unmarshal(bytes, j)
}

func (j JSONB) GormDataType() string {
	return "jsonb"
}
