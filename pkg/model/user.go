package model

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID           uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	Email        string    `gorm:"uniqueIndex;not null"`
	PasswordHash string    `gorm:"not null"`
	CreatedAt    time.Time

	WorkflowConfigs []WorkflowConfig    `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	Executions      []WorkflowExecution `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	Presets         []SavedPreset       `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}
