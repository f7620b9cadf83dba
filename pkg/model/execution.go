package model

import (
	"time"

	"github.com/google/uuid"
)

type ExecutionStatus string

const (
	ExecutionPending ExecutionStatus = "pending"
	ExecutionRunning ExecutionStatus = "running"
	ExecutionSuccess ExecutionStatus = "success"
	ExecutionError   ExecutionStatus = "error"
)

// Terminal reports whether the status ends an execution's lifecycle.
// CompletedAt is set exactly when an execution reaches a terminal status.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionSuccess || s == ExecutionError
}

func IsValidExecutionStatus(s ExecutionStatus) bool {
	switch s {
	case ExecutionPending, ExecutionRunning, ExecutionSuccess, ExecutionError:
		return true
	default:
		return false
	}
}

// WorkflowExecution is one tracked attempt to run a workflow config,
// interactive or scheduled.
type WorkflowExecution struct {
	ID                uuid.UUID       `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	UserID            uuid.UUID       `gorm:"type:uuid;not null;index"`
	User              *User           `gorm:"foreignKey:UserID"`
	WorkflowConfigID  uuid.UUID       `gorm:"type:uuid;not null;index"`
	WorkflowConfig    *WorkflowConfig `gorm:"foreignKey:WorkflowConfigID"`
	Keywords          string          `gorm:"type:text;not null"`
	Location          string          `gorm:"not null"`
	EngineExecutionID string          `gorm:"index"`
	Status            ExecutionStatus `gorm:"type:varchar(20);default:'pending';index"`
	Result            JSONB           `gorm:"type:jsonb"`
	CreatedAt         time.Time
	CompletedAt       *time.Time

	Results []JobResult `gorm:"foreignKey:WorkflowExecutionID;constraint:OnDelete:CASCADE"`
}

// ExecutionStatusUpdate carries an inbound status transition, either from the
// engine's callback or from a cancellation.
type ExecutionStatusUpdate struct {
	Status            ExecutionStatus
	Result            JSONB
	EngineExecutionID string
}

// CompletionTime returns the completed-at timestamp this update implies: now
// for a terminal transition, nil otherwise. CompletedAt is non-null exactly
// when an execution has reached success or error.
func (u ExecutionStatusUpdate) CompletionTime(now time.Time) *time.Time {
	if !u.Status.Terminal() {
		return nil
	}
	return &now
}

// JobResult is one collected item extracted from a successful execution's
// result payload.
type JobResult struct {
	ID                  uuid.UUID          `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	WorkflowExecutionID uuid.UUID          `gorm:"type:uuid;not null;index"`
	Execution           *WorkflowExecution `gorm:"foreignKey:WorkflowExecutionID"`
	Title               string             `gorm:"not null"`
	Link                string             `gorm:"not null"`
	CreatedAt           time.Time
}
