package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jobpulse/jobpulse/pkg/apiserver/middleware"
	"github.com/jobpulse/jobpulse/pkg/model"
)

const timeRFC3339 = time.RFC3339

func currentUserID(c *gin.Context) uuid.UUID {
	value, ok := c.Get(middleware.ContextUserID)
	if !ok {
		return uuid.Nil
	}
	userID, ok := value.(uuid.UUID)
	if !ok {
		return uuid.Nil
	}
	return userID
}

func formatTime(value *time.Time) *string {
	if value == nil {
		return nil
	}
	formatted := value.UTC().Format(timeRFC3339)
	return &formatted
}

type workflowConfigResponse struct {
	ID                 string  `json:"id"`
	Name               string  `json:"name"`
	EngineWorkflowID   string  `json:"engine_workflow_id"`
	WebhookPath        string  `json:"webhook_path,omitempty"`
	DefinitionVersion  string  `json:"definition_version,omitempty"`
	IsActive           bool    `json:"is_active"`
	RunIntervalMinutes int     `json:"run_interval_minutes"`
	LastRunAt          *string `json:"last_run_at,omitempty"`
	Description        string  `json:"description,omitempty"`
	SourceFile         string  `json:"source_file,omitempty"`
	CreatedAt          string  `json:"created_at"`
}

func mapWorkflowConfig(cfg *model.WorkflowConfig) workflowConfigResponse {
	return workflowConfigResponse{
		ID:                 cfg.ID.String(),
		Name:               cfg.Name,
		EngineWorkflowID:   cfg.EngineWorkflowID,
		WebhookPath:        cfg.WebhookPath,
		DefinitionVersion:  cfg.DefinitionVersion,
		IsActive:           cfg.IsActive,
		RunIntervalMinutes: cfg.RunIntervalMinutes,
		LastRunAt:          formatTime(cfg.LastRunAt),
		Description:        cfg.Description,
		SourceFile:         cfg.SourceFile,
		CreatedAt:          cfg.CreatedAt.UTC().Format(timeRFC3339),
	}
}

type executionResponse struct {
	ID                string      `json:"id"`
	WorkflowConfigID  string      `json:"workflow_config_id"`
	Keywords          string      `json:"keywords"`
	Location          string      `json:"location"`
	EngineExecutionID string      `json:"engine_execution_id,omitempty"`
	Status            string      `json:"status"`
	Result            model.JSONB `json:"result,omitempty"`
	CreatedAt         string      `json:"created_at"`
	CompletedAt       *string     `json:"completed_at,omitempty"`
}

func mapExecution(execution *model.WorkflowExecution) executionResponse {
	return executionResponse{
		ID:                execution.ID.String(),
		WorkflowConfigID:  execution.WorkflowConfigID.String(),
		Keywords:          execution.Keywords,
		Location:          execution.Location,
		EngineExecutionID: execution.EngineExecutionID,
		Status:            string(execution.Status),
		Result:            execution.Result,
		CreatedAt:         execution.CreatedAt.UTC().Format(timeRFC3339),
		CompletedAt:       formatTime(execution.CompletedAt),
	}
}

type presetResponse struct {
	ID               string `json:"id"`
	WorkflowConfigID string `json:"workflow_config_id"`
	Name             string `json:"preset_name"`
	Keywords         string `json:"keywords"`
	Location         string `json:"location"`
	CreatedAt        string `json:"created_at"`
}

func mapPreset(preset *model.SavedPreset) presetResponse {
	return presetResponse{
		ID:               preset.ID.String(),
		WorkflowConfigID: preset.WorkflowConfigID.String(),
		Name:             preset.Name,
		Keywords:         preset.Keywords,
		Location:         preset.Location,
		CreatedAt:        preset.CreatedAt.UTC().Format(timeRFC3339),
	}
}
