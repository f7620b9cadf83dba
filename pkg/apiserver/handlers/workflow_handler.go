package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/jobpulse/jobpulse/pkg/engine"
	"github.com/jobpulse/jobpulse/pkg/model"
	"github.com/jobpulse/jobpulse/pkg/store"
)

type WorkflowConfigStore interface {
	Create(ctx context.Context, cfg *model.WorkflowConfig) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]model.WorkflowConfig, error)
	ListActiveByUser(ctx context.Context, userID uuid.UUID) ([]model.WorkflowConfig, error)
	Get(ctx context.Context, id, userID uuid.UUID) (*model.WorkflowConfig, error)
	GetDefault(ctx context.Context, userID uuid.UUID, sourceFile string) (*model.WorkflowConfig, error)
	Update(ctx context.Context, cfg *model.WorkflowConfig) error
	SetActive(ctx context.Context, id, userID uuid.UUID, active bool) error
	Delete(ctx context.Context, id, userID uuid.UUID) error
}

// WorkflowEngine is the subset of the engine client the workflow handler uses
// to keep engine-side workflows in step with local configs.
type WorkflowEngine interface {
	CreateWorkflow(ctx context.Context, definition map[string]interface{}) (map[string]interface{}, error)
	UpdateWorkflow(ctx context.Context, workflowID string, definition map[string]interface{}) (map[string]interface{}, error)
	DeleteWorkflow(ctx context.Context, workflowID string) error
	ActivateWorkflow(ctx context.Context, workflowID string, active bool) error
}

type WorkflowSyncer interface {
	EnsureDefault(ctx context.Context, userID uuid.UUID) (*model.WorkflowConfig, error)
	SyncDefault(ctx context.Context, userID uuid.UUID) (*model.WorkflowConfig, error)
	SourceFile() string
}

type WorkflowHandler struct {
	configs WorkflowConfigStore
	engine  WorkflowEngine
	syncer  WorkflowSyncer
	logger  *zap.Logger
}

func NewWorkflowHandler(configs WorkflowConfigStore, eng WorkflowEngine, syncer WorkflowSyncer, logger *zap.Logger) *WorkflowHandler {
	return &WorkflowHandler{configs: configs, engine: eng, syncer: syncer, logger: logger}
}

type createWorkflowRequest struct {
	Name               string                 `json:"name" binding:"required"`
	EngineWorkflowID   string                 `json:"engine_workflow_id"`
	Definition         map[string]interface{} `json:"definition"`
	Description        string                 `json:"description"`
	RunIntervalMinutes int                    `json:"run_interval_minutes"`
}

func (h *WorkflowHandler) List(c *gin.Context) {
	configs, err := h.configs.ListByUser(c.Request.Context(), currentUserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list workflows"})
		return
	}
	out := make([]workflowConfigResponse, 0, len(configs))
	for i := range configs {
		out = append(out, mapWorkflowConfig(&configs[i]))
	}
	c.JSON(http.StatusOK, gin.H{"workflows": out, "count": len(out)})
}

func (h *WorkflowHandler) ListActive(c *gin.Context) {
	configs, err := h.configs.ListActiveByUser(c.Request.Context(), currentUserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list workflows"})
		return
	}
	out := make([]workflowConfigResponse, 0, len(configs))
	for i := range configs {
		out = append(out, mapWorkflowConfig(&configs[i]))
	}
	c.JSON(http.StatusOK, gin.H{"workflows": out, "count": len(out)})
}

// Create registers a workflow config. When only a definition is supplied the
// workflow is first created on the engine to obtain its id; when an engine
// workflow id is supplied the definition is optional.
func (h *WorkflowHandler) Create(c *gin.Context) {
	var req createWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.EngineWorkflowID == "" && req.Definition == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "either engine_workflow_id or definition is required"})
		return
	}
	if req.Definition != nil {
		if err := engine.ValidateDefinition(req.Definition); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	engineWorkflowID := req.EngineWorkflowID
	if engineWorkflowID == "" {
		created, err := h.engine.CreateWorkflow(c.Request.Context(), req.Definition)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": "failed to create workflow on engine", "details": err.Error()})
			return
		}
		id, _ := created["id"].(string)
		if id == "" {
			c.JSON(http.StatusBadGateway, gin.H{"error": "engine did not return a workflow id"})
			return
		}
		engineWorkflowID = id
	}

	interval := req.RunIntervalMinutes
	if interval <= 0 {
		interval = 15
	}
	cfg := &model.WorkflowConfig{
		UserID:             currentUserID(c),
		Name:               req.Name,
		EngineWorkflowID:   engineWorkflowID,
		WebhookPath:        engine.ExtractWebhookPath(req.Definition),
		Definition:         model.JSONB(req.Definition),
		Description:        req.Description,
		RunIntervalMinutes: interval,
	}
	if err := h.configs.Create(c.Request.Context(), cfg); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			c.JSON(http.StatusConflict, gin.H{"error": "workflow already configured"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create workflow"})
		return
	}
	c.JSON(http.StatusCreated, mapWorkflowConfig(cfg))
}

func (h *WorkflowHandler) Get(c *gin.Context) {
	cfg, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, mapWorkflowConfig(cfg))
}

type updateWorkflowRequest struct {
	Name               *string                `json:"name"`
	Definition         map[string]interface{} `json:"definition"`
	Description        *string                `json:"description"`
	RunIntervalMinutes *int                   `json:"run_interval_minutes"`
}

func (h *WorkflowHandler) Update(c *gin.Context) {
	cfg, ok := h.lookup(c)
	if !ok {
		return
	}
	var req updateWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Name != nil {
		cfg.Name = *req.Name
	}
	if req.Description != nil {
		cfg.Description = *req.Description
	}
	if req.RunIntervalMinutes != nil {
		if *req.RunIntervalMinutes <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "run_interval_minutes must be positive"})
			return
		}
		cfg.RunIntervalMinutes = *req.RunIntervalMinutes
	}
	if req.Definition != nil {
		if err := engine.ValidateDefinition(req.Definition); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		cfg.Definition = model.JSONB(req.Definition)
		cfg.WebhookPath = engine.ExtractWebhookPath(req.Definition)
		// Keep the engine copy in step; a push failure only logs, the local
		// row stays authoritative.
		if _, err := h.engine.UpdateWorkflow(c.Request.Context(), cfg.EngineWorkflowID, req.Definition); err != nil {
			h.logger.Warn("engine workflow update failed",
				zap.String("engine_workflow_id", cfg.EngineWorkflowID), zap.Error(err))
		}
	}

	if err := h.configs.Update(c.Request.Context(), cfg); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update workflow"})
		return
	}
	c.JSON(http.StatusOK, mapWorkflowConfig(cfg))
}

// Delete removes the local config; `?purge=true` also deletes the workflow on
// the engine, best effort.
func (h *WorkflowHandler) Delete(c *gin.Context) {
	cfg, ok := h.lookup(c)
	if !ok {
		return
	}
	if c.Query("purge") == "true" {
		if err := h.engine.DeleteWorkflow(c.Request.Context(), cfg.EngineWorkflowID); err != nil {
			h.logger.Warn("engine workflow delete failed",
				zap.String("engine_workflow_id", cfg.EngineWorkflowID), zap.Error(err))
		}
	}
	if err := h.configs.Delete(c.Request.Context(), cfg.ID, currentUserID(c)); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "workflow not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete workflow"})
		return
	}
	c.Status(http.StatusNoContent)
}

type activateRequest struct {
	Active *bool `json:"active" binding:"required"`
}

func (h *WorkflowHandler) Activate(c *gin.Context) {
	cfg, ok := h.lookup(c)
	if !ok {
		return
	}
	var req activateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.configs.SetActive(c.Request.Context(), cfg.ID, currentUserID(c), *req.Active); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "workflow not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update workflow"})
		return
	}
	if err := h.engine.ActivateWorkflow(c.Request.Context(), cfg.EngineWorkflowID, *req.Active); err != nil {
		h.logger.Warn("engine workflow activation failed",
			zap.String("engine_workflow_id", cfg.EngineWorkflowID), zap.Error(err))
	}
	cfg.IsActive = *req.Active
	c.JSON(http.StatusOK, mapWorkflowConfig(cfg))
}

// GetDefault reads the default config without creating it; provisioning only
// happens at registration or through an explicit sync.
func (h *WorkflowHandler) GetDefault(c *gin.Context) {
	cfg, err := h.configs.GetDefault(c.Request.Context(), currentUserID(c), h.syncer.SourceFile())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "default workflow not provisioned"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load workflow"})
		return
	}
	c.JSON(http.StatusOK, mapWorkflowConfig(cfg))
}

func (h *WorkflowHandler) SyncDefault(c *gin.Context) {
	cfg, err := h.syncer.SyncDefault(c.Request.Context(), currentUserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to sync default workflow", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, mapWorkflowConfig(cfg))
}

func (h *WorkflowHandler) ExportJSON(c *gin.Context) {
	cfg, ok := h.lookup(c)
	if !ok {
		return
	}
	if len(cfg.Definition) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "workflow has no stored definition"})
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+cfg.EngineWorkflowID+`.json"`)
	c.JSON(http.StatusOK, map[string]interface{}(cfg.Definition))
}

func (h *WorkflowHandler) lookup(c *gin.Context) (*model.WorkflowConfig, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid workflow id"})
		return nil, false
	}
	cfg, err := h.configs.Get(c.Request.Context(), id, currentUserID(c))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "workflow not found"})
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load workflow"})
		return nil, false
	}
	return cfg, true
}
