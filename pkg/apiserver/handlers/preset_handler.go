package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jobpulse/jobpulse/pkg/model"
	"github.com/jobpulse/jobpulse/pkg/store"
)

type PresetStore interface {
	Create(ctx context.Context, preset *model.SavedPreset) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]model.SavedPreset, error)
	Get(ctx context.Context, id, userID uuid.UUID) (*model.SavedPreset, error)
	Delete(ctx context.Context, id, userID uuid.UUID) error
}

type presetConfigStore interface {
	Get(ctx context.Context, id, userID uuid.UUID) (*model.WorkflowConfig, error)
}

type PresetHandler struct {
	presets     PresetStore
	configs     presetConfigStore
	provisioner Provisioner
	logger      *zap.Logger
}

func NewPresetHandler(presets PresetStore, configs presetConfigStore, provisioner Provisioner, logger *zap.Logger) *PresetHandler {
	return &PresetHandler{presets: presets, configs: configs, provisioner: provisioner, logger: logger}
}

func (h *PresetHandler) List(c *gin.Context) {
	presets, err := h.presets.ListByUser(c.Request.Context(), currentUserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list presets"})
		return
	}
	out := make([]presetResponse, 0, len(presets))
	for i := range presets {
		out = append(out, mapPreset(&presets[i]))
	}
	c.JSON(http.StatusOK, gin.H{"presets": out, "count": len(out)})
}

type createPresetRequest struct {
	WorkflowConfigID string `json:"workflow_config_id" binding:"required"`
	Name             string `json:"preset_name" binding:"required"`
	Keywords         string `json:"keywords" binding:"required"`
	Location         string `json:"location"`
}

func (h *PresetHandler) Create(c *gin.Context) {
	var req createPresetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	configID, err := uuid.Parse(req.WorkflowConfigID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid workflow_config_id"})
		return
	}

	userID := currentUserID(c)
	// Presets may only point at configs the caller owns.
	if _, err := h.configs.Get(c.Request.Context(), configID, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "workflow not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create preset"})
		return
	}

	preset := &model.SavedPreset{
		UserID:           userID,
		WorkflowConfigID: configID,
		Name:             req.Name,
		Keywords:         req.Keywords,
		Location:         req.Location,
	}
	if err := h.presets.Create(c.Request.Context(), preset); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create preset"})
		return
	}
	c.JSON(http.StatusCreated, mapPreset(preset))
}

func (h *PresetHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid preset id"})
		return
	}
	if err := h.presets.Delete(c.Request.Context(), id, currentUserID(c)); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "preset not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete preset"})
		return
	}
	c.Status(http.StatusNoContent)
}

// Initialize seeds the starter presets for users that have none.
func (h *PresetHandler) Initialize(c *gin.Context) {
	created, err := h.provisioner.SeedPresets(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.logger.Warn("preset seeding failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to initialize presets", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"created": created})
}
