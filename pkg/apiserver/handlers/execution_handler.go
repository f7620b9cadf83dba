package handlers

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jobpulse/jobpulse/pkg/eventbus"
	"github.com/jobpulse/jobpulse/pkg/execution"
	"github.com/jobpulse/jobpulse/pkg/model"
	"github.com/jobpulse/jobpulse/pkg/reconciler"
	"github.com/jobpulse/jobpulse/pkg/store"
)

type ExecutionStore interface {
	ListByUser(ctx context.Context, userID uuid.UUID) ([]model.WorkflowExecution, error)
	Get(ctx context.Context, id, userID uuid.UUID) (*model.WorkflowExecution, error)
}

type ResultStore interface {
	ListByExecution(ctx context.Context, executionID, userID uuid.UUID) ([]model.JobResult, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]model.JobResult, error)
}

type Orchestrator interface {
	Trigger(ctx context.Context, user *model.User, req execution.TriggerRequest) (*model.WorkflowExecution, error)
	Cancel(ctx context.Context, executionID, userID uuid.UUID) (*model.WorkflowExecution, error)
	UpdateStatus(ctx context.Context, executionID, userID uuid.UUID, update model.ExecutionStatusUpdate) (*model.WorkflowExecution, error)
}

type Reconciler interface {
	RunOnce(ctx context.Context) (*reconciler.Report, error)
}

type ExecutionHandler struct {
	executions   ExecutionStore
	results      ResultStore
	users        UserStore
	orchestrator Orchestrator
	reconciler   Reconciler
	bus          *eventbus.Bus
	logger       *zap.Logger
}

func NewExecutionHandler(
	executions ExecutionStore,
	results ResultStore,
	users UserStore,
	orchestrator Orchestrator,
	rec Reconciler,
	bus *eventbus.Bus,
	logger *zap.Logger,
) *ExecutionHandler {
	return &ExecutionHandler{
		executions:   executions,
		results:      results,
		users:        users,
		orchestrator: orchestrator,
		reconciler:   rec,
		bus:          bus,
		logger:       logger,
	}
}

func (h *ExecutionHandler) List(c *gin.Context) {
	executions, err := h.executions.ListByUser(c.Request.Context(), currentUserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list executions"})
		return
	}
	out := make([]executionResponse, 0, len(executions))
	for i := range executions {
		out = append(out, mapExecution(&executions[i]))
	}
	c.JSON(http.StatusOK, gin.H{"executions": out, "count": len(out)})
}

func (h *ExecutionHandler) Get(c *gin.Context) {
	exec, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, mapExecution(exec))
}

type triggerExecutionRequest struct {
	WorkflowConfigID *string `json:"workflow_config_id"`
	Keywords         string  `json:"keywords" binding:"required"`
	Location         string  `json:"location"`
	SaveAsPreset     bool    `json:"save_as_preset"`
	PresetName       string  `json:"preset_name"`
}

// Create triggers a workflow run. The execution row is returned even when the
// engine trigger fails; the failure shows up in the row's status and result.
func (h *ExecutionHandler) Create(c *gin.Context) {
	var req triggerExecutionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var configID *uuid.UUID
	if req.WorkflowConfigID != nil && *req.WorkflowConfigID != "" {
		parsed, err := uuid.Parse(*req.WorkflowConfigID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid workflow_config_id"})
			return
		}
		configID = &parsed
	}

	user, err := h.users.GetByID(c.Request.Context(), currentUserID(c))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}

	exec, err := h.orchestrator.Trigger(c.Request.Context(), user, execution.TriggerRequest{
		WorkflowConfigID: configID,
		Keywords:         req.Keywords,
		Location:         req.Location,
		SaveAsPreset:     req.SaveAsPreset,
		PresetName:       req.PresetName,
		Source:           "api",
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "workflow not found"})
			return
		}
		if exec != nil {
			// Trigger failed after the record was created; surface both.
			c.JSON(http.StatusBadGateway, gin.H{
				"error":     "failed to trigger workflow",
				"details":   err.Error(),
				"execution": mapExecution(exec),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to trigger workflow"})
		return
	}
	c.JSON(http.StatusCreated, mapExecution(exec))
}

func (h *ExecutionHandler) Cancel(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid execution id"})
		return
	}
	exec, err := h.orchestrator.Cancel(c.Request.Context(), id, currentUserID(c))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "execution not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to cancel execution"})
		return
	}
	c.JSON(http.StatusOK, mapExecution(exec))
}

type statusUpdateRequest struct {
	Status            string      `json:"status" binding:"required"`
	Result            model.JSONB `json:"result"`
	EngineExecutionID string      `json:"engine_execution_id"`
}

// UpdateStatus is the engine's completion callback.
func (h *ExecutionHandler) UpdateStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid execution id"})
		return
	}
	var req statusUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	exec, err := h.orchestrator.UpdateStatus(c.Request.Context(), id, currentUserID(c), model.ExecutionStatusUpdate{
		Status:            model.ExecutionStatus(req.Status),
		Result:            req.Result,
		EngineExecutionID: req.EngineExecutionID,
	})
	if err != nil {
		if errors.Is(err, execution.ErrInvalidStatus) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "execution not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update execution"})
		return
	}
	c.JSON(http.StatusOK, mapExecution(exec))
}

// ExportCSV streams the user's execution history as a CSV attachment.
func (h *ExecutionHandler) ExportCSV(c *gin.Context) {
	executions, err := h.executions.ListByUser(c.Request.Context(), currentUserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list executions"})
		return
	}

	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", `attachment; filename="executions.csv"`)

	writer := csv.NewWriter(c.Writer)
	_ = writer.Write([]string{"id", "workflow_config_id", "keywords", "location", "status", "engine_execution_id", "created_at", "completed_at"})
	for i := range executions {
		exec := &executions[i]
		completed := ""
		if formatted := formatTime(exec.CompletedAt); formatted != nil {
			completed = *formatted
		}
		_ = writer.Write([]string{
			exec.ID.String(),
			exec.WorkflowConfigID.String(),
			exec.Keywords,
			exec.Location,
			string(exec.Status),
			exec.EngineExecutionID,
			exec.CreatedAt.UTC().Format(timeRFC3339),
			completed,
		})
	}
	writer.Flush()
}

// Events streams status transitions for one execution as server-sent events.
// The stream ends when the execution reaches a terminal status or the client
// disconnects.
func (h *ExecutionHandler) Events(c *gin.Context) {
	exec, ok := h.lookup(c)
	if !ok {
		return
	}
	if h.bus == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event stream unavailable"})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	// Send the current state first so clients never miss an already-terminal
	// execution.
	writeSSE(c, "execution_status", eventbus.ExecutionEvent{
		ExecutionID:      exec.ID.String(),
		WorkflowConfigID: exec.WorkflowConfigID.String(),
		UserID:           exec.UserID.String(),
		Status:           string(exec.Status),
	})
	if exec.Status.Terminal() {
		return
	}

	ctx := c.Request.Context()
	events := h.bus.Subscribe(ctx, eventbus.ChannelExecution)
	executionID := exec.ID.String()
	for {
		select {
		case <-ctx.Done():
			return
		case event, open := <-events:
			if !open {
				return
			}
			var payload eventbus.ExecutionEvent
			if err := json.Unmarshal(event.Data, &payload); err != nil {
				continue
			}
			if payload.ExecutionID != executionID {
				continue
			}
			writeSSE(c, event.Type, payload)
			if model.ExecutionStatus(payload.Status).Terminal() {
				return
			}
		}
	}
}

func (h *ExecutionHandler) ListResults(c *gin.Context) {
	userID := currentUserID(c)
	ctx := c.Request.Context()

	var (
		results []model.JobResult
		err     error
	)
	if raw := c.Query("execution_id"); raw != "" {
		executionID, parseErr := uuid.Parse(raw)
		if parseErr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid execution_id"})
			return
		}
		results, err = h.results.ListByExecution(ctx, executionID, userID)
	} else {
		results, err = h.results.ListByUser(ctx, userID)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list results"})
		return
	}

	out := make([]gin.H, 0, len(results))
	for i := range results {
		out = append(out, gin.H{
			"id":                    results[i].ID.String(),
			"workflow_execution_id": results[i].WorkflowExecutionID.String(),
			"title":                 results[i].Title,
			"link":                  results[i].Link,
			"created_at":            results[i].CreatedAt.UTC().Format(timeRFC3339),
		})
	}
	c.JSON(http.StatusOK, gin.H{"results": out, "count": len(out)})
}

// Reconcile triggers one on-demand reconciliation pass and returns its report.
func (h *ExecutionHandler) Reconcile(c *gin.Context) {
	if h.reconciler == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "reconciler unavailable"})
		return
	}
	report, err := h.reconciler.RunOnce(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reconciliation failed", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *ExecutionHandler) lookup(c *gin.Context) (*model.WorkflowExecution, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid execution id"})
		return nil, false
	}
	exec, err := h.executions.Get(c.Request.Context(), id, currentUserID(c))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "execution not found"})
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load execution"})
		return nil, false
	}
	return exec, true
}

func writeSSE(c *gin.Context, eventType string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	_, _ = c.Writer.WriteString("event: " + eventType + "\ndata: " + string(data) + "\n\n")
	c.Writer.Flush()
}
