package execution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jobpulse/jobpulse/pkg/engine"
	"github.com/jobpulse/jobpulse/pkg/eventbus"
	"github.com/jobpulse/jobpulse/pkg/metrics"
	"github.com/jobpulse/jobpulse/pkg/model"
)

// ErrInvalidStatus rejects status transitions to values outside the
// execution status enumeration.
var ErrInvalidStatus = errors.New("invalid execution status")

type EngineClient interface {
	Trigger(ctx context.Context, req engine.TriggerRequest) (map[string]interface{}, error)
	CancelExecution(ctx context.Context, executionID string) bool
}

type ConfigStore interface {
	Get(ctx context.Context, id, userID uuid.UUID) (*model.WorkflowConfig, error)
	GetDefault(ctx context.Context, userID uuid.UUID, sourceFile string) (*model.WorkflowConfig, error)
}

type ExecutionStore interface {
	Create(ctx context.Context, execution *model.WorkflowExecution) error
	Get(ctx context.Context, id, userID uuid.UUID) (*model.WorkflowExecution, error)
	UpdateStatus(ctx context.Context, id, userID uuid.UUID, update model.ExecutionStatusUpdate) (*model.WorkflowExecution, error)
}

type PresetStore interface {
	Create(ctx context.Context, preset *model.SavedPreset) error
}

type ResultStore interface {
	ReplaceForExecution(ctx context.Context, executionID uuid.UUID, results []model.JobResult) error
}

// TriggerRequest is one interactive or scheduled request to run a workflow.
// A nil WorkflowConfigID targets the user's default config.
type TriggerRequest struct {
	WorkflowConfigID *uuid.UUID
	Keywords         string
	Location         string
	SaveAsPreset     bool
	PresetName       string
	Source           string // "api" or "scheduler", for metrics
}

// Orchestrator drives one execution attempt end to end: record creation,
// engine trigger, result interpretation, and record update.
type Orchestrator struct {
	engine            EngineClient
	configs           ConfigStore
	executions        ExecutionStore
	presets           PresetStore
	results           ResultStore
	bus               *eventbus.Bus
	defaultSourceFile string
	logger            *zap.Logger
}

func NewOrchestrator(
	engineClient EngineClient,
	configs ConfigStore,
	executions ExecutionStore,
	presets PresetStore,
	results ResultStore,
	bus *eventbus.Bus,
	defaultSourceFile string,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		engine:            engineClient,
		configs:           configs,
		executions:        executions,
		presets:           presets,
		results:           results,
		bus:               bus,
		defaultSourceFile: defaultSourceFile,
		logger:            logger,
	}
}

// Trigger creates an execution record and drives one engine trigger attempt.
// The execution row is returned in every outcome; when the engine call fails
// the row is persisted with status error and the failure is also returned.
func (o *Orchestrator) Trigger(ctx context.Context, user *model.User, req TriggerRequest) (*model.WorkflowExecution, error) {
	cfg, err := o.resolveConfig(ctx, user.ID, req.WorkflowConfigID)
	if err != nil {
		return nil, err
	}

	execution := &model.WorkflowExecution{
		ID:               uuid.New(),
		UserID:           user.ID,
		WorkflowConfigID: cfg.ID,
		Keywords:         req.Keywords,
		Location:         req.Location,
		Status:           model.ExecutionPending,
	}
	if err := o.executions.Create(ctx, execution); err != nil {
		return nil, fmt.Errorf("failed to create execution record: %w", err)
	}
	o.publishEvent(ctx, execution, "")

	payload := map[string]interface{}{
		"keywords":     req.Keywords,
		"location":     req.Location,
		"execution_id": execution.ID.String(),
	}
	// Keywords may carry a structured search document; pass it through parsed
	// when it is valid JSON, otherwise keep the raw string.
	var structured interface{}
	if err := json.Unmarshal([]byte(req.Keywords), &structured); err == nil {
		payload["keywords"] = structured
	}

	o.logger.Info("triggering engine workflow",
		zap.String("user_id", user.ID.String()),
		zap.String("engine_workflow_id", cfg.EngineWorkflowID),
		zap.String("execution_id", execution.ID.String()),
		zap.String("source", req.Source),
	)

	started := time.Now()
	response, err := o.engine.Trigger(ctx, engine.TriggerRequest{
		WorkflowID:  cfg.EngineWorkflowID,
		Payload:     payload,
		WebhookPath: cfg.WebhookPath,
		Definition:  cfg.Definition,
	})
	metrics.TriggerDuration.Observe(time.Since(started).Seconds())

	if err != nil {
		o.logger.Error("engine trigger failed",
			zap.String("execution_id", execution.ID.String()), zap.Error(err))
		metrics.ExecutionsTotal.WithLabelValues(string(model.ExecutionError), req.Source).Inc()

		failed, updateErr := o.executions.UpdateStatus(ctx, execution.ID, user.ID, model.ExecutionStatusUpdate{
			Status: model.ExecutionError,
			Result: model.JSONB{"error": err.Error()},
		})
		if updateErr != nil {
			o.logger.Error("failed to record trigger failure",
				zap.String("execution_id", execution.ID.String()), zap.Error(updateErr))
		} else {
			execution = failed
		}
		o.publishEvent(ctx, execution, err.Error())
		return execution, fmt.Errorf("failed to trigger workflow: %w", err)
	}

	if engineExecutionID := extractEngineExecutionID(response); engineExecutionID != "" {
		running, updateErr := o.executions.UpdateStatus(ctx, execution.ID, user.ID, model.ExecutionStatusUpdate{
			Status:            model.ExecutionRunning,
			EngineExecutionID: engineExecutionID,
		})
		if updateErr != nil {
			o.logger.Error("failed to advance execution to running",
				zap.String("execution_id", execution.ID.String()), zap.Error(updateErr))
		} else {
			execution = running
			o.publishEvent(ctx, execution, "")
		}
	}

	if req.SaveAsPreset && req.PresetName != "" {
		o.savePreset(ctx, user.ID, cfg.ID, req)
	}

	return execution, nil
}

// Cancel forces an execution to a terminal error state with a cancellation
// marker, stopping it engine-side first when an engine id is known. Calling
// it on an already-terminal execution is harmless.
func (o *Orchestrator) Cancel(ctx context.Context, executionID, userID uuid.UUID) (*model.WorkflowExecution, error) {
	execution, err := o.executions.Get(ctx, executionID, userID)
	if err != nil {
		return nil, err
	}

	if execution.EngineExecutionID != "" {
		if ok := o.engine.CancelExecution(ctx, execution.EngineExecutionID); !ok {
			o.logger.Warn("engine-side cancel failed, forcing local state anyway",
				zap.String("execution_id", executionID.String()),
				zap.String("engine_execution_id", execution.EngineExecutionID))
		}
	}

	cancelled, err := o.executions.UpdateStatus(ctx, executionID, userID, model.ExecutionStatusUpdate{
		Status: model.ExecutionError,
		Result: model.JSONB{"cancelled": true},
	})
	if err != nil {
		return nil, err
	}
	o.publishEvent(ctx, cancelled, "cancelled")
	return cancelled, nil
}

// UpdateStatus applies an inbound status transition, typically from the
// engine's completion callback.
func (o *Orchestrator) UpdateStatus(ctx context.Context, executionID, userID uuid.UUID, update model.ExecutionStatusUpdate) (*model.WorkflowExecution, error) {
	if !model.IsValidExecutionStatus(update.Status) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, update.Status)
	}

	execution, err := o.executions.UpdateStatus(ctx, executionID, userID, update)
	if err != nil {
		return nil, err
	}

	if update.Status.Terminal() {
		metrics.ExecutionsTotal.WithLabelValues(string(update.Status), "callback").Inc()
	}
	if update.Status == model.ExecutionSuccess && o.results != nil {
		o.saveResults(ctx, execution)
	}
	o.publishEvent(ctx, execution, "")
	return execution, nil
}

func (o *Orchestrator) resolveConfig(ctx context.Context, userID uuid.UUID, configID *uuid.UUID) (*model.WorkflowConfig, error) {
	if configID == nil {
		cfg, err := o.configs.GetDefault(ctx, userID, o.defaultSourceFile)
		if err != nil {
			return nil, fmt.Errorf("default workflow config: %w", err)
		}
		return cfg, nil
	}
	return o.configs.Get(ctx, *configID, userID)
}

// savePreset is best-effort: a preset failure must never fail the execution
// that carried it.
func (o *Orchestrator) savePreset(ctx context.Context, userID, configID uuid.UUID, req TriggerRequest) {
	preset := &model.SavedPreset{
		UserID:           userID,
		WorkflowConfigID: configID,
		Name:             req.PresetName,
		Keywords:         req.Keywords,
		Location:         req.Location,
	}
	if err := o.presets.Create(ctx, preset); err != nil {
		o.logger.Warn("failed to save preset",
			zap.String("preset_name", req.PresetName), zap.Error(err))
	}
}

// saveResults extracts collected items from a success payload. Best-effort.
func (o *Orchestrator) saveResults(ctx context.Context, execution *model.WorkflowExecution) {
	items := extractResultItems(execution)
	if len(items) == 0 {
		return
	}
	if err := o.results.ReplaceForExecution(ctx, execution.ID, items); err != nil {
		o.logger.Warn("failed to persist job results",
			zap.String("execution_id", execution.ID.String()), zap.Error(err))
	}
}

func (o *Orchestrator) publishEvent(ctx context.Context, execution *model.WorkflowExecution, message string) {
	if o.bus == nil || execution == nil {
		return
	}
	event, err := eventbus.NewEvent("execution_status", eventbus.ExecutionEvent{
		ExecutionID:      execution.ID.String(),
		WorkflowConfigID: execution.WorkflowConfigID.String(),
		UserID:           execution.UserID.String(),
		Status:           string(execution.Status),
		Message:          message,
	})
	if err != nil {
		return
	}
	if err := o.bus.Publish(ctx, eventbus.ChannelExecution, event); err != nil {
		o.logger.Debug("failed to publish execution event", zap.Error(err))
	}
}

// extractEngineExecutionID reads the engine's execution identifier from a
// trigger response, preferring "executionId" over "id". Engines disagree on
// the numeric/string type of the field.
func extractEngineExecutionID(response map[string]interface{}) string {
	for _, key := range []string{"executionId", "id"} {
		switch v := response[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case json.Number:
			return v.String()
		}
	}
	return ""
}

func extractResultItems(execution *model.WorkflowExecution) []model.JobResult {
	if execution.Result == nil {
		return nil
	}
	rawItems, ok := execution.Result["items"].([]interface{})
	if !ok {
		return nil
	}

	results := make([]model.JobResult, 0, len(rawItems))
	for _, raw := range rawItems {
		item, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		title, _ := item["title"].(string)
		link, _ := item["link"].(string)
		if link == "" {
			link, _ = item["vacancy_link"].(string)
		}
		if title == "" || link == "" {
			continue
		}
		results = append(results, model.JobResult{
			WorkflowExecutionID: execution.ID,
			Title:               title,
			Link:                link,
		})
	}
	return results
}
