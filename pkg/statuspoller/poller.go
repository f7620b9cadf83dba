package statuspoller

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/jobpulse/jobpulse/pkg/eventbus"
	"github.com/jobpulse/jobpulse/pkg/metrics"
	"github.com/jobpulse/jobpulse/pkg/model"
)

var errEngineUnavailable = errors.New("engine status unavailable")

type EngineClient interface {
	GetExecutionStatus(ctx context.Context, executionID string) map[string]interface{}
}

type ExecutionStore interface {
	ListRunning(ctx context.Context) ([]model.WorkflowExecution, error)
	UpdateStatus(ctx context.Context, id, userID uuid.UUID, update model.ExecutionStatusUpdate) (*model.WorkflowExecution, error)
}

// Poller complements the inbound status callback: it periodically asks the
// engine about running executions and closes out the ones the engine reports
// finished. Polling is best-effort end to end; a broken engine only means
// executions stay running until the callback or the next successful poll.
type Poller struct {
	engine     EngineClient
	executions ExecutionStore
	bus        *eventbus.Bus
	logger     *zap.Logger
	interval   time.Duration
	breaker    *gobreaker.CircuitBreaker
}

func NewPoller(engineClient EngineClient, executions ExecutionStore, bus *eventbus.Bus, logger *zap.Logger, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "engine-status",
		Timeout: 2 * interval,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &Poller{
		engine:     engineClient,
		executions: executions,
		bus:        bus,
		logger:     logger,
		interval:   interval,
		breaker:    breaker,
	}
}

func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

func (p *Poller) pollOnce(ctx context.Context) {
	running, err := p.executions.ListRunning(ctx)
	if err != nil {
		p.logger.Error("failed to list running executions", zap.Error(err))
		return
	}

	for i := range running {
		exec := &running[i]

		response, err := p.breaker.Execute(func() (interface{}, error) {
			status := p.engine.GetExecutionStatus(ctx, exec.EngineExecutionID)
			if status == nil {
				return nil, errEngineUnavailable
			}
			return status, nil
		})
		if err != nil {
			metrics.EngineStatusPolls.WithLabelValues("error").Inc()
			if errors.Is(err, gobreaker.ErrOpenState) {
				// Engine is down; no point hammering the rest of the batch.
				p.logger.Warn("engine status breaker open, deferring poll cycle")
				return
			}
			continue
		}
		metrics.EngineStatusPolls.WithLabelValues("success").Inc()

		status, ok := deriveStatus(response.(map[string]interface{}))
		if !ok {
			continue
		}

		updated, err := p.executions.UpdateStatus(ctx, exec.ID, exec.UserID, model.ExecutionStatusUpdate{
			Status: status,
			Result: model.JSONB(response.(map[string]interface{})),
		})
		if err != nil {
			p.logger.Error("failed to close out execution from poll",
				zap.String("execution_id", exec.ID.String()), zap.Error(err))
			continue
		}

		metrics.ExecutionsTotal.WithLabelValues(string(status), "poller").Inc()
		p.logger.Info("execution closed out from engine poll",
			zap.String("execution_id", exec.ID.String()),
			zap.String("status", string(status)))
		p.publishEvent(ctx, updated)
	}
}

func (p *Poller) publishEvent(ctx context.Context, execution *model.WorkflowExecution) {
	if p.bus == nil {
		return
	}
	event, err := eventbus.NewEvent("execution_status", eventbus.ExecutionEvent{
		ExecutionID:      execution.ID.String(),
		WorkflowConfigID: execution.WorkflowConfigID.String(),
		UserID:           execution.UserID.String(),
		Status:           string(execution.Status),
	})
	if err != nil {
		return
	}
	_ = p.bus.Publish(ctx, eventbus.ChannelExecution, event)
}

// deriveStatus maps an engine execution document to a terminal status.
// Non-terminal documents yield ok=false.
func deriveStatus(response map[string]interface{}) (model.ExecutionStatus, bool) {
	if status, ok := response["status"].(string); ok {
		switch status {
		case "success":
			return model.ExecutionSuccess, true
		case "error", "failed", "crashed", "canceled":
			return model.ExecutionError, true
		case "running", "waiting", "new":
			return "", false
		}
	}
	if finished, ok := response["finished"].(bool); ok && finished {
		return model.ExecutionSuccess, true
	}
	return "", false
}
