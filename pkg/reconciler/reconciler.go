package reconciler

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jobpulse/jobpulse/pkg/execution"
	"github.com/jobpulse/jobpulse/pkg/metrics"
	"github.com/jobpulse/jobpulse/pkg/model"
	"github.com/jobpulse/jobpulse/pkg/store"
)

type ConfigStore interface {
	ListActive(ctx context.Context) ([]model.WorkflowConfig, error)
	SetLastRun(ctx context.Context, id uuid.UUID, at time.Time) error
}

type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
}

type Trigger interface {
	Trigger(ctx context.Context, user *model.User, req execution.TriggerRequest) (*model.WorkflowExecution, error)
}

// Result is one config's outcome within a reconciliation run.
type Result struct {
	WorkflowID   string `json:"workflow_id"`
	WorkflowName string `json:"workflow_name"`
	Status       string `json:"status"`
	ExecutionID  string `json:"execution_id,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Report aggregates one reconciliation run. The run itself never fails on a
// per-config error; failures surface only as error entries here.
type Report struct {
	Status    string   `json:"status"` // skipped or completed
	Reason    string   `json:"reason,omitempty"`
	Count     int      `json:"count"`
	Processed int      `json:"processed"`
	Results   []Result `json:"results"`
}

// Reconciler periodically finds workflow configs whose run interval has
// elapsed and triggers them. The due set is recomputed from persisted state
// on every run, so missed runs self-heal on the next tick.
type Reconciler struct {
	configs  ConfigStore
	users    UserStore
	trigger  Trigger
	logger   *zap.Logger
	interval time.Duration
	now      func() time.Time
}

func NewReconciler(configs ConfigStore, users UserStore, trigger Trigger, logger *zap.Logger, interval time.Duration) *Reconciler {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Reconciler{
		configs:  configs,
		users:    users,
		trigger:  trigger,
		logger:   logger,
		interval: interval,
		now:      time.Now,
	}
}

func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil {
				r.logger.Error("reconciliation run failed", zap.Error(err))
			}
		}
	}
}

// RunOnce performs a single reconciliation pass and returns its report.
func (r *Reconciler) RunOnce(ctx context.Context) (*Report, error) {
	now := r.now().UTC()

	active, err := r.configs.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	due := make([]model.WorkflowConfig, 0, len(active))
	for i := range active {
		if active[i].IsDue(now) {
			due = append(due, active[i])
		}
	}
	metrics.DueWorkflows.Set(float64(len(due)))

	if len(due) == 0 {
		r.logger.Info("no due workflow configs, skipping run")
		metrics.ReconcilerRunsTotal.WithLabelValues("skipped").Inc()
		return &Report{Status: "skipped", Reason: "no_due_workflows", Results: []Result{}}, nil
	}

	r.logger.Info("reconciling due workflow configs", zap.Int("count", len(due)))

	results := make([]Result, 0, len(due))
	for i := range due {
		cfg := &due[i]

		user, err := r.users.GetByID(ctx, cfg.UserID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				r.logger.Warn("skipping config with missing owner",
					zap.String("workflow_config_id", cfg.ID.String()),
					zap.String("user_id", cfg.UserID.String()))
				continue
			}
			results = append(results, Result{
				WorkflowID:   cfg.ID.String(),
				WorkflowName: cfg.Name,
				Status:       "error",
				Error:        err.Error(),
			})
			continue
		}

		exec, err := r.trigger.Trigger(ctx, user, execution.TriggerRequest{
			WorkflowConfigID: &cfg.ID,
			Source:           "scheduler",
		})
		if err != nil {
			r.logger.Error("scheduled trigger failed",
				zap.String("workflow_config_id", cfg.ID.String()), zap.Error(err))
			results = append(results, Result{
				WorkflowID:   cfg.ID.String(),
				WorkflowName: cfg.Name,
				Status:       "error",
				Error:        err.Error(),
			})
			continue
		}

		// Committed per config so one later failure cannot roll back runs
		// that already happened.
		if err := r.configs.SetLastRun(ctx, cfg.ID, now); err != nil {
			r.logger.Error("failed to record last run",
				zap.String("workflow_config_id", cfg.ID.String()), zap.Error(err))
		}

		results = append(results, Result{
			WorkflowID:   cfg.ID.String(),
			WorkflowName: cfg.Name,
			Status:       "success",
			ExecutionID:  exec.ID.String(),
		})
	}

	metrics.ReconcilerRunsTotal.WithLabelValues("completed").Inc()
	return &Report{
		Status:    "completed",
		Count:     len(due),
		Processed: len(results),
		Results:   results,
	}, nil
}
