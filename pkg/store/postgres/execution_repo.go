package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jobpulse/jobpulse/pkg/model"
	"github.com/jobpulse/jobpulse/pkg/store"
)

type ExecutionRepository struct {
	db *gorm.DB
}

func NewExecutionRepository(db *gorm.DB) *ExecutionRepository {
	return &ExecutionRepository{db: db}
}

func (r *ExecutionRepository) Create(ctx context.Context, execution *model.WorkflowExecution) error {
	return r.db.WithContext(ctx).Create(execution).Error
}

func (r *ExecutionRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.WorkflowExecution, error) {
	var executions []model.WorkflowExecution
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&executions).Error
	return executions, err
}

// ListRunning returns running executions that already carry an engine
// execution id, across all users. Used by the status poller.
func (r *ExecutionRepository) ListRunning(ctx context.Context) ([]model.WorkflowExecution, error) {
	var executions []model.WorkflowExecution
	err := r.db.WithContext(ctx).
		Where("status = ? AND engine_execution_id <> ''", model.ExecutionRunning).
		Find(&executions).Error
	return executions, err
}

func (r *ExecutionRepository) Get(ctx context.Context, id, userID uuid.UUID) (*model.WorkflowExecution, error) {
	var execution model.WorkflowExecution
	err := r.db.WithContext(ctx).
		First(&execution, "id = ? AND user_id = ?", id, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &execution, nil
}

// UpdateStatus applies one status transition. CompletedAt is set exactly when
// the new status is terminal. Returns the updated row.
func (r *ExecutionRepository) UpdateStatus(ctx context.Context, id, userID uuid.UUID, update model.ExecutionStatusUpdate) (*model.WorkflowExecution, error) {
	updates := map[string]interface{}{
		"status": update.Status,
	}
	if update.Result != nil {
		updates["result"] = update.Result
	}
	if update.EngineExecutionID != "" {
		updates["engine_execution_id"] = update.EngineExecutionID
	}
	if completed := update.CompletionTime(time.Now().UTC()); completed != nil {
		updates["completed_at"] = completed
	}

	result := r.db.WithContext(ctx).Model(&model.WorkflowExecution{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(updates)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, store.ErrNotFound
	}

	return r.Get(ctx, id, userID)
}
