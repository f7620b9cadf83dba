package postgres

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jobpulse/jobpulse/pkg/model"
)

type JobResultRepository struct {
	db *gorm.DB
}

func NewJobResultRepository(db *gorm.DB) *JobResultRepository {
	return &JobResultRepository{db: db}
}

// ReplaceForExecution swaps an execution's collected items in one
// transaction, so a re-delivered result payload cannot duplicate rows.
func (r *JobResultRepository) ReplaceForExecution(ctx context.Context, executionID uuid.UUID, results []model.JobResult) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("workflow_execution_id = ?", executionID).Delete(&model.JobResult{}).Error; err != nil {
			return err
		}
		if len(results) == 0 {
			return nil
		}
		return tx.CreateInBatches(results, 100).Error
	})
}

func (r *JobResultRepository) ListByExecution(ctx context.Context, executionID, userID uuid.UUID) ([]model.JobResult, error) {
	var results []model.JobResult
	err := r.db.WithContext(ctx).
		Joins("JOIN workflow_executions ON workflow_executions.id = job_results.workflow_execution_id").
		Where("job_results.workflow_execution_id = ? AND workflow_executions.user_id = ?", executionID, userID).
		Order("job_results.created_at ASC").
		Find(&results).Error
	return results, err
}

func (r *JobResultRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.JobResult, error) {
	var results []model.JobResult
	err := r.db.WithContext(ctx).
		Joins("JOIN workflow_executions ON workflow_executions.id = job_results.workflow_execution_id").
		Where("workflow_executions.user_id = ?", userID).
		Order("job_results.created_at DESC").
		Find(&results).Error
	return results, err
}
