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

type WorkflowConfigRepository struct {
	db *gorm.DB
}

func NewWorkflowConfigRepository(db *gorm.DB) *WorkflowConfigRepository {
	return &WorkflowConfigRepository{db: db}
}

func (r *WorkflowConfigRepository) Create(ctx context.Context, cfg *model.WorkflowConfig) error {
	return r.db.WithContext(ctx).Create(cfg).Error
}

func (r *WorkflowConfigRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.WorkflowConfig, error) {
	var configs []model.WorkflowConfig
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&configs).Error
	return configs, err
}

func (r *WorkflowConfigRepository) ListActiveByUser(ctx context.Context, userID uuid.UUID) ([]model.WorkflowConfig, error) {
	var configs []model.WorkflowConfig
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ?", userID, true).
		Order("created_at ASC").
		Find(&configs).Error
	return configs, err
}

// ListActive returns every active config across all users; the reconciler
// computes the due subset from this.
func (r *WorkflowConfigRepository) ListActive(ctx context.Context) ([]model.WorkflowConfig, error) {
	var configs []model.WorkflowConfig
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("created_at ASC").
		Find(&configs).Error
	return configs, err
}

// Get is ownership-scoped: a config owned by another user is reported the
// same way as a missing one.
func (r *WorkflowConfigRepository) Get(ctx context.Context, id, userID uuid.UUID) (*model.WorkflowConfig, error) {
	var cfg model.WorkflowConfig
	err := r.db.WithContext(ctx).
		First(&cfg, "id = ? AND user_id = ?", id, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// GetDefault returns the user's config tagged with the given source file.
func (r *WorkflowConfigRepository) GetDefault(ctx context.Context, userID uuid.UUID, sourceFile string) (*model.WorkflowConfig, error) {
	var cfg model.WorkflowConfig
	err := r.db.WithContext(ctx).
		First(&cfg, "user_id = ? AND source_file = ?", userID, sourceFile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (r *WorkflowConfigRepository) Update(ctx context.Context, cfg *model.WorkflowConfig) error {
	return r.db.WithContext(ctx).Save(cfg).Error
}

func (r *WorkflowConfigRepository) SetActive(ctx context.Context, id, userID uuid.UUID, active bool) error {
	result := r.db.WithContext(ctx).Model(&model.WorkflowConfig{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(map[string]interface{}{
			"is_active":  active,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// SetLastRun commits a single config's last-run timestamp. The reconciler
// calls this per config so a mid-batch failure cannot roll back runs that
// already happened.
func (r *WorkflowConfigRepository) SetLastRun(ctx context.Context, id uuid.UUID, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&model.WorkflowConfig{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_run_at": &at,
			"updated_at":  at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *WorkflowConfigRepository) Delete(ctx context.Context, id, userID uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&model.WorkflowConfig{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}
