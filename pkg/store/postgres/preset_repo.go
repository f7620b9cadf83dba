package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jobpulse/jobpulse/pkg/model"
	"github.com/jobpulse/jobpulse/pkg/store"
)

type PresetRepository struct {
	db *gorm.DB
}

func NewPresetRepository(db *gorm.DB) *PresetRepository {
	return &PresetRepository{db: db}
}

func (r *PresetRepository) Create(ctx context.Context, preset *model.SavedPreset) error {
	return r.db.WithContext(ctx).Create(preset).Error
}

func (r *PresetRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.SavedPreset, error) {
	var presets []model.SavedPreset
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&presets).Error
	return presets, err
}

func (r *PresetRepository) Get(ctx context.Context, id, userID uuid.UUID) (*model.SavedPreset, error) {
	var preset model.SavedPreset
	err := r.db.WithContext(ctx).
		First(&preset, "id = ? AND user_id = ?", id, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &preset, nil
}

func (r *PresetRepository) Delete(ctx context.Context, id, userID uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&model.SavedPreset{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}
