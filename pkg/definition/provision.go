package definition

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jobpulse/jobpulse/pkg/engine"
	"github.com/jobpulse/jobpulse/pkg/model"
	"github.com/jobpulse/jobpulse/pkg/store"
)

type ConfigStore interface {
	Create(ctx context.Context, cfg *model.WorkflowConfig) error
	Update(ctx context.Context, cfg *model.WorkflowConfig) error
	GetDefault(ctx context.Context, userID uuid.UUID, sourceFile string) (*model.WorkflowConfig, error)
}

type PresetStore interface {
	Create(ctx context.Context, preset *model.SavedPreset) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]model.SavedPreset, error)
}

// Provisioner materializes the well-known default workflow definition as a
// per-user config. Provisioning is an idempotent upsert keyed on the
// source-file tag, never a side effect of a read.
type Provisioner struct {
	loader     *Loader
	sourceFile string
	configs    ConfigStore
	presets    PresetStore
	logger     *zap.Logger
}

func NewProvisioner(loader *Loader, sourceFile string, configs ConfigStore, presets PresetStore, logger *zap.Logger) *Provisioner {
	return &Provisioner{
		loader:     loader,
		sourceFile: sourceFile,
		configs:    configs,
		presets:    presets,
		logger:     logger,
	}
}

func (p *Provisioner) SourceFile() string { return p.sourceFile }

// EnsureDefault returns the user's default config, creating it from the
// static definition file when missing. Safe to call concurrently: a lost
// insert race resolves by re-reading the winner's row.
func (p *Provisioner) EnsureDefault(ctx context.Context, userID uuid.UUID) (*model.WorkflowConfig, error) {
	existing, err := p.configs.GetDefault(ctx, userID, p.sourceFile)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	doc, meta, err := p.loadDefault()
	if err != nil {
		return nil, err
	}

	cfg := &model.WorkflowConfig{
		UserID:             userID,
		Name:               meta.Name,
		EngineWorkflowID:   meta.WorkflowID,
		Definition:         model.JSONB(doc),
		DefinitionVersion:  meta.Version,
		IsActive:           false, // inactive until the user runs it with real parameters
		RunIntervalMinutes: 15,
		SourceFile:         p.sourceFile,
	}
	if err := p.configs.Create(ctx, cfg); err != nil {
		// The unique (user, engine workflow) constraint means a concurrent
		// request may have won the insert; fall back to its row.
		if winner, getErr := p.configs.GetDefault(ctx, userID, p.sourceFile); getErr == nil {
			return winner, nil
		}
		return nil, fmt.Errorf("failed to create default workflow config: %w", err)
	}

	p.logger.Info("provisioned default workflow config",
		zap.String("user_id", userID.String()),
		zap.String("engine_workflow_id", meta.WorkflowID))
	return cfg, nil
}

// SyncDefault refreshes the user's default config from the definition file,
// preserving the activation choice the user already made.
func (p *Provisioner) SyncDefault(ctx context.Context, userID uuid.UUID) (*model.WorkflowConfig, error) {
	existing, err := p.configs.GetDefault(ctx, userID, p.sourceFile)
	if errors.Is(err, store.ErrNotFound) {
		return p.EnsureDefault(ctx, userID)
	}
	if err != nil {
		return nil, err
	}

	doc, meta, err := p.loadDefault()
	if err != nil {
		return nil, err
	}

	existing.Name = meta.Name
	existing.EngineWorkflowID = meta.WorkflowID
	existing.Definition = model.JSONB(doc)
	existing.DefinitionVersion = meta.Version
	if err := p.configs.Update(ctx, existing); err != nil {
		return nil, fmt.Errorf("failed to update default workflow config: %w", err)
	}
	return existing, nil
}

// SeedPresets creates the starter presets for a user that has none yet.
// Returns the number of presets created.
func (p *Provisioner) SeedPresets(ctx context.Context, userID uuid.UUID) (int, error) {
	existing, err := p.presets.ListByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 {
		return 0, nil
	}

	cfg, err := p.EnsureDefault(ctx, userID)
	if err != nil {
		return 0, err
	}

	seeds := []struct {
		name, keywords, location string
	}{
		{"Пошук вакансій у Києві", "Python developer", "Київ"},
		{"Пошук вакансій у Львові", "Frontend developer", "Львів"},
		{"Пошук вакансій у Харкові", "DevOps engineer", "Харків"},
		{"Пошук вакансій у Одесі", "Data Scientist", "Одеса"},
	}

	created := 0
	for _, seed := range seeds {
		preset := &model.SavedPreset{
			UserID:           userID,
			WorkflowConfigID: cfg.ID,
			Name:             seed.name,
			Keywords:         seed.keywords,
			Location:         seed.location,
		}
		if err := p.presets.Create(ctx, preset); err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}

func (p *Provisioner) loadDefault() (map[string]interface{}, Metadata, error) {
	doc, err := p.loader.ReadJSON(p.sourceFile)
	if err != nil {
		return nil, Metadata{}, err
	}
	if err := engine.ValidateDefinition(doc); err != nil {
		return nil, Metadata{}, fmt.Errorf("invalid default workflow definition: %w", err)
	}
	meta, err := ExtractMetadata(doc)
	if err != nil {
		return nil, Metadata{}, err
	}
	return doc, meta, nil
}
