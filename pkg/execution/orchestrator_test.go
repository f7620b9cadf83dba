package execution

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jobpulse/jobpulse/pkg/engine"
	"github.com/jobpulse/jobpulse/pkg/model"
	"github.com/jobpulse/jobpulse/pkg/store"
)

type fakeEngine struct {
	response    map[string]interface{}
	err         error
	lastRequest engine.TriggerRequest
	cancelled   []string
	cancelOK    bool
}

func (f *fakeEngine) Trigger(ctx context.Context, req engine.TriggerRequest) (map[string]interface{}, error) {
	f.lastRequest = req
	if f.err != nil {
		return nil, f.err
	}
	return f.response, nil
}

func (f *fakeEngine) CancelExecution(ctx context.Context, executionID string) bool {
	f.cancelled = append(f.cancelled, executionID)
	return f.cancelOK
}

type fakeConfigStore struct {
	configs map[uuid.UUID]*model.WorkflowConfig
}

func (f *fakeConfigStore) Get(ctx context.Context, id, userID uuid.UUID) (*model.WorkflowConfig, error) {
	cfg, ok := f.configs[id]
	if !ok || cfg.UserID != userID {
		return nil, store.ErrNotFound
	}
	return cfg, nil
}

func (f *fakeConfigStore) GetDefault(ctx context.Context, userID uuid.UUID, sourceFile string) (*model.WorkflowConfig, error) {
	for _, cfg := range f.configs {
		if cfg.UserID == userID && cfg.SourceFile == sourceFile {
			return cfg, nil
		}
	}
	return nil, store.ErrNotFound
}

type fakeExecutionStore struct {
	executions map[uuid.UUID]*model.WorkflowExecution
	created    int
}

func newFakeExecutionStore() *fakeExecutionStore {
	return &fakeExecutionStore{executions: map[uuid.UUID]*model.WorkflowExecution{}}
}

func (f *fakeExecutionStore) Create(ctx context.Context, execution *model.WorkflowExecution) error {
	copied := *execution
	f.executions[execution.ID] = &copied
	f.created++
	return nil
}

func (f *fakeExecutionStore) Get(ctx context.Context, id, userID uuid.UUID) (*model.WorkflowExecution, error) {
	execution, ok := f.executions[id]
	if !ok || execution.UserID != userID {
		return nil, store.ErrNotFound
	}
	copied := *execution
	return &copied, nil
}

func (f *fakeExecutionStore) UpdateStatus(ctx context.Context, id, userID uuid.UUID, update model.ExecutionStatusUpdate) (*model.WorkflowExecution, error) {
	execution, ok := f.executions[id]
	if !ok || execution.UserID != userID {
		return nil, store.ErrNotFound
	}
	execution.Status = update.Status
	if update.Result != nil {
		execution.Result = update.Result
	}
	if update.EngineExecutionID != "" {
		execution.EngineExecutionID = update.EngineExecutionID
	}
	if completed := update.CompletionTime(time.Now().UTC()); completed != nil {
		execution.CompletedAt = completed
	}
	copied := *execution
	return &copied, nil
}

type fakePresetStore struct {
	presets []*model.SavedPreset
	err     error
}

func (f *fakePresetStore) Create(ctx context.Context, preset *model.SavedPreset) error {
	if f.err != nil {
		return f.err
	}
	f.presets = append(f.presets, preset)
	return nil
}

type fakeResultStore struct {
	saved map[uuid.UUID][]model.JobResult
}

func (f *fakeResultStore) ReplaceForExecution(ctx context.Context, executionID uuid.UUID, results []model.JobResult) error {
	if f.saved == nil {
		f.saved = map[uuid.UUID][]model.JobResult{}
	}
	f.saved[executionID] = results
	return nil
}

func newTestOrchestrator(eng *fakeEngine, configs *fakeConfigStore, executions *fakeExecutionStore, presets *fakePresetStore, results *fakeResultStore) *Orchestrator {
	return NewOrchestrator(eng, configs, executions, presets, results, nil, "automation.json", zap.NewNop())
}

func testConfig(userID uuid.UUID) *model.WorkflowConfig {
	return &model.WorkflowConfig{
		ID:               uuid.New(),
		UserID:           userID,
		Name:             "Job search",
		EngineWorkflowID: "wf-1",
		WebhookPath:      "search-jobs",
		SourceFile:       "automation.json",
	}
}

func TestTriggerSuccess(t *testing.T) {
	user := &model.User{ID: uuid.New()}
	cfg := testConfig(user.ID)
	eng := &fakeEngine{response: map[string]interface{}{"executionId": "exec-42"}}
	executions := newFakeExecutionStore()
	orchestrator := newTestOrchestrator(eng,
		&fakeConfigStore{configs: map[uuid.UUID]*model.WorkflowConfig{cfg.ID: cfg}},
		executions, &fakePresetStore{}, &fakeResultStore{})

	execution, err := orchestrator.Trigger(context.Background(), user, TriggerRequest{
		WorkflowConfigID: &cfg.ID,
		Keywords:         "golang developer",
		Location:         "Київ",
		Source:           "api",
	})
	if err != nil {
		t.Fatalf("Trigger() error: %v", err)
	}
	if execution.Status != model.ExecutionRunning {
		t.Fatalf("expected running status, got %q", execution.Status)
	}
	if execution.EngineExecutionID != "exec-42" {
		t.Fatalf("expected engine execution id exec-42, got %q", execution.EngineExecutionID)
	}
	if execution.CompletedAt != nil {
		t.Fatalf("running execution must not carry a completion time, got %v", *execution.CompletedAt)
	}
	if executions.created != 1 {
		t.Fatalf("expected exactly one execution record, got %d", executions.created)
	}
	if eng.lastRequest.WorkflowID != "wf-1" || eng.lastRequest.WebhookPath != "search-jobs" {
		t.Fatalf("unexpected engine request: %+v", eng.lastRequest)
	}
}

func TestTriggerNumericEngineExecutionID(t *testing.T) {
	user := &model.User{ID: uuid.New()}
	cfg := testConfig(user.ID)
	eng := &fakeEngine{response: map[string]interface{}{"id": float64(1234)}}
	orchestrator := newTestOrchestrator(eng,
		&fakeConfigStore{configs: map[uuid.UUID]*model.WorkflowConfig{cfg.ID: cfg}},
		newFakeExecutionStore(), &fakePresetStore{}, &fakeResultStore{})

	execution, err := orchestrator.Trigger(context.Background(), user, TriggerRequest{
		WorkflowConfigID: &cfg.ID,
		Keywords:         "devops",
	})
	if err != nil {
		t.Fatalf("Trigger() error: %v", err)
	}
	if execution.EngineExecutionID != "1234" {
		t.Fatalf("expected engine execution id 1234, got %q", execution.EngineExecutionID)
	}
}

func TestTriggerEngineFailure(t *testing.T) {
	user := &model.User{ID: uuid.New()}
	cfg := testConfig(user.ID)
	eng := &fakeEngine{err: errors.New("both paths exhausted")}
	executions := newFakeExecutionStore()
	orchestrator := newTestOrchestrator(eng,
		&fakeConfigStore{configs: map[uuid.UUID]*model.WorkflowConfig{cfg.ID: cfg}},
		executions, &fakePresetStore{}, &fakeResultStore{})

	execution, err := orchestrator.Trigger(context.Background(), user, TriggerRequest{
		WorkflowConfigID: &cfg.ID,
		Keywords:         "golang",
	})
	if err == nil {
		t.Fatal("expected trigger error")
	}
	if execution == nil {
		t.Fatal("expected execution record alongside the error")
	}
	if execution.Status != model.ExecutionError {
		t.Fatalf("expected error status, got %q", execution.Status)
	}
	if execution.Result["error"] != "both paths exhausted" {
		t.Fatalf("expected failure recorded in result, got %v", execution.Result)
	}
	if execution.CompletedAt == nil {
		t.Fatal("failed execution must carry a completion time")
	}
	if executions.created != 1 {
		t.Fatalf("expected one execution record even on failure, got %d", executions.created)
	}
}

func TestTriggerStructuredKeywords(t *testing.T) {
	user := &model.User{ID: uuid.New()}
	cfg := testConfig(user.ID)
	eng := &fakeEngine{response: map[string]interface{}{}}
	orchestrator := newTestOrchestrator(eng,
		&fakeConfigStore{configs: map[uuid.UUID]*model.WorkflowConfig{cfg.ID: cfg}},
		newFakeExecutionStore(), &fakePresetStore{}, &fakeResultStore{})

	_, err := orchestrator.Trigger(context.Background(), user, TriggerRequest{
		WorkflowConfigID: &cfg.ID,
		Keywords:         `{"role": "developer", "seniority": "senior"}`,
	})
	if err != nil {
		t.Fatalf("Trigger() error: %v", err)
	}

	keywords, ok := eng.lastRequest.Payload["keywords"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected structured keywords in payload, got %T", eng.lastRequest.Payload["keywords"])
	}
	if keywords["role"] != "developer" {
		t.Fatalf("expected role developer, got %v", keywords["role"])
	}
}

func TestTriggerPlainKeywordsStayString(t *testing.T) {
	user := &model.User{ID: uuid.New()}
	cfg := testConfig(user.ID)
	eng := &fakeEngine{response: map[string]interface{}{}}
	orchestrator := newTestOrchestrator(eng,
		&fakeConfigStore{configs: map[uuid.UUID]*model.WorkflowConfig{cfg.ID: cfg}},
		newFakeExecutionStore(), &fakePresetStore{}, &fakeResultStore{})

	_, err := orchestrator.Trigger(context.Background(), user, TriggerRequest{
		WorkflowConfigID: &cfg.ID,
		Keywords:         "python developer",
	})
	if err != nil {
		t.Fatalf("Trigger() error: %v", err)
	}
	if eng.lastRequest.Payload["keywords"] != "python developer" {
		t.Fatalf("expected raw keyword string, got %v", eng.lastRequest.Payload["keywords"])
	}
}

func TestTriggerDefaultConfig(t *testing.T) {
	user := &model.User{ID: uuid.New()}
	cfg := testConfig(user.ID)
	eng := &fakeEngine{response: map[string]interface{}{"executionId": "exec-1"}}
	orchestrator := newTestOrchestrator(eng,
		&fakeConfigStore{configs: map[uuid.UUID]*model.WorkflowConfig{cfg.ID: cfg}},
		newFakeExecutionStore(), &fakePresetStore{}, &fakeResultStore{})

	execution, err := orchestrator.Trigger(context.Background(), user, TriggerRequest{
		Keywords: "qa engineer",
	})
	if err != nil {
		t.Fatalf("Trigger() error: %v", err)
	}
	if execution.WorkflowConfigID != cfg.ID {
		t.Fatalf("expected default config %s, got %s", cfg.ID, execution.WorkflowConfigID)
	}
}

func TestTriggerOtherUsersConfig(t *testing.T) {
	owner := uuid.New()
	cfg := testConfig(owner)
	orchestrator := newTestOrchestrator(&fakeEngine{},
		&fakeConfigStore{configs: map[uuid.UUID]*model.WorkflowConfig{cfg.ID: cfg}},
		newFakeExecutionStore(), &fakePresetStore{}, &fakeResultStore{})

	_, err := orchestrator.Trigger(context.Background(), &model.User{ID: uuid.New()}, TriggerRequest{
		WorkflowConfigID: &cfg.ID,
		Keywords:         "golang",
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found for another user's config, got %v", err)
	}
}

func TestTriggerSavesPreset(t *testing.T) {
	user := &model.User{ID: uuid.New()}
	cfg := testConfig(user.ID)
	presets := &fakePresetStore{}
	orchestrator := newTestOrchestrator(
		&fakeEngine{response: map[string]interface{}{"executionId": "exec-1"}},
		&fakeConfigStore{configs: map[uuid.UUID]*model.WorkflowConfig{cfg.ID: cfg}},
		newFakeExecutionStore(), presets, &fakeResultStore{})

	_, err := orchestrator.Trigger(context.Background(), user, TriggerRequest{
		WorkflowConfigID: &cfg.ID,
		Keywords:         "golang",
		Location:         "Львів",
		SaveAsPreset:     true,
		PresetName:       "Go у Львові",
	})
	if err != nil {
		t.Fatalf("Trigger() error: %v", err)
	}
	if len(presets.presets) != 1 {
		t.Fatalf("expected one preset, got %d", len(presets.presets))
	}
	if presets.presets[0].Name != "Go у Львові" || presets.presets[0].Keywords != "golang" {
		t.Fatalf("unexpected preset: %+v", presets.presets[0])
	}
}

func TestTriggerPresetFailureDoesNotFailExecution(t *testing.T) {
	user := &model.User{ID: uuid.New()}
	cfg := testConfig(user.ID)
	presets := &fakePresetStore{err: errors.New("presets table unavailable")}
	orchestrator := newTestOrchestrator(
		&fakeEngine{response: map[string]interface{}{"executionId": "exec-1"}},
		&fakeConfigStore{configs: map[uuid.UUID]*model.WorkflowConfig{cfg.ID: cfg}},
		newFakeExecutionStore(), presets, &fakeResultStore{})

	execution, err := orchestrator.Trigger(context.Background(), user, TriggerRequest{
		WorkflowConfigID: &cfg.ID,
		Keywords:         "golang",
		SaveAsPreset:     true,
		PresetName:       "broken",
	})
	if err != nil {
		t.Fatalf("expected trigger to succeed despite preset failure, got %v", err)
	}
	if execution.Status != model.ExecutionRunning {
		t.Fatalf("expected running status, got %q", execution.Status)
	}
}

func TestCancelStopsEngineExecution(t *testing.T) {
	user := &model.User{ID: uuid.New()}
	cfg := testConfig(user.ID)
	eng := &fakeEngine{cancelOK: true}
	executions := newFakeExecutionStore()
	executionID := uuid.New()
	executions.executions[executionID] = &model.WorkflowExecution{
		ID:                executionID,
		UserID:            user.ID,
		WorkflowConfigID:  cfg.ID,
		Status:            model.ExecutionRunning,
		EngineExecutionID: "exec-42",
	}
	orchestrator := newTestOrchestrator(eng,
		&fakeConfigStore{configs: map[uuid.UUID]*model.WorkflowConfig{cfg.ID: cfg}},
		executions, &fakePresetStore{}, &fakeResultStore{})

	cancelled, err := orchestrator.Cancel(context.Background(), executionID, user.ID)
	if err != nil {
		t.Fatalf("Cancel() error: %v", err)
	}
	if cancelled.Status != model.ExecutionError {
		t.Fatalf("expected error status, got %q", cancelled.Status)
	}
	if cancelled.Result["cancelled"] != true {
		t.Fatalf("expected cancellation marker, got %v", cancelled.Result)
	}
	if cancelled.CompletedAt == nil {
		t.Fatal("cancelled execution must carry a completion time")
	}
	if len(eng.cancelled) != 1 || eng.cancelled[0] != "exec-42" {
		t.Fatalf("expected engine-side cancel of exec-42, got %v", eng.cancelled)
	}

	// Second cancel is harmless.
	again, err := orchestrator.Cancel(context.Background(), executionID, user.ID)
	if err != nil {
		t.Fatalf("second Cancel() error: %v", err)
	}
	if again.Status != model.ExecutionError {
		t.Fatalf("expected error status after double cancel, got %q", again.Status)
	}
}

func TestCancelUnknownExecution(t *testing.T) {
	orchestrator := newTestOrchestrator(&fakeEngine{},
		&fakeConfigStore{configs: map[uuid.UUID]*model.WorkflowConfig{}},
		newFakeExecutionStore(), &fakePresetStore{}, &fakeResultStore{})

	_, err := orchestrator.Cancel(context.Background(), uuid.New(), uuid.New())
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUpdateStatusRejectsInvalidStatus(t *testing.T) {
	orchestrator := newTestOrchestrator(&fakeEngine{},
		&fakeConfigStore{configs: map[uuid.UUID]*model.WorkflowConfig{}},
		newFakeExecutionStore(), &fakePresetStore{}, &fakeResultStore{})

	_, err := orchestrator.UpdateStatus(context.Background(), uuid.New(), uuid.New(), model.ExecutionStatusUpdate{
		Status: "done",
	})
	if !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestUpdateStatusSuccessSavesResults(t *testing.T) {
	user := &model.User{ID: uuid.New()}
	executions := newFakeExecutionStore()
	executionID := uuid.New()
	executions.executions[executionID] = &model.WorkflowExecution{
		ID:     executionID,
		UserID: user.ID,
		Status: model.ExecutionRunning,
	}
	results := &fakeResultStore{}
	orchestrator := newTestOrchestrator(&fakeEngine{},
		&fakeConfigStore{configs: map[uuid.UUID]*model.WorkflowConfig{}},
		executions, &fakePresetStore{}, results)

	updated, err := orchestrator.UpdateStatus(context.Background(), executionID, user.ID, model.ExecutionStatusUpdate{
		Status: model.ExecutionSuccess,
		Result: model.JSONB{
			"items": []interface{}{
				map[string]interface{}{"title": "Go Developer", "link": "https://jobs.example/1"},
				map[string]interface{}{"title": "Backend Engineer", "vacancy_link": "https://jobs.example/2"},
				map[string]interface{}{"title": "No link"},
			},
		},
	})
	if err != nil {
		t.Fatalf("UpdateStatus() error: %v", err)
	}
	if updated.Status != model.ExecutionSuccess {
		t.Fatalf("expected success status, got %q", updated.Status)
	}
	if updated.CompletedAt == nil {
		t.Fatal("successful execution must carry a completion time")
	}

	saved := results.saved[executionID]
	if len(saved) != 2 {
		t.Fatalf("expected 2 job results, got %d", len(saved))
	}
	if saved[1].Link != "https://jobs.example/2" {
		t.Fatalf("expected vacancy_link fallback, got %q", saved[1].Link)
	}
}
