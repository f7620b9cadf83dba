package statuspoller

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jobpulse/jobpulse/pkg/model"
	"github.com/jobpulse/jobpulse/pkg/store"
)

type fakeEngine struct {
	statuses map[string]map[string]interface{}
	calls    int
}

func (f *fakeEngine) GetExecutionStatus(ctx context.Context, executionID string) map[string]interface{} {
	f.calls++
	return f.statuses[executionID]
}

type fakeExecutionStore struct {
	running []model.WorkflowExecution
	updates map[uuid.UUID]model.ExecutionStatusUpdate
}

func (f *fakeExecutionStore) ListRunning(ctx context.Context) ([]model.WorkflowExecution, error) {
	return f.running, nil
}

func (f *fakeExecutionStore) UpdateStatus(ctx context.Context, id, userID uuid.UUID, update model.ExecutionStatusUpdate) (*model.WorkflowExecution, error) {
	if f.updates == nil {
		f.updates = map[uuid.UUID]model.ExecutionStatusUpdate{}
	}
	for i := range f.running {
		if f.running[i].ID == id && f.running[i].UserID == userID {
			f.updates[id] = update
			updated := f.running[i]
			updated.Status = update.Status
			return &updated, nil
		}
	}
	return nil, store.ErrNotFound
}

func runningExecution(engineID string) model.WorkflowExecution {
	return model.WorkflowExecution{
		ID:                uuid.New(),
		UserID:            uuid.New(),
		WorkflowConfigID:  uuid.New(),
		Status:            model.ExecutionRunning,
		EngineExecutionID: engineID,
	}
}

func TestPollOnceClosesFinishedExecutions(t *testing.T) {
	done := runningExecution("exec-done")
	failed := runningExecution("exec-failed")
	still := runningExecution("exec-running")

	engine := &fakeEngine{statuses: map[string]map[string]interface{}{
		"exec-done":    {"status": "success", "data": "payload"},
		"exec-failed":  {"status": "crashed"},
		"exec-running": {"status": "running"},
	}}
	executions := &fakeExecutionStore{running: []model.WorkflowExecution{done, failed, still}}

	poller := NewPoller(engine, executions, nil, zap.NewNop(), time.Second)
	poller.pollOnce(context.Background())

	if update, ok := executions.updates[done.ID]; !ok || update.Status != model.ExecutionSuccess {
		t.Fatalf("expected success update for finished execution, got %+v", update)
	}
	if update, ok := executions.updates[failed.ID]; !ok || update.Status != model.ExecutionError {
		t.Fatalf("expected error update for crashed execution, got %+v", update)
	}
	if _, ok := executions.updates[still.ID]; ok {
		t.Fatal("running execution must not be updated")
	}

	// The full engine response is persisted as the execution result.
	if executions.updates[done.ID].Result["data"] != "payload" {
		t.Fatalf("expected engine response persisted, got %v", executions.updates[done.ID].Result)
	}
}

func TestPollOnceBreakerOpensOnRepeatedFailures(t *testing.T) {
	running := make([]model.WorkflowExecution, 0, 6)
	for i := 0; i < 6; i++ {
		running = append(running, runningExecution("exec-gone"))
	}

	engine := &fakeEngine{statuses: map[string]map[string]interface{}{}}
	executions := &fakeExecutionStore{running: running}

	poller := NewPoller(engine, executions, nil, zap.NewNop(), time.Second)
	poller.pollOnce(context.Background())

	// Five consecutive nil responses trip the breaker; the sixth execution is
	// not polled at all.
	if engine.calls != 5 {
		t.Fatalf("expected 5 engine calls before breaker opened, got %d", engine.calls)
	}
	if len(executions.updates) != 0 {
		t.Fatalf("expected no updates, got %d", len(executions.updates))
	}
}

func TestDeriveStatus(t *testing.T) {
	cases := []struct {
		name     string
		response map[string]interface{}
		want     model.ExecutionStatus
		terminal bool
	}{
		{"success", map[string]interface{}{"status": "success"}, model.ExecutionSuccess, true},
		{"error", map[string]interface{}{"status": "error"}, model.ExecutionError, true},
		{"failed", map[string]interface{}{"status": "failed"}, model.ExecutionError, true},
		{"canceled", map[string]interface{}{"status": "canceled"}, model.ExecutionError, true},
		{"running", map[string]interface{}{"status": "running"}, "", false},
		{"waiting", map[string]interface{}{"status": "waiting"}, "", false},
		{"finished flag", map[string]interface{}{"finished": true}, model.ExecutionSuccess, true},
		{"unfinished flag", map[string]interface{}{"finished": false}, "", false},
		{"empty document", map[string]interface{}{}, "", false},
	}

	for _, tc := range cases {
		got, ok := deriveStatus(tc.response)
		if ok != tc.terminal || got != tc.want {
			t.Fatalf("%s: deriveStatus = (%q, %v), want (%q, %v)", tc.name, got, ok, tc.want, tc.terminal)
		}
	}
}
