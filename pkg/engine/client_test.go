package engine

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/jobpulse/jobpulse/pkg/config"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := NewClient(config.EngineConfig{
		APIURL:     srv.URL,
		WebhookURL: srv.URL + "/webhook",
		APIKey:     "test-key",
	}, zap.NewNop())
	return client, srv
}

func webhookDefinition(path string) map[string]interface{} {
	return map[string]interface{}{
		"name": "test workflow",
		"nodes": []interface{}{
			map[string]interface{}{
				"id":   "node-1",
				"type": "n8n-nodes-base.webhook",
				"parameters": map[string]interface{}{
					"path": path,
				},
			},
		},
	}
}

func TestTriggerWebhookPrimary(t *testing.T) {
	executeCalled := false
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/workflows/wf-1", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id": "wf-1"}`))
	})
	mux.HandleFunc("/webhook/search-jobs", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-N8N-API-KEY"); got != "test-key" {
			t.Errorf("expected api key header, got %q", got)
		}
		w.Write([]byte(`{"executionId": "exec-42"}`))
	})
	mux.HandleFunc("/api/v1/workflows/wf-1/execute", func(w http.ResponseWriter, r *http.Request) {
		executeCalled = true
		w.Write([]byte(`{}`))
	})

	client, _ := newTestClient(t, mux)
	response, err := client.Trigger(context.Background(), TriggerRequest{
		WorkflowID: "wf-1",
		Payload:    map[string]interface{}{"keywords": "golang"},
		Definition: webhookDefinition("search-jobs"),
	})
	if err != nil {
		t.Fatalf("Trigger() error: %v", err)
	}
	if response["executionId"] != "exec-42" {
		t.Fatalf("expected executionId exec-42, got %v", response["executionId"])
	}
	if executeCalled {
		t.Fatal("execute API must not be called when the webhook succeeds")
	}
}

func TestTriggerFallsBackToExecuteAPI(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/workflows/wf-1", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id": "wf-1"}`))
	})
	mux.HandleFunc("/webhook/search-jobs", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message": "webhook not registered"}`, http.StatusNotFound)
	})
	mux.HandleFunc("/api/v1/workflows/wf-1/execute", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"executionId": "exec-7"}`))
	})

	client, _ := newTestClient(t, mux)
	response, err := client.Trigger(context.Background(), TriggerRequest{
		WorkflowID:  "wf-1",
		WebhookPath: "search-jobs",
	})
	if err != nil {
		t.Fatalf("Trigger() error: %v", err)
	}
	if response["executionId"] != "exec-7" {
		t.Fatalf("expected executionId exec-7, got %v", response["executionId"])
	}
}

func TestTriggerUsesWorkflowIDWhenNoSuffix(t *testing.T) {
	webhookHits := []string{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/workflows/wf-1", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/api/v1/workflows/wf-1/execute", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/webhook/", func(w http.ResponseWriter, r *http.Request) {
		webhookHits = append(webhookHits, r.URL.Path)
		w.Write([]byte(`{"executionId": "exec-9"}`))
	})

	client, _ := newTestClient(t, mux)
	response, err := client.Trigger(context.Background(), TriggerRequest{WorkflowID: "wf-1"})
	if err != nil {
		t.Fatalf("Trigger() error: %v", err)
	}
	if response["executionId"] != "exec-9" {
		t.Fatalf("expected executionId exec-9, got %v", response["executionId"])
	}
	if len(webhookHits) != 1 || webhookHits[0] != "/webhook/wf-1" {
		t.Fatalf("expected one fallback webhook hit at /webhook/wf-1, got %v", webhookHits)
	}
}

func TestTriggerBothPathsReturn404(t *testing.T) {
	client, _ := newTestClient(t, http.NotFoundHandler())

	_, err := client.Trigger(context.Background(), TriggerRequest{
		WorkflowID:  "wf-1",
		WebhookPath: "search-jobs",
	})
	if err == nil {
		t.Fatal("expected trigger to fail")
	}

	var triggerErr *TriggerError
	if !errors.As(err, &triggerErr) {
		t.Fatalf("expected *TriggerError, got %T", err)
	}
	if triggerErr.WebhookStatus != http.StatusNotFound || triggerErr.ExecuteStatus != http.StatusNotFound {
		t.Fatalf("expected both statuses 404, got webhook=%d execute=%d",
			triggerErr.WebhookStatus, triggerErr.ExecuteStatus)
	}
	if !strings.Contains(err.Error(), "both API execute and webhook returned 404") {
		t.Fatalf("expected both-404 diagnostic, got %q", err.Error())
	}
}

func TestGetExecutionStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/executions/exec-1", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": "success", "finished": true}`))
	})

	client, _ := newTestClient(t, mux)

	status := client.GetExecutionStatus(context.Background(), "exec-1")
	if status == nil {
		t.Fatal("expected status document")
	}
	if status["status"] != "success" {
		t.Fatalf("expected status success, got %v", status["status"])
	}

	if missing := client.GetExecutionStatus(context.Background(), "exec-unknown"); missing != nil {
		t.Fatalf("expected nil for unknown execution, got %v", missing)
	}
}

func TestCancelExecution(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/executions/exec-1/stop", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})
	mux.HandleFunc("/api/v1/executions/exec-2/stop", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message": "already finished"}`, http.StatusConflict)
	})

	client, _ := newTestClient(t, mux)

	if !client.CancelExecution(context.Background(), "exec-1") {
		t.Fatal("expected cancel to succeed")
	}
	if client.CancelExecution(context.Background(), "exec-2") {
		t.Fatal("expected cancel to fail")
	}
}

func TestGetWorkflowNotFound(t *testing.T) {
	client, _ := newTestClient(t, http.NotFoundHandler())

	workflow, err := client.GetWorkflow(context.Background(), "wf-missing")
	if err != nil {
		t.Fatalf("GetWorkflow() error: %v", err)
	}
	if workflow != nil {
		t.Fatalf("expected nil workflow for 404, got %v", workflow)
	}
}

func TestExtractWebhookPath(t *testing.T) {
	if path := ExtractWebhookPath(webhookDefinition("search-jobs")); path != "search-jobs" {
		t.Fatalf("expected path search-jobs, got %q", path)
	}

	byWebhookID := map[string]interface{}{
		"nodes": []interface{}{
			map[string]interface{}{
				"id":   "node-1",
				"type": "n8n-nodes-base.webhook",
				"parameters": map[string]interface{}{
					"webhookId": "hook-abc",
				},
			},
		},
	}
	if path := ExtractWebhookPath(byWebhookID); path != "hook-abc" {
		t.Fatalf("expected path hook-abc, got %q", path)
	}

	noWebhook := map[string]interface{}{
		"nodes": []interface{}{
			map[string]interface{}{"id": "node-1", "type": "n8n-nodes-base.httpRequest"},
		},
	}
	if path := ExtractWebhookPath(noWebhook); path != "" {
		t.Fatalf("expected empty path, got %q", path)
	}

	if path := ExtractWebhookPath(nil); path != "" {
		t.Fatalf("expected empty path for nil definition, got %q", path)
	}
}
