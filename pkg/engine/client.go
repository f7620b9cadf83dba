package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jobpulse/jobpulse/pkg/config"
)

const (
	apiKeyHeader    = "X-N8N-API-KEY"
	webhookNodeType = "n8n-nodes-base.webhook"
)

// TriggerRequest describes one attempt to start a workflow in the engine.
// WebhookPath and Definition are optional hints for resolving the webhook
// suffix; when neither yields a path, the workflow id itself is used.
type TriggerRequest struct {
	WorkflowID  string
	Payload     map[string]interface{}
	WebhookPath string
	Definition  map[string]interface{}
}

// TriggerError is returned only after every trigger path has been exhausted.
// Status codes are 0 when an attempt failed before receiving a response.
type TriggerError struct {
	WorkflowID    string
	WebhookSuffix string
	WebhookStatus int
	ExecuteStatus int
	Cause         error
}

func (e *TriggerError) Error() string {
	if e.WebhookStatus == http.StatusNotFound && e.ExecuteStatus == http.StatusNotFound {
		return fmt.Sprintf(
			"failed to trigger workflow %s: both API execute and webhook returned 404. "+
				"This usually means: 1) the workflow has no webhook node, "+
				"2) webhook path %q is incorrect, or 3) the public API is disabled. "+
				"Add a webhook node with the correct path or enable the public API.",
			e.WorkflowID, e.WebhookSuffix,
		)
	}
	return fmt.Sprintf(
		"failed to trigger workflow %s: execute API failed with status %d, webhook failed with status %d: %v",
		e.WorkflowID, e.ExecuteStatus, e.WebhookStatus, e.Cause,
	)
}

func (e *TriggerError) Unwrap() error { return e.Cause }

// Client wraps the automation engine's webhook and REST API surface.
type Client struct {
	apiURL         string
	webhookURL     string
	apiKey         string
	triggerTimeout time.Duration
	requestTimeout time.Duration
	httpClient     *http.Client
	logger         *zap.Logger
}

func NewClient(cfg config.EngineConfig, logger *zap.Logger) *Client {
	triggerTimeout := cfg.TriggerTimeout
	if triggerTimeout == 0 {
		triggerTimeout = 30 * time.Second
	}
	requestTimeout := cfg.RequestTimeout
	if requestTimeout == 0 {
		requestTimeout = 10 * time.Second
	}
	return &Client{
		apiURL:         strings.TrimSuffix(cfg.APIURL, "/"),
		webhookURL:     strings.TrimSuffix(cfg.WebhookURL, "/"),
		apiKey:         cfg.APIKey,
		triggerTimeout: triggerTimeout,
		requestTimeout: requestTimeout,
		httpClient:     &http.Client{},
		logger:         logger,
	}
}

// ExtractWebhookPath scans a workflow definition's node list for a webhook
// node and returns its configured path, or "" when none is present.
func ExtractWebhookPath(definition map[string]interface{}) string {
	nodes, ok := definition["nodes"].([]interface{})
	if !ok {
		return ""
	}
	for _, raw := range nodes {
		node, ok := raw.(map[string]interface{})
		if !ok || node["type"] != webhookNodeType {
			continue
		}
		params, ok := node["parameters"].(map[string]interface{})
		if !ok {
			continue
		}
		if path, ok := params["path"].(string); ok && path != "" {
			return path
		}
		if path, ok := params["webhookId"].(string); ok && path != "" {
			return path
		}
	}
	return ""
}

// Trigger starts a workflow, trying the webhook first when a suffix is known,
// then the execute API, then the webhook again with the workflow id as a last
// resort. The first 2xx response with a parseable JSON body wins.
func (c *Client) Trigger(ctx context.Context, req TriggerRequest) (map[string]interface{}, error) {
	suffix := req.WebhookPath
	if suffix == "" && req.Definition != nil {
		suffix = ExtractWebhookPath(req.Definition)
	}

	c.logger.Info("engine trigger start",
		zap.String("workflow_id", req.WorkflowID),
		zap.String("webhook_suffix", suffix),
		zap.Int("api_key_len", len(c.apiKey)),
	)

	// Best-effort existence check. The public API may be disabled even though
	// the webhook path is reachable, so a failure here never aborts.
	if workflow, err := c.GetWorkflow(ctx, req.WorkflowID); err != nil || workflow == nil {
		c.logger.Warn("workflow not found via API check, continuing with trigger",
			zap.String("workflow_id", req.WorkflowID), zap.Error(err))
	}

	var webhookStatus, executeStatus int

	if suffix != "" {
		status, body, err := c.doJSON(ctx, http.MethodPost, c.webhookURL+"/"+suffix, req.Payload, c.triggerTimeout)
		webhookStatus = status
		if err == nil {
			c.logger.Info("engine webhook trigger succeeded",
				zap.String("workflow_id", req.WorkflowID), zap.Int("status", status))
			return body, nil
		}
		c.logger.Warn("engine webhook trigger failed, falling back to execute API",
			zap.String("workflow_id", req.WorkflowID), zap.Int("status", status), zap.Error(err))
	}

	executeURL := fmt.Sprintf("%s/api/v1/workflows/%s/execute", c.apiURL, req.WorkflowID)
	status, body, executeErr := c.doJSON(ctx, http.MethodPost, executeURL, req.Payload, c.triggerTimeout)
	executeStatus = status
	if executeErr == nil {
		c.logger.Info("engine execute API trigger succeeded",
			zap.String("workflow_id", req.WorkflowID), zap.Int("status", status))
		return body, nil
	}
	c.logger.Warn("engine execute API trigger failed, falling back to webhook",
		zap.String("workflow_id", req.WorkflowID), zap.Int("status", status), zap.Error(executeErr))

	finalSuffix := suffix
	if finalSuffix == "" {
		finalSuffix = req.WorkflowID
	}
	status, body, err := c.doJSON(ctx, http.MethodPost, c.webhookURL+"/"+finalSuffix, req.Payload, c.triggerTimeout)
	webhookStatus = status
	if err == nil {
		c.logger.Info("engine webhook fallback trigger succeeded",
			zap.String("workflow_id", req.WorkflowID), zap.Int("status", status))
		return body, nil
	}

	triggerErr := &TriggerError{
		WorkflowID:    req.WorkflowID,
		WebhookSuffix: finalSuffix,
		WebhookStatus: webhookStatus,
		ExecuteStatus: executeStatus,
		Cause:         executeErr,
	}
	c.logger.Error("engine trigger exhausted all paths",
		zap.String("workflow_id", req.WorkflowID),
		zap.Int("webhook_status", webhookStatus),
		zap.Int("execute_status", executeStatus),
	)
	return nil, triggerErr
}

// GetExecutionStatus polls the engine for an execution. Status polling is
// best-effort: any failure yields nil, never an error.
func (c *Client) GetExecutionStatus(ctx context.Context, executionID string) map[string]interface{} {
	url := fmt.Sprintf("%s/api/v1/executions/%s", c.apiURL, executionID)
	_, body, err := c.doJSON(ctx, http.MethodGet, url, nil, c.requestTimeout)
	if err != nil {
		return nil
	}
	return body
}

// CancelExecution asks the engine to stop an execution. Returns true only on
// HTTP success; never returns an error.
func (c *Client) CancelExecution(ctx context.Context, executionID string) bool {
	url := fmt.Sprintf("%s/api/v1/executions/%s/stop", c.apiURL, executionID)
	_, _, err := c.doJSON(ctx, http.MethodPost, url, nil, c.requestTimeout)
	return err == nil
}

func (c *Client) CreateWorkflow(ctx context.Context, definition map[string]interface{}) (map[string]interface{}, error) {
	url := c.apiURL + "/api/v1/workflows"
	_, body, err := c.doJSON(ctx, http.MethodPost, url, definition, c.triggerTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to create workflow in engine: %w", err)
	}
	return body, nil
}

func (c *Client) UpdateWorkflow(ctx context.Context, workflowID string, definition map[string]interface{}) (map[string]interface{}, error) {
	url := fmt.Sprintf("%s/api/v1/workflows/%s", c.apiURL, workflowID)
	status, body, err := c.doJSON(ctx, http.MethodPut, url, definition, c.triggerTimeout)
	if err != nil {
		if status == http.StatusNotFound {
			return nil, fmt.Errorf("workflow %s not found in engine", workflowID)
		}
		return nil, fmt.Errorf("failed to update workflow in engine: %w", err)
	}
	return body, nil
}

// GetWorkflow returns the workflow definition, or nil without an error when
// the engine reports 404.
func (c *Client) GetWorkflow(ctx context.Context, workflowID string) (map[string]interface{}, error) {
	url := fmt.Sprintf("%s/api/v1/workflows/%s", c.apiURL, workflowID)
	status, body, err := c.doJSON(ctx, http.MethodGet, url, nil, c.requestTimeout)
	if err != nil {
		if status == http.StatusNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get workflow from engine: %w", err)
	}
	return body, nil
}

func (c *Client) DeleteWorkflow(ctx context.Context, workflowID string) error {
	url := fmt.Sprintf("%s/api/v1/workflows/%s", c.apiURL, workflowID)
	if _, _, err := c.doJSON(ctx, http.MethodDelete, url, nil, c.requestTimeout); err != nil {
		return fmt.Errorf("failed to delete workflow from engine: %w", err)
	}
	return nil
}

func (c *Client) ActivateWorkflow(ctx context.Context, workflowID string, active bool) error {
	url := fmt.Sprintf("%s/api/v1/workflows/%s/activate", c.apiURL, workflowID)
	payload := map[string]interface{}{"active": active}
	if _, _, err := c.doJSON(ctx, http.MethodPost, url, payload, c.requestTimeout); err != nil {
		return fmt.Errorf("failed to activate workflow in engine: %w", err)
	}
	return nil
}

// doJSON issues one request with its own timeout and decodes a 2xx JSON body.
// The returned status is 0 when no response was received.
func (c *Client) doJSON(ctx context.Context, method, url string, payload interface{}, timeout time.Duration) (int, map[string]interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reqBody *bytes.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		reqBody = bytes.NewReader(data)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var engineErr struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&engineErr)
		if engineErr.Message != "" {
			return resp.StatusCode, nil, fmt.Errorf("engine returned status %d: %s", resp.StatusCode, engineErr.Message)
		}
		return resp.StatusCode, nil, fmt.Errorf("engine returned status %d", resp.StatusCode)
	}

	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to decode engine response: %w", err)
	}
	return resp.StatusCode, body, nil
}
