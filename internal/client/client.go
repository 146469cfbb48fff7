// Package client talks to the remote job endpoints of the content service:
// one launch path per task type and a single status path keyed by task id.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/avelines/taskwatch/internal/task"
)

// Config holds the remote service settings.
type Config struct {
	// BaseURL is the root of the content service, without trailing slash.
	BaseURL string

	// Timeout bounds each individual request.
	Timeout time.Duration

	// LaunchPaths maps a task type to its launch endpoint. Types missing
	// from the map fall back to DefaultLaunchPaths.
	LaunchPaths map[task.Type]string

	// StatusPath is the job-status endpoint, queried with ?task_id=<id>.
	StatusPath string
}

// DefaultLaunchPaths mirrors the content service's routing.
var DefaultLaunchPaths = map[task.Type]string{
	task.TypeIndexing:        "/api/etl/",
	task.TypeQualityAnalysis: "/api/qa/",
	task.TypeInitialization:  "/api/collections/init/",
}

// DefaultStatusPath is where the service reports job status.
const DefaultStatusPath = "/api/task-status/"

// Client implements task.LaunchSource and task.StatusSource over HTTP.
type Client struct {
	httpClient *http.Client
	baseURL    string
	paths      map[task.Type]string
	statusPath string
	logger     *slog.Logger
}

// New creates a Client from config.
func New(cfg Config, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	paths := make(map[task.Type]string, len(DefaultLaunchPaths)+len(cfg.LaunchPaths))
	for t, p := range DefaultLaunchPaths {
		paths[t] = p
	}
	for t, p := range cfg.LaunchPaths {
		paths[t] = p
	}
	statusPath := cfg.StatusPath
	if statusPath == "" {
		statusPath = DefaultStatusPath
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
		paths:      paths,
		statusPath: statusPath,
		logger:     logger.With("component", "job_client"),
	}
}

// LaunchTask submits a new job for the entity. The request body is
// {"entity_id": ...} plus any payload fields.
func (c *Client) LaunchTask(ctx context.Context, t task.Type, entityID string, payload map[string]any) (task.LaunchResult, error) {
	path, ok := c.paths[t]
	if !ok {
		return task.LaunchResult{}, fmt.Errorf("no launch endpoint configured for task type %q", t)
	}

	body := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		body[k] = v
	}
	body["entity_id"] = entityID

	encoded, err := json.Marshal(body)
	if err != nil {
		return task.LaunchResult{}, fmt.Errorf("encoding launch request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return task.LaunchResult{}, fmt.Errorf("building launch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var result task.LaunchResult
	if err := c.do(req, &result); err != nil {
		return task.LaunchResult{}, fmt.Errorf("launch request for %s: %w", t, err)
	}
	return result, nil
}

// TaskStatus queries the status endpoint for a previously launched job.
func (c *Client) TaskStatus(ctx context.Context, taskID string) (task.RemoteStatus, error) {
	endpoint := c.baseURL + c.statusPath + "?" + url.Values{"task_id": {taskID}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return task.RemoteStatus{}, fmt.Errorf("building status request: %w", err)
	}

	var result task.RemoteStatus
	if err := c.do(req, &result); err != nil {
		return task.RemoteStatus{}, fmt.Errorf("status request for task %s: %w", taskID, err)
	}
	return result, nil
}

// do executes a request and decodes the JSON body into out. The service
// reports task failures inside a well-formed body with a 5xx status, so any
// response that decodes is passed through; only transport errors and
// undecodable bodies are errors here.
func (c *Client) do(req *http.Request, out any) error {
	res, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := res.Body.Close(); closeErr != nil {
			c.logger.Debug("failed to close response body", "error", closeErr)
		}
	}()

	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding response (http %d): %w", res.StatusCode, err)
	}
	return nil
}
