package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"morgus/internal/agent/ports"
	"morgus/internal/logging"
)

// PostgRESTStore talks to a PostgREST endpoint (Supabase-compatible) over
// three tables: tasks, task_steps, artifacts.
type PostgRESTStore struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     logging.Logger
}

// PostgRESTConfig configures the remote store connection.
type PostgRESTConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

func NewPostgRESTStore(cfg PostgRESTConfig) (*PostgRESTStore, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("store base URL is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &PostgRESTStore{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logging.NewComponentLogger("storage"),
	}, nil
}

func (s *PostgRESTStore) CreateTask(ctx context.Context, title, description, model string) (*ports.Task, error) {
	row := map[string]any{
		"title":       title,
		"description": description,
		"status":      ports.StatusPending,
		"model":       model,
	}
	var created []ports.Task
	if err := s.do(ctx, http.MethodPost, "/tasks", nil, row, &created); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	if len(created) == 0 {
		return nil, fmt.Errorf("create task: empty response")
	}
	return &created[0], nil
}

func (s *PostgRESTStore) GetTask(ctx context.Context, taskID string) (*ports.Task, error) {
	query := url.Values{"id": {"eq." + taskID}}
	var tasks []ports.Task
	if err := s.do(ctx, http.MethodGet, "/tasks", query, nil, &tasks); err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	if len(tasks) == 0 {
		return nil, fmt.Errorf("task %s not found", taskID)
	}
	return &tasks[0], nil
}

func (s *PostgRESTStore) UpdateTask(ctx context.Context, taskID string, fields map[string]any) error {
	query := url.Values{"id": {"eq." + taskID}}
	patch := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		patch[k] = v
	}
	patch["updated_at"] = time.Now().UTC().Format(time.RFC3339Nano)
	if err := s.do(ctx, http.MethodPatch, "/tasks", query, patch, nil); err != nil {
		return fmt.Errorf("update task %s: %w", taskID, err)
	}
	return nil
}

func (s *PostgRESTStore) ListPending(ctx context.Context) ([]*ports.Task, error) {
	query := url.Values{
		"status": {"eq." + ports.StatusPending},
		"order":  {"created_at.asc"},
	}
	var tasks []ports.Task
	if err := s.do(ctx, http.MethodGet, "/tasks", query, nil, &tasks); err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	out := make([]*ports.Task, len(tasks))
	for i := range tasks {
		out[i] = &tasks[i]
	}
	return out, nil
}

func (s *PostgRESTStore) AppendStep(ctx context.Context, taskID, phase, kind, content string, metadata map[string]any) error {
	row := map[string]any{
		"task_id": taskID,
		"phase":   phase,
		"type":    kind,
		"content": content,
	}
	if metadata != nil {
		row["metadata"] = metadata
	}
	if err := s.do(ctx, http.MethodPost, "/task_steps", nil, row, nil); err != nil {
		return fmt.Errorf("append step: %w", err)
	}
	return nil
}

func (s *PostgRESTStore) ListSteps(ctx context.Context, taskID string) ([]*ports.TaskStep, error) {
	query := url.Values{
		"task_id": {"eq." + taskID},
		"order":   {"created_at.asc"},
	}
	var steps []ports.TaskStep
	if err := s.do(ctx, http.MethodGet, "/task_steps", query, nil, &steps); err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	out := make([]*ports.TaskStep, len(steps))
	for i := range steps {
		out[i] = &steps[i]
	}
	return out, nil
}

func (s *PostgRESTStore) AppendArtifact(ctx context.Context, artifact *ports.Artifact) error {
	row := map[string]any{
		"task_id": artifact.TaskID,
		"type":    artifact.Type,
		"name":    artifact.Name,
	}
	if artifact.URL != "" {
		row["url"] = artifact.URL
	}
	if artifact.Path != "" {
		row["path"] = artifact.Path
	}
	if artifact.Metadata != nil {
		row["metadata"] = artifact.Metadata
	}
	if err := s.do(ctx, http.MethodPost, "/artifacts", nil, row, nil); err != nil {
		return fmt.Errorf("append artifact: %w", err)
	}
	return nil
}

func (s *PostgRESTStore) ListArtifacts(ctx context.Context, taskID string) ([]*ports.Artifact, error) {
	query := url.Values{
		"task_id": {"eq." + taskID},
		"order":   {"created_at.asc"},
	}
	var artifacts []ports.Artifact
	if err := s.do(ctx, http.MethodGet, "/artifacts", query, nil, &artifacts); err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	out := make([]*ports.Artifact, len(artifacts))
	for i := range artifacts {
		out[i] = &artifacts[i]
	}
	return out, nil
}

func (s *PostgRESTStore) do(ctx context.Context, method, table string, query url.Values, body any, out any) error {
	endpoint := s.baseURL + table
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("apikey", s.apiKey)
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}
	if out != nil && method != http.MethodGet {
		req.Header.Set("Prefer", "return=representation")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		s.logger.Warn("%s %s returned %d", method, table, resp.StatusCode)
		return fmt.Errorf("%s %s: status %d: %s", method, table, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
