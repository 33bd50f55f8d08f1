package storage

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"morgus/internal/agent/ports"
)

func newTestStore(t *testing.T, handler http.HandlerFunc) *PostgRESTStore {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	store, err := NewPostgRESTStore(PostgRESTConfig{BaseURL: server.URL, APIKey: "secret"})
	require.NoError(t, err)
	return store
}

func TestPostgRESTCreateTask(t *testing.T) {
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/tasks", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "return=representation", r.Header.Get("Prefer"))

		body, _ := io.ReadAll(r.Body)
		var row map[string]any
		require.NoError(t, json.Unmarshal(body, &row))
		assert.Equal(t, "Build site", row["title"])
		assert.Equal(t, ports.StatusPending, row["status"])

		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `[{"id":"t-1","title":"Build site","status":"pending"}]`)
	})

	task, err := store.CreateTask(context.Background(), "Build site", "desc", "gpt-4o")
	require.NoError(t, err)
	assert.Equal(t, "t-1", task.ID)
}

func TestPostgRESTListPendingFiltersByStatus(t *testing.T) {
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "eq.pending", r.URL.Query().Get("status"))
		assert.Equal(t, "created_at.asc", r.URL.Query().Get("order"))
		io.WriteString(w, `[{"id":"t-1","status":"pending"},{"id":"t-2","status":"pending"}]`)
	})

	tasks, err := store.ListPending(context.Background())
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "t-1", tasks[0].ID)
}

func TestPostgRESTUpdateTaskPatchesRow(t *testing.T) {
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "eq.t-1", r.URL.Query().Get("id"))

		body, _ := io.ReadAll(r.Body)
		var patch map[string]any
		require.NoError(t, json.Unmarshal(body, &patch))
		assert.Equal(t, "running", patch["status"])
		assert.NotEmpty(t, patch["updated_at"])
		w.WriteHeader(http.StatusNoContent)
	})

	err := store.UpdateTask(context.Background(), "t-1", map[string]any{"status": "running"})
	require.NoError(t, err)
}

func TestPostgRESTAppendStepUsesTypeColumn(t *testing.T) {
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/task_steps", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		var row map[string]any
		require.NoError(t, json.Unmarshal(body, &row))
		assert.Equal(t, ports.StepToolCall, row["type"])
		assert.Equal(t, "RESEARCH", row["phase"])
		w.WriteHeader(http.StatusCreated)
	})

	err := store.AppendStep(context.Background(), "t-1", "RESEARCH", ports.StepToolCall, "calling search_web", nil)
	require.NoError(t, err)
}

func TestPostgRESTErrorIncludesBody(t *testing.T) {
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		io.WriteString(w, `{"message":"duplicate key"}`)
	})

	_, err := store.GetTask(context.Background(), "t-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "409")
	assert.Contains(t, err.Error(), "duplicate key")
}

func TestPostgRESTGetTaskNotFound(t *testing.T) {
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[]`)
	})

	_, err := store.GetTask(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}
