package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"morgus/internal/agent/ports"
	"morgus/internal/metrics"
	"morgus/internal/storage"
)

func newTestServer(t *testing.T) (*Server, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	srv := New(Config{Host: "127.0.0.1", Port: 0, DefaultModel: "gpt-4o"}, store, metrics.New())
	return srv, store
}

func doJSON(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestCreateTask(t *testing.T) {
	srv, store := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/tasks",
		`{"title":"Hello","description":"Build a hello world page"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var task ports.Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &task))
	assert.NotEmpty(t, task.ID)
	assert.Equal(t, ports.StatusPending, task.Status)
	assert.Equal(t, "gpt-4o", task.Model)

	stored, err := store.GetTask(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hello", stored.Title)
}

func TestCreateTaskValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/tasks", `{"title":"no description"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetTaskNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/tasks/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListSteps(t *testing.T) {
	srv, store := newTestServer(t)
	ctx := context.Background()

	task, err := store.CreateTask(ctx, "t", "d", "m")
	require.NoError(t, err)
	require.NoError(t, store.AppendStep(ctx, task.ID, "RESEARCH", ports.StepPhaseStart, "Starting RESEARCH phase", nil))
	require.NoError(t, store.AppendStep(ctx, task.ID, "RESEARCH", ports.StepLLMResponse, "Looking around.", nil))

	rec := doJSON(t, srv, http.MethodGet, "/tasks/"+task.ID+"/steps", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Steps []ports.TaskStep `json:"steps"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Len(t, payload.Steps, 2)
	assert.Equal(t, ports.StepPhaseStart, payload.Steps[0].Kind)
}

func TestAnswerRequeuesWaitingTask(t *testing.T) {
	srv, store := newTestServer(t)
	ctx := context.Background()

	task, err := store.CreateTask(ctx, "t", "d", "m")
	require.NoError(t, err)
	require.NoError(t, store.UpdateTask(ctx, task.ID, map[string]any{
		"status": ports.StatusWaitingForInput,
		"phase":  "BUILD",
	}))

	rec := doJSON(t, srv, http.MethodPost, "/tasks/"+task.ID+"/answer", `{"answer":"use React"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	got, err := store.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, ports.StatusPending, got.Status)

	steps, err := store.ListSteps(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, ports.StepUserNotification, steps[0].Kind)
	assert.Contains(t, steps[0].Content, "use React")
	assert.Equal(t, "BUILD", steps[0].Phase)
}

func TestAnswerRejectsNonWaitingTask(t *testing.T) {
	srv, store := newTestServer(t)
	ctx := context.Background()

	task, err := store.CreateTask(ctx, "t", "d", "m")
	require.NoError(t, err)

	rec := doJSON(t, srv, http.MethodPost, "/tasks/"+task.ID+"/answer", `{"answer":"x"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestListArtifacts(t *testing.T) {
	srv, store := newTestServer(t)
	ctx := context.Background()

	task, err := store.CreateTask(ctx, "t", "d", "m")
	require.NoError(t, err)
	require.NoError(t, store.AppendArtifact(ctx, &ports.Artifact{
		TaskID: task.ID,
		Type:   "deployment",
		Name:   "pages",
		URL:    "https://demo.pages.dev",
	}))

	rec := doJSON(t, srv, http.MethodGet, "/tasks/"+task.ID+"/artifacts", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Artifacts []ports.Artifact `json:"artifacts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Len(t, payload.Artifacts, 1)
	assert.Equal(t, "https://demo.pages.dev", payload.Artifacts[0].URL)
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStepStreamDeliversStepsInOrder(t *testing.T) {
	srv, store := newTestServer(t)
	ctx := context.Background()

	task, err := store.CreateTask(ctx, "t", "d", "m")
	require.NoError(t, err)
	require.NoError(t, store.AppendStep(ctx, task.ID, "RESEARCH", ports.StepPhaseStart, "Starting RESEARCH phase", nil))
	require.NoError(t, store.AppendStep(ctx, task.ID, "RESEARCH", ports.StepLLMResponse, "done", nil))

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/tasks/" + task.ID + "/steps/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var first, second ports.TaskStep
	require.NoError(t, conn.ReadJSON(&first))
	require.NoError(t, conn.ReadJSON(&second))
	assert.Equal(t, ports.StepPhaseStart, first.Kind)
	assert.Equal(t, ports.StepLLMResponse, second.Kind)
}
