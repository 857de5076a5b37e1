package bootstrap

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/landingbeacon/landingbeacon-go/internal/platform/errors"
	lbtesting "github.com/landingbeacon/landingbeacon-go/internal/platform/testing"
	"github.com/landingbeacon/landingbeacon-go/pkg/tracker"
)

func noEnv(string) (string, bool) { return "", false }

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "landingbeacon.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestInitGraphOrder(t *testing.T) {
	want := []string{
		"config:load",
		"logging:init-provider",
		"observability:setup-hooks",
		"storage:open",
	}
	steps := InitGraph()
	require.Len(t, steps, len(want))
	for i, step := range steps {
		assert.Equal(t, want[i], step.ID)
	}
}

func TestExecuteInitStepsChecksDependencies(t *testing.T) {
	steps := []initStep{{
		ID:        "storage:open",
		DependsOn: []string{"config:load"},
		Execute:   func(context.Context, *App) error { return nil },
	}}
	err := executeInitSteps(context.Background(), steps, &App{})
	assert.True(t, errors.IsKind(err, errors.KindBootstrap))
	assert.Contains(t, err.Error(), "dependency config:load not satisfied")
}

func TestInitAndTrack(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	col := lbtesting.NewCollector(t, map[string]string{"proj_1": "pk_test"})

	path := writeConfig(t, `
project:
  id: proj_1
  api_key: pk_test
  api_url: `+col.URL+`
storage:
  driver: file
  file:
    path: `+filepath.Join(dir, "state", "lb.json")+`
tracking:
  referrer: https://ads.example/
  user_agent: "Mozilla/5.0 (iPad)"
log:
  log_level: debug
`)

	var console bytes.Buffer
	app, err := Init(ctx, Options{ConfigPath: path, Env: noEnv, Console: &console})
	require.NoError(t, err)
	defer func() { assert.NoError(t, app.Close(ctx)) }()

	assert.Equal(t, path, app.ConfigPath)
	require.NotNil(t, app.Storage)
	assert.Contains(t, console.String(), "[cli]")

	client, err := app.NewTracker()
	require.NoError(t, err)

	res := client.TrackPageView(ctx, "hero-a")
	require.True(t, res.Success, res.Error)
	require.NotNil(t, res.Data)
	assert.Equal(t, tracker.EventView, res.Data.Type)

	req := col.LastRequest(t)
	assert.Contains(t, string(req.Body), `"deviceType":"tablet"`)
	assert.Contains(t, string(req.Body), `"referrer":"https://ads.example/"`)

	_, err = os.Stat(filepath.Join(dir, "state", "lb.json"))
	assert.NoError(t, err, "device id is persisted through the file driver")
}

func TestInitRejectsInvalidConfig(t *testing.T) {
	path := writeConfig(t, "storage:\n  driver: cookies\n")
	_, err := Init(context.Background(), Options{ConfigPath: path, Env: noEnv, Console: &bytes.Buffer{}})
	assert.True(t, errors.IsKind(err, errors.KindConfig))
}

func TestNewTrackerRequiresProject(t *testing.T) {
	path := writeConfig(t, "storage:\n  driver: memory\n")
	app, err := Init(context.Background(), Options{ConfigPath: path, Env: noEnv, Console: &bytes.Buffer{}})
	require.NoError(t, err)
	defer app.Close(context.Background())

	_, err = app.NewTracker()
	assert.True(t, errors.IsKind(err, errors.KindConfig))
}

func TestRequireProjectFailsBeforeStorageOpens(t *testing.T) {
	dir := t.TempDir()
	statePath := filepath.Join(dir, "state", "lb.json")
	path := writeConfig(t, "storage:\n  driver: file\n  file:\n    path: "+statePath+"\n")

	_, err := Init(context.Background(), Options{ConfigPath: path, Env: noEnv, Console: &bytes.Buffer{}, RequireProject: true})
	assert.True(t, errors.IsKind(err, errors.KindConfig))
	assert.ErrorContains(t, err, "projectId is required")

	_, statErr := os.Stat(filepath.Dir(statePath))
	assert.True(t, os.IsNotExist(statErr), "storage directory must not be created")
}

func TestMockHandlerWithSQLite(t *testing.T) {
	path := writeConfig(t, `
storage:
  driver: none
mock_server:
  database: "file:bootstrap_mock?mode=memory&cache=shared"
  api_keys:
    proj_1: pk_test
`)
	app, err := Init(context.Background(), Options{ConfigPath: path, Env: noEnv, Console: &bytes.Buffer{}, SkipStorage: true})
	require.NoError(t, err)
	defer app.Close(context.Background())

	handler, svc, err := app.NewMockHandler()
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/projects/proj_1/emails", strings.NewReader(`{"email":"a@x.io","deviceId":null}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer pk_test")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	events, err := svc.Repository().ListEvents(context.Background(), "proj_1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "CONVERSION", events[0].Type)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/unknown", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"not found"}`, w.Body.String())
}
