package http_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	internal_http "github.com/eenlars/evoflow/internal/http"
	"github.com/eenlars/evoflow/pkg/models"
	"github.com/eenlars/evoflow/pkg/observer"
	"github.com/eenlars/evoflow/pkg/storage"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store    storage.Store
	registry *observer.ObserverRegistry
	server   *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := storage.NewMockStore()
	registry := observer.NewObserverRegistry(128)
	srv := internal_http.NewServer(store, registry)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &fixture{store: store, registry: registry, server: ts}
}

func (f *fixture) get(t *testing.T, path string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(f.server.URL + path)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	return resp, body
}

func saveRun(t *testing.T, store storage.Store, status models.RunStatus, startedAgo time.Duration) models.Run {
	t.Helper()
	run := models.Run{
		ID:         uuid.NewString(),
		WorkflowID: uuid.NewString(),
		Goal:       "answer trivia",
		Status:     status,
		StartTime:  time.Now().Add(-startedAgo),
	}
	require.NoError(t, store.SaveRun(run))
	return run
}

type runView struct {
	models.Run
	EffectiveStatus models.RunStatus `json:"effective_status"`
}

func TestServer_Health(t *testing.T) {
	f := newFixture(t)
	resp, body := f.get(t, "/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "ok")
}

func TestServer_Runs(t *testing.T) {
	t.Run("lists runs with effective status", func(t *testing.T) {
		f := newFixture(t)
		fresh := saveRun(t, f.store, models.RunStatusRunning, time.Minute)
		abandoned := saveRun(t, f.store, models.RunStatusRunning, 6*time.Hour)
		done := saveRun(t, f.store, models.RunStatusCompleted, 8*time.Hour)

		resp, body := f.get(t, "/runs")
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var views []runView
		require.NoError(t, json.Unmarshal(body, &views))
		require.Len(t, views, 3)

		byID := map[string]runView{}
		for _, v := range views {
			byID[v.ID] = v
		}
		assert.Equal(t, models.RunStatusRunning, byID[fresh.ID].EffectiveStatus)
		// Still "running" in storage, classified stale on the way out.
		assert.Equal(t, models.RunStatusStale, byID[abandoned.ID].EffectiveStatus)
		assert.Equal(t, models.RunStatusRunning, byID[abandoned.ID].Status)
		assert.Equal(t, models.RunStatusCompleted, byID[done.ID].EffectiveStatus)
	})

	t.Run("fetches one run", func(t *testing.T) {
		f := newFixture(t)
		run := saveRun(t, f.store, models.RunStatusCompleted, time.Hour)

		resp, body := f.get(t, "/runs/"+run.ID)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var view runView
		require.NoError(t, json.Unmarshal(body, &view))
		assert.Equal(t, run.ID, view.ID)
		assert.Equal(t, "answer trivia", view.Goal)
	})

	t.Run("unknown run is 404", func(t *testing.T) {
		f := newFixture(t)
		resp, _ := f.get(t, "/runs/"+uuid.NewString())
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestServer_Generations(t *testing.T) {
	f := newFixture(t)
	run := saveRun(t, f.store, models.RunStatusRunning, time.Minute)

	gen := models.Generation{ID: uuid.NewString(), RunID: run.ID, Number: 1, StartTime: time.Now()}
	require.NoError(t, f.store.SaveGeneration(gen))
	require.NoError(t, f.store.CompleteGeneration(gen.ID, 0.8, 0.02))

	t.Run("lists the run's generations", func(t *testing.T) {
		resp, body := f.get(t, "/runs/"+run.ID+"/generations")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var gens []models.Generation
		require.NoError(t, json.Unmarshal(body, &gens))
		require.Len(t, gens, 1)
		assert.InDelta(t, 0.8, gens[0].BestScore, 1e-9)
	})

	t.Run("unknown run is 404", func(t *testing.T) {
		resp, _ := f.get(t, "/runs/"+uuid.NewString()+"/generations")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("lists a generation's versions", func(t *testing.T) {
		version := models.WorkflowVersion{
			ID:           uuid.NewString(),
			WorkflowID:   run.WorkflowID,
			GenerationID: gen.ID,
			Operation:    models.OperationInit,
			Config: models.WorkflowConfig{
				EntryNodeID: "solo",
				Nodes:       []models.WorkflowNodeConfig{{NodeID: "solo", ModelName: "gpt-4.1-mini"}},
			},
			CreatedAt: time.Now(),
		}
		require.NoError(t, f.store.SaveWorkflowVersion(version))

		resp, body := f.get(t, "/runs/"+run.ID+"/generations/"+gen.ID+"/versions")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var versions []models.WorkflowVersion
		require.NoError(t, json.Unmarshal(body, &versions))
		require.Len(t, versions, 1)
		assert.Equal(t, "solo", versions[0].Config.EntryNodeID)
	})
}

func TestServer_Events(t *testing.T) {
	t.Run("replays buffered events", func(t *testing.T) {
		f := newFixture(t)
		run := saveRun(t, f.store, models.RunStatusRunning, time.Minute)
		obs := f.registry.Create(run.ID)
		obs.EmitAgentStart("planner", nil)
		obs.EmitAgentEnd("planner", map[string]interface{}{"output": "done"})

		resp, body := f.get(t, "/runs/"+run.ID+"/events")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var events []observer.AgentEvent
		require.NoError(t, json.Unmarshal(body, &events))
		require.Len(t, events, 2)
		assert.Equal(t, observer.EventAgentStart, events[0].Type)
		assert.Equal(t, "planner", events[0].NodeID)
	})

	t.Run("since filters already-seen events", func(t *testing.T) {
		f := newFixture(t)
		run := saveRun(t, f.store, models.RunStatusRunning, time.Minute)
		obs := f.registry.Create(run.ID)
		obs.EmitAgentStart("planner", nil)
		obs.EmitAgentEnd("planner", nil)

		resp, body := f.get(t, "/runs/"+run.ID+"/events?since=1")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var events []observer.AgentEvent
		require.NoError(t, json.Unmarshal(body, &events))
		require.Len(t, events, 1)
		assert.Equal(t, observer.EventAgentEnd, events[0].Type)
	})

	t.Run("run without an observer is 404", func(t *testing.T) {
		f := newFixture(t)
		run := saveRun(t, f.store, models.RunStatusCompleted, time.Hour)
		resp, _ := f.get(t, "/runs/"+run.ID+"/events")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("streams history over SSE", func(t *testing.T) {
		f := newFixture(t)
		run := saveRun(t, f.store, models.RunStatusRunning, time.Minute)
		obs := f.registry.Create(run.ID)
		obs.EmitToolStart("researcher", "web_search")
		// Closing lets the handler return after the replay.
		obs.Close()

		resp, body := f.get(t, "/runs/"+run.ID+"/events/stream")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")
		assert.Contains(t, string(body), "event: tool_start")
		assert.Contains(t, string(body), "web_search")
	})
}
