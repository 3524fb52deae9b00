package handler_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tilsley/snapsync/apps/snapsync/internal/snapshot"
	"github.com/tilsley/snapsync/apps/snapsync/internal/snapshot/handler"
)

var t0 = time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)

func recorded(id string, offset time.Duration, status snapshot.RunStatus) snapshot.RunReport {
	return snapshot.RunReport{
		RunID:      id,
		Status:     status,
		StartedAt:  t0.Add(offset),
		FinishedAt: t0.Add(offset + time.Minute),
		Collect:    snapshot.CollectResult{Status: snapshot.StatusCollected, Entries: 4},
	}
}

// ─── GET /health ──────────────────────────────────────────────────────────────

func TestHealth(t *testing.T) {
	w := do(newRouter(t, &stubEngine{}, nil), http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

// ─── POST /runs ───────────────────────────────────────────────────────────────

func TestStartRun_GeneratesID(t *testing.T) {
	engine := &stubEngine{}
	w := do(newRouter(t, engine, nil), http.MethodPost, "/runs", nil)

	require.Equal(t, http.StatusAccepted, w.Code)
	body := decode[map[string]string](t, w)
	assert.Equal(t, "generated-id", body["runId"])
	assert.Equal(t, "started", body["status"])
	assert.Equal(t, []string{"generated-id"}, engine.started)
}

func TestStartRun_ExplicitID(t *testing.T) {
	engine := &stubEngine{}
	w := do(newRouter(t, engine, nil), http.MethodPost, "/runs", map[string]string{"runId": "manual-1"})

	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []string{"manual-1"}, engine.started)
}

func TestStartRun_InvalidID_Returns400(t *testing.T) {
	engine := &stubEngine{}
	w := do(newRouter(t, engine, nil), http.MethodPost, "/runs", map[string]string{"runId": "no spaces allowed"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, engine.started)
}

func TestStartRun_AlreadyExists_Returns409(t *testing.T) {
	engine := &stubEngine{startFn: func(_ context.Context, id string) error {
		return snapshot.RunExistsError{RunID: id}
	}}
	w := do(newRouter(t, engine, nil), http.MethodPost, "/runs", map[string]string{"runId": "manual-1"})

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "run manual-1 already exists", decode[map[string]string](t, w)["error"])
}

func TestStartRun_EngineError_Returns500(t *testing.T) {
	engine := &stubEngine{startFn: func(context.Context, string) error { return errors.New("temporal unavailable") }}
	w := do(newRouter(t, engine, nil), http.MethodPost, "/runs", nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "temporal unavailable")
}

// ─── GET /runs ────────────────────────────────────────────────────────────────

func TestListRuns_NewestFirst(t *testing.T) {
	runs := newMemRuns(
		recorded("old", 0, snapshot.StatusCompleted),
		recorded("new", time.Hour, snapshot.StatusNoFiles),
	)
	w := do(newRouter(t, &stubEngine{}, runs), http.MethodGet, "/runs", nil)

	require.Equal(t, http.StatusOK, w.Code)
	body := decode[struct {
		Runs []snapshot.RunReport `json:"runs"`
	}](t, w)
	require.Len(t, body.Runs, 2)
	assert.Equal(t, "new", body.Runs[0].RunID)
	assert.Equal(t, snapshot.StatusNoFiles, body.Runs[0].Status)
}

func TestListRuns_Limit(t *testing.T) {
	runs := newMemRuns(
		recorded("a", 0, snapshot.StatusCompleted),
		recorded("b", time.Hour, snapshot.StatusCompleted),
		recorded("c", 2*time.Hour, snapshot.StatusCompleted),
	)
	w := do(newRouter(t, &stubEngine{}, runs), http.MethodGet, "/runs?limit=2", nil)

	require.Equal(t, http.StatusOK, w.Code)
	body := decode[struct {
		Runs []snapshot.RunReport `json:"runs"`
	}](t, w)
	assert.Len(t, body.Runs, 2)
}

func TestListRuns_NoStore_Returns503(t *testing.T) {
	w := do(newRouter(t, &stubEngine{}, nil), http.MethodGet, "/runs", nil)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestListRuns_StoreError_Returns500(t *testing.T) {
	runs := newMemRuns()
	runs.err = errors.New("redis down")
	w := do(newRouter(t, &stubEngine{}, runs), http.MethodGet, "/runs", nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

// ─── GET /runs/:id ────────────────────────────────────────────────────────────

func TestGetRun_Recorded(t *testing.T) {
	runs := newMemRuns(recorded("run-1", 0, snapshot.StatusCompletedWithErrors))
	engine := &stubEngine{getStatusFn: func(context.Context, string) (*snapshot.WorkflowStatus, error) {
		t.Fatal("engine should not be consulted for a recorded run")
		return nil, nil
	}}
	w := do(newRouter(t, engine, runs), http.MethodGet, "/runs/run-1", nil)

	require.Equal(t, http.StatusOK, w.Code)
	report := decode[snapshot.RunReport](t, w)
	assert.Equal(t, snapshot.StatusCompletedWithErrors, report.Status)
	assert.Equal(t, 4, report.Collect.Entries)
}

func TestGetRun_LiveWorkflow(t *testing.T) {
	engine := &stubEngine{getStatusFn: func(_ context.Context, id string) (*snapshot.WorkflowStatus, error) {
		return &snapshot.WorkflowStatus{RunID: id, RuntimeStatus: "RUNNING", Phase: "syncing"}, nil
	}}
	w := do(newRouter(t, engine, newMemRuns()), http.MethodGet, "/runs/run-2", nil)

	require.Equal(t, http.StatusOK, w.Code)
	status := decode[snapshot.WorkflowStatus](t, w)
	assert.Equal(t, "RUNNING", status.RuntimeStatus)
	assert.Equal(t, "syncing", status.Phase)
}

func TestGetRun_NotFound(t *testing.T) {
	w := do(newRouter(t, &stubEngine{}, newMemRuns()), http.MethodGet, "/runs/ghost", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "ghost")
}

func TestGetRun_EngineError_Returns500(t *testing.T) {
	engine := &stubEngine{getStatusFn: func(context.Context, string) (*snapshot.WorkflowStatus, error) {
		return nil, errors.New("describe failed")
	}}
	w := do(newRouter(t, engine, nil), http.MethodGet, "/runs/run-3", nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

// ─── GET /runs/:id/events ─────────────────────────────────────────────────────

func TestListRunEvents_ReturnsRecordedEvents(t *testing.T) {
	entries := 4
	events := &memEvents{events: map[string][]snapshot.RunEvent{
		"run-1": {
			{RunID: "run-1", Stage: "run", Status: "completed", Entries: &entries, CreatedAt: t0},
			{RunID: "run-1", Stage: snapshot.StageCommit, Status: "ok", Detail: "c0ffee", CreatedAt: t0},
		},
	}}
	w := do(newRouter(t, &stubEngine{}, nil, handler.WithEventLog(events)), http.MethodGet, "/runs/run-1/events", nil)

	require.Equal(t, http.StatusOK, w.Code)
	body := decode[struct {
		RunID  string              `json:"runId"`
		Events []snapshot.RunEvent `json:"events"`
	}](t, w)
	assert.Equal(t, "run-1", body.RunID)
	require.Len(t, body.Events, 2)
	assert.Equal(t, "run", body.Events[0].Stage)
	require.NotNil(t, body.Events[0].Entries)
	assert.Equal(t, 4, *body.Events[0].Entries)
	assert.Equal(t, "c0ffee", body.Events[1].Detail)
}

func TestListRunEvents_UnknownRunIsEmpty(t *testing.T) {
	events := &memEvents{}
	w := do(newRouter(t, &stubEngine{}, nil, handler.WithEventLog(events)), http.MethodGet, "/runs/missing/events", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"runId":"missing","events":[]}`, w.Body.String())
}

func TestListRunEvents_NotConfigured_Returns503(t *testing.T) {
	w := do(newRouter(t, &stubEngine{}, nil), http.MethodGet, "/runs/run-1/events", nil)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestListRunEvents_NilEventLog_Returns503(t *testing.T) {
	var es snapshot.EventStore
	w := do(newRouter(t, &stubEngine{}, nil, handler.WithEventLog(es)), http.MethodGet, "/runs/run-1/events", nil)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestListRunEvents_StoreError_Returns500(t *testing.T) {
	events := &memEvents{err: errors.New("pg down")}
	w := do(newRouter(t, &stubEngine{}, nil, handler.WithEventLog(events)), http.MethodGet, "/runs/run-1/events", nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "pg down")
}

func TestListRunEvents_InvalidID_Returns400(t *testing.T) {
	events := &memEvents{}
	w := do(newRouter(t, &stubEngine{}, nil, handler.WithEventLog(events)), http.MethodGet, "/runs/bad~id/events", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
