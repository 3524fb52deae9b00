package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/tilsley/snapsync/apps/snapsync/internal/platform/validation"
	"github.com/tilsley/snapsync/apps/snapsync/internal/snapshot"
	"github.com/tilsley/snapsync/apps/snapsync/internal/snapshot/handler"
	"github.com/tilsley/snapsync/schemas"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// ─── Stubs ────────────────────────────────────────────────────────────────────

type stubEngine struct {
	mu          sync.Mutex
	started     []string
	startFn     func(ctx context.Context, id string) error
	getStatusFn func(ctx context.Context, id string) (*snapshot.WorkflowStatus, error)
}

func (e *stubEngine) StartRun(ctx context.Context, id string) error {
	e.mu.Lock()
	e.started = append(e.started, id)
	e.mu.Unlock()
	if e.startFn != nil {
		return e.startFn(ctx, id)
	}
	return nil
}

func (e *stubEngine) GetStatus(ctx context.Context, id string) (*snapshot.WorkflowStatus, error) {
	if e.getStatusFn != nil {
		return e.getStatusFn(ctx, id)
	}
	return nil, nil
}

type memRuns struct {
	reports map[string]snapshot.RunReport
	err     error
}

func newMemRuns(reports ...snapshot.RunReport) *memRuns {
	m := &memRuns{reports: make(map[string]snapshot.RunReport)}
	for _, r := range reports {
		m.reports[r.RunID] = r
	}
	return m
}

func (m *memRuns) Save(_ context.Context, r snapshot.RunReport) error {
	m.reports[r.RunID] = r
	return m.err
}

func (m *memRuns) Get(_ context.Context, id string) (*snapshot.RunReport, error) {
	if m.err != nil {
		return nil, m.err
	}
	r, ok := m.reports[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *memRuns) List(_ context.Context, limit int) ([]snapshot.RunReport, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := make([]snapshot.RunReport, 0, len(m.reports))
	for _, r := range m.reports {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memEvents struct {
	events map[string][]snapshot.RunEvent
	err    error
}

func (m *memEvents) List(_ context.Context, runID string) ([]snapshot.RunEvent, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := m.events[runID]
	if out == nil {
		out = []snapshot.RunEvent{}
	}
	return out, nil
}

// ─── Router ───────────────────────────────────────────────────────────────────

// newRouter builds the API with the OpenAPI validation middleware in front,
// as `snapsync serve` does. runs may be nil.
func newRouter(t *testing.T, engine *stubEngine, runs snapshot.RunStore, opts ...handler.Option) *gin.Engine {
	t.Helper()
	mw, err := validation.New(schemas.OpenAPISpec)
	require.NoError(t, err)

	r := gin.New()
	r.Use(mw)
	opts = append([]handler.Option{handler.WithIDGenerator(func() string { return "generated-id" })}, opts...)
	handler.RegisterRoutes(r, engine, runs, slog.New(slog.NewTextHandler(io.Discard, nil)), opts...)
	return r
}

func do(r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}
