package temporalplatform

import (
	"context"
	"errors"
	"fmt"
	"time"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"

	"github.com/tilsley/snapsync/apps/snapsync/internal/snapshot"
	"github.com/tilsley/snapsync/apps/snapsync/internal/snapshot/execution"
)

// Compile-time check: *Engine implements snapshot.WorkflowEngine.
var _ snapshot.WorkflowEngine = (*Engine)(nil)

const (
	taskQueue     = "snapsync"
	statusRunning = "RUNNING"
	statusFailed  = "FAILED"
)

// Engine implements snapshot.WorkflowEngine using the Temporal SDK client.
type Engine struct {
	c               client.Client
	activityTimeout time.Duration
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithActivityTimeout sets the activity timeout carried by every run the
// engine starts or schedules. Zero leaves the workflow default.
func WithActivityTimeout(d time.Duration) EngineOption {
	return func(e *Engine) { e.activityTimeout = d }
}

// NewEngine creates a new Temporal workflow engine.
func NewEngine(c client.Client, opts ...EngineOption) *Engine {
	e := &Engine{c: c}
	for _, o := range opts {
		o(e)
	}
	return e
}

// TaskQueue returns the Temporal task queue name used by the engine.
func TaskQueue() string { return taskQueue }

// StartRun starts a SnapshotSync workflow whose ID is runID. A run ID that
// was used before, running or finished, returns snapshot.RunExistsError.
func (e *Engine) StartRun(ctx context.Context, runID string) error {
	opts := client.StartWorkflowOptions{
		ID:                                       runID,
		TaskQueue:                                taskQueue,
		WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}
	if _, err := e.c.ExecuteWorkflow(ctx, opts, execution.WorkflowName, e.request(runID)); err != nil {
		var started *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &started) {
			return snapshot.RunExistsError{RunID: runID}
		}
		return fmt.Errorf("start workflow %q: %w", runID, err)
	}
	return nil
}

func (e *Engine) request(runID string) execution.SyncRequest {
	return execution.SyncRequest{RunID: runID, ActivityTimeout: e.activityTimeout}
}

// GetStatus returns the current status of a run, including its live phase or
// final report. Unknown runs return nil, nil.
func (e *Engine) GetStatus(ctx context.Context, runID string) (*snapshot.WorkflowStatus, error) {
	desc, err := e.c.DescribeWorkflowExecution(ctx, runID, "")
	if err != nil {
		var nf *serviceerror.NotFound
		if errors.As(err, &nf) {
			return nil, nil //nolint:nilnil // not found is not an error
		}
		return nil, fmt.Errorf("describe workflow %q: %w", runID, err)
	}

	ws := &snapshot.WorkflowStatus{
		RunID:         runID,
		RuntimeStatus: mapTemporalStatus(desc.WorkflowExecutionInfo.Status),
	}

	if ws.RuntimeStatus == statusRunning {
		val, err := e.c.QueryWorkflow(ctx, runID, "", execution.PhaseQuery)
		if err == nil {
			var phase string
			if err := val.Get(&phase); err == nil {
				ws.Phase = phase
			}
		}
		return ws, nil
	}

	run := e.c.GetWorkflow(ctx, runID, "")
	var report snapshot.RunReport
	if err := run.Get(ctx, &report); err == nil {
		ws.Report = &report
		ws.Phase = execution.PhaseDone
	}
	return ws, nil
}

// EnsureSchedule creates a schedule that starts SnapshotSync on cron. An
// existing schedule with the same ID is left as is.
func (e *Engine) EnsureSchedule(ctx context.Context, scheduleID, cron string) error {
	_, err := e.c.ScheduleClient().Create(ctx, client.ScheduleOptions{
		ID: scheduleID,
		Spec: client.ScheduleSpec{
			CronExpressions: []string{cron},
		},
		Action: &client.ScheduleWorkflowAction{
			ID:        scheduleID + "-run",
			Workflow:  execution.WorkflowName,
			Args:      []any{e.request("")},
			TaskQueue: taskQueue,
		},
		Overlap: enumspb.SCHEDULE_OVERLAP_POLICY_SKIP,
	})
	if err != nil {
		if errors.Is(err, temporal.ErrScheduleAlreadyRunning) {
			return nil
		}
		return fmt.Errorf("create schedule %q: %w", scheduleID, err)
	}
	return nil
}

func mapTemporalStatus(s enumspb.WorkflowExecutionStatus) string {
	switch s {
	case enumspb.WORKFLOW_EXECUTION_STATUS_RUNNING:
		return statusRunning
	case enumspb.WORKFLOW_EXECUTION_STATUS_COMPLETED:
		return "COMPLETED"
	case enumspb.WORKFLOW_EXECUTION_STATUS_FAILED,
		enumspb.WORKFLOW_EXECUTION_STATUS_CANCELED,
		enumspb.WORKFLOW_EXECUTION_STATUS_TERMINATED,
		enumspb.WORKFLOW_EXECUTION_STATUS_TIMED_OUT:
		return statusFailed
	default:
		return "UNKNOWN"
	}
}
