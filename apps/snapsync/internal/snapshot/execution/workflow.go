package execution

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/tilsley/snapsync/apps/snapsync/internal/snapshot"
)

// WorkflowName is the name SnapshotSync is registered and started under.
const WorkflowName = "SnapshotSync"

// PhaseQuery is the query handler exposing the current phase of a run.
const PhaseQuery = "phase"

// Run phases reported by PhaseQuery.
const (
	PhaseSyncing   = "syncing"
	PhaseRecording = "recording"
	PhaseDone      = "done"
)

// DefaultActivityTimeout bounds the Sync activity when the request carries
// no timeout of its own.
const DefaultActivityTimeout = 2 * time.Hour

// SyncRequest is the workflow input.
type SyncRequest struct {
	// RunID defaults to the workflow ID, which is what scheduled runs get.
	RunID string `json:"runId,omitempty"`
	// ActivityTimeout is the start-to-close timeout of each activity.
	ActivityTimeout time.Duration `json:"activityTimeout,omitempty"`
}

// SnapshotSync is the Temporal workflow for one pipeline run:
//  1. Sync collects into an artifact private to the run and publishes it
//     when the artifact is valid.
//  2. RecordRun persists the report. Its failure is logged, not returned.
//
// Activities are never retried; a failed run waits for the next trigger.
func SnapshotSync(ctx workflow.Context, req SyncRequest) (snapshot.RunReport, error) {
	runID := req.RunID
	if runID == "" {
		runID = workflow.GetInfo(ctx).WorkflowExecution.ID
	}

	timeout := req.ActivityTimeout
	if timeout <= 0 {
		timeout = DefaultActivityTimeout
	}

	phase := PhaseSyncing
	if err := workflow.SetQueryHandler(ctx, PhaseQuery, func() (string, error) {
		return phase, nil
	}); err != nil {
		return snapshot.RunReport{}, fmt.Errorf("register query handler: %w", err)
	}

	actCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		TaskQueue:           workflow.GetInfo(ctx).TaskQueueName,
		StartToCloseTimeout: timeout,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})

	var report snapshot.RunReport
	if err := workflow.ExecuteActivity(actCtx, "Sync", runID).Get(ctx, &report); err != nil {
		return snapshot.RunReport{}, fmt.Errorf("sync: %w", err)
	}

	phase = PhaseRecording
	if err := workflow.ExecuteActivity(actCtx, "RecordRun", report).Get(ctx, nil); err != nil {
		workflow.GetLogger(ctx).Warn("failed to record run", "run", runID, "error", err)
	}

	phase = PhaseDone
	return report, nil
}
