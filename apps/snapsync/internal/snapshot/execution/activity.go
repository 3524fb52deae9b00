package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tilsley/snapsync/apps/snapsync/internal/snapshot"
)

const instrName = "github.com/tilsley/snapsync"

// Activities are the Temporal activities of a sync run. runs and events may
// be nil when the corresponding store is not configured.
type Activities struct {
	svc    *snapshot.Service
	runs   snapshot.RunStore
	events snapshot.EventRecorder
	log    *slog.Logger
}

// NewActivities creates the activity set registered on the worker.
func NewActivities(svc *snapshot.Service, runs snapshot.RunStore, events snapshot.EventRecorder, log *slog.Logger) *Activities {
	return &Activities{svc: svc, runs: runs, events: events, log: log}
}

// Sync collects into an artifact private to runID and publishes it. Collect
// and write failures are reported through the report status so the workflow
// can still record the run.
func (a *Activities) Sync(ctx context.Context, runID string) (snapshot.RunReport, error) {
	report, err := a.svc.RunIsolated(ctx, runID)
	if err != nil {
		a.log.Error("sync failed", "run", runID, "error", err)
	}
	return report, nil
}

// RecordRun saves the report to the run store and appends it to the event log.
func (a *Activities) RecordRun(ctx context.Context, report snapshot.RunReport) error {
	ctx, span := otel.Tracer(instrName).Start(ctx, "RecordRun",
		trace.WithAttributes(
			attribute.String("run.id", report.RunID),
			attribute.String("run.status", string(report.Status)),
		),
	)
	defer span.End()

	var errs []error
	if a.runs != nil {
		if err := a.runs.Save(ctx, report); err != nil {
			errs = append(errs, fmt.Errorf("save run: %w", err))
		}
	}
	if a.events != nil {
		if err := a.events.RecordRun(ctx, report); err != nil {
			errs = append(errs, fmt.Errorf("record events: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		span.RecordError(err)
		return err
	}
	a.log.Info("recorded run", "run", report.RunID, "status", report.Status)
	return nil
}
