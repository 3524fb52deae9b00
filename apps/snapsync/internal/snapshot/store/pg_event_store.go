package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/tilsley/snapsync/apps/snapsync/internal/snapshot"
)

const instrName = "github.com/tilsley/snapsync"

// stageRun labels the summary row written for the run as a whole.
const stageRun = "run"

var _ snapshot.EventStore = (*PGEventStore)(nil)

// PGEventStore appends run and stage outcomes to PostgreSQL.
type PGEventStore struct {
	pool *pgxpool.Pool

	// OTel business metrics emitted on every RecordRun call.
	runDuration metric.Float64Histogram
	runs        metric.Int64Counter
	entries     metric.Int64Histogram
	stageFailed metric.Int64Counter
}

// NewPGEventStore creates a new PGEventStore with the given connection pool.
func NewPGEventStore(pool *pgxpool.Pool) *PGEventStore {
	m := otel.Meter(instrName)

	runDuration, _ := m.Float64Histogram("snapsync.run.duration",
		metric.WithDescription("Run duration in milliseconds"),
		metric.WithUnit("ms"))
	runs, _ := m.Int64Counter("snapsync.runs",
		metric.WithDescription("Number of runs recorded, by status"))
	entries, _ := m.Int64Histogram("snapsync.snapshot.entries",
		metric.WithDescription("Entries per snapshot"))
	stageFailed, _ := m.Int64Counter("snapsync.stage.failed",
		metric.WithDescription("Number of failed publish stages"))

	return &PGEventStore{
		pool:        pool,
		runDuration: runDuration,
		runs:        runs,
		entries:     entries,
		stageFailed: stageFailed,
	}
}

// RecordRun writes one summary row for the run and one row per publish stage
// in a single transaction, then emits metrics.
func (s *PGEventStore) RecordRun(ctx context.Context, report snapshot.RunReport) error {
	batch := &pgx.Batch{}
	for _, e := range Events(report) {
		batch.Queue(
			`INSERT INTO sync_events (run_id, stage, status, detail, error, entries, duration_ms)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			e.RunID, e.Stage, e.Status, nilIfEmpty(e.Detail), nilIfEmpty(e.Error), e.Entries, e.DurationMs,
		)
	}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("insert sync_events for %q: %w", report.RunID, err)
	}

	s.emitMetrics(ctx, report)
	return nil
}

func (s *PGEventStore) emitMetrics(ctx context.Context, report snapshot.RunReport) {
	status := attribute.String("status", string(report.Status))
	s.runs.Add(ctx, 1, metric.WithAttributes(status))
	s.runDuration.Record(ctx, float64(report.FinishedAt.Sub(report.StartedAt).Milliseconds()), metric.WithAttributes(status))
	s.entries.Record(ctx, int64(report.Collect.Entries))

	if report.Publish == nil {
		return
	}
	for _, st := range report.Publish.Stages {
		if !st.OK && !st.Skipped {
			s.stageFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", st.Name)))
		}
	}
}

// List returns the events recorded for runID in insertion order.
func (s *PGEventStore) List(ctx context.Context, runID string) ([]snapshot.RunEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT run_id, stage, status, COALESCE(detail, ''), COALESCE(error, ''), entries, duration_ms, created_at
		 FROM sync_events WHERE run_id = $1 ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query sync_events: %w", err)
	}
	events, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (snapshot.RunEvent, error) {
		var e snapshot.RunEvent
		err := row.Scan(&e.RunID, &e.Stage, &e.Status, &e.Detail, &e.Error, &e.Entries, &e.DurationMs, &e.CreatedAt)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan sync_events: %w", err)
	}
	return events, nil
}

// Events flattens a report into the rows RecordRun writes.
func Events(report snapshot.RunReport) []snapshot.RunEvent {
	entries := report.Collect.Entries
	duration := report.FinishedAt.Sub(report.StartedAt).Milliseconds()
	events := []snapshot.RunEvent{{
		RunID:      report.RunID,
		Stage:      stageRun,
		Status:     string(report.Status),
		Error:      report.Collect.Error,
		Entries:    &entries,
		DurationMs: &duration,
	}}
	if report.Publish == nil {
		return events
	}
	for _, st := range report.Publish.Stages {
		events = append(events, snapshot.RunEvent{
			RunID:  report.RunID,
			Stage:  st.Name,
			Status: stageStatus(st),
			Detail: st.Detail,
			Error:  st.Error,
		})
	}
	return events
}

func stageStatus(st snapshot.StageResult) string {
	switch {
	case st.Skipped:
		return "skipped"
	case st.OK:
		return "ok"
	default:
		return "failed"
	}
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
