package snapshot

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrName = "github.com/tilsley/snapsync"

// metrics are OTel business counters. With telemetry disabled the global
// provider is a noop.
type metrics struct {
	filesFetched metric.Int64Counter
	filesSkipped metric.Int64Counter
	stages       metric.Int64Counter
}

func newMetrics() *metrics {
	m := otel.Meter(instrName)

	filesFetched, _ := m.Int64Counter("snapsync.files.fetched",
		metric.WithDescription("Files fetched and decoded into a snapshot"))
	filesSkipped, _ := m.Int64Counter("snapsync.files.skipped",
		metric.WithDescription("Files dropped from a snapshot, by reason"))
	stages, _ := m.Int64Counter("snapsync.publish.stages",
		metric.WithDescription("Publish stage outcomes"))

	return &metrics{filesFetched: filesFetched, filesSkipped: filesSkipped, stages: stages}
}

func (m *metrics) fetched(ctx context.Context) {
	m.filesFetched.Add(ctx, 1)
}

func (m *metrics) skipped(ctx context.Context, reason string) {
	m.filesSkipped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *metrics) recordStage(ctx context.Context, stage string, ok bool) {
	m.stages.Add(ctx, 1, metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.Bool("ok", ok),
	))
}
