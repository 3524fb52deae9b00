package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Settings are the per-run inputs of the Service.
type Settings struct {
	// RootURL is the listing URL of the directory to snapshot.
	RootURL      string
	ArtifactPath string
	// Sanitize turns on key trimming and control-character escaping before
	// serialization. Off by default; JSON escaping already handles both.
	Sanitize bool
}

// runArtifactDir holds per-run artifacts, relative to the configured one.
const runArtifactDir = "runs"

// ProgressFunc is called after each discovered file has been processed.
type ProgressFunc func(done, total int)

// Service drives one pipeline run: walk, fetch, decode, assemble, write,
// validate and publish. Concurrent runs must use RunIsolated.
type Service struct {
	walker    *Walker
	fetcher   *Fetcher
	resolver  *Resolver
	publisher *Publisher
	settings  Settings
	metrics   *metrics
	progress  ProgressFunc
	now       func() time.Time
	log       *slog.Logger
}

// NewService creates a new Service.
func NewService(walker *Walker, fetcher *Fetcher, resolver *Resolver, publisher *Publisher, settings Settings, log *slog.Logger) *Service {
	return &Service{
		walker:    walker,
		fetcher:   fetcher,
		resolver:  resolver,
		publisher: publisher,
		settings:  settings,
		metrics:   newMetrics(),
		now:       time.Now,
		log:       log,
	}
}

// OnProgress registers fn to observe fetch progress.
func (s *Service) OnProgress(fn ProgressFunc) {
	s.progress = fn
}

// Collect produces and validates the artifact at the configured path.
//
// An empty walk or an artifact that fails validation are reported through the
// result status, not as errors. The returned error is non-nil only when the
// run was cancelled or the artifact could not be written.
func (s *Service) Collect(ctx context.Context) (CollectResult, error) {
	return s.CollectTo(ctx, s.settings.ArtifactPath)
}

// CollectTo is Collect writing to artifactPath. A cancelled run leaves any
// existing file at artifactPath untouched.
func (s *Service) CollectTo(ctx context.Context, artifactPath string) (CollectResult, error) {
	ctx, span := otel.Tracer(instrName).Start(ctx, "Collect",
		trace.WithAttributes(attribute.String("root.url", s.settings.RootURL)))
	defer span.End()

	refs := s.walker.Walk(ctx, s.settings.RootURL)
	result := CollectResult{FilesDiscovered: len(refs)}
	span.SetAttributes(attribute.Int("files.discovered", len(refs)))
	if err := ctx.Err(); err != nil {
		return s.cancelled(span, result, err)
	}
	if len(refs) == 0 {
		s.log.Error("no files to process", "url", s.settings.RootURL)
		result.Status = StatusNoFiles
		result.Error = ErrNoFiles.Error()
		return result, nil
	}

	entries := make([]DecodedEntry, 0, len(refs))
	for i, ref := range refs {
		if ctx.Err() != nil {
			break
		}
		if entry, ok := s.process(ctx, ref, &result); ok {
			entries = append(entries, entry)
		}
		if s.progress != nil {
			s.progress(i+1, len(refs))
		}
	}
	if err := ctx.Err(); err != nil {
		return s.cancelled(span, result, err)
	}

	snap := Assemble(entries)
	if s.settings.Sanitize {
		snap = Sanitize(snap)
	}
	result.Entries = snap.Len()

	data, err := WriteArtifact(artifactPath, snap)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "write artifact")
		result.Status = StatusFailed
		result.Error = err.Error()
		return result, fmt.Errorf("write artifact: %w", err)
	}
	result.ArtifactPath = artifactPath
	s.log.Info("wrote snapshot", "path", artifactPath, "entries", result.Entries, "bytes", len(data))

	if err := Validate(data, s.log); err != nil {
		result.Status = StatusInvalidSnapshot
		result.Error = err.Error()
		return result, nil
	}

	result.Status = StatusCollected
	return result, nil
}

func (s *Service) cancelled(span trace.Span, result CollectResult, err error) (CollectResult, error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, "cancelled")
	s.log.Error("collect cancelled, artifact not written", "error", err)
	result.Status = StatusFailed
	result.Error = err.Error()
	return result, fmt.Errorf("collect cancelled: %w", err)
}

// process fetches and decodes one file. Failures are recorded on result and
// the file is skipped.
func (s *Service) process(ctx context.Context, ref FileRef, result *CollectResult) (DecodedEntry, bool) {
	body, err := s.fetcher.Fetch(ctx, ref.FetchURL)
	if err != nil {
		result.FetchFailures = append(result.FetchFailures, ref.FetchURL)
		s.metrics.skipped(ctx, "fetch")
		return DecodedEntry{}, false
	}

	entry, err := s.resolver.Decode(ref.FetchURL, body)
	if err != nil {
		var decErr *DecodeError
		if !errors.As(err, &decErr) {
			s.log.Error("decode failed", "url", ref.FetchURL, "error", err)
		}
		result.DecodeFailures = append(result.DecodeFailures, ref.FetchURL)
		s.metrics.skipped(ctx, "decode")
		return DecodedEntry{}, false
	}

	s.metrics.fetched(ctx)
	return entry, true
}

// Publish runs the publisher against artifactPath.
func (s *Service) Publish(ctx context.Context, artifactPath string) PublishReport {
	return s.publisher.Publish(ctx, artifactPath)
}

// Run performs Collect and, when it succeeds, Publish, using the configured
// artifact path.
func (s *Service) Run(ctx context.Context, runID string) (RunReport, error) {
	return s.run(ctx, runID, s.settings.ArtifactPath)
}

// RunIsolated is Run with an artifact private to runID, next to the
// configured one. Runs with different IDs never read each other's file. The
// per-run file is removed when the run ends.
func (s *Service) RunIsolated(ctx context.Context, runID string) (RunReport, error) {
	artifactPath := s.RunArtifactPath(runID)
	defer func() {
		if err := os.Remove(artifactPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.log.Warn("could not remove run artifact", "path", artifactPath, "error", err)
		}
	}()
	return s.run(ctx, runID, artifactPath)
}

// RunArtifactPath is where RunIsolated writes the artifact for runID.
func (s *Service) RunArtifactPath(runID string) string {
	dir := filepath.Dir(s.settings.ArtifactPath)
	return filepath.Join(dir, runArtifactDir, safeFileName(runID)+".json")
}

func (s *Service) run(ctx context.Context, runID, artifactPath string) (RunReport, error) {
	started := s.now().UTC()
	s.log.Info("run started", "run", runID)

	collect, err := s.CollectTo(ctx, artifactPath)
	if err != nil {
		report := NewRunReport(runID, started, s.now().UTC(), collect, nil)
		s.log.Error("run failed", "run", runID, "error", err)
		return report, err
	}
	if collect.Status != StatusCollected {
		report := NewRunReport(runID, started, s.now().UTC(), collect, nil)
		s.log.Warn("run ended early", "run", runID, "status", report.Status)
		return report, nil
	}

	publish := s.Publish(ctx, collect.ArtifactPath)
	report := NewRunReport(runID, started, s.now().UTC(), collect, &publish)
	s.log.Info("run finished",
		"run", runID,
		"status", report.Status,
		"entries", collect.Entries,
		"duration", report.FinishedAt.Sub(report.StartedAt))
	return report, nil
}

// safeFileName maps anything outside [A-Za-z0-9._-] to '_'. Scheduled
// workflow IDs carry RFC 3339 timestamps.
func safeFileName(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, id)
}
