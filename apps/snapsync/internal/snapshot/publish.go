package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Poll defaults for index batches.
const (
	DefaultPollInterval = 5 * time.Second
	DefaultPollTimeout  = 10 * time.Minute
)

// PublishSettings configures the Publisher.
type PublishSettings struct {
	// RepoPath is where the artifact is committed in the destination repository.
	RepoPath      string
	Branch        string
	CommitMessage string
	CommitEnabled bool

	IndexEnabled bool
	// StoreID pins a vector store; when empty StoreName is looked up or created.
	StoreID      string
	StoreName    string
	PollInterval time.Duration
	PollTimeout  time.Duration
}

// publishState sequences delete-then-recreate within one Publish call.
type publishState struct {
	remoteSHA string
	deleted   bool
}

// Publisher pushes a local artifact to the artifact repository and the index.
type Publisher struct {
	repo     ArtifactRepo
	index    Index
	settings PublishSettings
	metrics  *metrics
	log      *slog.Logger
}

// NewPublisher creates a Publisher.
func NewPublisher(repo ArtifactRepo, index Index, settings PublishSettings, log *slog.Logger) *Publisher {
	if settings.PollInterval <= 0 {
		settings.PollInterval = DefaultPollInterval
	}
	if settings.PollTimeout <= 0 {
		settings.PollTimeout = DefaultPollTimeout
	}
	if settings.Branch == "" {
		settings.Branch = "main"
	}
	return &Publisher{repo: repo, index: index, settings: settings, metrics: newMetrics(), log: log}
}

// Publish runs the delete, commit and index stages against artifactPath.
// Each stage is logged and recorded; a failing stage never stops later ones.
func (p *Publisher) Publish(ctx context.Context, artifactPath string) PublishReport {
	ctx, span := otel.Tracer(instrName).Start(ctx, "Publish",
		trace.WithAttributes(attribute.String("artifact.path", artifactPath)))
	defer span.End()

	var report PublishReport
	var state publishState

	content, readErr := os.ReadFile(artifactPath)
	if readErr != nil {
		p.log.Error("artifact does not exist", "path", artifactPath, "error", readErr)
	}

	report.Stages = append(report.Stages, p.stage(ctx, StageDelete, p.settings.CommitEnabled, func() (string, error) {
		return p.deleteExisting(ctx, &state, &report)
	}))
	report.Stages = append(report.Stages, p.stage(ctx, StageCommit, p.settings.CommitEnabled, func() (string, error) {
		if readErr != nil {
			return "", fmt.Errorf("read artifact: %w", readErr)
		}
		return p.commit(ctx, &state, &report, content)
	}))
	report.Stages = append(report.Stages, p.stage(ctx, StageIndex, p.settings.IndexEnabled, func() (string, error) {
		if readErr != nil {
			return "", fmt.Errorf("read artifact: %w", readErr)
		}
		return p.upload(ctx, &report, p.indexFilename(artifactPath), content)
	}))
	return report
}

// indexFilename is the document name used in the index. It follows the
// committed path so every run replaces the same document, whatever the local
// artifact is called.
func (p *Publisher) indexFilename(artifactPath string) string {
	if p.settings.RepoPath != "" {
		return path.Base(p.settings.RepoPath)
	}
	return filepath.Base(artifactPath)
}

func (p *Publisher) stage(ctx context.Context, name string, enabled bool, run func() (string, error)) StageResult {
	if !enabled {
		p.log.Info("publish stage disabled", "stage", name)
		return StageResult{Name: name, Skipped: true, Detail: "disabled"}
	}

	ctx, span := otel.Tracer(instrName).Start(ctx, "Publish."+name)
	defer span.End()

	p.log.Info("publish stage started", "stage", name)
	detail, err := run()
	p.metrics.recordStage(ctx, name, err == nil)
	if err != nil {
		span.RecordError(err)
		p.logStageError(name, err)
		return StageResult{Name: name, Detail: detail, Error: err.Error()}
	}
	p.log.Info("publish stage finished", "stage", name, "detail", detail)
	return StageResult{Name: name, OK: true, Detail: detail}
}

func (p *Publisher) logStageError(name string, err error) {
	var apiErr *RemoteAPIError
	if errors.As(err, &apiErr) {
		p.log.Error("publish stage failed",
			"stage", name,
			"op", apiErr.Op,
			"status", apiErr.StatusCode,
			"headers", apiErr.Header,
			"body", apiErr.Body)
		return
	}
	p.log.Error("publish stage failed", "stage", name, "error", err)
}

func (p *Publisher) deleteExisting(ctx context.Context, state *publishState, report *PublishReport) (string, error) {
	sha, found, err := p.repo.Lookup(ctx, p.settings.RepoPath, p.settings.Branch)
	if err != nil {
		return "", fmt.Errorf("look up %s: %w", p.settings.RepoPath, err)
	}
	if !found {
		p.log.Info("nothing to delete", "path", p.settings.RepoPath, "branch", p.settings.Branch)
		return "nothing to delete", nil
	}
	state.remoteSHA = sha
	report.RemoteSHA = sha

	msg := fmt.Sprintf("Remove %s before refresh", p.settings.RepoPath)
	if err := p.repo.Delete(ctx, p.settings.RepoPath, p.settings.Branch, sha, msg); err != nil {
		return "", fmt.Errorf("delete %s@%s: %w", p.settings.RepoPath, sha, err)
	}
	state.deleted = true
	return "deleted " + sha, nil
}

func (p *Publisher) commit(ctx context.Context, state *publishState, report *PublishReport, content []byte) (string, error) {
	token := ""
	if !state.deleted {
		token = state.remoteSHA
	}
	msg := p.settings.CommitMessage
	if msg == "" {
		msg = "Update " + p.settings.RepoPath
	}

	sha, err := p.repo.Commit(ctx, p.settings.RepoPath, p.settings.Branch, content, token, msg)
	if err != nil {
		return "", fmt.Errorf("commit %s: %w", p.settings.RepoPath, err)
	}
	report.CommitSHA = sha
	return "committed " + sha, nil
}

func (p *Publisher) upload(ctx context.Context, report *PublishReport, filename string, content []byte) (string, error) {
	if err := p.index.Ready(); err != nil {
		return "", err
	}

	storeID, err := p.resolveStore(ctx)
	if err != nil {
		return "", err
	}
	report.StoreID = storeID

	removed, err := p.index.RemoveDocuments(ctx, storeID, filename)
	if err != nil {
		// A stale prior copy is tolerable; the new upload still goes ahead.
		p.log.Warn("could not remove previous index documents", "store", storeID, "file", filename, "error", err)
	} else if removed > 0 {
		p.log.Info("removed previous index documents", "store", storeID, "file", filename, "count", removed)
	}

	fileID, err := p.index.Upload(ctx, filename, content)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", filename, err)
	}
	p.log.Info("uploaded artifact", "file", filename, "fileId", fileID, "bytes", len(content))

	batch, err := p.index.StartBatch(ctx, storeID, []string{fileID})
	if err != nil {
		return "", fmt.Errorf("start batch: %w", err)
	}
	report.BatchID = batch.ID

	batch, err = p.poll(ctx, storeID, batch)
	report.BatchStatus = batch.Status
	counts := batch.Counts
	report.FileCounts = &counts
	p.log.Info("index batch finished",
		"batch", batch.ID,
		"status", batch.Status,
		"completed", counts.Completed,
		"failed", counts.Failed,
		"in_progress", counts.InProgress,
		"cancelled", counts.Cancelled,
		"total", counts.Total)
	if err != nil {
		return "", err
	}
	if batch.Status != "completed" {
		return "", fmt.Errorf("batch %s ended with status %q", batch.ID, batch.Status)
	}
	return fmt.Sprintf("batch %s completed (%d/%d files)", batch.ID, counts.Completed, counts.Total), nil
}

func (p *Publisher) resolveStore(ctx context.Context) (string, error) {
	if p.settings.StoreID != "" {
		return p.settings.StoreID, nil
	}
	id, found, err := p.index.FindStore(ctx, p.settings.StoreName)
	if err != nil {
		return "", fmt.Errorf("find store %q: %w", p.settings.StoreName, err)
	}
	if found {
		return id, nil
	}
	id, err = p.index.CreateStore(ctx, p.settings.StoreName)
	if err != nil {
		return "", fmt.Errorf("create store %q: %w", p.settings.StoreName, err)
	}
	p.log.Info("created index store", "name", p.settings.StoreName, "id", id)
	return id, nil
}

func (p *Publisher) poll(ctx context.Context, storeID string, batch Batch) (Batch, error) {
	ctx, cancel := context.WithTimeout(ctx, p.settings.PollTimeout)
	defer cancel()

	ticker := time.NewTicker(p.settings.PollInterval)
	defer ticker.Stop()

	for !batch.Terminal() {
		select {
		case <-ctx.Done():
			return batch, fmt.Errorf("waiting for batch %s: %w", batch.ID, ctx.Err())
		case <-ticker.C:
		}
		next, err := p.index.GetBatch(ctx, storeID, batch.ID)
		if err != nil {
			return batch, fmt.Errorf("poll batch %s: %w", batch.ID, err)
		}
		batch = next
		p.log.Debug("index batch status", "batch", batch.ID, "status", batch.Status)
	}
	return batch, nil
}
