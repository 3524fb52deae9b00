package snapshot

import "context"

// Lister returns the immediate children of a directory listing URL.
// The GitHub adapter in snapshot/adapters provides the concrete implementation.
type Lister interface {
	List(ctx context.Context, listingURL string) ([]ListingEntry, error)
}

// ArtifactRepo stores the published snapshot as a file in a repository,
// keyed by path and guarded by content-hash concurrency tokens.
type ArtifactRepo interface {
	// Lookup returns the current content hash of path on branch. found is false
	// when the file does not exist.
	Lookup(ctx context.Context, path, branch string) (sha string, found bool, err error)
	Delete(ctx context.Context, path, branch, sha, message string) error
	// Commit creates path, or updates it when sha is non-empty, and returns the commit SHA.
	Commit(ctx context.Context, path, branch string, content []byte, sha, message string) (string, error)
}

// Batch is the index service's view of a submitted ingestion batch.
type Batch struct {
	ID     string
	Status string
	Counts FileCounts
}

// Terminal reports whether the batch will make no further progress.
func (b Batch) Terminal() bool {
	switch b.Status {
	case "completed", "failed", "cancelled":
		return true
	default:
		return false
	}
}

// Index is the external document index ("vector store").
type Index interface {
	// Ready returns a *CredentialError when the index cannot be called.
	Ready() error
	FindStore(ctx context.Context, name string) (id string, found bool, err error)
	CreateStore(ctx context.Context, name string) (string, error)
	// RemoveDocuments drops every document named filename from the store and
	// returns how many were removed.
	RemoveDocuments(ctx context.Context, storeID, filename string) (int, error)
	Upload(ctx context.Context, filename string, content []byte) (string, error)
	StartBatch(ctx context.Context, storeID string, fileIDs []string) (Batch, error)
	GetBatch(ctx context.Context, storeID, batchID string) (Batch, error)
}

// RunStore persists run reports.
type RunStore interface {
	Save(ctx context.Context, report RunReport) error
	Get(ctx context.Context, runID string) (*RunReport, error)
	List(ctx context.Context, limit int) ([]RunReport, error)
}

// EventRecorder appends per-stage run events to a durable log.
type EventRecorder interface {
	RecordRun(ctx context.Context, report RunReport) error
}

// EventLog reads back the events recorded for a run, oldest first. An
// unknown run yields an empty slice.
type EventLog interface {
	List(ctx context.Context, runID string) ([]RunEvent, error)
}

// EventStore is the read-write event log.
type EventStore interface {
	EventRecorder
	EventLog
}

// WorkflowEngine starts pipeline runs on a durable execution backend and
// reports on them. The Temporal implementation lives in platform/temporal.
type WorkflowEngine interface {
	StartRun(ctx context.Context, runID string) error
	// GetStatus returns nil, nil when no run with runID exists.
	GetStatus(ctx context.Context, runID string) (*WorkflowStatus, error)
}
