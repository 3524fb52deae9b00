package snapshot

import "time"

// EntryKind distinguishes files from directories in a repository listing.
type EntryKind string

// Listing entry kinds, matching the contents API "type" field.
const (
	KindFile EntryKind = "file"
	KindDir  EntryKind = "dir"
)

// ListingEntry is one child returned by a directory listing.
type ListingEntry struct {
	Kind EntryKind
	Path string
	// DownloadURL is the raw content URL (files only).
	DownloadURL string
	// URL is the entry's own listing URL; for directories it is what gets walked next.
	URL string
}

// FileRef is a file discovered by the Walker.
type FileRef struct {
	Path     string
	FetchURL string
	Kind     EntryKind
}

// DecodedEntry is a fetched file decoded to text.
type DecodedEntry struct {
	URL        string
	Text       string
	Encoding   string
	Confidence float64 // in [0,1]
}

// RunStatus summarises how a pipeline run ended.
type RunStatus string

// Run statuses. NoFiles and InvalidSnapshot are clean early terminations.
const (
	StatusCollected           RunStatus = "collected"
	StatusCompleted           RunStatus = "completed"
	StatusCompletedWithErrors RunStatus = "completed_with_errors"
	StatusNoFiles             RunStatus = "no_files"
	StatusInvalidSnapshot     RunStatus = "invalid_snapshot"
	StatusFailed              RunStatus = "failed"
)

// CollectResult is the outcome of walk → fetch → decode → assemble → write → validate.
type CollectResult struct {
	Status          RunStatus `json:"status"`
	ArtifactPath    string    `json:"artifactPath,omitempty"`
	FilesDiscovered int       `json:"filesDiscovered"`
	Entries         int       `json:"entries"`
	FetchFailures   []string  `json:"fetchFailures,omitempty"`
	DecodeFailures  []string  `json:"decodeFailures,omitempty"`
	Error           string    `json:"error,omitempty"`
}

// Stage names reported by the Publisher.
const (
	StageDelete = "delete"
	StageCommit = "commit"
	StageIndex  = "index"
)

// StageResult records the outcome of one publish stage.
type StageResult struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Skipped bool   `json:"skipped,omitempty"`
	Detail  string `json:"detail,omitempty"`
	Error   string `json:"error,omitempty"`
}

// FileCounts are per-file ingestion counts reported by the index for a batch.
type FileCounts struct {
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Cancelled  int `json:"cancelled"`
	Total      int `json:"total"`
}

// PublishReport is the outcome of the three publish stages.
type PublishReport struct {
	Stages      []StageResult `json:"stages"`
	RemoteSHA   string        `json:"remoteSha,omitempty"`
	CommitSHA   string        `json:"commitSha,omitempty"`
	StoreID     string        `json:"storeId,omitempty"`
	BatchID     string        `json:"batchId,omitempty"`
	BatchStatus string        `json:"batchStatus,omitempty"`
	FileCounts  *FileCounts   `json:"fileCounts,omitempty"`
}

// Stage returns the named stage result, or nil if it was never recorded.
func (r PublishReport) Stage(name string) *StageResult {
	for i := range r.Stages {
		if r.Stages[i].Name == name {
			return &r.Stages[i]
		}
	}
	return nil
}

// Failed reports whether any stage ran and failed.
func (r PublishReport) Failed() bool {
	for _, s := range r.Stages {
		if !s.OK && !s.Skipped {
			return true
		}
	}
	return false
}

// RunReport is the full record of one pipeline run.
type RunReport struct {
	RunID      string         `json:"runId"`
	Status     RunStatus      `json:"status"`
	StartedAt  time.Time      `json:"startedAt"`
	FinishedAt time.Time      `json:"finishedAt"`
	Collect    CollectResult  `json:"collect"`
	Publish    *PublishReport `json:"publish,omitempty"`
}

// NewRunReport combines collect and publish outcomes into a RunReport.
// publish is nil when the run ended before publishing.
func NewRunReport(runID string, started, finished time.Time, collect CollectResult, publish *PublishReport) RunReport {
	status := collect.Status
	if publish != nil {
		status = StatusCompleted
		if publish.Failed() {
			status = StatusCompletedWithErrors
		}
	}
	return RunReport{
		RunID:      runID,
		Status:     status,
		StartedAt:  started,
		FinishedAt: finished,
		Collect:    collect,
		Publish:    publish,
	}
}

// RunEvent is one row of the run event log: a summary row for the run, with
// Stage "run", followed by one row per publish stage.
type RunEvent struct {
	RunID      string    `json:"runId"`
	Stage      string    `json:"stage"`
	Status     string    `json:"status"`
	Detail     string    `json:"detail,omitempty"`
	Error      string    `json:"error,omitempty"`
	Entries    *int      `json:"entries,omitempty"`
	DurationMs *int64    `json:"durationMs,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// WorkflowStatus is the execution backend's view of a run.
type WorkflowStatus struct {
	RunID         string     `json:"runId"`
	RuntimeStatus string     `json:"runtimeStatus"`
	Phase         string     `json:"phase,omitempty"`
	Report        *RunReport `json:"report,omitempty"`
}
