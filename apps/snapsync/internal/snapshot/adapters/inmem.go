package adapters

import (
	"context"
	"crypto/sha1" //nolint:gosec // git content hashes are sha1
	"encoding/hex"
	"fmt"
	"net/http"
	"sync"

	"github.com/tilsley/snapsync/apps/snapsync/internal/snapshot"
)

// Compile-time interface compliance checks.
var (
	_ snapshot.Lister       = (*InMemLister)(nil)
	_ snapshot.ArtifactRepo = (*InMemRepo)(nil)
	_ snapshot.Index        = (*InMemIndex)(nil)
)

// ─── InMemLister ──────────────────────────────────────────────────────────────

// InMemLister is a snapshot.Lister over a fixed set of listing URLs.
type InMemLister struct {
	mu    sync.Mutex
	dirs  map[string][]snapshot.ListingEntry
	fails map[string]error
	calls []string
}

// NewInMemLister creates an empty InMemLister.
func NewInMemLister() *InMemLister {
	return &InMemLister{
		dirs:  make(map[string][]snapshot.ListingEntry),
		fails: make(map[string]error),
	}
}

// AddDir seeds the children returned for listingURL.
func (l *InMemLister) AddDir(listingURL string, entries ...snapshot.ListingEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dirs[listingURL] = append(l.dirs[listingURL], entries...)
}

// FailDir makes listings of listingURL return err.
func (l *InMemLister) FailDir(listingURL string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fails[listingURL] = err
}

// Calls returns every listing URL requested, in order.
func (l *InMemLister) Calls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.calls))
	copy(out, l.calls)
	return out
}

// List implements snapshot.Lister. Unknown URLs behave like a 404.
func (l *InMemLister) List(_ context.Context, listingURL string) ([]snapshot.ListingEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, listingURL)
	if err, ok := l.fails[listingURL]; ok {
		return nil, err
	}
	entries, ok := l.dirs[listingURL]
	if !ok {
		return nil, &snapshot.RemoteAPIError{Op: "GET " + listingURL, StatusCode: http.StatusNotFound, Body: "Not Found"}
	}
	out := make([]snapshot.ListingEntry, len(entries))
	copy(out, entries)
	return out, nil
}

// FileEntry is shorthand for a file listing entry.
func FileEntry(path, downloadURL string) snapshot.ListingEntry {
	return snapshot.ListingEntry{Kind: snapshot.KindFile, Path: path, DownloadURL: downloadURL}
}

// DirEntry is shorthand for a directory listing entry.
func DirEntry(path, listingURL string) snapshot.ListingEntry {
	return snapshot.ListingEntry{Kind: snapshot.KindDir, Path: path, URL: listingURL}
}

// ─── InMemRepo ────────────────────────────────────────────────────────────────

// RepoCall is one mutating call observed by InMemRepo.
type RepoCall struct {
	Op     string
	Path   string
	Branch string
	SHA    string
}

// InMemRepo is a snapshot.ArtifactRepo that enforces content-hash tokens the
// way the GitHub contents API does.
type InMemRepo struct {
	mu      sync.Mutex
	files   map[string][]byte // "branch:path" -> content
	calls   []RepoCall
	commits int

	// Injected failures, returned before any state change.
	LookupErr error
	DeleteErr error
	CommitErr error
}

// NewInMemRepo creates an empty InMemRepo.
func NewInMemRepo() *InMemRepo {
	return &InMemRepo{files: make(map[string][]byte)}
}

// SetFile seeds path on branch.
func (r *InMemRepo) SetFile(branch, path string, content []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files[branch+":"+path] = content
}

// File returns the current content of path on branch.
func (r *InMemRepo) File(branch, path string) ([]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.files[branch+":"+path]
	return b, ok
}

// Calls returns every Delete and Commit call, in order.
func (r *InMemRepo) Calls() []RepoCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RepoCall, len(r.calls))
	copy(out, r.calls)
	return out
}

// ContentSHA returns the git blob hash of content.
func ContentSHA(content []byte) string {
	h := sha1.New() //nolint:gosec // git blob hash
	fmt.Fprintf(h, "blob %d\x00", len(content))
	h.Write(content)
	return hex.EncodeToString(h.Sum(nil))
}

// Lookup implements snapshot.ArtifactRepo.
func (r *InMemRepo) Lookup(_ context.Context, path, branch string) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.LookupErr != nil {
		return "", false, r.LookupErr
	}
	b, ok := r.files[branch+":"+path]
	if !ok {
		return "", false, nil
	}
	return ContentSHA(b), true, nil
}

// Delete implements snapshot.ArtifactRepo.
func (r *InMemRepo) Delete(_ context.Context, path, branch, sha, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, RepoCall{Op: "delete", Path: path, Branch: branch, SHA: sha})
	if r.DeleteErr != nil {
		return r.DeleteErr
	}
	key := branch + ":" + path
	b, ok := r.files[key]
	if !ok {
		return &snapshot.RemoteAPIError{Op: "DELETE " + path, StatusCode: http.StatusNotFound, Body: "Not Found"}
	}
	if ContentSHA(b) != sha {
		return &snapshot.RemoteAPIError{Op: "DELETE " + path, StatusCode: http.StatusConflict, Body: "sha does not match"}
	}
	delete(r.files, key)
	return nil
}

// Commit implements snapshot.ArtifactRepo.
func (r *InMemRepo) Commit(_ context.Context, path, branch string, content []byte, sha, _ string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, RepoCall{Op: "commit", Path: path, Branch: branch, SHA: sha})
	if r.CommitErr != nil {
		return "", r.CommitErr
	}
	key := branch + ":" + path
	if existing, ok := r.files[key]; ok {
		if sha == "" {
			return "", &snapshot.RemoteAPIError{Op: "PUT " + path, StatusCode: http.StatusUnprocessableEntity, Body: `"sha" wasn't supplied.`}
		}
		if ContentSHA(existing) != sha {
			return "", &snapshot.RemoteAPIError{Op: "PUT " + path, StatusCode: http.StatusConflict, Body: "sha does not match"}
		}
	}
	r.files[key] = append([]byte(nil), content...)
	r.commits++
	return fmt.Sprintf("commit-%d", r.commits), nil
}

// ─── InMemIndex ───────────────────────────────────────────────────────────────

type indexDoc struct {
	fileID   string
	filename string
}

// InMemIndex is a snapshot.Index that completes batches after a configurable
// number of polls.
type InMemIndex struct {
	mu      sync.Mutex
	key     string
	stores  map[string]string // name -> id
	docs    map[string][]indexDoc
	files   map[string][]byte
	batches map[string]*inmemBatch
	nextID  int

	// PendingPolls is how many GetBatch calls report in_progress before the
	// batch reaches FinalStatus. A new batch is always in_progress.
	PendingPolls int
	// FinalStatus defaults to "completed".
	FinalStatus string

	UploadErr error
	BatchErr  error
}

type inmemBatch struct {
	storeID string
	fileIDs []string
	polls   int
}

// NewInMemIndex creates an InMemIndex. An empty key makes Ready fail.
func NewInMemIndex(key string) *InMemIndex {
	return &InMemIndex{
		key:     key,
		stores:  make(map[string]string),
		docs:    make(map[string][]indexDoc),
		files:   make(map[string][]byte),
		batches: make(map[string]*inmemBatch),
	}
}

// Documents returns the filenames attached to storeID.
func (x *InMemIndex) Documents(storeID string) []string {
	x.mu.Lock()
	defer x.mu.Unlock()
	out := make([]string, 0, len(x.docs[storeID]))
	for _, d := range x.docs[storeID] {
		out = append(out, d.filename)
	}
	return out
}

// Uploaded returns the content of an uploaded file.
func (x *InMemIndex) Uploaded(fileID string) ([]byte, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	b, ok := x.files[fileID]
	return b, ok
}

// Ready implements snapshot.Index.
func (x *InMemIndex) Ready() error {
	if x.key == "" {
		return &snapshot.CredentialError{Name: "OPENAI_API_KEY"}
	}
	return nil
}

func (x *InMemIndex) id(prefix string) string {
	x.nextID++
	return fmt.Sprintf("%s_%d", prefix, x.nextID)
}

// FindStore implements snapshot.Index.
func (x *InMemIndex) FindStore(_ context.Context, name string) (string, bool, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	id, ok := x.stores[name]
	return id, ok, nil
}

// CreateStore implements snapshot.Index.
func (x *InMemIndex) CreateStore(_ context.Context, name string) (string, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	id := x.id("vs")
	x.stores[name] = id
	return id, nil
}

// RemoveDocuments implements snapshot.Index.
func (x *InMemIndex) RemoveDocuments(_ context.Context, storeID, filename string) (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	kept := x.docs[storeID][:0]
	removed := 0
	for _, d := range x.docs[storeID] {
		if d.filename == filename {
			delete(x.files, d.fileID)
			removed++
			continue
		}
		kept = append(kept, d)
	}
	x.docs[storeID] = kept
	return removed, nil
}

// Upload implements snapshot.Index.
func (x *InMemIndex) Upload(_ context.Context, filename string, content []byte) (string, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.UploadErr != nil {
		return "", x.UploadErr
	}
	id := x.id("file")
	x.files[id] = append([]byte(nil), content...)
	x.docs[""] = append(x.docs[""], indexDoc{fileID: id, filename: filename})
	return id, nil
}

// StartBatch implements snapshot.Index.
func (x *InMemIndex) StartBatch(_ context.Context, storeID string, fileIDs []string) (snapshot.Batch, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.BatchErr != nil {
		return snapshot.Batch{}, x.BatchErr
	}
	id := x.id("vsfb")
	x.batches[id] = &inmemBatch{storeID: storeID, fileIDs: fileIDs}
	x.attach(storeID, fileIDs)
	return x.view(id), nil
}

// GetBatch implements snapshot.Index.
func (x *InMemIndex) GetBatch(_ context.Context, _, batchID string) (snapshot.Batch, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	b, ok := x.batches[batchID]
	if !ok {
		return snapshot.Batch{}, &snapshot.RemoteAPIError{Op: "GET batch " + batchID, StatusCode: http.StatusNotFound, Body: "No such batch"}
	}
	b.polls++
	return x.view(batchID), nil
}

// attach moves uploaded files from the unattached pool into storeID.
func (x *InMemIndex) attach(storeID string, fileIDs []string) {
	want := make(map[string]bool, len(fileIDs))
	for _, id := range fileIDs {
		want[id] = true
	}
	pool := x.docs[""][:0]
	for _, d := range x.docs[""] {
		if want[d.fileID] {
			x.docs[storeID] = append(x.docs[storeID], d)
			continue
		}
		pool = append(pool, d)
	}
	x.docs[""] = pool
}

func (x *InMemIndex) view(batchID string) snapshot.Batch {
	b := x.batches[batchID]
	n := len(b.fileIDs)
	if b.polls == 0 || b.polls <= x.PendingPolls {
		return snapshot.Batch{ID: batchID, Status: "in_progress", Counts: snapshot.FileCounts{InProgress: n, Total: n}}
	}
	status := x.FinalStatus
	if status == "" {
		status = "completed"
	}
	counts := snapshot.FileCounts{Total: n}
	switch status {
	case "completed":
		counts.Completed = n
	case "failed":
		counts.Failed = n
	case "cancelled":
		counts.Cancelled = n
	}
	return snapshot.Batch{ID: batchID, Status: status, Counts: counts}
}
