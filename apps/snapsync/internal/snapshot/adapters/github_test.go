package adapters_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tilsley/snapsync/apps/snapsync/internal/platform/github"
	"github.com/tilsley/snapsync/apps/snapsync/internal/snapshot"
	"github.com/tilsley/snapsync/apps/snapsync/internal/snapshot/adapters"
	"github.com/tilsley/snapsync/pkg/fakeapi"
)

const apiKey = "sk-test"

func init() {
	gin.SetMode(gin.TestMode)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFakes(t *testing.T) (*fakeapi.Server, *httptest.Server) {
	t.Helper()
	fakes := fakeapi.New(apiKey, discardLogger())
	srv := httptest.NewServer(fakes.Handler())
	t.Cleanup(srv.Close)
	return fakes, srv
}

func newGitHub(t *testing.T) (*fakeapi.GitHub, *adapters.GitHub, string) {
	t.Helper()
	fakes, srv := newFakes(t)
	gh := adapters.NewGitHub(github.NewTokenClient("ghp_test", srv.URL), "acme", "docs")
	return fakes.GitHub, gh, srv.URL
}

// ─── Listing ──────────────────────────────────────────────────────────────────

func TestGitHub_RootURL(t *testing.T) {
	_, gh, base := newGitHub(t)

	assert.Equal(t, base+"/repos/acme/docs/contents/?ref=main", gh.RootURL("", "main"))
	assert.Equal(t, base+"/repos/acme/docs/contents/guides/intro?ref=feature%2Fx", gh.RootURL("/guides/intro/", "feature/x"))
}

func TestGitHub_ListRoot(t *testing.T) {
	fake, gh, base := newGitHub(t)
	fake.Seed("acme", "docs", "main", "README.md", []byte("# docs"))
	fake.Seed("acme", "docs", "main", "guides/intro.md", []byte("intro"))

	entries, err := gh.List(context.Background(), gh.RootURL("", "main"))

	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, snapshot.ListingEntry{
		Kind:        snapshot.KindFile,
		Path:        "README.md",
		DownloadURL: base + "/raw/acme/docs/main/README.md",
		URL:         base + "/repos/acme/docs/contents/README.md?ref=main",
	}, entries[0])
	assert.Equal(t, snapshot.KindDir, entries[1].Kind)
	assert.Equal(t, "guides", entries[1].Path)
	assert.Empty(t, entries[1].DownloadURL)
	assert.Equal(t, base+"/repos/acme/docs/contents/guides?ref=main", entries[1].URL)
}

func TestGitHub_ListFollowsDirectoryURL(t *testing.T) {
	fake, gh, _ := newGitHub(t)
	fake.Seed("acme", "docs", "main", "guides/intro.md", []byte("intro"))

	root, err := gh.List(context.Background(), gh.RootURL("", "main"))
	require.NoError(t, err)
	require.Len(t, root, 1)

	sub, err := gh.List(context.Background(), root[0].URL)

	require.NoError(t, err)
	require.Len(t, sub, 1)
	assert.Equal(t, "guides/intro.md", sub[0].Path)
}

func TestGitHub_ListSingleFileURL(t *testing.T) {
	fake, gh, _ := newGitHub(t)
	fake.Seed("acme", "docs", "main", "README.md", []byte("# docs"))

	entries, err := gh.List(context.Background(), gh.RootURL("README.md", "main"))

	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, snapshot.KindFile, entries[0].Kind)
}

func TestGitHub_ListNotFound(t *testing.T) {
	_, gh, _ := newGitHub(t)

	_, err := gh.List(context.Background(), gh.RootURL("missing", "main"))

	assert.True(t, snapshot.IsNotFound(err))
}

func TestGitHub_WalkAndFetchThroughFake(t *testing.T) {
	fake, gh, _ := newGitHub(t)
	fake.Seed("acme", "docs", "main", "a.md", []byte("alpha"))
	fake.Seed("acme", "docs", "main", "b.md", []byte("beta"))
	fake.Seed("acme", "docs", "main", "sub/c.md", []byte("gamma"))

	walker, err := snapshot.NewWalker(gh, nil, discardLogger())
	require.NoError(t, err)
	refs := walker.Walk(context.Background(), gh.RootURL("", "main"))
	require.Len(t, refs, 3)

	fetcher := snapshot.NewFetcher(nil, 0, discardLogger())
	body, err := fetcher.Fetch(context.Background(), refs[2].FetchURL)
	require.NoError(t, err)
	assert.Equal(t, "gamma", string(body))
}

// ─── Artifact repo ────────────────────────────────────────────────────────────

func TestGitHub_LookupMissing(t *testing.T) {
	_, gh, _ := newGitHub(t)

	sha, found, err := gh.Lookup(context.Background(), "snapshot.json", "main")

	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, sha)
}

func TestGitHub_CreateLookupUpdateDelete(t *testing.T) {
	fake, gh, _ := newGitHub(t)
	ctx := context.Background()

	commit, err := gh.Commit(ctx, "snapshot.json", "main", []byte(`{"v": 1}`), "", "create")
	require.NoError(t, err)
	assert.NotEmpty(t, commit)

	sha, found, err := gh.Lookup(ctx, "snapshot.json", "main")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, fakeapi.BlobSHA([]byte(`{"v": 1}`)), sha)

	_, err = gh.Commit(ctx, "snapshot.json", "main", []byte(`{"v": 2}`), sha, "update")
	require.NoError(t, err)
	got, _ := fake.File("acme", "docs", "main", "snapshot.json")
	assert.Equal(t, `{"v": 2}`, string(got))

	sha, _, err = gh.Lookup(ctx, "snapshot.json", "main")
	require.NoError(t, err)
	require.NoError(t, gh.Delete(ctx, "snapshot.json", "main", sha, "remove"))
	_, found, err = gh.Lookup(ctx, "snapshot.json", "main")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestGitHub_CommitWithoutTokenOnExistingFileFails(t *testing.T) {
	fake, gh, _ := newGitHub(t)
	fake.Seed("acme", "docs", "main", "snapshot.json", []byte("{}"))

	_, err := gh.Commit(context.Background(), "snapshot.json", "main", []byte(`{"a":"b"}`), "", "create")

	var apiErr *snapshot.RemoteAPIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "sha")
}

func TestGitHub_DeleteStaleSHA(t *testing.T) {
	fake, gh, _ := newGitHub(t)
	fake.Seed("acme", "docs", "main", "snapshot.json", []byte("{}"))

	err := gh.Delete(context.Background(), "snapshot.json", "main", "deadbeef", "remove")

	var apiErr *snapshot.RemoteAPIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
}

func TestGitHub_BranchesAreIndependent(t *testing.T) {
	fake, gh, _ := newGitHub(t)
	fake.Seed("acme", "docs", "main", "snapshot.json", []byte("{}"))

	_, found, err := gh.Lookup(context.Background(), "snapshot.json", "snapshots")

	require.NoError(t, err)
	assert.False(t, found)
}

func TestGitHub_ServerErrorCarriesHeaders(t *testing.T) {
	fake, gh, _ := newGitHub(t)
	fake.Fail(http.MethodPut, "/repos/acme/docs/contents/snapshot.json", http.StatusForbidden, "Resource not accessible by integration")

	_, err := gh.Commit(context.Background(), "snapshot.json", "main", []byte("{}"), "", "create")

	var apiErr *snapshot.RemoteAPIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Equal(t, "Resource not accessible by integration", apiErr.Body)
	assert.Contains(t, apiErr.Header.Get("Content-Type"), "application/json")
}

func TestGitHub_PublisherEndToEnd(t *testing.T) {
	fake, gh, base := newGitHub(t)
	fake.Seed("acme", "docs", "main", "data/snapshot.json", []byte(`{"old": "x"}`))
	p := snapshot.NewPublisher(gh, adapters.NewVectorStore(base+"/v1", apiKey, "OPENAI_API_KEY", nil), snapshot.PublishSettings{
		RepoPath:      "data/snapshot.json",
		Branch:        "main",
		CommitEnabled: true,
		IndexEnabled:  true,
		StoreName:     "docs",
		PollInterval:  time.Millisecond,
	}, discardLogger())

	report := p.Publish(context.Background(), writeTemp(t, `{"new": "y"}`))

	assert.False(t, report.Failed(), "%+v", report.Stages)
	got, _ := fake.File("acme", "docs", "main", "data/snapshot.json")
	assert.Equal(t, `{"new": "y"}`, string(got))
	assert.Equal(t, "completed", report.BatchStatus)
}

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "snapshot.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}
