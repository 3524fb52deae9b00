package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	gogithub "github.com/google/go-github/v75/github"

	"github.com/tilsley/snapsync/apps/snapsync/internal/snapshot"
)

var (
	_ snapshot.Lister       = (*GitHub)(nil)
	_ snapshot.ArtifactRepo = (*GitHub)(nil)
)

// GitHub implements snapshot.Lister and snapshot.ArtifactRepo over the
// contents API of a single repository. Wire it up with an authenticated
// *github.Client from platform/github.
type GitHub struct {
	gh    *gogithub.Client
	owner string
	repo  string
}

// NewGitHub creates a GitHub adapter for owner/repo.
func NewGitHub(gh *gogithub.Client, owner, repo string) *GitHub {
	return &GitHub{gh: gh, owner: owner, repo: repo}
}

// RootURL returns the contents listing URL of dir at ref.
func (g *GitHub) RootURL(dir, ref string) string {
	escaped := (&url.URL{Path: strings.Trim(dir, "/")}).String()
	return fmt.Sprintf("%srepos/%s/%s/contents/%s?ref=%s",
		g.gh.BaseURL.String(), g.owner, g.repo, escaped, url.QueryEscape(ref))
}

// List fetches a listing URL as returned in the "url" field of a directory
// entry. A URL that names a single file yields a one-element listing.
func (g *GitHub) List(ctx context.Context, listingURL string) ([]snapshot.ListingEntry, error) {
	req, err := g.gh.NewRequest(http.MethodGet, listingURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build listing request: %w", err)
	}

	var raw json.RawMessage
	if _, err := g.gh.Do(ctx, req, &raw); err != nil {
		return nil, apiError("GET "+listingURL, err)
	}

	var contents []*gogithub.RepositoryContent
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '{' {
		var single gogithub.RepositoryContent
		if err := json.Unmarshal(trimmed, &single); err != nil {
			return nil, fmt.Errorf("decode listing %s: %w", listingURL, err)
		}
		contents = append(contents, &single)
	} else if err := json.Unmarshal(raw, &contents); err != nil {
		return nil, fmt.Errorf("decode listing %s: %w", listingURL, err)
	}

	entries := make([]snapshot.ListingEntry, 0, len(contents))
	for _, c := range contents {
		entries = append(entries, snapshot.ListingEntry{
			Kind:        snapshot.EntryKind(c.GetType()),
			Path:        c.GetPath(),
			DownloadURL: c.GetDownloadURL(),
			URL:         c.GetURL(),
		})
	}
	return entries, nil
}

// Lookup returns the blob SHA of path on branch.
func (g *GitHub) Lookup(ctx context.Context, path, branch string) (string, bool, error) {
	fc, _, _, err := g.gh.Repositories.GetContents(ctx, g.owner, g.repo, path,
		&gogithub.RepositoryContentGetOptions{Ref: branch})
	if err != nil {
		apiErr := apiError("GET contents "+path, err)
		if snapshot.IsNotFound(apiErr) {
			return "", false, nil
		}
		return "", false, apiErr
	}
	if fc == nil {
		return "", false, fmt.Errorf("path %s is a directory, not a file", path)
	}
	return fc.GetSHA(), true, nil
}

// Delete removes path from branch, guarded by sha.
func (g *GitHub) Delete(ctx context.Context, path, branch, sha, message string) error {
	_, _, err := g.gh.Repositories.DeleteFile(ctx, g.owner, g.repo, path, &gogithub.RepositoryContentFileOptions{
		Message: gogithub.Ptr(message),
		SHA:     gogithub.Ptr(sha),
		Branch:  gogithub.Ptr(branch),
	})
	if err != nil {
		return apiError("DELETE contents "+path, err)
	}
	return nil
}

// Commit creates path on branch, or updates it when sha is set.
func (g *GitHub) Commit(ctx context.Context, path, branch string, content []byte, sha, message string) (string, error) {
	opts := &gogithub.RepositoryContentFileOptions{
		Message: gogithub.Ptr(message),
		Content: content,
		Branch:  gogithub.Ptr(branch),
	}

	var (
		res *gogithub.RepositoryContentResponse
		err error
	)
	if sha == "" {
		res, _, err = g.gh.Repositories.CreateFile(ctx, g.owner, g.repo, path, opts)
	} else {
		opts.SHA = gogithub.Ptr(sha)
		res, _, err = g.gh.Repositories.UpdateFile(ctx, g.owner, g.repo, path, opts)
	}
	if err != nil {
		return "", apiError("PUT contents "+path, err)
	}
	return res.Commit.GetSHA(), nil
}

// apiError converts go-github error responses into *snapshot.RemoteAPIError so
// callers can log status, headers and body. Transport errors pass through.
func apiError(op string, err error) error {
	var ghErr *gogithub.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		body := ghErr.Message
		if len(ghErr.Errors) > 0 {
			detail, _ := json.Marshal(ghErr.Errors)
			body += " " + string(detail)
		}
		return &snapshot.RemoteAPIError{
			Op:         op,
			StatusCode: ghErr.Response.StatusCode,
			Header:     ghErr.Response.Header,
			Body:       body,
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
