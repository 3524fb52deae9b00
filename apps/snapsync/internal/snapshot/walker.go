package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gobwas/glob"
)

// DefaultExcludes keeps log files out of every snapshot.
var DefaultExcludes = []string{"*.log", "**/*.log"}

// Walker discovers every file reachable from a root directory listing.
type Walker struct {
	lister   Lister
	excludes []glob.Glob
	log      *slog.Logger
}

// NewWalker compiles the exclusion patterns and returns a Walker.
// Patterns match repository paths with "/" as the separator; "**" crosses directories.
func NewWalker(lister Lister, excludes []string, log *slog.Logger) (*Walker, error) {
	compiled := make([]glob.Glob, 0, len(excludes))
	for _, pattern := range excludes {
		g, err := glob.Compile(strings.TrimPrefix(pattern, "/"), '/')
		if err != nil {
			return nil, fmt.Errorf("compile exclude pattern %q: %w", pattern, err)
		}
		compiled = append(compiled, g)
	}
	return &Walker{lister: lister, excludes: compiled, log: log}, nil
}

// Walk lists rootURL breadth-first and returns a FileRef for every file found.
//
// A failing or empty root listing is logged once and yields no files. A failing
// sub-directory listing is logged and that subtree is skipped.
func (w *Walker) Walk(ctx context.Context, rootURL string) []FileRef {
	w.log.Info("walking repository", "url", rootURL)

	var refs []FileRef
	queue := []string{rootURL}
	visited := map[string]bool{rootURL: true}

	for len(queue) > 0 {
		if ctx.Err() != nil {
			w.log.Error("walk cancelled", "error", ctx.Err(), "pending", len(queue))
			return refs
		}
		listingURL := queue[0]
		queue = queue[1:]

		entries, err := w.lister.List(ctx, listingURL)
		if err != nil {
			w.log.Error("listing failed", "url", listingURL, "error", err)
			continue
		}
		if len(entries) == 0 {
			w.log.Error("no contents found", "url", listingURL)
			continue
		}

		for _, e := range entries {
			if w.excluded(e.Path) {
				w.log.Debug("excluded path", "path", e.Path)
				continue
			}
			switch e.Kind {
			case KindFile:
				if e.DownloadURL == "" {
					w.log.Warn("file has no download url", "path", e.Path)
					continue
				}
				refs = append(refs, FileRef{Path: e.Path, FetchURL: e.DownloadURL, Kind: KindFile})
				w.log.Info("added file url", "url", e.DownloadURL)
			case KindDir:
				if e.URL == "" || visited[e.URL] {
					continue
				}
				visited[e.URL] = true
				queue = append(queue, e.URL)
			default:
				w.log.Debug("skipping entry", "path", e.Path, "type", e.Kind)
			}
		}
	}
	return refs
}

func (w *Walker) excluded(path string) bool {
	for _, g := range w.excludes {
		if g.Match(path) {
			return true
		}
	}
	return false
}
