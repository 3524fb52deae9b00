package fakeapi

import (
	"crypto/sha1" //nolint:gosec // git blob hashes are sha1
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
)

const defaultRef = "main"

// GitHub fakes the repository contents API: directory listings, raw
// downloads and sha-guarded create, update and delete.
type GitHub struct {
	mu      sync.RWMutex
	files   map[string][]byte // "owner/repo@ref" + ":" + path
	faults  map[string]fault  // "METHOD /url/path"
	commits int
	log     *slog.Logger
}

type fault struct {
	status  int
	message string
}

// NewGitHub creates an empty GitHub fake.
func NewGitHub(log *slog.Logger) *GitHub {
	return &GitHub{
		files:  make(map[string][]byte),
		faults: make(map[string]fault),
		log:    log,
	}
}

func fileKey(owner, repo, ref, p string) string {
	return owner + "/" + repo + "@" + ref + ":" + p
}

// Seed stores content at path on ref.
func (g *GitHub) Seed(owner, repo, ref, p string, content []byte) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.files[fileKey(owner, repo, ref, p)] = content
}

// File returns the content at path on ref.
func (g *GitHub) File(owner, repo, ref, p string) ([]byte, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	b, ok := g.files[fileKey(owner, repo, ref, p)]
	return b, ok
}

// Fail makes every request with method to urlPath answer status and message.
func (g *GitHub) Fail(method, urlPath string, status int, message string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.faults[method+" "+urlPath] = fault{status: status, message: message}
}

// BlobSHA returns the git blob hash the fake reports for content.
func BlobSHA(content []byte) string {
	h := sha1.New() //nolint:gosec // git blob hash
	fmt.Fprintf(h, "blob %d\x00", len(content))
	h.Write(content)
	return hex.EncodeToString(h.Sum(nil))
}

// Register mounts the GitHub routes on r.
func (g *GitHub) Register(r gin.IRoutes) {
	r.GET("/repos/:owner/:repo/contents/*path", g.getContents)
	r.PUT("/repos/:owner/:repo/contents/*path", g.putContents)
	r.DELETE("/repos/:owner/:repo/contents/*path", g.deleteContents)
	r.GET("/raw/:owner/:repo/:ref/*path", g.raw)
}

func (g *GitHub) injected(c *gin.Context) bool {
	g.mu.RLock()
	f, ok := g.faults[c.Request.Method+" "+c.Request.URL.Path]
	g.mu.RUnlock()
	if !ok {
		return false
	}
	c.JSON(f.status, gin.H{"message": f.message})
	return true
}

func (g *GitHub) fileObject(base, owner, repo, ref, p string, content []byte, withContent bool) gin.H {
	obj := gin.H{
		"type":         "file",
		"name":         path.Base(p),
		"path":         p,
		"sha":          BlobSHA(content),
		"size":         len(content),
		"url":          fmt.Sprintf("%s/repos/%s/%s/contents/%s?ref=%s", base, owner, repo, p, ref),
		"download_url": fmt.Sprintf("%s/raw/%s/%s/%s/%s", base, owner, repo, ref, p),
	}
	if withContent {
		obj["content"] = content
		obj["encoding"] = "base64"
	}
	return obj
}

// listDir returns the immediate children of dir on ref, sorted by name.
func (g *GitHub) listDir(base, owner, repo, ref, dir string) []gin.H {
	g.mu.RLock()
	defer g.mu.RUnlock()

	prefix := owner + "/" + repo + "@" + ref + ":"
	if dir != "" {
		prefix += dir + "/"
	}

	seen := map[string]bool{}
	var entries []gin.H
	for key, content := range g.files {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		rest := key[len(prefix):]
		name, _, isDir := strings.Cut(rest, "/")
		if seen[name] {
			continue
		}
		seen[name] = true

		p := name
		if dir != "" {
			p = dir + "/" + name
		}
		if !isDir {
			entries = append(entries, g.fileObject(base, owner, repo, ref, p, content, false))
			continue
		}
		entries = append(entries, gin.H{
			"type":         "dir",
			"name":         name,
			"path":         p,
			"sha":          BlobSHA([]byte(p)),
			"url":          fmt.Sprintf("%s/repos/%s/%s/contents/%s?ref=%s", base, owner, repo, p, ref),
			"download_url": nil,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i]["name"].(string) < entries[j]["name"].(string)
	})
	return entries
}

// getContents returns a file object for an exact path match or a listing
// array for a directory, mirroring GET /repos/:owner/:repo/contents/:path.
func (g *GitHub) getContents(c *gin.Context) {
	if g.injected(c) {
		return
	}
	owner, repo := c.Param("owner"), c.Param("repo")
	p := strings.Trim(c.Param("path"), "/")
	ref := c.DefaultQuery("ref", defaultRef)
	base := baseURL(c)

	if p != "" {
		if content, ok := g.File(owner, repo, ref, p); ok {
			c.JSON(http.StatusOK, g.fileObject(base, owner, repo, ref, p, content, true))
			return
		}
	}
	if entries := g.listDir(base, owner, repo, ref, p); len(entries) > 0 {
		c.JSON(http.StatusOK, entries)
		return
	}
	if p == "" {
		c.JSON(http.StatusOK, []gin.H{})
		return
	}
	c.JSON(http.StatusNotFound, gin.H{"message": "Not Found"})
}

type writeRequest struct {
	Message string  `json:"message"`
	Content []byte  `json:"content"`
	SHA     *string `json:"sha"`
	Branch  *string `json:"branch"`
}

func (w writeRequest) branch() string {
	if w.Branch == nil || *w.Branch == "" {
		return defaultRef
	}
	return *w.Branch
}

func (g *GitHub) nextCommit() string {
	g.commits++
	return fmt.Sprintf("%040x", g.commits)
}

// putContents creates or updates a file. Updating requires the current sha.
func (g *GitHub) putContents(c *gin.Context) {
	if g.injected(c) {
		return
	}
	owner, repo := c.Param("owner"), c.Param("repo")
	p := strings.Trim(c.Param("path"), "/")

	var req writeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Problems parsing JSON"})
		return
	}
	if req.Message == "" {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"message": `Invalid request.\n\n"message" wasn't supplied.`})
		return
	}
	ref := req.branch()
	key := fileKey(owner, repo, ref, p)

	g.mu.Lock()
	existing, exists := g.files[key]
	switch {
	case exists && req.SHA == nil:
		g.mu.Unlock()
		c.JSON(http.StatusUnprocessableEntity, gin.H{"message": `Invalid request.\n\n"sha" wasn't supplied.`})
		return
	case exists && *req.SHA != BlobSHA(existing):
		g.mu.Unlock()
		c.JSON(http.StatusConflict, gin.H{"message": fmt.Sprintf("%s does not match %s", p, *req.SHA)})
		return
	}
	g.files[key] = req.Content
	commit := g.nextCommit()
	g.mu.Unlock()

	status := http.StatusCreated
	if exists {
		status = http.StatusOK
	}
	g.log.Info("file committed", "repo", owner+"/"+repo, "path", p, "branch", ref, "bytes", len(req.Content))
	c.JSON(status, gin.H{
		"content": g.fileObject(baseURL(c), owner, repo, ref, p, req.Content, false),
		"commit":  gin.H{"sha": commit, "message": req.Message},
	})
}

// deleteContents removes a file, guarded by its current sha.
func (g *GitHub) deleteContents(c *gin.Context) {
	if g.injected(c) {
		return
	}
	owner, repo := c.Param("owner"), c.Param("repo")
	p := strings.Trim(c.Param("path"), "/")

	var req writeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Problems parsing JSON"})
		return
	}
	if req.SHA == nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"message": `Invalid request.\n\n"sha" wasn't supplied.`})
		return
	}
	ref := req.branch()
	key := fileKey(owner, repo, ref, p)

	g.mu.Lock()
	existing, exists := g.files[key]
	switch {
	case !exists:
		g.mu.Unlock()
		c.JSON(http.StatusNotFound, gin.H{"message": "Not Found"})
		return
	case *req.SHA != BlobSHA(existing):
		g.mu.Unlock()
		c.JSON(http.StatusConflict, gin.H{"message": fmt.Sprintf("%s does not match %s", p, *req.SHA)})
		return
	}
	delete(g.files, key)
	commit := g.nextCommit()
	g.mu.Unlock()

	g.log.Info("file deleted", "repo", owner+"/"+repo, "path", p, "branch", ref)
	c.JSON(http.StatusOK, gin.H{
		"content": nil,
		"commit":  gin.H{"sha": commit, "message": req.Message},
	})
}

func (g *GitHub) raw(c *gin.Context) {
	if g.injected(c) {
		return
	}
	p := strings.Trim(c.Param("path"), "/")
	content, ok := g.File(c.Param("owner"), c.Param("repo"), c.Param("ref"), p)
	if !ok {
		c.String(http.StatusNotFound, "404: Not Found")
		return
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", content)
}
