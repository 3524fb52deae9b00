package fakeapi

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
)

const defaultPageLimit = 20

// VectorStore fakes the OpenAI files and vector store endpoints used for
// ingestion. Batches report in_progress for a configurable number of polls.
type VectorStore struct {
	mu      sync.Mutex
	apiKey  string
	stores  []*vsStore
	files   map[string]*vsFile
	batches map[string]*vsBatch
	nextID  int

	pendingPolls int
	finalStatus  string
	faults       map[string]fault
	log          *slog.Logger
}

type vsStore struct {
	ID      string
	Name    string
	FileIDs []string
}

type vsFile struct {
	ID       string
	Filename string
	Purpose  string
	Content  []byte
}

type vsBatch struct {
	ID      string
	StoreID string
	FileIDs []string
	polls   int
}

// NewVectorStore creates an empty vector store fake guarded by apiKey.
func NewVectorStore(apiKey string, log *slog.Logger) *VectorStore {
	return &VectorStore{
		apiKey:      apiKey,
		files:       make(map[string]*vsFile),
		batches:     make(map[string]*vsBatch),
		finalStatus: "completed",
		faults:      make(map[string]fault),
		log:         log,
	}
}

// SetBatchBehaviour controls how many polls a batch stays in_progress and the
// status it then settles on.
func (v *VectorStore) SetBatchBehaviour(pendingPolls int, finalStatus string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pendingPolls = pendingPolls
	v.finalStatus = finalStatus
}

// Fail makes every request with method to urlPath answer status and message.
func (v *VectorStore) Fail(method, urlPath string, status int, message string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.faults[method+" "+urlPath] = fault{status: status, message: message}
}

// SeedStore creates a store and returns its ID.
func (v *VectorStore) SeedStore(name string) string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.createStore(name).ID
}

// StoreFilenames returns the filenames attached to a store.
func (v *VectorStore) StoreFilenames(storeID string) []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	s := v.store(storeID)
	if s == nil {
		return nil
	}
	out := make([]string, 0, len(s.FileIDs))
	for _, id := range s.FileIDs {
		if f, ok := v.files[id]; ok {
			out = append(out, f.Filename)
		}
	}
	return out
}

// FileCount returns how many uploaded files exist.
func (v *VectorStore) FileCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.files)
}

// Register mounts the vector store routes on r.
func (v *VectorStore) Register(r *gin.RouterGroup) {
	r.Use(v.authenticate, v.inject)
	r.GET("/vector_stores", v.listStores)
	r.POST("/vector_stores", v.postStore)
	r.GET("/vector_stores/:id/files", v.listStoreFiles)
	r.DELETE("/vector_stores/:id/files/:fid", v.detachFile)
	r.POST("/vector_stores/:id/file_batches", v.postBatch)
	r.GET("/vector_stores/:id/file_batches/:bid", v.getBatch)
	r.POST("/files", v.postFile)
	r.GET("/files/:fid", v.getFile)
	r.DELETE("/files/:fid", v.deleteFile)
}

func apiError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": gin.H{
		"message": message,
		"type":    "invalid_request_error",
	}})
}

func (v *VectorStore) authenticate(c *gin.Context) {
	if c.GetHeader("Authorization") != "Bearer "+v.apiKey {
		apiError(c, http.StatusUnauthorized, "Incorrect API key provided")
		return
	}
	c.Next()
}

func (v *VectorStore) inject(c *gin.Context) {
	v.mu.Lock()
	f, ok := v.faults[c.Request.Method+" "+c.Request.URL.Path]
	v.mu.Unlock()
	if ok {
		apiError(c, f.status, f.message)
		return
	}
	c.Next()
}

func (v *VectorStore) id(prefix string) string {
	v.nextID++
	return fmt.Sprintf("%s_%06d", prefix, v.nextID)
}

func (v *VectorStore) createStore(name string) *vsStore {
	s := &vsStore{ID: v.id("vs"), Name: name}
	v.stores = append(v.stores, s)
	return s
}

func (v *VectorStore) store(id string) *vsStore {
	for _, s := range v.stores {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// listPage applies limit/after cursor pagination over ids.
func listPage(c *gin.Context, ids []string, render func(id string) gin.H) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPageLimit)))
	if err != nil || limit <= 0 {
		limit = defaultPageLimit
	}
	start := 0
	if after := c.Query("after"); after != "" {
		for i, id := range ids {
			if id == after {
				start = i + 1
				break
			}
		}
	}
	end := min(start+limit, len(ids))
	start = min(start, end)

	data := make([]gin.H, 0, end-start)
	for _, id := range ids[start:end] {
		data = append(data, render(id))
	}
	resp := gin.H{"object": "list", "data": data, "has_more": end < len(ids)}
	if len(data) > 0 {
		resp["first_id"] = ids[start]
		resp["last_id"] = ids[end-1]
	}
	c.JSON(http.StatusOK, resp)
}

func (v *VectorStore) listStores(c *gin.Context) {
	v.mu.Lock()
	defer v.mu.Unlock()
	ids := make([]string, 0, len(v.stores))
	byID := make(map[string]*vsStore, len(v.stores))
	for _, s := range v.stores {
		ids = append(ids, s.ID)
		byID[s.ID] = s
	}
	listPage(c, ids, func(id string) gin.H {
		s := byID[id]
		return gin.H{"id": s.ID, "object": "vector_store", "name": s.Name}
	})
}

func (v *VectorStore) postStore(c *gin.Context) {
	var req struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		apiError(c, http.StatusBadRequest, err.Error())
		return
	}
	v.mu.Lock()
	s := v.createStore(req.Name)
	v.mu.Unlock()
	v.log.Info("vector store created", "id", s.ID, "name", s.Name)
	c.JSON(http.StatusOK, gin.H{"id": s.ID, "object": "vector_store", "name": s.Name})
}

func (v *VectorStore) listStoreFiles(c *gin.Context) {
	v.mu.Lock()
	defer v.mu.Unlock()
	s := v.store(c.Param("id"))
	if s == nil {
		apiError(c, http.StatusNotFound, "No vector store found")
		return
	}
	listPage(c, s.FileIDs, func(id string) gin.H {
		return gin.H{"id": id, "object": "vector_store.file", "vector_store_id": s.ID, "status": "completed"}
	})
}

func (v *VectorStore) detachFile(c *gin.Context) {
	v.mu.Lock()
	defer v.mu.Unlock()
	s := v.store(c.Param("id"))
	if s == nil {
		apiError(c, http.StatusNotFound, "No vector store found")
		return
	}
	fid := c.Param("fid")
	for i, id := range s.FileIDs {
		if id == fid {
			s.FileIDs = append(s.FileIDs[:i], s.FileIDs[i+1:]...)
			c.JSON(http.StatusOK, gin.H{"id": fid, "object": "vector_store.file.deleted", "deleted": true})
			return
		}
	}
	apiError(c, http.StatusNotFound, "No file found with id "+fid)
}

func (v *VectorStore) postFile(c *gin.Context) {
	purpose := c.PostForm("purpose")
	fh, err := c.FormFile("file")
	if err != nil {
		apiError(c, http.StatusBadRequest, "file is required")
		return
	}
	f, err := fh.Open()
	if err != nil {
		apiError(c, http.StatusBadRequest, err.Error())
		return
	}
	defer f.Close() //nolint:errcheck // multipart file close errors are non-actionable
	content, err := io.ReadAll(f)
	if err != nil {
		apiError(c, http.StatusBadRequest, err.Error())
		return
	}

	v.mu.Lock()
	file := &vsFile{ID: v.id("file"), Filename: fh.Filename, Purpose: purpose, Content: content}
	v.files[file.ID] = file
	v.mu.Unlock()

	v.log.Info("file uploaded", "id", file.ID, "filename", file.Filename, "bytes", len(content))
	c.JSON(http.StatusOK, gin.H{
		"id": file.ID, "object": "file", "filename": file.Filename,
		"purpose": file.Purpose, "bytes": len(content),
	})
}

func (v *VectorStore) getFile(c *gin.Context) {
	v.mu.Lock()
	f, ok := v.files[c.Param("fid")]
	v.mu.Unlock()
	if !ok {
		apiError(c, http.StatusNotFound, "No such File object: "+c.Param("fid"))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id": f.ID, "object": "file", "filename": f.Filename,
		"purpose": f.Purpose, "bytes": len(f.Content),
	})
}

func (v *VectorStore) deleteFile(c *gin.Context) {
	v.mu.Lock()
	defer v.mu.Unlock()
	fid := c.Param("fid")
	if _, ok := v.files[fid]; !ok {
		apiError(c, http.StatusNotFound, "No such File object: "+fid)
		return
	}
	delete(v.files, fid)
	c.JSON(http.StatusOK, gin.H{"id": fid, "object": "file", "deleted": true})
}

func (v *VectorStore) postBatch(c *gin.Context) {
	var req struct {
		FileIDs []string `json:"file_ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || len(req.FileIDs) == 0 {
		apiError(c, http.StatusBadRequest, "file_ids is required")
		return
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	s := v.store(c.Param("id"))
	if s == nil {
		apiError(c, http.StatusNotFound, "No vector store found")
		return
	}
	for _, id := range req.FileIDs {
		if _, ok := v.files[id]; !ok {
			apiError(c, http.StatusBadRequest, "No such File object: "+id)
			return
		}
	}
	b := &vsBatch{ID: v.id("vsfb"), StoreID: s.ID, FileIDs: req.FileIDs}
	v.batches[b.ID] = b
	s.FileIDs = append(s.FileIDs, req.FileIDs...)
	c.JSON(http.StatusOK, v.renderBatch(b))
}

func (v *VectorStore) getBatch(c *gin.Context) {
	v.mu.Lock()
	defer v.mu.Unlock()
	b, ok := v.batches[c.Param("bid")]
	if !ok || b.StoreID != c.Param("id") {
		apiError(c, http.StatusNotFound, "No file batch found")
		return
	}
	b.polls++
	c.JSON(http.StatusOK, v.renderBatch(b))
}

func (v *VectorStore) renderBatch(b *vsBatch) gin.H {
	n := len(b.FileIDs)
	status := "in_progress"
	counts := gin.H{"in_progress": n, "completed": 0, "failed": 0, "cancelled": 0, "total": n}
	if b.polls > v.pendingPolls {
		status = v.finalStatus
		counts["in_progress"] = 0
		switch status {
		case "completed":
			counts["completed"] = n
		case "failed":
			counts["failed"] = n
		case "cancelled":
			counts["cancelled"] = n
		}
	}
	return gin.H{
		"id":              b.ID,
		"object":          "vector_store.file_batch",
		"vector_store_id": b.StoreID,
		"status":          status,
		"file_counts":     counts,
	}
}
