package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/tilsley/snapsync/apps/snapsync/internal/snapshot"
)

// DefaultVectorStoreURL is the public OpenAI API base.
const DefaultVectorStoreURL = "https://api.openai.com/v1"

const (
	pageLimit    = 100
	maxErrorBody = 64 << 10
)

var _ snapshot.Index = (*VectorStore)(nil)

// VectorStore talks to an OpenAI-compatible vector store API.
type VectorStore struct {
	baseURL    string
	apiKey     string
	keyName    string
	httpClient *http.Client
}

// NewVectorStore creates a VectorStore client. keyName is reported in the
// CredentialError when apiKey is empty.
func NewVectorStore(baseURL, apiKey, keyName string, httpClient *http.Client) *VectorStore {
	if baseURL == "" {
		baseURL = DefaultVectorStoreURL
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &VectorStore{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		keyName:    keyName,
		httpClient: httpClient,
	}
}

type vectorStoreObject struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type fileObject struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
}

type batchObject struct {
	ID         string              `json:"id"`
	Status     string              `json:"status"`
	FileCounts snapshot.FileCounts `json:"file_counts"`
}

func (b batchObject) batch() snapshot.Batch {
	return snapshot.Batch{ID: b.ID, Status: b.Status, Counts: b.FileCounts}
}

type page[T any] struct {
	Data    []T    `json:"data"`
	HasMore bool   `json:"has_more"`
	LastID  string `json:"last_id"`
}

// Ready implements snapshot.Index.
func (v *VectorStore) Ready() error {
	if v.apiKey == "" {
		return &snapshot.CredentialError{Name: v.keyName}
	}
	return nil
}

// FindStore returns the ID of the first store called name.
func (v *VectorStore) FindStore(ctx context.Context, name string) (string, bool, error) {
	var found string
	err := paginate(ctx, v, "/vector_stores", func(s vectorStoreObject) bool {
		if s.Name == name {
			found = s.ID
			return false
		}
		return true
	})
	if err != nil {
		return "", false, err
	}
	return found, found != "", nil
}

// CreateStore creates an empty store called name.
func (v *VectorStore) CreateStore(ctx context.Context, name string) (string, error) {
	var out vectorStoreObject
	if err := v.doJSON(ctx, http.MethodPost, "/vector_stores", map[string]string{"name": name}, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// RemoveDocuments detaches and deletes every file in the store whose
// filename matches.
func (v *VectorStore) RemoveDocuments(ctx context.Context, storeID, filename string) (int, error) {
	var ids []string
	err := paginate(ctx, v, "/vector_stores/"+url.PathEscape(storeID)+"/files", func(f fileObject) bool {
		ids = append(ids, f.ID)
		return true
	})
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, id := range ids {
		var meta fileObject
		if err := v.doJSON(ctx, http.MethodGet, "/files/"+url.PathEscape(id), nil, &meta); err != nil {
			if snapshot.IsNotFound(err) {
				continue
			}
			return removed, err
		}
		if meta.Filename != filename {
			continue
		}
		if err := v.doJSON(ctx, http.MethodDelete, "/vector_stores/"+url.PathEscape(storeID)+"/files/"+url.PathEscape(id), nil, nil); err != nil {
			return removed, err
		}
		if err := v.doJSON(ctx, http.MethodDelete, "/files/"+url.PathEscape(id), nil, nil); err != nil && !snapshot.IsNotFound(err) {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// Upload sends content as a file with purpose "assistants".
func (v *VectorStore) Upload(ctx context.Context, filename string, content []byte) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("purpose", "assistants"); err != nil {
		return "", fmt.Errorf("write purpose field: %w", err)
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return "", fmt.Errorf("write file part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart body: %w", err)
	}

	var out fileObject
	if err := v.do(ctx, http.MethodPost, "/files", &body, mw.FormDataContentType(), &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// StartBatch attaches fileIDs to the store as one ingestion batch.
func (v *VectorStore) StartBatch(ctx context.Context, storeID string, fileIDs []string) (snapshot.Batch, error) {
	var out batchObject
	path := "/vector_stores/" + url.PathEscape(storeID) + "/file_batches"
	if err := v.doJSON(ctx, http.MethodPost, path, map[string][]string{"file_ids": fileIDs}, &out); err != nil {
		return snapshot.Batch{}, err
	}
	return out.batch(), nil
}

// GetBatch returns the current state of a batch.
func (v *VectorStore) GetBatch(ctx context.Context, storeID, batchID string) (snapshot.Batch, error) {
	var out batchObject
	path := "/vector_stores/" + url.PathEscape(storeID) + "/file_batches/" + url.PathEscape(batchID)
	if err := v.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return snapshot.Batch{}, err
	}
	return out.batch(), nil
}

// paginate walks a cursor-paginated list endpoint, calling fn for each item
// until fn returns false or the list is exhausted.
func paginate[T any](ctx context.Context, v *VectorStore, path string, fn func(T) bool) error {
	after := ""
	for {
		q := url.Values{"limit": []string{fmt.Sprint(pageLimit)}}
		if after != "" {
			q.Set("after", after)
		}
		var p page[T]
		if err := v.doJSON(ctx, http.MethodGet, path+"?"+q.Encode(), nil, &p); err != nil {
			return err
		}
		for _, item := range p.Data {
			if !fn(item) {
				return nil
			}
		}
		if !p.HasMore || p.LastID == "" {
			return nil
		}
		after = p.LastID
	}
}

func (v *VectorStore) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}
	return v.do(ctx, method, path, body, contentType, out)
}

func (v *VectorStore) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	if err := v.Ready(); err != nil {
		return err
	}
	if body == nil {
		body = http.NoBody
	}
	req, err := http.NewRequestWithContext(ctx, method, v.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+v.apiKey)
	req.Header.Set("OpenAI-Beta", "assistants=v2")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { //nolint:errcheck // response body close errors are non-actionable after reading
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &snapshot.RemoteAPIError{
			Op:         method + " " + path,
			StatusCode: resp.StatusCode,
			Header:     resp.Header,
			Body:       string(data),
		}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
