package validation_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tilsley/snapsync/apps/snapsync/internal/platform/validation"
	"github.com/tilsley/snapsync/schemas"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// apiRouter mounts the middleware in front of stub handlers that only report
// that they were reached.
func apiRouter(t *testing.T) *gin.Engine {
	t.Helper()
	mw, err := validation.New(schemas.OpenAPISpec)
	require.NoError(t, err)

	r := gin.New()
	r.Use(mw)
	r.NoRoute(func(c *gin.Context) { c.String(http.StatusTeapot, "reached") })
	r.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "reached") })
	r.POST("/runs", func(c *gin.Context) { c.String(http.StatusAccepted, "reached") })
	r.GET("/runs", func(c *gin.Context) { c.String(http.StatusOK, "reached") })
	r.GET("/runs/:id", func(c *gin.Context) { c.String(http.StatusOK, "reached") })
	r.GET("/runs/:id/events", func(c *gin.Context) { c.String(http.StatusOK, "reached") })
	return r
}

func send(r http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestNew_RejectsBrokenDocument(t *testing.T) {
	_, err := validation.New([]byte("openapi: 3.0.3\npaths: 12\n"))
	assert.Error(t, err)
}

func TestMiddleware_AcceptedRequestsReachHandler(t *testing.T) {
	r := apiRouter(t)
	cases := []struct {
		name, method, target, body string
		want                       int
	}{
		{"health", http.MethodGet, "/health", "", http.StatusOK},
		{"start without body", http.MethodPost, "/runs", "", http.StatusAccepted},
		{"start with run id", http.MethodPost, "/runs", `{"runId":"manual-2026.03.01"}`, http.StatusAccepted},
		{"list default limit", http.MethodGet, "/runs", "", http.StatusOK},
		{"list with limit", http.MethodGet, "/runs?limit=100", "", http.StatusOK},
		{"get run", http.MethodGet, "/runs/nightly-1", "", http.StatusOK},
		{"run events", http.MethodGet, "/runs/nightly-1/events", "", http.StatusOK},
		{"undocumented path", http.MethodGet, "/metrics", "", http.StatusTeapot},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := send(r, tc.method, tc.target, tc.body)
			assert.Equal(t, tc.want, w.Code, w.Body.String())
			assert.Equal(t, "reached", w.Body.String())
		})
	}
}

func TestMiddleware_RejectedRequestsDescribeProblem(t *testing.T) {
	r := apiRouter(t)
	cases := []struct {
		name, method, target, body string
		wantIn, wantField          string
	}{
		{"run id with slashes", http.MethodPost, "/runs", `{"runId":"has spaces/and slashes"}`, "body", "runId"},
		{"unknown body field", http.MethodPost, "/runs", `{"branch":"dev"}`, "body", ""},
		{"limit above range", http.MethodGet, "/runs?limit=500", "", "query", "limit"},
		{"limit below range", http.MethodGet, "/runs?limit=0", "", "query", "limit"},
		{"limit not integer", http.MethodGet, "/runs?limit=ten", "", "query", "limit"},
		{"events for bad run id", http.MethodGet, "/runs/bad~id/events", "", "path", "id"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := send(r, tc.method, tc.target, tc.body)
			require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

			var p validation.Problem
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
			assert.Equal(t, "invalid request", p.Error)
			assert.Equal(t, tc.wantIn, p.In)
			if tc.wantField != "" {
				assert.Equal(t, tc.wantField, p.Field)
			}
			assert.NotEmpty(t, p.Reason)
		})
	}
}

func TestMiddleware_DocumentedPathWrongMethod(t *testing.T) {
	w := send(apiRouter(t), http.MethodDelete, "/runs/nightly-1", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Contains(t, w.Body.String(), "method not allowed")
}
