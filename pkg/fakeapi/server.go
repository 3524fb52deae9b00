// Package fakeapi serves in-process fakes of the GitHub contents API and an
// OpenAI-compatible vector store API. It backs adapter tests and the
// mock-services binary used for local end-to-end runs.
package fakeapi

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Server bundles both fakes behind one gin engine. GitHub routes live at the
// root, vector store routes under /v1.
type Server struct {
	GitHub      *GitHub
	VectorStore *VectorStore

	engine *gin.Engine
}

// New creates a Server with empty state. apiKey is the bearer token the
// vector store fake requires.
func New(apiKey string, log *slog.Logger) *Server {
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{
		GitHub:      NewGitHub(log),
		VectorStore: NewVectorStore(apiKey, log),
		engine:      r,
	}
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.GitHub.Register(r)
	s.VectorStore.Register(r.Group("/v1"))
	return s
}

// Handler returns the HTTP handler serving both fakes.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// baseURL reconstructs the externally visible origin of a request so listing
// entries can carry absolute URLs.
func baseURL(c *gin.Context) string {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + c.Request.Host
}

// Run listens on addr and serves both fakes until the listener fails.
func (s *Server) Run(addr string) error {
	return s.engine.Run(addr)
}
