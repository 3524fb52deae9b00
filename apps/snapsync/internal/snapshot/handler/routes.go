package handler

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tilsley/snapsync/apps/snapsync/internal/snapshot"
)

// Handler translates HTTP requests into workflow starts and run lookups.
type Handler struct {
	engine snapshot.WorkflowEngine
	runs   snapshot.RunStore
	events snapshot.EventLog
	newID  func() string
	log    *slog.Logger
}

// Option customises a Handler.
type Option func(*Handler)

// WithIDGenerator overrides how run IDs are minted for POST /runs without one.
func WithIDGenerator(fn func() string) Option {
	return func(h *Handler) { h.newID = fn }
}

// WithEventLog serves GET /runs/:id/events from el. A nil el leaves the
// route answering 503.
func WithEventLog(el snapshot.EventLog) Option {
	return func(h *Handler) { h.events = el }
}

// RegisterRoutes mounts the snapsync API onto the given Gin engine. runs may
// be nil, in which case run history is unavailable.
func RegisterRoutes(r *gin.Engine, engine snapshot.WorkflowEngine, runs snapshot.RunStore, log *slog.Logger, opts ...Option) {
	h := &Handler{
		engine: engine,
		runs:   runs,
		newID:  uuid.NewString,
		log:    log,
	}
	for _, opt := range opts {
		opt(h)
	}

	r.GET("/health", h.Health)

	r.POST("/runs", h.StartRun)
	r.GET("/runs", h.ListRuns)
	r.GET("/runs/:id", h.GetRun)
	r.GET("/runs/:id/events", h.ListRunEvents)
}
