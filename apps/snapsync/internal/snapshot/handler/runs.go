package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tilsley/snapsync/apps/snapsync/internal/snapshot"
)

const defaultListLimit = 20

type startRunRequest struct {
	RunID string `json:"runId"`
}

// Health handles GET /health.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// StartRun handles POST /runs by starting a SnapshotSync workflow. The body is
// optional; without a runId one is generated.
func (h *Handler) StartRun(c *gin.Context) {
	var req startRunRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.RunID == "" {
		req.RunID = h.newID()
	}

	if err := h.engine.StartRun(c.Request.Context(), req.RunID); err != nil {
		var exists snapshot.RunExistsError
		if errors.As(err, &exists) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		h.log.Error("failed to start run", "run", req.RunID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.log.Info("run started", "run", req.RunID)
	c.JSON(http.StatusAccepted, gin.H{"runId": req.RunID, "status": "started"})
}

// ListRuns handles GET /runs. Recorded runs come newest first.
func (h *Handler) ListRuns(c *gin.Context) {
	if h.runs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "run history is not configured"})
		return
	}

	limit := defaultListLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	reports, err := h.runs.List(c.Request.Context(), limit)
	if err != nil {
		h.log.Error("failed to list runs", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": reports})
}

// GetRun handles GET /runs/:id. A recorded report wins; otherwise the live
// workflow status is returned.
func (h *Handler) GetRun(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()

	if h.runs != nil {
		report, err := h.runs.Get(ctx, id)
		if err != nil {
			h.log.Error("failed to get run", "run", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if report != nil {
			c.JSON(http.StatusOK, report)
			return
		}
	}

	status, err := h.engine.GetStatus(ctx, id)
	if err != nil {
		h.log.Error("failed to get run status", "run", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if status == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run " + id + " not found"})
		return
	}
	c.JSON(http.StatusOK, status)
}

// ListRunEvents handles GET /runs/:id/events. An unknown run has no events.
func (h *Handler) ListRunEvents(c *gin.Context) {
	if h.events == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event log is not configured"})
		return
	}

	id := c.Param("id")
	events, err := h.events.List(c.Request.Context(), id)
	if err != nil {
		h.log.Error("failed to list run events", "run", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runId": id, "events": events})
}
