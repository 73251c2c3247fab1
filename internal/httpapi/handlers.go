package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Sxriptor/colabify-app-sub001/internal/common/apperr"
	"github.com/Sxriptor/colabify-app-sub001/internal/common/logger"
	"github.com/Sxriptor/colabify-app-sub001/internal/coordinator"
)

// Handler contains the gitwatchd control-surface HTTP handlers.
type Handler struct {
	backend *coordinator.Backend
	log     *logger.Logger
}

// NewHandler creates a Handler over backend.
func NewHandler(backend *coordinator.Backend, log *logger.Logger) *Handler {
	return &Handler{backend: backend, log: log.With(zap.String("component", "httpapi"))}
}

func respondError(c *gin.Context, err error) {
	appErr := apperr.Wrap(err, "request failed")
	c.JSON(appErr.HTTPStatus, appErr)
}

// StartWatch begins watching a project.
// POST /api/v1/projects/:projectId/watch
func (h *Handler) StartWatch(c *gin.Context) {
	projectID := c.Param("projectId")
	if projectID == "" {
		e := apperr.BadRequest("projectId is required")
		c.JSON(e.HTTPStatus, e)
		return
	}
	if err := h.backend.ToggleProjectWatch(c.Request.Context(), projectID, true); err != nil {
		h.log.Error("start watch failed", zap.String("project_id", projectID), zap.Error(err))
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"project_id": projectID, "watching": true})
}

// StopWatch stops watching a project.
// DELETE /api/v1/projects/:projectId/watch
func (h *Handler) StopWatch(c *gin.Context) {
	projectID := c.Param("projectId")
	if projectID == "" {
		e := apperr.BadRequest("projectId is required")
		c.JSON(e.HTTPStatus, e)
		return
	}
	if err := h.backend.ToggleProjectWatch(c.Request.Context(), projectID, false); err != nil {
		h.log.Error("stop watch failed", zap.String("project_id", projectID), zap.Error(err))
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"project_id": projectID, "watching": false})
}

// GetWatchStatus reports whether a project currently has an active
// ProjectWatcher.
// GET /api/v1/projects/:projectId/watch
func (h *Handler) GetWatchStatus(c *gin.Context) {
	projectID := c.Param("projectId")
	c.JSON(http.StatusOK, gin.H{"project_id": projectID, "watching": h.backend.IsWatching(projectID)})
}

// GetAwareness returns the current team awareness projection for a
// project.
// GET /api/v1/projects/:projectId/awareness
func (h *Handler) GetAwareness(c *gin.Context) {
	projectID := c.Param("projectId")
	awareness := h.backend.GetTeamAwareness(projectID)
	c.JSON(http.StatusOK, gin.H{"project_id": projectID, "awareness": awareness})
}

// GetActivities returns the most recent activities recorded for a
// project.
// GET /api/v1/projects/:projectId/activities?limit=50
func (h *Handler) GetActivities(c *gin.Context) {
	projectID := c.Param("projectId")
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	activities, err := h.backend.GetRecentActivities(c.Request.Context(), projectID, limit)
	if err != nil {
		h.log.Error("get recent activities failed", zap.String("project_id", projectID), zap.Error(err))
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"project_id": projectID, "activities": activities})
}

// GetStatus reports process-level status: whether the coordinator is
// running and which projects it currently watches.
// GET /api/v1/status
func (h *Handler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"running":          h.backend.Running(),
		"watched_projects": h.backend.WatchedProjectIDs(),
	})
}
