// Package httpapi implements the HTTP control surface over a
// coordinator.Backend: toggling per-project watching and reading back
// team awareness / recent activity, per SPEC_FULL.md's control-surface
// section. Routing follows the teacher's orchestrator API package
// (internal/orchestrator/api/router.go): a thin Handler wrapping the
// domain service, registered on a *gin.RouterGroup.
package httpapi

import (
	"github.com/gin-gonic/gin"

	"github.com/Sxriptor/colabify-app-sub001/internal/common/logger"
	"github.com/Sxriptor/colabify-app-sub001/internal/coordinator"
)

// SetupRoutes registers the control-surface routes under group.
func SetupRoutes(group *gin.RouterGroup, backend *coordinator.Backend, log *logger.Logger) {
	h := NewHandler(backend, log)

	projects := group.Group("/projects/:projectId")
	{
		projects.POST("/watch", h.StartWatch)
		projects.DELETE("/watch", h.StopWatch)
		projects.GET("/watch", h.GetWatchStatus)
		projects.GET("/awareness", h.GetAwareness)
		projects.GET("/activities", h.GetActivities)
	}

	group.GET("/status", h.GetStatus)
}
