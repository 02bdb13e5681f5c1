package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/mizanlaw/mizan/internal/audit/domain"
)

func (s *Server) ListActivity(c *gin.Context) {
	startAt, err := timeFromQuery(c, "start_at")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	endAt, err := timeFromQuery(c, "end_at")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.auditSvc.List(c.Request.Context(), auditdomain.ListActivityLogRequest{
		Pagination: paginationFromQuery(c),
		Action:     strings.TrimSpace(c.Query("action")),
		TargetType: strings.TrimSpace(c.Query("target_type")),
		TargetID:   strings.TrimSpace(c.Query("target_id")),
		StartAt:    startAt,
		EndAt:      endAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
