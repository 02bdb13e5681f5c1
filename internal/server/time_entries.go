package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	timeentrydomain "github.com/mizanlaw/mizan/internal/timeentry/domain"
)

type createTimeEntryRequest struct {
	ClientID     *string    `json:"client_id"`
	CaseID       *string    `json:"case_id"`
	CaseType     *string    `json:"case_type"`
	ActivityCode *string    `json:"activity_code"`
	Description  string     `json:"description" binding:"required"`
	WorkDate     *time.Time `json:"work_date"`
	Duration     int64      `json:"duration_minutes" binding:"required"`
	IsBillable   *bool      `json:"is_billable"`
}

func (s *Server) CreateTimeEntry(c *gin.Context) {
	var req createTimeEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	clientID, err := parseOptionalID(req.ClientID, "client_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	caseID, err := parseOptionalID(req.CaseID, "case_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	entry, err := s.entrySvc.Create(c.Request.Context(), timeentrydomain.CreateEntryRequest{
		ClientID:     clientID,
		CaseID:       caseID,
		CaseType:     req.CaseType,
		ActivityCode: req.ActivityCode,
		Description:  req.Description,
		WorkDate:     req.WorkDate,
		Duration:     req.Duration,
		IsBillable:   req.IsBillable,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": entry})
}

func (s *Server) GetTimeEntry(c *gin.Context) {
	entry, err := s.entrySvc.Get(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": entry})
}

func (s *Server) ListTimeEntries(c *gin.Context) {
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

	resp, err := s.entrySvc.List(c.Request.Context(), timeentrydomain.ListEntriesRequest{
		Pagination: paginationFromQuery(c),
		Status:     strings.TrimSpace(c.Query("status")),
		ClientID:   strings.TrimSpace(c.Query("client_id")),
		CaseID:     strings.TrimSpace(c.Query("case_id")),
		StartAt:    startAt,
		EndAt:      endAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type updateTimeEntryRequest struct {
	Description  *string    `json:"description"`
	WorkDate     *time.Time `json:"work_date"`
	Duration     *int64     `json:"duration_minutes"`
	HourlyRate   *int64     `json:"hourly_rate"`
	ActivityCode *string    `json:"activity_code"`
	IsBillable   *bool      `json:"is_billable"`
}

func (s *Server) UpdateTimeEntry(c *gin.Context) {
	var req updateTimeEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	entry, err := s.entrySvc.Update(c.Request.Context(), timeentrydomain.UpdateEntryRequest{
		ID:           strings.TrimSpace(c.Param("id")),
		Description:  req.Description,
		WorkDate:     req.WorkDate,
		Duration:     req.Duration,
		HourlyRate:   req.HourlyRate,
		ActivityCode: req.ActivityCode,
		IsBillable:   req.IsBillable,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": entry})
}

func (s *Server) DeleteTimeEntry(c *gin.Context) {
	if err := s.entrySvc.Delete(c.Request.Context(), strings.TrimSpace(c.Param("id"))); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"deleted": true}})
}

func (s *Server) SubmitTimeEntry(c *gin.Context) {
	entry, err := s.entrySvc.Submit(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": entry})
}

func (s *Server) ApproveTimeEntry(c *gin.Context) {
	entry, err := s.entrySvc.Approve(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": entry})
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) RejectTimeEntry(c *gin.Context) {
	var req rejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	entry, err := s.entrySvc.Reject(c.Request.Context(), strings.TrimSpace(c.Param("id")), req.Reason)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": entry})
}

func (s *Server) TimeEntryHistory(c *gin.Context) {
	edits, err := s.entrySvc.EditHistory(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": edits})
}
