package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	timerdomain "github.com/mizanlaw/mizan/internal/timer/domain"
)

type startTimerRequest struct {
	ClientID     *string `json:"client_id"`
	CaseID       *string `json:"case_id"`
	CaseType     *string `json:"case_type"`
	ActivityCode *string `json:"activity_code"`
	Description  string  `json:"description"`
}

func (s *Server) StartTimer(c *gin.Context) {
	var req startTimerRequest
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

	session, err := s.timerSvc.Start(c.Request.Context(), timerdomain.StartTimerRequest{
		ClientID:     clientID,
		CaseID:       caseID,
		CaseType:     req.CaseType,
		ActivityCode: req.ActivityCode,
		Description:  req.Description,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": session})
}

func (s *Server) PauseTimer(c *gin.Context) {
	session, err := s.timerSvc.Pause(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": session})
}

func (s *Server) ResumeTimer(c *gin.Context) {
	session, err := s.timerSvc.Resume(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": session})
}

type stopTimerRequest struct {
	Notes      string `json:"notes"`
	IsBillable *bool  `json:"is_billable"`
}

// StopTimer closes the running session and returns the draft time entry
// created from it.
func (s *Server) StopTimer(c *gin.Context) {
	var req stopTimerRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	entry, err := s.timerSvc.Stop(c.Request.Context(), timerdomain.StopTimerRequest{
		Notes:      req.Notes,
		IsBillable: req.IsBillable,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": entry})
}

func (s *Server) TimerStatus(c *gin.Context) {
	status, err := s.timerSvc.Status(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": status})
}
