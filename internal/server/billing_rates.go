package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	ratedomain "github.com/mizanlaw/mizan/internal/billingrate/domain"
	"github.com/mizanlaw/mizan/internal/lawyerctx"
)

type setRateRequest struct {
	RateType           string     `json:"rate_type" binding:"required"`
	StandardHourlyRate int64      `json:"standard_hourly_rate"`
	CustomRate         *int64     `json:"custom_rate"`
	ClientID           *string    `json:"client_id"`
	CaseType           *string    `json:"case_type"`
	ActivityCode       *string    `json:"activity_code"`
	Currency           string     `json:"currency"`
	EffectiveDate      *time.Time `json:"effective_date"`
	EndDate            *time.Time `json:"end_date"`
}

func (s *Server) SetBillingRate(c *gin.Context) {
	var req setRateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	clientID, err := parseOptionalID(req.ClientID, "client_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	rate, err := s.rateSvc.SetRate(c.Request.Context(), ratedomain.SetRateRequest{
		RateType:           ratedomain.RateType(strings.TrimSpace(req.RateType)),
		StandardHourlyRate: req.StandardHourlyRate,
		CustomRate:         req.CustomRate,
		ClientID:           clientID,
		CaseType:           req.CaseType,
		ActivityCode:       req.ActivityCode,
		Currency:           req.Currency,
		EffectiveDate:      req.EffectiveDate,
		EndDate:            req.EndDate,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": rate})
}

type setStandardRateRequest struct {
	HourlyRate int64  `json:"hourly_rate" binding:"required"`
	Currency   string `json:"currency"`
}

func (s *Server) SetStandardRate(c *gin.Context) {
	var req setStandardRateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	rate, err := s.rateSvc.SetStandardRate(c.Request.Context(), req.HourlyRate, req.Currency)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": rate})
}

type updateRateRequest struct {
	StandardHourlyRate *int64     `json:"standard_hourly_rate"`
	CustomRate         *int64     `json:"custom_rate"`
	EndDate            *time.Time `json:"end_date"`
	IsActive           *bool      `json:"is_active"`
}

func (s *Server) UpdateBillingRate(c *gin.Context) {
	var req updateRateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	rate, err := s.rateSvc.Update(c.Request.Context(), ratedomain.UpdateRateRequest{
		ID:                 strings.TrimSpace(c.Param("id")),
		StandardHourlyRate: req.StandardHourlyRate,
		CustomRate:         req.CustomRate,
		EndDate:            req.EndDate,
		IsActive:           req.IsActive,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rate})
}

func (s *Server) ListBillingRates(c *gin.Context) {
	rates, err := s.rateSvc.List(c.Request.Context(), ratedomain.ListRatesRequest{
		RateType:   strings.TrimSpace(c.Query("rate_type")),
		ClientID:   strings.TrimSpace(c.Query("client_id")),
		ActiveOnly: c.Query("active") == "true",
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rates})
}

// GetApplicableRate runs the resolution cascade for the query scope and
// returns the rate a new time entry would bill at.
func (s *Server) GetApplicableRate(c *gin.Context) {
	lawyerID, ok := lawyerctx.LawyerIDFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	req := ratedomain.ResolveRequest{LawyerID: lawyerID}
	if raw := strings.TrimSpace(c.Query("client_id")); raw != "" {
		clientID, err := parseOptionalID(&raw, "client_id")
		if err != nil {
			AbortWithError(c, err)
			return
		}
		req.ClientID = clientID
	}
	if raw := strings.TrimSpace(c.Query("case_type")); raw != "" {
		req.CaseType = &raw
	}
	if raw := strings.TrimSpace(c.Query("activity_code")); raw != "" {
		req.ActivityCode = &raw
	}

	resolved, err := s.rateSvc.Resolve(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resolved})
}
