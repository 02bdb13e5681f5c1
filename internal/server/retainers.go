package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	retainerdomain "github.com/mizanlaw/mizan/internal/retainer/domain"
)

type createRetainerRequest struct {
	ClientID       *string `json:"client_id"`
	CaseID         *string `json:"case_id"`
	InitialAmount  int64   `json:"initial_amount" binding:"required"`
	MinimumBalance int64   `json:"minimum_balance"`
	Currency       string  `json:"currency"`
}

func (s *Server) CreateRetainer(c *gin.Context) {
	var req createRetainerRequest
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

	retainer, err := s.retainerSvc.Create(c.Request.Context(), retainerdomain.CreateRetainerRequest{
		ClientID:       clientID,
		CaseID:         caseID,
		InitialAmount:  req.InitialAmount,
		MinimumBalance: req.MinimumBalance,
		Currency:       req.Currency,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": retainer})
}

func (s *Server) GetRetainer(c *gin.Context) {
	retainer, err := s.retainerSvc.Get(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": retainer})
}

func (s *Server) ListRetainers(c *gin.Context) {
	resp, err := s.retainerSvc.List(c.Request.Context(), retainerdomain.ListRetainersRequest{
		Pagination: paginationFromQuery(c),
		Status:     strings.TrimSpace(c.Query("status")),
		ClientID:   strings.TrimSpace(c.Query("client_id")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type consumeRetainerRequest struct {
	Amount      int64   `json:"amount" binding:"required"`
	Description *string `json:"description"`
	InvoiceID   *string `json:"invoice_id"`
}

func (s *Server) ConsumeRetainer(c *gin.Context) {
	var req consumeRetainerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	invoiceID, err := parseOptionalID(req.InvoiceID, "invoice_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := s.retainerSvc.Consume(c.Request.Context(), retainerdomain.ConsumeRequest{
		RetainerID:  strings.TrimSpace(c.Param("id")),
		Amount:      req.Amount,
		Description: req.Description,
		InvoiceID:   invoiceID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

type replenishRetainerRequest struct {
	Amount      int64   `json:"amount" binding:"required"`
	Description *string `json:"description"`
	PaymentID   *string `json:"payment_id"`
}

func (s *Server) ReplenishRetainer(c *gin.Context) {
	var req replenishRetainerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	paymentID, err := parseOptionalID(req.PaymentID, "payment_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	retainer, err := s.retainerSvc.Replenish(c.Request.Context(), retainerdomain.ReplenishRequest{
		RetainerID:  strings.TrimSpace(c.Param("id")),
		Amount:      req.Amount,
		Description: req.Description,
		PaymentID:   paymentID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": retainer})
}

type refundRetainerRequest struct {
	Reason string `json:"reason"`
}

// RefundRetainer returns the remaining balance and closes the account.
func (s *Server) RefundRetainer(c *gin.Context) {
	var req refundRetainerRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	retainer, err := s.retainerSvc.Refund(c.Request.Context(), strings.TrimSpace(c.Param("id")), req.Reason)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": retainer})
}

func (s *Server) ListRetainerTransactions(c *gin.Context) {
	resp, err := s.retainerSvc.Transactions(c.Request.Context(), retainerdomain.ListTransactionsRequest{
		Pagination: paginationFromQuery(c),
		RetainerID: strings.TrimSpace(c.Param("id")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
