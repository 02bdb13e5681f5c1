package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/mizanlaw/mizan/internal/payment/domain"
)

type createPaymentRequest struct {
	TargetType string  `json:"target_type" binding:"required"`
	InvoiceID  *string `json:"invoice_id"`
	RetainerID *string `json:"retainer_id"`
	ClientID   *string `json:"client_id"`
	Amount     int64   `json:"amount" binding:"required"`
	Currency   string  `json:"currency"`
	Method     string  `json:"method" binding:"required"`
	Notes      *string `json:"notes"`
}

func (s *Server) CreatePayment(c *gin.Context) {
	var req createPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	invoiceID, err := parseOptionalID(req.InvoiceID, "invoice_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	retainerID, err := parseOptionalID(req.RetainerID, "retainer_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	clientID, err := parseOptionalID(req.ClientID, "client_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	payment, err := s.paymentSvc.Create(c.Request.Context(), paymentdomain.CreatePaymentRequest{
		TargetType: paymentdomain.TargetType(strings.TrimSpace(req.TargetType)),
		InvoiceID:  invoiceID,
		RetainerID: retainerID,
		ClientID:   clientID,
		Amount:     req.Amount,
		Currency:   req.Currency,
		Method:     req.Method,
		Notes:      req.Notes,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": payment})
}

func (s *Server) GetPayment(c *gin.Context) {
	payment, err := s.paymentSvc.Get(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": payment})
}

func (s *Server) ListPayments(c *gin.Context) {
	resp, err := s.paymentSvc.List(c.Request.Context(), paymentdomain.ListPaymentsRequest{
		Pagination: paginationFromQuery(c),
		Status:     strings.TrimSpace(c.Query("status")),
		TargetType: strings.TrimSpace(c.Query("target_type")),
		InvoiceID:  strings.TrimSpace(c.Query("invoice_id")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CompletePayment(c *gin.Context) {
	payment, err := s.paymentSvc.Complete(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": payment})
}

type failPaymentRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) FailPayment(c *gin.Context) {
	var req failPaymentRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	payment, err := s.paymentSvc.Fail(c.Request.Context(), strings.TrimSpace(c.Param("id")), req.Reason)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": payment})
}

func (s *Server) CancelPayment(c *gin.Context) {
	payment, err := s.paymentSvc.Cancel(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": payment})
}

type refundPaymentRequest struct {
	Amount *int64 `json:"amount"`
	Reason string `json:"reason"`
}

// RefundPayment issues a negative-amount payment against the original.
// Omitting amount refunds the full original amount.
func (s *Server) RefundPayment(c *gin.Context) {
	var req refundPaymentRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	refund, err := s.paymentSvc.Refund(c.Request.Context(), paymentdomain.RefundRequest{
		PaymentID: strings.TrimSpace(c.Param("id")),
		Amount:    req.Amount,
		Reason:    req.Reason,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": refund})
}

func (s *Server) PaymentStats(c *gin.Context) {
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

	stats, err := s.paymentSvc.GetStats(c.Request.Context(), paymentdomain.StatsRequest{
		StartAt: startAt,
		EndAt:   endAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": stats})
}
