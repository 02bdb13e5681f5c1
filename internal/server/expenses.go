package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	expensedomain "github.com/mizanlaw/mizan/internal/expense/domain"
)

type createExpenseRequest struct {
	ClientID      *string    `json:"client_id"`
	CaseID        *string    `json:"case_id"`
	Description   string     `json:"description" binding:"required"`
	ExpenseDate   *time.Time `json:"expense_date"`
	Amount        int64      `json:"amount" binding:"required"`
	MarkupPercent float64    `json:"markup_percent"`
	Currency      string     `json:"currency"`
	IsBillable    *bool      `json:"is_billable"`
	ReceiptURL    *string    `json:"receipt_url"`
}

func (s *Server) CreateExpense(c *gin.Context) {
	var req createExpenseRequest
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

	expense, err := s.expenseSvc.Create(c.Request.Context(), expensedomain.CreateExpenseRequest{
		ClientID:      clientID,
		CaseID:        caseID,
		Description:   req.Description,
		ExpenseDate:   req.ExpenseDate,
		Amount:        req.Amount,
		MarkupPercent: req.MarkupPercent,
		Currency:      req.Currency,
		IsBillable:    req.IsBillable,
		ReceiptURL:    req.ReceiptURL,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": expense})
}

func (s *Server) GetExpense(c *gin.Context) {
	expense, err := s.expenseSvc.Get(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": expense})
}

func (s *Server) ListExpenses(c *gin.Context) {
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

	resp, err := s.expenseSvc.List(c.Request.Context(), expensedomain.ListExpensesRequest{
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

type updateExpenseRequest struct {
	Description   *string    `json:"description"`
	ExpenseDate   *time.Time `json:"expense_date"`
	Amount        *int64     `json:"amount"`
	MarkupPercent *float64   `json:"markup_percent"`
	IsBillable    *bool      `json:"is_billable"`
	ReceiptURL    *string    `json:"receipt_url"`
}

func (s *Server) UpdateExpense(c *gin.Context) {
	var req updateExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	expense, err := s.expenseSvc.Update(c.Request.Context(), expensedomain.UpdateExpenseRequest{
		ID:            strings.TrimSpace(c.Param("id")),
		Description:   req.Description,
		ExpenseDate:   req.ExpenseDate,
		Amount:        req.Amount,
		MarkupPercent: req.MarkupPercent,
		IsBillable:    req.IsBillable,
		ReceiptURL:    req.ReceiptURL,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": expense})
}

func (s *Server) DeleteExpense(c *gin.Context) {
	if err := s.expenseSvc.Delete(c.Request.Context(), strings.TrimSpace(c.Param("id"))); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"deleted": true}})
}

func (s *Server) ApproveExpense(c *gin.Context) {
	expense, err := s.expenseSvc.Approve(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": expense})
}

func (s *Server) RejectExpense(c *gin.Context) {
	var req rejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	expense, err := s.expenseSvc.Reject(c.Request.Context(), strings.TrimSpace(c.Param("id")), req.Reason)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": expense})
}
