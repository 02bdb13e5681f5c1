package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	invoicedomain "github.com/mizanlaw/mizan/internal/invoice/domain"
)

type invoiceItemInput struct {
	Description string  `json:"description" binding:"required"`
	Quantity    float64 `json:"quantity" binding:"required"`
	UnitPrice   int64   `json:"unit_price" binding:"required"`
}

type createInvoiceRequest struct {
	ClientID *string            `json:"client_id"`
	CaseID   *string            `json:"case_id"`
	Items    []invoiceItemInput `json:"items" binding:"required"`
	DueDate  *time.Time         `json:"due_date"`
	VATRate  *float64           `json:"vat_rate"`
	Currency string             `json:"currency"`
	Notes    *string            `json:"notes"`
}

func (s *Server) CreateInvoice(c *gin.Context) {
	var req createInvoiceRequest
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

	items := make([]invoicedomain.ItemInput, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, invoicedomain.ItemInput{
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
		})
	}

	invoice, err := s.invoiceSvc.Create(c.Request.Context(), invoicedomain.CreateInvoiceRequest{
		ClientID: clientID,
		CaseID:   caseID,
		Items:    items,
		DueDate:  req.DueDate,
		VATRate:  req.VATRate,
		Currency: req.Currency,
		Notes:    req.Notes,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": invoice})
}

type createInvoiceFromEntriesRequest struct {
	ClientID     *string    `json:"client_id"`
	CaseID       *string    `json:"case_id"`
	TimeEntryIDs []string   `json:"time_entry_ids"`
	ExpenseIDs   []string   `json:"expense_ids"`
	DueDate      *time.Time `json:"due_date"`
	VATRate      *float64   `json:"vat_rate"`
	Notes        *string    `json:"notes"`
}

func (s *Server) CreateInvoiceFromEntries(c *gin.Context) {
	var req createInvoiceFromEntriesRequest
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

	invoice, err := s.invoiceSvc.CreateFromEntries(c.Request.Context(), invoicedomain.CreateFromEntriesRequest{
		ClientID:     clientID,
		CaseID:       caseID,
		TimeEntryIDs: req.TimeEntryIDs,
		ExpenseIDs:   req.ExpenseIDs,
		DueDate:      req.DueDate,
		VATRate:      req.VATRate,
		Notes:        req.Notes,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": invoice})
}

func (s *Server) GetInvoice(c *gin.Context) {
	invoice, err := s.invoiceSvc.Get(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": invoice})
}

func (s *Server) ListInvoices(c *gin.Context) {
	resp, err := s.invoiceSvc.List(c.Request.Context(), invoicedomain.ListInvoicesRequest{
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

type updateInvoiceRequest struct {
	DueDate *time.Time `json:"due_date"`
	Notes   *string    `json:"notes"`
}

func (s *Server) UpdateInvoice(c *gin.Context) {
	var req updateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	invoice, err := s.invoiceSvc.Update(c.Request.Context(), invoicedomain.UpdateInvoiceRequest{
		ID:      strings.TrimSpace(c.Param("id")),
		DueDate: req.DueDate,
		Notes:   req.Notes,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": invoice})
}

func (s *Server) SendInvoice(c *gin.Context) {
	invoice, err := s.invoiceSvc.Send(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": invoice})
}

func (s *Server) CancelInvoice(c *gin.Context) {
	invoice, err := s.invoiceSvc.Cancel(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": invoice})
}
