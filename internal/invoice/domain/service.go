package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/mizanlaw/mizan/pkg/db/pagination"
)

type ItemInput struct {
	Description string
	Quantity    float64
	UnitPrice   int64
}

type CreateInvoiceRequest struct {
	ClientID *snowflake.ID
	CaseID   *snowflake.ID
	Items    []ItemInput
	DueDate  *time.Time
	VATRate  *float64
	Currency string
	Notes    *string
}

// CreateFromEntriesRequest builds an invoice from approved ledger rows.
// The referenced entries are marked invoiced in the same transaction
// that creates the invoice.
type CreateFromEntriesRequest struct {
	ClientID     *snowflake.ID
	CaseID       *snowflake.ID
	TimeEntryIDs []string
	ExpenseIDs   []string
	DueDate      *time.Time
	VATRate      *float64
	Notes        *string
}

type UpdateInvoiceRequest struct {
	ID      string
	DueDate *time.Time
	Notes   *string
}

type ListInvoicesRequest struct {
	pagination.Pagination
	Status   string
	ClientID string
}

type ListInvoicesResponse struct {
	pagination.PageInfo
	Invoices []Invoice `json:"invoices"`
}

type Service interface {
	Create(ctx context.Context, req CreateInvoiceRequest) (Invoice, error)
	CreateFromEntries(ctx context.Context, req CreateFromEntriesRequest) (Invoice, error)
	Get(ctx context.Context, id string) (Invoice, error)
	List(ctx context.Context, req ListInvoicesRequest) (ListInvoicesResponse, error)
	Update(ctx context.Context, req UpdateInvoiceRequest) (Invoice, error)
	Send(ctx context.Context, id string) (Invoice, error)
	Cancel(ctx context.Context, id string) (Invoice, error)
}

var (
	ErrInvalidLawyer      = errors.New("invalid_lawyer")
	ErrInvalidID          = errors.New("invalid_id")
	ErrInvalidItem        = errors.New("invalid_invoice_item")
	ErrInvalidVATRate     = errors.New("invalid_vat_rate")
	ErrInvalidPageToken   = errors.New("invalid_page_token")
	ErrNoItems            = errors.New("invoice_has_no_items")
	ErrInvoiceNotFound    = errors.New("invoice_not_found")
	ErrInvoiceNotDraft    = errors.New("invoice_not_editable")
	ErrInvoiceNotSendable = errors.New("invoice_not_sendable")
	ErrNotCancellable     = errors.New("invoice_not_cancellable")
	ErrEntriesNotBillable = errors.New("entries_not_billable")
)
