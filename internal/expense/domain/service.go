package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/mizanlaw/mizan/pkg/db/pagination"
)

type CreateExpenseRequest struct {
	ClientID      *snowflake.ID
	CaseID        *snowflake.ID
	Description   string
	ExpenseDate   *time.Time
	Amount        int64
	MarkupPercent float64
	Currency      string
	IsBillable    *bool
	ReceiptURL    *string
}

type UpdateExpenseRequest struct {
	ID            string
	Description   *string
	ExpenseDate   *time.Time
	Amount        *int64
	MarkupPercent *float64
	IsBillable    *bool
	ReceiptURL    *string
}

type ListExpensesRequest struct {
	pagination.Pagination
	Status   string
	ClientID string
	CaseID   string
	StartAt  *time.Time
	EndAt    *time.Time
}

type ListExpensesResponse struct {
	pagination.PageInfo
	Expenses []ExpenseEntry `json:"expenses"`
}

type Service interface {
	Create(ctx context.Context, req CreateExpenseRequest) (ExpenseEntry, error)
	Get(ctx context.Context, id string) (ExpenseEntry, error)
	List(ctx context.Context, req ListExpensesRequest) (ListExpensesResponse, error)
	Update(ctx context.Context, req UpdateExpenseRequest) (ExpenseEntry, error)
	Delete(ctx context.Context, id string) error
	Approve(ctx context.Context, id string) (ExpenseEntry, error)
	Reject(ctx context.Context, id string, reason string) (ExpenseEntry, error)
}

var (
	ErrInvalidLawyer      = errors.New("invalid_lawyer")
	ErrInvalidID          = errors.New("invalid_id")
	ErrInvalidAmount      = errors.New("invalid_amount")
	ErrInvalidMarkup      = errors.New("invalid_markup")
	ErrInvalidDescription = errors.New("invalid_description")
	ErrInvalidPageToken   = errors.New("invalid_page_token")
	ErrExpenseNotFound    = errors.New("expense_not_found")
	ErrExpenseInvoiced    = errors.New("expense_invoiced")
	ErrExpenseApproved    = errors.New("expense_already_approved")
	ErrReasonRequired     = errors.New("rejection_reason_required")
)
