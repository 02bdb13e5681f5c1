package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/mizanlaw/mizan/pkg/db/pagination"
)

type CreatePaymentRequest struct {
	TargetType TargetType
	InvoiceID  *snowflake.ID
	RetainerID *snowflake.ID
	ClientID   *snowflake.ID
	Amount     int64
	Currency   string
	Method     string
	Notes      *string
}

type RefundRequest struct {
	PaymentID string
	Amount    *int64 // nil refunds the full original amount
	Reason    string
}

type ListPaymentsRequest struct {
	pagination.Pagination
	Status     string
	TargetType string
	InvoiceID  string
}

type ListPaymentsResponse struct {
	pagination.PageInfo
	Payments []Payment `json:"payments"`
}

// Stats aggregates a lawyer's payment amounts over an optional window.
type Stats struct {
	TotalCollected int64 `json:"total_collected"`
	TotalPending   int64 `json:"total_pending"`
	TotalRefunded  int64 `json:"total_refunded"`
	CompletedCount int64 `json:"completed_count"`
	PendingCount   int64 `json:"pending_count"`
	FailedCount    int64 `json:"failed_count"`
	RefundCount    int64 `json:"refund_count"`
}

type StatsRequest struct {
	StartAt *time.Time
	EndAt   *time.Time
}

type Service interface {
	Create(ctx context.Context, req CreatePaymentRequest) (Payment, error)
	Get(ctx context.Context, id string) (Payment, error)
	List(ctx context.Context, req ListPaymentsRequest) (ListPaymentsResponse, error)
	Complete(ctx context.Context, id string) (Payment, error)
	Fail(ctx context.Context, id string, reason string) (Payment, error)
	Cancel(ctx context.Context, id string) (Payment, error)
	Refund(ctx context.Context, req RefundRequest) (Payment, error)
	GetStats(ctx context.Context, req StatsRequest) (Stats, error)
}

var (
	ErrInvalidLawyer     = errors.New("invalid_lawyer")
	ErrInvalidID         = errors.New("invalid_id")
	ErrInvalidAmount     = errors.New("invalid_amount")
	ErrInvalidMethod     = errors.New("invalid_method")
	ErrInvalidTarget     = errors.New("invalid_payment_target")
	ErrCurrencyMismatch  = errors.New("payment_currency_mismatch")
	ErrTargetNotPayable  = errors.New("payment_target_not_payable")
	ErrInvalidPageToken  = errors.New("invalid_page_token")
	ErrPaymentNotFound   = errors.New("payment_not_found")
	ErrPaymentNotPending = errors.New("payment_not_pending")
	ErrNotRefundable     = errors.New("payment_not_refundable")
	ErrRefundTooLarge    = errors.New("refund_exceeds_original")
	ErrTargetNotFound    = errors.New("payment_target_not_found")
)
