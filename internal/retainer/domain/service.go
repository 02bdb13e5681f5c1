package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/mizanlaw/mizan/pkg/db/pagination"
)

type CreateRetainerRequest struct {
	ClientID       *snowflake.ID
	CaseID         *snowflake.ID
	InitialAmount  int64
	MinimumBalance int64
	Currency       string
}

type ConsumeRequest struct {
	RetainerID  string
	Amount      int64
	Description *string
	InvoiceID   *snowflake.ID
}

// ConsumeResult carries the one-shot low-balance signal alongside the
// updated account so callers can notify without re-deriving it.
type ConsumeResult struct {
	Retainer    Retainer            `json:"retainer"`
	Transaction RetainerTransaction `json:"transaction"`
	LowBalance  bool                `json:"low_balance"`
}

type ReplenishRequest struct {
	RetainerID  string
	Amount      int64
	Description *string
	PaymentID   *snowflake.ID
}

type ListRetainersRequest struct {
	pagination.Pagination
	Status   string
	ClientID string
}

type ListRetainersResponse struct {
	pagination.PageInfo
	Retainers []Retainer `json:"retainers"`
}

type ListTransactionsRequest struct {
	pagination.Pagination
	RetainerID string
}

type ListTransactionsResponse struct {
	pagination.PageInfo
	Transactions []RetainerTransaction `json:"transactions"`
}

type Service interface {
	Create(ctx context.Context, req CreateRetainerRequest) (Retainer, error)
	Get(ctx context.Context, id string) (Retainer, error)
	List(ctx context.Context, req ListRetainersRequest) (ListRetainersResponse, error)
	Consume(ctx context.Context, req ConsumeRequest) (ConsumeResult, error)
	Replenish(ctx context.Context, req ReplenishRequest) (Retainer, error)
	Refund(ctx context.Context, id string, reason string) (Retainer, error)
	Transactions(ctx context.Context, req ListTransactionsRequest) (ListTransactionsResponse, error)
}

var (
	ErrInvalidLawyer    = errors.New("invalid_lawyer")
	ErrInvalidID        = errors.New("invalid_id")
	ErrInvalidClient    = errors.New("invalid_client")
	ErrInvalidAmount    = errors.New("invalid_amount")
	ErrInvalidMinimum   = errors.New("invalid_minimum_balance")
	ErrInvalidPageToken = errors.New("invalid_page_token")
	ErrRetainerNotFound = errors.New("retainer_not_found")
	ErrRetainerClosed   = errors.New("retainer_closed")
)
