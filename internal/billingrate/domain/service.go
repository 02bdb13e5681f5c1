package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type SetRateRequest struct {
	RateType           RateType
	StandardHourlyRate int64
	CustomRate         *int64
	ClientID           *snowflake.ID
	CaseType           *string
	ActivityCode       *string
	Currency           string
	EffectiveDate      *time.Time
	EndDate            *time.Time
}

type UpdateRateRequest struct {
	ID                 string
	StandardHourlyRate *int64
	CustomRate         *int64
	EndDate            *time.Time
	IsActive           *bool
}

type ListRatesRequest struct {
	RateType   string
	ClientID   string
	ActiveOnly bool
}

// ResolveRequest carries the scoping hints for rate resolution. Only
// LawyerID is required; the other keys widen the cascade.
type ResolveRequest struct {
	LawyerID     snowflake.ID
	ClientID     *snowflake.ID
	CaseType     *string
	ActivityCode *string
}

// ResolvedRate is the outcome of the cascade.
type ResolvedRate struct {
	RateID     snowflake.ID `json:"rate_id"`
	RateType   RateType     `json:"rate_type"`
	HourlyRate int64        `json:"hourly_rate"`
	Currency   string       `json:"currency"`
}

type Service interface {
	SetRate(ctx context.Context, req SetRateRequest) (BillingRate, error)
	SetStandardRate(ctx context.Context, hourlyRate int64, currency string) (BillingRate, error)
	Update(ctx context.Context, req UpdateRateRequest) (BillingRate, error)
	List(ctx context.Context, req ListRatesRequest) ([]BillingRate, error)
	Resolve(ctx context.Context, req ResolveRequest) (ResolvedRate, error)
}

var (
	ErrInvalidLawyer     = errors.New("invalid_lawyer")
	ErrInvalidRateType   = errors.New("invalid_rate_type")
	ErrInvalidRate       = errors.New("invalid_rate")
	ErrInvalidScope      = errors.New("invalid_rate_scope")
	ErrInvalidID         = errors.New("invalid_id")
	ErrNotFound          = errors.New("rate_not_found")
	ErrRateNotConfigured = errors.New("rate_not_configured")
	ErrInvalidEffective  = errors.New("invalid_effective_date")
)
