package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/mizanlaw/mizan/pkg/db/pagination"
	"gorm.io/gorm"
)

type CreateEntryRequest struct {
	ClientID     *snowflake.ID
	CaseID       *snowflake.ID
	CaseType     *string
	ActivityCode *string
	Description  string
	WorkDate     *time.Time
	Duration     int64 // minutes
	IsBillable   *bool
}

// CreateFromTimerRequest carries a stopped timer session into the ledger.
// The rate was snapshotted when the timer started, so no resolution
// happens here. The caller supplies the transaction so the entry and the
// session deletion commit together.
type CreateFromTimerRequest struct {
	LawyerID     snowflake.ID
	ClientID     *snowflake.ID
	CaseID       *snowflake.ID
	ActivityCode *string
	Description  string
	WorkDate     time.Time
	Duration     int64
	HourlyRate   int64
	Currency     string
	IsBillable   bool
}

type UpdateEntryRequest struct {
	ID           string
	Description  *string
	WorkDate     *time.Time
	Duration     *int64
	HourlyRate   *int64
	ActivityCode *string
	IsBillable   *bool
}

type ListEntriesRequest struct {
	pagination.Pagination
	Status   string
	ClientID string
	CaseID   string
	StartAt  *time.Time
	EndAt    *time.Time
}

type ListEntriesResponse struct {
	pagination.PageInfo
	Entries []TimeEntry `json:"entries"`
}

type Service interface {
	Create(ctx context.Context, req CreateEntryRequest) (TimeEntry, error)
	CreateFromTimer(ctx context.Context, tx *gorm.DB, req CreateFromTimerRequest) (TimeEntry, error)
	Get(ctx context.Context, id string) (TimeEntry, error)
	List(ctx context.Context, req ListEntriesRequest) (ListEntriesResponse, error)
	Update(ctx context.Context, req UpdateEntryRequest) (TimeEntry, error)
	Delete(ctx context.Context, id string) error
	Submit(ctx context.Context, id string) (TimeEntry, error)
	Approve(ctx context.Context, id string) (TimeEntry, error)
	Reject(ctx context.Context, id string, reason string) (TimeEntry, error)
	EditHistory(ctx context.Context, id string) ([]TimeEntryEdit, error)
}

var (
	ErrInvalidLawyer      = errors.New("invalid_lawyer")
	ErrInvalidID          = errors.New("invalid_id")
	ErrInvalidDuration    = errors.New("invalid_duration")
	ErrInvalidDescription = errors.New("invalid_description")
	ErrInvalidPageToken   = errors.New("invalid_page_token")
	ErrEntryNotFound      = errors.New("entry_not_found")
	ErrEntryInvoiced      = errors.New("entry_invoiced")
	ErrEntryApproved      = errors.New("entry_already_approved")
	ErrEntryNotDraft      = errors.New("entry_not_draft")
	ErrReasonRequired     = errors.New("rejection_reason_required")
)
