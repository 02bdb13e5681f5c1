package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/mizanlaw/mizan/pkg/db/pagination"
)

type ListActivityLogRequest struct {
	pagination.Pagination
	Action     string
	TargetType string
	TargetID   string
	StartAt    *time.Time
	EndAt      *time.Time
}

type ListActivityLogResponse struct {
	pagination.PageInfo
	ActivityLogs []ActivityLog `json:"activity_logs"`
}

type Service interface {
	Log(ctx context.Context, lawyerID *snowflake.ID, action string, targetType string, targetID *string, metadata map[string]any) error
	List(ctx context.Context, req ListActivityLogRequest) (ListActivityLogResponse, error)
}

var (
	ErrInvalidLawyer    = errors.New("invalid_lawyer")
	ErrInvalidAction    = errors.New("invalid_action")
	ErrInvalidPageToken = errors.New("invalid_page_token")
	ErrInvalidTimeRange = errors.New("invalid_time_range")
)
