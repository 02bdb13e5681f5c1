package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	entrydomain "github.com/mizanlaw/mizan/internal/timeentry/domain"
)

type StartTimerRequest struct {
	ClientID     *snowflake.ID
	CaseID       *snowflake.ID
	CaseType     *string
	ActivityCode *string
	Description  string
}

type StopTimerRequest struct {
	Notes      string
	IsBillable *bool
}

// TimerStatus is a read-only snapshot with a live elapsed computation.
type TimerStatus struct {
	Session        TimerSession `json:"session"`
	ElapsedMinutes int64        `json:"elapsed_minutes"`
	AsOf           time.Time    `json:"as_of"`
}

type Service interface {
	Start(ctx context.Context, req StartTimerRequest) (TimerSession, error)
	Pause(ctx context.Context) (TimerSession, error)
	Resume(ctx context.Context) (TimerSession, error)
	Stop(ctx context.Context, req StopTimerRequest) (entrydomain.TimeEntry, error)
	Status(ctx context.Context) (TimerStatus, error)
}

var (
	ErrInvalidLawyer   = errors.New("invalid_lawyer")
	ErrAlreadyRunning  = errors.New("timer_already_running")
	ErrTimerNotFound   = errors.New("timer_not_found")
	ErrTimerNotRunning = errors.New("timer_not_running")
	ErrTimerNotPaused  = errors.New("timer_not_paused")
	ErrSessionTooShort = errors.New("timer_session_too_short")
	ErrTimerBusy       = errors.New("timer_busy")
)
