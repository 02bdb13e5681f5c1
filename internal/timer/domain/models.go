// Package domain contains the timer session model and service contract.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// SessionStatus is the live state of a timer session. Stopped sessions
// are not retained; stop folds the session into a draft time entry and
// deletes the row.
type SessionStatus string

const (
	SessionStatusRunning SessionStatus = "running"
	SessionStatusPaused  SessionStatus = "paused"
)

// TimerSession is the single running or paused stopwatch for a lawyer.
// The unique index on lawyer_id enforces at most one live session per
// lawyer even when two starts race past the application-level lock.
type TimerSession struct {
	ID                 snowflake.ID  `gorm:"primaryKey" json:"id"`
	LawyerID           snowflake.ID  `gorm:"not null;uniqueIndex" json:"lawyer_id"`
	ClientID           *snowflake.ID `gorm:"" json:"client_id,omitempty"`
	CaseID             *snowflake.ID `gorm:"" json:"case_id,omitempty"`
	CaseType           *string       `gorm:"type:text" json:"case_type,omitempty"`
	ActivityCode       *string       `gorm:"type:text" json:"activity_code,omitempty"`
	Description        string        `gorm:"type:text;not null" json:"description"`
	Status             SessionStatus `gorm:"type:text;not null" json:"status"`
	StartedAt          time.Time     `gorm:"not null" json:"started_at"`
	PausedAt           *time.Time    `gorm:"" json:"paused_at,omitempty"`
	PausedTotalSeconds int64         `gorm:"not null;default:0" json:"paused_total_seconds"`
	RateID             snowflake.ID  `gorm:"not null" json:"rate_id"`
	RateType           string        `gorm:"type:text;not null" json:"rate_type"`
	HourlyRate         int64         `gorm:"not null" json:"hourly_rate"`
	Currency           string        `gorm:"type:text;not null" json:"currency"`
	CreatedAt          time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt          time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (TimerSession) TableName() string { return "timer_sessions" }

// ElapsedMinutes computes billable minutes as of now: wall time since
// start minus accumulated pauses, with an open pause counted up to now.
// The result is rounded to the nearest minute.
func (s TimerSession) ElapsedMinutes(now time.Time) int64 {
	pausedSeconds := s.PausedTotalSeconds
	if s.Status == SessionStatusPaused && s.PausedAt != nil {
		pausedSeconds += int64(now.Sub(*s.PausedAt) / time.Second)
	}
	elapsedSeconds := int64(now.Sub(s.StartedAt)/time.Second) - pausedSeconds
	if elapsedSeconds < 0 {
		return 0
	}
	return (elapsedSeconds + 30) / 60
}
