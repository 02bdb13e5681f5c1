// Package domain contains persistence models for the time ledger.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// EntryStatus is the approval lifecycle of a time entry.
type EntryStatus string

const (
	EntryStatusDraft           EntryStatus = "draft"
	EntryStatusPendingApproval EntryStatus = "pending_approval"
	EntryStatusApproved        EntryStatus = "approved"
	EntryStatusInvoiced        EntryStatus = "invoiced"
	EntryStatusRejected        EntryStatus = "rejected"
)

// EntrySource records how an entry came to exist.
type EntrySource string

const (
	EntrySourceManual EntrySource = "manual"
	EntrySourceTimer  EntrySource = "timer"
)

// TimeEntry is a unit of billable (or non-billable) work. Monetary fields
// are stored in halalas; TotalAmount is derived from DurationMinutes and
// HourlyRate and frozen once the entry is invoiced.
type TimeEntry struct {
	ID              snowflake.ID  `gorm:"primaryKey" json:"id"`
	Number          string        `gorm:"type:text;not null;uniqueIndex:idx_time_entries_number,priority:2" json:"number"`
	LawyerID        snowflake.ID  `gorm:"not null;index;uniqueIndex:idx_time_entries_number,priority:1" json:"lawyer_id"`
	ClientID        *snowflake.ID `gorm:"index" json:"client_id,omitempty"`
	CaseID          *snowflake.ID `gorm:"index" json:"case_id,omitempty"`
	ActivityCode    *string       `gorm:"type:text" json:"activity_code,omitempty"`
	Description     string        `gorm:"type:text;not null" json:"description"`
	WorkDate        time.Time     `gorm:"not null" json:"work_date"`
	DurationMinutes int64         `gorm:"not null" json:"duration_minutes"`
	HourlyRate      int64         `gorm:"not null" json:"hourly_rate"`
	TotalAmount     int64         `gorm:"not null" json:"total_amount"`
	Currency        string        `gorm:"type:text;not null" json:"currency"`
	IsBillable      bool          `gorm:"not null;default:true" json:"is_billable"`
	Status          EntryStatus   `gorm:"type:text;not null" json:"status"`
	Source          EntrySource   `gorm:"type:text;not null" json:"source"`
	InvoiceID       *snowflake.ID `gorm:"index" json:"invoice_id,omitempty"`
	ApprovedBy      *snowflake.ID `gorm:"" json:"approved_by,omitempty"`
	ApprovedAt      *time.Time    `gorm:"" json:"approved_at,omitempty"`
	RejectionReason *string       `gorm:"type:text" json:"rejection_reason,omitempty"`
	CreatedAt       time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt       time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (TimeEntry) TableName() string { return "time_entries" }

// TimeEntryEdit is one append-only edit-history record. Changes holds a
// JSON object of {field: {"old": ..., "new": ...}} diffs.
type TimeEntryEdit struct {
	ID        snowflake.ID   `gorm:"primaryKey" json:"id"`
	EntryID   snowflake.ID   `gorm:"not null;index" json:"entry_id"`
	EditorID  snowflake.ID   `gorm:"not null" json:"editor_id"`
	Changes   datatypes.JSON `gorm:"type:jsonb" json:"changes"`
	CreatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (TimeEntryEdit) TableName() string { return "time_entry_edits" }

// Amount returns the billed total for a duration at an hourly rate, in
// halalas, rounded half up.
func Amount(durationMinutes, hourlyRate int64) int64 {
	return (durationMinutes*hourlyRate + 30) / 60
}
