// Package domain contains persistence models for the expense ledger.
package domain

import (
	"math"
	"time"

	"github.com/bwmarrin/snowflake"
)

// ExpenseStatus mirrors the time-entry approval lifecycle.
type ExpenseStatus string

const (
	ExpenseStatusDraft           ExpenseStatus = "draft"
	ExpenseStatusPendingApproval ExpenseStatus = "pending_approval"
	ExpenseStatusApproved        ExpenseStatus = "approved"
	ExpenseStatusInvoiced        ExpenseStatus = "invoiced"
	ExpenseStatusRejected        ExpenseStatus = "rejected"
)

// ExpenseEntry is a billable or reimbursable expense. Amount and
// BilledAmount are stored in halalas; BilledAmount adds the markup.
type ExpenseEntry struct {
	ID              snowflake.ID  `gorm:"primaryKey" json:"id"`
	Number          string        `gorm:"type:text;not null;uniqueIndex:idx_expense_entries_number,priority:2" json:"number"`
	LawyerID        snowflake.ID  `gorm:"not null;index;uniqueIndex:idx_expense_entries_number,priority:1" json:"lawyer_id"`
	ClientID        *snowflake.ID `gorm:"index" json:"client_id,omitempty"`
	CaseID          *snowflake.ID `gorm:"index" json:"case_id,omitempty"`
	Description     string        `gorm:"type:text;not null" json:"description"`
	ExpenseDate     time.Time     `gorm:"not null" json:"expense_date"`
	Amount          int64         `gorm:"not null" json:"amount"`
	MarkupPercent   float64       `gorm:"not null;default:0" json:"markup_percent"`
	BilledAmount    int64         `gorm:"not null" json:"billed_amount"`
	Currency        string        `gorm:"type:text;not null" json:"currency"`
	IsBillable      bool          `gorm:"not null;default:true" json:"is_billable"`
	ReceiptURL      *string       `gorm:"type:text" json:"receipt_url,omitempty"`
	Status          ExpenseStatus `gorm:"type:text;not null" json:"status"`
	InvoiceID       *snowflake.ID `gorm:"index" json:"invoice_id,omitempty"`
	ApprovedBy      *snowflake.ID `gorm:"" json:"approved_by,omitempty"`
	ApprovedAt      *time.Time    `gorm:"" json:"approved_at,omitempty"`
	RejectionReason *string       `gorm:"type:text" json:"rejection_reason,omitempty"`
	CreatedAt       time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt       time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (ExpenseEntry) TableName() string { return "expense_entries" }

// Billed returns the client-facing amount for an expense with a markup
// percentage applied, rounded half up in halalas.
func Billed(amount int64, markupPercent float64) int64 {
	return amount + int64(math.Round(float64(amount)*markupPercent/100))
}
