// Package domain contains payment models and the processor contract.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// PaymentStatus is the processing lifecycle of a payment.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
	PaymentStatusCancelled PaymentStatus = "cancelled"
)

// TargetType states what a payment settles. It is always explicit;
// nothing is inferred from which reference fields happen to be set.
type TargetType string

const (
	TargetTypeInvoice  TargetType = "invoice"
	TargetTypeRetainer TargetType = "retainer"
)

// Payment records money movement against an invoice or a retainer
// top-up. Amount is signed: refunds carry a negative amount and point
// back at the original payment.
type Payment struct {
	ID                snowflake.ID  `gorm:"primaryKey" json:"id"`
	Number            string        `gorm:"type:text;not null;uniqueIndex:idx_payments_number,priority:2" json:"number"`
	LawyerID          snowflake.ID  `gorm:"not null;index;uniqueIndex:idx_payments_number,priority:1" json:"lawyer_id"`
	ClientID          *snowflake.ID `gorm:"index" json:"client_id,omitempty"`
	TargetType        TargetType    `gorm:"type:text;not null" json:"target_type"`
	InvoiceID         *snowflake.ID `gorm:"index" json:"invoice_id,omitempty"`
	RetainerID        *snowflake.ID `gorm:"index" json:"retainer_id,omitempty"`
	Amount            int64         `gorm:"not null" json:"amount"`
	Currency          string        `gorm:"type:text;not null" json:"currency"`
	Method            string        `gorm:"type:text;not null" json:"method"`
	Status            PaymentStatus `gorm:"type:text;not null" json:"status"`
	IsRefund          bool          `gorm:"not null;default:false" json:"is_refund"`
	OriginalPaymentID *snowflake.ID `gorm:"" json:"original_payment_id,omitempty"`
	FailureReason     *string       `gorm:"type:text" json:"failure_reason,omitempty"`
	RetryCount        int           `gorm:"not null;default:0" json:"retry_count"`
	Notes             *string       `gorm:"type:text" json:"notes,omitempty"`
	ProcessedAt       *time.Time    `gorm:"" json:"processed_at,omitempty"`
	CreatedAt         time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt         time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Payment) TableName() string { return "payments" }
