// Package domain contains invoice models and the invoice status function.
package domain

import (
	"math"
	"time"

	"github.com/bwmarrin/snowflake"
)

// InvoiceStatus is the billing lifecycle of an invoice.
type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "draft"
	InvoiceStatusSent      InvoiceStatus = "sent"
	InvoiceStatusPartial   InvoiceStatus = "partial"
	InvoiceStatusPaid      InvoiceStatus = "paid"
	InvoiceStatusOverdue   InvoiceStatus = "overdue"
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
)

// Invoice aggregates approved work into a billable document. Monetary
// fields are stored in halalas.
type Invoice struct {
	ID             snowflake.ID  `gorm:"primaryKey" json:"id"`
	Number         string        `gorm:"type:text;not null;uniqueIndex:idx_invoices_number,priority:2" json:"number"`
	LawyerID       snowflake.ID  `gorm:"not null;index;uniqueIndex:idx_invoices_number,priority:1" json:"lawyer_id"`
	ClientID       *snowflake.ID `gorm:"index" json:"client_id,omitempty"`
	CaseID         *snowflake.ID `gorm:"index" json:"case_id,omitempty"`
	IssueDate      time.Time     `gorm:"not null" json:"issue_date"`
	DueDate        time.Time     `gorm:"not null" json:"due_date"`
	Currency       string        `gorm:"type:text;not null" json:"currency"`
	SubtotalAmount int64         `gorm:"not null" json:"subtotal_amount"`
	VATRate        float64       `gorm:"not null" json:"vat_rate"`
	VATAmount      int64         `gorm:"not null" json:"vat_amount"`
	TotalAmount    int64         `gorm:"not null" json:"total_amount"`
	AmountPaid     int64         `gorm:"not null;default:0" json:"amount_paid"`
	BalanceDue     int64         `gorm:"not null" json:"balance_due"`
	Status         InvoiceStatus `gorm:"type:text;not null" json:"status"`
	Notes          *string       `gorm:"type:text" json:"notes,omitempty"`
	SentAt         *time.Time    `gorm:"" json:"sent_at,omitempty"`
	CancelledAt    *time.Time    `gorm:"" json:"cancelled_at,omitempty"`
	CreatedAt      time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt      time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`

	Items []InvoiceItem `gorm:"-" json:"items,omitempty"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// ItemKind records where an invoice line came from.
type ItemKind string

const (
	ItemKindTime    ItemKind = "time"
	ItemKindExpense ItemKind = "expense"
	ItemKindCustom  ItemKind = "custom"
)

// InvoiceItem is one invoice line. Quantity is in natural units (hours
// for time lines, 1 for expenses); LineTotal = round(Quantity × UnitPrice).
type InvoiceItem struct {
	ID          snowflake.ID  `gorm:"primaryKey" json:"id"`
	InvoiceID   snowflake.ID  `gorm:"not null;index" json:"invoice_id"`
	Kind        ItemKind      `gorm:"type:text;not null" json:"kind"`
	SourceID    *snowflake.ID `gorm:"" json:"source_id,omitempty"`
	Description string        `gorm:"type:text;not null" json:"description"`
	Quantity    float64       `gorm:"not null" json:"quantity"`
	UnitPrice   int64         `gorm:"not null" json:"unit_price"`
	LineTotal   int64         `gorm:"not null" json:"line_total"`
	CreatedAt   time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (InvoiceItem) TableName() string { return "invoice_items" }

// LineTotal computes a line amount in halalas, rounded half up.
func LineTotal(quantity float64, unitPrice int64) int64 {
	return int64(math.Round(quantity * float64(unitPrice)))
}

// VATAmount computes tax on a subtotal at a percentage rate.
func VATAmount(subtotal int64, vatRate float64) int64 {
	return int64(math.Round(float64(subtotal) * vatRate / 100))
}

// ComputeStatus derives the invoice status from its balances and dates.
// Cancellation and the unsent draft state take precedence; a settled
// balance means paid, a past-due open balance means overdue, any other
// partial payment means partial.
func ComputeStatus(inv Invoice, now time.Time) InvoiceStatus {
	switch {
	case inv.CancelledAt != nil:
		return InvoiceStatusCancelled
	case inv.SentAt == nil:
		return InvoiceStatusDraft
	case inv.BalanceDue <= 0:
		return InvoiceStatusPaid
	case now.After(inv.DueDate):
		return InvoiceStatusOverdue
	case inv.AmountPaid > 0:
		return InvoiceStatusPartial
	default:
		return InvoiceStatusSent
	}
}
