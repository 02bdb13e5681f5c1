// Package domain contains retainer models and balance transition rules.
package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// RetainerStatus is the lifecycle of a prepaid retainer account.
type RetainerStatus string

const (
	RetainerStatusActive   RetainerStatus = "active"
	RetainerStatusDepleted RetainerStatus = "depleted"
	RetainerStatusRefunded RetainerStatus = "refunded"
	RetainerStatusExpired  RetainerStatus = "expired"
)

// Retainer is a client's prepaid balance. CurrentBalance never goes
// negative; consumption failing that invariant is rejected outright.
type Retainer struct {
	ID                  snowflake.ID   `gorm:"primaryKey" json:"id"`
	Number              string         `gorm:"type:text;not null;uniqueIndex:idx_retainers_number,priority:2" json:"number"`
	LawyerID            snowflake.ID   `gorm:"not null;index;uniqueIndex:idx_retainers_number,priority:1" json:"lawyer_id"`
	ClientID            snowflake.ID   `gorm:"not null;index" json:"client_id"`
	CaseID              *snowflake.ID  `gorm:"" json:"case_id,omitempty"`
	InitialAmount       int64          `gorm:"not null" json:"initial_amount"`
	CurrentBalance      int64          `gorm:"not null" json:"current_balance"`
	MinimumBalance      int64          `gorm:"not null;default:0" json:"minimum_balance"`
	Currency            string         `gorm:"type:text;not null" json:"currency"`
	Status              RetainerStatus `gorm:"type:text;not null" json:"status"`
	LowBalanceAlertSent bool           `gorm:"not null;default:false" json:"low_balance_alert_sent"`
	CreatedAt           time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt           time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Retainer) TableName() string { return "retainers" }

// TransactionKind classifies a retainer movement.
type TransactionKind string

const (
	TransactionKindDeposit     TransactionKind = "deposit"
	TransactionKindConsumption TransactionKind = "consumption"
	TransactionKindRefund      TransactionKind = "refund"
)

// RetainerTransaction is one append-only balance movement.
type RetainerTransaction struct {
	ID           snowflake.ID    `gorm:"primaryKey" json:"id"`
	RetainerID   snowflake.ID    `gorm:"not null;index" json:"retainer_id"`
	Kind         TransactionKind `gorm:"type:text;not null" json:"kind"`
	Amount       int64           `gorm:"not null" json:"amount"`
	BalanceAfter int64           `gorm:"not null" json:"balance_after"`
	Description  *string         `gorm:"type:text" json:"description,omitempty"`
	PaymentID    *snowflake.ID   `gorm:"" json:"payment_id,omitempty"`
	InvoiceID    *snowflake.ID   `gorm:"" json:"invoice_id,omitempty"`
	CreatedAt    time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (RetainerTransaction) TableName() string { return "retainer_transactions" }

var ErrInsufficientBalance = errors.New("insufficient_balance")

// ApplyDeposit credits the balance, reactivates a depleted account and
// unconditionally re-arms the low-balance alert.
func ApplyDeposit(r *Retainer, amount int64) {
	r.CurrentBalance += amount
	if r.Status == RetainerStatusDepleted {
		r.Status = RetainerStatusActive
	}
	r.LowBalanceAlertSent = false
}

// ApplyConsumption debits the balance. It reports whether this debit
// crossed the low-balance threshold for the first time since the alert
// was last re-armed.
func ApplyConsumption(r *Retainer, amount int64) (alerted bool, err error) {
	if amount > r.CurrentBalance {
		return false, ErrInsufficientBalance
	}
	r.CurrentBalance -= amount
	if r.CurrentBalance == 0 {
		r.Status = RetainerStatusDepleted
	}
	if r.CurrentBalance > 0 && r.CurrentBalance <= r.MinimumBalance && !r.LowBalanceAlertSent {
		r.LowBalanceAlertSent = true
		alerted = true
	}
	return alerted, nil
}
