// Package domain contains persistence models for billing rates.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// RateType scopes a billing rate to a client, case type or activity code.
type RateType string

const (
	RateTypeStandard       RateType = "standard"
	RateTypeCustomClient   RateType = "custom_client"
	RateTypeCustomCaseType RateType = "custom_case_type"
	RateTypeActivityBased  RateType = "activity_based"
)

// BillingRate is a lawyer's hourly rate configuration. Amounts are stored
// in halalas (minor currency units).
type BillingRate struct {
	ID                 snowflake.ID  `gorm:"primaryKey" json:"id"`
	LawyerID           snowflake.ID  `gorm:"not null;index" json:"lawyer_id"`
	RateType           RateType      `gorm:"type:text;not null" json:"rate_type"`
	StandardHourlyRate int64         `gorm:"not null" json:"standard_hourly_rate"`
	CustomRate         *int64        `gorm:"" json:"custom_rate,omitempty"`
	ClientID           *snowflake.ID `gorm:"index" json:"client_id,omitempty"`
	CaseType           *string       `gorm:"type:text" json:"case_type,omitempty"`
	ActivityCode       *string       `gorm:"type:text" json:"activity_code,omitempty"`
	Currency           string        `gorm:"type:text;not null" json:"currency"`
	EffectiveDate      time.Time     `gorm:"not null" json:"effective_date"`
	EndDate            *time.Time    `gorm:"" json:"end_date,omitempty"`
	IsActive           bool          `gorm:"not null;default:true" json:"is_active"`
	CreatedAt          time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt          time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (BillingRate) TableName() string { return "billing_rates" }

// HourlyRate returns the rate to bill: the custom override when present,
// the standard hourly rate otherwise.
func (r BillingRate) HourlyRate() int64 {
	if r.CustomRate != nil {
		return *r.CustomRate
	}
	return r.StandardHourlyRate
}
