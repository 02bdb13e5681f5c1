// Package numbering allocates human-readable document numbers such as
// INV-202609-0001. Sequences are scoped per lawyer, document kind and
// period, and must be allocated inside the caller's transaction so a
// rolled-back create never burns a number hole into committed state.
package numbering

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// DocType identifies a numbered document kind.
type DocType string

const (
	DocTypeInvoice   DocType = "invoice"
	DocTypeTimeEntry DocType = "time_entry"
	DocTypeExpense   DocType = "expense"
	DocTypeStatement DocType = "statement"
	DocTypePayment   DocType = "payment"
	DocTypeRetainer  DocType = "retainer"
)

type docFormat struct {
	prefix      string
	periodScope string // "2006" or "200601"
}

var formats = map[DocType]docFormat{
	DocTypeInvoice:   {prefix: "INV", periodScope: "200601"},
	DocTypeTimeEntry: {prefix: "TIME", periodScope: "200601"},
	DocTypeExpense:   {prefix: "EXP", periodScope: "200601"},
	DocTypeStatement: {prefix: "STMT", periodScope: "200601"},
	DocTypePayment:   {prefix: "PAY", periodScope: "2006"},
	DocTypeRetainer:  {prefix: "RET", periodScope: "2006"},
}

// Format renders a document number for a given sequence value.
func Format(docType DocType, at time.Time, seq int64) (string, error) {
	format, ok := formats[docType]
	if !ok {
		return "", fmt.Errorf("unknown document type %q", docType)
	}
	if seq <= 0 {
		return "", fmt.Errorf("invalid document sequence: %d", seq)
	}
	return fmt.Sprintf("%s-%s-%04d", format.prefix, at.UTC().Format(format.periodScope), seq), nil
}

// Period returns the sequence period key for a document type at a given time.
func Period(docType DocType, at time.Time) (string, error) {
	format, ok := formats[docType]
	if !ok {
		return "", fmt.Errorf("unknown document type %q", docType)
	}
	return at.UTC().Format(format.periodScope), nil
}

// Next allocates the next number for (lawyer, docType, period) within tx.
func Next(ctx context.Context, tx *gorm.DB, lawyerID snowflake.ID, docType DocType, at time.Time) (string, error) {
	period, err := Period(docType, at)
	if err != nil {
		return "", err
	}

	var seq int64
	if err := tx.WithContext(ctx).Raw(
		`INSERT INTO document_sequences (lawyer_id, doc_type, period, next_seq)
		 VALUES (?, ?, ?, 1)
		 ON CONFLICT (lawyer_id, doc_type, period)
		 DO UPDATE SET next_seq = document_sequences.next_seq + 1
		 RETURNING next_seq`,
		lawyerID,
		string(docType),
		period,
	).Scan(&seq).Error; err != nil {
		return "", err
	}

	return Format(docType, at, seq)
}
