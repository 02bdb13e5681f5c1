package service_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/mizanlaw/mizan/internal/audit/domain"
	"github.com/mizanlaw/mizan/internal/clock"
	"github.com/mizanlaw/mizan/internal/config"
	expensedomain "github.com/mizanlaw/mizan/internal/expense/domain"
	invoicedomain "github.com/mizanlaw/mizan/internal/invoice/domain"
	invoiceservice "github.com/mizanlaw/mizan/internal/invoice/service"
	"github.com/mizanlaw/mizan/internal/lawyerctx"
	entrydomain "github.com/mizanlaw/mizan/internal/timeentry/domain"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type noopAuditService struct{}

func (noopAuditService) Log(ctx context.Context, lawyerID *snowflake.ID, action string, targetType string, targetID *string, metadata map[string]any) error {
	return nil
}

func (noopAuditService) List(ctx context.Context, req auditdomain.ListActivityLogRequest) (auditdomain.ListActivityLogResponse, error) {
	return auditdomain.ListActivityLogResponse{}, nil
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	// SQLite support hack: remove FOR UPDATE clauses
	stripLocking := func(d *gorm.DB) {
		sql := d.Statement.SQL.String()
		if strings.Contains(sql, "FOR UPDATE") {
			newSQL := strings.ReplaceAll(sql, "FOR UPDATE SKIP LOCKED", "")
			newSQL = strings.ReplaceAll(newSQL, "FOR UPDATE", "")
			d.Statement.SQL.Reset()
			d.Statement.SQL.WriteString(newSQL)
		}
	}
	if err := db.Callback().Query().Before("gorm:query").Register("sqlite_skip_locked", stripLocking); err != nil {
		t.Fatalf("register callback: %v", err)
	}
	if err := db.Callback().Row().Before("gorm:row").Register("sqlite_skip_locked_row", stripLocking); err != nil {
		t.Fatalf("register callback: %v", err)
	}

	schema := []string{
		`CREATE TABLE invoices (
			id BIGINT PRIMARY KEY,
			number TEXT NOT NULL,
			lawyer_id BIGINT NOT NULL,
			client_id BIGINT,
			case_id BIGINT,
			issue_date DATETIME NOT NULL,
			due_date DATETIME NOT NULL,
			currency TEXT NOT NULL,
			subtotal_amount BIGINT NOT NULL,
			vat_rate REAL NOT NULL,
			vat_amount BIGINT NOT NULL,
			total_amount BIGINT NOT NULL,
			amount_paid BIGINT NOT NULL DEFAULT 0,
			balance_due BIGINT NOT NULL,
			status TEXT NOT NULL,
			notes TEXT,
			sent_at DATETIME,
			cancelled_at DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE invoice_items (
			id BIGINT PRIMARY KEY,
			invoice_id BIGINT NOT NULL,
			kind TEXT NOT NULL,
			source_id BIGINT,
			description TEXT NOT NULL,
			quantity REAL NOT NULL,
			unit_price BIGINT NOT NULL,
			line_total BIGINT NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE time_entries (
			id BIGINT PRIMARY KEY,
			number TEXT NOT NULL,
			lawyer_id BIGINT NOT NULL,
			client_id BIGINT,
			case_id BIGINT,
			activity_code TEXT,
			description TEXT NOT NULL,
			work_date DATETIME NOT NULL,
			duration_minutes BIGINT NOT NULL,
			hourly_rate BIGINT NOT NULL,
			total_amount BIGINT NOT NULL,
			currency TEXT NOT NULL,
			is_billable BOOLEAN NOT NULL DEFAULT TRUE,
			status TEXT NOT NULL,
			source TEXT NOT NULL,
			invoice_id BIGINT,
			approved_by BIGINT,
			approved_at DATETIME,
			rejection_reason TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE expense_entries (
			id BIGINT PRIMARY KEY,
			number TEXT NOT NULL,
			lawyer_id BIGINT NOT NULL,
			client_id BIGINT,
			case_id BIGINT,
			description TEXT NOT NULL,
			expense_date DATETIME NOT NULL,
			amount BIGINT NOT NULL,
			markup_percent REAL NOT NULL DEFAULT 0,
			billed_amount BIGINT NOT NULL,
			currency TEXT NOT NULL,
			is_billable BOOLEAN NOT NULL DEFAULT TRUE,
			receipt_url TEXT,
			status TEXT NOT NULL,
			invoice_id BIGINT,
			approved_by BIGINT,
			approved_at DATETIME,
			rejection_reason TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE document_sequences (
			lawyer_id BIGINT NOT NULL,
			doc_type TEXT NOT NULL,
			period TEXT NOT NULL,
			next_seq BIGINT NOT NULL,
			PRIMARY KEY (lawyer_id, doc_type, period)
		)`,
		`CREATE UNIQUE INDEX idx_invoices_number ON invoices (lawyer_id, number)`,
		`CREATE UNIQUE INDEX idx_time_entries_number ON time_entries (lawyer_id, number)`,
		`CREATE UNIQUE INDEX idx_expense_entries_number ON expense_entries (lawyer_id, number)`,
	}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	return db
}

func newInvoiceService(t *testing.T, db *gorm.DB, clk clock.Clock) invoicedomain.Service {
	t.Helper()

	node, err := snowflake.NewNode(24)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	return invoiceservice.NewService(invoiceservice.Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    clk,
		Cfg:      config.Config{DefaultCurrency: "SAR", DefaultVATRate: 15},
		AuditSvc: noopAuditService{},
	})
}

func seedApprovedTimeEntry(t *testing.T, db *gorm.DB, id, lawyerID snowflake.ID, minutes, rate int64, at time.Time) entrydomain.TimeEntry {
	t.Helper()

	entry := entrydomain.TimeEntry{
		ID:              id,
		Number:          fmt.Sprintf("TIME-%s-%04d", at.Format("200601"), id%10000),
		LawyerID:        lawyerID,
		Description:     "Hearing preparation",
		WorkDate:        at,
		DurationMinutes: minutes,
		HourlyRate:      rate,
		TotalAmount:     entrydomain.Amount(minutes, rate),
		Currency:        "SAR",
		IsBillable:      true,
		Status:          entrydomain.EntryStatusApproved,
		Source:          entrydomain.EntrySourceManual,
		CreatedAt:       at,
		UpdatedAt:       at,
	}
	if err := db.Create(&entry).Error; err != nil {
		t.Fatalf("seed time entry: %v", err)
	}
	return entry
}

func seedApprovedExpense(t *testing.T, db *gorm.DB, id, lawyerID snowflake.ID, billed int64, at time.Time) expensedomain.ExpenseEntry {
	t.Helper()

	expense := expensedomain.ExpenseEntry{
		ID:           id,
		Number:       fmt.Sprintf("EXP-%s-%04d", at.Format("200601"), id%10000),
		LawyerID:     lawyerID,
		Description:  "Court filing fee",
		ExpenseDate:  at,
		Amount:       billed,
		BilledAmount: billed,
		Currency:     "SAR",
		IsBillable:   true,
		Status:       expensedomain.ExpenseStatusApproved,
		CreatedAt:    at,
		UpdatedAt:    at,
	}
	if err := db.Create(&expense).Error; err != nil {
		t.Fatalf("seed expense: %v", err)
	}
	return expense
}

func TestCreateComputesVATAndTotal(t *testing.T) {
	db := setupTestDB(t)
	clk := clock.NewFakeClock(time.Date(2026, 9, 14, 10, 0, 0, 0, time.UTC))
	svc := newInvoiceService(t, db, clk)

	ctx := lawyerctx.WithLawyerID(context.Background(), snowflake.ID(500))
	invoice, err := svc.Create(ctx, invoicedomain.CreateInvoiceRequest{
		Items: []invoicedomain.ItemInput{
			{Description: "Consultation", Quantity: 2, UnitPrice: 30000},
			{Description: "Document review", Quantity: 1, UnitPrice: 40000},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "INV-202609-0001", invoice.Number)
	require.Equal(t, int64(100000), invoice.SubtotalAmount)
	require.Equal(t, int64(15000), invoice.VATAmount)
	require.Equal(t, int64(115000), invoice.TotalAmount)
	require.Equal(t, int64(115000), invoice.BalanceDue)
	require.Equal(t, invoicedomain.InvoiceStatusDraft, invoice.Status)
	require.Len(t, invoice.Items, 2)
}

func TestNumbersAreScopedPerLawyer(t *testing.T) {
	db := setupTestDB(t)
	clk := clock.NewFakeClock(time.Date(2026, 9, 14, 10, 0, 0, 0, time.UTC))
	svc := newInvoiceService(t, db, clk)

	items := []invoicedomain.ItemInput{{Description: "Consultation", Quantity: 1, UnitPrice: 30000}}

	// Two lawyers each get sequence 0001 for the same month; the unique
	// index is (lawyer_id, number), so the second create must not collide.
	first, err := svc.Create(lawyerctx.WithLawyerID(context.Background(), snowflake.ID(9001)), invoicedomain.CreateInvoiceRequest{Items: items})
	require.NoError(t, err)
	require.Equal(t, "INV-202609-0001", first.Number)

	second, err := svc.Create(lawyerctx.WithLawyerID(context.Background(), snowflake.ID(9002)), invoicedomain.CreateInvoiceRequest{Items: items})
	require.NoError(t, err)
	require.Equal(t, "INV-202609-0001", second.Number)
}

func TestCreateFromEntriesMarksRowsInvoiced(t *testing.T) {
	db := setupTestDB(t)
	clk := clock.NewFakeClock(time.Date(2026, 9, 14, 10, 0, 0, 0, time.UTC))
	svc := newInvoiceService(t, db, clk)

	lawyerID := snowflake.ID(501)
	entry := seedApprovedTimeEntry(t, db, snowflake.ID(9001), lawyerID, 120, 20000, clk.Now())
	expense := seedApprovedExpense(t, db, snowflake.ID(9002), lawyerID, 55000, clk.Now())
	ctx := lawyerctx.WithLawyerID(context.Background(), lawyerID)

	invoice, err := svc.CreateFromEntries(ctx, invoicedomain.CreateFromEntriesRequest{
		TimeEntryIDs: []string{entry.ID.String()},
		ExpenseIDs:   []string{expense.ID.String()},
	})
	require.NoError(t, err)
	require.Equal(t, int64(95000), invoice.SubtotalAmount)
	require.Equal(t, int64(14250), invoice.VATAmount)
	require.Equal(t, int64(109250), invoice.TotalAmount)
	require.Len(t, invoice.Items, 2)

	var reloaded entrydomain.TimeEntry
	require.NoError(t, db.First(&reloaded, "id = ?", entry.ID).Error)
	require.Equal(t, entrydomain.EntryStatusInvoiced, reloaded.Status)
	require.NotNil(t, reloaded.InvoiceID)
	require.Equal(t, invoice.ID, *reloaded.InvoiceID)

	// The same rows cannot be invoiced twice.
	_, err = svc.CreateFromEntries(ctx, invoicedomain.CreateFromEntriesRequest{
		TimeEntryIDs: []string{entry.ID.String()},
	})
	if !errors.Is(err, invoicedomain.ErrEntriesNotBillable) {
		t.Fatalf("expected entries_not_billable, got %v", err)
	}
}

func TestCreateFromEntriesRejectsUnapproved(t *testing.T) {
	db := setupTestDB(t)
	clk := clock.NewFakeClock(time.Date(2026, 9, 14, 10, 0, 0, 0, time.UTC))
	svc := newInvoiceService(t, db, clk)

	lawyerID := snowflake.ID(502)
	entry := seedApprovedTimeEntry(t, db, snowflake.ID(9003), lawyerID, 60, 20000, clk.Now())
	require.NoError(t, db.Model(&entrydomain.TimeEntry{}).
		Where("id = ?", entry.ID).
		Update("status", entrydomain.EntryStatusDraft).Error)

	ctx := lawyerctx.WithLawyerID(context.Background(), lawyerID)
	_, err := svc.CreateFromEntries(ctx, invoicedomain.CreateFromEntriesRequest{
		TimeEntryIDs: []string{entry.ID.String()},
	})
	if !errors.Is(err, invoicedomain.ErrEntriesNotBillable) {
		t.Fatalf("expected entries_not_billable, got %v", err)
	}

	// Nothing was marked.
	var reloaded entrydomain.TimeEntry
	require.NoError(t, db.First(&reloaded, "id = ?", entry.ID).Error)
	require.Nil(t, reloaded.InvoiceID)

	var count int64
	require.NoError(t, db.Model(&invoicedomain.Invoice{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestSendAndCancelLifecycle(t *testing.T) {
	db := setupTestDB(t)
	clk := clock.NewFakeClock(time.Date(2026, 9, 14, 10, 0, 0, 0, time.UTC))
	svc := newInvoiceService(t, db, clk)

	lawyerID := snowflake.ID(503)
	entry := seedApprovedTimeEntry(t, db, snowflake.ID(9004), lawyerID, 60, 20000, clk.Now())
	ctx := lawyerctx.WithLawyerID(context.Background(), lawyerID)

	invoice, err := svc.CreateFromEntries(ctx, invoicedomain.CreateFromEntriesRequest{
		TimeEntryIDs: []string{entry.ID.String()},
	})
	require.NoError(t, err)

	sent, err := svc.Send(ctx, invoice.ID.String())
	require.NoError(t, err)
	require.Equal(t, invoicedomain.InvoiceStatusSent, sent.Status)
	require.NotNil(t, sent.SentAt)

	// Sending twice is a state conflict.
	if _, err := svc.Send(ctx, invoice.ID.String()); !errors.Is(err, invoicedomain.ErrInvoiceNotSendable) {
		t.Fatalf("expected invoice_not_sendable, got %v", err)
	}

	// Editing after send is rejected.
	notes := "late notes"
	if _, err := svc.Update(ctx, invoicedomain.UpdateInvoiceRequest{ID: invoice.ID.String(), Notes: &notes}); !errors.Is(err, invoicedomain.ErrInvoiceNotDraft) {
		t.Fatalf("expected invoice_not_editable, got %v", err)
	}

	cancelled, err := svc.Cancel(ctx, invoice.ID.String())
	require.NoError(t, err)
	require.Equal(t, invoicedomain.InvoiceStatusCancelled, cancelled.Status)

	// Cancellation releases the claimed ledger rows.
	var reloaded entrydomain.TimeEntry
	require.NoError(t, db.First(&reloaded, "id = ?", entry.ID).Error)
	require.Equal(t, entrydomain.EntryStatusApproved, reloaded.Status)
	require.Nil(t, reloaded.InvoiceID)
}

func TestCancelWithPaymentsRejected(t *testing.T) {
	db := setupTestDB(t)
	clk := clock.NewFakeClock(time.Date(2026, 9, 14, 10, 0, 0, 0, time.UTC))
	svc := newInvoiceService(t, db, clk)

	ctx := lawyerctx.WithLawyerID(context.Background(), snowflake.ID(504))
	invoice, err := svc.Create(ctx, invoicedomain.CreateInvoiceRequest{
		Items: []invoicedomain.ItemInput{{Description: "Consultation", Quantity: 1, UnitPrice: 100000}},
	})
	require.NoError(t, err)

	if _, err := svc.Send(ctx, invoice.ID.String()); err != nil {
		t.Fatalf("send: %v", err)
	}
	require.NoError(t, db.Model(&invoicedomain.Invoice{}).
		Where("id = ?", invoice.ID).
		Updates(map[string]any{"amount_paid": 50000, "balance_due": 65000}).Error)

	if _, err := svc.Cancel(ctx, invoice.ID.String()); !errors.Is(err, invoicedomain.ErrNotCancellable) {
		t.Fatalf("expected invoice_not_cancellable, got %v", err)
	}
}

func TestComputeStatusFunction(t *testing.T) {
	now := time.Date(2026, 9, 14, 10, 0, 0, 0, time.UTC)
	due := now.AddDate(0, 0, 30)
	sentAt := now

	base := invoicedomain.Invoice{TotalAmount: 115000, BalanceDue: 115000, DueDate: due, SentAt: &sentAt}

	require.Equal(t, invoicedomain.InvoiceStatusSent, invoicedomain.ComputeStatus(base, now))

	partial := base
	partial.AmountPaid = 50000
	partial.BalanceDue = 65000
	require.Equal(t, invoicedomain.InvoiceStatusPartial, invoicedomain.ComputeStatus(partial, now))

	paid := base
	paid.AmountPaid = 115000
	paid.BalanceDue = 0
	require.Equal(t, invoicedomain.InvoiceStatusPaid, invoicedomain.ComputeStatus(paid, now))

	overdue := partial
	require.Equal(t, invoicedomain.InvoiceStatusOverdue, invoicedomain.ComputeStatus(overdue, due.AddDate(0, 0, 1)))

	cancelledAt := now
	cancelled := base
	cancelled.CancelledAt = &cancelledAt
	require.Equal(t, invoicedomain.InvoiceStatusCancelled, invoicedomain.ComputeStatus(cancelled, now))
}
