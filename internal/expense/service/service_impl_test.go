package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/mizanlaw/mizan/internal/audit/domain"
	"github.com/mizanlaw/mizan/internal/clock"
	"github.com/mizanlaw/mizan/internal/config"
	expensedomain "github.com/mizanlaw/mizan/internal/expense/domain"
	expenseservice "github.com/mizanlaw/mizan/internal/expense/service"
	"github.com/mizanlaw/mizan/internal/lawyerctx"
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

	schema := []string{
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
		`CREATE UNIQUE INDEX idx_expense_entries_number ON expense_entries (lawyer_id, number)`,
	}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	return db
}

func newExpenseService(t *testing.T, db *gorm.DB, clk clock.Clock) expensedomain.Service {
	t.Helper()

	node, err := snowflake.NewNode(23)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	return expenseservice.NewService(expenseservice.Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    clk,
		Cfg:      config.Config{DefaultCurrency: "SAR", DefaultVATRate: 15},
		AuditSvc: noopAuditService{},
	})
}

func TestCreateAppliesMarkup(t *testing.T) {
	db := setupTestDB(t)
	clk := clock.NewFakeClock(time.Date(2026, 9, 14, 10, 0, 0, 0, time.UTC))
	svc := newExpenseService(t, db, clk)

	ctx := lawyerctx.WithLawyerID(context.Background(), snowflake.ID(400))
	expense, err := svc.Create(ctx, expensedomain.CreateExpenseRequest{
		Description:   "Court filing fee",
		Amount:        50000,
		MarkupPercent: 10,
	})
	require.NoError(t, err)
	require.Equal(t, "EXP-202609-0001", expense.Number)
	require.Equal(t, int64(55000), expense.BilledAmount)
	require.Equal(t, "SAR", expense.Currency)
	require.Equal(t, expensedomain.ExpenseStatusDraft, expense.Status)
}

func TestUpdateRecomputesBilledAmount(t *testing.T) {
	db := setupTestDB(t)
	clk := clock.NewFakeClock(time.Date(2026, 9, 14, 10, 0, 0, 0, time.UTC))
	svc := newExpenseService(t, db, clk)

	ctx := lawyerctx.WithLawyerID(context.Background(), snowflake.ID(401))
	expense, err := svc.Create(ctx, expensedomain.CreateExpenseRequest{
		Description: "Courier",
		Amount:      12000,
	})
	require.NoError(t, err)
	require.Equal(t, int64(12000), expense.BilledAmount)

	markup := 15.0
	updated, err := svc.Update(ctx, expensedomain.UpdateExpenseRequest{
		ID:            expense.ID.String(),
		MarkupPercent: &markup,
	})
	require.NoError(t, err)
	require.Equal(t, int64(13800), updated.BilledAmount)
}

func TestApprovedExpenseRejectsMutation(t *testing.T) {
	db := setupTestDB(t)
	clk := clock.NewFakeClock(time.Date(2026, 9, 14, 10, 0, 0, 0, time.UTC))
	svc := newExpenseService(t, db, clk)

	ctx := lawyerctx.WithLawyerID(context.Background(), snowflake.ID(402))
	expense, err := svc.Create(ctx, expensedomain.CreateExpenseRequest{
		Description: "Expert witness fee",
		Amount:      200000,
	})
	require.NoError(t, err)

	if _, err := svc.Approve(ctx, expense.ID.String()); err != nil {
		t.Fatalf("approve: %v", err)
	}

	amount := int64(250000)
	_, err = svc.Update(ctx, expensedomain.UpdateExpenseRequest{ID: expense.ID.String(), Amount: &amount})
	if !errors.Is(err, expensedomain.ErrExpenseApproved) {
		t.Fatalf("expected expense_already_approved, got %v", err)
	}
}

func TestCreateValidatesAmountAndMarkup(t *testing.T) {
	db := setupTestDB(t)
	clk := clock.NewFakeClock(time.Date(2026, 9, 14, 10, 0, 0, 0, time.UTC))
	svc := newExpenseService(t, db, clk)

	ctx := lawyerctx.WithLawyerID(context.Background(), snowflake.ID(403))

	_, err := svc.Create(ctx, expensedomain.CreateExpenseRequest{Description: "x", Amount: 0})
	if !errors.Is(err, expensedomain.ErrInvalidAmount) {
		t.Fatalf("expected invalid_amount, got %v", err)
	}

	_, err = svc.Create(ctx, expensedomain.CreateExpenseRequest{Description: "x", Amount: 100, MarkupPercent: 120})
	if !errors.Is(err, expensedomain.ErrInvalidMarkup) {
		t.Fatalf("expected invalid_markup, got %v", err)
	}
}
