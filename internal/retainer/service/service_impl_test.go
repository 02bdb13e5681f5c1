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
	"github.com/mizanlaw/mizan/internal/lawyerctx"
	retainerdomain "github.com/mizanlaw/mizan/internal/retainer/domain"
	retainerservice "github.com/mizanlaw/mizan/internal/retainer/service"
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
		`CREATE TABLE retainers (
			id BIGINT PRIMARY KEY,
			number TEXT NOT NULL,
			lawyer_id BIGINT NOT NULL,
			client_id BIGINT NOT NULL,
			case_id BIGINT,
			initial_amount BIGINT NOT NULL,
			current_balance BIGINT NOT NULL,
			minimum_balance BIGINT NOT NULL DEFAULT 0,
			currency TEXT NOT NULL,
			status TEXT NOT NULL,
			low_balance_alert_sent BOOLEAN NOT NULL DEFAULT FALSE,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE retainer_transactions (
			id BIGINT PRIMARY KEY,
			retainer_id BIGINT NOT NULL,
			kind TEXT NOT NULL,
			amount BIGINT NOT NULL,
			balance_after BIGINT NOT NULL,
			description TEXT,
			payment_id BIGINT,
			invoice_id BIGINT,
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE document_sequences (
			lawyer_id BIGINT NOT NULL,
			doc_type TEXT NOT NULL,
			period TEXT NOT NULL,
			next_seq BIGINT NOT NULL,
			PRIMARY KEY (lawyer_id, doc_type, period)
		)`,
		`CREATE UNIQUE INDEX idx_retainers_number ON retainers (lawyer_id, number)`,
	}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	return db
}

func newRetainerService(t *testing.T, db *gorm.DB, clk clock.Clock) retainerdomain.Service {
	t.Helper()

	node, err := snowflake.NewNode(26)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	return retainerservice.NewService(retainerservice.Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    clk,
		Cfg:      config.Config{DefaultCurrency: "SAR", DefaultVATRate: 15},
		AuditSvc: noopAuditService{},
	})
}

func TestRetainerLowBalanceAndDepletion(t *testing.T) {
	db := setupTestDB(t)
	clk := clock.NewFakeClock(time.Date(2026, 9, 14, 10, 0, 0, 0, time.UTC))
	svc := newRetainerService(t, db, clk)

	lawyerID := snowflake.ID(700)
	clientID := snowflake.ID(7100)
	ctx := lawyerctx.WithLawyerID(context.Background(), lawyerID)

	retainer, err := svc.Create(ctx, retainerdomain.CreateRetainerRequest{
		ClientID:       &clientID,
		InitialAmount:  500000,
		MinimumBalance: 100000,
	})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(retainer.Number, "RET-2026-"))
	require.Equal(t, int64(500000), retainer.CurrentBalance)
	require.Equal(t, "SAR", retainer.Currency)

	// 4200.00 of the 5000.00 balance: crosses the 1000.00 floor.
	result, err := svc.Consume(ctx, retainerdomain.ConsumeRequest{
		RetainerID: retainer.ID.String(),
		Amount:     420000,
	})
	require.NoError(t, err)
	require.Equal(t, int64(80000), result.Retainer.CurrentBalance)
	require.True(t, result.LowBalance)
	require.Equal(t, retainerdomain.RetainerStatusActive, result.Retainer.Status)

	// The alert is one-shot: another debit below the floor stays quiet.
	result, err = svc.Consume(ctx, retainerdomain.ConsumeRequest{
		RetainerID: retainer.ID.String(),
		Amount:     10000,
	})
	require.NoError(t, err)
	require.False(t, result.LowBalance)
	require.Equal(t, int64(70000), result.Retainer.CurrentBalance)

	// Overdraw is rejected whole, leaving the balance untouched.
	if _, err := svc.Consume(ctx, retainerdomain.ConsumeRequest{
		RetainerID: retainer.ID.String(),
		Amount:     90000,
	}); !errors.Is(err, retainerdomain.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient_balance, got %v", err)
	}

	reloaded, err := svc.Get(ctx, retainer.ID.String())
	require.NoError(t, err)
	require.Equal(t, int64(70000), reloaded.CurrentBalance)

	// Draining to exactly zero flips the account to depleted.
	result, err = svc.Consume(ctx, retainerdomain.ConsumeRequest{
		RetainerID: retainer.ID.String(),
		Amount:     70000,
	})
	require.NoError(t, err)
	require.Zero(t, result.Retainer.CurrentBalance)
	require.Equal(t, retainerdomain.RetainerStatusDepleted, result.Retainer.Status)

	if _, err := svc.Consume(ctx, retainerdomain.ConsumeRequest{
		RetainerID: retainer.ID.String(),
		Amount:     100,
	}); !errors.Is(err, retainerdomain.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient_balance on depleted account, got %v", err)
	}
}

func TestReplenishReactivatesAndRearmsAlert(t *testing.T) {
	db := setupTestDB(t)
	clk := clock.NewFakeClock(time.Date(2026, 9, 14, 10, 0, 0, 0, time.UTC))
	svc := newRetainerService(t, db, clk)

	lawyerID := snowflake.ID(701)
	clientID := snowflake.ID(7101)
	ctx := lawyerctx.WithLawyerID(context.Background(), lawyerID)

	retainer, err := svc.Create(ctx, retainerdomain.CreateRetainerRequest{
		ClientID:       &clientID,
		InitialAmount:  200000,
		MinimumBalance: 50000,
	})
	require.NoError(t, err)

	result, err := svc.Consume(ctx, retainerdomain.ConsumeRequest{
		RetainerID: retainer.ID.String(),
		Amount:     160000,
	})
	require.NoError(t, err)
	require.True(t, result.LowBalance)

	result, err = svc.Consume(ctx, retainerdomain.ConsumeRequest{
		RetainerID: retainer.ID.String(),
		Amount:     40000,
	})
	require.NoError(t, err)
	require.Equal(t, retainerdomain.RetainerStatusDepleted, result.Retainer.Status)

	replenished, err := svc.Replenish(ctx, retainerdomain.ReplenishRequest{
		RetainerID: retainer.ID.String(),
		Amount:     150000,
	})
	require.NoError(t, err)
	require.Equal(t, int64(150000), replenished.CurrentBalance)
	require.Equal(t, retainerdomain.RetainerStatusActive, replenished.Status)
	require.False(t, replenished.LowBalanceAlertSent)

	// The alert fires again after the deposit re-armed it.
	result, err = svc.Consume(ctx, retainerdomain.ConsumeRequest{
		RetainerID: retainer.ID.String(),
		Amount:     110000,
	})
	require.NoError(t, err)
	require.True(t, result.LowBalance)
}

func TestRefundClosesAccount(t *testing.T) {
	db := setupTestDB(t)
	clk := clock.NewFakeClock(time.Date(2026, 9, 14, 10, 0, 0, 0, time.UTC))
	svc := newRetainerService(t, db, clk)

	lawyerID := snowflake.ID(702)
	clientID := snowflake.ID(7102)
	ctx := lawyerctx.WithLawyerID(context.Background(), lawyerID)

	retainer, err := svc.Create(ctx, retainerdomain.CreateRetainerRequest{
		ClientID:      &clientID,
		InitialAmount: 300000,
	})
	require.NoError(t, err)

	_, err = svc.Consume(ctx, retainerdomain.ConsumeRequest{
		RetainerID: retainer.ID.String(),
		Amount:     120000,
	})
	require.NoError(t, err)

	refunded, err := svc.Refund(ctx, retainer.ID.String(), "engagement ended")
	require.NoError(t, err)
	require.Zero(t, refunded.CurrentBalance)
	require.Equal(t, retainerdomain.RetainerStatusRefunded, refunded.Status)

	// A closed account takes no further movements.
	if _, err := svc.Consume(ctx, retainerdomain.ConsumeRequest{
		RetainerID: retainer.ID.String(),
		Amount:     100,
	}); !errors.Is(err, retainerdomain.ErrRetainerClosed) {
		t.Fatalf("expected retainer_closed, got %v", err)
	}
	if _, err := svc.Replenish(ctx, retainerdomain.ReplenishRequest{
		RetainerID: retainer.ID.String(),
		Amount:     100,
	}); !errors.Is(err, retainerdomain.ErrRetainerClosed) {
		t.Fatalf("expected retainer_closed, got %v", err)
	}

	// The ledger holds the full history: deposit, consumption, refund.
	history, err := svc.Transactions(ctx, retainerdomain.ListTransactionsRequest{RetainerID: retainer.ID.String()})
	require.NoError(t, err)
	require.Len(t, history.Transactions, 3)

	var kinds []retainerdomain.TransactionKind
	for _, movement := range history.Transactions {
		kinds = append(kinds, movement.Kind)
	}
	require.Contains(t, kinds, retainerdomain.TransactionKindDeposit)
	require.Contains(t, kinds, retainerdomain.TransactionKindConsumption)
	require.Contains(t, kinds, retainerdomain.TransactionKindRefund)
	require.Equal(t, int64(-180000), history.Transactions[0].Amount)
}

func TestCreateValidation(t *testing.T) {
	db := setupTestDB(t)
	clk := clock.NewFakeClock(time.Date(2026, 9, 14, 10, 0, 0, 0, time.UTC))
	svc := newRetainerService(t, db, clk)

	clientID := snowflake.ID(7103)
	ctx := lawyerctx.WithLawyerID(context.Background(), snowflake.ID(703))

	if _, err := svc.Create(ctx, retainerdomain.CreateRetainerRequest{InitialAmount: 100000}); !errors.Is(err, retainerdomain.ErrInvalidClient) {
		t.Fatalf("expected invalid_client, got %v", err)
	}
	if _, err := svc.Create(ctx, retainerdomain.CreateRetainerRequest{ClientID: &clientID}); !errors.Is(err, retainerdomain.ErrInvalidAmount) {
		t.Fatalf("expected invalid_amount, got %v", err)
	}
	if _, err := svc.Create(ctx, retainerdomain.CreateRetainerRequest{
		ClientID:       &clientID,
		InitialAmount:  100000,
		MinimumBalance: 200000,
	}); !errors.Is(err, retainerdomain.ErrInvalidMinimum) {
		t.Fatalf("expected invalid_minimum_balance, got %v", err)
	}
}
