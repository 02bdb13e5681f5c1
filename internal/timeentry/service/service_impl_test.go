package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/mizanlaw/mizan/internal/audit/domain"
	ratedomain "github.com/mizanlaw/mizan/internal/billingrate/domain"
	rateservice "github.com/mizanlaw/mizan/internal/billingrate/service"
	"github.com/mizanlaw/mizan/internal/clock"
	"github.com/mizanlaw/mizan/internal/config"
	"github.com/mizanlaw/mizan/internal/lawyerctx"
	entrydomain "github.com/mizanlaw/mizan/internal/timeentry/domain"
	entryservice "github.com/mizanlaw/mizan/internal/timeentry/service"
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
		`CREATE TABLE billing_rates (
			id BIGINT PRIMARY KEY,
			lawyer_id BIGINT NOT NULL,
			rate_type TEXT NOT NULL,
			standard_hourly_rate BIGINT NOT NULL,
			custom_rate BIGINT,
			client_id BIGINT,
			case_type TEXT,
			activity_code TEXT,
			currency TEXT NOT NULL,
			effective_date DATETIME NOT NULL,
			end_date DATETIME,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
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
		`CREATE TABLE time_entry_edits (
			id BIGINT PRIMARY KEY,
			entry_id BIGINT NOT NULL,
			editor_id BIGINT NOT NULL,
			changes TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE document_sequences (
			lawyer_id BIGINT NOT NULL,
			doc_type TEXT NOT NULL,
			period TEXT NOT NULL,
			next_seq BIGINT NOT NULL,
			PRIMARY KEY (lawyer_id, doc_type, period)
		)`,
		`CREATE UNIQUE INDEX idx_time_entries_number ON time_entries (lawyer_id, number)`,
	}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	return db
}

func newEntryService(t *testing.T, db *gorm.DB, clk clock.Clock) entrydomain.Service {
	t.Helper()

	node, err := snowflake.NewNode(21)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	cfg := config.Config{DefaultCurrency: "SAR", DefaultVATRate: 15}
	rateSvc := rateservice.NewService(rateservice.Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    clk,
		Cfg:      cfg,
		AuditSvc: noopAuditService{},
	})
	return entryservice.NewService(entryservice.Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    clk,
		Cfg:      cfg,
		RateSvc:  rateSvc,
		AuditSvc: noopAuditService{},
	})
}

func seedStandardRate(t *testing.T, db *gorm.DB, lawyerID snowflake.ID, rate int64, at time.Time) {
	t.Helper()

	row := ratedomain.BillingRate{
		ID:                 snowflake.ID(at.UnixNano()),
		LawyerID:           lawyerID,
		RateType:           ratedomain.RateTypeStandard,
		StandardHourlyRate: rate,
		Currency:           "SAR",
		EffectiveDate:      at.Add(-time.Hour),
		IsActive:           true,
		CreatedAt:          at,
		UpdatedAt:          at,
	}
	if err := db.Create(&row).Error; err != nil {
		t.Fatalf("seed rate: %v", err)
	}
}

func TestCreateComputesTotalAndNumber(t *testing.T) {
	db := setupTestDB(t)
	clk := clock.NewFakeClock(time.Date(2026, 9, 14, 10, 0, 0, 0, time.UTC))
	svc := newEntryService(t, db, clk)

	lawyerID := snowflake.ID(200)
	seedStandardRate(t, db, lawyerID, 20000, clk.Now())
	ctx := lawyerctx.WithLawyerID(context.Background(), lawyerID)

	entry, err := svc.Create(ctx, entrydomain.CreateEntryRequest{
		Description: "Drafted motion to dismiss",
		Duration:    90,
	})
	require.NoError(t, err)
	require.Equal(t, "TIME-202609-0001", entry.Number)
	require.Equal(t, int64(90), entry.DurationMinutes)
	require.Equal(t, int64(20000), entry.HourlyRate)
	require.Equal(t, int64(30000), entry.TotalAmount)
	require.Equal(t, entrydomain.EntryStatusDraft, entry.Status)
	require.Equal(t, entrydomain.EntrySourceManual, entry.Source)
}

func TestCreateRejectsSubMinuteDuration(t *testing.T) {
	db := setupTestDB(t)
	clk := clock.NewFakeClock(time.Date(2026, 9, 14, 10, 0, 0, 0, time.UTC))
	svc := newEntryService(t, db, clk)

	ctx := lawyerctx.WithLawyerID(context.Background(), snowflake.ID(201))
	_, err := svc.Create(ctx, entrydomain.CreateEntryRequest{
		Description: "blink",
		Duration:    0,
	})
	if !errors.Is(err, entrydomain.ErrInvalidDuration) {
		t.Fatalf("expected invalid_duration, got %v", err)
	}
}

func TestCreateWithoutRateFails(t *testing.T) {
	db := setupTestDB(t)
	clk := clock.NewFakeClock(time.Date(2026, 9, 14, 10, 0, 0, 0, time.UTC))
	svc := newEntryService(t, db, clk)

	ctx := lawyerctx.WithLawyerID(context.Background(), snowflake.ID(202))
	_, err := svc.Create(ctx, entrydomain.CreateEntryRequest{
		Description: "Research",
		Duration:    30,
	})
	if !errors.Is(err, ratedomain.ErrRateNotConfigured) {
		t.Fatalf("expected rate_not_configured, got %v", err)
	}
}

func TestUpdateRecomputesTotalAndRecordsDiff(t *testing.T) {
	db := setupTestDB(t)
	clk := clock.NewFakeClock(time.Date(2026, 9, 14, 10, 0, 0, 0, time.UTC))
	svc := newEntryService(t, db, clk)

	lawyerID := snowflake.ID(203)
	seedStandardRate(t, db, lawyerID, 20000, clk.Now())
	ctx := lawyerctx.WithLawyerID(context.Background(), lawyerID)

	entry, err := svc.Create(ctx, entrydomain.CreateEntryRequest{
		Description: "Client call",
		Duration:    30,
	})
	require.NoError(t, err)
	require.Equal(t, int64(10000), entry.TotalAmount)

	duration := int64(120)
	updated, err := svc.Update(ctx, entrydomain.UpdateEntryRequest{
		ID:       entry.ID.String(),
		Duration: &duration,
	})
	require.NoError(t, err)
	require.Equal(t, int64(120), updated.DurationMinutes)
	require.Equal(t, int64(40000), updated.TotalAmount)

	edits, err := svc.EditHistory(ctx, entry.ID.String())
	require.NoError(t, err)
	require.Len(t, edits, 1)

	var changes map[string]map[string]any
	require.NoError(t, json.Unmarshal(edits[0].Changes, &changes))
	require.Contains(t, changes, "duration_minutes")
	require.Contains(t, changes, "total_amount")
}

func TestApprovedEntryRejectsMutation(t *testing.T) {
	db := setupTestDB(t)
	clk := clock.NewFakeClock(time.Date(2026, 9, 14, 10, 0, 0, 0, time.UTC))
	svc := newEntryService(t, db, clk)

	lawyerID := snowflake.ID(204)
	seedStandardRate(t, db, lawyerID, 20000, clk.Now())
	ctx := lawyerctx.WithLawyerID(context.Background(), lawyerID)

	entry, err := svc.Create(ctx, entrydomain.CreateEntryRequest{
		Description: "Hearing prep",
		Duration:    60,
	})
	require.NoError(t, err)

	approved, err := svc.Approve(ctx, entry.ID.String())
	require.NoError(t, err)
	require.Equal(t, entrydomain.EntryStatusApproved, approved.Status)
	require.NotNil(t, approved.ApprovedBy)

	duration := int64(90)
	_, err = svc.Update(ctx, entrydomain.UpdateEntryRequest{ID: entry.ID.String(), Duration: &duration})
	if !errors.Is(err, entrydomain.ErrEntryApproved) {
		t.Fatalf("expected entry_already_approved, got %v", err)
	}

	if err := svc.Delete(ctx, entry.ID.String()); !errors.Is(err, entrydomain.ErrEntryApproved) {
		t.Fatalf("expected entry_already_approved on delete, got %v", err)
	}

	// Approving twice is a conflict as well.
	if _, err := svc.Approve(ctx, entry.ID.String()); !errors.Is(err, entrydomain.ErrEntryApproved) {
		t.Fatalf("expected entry_already_approved on re-approve, got %v", err)
	}
}

func TestRejectRequiresReason(t *testing.T) {
	db := setupTestDB(t)
	clk := clock.NewFakeClock(time.Date(2026, 9, 14, 10, 0, 0, 0, time.UTC))
	svc := newEntryService(t, db, clk)

	lawyerID := snowflake.ID(205)
	seedStandardRate(t, db, lawyerID, 20000, clk.Now())
	ctx := lawyerctx.WithLawyerID(context.Background(), lawyerID)

	entry, err := svc.Create(ctx, entrydomain.CreateEntryRequest{
		Description: "Deposition summary",
		Duration:    45,
	})
	require.NoError(t, err)

	if _, err := svc.Reject(ctx, entry.ID.String(), "  "); !errors.Is(err, entrydomain.ErrReasonRequired) {
		t.Fatalf("expected rejection_reason_required, got %v", err)
	}

	rejected, err := svc.Reject(ctx, entry.ID.String(), "wrong case")
	require.NoError(t, err)
	require.Equal(t, entrydomain.EntryStatusRejected, rejected.Status)
	require.NotNil(t, rejected.RejectionReason)
}

func TestRejectRevokesApproval(t *testing.T) {
	db := setupTestDB(t)
	clk := clock.NewFakeClock(time.Date(2026, 9, 14, 10, 0, 0, 0, time.UTC))
	svc := newEntryService(t, db, clk)

	lawyerID := snowflake.ID(208)
	seedStandardRate(t, db, lawyerID, 20000, clk.Now())
	ctx := lawyerctx.WithLawyerID(context.Background(), lawyerID)

	entry, err := svc.Create(ctx, entrydomain.CreateEntryRequest{
		Description: "Witness interview",
		Duration:    60,
	})
	require.NoError(t, err)

	approved, err := svc.Approve(ctx, entry.ID.String())
	require.NoError(t, err)
	require.Equal(t, entrydomain.EntryStatusApproved, approved.Status)

	// An approval is not final; rejecting it afterwards clears it.
	rejected, err := svc.Reject(ctx, entry.ID.String(), "logged against wrong matter")
	require.NoError(t, err)
	require.Equal(t, entrydomain.EntryStatusRejected, rejected.Status)
	require.Nil(t, rejected.ApprovedBy)
	require.Nil(t, rejected.ApprovedAt)
	require.NotNil(t, rejected.RejectionReason)

	var reloaded entrydomain.TimeEntry
	require.NoError(t, db.First(&reloaded, "id = ?", entry.ID).Error)
	require.Equal(t, entrydomain.EntryStatusRejected, reloaded.Status)
	require.Nil(t, reloaded.ApprovedBy)
	require.Nil(t, reloaded.ApprovedAt)
}

func TestOwnershipScopesLookups(t *testing.T) {
	db := setupTestDB(t)
	clk := clock.NewFakeClock(time.Date(2026, 9, 14, 10, 0, 0, 0, time.UTC))
	svc := newEntryService(t, db, clk)

	owner := snowflake.ID(206)
	seedStandardRate(t, db, owner, 20000, clk.Now())
	ownerCtx := lawyerctx.WithLawyerID(context.Background(), owner)

	entry, err := svc.Create(ownerCtx, entrydomain.CreateEntryRequest{
		Description: "Contract review",
		Duration:    30,
	})
	require.NoError(t, err)

	otherCtx := lawyerctx.WithLawyerID(context.Background(), snowflake.ID(207))
	if _, err := svc.Get(otherCtx, entry.ID.String()); !errors.Is(err, entrydomain.ErrEntryNotFound) {
		t.Fatalf("expected entry_not_found for non-owner, got %v", err)
	}
}
