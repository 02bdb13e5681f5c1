package service_test

import (
	"context"
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
	timerdomain "github.com/mizanlaw/mizan/internal/timer/domain"
	timerrepo "github.com/mizanlaw/mizan/internal/timer/repository"
	timerservice "github.com/mizanlaw/mizan/internal/timer/service"
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
		`CREATE TABLE timer_sessions (
			id BIGINT PRIMARY KEY,
			lawyer_id BIGINT NOT NULL UNIQUE,
			client_id BIGINT,
			case_id BIGINT,
			case_type TEXT,
			activity_code TEXT,
			description TEXT NOT NULL,
			status TEXT NOT NULL,
			started_at DATETIME NOT NULL,
			paused_at DATETIME,
			paused_total_seconds BIGINT NOT NULL DEFAULT 0,
			rate_id BIGINT NOT NULL,
			rate_type TEXT NOT NULL,
			hourly_rate BIGINT NOT NULL,
			currency TEXT NOT NULL,
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

func newTimerService(t *testing.T, db *gorm.DB, clk clock.Clock) timerdomain.Service {
	t.Helper()

	node, err := snowflake.NewNode(22)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	cfg := config.Config{DefaultCurrency: "SAR", DefaultVATRate: 15}
	auditSvc := noopAuditService{}
	rateSvc := rateservice.NewService(rateservice.Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    clk,
		Cfg:      cfg,
		AuditSvc: auditSvc,
	})
	entrySvc := entryservice.NewService(entryservice.Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    clk,
		Cfg:      cfg,
		RateSvc:  rateSvc,
		AuditSvc: auditSvc,
	})
	return timerservice.NewService(timerservice.Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    clk,
		Repo:     timerrepo.Provide(),
		RateSvc:  rateSvc,
		EntrySvc: entrySvc,
		AuditSvc: auditSvc,
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

func TestTimerPauseResumeStopProducesEntry(t *testing.T) {
	db := setupTestDB(t)
	clk := clock.NewFakeClock(time.Date(2026, 9, 14, 9, 0, 0, 0, time.UTC))
	svc := newTimerService(t, db, clk)

	lawyerID := snowflake.ID(300)
	seedStandardRate(t, db, lawyerID, 20000, clk.Now())
	ctx := lawyerctx.WithLawyerID(context.Background(), lawyerID)

	session, err := svc.Start(ctx, timerdomain.StartTimerRequest{Description: "Deposition prep"})
	require.NoError(t, err)
	require.Equal(t, timerdomain.SessionStatusRunning, session.Status)
	require.Equal(t, int64(20000), session.HourlyRate)

	clk.Advance(90 * time.Minute)
	if _, err := svc.Pause(ctx); err != nil {
		t.Fatalf("pause: %v", err)
	}

	clk.Advance(30 * time.Minute)
	if _, err := svc.Resume(ctx); err != nil {
		t.Fatalf("resume: %v", err)
	}

	clk.Advance(30 * time.Minute)
	entry, err := svc.Stop(ctx, timerdomain.StopTimerRequest{})
	require.NoError(t, err)
	require.Equal(t, int64(120), entry.DurationMinutes)
	require.Equal(t, int64(20000), entry.HourlyRate)
	require.Equal(t, int64(40000), entry.TotalAmount)
	require.Equal(t, entrydomain.EntryStatusDraft, entry.Status)
	require.Equal(t, entrydomain.EntrySourceTimer, entry.Source)

	// The session is consumed; a new one can start.
	if _, err := svc.Status(ctx); !errors.Is(err, timerdomain.ErrTimerNotFound) {
		t.Fatalf("expected timer_not_found after stop, got %v", err)
	}
}

func TestSecondStartConflicts(t *testing.T) {
	db := setupTestDB(t)
	clk := clock.NewFakeClock(time.Date(2026, 9, 14, 9, 0, 0, 0, time.UTC))
	svc := newTimerService(t, db, clk)

	lawyerID := snowflake.ID(301)
	seedStandardRate(t, db, lawyerID, 20000, clk.Now())
	ctx := lawyerctx.WithLawyerID(context.Background(), lawyerID)

	first, err := svc.Start(ctx, timerdomain.StartTimerRequest{Description: "Research"})
	require.NoError(t, err)

	clk.Advance(5 * time.Minute)
	_, err = svc.Start(ctx, timerdomain.StartTimerRequest{Description: "Another matter"})
	if !errors.Is(err, timerdomain.ErrAlreadyRunning) {
		t.Fatalf("expected timer_already_running, got %v", err)
	}

	// The original session is untouched.
	status, err := svc.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, first.ID, status.Session.ID)
	require.Equal(t, int64(5), status.ElapsedMinutes)
}

func TestPauseResumeStateGuards(t *testing.T) {
	db := setupTestDB(t)
	clk := clock.NewFakeClock(time.Date(2026, 9, 14, 9, 0, 0, 0, time.UTC))
	svc := newTimerService(t, db, clk)

	lawyerID := snowflake.ID(302)
	seedStandardRate(t, db, lawyerID, 20000, clk.Now())
	ctx := lawyerctx.WithLawyerID(context.Background(), lawyerID)

	if _, err := svc.Pause(ctx); !errors.Is(err, timerdomain.ErrTimerNotFound) {
		t.Fatalf("expected timer_not_found without session, got %v", err)
	}

	if _, err := svc.Start(ctx, timerdomain.StartTimerRequest{Description: "Filing"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := svc.Resume(ctx); !errors.Is(err, timerdomain.ErrTimerNotPaused) {
		t.Fatalf("expected timer_not_paused while running, got %v", err)
	}

	if _, err := svc.Pause(ctx); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if _, err := svc.Pause(ctx); !errors.Is(err, timerdomain.ErrTimerNotRunning) {
		t.Fatalf("expected timer_not_running when already paused, got %v", err)
	}
}

func TestStopSubMinuteSessionRejected(t *testing.T) {
	db := setupTestDB(t)
	clk := clock.NewFakeClock(time.Date(2026, 9, 14, 9, 0, 0, 0, time.UTC))
	svc := newTimerService(t, db, clk)

	lawyerID := snowflake.ID(303)
	seedStandardRate(t, db, lawyerID, 20000, clk.Now())
	ctx := lawyerctx.WithLawyerID(context.Background(), lawyerID)

	if _, err := svc.Start(ctx, timerdomain.StartTimerRequest{Description: "Quick note"}); err != nil {
		t.Fatalf("start: %v", err)
	}

	clk.Advance(20 * time.Second)
	_, err := svc.Stop(ctx, timerdomain.StopTimerRequest{})
	if !errors.Is(err, timerdomain.ErrSessionTooShort) {
		t.Fatalf("expected timer_session_too_short, got %v", err)
	}

	// Session survives a rejected stop and can be stopped later.
	status, err := svc.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, timerdomain.SessionStatusRunning, status.Session.Status)

	clk.Advance(10 * time.Minute)
	entry, err := svc.Stop(ctx, timerdomain.StopTimerRequest{})
	require.NoError(t, err)
	require.Equal(t, int64(10), entry.DurationMinutes)
}

func TestStopRollsBackEntryWhenSessionDeleteFails(t *testing.T) {
	db := setupTestDB(t)
	clk := clock.NewFakeClock(time.Date(2026, 9, 14, 9, 0, 0, 0, time.UTC))
	svc := newTimerService(t, db, clk)

	lawyerID := snowflake.ID(305)
	seedStandardRate(t, db, lawyerID, 20000, clk.Now())
	ctx := lawyerctx.WithLawyerID(context.Background(), lawyerID)

	if _, err := svc.Start(ctx, timerdomain.StartTimerRequest{Description: "Motion draft"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	clk.Advance(45 * time.Minute)

	// Force the session deletion to fail; the draft entry must not
	// survive a half-stopped timer.
	require.NoError(t, db.Exec(`CREATE TRIGGER block_session_delete
		BEFORE DELETE ON timer_sessions
		BEGIN SELECT RAISE(ABORT, 'delete blocked'); END`).Error)

	if _, err := svc.Stop(ctx, timerdomain.StopTimerRequest{}); err == nil {
		t.Fatal("expected stop to fail while deletion is blocked")
	}

	var entryCount int64
	require.NoError(t, db.Model(&entrydomain.TimeEntry{}).Count(&entryCount).Error)
	require.Zero(t, entryCount)

	status, err := svc.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, timerdomain.SessionStatusRunning, status.Session.Status)

	// Once deletion works again a retried stop mints exactly one entry.
	require.NoError(t, db.Exec(`DROP TRIGGER block_session_delete`).Error)
	entry, err := svc.Stop(ctx, timerdomain.StopTimerRequest{})
	require.NoError(t, err)
	require.Equal(t, int64(45), entry.DurationMinutes)

	require.NoError(t, db.Model(&entrydomain.TimeEntry{}).Count(&entryCount).Error)
	require.Equal(t, int64(1), entryCount)
	if _, err := svc.Status(ctx); !errors.Is(err, timerdomain.ErrTimerNotFound) {
		t.Fatalf("expected timer_not_found after stop, got %v", err)
	}
}

func TestStopWithoutRateSnapshotUsesStartRate(t *testing.T) {
	db := setupTestDB(t)
	clk := clock.NewFakeClock(time.Date(2026, 9, 14, 9, 0, 0, 0, time.UTC))
	svc := newTimerService(t, db, clk)

	lawyerID := snowflake.ID(304)
	seedStandardRate(t, db, lawyerID, 20000, clk.Now())
	ctx := lawyerctx.WithLawyerID(context.Background(), lawyerID)

	if _, err := svc.Start(ctx, timerdomain.StartTimerRequest{Description: "Brief"}); err != nil {
		t.Fatalf("start: %v", err)
	}

	// A rate change after start must not affect the snapshotted session.
	clk.Advance(time.Minute)
	seedStandardRate(t, db, lawyerID, 50000, clk.Now())

	clk.Advance(59 * time.Minute)
	entry, err := svc.Stop(ctx, timerdomain.StopTimerRequest{})
	require.NoError(t, err)
	require.Equal(t, int64(20000), entry.HourlyRate)
	require.Equal(t, int64(60), entry.DurationMinutes)
	require.Equal(t, int64(20000), entry.TotalAmount)
}
