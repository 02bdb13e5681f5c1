package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/mizanlaw/mizan/internal/audit/domain"
	ratedomain "github.com/mizanlaw/mizan/internal/billingrate/domain"
	"github.com/mizanlaw/mizan/internal/clock"
	"github.com/mizanlaw/mizan/internal/lawyerctx"
	"github.com/mizanlaw/mizan/internal/locks"
	entrydomain "github.com/mizanlaw/mizan/internal/timeentry/domain"
	timerdomain "github.com/mizanlaw/mizan/internal/timer/domain"
	"github.com/mizanlaw/mizan/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     timerdomain.Repository
	RateSvc  ratedomain.Service
	EntrySvc entrydomain.Service
	AuditSvc auditdomain.Service
	Guard    *locks.SessionGuard `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     timerdomain.Repository
	rateSvc  ratedomain.Service
	entrySvc entrydomain.Service
	auditSvc auditdomain.Service
	guard    *locks.SessionGuard
}

func NewService(p Params) timerdomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("timer.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		rateSvc:  p.RateSvc,
		entrySvc: p.EntrySvc,
		auditSvc: p.AuditSvc,
		guard:    p.Guard,
	}
}

func (s *Service) Start(ctx context.Context, req timerdomain.StartTimerRequest) (timerdomain.TimerSession, error) {
	lawyerID, ok := lawyerctx.LawyerIDFromContext(ctx)
	if !ok || lawyerID == 0 {
		return timerdomain.TimerSession{}, timerdomain.ErrInvalidLawyer
	}

	unlock, err := s.acquire(ctx, lawyerID)
	if err != nil {
		return timerdomain.TimerSession{}, err
	}
	defer unlock()

	existing, err := s.repo.GetByLawyer(ctx, s.db, lawyerID)
	if err != nil {
		return timerdomain.TimerSession{}, err
	}
	if existing != nil {
		return timerdomain.TimerSession{}, timerdomain.ErrAlreadyRunning
	}

	rate, err := s.rateSvc.Resolve(ctx, ratedomain.ResolveRequest{
		LawyerID:     lawyerID,
		ClientID:     req.ClientID,
		CaseType:     req.CaseType,
		ActivityCode: req.ActivityCode,
	})
	if err != nil {
		return timerdomain.TimerSession{}, err
	}

	now := s.clock.Now()
	session := timerdomain.TimerSession{
		ID:           s.genID.Generate(),
		LawyerID:     lawyerID,
		ClientID:     req.ClientID,
		CaseID:       req.CaseID,
		CaseType:     req.CaseType,
		ActivityCode: req.ActivityCode,
		Description:  strings.TrimSpace(req.Description),
		Status:       timerdomain.SessionStatusRunning,
		StartedAt:    now,
		RateID:       rate.RateID,
		RateType:     string(rate.RateType),
		HourlyRate:   rate.HourlyRate,
		Currency:     rate.Currency,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Create(ctx, s.db, &session); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return timerdomain.TimerSession{}, timerdomain.ErrAlreadyRunning
		}
		return timerdomain.TimerSession{}, err
	}

	targetID := session.ID.String()
	_ = s.auditSvc.Log(ctx, &lawyerID, "timer.start", "timer_session", &targetID, map[string]any{
		"hourly_rate": session.HourlyRate,
		"rate_type":   session.RateType,
	})

	return session, nil
}

func (s *Service) Pause(ctx context.Context) (timerdomain.TimerSession, error) {
	lawyerID, ok := lawyerctx.LawyerIDFromContext(ctx)
	if !ok || lawyerID == 0 {
		return timerdomain.TimerSession{}, timerdomain.ErrInvalidLawyer
	}

	unlock, err := s.acquire(ctx, lawyerID)
	if err != nil {
		return timerdomain.TimerSession{}, err
	}
	defer unlock()

	session, err := s.repo.GetByLawyer(ctx, s.db, lawyerID)
	if err != nil {
		return timerdomain.TimerSession{}, err
	}
	if session == nil {
		return timerdomain.TimerSession{}, timerdomain.ErrTimerNotFound
	}
	if session.Status != timerdomain.SessionStatusRunning {
		return timerdomain.TimerSession{}, timerdomain.ErrTimerNotRunning
	}

	now := s.clock.Now()
	if err := s.repo.Update(ctx, s.db, session, map[string]any{
		"status":     timerdomain.SessionStatusPaused,
		"paused_at":  now,
		"updated_at": now,
	}); err != nil {
		return timerdomain.TimerSession{}, err
	}
	session.Status = timerdomain.SessionStatusPaused
	session.PausedAt = &now
	session.UpdatedAt = now

	targetID := session.ID.String()
	_ = s.auditSvc.Log(ctx, &lawyerID, "timer.pause", "timer_session", &targetID, nil)

	return *session, nil
}

func (s *Service) Resume(ctx context.Context) (timerdomain.TimerSession, error) {
	lawyerID, ok := lawyerctx.LawyerIDFromContext(ctx)
	if !ok || lawyerID == 0 {
		return timerdomain.TimerSession{}, timerdomain.ErrInvalidLawyer
	}

	unlock, err := s.acquire(ctx, lawyerID)
	if err != nil {
		return timerdomain.TimerSession{}, err
	}
	defer unlock()

	session, err := s.repo.GetByLawyer(ctx, s.db, lawyerID)
	if err != nil {
		return timerdomain.TimerSession{}, err
	}
	if session == nil {
		return timerdomain.TimerSession{}, timerdomain.ErrTimerNotFound
	}
	if session.Status != timerdomain.SessionStatusPaused || session.PausedAt == nil {
		return timerdomain.TimerSession{}, timerdomain.ErrTimerNotPaused
	}

	now := s.clock.Now()
	pausedTotal := session.PausedTotalSeconds + int64(now.Sub(*session.PausedAt)/time.Second)
	if err := s.repo.Update(ctx, s.db, session, map[string]any{
		"status":               timerdomain.SessionStatusRunning,
		"paused_at":            nil,
		"paused_total_seconds": pausedTotal,
		"updated_at":           now,
	}); err != nil {
		return timerdomain.TimerSession{}, err
	}
	session.Status = timerdomain.SessionStatusRunning
	session.PausedAt = nil
	session.PausedTotalSeconds = pausedTotal
	session.UpdatedAt = now

	targetID := session.ID.String()
	_ = s.auditSvc.Log(ctx, &lawyerID, "timer.resume", "timer_session", &targetID, nil)

	return *session, nil
}

// Stop folds a final open pause, converts the session into a draft time
// entry and deletes the session row. Sessions rounding to zero minutes
// are rejected and left running so no work is silently discarded.
func (s *Service) Stop(ctx context.Context, req timerdomain.StopTimerRequest) (entrydomain.TimeEntry, error) {
	lawyerID, ok := lawyerctx.LawyerIDFromContext(ctx)
	if !ok || lawyerID == 0 {
		return entrydomain.TimeEntry{}, timerdomain.ErrInvalidLawyer
	}

	unlock, err := s.acquire(ctx, lawyerID)
	if err != nil {
		return entrydomain.TimeEntry{}, err
	}
	defer unlock()

	session, err := s.repo.GetByLawyer(ctx, s.db, lawyerID)
	if err != nil {
		return entrydomain.TimeEntry{}, err
	}
	if session == nil {
		return entrydomain.TimeEntry{}, timerdomain.ErrTimerNotFound
	}

	now := s.clock.Now()
	elapsed := session.ElapsedMinutes(now)
	if elapsed < 1 {
		return entrydomain.TimeEntry{}, timerdomain.ErrSessionTooShort
	}

	description := strings.TrimSpace(req.Notes)
	if description == "" {
		description = session.Description
	}
	billable := true
	if req.IsBillable != nil {
		billable = *req.IsBillable
	}

	// Entry creation and session deletion commit together; a half-stopped
	// timer would mint a second entry on retry.
	var entry entrydomain.TimeEntry
	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		created, err := s.entrySvc.CreateFromTimer(ctx, tx, entrydomain.CreateFromTimerRequest{
			LawyerID:     lawyerID,
			ClientID:     session.ClientID,
			CaseID:       session.CaseID,
			ActivityCode: session.ActivityCode,
			Description:  description,
			WorkDate:     session.StartedAt,
			Duration:     elapsed,
			HourlyRate:   session.HourlyRate,
			Currency:     session.Currency,
			IsBillable:   billable,
		})
		if err != nil {
			return err
		}
		entry = created
		return s.repo.Delete(ctx, tx, session.ID)
	}); err != nil {
		return entrydomain.TimeEntry{}, err
	}

	targetID := entry.ID.String()
	_ = s.auditSvc.Log(ctx, &lawyerID, "timer.stop", "time_entry", &targetID, map[string]any{
		"duration_minutes": elapsed,
		"total_amount":     entry.TotalAmount,
	})

	return entry, nil
}

func (s *Service) Status(ctx context.Context) (timerdomain.TimerStatus, error) {
	lawyerID, ok := lawyerctx.LawyerIDFromContext(ctx)
	if !ok || lawyerID == 0 {
		return timerdomain.TimerStatus{}, timerdomain.ErrInvalidLawyer
	}

	session, err := s.repo.GetByLawyer(ctx, s.db, lawyerID)
	if err != nil {
		return timerdomain.TimerStatus{}, err
	}
	if session == nil {
		return timerdomain.TimerStatus{}, timerdomain.ErrTimerNotFound
	}

	now := s.clock.Now()
	return timerdomain.TimerStatus{
		Session:        *session,
		ElapsedMinutes: session.ElapsedMinutes(now),
		AsOf:           now,
	}, nil
}

func (s *Service) acquire(ctx context.Context, lawyerID snowflake.ID) (func(), error) {
	if !s.guard.Enabled() {
		return func() {}, nil
	}

	key := lawyerID.String()
	token, ok, err := s.guard.TryLockLawyer(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, timerdomain.ErrTimerBusy
	}
	return func() {
		if err := s.guard.ReleaseLawyer(ctx, key, token); err != nil {
			s.log.Warn("timer lock release failed", zap.String("lawyer_id", key), zap.Error(err))
		}
	}, nil
}
