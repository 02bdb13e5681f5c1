// Package scheduler runs background sweeps, currently the overdue
// invoice sweep. Sweeps are serialized across instances through the
// shared lock guard so only one node works a given pass.
package scheduler

import (
	"context"
	"time"

	auditdomain "github.com/mizanlaw/mizan/internal/audit/domain"
	"github.com/mizanlaw/mizan/internal/clock"
	invoicedomain "github.com/mizanlaw/mizan/internal/invoice/domain"
	"github.com/mizanlaw/mizan/internal/locks"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	sweepName    = "invoice_overdue"
	sweepTimeout = 30 * time.Second
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	AuditSvc auditdomain.Service
	Guard    *locks.SessionGuard `optional:"true"`
}

type Scheduler struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	auditSvc auditdomain.Service
	guard    *locks.SessionGuard
}

func New(p Params) *Scheduler {
	return &Scheduler{
		db:       p.DB,
		log:      p.Log.Named("scheduler"),
		clock:    p.Clock,
		auditSvc: p.AuditSvc,
		guard:    p.Guard,
	}
}

// SweepOverdueInvoices marks sent and partially paid invoices past
// their due date as overdue. Draft, paid and cancelled invoices are
// never touched.
func (s *Scheduler) SweepOverdueInvoices(parent context.Context) error {
	ctx, cancel := context.WithTimeout(parent, sweepTimeout)
	defer cancel()

	token, acquired, err := s.guard.TryLockSweep(ctx, sweepName, sweepTimeout)
	if err != nil {
		return err
	}
	if !acquired {
		s.log.Debug("overdue sweep already running elsewhere")
		return nil
	}
	defer func() {
		_ = s.guard.ReleaseSweep(ctx, sweepName, token)
	}()

	now := s.clock.Now()
	result := s.db.WithContext(ctx).
		Model(&invoicedomain.Invoice{}).
		Where("status IN ? AND due_date < ? AND cancelled_at IS NULL",
			[]invoicedomain.InvoiceStatus{invoicedomain.InvoiceStatusSent, invoicedomain.InvoiceStatusPartial},
			now).
		Updates(map[string]any{
			"status":     invoicedomain.InvoiceStatusOverdue,
			"updated_at": now,
		})
	if result.Error != nil {
		s.log.Error("overdue sweep failed", zap.Error(result.Error))
		return result.Error
	}

	if result.RowsAffected > 0 {
		s.log.Info("invoices marked overdue", zap.Int64("count", result.RowsAffected))
		_ = s.auditSvc.Log(ctx, nil, "invoice.sweep_overdue", "invoice", nil, map[string]any{
			"count": result.RowsAffected,
		})
	}
	return nil
}
