package scheduler

import (
	"context"

	"github.com/mizanlaw/mizan/internal/config"
	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("scheduler",
	fx.Provide(New),
	fx.Invoke(runSweeps),
)

func runSweeps(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, sched *Scheduler) error {
	runner := cron.New()
	_, err := runner.AddFunc(cfg.OverdueSweepSpec, func() {
		if err := sched.SweepOverdueInvoices(context.Background()); err != nil {
			log.Warn("overdue sweep failed", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runner.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			stopped := runner.Stop()
			select {
			case <-stopped.Done():
			case <-ctx.Done():
			}
			return nil
		},
	})
	return nil
}
