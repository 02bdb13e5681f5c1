package timeentry

import (
	"github.com/mizanlaw/mizan/internal/timeentry/service"
	"go.uber.org/fx"
)

var Module = fx.Module("timeentry.service",
	fx.Provide(service.NewService),
)
