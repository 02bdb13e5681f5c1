package billingrate

import (
	"github.com/mizanlaw/mizan/internal/billingrate/service"
	"go.uber.org/fx"
)

var Module = fx.Module("billingrate.service",
	fx.Provide(service.NewService),
)
