package retainer

import (
	"github.com/mizanlaw/mizan/internal/retainer/service"
	"go.uber.org/fx"
)

var Module = fx.Module("retainer.service",
	fx.Provide(service.NewService),
)
