package timer

import (
	"github.com/mizanlaw/mizan/internal/timer/repository"
	"github.com/mizanlaw/mizan/internal/timer/service"
	"go.uber.org/fx"
)

var Module = fx.Module("timer.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
