package audit

import (
	"github.com/mizanlaw/mizan/internal/audit/repository"
	"github.com/mizanlaw/mizan/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
