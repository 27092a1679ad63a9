package audit

import (
	"github.com/orcafacil/billing/internal/audit/repository"
	"github.com/orcafacil/billing/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
