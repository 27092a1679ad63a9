package invoice

import (
	"github.com/orcafacil/billing/internal/invoice/repository"
	"github.com/orcafacil/billing/internal/invoice/service"
	"go.uber.org/fx"
)

var Module = fx.Module("invoice.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
