package serviceorder

import (
	"github.com/orcafacil/billing/internal/serviceorder/repository"
	"github.com/orcafacil/billing/internal/serviceorder/service"
	"go.uber.org/fx"
)

var Module = fx.Module("serviceorder.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
