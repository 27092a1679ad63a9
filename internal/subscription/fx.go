package subscription

import (
	"github.com/orcafacil/billing/internal/subscription/repository"
	"github.com/orcafacil/billing/internal/subscription/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
