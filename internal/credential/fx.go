package credential

import (
	"github.com/orcafacil/billing/internal/credential/repository"
	"github.com/orcafacil/billing/internal/credential/service"
	"go.uber.org/fx"
)

var Module = fx.Module("credential.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
