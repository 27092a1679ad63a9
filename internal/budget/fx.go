package budget

import (
	"github.com/orcafacil/billing/internal/budget/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("budget",
	fx.Provide(repository.Provide),
)
