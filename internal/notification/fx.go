package notification

import (
	"github.com/orcafacil/billing/internal/config"
	"github.com/orcafacil/billing/internal/notification/email"
	"github.com/orcafacil/billing/internal/notification/service"
	"go.uber.org/fx"
)

func provideProvider(cfg config.Config) email.Provider {
	if cfg.SMTPHost == "" {
		return &email.NoOpProvider{}
	}
	return email.NewSMTP(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPass,
		From:     cfg.SMTPFrom,
	})
}

var Module = fx.Module("notification",
	fx.Provide(provideProvider),
	fx.Provide(service.NewDispatcher),
)
