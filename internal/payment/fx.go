package payment

import (
	"context"

	"github.com/orcafacil/billing/internal/payment/gateway/mercadopago"
	"github.com/orcafacil/billing/internal/payment/preference"
	"github.com/orcafacil/billing/internal/payment/reconciler"
	"github.com/orcafacil/billing/internal/payment/repository"
	"github.com/orcafacil/billing/internal/payment/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(mercadopago.NewClient),
	fx.Provide(preference.NewService),
	fx.Provide(webhook.NewService),
	fx.Provide(reconciler.NewService),
	fx.Provide(reconciler.NewWorker),
	fx.Invoke(runReconciler),
)

func runReconciler(lc fx.Lifecycle, worker *reconciler.Worker) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())

			go worker.RunForever(ctx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})

			return nil
		},
	})
}
