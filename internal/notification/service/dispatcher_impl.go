package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/orcafacil/billing/internal/invoice/render"
	notifdomain "github.com/orcafacil/billing/internal/notification/domain"
	"github.com/orcafacil/billing/internal/notification/email"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Provider email.Provider
}

type Dispatcher struct {
	log      *zap.Logger
	provider email.Provider
}

func NewDispatcher(p Params) notifdomain.Dispatcher {
	return &Dispatcher{
		log:      p.Log.Named("notification.dispatcher"),
		provider: p.Provider,
	}
}

func (d *Dispatcher) PaymentConfirmed(ctx context.Context, n notifdomain.PaymentNotification) error {
	to := strings.TrimSpace(n.CustomerEmail)
	if to == "" {
		d.log.Debug("payment notification skipped, no recipient",
			zap.String("kind", n.Kind),
			zap.String("code", n.Code),
		)
		return nil
	}

	subject := fmt.Sprintf("Pagamento confirmado - %s", n.Code)
	body := fmt.Sprintf(
		`<p>Olá %s,</p>
<p>Recebemos o pagamento de <strong>%s</strong> referente a <strong>%s</strong>.</p>
<p>Situação atual: %s.</p>`,
		htmlEscape(n.CustomerName),
		render.FormatMoney(n.Amount),
		htmlEscape(n.Code),
		htmlEscape(n.Status),
	)

	if err := d.provider.Send(ctx, []string{to}, subject, body); err != nil {
		d.log.Warn("payment notification failed",
			zap.String("kind", n.Kind),
			zap.String("code", n.Code),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (d *Dispatcher) OrderCompleted(ctx context.Context, n notifdomain.OrderNotification) error {
	to := strings.TrimSpace(n.CustomerEmail)
	if to == "" {
		return nil
	}

	subject := fmt.Sprintf("Serviço concluído - %s", n.OrderCode)
	body := fmt.Sprintf(
		`<p>Olá %s,</p>
<p>O serviço <strong>%s</strong> foi concluído.</p>`,
		htmlEscape(n.CustomerName),
		htmlEscape(n.OrderCode),
	)
	if n.InvoiceCode != "" {
		body += fmt.Sprintf("<p>A fatura <strong>%s</strong> foi gerada.</p>", htmlEscape(n.InvoiceCode))
	}

	if err := d.provider.Send(ctx, []string{to}, subject, body); err != nil {
		d.log.Warn("order notification failed",
			zap.String("order", n.OrderCode),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func htmlEscape(s string) string {
	replacer := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return replacer.Replace(s)
}
