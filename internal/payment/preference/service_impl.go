package preference

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/orcafacil/billing/internal/config"
	credentialdomain "github.com/orcafacil/billing/internal/credential/domain"
	invoicedomain "github.com/orcafacil/billing/internal/invoice/domain"
	obsmetrics "github.com/orcafacil/billing/internal/observability/metrics"
	paymentdomain "github.com/orcafacil/billing/internal/payment/domain"
	"github.com/orcafacil/billing/internal/payment/gateway/mercadopago"
	subscriptiondomain "github.com/orcafacil/billing/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log             *zap.Logger
	Cfg             config.Config
	Gateway         *mercadopago.Client
	CredentialSvc   credentialdomain.Service
	InvoiceSvc      invoicedomain.Service
	SubscriptionSvc subscriptiondomain.Service
	ObsMetrics      *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	log             *zap.Logger
	cfg             config.Config
	gateway         *mercadopago.Client
	credentialSvc   credentialdomain.Service
	invoiceSvc      invoicedomain.Service
	subscriptionSvc subscriptiondomain.Service
	obsMetrics      *obsmetrics.Metrics
}

func NewService(p Params) paymentdomain.PreferenceService {
	return &Service{
		log:             p.Log.Named("payment.preference"),
		cfg:             p.Cfg,
		gateway:         p.Gateway,
		credentialSvc:   p.CredentialSvc,
		invoiceSvc:      p.InvoiceSvc,
		subscriptionSvc: p.SubscriptionSvc,
		obsMetrics:      p.ObsMetrics,
	}
}

func (s *Service) CreateForInvoice(ctx context.Context, tenantID snowflake.ID, invoiceCode string) (*paymentdomain.CheckoutLink, error) {
	inv, err := s.invoiceSvc.Get(ctx, tenantID, invoiceCode)
	if err != nil {
		return nil, err
	}
	switch inv.Status {
	case invoicedomain.StatusPaid:
		return nil, invoicedomain.ErrInvoicePaid
	case invoicedomain.StatusCancelled:
		return nil, invoicedomain.ErrInvoiceCancelled
	}

	cred, err := s.credentialSvc.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	ref := paymentdomain.NewInvoiceReference(tenantID, inv.Code)
	pref, err := s.gateway.CreatePreference(ctx, cred.AccessToken, mercadopago.PreferenceRequest{
		Items: []mercadopago.PreferenceItem{{
			Title:     "Fatura " + inv.Code,
			Quantity:  1,
			UnitPrice: float64(inv.Total) / 100,
		}},
		ExternalReference: ref.String(),
		NotificationURL:   s.notificationURL(paymentdomain.TopicInvoices),
	})
	if err != nil {
		return nil, err
	}

	// Best effort: losing the stored id only means a later cancellation
	// cannot expire the checkout link at the gateway.
	if err := s.invoiceSvc.AttachPreference(ctx, tenantID, inv.Code, pref.ID); err != nil {
		s.log.Warn("preference id not stored on invoice",
			zap.String("invoice", inv.Code),
			zap.Error(err),
		)
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordPreferenceCreated(ctx, "invoice")
	}
	s.log.Info("checkout preference created",
		zap.String("invoice", inv.Code),
		zap.String("preference_id", pref.ID),
	)
	return &paymentdomain.CheckoutLink{
		PreferenceID:      pref.ID,
		InitPoint:         pref.InitPoint,
		ExternalReference: ref.String(),
	}, nil
}

// CreateForPlan uses the platform account: plan revenue belongs to the
// platform, not to a tenant's own gateway account.
func (s *Service) CreateForPlan(ctx context.Context, tenantID, subscriptionID snowflake.ID) (*paymentdomain.CheckoutLink, error) {
	token := strings.TrimSpace(s.cfg.PlatformAccessToken)
	if token == "" {
		return nil, credentialdomain.ErrCredentialMissing
	}

	sub, err := s.subscriptionSvc.Get(ctx, tenantID, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.Status != subscriptiondomain.StatusPending {
		return nil, fmt.Errorf("subscription %d is %s: %w", sub.ID, sub.Status, subscriptiondomain.ErrSubscriptionNotPending)
	}

	ref := paymentdomain.NewPlanReference(tenantID, sub.ID)
	pre, err := s.gateway.CreatePlanPreference(ctx, token, mercadopago.PreapprovalRequest{
		Reason:            "Assinatura " + sub.PlanID,
		ExternalReference: ref.String(),
		BackURL:           s.cfg.NotificationBaseURL,
		AutoRecurring: mercadopago.AutoRecurring{
			Frequency:         1,
			FrequencyType:     "months",
			TransactionAmount: float64(sub.Amount) / 100,
			CurrencyID:        sub.Currency,
		},
	})
	if err != nil {
		return nil, err
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordPreferenceCreated(ctx, "plan")
	}
	s.log.Info("plan preapproval created",
		zap.String("plan_id", sub.PlanID),
		zap.String("preapproval_id", pre.ID),
	)
	return &paymentdomain.CheckoutLink{
		PreferenceID:      pre.ID,
		InitPoint:         pre.InitPoint,
		ExternalReference: ref.String(),
	}, nil
}

func (s *Service) Invalidate(ctx context.Context, tenantID snowflake.ID, preferenceID string) error {
	preferenceID = strings.TrimSpace(preferenceID)
	if preferenceID == "" {
		return paymentdomain.ErrGatewayRejected
	}
	cred, err := s.credentialSvc.Get(ctx, tenantID)
	if err != nil {
		return err
	}
	return s.gateway.InvalidatePreference(ctx, cred.AccessToken, preferenceID)
}

func (s *Service) notificationURL(topic string) string {
	base := strings.TrimRight(strings.TrimSpace(s.cfg.NotificationBaseURL), "/")
	if base == "" {
		return ""
	}
	return base + "/webhooks/mercadopago/" + topic
}
