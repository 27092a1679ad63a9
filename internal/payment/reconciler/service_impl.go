package reconciler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/orcafacil/billing/internal/audit/domain"
	"github.com/orcafacil/billing/internal/config"
	credentialdomain "github.com/orcafacil/billing/internal/credential/domain"
	invoicedomain "github.com/orcafacil/billing/internal/invoice/domain"
	notifdomain "github.com/orcafacil/billing/internal/notification/domain"
	obsmetrics "github.com/orcafacil/billing/internal/observability/metrics"
	paymentdomain "github.com/orcafacil/billing/internal/payment/domain"
	"github.com/orcafacil/billing/internal/payment/gateway/mercadopago"
	subscriptiondomain "github.com/orcafacil/billing/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// disposition is the terminal fate of one delivery attempt.
type disposition int

const (
	dispositionProcessed disposition = iota
	dispositionDiscarded
	dispositionRetry
)

type Params struct {
	fx.In

	DB               *gorm.DB
	Log              *zap.Logger
	GenID            *snowflake.Node
	Cfg              config.Config
	Gateway          *mercadopago.Client
	Repo             paymentdomain.Repository
	InvoiceRepo      invoicedomain.Repository
	SubscriptionRepo subscriptiondomain.Repository
	CredentialSvc    credentialdomain.Service
	AuditSvc         auditdomain.Service
	Dispatcher       notifdomain.Dispatcher `optional:"true"`
	ObsMetrics       *obsmetrics.Metrics    `optional:"true"`
}

// Service reconciles queued webhook deliveries against the gateway. The
// webhook body is never trusted; the authoritative payment fetched from the
// gateway drives every state change.
type Service struct {
	db               *gorm.DB
	log              *zap.Logger
	genID            *snowflake.Node
	cfg              config.Config
	gateway          *mercadopago.Client
	repo             paymentdomain.Repository
	invoiceRepo      invoicedomain.Repository
	subscriptionRepo subscriptiondomain.Repository
	credentialSvc    credentialdomain.Service
	auditSvc         auditdomain.Service
	dispatcher       notifdomain.Dispatcher
	obsMetrics       *obsmetrics.Metrics
}

func NewService(p Params) *Service {
	return &Service{
		db:               p.DB,
		log:              p.Log.Named("payment.reconciler"),
		genID:            p.GenID,
		cfg:              p.Cfg,
		gateway:          p.Gateway,
		repo:             p.Repo,
		invoiceRepo:      p.InvoiceRepo,
		subscriptionRepo: p.SubscriptionRepo,
		credentialSvc:    p.CredentialSvc,
		auditSvc:         p.AuditSvc,
		dispatcher:       p.Dispatcher,
		obsMetrics:       p.ObsMetrics,
	}
}

// ProcessDelivery runs one delivery through the pipeline and records its
// fate on the queue row.
func (s *Service) ProcessDelivery(ctx context.Context, d paymentdomain.WebhookDelivery) error {
	disp, reason, err := s.reconcile(ctx, d)

	switch disp {
	case dispositionProcessed:
		s.recordOutcome(ctx, d.Topic, "processed")
		return s.repo.MarkDeliveryProcessed(ctx, s.db, d.ID)

	case dispositionDiscarded:
		s.recordOutcome(ctx, d.Topic, "discarded")
		return s.repo.MarkDeliveryDiscarded(ctx, s.db, d.ID, reason)

	default:
		if d.Attempts >= s.maxAttempts() {
			s.log.Error("delivery exhausted retries",
				zap.String("gateway_payment_id", d.GatewayPaymentID),
				zap.Int("attempts", d.Attempts),
				zap.Error(err),
			)
			s.audit(ctx, d.TenantID, "webhook.retries_exhausted", d.GatewayPaymentID, map[string]any{
				"attempts": d.Attempts,
				"error":    errString(err),
			})
			s.recordOutcome(ctx, d.Topic, "failed")
			return s.repo.MarkDeliveryFailed(ctx, s.db, d.ID, errString(err))
		}
		next := time.Now().UTC().Add(retryDelay(d.Attempts))
		s.recordOutcome(ctx, d.Topic, "retried")
		return s.repo.RescheduleDelivery(ctx, s.db, d.ID, next, errString(err))
	}
}

func (s *Service) reconcile(ctx context.Context, d paymentdomain.WebhookDelivery) (disposition, string, error) {
	// Dedup before spending a gateway call. The unique index on payment
	// records is the hard guarantee; this is the cheap path.
	exists, err := s.repo.PaymentExists(ctx, s.db, d.GatewayPaymentID)
	if err != nil {
		return dispositionRetry, "", err
	}
	if exists {
		return dispositionProcessed, "", nil
	}

	token, err := s.accessToken(ctx, d)
	if err != nil {
		s.audit(ctx, d.TenantID, "webhook.credential_missing", d.GatewayPaymentID, map[string]any{
			"topic": d.Topic,
		})
		return dispositionDiscarded, "credential missing", nil
	}

	payment, err := s.gateway.GetPayment(ctx, token, d.GatewayPaymentID)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrGatewayUnavailable) {
			return dispositionRetry, "", err
		}
		// The gateway denies knowing this payment. Nothing to apply.
		s.audit(ctx, d.TenantID, "webhook.payment_lookup_rejected", d.GatewayPaymentID, map[string]any{
			"error": errString(err),
		})
		return dispositionDiscarded, "gateway rejected lookup", nil
	}

	ref, err := paymentdomain.ParseReference(payment.ExternalReference)
	if err != nil {
		s.audit(ctx, d.TenantID, "webhook.unresolved_reference", d.GatewayPaymentID, map[string]any{
			"external_reference": payment.ExternalReference,
		})
		return dispositionDiscarded, "unresolved external reference", nil
	}

	switch ref.Kind {
	case paymentdomain.RefInvoice:
		return s.applyInvoicePayment(ctx, d, ref, payment)
	case paymentdomain.RefPlan:
		return s.applyPlanPayment(ctx, d, ref, payment)
	default:
		return dispositionDiscarded, "unresolved external reference", nil
	}
}

// accessToken picks the credential for the authoritative lookup. Tenant
// collections use the tenant's token; plan payments and unresolved tenants
// fall back to the platform account.
func (s *Service) accessToken(ctx context.Context, d paymentdomain.WebhookDelivery) (string, error) {
	if d.Topic == paymentdomain.TopicInvoices && d.TenantID != nil {
		cred, err := s.credentialSvc.Get(ctx, *d.TenantID)
		if err == nil {
			return cred.AccessToken, nil
		}
		s.log.Warn("tenant credential unavailable, falling back to platform token",
			zap.Error(err),
		)
	}
	token := strings.TrimSpace(s.cfg.PlatformAccessToken)
	if token == "" {
		return "", credentialdomain.ErrCredentialMissing
	}
	return token, nil
}

func (s *Service) applyInvoicePayment(ctx context.Context, d paymentdomain.WebhookDelivery, ref paymentdomain.Reference, payment *mercadopago.Payment) (disposition, string, error) {
	outcome := paymentdomain.MapGatewayStatus(payment.Status)
	if outcome == paymentdomain.OutcomeNone {
		return dispositionProcessed, "", nil
	}

	var notify *notifdomain.PaymentNotification

	err := s.db.Transaction(func(tx *gorm.DB) error {
		inv, err := s.invoiceRepo.LockByCode(ctx, tx, ref.TenantID, ref.InvoiceCode)
		if err != nil {
			return err
		}

		target, err := s.invoiceTarget(ctx, tx, inv, outcome, payment)
		if err != nil {
			return err
		}
		// A refund or chargeback undoes even a settled invoice. Everything
		// else obeys the monotonic settlement ladder.
		reversal := outcome == paymentdomain.OutcomeReverse
		if !reversal && target != inv.Status && !inv.Status.CanTransition(target) {
			return paymentdomain.ErrNonMonotonicTransition
		}

		inserted, err := s.repo.InsertInvoicePayment(ctx, tx, &paymentdomain.InvoicePayment{
			ID:               s.genID.Generate(),
			TenantID:         ref.TenantID,
			InvoiceID:        inv.ID,
			GatewayPaymentID: strconv.FormatInt(payment.ID, 10),
			Status:           payment.Status,
			Method:           payment.PaymentMethodID,
			Amount:           payment.AmountCents(),
			TransactionDate:  payment.DateApproved,
			RawPayload:       datatypes.JSON(d.Payload),
			CreatedAt:        time.Now().UTC(),
		})
		if err != nil {
			return err
		}
		if !inserted {
			// Another worker recorded this payment first. Benign.
			return nil
		}

		// The ledger row lands even when the status stays put: an approved
		// amount that still leaves the invoice short must count toward a
		// later settlement.
		if target != inv.Status {
			switch target {
			case invoicedomain.StatusPaid:
				now := time.Now().UTC()
				paidAt := payment.DateApproved
				if paidAt == nil {
					paidAt = &now
				}
				if err := s.invoiceRepo.UpdateSettlement(ctx, tx, inv.ID, target,
					strconv.FormatInt(payment.ID, 10), payment.PaymentMethodID, paidAt); err != nil {
					return err
				}
			case invoicedomain.StatusCancelled:
				notes := inv.Notes
				if outcome == paymentdomain.OutcomeReverse {
					notes = strings.TrimSpace(notes + " " + resolutionNote(payment.Status))
				}
				if err := s.invoiceRepo.UpdateStatus(ctx, tx, inv.ID, target, notes); err != nil {
					return err
				}
				if err := s.invoiceRepo.ReleaseBilledLines(ctx, tx, inv.ID); err != nil {
					return err
				}
			default:
				if err := s.invoiceRepo.UpdateStatus(ctx, tx, inv.ID, target, inv.Notes); err != nil {
					return err
				}
			}
		}

		if s.obsMetrics != nil {
			s.obsMetrics.RecordPayment(ctx, "invoice", payment.Status)
		}
		s.audit(ctx, &ref.TenantID, "payment.applied", d.GatewayPaymentID, map[string]any{
			"invoice":        inv.Code,
			"gateway_status": payment.Status,
			"target_status":  string(target),
			"amount":         payment.AmountCents(),
		})

		if target == invoicedomain.StatusPaid || target == invoicedomain.StatusPartial {
			notify = &notifdomain.PaymentNotification{
				TenantID: ref.TenantID,
				Kind:     "invoice",
				Code:     inv.Code,
				Status:   string(target),
				Amount:   payment.AmountCents(),
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, paymentdomain.ErrNonMonotonicTransition) {
			s.audit(ctx, &ref.TenantID, "payment.non_monotonic", d.GatewayPaymentID, map[string]any{
				"invoice":        ref.InvoiceCode,
				"gateway_status": payment.Status,
			})
			return dispositionDiscarded, "non-monotonic transition", nil
		}
		if errors.Is(err, invoicedomain.ErrInvoiceNotFound) {
			s.audit(ctx, &ref.TenantID, "webhook.unresolved_reference", d.GatewayPaymentID, map[string]any{
				"invoice": ref.InvoiceCode,
			})
			return dispositionDiscarded, "invoice not found", nil
		}
		return dispositionRetry, "", err
	}

	if notify != nil {
		s.notifyInvoicePayment(ctx, ref, notify)
	}
	return dispositionProcessed, "", nil
}

// invoiceTarget decides the invoice status an approved or reversed payment
// lands on. Approval accumulates: earlier partial payments count toward
// settlement in full.
func (s *Service) invoiceTarget(ctx context.Context, tx *gorm.DB, inv *invoicedomain.Invoice, outcome paymentdomain.Outcome, payment *mercadopago.Payment) (invoicedomain.Status, error) {
	switch outcome {
	case paymentdomain.OutcomeSettle:
		var priorPaid int64
		if err := tx.WithContext(ctx).Raw(
			`SELECT COALESCE(SUM(amount), 0)
			 FROM invoice_payments
			 WHERE invoice_id = ? AND status = 'approved'`,
			inv.ID,
		).Scan(&priorPaid).Error; err != nil {
			return inv.Status, err
		}
		if priorPaid+payment.AmountCents() >= inv.Total {
			return invoicedomain.StatusPaid, nil
		}
		return invoicedomain.StatusPartial, nil

	case paymentdomain.OutcomeCancel, paymentdomain.OutcomeReverse:
		return invoicedomain.StatusCancelled, nil

	default:
		return inv.Status, nil
	}
}

func (s *Service) applyPlanPayment(ctx context.Context, d paymentdomain.WebhookDelivery, ref paymentdomain.Reference, payment *mercadopago.Payment) (disposition, string, error) {
	outcome := paymentdomain.MapGatewayStatus(payment.Status)
	if outcome == paymentdomain.OutcomeNone {
		return dispositionProcessed, "", nil
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		sub, err := s.subscriptionRepo.LockByID(ctx, tx, ref.TenantID, ref.SubscriptionID)
		if err != nil {
			return err
		}

		var target subscriptiondomain.Status
		switch outcome {
		case paymentdomain.OutcomeSettle:
			target = subscriptiondomain.StatusActive
		default:
			target = subscriptiondomain.StatusCancelled
		}
		// A settle on an already active subscription is a renewal: record
		// the payment and roll the window forward without a transition.
		renewal := target == subscriptiondomain.StatusActive && sub.Status == subscriptiondomain.StatusActive
		if !renewal && !sub.Status.CanTransition(target) {
			return paymentdomain.ErrNonMonotonicTransition
		}

		inserted, err := s.repo.InsertPlanPayment(ctx, tx, &paymentdomain.PlanPayment{
			ID:                 s.genID.Generate(),
			TenantID:           ref.TenantID,
			PlanSubscriptionID: sub.ID,
			GatewayPaymentID:   strconv.FormatInt(payment.ID, 10),
			Status:             payment.Status,
			Method:             payment.PaymentMethodID,
			Amount:             payment.AmountCents(),
			TransactionDate:    payment.DateApproved,
			RawPayload:         datatypes.JSON(d.Payload),
			CreatedAt:          time.Now().UTC(),
		})
		if err != nil {
			return err
		}
		if !inserted {
			return nil
		}

		now := time.Now().UTC()
		paymentID := strconv.FormatInt(payment.ID, 10)
		switch outcome {
		case paymentdomain.OutcomeSettle:
			last := payment.DateApproved
			if last == nil {
				last = &now
			}
			next := last.AddDate(0, 1, 0)
			sub.Status = subscriptiondomain.StatusActive
			if sub.StartedAt == nil {
				sub.StartedAt = last
			}
			sub.LastPaymentDate = last
			sub.NextPaymentDate = &next
			sub.PaymentID = &paymentID
		default:
			sub.Status = subscriptiondomain.StatusCancelled
			sub.EndsAt = &now
			sub.PaymentID = &paymentID
		}
		if err := s.subscriptionRepo.UpdateSettlement(ctx, tx, sub); err != nil {
			return err
		}

		if s.obsMetrics != nil {
			s.obsMetrics.RecordPayment(ctx, "plan", payment.Status)
		}
		s.audit(ctx, &ref.TenantID, "payment.applied", d.GatewayPaymentID, map[string]any{
			"plan_subscription_id": sub.ID.String(),
			"gateway_status":       payment.Status,
			"target_status":        string(sub.Status),
			"amount":               payment.AmountCents(),
		})
		return nil
	})
	if err != nil {
		if errors.Is(err, paymentdomain.ErrNonMonotonicTransition) {
			s.audit(ctx, &ref.TenantID, "payment.non_monotonic", d.GatewayPaymentID, map[string]any{
				"plan_subscription_id": ref.SubscriptionID.String(),
				"gateway_status":       payment.Status,
			})
			return dispositionDiscarded, "non-monotonic transition", nil
		}
		if errors.Is(err, subscriptiondomain.ErrSubscriptionNotFound) {
			s.audit(ctx, &ref.TenantID, "webhook.unresolved_reference", d.GatewayPaymentID, map[string]any{
				"plan_subscription_id": ref.SubscriptionID.String(),
			})
			return dispositionDiscarded, "subscription not found", nil
		}
		return dispositionRetry, "", err
	}

	return dispositionProcessed, "", nil
}

// notifyInvoicePayment is best effort by contract: the payment is already
// committed and a failed email must not disturb it.
func (s *Service) notifyInvoicePayment(ctx context.Context, ref paymentdomain.Reference, n *notifdomain.PaymentNotification) {
	if s.dispatcher == nil {
		return
	}

	var row struct {
		Name  string `gorm:"column:name"`
		Email string `gorm:"column:email"`
	}
	if err := s.db.WithContext(ctx).Raw(
		`SELECT c.name, c.email
		 FROM invoices i
		 JOIN service_orders so ON so.id = i.service_order_id
		 JOIN customers c ON c.id = so.customer_id
		 WHERE i.tenant_id = ? AND i.code = ?`,
		ref.TenantID,
		ref.InvoiceCode,
	).Scan(&row).Error; err != nil {
		s.log.Warn("payment notification lookup failed", zap.Error(err))
		return
	}
	n.CustomerName = strings.TrimSpace(row.Name)
	n.CustomerEmail = strings.TrimSpace(row.Email)

	if err := s.dispatcher.PaymentConfirmed(ctx, *n); err != nil {
		s.log.Warn("payment notification failed",
			zap.String("invoice", n.Code),
			zap.Error(err),
		)
	}
}

func (s *Service) maxAttempts() int {
	if s.cfg.WebhookMaxAttempts > 0 {
		return s.cfg.WebhookMaxAttempts
	}
	return 8
}

func (s *Service) recordOutcome(ctx context.Context, topic, outcome string) {
	if s.obsMetrics != nil {
		s.obsMetrics.RecordWebhookOutcome(ctx, topic, outcome)
	}
}

func (s *Service) audit(ctx context.Context, tenantID *snowflake.ID, action, gatewayPaymentID string, metadata map[string]any) {
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["gateway_payment_id"] = gatewayPaymentID
	target := gatewayPaymentID
	if err := s.auditSvc.Record(ctx, tenantID, action, "gateway_payment", &target, metadata); err != nil {
		s.log.Warn("failed to write reconciliation audit log",
			zap.String("action", action),
			zap.Error(err),
		)
	}
}

func resolutionNote(status string) string {
	return fmt.Sprintf("[resolução: pagamento %s pelo gateway]", status)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
