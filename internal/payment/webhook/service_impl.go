package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/orcafacil/billing/internal/audit/domain"
	credentialdomain "github.com/orcafacil/billing/internal/credential/domain"
	obsmetrics "github.com/orcafacil/billing/internal/observability/metrics"
	paymentdomain "github.com/orcafacil/billing/internal/payment/domain"
	"github.com/orcafacil/billing/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const providerMercadoPago = "mercadopago"

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Repo          paymentdomain.Repository
	CredentialSvc credentialdomain.Service
	AuditSvc      auditdomain.Service
	Limiter       *ratelimit.WebhookIngressLimiter `optional:"true"`
	ObsMetrics    *obsmetrics.Metrics              `optional:"true"`
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	repo          paymentdomain.Repository
	credentialSvc credentialdomain.Service
	auditSvc      auditdomain.Service
	limiter       *ratelimit.WebhookIngressLimiter
	obsMetrics    *obsmetrics.Metrics
}

func NewService(p Params) paymentdomain.WebhookService {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("payment.webhook"),
		genID:         p.GenID,
		repo:          p.Repo,
		credentialSvc: p.CredentialSvc,
		auditSvc:      p.AuditSvc,
		limiter:       p.Limiter,
		obsMetrics:    p.ObsMetrics,
	}
}

type notificationBody struct {
	Type   string `json:"type"`
	Action string `json:"action"`
	UserID any    `json:"user_id"`
	Data   struct {
		ID any `json:"id"`
	} `json:"data"`
}

// Ingest authenticates an inbound notification and enqueues it for the
// reconciler. Nothing here blocks on gateway calls or payment processing.
func (s *Service) Ingest(ctx context.Context, provider, kind string, payload []byte, headers http.Header, query url.Values) (paymentdomain.IngestOutcome, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider != providerMercadoPago {
		return paymentdomain.IngestDiscarded, paymentdomain.ErrUnknownTopic
	}
	kind = strings.ToLower(strings.TrimSpace(kind))
	if kind != paymentdomain.TopicInvoices && kind != paymentdomain.TopicPlans {
		return paymentdomain.IngestDiscarded, paymentdomain.ErrUnknownTopic
	}

	if s.limiter != nil && !s.limiter.Allow(ctx, provider) {
		s.log.Warn("webhook ingress throttled", zap.String("provider", provider))
		return paymentdomain.IngestDiscarded, paymentdomain.ErrGatewayUnavailable
	}

	var body notificationBody
	if len(payload) > 0 {
		if !json.Valid(payload) {
			return paymentdomain.IngestDiscarded, paymentdomain.ErrMalformedPayload
		}
		if err := json.Unmarshal(payload, &body); err != nil {
			return paymentdomain.IngestDiscarded, paymentdomain.ErrMalformedPayload
		}
	}

	// The gateway also notifies merchant orders, chargeback details and
	// test pings on the same URL. Anything that is not a payment pointer
	// is acknowledged and dropped.
	topic := firstNonEmpty(query.Get("topic"), query.Get("type"), body.Type)
	if topic != "" && topic != "payment" {
		s.auditDiscard(ctx, nil, "webhook.discarded_unknown_topic", map[string]any{"topic": topic, "kind": kind})
		return paymentdomain.IngestDiscarded, nil
	}

	paymentID := firstNonEmpty(query.Get("data.id"), query.Get("id"), asString(body.Data.ID))
	if paymentID == "" {
		return paymentdomain.IngestDiscarded, paymentdomain.ErrMalformedPayload
	}

	tenantID, err := s.authenticate(ctx, headers, query, paymentID, asString(body.UserID))
	if err != nil {
		return paymentdomain.IngestDiscarded, err
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordWebhookReceived(ctx, kind)
	}

	exists, err := s.repo.PaymentExists(ctx, s.db, paymentID)
	if err != nil {
		return paymentdomain.IngestDiscarded, err
	}
	if exists {
		s.log.Info("webhook for already recorded payment",
			zap.String("gateway_payment_id", paymentID),
		)
		return paymentdomain.IngestDuplicate, nil
	}

	now := time.Now().UTC()
	raw := payload
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	delivery := &paymentdomain.WebhookDelivery{
		ID:               s.genID.Generate(),
		Provider:         provider,
		Topic:            kind,
		GatewayPaymentID: paymentID,
		TenantID:         tenantID,
		Payload:          datatypes.JSON(raw),
		Status:           paymentdomain.DeliveryPending,
		NextAttemptAt:    now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.repo.EnqueueDelivery(ctx, s.db, delivery); err != nil {
		return paymentdomain.IngestDiscarded, err
	}

	s.log.Info("webhook enqueued",
		zap.String("kind", kind),
		zap.String("gateway_payment_id", paymentID),
	)
	return paymentdomain.IngestAccepted, nil
}

// authenticate verifies the x-signature HMAC when the notification can be
// tied to a tenant with a webhook secret. Notifications without a
// resolvable tenant pass through: the authoritative gateway lookup is the
// real gate, the signature only rejects obvious forgeries early.
func (s *Service) authenticate(ctx context.Context, headers http.Header, query url.Values, paymentID, bodyUserID string) (*snowflake.ID, error) {
	gatewayUserID := firstNonEmpty(query.Get("user_id"), bodyUserID)
	if gatewayUserID == "" {
		return nil, nil
	}

	cred, err := s.credentialSvc.FindByGatewayUserID(ctx, gatewayUserID)
	if err != nil {
		s.log.Warn("webhook tenant resolution failed",
			zap.String("gateway_user_id", gatewayUserID),
			zap.Error(err),
		)
		return nil, nil
	}
	tenantID := cred.TenantID

	if cred.WebhookSecret == "" {
		return &tenantID, nil
	}

	signature := headers.Get("x-signature")
	requestID := headers.Get("x-request-id")
	ts, v1 := parseSignature(signature)
	if ts == "" || v1 == "" {
		return nil, paymentdomain.ErrInvalidSignature
	}

	manifest := fmt.Sprintf("id:%s;request-id:%s;ts:%s;", strings.ToLower(paymentID), requestID, ts)
	mac := hmac.New(sha256.New, []byte(cred.WebhookSecret))
	mac.Write([]byte(manifest))
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(v1))) {
		s.log.Warn("webhook signature mismatch",
			zap.String("gateway_payment_id", paymentID),
		)
		return nil, paymentdomain.ErrInvalidSignature
	}
	return &tenantID, nil
}

// parseSignature splits the "ts=...,v1=..." header format.
func parseSignature(header string) (ts, v1 string) {
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch strings.TrimSpace(key) {
		case "ts":
			ts = strings.TrimSpace(value)
		case "v1":
			v1 = strings.TrimSpace(value)
		}
	}
	return ts, v1
}

func (s *Service) auditDiscard(ctx context.Context, tenantID *snowflake.ID, action string, metadata map[string]any) {
	if err := s.auditSvc.Record(ctx, tenantID, action, "webhook", nil, metadata); err != nil {
		s.log.Warn("failed to audit webhook discard", zap.Error(err))
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func asString(v any) string {
	switch typed := v.(type) {
	case string:
		return typed
	case float64:
		return fmt.Sprintf("%.0f", typed)
	case json.Number:
		return typed.String()
	default:
		return ""
	}
}
