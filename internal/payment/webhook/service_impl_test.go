package webhook_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	credentialrepo "github.com/orcafacil/billing/internal/credential/repository"
	credentialservice "github.com/orcafacil/billing/internal/credential/service"

	"github.com/orcafacil/billing/internal/config"
	credentialdomain "github.com/orcafacil/billing/internal/credential/domain"
	paymentdomain "github.com/orcafacil/billing/internal/payment/domain"
	paymentrepo "github.com/orcafacil/billing/internal/payment/repository"
	paymentwebhook "github.com/orcafacil/billing/internal/payment/webhook"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type noopAuditService struct{}

func (noopAuditService) Record(ctx context.Context, tenantID *snowflake.ID, action, targetType string, targetID *string, metadata map[string]any) error {
	return nil
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_webhook_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	schema := []string{
		`CREATE TABLE provider_credentials (
			id BIGINT PRIMARY KEY,
			tenant_id BIGINT NOT NULL,
			provider TEXT NOT NULL,
			access_token_enc TEXT NOT NULL,
			public_key TEXT,
			webhook_secret_enc TEXT,
			gateway_user_id TEXT,
			expires_at TIMESTAMP,
			revoked_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_provider_credentials_tenant_provider ON provider_credentials(tenant_id, provider)`,
		`CREATE TABLE webhook_deliveries (
			id BIGINT PRIMARY KEY,
			provider TEXT NOT NULL,
			topic TEXT NOT NULL,
			gateway_payment_id TEXT NOT NULL,
			tenant_id BIGINT,
			payload TEXT,
			status TEXT NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			next_attempt_at TIMESTAMP NOT NULL,
			last_error TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE invoice_payments (
			id BIGINT PRIMARY KEY,
			tenant_id BIGINT NOT NULL,
			invoice_id BIGINT NOT NULL,
			gateway_payment_id TEXT NOT NULL UNIQUE,
			status TEXT NOT NULL,
			method TEXT,
			amount BIGINT NOT NULL,
			transaction_date TIMESTAMP,
			raw_payload TEXT,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE plan_payments (
			id BIGINT PRIMARY KEY,
			tenant_id BIGINT NOT NULL,
			plan_subscription_id BIGINT NOT NULL,
			gateway_payment_id TEXT NOT NULL UNIQUE,
			status TEXT NOT NULL,
			method TEXT,
			amount BIGINT NOT NULL,
			transaction_date TIMESTAMP,
			raw_payload TEXT,
			created_at TIMESTAMP NOT NULL
		)`,
	}
	for _, stmt := range schema {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

func newIngestFixture(t *testing.T) (paymentdomain.WebhookService, credentialdomain.Service, *gorm.DB, *snowflake.Node) {
	t.Helper()

	db := setupTestDB(t)
	node, err := snowflake.NewNode(12)
	require.NoError(t, err)

	credentialSvc := credentialservice.NewService(credentialservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Cfg:   config.Config{CredentialSecret: "test-secret"},
		Repo:  credentialrepo.Provide(),
	})
	webhookSvc := paymentwebhook.NewService(paymentwebhook.Params{
		DB:            db,
		Log:           zap.NewNop(),
		GenID:         node,
		Repo:          paymentrepo.Provide(),
		CredentialSvc: credentialSvc,
		AuditSvc:      noopAuditService{},
	})
	return webhookSvc, credentialSvc, db, node
}

func signatureHeader(secret, paymentID, requestID, ts string) string {
	manifest := fmt.Sprintf("id:%s;request-id:%s;ts:%s;", paymentID, requestID, ts)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(manifest))
	return fmt.Sprintf("ts=%s,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func TestIngestEnqueuesSignedNotification(t *testing.T) {
	ctx := context.Background()
	webhookSvc, credentialSvc, db, node := newIngestFixture(t)

	tenantID := node.Generate()
	secret := "whsec-mp"
	require.NoError(t, credentialSvc.Store(ctx, tenantID, credentialdomain.StoreRequest{
		Provider:      "mercadopago",
		AccessToken:   "APP_USR-token",
		WebhookSecret: secret,
		GatewayUserID: "998877",
	}))

	headers := http.Header{}
	headers.Set("x-request-id", "req-1")
	headers.Set("x-signature", signatureHeader(secret, "555001", "req-1", "1724900000"))
	query := url.Values{}
	query.Set("data.id", "555001")
	query.Set("user_id", "998877")
	query.Set("type", "payment")

	outcome, err := webhookSvc.Ingest(ctx, "mercadopago", paymentdomain.TopicInvoices, []byte(`{"type":"payment","data":{"id":"555001"}}`), headers, query)
	require.NoError(t, err)
	require.Equal(t, paymentdomain.IngestAccepted, outcome)

	var row struct {
		Status   string
		TenantID *int64 `gorm:"column:tenant_id"`
	}
	require.NoError(t, db.Raw("SELECT status, tenant_id FROM webhook_deliveries WHERE gateway_payment_id = ?", "555001").Scan(&row).Error)
	require.Equal(t, string(paymentdomain.DeliveryPending), row.Status)
	require.NotNil(t, row.TenantID)
	require.Equal(t, int64(tenantID), *row.TenantID)
}

func TestIngestRejectsBadSignature(t *testing.T) {
	ctx := context.Background()
	webhookSvc, credentialSvc, db, node := newIngestFixture(t)

	tenantID := node.Generate()
	require.NoError(t, credentialSvc.Store(ctx, tenantID, credentialdomain.StoreRequest{
		Provider:      "mercadopago",
		AccessToken:   "APP_USR-token",
		WebhookSecret: "whsec-mp",
		GatewayUserID: "998877",
	}))

	headers := http.Header{}
	headers.Set("x-request-id", "req-1")
	headers.Set("x-signature", signatureHeader("wrong-secret", "555001", "req-1", "1724900000"))
	query := url.Values{}
	query.Set("data.id", "555001")
	query.Set("user_id", "998877")

	outcome, err := webhookSvc.Ingest(ctx, "mercadopago", paymentdomain.TopicInvoices, nil, headers, query)
	require.ErrorIs(t, err, paymentdomain.ErrInvalidSignature)
	require.Equal(t, paymentdomain.IngestDiscarded, outcome)

	var count int64
	require.NoError(t, db.Raw("SELECT COUNT(1) FROM webhook_deliveries").Scan(&count).Error)
	require.Zero(t, count)
}

func TestIngestAcknowledgesAlreadyRecordedPayment(t *testing.T) {
	ctx := context.Background()
	webhookSvc, _, db, node := newIngestFixture(t)

	require.NoError(t, db.Exec(
		`INSERT INTO invoice_payments (id, tenant_id, invoice_id, gateway_payment_id, status, amount, created_at)
		 VALUES (?, ?, ?, ?, 'approved', 12000, ?)`,
		node.Generate(), node.Generate(), node.Generate(), "555001", time.Now().UTC(),
	).Error)

	query := url.Values{}
	query.Set("data.id", "555001")

	outcome, err := webhookSvc.Ingest(ctx, "mercadopago", paymentdomain.TopicInvoices, nil, http.Header{}, query)
	require.NoError(t, err)
	require.Equal(t, paymentdomain.IngestDuplicate, outcome)

	var count int64
	require.NoError(t, db.Raw("SELECT COUNT(1) FROM webhook_deliveries").Scan(&count).Error)
	require.Zero(t, count)
}

func TestIngestDropsNonPaymentTopics(t *testing.T) {
	ctx := context.Background()
	webhookSvc, _, db, _ := newIngestFixture(t)

	query := url.Values{}
	query.Set("topic", "merchant_order")
	query.Set("id", "889900")

	outcome, err := webhookSvc.Ingest(ctx, "mercadopago", paymentdomain.TopicInvoices, nil, http.Header{}, query)
	require.NoError(t, err)
	require.Equal(t, paymentdomain.IngestDiscarded, outcome)

	var count int64
	require.NoError(t, db.Raw("SELECT COUNT(1) FROM webhook_deliveries").Scan(&count).Error)
	require.Zero(t, count)
}

func TestIngestRejectsMalformedPayload(t *testing.T) {
	ctx := context.Background()
	webhookSvc, _, _, _ := newIngestFixture(t)

	outcome, err := webhookSvc.Ingest(ctx, "mercadopago", paymentdomain.TopicInvoices, []byte(`{not-json`), http.Header{}, url.Values{})
	require.ErrorIs(t, err, paymentdomain.ErrMalformedPayload)
	require.Equal(t, paymentdomain.IngestDiscarded, outcome)
}

func TestIngestRejectsUnknownKind(t *testing.T) {
	ctx := context.Background()
	webhookSvc, _, _, _ := newIngestFixture(t)

	_, err := webhookSvc.Ingest(ctx, "mercadopago", "refunds", nil, http.Header{}, url.Values{})
	require.ErrorIs(t, err, paymentdomain.ErrUnknownTopic)

	_, err = webhookSvc.Ingest(ctx, "stripe", paymentdomain.TopicInvoices, nil, http.Header{}, url.Values{})
	require.ErrorIs(t, err, paymentdomain.ErrUnknownTopic)
}
