package reconciler_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/orcafacil/billing/internal/config"
	credentialdomain "github.com/orcafacil/billing/internal/credential/domain"
	credentialrepo "github.com/orcafacil/billing/internal/credential/repository"
	credentialservice "github.com/orcafacil/billing/internal/credential/service"
	invoicerepo "github.com/orcafacil/billing/internal/invoice/repository"
	paymentdomain "github.com/orcafacil/billing/internal/payment/domain"
	"github.com/orcafacil/billing/internal/payment/gateway/mercadopago"
	"github.com/orcafacil/billing/internal/payment/reconciler"
	paymentrepo "github.com/orcafacil/billing/internal/payment/repository"
	subscriptionrepo "github.com/orcafacil/billing/internal/subscription/repository"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type noopAuditService struct{}

func (noopAuditService) Record(ctx context.Context, tenantID *snowflake.ID, action, targetType string, targetID *string, metadata map[string]any) error {
	return nil
}

type fixture struct {
	svc   *reconciler.Service
	db    *gorm.DB
	node  *snowflake.Node
	creds credentialdomain.Service
	hits  *int
}

func newFixture(t *testing.T, paymentJSON string) *fixture {
	t.Helper()

	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if paymentJSON == "" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(paymentJSON))
	}))
	t.Cleanup(server.Close)

	db := setupTestDB(t)
	node, err := snowflake.NewNode(13)
	require.NoError(t, err)

	cfg := config.Config{
		GatewayBaseURL:      server.URL,
		GatewayTimeout:      2 * time.Second,
		GatewayMaxRetries:   0,
		PlatformAccessToken: "platform-token",
		CredentialSecret:    "test-secret",
		WebhookMaxAttempts:  3,
	}
	credentialSvc := credentialservice.NewService(credentialservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Cfg:   cfg,
		Repo:  credentialrepo.Provide(),
	})
	svc := reconciler.NewService(reconciler.Params{
		DB:               db,
		Log:              zap.NewNop(),
		GenID:            node,
		Cfg:              cfg,
		Gateway:          mercadopago.NewClient(cfg, zap.NewNop()),
		Repo:             paymentrepo.Provide(),
		InvoiceRepo:      invoicerepo.Provide(),
		SubscriptionRepo: subscriptionrepo.Provide(),
		CredentialSvc:    credentialSvc,
		AuditSvc:         noopAuditService{},
	})
	return &fixture{svc: svc, db: db, node: node, creds: credentialSvc, hits: &hits}
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_reconciler_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	schema := []string{
		`CREATE TABLE invoices (
			id BIGINT PRIMARY KEY,
			tenant_id BIGINT NOT NULL,
			service_order_id BIGINT NOT NULL,
			code TEXT NOT NULL,
			status TEXT NOT NULL,
			issue_date TIMESTAMP NOT NULL,
			due_date TIMESTAMP NOT NULL,
			subtotal BIGINT NOT NULL,
			discount BIGINT NOT NULL DEFAULT 0,
			total BIGINT NOT NULL,
			notes TEXT,
			is_automatic BOOLEAN NOT NULL DEFAULT FALSE,
			payment_id TEXT,
			payment_method TEXT,
			preference_id TEXT,
			paid_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_invoices_tenant_code ON invoices(tenant_id, code)`,
		`CREATE TABLE invoice_items (
			id BIGINT PRIMARY KEY,
			tenant_id BIGINT NOT NULL,
			invoice_id BIGINT NOT NULL,
			service_order_item_id BIGINT,
			description TEXT NOT NULL,
			quantity BIGINT NOT NULL DEFAULT 1,
			unit_amount BIGINT NOT NULL DEFAULT 0,
			amount BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE service_order_items (
			id BIGINT PRIMARY KEY,
			tenant_id BIGINT NOT NULL,
			service_order_id BIGINT NOT NULL,
			description TEXT NOT NULL,
			quantity BIGINT NOT NULL DEFAULT 1,
			unit_amount BIGINT NOT NULL DEFAULT 0,
			invoiced_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE plan_subscriptions (
			id BIGINT PRIMARY KEY,
			tenant_id BIGINT NOT NULL,
			plan_id TEXT NOT NULL,
			status TEXT NOT NULL,
			amount BIGINT NOT NULL,
			currency TEXT NOT NULL,
			started_at TIMESTAMP,
			ends_at TIMESTAMP,
			last_payment_date TIMESTAMP,
			next_payment_date TIMESTAMP,
			payment_id TEXT,
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
	}
	for _, stmt := range schema {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

func (f *fixture) seedInvoice(t *testing.T, tenantID snowflake.ID, code string, status string, total int64) snowflake.ID {
	t.Helper()
	id := f.node.Generate()
	now := time.Now().UTC()
	require.NoError(t, f.db.Exec(
		`INSERT INTO invoices (id, tenant_id, service_order_id, code, status, issue_date, due_date, subtotal, discount, total, notes, is_automatic, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, '', FALSE, ?, ?)`,
		id, tenantID, f.node.Generate(), code, status, now, now.AddDate(0, 0, 30), total, total, now, now,
	).Error)
	return id
}

func (f *fixture) seedSubscriptionWithID(t *testing.T, id, tenantID snowflake.ID, status string, amount int64) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, f.db.Exec(
		`INSERT INTO plan_subscriptions (id, tenant_id, plan_id, status, amount, currency, created_at, updated_at)
		 VALUES (?, ?, 'pro', ?, ?, 'BRL', ?, ?)`,
		id, tenantID, status, amount, now, now,
	).Error)
}

func (f *fixture) seedDelivery(t *testing.T, topic, gatewayPaymentID string, tenantID *snowflake.ID, attempts int) paymentdomain.WebhookDelivery {
	t.Helper()
	now := time.Now().UTC()
	d := paymentdomain.WebhookDelivery{
		ID:               f.node.Generate(),
		Provider:         "mercadopago",
		Topic:            topic,
		GatewayPaymentID: gatewayPaymentID,
		TenantID:         tenantID,
		Payload:          datatypes.JSON([]byte(`{}`)),
		Status:           paymentdomain.DeliveryProcessing,
		Attempts:         attempts,
		NextAttemptAt:    now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	require.NoError(t, f.db.Exec(
		`INSERT INTO webhook_deliveries (id, provider, topic, gateway_payment_id, tenant_id, payload, status, attempts, next_attempt_at, last_error, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, '', ?, ?)`,
		d.ID, d.Provider, d.Topic, d.GatewayPaymentID, d.TenantID, string(d.Payload), d.Status, d.Attempts, d.NextAttemptAt, d.CreatedAt, d.UpdatedAt,
	).Error)
	return d
}

func (f *fixture) deliveryStatus(t *testing.T, id snowflake.ID) string {
	t.Helper()
	var status string
	require.NoError(t, f.db.Raw("SELECT status FROM webhook_deliveries WHERE id = ?", id).Scan(&status).Error)
	return status
}

func paymentJSON(id int64, status, externalReference string, amount float64) string {
	return fmt.Sprintf(
		`{"id":%d,"status":"%s","external_reference":"%s","transaction_amount":%.2f,"payment_method_id":"pix","date_approved":"2026-08-15T12:00:00.000-04:00"}`,
		id, status, externalReference, amount,
	)
}

func TestApprovedPaymentSettlesInvoice(t *testing.T) {
	ctx := context.Background()
	tenantID := snowflake.ID(7)
	ref := paymentdomain.NewInvoiceReference(tenantID, "FAT-20260815-0001")
	f := newFixture(t, paymentJSON(555001, "approved", ref.String(), 120))

	invoiceID := f.seedInvoice(t, tenantID, "FAT-20260815-0001", "PENDING", 12000)
	d := f.seedDelivery(t, paymentdomain.TopicInvoices, "555001", nil, 1)

	require.NoError(t, f.svc.ProcessDelivery(ctx, d))
	require.Equal(t, string(paymentdomain.DeliveryProcessed), f.deliveryStatus(t, d.ID))

	var inv struct {
		Status    string
		PaymentID *string `gorm:"column:payment_id"`
		PaidAt    *time.Time
	}
	require.NoError(t, f.db.Raw("SELECT status, payment_id, paid_at FROM invoices WHERE id = ?", invoiceID).Scan(&inv).Error)
	require.Equal(t, "PAID", inv.Status)
	require.NotNil(t, inv.PaymentID)
	require.Equal(t, "555001", *inv.PaymentID)
	require.NotNil(t, inv.PaidAt)

	var recorded int64
	require.NoError(t, f.db.Raw("SELECT COUNT(1) FROM invoice_payments WHERE gateway_payment_id = ?", "555001").Scan(&recorded).Error)
	require.Equal(t, int64(1), recorded)
}

func TestApprovedPaymentUsesTenantCredential(t *testing.T) {
	ctx := context.Background()
	tenantID := snowflake.ID(7)
	ref := paymentdomain.NewInvoiceReference(tenantID, "FAT-20260815-0002")
	f := newFixture(t, paymentJSON(555002, "approved", ref.String(), 120))

	require.NoError(t, f.creds.Store(ctx, tenantID, credentialdomain.StoreRequest{
		Provider:    "mercadopago",
		AccessToken: "APP_USR-tenant-token",
	}))
	f.seedInvoice(t, tenantID, "FAT-20260815-0002", "PENDING", 12000)
	d := f.seedDelivery(t, paymentdomain.TopicInvoices, "555002", &tenantID, 1)

	require.NoError(t, f.svc.ProcessDelivery(ctx, d))
	require.Equal(t, string(paymentdomain.DeliveryProcessed), f.deliveryStatus(t, d.ID))
	require.Equal(t, 1, *f.hits)
}

func TestPartialPaymentMarksInvoicePartial(t *testing.T) {
	ctx := context.Background()
	tenantID := snowflake.ID(7)
	ref := paymentdomain.NewInvoiceReference(tenantID, "FAT-20260815-0003")
	f := newFixture(t, paymentJSON(555003, "approved", ref.String(), 50))

	invoiceID := f.seedInvoice(t, tenantID, "FAT-20260815-0003", "PENDING", 12000)
	d := f.seedDelivery(t, paymentdomain.TopicInvoices, "555003", nil, 1)

	require.NoError(t, f.svc.ProcessDelivery(ctx, d))

	var status string
	require.NoError(t, f.db.Raw("SELECT status FROM invoices WHERE id = ?", invoiceID).Scan(&status).Error)
	require.Equal(t, "PARTIAL", status)
}

func TestDuplicateNotificationSkipsGateway(t *testing.T) {
	ctx := context.Background()
	tenantID := snowflake.ID(7)
	f := newFixture(t, "")

	invoiceID := f.seedInvoice(t, tenantID, "FAT-20260815-0004", "PAID", 12000)
	require.NoError(t, f.db.Exec(
		`INSERT INTO invoice_payments (id, tenant_id, invoice_id, gateway_payment_id, status, amount, created_at)
		 VALUES (?, ?, ?, '555004', 'approved', 12000, ?)`,
		f.node.Generate(), tenantID, invoiceID, time.Now().UTC(),
	).Error)
	d := f.seedDelivery(t, paymentdomain.TopicInvoices, "555004", nil, 1)

	require.NoError(t, f.svc.ProcessDelivery(ctx, d))
	require.Equal(t, string(paymentdomain.DeliveryProcessed), f.deliveryStatus(t, d.ID))
	require.Zero(t, *f.hits)
}

func TestRejectedPaymentCancelsPendingInvoice(t *testing.T) {
	ctx := context.Background()
	tenantID := snowflake.ID(7)
	ref := paymentdomain.NewInvoiceReference(tenantID, "FAT-20260815-0005")
	f := newFixture(t, paymentJSON(555005, "rejected", ref.String(), 120))

	invoiceID := f.seedInvoice(t, tenantID, "FAT-20260815-0005", "PENDING", 12000)
	d := f.seedDelivery(t, paymentdomain.TopicInvoices, "555005", nil, 1)

	require.NoError(t, f.svc.ProcessDelivery(ctx, d))
	require.Equal(t, string(paymentdomain.DeliveryProcessed), f.deliveryStatus(t, d.ID))

	var status string
	require.NoError(t, f.db.Raw("SELECT status FROM invoices WHERE id = ?", invoiceID).Scan(&status).Error)
	require.Equal(t, "CANCELLED", status)
}

func TestRejectedPaymentOnPaidInvoiceIsDiscarded(t *testing.T) {
	ctx := context.Background()
	tenantID := snowflake.ID(7)
	ref := paymentdomain.NewInvoiceReference(tenantID, "FAT-20260815-0006")
	f := newFixture(t, paymentJSON(555006, "rejected", ref.String(), 120))

	invoiceID := f.seedInvoice(t, tenantID, "FAT-20260815-0006", "PAID", 12000)
	d := f.seedDelivery(t, paymentdomain.TopicInvoices, "555006", nil, 1)

	require.NoError(t, f.svc.ProcessDelivery(ctx, d))
	require.Equal(t, string(paymentdomain.DeliveryDiscarded), f.deliveryStatus(t, d.ID))

	var status string
	require.NoError(t, f.db.Raw("SELECT status FROM invoices WHERE id = ?", invoiceID).Scan(&status).Error)
	require.Equal(t, "PAID", status)
}

func TestRefundReversesPaidInvoice(t *testing.T) {
	ctx := context.Background()
	tenantID := snowflake.ID(7)
	ref := paymentdomain.NewInvoiceReference(tenantID, "FAT-20260815-0007")
	f := newFixture(t, paymentJSON(555007, "refunded", ref.String(), 120))

	invoiceID := f.seedInvoice(t, tenantID, "FAT-20260815-0007", "PAID", 12000)
	d := f.seedDelivery(t, paymentdomain.TopicInvoices, "555007", nil, 1)

	require.NoError(t, f.svc.ProcessDelivery(ctx, d))
	require.Equal(t, string(paymentdomain.DeliveryProcessed), f.deliveryStatus(t, d.ID))

	var inv struct {
		Status string
		Notes  string
	}
	require.NoError(t, f.db.Raw("SELECT status, notes FROM invoices WHERE id = ?", invoiceID).Scan(&inv).Error)
	require.Equal(t, "CANCELLED", inv.Status)
	require.Contains(t, inv.Notes, "refunded")
}

func TestPendingStatusLeavesInvoiceUntouched(t *testing.T) {
	ctx := context.Background()
	tenantID := snowflake.ID(7)
	ref := paymentdomain.NewInvoiceReference(tenantID, "FAT-20260815-0008")
	f := newFixture(t, paymentJSON(555008, "in_process", ref.String(), 120))

	invoiceID := f.seedInvoice(t, tenantID, "FAT-20260815-0008", "PENDING", 12000)
	d := f.seedDelivery(t, paymentdomain.TopicInvoices, "555008", nil, 1)

	require.NoError(t, f.svc.ProcessDelivery(ctx, d))
	require.Equal(t, string(paymentdomain.DeliveryProcessed), f.deliveryStatus(t, d.ID))

	var status string
	require.NoError(t, f.db.Raw("SELECT status FROM invoices WHERE id = ?", invoiceID).Scan(&status).Error)
	require.Equal(t, "PENDING", status)

	var recorded int64
	require.NoError(t, f.db.Raw("SELECT COUNT(1) FROM invoice_payments").Scan(&recorded).Error)
	require.Zero(t, recorded)
}

func TestUnresolvedReferenceIsDiscarded(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, paymentJSON(555009, "approved", "order-xyz", 120))

	d := f.seedDelivery(t, paymentdomain.TopicInvoices, "555009", nil, 1)

	require.NoError(t, f.svc.ProcessDelivery(ctx, d))
	require.Equal(t, string(paymentdomain.DeliveryDiscarded), f.deliveryStatus(t, d.ID))
}

func TestGatewayOutageReschedulesDelivery(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "")

	d := f.seedDelivery(t, paymentdomain.TopicInvoices, "555010", nil, 1)

	require.NoError(t, f.svc.ProcessDelivery(ctx, d))

	var row struct {
		Status        string
		NextAttemptAt time.Time
	}
	require.NoError(t, f.db.Raw("SELECT status, next_attempt_at FROM webhook_deliveries WHERE id = ?", d.ID).Scan(&row).Error)
	require.Equal(t, string(paymentdomain.DeliveryPending), row.Status)
	require.True(t, row.NextAttemptAt.After(time.Now().UTC()))
}

func TestGatewayOutageExhaustsRetries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "")

	d := f.seedDelivery(t, paymentdomain.TopicInvoices, "555011", nil, 3)

	require.NoError(t, f.svc.ProcessDelivery(ctx, d))
	require.Equal(t, string(paymentdomain.DeliveryFailed), f.deliveryStatus(t, d.ID))
}

func TestApprovedPlanPaymentActivatesSubscription(t *testing.T) {
	ctx := context.Background()
	tenantID := snowflake.ID(7)
	subID := snowflake.ID(42)
	ref := paymentdomain.NewPlanReference(tenantID, subID)
	f := newFixture(t, paymentJSON(555012, "approved", ref.String(), 49))

	f.seedSubscriptionWithID(t, subID, tenantID, "PENDING", 4900)
	d := f.seedDelivery(t, paymentdomain.TopicPlans, "555012", nil, 1)

	require.NoError(t, f.svc.ProcessDelivery(ctx, d))
	require.Equal(t, string(paymentdomain.DeliveryProcessed), f.deliveryStatus(t, d.ID))

	var sub struct {
		Status          string
		StartedAt       *time.Time
		LastPaymentDate *time.Time
		NextPaymentDate *time.Time
	}
	require.NoError(t, f.db.Raw(
		"SELECT status, started_at, last_payment_date, next_payment_date FROM plan_subscriptions WHERE id = ?", subID,
	).Scan(&sub).Error)
	require.Equal(t, "ACTIVE", sub.Status)
	require.NotNil(t, sub.StartedAt)
	require.NotNil(t, sub.LastPaymentDate)
	require.NotNil(t, sub.NextPaymentDate)
	require.True(t, sub.NextPaymentDate.Equal(sub.LastPaymentDate.AddDate(0, 1, 0)))

	var recorded int64
	require.NoError(t, f.db.Raw("SELECT COUNT(1) FROM plan_payments WHERE gateway_payment_id = ?", "555012").Scan(&recorded).Error)
	require.Equal(t, int64(1), recorded)
}

func TestRejectedPlanPaymentCancelsPendingSubscription(t *testing.T) {
	ctx := context.Background()
	tenantID := snowflake.ID(7)
	subID := snowflake.ID(43)
	ref := paymentdomain.NewPlanReference(tenantID, subID)
	f := newFixture(t, paymentJSON(555013, "rejected", ref.String(), 49))

	f.seedSubscriptionWithID(t, subID, tenantID, "PENDING", 4900)
	d := f.seedDelivery(t, paymentdomain.TopicPlans, "555013", nil, 1)

	require.NoError(t, f.svc.ProcessDelivery(ctx, d))
	require.Equal(t, string(paymentdomain.DeliveryProcessed), f.deliveryStatus(t, d.ID))

	var sub struct {
		Status string
		EndsAt *time.Time
	}
	require.NoError(t, f.db.Raw("SELECT status, ends_at FROM plan_subscriptions WHERE id = ?", subID).Scan(&sub).Error)
	require.Equal(t, "CANCELLED", sub.Status)
	require.NotNil(t, sub.EndsAt)
}

func (f *fixture) seedInvoicePayment(t *testing.T, tenantID, invoiceID snowflake.ID, gatewayPaymentID string, amount int64) {
	t.Helper()
	require.NoError(t, f.db.Exec(
		`INSERT INTO invoice_payments (id, tenant_id, invoice_id, gateway_payment_id, status, method, amount, raw_payload, created_at)
		 VALUES (?, ?, ?, ?, 'approved', 'pix', ?, '{}', ?)`,
		f.node.Generate(), tenantID, invoiceID, gatewayPaymentID, amount, time.Now().UTC(),
	).Error)
}

func TestPartialPaymentKeepsLedgerWhenStatusUnchanged(t *testing.T) {
	ctx := context.Background()
	tenantID := snowflake.ID(7)
	ref := paymentdomain.NewInvoiceReference(tenantID, "FAT-20260815-0021")
	f := newFixture(t, paymentJSON(777002, "approved", ref.String(), 30))

	invoiceID := f.seedInvoice(t, tenantID, "FAT-20260815-0021", "PARTIAL", 12000)
	f.seedInvoicePayment(t, tenantID, invoiceID, "777001", 3000)
	d := f.seedDelivery(t, paymentdomain.TopicInvoices, "777002", nil, 1)

	require.NoError(t, f.svc.ProcessDelivery(ctx, d))
	require.Equal(t, "processed", f.deliveryStatus(t, d.ID))

	var recorded int64
	require.NoError(t, f.db.Raw(
		"SELECT COUNT(1) FROM invoice_payments WHERE gateway_payment_id = '777002'",
	).Scan(&recorded).Error)
	require.Equal(t, int64(1), recorded)

	var status string
	require.NoError(t, f.db.Raw("SELECT status FROM invoices WHERE id = ?", invoiceID).Scan(&status).Error)
	require.Equal(t, "PARTIAL", status)
}

func TestPartialPaymentsAccumulateToSettlement(t *testing.T) {
	ctx := context.Background()
	tenantID := snowflake.ID(7)
	ref := paymentdomain.NewInvoiceReference(tenantID, "FAT-20260815-0022")
	f := newFixture(t, paymentJSON(777012, "approved", ref.String(), 60))

	invoiceID := f.seedInvoice(t, tenantID, "FAT-20260815-0022", "PARTIAL", 12000)
	f.seedInvoicePayment(t, tenantID, invoiceID, "777010", 3000)
	f.seedInvoicePayment(t, tenantID, invoiceID, "777011", 3000)
	d := f.seedDelivery(t, paymentdomain.TopicInvoices, "777012", nil, 1)

	require.NoError(t, f.svc.ProcessDelivery(ctx, d))

	var status string
	require.NoError(t, f.db.Raw("SELECT status FROM invoices WHERE id = ?", invoiceID).Scan(&status).Error)
	require.Equal(t, "PAID", status)

	var recorded int64
	require.NoError(t, f.db.Raw(
		"SELECT COUNT(1) FROM invoice_payments WHERE invoice_id = ?", invoiceID,
	).Scan(&recorded).Error)
	require.Equal(t, int64(3), recorded)
}
