package server_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	invoicedomain "github.com/orcafacil/billing/internal/invoice/domain"
	paymentdomain "github.com/orcafacil/billing/internal/payment/domain"
	"github.com/orcafacil/billing/internal/server"
	orderdomain "github.com/orcafacil/billing/internal/serviceorder/domain"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type webhookStub struct {
	outcome paymentdomain.IngestOutcome
	err     error
}

func (s webhookStub) Ingest(ctx context.Context, provider, kind string, payload []byte, headers http.Header, query url.Values) (paymentdomain.IngestOutcome, error) {
	return s.outcome, s.err
}

type invoiceStub struct {
	invoicedomain.Service
	getErr error
}

func (s invoiceStub) Get(ctx context.Context, tenantID snowflake.ID, code string) (*invoicedomain.Invoice, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return &invoicedomain.Invoice{TenantID: tenantID, Code: code, Status: invoicedomain.StatusPending}, nil
}

func (s invoiceStub) Cancel(ctx context.Context, tenantID snowflake.ID, code, note string) (*invoicedomain.Invoice, error) {
	pref := "pref-123"
	return &invoicedomain.Invoice{
		TenantID:     tenantID,
		Code:         code,
		Status:       invoicedomain.StatusCancelled,
		PreferenceID: &pref,
	}, nil
}

type preferenceStub struct {
	paymentdomain.PreferenceService
	invalidated []string
}

func (s *preferenceStub) Invalidate(ctx context.Context, tenantID snowflake.ID, preferenceID string) error {
	s.invalidated = append(s.invalidated, preferenceID)
	return nil
}

type orderStub struct {
	orderdomain.Service
	transitionErr error
}

func (s orderStub) Transition(ctx context.Context, tenantID snowflake.ID, code string, target orderdomain.Status, opts orderdomain.TransitionOptions) (*orderdomain.Result, error) {
	if s.transitionErr != nil {
		return nil, s.transitionErr
	}
	return &orderdomain.Result{Order: &orderdomain.ServiceOrder{TenantID: tenantID, Code: code, Status: target}}, nil
}

func newTestServer(t *testing.T, params server.ServerParams) *server.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(server.ErrorHandlingMiddleware())
	params.Gin = engine
	params.Log = zap.NewNop()
	return server.NewServer(params)
}

func TestWebhookStatusContract(t *testing.T) {
	cases := []struct {
		name    string
		outcome paymentdomain.IngestOutcome
		err     error
		status  int
		body    string
	}{
		{"accepted", paymentdomain.IngestAccepted, nil, http.StatusOK, "accepted"},
		{"duplicate", paymentdomain.IngestDuplicate, nil, http.StatusOK, "duplicate"},
		{"discarded", paymentdomain.IngestDiscarded, nil, http.StatusOK, "discarded"},
		{"bad signature", paymentdomain.IngestDiscarded, paymentdomain.ErrInvalidSignature, http.StatusUnauthorized, "unauthorized"},
		{"malformed", paymentdomain.IngestDiscarded, paymentdomain.ErrMalformedPayload, http.StatusUnprocessableEntity, "malformed_payload"},
		{"unknown topic", paymentdomain.IngestDiscarded, paymentdomain.ErrUnknownTopic, http.StatusNotFound, "not_found"},
		{"gateway down", paymentdomain.IngestDiscarded, paymentdomain.ErrGatewayUnavailable, http.StatusServiceUnavailable, "service_unavailable"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := newTestServer(t, server.ServerParams{
				WebhookSvc: webhookStub{outcome: tc.outcome, err: tc.err},
			})

			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/webhooks/mercadopago/invoices?data.id=1", strings.NewReader(`{}`))
			srv.Engine().ServeHTTP(rec, req)

			require.Equal(t, tc.status, rec.Code)
			require.Contains(t, rec.Body.String(), tc.body)
		})
	}
}

func TestTenantHeaderRequired(t *testing.T) {
	srv := newTestServer(t, server.ServerParams{
		InvoiceSvc: invoiceStub{},
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/invoices/FAT-20260815-0001", nil)
	srv.Engine().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/v1/invoices/FAT-20260815-0001", nil)
	req.Header.Set("X-Tenant-ID", "not-a-snowflake")
	srv.Engine().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/v1/invoices/FAT-20260815-0001", nil)
	req.Header.Set("X-Tenant-ID", "7")
	srv.Engine().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "FAT-20260815-0001")
}

func TestInvoiceNotFoundMapsTo404(t *testing.T) {
	srv := newTestServer(t, server.ServerParams{
		InvoiceSvc: invoiceStub{getErr: invoicedomain.ErrInvoiceNotFound},
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/invoices/FAT-999", nil)
	req.Header.Set("X-Tenant-ID", "7")
	srv.Engine().ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInvalidTransitionMapsToConflict(t *testing.T) {
	srv := newTestServer(t, server.ServerParams{
		OrderSvc: orderStub{transitionErr: orderdomain.ErrInvalidTransition},
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/service-orders/OS-0001/transition", strings.NewReader(`{"status":"COMPLETED"}`))
	req.Header.Set("X-Tenant-ID", "7")
	req.Header.Set("Content-Type", "application/json")
	srv.Engine().ServeHTTP(rec, req)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestTransitionReturnsOrder(t *testing.T) {
	srv := newTestServer(t, server.ServerParams{
		OrderSvc: orderStub{},
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/service-orders/OS-0001/transition", strings.NewReader(`{"status":"IN_PROGRESS"}`))
	req.Header.Set("X-Tenant-ID", "7")
	req.Header.Set("Content-Type", "application/json")
	srv.Engine().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "IN_PROGRESS")
}

func TestCancelInvoiceExpiresCheckout(t *testing.T) {
	prefs := &preferenceStub{}
	srv := newTestServer(t, server.ServerParams{
		InvoiceSvc:    invoiceStub{},
		PreferenceSvc: prefs,
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/invoices/FAT-20260815-0001/cancel", nil)
	req.Header.Set("X-Tenant-ID", "7")
	srv.Engine().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{"pref-123"}, prefs.invalidated)
}
