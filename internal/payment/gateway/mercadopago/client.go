package mercadopago

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/oklog/ulid/v2"
	"github.com/orcafacil/billing/internal/config"
	paymentdomain "github.com/orcafacil/billing/internal/payment/domain"
	"go.uber.org/zap"
)

// Client is a typed MercadoPago REST client. Transient failures retry with
// backoff; exhaustion surfaces as ErrGatewayUnavailable so callers can
// reschedule, while 4xx responses surface as ErrGatewayRejected and are
// never retried.
type Client struct {
	http    *retryablehttp.Client
	baseURL string
	log     *zap.Logger
}

func NewClient(cfg config.Config, log *zap.Logger) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.GatewayMaxRetries
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.HTTPClient.Timeout = cfg.GatewayTimeout
	rc.Logger = nil

	return &Client{
		http:    rc,
		baseURL: strings.TrimRight(cfg.GatewayBaseURL, "/"),
		log:     log.Named("mercadopago.client"),
	}
}

func (c *Client) GetPayment(ctx context.Context, accessToken, paymentID string) (*Payment, error) {
	var payment Payment
	err := c.do(ctx, http.MethodGet, "/v1/payments/"+paymentID, accessToken, nil, &payment)
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (c *Client) CreatePreference(ctx context.Context, accessToken string, req PreferenceRequest) (*Preference, error) {
	var pref Preference
	if err := c.do(ctx, http.MethodPost, "/checkout/preferences", accessToken, req, &pref); err != nil {
		return nil, err
	}
	return &pref, nil
}

func (c *Client) CreatePlanPreference(ctx context.Context, accessToken string, req PreapprovalRequest) (*Preapproval, error) {
	var pre Preapproval
	if err := c.do(ctx, http.MethodPost, "/preapproval", accessToken, req, &pre); err != nil {
		return nil, err
	}
	return &pre, nil
}

// InvalidatePreference expires a checkout preference so stale links stop
// accepting payments.
func (c *Client) InvalidatePreference(ctx context.Context, accessToken, preferenceID string) error {
	body := map[string]any{
		"expires":            true,
		"expiration_date_to": time.Now().UTC().Format(time.RFC3339),
	}
	return c.do(ctx, http.MethodPut, "/checkout/preferences/"+preferenceID, accessToken, body, nil)
}

func (c *Client) do(ctx context.Context, method, path, accessToken string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")
	if method != http.MethodGet {
		req.Header.Set("X-Idempotency-Key", ulid.Make().String())
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("gateway request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %v", paymentdomain.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: %v", paymentdomain.ErrGatewayUnavailable, err)
	}

	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", paymentdomain.ErrGatewayUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		c.log.Warn("gateway rejected request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
		)
		return fmt.Errorf("%w: status %d", paymentdomain.ErrGatewayRejected, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode gateway response: %w", err)
	}
	return nil
}
