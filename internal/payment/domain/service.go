package domain

import (
	"context"
	"net/http"
	"net/url"

	"github.com/bwmarrin/snowflake"
)

// CheckoutLink is the user-facing handle to a gateway checkout.
type CheckoutLink struct {
	PreferenceID      string `json:"preference_id"`
	InitPoint         string `json:"init_point"`
	ExternalReference string `json:"external_reference"`
}

type PreferenceService interface {
	CreateForInvoice(ctx context.Context, tenantID snowflake.ID, invoiceCode string) (*CheckoutLink, error)
	CreateForPlan(ctx context.Context, tenantID, subscriptionID snowflake.ID) (*CheckoutLink, error)
	// Invalidate expires a checkout link on the gateway.
	Invalidate(ctx context.Context, tenantID snowflake.ID, preferenceID string) error
}

type IngestOutcome string

const (
	IngestAccepted  IngestOutcome = "accepted"
	IngestDuplicate IngestOutcome = "duplicate"
	IngestDiscarded IngestOutcome = "discarded"
)

// WebhookService authenticates and enqueues inbound gateway notifications.
// It never processes a payment inline; the reconciler worker does.
type WebhookService interface {
	Ingest(ctx context.Context, provider, kind string, payload []byte, headers http.Header, query url.Values) (IngestOutcome, error)
}
