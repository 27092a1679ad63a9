package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// InsertInvoicePayment appends a payment record. Returns false without
	// error when the gateway payment id was already recorded.
	InsertInvoicePayment(ctx context.Context, db *gorm.DB, p *InvoicePayment) (bool, error)
	InsertPlanPayment(ctx context.Context, db *gorm.DB, p *PlanPayment) (bool, error)
	// PaymentExists is the cheap dedup pre-check before the authoritative
	// gateway lookup.
	PaymentExists(ctx context.Context, db *gorm.DB, gatewayPaymentID string) (bool, error)

	EnqueueDelivery(ctx context.Context, db *gorm.DB, d *WebhookDelivery) error
	// ClaimDueDeliveries flips a batch of due pending deliveries to
	// processing and returns them. Runs inside its own transaction.
	ClaimDueDeliveries(ctx context.Context, db *gorm.DB, limit int, now time.Time) ([]WebhookDelivery, error)
	MarkDeliveryProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	MarkDeliveryDiscarded(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string) error
	MarkDeliveryFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string) error
	// RescheduleDelivery returns a delivery to pending with a backoff.
	RescheduleDelivery(ctx context.Context, db *gorm.DB, id snowflake.ID, nextAttempt time.Time, reason string) error
}
