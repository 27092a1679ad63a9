package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// InvoicePayment is an append-only record of a gateway payment applied to an
// invoice. The unique gateway_payment_id column is the idempotency guarantee
// for the whole reconciliation pipeline.
type InvoicePayment struct {
	ID               snowflake.ID   `json:"id" gorm:"primaryKey"`
	TenantID         snowflake.ID   `json:"tenant_id" gorm:"not null;index"`
	InvoiceID        snowflake.ID   `json:"invoice_id" gorm:"not null;index"`
	GatewayPaymentID string         `json:"gateway_payment_id" gorm:"type:text;not null;uniqueIndex"`
	Status           string         `json:"status" gorm:"type:text;not null"`
	Method           string         `json:"method" gorm:"type:text"`
	Amount           int64          `json:"amount" gorm:"not null"`
	TransactionDate  *time.Time     `json:"transaction_date"`
	RawPayload       datatypes.JSON `json:"raw_payload" gorm:"type:jsonb"`
	CreatedAt        time.Time      `json:"created_at" gorm:"not null"`
}

func (InvoicePayment) TableName() string { return "invoice_payments" }

// PlanPayment mirrors InvoicePayment for plan subscriptions.
type PlanPayment struct {
	ID                 snowflake.ID   `json:"id" gorm:"primaryKey"`
	TenantID           snowflake.ID   `json:"tenant_id" gorm:"not null;index"`
	PlanSubscriptionID snowflake.ID   `json:"plan_subscription_id" gorm:"not null;index"`
	GatewayPaymentID   string         `json:"gateway_payment_id" gorm:"type:text;not null;uniqueIndex"`
	Status             string         `json:"status" gorm:"type:text;not null"`
	Method             string         `json:"method" gorm:"type:text"`
	Amount             int64          `json:"amount" gorm:"not null"`
	TransactionDate    *time.Time     `json:"transaction_date"`
	RawPayload         datatypes.JSON `json:"raw_payload" gorm:"type:jsonb"`
	CreatedAt          time.Time      `json:"created_at" gorm:"not null"`
}

func (PlanPayment) TableName() string { return "plan_payments" }

type DeliveryStatus string

const (
	DeliveryPending    DeliveryStatus = "pending"
	DeliveryProcessing DeliveryStatus = "processing"
	DeliveryProcessed  DeliveryStatus = "processed"
	DeliveryDiscarded  DeliveryStatus = "discarded"
	DeliveryFailed     DeliveryStatus = "failed"
)

// WebhookDelivery is a durable inbound notification. The HTTP handler only
// enqueues; the reconciler worker drains the queue with retries.
type WebhookDelivery struct {
	ID               snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider         string         `json:"provider" gorm:"type:text;not null"`
	Topic            string         `json:"topic" gorm:"type:text;not null"`
	GatewayPaymentID string         `json:"gateway_payment_id" gorm:"type:text;not null"`
	TenantID         *snowflake.ID  `json:"tenant_id"`
	Payload          datatypes.JSON `json:"payload" gorm:"type:jsonb"`
	Status           DeliveryStatus `json:"status" gorm:"type:text;not null"`
	Attempts         int            `json:"attempts" gorm:"not null"`
	NextAttemptAt    time.Time      `json:"next_attempt_at" gorm:"not null"`
	LastError        string         `json:"last_error" gorm:"type:text"`
	CreatedAt        time.Time      `json:"created_at" gorm:"not null"`
	UpdatedAt        time.Time      `json:"updated_at" gorm:"not null"`
}

func (WebhookDelivery) TableName() string { return "webhook_deliveries" }

const (
	TopicInvoices = "invoices"
	TopicPlans    = "plans"
)

var (
	ErrGatewayUnavailable     = errors.New("gateway_unavailable")
	ErrGatewayRejected        = errors.New("gateway_rejected")
	ErrDuplicatePayment       = errors.New("duplicate_payment")
	ErrUnresolvedReference    = errors.New("unresolved_reference")
	ErrNonMonotonicTransition = errors.New("non_monotonic_transition")
	ErrInvalidSignature       = errors.New("invalid_signature")
	ErrMalformedPayload       = errors.New("malformed_payload")
	ErrUnknownTopic           = errors.New("unknown_topic")
)
