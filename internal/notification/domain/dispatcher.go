package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// PaymentNotification announces a settled or updated payment to the
// customer. Dispatch is always best effort: a failed notification never
// changes payment state.
type PaymentNotification struct {
	TenantID      snowflake.ID
	Kind          string // "invoice" or "plan"
	Code          string
	Status        string
	Amount        int64
	CustomerName  string
	CustomerEmail string
}

// OrderNotification announces a lifecycle event on a service order.
type OrderNotification struct {
	TenantID      snowflake.ID
	OrderCode     string
	InvoiceCode   string
	CustomerName  string
	CustomerEmail string
}

type Dispatcher interface {
	PaymentConfirmed(ctx context.Context, n PaymentNotification) error
	OrderCompleted(ctx context.Context, n OrderNotification) error
}
