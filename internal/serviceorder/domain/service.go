package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/orcafacil/billing/internal/invoice/domain"
	"gorm.io/gorm"
)

// Result reports the outcome of a transition. Invoice is set when the
// transition produced one.
type Result struct {
	Order   *ServiceOrder
	Invoice *invoicedomain.Invoice
	// InvoiceDeferred is set when automatic invoicing failed and was left
	// for manual retry instead of rolling back the transition.
	InvoiceDeferred bool
}

type Service interface {
	Transition(ctx context.Context, tenantID snowflake.ID, code string, target Status, opts TransitionOptions) (*Result, error)
	Get(ctx context.Context, tenantID snowflake.ID, code string) (*ServiceOrder, error)
	// CreateInvoice bills the remaining unbilled lines of a completed
	// order. Manual companion to the automatic path for deferred failures.
	CreateInvoice(ctx context.Context, tenantID snowflake.ID, code string) (*invoicedomain.Invoice, error)
}

type Repository interface {
	FindByCode(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, code string) (*ServiceOrder, error)
	// LockByCode loads the order row FOR UPDATE. Must run inside a transaction.
	LockByCode(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, code string) (*ServiceOrder, error)
	FindItems(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]ServiceOrderItem, error)
	// FindUnbilledItems returns lines with no invoiced_at stamp.
	FindUnbilledItems(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]ServiceOrderItem, error)
	MarkItemsInvoiced(ctx context.Context, db *gorm.DB, itemIDs []snowflake.ID, at time.Time) error
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status Status) error
}
