package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Service interface {
	// Create persists a draft inside tx, allocating the next invoice code
	// for the tenant. The caller owns the transaction.
	Create(ctx context.Context, tx *gorm.DB, draft *Draft) (*Invoice, error)
	Get(ctx context.Context, tenantID snowflake.ID, code string) (*Invoice, error)
	Cancel(ctx context.Context, tenantID snowflake.ID, code string, note string) (*Invoice, error)
	// AttachPreference remembers the open checkout preference so a later
	// cancellation can expire it at the gateway.
	AttachPreference(ctx context.Context, tenantID snowflake.ID, code, preferenceID string) error
	RenderPDF(ctx context.Context, tenantID snowflake.ID, code string) ([]byte, error)
}

type Repository interface {
	NextSequence(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, prefix string) (int64, error)
	Insert(ctx context.Context, db *gorm.DB, inv *Invoice) error
	InsertItems(ctx context.Context, db *gorm.DB, items []InvoiceItem) error
	FindByCode(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, code string) (*Invoice, error)
	FindItems(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]InvoiceItem, error)
	// FindActiveByOrder returns the non-cancelled invoices covering an order.
	FindActiveByOrder(ctx context.Context, db *gorm.DB, tenantID, orderID snowflake.ID) ([]Invoice, error)
	// LockByCode loads the invoice row FOR UPDATE. Must run inside a transaction.
	LockByCode(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, code string) (*Invoice, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status Status, note string) error
	UpdatePreference(ctx context.Context, db *gorm.DB, id snowflake.ID, preferenceID string) error
	// ReleaseBilledLines clears the invoiced_at stamp on the order lines an
	// invoice covered, so a cancelled invoice can be reissued.
	ReleaseBilledLines(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) error
	// UpdateSettlement records gateway payment details alongside the status.
	UpdateSettlement(ctx context.Context, db *gorm.DB, id snowflake.ID, status Status, paymentID, method string, paidAt *time.Time) error
}
