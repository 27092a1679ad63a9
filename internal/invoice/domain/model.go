package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusPartial   Status = "PARTIAL"
	StatusPaid      Status = "PAID"
	StatusCancelled Status = "CANCELLED"
)

// Rank orders settlement progress. Transitions may only move forward;
// CANCELLED sits outside the ladder and is reachable from anything but PAID.
func (s Status) Rank() int {
	switch s {
	case StatusPending:
		return 1
	case StatusPartial:
		return 2
	case StatusPaid:
		return 3
	default:
		return 0
	}
}

func (s Status) Terminal() bool {
	return s == StatusPaid || s == StatusCancelled
}

// CanTransition reports whether moving from s to target preserves the
// monotonic settlement order.
func (s Status) CanTransition(target Status) bool {
	if s == target {
		return false
	}
	if target == StatusCancelled {
		return s != StatusPaid && s != StatusCancelled
	}
	if s == StatusCancelled {
		return false
	}
	return target.Rank() > s.Rank()
}

type Invoice struct {
	ID             snowflake.ID `json:"id" gorm:"primaryKey"`
	TenantID       snowflake.ID `json:"tenant_id" gorm:"not null;index"`
	ServiceOrderID snowflake.ID `json:"service_order_id" gorm:"not null;index"`
	Code           string       `json:"code" gorm:"type:text;not null"`
	Status         Status       `json:"status" gorm:"type:text;not null"`
	IssueDate      time.Time    `json:"issue_date" gorm:"not null"`
	DueDate        time.Time    `json:"due_date" gorm:"not null"`
	Subtotal       int64        `json:"subtotal" gorm:"not null"`
	Discount       int64        `json:"discount" gorm:"not null"`
	Total          int64        `json:"total" gorm:"not null"`
	Notes          string       `json:"notes" gorm:"type:text"`
	IsAutomatic    bool         `json:"is_automatic" gorm:"not null"`
	PaymentID      *string      `json:"payment_id" gorm:"type:text"`
	PaymentMethod  *string      `json:"payment_method" gorm:"type:text"`
	PreferenceID   *string      `json:"preference_id,omitempty" gorm:"type:text"`
	PaidAt         *time.Time   `json:"paid_at"`
	CreatedAt      time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt      time.Time    `json:"updated_at" gorm:"not null"`

	Items []InvoiceItem `json:"items" gorm:"-"`
}

func (Invoice) TableName() string { return "invoices" }

// InvoiceItem is immutable once persisted. ServiceOrderItemID links back to
// the billed line so partial invoicing can stamp it.
type InvoiceItem struct {
	ID                 snowflake.ID  `json:"id" gorm:"primaryKey"`
	TenantID           snowflake.ID  `json:"tenant_id" gorm:"not null"`
	InvoiceID          snowflake.ID  `json:"invoice_id" gorm:"not null;index"`
	ServiceOrderItemID *snowflake.ID `json:"service_order_item_id"`
	Description        string        `json:"description" gorm:"type:text;not null"`
	Quantity           int64         `json:"quantity" gorm:"not null"`
	UnitAmount         int64         `json:"unit_amount" gorm:"not null"`
	Amount             int64         `json:"amount" gorm:"not null"`
	CreatedAt          time.Time     `json:"created_at" gorm:"not null"`
}

func (InvoiceItem) TableName() string { return "invoice_items" }

var (
	ErrInvoiceNotFound      = errors.New("invoice_not_found")
	ErrInvalidDiscount      = errors.New("invalid_discount")
	ErrMissingBudgetContext = errors.New("missing_budget_context")
	ErrNoBillableItems      = errors.New("no_billable_items")
	ErrInvoicePaid          = errors.New("invoice_already_paid")
	ErrInvoiceCancelled     = errors.New("invoice_cancelled")
)
