package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal statuses sink: no transition leaves them.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func (s Status) Rank() int {
	switch s {
	case StatusPending:
		return 1
	case StatusInProgress:
		return 2
	case StatusCompleted:
		return 3
	default:
		return 0
	}
}

type ServiceOrder struct {
	ID         snowflake.ID `json:"id" gorm:"primaryKey"`
	TenantID   snowflake.ID `json:"tenant_id" gorm:"not null;index"`
	BudgetID   snowflake.ID `json:"budget_id" gorm:"not null"`
	CustomerID snowflake.ID `json:"customer_id" gorm:"not null"`
	Code       string       `json:"code" gorm:"type:text;not null"`
	Status     Status       `json:"status" gorm:"type:text;not null"`
	Total      int64        `json:"total" gorm:"not null"`
	Discount   int64        `json:"discount" gorm:"not null"`
	DueDate    *time.Time   `json:"due_date"`
	CreatedAt  time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt  time.Time    `json:"updated_at" gorm:"not null"`
	DeletedAt  *time.Time   `json:"deleted_at" gorm:"index"`

	Items []ServiceOrderItem `json:"items" gorm:"-"`
}

func (ServiceOrder) TableName() string { return "service_orders" }

// ServiceOrderItem is a billable line. InvoicedAt is stamped the moment the
// line lands on an invoice; a stamped line is never billed again.
type ServiceOrderItem struct {
	ID             snowflake.ID `json:"id" gorm:"primaryKey"`
	TenantID       snowflake.ID `json:"tenant_id" gorm:"not null"`
	ServiceOrderID snowflake.ID `json:"service_order_id" gorm:"not null;index"`
	Description    string       `json:"description" gorm:"type:text;not null"`
	Quantity       int64        `json:"quantity" gorm:"not null"`
	UnitAmount     int64        `json:"unit_amount" gorm:"not null"`
	Amount         int64        `json:"amount" gorm:"not null"`
	InvoicedAt     *time.Time   `json:"invoiced_at"`
	CreatedAt      time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt      time.Time    `json:"updated_at" gorm:"not null"`
}

func (ServiceOrderItem) TableName() string { return "service_order_items" }

var (
	ErrOrderNotFound     = errors.New("service_order_not_found")
	ErrInvalidTransition = errors.New("invalid_transition")
	ErrInvalidStatus     = errors.New("invalid_status")
	ErrNoDeliveredItems  = errors.New("no_delivered_items")
)
