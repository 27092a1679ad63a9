package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusActive    Status = "ACTIVE"
	StatusCancelled Status = "CANCELLED"
	StatusExpired   Status = "EXPIRED"
)

// CanTransition reports whether the reconciler may move a subscription from
// s to target. Activation only happens once; cancellation never undoes an
// expiry and vice versa.
func (s Status) CanTransition(target Status) bool {
	switch target {
	case StatusActive:
		return s == StatusPending
	case StatusCancelled:
		return s == StatusPending || s == StatusActive
	case StatusExpired:
		return s == StatusActive
	default:
		return false
	}
}

// PlanSubscription is mutated only by the payment reconciler once created;
// user-facing code reads it.
type PlanSubscription struct {
	ID              snowflake.ID `json:"id" gorm:"primaryKey"`
	TenantID        snowflake.ID `json:"tenant_id" gorm:"not null;index"`
	PlanID          string       `json:"plan_id" gorm:"type:text;not null"`
	Status          Status       `json:"status" gorm:"type:text;not null"`
	Amount          int64        `json:"amount" gorm:"not null"`
	Currency        string       `json:"currency" gorm:"type:text;not null"`
	StartedAt       *time.Time   `json:"started_at"`
	EndsAt          *time.Time   `json:"ends_at"`
	LastPaymentDate *time.Time   `json:"last_payment_date"`
	NextPaymentDate *time.Time   `json:"next_payment_date"`
	PaymentID       *string      `json:"payment_id" gorm:"type:text"`
	CreatedAt       time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt       time.Time    `json:"updated_at" gorm:"not null"`
}

func (PlanSubscription) TableName() string { return "plan_subscriptions" }

type Service interface {
	Request(ctx context.Context, tenantID snowflake.ID, planID string, amount int64, currency string) (*PlanSubscription, error)
	Get(ctx context.Context, tenantID, id snowflake.ID) (*PlanSubscription, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, sub *PlanSubscription) error
	FindByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*PlanSubscription, error)
	// LockByID loads the subscription row FOR UPDATE. Must run inside a transaction.
	LockByID(ctx context.Context, tx *gorm.DB, tenantID, id snowflake.ID) (*PlanSubscription, error)
	// UpdateSettlement writes the reconciler's decision: status, payment
	// marker and the payment-date window.
	UpdateSettlement(ctx context.Context, db *gorm.DB, sub *PlanSubscription) error
}

var (
	ErrSubscriptionNotFound   = errors.New("subscription_not_found")
	ErrSubscriptionNotPending = errors.New("subscription_not_pending")
	ErrInvalidPlan            = errors.New("invalid_plan")
	ErrInvalidAmount          = errors.New("invalid_amount")
)
