package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Budget struct {
	ID         snowflake.ID `json:"id" gorm:"primaryKey"`
	TenantID   snowflake.ID `json:"tenant_id" gorm:"not null;index"`
	CustomerID snowflake.ID `json:"customer_id" gorm:"not null"`
	Code       string       `json:"code" gorm:"type:text;not null"`
	Total      int64        `json:"total" gorm:"not null"`
	Discount   int64        `json:"discount" gorm:"not null"`
	Status     string       `json:"status" gorm:"type:text;not null"`
	CreatedAt  time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt  time.Time    `json:"updated_at" gorm:"not null"`
}

func (Budget) TableName() string { return "budgets" }

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*Budget, error)
}

var ErrBudgetNotFound = errors.New("budget_not_found")
