package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Customer struct {
	ID         snowflake.ID `json:"id" gorm:"primaryKey"`
	TenantID   snowflake.ID `json:"tenant_id" gorm:"not null;index"`
	Name       string       `json:"name" gorm:"type:text;not null"`
	Email      string       `json:"email" gorm:"type:text"`
	Document   string       `json:"document" gorm:"type:text"`
	Phone      string       `json:"phone" gorm:"type:text"`
	Address    string       `json:"address" gorm:"type:text"`
	City       string       `json:"city" gorm:"type:text"`
	State      string       `json:"state" gorm:"type:text"`
	PostalCode string       `json:"postal_code" gorm:"type:text"`
	CreatedAt  time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt  time.Time    `json:"updated_at" gorm:"not null"`
}

func (Customer) TableName() string { return "customers" }

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*Customer, error)
}

var ErrCustomerNotFound = errors.New("customer_not_found")
