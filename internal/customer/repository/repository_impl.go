package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/orcafacil/billing/internal/customer/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*domain.Customer, error) {
	var item domain.Customer
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, name, email, document, phone, address, city, state, postal_code,
			created_at, updated_at
		 FROM customers
		 WHERE tenant_id = ? AND id = ?
		 LIMIT 1`,
		tenantID,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, domain.ErrCustomerNotFound
	}
	return &item, nil
}
