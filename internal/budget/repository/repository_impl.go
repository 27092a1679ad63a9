package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/orcafacil/billing/internal/budget/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*domain.Budget, error) {
	var item domain.Budget
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, customer_id, code, total, discount, status, created_at, updated_at
		 FROM budgets
		 WHERE tenant_id = ? AND id = ?
		 LIMIT 1`,
		tenantID,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, domain.ErrBudgetNotFound
	}
	return &item, nil
}
