package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/orcafacil/billing/internal/serviceorder/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const orderColumns = `id, tenant_id, budget_id, customer_id, code, status, total, discount,
	due_date, created_at, updated_at, deleted_at`

func (r *repo) FindByCode(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, code string) (*domain.ServiceOrder, error) {
	var item domain.ServiceOrder
	err := db.WithContext(ctx).Raw(
		`SELECT `+orderColumns+`
		 FROM service_orders
		 WHERE tenant_id = ? AND code = ? AND deleted_at IS NULL
		 LIMIT 1`,
		tenantID,
		code,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, domain.ErrOrderNotFound
	}
	return &item, nil
}

func (r *repo) LockByCode(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, code string) (*domain.ServiceOrder, error) {
	query := `SELECT ` + orderColumns + `
		 FROM service_orders
		 WHERE tenant_id = ? AND code = ? AND deleted_at IS NULL`
	// sqlite serializes writers on its own and rejects the locking clause.
	if tx.Dialector.Name() != "sqlite" {
		query += " FOR UPDATE"
	}

	var item domain.ServiceOrder
	err := tx.WithContext(ctx).Raw(query, tenantID, code).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, domain.ErrOrderNotFound
	}
	return &item, nil
}

func (r *repo) FindItems(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]domain.ServiceOrderItem, error) {
	var items []domain.ServiceOrderItem
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, service_order_id, description, quantity, unit_amount, amount,
			invoiced_at, created_at, updated_at
		 FROM service_order_items
		 WHERE service_order_id = ?
		 ORDER BY id`,
		orderID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) FindUnbilledItems(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]domain.ServiceOrderItem, error) {
	var items []domain.ServiceOrderItem
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, service_order_id, description, quantity, unit_amount, amount,
			invoiced_at, created_at, updated_at
		 FROM service_order_items
		 WHERE service_order_id = ? AND invoiced_at IS NULL
		 ORDER BY id`,
		orderID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) MarkItemsInvoiced(ctx context.Context, db *gorm.DB, itemIDs []snowflake.ID, at time.Time) error {
	if len(itemIDs) == 0 {
		return nil
	}
	return db.WithContext(ctx).Exec(
		`UPDATE service_order_items
		 SET invoiced_at = ?, updated_at = ?
		 WHERE id IN ? AND invoiced_at IS NULL`,
		at,
		at,
		itemIDs,
	).Error
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.Status) error {
	return db.WithContext(ctx).Exec(
		`UPDATE service_orders SET status = ?, updated_at = ? WHERE id = ?`,
		status,
		time.Now().UTC(),
		id,
	).Error
}
