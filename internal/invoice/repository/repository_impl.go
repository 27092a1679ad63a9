package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/orcafacil/billing/internal/invoice/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) NextSequence(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, prefix string) (int64, error) {
	var value int64
	err := db.WithContext(ctx).Raw(
		`INSERT INTO invoice_sequences (tenant_id, prefix, value)
		 VALUES (?, ?, 1)
		 ON CONFLICT (tenant_id, prefix) DO UPDATE SET value = invoice_sequences.value + 1
		 RETURNING value`,
		tenantID,
		prefix,
	).Scan(&value).Error
	if err != nil {
		return 0, err
	}
	return value, nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, inv *domain.Invoice) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO invoices (
			id, tenant_id, service_order_id, code, status, issue_date, due_date,
			subtotal, discount, total, notes, is_automatic, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID,
		inv.TenantID,
		inv.ServiceOrderID,
		inv.Code,
		inv.Status,
		inv.IssueDate,
		inv.DueDate,
		inv.Subtotal,
		inv.Discount,
		inv.Total,
		inv.Notes,
		inv.IsAutomatic,
		inv.CreatedAt,
		inv.UpdatedAt,
	).Error
}

func (r *repo) InsertItems(ctx context.Context, db *gorm.DB, items []domain.InvoiceItem) error {
	for i := range items {
		item := &items[i]
		if err := db.WithContext(ctx).Exec(
			`INSERT INTO invoice_items (
				id, tenant_id, invoice_id, service_order_item_id, description,
				quantity, unit_amount, amount, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			item.ID,
			item.TenantID,
			item.InvoiceID,
			item.ServiceOrderItemID,
			item.Description,
			item.Quantity,
			item.UnitAmount,
			item.Amount,
			item.CreatedAt,
		).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) FindByCode(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, code string) (*domain.Invoice, error) {
	var item domain.Invoice
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, service_order_id, code, status, issue_date, due_date,
			subtotal, discount, total, notes, is_automatic,
			payment_id, payment_method, preference_id, paid_at, created_at, updated_at
		 FROM invoices
		 WHERE tenant_id = ? AND code = ?
		 LIMIT 1`,
		tenantID,
		code,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, domain.ErrInvoiceNotFound
	}
	return &item, nil
}

func (r *repo) FindItems(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]domain.InvoiceItem, error) {
	var items []domain.InvoiceItem
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, invoice_id, service_order_item_id, description,
			quantity, unit_amount, amount, created_at
		 FROM invoice_items
		 WHERE invoice_id = ?
		 ORDER BY id`,
		invoiceID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) FindActiveByOrder(ctx context.Context, db *gorm.DB, tenantID, orderID snowflake.ID) ([]domain.Invoice, error) {
	var items []domain.Invoice
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, service_order_id, code, status, issue_date, due_date,
			subtotal, discount, total, notes, is_automatic,
			payment_id, payment_method, preference_id, paid_at, created_at, updated_at
		 FROM invoices
		 WHERE tenant_id = ? AND service_order_id = ? AND status <> ?
		 ORDER BY id`,
		tenantID,
		orderID,
		domain.StatusCancelled,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) LockByCode(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, code string) (*domain.Invoice, error) {
	query := `SELECT id, tenant_id, service_order_id, code, status, issue_date, due_date,
			subtotal, discount, total, notes, is_automatic,
			payment_id, payment_method, preference_id, paid_at, created_at, updated_at
		 FROM invoices
		 WHERE tenant_id = ? AND code = ?`
	// sqlite serializes writers on its own and rejects the locking clause.
	if tx.Dialector.Name() != "sqlite" {
		query += " FOR UPDATE"
	}

	var item domain.Invoice
	err := tx.WithContext(ctx).Raw(query, tenantID, code).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, domain.ErrInvoiceNotFound
	}
	return &item, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.Status, notes string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE invoices SET status = ?, notes = ?, updated_at = ? WHERE id = ?`,
		status,
		notes,
		time.Now().UTC(),
		id,
	).Error
}

func (r *repo) UpdatePreference(ctx context.Context, db *gorm.DB, id snowflake.ID, preferenceID string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE invoices SET preference_id = ?, updated_at = ? WHERE id = ?`,
		preferenceID,
		time.Now().UTC(),
		id,
	).Error
}

func (r *repo) ReleaseBilledLines(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`UPDATE service_order_items
		 SET invoiced_at = NULL, updated_at = ?
		 WHERE id IN (
			SELECT service_order_item_id FROM invoice_items
			WHERE invoice_id = ? AND service_order_item_id IS NOT NULL
		 )`,
		time.Now().UTC(),
		invoiceID,
	).Error
}

func (r *repo) UpdateSettlement(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.Status, paymentID, method string, paidAt *time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET status = ?, payment_id = ?, payment_method = ?, paid_at = ?, updated_at = ?
		 WHERE id = ?`,
		status,
		paymentID,
		method,
		paidAt,
		time.Now().UTC(),
		id,
	).Error
}
