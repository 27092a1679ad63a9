package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/orcafacil/billing/internal/subscription/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const subscriptionColumns = `id, tenant_id, plan_id, status, amount, currency, started_at, ends_at,
	last_payment_date, next_payment_date, payment_id, created_at, updated_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, sub *domain.PlanSubscription) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO plan_subscriptions (
			id, tenant_id, plan_id, status, amount, currency, started_at, ends_at,
			last_payment_date, next_payment_date, payment_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID,
		sub.TenantID,
		sub.PlanID,
		sub.Status,
		sub.Amount,
		sub.Currency,
		sub.StartedAt,
		sub.EndsAt,
		sub.LastPaymentDate,
		sub.NextPaymentDate,
		sub.PaymentID,
		sub.CreatedAt,
		sub.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*domain.PlanSubscription, error) {
	var item domain.PlanSubscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+subscriptionColumns+`
		 FROM plan_subscriptions
		 WHERE tenant_id = ? AND id = ?
		 LIMIT 1`,
		tenantID,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, domain.ErrSubscriptionNotFound
	}
	return &item, nil
}

func (r *repo) LockByID(ctx context.Context, tx *gorm.DB, tenantID, id snowflake.ID) (*domain.PlanSubscription, error) {
	query := `SELECT ` + subscriptionColumns + `
		 FROM plan_subscriptions
		 WHERE tenant_id = ? AND id = ?`
	// sqlite serializes writers on its own and rejects the locking clause.
	if tx.Dialector.Name() != "sqlite" {
		query += " FOR UPDATE"
	}

	var item domain.PlanSubscription
	err := tx.WithContext(ctx).Raw(query, tenantID, id).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, domain.ErrSubscriptionNotFound
	}
	return &item, nil
}

func (r *repo) UpdateSettlement(ctx context.Context, db *gorm.DB, sub *domain.PlanSubscription) error {
	return db.WithContext(ctx).Exec(
		`UPDATE plan_subscriptions
		 SET status = ?, started_at = ?, ends_at = ?, last_payment_date = ?,
			next_payment_date = ?, payment_id = ?, updated_at = ?
		 WHERE id = ?`,
		sub.Status,
		sub.StartedAt,
		sub.EndsAt,
		sub.LastPaymentDate,
		sub.NextPaymentDate,
		sub.PaymentID,
		time.Now().UTC(),
		sub.ID,
	).Error
}
