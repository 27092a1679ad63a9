package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/orcafacil/billing/internal/payment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertInvoicePayment(ctx context.Context, db *gorm.DB, p *domain.InvoicePayment) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO invoice_payments (
			id, tenant_id, invoice_id, gateway_payment_id, status, method, amount,
			transaction_date, raw_payload, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (gateway_payment_id) DO NOTHING`,
		p.ID,
		p.TenantID,
		p.InvoiceID,
		p.GatewayPaymentID,
		p.Status,
		p.Method,
		p.Amount,
		p.TransactionDate,
		p.RawPayload,
		p.CreatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) InsertPlanPayment(ctx context.Context, db *gorm.DB, p *domain.PlanPayment) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO plan_payments (
			id, tenant_id, plan_subscription_id, gateway_payment_id, status, method, amount,
			transaction_date, raw_payload, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (gateway_payment_id) DO NOTHING`,
		p.ID,
		p.TenantID,
		p.PlanSubscriptionID,
		p.GatewayPaymentID,
		p.Status,
		p.Method,
		p.Amount,
		p.TransactionDate,
		p.RawPayload,
		p.CreatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) PaymentExists(ctx context.Context, db *gorm.DB, gatewayPaymentID string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM (
			SELECT 1 FROM invoice_payments WHERE gateway_payment_id = ?
			UNION ALL
			SELECT 1 FROM plan_payments WHERE gateway_payment_id = ?
		) matched`,
		gatewayPaymentID,
		gatewayPaymentID,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) EnqueueDelivery(ctx context.Context, db *gorm.DB, d *domain.WebhookDelivery) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO webhook_deliveries (
			id, provider, topic, gateway_payment_id, tenant_id, payload, status,
			attempts, next_attempt_at, last_error, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID,
		d.Provider,
		d.Topic,
		d.GatewayPaymentID,
		d.TenantID,
		d.Payload,
		d.Status,
		d.Attempts,
		d.NextAttemptAt,
		d.LastError,
		d.CreatedAt,
		d.UpdatedAt,
	).Error
}

func (r *repo) ClaimDueDeliveries(ctx context.Context, db *gorm.DB, limit int, now time.Time) ([]domain.WebhookDelivery, error) {
	if limit <= 0 {
		limit = 25
	}

	var claimed []domain.WebhookDelivery
	err := db.Transaction(func(tx *gorm.DB) error {
		var due []domain.WebhookDelivery
		query := `SELECT id, provider, topic, gateway_payment_id, tenant_id, payload, status,
				attempts, next_attempt_at, last_error, created_at, updated_at
			 FROM webhook_deliveries
			 WHERE status = ? AND next_attempt_at <= ?
			 ORDER BY next_attempt_at
			 LIMIT ?`
		// sqlite serializes writers on its own and rejects the locking clause.
		if tx.Dialector.Name() != "sqlite" {
			query += " FOR UPDATE SKIP LOCKED"
		}
		if err := tx.WithContext(ctx).Raw(query, domain.DeliveryPending, now, limit).Scan(&due).Error; err != nil {
			return err
		}
		if len(due) == 0 {
			return nil
		}

		ids := make([]snowflake.ID, 0, len(due))
		for i := range due {
			ids = append(ids, due[i].ID)
		}
		if err := tx.WithContext(ctx).Exec(
			`UPDATE webhook_deliveries
			 SET status = ?, attempts = attempts + 1, updated_at = ?
			 WHERE id IN ?`,
			domain.DeliveryProcessing,
			now,
			ids,
		).Error; err != nil {
			return err
		}
		for i := range due {
			due[i].Status = domain.DeliveryProcessing
			due[i].Attempts++
		}
		claimed = due
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *repo) MarkDeliveryProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return r.setStatus(ctx, db, id, domain.DeliveryProcessed, "")
}

func (r *repo) MarkDeliveryDiscarded(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string) error {
	return r.setStatus(ctx, db, id, domain.DeliveryDiscarded, reason)
}

func (r *repo) MarkDeliveryFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string) error {
	return r.setStatus(ctx, db, id, domain.DeliveryFailed, reason)
}

func (r *repo) RescheduleDelivery(ctx context.Context, db *gorm.DB, id snowflake.ID, nextAttempt time.Time, reason string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE webhook_deliveries
		 SET status = ?, next_attempt_at = ?, last_error = ?, updated_at = ?
		 WHERE id = ?`,
		domain.DeliveryPending,
		nextAttempt,
		reason,
		time.Now().UTC(),
		id,
	).Error
}

func (r *repo) setStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.DeliveryStatus, reason string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE webhook_deliveries
		 SET status = ?, last_error = ?, updated_at = ?
		 WHERE id = ?`,
		status,
		reason,
		time.Now().UTC(),
		id,
	).Error
}
