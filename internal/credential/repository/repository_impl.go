package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/orcafacil/billing/internal/credential/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const credentialColumns = `id, tenant_id, provider, access_token_enc, public_key, webhook_secret_enc,
	gateway_user_id, expires_at, revoked_at, created_at, updated_at`

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, cred *domain.ProviderCredential) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO provider_credentials (
			id, tenant_id, provider, access_token_enc, public_key, webhook_secret_enc,
			gateway_user_id, expires_at, revoked_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL, ?, ?)
		ON CONFLICT (tenant_id, provider) DO UPDATE SET
			access_token_enc = excluded.access_token_enc,
			public_key = excluded.public_key,
			webhook_secret_enc = excluded.webhook_secret_enc,
			gateway_user_id = excluded.gateway_user_id,
			expires_at = excluded.expires_at,
			revoked_at = NULL,
			updated_at = excluded.updated_at`,
		cred.ID,
		cred.TenantID,
		cred.Provider,
		cred.AccessTokenEnc,
		cred.PublicKey,
		cred.WebhookSecretEnc,
		cred.GatewayUserID,
		cred.ExpiresAt,
		cred.CreatedAt,
		cred.UpdatedAt,
	).Error
}

func (r *repo) FindByTenant(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, provider string) (*domain.ProviderCredential, error) {
	var item domain.ProviderCredential
	err := db.WithContext(ctx).Raw(
		`SELECT `+credentialColumns+`
		 FROM provider_credentials
		 WHERE tenant_id = ? AND provider = ?
		 LIMIT 1`,
		tenantID,
		provider,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, domain.ErrCredentialMissing
	}
	return &item, nil
}

func (r *repo) FindByGatewayUserID(ctx context.Context, db *gorm.DB, provider, gatewayUserID string) (*domain.ProviderCredential, error) {
	var item domain.ProviderCredential
	err := db.WithContext(ctx).Raw(
		`SELECT `+credentialColumns+`
		 FROM provider_credentials
		 WHERE provider = ? AND gateway_user_id = ? AND revoked_at IS NULL
		 LIMIT 1`,
		provider,
		gatewayUserID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, domain.ErrCredentialMissing
	}
	return &item, nil
}

func (r *repo) Revoke(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, provider string, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE provider_credentials
		 SET revoked_at = ?, updated_at = ?
		 WHERE tenant_id = ? AND provider = ? AND revoked_at IS NULL`,
		at,
		at,
		tenantID,
		provider,
	).Error
}
