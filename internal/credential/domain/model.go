package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// ProviderCredential is the stored, encrypted form of a tenant's gateway
// secret. Token columns hold AES-GCM envelopes, never plaintext.
type ProviderCredential struct {
	ID               snowflake.ID `json:"id" gorm:"primaryKey"`
	TenantID         snowflake.ID `json:"tenant_id" gorm:"not null;index"`
	Provider         string       `json:"provider" gorm:"type:text;not null"`
	AccessTokenEnc   string       `json:"-" gorm:"type:text;not null"`
	PublicKey        string       `json:"public_key" gorm:"type:text"`
	WebhookSecretEnc string       `json:"-" gorm:"type:text"`
	GatewayUserID    string       `json:"gateway_user_id" gorm:"type:text;index"`
	ExpiresAt        *time.Time   `json:"expires_at"`
	RevokedAt        *time.Time   `json:"revoked_at"`
	CreatedAt        time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt        time.Time    `json:"updated_at" gorm:"not null"`
}

func (ProviderCredential) TableName() string { return "provider_credentials" }

// Credential is the decrypted view handed to gateway callers.
type Credential struct {
	TenantID      snowflake.ID
	Provider      string
	AccessToken   string
	PublicKey     string
	WebhookSecret string
	GatewayUserID string
}

type StoreRequest struct {
	Provider      string
	AccessToken   string
	PublicKey     string
	WebhookSecret string
	GatewayUserID string
	ExpiresAt     *time.Time
}

type Service interface {
	Get(ctx context.Context, tenantID snowflake.ID) (*Credential, error)
	Store(ctx context.Context, tenantID snowflake.ID, req StoreRequest) error
	Revoke(ctx context.Context, tenantID snowflake.ID) error
	// FindByGatewayUserID resolves the tenant owning a gateway account.
	// Used to route inbound webhooks that only carry the gateway user id.
	FindByGatewayUserID(ctx context.Context, gatewayUserID string) (*Credential, error)
}

type Repository interface {
	Upsert(ctx context.Context, db *gorm.DB, cred *ProviderCredential) error
	FindByTenant(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, provider string) (*ProviderCredential, error)
	FindByGatewayUserID(ctx context.Context, db *gorm.DB, provider, gatewayUserID string) (*ProviderCredential, error)
	Revoke(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, provider string, at time.Time) error
}

var (
	ErrCredentialMissing = errors.New("credential_missing")
	ErrCredentialExpired = errors.New("credential_expired")
	ErrInvalidCredential = errors.New("invalid_credential")
)
