package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/orcafacil/billing/internal/config"
	"github.com/orcafacil/billing/internal/credential/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const providerMercadoPago = "mercadopago"

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Cfg   config.Config
	Repo  domain.Repository
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	repo   domain.Repository
	encKey []byte
}

func NewService(p Params) domain.Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("credential.service"),
		genID:  p.GenID,
		repo:   p.Repo,
		encKey: deriveKey(strings.TrimSpace(p.Cfg.CredentialSecret)),
	}
}

func (s *Service) Get(ctx context.Context, tenantID snowflake.ID) (*domain.Credential, error) {
	stored, err := s.repo.FindByTenant(ctx, s.db, tenantID, providerMercadoPago)
	if err != nil {
		return nil, err
	}
	return s.open(stored)
}

func (s *Service) Store(ctx context.Context, tenantID snowflake.ID, req domain.StoreRequest) error {
	token := strings.TrimSpace(req.AccessToken)
	if token == "" {
		return domain.ErrInvalidCredential
	}
	provider := strings.ToLower(strings.TrimSpace(req.Provider))
	if provider == "" {
		provider = providerMercadoPago
	}

	tokenEnc, err := encrypt(s.encKey, token)
	if err != nil {
		return err
	}
	var secretEnc string
	if secret := strings.TrimSpace(req.WebhookSecret); secret != "" {
		secretEnc, err = encrypt(s.encKey, secret)
		if err != nil {
			return err
		}
	}

	now := time.Now().UTC()
	cred := &domain.ProviderCredential{
		ID:               s.genID.Generate(),
		TenantID:         tenantID,
		Provider:         provider,
		AccessTokenEnc:   tokenEnc,
		PublicKey:        strings.TrimSpace(req.PublicKey),
		WebhookSecretEnc: secretEnc,
		GatewayUserID:    strings.TrimSpace(req.GatewayUserID),
		ExpiresAt:        req.ExpiresAt,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.repo.Upsert(ctx, s.db, cred); err != nil {
		return err
	}

	s.log.Info("credential stored",
		zap.String("provider", provider),
		zap.String("token_prefix", maskToken(token)),
		zap.String("gateway_user_id", cred.GatewayUserID),
	)
	return nil
}

func (s *Service) Revoke(ctx context.Context, tenantID snowflake.ID) error {
	if err := s.repo.Revoke(ctx, s.db, tenantID, providerMercadoPago, time.Now().UTC()); err != nil {
		return err
	}
	s.log.Info("credential revoked", zap.String("provider", providerMercadoPago))
	return nil
}

func (s *Service) FindByGatewayUserID(ctx context.Context, gatewayUserID string) (*domain.Credential, error) {
	gatewayUserID = strings.TrimSpace(gatewayUserID)
	if gatewayUserID == "" {
		return nil, domain.ErrCredentialMissing
	}
	stored, err := s.repo.FindByGatewayUserID(ctx, s.db, providerMercadoPago, gatewayUserID)
	if err != nil {
		return nil, err
	}
	return s.open(stored)
}

func (s *Service) open(stored *domain.ProviderCredential) (*domain.Credential, error) {
	if stored.RevokedAt != nil {
		return nil, domain.ErrCredentialExpired
	}
	if stored.ExpiresAt != nil && stored.ExpiresAt.Before(time.Now().UTC()) {
		return nil, domain.ErrCredentialExpired
	}

	token, err := decrypt(s.encKey, stored.AccessTokenEnc)
	if err != nil {
		return nil, err
	}
	var webhookSecret string
	if stored.WebhookSecretEnc != "" {
		webhookSecret, err = decrypt(s.encKey, stored.WebhookSecretEnc)
		if err != nil {
			return nil, err
		}
	}

	return &domain.Credential{
		TenantID:      stored.TenantID,
		Provider:      stored.Provider,
		AccessToken:   token,
		PublicKey:     stored.PublicKey,
		WebhookSecret: webhookSecret,
		GatewayUserID: stored.GatewayUserID,
	}, nil
}

// maskToken keeps only a short prefix so a token can be correlated in logs
// without disclosing it.
func maskToken(token string) string {
	if len(token) <= 8 {
		return "********"
	}
	return token[:8] + "..."
}
