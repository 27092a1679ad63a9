package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	credentialdomain "github.com/orcafacil/billing/internal/credential/domain"
)

type storeCredentialRequest struct {
	Provider      string     `json:"provider"`
	AccessToken   string     `json:"access_token"`
	PublicKey     string     `json:"public_key"`
	WebhookSecret string     `json:"webhook_secret"`
	GatewayUserID string     `json:"gateway_user_id"`
	ExpiresAt     *time.Time `json:"expires_at"`
}

func (s *Server) StoreCredential(c *gin.Context) {
	var req storeCredentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	err := s.credentialSvc.Store(c.Request.Context(), tenantFrom(c), credentialdomain.StoreRequest{
		Provider:      strings.TrimSpace(req.Provider),
		AccessToken:   strings.TrimSpace(req.AccessToken),
		PublicKey:     strings.TrimSpace(req.PublicKey),
		WebhookSecret: strings.TrimSpace(req.WebhookSecret),
		GatewayUserID: strings.TrimSpace(req.GatewayUserID),
		ExpiresAt:     req.ExpiresAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "stored"})
}

func (s *Server) RevokeCredential(c *gin.Context) {
	if err := s.credentialSvc.Revoke(c.Request.Context(), tenantFrom(c)); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "revoked"})
}
