package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (s *Server) GetInvoice(c *gin.Context) {
	inv, err := s.invoiceSvc.Get(c.Request.Context(), tenantFrom(c), c.Param("code"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, inv)
}

func (s *Server) RenderInvoicePDF(c *gin.Context) {
	pdf, err := s.invoiceSvc.RenderPDF(c.Request.Context(), tenantFrom(c), c.Param("code"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Header("Content-Disposition", `inline; filename="`+c.Param("code")+`.pdf"`)
	c.Data(http.StatusOK, "application/pdf", pdf)
}

type cancelInvoiceRequest struct {
	Note string `json:"note"`
}

func (s *Server) CancelInvoice(c *gin.Context) {
	var req cancelInvoiceRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
	}

	tenantID := tenantFrom(c)
	inv, err := s.invoiceSvc.Cancel(c.Request.Context(), tenantID, c.Param("code"), strings.TrimSpace(req.Note))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	// Expire any open checkout so the gateway stops accepting payment for a
	// cancelled invoice. Best effort: the invoice is already cancelled.
	if inv.PreferenceID != nil && *inv.PreferenceID != "" {
		if err := s.preferenceSvc.Invalidate(c.Request.Context(), tenantID, *inv.PreferenceID); err != nil {
			s.log.Warn("checkout invalidation failed",
				zap.String("invoice", inv.Code),
				zap.String("preference_id", *inv.PreferenceID),
				zap.Error(err),
			)
		}
	}
	c.JSON(http.StatusOK, inv)
}

// CreateInvoicePreference creates a gateway checkout for the invoice using
// the tenant's own gateway credential.
func (s *Server) CreateInvoicePreference(c *gin.Context) {
	link, err := s.preferenceSvc.CreateForInvoice(c.Request.Context(), tenantFrom(c), c.Param("code"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, link)
}
