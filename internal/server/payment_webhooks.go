package server

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

const maxWebhookBody = 1 << 20

// HandlePaymentWebhook acknowledges gateway notifications. The response
// contract matters: the gateway retries anything but 2xx, so duplicates and
// discards are still acknowledged with 200.
func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	outcome, err := s.webhookSvc.Ingest(
		c.Request.Context(),
		c.Param("provider"),
		c.Param("kind"),
		payload,
		c.Request.Header,
		c.Request.URL.Query(),
	)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": string(outcome)})
}
