package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

type createSubscriptionRequest struct {
	PlanID   string `json:"plan_id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

func (s *Server) CreateSubscription(c *gin.Context) {
	var req createSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	sub, err := s.subscriptionSvc.Request(c.Request.Context(), tenantFrom(c), strings.TrimSpace(req.PlanID), req.Amount, strings.TrimSpace(req.Currency))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sub)
}

func (s *Server) GetSubscription(c *gin.Context) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	sub, err := s.subscriptionSvc.Get(c.Request.Context(), tenantFrom(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

// CreateSubscriptionPreference creates the recurring checkout on the
// platform gateway account.
func (s *Server) CreateSubscriptionPreference(c *gin.Context) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	link, err := s.preferenceSvc.CreateForPlan(c.Request.Context(), tenantFrom(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, link)
}
