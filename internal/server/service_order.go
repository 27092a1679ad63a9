package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	orderdomain "github.com/orcafacil/billing/internal/serviceorder/domain"
)

func (s *Server) GetServiceOrder(c *gin.Context) {
	order, err := s.orderSvc.Get(c.Request.Context(), tenantFrom(c), c.Param("code"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

type transitionRequest struct {
	Status           string   `json:"status"`
	PartialDelivery  bool     `json:"partial_delivery"`
	DeliveredItemIDs []string `json:"delivered_item_ids"`
	Notes            string   `json:"notes"`
}

type transitionResponse struct {
	Order           any  `json:"order"`
	Invoice         any  `json:"invoice,omitempty"`
	InvoiceDeferred bool `json:"invoice_deferred"`
}

func (s *Server) TransitionServiceOrder(c *gin.Context) {
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	target := orderdomain.Status(strings.ToUpper(strings.TrimSpace(req.Status)))

	deliveredIDs := make([]snowflake.ID, 0, len(req.DeliveredItemIDs))
	for _, raw := range req.DeliveredItemIDs {
		id, err := snowflake.ParseString(strings.TrimSpace(raw))
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		deliveredIDs = append(deliveredIDs, id)
	}

	result, err := s.orderSvc.Transition(c.Request.Context(), tenantFrom(c), c.Param("code"), target, orderdomain.TransitionOptions{
		PartialDelivery:  req.PartialDelivery,
		DeliveredItemIDs: deliveredIDs,
		Notes:            strings.TrimSpace(req.Notes),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp := transitionResponse{Order: result.Order, InvoiceDeferred: result.InvoiceDeferred}
	if result.Invoice != nil {
		resp.Invoice = result.Invoice
	}
	c.JSON(http.StatusOK, resp)
}

// CreateServiceOrderInvoice bills the remaining lines of a completed order,
// the manual companion to automatic invoicing on completion.
func (s *Server) CreateServiceOrderInvoice(c *gin.Context) {
	inv, err := s.orderSvc.CreateInvoice(c.Request.Context(), tenantFrom(c), c.Param("code"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, inv)
}
