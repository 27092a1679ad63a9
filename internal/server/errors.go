package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	budgetdomain "github.com/orcafacil/billing/internal/budget/domain"
	credentialdomain "github.com/orcafacil/billing/internal/credential/domain"
	customerdomain "github.com/orcafacil/billing/internal/customer/domain"
	invoicedomain "github.com/orcafacil/billing/internal/invoice/domain"
	paymentdomain "github.com/orcafacil/billing/internal/payment/domain"
	orderdomain "github.com/orcafacil/billing/internal/serviceorder/domain"
	subscriptiondomain "github.com/orcafacil/billing/internal/subscription/domain"
	"gorm.io/gorm"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrNotFound           = errors.New("not_found")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, invoicedomain.ErrInvalidDiscount),
		errors.Is(err, invoicedomain.ErrNoBillableItems),
		errors.Is(err, orderdomain.ErrInvalidStatus),
		errors.Is(err, orderdomain.ErrNoDeliveredItems),
		errors.Is(err, subscriptiondomain.ErrInvalidPlan),
		errors.Is(err, subscriptiondomain.ErrInvalidAmount),
		errors.Is(err, credentialdomain.ErrInvalidCredential):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: err.Error(),
		}

	case errors.Is(err, paymentdomain.ErrInvalidSignature):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "invalid webhook signature",
		}

	case errors.Is(err, paymentdomain.ErrMalformedPayload):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "malformed_payload",
			Message: "malformed webhook payload",
		}

	case errors.Is(err, orderdomain.ErrInvalidTransition),
		errors.Is(err, invoicedomain.ErrInvoicePaid),
		errors.Is(err, invoicedomain.ErrInvoiceCancelled),
		errors.Is(err, subscriptiondomain.ErrSubscriptionNotPending),
		errors.Is(err, credentialdomain.ErrCredentialExpired):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: err.Error(),
		}

	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}

	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, paymentdomain.ErrGatewayUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}

	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, orderdomain.ErrOrderNotFound),
		errors.Is(err, invoicedomain.ErrInvoiceNotFound),
		errors.Is(err, subscriptiondomain.ErrSubscriptionNotFound),
		errors.Is(err, budgetdomain.ErrBudgetNotFound),
		errors.Is(err, customerdomain.ErrCustomerNotFound),
		errors.Is(err, credentialdomain.ErrCredentialMissing),
		errors.Is(err, paymentdomain.ErrUnknownTopic),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

// classifyErrorForLog keys request log lines by the kind of failure without
// leaking payloads.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	switch {
	case status >= 500:
		return "server_error", payload.Type
	case status >= 400:
		return "client_error", payload.Type
	default:
		return "", ""
	}
}
