package domain

import "strings"

// Outcome is the reconciler's decision for a gateway payment status.
type Outcome int

const (
	// OutcomeNone leaves the entity untouched; the payment is still in
	// flight on the gateway side.
	OutcomeNone Outcome = iota
	// OutcomeSettle marks the invoice PAID or the subscription ACTIVE.
	OutcomeSettle
	// OutcomeCancel cancels the entity unless it already settled.
	OutcomeCancel
	// OutcomeReverse cancels a settled entity after a refund or
	// chargeback and leaves a resolution note.
	OutcomeReverse
)

// MapGatewayStatus translates a MercadoPago payment status. Unknown
// statuses are treated as in-flight so a new gateway state never corrupts
// local entities.
func MapGatewayStatus(status string) Outcome {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "approved":
		return OutcomeSettle
	case "pending", "authorized", "in_process", "in_mediation":
		return OutcomeNone
	case "rejected", "cancelled":
		return OutcomeCancel
	case "refunded", "charged_back":
		return OutcomeReverse
	default:
		return OutcomeNone
	}
}
