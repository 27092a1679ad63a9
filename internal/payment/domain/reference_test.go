package domain_test

import (
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/orcafacil/billing/internal/payment/domain"
	"github.com/stretchr/testify/require"
)

func TestInvoiceReferenceRoundTrip(t *testing.T) {
	ref := domain.NewInvoiceReference(snowflake.ID(7), "FAT-20260815-0001")
	require.Equal(t, "invoice:FAT-20260815-0001:tenant:7", ref.String())

	parsed, err := domain.ParseReference(ref.String())
	require.NoError(t, err)
	require.Equal(t, domain.RefInvoice, parsed.Kind)
	require.Equal(t, snowflake.ID(7), parsed.TenantID)
	require.Equal(t, "FAT-20260815-0001", parsed.InvoiceCode)
}

func TestPlanReferenceRoundTrip(t *testing.T) {
	ref := domain.NewPlanReference(snowflake.ID(7), snowflake.ID(42))
	require.Equal(t, "plan:tenant:7:plan_subscription_id:42", ref.String())

	parsed, err := domain.ParseReference(ref.String())
	require.NoError(t, err)
	require.Equal(t, domain.RefPlan, parsed.Kind)
	require.Equal(t, snowflake.ID(7), parsed.TenantID)
	require.Equal(t, snowflake.ID(42), parsed.SubscriptionID)
}

func TestParseReferenceRejectsUnknownShapes(t *testing.T) {
	for _, raw := range []string{
		"",
		"order-123",
		"invoice:FAT-1:tenant:abc",
		"invoice::tenant:7",
		"invoice:FAT-1:tenant:0",
		"plan:tenant:7:subscription:42",
		"plan:tenant:7:plan_subscription_id:",
		"invoice:FAT-1:tenant:7:extra",
	} {
		_, err := domain.ParseReference(raw)
		require.ErrorIs(t, err, domain.ErrUnresolvedReference, "raw=%q", raw)
	}
}

func TestMapGatewayStatus(t *testing.T) {
	cases := map[string]domain.Outcome{
		"approved":     domain.OutcomeSettle,
		"APPROVED":     domain.OutcomeSettle,
		"pending":      domain.OutcomeNone,
		"authorized":   domain.OutcomeNone,
		"in_process":   domain.OutcomeNone,
		"in_mediation": domain.OutcomeNone,
		"rejected":     domain.OutcomeCancel,
		"cancelled":    domain.OutcomeCancel,
		"refunded":     domain.OutcomeReverse,
		"charged_back": domain.OutcomeReverse,
		"some_future":  domain.OutcomeNone,
		"":             domain.OutcomeNone,
	}
	for status, want := range cases {
		require.Equal(t, want, domain.MapGatewayStatus(status), "status=%q", status)
	}
}
